// Package clearing assigns transaction prices to the pairs produced by a
// book clear. Rules see only the matched pairs, never the book.
package clearing

import (
	"fmt"

	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/fourheap"
	"github.com/shopspring/decimal"
)

// PricedMatch is a matched pair and the price it transacts at.
type PricedMatch struct {
	fourheap.MatchedOrders
	Price domain.Price
}

// Rule prices a batch of matches. The result has one entry per input
// match, in input order.
type Rule interface {
	Price(matches []fourheap.MatchedOrders) []PricedMatch
}

// EarliestPrice prices each pair at the limit price of whichever order
// was submitted first. Ties in market time go to the lower order ID.
type EarliestPrice struct{}

// Price implements Rule.
func (EarliestPrice) Price(matches []fourheap.MatchedOrders) []PricedMatch {
	out := make([]PricedMatch, len(matches))
	for i, m := range matches {
		out[i] = PricedMatch{MatchedOrders: m, Price: earliest(m).Price}
	}
	return out
}

func earliest(m fourheap.MatchedOrders) fourheap.Order {
	switch {
	case m.Buy.Time < m.Sell.Time:
		return m.Buy
	case m.Sell.Time < m.Buy.Time:
		return m.Sell
	case m.Buy.ID < m.Sell.ID:
		return m.Buy
	default:
		return m.Sell
	}
}

// UniformPrice gives every pair in a batch the same price, a convex
// combination of the lowest matched buy price and the highest matched
// sell price. Ratio 1 prices at the buy side, 0 at the sell side.
type UniformPrice struct {
	ratio decimal.Decimal
}

// NewUniformPrice returns a uniform-price rule. ratio must be in [0, 1].
func NewUniformPrice(ratio float64) (*UniformPrice, error) {
	r := decimal.NewFromFloat(ratio)
	if r.LessThan(decimal.Zero) || r.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("uniform price ratio %v: %w", ratio, domain.ErrInvalidPricing)
	}
	return &UniformPrice{ratio: r}, nil
}

// Ratio is the weight given to the buy side.
func (u *UniformPrice) Ratio() decimal.Decimal {
	return u.ratio
}

// Price implements Rule.
func (u *UniformPrice) Price(matches []fourheap.MatchedOrders) []PricedMatch {
	if len(matches) == 0 {
		return nil
	}
	ask, bid := domain.NegInf, domain.Inf
	for _, m := range matches {
		ask = max(ask, m.Sell.Price)
		bid = min(bid, m.Buy.Price)
	}
	price := u.combine(ask, bid)

	out := make([]PricedMatch, len(matches))
	for i, m := range matches {
		out[i] = PricedMatch{MatchedOrders: m, Price: price}
	}
	return out
}

// combine computes ratio × bid + (1 − ratio) × ask, rounded to the
// nearest tick.
func (u *UniformPrice) combine(ask, bid domain.Price) domain.Price {
	a := decimal.NewFromInt(int64(ask))
	b := decimal.NewFromInt(int64(bid))
	one := decimal.NewFromInt(1)
	return domain.PriceFromDecimal(u.ratio.Mul(b).Add(one.Sub(u.ratio).Mul(a)))
}
