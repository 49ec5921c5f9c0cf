package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Price is a limit or transaction price in integer ticks.
type Price int64

// Sentinels used for an empty side of the book. Any real price compares
// better than NegInf for a buyer and better than Inf for a seller.
const (
	Inf    Price = math.MaxInt64
	NegInf Price = math.MinInt64
)

// IsFinite reports whether p is a real price rather than a sentinel.
func (p Price) IsFinite() bool {
	return p != Inf && p != NegInf
}

// Decimal returns p as a decimal number of ticks. Sentinels are not
// representable and return an error.
func (p Price) Decimal() (decimal.Decimal, error) {
	if !p.IsFinite() {
		return decimal.Zero, fmt.Errorf("price %s has no decimal value", p)
	}
	return decimal.NewFromInt(int64(p)), nil
}

func (p Price) String() string {
	switch p {
	case Inf:
		return "+inf"
	case NegInf:
		return "-inf"
	}
	return fmt.Sprintf("%d", int64(p))
}

// PriceFromDecimal rounds d half away from zero to the nearest tick.
func PriceFromDecimal(d decimal.Decimal) Price {
	return Price(d.Round(0).IntPart())
}

// ParsePrice parses a decimal string such as "100" or "99.5" and rounds
// it to the nearest tick.
func ParsePrice(s string) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", s, err)
	}
	if d.GreaterThanOrEqual(decimal.NewFromInt(math.MaxInt64)) || d.LessThanOrEqual(decimal.NewFromInt(math.MinInt64)) {
		return 0, fmt.Errorf("price %q out of range", s)
	}
	return PriceFromDecimal(d), nil
}
