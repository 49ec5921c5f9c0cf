package market

import (
	"github.com/shopspring/decimal"

	"github.com/efreitasn/marketsim/internal/domain"
)

// PriceStats summarizes recent trading in a market.
type PriceStats struct {
	// Price is the volume-weighted average over the window, or the last
	// transaction price when nothing traded inside it.
	Price       domain.Price
	Trades      int
	LastTradeAt domain.TimeStamp
}

// VWAP computes the volume-weighted average price of the transactions
// executed within window of the current time. ok is false if the market
// has never traded.
func (m *Market) VWAP(window domain.TimeStamp) (stats PriceStats, ok bool) {
	txs := m.Transactions()
	if len(txs) == 0 {
		return PriceStats{}, false
	}
	last := txs[len(txs)-1]
	stats.LastTradeAt = last.ExecutedAt
	start := m.sched.CurrentTime() - window

	var notional, volume int64
	for i := len(txs) - 1; i >= 0; i-- {
		tx := txs[i]
		if tx.ExecutedAt < start {
			break
		}
		notional += int64(tx.Price) * int64(tx.Quantity)
		volume += int64(tx.Quantity)
		stats.Trades++
	}

	if volume == 0 {
		stats.Price = last.Price
		return stats, true
	}
	stats.Price = domain.PriceFromDecimal(decimal.NewFromInt(notional).Div(decimal.NewFromInt(volume)))
	return stats, true
}

// Spread is the distance between the best ask and bid levels, if both
// sides have outstanding orders.
func (m *Market) Spread() (domain.Price, bool) {
	bids, asks := m.Depth(domain.Buy, 1), m.Depth(domain.Sell, 1)
	if len(bids) == 0 || len(asks) == 0 {
		return 0, false
	}
	return asks[0].Price - bids[0].Price, true
}
