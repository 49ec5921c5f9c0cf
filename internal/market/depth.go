package market

import (
	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/google/btree"
)

// PriceLevel is the outstanding quantity at one price.
type PriceLevel struct {
	Price    domain.Price `json:"price"`
	Quantity int          `json:"quantity"`
	Orders   int          `json:"orders"`
}

// ladder aggregates outstanding quantity per price for one side. Min is
// the best price.
type ladder struct {
	tree *btree.BTreeG[PriceLevel]
}

func newLadder(side domain.Side) *ladder {
	less := func(a, b PriceLevel) bool { return a.Price < b.Price }
	if side == domain.Buy {
		less = func(a, b PriceLevel) bool { return a.Price > b.Price }
	}
	return &ladder{tree: btree.NewG(16, less)}
}

// adjust changes the quantity at price by delta and the order count by
// orders, dropping the level once it is empty.
func (l *ladder) adjust(price domain.Price, delta, orders int) {
	lvl, _ := l.tree.Get(PriceLevel{Price: price})
	lvl.Price = price
	lvl.Quantity += delta
	lvl.Orders += orders
	if lvl.Quantity <= 0 {
		l.tree.Delete(lvl)
		return
	}
	l.tree.ReplaceOrInsert(lvl)
}

// top returns up to n levels, best first.
func (l *ladder) top(n int) []PriceLevel {
	if n <= 0 {
		return nil
	}
	levels := make([]PriceLevel, 0, min(n, l.tree.Len()))
	l.tree.Ascend(func(lvl PriceLevel) bool {
		if len(levels) >= n {
			return false
		}
		levels = append(levels, lvl)
		return true
	})
	return levels
}

func (l *ladder) total() int {
	n := 0
	l.tree.Ascend(func(lvl PriceLevel) bool {
		n += lvl.Quantity
		return true
	})
	return n
}

func (l *ladder) clear() {
	l.tree.Clear(false)
}
