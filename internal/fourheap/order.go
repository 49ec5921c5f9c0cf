package fourheap

import (
	"fmt"

	"github.com/efreitasn/marketsim/internal/domain"
)

// OrderID is a stable handle into a Book's order arena. IDs are assigned
// by the Book in submission order and never reused.
type OrderID uint64

// Order is the immutable identity of a submitted order. Its open quantity
// lives in the Book and is read with Book.Count.
type Order struct {
	ID       OrderID
	Side     domain.Side
	Price    domain.Price
	Time     domain.MarketTime
	Quantity int // quantity at submission
}

func (o Order) String() string {
	return fmt.Sprintf("#%d %s %d@%s t=%d", o.ID, o.Side, o.Quantity, o.Price, o.Time)
}

// MatchedOrders pairs quantity from one buy and one sell order. It is only
// produced by Book.Clear.
type MatchedOrders struct {
	Buy      Order
	Sell     Order
	Quantity int
}

// slot is the arena record of an order. unmatched + matched is the open
// quantity; it only shrinks through withdrawal or clearing.
type slot struct {
	order     Order
	unmatched int
	matched   int
}

func (s *slot) open() int {
	return s.unmatched + s.matched
}
