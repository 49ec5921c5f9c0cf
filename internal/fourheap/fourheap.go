// Package fourheap implements a two-sided limit order book that matches
// buy and sell interest under price-time priority and reports quotes in
// constant time.
//
// Each side keeps two queues. The unmatched queue is ordered best first
// and the matched queue worst first, so the most displaceable matched
// order is always at its head. Matched quantity on the two sides is kept
// as nearly equal as levels allow, and Clear turns it into pairs.
//
// A Book is not safe for concurrent use. A simulation drives it from a
// single event loop.
package fourheap

import (
	"cmp"
	"fmt"

	"github.com/efreitasn/marketsim/internal/domain"
)

// half is one side of the book seen from that side: price compares
// negative when a is the better price for this side.
type half struct {
	side      domain.Side
	unmatched *orderQueue
	matched   *orderQueue
	price     func(a, b domain.Price) int
}

func (h *half) key(a, b key) int {
	if c := h.price(a.price, b.price); c != 0 {
		return c
	}
	return cmp.Compare(a.time, b.time)
}

func (h *half) depth() int {
	return h.unmatched.size + h.matched.size
}

func newHalf(side domain.Side) *half {
	h := &half{side: side}
	if side == domain.Buy {
		h.price = func(a, b domain.Price) int { return cmp.Compare(b, a) }
	} else {
		h.price = func(a, b domain.Price) int { return cmp.Compare(a, b) }
	}
	h.unmatched = newOrderQueue(h.key)
	h.matched = newOrderQueue(func(a, b key) int { return h.key(b, a) })
	return h
}

// Option configures a Book.
type Option func(*Book)

// WithDebug makes every mutation verify the book invariants and panic on
// a violation. A violation is a bug in the matching algorithm.
func WithDebug(debug bool) Option {
	return func(b *Book) {
		b.debug = debug
	}
}

// Book is the four-heap order book.
type Book struct {
	selector Selector
	debug    bool
	lastID   OrderID
	orders   map[OrderID]*slot
	buy      *half
	sell     *half
}

// NewBook creates an empty book. The selector decides which units of a
// tied level are released when Clear has to shrink one side.
func NewBook(selector Selector, opts ...Option) *Book {
	b := &Book{
		selector: selector,
		orders:   make(map[OrderID]*slot),
		buy:      newHalf(domain.Buy),
		sell:     newHalf(domain.Sell),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Book) halves(side domain.Side) (own, opp *half) {
	if side == domain.Buy {
		return b.buy, b.sell
	}
	return b.sell, b.buy
}

// Submit adds a new order with quantity qty at price, ranked by t among
// orders at the same price. Complexity O(log n).
func (b *Book) Submit(side domain.Side, price domain.Price, t domain.MarketTime, qty int) (Order, error) {
	if side != domain.Buy && side != domain.Sell {
		return Order{}, fmt.Errorf("submit side %d: %w", side, domain.ErrInvalidSide)
	}
	if !price.IsFinite() {
		return Order{}, fmt.Errorf("submit price %s: %w", price, domain.ErrInvalidPrice)
	}
	if qty <= 0 {
		return Order{}, fmt.Errorf("submit quantity %d: %w", qty, domain.ErrInvalidQuantity)
	}

	b.lastID++
	order := Order{ID: b.lastID, Side: side, Price: price, Time: t, Quantity: qty}
	s := &slot{order: order}
	b.orders[order.ID] = s

	own, opp := b.halves(side)
	k := key{price: price, time: t}
	if b.matches(k, own, opp) {
		own.matched.add(order.ID, k, qty)
		s.matched = qty
		for own.matched.size > opp.matched.size {
			worst, _ := own.matched.peekKey()
			if best, ok := opp.unmatched.peekKey(); ok && own.price(worst.price, best.price) <= 0 {
				b.move(opp.unmatched, opp.matched, true)
			} else if own.matched.size-own.matched.peekSize() >= opp.matched.size {
				b.move(own.matched, own.unmatched, false)
			} else {
				break
			}
		}
	} else {
		own.unmatched.add(order.ID, k, qty)
		s.unmatched = qty
	}

	b.assertInvariants()
	return order, nil
}

// matches reports whether an order at k should enter its side's matched
// queue: it outranks the worst matched order on its side, it crosses the
// best unmatched opposite order while matched sizes are level, or it
// crosses the opposite matched orders that still lack a counterpart.
func (b *Book) matches(k key, own, opp *half) bool {
	if worst, ok := own.matched.peekKey(); ok && own.key(k, worst) <= 0 {
		return true
	}
	if best, ok := opp.unmatched.peekKey(); ok && own.price(k.price, best.price) <= 0 &&
		opp.matched.size == own.matched.size {
		return true
	}
	if worst, ok := opp.matched.peekKey(); ok && own.price(k.price, worst.price) <= 0 &&
		opp.matched.size > own.matched.size {
		return true
	}
	return false
}

// move pops the head level of from and offers it to to, keeping the
// arena counters in step.
func (b *Book) move(from, to *orderQueue, toMatched bool) {
	l := from.poll()
	for _, e := range l.entries {
		s := b.orders[e.id]
		if toMatched {
			s.unmatched -= e.qty
			s.matched += e.qty
		} else {
			s.matched -= e.qty
			s.unmatched += e.qty
		}
	}
	to.offer(l)
}

// Withdraw removes qty of an order's open quantity, unmatched quantity
// first. A zero quantity is a no-op. Withdrawing from an unknown order or
// more than is open is rejected rather than clamped. Complexity O(log n).
func (b *Book) Withdraw(id OrderID, qty int) error {
	if qty < 0 {
		return fmt.Errorf("withdraw quantity %d from order %d: %w", qty, id, domain.ErrInvalidQuantity)
	}
	s, ok := b.orders[id]
	if !ok {
		return fmt.Errorf("withdraw order %d: %w", id, domain.ErrOrderNotFound)
	}
	if qty == 0 {
		return nil
	}
	if qty > s.open() {
		return fmt.Errorf("withdraw %d from order %d with %d open: %w", qty, id, s.open(), domain.ErrOverWithdraw)
	}

	own, opp := b.halves(s.order.Side)
	fromUnmatched := min(qty, s.unmatched)
	if fromUnmatched > 0 {
		own.unmatched.remove(id, fromUnmatched)
		s.unmatched -= fromUnmatched
	}
	if rest := qty - fromUnmatched; rest > 0 {
		own.matched.remove(id, rest)
		s.matched -= rest

		for opp.matched.size > own.matched.size {
			oppWorst, _ := opp.matched.peekKey()
			if best, ok := own.unmatched.peekKey(); ok && own.price(best.price, oppWorst.price) <= 0 {
				b.move(own.unmatched, own.matched, true)
			} else if opp.matched.size-opp.matched.peekSize() >= own.matched.size {
				b.move(opp.matched, opp.unmatched, false)
			} else {
				break
			}
		}
	}
	if s.open() == 0 {
		delete(b.orders, id)
	}

	b.assertInvariants()
	return nil
}

// Clear pairs all matched quantity and empties both matched queues. When
// the matched sizes differ, the excess is released back to unmatched from
// the worst matched level of the deeper side, using the Selector to pick
// which tied units go. Complexity O(m) in the number of matched orders.
func (b *Book) Clear() []MatchedOrders {
	if b.buy.matched.isEmpty() || b.sell.matched.isEmpty() {
		if !b.buy.matched.isEmpty() || !b.sell.matched.isEmpty() {
			panic(fmt.Sprintf("fourheap: one-sided matched book: %d buys, %d sells",
				b.buy.matched.size, b.sell.matched.size))
		}
		return nil
	}

	diff := b.buy.matched.size - b.sell.matched.size
	buyHead := b.buy.matched.poll()
	sellHead := b.sell.matched.poll()
	if diff > 0 {
		b.release(b.buy, buyHead, diff)
	} else if diff < 0 {
		b.release(b.sell, sellHead, -diff)
	}

	buys := b.drain(b.buy.matched, buyHead)
	sells := b.drain(b.sell.matched, sellHead)

	var matches []MatchedOrders
	i, j := 0, 0
	for i < len(buys) && j < len(sells) {
		qty := min(buys[i].qty, sells[j].qty)
		buySlot, sellSlot := b.orders[buys[i].id], b.orders[sells[j].id]
		matches = append(matches, MatchedOrders{Buy: buySlot.order, Sell: sellSlot.order, Quantity: qty})
		buySlot.matched -= qty
		sellSlot.matched -= qty
		buys[i].qty -= qty
		sells[j].qty -= qty
		if buys[i].qty == 0 {
			i++
		}
		if sells[j].qty == 0 {
			j++
		}
	}
	if i != len(buys) || j != len(sells) {
		panic("fourheap: matched sides hold unequal quantity after release")
	}

	for _, e := range buys {
		b.reap(e.id)
	}
	for _, e := range sells {
		b.reap(e.id)
	}
	b.buy.matched.clear()
	b.sell.matched.clear()

	b.assertInvariants()
	return matches
}

// release moves qty units of the polled head level back to h's unmatched
// queue.
func (b *Book) release(h *half, head *level, qty int) {
	pool := make([]Entry, 0, len(head.entries))
	for _, e := range head.entries {
		pool = append(pool, Entry{ID: e.id, Count: e.qty})
	}
	selected, _ := b.selector.Select(pool, qty)

	released := &level{key: head.key}
	for _, sel := range selected {
		if sel.Count == 0 {
			continue
		}
		head.take(sel.ID, sel.Count)
		released.add(sel.ID, sel.Count)
		s := b.orders[sel.ID]
		s.matched -= sel.Count
		s.unmatched += sel.Count
	}
	if len(released.entries) > 0 {
		h.unmatched.offer(released)
	}
}

// drain lists head's entries followed by every level left in q, in queue
// order. The entries are copies.
func (b *Book) drain(q *orderQueue, head *level) []entry {
	out := append([]entry(nil), head.entries...)
	q.ascend(func(l *level) bool {
		out = append(out, l.entries...)
		return true
	})
	return out
}

// reap drops an order from the arena once nothing of it is open.
func (b *Book) reap(id OrderID) {
	if s, ok := b.orders[id]; ok && s.open() == 0 {
		delete(b.orders, id)
	}
}

// BidQuote returns the price at or below which a new sell order is
// guaranteed to match. Complexity O(1).
func (b *Book) BidQuote() (domain.Price, bool) {
	return b.quote(b.buy, b.sell)
}

// AskQuote returns the price at or above which a new buy order is
// guaranteed to match. Complexity O(1).
func (b *Book) AskQuote() (domain.Price, bool) {
	return b.quote(b.sell, b.buy)
}

// quote picks the best of: the worst matched opposite order, the best
// unmatched order on this side, and the worst matched order on this side
// when it has no counterpart.
func (b *Book) quote(own, opp *half) (domain.Price, bool) {
	var (
		best  domain.Price
		found bool
	)
	consider := func(k key, ok bool) {
		if ok && (!found || own.price(k.price, best) < 0) {
			best, found = k.price, true
		}
	}
	consider(opp.matched.peekKey())
	consider(own.unmatched.peekKey())
	if own.matched.size > opp.matched.size {
		consider(own.matched.peekKey())
	}
	return best, found
}

// BidDepth is the total open buy quantity.
func (b *Book) BidDepth() int {
	return b.buy.depth()
}

// AskDepth is the total open sell quantity.
func (b *Book) AskDepth() int {
	return b.sell.depth()
}

// Size is the total open quantity on both sides.
func (b *Book) Size() int {
	return b.buy.unmatched.size + b.buy.matched.size + b.sell.unmatched.size + b.sell.matched.size
}

// Len is the number of orders with open quantity.
func (b *Book) Len() int {
	return len(b.orders)
}

// Order returns the identity of an order that still has open quantity.
func (b *Book) Order(id OrderID) (Order, bool) {
	s, ok := b.orders[id]
	if !ok {
		return Order{}, false
	}
	return s.order, true
}

// Count is the open quantity of an order, 0 if it is gone.
func (b *Book) Count(id OrderID) int {
	s, ok := b.orders[id]
	if !ok {
		return 0
	}
	return s.open()
}

// MatchedCount is the part of an order's open quantity currently paired
// against the other side.
func (b *Book) MatchedCount(id OrderID) int {
	s, ok := b.orders[id]
	if !ok {
		return 0
	}
	return s.matched
}

// Contains reports whether an order still has open quantity.
func (b *Book) Contains(id OrderID) bool {
	_, ok := b.orders[id]
	return ok
}

// Orders visits every open order in no particular order until fn returns
// false.
func (b *Book) Orders(fn func(o Order, open, matched int) bool) {
	for _, s := range b.orders {
		if !fn(s.order, s.open(), s.matched) {
			return
		}
	}
}

// Reset removes every order without clearing.
func (b *Book) Reset() {
	clear(b.orders)
	b.buy.unmatched.clear()
	b.buy.matched.clear()
	b.sell.unmatched.clear()
	b.sell.matched.clear()
}

func (b *Book) String() string {
	return fmt.Sprintf("{bid %d (%d matched) | ask %d (%d matched)}",
		b.BidDepth(), b.buy.matched.size, b.AskDepth(), b.sell.matched.size)
}
