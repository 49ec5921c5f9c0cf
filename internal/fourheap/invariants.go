package fourheap

import (
	"errors"
	"fmt"
	"slices"

	"github.com/efreitasn/marketsim/internal/domain"
)

func (b *Book) assertInvariants() {
	if !b.debug {
		return
	}
	if err := b.CheckInvariants(); err != nil {
		panic(fmt.Sprintf("fourheap: %v in %s", err, b))
	}
}

// CheckInvariants verifies the structural invariants of the book and
// returns every violation found. It walks all orders, so it is meant for
// tests and debug builds.
func (b *Book) CheckInvariants() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	bi, hasBI := b.buy.matched.peekKey()
	bo, hasBO := b.buy.unmatched.peekKey()
	si, hasSI := b.sell.matched.peekKey()
	so, hasSO := b.sell.unmatched.peekKey()

	if hasBI && hasBO && b.buy.key(bi, bo) > 0 {
		fail("unmatched buy %v outranks matched buy %v", bo, bi)
	}
	if hasSI && hasSO && b.sell.key(si, so) > 0 {
		fail("unmatched sell %v outranks matched sell %v", so, si)
	}
	if hasBI && hasSI && bi.price < si.price {
		fail("matched buy %s below matched sell %s", bi.price, si.price)
	}
	if hasBO && hasSO && bo.price >= so.price {
		fail("unmatched buy %s crosses unmatched sell %s", bo.price, so.price)
	}
	if b.buy.matched.size > b.sell.matched.size && hasBI && hasSO && bi.price >= so.price {
		fail("excess matched buy %s crosses unmatched sell %s", bi.price, so.price)
	}
	if b.sell.matched.size > b.buy.matched.size && hasSI && hasBO && bo.price >= si.price {
		fail("excess matched sell %s crosses unmatched buy %s", si.price, bo.price)
	}
	if hasBI && b.buy.matched.size-b.buy.matched.peekSize() >= b.sell.matched.size {
		fail("too many matched buys: %d with head %d against %d sells",
			b.buy.matched.size, b.buy.matched.peekSize(), b.sell.matched.size)
	}
	if hasSI && b.sell.matched.size-b.sell.matched.peekSize() >= b.buy.matched.size {
		fail("too many matched sells: %d with head %d against %d buys",
			b.sell.matched.size, b.sell.matched.peekSize(), b.buy.matched.size)
	}
	if b.buy.matched.isEmpty() != b.sell.matched.isEmpty() {
		fail("only one side has matched orders")
	}
	if b.Size() != b.BidDepth()+b.AskDepth() {
		fail("size %d != bid depth %d + ask depth %d", b.Size(), b.BidDepth(), b.AskDepth())
	}

	queued := 0
	for _, h := range []*half{b.buy, b.sell} {
		for _, q := range []struct {
			queue   *orderQueue
			matched bool
		}{{h.unmatched, false}, {h.matched, true}} {
			n := 0
			q.queue.ascend(func(l *level) bool {
				for _, e := range l.entries {
					n += e.qty
					s, ok := b.orders[e.id]
					if !ok {
						fail("queued order %d missing from arena", e.id)
						continue
					}
					if s.order.Side != h.side {
						fail("%s order %d queued on %s side", s.order.Side, e.id, h.side)
					}
					if s.order.Price != l.key.price {
						fail("order %d at %s queued at level %s", e.id, s.order.Price, l.key.price)
					}
					if e.qty <= 0 {
						fail("order %d has non-positive level quantity %d", e.id, e.qty)
					}
				}
				return true
			})
			if n != q.queue.size {
				fail("%s queue (matched=%v) size %d != level total %d", h.side, q.matched, q.queue.size, n)
			}
			queued += n
		}
	}

	total := 0
	for id, s := range b.orders {
		own, _ := b.halves(s.order.Side)
		if s.open() <= 0 {
			fail("order %d kept with no open quantity", id)
		}
		if s.unmatched < 0 || s.matched < 0 {
			fail("order %d has negative counters %d/%d", id, s.unmatched, s.matched)
		}
		if got := own.unmatched.count(id); got != s.unmatched {
			fail("order %d unmatched counter %d != queued %d", id, s.unmatched, got)
		}
		if got := own.matched.count(id); got != s.matched {
			fail("order %d matched counter %d != queued %d", id, s.matched, got)
		}
		total += s.open()
	}
	if total != queued {
		fail("arena holds %d open, queues hold %d", total, queued)
	}

	return errors.Join(errs...)
}

// quoteScan recomputes the bid or ask quote from the open quantity of
// every order, ignoring how the book splits it into matched and unmatched.
// The bid is the highest price p at which a one-unit sell, ranked ahead of
// resting sells at p, would be matched: with r sell units priced below p,
// the (r+1)th best buy unit must be at p or better. The ask mirrors this.
// Only order prices need checking, since the highest such p is always one.
func (b *Book) quoteScan(side domain.Side) (domain.Price, bool) {
	own, opp := b.halves(side)

	type run struct {
		price domain.Price
		qty   int
	}
	var ownRuns []run
	var candidates []domain.Price
	for _, s := range b.orders {
		if s.order.Side == side {
			ownRuns = append(ownRuns, run{s.order.Price, s.open()})
		}
		candidates = append(candidates, s.order.Price)
	}
	slices.SortFunc(ownRuns, func(x, y run) int { return own.price(x.price, y.price) })

	// unit returns the price of the nth best own unit, counting from 1.
	unit := func(n int) (domain.Price, bool) {
		for _, r := range ownRuns {
			if n <= r.qty {
				return r.price, true
			}
			n -= r.qty
		}
		return 0, false
	}

	var (
		best  domain.Price
		found bool
	)
	for _, p := range candidates {
		ahead := 0
		for _, s := range b.orders {
			if s.order.Side == opp.side && opp.price(s.order.Price, p) < 0 {
				ahead += s.open()
			}
		}
		u, ok := unit(ahead + 1)
		if !ok || own.price(u, p) > 0 {
			continue
		}
		if !found || own.price(p, best) < 0 {
			best, found = p, true
		}
	}
	return best, found
}
