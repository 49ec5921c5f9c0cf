package fourheap

import (
	"math/rand/v2"
	"testing"

	"github.com/efreitasn/marketsim/internal/domain"
	"pgregory.net/rapid"
)

// genSelector draws one of the three selectors seeded from the test input.
func genSelector(t *rapid.T) Selector {
	seed := rapid.Uint64().Draw(t, "selectorSeed")
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	switch rapid.IntRange(0, 2).Draw(t, "selector") {
	case 0:
		return NewPrioritySelector()
	case 1:
		return NewProRataSelector(r)
	default:
		return NewRandomProRataSelector(r)
	}
}

// bookModel drives a book with random operations and tracks the quantity
// that should be open.
type bookModel struct {
	book *Book
	ids  []OrderID
	open int
	now  domain.MarketTime
}

func (m *bookModel) step(t *rapid.T) {
	switch op := rapid.IntRange(0, 9).Draw(t, "op"); {
	case op < 6:
		side := rapid.SampledFrom([]domain.Side{domain.Buy, domain.Sell}).Draw(t, "side")
		price := domain.Price(rapid.Int64Range(90, 110).Draw(t, "price"))
		qty := rapid.IntRange(1, 10).Draw(t, "qty")
		// Small time steps produce ties at the same key.
		m.now += domain.MarketTime(rapid.IntRange(0, 1).Draw(t, "tick"))
		o, err := m.book.Submit(side, price, m.now, qty)
		if err != nil {
			t.Fatalf("Submit() error: %v", err)
		}
		m.ids = append(m.ids, o.ID)
		m.open += qty
	case op < 8:
		live := m.live()
		if len(live) == 0 {
			return
		}
		id := rapid.SampledFrom(live).Draw(t, "withdrawID")
		qty := rapid.IntRange(1, m.book.Count(id)).Draw(t, "withdrawQty")
		if err := m.book.Withdraw(id, qty); err != nil {
			t.Fatalf("Withdraw(%d, %d) error: %v", id, qty, err)
		}
		m.open -= qty
	default:
		buyMatched, sellMatched := m.book.buy.matched.size, m.book.sell.matched.size
		matches := m.book.Clear()
		traded := matchedTotal(matches)
		if traded != min(buyMatched, sellMatched) {
			t.Fatalf("Clear() traded %d with %d/%d matched", traded, buyMatched, sellMatched)
		}
		for _, mo := range matches {
			if mo.Quantity <= 0 {
				t.Fatalf("match with quantity %d", mo.Quantity)
			}
			if mo.Buy.Side != domain.Buy || mo.Sell.Side != domain.Sell {
				t.Fatalf("match sides %s/%s", mo.Buy.Side, mo.Sell.Side)
			}
			if mo.Buy.Price < mo.Sell.Price {
				t.Fatalf("match of buy %d below sell %d", mo.Buy.Price, mo.Sell.Price)
			}
		}
		m.open -= 2 * traded
		if m.book.buy.matched.size != 0 || m.book.sell.matched.size != 0 {
			t.Fatalf("matched quantity left after Clear()")
		}
	}
}

func (m *bookModel) live() []OrderID {
	var out []OrderID
	for _, id := range m.ids {
		if m.book.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}

func (m *bookModel) check(t *rapid.T) {
	if err := m.book.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
	if m.book.Size() != m.open {
		t.Fatalf("Size() = %d, want %d", m.book.Size(), m.open)
	}
	if m.book.Size() != m.book.BidDepth()+m.book.AskDepth() {
		t.Fatalf("Size() %d != BidDepth %d + AskDepth %d", m.book.Size(), m.book.BidDepth(), m.book.AskDepth())
	}
	for _, side := range []domain.Side{domain.Buy, domain.Sell} {
		var got domain.Price
		var ok bool
		if side == domain.Buy {
			got, ok = m.book.BidQuote()
		} else {
			got, ok = m.book.AskQuote()
		}
		want, wantOK := m.book.quoteScan(side)
		if ok != wantOK || (ok && got != want) {
			t.Fatalf("%s quote = %d, %v; scan gives %d, %v", side, got, ok, want, wantOK)
		}
	}
}

func TestProperty_BookOperations(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := &bookModel{book: NewBook(genSelector(t))}
		n := rapid.IntRange(100, 200).Draw(t, "numOps")
		for i := 0; i < n; i++ {
			m.step(t)
			m.check(t)
		}
	})
}

func TestProperty_PriceTimePriority(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := &bookModel{book: NewBook(genSelector(t))}
		n := rapid.IntRange(20, 100).Draw(t, "numOps")
		for i := 0; i < n; i++ {
			m.step(t)
		}
		for _, h := range []*half{m.book.buy, m.book.sell} {
			var prev *level
			h.unmatched.ascend(func(l *level) bool {
				if prev != nil && h.key(prev.key, l.key) >= 0 {
					t.Fatalf("%s unmatched level %v does not follow %v", h.side, l.key, prev.key)
				}
				prev = l
				return true
			})
		}
	})
}

func TestProperty_ClearLeavesNoCross(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := &bookModel{book: NewBook(genSelector(t))}
		n := rapid.IntRange(1, 60).Draw(t, "numOps")
		for i := 0; i < n; i++ {
			m.step(t)
		}
		m.book.Clear()

		maxBuy, minSell := domain.NegInf, domain.Inf
		m.book.Orders(func(o Order, open, matched int) bool {
			if matched != 0 {
				t.Fatalf("order %d still matched after Clear()", o.ID)
			}
			if o.Side == domain.Buy {
				maxBuy = max(maxBuy, o.Price)
			} else {
				minSell = min(minSell, o.Price)
			}
			return true
		})
		if maxBuy >= minSell {
			t.Fatalf("resting buy %d crosses resting sell %d", maxBuy, minSell)
		}
	})
}

func TestProperty_DebugBookNeverPanics(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := &bookModel{book: NewBook(genSelector(t), WithDebug(true))}
		n := rapid.IntRange(1, 100).Draw(t, "numOps")
		for i := 0; i < n; i++ {
			m.step(t)
		}
	})
}
