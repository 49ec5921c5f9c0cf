package market

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/fourheap"
)

// Participant receives the notifications of the markets it trades in.
// Every callback runs inside a scheduler activity.
type Participant interface {
	ID() string
	QuoteUpdated(v *View)
	TransactionObserved(v *View, price domain.Price, quantity int)
	OrderSubmitted(v *View, rec *OrderRecord)
	OrderWithdrawn(v *View, rec *OrderRecord, quantity int)
	OrderTransacted(v *View, rec *OrderRecord, price domain.Price, quantity int)
}

// BaseParticipant ignores every notification. Embed it to implement only
// the callbacks a participant cares about.
type BaseParticipant struct{}

func (BaseParticipant) QuoteUpdated(*View) {}
func (BaseParticipant) TransactionObserved(*View, domain.Price, int) {}
func (BaseParticipant) OrderSubmitted(*View, *OrderRecord) {}
func (BaseParticipant) OrderWithdrawn(*View, *OrderRecord, int) {}
func (BaseParticipant) OrderTransacted(*View, *OrderRecord, domain.Price, int) {}

// OrderRecord is a participant's handle on an order it submitted. Quantity
// is the outstanding quantity as the participant last observed it.
type OrderRecord struct {
	Seq         uint64
	Side        domain.Side
	Price       domain.Price
	Quantity    int
	SubmittedAt domain.TimeStamp

	view *View
	// id is set once the order reaches the book.
	id      fourheap.OrderID
	inBook  bool
	pending int // withdrawn before the order reached the book
}

func (r *OrderRecord) String() string {
	return fmt.Sprintf("%s %d@%s", r.Side, r.Quantity, r.Price)
}

// View is one participant's access to a market. With zero latency every
// action and notification is immediate; otherwise each crosses the
// latency through the scheduler, and the view only sees what has arrived.
type View struct {
	market  *Market
	owner   Participant
	latency domain.TimeStamp
	quote   domain.Quote

	nextSeq  uint64
	active   []*OrderRecord
	holdings int
	profit   int64
}

// Market is the market this view trades in.
func (v *View) Market() *Market {
	return v.market
}

// Owner is the participant behind the view.
func (v *View) Owner() Participant {
	return v.owner
}

// Latency is the delay between the participant and the market.
func (v *View) Latency() domain.TimeStamp {
	return v.latency
}

// Quote is the newest quote that has reached the view.
func (v *View) Quote() domain.Quote {
	return v.quote
}

// Holdings as observed through the view.
func (v *View) Holdings() int {
	return v.holdings
}

// Profit as observed through the view.
func (v *View) Profit() int64 {
	return v.profit
}

// ActiveOrders returns the participant's outstanding orders in
// submission order.
func (v *View) ActiveOrders() []*OrderRecord {
	return slices.Clone(v.active)
}

func (v *View) immediate() bool {
	return v.latency == 0
}

// after runs act once the latency has passed, or right away when there is
// none.
func (v *View) after(act func()) {
	if v.immediate() {
		act()
		return
	}
	if err := v.market.sched.ScheduleIn(v.latency, act); err != nil {
		// Latency is validated positive when the view is created.
		panic(fmt.Sprintf("market: schedule across latency: %v", err))
	}
}

// Submit sends a limit order to the market.
func (v *View) Submit(side domain.Side, price domain.Price, quantity int) (*OrderRecord, error) {
	if side != domain.Buy && side != domain.Sell {
		return nil, fmt.Errorf("submit side %d: %w", side, domain.ErrInvalidSide)
	}
	if !price.IsFinite() {
		return nil, fmt.Errorf("submit price %s: %w", price, domain.ErrInvalidPrice)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("submit quantity %d: %w", quantity, domain.ErrInvalidQuantity)
	}

	v.nextSeq++
	rec := &OrderRecord{
		Seq:         v.nextSeq,
		Side:        side,
		Price:       price,
		Quantity:    quantity,
		SubmittedAt: v.market.sched.CurrentTime(),
		view:        v,
	}
	v.active = append(v.active, rec)
	v.market.log.Debug("order submitted",
		slog.String("market", v.market.id),
		slog.String("agent", v.owner.ID()),
		slog.String("side", side.String()),
		slog.Int64("price", int64(price)),
		slog.Int("quantity", quantity),
	)

	v.after(func() {
		v.market.submit(rec, quantity)
		v.after(func() { v.owner.OrderSubmitted(v, rec) })
	})
	return rec, nil
}

// Withdraw cancels quantity of an outstanding order. It is rejected if
// the participant asks for more than it has observed as outstanding.
// When latency is involved the order may transact in flight, and the
// market withdraws whatever is left of the request.
func (v *View) Withdraw(rec *OrderRecord, quantity int) error {
	if rec == nil || rec.view != v {
		return fmt.Errorf("withdraw unknown order: %w", domain.ErrOrderNotFound)
	}
	if quantity < 0 {
		return fmt.Errorf("withdraw quantity %d: %w", quantity, domain.ErrInvalidQuantity)
	}
	if quantity > rec.Quantity {
		return fmt.Errorf("withdraw %d from %s: %w", quantity, rec, domain.ErrOverWithdraw)
	}
	if quantity == 0 {
		return nil
	}

	v.market.log.Debug("order withdrawn",
		slog.String("market", v.market.id),
		slog.String("agent", v.owner.ID()),
		slog.String("order", rec.String()),
		slog.Int("quantity", quantity),
	)

	if v.immediate() {
		if err := v.market.withdraw(rec, quantity); err != nil {
			return err
		}
		v.observeWithdrawal(rec, quantity)
		v.owner.OrderWithdrawn(v, rec, quantity)
		return nil
	}

	v.observeWithdrawal(rec, quantity)
	v.after(func() {
		if err := v.market.withdraw(rec, quantity); err != nil {
			v.market.log.Error("latent withdrawal failed",
				slog.String("market", v.market.id),
				slog.String("agent", v.owner.ID()),
				slog.String("error", err.Error()),
			)
			return
		}
		v.after(func() { v.owner.OrderWithdrawn(v, rec, quantity) })
	})
	return nil
}

func (v *View) observeWithdrawal(rec *OrderRecord, quantity int) {
	rec.Quantity -= quantity
	if rec.Quantity == 0 {
		v.forget(rec)
	}
}

// WithdrawAll cancels every outstanding order.
func (v *View) WithdrawAll() error {
	for _, rec := range v.ActiveOrders() {
		if err := v.Withdraw(rec, rec.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (v *View) forget(rec *OrderRecord) {
	if i := slices.Index(v.active, rec); i >= 0 {
		v.active = slices.Delete(v.active, i, i+1)
	}
}

func (v *View) setQuote(q domain.Quote) {
	v.after(func() {
		if !q.NewerThan(v.quote) {
			return
		}
		v.quote = q
		v.owner.QuoteUpdated(v)
	})
}

func (v *View) transaction(price domain.Price, quantity int) {
	v.after(func() { v.owner.TransactionObserved(v, price, quantity) })
}

func (v *View) transacted(rec *OrderRecord, price domain.Price, quantity int) {
	v.after(func() {
		rec.Quantity = max(0, rec.Quantity-quantity)
		v.holdings += rec.Side.Sign() * quantity
		v.profit -= int64(rec.Side.Sign()) * int64(price) * int64(quantity)
		if rec.Quantity == 0 {
			v.forget(rec)
		}
		v.owner.OrderTransacted(v, rec, price, quantity)
	})
}
