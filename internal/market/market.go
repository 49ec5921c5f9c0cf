// Package market wires the order book to the scheduler. A Market accepts
// orders from participant views, clears according to its kind, prices
// matches with its clearing rule and fans quotes and transactions out to
// every view.
package market

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"

	"github.com/efreitasn/marketsim/internal/clearing"
	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/event"
	"github.com/efreitasn/marketsim/internal/fourheap"
	"github.com/efreitasn/marketsim/internal/store"
)

// Kind selects how a market clears.
type Kind int

const (
	// CDA is a continuous double auction: it clears after every order and
	// prices each trade at the earlier order's limit.
	CDA Kind = iota
	// Call collects orders and clears in batches at multiples of the clear
	// interval, all at one uniform price.
	Call
)

func (k Kind) String() string {
	switch k {
	case CDA:
		return "cda"
	case Call:
		return "call"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a configuration name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "cda":
		return CDA, nil
	case "call":
		return Call, nil
	}
	return 0, &domain.ValidationError{Message: fmt.Sprintf("unknown market kind %q", s)}
}

// Scheduler is the part of the event queue a market needs.
type Scheduler interface {
	CurrentTime() domain.TimeStamp
	ScheduleIn(delay domain.TimeStamp, act event.Activity) error
}

// Config describes one market.
type Config struct {
	ID   string
	Kind Kind
	// ClearInterval is the batch length of a Call market.
	ClearInterval domain.TimeStamp
	// Pricing is the weight of the buy side in a Call market's uniform
	// price.
	Pricing float64
	// Debug checks the book invariants after every mutation.
	Debug bool
}

// Option configures a Market.
type Option func(*Market)

// WithLogger sets the logger. Markets log at debug level only.
func WithLogger(log *slog.Logger) Option {
	return func(m *Market) {
		if log != nil {
			m.log = log
		}
	}
}

// WithTransactionStore sets where transactions are recorded.
func WithTransactionStore(s *store.TransactionStore) Option {
	return func(m *Market) {
		m.transactions = s
	}
}

// WithAccountStore sets where participant accounts are kept.
func WithAccountStore(s *store.AccountStore) Option {
	return func(m *Market) {
		m.accounts = s
	}
}

// PricePoint is one transaction price at a time.
type PricePoint struct {
	Time  domain.TimeStamp `json:"time"`
	Price domain.Price     `json:"price"`
}

// Market is a single-asset market. It is driven from one scheduler and
// is not safe for concurrent use.
type Market struct {
	id    string
	kind  Kind
	sched Scheduler
	book  *fourheap.Book
	rule  clearing.Rule
	log   *slog.Logger

	transactions *store.TransactionStore
	accounts     *store.AccountStore

	views  []*View
	owners map[fourheap.OrderID]*OrderRecord
	bids   *ladder
	asks   *ladder
	prices []PricePoint

	marketTime     domain.MarketTime
	quote          domain.Quote
	quoteSeq       uint64
	txSeq          uint64
	clearInterval  domain.TimeStamp
	clearScheduled bool
}

// New creates a market. r feeds the tie-breaking selector of a Call
// market and must belong to the same run as sched.
func New(cfg Config, sched Scheduler, r *rand.Rand, opts ...Option) (*Market, error) {
	m := &Market{
		id:     cfg.ID,
		kind:   cfg.Kind,
		sched:  sched,
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		owners: make(map[fourheap.OrderID]*OrderRecord),
		bids:   newLadder(domain.Buy),
		asks:   newLadder(domain.Sell),
		quote:  domain.EmptyQuote(),
	}

	var selector fourheap.Selector
	switch cfg.Kind {
	case CDA:
		// Every order gets its own market time, so ties never need breaking.
		selector = fourheap.NewPrioritySelector()
		m.rule = clearing.EarliestPrice{}
	case Call:
		if cfg.ClearInterval <= 0 {
			return nil, fmt.Errorf("market %s clear interval %d: %w", cfg.ID, cfg.ClearInterval, domain.ErrInvalidDelay)
		}
		rule, err := clearing.NewUniformPrice(cfg.Pricing)
		if err != nil {
			return nil, fmt.Errorf("market %s: %w", cfg.ID, err)
		}
		selector = fourheap.NewRandomProRataSelector(r)
		m.rule = rule
		m.clearInterval = cfg.ClearInterval
	default:
		return nil, &domain.ValidationError{Message: fmt.Sprintf("market %s: unknown kind %d", cfg.ID, int(cfg.Kind))}
	}
	m.book = fourheap.NewBook(selector, fourheap.WithDebug(cfg.Debug))

	for _, opt := range opts {
		opt(m)
	}
	if m.transactions == nil {
		m.transactions = store.NewTransactionStore()
	}
	if m.accounts == nil {
		m.accounts = store.NewAccountStore()
	}
	return m, nil
}

// ID identifies the market in transaction logs.
func (m *Market) ID() string {
	return m.id
}

// Kind is how the market clears.
func (m *Market) Kind() Kind {
	return m.kind
}

// Quote is the last quote the market published.
func (m *Market) Quote() domain.Quote {
	return m.quote
}

// Transactions is the market's transaction log.
func (m *Market) Transactions() []domain.Transaction {
	return m.transactions.ByMarket(m.id)
}

// Prices lists every transaction price in execution order.
func (m *Market) Prices() []PricePoint {
	out := make([]PricePoint, len(m.prices))
	copy(out, m.prices)
	return out
}

// Depth returns up to n price levels of outstanding quantity on one side,
// best first.
func (m *Market) Depth(side domain.Side, n int) []PriceLevel {
	return m.ladder(side).top(n)
}

// AgentInfo reports the accounts of the market's participants in the
// order their views were created.
func (m *Market) AgentInfo() []domain.Account {
	out := make([]domain.Account, 0, len(m.views))
	seen := make(map[string]bool, len(m.views))
	for _, v := range m.views {
		id := v.owner.ID()
		if seen[id] {
			continue
		}
		seen[id] = true
		if a, err := m.accounts.Get(id); err == nil {
			out = append(out, a)
		}
	}
	return out
}

// CheckInvariants verifies the book and that the depth ladder agrees with
// it.
func (m *Market) CheckInvariants() error {
	if err := m.book.CheckInvariants(); err != nil {
		return fmt.Errorf("market %s: %w", m.id, err)
	}
	if got, want := m.bids.total(), m.book.BidDepth(); got != want {
		return fmt.Errorf("market %s: bid ladder holds %d, book %d", m.id, got, want)
	}
	if got, want := m.asks.total(), m.book.AskDepth(); got != want {
		return fmt.Errorf("market %s: ask ladder holds %d, book %d", m.id, got, want)
	}
	return nil
}

// NewView gives a participant access to the market with the given
// latency.
func (m *Market) NewView(owner Participant, latency domain.TimeStamp) (*View, error) {
	if latency < 0 {
		return nil, fmt.Errorf("view latency %d: %w", latency, domain.ErrInvalidDelay)
	}
	v := &View{market: m, owner: owner, latency: latency, quote: domain.EmptyQuote()}
	m.views = append(m.views, v)
	m.accounts.Open(owner.ID())
	return v, nil
}

func (m *Market) ladder(side domain.Side) *ladder {
	if side == domain.Buy {
		return m.bids
	}
	return m.asks
}

// submit places an order that has reached the market.
func (m *Market) submit(rec *OrderRecord, quantity int) {
	if m.kind == CDA {
		m.marketTime++
	}
	order, err := m.book.Submit(rec.Side, rec.Price, m.marketTime, quantity)
	if err != nil {
		// Views validate orders before they leave the participant.
		panic(fmt.Sprintf("market %s: %v", m.id, err))
	}
	rec.id, rec.inBook = order.ID, true
	m.owners[order.ID] = rec
	m.ladder(rec.Side).adjust(rec.Price, quantity, 1)
	m.mustRecord(m.accounts.RecordSubmission(rec.view.owner.ID()))

	if rec.pending > 0 {
		n := min(rec.pending, quantity)
		rec.pending = 0
		m.remove(rec, n)
	}

	switch m.kind {
	case CDA:
		m.Clear()
	case Call:
		m.scheduleClear()
	}
}

// withdraw cancels quantity of an order that has reached the market. An
// immediate view is held to exactly what is outstanding; a latent view
// gets whatever is left, since the order may have transacted in flight.
func (m *Market) withdraw(rec *OrderRecord, quantity int) error {
	if !rec.inBook {
		if rec.view.immediate() {
			return fmt.Errorf("market %s withdraw %s: %w", m.id, rec, domain.ErrOrderNotFound)
		}
		rec.pending += quantity
		return nil
	}
	if !rec.view.immediate() {
		quantity = min(quantity, m.book.Count(rec.id))
	}
	if quantity == 0 {
		return nil
	}
	if err := m.book.Withdraw(rec.id, quantity); err != nil {
		return fmt.Errorf("market %s: %w", m.id, err)
	}
	m.afterRemove(rec, quantity)

	switch m.kind {
	case CDA:
		m.updateQuote()
	case Call:
		m.scheduleClear()
	}
	return nil
}

// remove withdraws from the book without any kind-specific follow-up.
func (m *Market) remove(rec *OrderRecord, quantity int) {
	if err := m.book.Withdraw(rec.id, quantity); err != nil {
		panic(fmt.Sprintf("market %s: %v", m.id, err))
	}
	m.afterRemove(rec, quantity)
}

// afterRemove keeps the ladder and owner map in step with the book.
func (m *Market) afterRemove(rec *OrderRecord, quantity int) {
	m.ladder(rec.Side).adjust(rec.Price, -quantity, 0)
	m.reap(rec)
}

// reap forgets an order once nothing of it is left in the book.
func (m *Market) reap(rec *OrderRecord) {
	if m.book.Contains(rec.id) {
		return
	}
	if _, ok := m.owners[rec.id]; ok {
		delete(m.owners, rec.id)
		m.ladder(rec.Side).adjust(rec.Price, 0, -1)
	}
}

// scheduleClear arranges a clear at the first multiple of the clear
// interval strictly after now, unless one is already pending.
func (m *Market) scheduleClear() {
	if m.clearScheduled {
		return
	}
	now := m.sched.CurrentTime()
	next := (now/m.clearInterval + 1) * m.clearInterval
	if err := m.sched.ScheduleIn(next-now, m.Clear); err != nil {
		panic(fmt.Sprintf("market %s: schedule clear: %v", m.id, err))
	}
	m.clearScheduled = true
}

// Clear matches the book, records the resulting transactions, announces
// them and then publishes a new quote. Notifications go out only after
// the bookkeeping is complete, so a participant reacting to a fill sees a
// consistent market.
func (m *Market) Clear() {
	m.clearScheduled = false
	matches := m.book.Clear()
	if m.kind == Call {
		m.marketTime++
	}
	now := m.sched.CurrentTime()

	type fill struct {
		buy, sell *OrderRecord
		price     domain.Price
		quantity  int
	}
	fills := make([]fill, 0, len(matches))
	for _, pm := range m.rule.Price(matches) {
		buy, sell := m.owners[pm.Buy.ID], m.owners[pm.Sell.ID]
		m.txSeq++
		tx := domain.Transaction{
			MarketID:   m.id,
			Seq:        m.txSeq,
			Buyer:      buy.view.owner.ID(),
			Seller:     sell.view.owner.ID(),
			Price:      pm.Price,
			Quantity:   pm.Quantity,
			ExecutedAt: now,
		}
		m.transactions.Append(tx)
		m.prices = append(m.prices, PricePoint{Time: now, Price: pm.Price})
		m.mustRecord(m.accounts.RecordFill(tx.Buyer, domain.Buy, pm.Price, pm.Quantity))
		m.mustRecord(m.accounts.RecordFill(tx.Seller, domain.Sell, pm.Price, pm.Quantity))
		m.bids.adjust(buy.Price, -pm.Quantity, 0)
		m.asks.adjust(sell.Price, -pm.Quantity, 0)
		fills = append(fills, fill{buy: buy, sell: sell, price: pm.Price, quantity: pm.Quantity})

		m.log.Debug("transaction",
			slog.String("market", m.id),
			slog.String("buyer", tx.Buyer),
			slog.String("seller", tx.Seller),
			slog.Int64("price", int64(tx.Price)),
			slog.Int("quantity", tx.Quantity),
			slog.Int64("time", int64(now)),
		)
	}
	for _, f := range fills {
		m.reap(f.buy)
		m.reap(f.sell)
	}

	for _, f := range fills {
		f.buy.view.transacted(f.buy, f.price, f.quantity)
		f.sell.view.transacted(f.sell, f.price, f.quantity)
		for _, v := range m.views {
			v.transaction(f.price, f.quantity)
		}
	}
	m.updateQuote()
}

// mustRecord panics on an account update error. Every view opens its
// owner's account when it is created.
func (m *Market) mustRecord(err error) {
	if err != nil {
		panic(fmt.Sprintf("market %s: %v", m.id, err))
	}
}

// updateQuote publishes the book's current quote to every view.
func (m *Market) updateQuote() {
	m.quoteSeq++
	q := domain.Quote{
		Bid:      domain.NegInf,
		Ask:      domain.Inf,
		BidDepth: m.book.BidDepth(),
		AskDepth: m.book.AskDepth(),
		Time:     m.sched.CurrentTime(),
		Seq:      m.quoteSeq,
	}
	if bid, ok := m.book.BidQuote(); ok {
		q.Bid, q.HasBid = bid, true
	}
	if ask, ok := m.book.AskQuote(); ok {
		q.Ask, q.HasAsk = ask, true
	}
	m.quote = q
	for _, v := range m.views {
		v.setQuote(q)
	}
}

func (m *Market) String() string {
	return fmt.Sprintf("%s %s", m.kind, m.id)
}
