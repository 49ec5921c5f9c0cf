// Package sim assembles markets, agents and a scheduler into one
// reproducible run.
package sim

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/efreitasn/marketsim/internal/agent"
	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/event"
	"github.com/efreitasn/marketsim/internal/market"
	"github.com/efreitasn/marketsim/internal/store"
)

// MarketSpec describes one market of a run.
type MarketSpec struct {
	Kind          market.Kind
	ClearInterval domain.TimeStamp
	Pricing       float64
}

// AgentSpec describes a group of identical zero-intelligence agents.
type AgentSpec struct {
	// Market is the index into Spec.Markets the agents trade in.
	Market      int
	Count       int
	Latency     domain.TimeStamp
	Fundamental domain.Price
	ArrivalRate float64
	ShadeMin    int
	ShadeMax    int
	MaxPosition int
}

// Spec is everything a run needs besides its seed.
type Spec struct {
	FinalTime domain.TimeStamp
	Markets   []MarketSpec
	Agents    []AgentSpec
	// Debug checks book invariants after every mutation.
	Debug bool
}

// MarketSummary reports what happened in one market.
type MarketSummary struct {
	ID           string        `json:"id"`
	Kind         string        `json:"kind"`
	Transactions int           `json:"transactions"`
	Volume       int           `json:"volume"`
	LastPrice    *domain.Price `json:"last_price,omitempty"`
	VWAP         *domain.Price `json:"vwap,omitempty"`
	Spread       *domain.Price `json:"spread,omitempty"`
	Bid          *domain.Price `json:"bid,omitempty"`
	Ask          *domain.Price `json:"ask,omitempty"`
}

// Result is the outcome of a run.
type Result struct {
	RunID    string           `json:"run_id"`
	Seed     uint64           `json:"seed"`
	EndTime  domain.TimeStamp `json:"end_time"`
	Markets  []MarketSummary  `json:"markets"`
	Accounts []domain.Account `json:"accounts"`
	// Checksum identifies the transaction log; equal seeds give equal
	// checksums.
	Checksum string `json:"checksum"`

	log []byte
}

// TransactionLog returns the run's transactions as JSON lines.
func (r Result) TransactionLog() []byte {
	return r.log
}

// Simulation is a single run. Everything stochastic draws from the random
// source derived from its seed, so two simulations with the same seed and
// spec produce the same transactions.
type Simulation struct {
	id    uuid.UUID
	seed  uint64
	spec  Spec
	rand  *rand.Rand
	queue *event.Queue
	log   *slog.Logger

	markets      []*market.Market
	agents       []*agent.ZI
	transactions *store.TransactionStore
	accounts     *store.AccountStore
}

// New builds a simulation. A nil logger discards.
func New(seed uint64, spec Spec, log *slog.Logger) (*Simulation, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if spec.FinalTime <= 0 {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("final time must be > 0, got %d", spec.FinalTime)}
	}

	var key [32]byte
	for i := range 4 {
		binary.LittleEndian.PutUint64(key[i*8:], seed+uint64(i))
	}
	id, err := uuid.NewRandomFromReader(rand.NewChaCha8(key))
	if err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}

	s := &Simulation{
		id:           id,
		seed:         seed,
		spec:         spec,
		rand:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		transactions: store.NewTransactionStore(),
		accounts:     store.NewAccountStore(),
	}
	s.log = log.With(slog.String("run", id.String()), slog.Uint64("seed", seed))
	s.queue = event.NewQueue(s.fork())

	marketIDs := domain.NewIDGenerator("market")
	for _, ms := range spec.Markets {
		m, err := market.New(market.Config{
			ID:            marketIDs.Next(),
			Kind:          ms.Kind,
			ClearInterval: ms.ClearInterval,
			Pricing:       ms.Pricing,
			Debug:         spec.Debug,
		}, s.queue, s.fork(),
			market.WithLogger(s.log),
			market.WithTransactionStore(s.transactions),
			market.WithAccountStore(s.accounts),
		)
		if err != nil {
			return nil, err
		}
		s.markets = append(s.markets, m)
	}

	agentIDs := domain.NewIDGenerator("agent")
	for _, as := range spec.Agents {
		if as.Market < 0 || as.Market >= len(s.markets) {
			return nil, fmt.Errorf("agent market %d: %w", as.Market, domain.ErrUnknownMarket)
		}
		for range as.Count {
			a, err := agent.NewZI(agent.Config{
				ID:          agentIDs.Next(),
				Fundamental: as.Fundamental,
				ArrivalRate: as.ArrivalRate,
				ShadeMin:    as.ShadeMin,
				ShadeMax:    as.ShadeMax,
				MaxPosition: as.MaxPosition,
				Latency:     as.Latency,
			}, s.queue, s.markets[as.Market], s.fork(), s.log)
			if err != nil {
				return nil, err
			}
			s.agents = append(s.agents, a)
		}
	}
	return s, nil
}

// fork derives an independent random source from the run's source.
func (s *Simulation) fork() *rand.Rand {
	return rand.New(rand.NewPCG(s.rand.Uint64(), s.rand.Uint64()))
}

// ID is the run's identifier, derived from its seed.
func (s *Simulation) ID() uuid.UUID {
	return s.id
}

// Markets returns the run's markets in creation order.
func (s *Simulation) Markets() []*market.Market {
	return s.markets
}

// Transactions is the log shared by all of the run's markets.
func (s *Simulation) Transactions() *store.TransactionStore {
	return s.transactions
}

// Run starts every agent and executes the schedule up to the final time.
func (s *Simulation) Run(ctx context.Context) (Result, error) {
	s.log.Info("simulation starting",
		slog.Int("markets", len(s.markets)),
		slog.Int("agents", len(s.agents)),
		slog.Int64("final_time", int64(s.spec.FinalTime)),
	)
	for _, a := range s.agents {
		if err := a.Start(); err != nil {
			return Result{}, err
		}
	}
	if err := s.queue.ExecuteUntil(ctx, s.spec.FinalTime); err != nil {
		return Result{}, fmt.Errorf("run %s: %w", s.id, err)
	}
	if s.spec.Debug {
		for _, m := range s.markets {
			if err := m.CheckInvariants(); err != nil {
				return Result{}, fmt.Errorf("run %s market %s: %w", s.id, m.ID(), err)
			}
		}
	}

	var buf bytes.Buffer
	if err := s.transactions.WriteJSONLines(&buf); err != nil {
		return Result{}, fmt.Errorf("encode transactions: %w", err)
	}
	res := Result{
		RunID:    s.id.String(),
		Seed:     s.seed,
		EndTime:  s.queue.CurrentTime(),
		Accounts: s.accounts.All(),
		Checksum: uuid.NewSHA1(s.id, buf.Bytes()).String(),
		log:      buf.Bytes(),
	}
	for _, m := range s.markets {
		res.Markets = append(res.Markets, summarize(m, s.spec.FinalTime))
	}
	s.log.Info("simulation finished",
		slog.Int("transactions", s.transactions.Len()),
		slog.Int("volume", s.transactions.Volume()),
	)
	return res, nil
}

func summarize(m *market.Market, window domain.TimeStamp) MarketSummary {
	txs := m.Transactions()
	sum := MarketSummary{
		ID:           m.ID(),
		Kind:         m.Kind().String(),
		Transactions: len(txs),
	}
	for _, tx := range txs {
		sum.Volume += tx.Quantity
	}
	if len(txs) > 0 {
		last := txs[len(txs)-1].Price
		sum.LastPrice = &last
	}
	if stats, ok := m.VWAP(window); ok {
		sum.VWAP = &stats.Price
	}
	if spread, ok := m.Spread(); ok {
		sum.Spread = &spread
	}
	q := m.Quote()
	if q.HasBid {
		bid := q.Bid
		sum.Bid = &bid
	}
	if q.HasAsk {
		ask := q.Ask
		sum.Ask = &ask
	}
	return sum
}
