// Package agent holds the background traders that drive a simulation.
package agent

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"

	"github.com/efreitasn/marketsim/internal/distribution"
	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/market"
)

// Config describes a zero-intelligence trader.
type Config struct {
	ID string
	// Fundamental is the value the agent believes the asset has.
	Fundamental domain.Price
	// ArrivalRate is the chance of trading in any one tick.
	ArrivalRate float64
	// ShadeMin and ShadeMax bound the surplus demanded from each order.
	ShadeMin int
	ShadeMax int
	// MaxPosition caps the absolute holdings the agent will take on.
	MaxPosition int
	Latency     domain.TimeStamp
}

// ZI is a zero-intelligence trader. On each arrival it withdraws what it
// has outstanding and submits one unit on a random side, shaded away from
// the fundamental by a uniform random surplus.
type ZI struct {
	market.BaseParticipant

	cfg      Config
	rand     *rand.Rand
	sched    market.Scheduler
	view     *market.View
	arrivals distribution.Geometric
	log      *slog.Logger

	trades int
}

// NewZI creates an agent trading in m. r must belong to the same run as
// sched. A nil logger discards.
func NewZI(cfg Config, sched market.Scheduler, m *market.Market, r *rand.Rand, log *slog.Logger) (*ZI, error) {
	arrivals, err := distribution.NewGeometric(cfg.ArrivalRate)
	if err != nil {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("agent %s: %v", cfg.ID, err)}
	}
	if cfg.ShadeMin < 0 || cfg.ShadeMax < cfg.ShadeMin {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("agent %s: shading range [%d, %d] is invalid", cfg.ID, cfg.ShadeMin, cfg.ShadeMax)}
	}
	if cfg.MaxPosition <= 0 {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("agent %s: max position must be > 0", cfg.ID)}
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	a := &ZI{cfg: cfg, rand: r, sched: sched, arrivals: arrivals, log: log}
	view, err := m.NewView(a, cfg.Latency)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", cfg.ID, err)
	}
	a.view = view
	return a, nil
}

// ID implements market.Participant.
func (a *ZI) ID() string {
	return a.cfg.ID
}

// View is the agent's access to its market.
func (a *ZI) View() *market.View {
	return a.view
}

// Trades is the number of fills the agent has observed.
func (a *ZI) Trades() int {
	return a.trades
}

// Start schedules the first arrival.
func (a *ZI) Start() error {
	return a.scheduleNextArrival()
}

func (a *ZI) scheduleNextArrival() error {
	delay := domain.TimeStamp(1 + a.arrivals.Sample(a.rand))
	if err := a.sched.ScheduleIn(delay, a.strategy); err != nil {
		return fmt.Errorf("agent %s: %w", a.cfg.ID, err)
	}
	return nil
}

func (a *ZI) strategy() {
	if err := a.view.WithdrawAll(); err != nil {
		a.log.Error("withdraw failed", slog.String("agent", a.cfg.ID), slog.String("error", err.Error()))
	}

	side := domain.Buy
	if a.rand.IntN(2) == 1 {
		side = domain.Sell
	}
	shade := a.cfg.ShadeMin + a.rand.IntN(a.cfg.ShadeMax-a.cfg.ShadeMin+1)
	price := a.cfg.Fundamental - domain.Price(side.Sign()*shade)

	position := a.view.Holdings() + side.Sign()
	if price > 0 && abs(position) <= a.cfg.MaxPosition {
		if _, err := a.view.Submit(side, price, 1); err != nil {
			a.log.Error("submit failed", slog.String("agent", a.cfg.ID), slog.String("error", err.Error()))
		}
	}

	if err := a.scheduleNextArrival(); err != nil {
		a.log.Error("schedule failed", slog.String("agent", a.cfg.ID), slog.String("error", err.Error()))
	}
}

// OrderTransacted implements market.Participant.
func (a *ZI) OrderTransacted(*market.View, *market.OrderRecord, domain.Price, int) {
	a.trades++
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
