package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"

	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/event"
	"github.com/efreitasn/marketsim/internal/market"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMarket(t *testing.T, q *event.Queue) *market.Market {
	t.Helper()
	m, err := market.New(market.Config{ID: "m", Kind: market.CDA, Debug: true}, q, rand.New(rand.NewPCG(1, 1)))
	if err != nil {
		t.Fatalf("market.New() error: %v", err)
	}
	return m
}

func validConfig(id string) Config {
	return Config{ID: id, Fundamental: 100, ArrivalRate: 0.3, ShadeMin: 0, ShadeMax: 10, MaxPosition: 5}
}

func TestNewZI_Validation(t *testing.T) {
	q := event.NewQueue(rand.New(rand.NewPCG(1, 1)))
	m := newTestMarket(t, q)
	r := rand.New(rand.NewPCG(2, 2))

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero arrival rate", func(c *Config) { c.ArrivalRate = 0 }},
		{"inverted shading", func(c *Config) { c.ShadeMin, c.ShadeMax = 5, 1 }},
		{"negative shading", func(c *Config) { c.ShadeMin = -1 }},
		{"no position", func(c *Config) { c.MaxPosition = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig("a")
			tt.mutate(&cfg)
			var vErr *domain.ValidationError
			if _, err := NewZI(cfg, q, m, r, discardLogger()); !errors.As(err, &vErr) {
				t.Errorf("NewZI() error = %v, want ValidationError", err)
			}
		})
	}

	cfg := validConfig("a")
	cfg.Latency = -1
	if _, err := NewZI(cfg, q, m, r, discardLogger()); !errors.Is(err, domain.ErrInvalidDelay) {
		t.Errorf("NewZI() with negative latency error = %v", err)
	}
}

func TestZI_TradesAndRespectsPosition(t *testing.T) {
	q := event.NewQueue(rand.New(rand.NewPCG(5, 5)))
	m := newTestMarket(t, q)

	var agents []*ZI
	for i, id := range []string{"zi-1", "zi-2", "zi-3", "zi-4"} {
		cfg := validConfig(id)
		cfg.ShadeMax = 2
		cfg.Latency = domain.TimeStamp(i % 2)
		a, err := NewZI(cfg, q, m, rand.New(rand.NewPCG(uint64(i), 7)), discardLogger())
		if err != nil {
			t.Fatalf("NewZI() error: %v", err)
		}
		if err := a.Start(); err != nil {
			t.Fatalf("Start() error: %v", err)
		}
		agents = append(agents, a)
	}
	if err := q.ExecuteUntil(context.Background(), 500); err != nil {
		t.Fatalf("ExecuteUntil() error: %v", err)
	}
	if err := m.CheckInvariants(); err != nil {
		t.Fatalf("CheckInvariants(): %v", err)
	}

	if len(m.Transactions()) == 0 {
		t.Fatal("expected some transactions")
	}
	for _, a := range agents {
		if len(a.View().ActiveOrders()) > 1 {
			t.Errorf("%s has %d orders outstanding, want at most 1", a.ID(), len(a.View().ActiveOrders()))
		}
	}
	for _, tx := range m.Transactions() {
		if tx.Price < 90 || tx.Price > 110 {
			t.Errorf("transaction at %d outside the shading band", tx.Price)
		}
	}
	for _, a := range agents {
		// A latent agent decides on holdings that may lag its fills.
		if a.View().Latency() > 0 {
			continue
		}
		if h := a.View().Holdings(); h > 5 || h < -5 {
			t.Errorf("%s holds %d, want within the position limit of 5", a.ID(), h)
		}
	}
}
