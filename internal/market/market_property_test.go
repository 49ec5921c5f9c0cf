package market

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/event"
	"pgregory.net/rapid"
)

func TestProperty_MarketBookkeeping(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		kind := rapid.SampledFrom([]Kind{CDA, Call}).Draw(t, "kind")
		seed := rapid.Uint64().Draw(t, "seed")
		q := event.NewQueue(rand.New(rand.NewPCG(seed, 1)))
		m, err := New(Config{ID: "m", Kind: kind, ClearInterval: 5, Pricing: 0.5, Debug: true},
			q, rand.New(rand.NewPCG(seed, 2)))
		if err != nil {
			t.Fatalf("New() error: %v", err)
		}

		var views []*View
		for i, id := range []string{"a", "b", "c"} {
			latency := domain.TimeStamp(rapid.IntRange(0, 3).Draw(t, "latency"))
			v, err := m.NewView(&recorder{id: id, clock: q}, latency)
			if err != nil {
				t.Fatalf("NewView(%d) error: %v", i, err)
			}
			views = append(views, v)
		}

		n := rapid.IntRange(10, 60).Draw(t, "numSteps")
		now := domain.TimeStamp(0)
		for i := 0; i < n; i++ {
			now += domain.TimeStamp(rapid.IntRange(1, 3).Draw(t, "gap"))
			v := rapid.SampledFrom(views).Draw(t, "view")
			withdraw := rapid.IntRange(0, 3).Draw(t, "action") == 0
			side := rapid.SampledFrom([]domain.Side{domain.Buy, domain.Sell}).Draw(t, "side")
			price := domain.Price(rapid.Int64Range(95, 105).Draw(t, "price"))
			qty := rapid.IntRange(1, 5).Draw(t, "qty")

			if err := q.ScheduleAt(now, func() {
				if withdraw {
					if err := v.WithdrawAll(); err != nil {
						t.Fatalf("WithdrawAll() error: %v", err)
					}
					return
				}
				if _, err := v.Submit(side, price, qty); err != nil {
					t.Fatalf("Submit() error: %v", err)
				}
			}); err != nil {
				t.Fatalf("ScheduleAt() error: %v", err)
			}
			if err := q.ExecuteUntil(context.Background(), now); err != nil {
				t.Fatalf("ExecuteUntil() error: %v", err)
			}
			if err := m.CheckInvariants(); err != nil {
				t.Fatalf("CheckInvariants(): %v", err)
			}
		}
		if err := q.ExecuteUntil(context.Background(), now+100); err != nil {
			t.Fatalf("ExecuteUntil() error: %v", err)
		}

		holdings, profit, volume := 0, int64(0), 0
		for _, a := range m.AgentInfo() {
			holdings += a.Holdings
			profit += a.Profit
			volume += a.Volume
		}
		traded := 0
		for _, tx := range m.Transactions() {
			traded += tx.Quantity
			if tx.Buyer == "" || tx.Seller == "" || tx.Quantity <= 0 {
				t.Fatalf("malformed transaction %+v", tx)
			}
		}
		if holdings != 0 || profit != 0 {
			t.Fatalf("accounts do not net out: holdings %d, profit %d", holdings, profit)
		}
		if volume != 2*traded {
			t.Fatalf("account volume %d, transactions %d", volume, traded)
		}
		for _, v := range views {
			if v.Quote().Seq != m.Quote().Seq {
				t.Fatalf("view with latency %d stuck at quote %d, market at %d", v.Latency(), v.Quote().Seq, m.Quote().Seq)
			}
		}
	})
}
