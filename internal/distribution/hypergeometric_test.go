package distribution

import (
	"math"
	"math/rand/v2"
	"testing"

	"pgregory.net/rapid"
)

func TestNewHypergeometric_Validation(t *testing.T) {
	tests := []struct {
		name                         string
		population, successes, draws int
		wantErr                      bool
	}{
		{"valid", 10, 4, 3, false},
		{"empty population", 0, 0, 0, false},
		{"negative population", -1, 0, 0, true},
		{"too many successes", 5, 6, 1, true},
		{"negative successes", 5, -1, 1, true},
		{"too many draws", 5, 2, 6, true},
		{"negative draws", 5, 2, -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHypergeometric(tt.population, tt.successes, tt.draws)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewHypergeometric(%d, %d, %d) error = %v, wantErr %v",
					tt.population, tt.successes, tt.draws, err, tt.wantErr)
			}
		})
	}
}

func TestHypergeometric_Degenerate(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	tests := []struct {
		name                         string
		population, successes, draws int
		want                         int
	}{
		{"no draws", 20, 5, 0, 0},
		{"no successes", 20, 0, 7, 0},
		{"draw everything", 20, 5, 20, 5},
		{"all successes", 20, 20, 7, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := NewHypergeometric(tt.population, tt.successes, tt.draws)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for i := 0; i < 10; i++ {
				if got := h.Sample(r); got != tt.want {
					t.Fatalf("Sample() = %d, want %d", got, tt.want)
				}
			}
		})
	}
}

func TestHypergeometric_MeanConverges(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	for _, params := range [][3]int{{10, 4, 5}, {200, 60, 50}, {1000, 10, 900}} {
		h, err := NewHypergeometric(params[0], params[1], params[2])
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		const n = 20000
		sum := 0
		for i := 0; i < n; i++ {
			sum += h.Sample(r)
		}
		got := float64(sum) / n
		if math.Abs(got-h.Mean()) > 0.05*h.Mean()+0.05 {
			t.Errorf("%v: sample mean %.3f, want about %.3f", params, got, h.Mean())
		}
	}
}

func TestProperty_HypergeometricSupport(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		population := rapid.IntRange(0, 500).Draw(t, "population")
		successes := rapid.IntRange(0, population).Draw(t, "successes")
		draws := rapid.IntRange(0, population).Draw(t, "draws")
		seed := rapid.Uint64().Draw(t, "seed")

		h, err := NewHypergeometric(population, successes, draws)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		r := rand.New(rand.NewPCG(seed, seed))
		got := h.Sample(r)
		if got < h.Min() || got > h.Max() {
			t.Fatalf("Sample() = %d outside [%d, %d]", got, h.Min(), h.Max())
		}
	})
}

func TestProperty_HypergeometricDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		population := rapid.IntRange(1, 300).Draw(t, "population")
		successes := rapid.IntRange(0, population).Draw(t, "successes")
		draws := rapid.IntRange(0, population).Draw(t, "draws")
		seed := rapid.Uint64().Draw(t, "seed")

		h, _ := NewHypergeometric(population, successes, draws)
		a := h.Sample(rand.New(rand.NewPCG(seed, 3)))
		b := h.Sample(rand.New(rand.NewPCG(seed, 3)))
		if a != b {
			t.Fatalf("same seed gave %d and %d", a, b)
		}
	})
}
