package distribution

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Geometric is the number of failures before the first success of
// independent trials that each succeed with probability p.
type Geometric struct {
	p float64
}

// NewGeometric validates 0 < p <= 1.
func NewGeometric(p float64) (Geometric, error) {
	if !(p > 0 && p <= 1) {
		return Geometric{}, fmt.Errorf("geometric: success probability %v not in (0, 1]", p)
	}
	return Geometric{p: p}, nil
}

// Mean is (1-p)/p.
func (g Geometric) Mean() float64 {
	return (1 - g.p) / g.p
}

// Sample draws one value using r by inverting the CDF.
func (g Geometric) Sample(r *rand.Rand) int {
	if g.p == 1 {
		return 0
	}
	// 1 - Float64 is in (0, 1], so the log is finite.
	u := 1 - r.Float64()
	return int(math.Floor(math.Log(u) / math.Log1p(-g.p)))
}
