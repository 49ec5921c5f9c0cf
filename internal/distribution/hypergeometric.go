// Package distribution samples the discrete distributions the matching
// core needs for randomized allocation. Every sampler draws from an
// explicit *rand.Rand so results depend only on the caller's seed.
package distribution

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// bruteLimit is the population size below which sampling simulates the
// draws one by one instead of inverting the CDF.
const bruteLimit = 16

// Hypergeometric is the number of successes in draws taken without
// replacement from a population containing successes.
type Hypergeometric struct {
	population int
	successes  int
	draws      int
}

// NewHypergeometric validates the parameters. All must be non-negative,
// with successes and draws no larger than population.
func NewHypergeometric(population, successes, draws int) (Hypergeometric, error) {
	if population < 0 {
		return Hypergeometric{}, fmt.Errorf("hypergeometric: population %d < 0", population)
	}
	if successes < 0 || successes > population {
		return Hypergeometric{}, fmt.Errorf("hypergeometric: successes %d not in [0, %d]", successes, population)
	}
	if draws < 0 || draws > population {
		return Hypergeometric{}, fmt.Errorf("hypergeometric: draws %d not in [0, %d]", draws, population)
	}
	return Hypergeometric{population: population, successes: successes, draws: draws}, nil
}

// Min is the smallest value with positive probability.
func (h Hypergeometric) Min() int {
	return max(0, h.draws-(h.population-h.successes))
}

// Max is the largest value with positive probability.
func (h Hypergeometric) Max() int {
	return min(h.draws, h.successes)
}

// Mean is draws × successes / population.
func (h Hypergeometric) Mean() float64 {
	if h.population == 0 {
		return 0
	}
	return float64(h.draws) * float64(h.successes) / float64(h.population)
}

// Sample draws one value using r.
func (h Hypergeometric) Sample(r *rand.Rand) int {
	lo, hi := h.Min(), h.Max()
	switch {
	case lo == hi:
		return lo
	case h.population < bruteLimit:
		return h.sampleBrute(r)
	default:
		return h.sampleInverse(r, lo, hi)
	}
}

func (h Hypergeometric) sampleBrute(r *rand.Rand) int {
	result := 0
	populationLeft, successesLeft := h.population, h.successes
	for i := 0; i < h.draws; i++ {
		if r.IntN(populationLeft) < successesLeft {
			result++
			successesLeft--
		}
		populationLeft--
	}
	return result
}

// sampleInverse walks the PMF from lo using the ratio
// p(k+1)/p(k) = (K-k)(n-k) / ((k+1)(N-K-n+k+1)).
func (h Hypergeometric) sampleInverse(r *rand.Rand, lo, hi int) int {
	n, bk, bn := float64(h.draws), float64(h.successes), float64(h.population)
	p := math.Exp(h.logPMF(lo))
	u := r.Float64()
	cum := p
	k := lo
	for u > cum && k < hi {
		fk := float64(k)
		p *= (bk - fk) * (n - fk) / ((fk + 1) * (bn - bk - n + fk + 1))
		cum += p
		k++
	}
	return k
}

func (h Hypergeometric) logPMF(k int) float64 {
	return logChoose(h.successes, k) + logChoose(h.population-h.successes, h.draws-k) - logChoose(h.population, h.draws)
}

func logChoose(n, k int) float64 {
	a, _ := math.Lgamma(float64(n + 1))
	b, _ := math.Lgamma(float64(k + 1))
	c, _ := math.Lgamma(float64(n - k + 1))
	return a - b - c
}
