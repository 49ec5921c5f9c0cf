package fourheap

import (
	"cmp"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/efreitasn/marketsim/internal/distribution"
)

// Entry is an order and a number of its units.
type Entry struct {
	ID    OrderID
	Count int
}

// Selector chooses which units of a tied level to release. Given a pool of
// entries and 0 <= quantity <= total units in the pool, Select returns a
// selection of exactly quantity units and the remainder of the pool, so
// that the two together are the original pool. Select panics if quantity
// is out of range; the Book never asks for that.
type Selector interface {
	Select(pool []Entry, quantity int) (selected, remaining []Entry)
}

func poolSize(pool []Entry) int {
	n := 0
	for _, e := range pool {
		n += e.Count
	}
	return n
}

func checkSelect(pool []Entry, quantity int) int {
	total := poolSize(pool)
	if quantity < 0 || quantity > total {
		panic(fmt.Sprintf("fourheap: select %d from pool of %d", quantity, total))
	}
	return total
}

// split builds the selected and remaining pools from per-order counts.
// remaining keeps the pool's order.
func split(pool []Entry, take map[OrderID]int) (selected, remaining []Entry) {
	for _, e := range pool {
		n := take[e.ID]
		if n > 0 {
			selected = append(selected, Entry{ID: e.ID, Count: n})
		}
		if e.Count-n > 0 {
			remaining = append(remaining, Entry{ID: e.ID, Count: e.Count - n})
		}
	}
	return selected, remaining
}

// canonical sorts by count then ID so random draws are applied in a fixed
// order regardless of how the pool was built.
func canonical(pool []Entry) []Entry {
	sorted := slices.Clone(pool)
	slices.SortFunc(sorted, func(a, b Entry) int {
		if c := cmp.Compare(a.Count, b.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return sorted
}

// PrioritySelector releases units in a fixed order: whole entries are
// taken in the order given by Less until the quantity is met.
type PrioritySelector struct {
	Less func(a, b OrderID) bool
}

// NewPrioritySelector releases the most recently submitted orders first,
// which keeps earlier orders matched.
func NewPrioritySelector() *PrioritySelector {
	return &PrioritySelector{Less: func(a, b OrderID) bool { return a > b }}
}

// Select implements Selector.
func (s *PrioritySelector) Select(pool []Entry, quantity int) (selected, remaining []Entry) {
	checkSelect(pool, quantity)
	ordered := slices.Clone(pool)
	slices.SortStableFunc(ordered, func(a, b Entry) int {
		switch {
		case s.Less(a.ID, b.ID):
			return -1
		case s.Less(b.ID, a.ID):
			return 1
		}
		return 0
	})

	take := make(map[OrderID]int, len(pool))
	left := quantity
	for _, e := range ordered {
		if left == 0 {
			break
		}
		n := min(left, e.Count)
		take[e.ID] += n
		left -= n
	}
	return split(pool, take)
}

// ProRataSelector gives every entry count × quantity / total units, within
// one. Fractional units are assigned by a randomized rounding that keeps
// the total exact and gives each entry its fractional share in
// expectation.
type ProRataSelector struct {
	rand *rand.Rand
}

// NewProRataSelector creates a pro-rata selector drawing from r.
func NewProRataSelector(r *rand.Rand) *ProRataSelector {
	return &ProRataSelector{rand: r}
}

// Select implements Selector.
func (s *ProRataSelector) Select(pool []Entry, quantity int) (selected, remaining []Entry) {
	total := checkSelect(pool, quantity)
	take := make(map[OrderID]int, len(pool))
	if total == 0 || quantity == 0 {
		return split(pool, take)
	}
	ratio := float64(quantity) / float64(total)

	entries := canonical(pool)
	s.rand.Shuffle(len(entries), func(i, j int) {
		entries[i], entries[j] = entries[j], entries[i]
	})

	// The running residual plus increments handed out so far stays equal to
	// the total fractional share, and each residual is the probability that
	// its holder is the one incremented.
	frac := func(e Entry) float64 {
		_, f := math.Modf(float64(e.Count) * ratio)
		return f
	}
	whole := func(e Entry) int {
		return int(float64(e.Count) * ratio)
	}

	current := entries[0]
	residual := frac(current)
	for _, next := range entries[1:] {
		nextResid := frac(next)
		inc := residual+nextResid > 1
		newResid := residual + nextResid
		keep := nextResid / newResid
		if inc {
			newResid--
			keep = (1 - nextResid) / (1 - newResid)
		}
		if s.rand.Float64() < keep {
			current, next = next, current
		}
		residual = newResid
		take[next.ID] = whole(next)
		if inc {
			take[next.ID]++
		}
	}
	take[current.ID] = whole(current)
	if residual > 0.5 {
		take[current.ID]++
	}

	correct(entries, take, quantity, ratio)
	return split(pool, take)
}

// correct repairs floating point drift so exactly quantity units are taken,
// adjusting the entries furthest from their exact share first.
func correct(entries []Entry, take map[OrderID]int, quantity int, ratio float64) {
	got := 0
	for _, e := range entries {
		got += take[e.ID]
	}
	for got != quantity {
		bestIdx, bestGap := -1, 0.0
		for i, e := range entries {
			gap := float64(e.Count)*ratio - float64(take[e.ID])
			if got > quantity {
				gap = -gap
			}
			room := take[e.ID] < e.Count
			if got > quantity {
				room = take[e.ID] > 0
			}
			if room && (bestIdx < 0 || gap > bestGap) {
				bestIdx, bestGap = i, gap
			}
		}
		if got < quantity {
			take[entries[bestIdx].ID]++
			got++
		} else {
			take[entries[bestIdx].ID]--
			got--
		}
	}
}

// RandomProRataSelector draws each entry's allocation from a
// hypergeometric distribution, as if the units were released one at a
// time uniformly at random. Every unit is treated alike, so large orders
// carry the same per-unit variance as small ones.
type RandomProRataSelector struct {
	rand *rand.Rand
}

// NewRandomProRataSelector creates a random pro-rata selector drawing
// from r.
func NewRandomProRataSelector(r *rand.Rand) *RandomProRataSelector {
	return &RandomProRataSelector{rand: r}
}

// Select implements Selector.
func (s *RandomProRataSelector) Select(pool []Entry, quantity int) (selected, remaining []Entry) {
	total := checkSelect(pool, quantity)
	take := make(map[OrderID]int, len(pool))
	for _, e := range canonical(pool) {
		h, err := distribution.NewHypergeometric(total, e.Count, quantity)
		if err != nil {
			panic(fmt.Sprintf("fourheap: %v", err))
		}
		n := h.Sample(s.rand)
		take[e.ID] += n
		total -= e.Count
		quantity -= n
	}
	return split(pool, take)
}
