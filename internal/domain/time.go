package domain

import "fmt"

// TimeStamp is a point on the simulation clock. It is unitless; the
// configuration decides what one tick means.
type TimeStamp int64

// Add returns t shifted by d.
func (t TimeStamp) Add(d TimeStamp) TimeStamp {
	return t + d
}

// MarketTime orders orders inside a market. It is finer grained than the
// simulation clock: a market advances it at least once per submission or
// clearing round, so orders submitted at the same TimeStamp still have a
// strict (or deliberately tied) order.
type MarketTime int64

// IDGenerator hands out increasing identifiers. Each simulation owns its
// own generator; nothing is global.
type IDGenerator struct {
	prefix string
	next   uint64
}

// NewIDGenerator creates a generator whose IDs look like "<prefix>-<n>".
func NewIDGenerator(prefix string) *IDGenerator {
	return &IDGenerator{prefix: prefix}
}

// Next returns the next identifier.
func (g *IDGenerator) Next() string {
	g.next++
	return fmt.Sprintf("%s-%d", g.prefix, g.next)
}
