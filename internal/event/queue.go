// Package event implements the deterministic discrete-event scheduler that
// drives a simulation.
//
// Activities run strictly in time order. Activities for the same instant
// run epoch by epoch, where an epoch is everything scheduled for that
// instant between two pops of the queue. The order within an epoch is a
// shuffle drawn from the queue's random source, so it is reproducible for
// a given seed but carries no other guarantee: if A must happen before B,
// A has to schedule B.
package event

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/gammazero/deque"
	"github.com/google/btree"
)

// Activity is a unit of simulated work. It runs to completion before the
// next activity is popped.
type Activity func()

// slot holds every activity due at one instant.
type slot struct {
	at      domain.TimeStamp
	epochs  deque.Deque[[]Activity]
	pending []Activity
}

func (s *slot) empty() bool {
	return s.epochs.Len() == 0 && len(s.pending) == 0
}

// Queue is the event scheduler. It is not safe for concurrent use.
type Queue struct {
	rand    *rand.Rand
	current domain.TimeStamp
	slots   *btree.BTreeG[*slot]
	dirty   []*slot
	size    int
}

// NewQueue creates a scheduler at time zero. r orders same-instant
// activities and must not be shared with another run.
func NewQueue(r *rand.Rand) *Queue {
	return &Queue{
		rand: r,
		slots: btree.NewG[*slot](8, func(a, b *slot) bool {
			return a.at < b.at
		}),
	}
}

// CurrentTime is the time of the running activity, or the time passed to
// the last ExecuteUntil once it returned.
func (q *Queue) CurrentTime() domain.TimeStamp {
	return q.current
}

// Len is the number of activities waiting to run.
func (q *Queue) Len() int {
	return q.size
}

// ScheduleIn schedules act to run delay after the current time.
func (q *Queue) ScheduleIn(delay domain.TimeStamp, act Activity) error {
	if delay <= 0 {
		return fmt.Errorf("schedule in %d: %w", delay, domain.ErrInvalidDelay)
	}
	q.add(q.current.Add(delay), act)
	return nil
}

// ScheduleAt schedules act to run at t, which must be after the current
// time.
func (q *Queue) ScheduleAt(t domain.TimeStamp, act Activity) error {
	if t <= q.current {
		return fmt.Errorf("schedule at %d with current time %d: %w", t, q.current, domain.ErrTimeReversed)
	}
	q.add(t, act)
	return nil
}

// ScheduleNow schedules act for the current instant. It runs in a later
// epoch than the activity that scheduled it, within the same ExecuteUntil.
func (q *Queue) ScheduleNow(act Activity) {
	q.add(q.current, act)
}

func (q *Queue) add(t domain.TimeStamp, act Activity) {
	s, ok := q.slots.Get(&slot{at: t})
	if !ok {
		s = &slot{at: t}
		q.slots.ReplaceOrInsert(s)
	}
	if len(s.pending) == 0 {
		q.dirty = append(q.dirty, s)
	}
	s.pending = append(s.pending, act)
	q.size++
}

// seal closes the open epoch of every slot that received activities since
// the last pop. Each epoch is shuffled by its own generator, seeded with
// one draw from the queue's source.
func (q *Queue) seal() {
	for _, s := range q.dirty {
		epoch := s.pending
		s.pending = nil
		seed := q.rand.Uint64()
		r := rand.New(rand.NewPCG(seed, uint64(s.at)))
		r.Shuffle(len(epoch), func(i, j int) {
			epoch[i], epoch[j] = epoch[j], epoch[i]
		})
		s.epochs.PushBack(epoch)
	}
	clear(q.dirty)
	q.dirty = q.dirty[:0]
}

// pop removes the next activity due at or before t.
func (q *Queue) pop(t domain.TimeStamp) (domain.TimeStamp, Activity, bool) {
	head, ok := q.slots.Min()
	if !ok || head.at > t {
		return 0, nil, false
	}
	q.seal()

	epoch := head.epochs.PopFront()
	act := epoch[0]
	if len(epoch) > 1 {
		head.epochs.PushFront(epoch[1:])
	}
	if head.empty() {
		q.slots.Delete(head)
	}
	q.size--
	return head.at, act, true
}

// ExecuteUntil runs every activity due at or before t, including those
// scheduled by activities it runs, then advances the current time to t.
// It stops early with the context's error if ctx is done.
func (q *Queue) ExecuteUntil(ctx context.Context, t domain.TimeStamp) error {
	if t < q.current {
		return fmt.Errorf("execute until %d with current time %d: %w", t, q.current, domain.ErrTimeReversed)
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		at, act, ok := q.pop(t)
		if !ok {
			break
		}
		q.current = at
		act()
	}
	q.current = max(q.current, t)
	return nil
}
