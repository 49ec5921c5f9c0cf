package fourheap

import (
	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/google/btree"
)

const degree = 32

// key ranks orders inside one queue. Orders that share a key form a level
// and are indistinguishable to the queue; the Selector breaks ties between
// them when a level has to be split.
type key struct {
	price domain.Price
	time  domain.MarketTime
}

type entry struct {
	id  OrderID
	qty int
}

// level holds every order at one key, in insertion order.
type level struct {
	key     key
	entries []entry
}

func (l *level) size() int {
	n := 0
	for _, e := range l.entries {
		n += e.qty
	}
	return n
}

func (l *level) count(id OrderID) int {
	for _, e := range l.entries {
		if e.id == id {
			return e.qty
		}
	}
	return 0
}

func (l *level) add(id OrderID, qty int) {
	for i := range l.entries {
		if l.entries[i].id == id {
			l.entries[i].qty += qty
			return
		}
	}
	l.entries = append(l.entries, entry{id: id, qty: qty})
}

// take removes up to qty of id and returns how much was removed.
func (l *level) take(id OrderID, qty int) int {
	for i := range l.entries {
		if l.entries[i].id != id {
			continue
		}
		n := min(qty, l.entries[i].qty)
		l.entries[i].qty -= n
		if l.entries[i].qty == 0 {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
		}
		return n
	}
	return 0
}

// orderQueue is one of the four heaps: a B-tree of levels whose Min is the
// head of the queue, plus an index from order to key.
type orderQueue struct {
	tree *btree.BTreeG[*level]
	keys map[OrderID]key
	size int
}

func newOrderQueue(cmp func(a, b key) int) *orderQueue {
	return &orderQueue{
		tree: btree.NewG[*level](degree, func(a, b *level) bool {
			return cmp(a.key, b.key) < 0
		}),
		keys: make(map[OrderID]key),
	}
}

func (q *orderQueue) isEmpty() bool {
	return q.tree.Len() == 0
}

func (q *orderQueue) peek() (*level, bool) {
	return q.tree.Min()
}

func (q *orderQueue) peekKey() (key, bool) {
	l, ok := q.tree.Min()
	if !ok {
		return key{}, false
	}
	return l.key, true
}

func (q *orderQueue) peekSize() int {
	l, ok := q.tree.Min()
	if !ok {
		return 0
	}
	return l.size()
}

// poll removes and returns the head level.
func (q *orderQueue) poll() *level {
	l, ok := q.tree.DeleteMin()
	if !ok {
		return nil
	}
	q.size -= l.size()
	for _, e := range l.entries {
		delete(q.keys, e.id)
	}
	return l
}

// offer inserts a whole level, merging it into an existing level with the
// same key.
func (q *orderQueue) offer(l *level) {
	if existing, ok := q.tree.Get(l); ok {
		for _, e := range l.entries {
			existing.add(e.id, e.qty)
		}
	} else {
		q.tree.ReplaceOrInsert(l)
	}
	for _, e := range l.entries {
		q.keys[e.id] = l.key
	}
	q.size += l.size()
}

func (q *orderQueue) add(id OrderID, k key, qty int) {
	probe := &level{key: k}
	l, ok := q.tree.Get(probe)
	if !ok {
		l = probe
		q.tree.ReplaceOrInsert(l)
	}
	l.add(id, qty)
	q.keys[id] = k
	q.size += qty
}

// remove takes up to qty of id out of the queue and returns the amount
// removed.
func (q *orderQueue) remove(id OrderID, qty int) int {
	k, ok := q.keys[id]
	if !ok {
		return 0
	}
	l, ok := q.tree.Get(&level{key: k})
	if !ok {
		return 0
	}
	n := l.take(id, qty)
	if l.count(id) == 0 {
		delete(q.keys, id)
	}
	if len(l.entries) == 0 {
		q.tree.Delete(l)
	}
	q.size -= n
	return n
}

func (q *orderQueue) count(id OrderID) int {
	k, ok := q.keys[id]
	if !ok {
		return 0
	}
	l, ok := q.tree.Get(&level{key: k})
	if !ok {
		return 0
	}
	return l.count(id)
}

// ascend visits levels from the head of the queue.
func (q *orderQueue) ascend(fn func(*level) bool) {
	q.tree.Ascend(fn)
}

func (q *orderQueue) clear() {
	q.tree.Clear(false)
	clear(q.keys)
	q.size = 0
}
