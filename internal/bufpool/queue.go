package bufpool

import (
	"sync"

	"github.com/esix-project/esix/internal/esixerr"
)

// Queue is a bounded, mutex-protected FIFO.  It backs the ingress/egress
// frame queues (unbounded, capacity 0) and the per-socket queue-entry lists
// (bounded, spec.md §4.7 "Per-socket queue depth is bounded").
//
// The mutex discipline is deliberately short: callers must not do blocking
// work (spec.md §5 "Long blocking ... must not hold the ingress lock") while
// holding a reference obtained from the queue.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int // 0 means unbounded.
}

// NewQueue returns a Queue with the given bound.  A capacity of 0 means
// unbounded.
func NewQueue[T any](capacity int) *Queue[T] {
	return &Queue[T]{capacity: capacity}
}

// Push appends v to the tail of the queue.  It returns [esixerr.ErrTableFull]
// if the queue is at capacity.
func (q *Queue[T]) Push(v T) (err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.capacity > 0 && len(q.items) >= q.capacity {
		return esixerr.ErrTableFull
	}

	q.items = append(q.items, v)

	return nil
}

// Pop removes and returns the item at the head of the queue.
func (q *Queue[T]) Pop() (v T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return v, false
	}

	v = q.items[0]
	q.items[0] = *new(T)
	q.items = q.items[1:]

	return v, true
}

// Peek returns the item at the head of the queue without removing it.
func (q *Queue[T]) Peek() (v T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return v, false
	}

	return q.items[0], true
}

// Len returns the number of items currently queued.
func (q *Queue[T]) Len() (n int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// Drain removes and returns every queued item, in order, emptying the queue.
func (q *Queue[T]) Drain() (items []T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items = q.items
	q.items = nil

	return items
}

// RemoveFunc removes every item for which match returns true, preserving
// order of the remainder.  It is used by the TCP retransmit sweep to drop
// acknowledged sent-packets.
func (q *Queue[T]) RemoveFunc(match func(T) bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.items[:0]
	for _, it := range q.items {
		if !match(it) {
			kept = append(kept, it)
		}
	}
	q.items = kept
}

// Each calls f for every queued item, in order, without removing them. f
// must not call back into the Queue.
func (q *Queue[T]) Each(f func(T)) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, it := range q.items {
		f(it)
	}
}
