// Package queue is a mutex-guarded FIFO shared by the display hub, which
// buffers operator intents between frames, and the GORM backend, which
// batches lap and frame rows between writes.
package queue

import "sync"

// Queue is a FIFO safe for concurrent use. A bounded queue discards its
// oldest items to make room.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	limit int
}

// New returns an unbounded queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// NewBounded returns a queue holding at most limit items.
func NewBounded[T any](limit int) *Queue[T] {
	return &Queue[T]{limit: limit}
}

// Push appends items and returns how many old items were discarded to stay
// within the bound.
func (q *Queue[T]) Push(items ...T) (discarded int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
	if q.limit > 0 && len(q.items) > q.limit {
		discarded = len(q.items) - q.limit
		q.items = append(q.items[:0:0], q.items[discarded:]...)
	}
	return discarded
}

// Requeue puts items back at the head, ahead of anything pushed since they
// were taken. The bound is not applied.
func (q *Queue[T]) Requeue(items []T) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	merged := make([]T, 0, len(items)+len(q.items))
	q.items = append(append(merged, items...), q.items...)
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Take removes and returns up to n items from the head. n <= 0 takes all.
func (q *Queue[T]) Take(n int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n <= 0 || n >= len(q.items) {
		items := q.items
		q.items = nil
		return items
	}
	items := append([]T(nil), q.items[:n]...)
	q.items = append(q.items[:0:0], q.items[n:]...)
	return items
}

// Drain removes and returns every item.
func (q *Queue[T]) Drain() []T {
	return q.Take(0)
}
