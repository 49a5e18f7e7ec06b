package core

import (
	"context"
	"sync"
)

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// =============================================================================
// Queue: unbounded FIFO with a blocking consumer side
// =============================================================================

// Queue is an unbounded FIFO. Push never blocks; Next blocks until an item is
// available or the context is done.
//
// The zero value is not usable, use NewQueue.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T

	// one-slot wake-up signal for consumers blocked in Next
	ready chan struct{}
}

func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		items: make([]T, 0, defaultQueueCap),
		ready: make(chan struct{}, 1),
	}
}

// Push appends item and returns the queue length after the push.
func (q *Queue[T]) Push(item T) int {
	q.mu.Lock()
	q.items = append(q.items, item)
	n := len(q.items)
	q.mu.Unlock()

	q.signal()
	return n
}

// TryPop removes the head item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// Next removes the head item, blocking while the queue is empty.
// It returns ctx.Err() if ctx is done before an item arrives.
func (q *Queue[T]) Next(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		item, ok := q.popLocked()
		more := len(q.items) > 0
		q.mu.Unlock()

		if ok {
			if more {
				// pass the wake-up on to any other consumer
				q.signal()
			}
			return item, nil
		}

		select {
		case <-q.ready:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *Queue[T]) popLocked() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	item := q.items[0]
	// Zero out the element in the underlying array to prevent memory leak
	q.items[0] = zero
	q.items = q.items[1:]
	q.maybeCompactLocked()

	return item, true
}

func (q *Queue[T]) MaybeCompact() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.maybeCompactLocked()
}

func (q *Queue[T]) maybeCompactLocked() {
	n := len(q.items)
	c := cap(q.items)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.items = make([]T, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]T, n, newCap)
	copy(newSlice, q.items)
	q.items = newSlice
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) IsEmpty() bool {
	return q.Len() == 0
}

// Clear removes all items and releases references; returns how many were dropped.
func (q *Queue[T]) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = make([]T, 0, defaultQueueCap)
	return n
}
