// Package queue provides a generic, thread-safe, unbounded FIFO queue.
//
// The queue decouples a single producer goroutine from consumers:
//   - Put never blocks and never drops items
//   - Get blocks until an item arrives, the context ends, or the queue closes
//   - TryGet polls without blocking
//
// Close Semantics:
//   - Close is idempotent and wakes all blocked consumers
//   - Items already enqueued remain readable after Close (close-then-drain)
//   - Once closed and drained, Get and TryGet report ErrQueueClosed
package queue

import (
	"context"
	"sync"

	"github.com/c360/gofhem/errors"
)

// Queue is an unbounded FIFO queue parameterized by item type T.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	closed   bool
	notEmpty *sync.Cond
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Put appends an item to the queue. It never blocks.
// Returns ErrQueueClosed after Close.
func (q *Queue[T]) Put(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errors.Wrap(errors.ErrQueueClosed, "Queue", "Put", "enqueue")
	}

	q.items = append(q.items, item)
	q.notEmpty.Signal()
	return nil
}

// Get removes and returns the oldest item, blocking until one is
// available. It returns ctx.Err() if the context ends first, and
// ErrQueueClosed once the queue is closed and drained.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	var zero T

	q.mu.Lock()
	defer q.mu.Unlock()

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	default:
	}

	// Wake the Cond wait when the context ends. Broadcast is safe
	// without holding the mutex.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			q.notEmpty.Broadcast()
		case <-done:
		}
	}()

	for len(q.items) == 0 && !q.closed {
		q.notEmpty.Wait()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}
	}

	return q.take()
}

// TryGet removes and returns the oldest item without blocking.
// The bool reports whether an item was returned; the error is
// ErrQueueClosed once the queue is closed and drained, nil otherwise.
func (q *Queue[T]) TryGet() (T, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		var zero T
		if q.closed {
			return zero, false, errors.Wrap(errors.ErrQueueClosed, "Queue", "TryGet", "dequeue")
		}
		return zero, false, nil
	}

	item, err := q.take()
	return item, err == nil, err
}

// take pops the head. Caller must hold q.mu.
func (q *Queue[T]) take() (T, error) {
	var zero T

	if len(q.items) == 0 {
		// Only reachable once closed: Get loops until an item
		// arrives or the queue closes.
		return zero, errors.Wrap(errors.ErrQueueClosed, "Queue", "Get", "dequeue")
	}

	item := q.items[0]
	q.items[0] = zero // Clear for GC
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil // Release the backing array
	}
	return item, nil
}

// Len returns the number of items currently queued.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close marks the queue closed and wakes all blocked consumers.
// Enqueued items remain readable; further Puts fail.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.notEmpty.Broadcast()
}
