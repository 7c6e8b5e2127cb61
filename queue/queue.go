// Package queue provides the unbounded FIFO between log producers and the
// delivery worker.
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Push after Close, and by Pop once a closed
// queue has been drained.
var ErrClosed = errors.New("queue: closed")

// Queue is an unbounded, ordered, multi-producer single-consumer queue of
// encoded payloads. Push never blocks. Only one goroutine may call Pop.
type Queue struct {
	mu     sync.Mutex
	items  [][]byte
	head   int
	closed bool
	signal chan struct{} // cap 1; non-empty when items may be available
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Push appends payload to the tail of the queue.
func (q *Queue) Push(payload []byte) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, payload)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

// Pop removes and returns the head of the queue, waiting while the queue
// is empty. It returns ctx.Err() if ctx ends first, and ErrClosed once the
// queue is closed and empty.
func (q *Queue) Pop(ctx context.Context) ([]byte, error) {
	for {
		if payload, ok, err := q.tryPop(); ok || err != nil {
			return payload, err
		}
		select {
		case <-q.signal:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// TryPop returns the head of the queue without waiting. ok is false when
// the queue is empty.
func (q *Queue) TryPop() (payload []byte, ok bool) {
	payload, ok, _ = q.tryPop()
	return payload, ok
}

func (q *Queue) tryPop() ([]byte, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == len(q.items) {
		if q.closed {
			return nil, false, ErrClosed
		}
		return nil, false, nil
	}
	payload := q.items[q.head]
	q.items[q.head] = nil
	q.head++

	// Reclaim the consumed prefix once it dominates the backing array.
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head >= 1024 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return payload, true, nil
}

// Len returns the number of queued payloads.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Close stops the queue from accepting payloads. Payloads already queued
// can still be popped. Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
