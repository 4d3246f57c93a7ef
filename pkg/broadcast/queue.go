package broadcast

import (
	"context"
	"sync"
	"time"
)

// DefaultQueueSize is the default number of data envelopes a queue can buffer.
const DefaultQueueSize = 64

// Queue is a bounded FIFO of items owned by exactly one connection.
//
// Data envelopes are limited to the queue capacity. The disconnect signal and
// the close sentinel are appended past the capacity so that an eviction is
// always observed, even by a subscriber whose buffer is full.
type Queue struct {
	mu       sync.Mutex
	items    []Item
	capacity int
	closed   bool
	notify   chan struct{}
}

func newQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = DefaultQueueSize
	}
	return &Queue{
		items:    make([]Item, 0, capacity),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// Cap returns the data capacity of the queue.
func (q *Queue) Cap() int {
	return q.capacity
}

// Len returns the number of buffered items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether the queue has received its close sentinel.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// offer appends a data envelope without blocking.
// Returns false when the queue is full or closed.
func (q *Queue) offer(env Envelope) bool {
	q.mu.Lock()
	if q.closed || len(q.items) >= q.capacity {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, Item{Kind: KindData, Envelope: env})
	q.mu.Unlock()

	q.wake()
	return true
}

// shutdown appends the disconnect signal followed by the close sentinel.
// Returns false if the queue was already closed.
func (q *Queue) shutdown(signal Envelope) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items,
		Item{Kind: KindSignal, Envelope: signal},
		Item{Kind: KindClose},
	)
	q.closed = true
	q.mu.Unlock()

	q.wake()
	return true
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// TryReceive pops the next item without waiting.
func (q *Queue) TryReceive() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		if q.closed {
			return Item{Kind: KindClose}, true
		}
		return Item{}, false
	}

	it := q.items[0]
	q.items[0] = Item{}
	q.items = q.items[1:]
	return it, true
}

// Receive waits up to timeout for the next item.
// Returns ErrReceiveTimeout when nothing arrived in time and ctx.Err() when the
// context ends first. A drained, closed queue keeps returning the close sentinel.
// A timeout <= 0 waits until an item arrives or ctx is done.
func (q *Queue) Receive(ctx context.Context, timeout time.Duration) (Item, error) {
	if it, ok := q.TryReceive(); ok {
		return it, nil
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return Item{}, ctx.Err()
		case <-deadline:
			// An item may have landed between the last check and the timer firing.
			if it, ok := q.TryReceive(); ok {
				return it, nil
			}
			return Item{}, ErrReceiveTimeout
		case <-q.notify:
			if it, ok := q.TryReceive(); ok {
				return it, nil
			}
		}
	}
}
