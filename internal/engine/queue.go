package engine

import (
	"sync"

	"github.com/roach88/authsync/internal/change"
)

// Item is one queued authority change.
type Item struct {
	Seq    int64
	Tenant string
	Event  change.Event
}

// eventQueue is an unbounded, thread-safe FIFO queue.
//
// Producers (HTTP handlers, broker subscriptions) enqueue from any goroutine
// while the consumer loop dequeues. The signal channel lets the loop wait on
// availability and on context cancellation in one select.
type eventQueue struct {
	mu     sync.Mutex
	items  []Item
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		items:  make([]Item, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an item to the back of the queue. It returns false once the
// queue is closed.
func (q *eventQueue) Enqueue(it Item) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, it)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front item without blocking.
func (q *eventQueue) TryDequeue() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Item{}, false
	}
	it := q.items[0]

	// Clear the slot so the backing array does not pin the authorities.
	q.items[0] = Item{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return it, true
}

// Wait returns a channel that fires when items may be available. It is
// closed when the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued items.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further enqueues and wakes the waiter.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
