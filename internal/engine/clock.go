package engine

import "sync/atomic"

// Clock is the monotonic logical clock that orders inbound authority events.
//
// Every event the Consumer accepts is stamped with a strictly increasing seq
// number from this clock, so the queue orders by arrival and not by wall
// time. Two events for the same authority are therefore handled in the order
// they were received even when their timestamps collide.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// Several goroutines may enqueue through one Consumer at the same time.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock whose next value is start+1.
// Used to resume numbering from a known position.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
// Calls are linearizable: each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
// Useful for reporting how many events have been accepted.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
