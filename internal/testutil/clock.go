// Package testutil holds deterministic stand-ins for time and id sources.
package testutil

import (
	"sync"
	"time"
)

// Epoch is the wall-clock time of sequence 0.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock is a resettable logical clock. Each Next advances one
// step; Now reports the step as Epoch plus that many seconds, so stores and
// partitioners stamped from it produce identical timestamps on every run.
//
// All methods are safe for concurrent use.
type DeterministicClock struct {
	mu  sync.Mutex
	seq int64
}

// NewDeterministicClock returns a clock at 0. The first Next returns 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next advances the clock and returns the new sequence number.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the sequence number without advancing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Now advances the clock and returns the matching time. It fits
// store.SetClock and partition.WithClock.
func (c *DeterministicClock) Now() time.Time {
	return Epoch.Add(time.Duration(c.Next()) * time.Second)
}

// Reset rewinds the clock to 0.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
