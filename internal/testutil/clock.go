// Package testutil provides deterministic doubles shared by package
// tests: a manually advanced clock, an in-memory register client, and a
// scriptable fake system under test.
package testutil

import (
	"sync"
	"time"
)

// Clock is a manually advanced elapsed-time source. Handing its Now to
// the runner makes a whole test run deterministic: time moves only when
// the test says so.
//
// Thread-safety: all methods are safe for concurrent use.
type Clock struct {
	mu  sync.Mutex
	now time.Duration
}

// NewClock creates a clock at elapsed time zero.
func NewClock() *Clock {
	return &Clock{}
}

// Now returns the current elapsed time.
func (c *Clock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}

// Set jumps the clock to an absolute elapsed time.
func (c *Clock) Set(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = d
}
