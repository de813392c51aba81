// Package testutil provides shared helpers for tests.
package testutil

import (
	"sync"
	"time"
)

// Clock is a thread-safe controllable wall clock for tests.
//
// Stores and selectors take a Now func so tests can pin partition years,
// index timestamps, and flag times. Clock adds controlled advancement on
// top of a fixed start, so a test can write records with distinct,
// ordered timestamps without sleeping.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock creates a clock pinned to start.
func NewClock(start time.Time) *Clock {
	return &Clock{t: start}
}

// Now returns the current clock time. Pass the method value as the Now
// option of whatever is under test.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	return c.t
}
