package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start of a test Clock.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// Clock is a manually advanced time source. Pass Clock.Now wherever a
// component accepts a func() time.Time, such as the gallery probe cache.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a Clock at the given time, or at Epoch.
func NewClock(start ...time.Time) *Clock {
	c := &Clock{now: Epoch}
	if len(start) > 0 {
		c.now = start[0]
	}
	return c
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set jumps to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
