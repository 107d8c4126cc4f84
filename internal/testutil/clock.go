// Package testutil holds fakes shared by package tests.
package testutil

import (
	"sync"
	"time"
)

// Epoch is the instant a new Clock starts at.
var Epoch = time.UnixMilli(1700000000000).UTC()

// Clock is a manually advanced wall clock for idle-sweep tests.
//
// Pass clock.Now wherever a func() time.Time is accepted. Safe for
// concurrent use.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock reading Epoch.
func NewClock() *Clock {
	return &Clock{now: Epoch}
}

// Now returns the current fake time.
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

// Set jumps the clock to t. Used to reuse one clock across subtests.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
