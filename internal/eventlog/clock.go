package eventlog

import "sync/atomic"

// Clock is a monotonic logical clock for event ordering.
//
// Every appended event is stamped with a strictly increasing seq number from
// this clock. Seq numbers survive eviction, so they identify an event's
// position in the full history even when the node itself is gone.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// However, the log only calls Next() while holding its lock.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
