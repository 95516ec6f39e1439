package bake

import "sync/atomic"

// Clock stamps task results with a monotonic logical sequence number.
//
// Journal entries are ordered by seq, never by wall-clock time, so two runs
// of the same batch produce identically ordered results.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// In practice only the worker goroutine calls Next().
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming from a known sequence number.
// Used to continue numbering after the last journaled result.
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
