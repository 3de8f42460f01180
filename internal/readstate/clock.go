package readstate

import "sync/atomic"

// Clock is a monotonic logical clock shared by pollers and the reconciler.
// Poll snapshots and read watermarks draw from the same sequence, so "this
// fetch was issued before the thread was marked read" is a plain comparison
// that does not depend on wall-clock skew.
type Clock struct {
	n atomic.Uint64
}

// NewClock creates a clock starting at zero.
func NewClock() *Clock {
	return &Clock{}
}

// Next advances the clock and returns the new value.
func (c *Clock) Next() uint64 {
	return c.n.Add(1)
}

// Now returns the last value handed out.
func (c *Clock) Now() uint64 {
	return c.n.Load()
}
