package testutil

import (
	"sync"
	"time"
)

// DefaultEpoch is the first timestamp handed out by a clock built with a
// zero start time.
var DefaultEpoch = time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)

// DeterministicClock hands out evenly spaced event timestamps for generated
// logs.
//
// Two clocks with the same start and step produce the same timestamps, so
// generated logs hash identically across test runs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	ticks int64
}

// NewDeterministicClock creates a clock whose first call to Next returns
// start. A zero start selects DefaultEpoch; a step below one second selects
// one minute.
func NewDeterministicClock(start time.Time, step time.Duration) *DeterministicClock {
	if start.IsZero() {
		start = DefaultEpoch
	}
	if step < time.Second {
		step = time.Minute
	}
	return &DeterministicClock{start: start.UTC(), step: step}
}

// Next returns the next timestamp. Timestamps are strictly increasing.
func (c *DeterministicClock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.ticks) * c.step)
	c.ticks++
	return t
}

// Ticks returns how many timestamps were handed out.
func (c *DeterministicClock) Ticks() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// Reset rewinds the clock. The next call to Next returns the start time.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = 0
}
