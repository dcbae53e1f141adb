package chat

import (
	"sync"
	"time"
)

// Clock hands out server timestamps for persisted messages. Successive calls
// return strictly increasing UTC times even if the wall clock steps back or
// two calls land on the same tick, so messages persisted in sequence are
// timestamped in that sequence.
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// NewClock returns a Clock reading the wall clock.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// NewClockFunc returns a Clock reading now. Used by tests.
func NewClockFunc(now func() time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the next timestamp.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Postgres keeps microseconds; truncate so the value read back matches.
	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}
