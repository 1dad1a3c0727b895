package testfixtures

import (
	"sync"
	"time"
)

// Clock is a manual time source for services under test. Instants are held
// in UTC at millisecond precision, the resolution the SQLite store keeps, so
// a time read back from either store equals the one the clock handed out.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at start, or at ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{now: storedInstant(start)}
}

// Now reports the clock's instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// NowFunc returns Now for injection into services. A nil clock yields time.Now.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Set moves the clock to t, which may lie in the past.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = storedInstant(t)
	c.mu.Unlock()
}

// Advance moves the clock by d and returns the new instant.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = storedInstant(c.now.Add(d))
	return c.now
}

func storedInstant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
