package shared

import (
	"sync"
	"time"
)

// Clock supplies the current time. Services take one so expiry and "today"
// decisions can be pinned in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// ZonedClock reads the wall clock in a configured location, so "today" is
// the operator's calendar day rather than the host's.
type ZonedClock struct {
	Location *time.Location
}

// NewZonedClock returns a clock for loc. A nil loc means UTC.
func NewZonedClock(loc *time.Location) ZonedClock {
	if loc == nil {
		loc = time.UTC
	}
	return ZonedClock{Location: loc}
}

// Now returns time.Now() in the clock's location.
func (c ZonedClock) Now() time.Time {
	if c.Location == nil {
		return time.Now().UTC()
	}
	return time.Now().In(c.Location)
}

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

// Now returns the pinned instant.
func (c FixedClock) Now() time.Time { return c.At }

// ManualClock is a settable clock for tests and replays.
type ManualClock struct {
	mu sync.Mutex
	at time.Time
}

// NewManualClock starts a ManualClock at t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{at: t}
}

// Now returns the current setting.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.at = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.at = c.at.Add(d)
	c.mu.Unlock()
}

// StartOfDay returns the calendar day t falls on in its own location, as
// midnight UTC. Dates built this way compare and hash the same before and
// after a database round trip.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
