package clock

import "time"

// Clock abstracts the current time so expiry, dispute-window and
// auto-completion boundaries are deterministic under test.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns a Clock backed by time.Now.
func System() Clock { return systemClock{} }

// Fixed returns a Clock pinned to t. Intended for tests.
func Fixed(t time.Time) *FixedClock { return &FixedClock{t: t} }

// FixedClock is a settable Clock for tests.
type FixedClock struct {
	t time.Time
}

func (c *FixedClock) Now() time.Time { return c.t }

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) { c.t = t }

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
