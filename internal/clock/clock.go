package clock

import (
	"strconv"
	"sync/atomic"
)

// Lamport is a Lamport logical clock.
// Only the owning event loop may call Observe or Tick; Value is safe to call
// from any goroutine so inspectors can read the clock while it runs.
type Lamport struct {
	value atomic.Uint64
}

// New creates a clock starting at zero.
func New() *Lamport {
	return &Lamport{}
}

// Value returns the current logical time.
func (c *Lamport) Value() uint64 {
	return c.value.Load()
}

// Observe applies the max-rule for a received timestamp and returns the
// resulting time. The clock never moves backwards.
func (c *Lamport) Observe(received uint64) uint64 {
	cur := c.value.Load()
	if received > cur {
		c.value.Store(received)
		return received
	}
	return cur
}

// Tick advances the clock by exactly one and returns the new time.
func (c *Lamport) Tick() uint64 {
	return c.value.Add(1)
}

// String returns the decimal representation of the current time.
func (c *Lamport) String() string {
	return strconv.FormatUint(c.Value(), 10)
}
