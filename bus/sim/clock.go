package sim

import (
	"sync"
	"time"
)

// Clock supplies the time base for write-cycle emulation.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock is the wall clock.
var RealClock Clock = realClock{}

// ManualClock is a Clock that only moves when told to. Its Sleep method
// advances time instantly, so it can stand in for time.Sleep in tests.
type ManualClock struct {
	mutex sync.Mutex
	now   time.Time
	slept []time.Duration
}

// NewManualClock creates a manual clock starting at an arbitrary epoch.
func NewManualClock() *ManualClock {
	return &ManualClock{now: time.Unix(0, 0)}
}

// Now returns the current manual time.
func (c *ManualClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now = c.now.Add(d)
}

// Sleep advances the clock by d and records the call.
func (c *ManualClock) Sleep(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now = c.now.Add(d)
	c.slept = append(c.slept, d)
}

// Slept returns the durations passed to Sleep so far.
func (c *ManualClock) Slept() []time.Duration {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]time.Duration(nil), c.slept...)
}
