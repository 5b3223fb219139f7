// Package testutils contains helpers shared by the rover's tests.
package testutils

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// SteppingClock is a mock clock whose Sleep advances time instantly. Unlike clock.Mock.Add it
// never yields to the scheduler, so busy-wait loops that sleep a microsecond per poll run at full
// speed in tests. Timers and tickers are those of the embedded mock and are not advanced by Sleep.
type SteppingClock struct {
	*clock.Mock

	mu     sync.Mutex
	now    time.Time
	sleeps map[time.Duration]int
}

// NewSteppingClock returns a SteppingClock starting at start.
func NewSteppingClock(start time.Time) *SteppingClock {
	return &SteppingClock{Mock: clock.NewMock(), now: start, sleeps: map[time.Duration]int{}}
}

// Now returns the current simulated time.
func (c *SteppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since returns the simulated time elapsed since t.
func (c *SteppingClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Until returns the simulated time until t.
func (c *SteppingClock) Until(t time.Time) time.Duration {
	return t.Sub(c.Now())
}

// Sleep advances the simulated time by d and returns immediately.
func (c *SteppingClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps[d]++
}

// Advance moves the simulated time forward without counting as a sleep.
func (c *SteppingClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SleepCount returns how many times Sleep was called with exactly d.
func (c *SteppingClock) SleepCount(d time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sleeps[d]
}
