// Package clock provides a time abstraction for testable time-dependent code.
// Use RealClock for production and MockClock for testing.
package clock

import (
	"sync"
	"time"
)

// Clock is an interface for time operations, allowing time to be mocked in tests.
type Clock interface {
	// Now returns the current time
	Now() time.Time

	// Every calls f each time the interval d elapses until the returned
	// Timer is stopped. Calls happen on a goroutine owned by the clock.
	Every(d time.Duration, f func()) Timer
}

// Timer represents a scheduled callback that can be cancelled
type Timer interface {
	// Stop prevents any further call. Returns true if the call stops the timer,
	// false if the timer had already been stopped.
	Stop() bool
}

// RealClock implements Clock using the standard time package
type RealClock struct{}

// NewRealClock creates a new RealClock instance
func NewRealClock() *RealClock {
	return &RealClock{}
}

// Now returns the current time
func (c *RealClock) Now() time.Time {
	return time.Now()
}

// Every starts a ticker goroutine calling f at every interval
func (c *RealClock) Every(d time.Duration, f func()) Timer {
	t := &realTicker{
		ticker: time.NewTicker(d),
		done:   make(chan struct{}),
	}

	go func() {
		for {
			select {
			case <-t.ticker.C:
				f()
			case <-t.done:
				return
			}
		}
	}()

	return t
}

// realTicker wraps time.Ticker to implement our Timer interface
type realTicker struct {
	ticker *time.Ticker
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

// Stop halts the ticker goroutine
func (t *realTicker) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}
	t.closed = true
	t.ticker.Stop()
	close(t.done)
	return true
}

// MockClock is a Clock implementation for testing that allows manual time control.
// Callbacks run synchronously on the goroutine calling Advance or Set.
type MockClock struct {
	mu      sync.Mutex
	current time.Time
	timers  []*mockTimer
}

type mockTimer struct {
	clock    *MockClock
	deadline time.Time
	period   time.Duration
	f        func()
	stopped  bool
}

// NewMockClock creates a new MockClock starting at the given time
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{
		current: start,
		timers:  make([]*mockTimer, 0),
	}
}

// Now returns the mock current time
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Every schedules f to be called every d of mock time
func (c *MockClock) Every(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	timer := &mockTimer{
		clock:    c,
		deadline: c.current.Add(d),
		period:   d,
		f:        f,
	}
	c.timers = append(c.timers, timer)
	return timer
}

// Pending returns the number of timers that have not been stopped
func (c *MockClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, timer := range c.timers {
		if !timer.stopped {
			count++
		}
	}
	return count
}

// Advance moves the mock clock forward by duration d, firing every timer tick
// that falls inside the interval in chronological order. Ticks due at the same
// instant fire shortest period first, then in registration order.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.current.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			c.current = target
			c.mu.Unlock()
			return
		}
		c.current = next.deadline
		next.deadline = next.deadline.Add(next.period)
		f := next.f
		c.mu.Unlock()

		// Fire outside the lock so callbacks can stop or create timers
		f()
	}
}

// Set moves the mock clock to a specific time. Moving forward fires the
// timers in between, moving backward only changes the reading.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	oldTime := c.current
	c.mu.Unlock()

	if t.After(oldTime) {
		c.Advance(t.Sub(oldTime))
		return
	}

	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// nextDueLocked drops stopped timers and returns the earliest timer due at or
// before target, breaking ties by period then registration order
func (c *MockClock) nextDueLocked(target time.Time) *mockTimer {
	var next *mockTimer
	remaining := c.timers[:0]

	for _, timer := range c.timers {
		if timer.stopped {
			continue
		}
		remaining = append(remaining, timer)
		if timer.deadline.After(target) {
			continue
		}
		if next == nil || timer.deadline.Before(next.deadline) ||
			(timer.deadline.Equal(next.deadline) && timer.period < next.period) {
			next = timer
		}
	}

	c.timers = remaining
	return next
}

// Stop prevents the timer from firing again
func (t *mockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}
