package clock

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMockClock_Every(t *testing.T) {
	start := time.Date(2024, 6, 21, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	var ticks []time.Time
	timer := c.Every(time.Second, func() {
		ticks = append(ticks, c.Now())
	})

	c.Advance(3500 * time.Millisecond)

	assert.Len(t, ticks, 3)
	assert.Equal(t, start.Add(time.Second), ticks[0])
	assert.Equal(t, start.Add(3*time.Second), ticks[2])
	assert.Equal(t, start.Add(3500*time.Millisecond), c.Now())

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop(), "second Stop reports already stopped")

	c.Advance(10 * time.Second)
	assert.Len(t, ticks, 3)
	assert.Equal(t, 0, c.Pending())
}

func TestMockClock_FiresInChronologicalOrder(t *testing.T) {
	c := NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	var order []string
	c.Every(time.Hour, func() { order = append(order, "hourly") })
	c.Every(20*time.Minute, func() { order = append(order, "minutes") })

	c.Advance(time.Hour)

	assert.Equal(t, []string{"minutes", "minutes", "minutes", "hourly"}, order)
}

func TestMockClock_SimultaneousTicks(t *testing.T) {
	c := NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	var order []string
	c.Every(time.Hour, func() { order = append(order, "first hourly") })
	c.Every(time.Second, func() {})
	c.Every(time.Hour, func() { order = append(order, "second hourly") })
	c.Every(30*time.Minute, func() { order = append(order, "half hour") })

	c.Advance(time.Hour)

	assert.Equal(t, []string{"half hour", "half hour", "first hourly", "second hourly"}, order)
}

func TestMockClock_CallbackCanStopItself(t *testing.T) {
	c := NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	var calls int
	var timer Timer
	timer = c.Every(time.Second, func() {
		calls++
		timer.Stop()
	})

	c.Advance(5 * time.Second)
	assert.Equal(t, 1, calls)
}

func TestMockClock_SetBackwardsDoesNotFire(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	var calls int
	c.Every(time.Second, func() { calls++ })

	c.Set(start.Add(-time.Hour))
	assert.Equal(t, 0, calls)
	assert.Equal(t, start.Add(-time.Hour), c.Now())

	c.Set(start.Add(-time.Hour + 2*time.Second))
	assert.Equal(t, 0, calls, "deadline is still ahead of the rewound clock")
}

func TestRealClock_Every(t *testing.T) {
	c := NewRealClock()

	var calls atomic.Int32
	timer := c.Every(10*time.Millisecond, func() { calls.Add(1) })

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
}
