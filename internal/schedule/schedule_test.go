package schedule

import (
	"testing"
	"time"

	"nightthemeswitcher/internal/timestate"

	"github.com/stretchr/testify/assert"
)

func TestResolve_RegularSchedule(t *testing.T) {
	cases := []struct {
		now  float64
		want timestate.State
	}{
		{0, timestate.Night},
		{6.0, timestate.Night},
		{6.999, timestate.Night},
		{7.0, timestate.Day},
		{8.0, timestate.Day},
		{18.999, timestate.Day},
		{19.0, timestate.Night},
		{23.99, timestate.Night},
	}

	for _, tc := range cases {
		got, ok := Resolve(tc.now, 7.0, 19.0)
		assert.True(t, ok)
		assert.Equal(t, tc.want, got, "now=%v", tc.now)
	}
}

func TestResolve_DayWindowWrapsMidnight(t *testing.T) {
	// Sunrise at 22h, sunset at 3h the day after
	cases := []struct {
		now  float64
		want timestate.State
	}{
		{21.99, timestate.Night},
		{22.0, timestate.Day},
		{23.5, timestate.Day},
		{0, timestate.Day},
		{2.99, timestate.Day},
		{3.0, timestate.Night},
		{12, timestate.Night},
	}

	for _, tc := range cases {
		got, ok := Resolve(tc.now, 22.0, 3.0)
		assert.True(t, ok)
		assert.Equal(t, tc.want, got, "now=%v", tc.now)
	}
}

func TestResolve_Degenerate(t *testing.T) {
	for _, now := range []float64{0, 5, 12, 23.9} {
		got, ok := Resolve(now, 5, 5)
		assert.False(t, ok)
		assert.Equal(t, timestate.Unknown, got)
	}
}

func TestResolve_Laws(t *testing.T) {
	hours := []float64{0, 0.5, 3, 5.9, 6, 11.25, 12, 17.75, 21.9, 22, 23.5}

	for _, sunrise := range hours {
		for _, sunset := range hours {
			if sunrise == sunset {
				continue
			}
			for _, now := range hours {
				got, ok := Resolve(now, sunrise, sunset)
				assert.True(t, ok)

				var day bool
				if sunrise < sunset {
					day = sunrise <= now && now < sunset
				} else {
					day = now >= sunrise || now < sunset
				}
				assert.Equal(t, day, got == timestate.Day,
					"now=%v sunrise=%v sunset=%v", now, sunrise, sunset)
			}
		}
	}
}

func TestResolve_ParisSolstice(t *testing.T) {
	got, ok := Resolve(12.0, 5.9, 21.9)
	assert.True(t, ok)
	assert.Equal(t, timestate.Day, got)
}

func TestHourOf(t *testing.T) {
	ts := time.Date(2024, 6, 21, 13, 30, 36, 0, time.UTC)
	assert.InDelta(t, 13.51, HourOf(ts), 1e-9)

	assert.Equal(t, 0.0, HourOf(time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC)))
}
