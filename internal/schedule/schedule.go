// Package schedule maps the current hour and the sunrise/sunset hours onto a
// day or night state.
package schedule

import (
	"time"

	"nightthemeswitcher/internal/timestate"
)

// Resolve decides whether nowHour falls in the day window [sunrise, sunset).
// When sunset is numerically before sunrise, the day window wraps around
// midnight.
//
// Identical sunrise and sunset times carry no information: Resolve returns
// (Unknown, false) and the caller keeps whatever state it already holds.
func Resolve(nowHour, sunrise, sunset float64) (timestate.State, bool) {
	switch {
	case sunrise < sunset:
		if nowHour >= sunrise && nowHour < sunset {
			return timestate.Day, true
		}
		return timestate.Night, true
	case sunrise > sunset:
		if nowHour >= sunrise || nowHour < sunset {
			return timestate.Day, true
		}
		return timestate.Night, true
	default:
		return timestate.Unknown, false
	}
}

// HourOf returns the local time of day of t as decimal hours
func HourOf(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
}
