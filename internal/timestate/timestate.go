// Package timestate defines the day/night state shared by the timer and the
// switchers.
package timestate

import "fmt"

// State is the time of day as seen by the theme switchers
type State string

const (
	Unknown State = "unknown"
	Day     State = "day"
	Night   State = "night"
)

// Color scheme values of org.gnome.desktop.interface color-scheme
const (
	ColorSchemeDefault     = "default"
	ColorSchemePreferDark  = "prefer-dark"
	ColorSchemePreferLight = "prefer-light"
)

// Opposite returns Night for Day and Day for anything else
func (s State) Opposite() State {
	if s == Night {
		return Day
	}
	return Night
}

// ColorScheme returns the color-scheme value written for this state
func (s State) ColorScheme() string {
	if s == Night {
		return ColorSchemePreferDark
	}
	return ColorSchemeDefault
}

// FromColorScheme maps a color-scheme value to a state.
// Only prefer-dark means night.
func FromColorScheme(scheme string) State {
	if scheme == ColorSchemePreferDark {
		return Night
	}
	return Day
}

// Parse checks if a string is a valid state
func Parse(s string) (State, error) {
	switch s {
	case string(Unknown):
		return Unknown, nil
	case string(Day):
		return Day, nil
	case string(Night):
		return Night, nil
	default:
		return "", fmt.Errorf("invalid time state: %s", s)
	}
}
