package timer

import "encoding/json"

// Authority tells whether the schedule or the user decides the state
type Authority int

const (
	// Automatic means the schedule decides
	Automatic Authority = iota
	// ManualUntilMatch means the user forced the state. Automatic
	// evaluations are ignored until one yields the forced state.
	ManualUntilMatch
)

func (a Authority) String() string {
	switch a {
	case Automatic:
		return "automatic"
	case ManualUntilMatch:
		return "manual-until-match"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the authority as its name
func (a Authority) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}
