package settings

import (
	"fmt"
	"math"
)

// Type represents the type of a settings key
type Type string

const (
	TypeBool   Type = "bool"
	TypeDouble Type = "double"
	TypeString Type = "string"
	TypePoint  Type = "point"
)

// Point is a pair of doubles, stored as (dd) in GSettings
type Point struct {
	Latitude  float64 `yaml:"latitude" json:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude"`
}

// Key defines metadata for a settings key
type Key struct {
	Name    string      // GSettings key name (e.g., "manual-schedule")
	Type    Type        // bool, double, string, point
	Default interface{} // Default value
	Min     float64     // Lower bound for doubles, used when Min < Max
	Max     float64     // Upper bound for doubles
	Choices []string    // Allowed values for enumerated strings
}

// Schema groups the keys of one settings object
type Schema struct {
	ID   string // GSettings schema ID
	Name string // Section name in the settings file
	Keys []Key
}

// Key looks up a key by name
func (s *Schema) Key(name string) (Key, bool) {
	for _, k := range s.Keys {
		if k.Name == name {
			return k, true
		}
	}
	return Key{}, false
}

// Defaults returns the default value of every key
func (s *Schema) Defaults() map[string]interface{} {
	values := make(map[string]interface{}, len(s.Keys))
	for _, k := range s.Keys {
		values[k.Name] = k.Default
	}
	return values
}

// Coerce converts a decoded value to the key type and checks its range.
// Integers are accepted for doubles and maps or pairs for points, which is
// what YAML decoding produces.
func (k Key) Coerce(value interface{}) (interface{}, error) {
	switch k.Type {
	case TypeBool:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("key %s: expected bool, got %T", k.Name, value)
		}
		return b, nil

	case TypeDouble:
		f, err := toFloat(value)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", k.Name, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("key %s: %v is not a finite number", k.Name, f)
		}
		if k.Min < k.Max && (f < k.Min || f > k.Max) {
			return nil, fmt.Errorf("key %s: %v out of range [%v, %v]", k.Name, f, k.Min, k.Max)
		}
		return f, nil

	case TypeString:
		str, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("key %s: expected string, got %T", k.Name, value)
		}
		if len(k.Choices) > 0 && !contains(k.Choices, str) {
			return nil, fmt.Errorf("key %s: invalid choice %q", k.Name, str)
		}
		return str, nil

	case TypePoint:
		return toPoint(k.Name, value)

	default:
		return nil, fmt.Errorf("key %s: unknown type %s", k.Name, k.Type)
	}
}

func toFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", value)
	}
}

func toPoint(name string, value interface{}) (Point, error) {
	switch v := value.(type) {
	case Point:
		return v, nil
	case map[string]interface{}:
		lat, err := toFloat(v["latitude"])
		if err != nil {
			return Point{}, fmt.Errorf("key %s: latitude: %w", name, err)
		}
		lon, err := toFloat(v["longitude"])
		if err != nil {
			return Point{}, fmt.Errorf("key %s: longitude: %w", name, err)
		}
		return Point{Latitude: lat, Longitude: lon}, nil
	case []interface{}:
		if len(v) != 2 {
			return Point{}, fmt.Errorf("key %s: expected 2 coordinates, got %d", name, len(v))
		}
		lat, err := toFloat(v[0])
		if err != nil {
			return Point{}, fmt.Errorf("key %s: latitude: %w", name, err)
		}
		lon, err := toFloat(v[1])
		if err != nil {
			return Point{}, fmt.Errorf("key %s: longitude: %w", name, err)
		}
		return Point{Latitude: lat, Longitude: lon}, nil
	default:
		return Point{}, fmt.Errorf("key %s: expected point, got %T", name, value)
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
