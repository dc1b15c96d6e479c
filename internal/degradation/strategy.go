package degradation

import "fmt"

// DegradationLevel represents the severity of degradation
type DegradationLevel int

const (
	LevelNone     DegradationLevel = iota
	LevelMinor                     // up to a quarter of stages failed
	LevelModerate                  // up to half of stages failed
	LevelSevere                    // more than half of stages failed
)

func (d DegradationLevel) String() string {
	switch d {
	case LevelNone:
		return "none"
	case LevelMinor:
		return "minor"
	case LevelModerate:
		return "moderate"
	case LevelSevere:
		return "severe"
	default:
		return "unknown"
	}
}

// MarshalText renders the level by name in JSON.
func (d DegradationLevel) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses a level name written by MarshalText.
func (d *DegradationLevel) UnmarshalText(text []byte) error {
	for _, l := range []DegradationLevel{LevelNone, LevelMinor, LevelModerate, LevelSevere} {
		if l.String() == string(text) {
			*d = l
			return nil
		}
	}
	return fmt.Errorf("unknown degradation level %q", text)
}

// Classify grades a request by the share of requested data stages that
// did not return data.
func Classify(failed, total int) DegradationLevel {
	if total <= 0 || failed <= 0 {
		return LevelNone
	}
	ratio := float64(failed) / float64(total)
	switch {
	case ratio <= 0.25:
		return LevelMinor
	case ratio <= 0.5:
		return LevelModerate
	default:
		return LevelSevere
	}
}
