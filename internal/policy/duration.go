package policy

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// Duration is a wall-clock duration expressed in whole days, hours, or
// minutes ("7d", "12h", "30m"). JSON numbers are interpreted as minutes.
type Duration struct {
	time.Duration
}

var durationPattern = regexp.MustCompile(`^(\d+)([dhm])$`)

// ParseDuration parses a duration string in the policy grammar.
func ParseDuration(s string) (Duration, error) {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return Duration{}, fmt.Errorf("invalid duration format: %q", s)
	}

	var value int64
	if _, err := fmt.Sscanf(m[1], "%d", &value); err != nil {
		return Duration{}, fmt.Errorf("invalid duration value: %q", s)
	}

	switch m[2] {
	case "d":
		return Duration{time.Duration(value) * 24 * time.Hour}, nil
	case "h":
		return Duration{time.Duration(value) * time.Hour}, nil
	case "m":
		return Duration{time.Duration(value) * time.Minute}, nil
	}
	return Duration{}, fmt.Errorf("invalid duration unit: %q", s)
}

// String renders the canonical form: the largest unit that divides the
// duration evenly.
func (d Duration) String() string {
	switch {
	case d.Duration == 0:
		return "0m"
	case d.Duration%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", d.Duration/(24*time.Hour))
	case d.Duration%time.Hour == 0:
		return fmt.Sprintf("%dh", d.Duration/time.Hour)
	default:
		return fmt.Sprintf("%dm", d.Duration/time.Minute)
	}
}

// MarshalJSON renders the canonical duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts a duration string or a number of minutes.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		parsed, err := ParseDuration(s)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	}

	var minutes int64
	if err := json.Unmarshal(b, &minutes); err != nil {
		return fmt.Errorf("invalid duration: %s", string(b))
	}
	if minutes < 0 {
		return fmt.Errorf("invalid duration: %d minutes", minutes)
	}
	d.Duration = time.Duration(minutes) * time.Minute
	return nil
}
