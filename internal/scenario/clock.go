package scenario

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Clock is a time offset from the start of a plot, written as "H:MM",
// "H:MM:SS" or a Go duration such as "90m".
type Clock time.Duration

// ParseClock parses a clock string.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) == 1 {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("scenario: invalid time %q", s)
		}
		return Clock(d), nil
	}
	if len(parts) > 3 {
		return 0, fmt.Errorf("scenario: invalid time %q", s)
	}

	units := []time.Duration{time.Hour, time.Minute, time.Second}
	var total time.Duration
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || (i > 0 && (n > 59 || len(p) != 2)) {
			return 0, fmt.Errorf("scenario: invalid time %q", s)
		}
		total += time.Duration(n) * units[i]
	}
	return Clock(total), nil
}

// Duration returns c as a time.Duration.
func (c Clock) Duration() time.Duration { return time.Duration(c) }

func (c Clock) String() string {
	d := time.Duration(c)
	h, m, s := int(d/time.Hour), int(d%time.Hour/time.Minute), int(d%time.Minute/time.Second)
	if s == 0 {
		return fmt.Sprintf("%d:%02d", h, m)
	}
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}

func (c *Clock) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c Clock) MarshalYAML() (interface{}, error) {
	return c.String(), nil
}

func (c *Clock) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("scenario: time must be a string: %w", err)
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}
