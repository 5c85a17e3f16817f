package config

import (
	"fmt"
	"strings"
	"time"
)

const sunrisePrefix = "sunrise"

// Start is a parsed profile start: either a wall-clock time or an offset
// from local sunrise.
type Start struct {
	Sunrise bool
	Hour    int
	Minute  int
	Offset  time.Duration
}

// ParseStart parses "HH:MM", "sunrise" or "sunrise <duration>", e.g.
// "sunrise -20m".
func ParseStart(s string) (Start, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Start{}, fmt.Errorf("empty start")
	}

	if strings.HasPrefix(s, sunrisePrefix) {
		rest := strings.TrimSpace(strings.TrimPrefix(s, sunrisePrefix))
		if rest == "" {
			return Start{Sunrise: true}, nil
		}
		offset, err := time.ParseDuration(strings.ReplaceAll(rest, " ", ""))
		if err != nil {
			return Start{}, fmt.Errorf("parse sunrise offset: %w", err)
		}
		return Start{Sunrise: true, Offset: offset}, nil
	}

	t, err := time.Parse("15:04", s)
	if err != nil {
		return Start{}, fmt.Errorf("parse start %q: %w", s, err)
	}
	return Start{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (s Start) String() string {
	if !s.Sunrise {
		return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
	}
	if s.Offset == 0 {
		return sunrisePrefix
	}
	return fmt.Sprintf("%s %s", sunrisePrefix, s.Offset)
}
