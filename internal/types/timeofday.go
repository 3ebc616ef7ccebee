package types

import (
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is seconds since midnight, used for entry and close windows.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS". The second return value is
// false for empty or malformed input.
func ParseTimeOfDay(value string) (TimeOfDay, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	parts := strings.Split(value, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, false
	}
	second := 0
	if len(parts) == 3 {
		second, err = strconv.Atoi(parts[2])
		if err != nil || second < 0 || second > 59 {
			return 0, false
		}
	}
	return TimeOfDay(hour*3600 + minute*60 + second), true
}

// TimeOfDayOf extracts the time of day from t in its own location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*3600 + t.Minute()*60 + t.Second())
}

// InWindow reports whether tod falls inside [start, end]. A nil bound means
// the window is open on that side. Windows where end < start wrap past
// midnight.
func (tod TimeOfDay) InWindow(start, end *TimeOfDay) bool {
	switch {
	case start == nil && end == nil:
		return true
	case start != nil && end == nil:
		return tod >= *start
	case start == nil && end != nil:
		return tod <= *end
	}
	if *end < *start {
		return tod >= *start || tod <= *end
	}
	return tod >= *start && tod <= *end
}
