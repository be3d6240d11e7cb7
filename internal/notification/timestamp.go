package notification

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var relativePattern = regexp.MustCompile(`(?i)^(\d+)\s+(second|minute|hour|day)s?\s+ago$`)

// absoluteLayouts are tried in order for anything that is not relative.
var absoluteLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04",
	"02/01/2006",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006",
	time.RFC1123Z,
	time.RFC1123,
}

// ParseTimestamp resolves a display timestamp to an instant. Relative strings
// such as "5 minutes ago" are taken as now minus the offset.
func ParseTimestamp(s string, now time.Time) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if m := relativePattern.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, false
		}
		var unit time.Duration
		switch strings.ToLower(m[2]) {
		case "second":
			unit = time.Second
		case "minute":
			unit = time.Minute
		case "hour":
			unit = time.Hour
		case "day":
			unit = 24 * time.Hour
		}
		return now.Add(-time.Duration(n) * unit), true
	}

	for _, layout := range absoluteLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// RelativeString renders t the way ParseTimestamp reads it back.
func RelativeString(t, now time.Time) string {
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return plural(int(d/time.Second), "second")
	case d < time.Hour:
		return plural(int(d/time.Minute), "minute")
	case d < 24*time.Hour:
		return plural(int(d/time.Hour), "hour")
	default:
		return plural(int(d/(24*time.Hour)), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
