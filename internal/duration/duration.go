// Package duration parses the human durations accepted by moderation commands.
package duration

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

var units = map[string]int64{
	"s": 1, "sec": 1, "secs": 1, "second": 1, "seconds": 1,
	"m": 60, "min": 60, "mins": 60, "minute": 60, "minutes": 60,
	"h": 3600, "hr": 3600, "hrs": 3600, "hour": 3600, "hours": 3600,
	"d": 86400, "day": 86400, "days": 86400,
}

// Parse converts strings like "10m", "2 hours" or "45" into seconds.
// A bare number is minutes. ok is false for a missing number, an unknown unit or overflow.
func Parse(s string) (seconds int64, ok bool) {
	s = strings.ToLower(strings.TrimSpace(s))

	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}

	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0, false
	}

	unit := strings.TrimSpace(s[end:])
	if unit == "" {
		unit = "m"
	}
	mult, found := units[unit]
	if !found {
		return 0, false
	}
	if n > math.MaxInt64/mult {
		return 0, false
	}
	return n * mult, true
}

// Format renders seconds with the largest unit that divides them evenly
func Format(seconds int64) string {
	switch {
	case seconds >= 86400 && seconds%86400 == 0:
		return fmt.Sprintf("%dd", seconds/86400)
	case seconds >= 3600 && seconds%3600 == 0:
		return fmt.Sprintf("%dh", seconds/3600)
	case seconds >= 60 && seconds%60 == 0:
		return fmt.Sprintf("%dm", seconds/60)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
