package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultInterval is the refresh interval given to subscriptions that omit one
const DefaultInterval = "1h"

var intervalUnits = map[byte]time.Duration{
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
}

// ParseInterval parses a coarse interval token such as "30m", "1h" or "1d".
func ParseInterval(token string) (time.Duration, error) {
	token = strings.ToLower(strings.TrimSpace(token))
	if len(token) < 2 {
		return 0, fmt.Errorf("invalid interval %q", token)
	}

	unit, ok := intervalUnits[token[len(token)-1]]
	if !ok {
		return 0, fmt.Errorf("invalid interval %q: unit must be one of m, h, d, w", token)
	}

	n, err := strconv.Atoi(token[:len(token)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid interval %q: count must be a positive integer", token)
	}

	return time.Duration(n) * unit, nil
}

// DueResult describes whether an entity's refresh interval has elapsed.
type DueResult struct {
	// IsDue indicates the entity should be refreshed now.
	IsDue bool
	// NextCheckTime is when the interval next elapses.
	NextCheckTime time.Time
	// Reason is a short explanation for logs.
	Reason string
}

// CheckDue reports whether interval has elapsed since lastCheck.
// A never-checked entity or an unparseable interval is always due.
func CheckDue(lastCheck *time.Time, interval string, now time.Time) DueResult {
	if lastCheck == nil {
		return DueResult{IsDue: true, NextCheckTime: now, Reason: "never checked"}
	}

	d, err := ParseInterval(interval)
	if err != nil {
		return DueResult{IsDue: true, NextCheckTime: now, Reason: "invalid interval, refreshing"}
	}

	next := lastCheck.Add(d)
	if !now.Before(next) {
		return DueResult{IsDue: true, NextCheckTime: now, Reason: "interval elapsed"}
	}
	return DueResult{
		IsDue:         false,
		NextCheckTime: next,
		Reason:        fmt.Sprintf("next check in %s", next.Sub(now).Round(time.Second)),
	}
}
