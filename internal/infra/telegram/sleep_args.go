package telegram

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var errBadSleepArg = errors.New("expected a duration like 1h30m, a time like 23:15, or an RFC3339 timestamp")

// parseSleepArg turns the /sleep argument into an absolute time. A clock time
// means its next occurrence in now's location.
func parseSleepArg(arg string, now time.Time) (time.Time, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return time.Time{}, errBadSleepArg
	}

	if d, err := time.ParseDuration(arg); err == nil {
		if d <= 0 {
			return time.Time{}, fmt.Errorf("duration must be positive, got %s", d)
		}
		return now.Add(d), nil
	}

	if t, err := time.ParseInLocation("15:04", arg, now.Location()); err == nil {
		until := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
		if !until.After(now) {
			until = until.AddDate(0, 0, 1)
		}
		return until, nil
	}

	if t, err := time.Parse(time.RFC3339, arg); err == nil {
		return t, nil
	}

	return time.Time{}, errBadSleepArg
}

// formatUntil renders t relative to now for chat replies.
func formatUntil(t, now time.Time) string {
	d := t.Sub(now).Round(time.Minute)
	if d <= 0 {
		return "now"
	}
	return fmt.Sprintf("in %s (%s)", strings.TrimSuffix(d.String(), "0s"), t.Format("2006-01-02 15:04 MST"))
}
