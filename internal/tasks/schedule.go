package tasks

import (
	"fmt"
	"strings"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// shortcuts expand to five-field expressions before parsing, so NextRun
// has a single code path. @daily and friends fire at 08:00 rather than
// midnight.
var shortcuts = map[string]string{
	"@hourly":  "0 * * * *",
	"@daily":   "0 8 * * *",
	"@weekly":  "0 8 * * 1",
	"@monthly": "0 8 1 * *",
}

var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// NormalizeSchedule maps a shortcut to its cron expression. Anything
// else is returned trimmed.
func NormalizeSchedule(expr string) string {
	expr = strings.TrimSpace(expr)
	if mapped, ok := shortcuts[strings.ToLower(expr)]; ok {
		return mapped
	}
	return expr
}

// ValidateSchedule reports whether expr parses as a supported schedule.
func ValidateSchedule(expr string) error {
	if _, err := cronParser.Parse(NormalizeSchedule(expr)); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return nil
}

// NextRun returns the next activation strictly after from, computed in
// from's location so DST transitions advance correctly.
func NextRun(expr string, from time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(NormalizeSchedule(expr))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return sched.Next(from), nil
}
