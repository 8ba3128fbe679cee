// Package period maps the dashboard period filter onto half-open time ranges.
package period

import (
	"strings"
	"time"
)

type Period string

const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
	Yearly  Period = "yearly"
)

// WeekStart is the fixed first day of a week, independent of locale.
const WeekStart = time.Sunday

// Parse normalizes raw. Empty or unknown values fall back to Daily.
func Parse(raw string) Period {
	switch p := Period(strings.ToLower(strings.TrimSpace(raw))); p {
	case Daily, Weekly, Monthly, Yearly:
		return p
	default:
		return Daily
	}
}

// Range returns [start, end) for the period containing now, evaluated in loc.
func Range(p Period, now time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	switch p {
	case Weekly:
		offset := (int(today.Weekday()) - int(WeekStart) + 7) % 7
		start := today.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7)
	case Monthly:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 1, 0)
	case Yearly:
		start := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(1, 0, 0)
	default:
		return today, today.AddDate(0, 0, 1)
	}
}

// Contains reports whether t falls in [start, end). A zero bound leaves that
// side open.
func Contains(start, end, t time.Time) bool {
	if !start.IsZero() && t.Before(start) {
		return false
	}
	return end.IsZero() || t.Before(end)
}

// Title is the capitalized label used in report rows, e.g. "Weekly".
func (p Period) Title() string {
	s := string(p)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
