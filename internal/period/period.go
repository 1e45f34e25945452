// Package period defines the bucketing used by usage ledgers and stats windows.
package period

import (
	"fmt"
	"strings"
	"time"
)

type Kind string

const (
	Total   Kind = "total"
	Daily   Kind = "daily"
	Weekly  Kind = "weekly"
	Monthly Kind = "monthly"
)

// Kinds lists every bucket a message is recorded into.
var Kinds = []Kind{Total, Daily, Weekly, Monthly}

func (k Kind) Valid() bool {
	switch k {
	case Total, Daily, Weekly, Monthly:
		return true
	}
	return false
}

// ParseKind accepts both bucket names and the short window names used by the HTTP API.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "total", "all":
		return Total, nil
	case "daily", "day", "today":
		return Daily, nil
	case "weekly", "week", "":
		return Weekly, nil
	case "monthly", "month":
		return Monthly, nil
	}
	return "", fmt.Errorf("unknown period %q", raw)
}

// Calendar normalizes instants to bucket starts. All starts are UTC midnights.
type Calendar struct {
	FirstDay time.Weekday
}

func NewCalendar(firstDay time.Weekday) Calendar {
	return Calendar{FirstDay: firstDay}
}

func (c Calendar) DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// WeekStart returns UTC midnight of the most recent FirstDay on or before t.
func (c Calendar) WeekStart(t time.Time) time.Time {
	day := c.DayStart(t)
	offset := (int(day.Weekday()) - int(c.FirstDay) + 7) % 7
	return day.AddDate(0, 0, -offset)
}

func (c Calendar) MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Start returns the bucket start for kind. Total has the zero start.
func (c Calendar) Start(kind Kind, t time.Time) time.Time {
	switch kind {
	case Daily:
		return c.DayStart(t)
	case Weekly:
		return c.WeekStart(t)
	case Monthly:
		return c.MonthStart(t)
	}
	return time.Time{}
}

// Window is a half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Current returns the window of kind that contains now. Total spans from the zero time to now.
func (c Calendar) Current(kind Kind, now time.Time) Window {
	start := c.Start(kind, now)
	return Window{Start: start, End: c.next(kind, start, now)}
}

// Previous returns the window immediately preceding w for kind.
func (c Calendar) Previous(kind Kind, w Window) Window {
	switch kind {
	case Daily:
		return Window{Start: w.Start.AddDate(0, 0, -1), End: w.Start}
	case Weekly:
		return Window{Start: w.Start.AddDate(0, 0, -7), End: w.Start}
	case Monthly:
		return Window{Start: w.Start.AddDate(0, -1, 0), End: w.Start}
	}
	return Window{}
}

func (c Calendar) next(kind Kind, start, now time.Time) time.Time {
	switch kind {
	case Daily:
		return start.AddDate(0, 0, 1)
	case Weekly:
		return start.AddDate(0, 0, 7)
	case Monthly:
		return start.AddDate(0, 1, 0)
	}
	return now.UTC().Add(time.Nanosecond)
}

// ParseWeekday maps an env value such as "sunday" or "1" to a weekday.
func ParseWeekday(raw string) (time.Weekday, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if raw == name || raw == name[:3] || raw == fmt.Sprint(int(d)) {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", raw)
}
