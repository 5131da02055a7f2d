package tracker

import (
	"fmt"
	"time"
)

// Period is one of the supported report windows
type Period string

const (
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// Periods lists every supported period in display order
var Periods = []Period{PeriodToday, PeriodWeek, PeriodMonth}

// Valid reports whether p is a supported period
func (p Period) Valid() bool {
	switch p {
	case PeriodToday, PeriodWeek, PeriodMonth:
		return true
	}
	return false
}

// ParsePeriod validates a period name
func ParsePeriod(s string) (Period, error) {
	p := Period(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q (use today, week, or month)", ErrInvalidPeriod, s)
	}
	return p, nil
}

// Clock supplies the current instant
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock
var SystemClock Clock = ClockFunc(time.Now)

// Window is the half-open interval [Start, End)
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies in [Start, End). The zero time is never contained.
func (w Window) Contains(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	return !t.Before(w.Start) && t.Before(w.End)
}

// Calendar does civil-day arithmetic in a fixed UTC offset
type Calendar struct {
	clock Clock
	loc   *time.Location
}

// DefaultOffset is UTC+8
const DefaultOffset = 8 * time.Hour

// NewCalendar creates a calendar reading time from clock in the given offset
func NewCalendar(clock Clock, offset time.Duration) *Calendar {
	if clock == nil {
		clock = SystemClock
	}
	return &Calendar{
		clock: clock,
		loc:   time.FixedZone(zoneName(offset), int(offset/time.Second)),
	}
}

func zoneName(offset time.Duration) string {
	hours := int(offset / time.Hour)
	minutes := int((offset % time.Hour) / time.Minute)
	if minutes < 0 {
		minutes = -minutes
	}
	if minutes == 0 {
		return fmt.Sprintf("UTC%+d", hours)
	}
	return fmt.Sprintf("UTC%+d:%02d", hours, minutes)
}

// Now returns the current instant in the calendar's zone
func (c *Calendar) Now() time.Time {
	return c.clock.Now().In(c.loc)
}

// Location returns the fixed zone used for civil dates
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Midnight returns civil midnight of the day containing t
func (c *Calendar) Midnight(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}

// CivilDay formats the civil date of t as YYYY-MM-DD
func (c *Calendar) CivilDay(t time.Time) string {
	return t.In(c.loc).Format(time.DateOnly)
}

// DailyBatchKey names the daily recompute batch t belongs to. Instants less
// than grace after midnight still belong to the previous day's batch.
func (c *Calendar) DailyBatchKey(t time.Time, grace time.Duration) string {
	return c.CivilDay(t.In(c.loc).Add(-grace))
}

// Window computes the report window for p at the current instant
func (c *Calendar) Window(p Period) (Window, error) {
	return c.WindowAt(p, c.Now())
}

// WindowAt computes the report window for p as seen at now
func (c *Calendar) WindowAt(p Period, now time.Time) (Window, error) {
	today := c.Midnight(now)
	switch p {
	case PeriodToday:
		return Window{Start: today, End: now.In(c.loc)}, nil
	case PeriodWeek:
		return Window{Start: today.AddDate(0, 0, -7), End: today}, nil
	case PeriodMonth:
		return Window{Start: today.AddDate(0, 0, -30), End: today}, nil
	default:
		return Window{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, p)
	}
}
