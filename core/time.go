package core

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - calendar date with no time zone
// =============================================================================

// Date is a Gregorian calendar date. Renewal arithmetic operates on dates,
// never on instants.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

// NewDate normalizes overflowing fields (Feb 30 becomes Mar 1/2).
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) midnight() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// In returns the instant d starts at in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Comparison
func (d Date) Before(o Date) bool        { return d.midnight().Before(o.midnight()) }
func (d Date) After(o Date) bool         { return d.midnight().After(o.midnight()) }
func (d Date) Equal(o Date) bool         { return d == o }
func (d Date) BeforeOrEqual(o Date) bool { return !d.After(o) }
func (d Date) AfterOrEqual(o Date) bool  { return !d.Before(o) }
func (d Date) IsZero() bool              { return d == Date{} }

// Arithmetic
func (d Date) AddDays(n int) Date { return DateOf(d.midnight().AddDate(0, 0, n)) }

// DaysUntil returns the number of calendar days from d to o (negative if o is earlier).
func (d Date) DaysUntil(o Date) int {
	return int(o.midnight().Sub(d.midnight()).Hours() / 24)
}

func (d Date) String() string { return d.midnight().Format(dateLayout) }

// DaysInMonth returns the length of the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// SameDay reports whether a and b fall on the same calendar day in loc.
// This is calendar equality, not a rolling 24h window.
func SameDay(a, b time.Time, loc *time.Location) bool {
	return DateOf(a.In(loc)) == DateOf(b.In(loc))
}

// StartOfDay returns midnight of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// =============================================================================
// CLOCK
// =============================================================================

// Clock supplies the current time. Rules never call time.Now directly.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in a fixed location.
type SystemClock struct {
	Location *time.Location
}

func NewSystemClock(loc *time.Location) SystemClock {
	if loc == nil {
		loc = time.Local
	}
	return SystemClock{Location: loc}
}

func (c SystemClock) Now() time.Time {
	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	return time.Now().In(loc)
}

// FixedClock always returns the same instant. Tests move it with Set/Advance.
type FixedClock struct {
	T time.Time
}

func NewFixedClock(t time.Time) *FixedClock { return &FixedClock{T: t} }

func (c *FixedClock) Now() time.Time          { return c.T }
func (c *FixedClock) Set(t time.Time)         { c.T = t }
func (c *FixedClock) Advance(d time.Duration) { c.T = c.T.Add(d) }

// Today returns the calendar date of the clock's current time.
func Today(c Clock) Date { return DateOf(c.Now()) }
