// Package dates holds calendar helpers for date-only values. A date is a
// time.Time at midnight UTC carrying the calendar day of its source.
package dates

import (
	"time"

	"github.com/jinzhu/now"
)

// Layout is the wire format for dates
const Layout = "2006-01-02"

// Day returns the calendar day of t as a date
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current date in loc
func Today(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return Day(time.Now().In(loc))
}

// Parse reads a YYYY-MM-DD date
func Parse(s string) (time.Time, error) {
	return time.Parse(Layout, s)
}

// DaysBetween returns the whole days from a to b (negative when b is before a)
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// MonthStart returns the first day of the month containing t
func MonthStart(t time.Time) time.Time {
	return now.With(Day(t)).BeginningOfMonth()
}

// MonthEnd returns the last day of the month containing t
func MonthEnd(t time.Time) time.Time {
	return Day(now.With(Day(t)).EndOfMonth())
}

// ClampDay returns year/month/day, moving day back to the last valid day of
// the month when the month is shorter.
func ClampDay(year int, month time.Month, day int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := MonthEnd(first).Day()
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
