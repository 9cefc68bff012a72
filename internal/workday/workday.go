// Package workday converts leave date ranges into chargeable day counts.
package workday

import (
	"errors"
	"strings"
	"time"
)

// DateLayout is the calendar date format used across the portal.
const DateLayout = "2006-01-02"

var ErrInvalidDate = errors.New("invalid calendar date")

// ParseDate parses a calendar date. Plain dates and RFC 3339 timestamps are
// accepted; the time of day is dropped.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// ChargeableDays returns the number of days a leave request consumes. A
// positive manualOverride is returned as is. Otherwise Monday to Friday days
// in the inclusive range are counted; an unparseable or inverted range
// yields 0.
func ChargeableDays(start, end string, manualOverride int) int {
	if manualOverride > 0 {
		return manualOverride
	}

	from, err := ParseDate(start)
	if err != nil {
		return 0
	}
	to, err := ParseDate(end)
	if err != nil {
		return 0
	}
	return CountWeekdays(from, to)
}

// CountWeekdays counts Monday to Friday dates in [from, to].
func CountWeekdays(from, to time.Time) int {
	from = dateOf(from)
	to = dateOf(to)
	if to.Before(from) {
		return 0
	}

	total := int(to.Sub(from).Hours()/24) + 1
	count := (total / 7) * 5

	day := from.Weekday()
	for i := 0; i < total%7; i++ {
		if day != time.Saturday && day != time.Sunday {
			count++
		}
		day = (day + 1) % 7
	}
	return count
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
