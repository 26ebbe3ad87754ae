// Package timeutil provides day-granularity date utilities for ClassTrack.
// The attendance ledger compares calendar dates with the time-of-day stripped,
// so every date that enters the domain goes through DayOf first.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"time"
)

// DayOf strips the time-of-day component, returning midnight of the same
// calendar day in the time's own location.
func DayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameDay reports whether two times fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// BeforeDay reports whether a falls on an earlier calendar day than b.
func BeforeDay(a, b time.Time) bool {
	return DayOf(a).Before(DayOf(b))
}

// EndOfDay returns the last nanosecond of the day containing t.
func EndOfDay(t time.Time) time.Time {
	return DayOf(t).Add(24*time.Hour - time.Nanosecond)
}

// WeekdayName returns the English weekday label for a date
// ("Monday" ... "Sunday"), matching schedule weekday labels.
func WeekdayName(t time.Time) string {
	return t.Weekday().String()
}

// DaysBetween returns the number of whole calendar days from a to b.
// Negative when b is before a.
func DaysBetween(a, b time.Time) int {
	return int(DayOf(b).Sub(DayOf(a)).Hours() / 24)
}

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatTime is the standard time format (HH:MM).
	FormatTime = "15:04"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
	// FormatHumanDate is a human-readable format.
	FormatHumanDate = "2 January 2006"
)

// FormatDateStr formats a time as a date string (YYYY-MM-DD).
func FormatDateStr(t time.Time) string {
	return t.Format(FormatDate)
}

// ParseDate parses a YYYY-MM-DD date string into midnight UTC of that day.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(FormatDate, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timeutil: parse date %q: %w", s, err)
	}
	return t, nil
}

// MinutesOfDay returns the minutes elapsed since midnight for t.
func MinutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// ParseClock parses an "HH:MM" clock string into minutes since midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse(FormatTime, s)
	if err != nil {
		return 0, fmt.Errorf("timeutil: parse clock %q: %w", s, err)
	}
	return MinutesOfDay(t), nil
}

// ClockString formats minutes-since-midnight as "HH:MM".
func ClockString(minutes int) string {
	if minutes < 0 {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
