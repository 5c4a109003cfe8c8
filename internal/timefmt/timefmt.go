// Package timefmt holds the date and clock helpers shared by the roster,
// attendance and export code. Dates travel as YYYY-MM-DD strings.
package timefmt

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format of session dates.
const DateLayout = "2006-01-02"

// ErrInvalidDate is returned for dates that are not YYYY-MM-DD.
var ErrInvalidDate = errors.New("date must be YYYY-MM-DD")

var dayNames = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// Today formats now as a session date.
func Today(now time.Time) string {
	return now.Format(DateLayout)
}

// ParseDate parses a session date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// NormalizeDate returns today's date for an empty input and validates anything else.
func NormalizeDate(s string, now time.Time) (string, error) {
	if strings.TrimSpace(s) == "" {
		return Today(now), nil
	}
	t, err := ParseDate(s)
	if err != nil {
		return "", err
	}
	return t.Format(DateLayout), nil
}

// ShiftDate moves a date by the given number of days.
func ShiftDate(date string, days int) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, days).Format(DateLayout), nil
}

// FormatClock trims a "15:04:05" clock value to "15:04".
// Values that do not parse are returned trimmed but otherwise untouched.
func FormatClock(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04:05", "15:04", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("15:04")
		}
	}
	return s
}

// FormatTimeRange renders a session time range such as "09:00 - 10:30".
func FormatTimeRange(start, end string) string {
	start, end = FormatClock(start), FormatClock(end)
	switch {
	case start == "" && end == "":
		return ""
	case end == "":
		return start
	case start == "":
		return end
	}
	return start + " - " + end
}

// DayName returns the English weekday name for 0..6 with Sunday as 0.
func DayName(dayOfWeek int) string {
	if dayOfWeek < 0 || dayOfWeek > 6 {
		return ""
	}
	return dayNames[dayOfWeek]
}

// ParseDay accepts a weekday name (any case, full or three letters) and returns 0..6.
func ParseDay(name string) (int, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, d := range dayNames {
		full := strings.ToLower(d)
		if name == full || name == full[:3] {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", name)
}

// NextOccurrence returns the first date on or after from that falls on dayOfWeek.
func NextOccurrence(dayOfWeek int, from time.Time) (string, error) {
	if dayOfWeek < 0 || dayOfWeek > 6 {
		return "", fmt.Errorf("day of week out of range: %d", dayOfWeek)
	}
	delta := (dayOfWeek - int(from.Weekday()) + 7) % 7
	return from.AddDate(0, 0, delta).Format(DateLayout), nil
}
