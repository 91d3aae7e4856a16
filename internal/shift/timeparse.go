package shift

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// "<weekday-abbrev> <MM>/<DD>/<YY>", e.g. "Wed 06/05/24".
	datePattern = regexp.MustCompile(`^[A-Za-z]{3},?\s+(\d{2})/(\d{2})/(\d{2})$`)

	// "9:00 PM", "12 AM", "9:00PM".
	twelveHourPattern = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(AM|PM)$`)

	// "14:30", "9:05".
	twentyFourHourPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

// FormatError reports a date or time string that matches none of the
// recognized portal formats.
type FormatError struct {
	Field string // "date" or "time"
	Input string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unrecognized %s format: %q", e.Field, e.Input)
}

// Date is a calendar day without a time or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// ParseDate parses the portal's "Wed 06/05/24" date format. Two-digit years
// are taken to be in the 2000s. The weekday abbreviation is not checked
// against the date.
func ParseDate(text string) (Date, error) {
	m := datePattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return Date{}, &FormatError{Field: "date", Input: text}
	}

	month, _ := strconv.Atoi(m[1])
	day, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	year += 2000

	// Reject dates time.Date would silently roll over, e.g. 02/30.
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return Date{}, &FormatError{Field: "date", Input: text}
	}

	return Date{Year: year, Month: time.Month(month), Day: day}, nil
}

// CombineDateTime places a time-of-day string on date as local wall time in
// loc. Strings carrying AM/PM are read as 12-hour time, anything else as
// 24-hour HH:MM.
func CombineDateTime(date Date, timeText string, loc *time.Location) (time.Time, error) {
	hour, minute, err := parseClock(timeText)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year, date.Month, date.Day, hour, minute, 0, 0, loc), nil
}

func parseClock(text string) (hour, minute int, err error) {
	s := strings.ToUpper(strings.TrimSpace(text))
	if strings.Contains(s, "AM") || strings.Contains(s, "PM") {
		return parse12Hour(text, s)
	}
	return parse24Hour(text, s)
}

func parse12Hour(raw, s string) (int, int, error) {
	m := twelveHourPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, &FormatError{Field: "time", Input: raw}
	}

	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if hour < 1 || hour > 12 || minute > 59 {
		return 0, 0, &FormatError{Field: "time", Input: raw}
	}

	switch {
	case m[3] == "AM" && hour == 12:
		hour = 0
	case m[3] == "PM" && hour < 12:
		hour += 12
	}
	return hour, minute, nil
}

func parse24Hour(raw, s string) (int, int, error) {
	m := twentyFourHourPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, &FormatError{Field: "time", Input: raw}
	}

	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return 0, 0, &FormatError{Field: "time", Input: raw}
	}
	return hour, minute, nil
}
