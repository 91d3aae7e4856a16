package shift

import (
	"fmt"
	"time"
)

// Record is one worked row of the portal schedule. All three fields hold the
// text exactly as the portal rendered it.
type Record struct {
	Date  string `json:"date"`  // e.g. "Wed 06/05/24"
	Start string `json:"start"` // e.g. "9:00 AM" or "09:00"
	End   string `json:"end"`
}

// String renders the record the way status messages show it.
func (r Record) String() string {
	return fmt.Sprintf("%s %s-%s", r.Date, r.Start, r.End)
}

// Collection is a schedule in portal row order.
type Collection []Record

// Interval is the absolute start and end of one shift in a fixed timezone.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Normalize turns a record into an absolute interval in loc.
// A shift whose end is not after its start is treated as running past
// midnight and ends on the following day.
func Normalize(rec Record, loc *time.Location) (Interval, error) {
	date, err := ParseDate(rec.Date)
	if err != nil {
		return Interval{}, err
	}

	start, err := CombineDateTime(date, rec.Start, loc)
	if err != nil {
		return Interval{}, err
	}

	end, err := CombineDateTime(date, rec.End, loc)
	if err != nil {
		return Interval{}, err
	}

	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}

	return Interval{Start: start, End: end}, nil
}

// LoadLocation resolves an IANA timezone name. An empty name is an error,
// the caller is expected to apply its configured default first.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return nil, fmt.Errorf("timezone name is empty")
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", name, err)
	}
	return loc, nil
}
