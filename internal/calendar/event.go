package calendar

import (
	"fmt"
	"time"

	"github.com/beekhof/shiftsync/internal/shift"

	gcal "google.golang.org/api/calendar/v3"
)

const (
	DefaultSummary  = "Work Shift"
	DefaultLocation = "Cumberland Farms"
	DefaultTimeZone = "America/New_York"
)

// EventTemplate holds the fixed parts of every shift event.
type EventTemplate struct {
	Summary  string
	Location string
	TimeZone string
	location *time.Location
}

// NewEventTemplate resolves timeZone and returns a template. Empty fields
// fall back to the defaults.
func NewEventTemplate(summary, location, timeZone string) (EventTemplate, error) {
	if summary == "" {
		summary = DefaultSummary
	}
	if timeZone == "" {
		timeZone = DefaultTimeZone
	}

	loc, err := shift.LoadLocation(timeZone)
	if err != nil {
		return EventTemplate{}, err
	}

	return EventTemplate{
		Summary:  summary,
		Location: location,
		TimeZone: timeZone,
		location: loc,
	}, nil
}

// Interval normalizes rec in the template's timezone.
func (t EventTemplate) Interval(rec shift.Record) (shift.Interval, error) {
	if t.location == nil {
		return shift.Interval{}, fmt.Errorf("event template has no timezone; use NewEventTemplate")
	}
	return shift.Normalize(rec, t.location)
}

// BuildEvent returns the Google Calendar event for one shift. It depends only
// on its inputs, so the same record always yields the same payload.
func BuildEvent(tmpl EventTemplate, rec shift.Record) (*gcal.Event, error) {
	interval, err := tmpl.Interval(rec)
	if err != nil {
		return nil, err
	}

	return &gcal.Event{
		Summary:  tmpl.Summary,
		Location: tmpl.Location,
		Start: &gcal.EventDateTime{
			DateTime: interval.Start.Format(time.RFC3339),
			TimeZone: tmpl.TimeZone,
		},
		End: &gcal.EventDateTime{
			DateTime: interval.End.Format(time.RFC3339),
			TimeZone: tmpl.TimeZone,
		},
		Reminders: &gcal.EventReminders{
			UseDefault: true,
		},
	}, nil
}
