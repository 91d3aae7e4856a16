package calendar

import (
	"time"

	"github.com/beekhof/shiftsync/internal/shift"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
)

const productID = "-//shiftsync//EN"

// newUID returns a globally unique iCalendar UID.
func newUID() string {
	return uuid.NewString() + "@shiftsync"
}

// newCalendar returns an empty VCALENDAR with the required properties.
func newCalendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	return cal
}

// buildVEvent converts one shift into a VEVENT with start and end carrying
// the template's TZID.
func buildVEvent(tmpl EventTemplate, rec shift.Record, uid string, now time.Time) (*ical.Component, error) {
	interval, err := tmpl.Interval(rec)
	if err != nil {
		return nil, err
	}

	vevent := ical.NewComponent(ical.CompEvent)
	vevent.Props.SetText(ical.PropUID, uid)
	vevent.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	vevent.Props.SetText(ical.PropSummary, tmpl.Summary)
	if tmpl.Location != "" {
		vevent.Props.SetText(ical.PropLocation, tmpl.Location)
	}
	vevent.Props.SetDateTime(ical.PropDateTimeStart, interval.Start)
	vevent.Props.SetDateTime(ical.PropDateTimeEnd, interval.End)

	return vevent, nil
}
