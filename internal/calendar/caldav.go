package calendar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/beekhof/shiftsync/internal/auth"
	"github.com/beekhof/shiftsync/internal/shift"

	"github.com/emersion/go-ical"
)

// CalDAVPublisher creates shift events on a CalDAV server such as iCloud.
// Each shift becomes its own <uid>.ics resource in the calendar collection.
type CalDAVPublisher struct {
	name         string
	serverURL    string
	calendarPath string
	template     EventTemplate
	httpClient   *http.Client
	now          func() time.Time
}

// NewCalDAVPublisher creates a CalDAV publisher.
// serverURL is the CalDAV server URL (e.g. "https://caldav.icloud.com") and
// calendarPath the calendar collection path on it, e.g.
// "/123456789/calendars/work/". iCloud calendars must be created in the
// Calendar app first.
func NewCalDAVPublisher(name, serverURL, calendarPath string, tmpl EventTemplate) *CalDAVPublisher {
	if name == "" {
		name = "CalDAV"
	}
	if !strings.HasSuffix(calendarPath, "/") {
		calendarPath += "/"
	}
	if !strings.HasPrefix(calendarPath, "/") {
		calendarPath = "/" + calendarPath
	}
	return &CalDAVPublisher{
		name:         name,
		serverURL:    strings.TrimSuffix(serverURL, "/"),
		calendarPath: calendarPath,
		template:     tmpl,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		now:          time.Now,
	}
}

// Name implements sync.Publisher.
func (p *CalDAVPublisher) Name() string {
	return p.name
}

// Publish PUTs a new event resource for rec.
func (p *CalDAVPublisher) Publish(ctx context.Context, cred *auth.Credential, rec shift.Record) error {
	uid := newUID()
	vevent, err := buildVEvent(p.template, rec, uid, p.now())
	if err != nil {
		return err
	}

	cal := newCalendar()
	cal.Children = append(cal.Children, vevent)

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode iCalendar: %w", err)
	}

	url := p.serverURL + p.calendarPath + uid + ".ics"
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, &buf)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/calendar; charset=utf-8")
	// Never overwrite an existing resource.
	req.Header.Set("If-None-Match", "*")
	cred.Apply(req)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return newRemoteError(rec, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		remote := newRemoteError(rec, errors.New(http.StatusText(resp.StatusCode)))
		remote.StatusCode = resp.StatusCode
		return remote
	}

	return nil
}
