package calendar

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/beekhof/shiftsync/internal/auth"
	"github.com/beekhof/shiftsync/internal/shift"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// GooglePublisher creates shift events through the Google Calendar API.
type GooglePublisher struct {
	name       string
	calendarID string
	template   EventTemplate
	options    []option.ClientOption

	// service is built for serviceCred on first use and reused while the
	// same credential keeps being passed in.
	mu          sync.Mutex
	service     *gcal.Service
	serviceCred *auth.Credential
}

// NewGooglePublisher creates a publisher writing to calendarID ("primary"
// when empty). Extra client options are appended after the credential's
// HTTP client, e.g. option.WithEndpoint in tests.
func NewGooglePublisher(name, calendarID string, tmpl EventTemplate, opts ...option.ClientOption) *GooglePublisher {
	if calendarID == "" {
		calendarID = "primary"
	}
	if name == "" {
		name = "Google Calendar"
	}
	return &GooglePublisher{
		name:       name,
		calendarID: calendarID,
		template:   tmpl,
		options:    opts,
	}
}

// Name implements sync.Publisher.
func (p *GooglePublisher) Name() string {
	return p.name
}

// Publish inserts one event for rec. Notifications are disabled.
func (p *GooglePublisher) Publish(ctx context.Context, cred *auth.Credential, rec shift.Record) error {
	event, err := BuildEvent(p.template, rec)
	if err != nil {
		return err
	}

	if cred == nil || cred.Token == nil {
		return errors.New("google calendar requires a bearer credential")
	}

	service, err := p.serviceFor(ctx, cred)
	if err != nil {
		return err
	}

	_, err = service.Events.Insert(p.calendarID, event).
		SendUpdates("none"). // Disable notifications
		Context(ctx).
		Do()
	if err != nil {
		return newRemoteError(rec, err)
	}

	return nil
}

// serviceFor returns the calendar service bound to cred, building it when
// cred differs from the one the cached service was built for.
func (p *GooglePublisher) serviceFor(ctx context.Context, cred *auth.Credential) (*gcal.Service, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.service != nil && p.serviceCred == cred {
		return p.service, nil
	}

	// The service outlives this call, so it must not inherit its cancellation.
	ctx = context.WithoutCancel(ctx)
	opts := append([]option.ClientOption{option.WithHTTPClient(cred.HTTPClient(ctx))}, p.options...)
	service, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	p.service = service
	p.serviceCred = cred
	return service, nil
}
