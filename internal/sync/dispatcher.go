package sync

import (
	"context"
	"log"

	"github.com/beekhof/shiftsync/internal/message"
)

// MFARelay hands a one-time code to the portal login page.
type MFARelay interface {
	SubmitMFA(ctx context.Context, code string) error
}

// Dispatcher routes inbound messages. Schedules are published to every
// orchestrator in turn; MFA codes go to the relay without waiting.
type Dispatcher struct {
	orchestrators []*Orchestrator
	relay         MFARelay
	listener      Listener
	onResult      func(Result)
	verbose       bool
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMFARelay sets the relay used for submitMFA messages.
func WithMFARelay(relay MFARelay) DispatcherOption {
	return func(d *Dispatcher) { d.relay = relay }
}

// WithResultHandler registers fn to receive every run result.
func WithResultHandler(fn func(Result)) DispatcherOption {
	return func(d *Dispatcher) { d.onResult = fn }
}

// WithListener sets the listener for dispatcher-level status, such as a
// failed MFA relay.
func WithListener(l Listener) DispatcherOption {
	return func(d *Dispatcher) { d.listener = l }
}

// WithVerbose enables debug logging.
func WithVerbose(verbose bool) DispatcherOption {
	return func(d *Dispatcher) { d.verbose = verbose }
}

// NewDispatcher creates a Dispatcher over the given orchestrators.
func NewDispatcher(orchestrators []*Orchestrator, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		orchestrators: orchestrators,
		listener:      LogListener{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run consumes in until it is closed or ctx is done.
func (d *Dispatcher) Run(ctx context.Context, in <-chan message.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			d.handle(ctx, msg)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, msg message.Message) {
	switch msg.Kind {
	case message.KindScheduleData:
		if d.verbose {
			log.Printf("DEBUG: Received schedule with %d shifts", len(msg.Schedule))
		}
		for _, o := range d.orchestrators {
			result := o.Run(ctx, msg.Schedule)
			if d.onResult != nil {
				d.onResult(result)
			}
			if ctx.Err() != nil {
				return
			}
		}

	case message.KindSubmitMFA:
		if d.relay == nil {
			log.Printf("Warning: dropping MFA code, no portal session to relay it to")
			return
		}
		go func(code string) {
			if err := d.relay.SubmitMFA(ctx, code); err != nil {
				d.listener.Notify(Status{Kind: StatusError, Text: "Error: failed to submit MFA code: " + err.Error()})
				return
			}
			d.listener.Notify(Status{Kind: StatusInfo, Text: "MFA code submitted"})
		}(msg.Code)

	default:
		log.Printf("Warning: ignoring message of kind %q", msg.Kind)
	}
}
