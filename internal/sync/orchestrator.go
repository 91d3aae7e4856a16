// Package sync drives a shift collection through a calendar publisher and
// reports progress to listeners.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	gosync "sync"

	"github.com/beekhof/shiftsync/internal/auth"
	"github.com/beekhof/shiftsync/internal/shift"
)

// CredentialProvider acquires the credential for one run.
type CredentialProvider interface {
	Acquire(ctx context.Context) (*auth.Credential, error)
}

// Publisher creates one calendar event per shift.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, cred *auth.Credential, rec shift.Record) error
}

// State is the lifecycle position of an Orchestrator.
type State int

const (
	Idle State = iota
	Authenticating
	Publishing
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Authenticating:
		return "authenticating"
	case Publishing:
		return "publishing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Policy decides what happens when a single shift fails to publish.
type Policy int

const (
	// StopOnFirstError ends the run at the first failure. Later shifts are
	// never attempted.
	StopOnFirstError Policy = iota
	// ContinueOnError records the failure and moves on to the next shift.
	ContinueOnError
)

// ParsePolicy maps the configuration names "stop" and "continue" to a Policy.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "", "stop":
		return StopOnFirstError, nil
	case "continue":
		return ContinueOnError, nil
	default:
		return StopOnFirstError, fmt.Errorf("unknown failure policy %q (want stop or continue)", name)
	}
}

// Result summarizes one run.
type Result struct {
	Destination string
	State       State
	Published   int
	Failures    []error
	Err         error
}

// Orchestrator publishes shift collections to a single destination.
type Orchestrator struct {
	provider  CredentialProvider
	publisher Publisher
	listener  Listener
	policy    Policy

	mu    gosync.Mutex
	state State
}

// NewOrchestrator creates an Orchestrator. A nil listener discards status.
func NewOrchestrator(provider CredentialProvider, publisher Publisher, listener Listener, policy Policy) *Orchestrator {
	if listener == nil {
		listener = ListenerFunc(func(Status) {})
	}
	return &Orchestrator{
		provider:  provider,
		publisher: publisher,
		listener:  listener,
		policy:    policy,
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) notify(kind StatusKind, format string, args ...any) {
	o.listener.Notify(Status{Kind: kind, Text: fmt.Sprintf(format, args...)})
}

// Run publishes every shift in schedule, in order, one at a time. The
// credential is acquired once per run and only when there is something to
// publish.
func (o *Orchestrator) Run(ctx context.Context, schedule shift.Collection) Result {
	result := Result{Destination: o.publisher.Name()}

	if len(schedule) == 0 {
		o.notify(StatusInfo, "No shifts found in schedule")
		o.setState(Completed)
		result.State = Completed
		return result
	}

	o.notify(StatusProgress, "Processing %d shifts...", len(schedule))

	fail := func(err error) Result {
		o.notify(StatusError, "Error: %v", err)
		o.setState(Failed)
		result.State = Failed
		result.Err = err
		return result
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	o.setState(Authenticating)
	cred, err := o.provider.Acquire(ctx)
	if err != nil {
		var authErr *auth.AuthError
		if !errors.As(err, &authErr) {
			err = &auth.AuthError{Err: err}
		}
		return fail(err)
	}

	o.setState(Publishing)
	for _, rec := range schedule {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		if err := o.publisher.Publish(ctx, cred, rec); err != nil {
			if o.policy == StopOnFirstError {
				return fail(err)
			}
			log.Printf("Warning: %v", err)
			o.notify(StatusError, "Failed: %s: %v", rec, err)
			result.Failures = append(result.Failures, err)
			continue
		}

		result.Published++
		o.notify(StatusProgress, "Added: %s", rec)
	}

	if len(result.Failures) > 0 {
		o.notify(StatusError, "Synced %d of %d shifts, %d failed", result.Published, len(schedule), len(result.Failures))
		o.setState(Failed)
		result.State = Failed
		result.Err = errors.Join(result.Failures...)
		return result
	}

	o.notify(StatusSuccess, "Schedule synced to %s!", o.publisher.Name())
	o.setState(Completed)
	result.State = Completed
	return result
}
