package sync

import (
	"log"

	"github.com/beekhof/shiftsync/internal/message"
)

// StatusKind classifies a status update.
type StatusKind string

const (
	StatusInfo     StatusKind = "info"
	StatusProgress StatusKind = "progress"
	StatusSuccess  StatusKind = "success"
	StatusError    StatusKind = "error"
)

// Status is a human-readable progress update for the UI collaborator.
type Status struct {
	Kind StatusKind `json:"level"`
	Text string     `json:"text"`
}

// Message converts s into its syncStatus wire form.
func (s Status) Message() message.Message {
	return message.Message{Kind: message.KindSyncStatus, Text: s.Text, Level: string(s.Kind)}
}

// Listener receives status updates. Notify must not block for long; it is
// called from the publishing loop.
type Listener interface {
	Notify(Status)
}

// ListenerFunc adapts a function to a Listener.
type ListenerFunc func(Status)

func (f ListenerFunc) Notify(s Status) {
	f(s)
}

// LogListener writes every status to the standard logger.
type LogListener struct{}

func (LogListener) Notify(s Status) {
	if s.Kind == StatusError {
		log.Printf("Warning: %s", s.Text)
		return
	}
	log.Println(s.Text)
}

// MultiListener fans a status out to every listener in order.
type MultiListener []Listener

func (m MultiListener) Notify(s Status) {
	for _, l := range m {
		if l != nil {
			l.Notify(s)
		}
	}
}
