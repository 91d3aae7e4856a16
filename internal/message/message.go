// Package message defines the typed messages passed between the extraction
// side, the sync dispatcher and the status surface.
package message

import "github.com/beekhof/shiftsync/internal/shift"

// Kind identifies a message on the bus.
type Kind string

const (
	// KindScheduleData carries the full extracted schedule. Sent once per
	// extraction.
	KindScheduleData Kind = "scheduleData"
	// KindSubmitMFA carries a one-time code to hand to the portal login page.
	KindSubmitMFA Kind = "submitMFA"
	// KindSyncStatus carries a progress update for the UI.
	KindSyncStatus Kind = "syncStatus"
)

// Message is the envelope exchanged between components. Only the fields
// relevant to Kind are set.
type Message struct {
	Kind     Kind             `json:"kind"`
	Schedule shift.Collection `json:"schedule,omitempty"`
	Code     string           `json:"code,omitempty"`
	Text     string           `json:"text,omitempty"`
	Level    string           `json:"level,omitempty"`
}

// ScheduleData builds a scheduleData message. A nil schedule is sent as an
// empty one so receivers never see a missing collection.
func ScheduleData(schedule shift.Collection) Message {
	if schedule == nil {
		schedule = shift.Collection{}
	}
	return Message{Kind: KindScheduleData, Schedule: schedule}
}

// SubmitMFA builds a submitMFA message.
func SubmitMFA(code string) Message {
	return Message{Kind: KindSubmitMFA, Code: code}
}
