package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a broadcast event.
type EventType string

const (
	EventSessionCreated   EventType = "session_created"
	EventSessionUpdated   EventType = "session_updated"
	EventAnalysisComplete EventType = "analysis_complete"
	EventPreviewReady     EventType = "preview_ready"
	EventWorkflowAdvanced EventType = "workflow_advanced"
	EventErrorFixed       EventType = "error_fixed"
	EventExecutionStarted EventType = "execution_started"
	EventCompleted        EventType = "completed"
	EventWorkflowError    EventType = "workflow_error"
)

// Event is the payload fanned out to session subscribers. Events are never
// revised or retracted; clients reconcile by revision and drop anything not
// newer than the last revision they applied.
type Event struct {
	Type      EventType      `json:"type"`
	SessionID uuid.UUID      `json:"sessionId"`
	Revision  int64          `json:"revision"`
	Meta      map[string]any `json:"meta,omitempty"`
	At        time.Time      `json:"at"`
}

// NewEvent stamps an event with the producing revision.
func NewEvent(t EventType, sessionID uuid.UUID, revision int64, meta map[string]any) Event {
	return Event{
		Type:      t,
		SessionID: sessionID,
		Revision:  revision,
		Meta:      meta,
		At:        time.Now(),
	}
}
