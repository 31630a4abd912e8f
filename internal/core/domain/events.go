package domain

import (
	"time"
)

// WorkflowEvent records one controller operation against the open connection.
// Events are published to an EventPublisher for decoupled consumers such as the
// local activity journal.
type WorkflowEvent struct {
	Type         WorkflowEventType `json:"type"`
	ConnectionID string            `json:"connection_id"`
	RedlineID    string            `json:"redline_id,omitempty"`
	Outcome      EventOutcome      `json:"outcome"`
	ErrorKind    ErrorKind         `json:"error_kind,omitempty"`
	Message      string            `json:"message,omitempty"`
	Status       string            `json:"status,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// WorkflowEventType identifies the operation an event describes.
type WorkflowEventType string

const (
	EventConnectionOpened     WorkflowEventType = "connection.opened"
	EventParametersCommitted  WorkflowEventType = "connection.parameters_committed"
	EventConnectionValidated  WorkflowEventType = "connection.validated"
	EventConnectionExported   WorkflowEventType = "connection.exported"
	EventRFIDrafted           WorkflowEventType = "connection.rfi_drafted"
	EventRedlineUploaded      WorkflowEventType = "redline.uploaded"
	EventRedlineInterpreted   WorkflowEventType = "redline.interpreted"
	EventRedlineApproved      WorkflowEventType = "redline.approved"
	EventRedlineRejected      WorkflowEventType = "redline.rejected"
	EventRedlinesRefreshed    WorkflowEventType = "redline.refreshed"
	EventUnexpectedTransition WorkflowEventType = "connection.unexpected_transition"
)

// EventOutcome is whether the operation completed.
type EventOutcome string

const (
	OutcomeOK     EventOutcome = "ok"
	OutcomeFailed EventOutcome = "failed"
)

// ActivityRecord is a journaled WorkflowEvent.
type ActivityRecord struct {
	ID           string            `json:"id" db:"id"`
	ConnectionID string            `json:"connection_id" db:"connection_id"`
	RedlineID    string            `json:"redline_id,omitempty" db:"redline_id"`
	EventType    WorkflowEventType `json:"event_type" db:"event_type"`
	Outcome      EventOutcome      `json:"outcome" db:"outcome"`
	ErrorKind    ErrorKind         `json:"error_kind,omitempty" db:"error_kind"`
	Message      string            `json:"message,omitempty" db:"message"`
	Status       string            `json:"status,omitempty" db:"status"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
}
