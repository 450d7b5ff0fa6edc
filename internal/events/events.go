// Package events carries the engine's tagged event stream. Subscribers
// (the HTTP API's SSE feed, the optional NATS bridge, tests) receive
// StatusChanged, LogEmitted, and Completed variants in emission order.
package events

import (
	"time"

	"github.com/fathomlabs/diligence/internal/pipeline"
)

// Type identifies the kind of engine event.
type Type string

const (
	// TypeStatusChanged reports a step status transition.
	TypeStatusChanged Type = "status_changed"

	// TypeLogEmitted carries a structured log entry.
	TypeLogEmitted Type = "log_emitted"

	// TypeCompleted reports overall pipeline completion, exactly once per run.
	TypeCompleted Type = "completed"
)

// Event is one tagged variant on the engine's event stream. Exactly one of
// the payload groups is set, matching Type.
type Event struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// StatusChanged payload.
	Step    pipeline.StepKind   `json:"step,omitempty"`
	Status  pipeline.StepStatus `json:"status,omitempty"`
	Payload map[string]any      `json:"payload,omitempty"`
	Reason  pipeline.FailureKind `json:"reason,omitempty"`

	// LogEmitted payload.
	Log *pipeline.LogEntry `json:"log,omitempty"`

	// Completed payload.
	Report     *pipeline.Report     `json:"report,omitempty"`
	Logs       []pipeline.LogEntry  `json:"logs,omitempty"`
	StorageKey string               `json:"storageKey,omitempty"`
}

// StatusChanged builds a status transition event.
func StatusChanged(step pipeline.StepKind, status pipeline.StepStatus, payload map[string]any, reason pipeline.FailureKind) Event {
	return Event{
		Type:      TypeStatusChanged,
		Timestamp: time.Now(),
		Step:      step,
		Status:    status,
		Payload:   payload,
		Reason:    reason,
	}
}

// LogEmitted builds a log event.
func LogEmitted(entry pipeline.LogEntry) Event {
	return Event{
		Type:      TypeLogEmitted,
		Timestamp: time.Now(),
		Log:       &entry,
	}
}

// Completed builds the completion event.
func Completed(report *pipeline.Report, logs []pipeline.LogEntry, storageKey string) Event {
	return Event{
		Type:       TypeCompleted,
		Timestamp:  time.Now(),
		Report:     report,
		Logs:       logs,
		StorageKey: storageKey,
	}
}
