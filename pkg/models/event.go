package models

import (
	"time"
)

// Operation is the canonical change-capture operation of an event.
type Operation string

const (
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
	OpRead   Operation = "READ"
)

// CanonicalEvent is the normalized in-memory representation of any raw
// trigger payload (CDC record, webhook call, manual invocation). It is never
// persisted; the wire-compatible JSON shape is part of the external contract.
type CanonicalEvent struct {
	Operation     Operation      `json:"operation,omitempty"`
	Table         string         `json:"table"`
	Before        map[string]any `json:"before"`
	After         map[string]any `json:"after"`
	ChangedFields []string       `json:"changedFields"`
	Timestamp     time.Time      `json:"timestamp"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Data returns the payload side of the event most callers filter on: After
// when present, otherwise Before (DELETE events).
func (e *CanonicalEvent) Data() map[string]any {
	if e.After != nil {
		return e.After
	}
	return e.Before
}
