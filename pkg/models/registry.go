package models

import (
	"time"
)

// EventSource identifies where a trigger's events originate.
type EventSource string

const (
	EventSourceWebhook  EventSource = "webhook"
	EventSourceDebezium EventSource = "debezium"
	EventSourcePoll     EventSource = "poll"
	EventSourceManual   EventSource = "manual"
)

// ExecutionType identifies how an action registry entry is executed.
type ExecutionType string

const (
	ExecutionTypeInternal    ExecutionType = "internal_function"
	ExecutionTypeExternalAPI ExecutionType = "external_api"
	ExecutionTypeConditional ExecutionType = "conditional"
)

// TriggerRegistry is a catalog entry describing one kind of trigger a
// workflow can subscribe to.
type TriggerRegistry struct {
	ID           string      `json:"id" db:"id"`
	Key          string      `json:"key" db:"key"`
	Name         string      `json:"name" db:"name"`
	Description  string      `json:"description,omitempty" db:"description"`
	EventSource  EventSource `json:"event_source" db:"event_source"`
	Properties   JSONMap     `json:"properties,omitempty" db:"properties"`
	FilterSchema *FilterNode `json:"filter_schema,omitempty" db:"filter_schema"`
	IsActive     bool        `json:"is_active" db:"is_active"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
}

// ActionRegistry is a catalog entry describing one kind of action a workflow
// step can invoke.
type ActionRegistry struct {
	ID            string        `json:"id" db:"id"`
	Key           string        `json:"key" db:"key"`
	Name          string        `json:"name" db:"name"`
	Description   string        `json:"description,omitempty" db:"description"`
	Category      string        `json:"category,omitempty" db:"category"`
	ExecutionType ExecutionType `json:"execution_type" db:"execution_type"`
	Properties    JSONMap       `json:"properties,omitempty" db:"properties"`
	IsActive      bool          `json:"is_active" db:"is_active"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}

// Subscription binds one workflow to one trigger key. FilterConditions is an
// optional filter tree evaluated against the raw event data, independent of
// the trigger's own filter schema; nil means "always match".
type Subscription struct {
	ID               string      `json:"id" db:"id"`
	WorkflowID       string      `json:"workflow_id" db:"workflow_id"`
	TriggerKey       string      `json:"trigger_key" db:"trigger_key"`
	FilterConditions *FilterNode `json:"filter_conditions,omitempty" db:"filter_conditions"`
	IsActive         bool        `json:"is_active" db:"is_active"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
}
