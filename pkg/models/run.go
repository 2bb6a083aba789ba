package models

import (
	"time"
)

// JSONMap is a JSONB-backed object column.
type JSONMap map[string]any

// RunStatus is the state machine position of a workflow run.
// PENDING -> RUNNING -> {SUCCESS | FAILED | CANCELLED | TIMEOUT}; terminal
// states are reached exactly once. CANCELLED and TIMEOUT are reserved for
// external supervisors, the engine itself never sets them.
type RunStatus string

const (
	RunStatusPending   RunStatus = "PENDING"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusSuccess   RunStatus = "SUCCESS"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusCancelled RunStatus = "CANCELLED"
	RunStatusTimeout   RunStatus = "TIMEOUT"
)

// IsTerminal reports whether the status admits no further transitions.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSuccess, RunStatusFailed, RunStatusCancelled, RunStatusTimeout:
		return true
	}
	return false
}

// ExecutionMode distinguishes how a run was initiated.
type ExecutionMode string

const (
	ExecutionModeSync  ExecutionMode = "sync"
	ExecutionModeAsync ExecutionMode = "async"
	ExecutionModeTest  ExecutionMode = "test"
)

// WorkflowRun is one row per execution attempt.
type WorkflowRun struct {
	ID            string        `json:"id" db:"id"`
	WorkflowID    string        `json:"workflow_id" db:"workflow_id"`
	VersionID     string        `json:"version_id" db:"version_id"`
	TriggerType   string        `json:"trigger_type,omitempty" db:"trigger_type"`
	ExecutionMode ExecutionMode `json:"execution_mode" db:"execution_mode"`
	Status        RunStatus     `json:"status" db:"status"`
	TotalSteps    int           `json:"total_steps" db:"total_steps"`
	CompletedSteps int          `json:"completed_steps" db:"completed_steps"`
	FailedSteps   int           `json:"failed_steps" db:"failed_steps"`
	SkippedSteps  int           `json:"skipped_steps" db:"skipped_steps"`
	FailReason    string        `json:"fail_reason,omitempty" db:"fail_reason"`
	ContextData   JSONMap       `json:"context_data,omitempty" db:"context_data"`
	RetryCount    int           `json:"retry_count" db:"retry_count"`
	MaxRetries    int           `json:"max_retries" db:"max_retries"`
	ExecutionTimeMs int64       `json:"execution_time_ms" db:"execution_time_ms"`
	StartedAt     time.Time     `json:"started_at" db:"started_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
}

// StepStatus is the state of one step within a run.
type StepStatus string

const (
	StepStatusPending StepStatus = "PENDING"
	StepStatusRunning StepStatus = "RUNNING"
	StepStatusSuccess StepStatus = "SUCCESS"
	StepStatusFailed  StepStatus = "FAILED"
	StepStatusSkipped StepStatus = "SKIPPED"
)

// StepRun is one row per (run, step) pair; the pair is unique.
type StepRun struct {
	ID           string     `json:"id" db:"id"`
	RunID        string     `json:"run_id" db:"run_id"`
	StepID       string     `json:"step_id" db:"step_id"`
	StepName     string     `json:"step_name" db:"step_name"`
	Status       StepStatus `json:"status" db:"status"`
	InputData    JSONMap    `json:"input_data,omitempty" db:"input_data"`
	OutputData   JSONMap    `json:"output_data,omitempty" db:"output_data"`
	ErrorMessage string     `json:"error_message,omitempty" db:"error_message"`
	StartedAt    time.Time  `json:"started_at" db:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// ExecutionContext is the run-scoped state handed to the engine and threaded
// through variable resolution: Variables accumulates step outputs, while
// TriggerData is the raw event that started the run.
type ExecutionContext struct {
	Variables     map[string]any `json:"variables,omitempty"`
	TriggerData   map[string]any `json:"trigger_data,omitempty"`
	TriggerType   string         `json:"trigger_type,omitempty"`
	ExecutionMode ExecutionMode  `json:"execution_mode,omitempty"`
}

// ExecutionResult is the structured outcome of a run, a step, or an action
// handler. Errors are carried as values; the engine never panics across an
// API boundary.
type ExecutionResult struct {
	Success bool           `json:"success"`
	Result  map[string]any `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
	RunID   string         `json:"run_id,omitempty"`
}

// TriggerOutcome summarizes one processed trigger event.
type TriggerOutcome struct {
	Success            bool     `json:"success"`
	WorkflowsTriggered int      `json:"workflows_triggered"`
	RunIDs             []string `json:"run_ids,omitempty"`
	Error              string   `json:"error,omitempty"`
}
