package models

import (
	"time"
)

// StepKind identifies what a workflow step does when executed.
type StepKind string

const (
	StepKindAction    StepKind = "action"
	StepKindCondition StepKind = "condition"
	StepKindDelay     StepKind = "delay"
	StepKindLoop      StepKind = "loop"
)

// DefaultBranchKey is the branch label used for unconditional edges.
const DefaultBranchKey = "default"

// WorkflowDefinition is the mutable header of a workflow. The trigger, steps
// and edges live in immutable WorkflowVersion snapshots; the header only
// points at the latest one.
type WorkflowDefinition struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	Segment     string    `json:"segment,omitempty" db:"segment"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	LatestVerID string    `json:"latest_ver_id,omitempty" db:"latest_ver_id"`
	Variables   JSONMap   `json:"variables,omitempty" db:"variables"`
	CreatedBy   string    `json:"created_by,omitempty" db:"created_by"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// WorkflowVersion is an immutable snapshot of a workflow's trigger, steps and
// edges. Changing any of them produces a new version and re-points
// LatestVerID on the definition; the only permitted in-place write is
// backfilling RootStepID once steps exist.
type WorkflowVersion struct {
	ID         string    `json:"id" db:"id"`
	WorkflowID string    `json:"workflow_id" db:"workflow_id"`
	Version    int       `json:"version" db:"version"`
	IsLatest   bool      `json:"is_latest" db:"is_latest"`
	Definition JSONMap   `json:"definition,omitempty" db:"definition"`
	RootStepID string    `json:"root_step_id,omitempty" db:"root_step_id"`
	CreatedBy  string    `json:"created_by,omitempty" db:"created_by"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// WorkflowStep belongs to exactly one version. Action steps reference the
// action registry through ActionKey; Config may contain {{variable.*}} and
// {{trigger.*}} tokens resolved at execution time.
type WorkflowStep struct {
	ID          string    `json:"id" db:"id"`
	VersionID   string    `json:"version_id" db:"version_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	Kind        StepKind  `json:"kind" db:"kind"`
	ActionKey   string    `json:"action_key,omitempty" db:"action_key"`
	Config      JSONMap   `json:"config,omitempty" db:"config"`
	StepOrder   int       `json:"step_order" db:"step_order"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// WorkflowEdge is a directed connection between two steps of one version.
// BranchKey distinguishes alternative paths out of a conditional step; plain
// sequencing uses DefaultBranchKey. Edges are persisted for graph execution
// but the engine currently runs steps in StepOrder.
type WorkflowEdge struct {
	ID         string `json:"id" db:"id"`
	VersionID  string `json:"version_id" db:"version_id"`
	FromStepID string `json:"from_step_id" db:"from_step_id"`
	ToStepID   string `json:"to_step_id" db:"to_step_id"`
	BranchKey  string `json:"branch_key" db:"branch_key"`
}
