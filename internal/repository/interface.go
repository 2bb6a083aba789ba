// Package repository defines the persistence contracts for the workflow
// engine and their Postgres and in-memory implementations.
package repository

import (
	"context"
	"errors"

	"flowhook/backend/pkg/models"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// WorkflowStore persists workflow headers and their immutable versions.
type WorkflowStore interface {
	GetWorkflow(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	ListWorkflows(ctx context.Context) ([]*models.WorkflowDefinition, error)
	CreateWorkflow(ctx context.Context, wf *models.WorkflowDefinition) error
	SaveWorkflow(ctx context.Context, wf *models.WorkflowDefinition) error

	// CreateVersion inserts a new immutable version with its steps and edges,
	// marks it latest and re-points the workflow header.
	CreateVersion(ctx context.Context, ver *models.WorkflowVersion, steps []*models.WorkflowStep, edges []*models.WorkflowEdge) error
	GetVersion(ctx context.Context, id string) (*models.WorkflowVersion, error)
	ListVersions(ctx context.Context, workflowID string) ([]*models.WorkflowVersion, error)
	// SetRootStep backfills root_step_id once; the only in-place version write.
	SetRootStep(ctx context.Context, versionID, stepID string) error
	ListSteps(ctx context.Context, versionID string) ([]*models.WorkflowStep, error)
	ListEdges(ctx context.Context, versionID string) ([]*models.WorkflowEdge, error)
}

// RegistryStore reads and writes the trigger and action catalogs.
type RegistryStore interface {
	GetTriggerByKey(ctx context.Context, key string) (*models.TriggerRegistry, error)
	ListTriggers(ctx context.Context) ([]*models.TriggerRegistry, error)
	CreateTrigger(ctx context.Context, t *models.TriggerRegistry) error

	GetActionByKey(ctx context.Context, key string) (*models.ActionRegistry, error)
	ListActions(ctx context.Context) ([]*models.ActionRegistry, error)
	CreateAction(ctx context.Context, a *models.ActionRegistry) error
}

// SubscriptionStore persists workflow/trigger bindings.
type SubscriptionStore interface {
	ListActiveByTriggerKey(ctx context.Context, triggerKey string) ([]*models.Subscription, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Subscription, error)
	CreateSubscription(ctx context.Context, s *models.Subscription) error
	SaveSubscription(ctx context.Context, s *models.Subscription) error
}

// RunStore persists workflow runs and their step runs. A run is written only
// by the engine invocation that created it until it reaches a terminal state.
type RunStore interface {
	CreateRun(ctx context.Context, run *models.WorkflowRun) error
	SaveRun(ctx context.Context, run *models.WorkflowRun) error
	GetRun(ctx context.Context, id string) (*models.WorkflowRun, error)
	ListRuns(ctx context.Context, workflowID string, limit int) ([]*models.WorkflowRun, error)

	CreateStepRun(ctx context.Context, sr *models.StepRun) error
	SaveStepRun(ctx context.Context, sr *models.StepRun) error
	ListStepRuns(ctx context.Context, runID string) ([]*models.StepRun, error)
}

// TaskStore persists tasks created by the built-in task actions.
type TaskStore interface {
	CreateTask(ctx context.Context, task *models.Task) error
	SaveTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	DeleteTask(ctx context.Context, id string) error
	ListTasks(ctx context.Context, entityType string, limit int) ([]*models.Task, error)
}

// Repository aggregates all stores; both the Postgres and the in-memory
// implementations satisfy it.
type Repository interface {
	WorkflowStore
	RegistryStore
	SubscriptionStore
	RunStore
	TaskStore
}
