package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"flowhook/backend/pkg/models"
)

const runColumns = `id, workflow_id, version_id, trigger_type, execution_mode, status,
	total_steps, completed_steps, failed_steps, skipped_steps, fail_reason, context_data,
	retry_count, max_retries, execution_time_ms, started_at, completed_at`

func scanRun(row pgx.Row) (*models.WorkflowRun, error) {
	var run models.WorkflowRun
	err := row.Scan(&run.ID, &run.WorkflowID, &run.VersionID, &run.TriggerType,
		&run.ExecutionMode, &run.Status, &run.TotalSteps, &run.CompletedSteps,
		&run.FailedSteps, &run.SkippedSteps, &run.FailReason, &run.ContextData,
		&run.RetryCount, &run.MaxRetries, &run.ExecutionTimeMs, &run.StartedAt, &run.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// CreateRun inserts a workflow run.
func (s *PostgresStore) CreateRun(ctx context.Context, run *models.WorkflowRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO workflow_runs (id, workflow_id, version_id, trigger_type, execution_mode, status,
		 total_steps, completed_steps, failed_steps, skipped_steps, fail_reason, context_data,
		 retry_count, max_retries, execution_time_ms, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		run.ID, run.WorkflowID, run.VersionID, run.TriggerType, run.ExecutionMode, run.Status,
		run.TotalSteps, run.CompletedSteps, run.FailedSteps, run.SkippedSteps, run.FailReason,
		run.ContextData, run.RetryCount, run.MaxRetries, run.ExecutionTimeMs, run.StartedAt, run.CompletedAt)
	return err
}

// SaveRun updates a workflow run.
func (s *PostgresStore) SaveRun(ctx context.Context, run *models.WorkflowRun) error {
	_, err := s.db.Exec(ctx,
		`UPDATE workflow_runs SET status = $1, total_steps = $2, completed_steps = $3,
		 failed_steps = $4, skipped_steps = $5, fail_reason = $6, context_data = $7,
		 retry_count = $8, max_retries = $9, execution_time_ms = $10, completed_at = $11
		 WHERE id = $12`,
		run.Status, run.TotalSteps, run.CompletedSteps, run.FailedSteps, run.SkippedSteps,
		run.FailReason, run.ContextData, run.RetryCount, run.MaxRetries, run.ExecutionTimeMs,
		run.CompletedAt, run.ID)
	return err
}

// GetRun retrieves a workflow run.
func (s *PostgresStore) GetRun(ctx context.Context, id string) (*models.WorkflowRun, error) {
	run, err := scanRun(s.db.QueryRow(ctx,
		`SELECT `+runColumns+` FROM workflow_runs WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "run "+id)
	}
	return run, nil
}

// ListRuns returns a workflow's runs, newest first. workflowID may be empty
// to list across workflows.
func (s *PostgresStore) ListRuns(ctx context.Context, workflowID string, limit int) ([]*models.WorkflowRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+runColumns+` FROM workflow_runs
		 WHERE ($1 = '' OR workflow_id = $1::uuid) ORDER BY started_at DESC LIMIT $2`,
		workflowID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.WorkflowRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CreateStepRun inserts a step run.
func (s *PostgresStore) CreateStepRun(ctx context.Context, sr *models.StepRun) error {
	if sr.ID == "" {
		sr.ID = uuid.New().String()
	}
	if sr.StartedAt.IsZero() {
		sr.StartedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO step_runs (id, run_id, step_id, step_name, status, input_data, output_data, error_message, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sr.ID, sr.RunID, sr.StepID, sr.StepName, sr.Status, sr.InputData, sr.OutputData, sr.ErrorMessage, sr.StartedAt, sr.CompletedAt)
	return err
}

// SaveStepRun updates a step run.
func (s *PostgresStore) SaveStepRun(ctx context.Context, sr *models.StepRun) error {
	_, err := s.db.Exec(ctx,
		`UPDATE step_runs SET status = $1, input_data = $2, output_data = $3, error_message = $4, completed_at = $5
		 WHERE id = $6`,
		sr.Status, sr.InputData, sr.OutputData, sr.ErrorMessage, sr.CompletedAt, sr.ID)
	return err
}

// ListStepRuns returns the step runs of one run in start order.
func (s *PostgresStore) ListStepRuns(ctx context.Context, runID string) ([]*models.StepRun, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, run_id, step_id, step_name, status, input_data, output_data, error_message, started_at, completed_at
		 FROM step_runs WHERE run_id = $1 ORDER BY started_at`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stepRuns []*models.StepRun
	for rows.Next() {
		var sr models.StepRun
		err := rows.Scan(&sr.ID, &sr.RunID, &sr.StepID, &sr.StepName, &sr.Status,
			&sr.InputData, &sr.OutputData, &sr.ErrorMessage, &sr.StartedAt, &sr.CompletedAt)
		if err != nil {
			return nil, err
		}
		stepRuns = append(stepRuns, &sr)
	}
	return stepRuns, rows.Err()
}

// CreateTask inserts a task.
func (s *PostgresStore) CreateTask(ctx context.Context, task *models.Task) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	task.CreatedAt, task.UpdatedAt = now, now
	_, err := s.db.Exec(ctx,
		`INSERT INTO tasks (id, title, description, status, entity_type, entity_id, due_date, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		task.ID, task.Title, task.Description, task.Status, task.EntityType, task.EntityID,
		task.DueDate, task.CreatedBy, task.CreatedAt, task.UpdatedAt)
	return err
}

// SaveTask updates a task.
func (s *PostgresStore) SaveTask(ctx context.Context, task *models.Task) error {
	task.UpdatedAt = time.Now().UTC()
	_, err := s.db.Exec(ctx,
		`UPDATE tasks SET title = $1, description = $2, status = $3, entity_type = $4,
		 entity_id = $5, due_date = $6, updated_at = $7 WHERE id = $8`,
		task.Title, task.Description, task.Status, task.EntityType, task.EntityID,
		task.DueDate, task.UpdatedAt, task.ID)
	return err
}

// GetTask retrieves a task.
func (s *PostgresStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	err := s.db.QueryRow(ctx,
		`SELECT id, title, description, status, entity_type, entity_id, due_date, created_by, created_at, updated_at
		 FROM tasks WHERE id = $1`, id).
		Scan(&task.ID, &task.Title, &task.Description, &task.Status, &task.EntityType,
			&task.EntityID, &task.DueDate, &task.CreatedBy, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, notFoundOr(err, "task "+id)
	}
	return &task, nil
}

// DeleteTask removes a task.
func (s *PostgresStore) DeleteTask(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	return err
}

// ListTasks returns tasks, optionally filtered by entity type.
func (s *PostgresStore) ListTasks(ctx context.Context, entityType string, limit int) ([]*models.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, title, description, status, entity_type, entity_id, due_date, created_by, created_at, updated_at
		 FROM tasks WHERE ($1 = '' OR entity_type = $1) ORDER BY created_at DESC LIMIT $2`,
		entityType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		var task models.Task
		err := rows.Scan(&task.ID, &task.Title, &task.Description, &task.Status, &task.EntityType,
			&task.EntityID, &task.DueDate, &task.CreatedBy, &task.CreatedAt, &task.UpdatedAt)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, &task)
	}
	return tasks, rows.Err()
}
