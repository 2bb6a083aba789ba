package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"flowhook/backend/pkg/models"
)

// PostgresStore is the pgx-backed implementation of Repository.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Repository = (*PostgresStore)(nil)

func notFoundOr(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

const workflowColumns = `id, name, description, segment, is_active, COALESCE(latest_ver_id::text, ''), variables, created_by, created_at, updated_at`

func scanWorkflow(row pgx.Row) (*models.WorkflowDefinition, error) {
	var wf models.WorkflowDefinition
	err := row.Scan(&wf.ID, &wf.Name, &wf.Description, &wf.Segment, &wf.IsActive,
		&wf.LatestVerID, &wf.Variables, &wf.CreatedBy, &wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &wf, nil
}

// GetWorkflow retrieves a workflow header by id.
func (s *PostgresStore) GetWorkflow(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	wf, err := scanWorkflow(s.db.QueryRow(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "workflow "+id)
	}
	return wf, nil
}

// ListWorkflows returns all workflow headers, newest first.
func (s *PostgresStore) ListWorkflows(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+workflowColumns+` FROM workflows ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workflows []*models.WorkflowDefinition
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

// CreateWorkflow inserts a workflow header.
func (s *PostgresStore) CreateWorkflow(ctx context.Context, wf *models.WorkflowDefinition) error {
	if wf.ID == "" {
		wf.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	wf.CreatedAt, wf.UpdatedAt = now, now
	_, err := s.db.Exec(ctx,
		`INSERT INTO workflows (id, name, description, segment, is_active, variables, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		wf.ID, wf.Name, wf.Description, wf.Segment, wf.IsActive, wf.Variables, wf.CreatedBy, wf.CreatedAt, wf.UpdatedAt)
	return err
}

// SaveWorkflow updates a workflow header.
func (s *PostgresStore) SaveWorkflow(ctx context.Context, wf *models.WorkflowDefinition) error {
	wf.UpdatedAt = time.Now().UTC()
	_, err := s.db.Exec(ctx,
		`UPDATE workflows SET name = $1, description = $2, segment = $3, is_active = $4,
		 latest_ver_id = NULLIF($5, '')::uuid, variables = $6, updated_at = $7 WHERE id = $8`,
		wf.Name, wf.Description, wf.Segment, wf.IsActive, wf.LatestVerID, wf.Variables, wf.UpdatedAt, wf.ID)
	return err
}

// CreateVersion inserts a new immutable version along with its steps and
// edges, marks prior versions stale and re-points the workflow header, all in
// one transaction.
func (s *PostgresStore) CreateVersion(ctx context.Context, ver *models.WorkflowVersion, steps []*models.WorkflowStep, edges []*models.WorkflowEdge) error {
	if ver.ID == "" {
		ver.ID = uuid.New().String()
	}
	ver.IsLatest = true
	ver.CreatedAt = time.Now().UTC()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if ver.Version == 0 {
		err = tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(version), 0) + 1 FROM workflow_versions WHERE workflow_id = $1`,
			ver.WorkflowID).Scan(&ver.Version)
		if err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE workflow_versions SET is_latest = FALSE WHERE workflow_id = $1`, ver.WorkflowID)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO workflow_versions (id, workflow_id, version, is_latest, definition, root_step_id, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::uuid, $7, $8)`,
		ver.ID, ver.WorkflowID, ver.Version, ver.IsLatest, ver.Definition, ver.RootStepID, ver.CreatedBy, ver.CreatedAt)
	if err != nil {
		return err
	}

	for i, step := range steps {
		if step.ID == "" {
			step.ID = uuid.New().String()
		}
		step.VersionID = ver.ID
		if step.StepOrder == 0 {
			step.StepOrder = i + 1
		}
		step.CreatedAt = ver.CreatedAt
		_, err = tx.Exec(ctx,
			`INSERT INTO workflow_steps (id, version_id, name, description, kind, action_key, config, step_order, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			step.ID, step.VersionID, step.Name, step.Description, step.Kind, step.ActionKey, step.Config, step.StepOrder, step.CreatedAt)
		if err != nil {
			return err
		}
	}

	for _, edge := range edges {
		if edge.ID == "" {
			edge.ID = uuid.New().String()
		}
		edge.VersionID = ver.ID
		if edge.BranchKey == "" {
			edge.BranchKey = models.DefaultBranchKey
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO workflow_edges (id, version_id, from_step_id, to_step_id, branch_key)
			 VALUES ($1, $2, $3, $4, $5)`,
			edge.ID, edge.VersionID, edge.FromStepID, edge.ToStepID, edge.BranchKey)
		if err != nil {
			return err
		}
	}

	// backfill root_step_id from the first step when not set explicitly
	if ver.RootStepID == "" && len(steps) > 0 {
		ver.RootStepID = steps[0].ID
		_, err = tx.Exec(ctx,
			`UPDATE workflow_versions SET root_step_id = $1 WHERE id = $2`, ver.RootStepID, ver.ID)
		if err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE workflows SET latest_ver_id = $1, updated_at = $2 WHERE id = $3`,
		ver.ID, ver.CreatedAt, ver.WorkflowID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

const versionColumns = `id, workflow_id, version, is_latest, definition, COALESCE(root_step_id::text, ''), created_by, created_at`

func scanVersion(row pgx.Row) (*models.WorkflowVersion, error) {
	var ver models.WorkflowVersion
	err := row.Scan(&ver.ID, &ver.WorkflowID, &ver.Version, &ver.IsLatest,
		&ver.Definition, &ver.RootStepID, &ver.CreatedBy, &ver.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &ver, nil
}

// GetVersion retrieves one version snapshot.
func (s *PostgresStore) GetVersion(ctx context.Context, id string) (*models.WorkflowVersion, error) {
	ver, err := scanVersion(s.db.QueryRow(ctx,
		`SELECT `+versionColumns+` FROM workflow_versions WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "version "+id)
	}
	return ver, nil
}

// ListVersions returns a workflow's version history, newest first.
func (s *PostgresStore) ListVersions(ctx context.Context, workflowID string) ([]*models.WorkflowVersion, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+versionColumns+` FROM workflow_versions WHERE workflow_id = $1 ORDER BY version DESC`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []*models.WorkflowVersion
	for rows.Next() {
		ver, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, ver)
	}
	return versions, rows.Err()
}

// SetRootStep backfills root_step_id on a version.
func (s *PostgresStore) SetRootStep(ctx context.Context, versionID, stepID string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE workflow_versions SET root_step_id = $1 WHERE id = $2`, stepID, versionID)
	return err
}

// ListSteps returns a version's steps in execution order.
func (s *PostgresStore) ListSteps(ctx context.Context, versionID string) ([]*models.WorkflowStep, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, version_id, name, description, kind, action_key, config, step_order, created_at
		 FROM workflow_steps WHERE version_id = $1 ORDER BY step_order, name`, versionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []*models.WorkflowStep
	for rows.Next() {
		var step models.WorkflowStep
		err := rows.Scan(&step.ID, &step.VersionID, &step.Name, &step.Description,
			&step.Kind, &step.ActionKey, &step.Config, &step.StepOrder, &step.CreatedAt)
		if err != nil {
			return nil, err
		}
		steps = append(steps, &step)
	}
	return steps, rows.Err()
}

// ListEdges returns a version's edges.
func (s *PostgresStore) ListEdges(ctx context.Context, versionID string) ([]*models.WorkflowEdge, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, version_id, from_step_id, to_step_id, branch_key
		 FROM workflow_edges WHERE version_id = $1`, versionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []*models.WorkflowEdge
	for rows.Next() {
		var edge models.WorkflowEdge
		err := rows.Scan(&edge.ID, &edge.VersionID, &edge.FromStepID, &edge.ToStepID, &edge.BranchKey)
		if err != nil {
			return nil, err
		}
		edges = append(edges, &edge)
	}
	return edges, rows.Err()
}
