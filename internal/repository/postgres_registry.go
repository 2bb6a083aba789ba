package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"flowhook/backend/pkg/models"
)

const triggerColumns = `id, key, name, description, event_source, properties, filter_schema, is_active, created_at`

func scanTrigger(row pgx.Row) (*models.TriggerRegistry, error) {
	var t models.TriggerRegistry
	err := row.Scan(&t.ID, &t.Key, &t.Name, &t.Description, &t.EventSource,
		&t.Properties, &t.FilterSchema, &t.IsActive, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTriggerByKey retrieves a trigger registry entry.
func (s *PostgresStore) GetTriggerByKey(ctx context.Context, key string) (*models.TriggerRegistry, error) {
	t, err := scanTrigger(s.db.QueryRow(ctx,
		`SELECT `+triggerColumns+` FROM trigger_registry WHERE key = $1`, key))
	if err != nil {
		return nil, notFoundOr(err, "trigger "+key)
	}
	return t, nil
}

// ListTriggers returns all trigger registry entries.
func (s *PostgresStore) ListTriggers(ctx context.Context) ([]*models.TriggerRegistry, error) {
	rows, err := s.db.Query(ctx, `SELECT `+triggerColumns+` FROM trigger_registry ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var triggers []*models.TriggerRegistry
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		triggers = append(triggers, t)
	}
	return triggers, rows.Err()
}

// CreateTrigger inserts a trigger registry entry.
func (s *PostgresStore) CreateTrigger(ctx context.Context, t *models.TriggerRegistry) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.CreatedAt = time.Now().UTC()
	_, err := s.db.Exec(ctx,
		`INSERT INTO trigger_registry (id, key, name, description, event_source, properties, filter_schema, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.Key, t.Name, t.Description, t.EventSource, t.Properties, t.FilterSchema, t.IsActive, t.CreatedAt)
	return err
}

const actionColumns = `id, key, name, description, category, execution_type, properties, is_active, created_at`

func scanAction(row pgx.Row) (*models.ActionRegistry, error) {
	var a models.ActionRegistry
	err := row.Scan(&a.ID, &a.Key, &a.Name, &a.Description, &a.Category,
		&a.ExecutionType, &a.Properties, &a.IsActive, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetActionByKey retrieves an action registry entry.
func (s *PostgresStore) GetActionByKey(ctx context.Context, key string) (*models.ActionRegistry, error) {
	a, err := scanAction(s.db.QueryRow(ctx,
		`SELECT `+actionColumns+` FROM action_registry WHERE key = $1`, key))
	if err != nil {
		return nil, notFoundOr(err, "action "+key)
	}
	return a, nil
}

// ListActions returns all action registry entries.
func (s *PostgresStore) ListActions(ctx context.Context) ([]*models.ActionRegistry, error) {
	rows, err := s.db.Query(ctx, `SELECT `+actionColumns+` FROM action_registry ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []*models.ActionRegistry
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// CreateAction inserts an action registry entry.
func (s *PostgresStore) CreateAction(ctx context.Context, a *models.ActionRegistry) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.CreatedAt = time.Now().UTC()
	_, err := s.db.Exec(ctx,
		`INSERT INTO action_registry (id, key, name, description, category, execution_type, properties, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.Key, a.Name, a.Description, a.Category, a.ExecutionType, a.Properties, a.IsActive, a.CreatedAt)
	return err
}

const subscriptionColumns = `id, workflow_id, trigger_key, filter_conditions, is_active, created_at`

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	var sub models.Subscription
	err := row.Scan(&sub.ID, &sub.WorkflowID, &sub.TriggerKey, &sub.FilterConditions, &sub.IsActive, &sub.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListActiveByTriggerKey returns the active subscriptions for a trigger key.
func (s *PostgresStore) ListActiveByTriggerKey(ctx context.Context, triggerKey string) ([]*models.Subscription, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE trigger_key = $1 AND is_active`, triggerKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// ListByWorkflow returns all subscriptions of one workflow.
func (s *PostgresStore) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Subscription, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// CreateSubscription inserts a subscription.
func (s *PostgresStore) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	sub.CreatedAt = time.Now().UTC()
	_, err := s.db.Exec(ctx,
		`INSERT INTO subscriptions (id, workflow_id, trigger_key, filter_conditions, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		sub.ID, sub.WorkflowID, sub.TriggerKey, sub.FilterConditions, sub.IsActive, sub.CreatedAt)
	return err
}

// SaveSubscription updates a subscription.
func (s *PostgresStore) SaveSubscription(ctx context.Context, sub *models.Subscription) error {
	_, err := s.db.Exec(ctx,
		`UPDATE subscriptions SET trigger_key = $1, filter_conditions = $2, is_active = $3 WHERE id = $4`,
		sub.TriggerKey, sub.FilterConditions, sub.IsActive, sub.ID)
	return err
}
