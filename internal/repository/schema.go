package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the inline DDL for the engine's tables. Statements are
// idempotent so Migrate can run on every startup.
const Schema = `
CREATE TABLE IF NOT EXISTS workflows (
	id            UUID PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	segment       TEXT NOT NULL DEFAULT '',
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	latest_ver_id UUID,
	variables     JSONB,
	created_by    TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS workflow_versions (
	id           UUID PRIMARY KEY,
	workflow_id  UUID NOT NULL REFERENCES workflows(id),
	version      INT NOT NULL,
	is_latest    BOOLEAN NOT NULL DEFAULT TRUE,
	definition   JSONB,
	root_step_id UUID,
	created_by   TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (workflow_id, version)
);

CREATE TABLE IF NOT EXISTS workflow_steps (
	id          UUID PRIMARY KEY,
	version_id  UUID NOT NULL REFERENCES workflow_versions(id),
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	kind        TEXT NOT NULL,
	action_key  TEXT NOT NULL DEFAULT '',
	config      JSONB,
	step_order  INT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS workflow_edges (
	id           UUID PRIMARY KEY,
	version_id   UUID NOT NULL REFERENCES workflow_versions(id),
	from_step_id UUID NOT NULL,
	to_step_id   UUID NOT NULL,
	branch_key   TEXT NOT NULL DEFAULT 'default',
	UNIQUE (version_id, from_step_id, to_step_id, branch_key)
);

CREATE TABLE IF NOT EXISTS trigger_registry (
	id            UUID PRIMARY KEY,
	key           TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	event_source  TEXT NOT NULL,
	properties    JSONB,
	filter_schema JSONB,
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS action_registry (
	id             UUID PRIMARY KEY,
	key            TEXT NOT NULL UNIQUE,
	name           TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	category       TEXT NOT NULL DEFAULT '',
	execution_type TEXT NOT NULL,
	properties     JSONB,
	is_active      BOOLEAN NOT NULL DEFAULT TRUE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS subscriptions (
	id                UUID PRIMARY KEY,
	workflow_id       UUID NOT NULL REFERENCES workflows(id),
	trigger_key       TEXT NOT NULL,
	filter_conditions JSONB,
	is_active         BOOLEAN NOT NULL DEFAULT TRUE,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_subscriptions_trigger_key ON subscriptions (trigger_key) WHERE is_active;

CREATE TABLE IF NOT EXISTS workflow_runs (
	id                UUID PRIMARY KEY,
	workflow_id       UUID NOT NULL,
	version_id        UUID NOT NULL,
	trigger_type      TEXT NOT NULL DEFAULT '',
	execution_mode    TEXT NOT NULL DEFAULT 'async',
	status            TEXT NOT NULL,
	total_steps       INT NOT NULL DEFAULT 0,
	completed_steps   INT NOT NULL DEFAULT 0,
	failed_steps      INT NOT NULL DEFAULT 0,
	skipped_steps     INT NOT NULL DEFAULT 0,
	fail_reason       TEXT NOT NULL DEFAULT '',
	context_data      JSONB,
	retry_count       INT NOT NULL DEFAULT 0,
	max_retries       INT NOT NULL DEFAULT 0,
	execution_time_ms BIGINT NOT NULL DEFAULT 0,
	started_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at      TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_workflow_runs_workflow ON workflow_runs (workflow_id, started_at DESC);

CREATE TABLE IF NOT EXISTS step_runs (
	id            UUID PRIMARY KEY,
	run_id        UUID NOT NULL REFERENCES workflow_runs(id),
	step_id       UUID NOT NULL,
	step_name     TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	input_data    JSONB,
	output_data   JSONB,
	error_message TEXT NOT NULL DEFAULT '',
	started_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at  TIMESTAMPTZ,
	UNIQUE (run_id, step_id)
);

CREATE TABLE IF NOT EXISTS tasks (
	id          UUID PRIMARY KEY,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'open',
	entity_type TEXT NOT NULL DEFAULT '',
	entity_id   TEXT NOT NULL DEFAULT '',
	due_date    TIMESTAMPTZ,
	created_by  TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate applies the schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
