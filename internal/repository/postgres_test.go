package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"flowhook/backend/pkg/models"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	if err := Migrate(ctx, pool); err != nil {
		t.Fatal(err)
	}

	store := NewPostgresStore(pool)

	t.Run("workflow versions are immutable snapshots", func(t *testing.T) {
		wf := &models.WorkflowDefinition{
			Name:      "versioned",
			IsActive:  true,
			Variables: models.JSONMap{"region": "eu"},
		}
		require.NoError(t, store.CreateWorkflow(ctx, wf))

		v1 := &models.WorkflowVersion{WorkflowID: wf.ID}
		steps1 := []*models.WorkflowStep{
			{Name: "first", Kind: models.StepKindAction, ActionKey: "create_task", Config: models.JSONMap{"title": "a"}},
			{Name: "second", Kind: models.StepKindDelay, Config: models.JSONMap{"delayMs": float64(10)}},
		}
		require.NoError(t, store.CreateVersion(ctx, v1, steps1, nil))
		assert.Equal(t, 1, v1.Version)
		assert.True(t, v1.IsLatest)
		assert.Equal(t, steps1[0].ID, v1.RootStepID)

		got, err := store.GetWorkflow(ctx, wf.ID)
		require.NoError(t, err)
		assert.Equal(t, v1.ID, got.LatestVerID)
		assert.Equal(t, "eu", got.Variables["region"])

		v2 := &models.WorkflowVersion{WorkflowID: wf.ID}
		steps2 := []*models.WorkflowStep{
			{Name: "only", Kind: models.StepKindAction, ActionKey: "create_task", Config: models.JSONMap{"title": "b"}},
		}
		require.NoError(t, store.CreateVersion(ctx, v2, steps2, nil))
		assert.Equal(t, 2, v2.Version)

		versions, err := store.ListVersions(ctx, wf.ID)
		require.NoError(t, err)
		require.Len(t, versions, 2)
		assert.Equal(t, 2, versions[0].Version)
		assert.True(t, versions[0].IsLatest)
		assert.False(t, versions[1].IsLatest)

		// the old version's steps are untouched
		oldSteps, err := store.ListSteps(ctx, v1.ID)
		require.NoError(t, err)
		require.Len(t, oldSteps, 2)
		assert.Equal(t, "first", oldSteps[0].Name)
		assert.Equal(t, 1, oldSteps[0].StepOrder)
	})

	t.Run("edges round trip with branch keys", func(t *testing.T) {
		wf := &models.WorkflowDefinition{Name: "branched", IsActive: true}
		require.NoError(t, store.CreateWorkflow(ctx, wf))

		// pre-assign ids so the edge can reference them
		gateID, thenID := uuid.New().String(), uuid.New().String()
		steps := []*models.WorkflowStep{
			{ID: gateID, Name: "gate", Kind: models.StepKindCondition, Config: models.JSONMap{"condition": map[string]any{"variable": "x", "operator": "equals", "value": "y"}}},
			{ID: thenID, Name: "then", Kind: models.StepKindAction, ActionKey: "create_task", Config: models.JSONMap{"title": "t"}},
		}
		ver := &models.WorkflowVersion{WorkflowID: wf.ID}
		edgesIn := []*models.WorkflowEdge{{FromStepID: gateID, ToStepID: thenID, BranchKey: "true"}}
		require.NoError(t, store.CreateVersion(ctx, ver, steps, edgesIn))

		edges, err := store.ListEdges(ctx, ver.ID)
		require.NoError(t, err)
		require.Len(t, edges, 1)
		assert.Equal(t, gateID, edges[0].FromStepID)
		assert.Equal(t, thenID, edges[0].ToStepID)
		assert.Equal(t, "true", edges[0].BranchKey)
	})

	t.Run("registry entries round trip filter schema", func(t *testing.T) {
		trigger := &models.TriggerRegistry{
			Key:         "orders-changed",
			Name:        "Orders changed",
			EventSource: models.EventSourceDebezium,
			Properties:  models.JSONMap{"table_name": "orders"},
			FilterSchema: &models.FilterNode{
				Combinator: models.CombinatorAnd,
				Conditions: []*models.FilterNode{
					{Variable: "operation_type", Operator: models.OpEquals, Value: "UPDATE"},
				},
			},
			IsActive: true,
		}
		require.NoError(t, store.CreateTrigger(ctx, trigger))

		got, err := store.GetTriggerByKey(ctx, "orders-changed")
		require.NoError(t, err)
		require.NotNil(t, got.FilterSchema)
		require.Len(t, got.FilterSchema.Conditions, 1)
		assert.Equal(t, "operation_type", got.FilterSchema.Conditions[0].Variable)
		assert.Equal(t, "orders", got.Properties["table_name"])

		action := &models.ActionRegistry{
			Key:           "create_task",
			Name:          "Create task",
			Category:      "task_management",
			ExecutionType: models.ExecutionTypeInternal,
			IsActive:      true,
		}
		require.NoError(t, store.CreateAction(ctx, action))

		gotAction, err := store.GetActionByKey(ctx, "create_task")
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionTypeInternal, gotAction.ExecutionType)

		_, err = store.GetActionByKey(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("subscriptions filter by trigger key and activity", func(t *testing.T) {
		wf := &models.WorkflowDefinition{Name: "subscribed", IsActive: true}
		require.NoError(t, store.CreateWorkflow(ctx, wf))

		active := &models.Subscription{
			WorkflowID: wf.ID,
			TriggerKey: "orders-changed",
			FilterConditions: &models.FilterNode{
				Variable: "after.total", Operator: models.OpGreaterThan, Value: float64(100),
			},
			IsActive: true,
		}
		require.NoError(t, store.CreateSubscription(ctx, active))
		require.NoError(t, store.CreateSubscription(ctx, &models.Subscription{
			WorkflowID: wf.ID,
			TriggerKey: "orders-changed",
			IsActive:   false,
		}))

		subs, err := store.ListActiveByTriggerKey(ctx, "orders-changed")
		require.NoError(t, err)
		require.Len(t, subs, 1)
		require.NotNil(t, subs[0].FilterConditions)
		assert.Equal(t, "after.total", subs[0].FilterConditions.Variable)

		active.IsActive = false
		require.NoError(t, store.SaveSubscription(ctx, active))
		subs, err = store.ListActiveByTriggerKey(ctx, "orders-changed")
		require.NoError(t, err)
		assert.Empty(t, subs)
	})

	t.Run("runs and step runs", func(t *testing.T) {
		wf := &models.WorkflowDefinition{Name: "ran", IsActive: true}
		require.NoError(t, store.CreateWorkflow(ctx, wf))
		ver := &models.WorkflowVersion{WorkflowID: wf.ID}
		steps := []*models.WorkflowStep{
			{Name: "one", Kind: models.StepKindAction, ActionKey: "create_task", Config: models.JSONMap{"title": "x"}},
		}
		require.NoError(t, store.CreateVersion(ctx, ver, steps, nil))

		run := &models.WorkflowRun{
			WorkflowID:    wf.ID,
			VersionID:     ver.ID,
			TriggerType:   "manual",
			ExecutionMode: models.ExecutionModeSync,
			Status:        models.RunStatusPending,
			TotalSteps:    1,
			ContextData:   models.JSONMap{"trigger": map[string]any{"k": "v"}},
		}
		require.NoError(t, store.CreateRun(ctx, run))

		run.Status = models.RunStatusRunning
		require.NoError(t, store.SaveRun(ctx, run))

		sr := &models.StepRun{
			RunID:     run.ID,
			StepID:    steps[0].ID,
			StepName:  "one",
			Status:    models.StepStatusRunning,
			InputData: steps[0].Config,
		}
		require.NoError(t, store.CreateStepRun(ctx, sr))

		// (run_id, step_id) is unique
		dup := &models.StepRun{RunID: run.ID, StepID: steps[0].ID, StepName: "one", Status: models.StepStatusRunning}
		assert.Error(t, store.CreateStepRun(ctx, dup))

		sr.Status = models.StepStatusSuccess
		sr.OutputData = models.JSONMap{"task_id": "t-1"}
		require.NoError(t, store.SaveStepRun(ctx, sr))

		run.Status = models.RunStatusSuccess
		run.CompletedSteps = 1
		require.NoError(t, store.SaveRun(ctx, run))

		got, err := store.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusSuccess, got.Status)
		assert.Equal(t, "v", got.ContextData["trigger"].(map[string]any)["k"])

		stepRuns, err := store.ListStepRuns(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, stepRuns, 1)
		assert.Equal(t, "t-1", stepRuns[0].OutputData["task_id"])

		runs, err := store.ListRuns(ctx, wf.ID, 10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
	})

	t.Run("tasks", func(t *testing.T) {
		task := &models.Task{
			Title:      "Call customer",
			Status:     models.TaskStatusOpen,
			EntityType: "customer",
			EntityID:   "c-1",
		}
		require.NoError(t, store.CreateTask(ctx, task))

		got, err := store.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, "Call customer", got.Title)

		got.Status = models.TaskStatusDone
		require.NoError(t, store.SaveTask(ctx, got))

		tasks, err := store.ListTasks(ctx, "customer", 10)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, models.TaskStatusDone, tasks[0].Status)

		require.NoError(t, store.DeleteTask(ctx, task.ID))
		_, err = store.GetTask(ctx, task.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
