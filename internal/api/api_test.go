package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowhook/backend/internal/action"
	"flowhook/backend/internal/engine"
	"flowhook/backend/internal/filter"
	"flowhook/backend/internal/repository"
	"flowhook/backend/internal/trigger"
	"flowhook/backend/pkg/models"
)

type apiEnv struct {
	store  *repository.MemoryStore
	engine *engine.Engine
	echo   *echo.Echo
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	store := repository.NewMemoryStore()
	filters := filter.NewEngine(nil)
	matcher := trigger.NewMatcher(store, store, filters, nil, nil)
	dispatcher := action.NewDispatcher(store, nil)
	action.RegisterAll(dispatcher, action.NewTaskHandlers(store))
	eng := engine.NewEngine(store, matcher, dispatcher, filters, 4, nil)

	e := echo.New()
	e.HTTPErrorHandler = ProblemDetailsHandler(nil)
	NewServer(store, eng, "test", nil).RegisterRoutes(e, nil)

	return &apiEnv{store: store, engine: eng, echo: e}
}

func (env *apiEnv) request(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (env *apiEnv) seedTaskAction(t *testing.T) {
	t.Helper()
	require.NoError(t, env.store.CreateAction(context.Background(), &models.ActionRegistry{
		Key:           "create_task",
		Category:      "task_management",
		ExecutionType: models.ExecutionTypeInternal,
		IsActive:      true,
	}))
}

func TestHealthEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.request(t, http.MethodGet, "/healthz", "")

	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[HealthStatus](t, rec)
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "flowhook", status.Service)
}

func TestCreateWorkflowWithFirstVersion(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.request(t, http.MethodPost, "/api/v1/workflows", `{
		"name": "onboarding",
		"is_active": true,
		"steps": [
			{"name": "task", "kind": "action", "action_key": "create_task", "config": {"title": "hi"}}
		]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	wf := decode[models.WorkflowDefinition](t, rec)
	assert.NotEmpty(t, wf.ID)
	assert.NotEmpty(t, wf.LatestVerID)

	rec = env.request(t, http.MethodGet, "/api/v1/workflows/"+wf.ID+"/versions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	versions := decode[[]*models.WorkflowVersion](t, rec)
	require.Len(t, versions, 1)
	assert.Equal(t, 1, versions[0].Version)
}

func TestCreateWorkflowValidation(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.request(t, http.MethodPost, "/api/v1/workflows", `{"is_active": true}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	problem := decode[ProblemDetails](t, rec)
	assert.Equal(t, http.StatusBadRequest, problem.Status)
	assert.Contains(t, problem.Detail, "name")
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "application/problem+json")
}

func TestExecuteWorkflowEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	env.seedTaskAction(t)

	rec := env.request(t, http.MethodPost, "/api/v1/workflows", `{
		"name": "manual",
		"is_active": true,
		"steps": [
			{"name": "task", "kind": "action", "action_key": "create_task", "config": {"title": "From {{variable.source}}"}}
		]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	wf := decode[models.WorkflowDefinition](t, rec)

	rec = env.request(t, http.MethodPost, "/api/v1/workflows/"+wf.ID+"/execute", `{"variables": {"source": "api"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[models.ExecutionResult](t, rec)
	assert.True(t, result.Success, result.Error)
	require.NotEmpty(t, result.RunID)

	rec = env.request(t, http.MethodGet, "/api/v1/runs/"+result.RunID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Run      *models.WorkflowRun `json:"run"`
		StepRuns []*models.StepRun   `json:"step_runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, models.RunStatusSuccess, payload.Run.Status)
	require.Len(t, payload.StepRuns, 1)

	rec = env.request(t, http.MethodGet, "/api/v1/tasks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	tasks := decode[[]*models.Task](t, rec)
	require.Len(t, tasks, 1)
	assert.Equal(t, "From api", tasks[0].Title)
}

func TestExecuteFailedRunStillReturns200(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.request(t, http.MethodPost, "/api/v1/workflows", `{
		"name": "broken",
		"is_active": true,
		"steps": [
			{"name": "boom", "kind": "action", "action_key": "missing_action"}
		]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	wf := decode[models.WorkflowDefinition](t, rec)

	rec = env.request(t, http.MethodPost, "/api/v1/workflows/"+wf.ID+"/execute", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[models.ExecutionResult](t, rec)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "action registry entry not found")
}

func TestWebhookIngress(t *testing.T) {
	ctx := context.Background()
	env := newAPIEnv(t)
	env.seedTaskAction(t)

	require.NoError(t, env.store.CreateTrigger(ctx, &models.TriggerRegistry{
		Key:         "order-received",
		EventSource: models.EventSourceWebhook,
		Properties:  models.JSONMap{"table_name": "orders"},
		IsActive:    true,
	}))

	rec := env.request(t, http.MethodPost, "/api/v1/workflows", `{
		"name": "order intake",
		"is_active": true,
		"steps": [
			{"name": "task", "kind": "action", "action_key": "create_task", "config": {"title": "Order {{trigger.after.order_id}}"}}
		]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	wf := decode[models.WorkflowDefinition](t, rec)

	rec = env.request(t, http.MethodPost, "/api/v1/subscriptions", `{
		"workflow_id": "`+wf.ID+`",
		"trigger_key": "order-received",
		"is_active": true
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.request(t, http.MethodPost, "/hooks/order-received", `{"order_id": "o-42", "total": 12.5}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	outcome := decode[models.TriggerOutcome](t, rec)
	assert.True(t, outcome.Success)
	assert.Equal(t, 1, outcome.WorkflowsTriggered)
	env.engine.Wait()

	tasks, err := env.store.ListTasks(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Order o-42", tasks[0].Title)
}

func TestWebhookUnknownTriggerIs404(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.request(t, http.MethodPost, "/hooks/nope", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActivateWorkflowTogglesExecution(t *testing.T) {
	env := newAPIEnv(t)
	env.seedTaskAction(t)

	rec := env.request(t, http.MethodPost, "/api/v1/workflows", `{
		"name": "toggled",
		"is_active": true,
		"steps": [
			{"name": "task", "kind": "action", "action_key": "create_task", "config": {"title": "x"}}
		]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	wf := decode[models.WorkflowDefinition](t, rec)

	rec = env.request(t, http.MethodPost, "/api/v1/workflows/"+wf.ID+"/activate", `{"is_active": false}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, http.MethodPost, "/api/v1/workflows/"+wf.ID+"/execute", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[models.ExecutionResult](t, rec)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "inactive")
}
