package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"flowhook/backend/pkg/models"
)

// versionRequest is the payload for publishing a new workflow version.
type versionRequest struct {
	Definition models.JSONMap         `json:"definition,omitempty"`
	Steps      []*models.WorkflowStep `json:"steps"`
	Edges      []*models.WorkflowEdge `json:"edges,omitempty"`
}

// createWorkflowRequest creates a workflow header and, when steps are given,
// its first version in one call.
type createWorkflowRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Segment     string         `json:"segment,omitempty"`
	IsActive    bool           `json:"is_active"`
	Variables   models.JSONMap `json:"variables,omitempty"`
	versionRequest
}

// ListWorkflows returns a list of all workflows
// (GET /api/v1/workflows)
func (s *Server) ListWorkflows(c echo.Context) error {
	ctx := c.Request().Context()

	workflows, err := s.Repo.ListWorkflows(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, workflows)
}

// GetWorkflow returns one workflow header
// (GET /api/v1/workflows/:id)
func (s *Server) GetWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	wf, err := s.Repo.GetWorkflow(ctx, c.Param("id"))
	if err != nil {
		return notFoundOr(err, "workflow")
	}
	return c.JSON(http.StatusOK, wf)
}

// CreateWorkflow creates a workflow and optionally publishes its first version
// (POST /api/v1/workflows)
func (s *Server) CreateWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	var req createWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Workflow name is required")
	}

	wf := &models.WorkflowDefinition{
		Name:        req.Name,
		Description: req.Description,
		Segment:     req.Segment,
		IsActive:    req.IsActive,
		Variables:   req.Variables,
	}
	if err := s.Repo.CreateWorkflow(ctx, wf); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to save workflow: "+err.Error())
	}

	if len(req.Steps) > 0 {
		ver := &models.WorkflowVersion{WorkflowID: wf.ID, Definition: req.Definition}
		if err := s.Repo.CreateVersion(ctx, ver, req.Steps, req.Edges); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to save version: "+err.Error())
		}
		wf.LatestVerID = ver.ID
	}

	return c.JSON(http.StatusCreated, wf)
}

// ActivateWorkflow toggles whether a workflow may run
// (POST /api/v1/workflows/:id/activate)
func (s *Server) ActivateWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	var req struct {
		IsActive bool `json:"is_active"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	wf, err := s.Repo.GetWorkflow(ctx, c.Param("id"))
	if err != nil {
		return notFoundOr(err, "workflow")
	}
	wf.IsActive = req.IsActive
	if err := s.Repo.SaveWorkflow(ctx, wf); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to save workflow: "+err.Error())
	}
	return c.JSON(http.StatusOK, wf)
}

// ListVersions returns a workflow's version history, newest first
// (GET /api/v1/workflows/:id/versions)
func (s *Server) ListVersions(c echo.Context) error {
	ctx := c.Request().Context()

	if _, err := s.Repo.GetWorkflow(ctx, c.Param("id")); err != nil {
		return notFoundOr(err, "workflow")
	}
	versions, err := s.Repo.ListVersions(ctx, c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, versions)
}

// CreateVersion publishes a new immutable version of a workflow
// (POST /api/v1/workflows/:id/versions)
func (s *Server) CreateVersion(c echo.Context) error {
	ctx := c.Request().Context()

	wf, err := s.Repo.GetWorkflow(ctx, c.Param("id"))
	if err != nil {
		return notFoundOr(err, "workflow")
	}

	var req versionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if len(req.Steps) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "A version needs at least one step")
	}

	ver := &models.WorkflowVersion{WorkflowID: wf.ID, Definition: req.Definition}
	if err := s.Repo.CreateVersion(ctx, ver, req.Steps, req.Edges); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to save version: "+err.Error())
	}
	return c.JSON(http.StatusCreated, ver)
}

// ExecuteWorkflow runs a workflow synchronously and returns the structured
// result; a failed run is still a 200 with success=false
// (POST /api/v1/workflows/:id/execute)
func (s *Server) ExecuteWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	var req struct {
		Variables   map[string]any `json:"variables,omitempty"`
		TriggerData map[string]any `json:"trigger_data,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	result := s.Engine.ExecuteWorkflow(ctx, c.Param("id"), &models.ExecutionContext{
		Variables:     req.Variables,
		TriggerData:   req.TriggerData,
		TriggerType:   "manual",
		ExecutionMode: models.ExecutionModeSync,
	})
	return c.JSON(http.StatusOK, result)
}

// ListRuns returns recent runs of a workflow
// (GET /api/v1/workflows/:id/runs)
func (s *Server) ListRuns(c echo.Context) error {
	ctx := c.Request().Context()

	runs, err := s.Repo.ListRuns(ctx, c.Param("id"), 100)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, runs)
}

// GetRun returns one run with its step runs
// (GET /api/v1/runs/:id)
func (s *Server) GetRun(c echo.Context) error {
	ctx := c.Request().Context()

	run, err := s.Repo.GetRun(ctx, c.Param("id"))
	if err != nil {
		return notFoundOr(err, "run")
	}
	stepRuns, err := s.Repo.ListStepRuns(ctx, run.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"run":       run,
		"step_runs": stepRuns,
	})
}
