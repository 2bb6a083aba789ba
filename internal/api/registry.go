package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"flowhook/backend/pkg/models"
)

// ListTriggers returns the trigger catalog
// (GET /api/v1/triggers)
func (s *Server) ListTriggers(c echo.Context) error {
	ctx := c.Request().Context()

	triggers, err := s.Repo.ListTriggers(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, triggers)
}

// CreateTrigger registers a trigger
// (POST /api/v1/triggers)
func (s *Server) CreateTrigger(c echo.Context) error {
	ctx := c.Request().Context()

	var trigger models.TriggerRegistry
	if err := c.Bind(&trigger); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if trigger.Key == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Trigger key is required")
	}
	if err := s.Repo.CreateTrigger(ctx, &trigger); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to save trigger: "+err.Error())
	}
	return c.JSON(http.StatusCreated, trigger)
}

// ListActions returns the action catalog
// (GET /api/v1/actions)
func (s *Server) ListActions(c echo.Context) error {
	ctx := c.Request().Context()

	actions, err := s.Repo.ListActions(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, actions)
}

// CreateAction registers an action
// (POST /api/v1/actions)
func (s *Server) CreateAction(c echo.Context) error {
	ctx := c.Request().Context()

	var action models.ActionRegistry
	if err := c.Bind(&action); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if action.Key == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Action key is required")
	}
	if err := s.Repo.CreateAction(ctx, &action); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to save action: "+err.Error())
	}
	return c.JSON(http.StatusCreated, action)
}

// ListSubscriptions returns a workflow's trigger subscriptions
// (GET /api/v1/workflows/:id/subscriptions)
func (s *Server) ListSubscriptions(c echo.Context) error {
	ctx := c.Request().Context()

	subs, err := s.Repo.ListByWorkflow(ctx, c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, subs)
}

// CreateSubscription binds a workflow to a trigger
// (POST /api/v1/subscriptions)
func (s *Server) CreateSubscription(c echo.Context) error {
	ctx := c.Request().Context()

	var sub models.Subscription
	if err := c.Bind(&sub); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if sub.WorkflowID == "" || sub.TriggerKey == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "workflow_id and trigger_key are required")
	}
	if _, err := s.Repo.GetWorkflow(ctx, sub.WorkflowID); err != nil {
		return notFoundOr(err, "workflow")
	}
	if _, err := s.Repo.GetTriggerByKey(ctx, sub.TriggerKey); err != nil {
		return notFoundOr(err, "trigger")
	}
	if err := s.Repo.CreateSubscription(ctx, &sub); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to save subscription: "+err.Error())
	}
	return c.JSON(http.StatusCreated, sub)
}

// ListTasks returns tasks created by workflow actions
// (GET /api/v1/tasks)
func (s *Server) ListTasks(c echo.Context) error {
	ctx := c.Request().Context()

	tasks, err := s.Repo.ListTasks(ctx, c.QueryParam("entity_type"), 100)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, tasks)
}
