// Package api contains the HTTP handlers for the workflow service.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"flowhook/backend/internal/engine"
	"flowhook/backend/internal/repository"
)

// Logger is the subset of the application logger this package needs.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Server holds the dependencies for the API server.
type Server struct {
	Repo    repository.Repository
	Engine  *engine.Engine
	Version string
	Logger  Logger
}

// NewServer creates a new Server.
func NewServer(repo repository.Repository, eng *engine.Engine, version string, logger Logger) *Server {
	return &Server{Repo: repo, Engine: eng, Version: version, Logger: logger}
}

// RegisterRoutes mounts the public and admin routes. authMW guards the
// /api/v1 group; the health probe and webhook ingress stay public.
func (s *Server) RegisterRoutes(e *echo.Echo, authMW echo.MiddlewareFunc) {
	e.GET("/healthz", s.HandleHealth)
	e.POST("/hooks/:trigger_key", s.HandleWebhook)

	v1 := e.Group("/api/v1")
	if authMW != nil {
		v1.Use(authMW)
	}

	v1.GET("/workflows", s.ListWorkflows)
	v1.POST("/workflows", s.CreateWorkflow)
	v1.GET("/workflows/:id", s.GetWorkflow)
	v1.POST("/workflows/:id/activate", s.ActivateWorkflow)
	v1.GET("/workflows/:id/versions", s.ListVersions)
	v1.POST("/workflows/:id/versions", s.CreateVersion)
	v1.POST("/workflows/:id/execute", s.ExecuteWorkflow)
	v1.GET("/workflows/:id/runs", s.ListRuns)
	v1.GET("/workflows/:id/subscriptions", s.ListSubscriptions)
	v1.GET("/runs/:id", s.GetRun)

	v1.GET("/triggers", s.ListTriggers)
	v1.POST("/triggers", s.CreateTrigger)
	v1.GET("/actions", s.ListActions)
	v1.POST("/actions", s.CreateAction)
	v1.POST("/subscriptions", s.CreateSubscription)
	v1.GET("/tasks", s.ListTasks)
}

// HealthStatus represents the health check response.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
}

// HandleHealth returns basic health status (always returns 200 OK).
func (s *Server) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   "flowhook",
		Version:   s.Version,
	})
}

// ProblemDetails represents an RFC 7807 Problem Details response.
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// ProblemDetailsHandler is an echo HTTPErrorHandler that renders every error
// as application/problem+json.
func ProblemDetailsHandler(logger Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		detail := err.Error()
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			status = httpErr.Code
			if msg, ok := httpErr.Message.(string); ok {
				detail = msg
			}
		}
		if status >= http.StatusInternalServerError && logger != nil {
			logger.Error("request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
		}

		problem := ProblemDetails{
			Type:     "about:blank",
			Title:    http.StatusText(status),
			Status:   status,
			Detail:   detail,
			Instance: c.Request().URL.Path,
		}
		c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
		if writeErr := c.JSON(status, problem); writeErr != nil && logger != nil {
			logger.Error("failed to write error response", "error", writeErr)
		}
	}
}

// notFoundOr maps repository.ErrNotFound to a 404 and everything else to a
// 500.
func notFoundOr(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, what+" not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
