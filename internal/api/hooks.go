package api

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"flowhook/backend/internal/event"
)

// HandleWebhook is the public webhook ingress. The trigger key in the path
// selects the registry entry; the request becomes a canonical event and is
// matched like any other. Accepted means "queued for matching", not "a
// workflow ran": runs start asynchronously
// (POST /hooks/:trigger_key)
func (s *Server) HandleWebhook(c echo.Context) error {
	ctx := c.Request().Context()
	triggerKey := c.Param("trigger_key")

	reg, err := s.Repo.GetTriggerByKey(ctx, triggerKey)
	if err != nil {
		return notFoundOr(err, "trigger")
	}

	var body map[string]any
	if c.Request().Body != nil {
		if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil && err.Error() != "EOF" {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		}
	}

	headers := make(map[string]string, len(c.Request().Header))
	for name := range c.Request().Header {
		headers[name] = c.Request().Header.Get(name)
	}

	table, _ := reg.Properties["table_name"].(string)
	ev := event.FromWebhook(c.Request().Method, c.Request().URL.Path, headers, body, table)

	outcome := s.Engine.ProcessTriggerEvent(ctx, triggerKey, ev)
	if outcome.Error != "" {
		return echo.NewHTTPError(http.StatusInternalServerError, outcome.Error)
	}
	return c.JSON(http.StatusAccepted, outcome)
}
