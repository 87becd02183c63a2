package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/livesound/internal/errors"
	"github.com/tphakala/livesound/internal/logger"
)

// Control actions
const (
	ActionStart = "start"
	ActionStop  = "stop"
)

// ControlResult represents the result of a control action
type ControlResult struct {
	Success   bool      `json:"success"`
	Action    string    `json:"action"`
	State     string    `json:"state"`
	SessionID string    `json:"sessionId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// initControlRoutes registers all control-related API endpoints
func (c *Controller) initControlRoutes() {
	controlGroup := c.Group.Group("/control", c.controlRateLimiter())

	controlGroup.POST("/start", c.StartPipeline)
	controlGroup.POST("/stop", c.StopPipeline)
}

// StartPipeline handles POST /api/v1/control/start
func (c *Controller) StartPipeline(ctx echo.Context) error {
	c.log.Info("start requested", logger.String("ip", ctx.RealIP()))

	if err := c.pipeline.Start(); err != nil {
		return c.HandleError(ctx, err, "Failed to start the pipeline", statusForError(err))
	}
	return ctx.JSON(http.StatusOK, c.controlResult(ActionStart))
}

// StopPipeline handles POST /api/v1/control/stop
func (c *Controller) StopPipeline(ctx echo.Context) error {
	c.log.Info("stop requested", logger.String("ip", ctx.RealIP()))

	c.pipeline.Stop()
	return ctx.JSON(http.StatusOK, c.controlResult(ActionStop))
}

func (c *Controller) controlResult(action string) ControlResult {
	return ControlResult{
		Success:   true,
		Action:    action,
		State:     string(c.pipeline.State()),
		SessionID: c.pipeline.SessionID(),
		Timestamp: time.Now(),
	}
}

// statusForError maps a pipeline error to an HTTP status: bad input is the
// client's fault, everything else is ours.
func statusForError(err error) int {
	switch {
	case errors.IsCategory(err, errors.CategoryValidation):
		return http.StatusBadRequest
	case errors.IsCategory(err, errors.CategoryState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
