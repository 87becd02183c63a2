package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/livesound/internal/conf"
	"github.com/tphakala/livesound/internal/results"
)

// StatusResponse describes the pipeline at one point in time.
type StatusResponse struct {
	State         string                        `json:"state"`
	SessionID     string                        `json:"sessionId,omitempty"`
	LastError     string                        `json:"lastError,omitempty"`
	Settings      *conf.Settings                `json:"settings"`
	Latest        *results.ClassificationResult `json:"latest,omitempty"`
	Subscribers   int                           `json:"subscribers"`
	UptimeSeconds float64                       `json:"uptimeSeconds"`
	Timestamp     time.Time                     `json:"timestamp"`
}

func (c *Controller) initStatusRoutes() {
	c.Group.GET("/status", c.GetStatus)
}

// GetStatus handles GET /api/v1/status
func (c *Controller) GetStatus(ctx echo.Context) error {
	resp := StatusResponse{
		State:         string(c.pipeline.State()),
		SessionID:     c.pipeline.SessionID(),
		Settings:      c.pipeline.Settings(),
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Timestamp:     time.Now(),
	}
	if err := c.pipeline.LastError(); err != nil {
		resp.LastError = err.Error()
	}
	if b := c.pipeline.Results(); b != nil {
		resp.Latest = b.Latest()
		resp.Subscribers = b.Subscribers()
	}

	return ctx.JSON(http.StatusOK, resp)
}
