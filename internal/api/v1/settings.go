package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/livesound/internal/errors"
	"github.com/tphakala/livesound/internal/logger"
)

// SettingResponse confirms an applied setting.
type SettingResponse struct {
	Field     string `json:"field"`
	Value     any    `json:"value"`
	State     string `json:"state"`
	SessionID string `json:"sessionId,omitempty"`
}

// initSettingsRoutes registers one PUT route per mutable setting. Each takes
// a JSON body {"value": ...}.
func (c *Controller) initSettingsRoutes() {
	g := c.Group.Group("/settings", c.controlRateLimiter())

	g.GET("", c.GetSettings)
	g.PUT("/model", settingHandler(c, "model", c.pipeline.SetModel))
	g.PUT("/delegate", settingHandler(c, "delegate", c.pipeline.SetDelegate))
	g.PUT("/overlap", settingHandler(c, "overlap", c.pipeline.SetOverlap))
	g.PUT("/result-count", settingHandler(c, "result-count", c.pipeline.SetResultCount))
	g.PUT("/threshold", settingHandler(c, "threshold", c.pipeline.SetThreshold))
	g.PUT("/threads", settingHandler(c, "threads", c.pipeline.SetThreadCount))
}

// GetSettings handles GET /api/v1/settings
func (c *Controller) GetSettings(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.pipeline.Settings())
}

// settingHandler binds {"value": T} and passes the value to apply. Validation
// failures answer 400, failed rebuilds 500.
func settingHandler[T any](c *Controller, field string, apply func(T) error) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var req struct {
			Value *T `json:"value"`
		}
		if err := ctx.Bind(&req); err != nil {
			return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
		}
		if req.Value == nil {
			return c.HandleError(ctx, nil, "Missing value", http.StatusBadRequest)
		}

		if err := apply(*req.Value); err != nil {
			if errors.IsCategory(err, errors.CategoryValidation) {
				return c.HandleError(ctx, err, "Invalid "+field, http.StatusBadRequest)
			}
			return c.HandleError(ctx, err, "Setting applied but the pipeline failed to restart", http.StatusInternalServerError)
		}

		c.log.Info("setting updated",
			logger.String("field", field),
			logger.Any("value", *req.Value),
			logger.String("ip", ctx.RealIP()))

		return ctx.JSON(http.StatusOK, SettingResponse{
			Field:     field,
			Value:     *req.Value,
			State:     string(c.pipeline.State()),
			SessionID: c.pipeline.SessionID(),
		})
	}
}
