package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/livesound/internal/logger"
)

// Server-sent event names
const (
	EventConnected = "connected"
	EventResult    = "result"
	EventHeartbeat = "heartbeat"
)

// sseWriteTimeout bounds a single event write to a slow client.
const sseWriteTimeout = 10 * time.Second

// initStreamRoutes registers the result stream endpoints
func (c *Controller) initStreamRoutes() {
	c.Group.GET("/results/stream", c.StreamResults)
	c.Group.GET("/results/ws", c.HandleResultsWebSocket)
}

// StreamResults handles GET /api/v1/results/stream. Each result published
// after the client connects is sent as a "result" event; a "heartbeat" event
// keeps idle connections open.
func (c *Controller) StreamResults(ctx echo.Context) error {
	broadcaster := c.pipeline.Results()
	if broadcaster == nil {
		return c.HandleError(ctx, nil, "Result stream not available", http.StatusServiceUnavailable)
	}

	sub := broadcaster.Subscribe()
	defer sub.Unsubscribe()

	h := ctx.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set(echo.HeaderConnection, "keep-alive")
	ctx.Response().WriteHeader(http.StatusOK)

	clientID := generateCorrelationID()
	log := c.log.WithContext(ctx.Request().Context()).
		With(logger.String("client_id", clientID), logger.String("ip", ctx.RealIP()))

	if err := c.sendSSEMessage(ctx, EventConnected, map[string]string{
		"clientId": clientID,
		"state":    string(c.pipeline.State()),
	}); err != nil {
		return err
	}
	log.Debug("SSE client connected")
	defer func() {
		log.Debug("SSE client disconnected", logger.Uint64("dropped", sub.Dropped()))
	}()

	ticker := time.NewTicker(c.options.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case r, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := c.sendSSEMessage(ctx, EventResult, r); err != nil {
				log.Debug("SSE result write failed", logger.Error(err))
				return nil
			}

		case <-ticker.C:
			if err := c.sendSSEMessage(ctx, EventHeartbeat, map[string]any{
				"timestamp": time.Now().Unix(),
				"state":     string(c.pipeline.State()),
			}); err != nil {
				log.Debug("SSE heartbeat failed, client likely disconnected", logger.Error(err))
				return nil
			}

		case <-ctx.Request().Context().Done():
			return nil

		case <-c.ctx.Done():
			return nil
		}
	}
}

// sendSSEMessage writes one event and flushes it.
func (c *Controller) sendSSEMessage(ctx echo.Context, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE data: %w", err)
	}

	rc := http.NewResponseController(ctx.Response().Writer)
	// not every writer supports deadlines
	_ = rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout))

	if _, err := fmt.Fprintf(ctx.Response(), "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return fmt.Errorf("failed to write SSE message: %w", err)
	}
	ctx.Response().Flush()
	return nil
}
