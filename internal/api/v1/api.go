// Package api implements the livesound JSON API: pipeline status, start and
// stop control, settings mutation and live result streams.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/tphakala/livesound/internal/analysis"
	"github.com/tphakala/livesound/internal/conf"
	"github.com/tphakala/livesound/internal/logger"
	"github.com/tphakala/livesound/internal/results"
)

// Pipeline is the control surface the API drives. *analysis.Controller
// implements it.
type Pipeline interface {
	Start() error
	Stop()
	State() analysis.State
	SessionID() string
	Settings() *conf.Settings
	LastError() error
	Results() *results.Broadcaster

	SetModel(model string) error
	SetDelegate(backend conf.Backend) error
	SetOverlap(overlap float64) error
	SetResultCount(n int) error
	SetThreshold(threshold float64) error
	SetThreadCount(n int) error
}

// Options tunes the controller.
type Options struct {
	RateLimit         float64 // control requests per second per client
	RateBurst         int
	HeartbeatInterval time.Duration
}

// Controller holds the API routes and their dependencies.
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	pipeline Pipeline
	options  Options
	log      logger.Logger

	// ctx ends every open stream on shutdown
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// New registers the /api/v1 routes on e.
func New(e *echo.Echo, pipeline Pipeline, options Options) *Controller {
	if options.HeartbeatInterval <= 0 {
		options.HeartbeatInterval = 15 * time.Second
	}
	if options.RateLimit <= 0 {
		options.RateLimit = 5
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		Echo:      e,
		Group:     e.Group("/api/v1"),
		pipeline:  pipeline,
		options:   options,
		log:       logger.Global().Module("api").Module("v1"),
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}

	c.initStatusRoutes()
	c.initControlRoutes()
	c.initSettingsRoutes()
	c.initStreamRoutes()

	return c
}

// Shutdown ends all open result streams.
func (c *Controller) Shutdown() {
	c.cancel()
}

// controlRateLimiter limits mutating requests per client IP.
func (c *Controller) controlRateLimiter() echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(c.options.RateLimit),
				Burst:     c.options.RateBurst,
				ExpiresIn: 3 * time.Minute,
			},
		),
		IdentifierExtractor: middleware.DefaultRateLimiterConfig.IdentifierExtractor,
		ErrorHandler: func(ctx echo.Context, err error) error {
			return ctx.JSON(http.StatusForbidden, NewErrorResponse(err, "Unable to identify client", http.StatusForbidden))
		},
		DenyHandler: func(ctx echo.Context, identifier string, err error) error {
			return ctx.JSON(http.StatusTooManyRequests, NewErrorResponse(err, "Too many control requests, please wait before trying again", http.StatusTooManyRequests))
		},
	})
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlationId"`
}

// NewErrorResponse creates a new API error response
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}

	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
}

// generateCorrelationID returns a short random identifier for matching a
// response to its log line.
func generateCorrelationID() string {
	return uuid.NewString()[:8]
}

// HandleError logs err and writes an error response with code.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("ip", ctx.RealIP()),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	log := c.log.WithContext(ctx.Request().Context())
	if code >= http.StatusInternalServerError {
		log.Error("API error", fields...)
	} else {
		log.Warn("API error", fields...)
	}

	return ctx.JSON(code, resp)
}
