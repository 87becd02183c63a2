package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/tphakala/livesound/internal/api/middleware"
	v1 "github.com/tphakala/livesound/internal/api/v1"
	"github.com/tphakala/livesound/internal/conf"
	"github.com/tphakala/livesound/internal/logger"
	"github.com/tphakala/livesound/internal/monitor"
)

// Server is the HTTP server for livesound.
type Server struct {
	echo   *echo.Echo
	config *Config
	log    logger.Logger

	pipeline       v1.Pipeline
	metricsHandler http.Handler
	system         SystemStatus
	apiController  *v1.Controller

	wg        sync.WaitGroup
	startTime time.Time
	addr      net.Addr
	addrReady chan struct{}
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) {
		s.metricsHandler = h
	}
}

// SystemStatus reports host resource usage for the health endpoint.
type SystemStatus interface {
	Last() (monitor.Sample, bool)
	CPUAlert() bool
}

// WithSystemStatus adds the latest resource sample to /health.
func WithSystemStatus(status SystemStatus) ServerOption {
	return func(s *Server) {
		s.system = status
	}
}

// New creates an HTTP server driving pipeline.
func New(settings *conf.Settings, pipeline v1.Pipeline, opts ...ServerOption) (*Server, error) {
	config := ConfigFromSettings(settings)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	s := &Server{
		config:    config,
		log:       GetLogger(),
		pipeline:  pipeline,
		startTime: time.Now(),
		addrReady: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	s.log.Info("HTTP server initialized", logger.String("address", config.Address), logger.Bool("debug", config.Debug))
	return s, nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.RequestID())
	s.echo.Use(mw.NewRequestLoggerWithSkipper(s.log, mw.SkipStreams))
	s.echo.Use(echomw.BodyLimit(s.config.BodyLimit))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	if s.metricsHandler != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metricsHandler))
	}

	s.apiController = v1.New(s.echo, s.pipeline, v1.Options{
		RateLimit:         s.config.RateLimit,
		RateBurst:         s.config.RateBurst,
		HeartbeatInterval: s.config.HeartbeatInterval,
	})
}

// healthCheck handles the server health check endpoint.
func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	body := map[string]any{
		"status":         "healthy",
		"state":          string(s.pipeline.State()),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	}
	if s.system != nil {
		if sample, ok := s.system.Last(); ok {
			body["system"] = sample
			body["cpu_alert"] = s.system.CPUAlert()
		}
	}
	return c.JSON(http.StatusOK, body)
}

// Start begins serving HTTP requests in a background goroutine and returns
// once the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	s.echo.Listener = ln
	s.addr = ln.Addr()
	close(s.addrReady)

	s.wg.Go(func() {
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server error", logger.Error(err))
		}
	})

	s.log.Info("HTTP server listening", logger.String("address", s.addr.String()))
	return nil
}

// Addr returns the bound listen address, nil before Start.
func (s *Server) Addr() net.Addr {
	select {
	case <-s.addrReady:
		return s.addr
	default:
		return nil
	}
}

// Shutdown closes open result streams and gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.apiController != nil {
		s.apiController.Shutdown()
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.wg.Wait()

	s.log.Info("HTTP server shutdown complete")
	return nil
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
