// Package api provides the HTTP server for livesound. The JSON endpoints
// live in the v1 subpackage.
package api

import (
	"fmt"
	"time"

	"github.com/tphakala/livesound/internal/conf"
	"github.com/tphakala/livesound/internal/logger"
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// Default constants for the HTTP server.
const (
	DefaultReadTimeout     = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Config holds the HTTP server configuration.
type Config struct {
	Address string // host:port to listen on

	// Timeouts. WriteTimeout stays zero so result streams are not cut off.
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	BodyLimit string // e.g. "64K"

	RateLimit         float64 // control requests per second per client
	RateBurst         int
	HeartbeatInterval time.Duration

	Debug bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Address:           conf.DefaultListen,
		ReadTimeout:       DefaultReadTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		ShutdownTimeout:   DefaultShutdownTimeout,
		BodyLimit:         "64K",
		RateLimit:         5,
		RateBurst:         10,
		HeartbeatInterval: 15 * time.Second,
	}
}

// ConfigFromSettings creates a Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()

	ws := settings.WebServer
	if ws.Listen != "" {
		cfg.Address = ws.Listen
	}
	if ws.RateLimit > 0 {
		cfg.RateLimit = ws.RateLimit
	}
	if ws.RateBurst > 0 {
		cfg.RateBurst = ws.RateBurst
	}
	if ws.HeartbeatInterval > 0 {
		cfg.HeartbeatInterval = ws.HeartbeatInterval
	}
	cfg.Debug = settings.Debug

	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive")
	}
	return nil
}

// String returns a human-readable representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf("Server Config: address=%s, rate=%.1f/s, debug=%v", c.Address, c.RateLimit, c.Debug)
}
