package observability

import (
	"fmt"

	"github.com/tphakala/livesound/internal/logger"
)

// Package-level cached logger instance for efficiency.
var log = logger.Global().Module("metrics")

// promErrorLogger adapts the module logger to promhttp.Logger.
type promErrorLogger struct{}

func (promErrorLogger) Println(v ...any) {
	log.Error("metrics handler error", logger.String("message", fmt.Sprint(v...)))
}
