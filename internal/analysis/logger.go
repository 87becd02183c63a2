// Package analysis runs the realtime classification pipeline: the inference
// loop, the session that binds it to a capture loop over one ring buffer, and
// the controller that rebuilds sessions when settings change.
package analysis

import (
	"sync"

	"github.com/tphakala/livesound/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the analysis logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("analysis")
	})
	return serviceLogger
}
