package results

import (
	"sync"

	"github.com/tphakala/livesound/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the results logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("results")
	})
	return serviceLogger
}
