package conf

import "github.com/tphakala/livesound/internal/logger"

// GetLogger returns the config package logger. It is fetched from the global
// logger each time because the central logger is installed after config loads.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
