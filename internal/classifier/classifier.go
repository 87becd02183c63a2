// Package classifier loads audio classification models and their label
// tables and runs inference on fixed-length sample windows.
package classifier

import (
	"github.com/tphakala/livesound/internal/conf"
)

// ModelInfo describes the shape of a loaded model.
type ModelInfo struct {
	Name         string `json:"name"`
	WindowLength int    `json:"windowLength"` // samples per inference window
	NumClasses   int    `json:"numClasses"`
	Backend      string `json:"backend"`
	Threads      int    `json:"threads"`
}

// Classifier scores one window of mono float32 samples.
//
// Infer is called from a single goroutine. Close releases native resources
// and may be called more than once.
type Classifier interface {
	Info() ModelInfo
	Infer(window []float32) ([]float32, error)
	Close() error
}

// Loader creates classifiers and label tables by model identifier.
type Loader interface {
	Load(model string, threads int, backend conf.Backend) (Classifier, error)
	LoadLabels(model string) ([]string, error)
}
