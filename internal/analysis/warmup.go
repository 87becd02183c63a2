package analysis

import (
	"math"
	"time"

	"github.com/tphakala/livesound/internal/classifier"
	"github.com/tphakala/livesound/internal/errors"
	"github.com/tphakala/livesound/internal/logger"
)

const (
	warmupFrequency = 440.0
	warmupAmplitude = 0.5
)

// WarmupWindow returns a deterministic 440 Hz sine of length samples.
func WarmupWindow(length, sampleRate int) []float32 {
	window := make([]float32, length)
	step := 2 * math.Pi * warmupFrequency / float64(sampleRate)
	for i := range window {
		window[i] = float32(warmupAmplitude * math.Sin(step*float64(i)))
	}
	return window
}

// Warmup runs the classifier runs times on a synthetic window so the first
// real tick does not pay for lazy allocations inside the interpreter.
func Warmup(c classifier.Classifier, runs, sampleRate int) error {
	if runs <= 0 {
		return nil
	}

	info := c.Info()
	window := WarmupWindow(info.WindowLength, sampleRate)

	start := time.Now()
	for i := range runs {
		if _, err := c.Infer(window); err != nil {
			return errors.New(err).
				Component("analysis").
				Category(errors.CategoryModelLoad).
				Context("operation", "warmup").
				Context("run", i+1).
				ModelContext(info.Name, "").
				Build()
		}
	}

	GetLogger().Debug("classifier warmed up",
		logger.String("model", info.Name),
		logger.Int("runs", runs),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}
