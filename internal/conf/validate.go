package conf

import (
	"fmt"
	"strings"

	"github.com/tphakala/livesound/internal/errors"
)

// ValidationError collects every validation failure found in a Settings value
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	add := func(err error) {
		if err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	add(validateAudioSettings(&settings.Audio))
	add(validateClassifierSettings(&settings.Classifier))
	add(validateAnalysisSettings(&settings.Analysis))

	if settings.WebServer.Enabled && settings.WebServer.Listen == "" {
		add(fmt.Errorf("webserver listen address is required"))
	}

	if settings.MQTT.Enabled {
		if settings.MQTT.Broker == "" {
			add(fmt.Errorf("mqtt broker is required when mqtt is enabled"))
		}
		if settings.MQTT.Topic == "" {
			add(fmt.Errorf("mqtt topic is required when mqtt is enabled"))
		}
		if settings.MQTT.QoS > 2 {
			add(fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", settings.MQTT.QoS))
		}
	}

	if settings.Monitor.Enabled && settings.Monitor.Interval <= 0 {
		add(fmt.Errorf("monitor interval must be positive, got %s", settings.Monitor.Interval))
	}

	if settings.Telemetry.Enabled && settings.Telemetry.DSN == "" {
		add(fmt.Errorf("telemetry dsn is required when telemetry is enabled"))
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateAudioSettings(a *AudioSettings) error {
	if a.SampleRate <= 0 {
		return fmt.Errorf("audio sample rate must be positive, got %d", a.SampleRate)
	}
	if a.CapturePollPeriod < 0 {
		return fmt.Errorf("audio capture poll period must not be negative")
	}
	if a.BlockFrames < 0 {
		return fmt.Errorf("audio block frames must not be negative")
	}
	return nil
}

func validateClassifierSettings(c *ClassifierSettings) error {
	if c.Model == "" {
		return fmt.Errorf("classifier model is required")
	}
	m, ok := c.Models[c.Model]
	if !ok {
		return fmt.Errorf("classifier model %q is not defined in classifier.models", c.Model)
	}
	if m.Path == "" {
		return fmt.Errorf("classifier model %q has no path", c.Model)
	}
	if err := ValidateBackend(c.Backend); err != nil {
		return err
	}
	if c.Threads < 0 {
		return fmt.Errorf("classifier threads must not be negative, got %d", c.Threads)
	}
	if c.WarmupRuns < 0 {
		return fmt.Errorf("classifier warmup runs must not be negative, got %d", c.WarmupRuns)
	}
	return nil
}

func validateAnalysisSettings(a *AnalysisSettings) error {
	if a.PointsInAverage < 1 {
		return fmt.Errorf("analysis points in average must be at least 1, got %d", a.PointsInAverage)
	}
	if err := ValidateOverlap(a.Overlap); err != nil {
		return err
	}
	if err := ValidateThreshold(a.Threshold); err != nil {
		return err
	}
	if err := ValidateResultCount(a.ResultCount); err != nil {
		return err
	}
	if a.ResultBuffer < 1 {
		return fmt.Errorf("analysis result buffer must be at least 1, got %d", a.ResultBuffer)
	}
	return nil
}

// ValidateOverlap checks the overlap factor is in [0, 1).
func ValidateOverlap(f float64) error {
	if f < 0 || f >= 1 {
		return validationError("overlap", f, "must be in [0, 1)")
	}
	return nil
}

// ValidateThreshold checks the probability threshold is in [0, 1].
func ValidateThreshold(t float64) error {
	if t < 0 || t > 1 {
		return validationError("threshold", t, "must be in [0, 1]")
	}
	return nil
}

// ValidateResultCount checks the result count is not negative.
func ValidateResultCount(n int) error {
	if n < 0 {
		return validationError("result_count", n, "must not be negative")
	}
	return nil
}

// ValidateThreadCount checks an explicit thread count is at least 1.
func ValidateThreadCount(n int) error {
	if n < 1 {
		return validationError("threads", n, "must be at least 1")
	}
	return nil
}

// ValidateBackend checks b names a known backend.
func ValidateBackend(b Backend) error {
	if !b.Valid() {
		return validationError("backend", string(b), fmt.Sprintf("must be %q or %q", BackendCPU, BackendXNNPACK))
	}
	return nil
}

func validationError(field string, value any, reason string) error {
	return errors.Newf("invalid %s %v: %s", field, value, reason).
		Component("configuration").
		Category(errors.CategoryValidation).
		Context("field", field).
		Build()
}
