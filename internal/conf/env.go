package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding maps a short environment variable onto a config key
type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"audio.source", "LIVESOUND_SOURCE", nil},
		{"audio.samplerate", "LIVESOUND_SAMPLERATE", validateEnvPositiveInt},
		{"classifier.model", "LIVESOUND_MODEL", nil},
		{"classifier.backend", "LIVESOUND_BACKEND", validateEnvBackend},
		{"classifier.threads", "LIVESOUND_THREADS", validateEnvThreads},
		{"analysis.overlap", "LIVESOUND_OVERLAP", validateEnvOverlap},
		{"analysis.threshold", "LIVESOUND_THRESHOLD", validateEnvThreshold},
		{"analysis.resultcount", "LIVESOUND_RESULTCOUNT", validateEnvNonNegativeInt},
		{"telemetry.dsn", "LIVESOUND_SENTRY_DSN", nil},
		{"mqtt.password", "LIVESOUND_MQTT_PASSWORD", nil},
	}
}

// automaticEnvName returns the name AutomaticEnv would derive for key.
func automaticEnvName(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// bindEnvVars binds short aliases next to the automatic names and validates set values.
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar, automaticEnvName(binding.ConfigKey)); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if value := os.Getenv(binding.EnvVar); value != "" {
			if err := binding.Validate(value); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value %q: %v", binding.EnvVar, value, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be an integer")
	}
	if n <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateEnvNonNegativeInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be an integer")
	}
	if n < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validateEnvThreads(value string) error {
	return validateEnvNonNegativeInt(value)
}

func validateEnvBackend(value string) error {
	if !Backend(strings.ToLower(value)).Valid() {
		return fmt.Errorf("must be %q or %q", BackendCPU, BackendXNNPACK)
	}
	return nil
}

func validateEnvOverlap(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if f < 0 || f >= 1 {
		return fmt.Errorf("must be in [0, 1)")
	}
	return nil
}

func validateEnvThreshold(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if f < 0 || f > 1 {
		return fmt.Errorf("must be in [0, 1]")
	}
	return nil
}
