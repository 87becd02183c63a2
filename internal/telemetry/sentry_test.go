package telemetry

import (
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/livesound/internal/conf"
	"github.com/tphakala/livesound/internal/errors"
)

func TestInitDisabled(t *testing.T) {
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	t.Cleanup(func() { errors.SetTelemetryReporter(nil) })

	s := conf.Defaults()
	s.Telemetry.Enabled = false
	require.NoError(t, Init(&s, "test"))

	assert.Nil(t, errors.GetTelemetryReporter())
	assert.True(t, Flush(10*time.Millisecond))
}

func TestInitEnabled(t *testing.T) {
	t.Cleanup(func() { errors.SetTelemetryReporter(nil) })

	s := conf.Defaults()
	s.Telemetry.Enabled = true
	s.Telemetry.DSN = "https://public@sentry.example.com/1"
	require.NoError(t, Init(&s, "test"))

	reporter := errors.GetTelemetryReporter()
	require.NotNil(t, reporter)
	assert.True(t, reporter.IsEnabled())
}

func TestInitInvalidDSN(t *testing.T) {
	t.Cleanup(func() { errors.SetTelemetryReporter(nil) })

	s := conf.Defaults()
	s.Telemetry.Enabled = true
	s.Telemetry.DSN = "not a dsn"

	err := Init(&s, "test")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.Nil(t, errors.GetTelemetryReporter())
}

func TestApplyPrivacyFilters(t *testing.T) {
	t.Parallel()

	event := &sentry.Event{
		ServerName: "kitchen-pi",
		Message:    "connect tcp://user:pw@192.168.1.2:1883 failed",
		Exception:  []sentry.Exception{{Type: "connect", Value: "dial tcp://192.168.1.2:1883"}},
		User:       sentry.User{ID: "42", IPAddress: "10.0.0.5"},
		Contexts: map[string]sentry.Context{
			"device":  {"arch": "arm64"},
			"os":      {"name": "linux"},
			"runtime": {"name": "go"},
			"trace":   {"trace_id": "abc"},
		},
		Extra: map[string]any{
			"error_type": "*errors.errorString",
			"component":  "analysis",
			"file_path":  "/home/user/recording.wav",
		},
		Tags: map[string]string{
			"server_name": "kitchen-pi",
			"hostname":    "kitchen-pi",
			"category":    "model-load",
		},
	}

	got := applyPrivacyFilters(event)
	require.NotNil(t, got)
	assert.Empty(t, got.ServerName)
	assert.NotContains(t, got.Message, "pw@")
	assert.NotContains(t, got.Message, "192.168.1.2")
	assert.NotContains(t, got.Exception[0].Value, "192.168.1.2")
	assert.Equal(t, sentry.User{}, got.User)
	assert.Equal(t, []string{"trace"}, keys(got.Contexts))
	assert.Equal(t, map[string]any{
		"error_type": "*errors.errorString",
		"component":  "analysis",
	}, got.Extra)
	assert.Equal(t, map[string]string{"category": "model-load"}, got.Tags)

	assert.Nil(t, applyPrivacyFilters(nil))
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
