package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/livesound/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	t.Parallel()

	d := Defaults()
	require.NoError(t, ValidateSettings(&d))
	assert.Equal(t, DefaultSampleRate, d.Audio.SampleRate)
	assert.Equal(t, BackendCPU, d.Classifier.Backend)
	assert.InDelta(t, 0.5, d.Analysis.Overlap, 1e-9)
}

func TestDefaultsReturnsIndependentValues(t *testing.T) {
	t.Parallel()

	a := Defaults()
	a.Classifier.Models["custom"] = ModelSettings{Path: "x.tflite"}
	b := Defaults()
	assert.NotContains(t, b.Classifier.Models, "custom")
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
audio:
  samplerate: 44100
  capturepollperiod: 50ms
classifier:
  model: birds
  models:
    birds:
      path: /opt/models/birds.tflite
      labels: /opt/models/birds.txt
  backend: xnnpack
  threads: 4
analysis:
  overlap: 0.75
  threshold: 0.2
  resultcount: 5
`)

	settings, err := Load(NewViper(), path)
	require.NoError(t, err)

	assert.Equal(t, 44100, settings.Audio.SampleRate)
	assert.Equal(t, 50*time.Millisecond, settings.Audio.CapturePollPeriod)
	assert.Equal(t, "birds", settings.Classifier.Model)
	assert.Equal(t, BackendXNNPACK, settings.Classifier.Backend)
	assert.Equal(t, 4, settings.Classifier.Threads)
	assert.InDelta(t, 0.75, settings.Analysis.Overlap, 1e-9)
	assert.Equal(t, 5, settings.Analysis.ResultCount)

	model, ok := settings.ActiveModel()
	require.True(t, ok)
	assert.Equal(t, "/opt/models/birds.tflite", model.Path)

	// untouched keys keep defaults
	assert.Equal(t, DefaultWarmupRuns, settings.Classifier.WarmupRuns)
	assert.Equal(t, DefaultResultBuffer, settings.Analysis.ResultBuffer)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("LIVESOUND_OVERLAP", "0.25")
	t.Setenv("LIVESOUND_ANALYSIS_RESULTCOUNT", "7")

	path := writeConfig(t, "debug: true\n")

	settings, err := Load(NewViper(), path)
	require.NoError(t, err)

	assert.True(t, settings.Debug)
	assert.InDelta(t, 0.25, settings.Analysis.Overlap, 1e-9)
	assert.Equal(t, 7, settings.Analysis.ResultCount)
}

func TestLoadResolvesSecrets(t *testing.T) {
	t.Setenv("LIVESOUND_TEST_MQTT_PASSWORD", "from-env")

	dsnFile := filepath.Join(t.TempDir(), "sentry_dsn")
	require.NoError(t, os.WriteFile(dsnFile, []byte("https://key@sentry.example/1\n"), 0o600))

	path := writeConfig(t, `
mqtt:
  password: ${LIVESOUND_TEST_MQTT_PASSWORD}
telemetry:
  dsnfile: `+dsnFile+`
`)

	settings, err := Load(NewViper(), path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", settings.MQTT.Password)
	assert.Equal(t, "https://key@sentry.example/1", settings.Telemetry.DSN)
}

func TestLoadFailsOnMissingSecretFile(t *testing.T) {
	path := writeConfig(t, `
mqtt:
  passwordfile: `+filepath.Join(t.TempDir(), "missing")+`
`)

	_, err := Load(NewViper(), path)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	path := writeConfig(t, `
analysis:
  overlap: 1.0
  threshold: 1.5
`)

	_, err := Load(NewViper(), path)
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.NotEmpty(t, ve.Errors)
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Settings)
		valid  bool
	}{
		{"defaults", func(*Settings) {}, true},
		{"overlap zero", func(s *Settings) { s.Analysis.Overlap = 0 }, true},
		{"overlap one", func(s *Settings) { s.Analysis.Overlap = 1 }, false},
		{"negative overlap", func(s *Settings) { s.Analysis.Overlap = -0.1 }, false},
		{"threshold one", func(s *Settings) { s.Analysis.Threshold = 1 }, true},
		{"threshold above one", func(s *Settings) { s.Analysis.Threshold = 1.01 }, false},
		{"result count zero", func(s *Settings) { s.Analysis.ResultCount = 0 }, true},
		{"negative result count", func(s *Settings) { s.Analysis.ResultCount = -1 }, false},
		{"points in average zero", func(s *Settings) { s.Analysis.PointsInAverage = 0 }, false},
		{"unknown backend", func(s *Settings) { s.Classifier.Backend = "gpu" }, false},
		{"unknown model", func(s *Settings) { s.Classifier.Model = "missing" }, false},
		{"zero sample rate", func(s *Settings) { s.Audio.SampleRate = 0 }, false},
		{"mqtt without broker", func(s *Settings) { s.MQTT.Enabled = true; s.MQTT.Broker = "" }, false},
		{"telemetry without dsn", func(s *Settings) { s.Telemetry.Enabled = true }, false},
		{"monitor without interval", func(s *Settings) { s.Monitor.Interval = 0 }, false},
		{"disabled monitor ignores interval", func(s *Settings) { s.Monitor.Enabled = false; s.Monitor.Interval = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := Defaults()
			tt.mutate(&s)
			err := ValidateSettings(&s)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestFieldValidatorsUseValidationCategory(t *testing.T) {
	t.Parallel()

	assert.True(t, errors.IsCategory(ValidateOverlap(1), errors.CategoryValidation))
	assert.True(t, errors.IsCategory(ValidateThreadCount(0), errors.CategoryValidation))
	assert.True(t, errors.IsCategory(ValidateBackend("tpu"), errors.CategoryValidation))
	assert.NoError(t, ValidateThreadCount(1))
	assert.NoError(t, ValidateBackend(BackendXNNPACK))
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	d := Defaults()
	d.Logging.ModuleLevels = map[string]string{"capture": "debug"}

	c := d.Clone()
	c.Classifier.Models["extra"] = ModelSettings{Path: "extra.tflite"}
	c.Logging.Console.Level = "error"
	c.Logging.ModuleLevels["capture"] = "warn"
	c.Analysis.Overlap = 0.9

	assert.NotContains(t, d.Classifier.Models, "extra")
	assert.Equal(t, "info", d.Logging.Console.Level)
	assert.Equal(t, "debug", d.Logging.ModuleLevels["capture"])
	assert.InDelta(t, 0.5, d.Analysis.Overlap, 1e-9)
}

func TestMarshalYAMLRedactsSecrets(t *testing.T) {
	t.Parallel()

	d := Defaults()
	d.MQTT.Password = "hunter2"
	d.Telemetry.DSN = "https://key@sentry.example/1"

	out, err := MarshalYAML(&d)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "hunter2")
	assert.NotContains(t, string(out), "sentry.example")
	assert.Contains(t, string(out), "samplerate: 16000")
	assert.Equal(t, "hunter2", d.MQTT.Password)
}

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	d := Defaults()
	d.Analysis.ResultCount = 9
	require.NoError(t, SaveYAMLConfig(path, &d))

	settings, err := Load(NewViper(), path)
	require.NoError(t, err)
	assert.Equal(t, 9, settings.Analysis.ResultCount)
	assert.Equal(t, d.Audio.CapturePollPeriod, settings.Audio.CapturePollPeriod)
}

func TestExpandPath(t *testing.T) {
	t.Setenv("LIVESOUND_MODELS", "/srv/models")

	assert.Equal(t, "/srv/models/a.tflite", ExpandPath("$LIVESOUND_MODELS/a.tflite"))
	assert.Empty(t, ExpandPath(""))

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "m.tflite"), ExpandPath("~/m.tflite"))
}

func TestBindFlagsBindsOnlyTheGivenFlagSet(t *testing.T) {
	t.Parallel()

	realtime := pflag.NewFlagSet("realtime", pflag.ContinueOnError)
	realtime.Float64("overlap", 0, "")
	require.NoError(t, AnnotateFlags(realtime, map[string]string{"overlap": "analysis.overlap"}))

	file := pflag.NewFlagSet("file", pflag.ContinueOnError)
	file.Float64("overlap", 0, "")
	require.NoError(t, AnnotateFlags(file, map[string]string{"overlap": "analysis.overlap"}))

	require.NoError(t, realtime.Parse([]string{"--overlap", "0.75"}))

	v := NewViper()
	require.NoError(t, BindFlags(v, realtime))
	settings, err := Load(v, writeConfig(t, "analysis:\n  overlap: 0.25\n"))
	require.NoError(t, err)
	assert.InDelta(t, 0.75, settings.Analysis.Overlap, 1e-9)

	assert.Error(t, AnnotateFlags(file, map[string]string{"missing": "analysis.threshold"}))
}
