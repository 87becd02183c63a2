package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(t *testing.T, cfg *LoggingConfig) (*CentralLogger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	cl, err := newCentralLogger(cfg, buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close() })
	return cl, buf
}

func TestModuleLoggerWritesFields(t *testing.T) {
	t.Parallel()

	cl, buf := newBufferLogger(t, &LoggingConfig{
		DefaultLevel: "info",
		Console:      &ConsoleOutput{Enabled: true, Level: "info"},
	})

	log := cl.Module("capture")
	log.Info("capture device started",
		String("device", "default"),
		Int("sample_rate", 16000),
		Float64("overlap", 0.5),
		Duration("poll", 20*time.Millisecond),
		Error(errors.New("boom")))

	out := buf.String()
	assert.Contains(t, out, "capture device started")
	assert.Contains(t, out, "module=capture")
	assert.Contains(t, out, "sample_rate=16000")
	assert.Contains(t, out, "overlap=0.5")
	assert.Contains(t, out, "poll=20ms")
	assert.Contains(t, out, "error=boom")
	assert.NotContains(t, out, "time=")
}

func TestModuleLevelsFilter(t *testing.T) {
	t.Parallel()

	cl, buf := newBufferLogger(t, &LoggingConfig{
		DefaultLevel: "warn",
		Console:      &ConsoleOutput{Enabled: true, Level: "trace"},
		ModuleLevels: map[string]string{"inference": "debug"},
	})

	cl.Module("capture").Info("hidden")
	cl.Module("inference").Debug("visible")
	cl.Module("inference").Trace("too verbose")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.NotContains(t, out, "too verbose")
}

func TestSubModuleAndWith(t *testing.T) {
	t.Parallel()

	cl, buf := newBufferLogger(t, &LoggingConfig{DefaultLevel: "debug", Console: &ConsoleOutput{Enabled: true, Level: "debug"}})

	parent := cl.Module("analysis").With(String("session", "abc"))
	child := parent.Module("session")
	child.Debug("state changed", String("state", "running"))

	out := buf.String()
	assert.Contains(t, out, "module=analysis.session")
	assert.Contains(t, out, "session=abc")
	assert.Contains(t, out, "state=running")
}

func TestWithContextAddsTraceID(t *testing.T) {
	t.Parallel()

	cl, buf := newBufferLogger(t, &LoggingConfig{DefaultLevel: "info"})

	ctx := WithTraceID(t.Context(), "req-42")
	cl.Module("api").WithContext(ctx).Info("request handled")

	assert.Contains(t, buf.String(), "trace_id=req-42")
}

func TestFileOutputIsJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "livesound.log")
	cl, _ := newBufferLogger(t, &LoggingConfig{
		DefaultLevel: "info",
		Console:      &ConsoleOutput{Enabled: false},
		FileOutput:   &FileOutput{Enabled: true, Path: path, Level: "info"},
	})

	cl.Module("mqtt").Warn("publish failed", String("topic", "livesound/results"))
	require.NoError(t, cl.Flush())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
	assert.Equal(t, "publish failed", entry["msg"])
	assert.Equal(t, "mqtt", entry["module"])
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "livesound/results", entry["topic"])
}

func TestNilConfigRejected(t *testing.T) {
	t.Parallel()

	_, err := NewCentralLogger(nil)
	require.Error(t, err)
}

func TestInvalidTimezoneRejected(t *testing.T) {
	t.Parallel()

	_, err := NewCentralLogger(&LoggingConfig{Timezone: "Mars/Olympus"})
	require.Error(t, err)
}
