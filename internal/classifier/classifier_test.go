package classifier

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/livesound/internal/conf"
	"github.com/tphakala/livesound/internal/errors"
)

func TestParseLabelsText(t *testing.T) {
	t.Parallel()

	labels, err := ParseLabels(strings.NewReader("Speech\n\n  Dog \nCat\n"), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Speech", "Dog", "Cat"}, labels)
}

func TestParseLabelsCSVTakesLastColumn(t *testing.T) {
	t.Parallel()

	input := `index,mid,display_name
0,/m/09x0r,Speech
1,/m/0ytgt,"Child speech, kid speaking"
2,/m/01h8n0,Conversation
`
	labels, err := ParseLabels(strings.NewReader(input), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"Speech", "Child speech, kid speaking", "Conversation"}, labels)
}

func TestParseLabelsCSVWithoutHeader(t *testing.T) {
	t.Parallel()

	labels, err := ParseLabels(strings.NewReader("0,yes\n1,no\n"), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"yes", "no"}, labels)
}

func TestLoadLabelFileErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := LoadLabelFile(filepath.Join(dir, "missing.txt"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrLabelLoad)

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("\n\n"), 0o600))
	_, err = LoadLabelFile(empty)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryLabelLoad))
}

func TestModelsResolve(t *testing.T) {
	t.Setenv("LIVESOUND_TEST_MODELS", "/opt/models")

	models := NewModels(map[string]conf.ModelSettings{
		"yamnet": {Path: "$LIVESOUND_TEST_MODELS/yamnet.tflite", Labels: "$LIVESOUND_TEST_MODELS/yamnet.csv"},
		"empty":  {},
	})

	ms, err := models.Resolve("yamnet")
	require.NoError(t, err)
	assert.Equal(t, "/opt/models/yamnet.tflite", ms.Path)
	assert.Equal(t, "/opt/models/yamnet.csv", ms.Labels)

	_, err = models.Resolve("nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrModelLoad)

	_, err = models.Resolve("empty")
	require.Error(t, err)

	assert.Equal(t, []string{"empty", "yamnet"}, models.Names())
}

func TestLabelStoreCaches(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "labels.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\n"), 0o600))

	store := NewLabelStore(Models{"m": {Path: "m.tflite", Labels: path}, "nolabels": {Path: "x.tflite"}})

	labels, err := store.Labels("m")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, labels)

	// served from cache after the file is gone
	require.NoError(t, os.Remove(path))
	labels, err = store.Labels("m")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, labels)

	_, err = store.Labels("nolabels")
	assert.ErrorIs(t, err, errors.ErrLabelLoad)
}

func TestNewTFLiteRejectsBeforeTouchingRuntime(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := NewTFLite("m", filepath.Join(dir, "missing.tflite"), 1, conf.BackendCPU)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrModelLoad)

	_, err = NewTFLite("m", filepath.Join(dir, "missing.tflite"), 1, conf.Backend("gpu"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrModelLoad)

	loader := NewTFLiteLoader(Models{})
	_, err = loader.Load("unknown", 1, conf.BackendCPU)
	assert.ErrorIs(t, err, errors.ErrModelLoad)
}
