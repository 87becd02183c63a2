package classifier

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/livesound/internal/errors"
	"github.com/tphakala/livesound/internal/logger"
)

// ParseLabels reads a label table. CSV input takes the last column of every
// row and skips a header row whose last column is "display_name" or "label".
// Anything else is read as one label per line.
func ParseLabels(r io.Reader, csvFormat bool) ([]string, error) {
	if csvFormat {
		return parseCSVLabels(r)
	}

	var labels []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		labels = append(labels, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return labels, nil
}

func parseCSVLabels(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var labels []string
	for row := 0; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) == 0 {
			continue
		}
		last := strings.TrimSpace(record[len(record)-1])
		if row == 0 && (strings.EqualFold(last, "display_name") || strings.EqualFold(last, "label")) {
			continue
		}
		labels = append(labels, last)
	}
	return labels, nil
}

// LoadLabelFile reads the label table at path.
func LoadLabelFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, labelLoadError(err, path)
	}
	defer file.Close()

	labels, err := ParseLabels(file, strings.EqualFold(filepath.Ext(path), ".csv"))
	if err != nil {
		return nil, labelLoadError(err, path)
	}
	if len(labels) == 0 {
		return nil, labelLoadError(errors.NewStd("label file is empty"), path)
	}
	return labels, nil
}

func labelLoadError(err error, path string) error {
	return errors.New(err).
		Component("classifier").
		Category(errors.CategoryLabelLoad).
		FileContext(path, 0).
		Build()
}

// LabelStore caches parsed label tables per model. Rebuilding a session with
// the same model does not touch the file system again.
type LabelStore struct {
	models Models
	cache  *cache.Cache
}

// NewLabelStore returns a store resolving paths through models.
func NewLabelStore(models Models) *LabelStore {
	// label files are read once per process; no expiry and no janitor goroutine
	return &LabelStore{
		models: models,
		cache:  cache.New(cache.NoExpiration, 0),
	}
}

// Labels returns the label table for model. The returned slice is shared and
// must not be modified.
func (s *LabelStore) Labels(model string) ([]string, error) {
	if cached, ok := s.cache.Get(model); ok {
		return cached.([]string), nil
	}

	ms, err := s.models.Resolve(model)
	if err != nil {
		return nil, err
	}
	if ms.Labels == "" {
		return nil, errors.Newf("no label file configured for model %q", model).
			Component("classifier").
			Category(errors.CategoryLabelLoad).
			Context("model", model).
			Build()
	}

	labels, err := LoadLabelFile(ms.Labels)
	if err != nil {
		return nil, err
	}

	s.cache.Set(model, labels, cache.NoExpiration)
	GetLogger().Debug("labels loaded",
		logger.String("model", model),
		logger.Int("count", len(labels)))
	return labels, nil
}
