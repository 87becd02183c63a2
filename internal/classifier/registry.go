package classifier

import (
	"maps"
	"slices"

	"github.com/tphakala/livesound/internal/conf"
	"github.com/tphakala/livesound/internal/errors"
)

// Models maps model identifiers to their model and label files.
type Models map[string]conf.ModelSettings

// NewModels copies the configured registry, expanding ~ and environment
// variables in every path.
func NewModels(configured map[string]conf.ModelSettings) Models {
	m := make(Models, len(configured))
	for name, ms := range configured {
		m[name] = conf.ModelSettings{
			Path:   conf.ExpandPath(ms.Path),
			Labels: conf.ExpandPath(ms.Labels),
		}
	}
	return m
}

// Resolve returns the files for model.
func (m Models) Resolve(model string) (conf.ModelSettings, error) {
	ms, ok := m[model]
	if !ok || ms.Path == "" {
		return conf.ModelSettings{}, errors.Newf("unknown model %q", model).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			Context("model", model).
			Context("available_models", m.Names()).
			Build()
	}
	return ms, nil
}

// Names lists registered model identifiers in sorted order.
func (m Models) Names() []string {
	return slices.Sorted(maps.Keys(m))
}
