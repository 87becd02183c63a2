package analysis

import (
	"sync"
	"sync/atomic"

	"github.com/tphakala/livesound/internal/classifier"
	"github.com/tphakala/livesound/internal/conf"
	"github.com/tphakala/livesound/internal/errors"
	"github.com/tphakala/livesound/internal/logger"
	"github.com/tphakala/livesound/internal/results"
)

// Controller is the control surface of the pipeline. It owns the current
// settings snapshot and at most one session, and turns every settings change
// made while running into a full stop and a fresh session.
//
// All operations that touch the session are serialized by mu, so two
// concurrent setters never produce overlapping rebuilds: the second one waits
// and rebuilds from the settings the first one stored.
type Controller struct {
	mu       sync.Mutex
	settings atomic.Pointer[conf.Settings]
	deps     SessionDeps
	results  *results.Broadcaster
	session  *Session
	lastErr  error
	log      logger.Logger
}

// NewController creates an idle controller. Results of every session it
// starts are published to broadcaster.
func NewController(settings *conf.Settings, loader classifier.Loader, devices DeviceFactory, broadcaster *results.Broadcaster, recorder Recorder) *Controller {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	c := &Controller{
		deps: SessionDeps{
			Loader:    loader,
			Devices:   devices,
			Publisher: broadcaster,
			Recorder:  recorder,
		},
		results: broadcaster,
		log:     GetLogger().Module("controller"),
	}
	c.settings.Store(settings.Clone())
	recorder.SetSessionState(string(StateIdle))
	return c
}

// Start starts a new session from the current settings. Starting while a
// session is running is a no-op.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked()
}

func (c *Controller) startLocked() error {
	if c.session != nil && c.session.State() == StateRunning {
		return nil
	}

	s := NewSession(c.settings.Load(), c.deps)
	if err := s.Start(); err != nil {
		c.lastErr = err
		return err
	}
	c.session = s
	c.lastErr = nil
	return nil
}

// Stop stops the running session, if any, and waits for its resources to be
// released.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.Stop()
	}
}

// State returns the state of the current session, Idle when none was started.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return StateIdle
	}
	return c.session.State()
}

// Session returns the most recently started session or nil.
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// SessionID returns the ID of the most recently started session, empty when
// none was started.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.ID()
}

// Settings returns a copy of the current settings snapshot.
func (c *Controller) Settings() *conf.Settings {
	return c.settings.Load().Clone()
}

// LastError returns the error of the last failed start, nil after a
// successful one.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Results returns the broadcaster sessions publish to.
func (c *Controller) Results() *results.Broadcaster {
	return c.results
}

// SetModel selects a model defined in the model registry.
func (c *Controller) SetModel(model string) error {
	return c.update("model", model, func(s *conf.Settings) error {
		m, ok := s.Classifier.Models[model]
		if !ok || m.Path == "" {
			return errors.Newf("model %q is not defined", model).
				Component("analysis").
				Category(errors.CategoryValidation).
				Context("field", "model").
				Build()
		}
		s.Classifier.Model = model
		return nil
	})
}

// SetDelegate selects the inference backend.
func (c *Controller) SetDelegate(backend conf.Backend) error {
	return c.update("backend", backend, func(s *conf.Settings) error {
		if err := conf.ValidateBackend(backend); err != nil {
			return err
		}
		s.Classifier.Backend = backend
		return nil
	})
}

// SetOverlap sets the window overlap factor, in [0, 1).
func (c *Controller) SetOverlap(overlap float64) error {
	return c.update("overlap", overlap, func(s *conf.Settings) error {
		if err := conf.ValidateOverlap(overlap); err != nil {
			return err
		}
		s.Analysis.Overlap = overlap
		return nil
	})
}

// SetResultCount sets how many ranked categories a result carries.
func (c *Controller) SetResultCount(n int) error {
	return c.update("result_count", n, func(s *conf.Settings) error {
		if err := conf.ValidateResultCount(n); err != nil {
			return err
		}
		s.Analysis.ResultCount = n
		return nil
	})
}

// SetThreshold sets the probability threshold, in [0, 1].
func (c *Controller) SetThreshold(threshold float64) error {
	return c.update("threshold", threshold, func(s *conf.Settings) error {
		if err := conf.ValidateThreshold(threshold); err != nil {
			return err
		}
		s.Analysis.Threshold = threshold
		return nil
	})
}

// SetThreadCount sets the classifier thread count, at least 1.
func (c *Controller) SetThreadCount(n int) error {
	return c.update("threads", n, func(s *conf.Settings) error {
		if err := conf.ValidateThreadCount(n); err != nil {
			return err
		}
		s.Classifier.Threads = n
		return nil
	})
}

// update applies mutate to a clone of the current settings and publishes the
// clone. A running session is replaced by one built from the new settings.
// Validation failures leave settings and session untouched.
func (c *Controller) update(field string, value any, mutate func(*conf.Settings) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.settings.Load().Clone()
	if err := mutate(next); err != nil {
		return err
	}
	c.settings.Store(next)
	c.log.Info("setting changed", logger.String("field", field), logger.Any("value", value))

	if c.session == nil || c.session.State() != StateRunning {
		return nil
	}

	c.log.Info("rebuilding session", logger.String("previous_session_id", c.session.ID()))
	c.session.Stop()
	return c.startLocked()
}
