package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/livesound/internal/classifier"
	"github.com/tphakala/livesound/internal/conf"
	"github.com/tphakala/livesound/internal/errors"
	"github.com/tphakala/livesound/internal/logger"
	"github.com/tphakala/livesound/internal/myaudio"
	"github.com/tphakala/livesound/internal/observability/metrics"
)

// State is a session lifecycle state.
type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateRunning      State = "running"
	StateStopped      State = "stopped"
)

// DeviceFactory creates an unopened capture device for settings.
type DeviceFactory func(settings *conf.Settings) (myaudio.CaptureDevice, error)

// SessionDeps are the collaborators a session is built from.
type SessionDeps struct {
	Loader    classifier.Loader
	Devices   DeviceFactory
	Publisher Publisher
	Recorder  Recorder
}

// Session owns one ring buffer and the capture and inference loops sharing
// it. A session runs at most once: Idle, Initializing, Running, Stopped.
type Session struct {
	id       string
	settings *conf.Settings
	deps     SessionDeps
	log      logger.Logger

	mu         sync.Mutex
	state      State
	device     myaudio.CaptureDevice
	classifier classifier.Classifier
	buffer     *myaudio.RingBuffer
	info       classifier.ModelInfo
	labels     []string
	delay      time.Duration
	cancel     context.CancelFunc
	done       chan struct{}
	err        error
}

// NewSession prepares an idle session over a private copy of settings.
func NewSession(settings *conf.Settings, deps SessionDeps) *Session {
	if deps.Recorder == nil {
		deps.Recorder = noopRecorder{}
	}
	id := uuid.NewString()
	return &Session{
		id:       id,
		settings: settings.Clone(),
		deps:     deps,
		log:      GetLogger().With(logger.String("session_id", id)),
		state:    StateIdle,
		done:     make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Info returns the loaded model shape, zero before Running.
func (s *Session) Info() classifier.ModelInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Delay returns the inference tick period, zero before Running.
func (s *Session) Delay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delay
}

// Settings returns a copy of the settings the session was built with.
func (s *Session) Settings() *conf.Settings {
	return s.settings.Clone()
}

// Done is closed once a started session has released all of its resources,
// either through Stop or because a finite source ran out.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns why the loops ended: nil after Stop, myaudio.ErrSourceExhausted
// when a file source ran out. Valid after Done is closed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) setState(state State) {
	s.state = state
	s.deps.Recorder.SetSessionState(string(state))
}

// Start loads the classifier and labels, opens the device, sizes the ring
// buffer, warms up and then runs both loops. Any failure tears down what was
// built and leaves the session Idle.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return errors.Newf("session cannot start from state %s", s.state).
			Component("analysis").
			Category(errors.CategoryState).
			Build()
	}
	s.setState(StateInitializing)

	if err := s.initialize(); err != nil {
		s.teardownLocked()
		s.setState(StateIdle)
		s.deps.Recorder.RecordSessionStart(startOutcome(err))
		s.log.Error("session start failed", logger.Error(err))
		return err
	}

	s.deps.Recorder.RecordSessionStart(metrics.OutcomeStarted)
	s.setState(StateRunning)
	s.log.Info("session running",
		logger.String("model", s.info.Name),
		logger.Int("window_length", s.info.WindowLength),
		logger.Int("buffer_capacity", s.buffer.Capacity()),
		logger.Int("labels", len(s.labels)))
	return nil
}

func (s *Session) initialize() error {
	cfg := s.settings
	sampleRate := cfg.Audio.SampleRate

	c, err := s.deps.Loader.Load(cfg.Classifier.Model, cfg.Classifier.Threads, cfg.Classifier.Backend)
	if err != nil {
		return err
	}
	s.classifier = c
	s.info = c.Info()
	s.labels = s.loadLabels()

	device, err := s.deps.Devices(cfg)
	if err != nil {
		return asDeviceInit(err)
	}
	s.device = device
	if err := device.Open(myaudio.MonoFormat(sampleRate)); err != nil {
		return asDeviceInit(err)
	}

	blockSamples := myaudio.BlockBytes(device, sampleRate) / myaudio.BytesPerSample
	buffer, err := myaudio.NewRingBuffer(myaudio.CapacityFor(s.info.WindowLength, blockSamples))
	if err != nil {
		return err
	}
	s.buffer = buffer

	if err := Warmup(c, cfg.Classifier.WarmupRuns, sampleRate); err != nil {
		return err
	}

	inference, err := NewInferenceLoop(c, buffer, s.deps.Publisher, InferenceConfig{
		SessionID:       s.id,
		SampleRate:      sampleRate,
		PointsInAverage: cfg.Analysis.PointsInAverage,
		Overlap:         cfg.Analysis.Overlap,
		Threshold:       cfg.Analysis.Threshold,
		ResultCount:     cfg.Analysis.ResultCount,
		Labels:          s.labels,
		Recorder:        s.deps.Recorder,
		Logger:          s.log,
	})
	if err != nil {
		return err
	}
	s.delay = inference.Delay()

	capture := myaudio.NewCaptureLoop(device, buffer, myaudio.CaptureConfig{
		SampleRate: sampleRate,
		PollPeriod: cfg.Audio.CapturePollPeriod,
		Recorder:   s.deps.Recorder,
		Logger:     s.log,
	})

	if err := device.Start(); err != nil {
		return asDeviceInit(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// capture ending for any reason ends the session
		defer cancel()
		return capture.Run(gctx)
	})
	g.Go(func() error { return inference.Run(gctx) })

	go s.supervise(g)
	return nil
}

// loadLabels returns the label table, or nil when it is missing or does not
// match the model output.
func (s *Session) loadLabels() []string {
	labels, err := s.deps.Loader.LoadLabels(s.settings.Classifier.Model)
	if err != nil {
		s.log.Warn("labels unavailable, results will be unlabeled", logger.Error(err))
		return nil
	}
	if len(labels) != s.info.NumClasses {
		s.log.Warn("label count does not match model output, results will be unlabeled",
			logger.Int("labels", len(labels)),
			logger.Int("num_classes", s.info.NumClasses))
		return nil
	}
	return labels
}

// supervise waits for both loops and releases resources when they end.
func (s *Session) supervise(g *errgroup.Group) {
	err := g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.err = err
	if errors.Is(err, myaudio.ErrSourceExhausted) {
		s.log.Info("capture source exhausted, session ending")
	} else if err != nil {
		s.log.Error("session loops ended with error", logger.Error(err))
	}

	s.teardownLocked()
	s.setState(StateStopped)
	close(s.done)
}

// Stop cancels both loops and waits until the device is stopped and the
// classifier closed. Safe to call in any state and more than once.
func (s *Session) Stop() {
	s.mu.Lock()
	switch s.state {
	case StateIdle:
		s.setState(StateStopped)
		close(s.done)
		s.mu.Unlock()
		return
	case StateStopped:
		s.mu.Unlock()
		<-s.done
		return
	}

	cancel, device := s.cancel, s.device
	s.mu.Unlock()

	cancel()
	if device != nil {
		// unblocks a pending Read
		if err := device.Stop(); err != nil {
			s.log.Warn("device stop failed", logger.Error(err))
		}
	}
	<-s.done
	s.log.Info("session stopped")
}

// teardownLocked releases everything initialize created. Callers hold s.mu.
func (s *Session) teardownLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.device != nil {
		if err := s.device.Stop(); err != nil {
			s.log.Warn("device stop failed", logger.Error(err))
		}
		s.device = nil
	}
	if s.classifier != nil {
		if err := s.classifier.Close(); err != nil {
			s.log.Warn("classifier close failed", logger.Error(err))
		}
		s.classifier = nil
	}
	s.buffer = nil
}

func asDeviceInit(err error) error {
	if errors.IsCategory(err, errors.CategoryDeviceInit) {
		return err
	}
	return errors.New(err).
		Component("analysis").
		Category(errors.CategoryDeviceInit).
		Build()
}

func startOutcome(err error) string {
	switch {
	case errors.Is(err, errors.ErrModelLoad):
		return metrics.OutcomeModelLoad
	case errors.Is(err, errors.ErrDeviceInit):
		return metrics.OutcomeDeviceInit
	default:
		return metrics.OutcomeOtherFailure
	}
}
