package analysis

import (
	"context"
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/livesound/internal/classifier"
	"github.com/tphakala/livesound/internal/errors"
	"github.com/tphakala/livesound/internal/logger"
	"github.com/tphakala/livesound/internal/myaudio"
	"github.com/tphakala/livesound/internal/results"
)

// ErrSilentWindow marks a tick whose window was all zeros. Run swallows it.
var ErrSilentWindow = errors.NewStd("silent window")

// Publisher accepts finished results.
type Publisher interface {
	Publish(r *results.ClassificationResult)
}

// InferenceConfig parameterizes an InferenceLoop.
type InferenceConfig struct {
	SessionID       string
	SampleRate      int
	PointsInAverage int
	Overlap         float64
	Threshold       float64
	ResultCount     int
	Labels          []string
	Recorder        Recorder
	Logger          logger.Logger
}

// InferenceLoop periodically classifies the most recent window of the ring
// buffer and publishes ranked results.
type InferenceLoop struct {
	classifier classifier.Classifier
	buffer     *myaudio.RingBuffer
	publisher  Publisher
	cfg        InferenceConfig
	info       classifier.ModelInfo
	delay      time.Duration
	window     []float32
	recorder   Recorder
	log        logger.Logger
	errLimiter *rate.Limiter
}

// InferenceDelay returns the tick period for a window of windowLength samples:
// the window duration in milliseconds scaled by (1 - overlap), rounded, and
// never below one millisecond.
func InferenceDelay(windowLength, sampleRate int, overlap float64) time.Duration {
	if sampleRate <= 0 {
		return time.Millisecond
	}
	windowMs := float64(windowLength) * 1000 / float64(sampleRate)
	ms := math.Round(windowMs * (1 - overlap))
	return time.Duration(max(ms, 1)) * time.Millisecond
}

// NewInferenceLoop checks that the classifier has a usable shape that fits
// the buffer before binding them together.
func NewInferenceLoop(c classifier.Classifier, buffer *myaudio.RingBuffer, publisher Publisher, cfg InferenceConfig) (*InferenceLoop, error) {
	info := c.Info()
	if info.WindowLength <= 0 || info.NumClasses <= 0 {
		return nil, errors.Newf("classifier reports window length %d and %d classes", info.WindowLength, info.NumClasses).
			Component("analysis").
			Category(errors.CategoryModelLoad).
			ModelContext(info.Name, "").
			Build()
	}
	if info.WindowLength > buffer.Capacity() {
		return nil, errors.Newf("window length %d exceeds buffer capacity %d", info.WindowLength, buffer.Capacity()).
			Component("analysis").
			Category(errors.CategoryState).
			Build()
	}

	recorder := cfg.Recorder
	if recorder == nil {
		recorder = noopRecorder{}
	}
	log := cfg.Logger
	if log == nil {
		log = GetLogger()
	}

	return &InferenceLoop{
		classifier: c,
		buffer:     buffer,
		publisher:  publisher,
		cfg:        cfg,
		info:       info,
		delay:      InferenceDelay(info.WindowLength, cfg.SampleRate, cfg.Overlap),
		window:     make([]float32, info.WindowLength),
		recorder:   recorder,
		log:        log.Module("inference"),
		errLimiter: rate.NewLimiter(rate.Every(time.Second), 3),
	}, nil
}

// Delay returns the tick period.
func (l *InferenceLoop) Delay() time.Duration {
	return l.delay
}

// Run ticks until ctx is cancelled. Per-tick failures are logged and counted
// and never end the loop.
func (l *InferenceLoop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.delay)
	defer ticker.Stop()

	l.log.Debug("inference loop started",
		logger.Duration("delay", l.delay),
		logger.Int("window_length", l.info.WindowLength))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if _, err := l.Tick(); err != nil && !errors.Is(err, ErrSilentWindow) {
			if l.errLimiter.Allow() {
				l.log.Warn("inference tick failed", logger.Error(err))
			}
		}
	}
}

// Tick runs one read, classify, rank and publish cycle. It returns
// ErrSilentWindow without calling the classifier when the window is silent.
func (l *InferenceLoop) Tick() (*results.ClassificationResult, error) {
	if err := l.buffer.ReadWindowInto(l.window, l.cfg.PointsInAverage); err != nil {
		return nil, err
	}
	if myaudio.IsSilent(l.window) {
		l.recorder.RecordSilentWindow()
		return nil, ErrSilentWindow
	}

	start := time.Now()
	scores, err := l.classifier.Infer(l.window)
	elapsed := time.Since(start)
	l.recorder.RecordInference(l.info.Name, elapsed, err)
	if err != nil {
		return nil, err
	}

	r := &results.ClassificationResult{
		SessionID:  l.cfg.SessionID,
		Model:      l.info.Name,
		Categories: Rank(scores, l.cfg.Labels, float32(l.cfg.Threshold), l.cfg.ResultCount),
		LatencyMs:  results.LatencyMillis(elapsed),
		Timestamp:  time.Now(),
	}
	l.publisher.Publish(r)

	if top, ok := r.Top(); ok {
		l.log.Trace("result published",
			logger.String("label", top.Label),
			logger.Float64("score", float64(top.Score)),
			logger.Duration("latency", elapsed))
	}
	return r, nil
}
