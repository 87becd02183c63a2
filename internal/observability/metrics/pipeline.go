package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics covers capture, inference, result delivery and session
// lifecycle. Every recording method is safe on a nil receiver so components
// can run without metrics.
type PipelineMetrics struct {
	CaptureReads     prometheus.Counter
	CaptureErrors    *prometheus.CounterVec
	SamplesAppended  prometheus.Counter
	InferenceTotal   *prometheus.CounterVec
	InferenceLatency *prometheus.HistogramVec
	SilentWindows    prometheus.Counter
	ResultsPublished prometheus.Counter
	ResultsDropped   prometheus.Counter
	SessionStarts    *prometheus.CounterVec
	SessionState     *prometheus.GaugeVec

	registry *prometheus.Registry
}

// NewPipelineMetrics creates the pipeline collectors and registers them.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.CaptureReads = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livesound_capture_reads_total",
		Help: "Total number of successful capture device reads",
	})

	m.CaptureErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livesound_capture_errors_total",
			Help: "Total number of failed capture device reads",
		},
		[]string{"reason"},
	)

	m.SamplesAppended = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livesound_capture_samples_total",
		Help: "Total number of samples appended to the ring buffer",
	})

	m.InferenceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livesound_inference_total",
			Help: "Total number of classifier invocations by outcome",
		},
		[]string{"model", "status"},
	)

	m.InferenceLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livesound_inference_duration_seconds",
			Help:    "Time taken by a single classifier invocation",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"model"},
	)

	m.SilentWindows = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livesound_silent_windows_total",
		Help: "Total number of all-zero windows that skipped inference",
	})

	m.ResultsPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livesound_results_published_total",
		Help: "Total number of classification results published",
	})

	m.ResultsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livesound_results_dropped_total",
		Help: "Total number of queued results evicted from full subscriber queues",
	})

	m.SessionStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livesound_session_starts_total",
			Help: "Total number of session start attempts by outcome",
		},
		[]string{"outcome"},
	)

	m.SessionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "livesound_session_state",
			Help: "Current session state (1 for the active state, 0 otherwise)",
		},
		[]string{"state"},
	)
}

// RecordCaptureRead counts one successful read of samples.
func (m *PipelineMetrics) RecordCaptureRead(samples int) {
	if m == nil {
		return
	}
	m.CaptureReads.Inc()
	m.SamplesAppended.Add(float64(samples))
}

// RecordCaptureError counts a failed read.
func (m *PipelineMetrics) RecordCaptureError(reason string) {
	if m == nil {
		return
	}
	m.CaptureErrors.WithLabelValues(reason).Inc()
}

// RecordInference records one classifier call.
func (m *PipelineMetrics) RecordInference(model string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := StatusOK
	if err != nil {
		status = StatusError
	} else {
		m.InferenceLatency.WithLabelValues(model).Observe(d.Seconds())
	}
	m.InferenceTotal.WithLabelValues(model, status).Inc()
}

// RecordSilentWindow counts a skipped tick.
func (m *PipelineMetrics) RecordSilentWindow() {
	if m == nil {
		return
	}
	m.SilentWindows.Inc()
}

// RecordResultPublished counts a broadcast result.
func (m *PipelineMetrics) RecordResultPublished() {
	if m == nil {
		return
	}
	m.ResultsPublished.Inc()
}

// RecordResultDropped counts an evicted queue entry.
func (m *PipelineMetrics) RecordResultDropped() {
	if m == nil {
		return
	}
	m.ResultsDropped.Inc()
}

// RecordSessionStart counts a start attempt.
func (m *PipelineMetrics) RecordSessionStart(outcome string) {
	if m == nil {
		return
	}
	m.SessionStarts.WithLabelValues(outcome).Inc()
}

// SetSessionState marks state as the active one.
func (m *PipelineMetrics) SetSessionState(state string) {
	if m == nil {
		return
	}
	for _, s := range SessionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.SessionState.WithLabelValues(s).Set(v)
	}
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.CaptureReads.Describe(ch)
	m.CaptureErrors.Describe(ch)
	m.SamplesAppended.Describe(ch)
	m.InferenceTotal.Describe(ch)
	m.InferenceLatency.Describe(ch)
	m.SilentWindows.Describe(ch)
	m.ResultsPublished.Describe(ch)
	m.ResultsDropped.Describe(ch)
	m.SessionStarts.Describe(ch)
	m.SessionState.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.CaptureReads.Collect(ch)
	m.CaptureErrors.Collect(ch)
	m.SamplesAppended.Collect(ch)
	m.InferenceTotal.Collect(ch)
	m.InferenceLatency.Collect(ch)
	m.SilentWindows.Collect(ch)
	m.ResultsPublished.Collect(ch)
	m.ResultsDropped.Collect(ch)
	m.SessionStarts.Collect(ch)
	m.SessionState.Collect(ch)
}
