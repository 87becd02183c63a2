package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// SystemMetrics holds host resource gauges sampled by the system monitor.
type SystemMetrics struct {
	CPUUsage     prometheus.Gauge
	MemoryUsage  prometheus.Gauge
	ProcessRSS   prometheus.Gauge
	Samples      *prometheus.CounterVec
	HighCPUAlert prometheus.Gauge
	registry     *prometheus.Registry
}

// NewSystemMetrics creates and registers the system metrics.
func NewSystemMetrics(registry *prometheus.Registry) (*SystemMetrics, error) {
	m := &SystemMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register system metrics: %w", err)
	}
	return m, nil
}

func (m *SystemMetrics) initMetrics() {
	m.CPUUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "livesound_system_cpu_usage_percent",
		Help: "Host CPU usage averaged over all cores",
	})
	m.MemoryUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "livesound_system_memory_usage_percent",
		Help: "Host memory usage",
	})
	m.ProcessRSS = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "livesound_process_rss_bytes",
		Help: "Resident set size of the livesound process",
	})
	m.Samples = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livesound_system_samples_total",
			Help: "Total number of resource samples by outcome",
		},
		[]string{"status"},
	)
	m.HighCPUAlert = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "livesound_system_cpu_alert",
		Help: "1 while CPU usage is above the warning threshold",
	})
}

// RecordSample stores one resource sample. A nil err with zero values is a
// valid sample.
func (m *SystemMetrics) RecordSample(cpuPercent, memPercent float64, rss uint64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Samples.WithLabelValues(StatusError).Inc()
		return
	}
	m.Samples.WithLabelValues(StatusSuccess).Inc()
	m.CPUUsage.Set(cpuPercent)
	m.MemoryUsage.Set(memPercent)
	m.ProcessRSS.Set(float64(rss))
}

// SetCPUAlert records whether the CPU warning is active.
func (m *SystemMetrics) SetCPUAlert(active bool) {
	if m == nil {
		return
	}
	if active {
		m.HighCPUAlert.Set(1)
	} else {
		m.HighCPUAlert.Set(0)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *SystemMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.CPUUsage
	ch <- m.MemoryUsage
	ch <- m.ProcessRSS
	m.Samples.Collect(ch)
	ch <- m.HighCPUAlert
}

// Describe implements the prometheus.Collector interface.
func (m *SystemMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.CPUUsage.Desc()
	ch <- m.MemoryUsage.Desc()
	ch <- m.ProcessRSS.Desc()
	m.Samples.Describe(ch)
	ch <- m.HighCPUAlert.Desc()
}
