// Package monitor samples host resources while the pipeline runs. Inference
// competes with everything else on small boards, so a sustained CPU warning
// usually explains late results.
package monitor

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/time/rate"

	"github.com/tphakala/livesound/internal/conf"
	"github.com/tphakala/livesound/internal/errors"
	"github.com/tphakala/livesound/internal/logger"
	"github.com/tphakala/livesound/internal/observability/metrics"
)

const defaultHysteresisPercent = 5.0

// GetLogger returns the module logger for the system monitor.
func GetLogger() logger.Logger {
	return logger.Global().Module("monitor")
}

// Sample is one resource reading.
type Sample struct {
	CPUPercent    float64   `json:"cpuPercent"`
	MemoryPercent float64   `json:"memoryPercent"`
	ProcessRSS    uint64    `json:"processRssBytes"`
	Time          time.Time `json:"time"`
}

// Sampler reads the current resource usage.
type Sampler func(ctx context.Context) (Sample, error)

// SystemMonitor samples resources on an interval, exports them as metrics
// and logs when CPU usage crosses the warning threshold.
type SystemMonitor struct {
	interval   time.Duration
	cpuWarning float64
	sampler    Sampler
	metrics    *metrics.SystemMetrics
	log        logger.Logger
	errLimiter *rate.Limiter

	mu       sync.RWMutex
	last     Sample
	hasLast  bool
	cpuAlert bool
}

// NewSystemMonitor creates a monitor backed by gopsutil. m may be nil.
func NewSystemMonitor(settings *conf.Settings, m *metrics.SystemMetrics) *SystemMonitor {
	return newSystemMonitor(settings.Monitor, HostSampler(), m)
}

func newSystemMonitor(cfg conf.MonitorSettings, sampler Sampler, m *metrics.SystemMetrics) *SystemMonitor {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &SystemMonitor{
		interval:   interval,
		cpuWarning: cfg.CPUWarning,
		sampler:    sampler,
		metrics:    m,
		log:        GetLogger(),
		errLimiter: rate.NewLimiter(rate.Every(10*time.Minute), 1),
	}
}

// Run samples immediately and then every interval until ctx is cancelled.
func (m *SystemMonitor) Run(ctx context.Context) error {
	m.log.Info("system monitor started", logger.Duration("interval", m.interval))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.check(ctx)
	for {
		select {
		case <-ctx.Done():
			m.log.Info("system monitor stopped")
			return nil
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

// Last returns the most recent successful sample.
func (m *SystemMonitor) Last() (Sample, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last, m.hasLast
}

// CPUAlert reports whether CPU usage is above the warning threshold.
func (m *SystemMonitor) CPUAlert() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cpuAlert
}

func (m *SystemMonitor) check(ctx context.Context) {
	s, err := m.sampler(ctx)
	m.metrics.RecordSample(s.CPUPercent, s.MemoryPercent, s.ProcessRSS, err)
	if err != nil {
		if ctx.Err() == nil && m.errLimiter.Allow() {
			m.log.Warn("failed to sample system resources", logger.Error(err))
		}
		return
	}
	if s.Time.IsZero() {
		s.Time = time.Now()
	}

	m.mu.Lock()
	m.last = s
	m.hasLast = true
	raised, cleared := m.updateAlertLocked(s.CPUPercent)
	m.mu.Unlock()

	switch {
	case raised:
		m.metrics.SetCPUAlert(true)
		m.log.Warn("high CPU usage, inference may fall behind",
			logger.Float64("cpu_percent", s.CPUPercent),
			logger.Float64("threshold", m.cpuWarning))
	case cleared:
		m.metrics.SetCPUAlert(false)
		m.log.Info("CPU usage back to normal", logger.Float64("cpu_percent", s.CPUPercent))
	}
}

// updateAlertLocked applies the threshold with hysteresis so a value
// hovering at the limit does not flap.
func (m *SystemMonitor) updateAlertLocked(cpuPercent float64) (raised, cleared bool) {
	if m.cpuWarning <= 0 {
		return false, false
	}
	switch {
	case !m.cpuAlert && cpuPercent >= m.cpuWarning:
		m.cpuAlert = true
		return true, false
	case m.cpuAlert && cpuPercent < m.cpuWarning-defaultHysteresisPercent:
		m.cpuAlert = false
		return false, true
	}
	return false, false
}

// HostSampler reads host CPU and memory usage and the resident size of the
// current process.
func HostSampler() Sampler {
	var (
		once    sync.Once
		self    *process.Process
		procErr error
	)

	return func(ctx context.Context) (Sample, error) {
		// zero interval compares against the previous call
		percents, err := cpu.PercentWithContext(ctx, 0, false)
		if err != nil {
			return Sample{}, sampleError(err, "cpu")
		}
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return Sample{}, sampleError(err, "memory")
		}

		s := Sample{MemoryPercent: vm.UsedPercent, Time: time.Now()}
		if len(percents) > 0 {
			s.CPUPercent = percents[0]
		}

		once.Do(func() {
			self, procErr = process.NewProcessWithContext(ctx, int32(os.Getpid())) //nolint:gosec // pids fit in int32
		})
		if procErr == nil {
			if info, err := self.MemoryInfoWithContext(ctx); err == nil {
				s.ProcessRSS = info.RSS
			}
		}
		return s, nil
	}
}

func sampleError(err error, resource string) error {
	return errors.New(err).
		Component("monitor").
		Category(errors.CategoryGeneric).
		Context("resource", resource).
		Build()
}
