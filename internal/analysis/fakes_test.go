package analysis

import (
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/tphakala/livesound/internal/classifier"
	"github.com/tphakala/livesound/internal/conf"
	"github.com/tphakala/livesound/internal/errors"
	"github.com/tphakala/livesound/internal/myaudio"
	"github.com/tphakala/livesound/internal/results"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	testSampleRate   = 1000
	testWindowLength = 100
	testNumClasses   = 4
	testBlockBytes   = 40
)

var testLabels = []string{"A", "B", "C", "D"}

// testSettings returns settings tuned for fast tests: a 100 ms window at
// 1 kHz with 50% overlap ticks every 50 ms.
func testSettings() *conf.Settings {
	s := conf.Defaults()
	s.Audio.Source = "fake"
	s.Audio.SampleRate = testSampleRate
	s.Audio.CapturePollPeriod = time.Millisecond
	s.Classifier.WarmupRuns = 1
	s.Analysis.Overlap = 0.5
	s.Analysis.Threshold = 0.3
	s.Analysis.ResultCount = 2
	return &s
}

type fakeClassifier struct {
	info   classifier.ModelInfo
	scores []float32
	err    error

	infers atomic.Int32
	closed atomic.Bool
}

func newFakeClassifier(name string) *fakeClassifier {
	return &fakeClassifier{
		info: classifier.ModelInfo{
			Name:         name,
			WindowLength: testWindowLength,
			NumClasses:   testNumClasses,
			Backend:      string(conf.BackendCPU),
			Threads:      1,
		},
		scores: []float32{0.05, 0.4, 0.4, 0.9},
	}
}

func (c *fakeClassifier) Info() classifier.ModelInfo { return c.info }

func (c *fakeClassifier) Infer(window []float32) ([]float32, error) {
	c.infers.Add(1)
	if c.closed.Load() {
		return nil, errors.NewStd("classifier closed")
	}
	if len(window) != c.info.WindowLength {
		return nil, errors.NewStd("bad window length")
	}
	if c.err != nil {
		return nil, c.err
	}
	out := make([]float32, len(c.scores))
	copy(out, c.scores)
	return out, nil
}

func (c *fakeClassifier) Close() error {
	c.closed.Store(true)
	return nil
}

type loadCall struct {
	model   string
	threads int
	backend conf.Backend
}

type fakeLoader struct {
	mu          sync.Mutex
	calls       []loadCall
	classifiers []*fakeClassifier
	loadErr     error
	labels      []string
	labelErr    error
	configure   func(*fakeClassifier)
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{labels: testLabels}
}

func (l *fakeLoader) Load(model string, threads int, backend conf.Backend) (classifier.Classifier, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls = append(l.calls, loadCall{model: model, threads: threads, backend: backend})
	if l.loadErr != nil {
		return nil, l.loadErr
	}
	c := newFakeClassifier(model)
	if l.configure != nil {
		l.configure(c)
	}
	l.classifiers = append(l.classifiers, c)
	return c, nil
}

func (l *fakeLoader) LoadLabels(string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.labels, l.labelErr
}

func (l *fakeLoader) loads() []loadCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]loadCall(nil), l.calls...)
}

func (l *fakeLoader) created() []*fakeClassifier {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*fakeClassifier(nil), l.classifiers...)
}

// fakeDevice serves blocks of a constant sample value, one per millisecond.
// With limit > 0 it returns io.EOF after limit blocks.
type fakeDevice struct {
	value   int16
	limit   int32
	openErr error

	opened   atomic.Bool
	started  atomic.Bool
	reads    atomic.Int32
	stops    atomic.Int32
	stopped  chan struct{}
	stopOnce sync.Once
}

func newFakeDevice(value int16) *fakeDevice {
	return &fakeDevice{value: value, stopped: make(chan struct{})}
}

func (d *fakeDevice) Open(myaudio.Format) error {
	if d.openErr != nil {
		return d.openErr
	}
	d.opened.Store(true)
	return nil
}

func (d *fakeDevice) BlockSize() int { return testBlockBytes }

func (d *fakeDevice) Start() error {
	d.started.Store(true)
	return nil
}

func (d *fakeDevice) Read(p []byte) (int, error) {
	select {
	case <-d.stopped:
		return 0, myaudio.ErrDeviceStopped
	case <-time.After(time.Millisecond):
	}
	if n := d.reads.Add(1); d.limit > 0 && n > d.limit {
		return 0, io.EOF
	}
	n := len(p) &^ 1
	for i := 0; i < n; i += 2 {
		p[i] = byte(d.value)
		p[i+1] = byte(d.value >> 8)
	}
	return n, nil
}

func (d *fakeDevice) Stop() error {
	d.stops.Add(1)
	d.stopOnce.Do(func() { close(d.stopped) })
	return nil
}

func (d *fakeDevice) isStopped() bool {
	select {
	case <-d.stopped:
		return true
	default:
		return false
	}
}

// deviceSource hands out fresh devices and remembers them.
type deviceSource struct {
	mu        sync.Mutex
	devices   []*fakeDevice
	newDevice func() *fakeDevice
	err       error
}

func newDeviceSource(value int16) *deviceSource {
	return &deviceSource{newDevice: func() *fakeDevice { return newFakeDevice(value) }}
}

func (s *deviceSource) factory(*conf.Settings) (myaudio.CaptureDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	d := s.newDevice()
	s.devices = append(s.devices, d)
	return d, nil
}

func (s *deviceSource) all() []*fakeDevice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeDevice(nil), s.devices...)
}

// collectingPublisher records every published result.
type collectingPublisher struct {
	mu      sync.Mutex
	results []*results.ClassificationResult
}

func (p *collectingPublisher) Publish(r *results.ClassificationResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, r)
}

func (p *collectingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.results)
}

func (p *collectingPublisher) last() *results.ClassificationResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.results) == 0 {
		return nil
	}
	return p.results[len(p.results)-1]
}
