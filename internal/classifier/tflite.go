package classifier

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	tflite "github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates"
	"github.com/tphakala/go-tflite/delegates/xnnpack"

	"github.com/tphakala/livesound/internal/conf"
	"github.com/tphakala/livesound/internal/cpuspec"
	"github.com/tphakala/livesound/internal/errors"
	"github.com/tphakala/livesound/internal/logger"
)

// TFLite runs a TensorFlow Lite model on the CPU, optionally through the
// XNNPACK delegate.
type TFLite struct {
	mu          sync.Mutex
	info        ModelInfo
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	delegate    delegates.Delegater
	interpreter *tflite.Interpreter
	closed      bool
}

// TFLiteLoader loads TFLite classifiers from a model registry.
type TFLiteLoader struct {
	models Models
	labels *LabelStore
}

// NewTFLiteLoader returns a loader over models.
func NewTFLiteLoader(models Models) *TFLiteLoader {
	return &TFLiteLoader{
		models: models,
		labels: NewLabelStore(models),
	}
}

// LoadLabels returns the label table for model.
func (l *TFLiteLoader) LoadLabels(model string) ([]string, error) {
	return l.labels.Labels(model)
}

// Load resolves model and builds an interpreter for it. threads of 0 picks a
// count for this host.
func (l *TFLiteLoader) Load(model string, threads int, backend conf.Backend) (Classifier, error) {
	ms, err := l.models.Resolve(model)
	if err != nil {
		return nil, err
	}
	return NewTFLite(model, ms.Path, threads, backend)
}

// NewTFLite loads the model at path. On any failure every native resource
// created so far is released before returning.
func NewTFLite(name, path string, threads int, backend conf.Backend) (*TFLite, error) {
	start := time.Now()
	log := GetLogger()

	if !backend.Valid() {
		return nil, errors.Newf("unsupported backend %q", backend).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			ModelContext(name, path).
			Build()
	}

	if _, err := os.Stat(path); err != nil {
		return nil, errors.New(err).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			ModelContext(name, path).
			Build()
	}

	t := &TFLite{}
	fail := func(err error) (*TFLite, error) {
		t.release()
		return nil, errors.New(err).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			ModelContext(name, path).
			Context("backend", string(backend)).
			Timing("model-load", time.Since(start)).
			Build()
	}

	t.model = tflite.NewModelFromFile(path)
	if t.model == nil {
		return fail(fmt.Errorf("cannot load TensorFlow Lite model"))
	}

	threads = cpuspec.DetermineThreadCount(threads)
	t.options = tflite.NewInterpreterOptions()

	if backend == conf.BackendXNNPACK {
		delegate := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(max(1, threads-1))}) //nolint:gosec // G115: bounded by CPU count
		if delegate == nil {
			return fail(fmt.Errorf("failed to create XNNPACK delegate"))
		}
		t.delegate = delegate
		t.options.AddDelegate(delegate)
		t.options.SetNumThread(1)
	} else {
		t.options.SetNumThread(threads)
	}

	t.options.SetErrorReporter(func(msg string, _ any) {
		GetLogger().Error("TFLite error", logger.String("message", msg))
	}, nil)

	t.interpreter = tflite.NewInterpreter(t.model, t.options)
	if t.interpreter == nil {
		return fail(fmt.Errorf("cannot create interpreter"))
	}
	if status := t.interpreter.AllocateTensors(); status != tflite.OK {
		return fail(fmt.Errorf("tensor allocation failed: %v", status))
	}

	input := t.interpreter.GetInputTensor(0)
	output := t.interpreter.GetOutputTensor(0)
	if input == nil || output == nil || input.NumDims() == 0 || output.NumDims() == 0 {
		return fail(fmt.Errorf("model has no usable input or output tensor"))
	}

	t.info = ModelInfo{
		Name:         name,
		WindowLength: input.Dim(input.NumDims() - 1),
		NumClasses:   output.Dim(output.NumDims() - 1),
		Backend:      string(backend),
		Threads:      threads,
	}
	if t.info.WindowLength <= 0 || t.info.NumClasses <= 0 {
		return fail(fmt.Errorf("invalid tensor shape: window %d, classes %d", t.info.WindowLength, t.info.NumClasses))
	}

	// the interpreter keeps its own copy of the flatbuffer
	runtime.GC()

	log.Info("model initialized",
		logger.String("model", name),
		logger.String("backend", string(backend)),
		logger.Int("threads", threads),
		logger.Int("window_length", t.info.WindowLength),
		logger.Int("num_classes", t.info.NumClasses),
		logger.Duration("load_time", time.Since(start)))

	return t, nil
}

// Info returns the model shape.
func (t *TFLite) Info() ModelInfo {
	return t.info
}

// Infer copies window into the input tensor, invokes the interpreter and
// returns a fresh copy of the output scores.
func (t *TFLite) Infer(window []float32) ([]float32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, errors.Newf("classifier is closed").
			Component("classifier").
			Category(errors.CategoryState).
			Build()
	}
	if len(window) != t.info.WindowLength {
		return nil, errors.Newf("window has %d samples, model expects %d", len(window), t.info.WindowLength).
			Component("classifier").
			Category(errors.CategoryValidation).
			Build()
	}

	input := t.interpreter.GetInputTensor(0)
	if input == nil {
		return nil, inferenceError(fmt.Errorf("cannot get input tensor"))
	}
	copy(input.Float32s(), window)

	if status := t.interpreter.Invoke(); status != tflite.OK {
		return nil, inferenceError(fmt.Errorf("tensor invoke failed: %v", status))
	}

	output := t.interpreter.GetOutputTensor(0)
	scores := make([]float32, t.info.NumClasses)
	copy(scores, output.Float32s())
	return scores, nil
}

func inferenceError(err error) error {
	return errors.New(err).
		Component("classifier").
		Category(errors.CategoryInference).
		Build()
}

// Close deletes the interpreter and its model. Safe to call twice.
func (t *TFLite) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	t.release()
	return nil
}

// release frees native handles in reverse creation order.
func (t *TFLite) release() {
	if t.interpreter != nil {
		t.interpreter.Delete()
		t.interpreter = nil
	}
	if t.options != nil {
		t.options.Delete()
		t.options = nil
	}
	if d, ok := t.delegate.(interface{ Delete() }); ok {
		d.Delete()
	}
	t.delegate = nil
	if t.model != nil {
		t.model.Delete()
		t.model = nil
	}
}
