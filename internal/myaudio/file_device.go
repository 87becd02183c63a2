package myaudio

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"
	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/tphakala/livesound/internal/errors"
	"github.com/tphakala/livesound/internal/logger"
)

// fileBlockDuration is the amount of audio served per Read.
const fileBlockDuration = 100 * time.Millisecond

// FileDevice replays a PCM WAV file as a capture device. Multi-channel input
// is downmixed to mono and resampled to the requested rate when needed. Read
// returns io.EOF once the file is exhausted.
type FileDevice struct {
	path     string
	realtime bool

	mu         sync.Mutex
	pcm        []byte
	pos        int
	blockBytes int
	byteRate   int
	started    time.Time
	stopped    chan struct{}
	stopOnce   sync.Once
}

// NewFileDevice returns a device reading path. With realtime set, reads are
// paced to the audio clock instead of returning as fast as possible.
func NewFileDevice(path string, realtime bool) *FileDevice {
	return &FileDevice{
		path:     path,
		realtime: realtime,
		stopped:  make(chan struct{}),
	}
}

// Open decodes the whole file into mono 16-bit PCM at format.SampleRate.
func (f *FileDevice) Open(format Format) error {
	file, err := os.Open(f.path)
	if err != nil {
		return errors.New(err).
			Component("myaudio").
			Category(errors.CategoryDeviceInit).
			Context("operation", "open_file").
			FileContext(f.path, 0).
			Build()
	}
	defer file.Close()

	samples, sourceRate, err := decodeWAVMono(file)
	if err != nil {
		return errors.New(err).
			Component("myaudio").
			Category(errors.CategoryDeviceInit).
			Context("operation", "decode_wav").
			FileContext(f.path, 0).
			Build()
	}

	if sourceRate != format.SampleRate {
		samples, err = resample(samples, sourceRate, format.SampleRate)
		if err != nil {
			return deviceInitError(err, "resample")
		}
	}

	mono := make([]float32, len(samples))
	for i, s := range samples {
		mono[i] = float32(s)
	}
	pcm := make([]byte, len(mono)*BytesPerSample)
	EncodeS16LE(pcm, mono)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.pcm = pcm
	f.pos = 0
	f.byteRate = format.SampleRate * BytesPerSample
	f.blockBytes = int(float64(f.byteRate)*fileBlockDuration.Seconds()) &^ 1

	GetLogger().Info("file source opened",
		logger.Int("source_sample_rate", sourceRate),
		logger.Int("sample_rate", format.SampleRate),
		logger.Duration("duration", f.Duration()))

	return nil
}

// decodeWAVMono reads every frame of a PCM WAV, averaging channels.
func decodeWAVMono(r io.ReadSeeker) ([]float64, int, error) {
	decoder := wav.NewDecoder(r)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("invalid wav file")
	}

	var divisor float64
	switch decoder.BitDepth {
	case 16:
		divisor = 32768.0
	case 24:
		divisor = 8388608.0
	case 32:
		divisor = 2147483648.0
	default:
		return nil, 0, fmt.Errorf("unsupported bit depth: %d", decoder.BitDepth)
	}

	channels := int(decoder.NumChans)
	if channels < 1 {
		return nil, 0, fmt.Errorf("invalid channel count: %d", channels)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read pcm data: %w", err)
	}

	frames := len(buf.Data) / channels
	mono := make([]float64, frames)
	for i := range frames {
		var sum float64
		for c := range channels {
			sum += float64(buf.Data[i*channels+c])
		}
		mono[i] = sum / float64(channels) / divisor
	}

	return mono, int(decoder.SampleRate), nil
}

func resample(samples []float64, from, to int) ([]float64, error) {
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	out, err := r.Process(samples)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}
	return out, nil
}

// Duration returns the decoded audio length. Callers must hold f.mu or call after Open.
func (f *FileDevice) Duration() time.Duration {
	if f.byteRate == 0 {
		return 0
	}
	return time.Duration(len(f.pcm)) * time.Second / time.Duration(f.byteRate)
}

// BlockSize returns the bytes served per Read.
func (f *FileDevice) BlockSize() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blockBytes
}

// Start marks the audio clock origin for realtime pacing.
func (f *FileDevice) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pcm == nil {
		return errors.Newf("file device not open").
			Component("myaudio").
			Category(errors.CategoryState).
			Build()
	}
	f.started = time.Now()
	return nil
}

// Read copies the next block into p. It returns io.EOF after the last block.
func (f *FileDevice) Read(p []byte) (int, error) {
	if f.realtime {
		if err := f.waitForAudioClock(); err != nil {
			return 0, err
		}
	}

	select {
	case <-f.stopped:
		return 0, ErrDeviceStopped
	default:
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pos >= len(f.pcm) {
		return 0, io.EOF
	}
	n := copy(p, f.pcm[f.pos:])
	f.pos += n
	return n, nil
}

// waitForAudioClock sleeps until the audio already served has played out.
func (f *FileDevice) waitForAudioClock() error {
	f.mu.Lock()
	due := f.started.Add(time.Duration(f.pos) * time.Second / time.Duration(max(f.byteRate, 1)))
	f.mu.Unlock()

	wait := time.Until(due)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-f.stopped:
		return ErrDeviceStopped
	}
}

// Stop releases the decoded audio. Safe to call twice.
func (f *FileDevice) Stop() error {
	f.stopOnce.Do(func() { close(f.stopped) })

	f.mu.Lock()
	defer f.mu.Unlock()
	f.pcm = nil
	f.pos = 0
	return nil
}
