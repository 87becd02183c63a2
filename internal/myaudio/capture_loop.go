package myaudio

import (
	"context"
	"io"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/livesound/internal/errors"
	"github.com/tphakala/livesound/internal/logger"
)

// CaptureRecorder receives capture loop measurements. Implementations must be
// safe for concurrent use.
type CaptureRecorder interface {
	RecordCaptureRead(samples int)
	RecordCaptureError(reason string)
}

type noopCaptureRecorder struct{}

func (noopCaptureRecorder) RecordCaptureRead(int)     {}
func (noopCaptureRecorder) RecordCaptureError(string) {}

// CaptureConfig configures a CaptureLoop.
type CaptureConfig struct {
	SampleRate int
	PollPeriod time.Duration
	Recorder   CaptureRecorder
	Logger     logger.Logger
}

// CaptureLoop reads one block per poll period from a device and appends it to
// the shared RingBuffer. A BufferedDevice holding a full block is read again
// without waiting. Read errors are logged and counted; only
// cancellation or source exhaustion end the loop.
type CaptureLoop struct {
	device     CaptureDevice
	buffer     *RingBuffer
	pollPeriod time.Duration
	blockBytes int
	recorder   CaptureRecorder
	log        logger.Logger
	errLimiter *rate.Limiter
}

// BlockBytes returns the read size for device, falling back to one second of
// mono 16-bit audio when the device cannot report one.
func BlockBytes(device CaptureDevice, sampleRate int) int {
	if n := device.BlockSize(); n > 0 {
		return n &^ 1
	}
	return sampleRate * BytesPerSample
}

// NewCaptureLoop binds device to buffer.
func NewCaptureLoop(device CaptureDevice, buffer *RingBuffer, cfg CaptureConfig) *CaptureLoop {
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = noopCaptureRecorder{}
	}
	log := cfg.Logger
	if log == nil {
		log = GetLogger()
	}

	return &CaptureLoop{
		device:     device,
		buffer:     buffer,
		pollPeriod: cfg.PollPeriod,
		blockBytes: BlockBytes(device, cfg.SampleRate),
		recorder:   recorder,
		log:        log.Module("capture"),
		// one warning per second with a small burst
		errLimiter: rate.NewLimiter(rate.Every(time.Second), 3),
	}
}

// BlockSamples returns the number of samples appended per successful read.
func (c *CaptureLoop) BlockSamples() int {
	return c.blockBytes / BytesPerSample
}

// Run polls the device until ctx is cancelled. It returns nil on cancellation
// and ErrSourceExhausted when the device reports io.EOF.
func (c *CaptureLoop) Run(ctx context.Context) error {
	raw := make([]byte, c.blockBytes)
	samples := make([]float32, 0, c.blockBytes/BytesPerSample)

	var timer *time.Timer
	if c.pollPeriod > 0 {
		timer = time.NewTimer(c.pollPeriod)
		timer.Stop()
		defer timer.Stop()
	}

	var consecutiveErrors int
	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := c.device.Read(raw)
		if n > 0 {
			samples = ConvertS16LE(samples[:0], raw[:n])
			c.buffer.Append(samples)
			c.recorder.RecordCaptureRead(len(samples))
		}

		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, io.EOF):
				c.log.Info("capture source exhausted")
				return ErrSourceExhausted
			case errors.Is(err, ErrDeviceStopped):
				return nil
			}

			consecutiveErrors++
			c.recorder.RecordCaptureError(readErrorReason(err))
			if c.errLimiter.Allow() {
				c.log.Warn("capture read failed",
					logger.Error(err),
					logger.Int("consecutive_errors", consecutiveErrors))
			}
		} else if consecutiveErrors > 0 {
			c.log.Info("capture recovered", logger.Int("failed_reads", consecutiveErrors))
			consecutiveErrors = 0
		}

		// a device already holding the next block is behind the audio clock
		if timer == nil || (err == nil && c.backlogged()) {
			continue
		}
		timer.Reset(c.pollPeriod)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}

func (c *CaptureLoop) backlogged() bool {
	bd, ok := c.device.(BufferedDevice)
	return ok && bd.Buffered() >= c.blockBytes
}

func readErrorReason(err error) string {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return ee.GetCategory()
	}
	return string(errors.CategoryDeviceRead)
}
