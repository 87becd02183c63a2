package myaudio

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/livesound/internal/errors"
	"github.com/tphakala/livesound/internal/logger"
)

// stagingBlocks is how many blocks the callback can run ahead of Read.
const stagingBlocks = 8

// MalgoDevice captures from a microphone through miniaudio. The driver
// callback copies PCM into a byte ring buffer; Read drains it one block at a
// time.
type MalgoDevice struct {
	name        string
	blockFrames int

	mu         sync.Mutex
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	staging    *ringbuffer.RingBuffer
	blockBytes int
	notify     chan struct{}
	stopped    chan struct{}
	stopOnce   sync.Once

	overruns atomic.Uint64
}

// NewMalgoDevice returns a device that captures from the named input.
// blockFrames sets the driver period; 0 lets the driver choose.
func NewMalgoDevice(name string, blockFrames int) *MalgoDevice {
	return &MalgoDevice{
		name:        name,
		blockFrames: blockFrames,
		notify:      make(chan struct{}, 1),
		stopped:     make(chan struct{}),
	}
}

// backendForPlatform picks the native miniaudio backend for the OS.
func backendForPlatform() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, fmt.Errorf("unsupported platform for audio capture: %s", runtime.GOOS)
	}
}

func initContext() (*malgo.AllocatedContext, error) {
	backend, err := backendForPlatform()
	if err != nil {
		return nil, deviceInitError(err, "select_backend")
	}

	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, deviceInitError(err, "init_context")
	}
	return ctx, nil
}

// ListDevices returns the capture devices visible to the platform backend.
func ListDevices() ([]DeviceInfo, error) {
	ctx, err := initContext()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, deviceInitError(err, "list_devices")
	}

	return toDeviceInfos(infos), nil
}

func toDeviceInfos(infos []malgo.DeviceInfo) []DeviceInfo {
	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		id, err := hexToASCII(infos[i].ID.String())
		if err != nil {
			GetLogger().Debug("failed to decode device id",
				logger.Int("index", i),
				logger.Error(err))
			id = infos[i].ID.String()
		}
		devices = append(devices, DeviceInfo{
			Index:     i,
			Name:      infos[i].Name(),
			ID:        id,
			IsDefault: infos[i].IsDefault == 1,
		})
	}
	return devices
}

// Open initializes the driver context and the capture device at format.
func (d *MalgoDevice) Open(format Format) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device != nil {
		return errors.Newf("capture device already open").
			Component("myaudio").
			Category(errors.CategoryState).
			Build()
	}

	ctx, err := initContext()
	if err != nil {
		return err
	}

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return deviceInitError(err, "list_devices")
	}

	selected, err := SelectDevice(toDeviceInfos(infos), d.name)
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return err
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(format.Channels)
	cfg.Capture.DeviceID = infos[selected.Index].ID.Pointer()
	cfg.SampleRate = uint32(format.SampleRate)
	cfg.Alsa.NoMMap = 1
	if d.blockFrames > 0 {
		cfg.PeriodSizeInFrames = uint32(d.blockFrames)
	}

	d.blockBytes = d.blockFrames * format.Channels * BytesPerSample
	stagingSize := max(d.blockBytes, format.SampleRate*BytesPerSample) * stagingBlocks
	d.staging = ringbuffer.New(stagingSize)

	device, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: d.onData,
		Stop: d.onStop,
	})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return errors.New(err).
			Component("myaudio").
			Category(errors.CategoryDeviceInit).
			Context("operation", "init_device").
			Context("device_name", selected.Name).
			Build()
	}

	d.ctx = ctx
	d.device = device

	GetLogger().Info("capture device opened",
		logger.String("device", selected.Name),
		logger.Int("sample_rate", int(device.SampleRate())),
		logger.Int("block_bytes", d.blockBytes))

	return nil
}

// BlockSize returns the configured period in bytes, 0 when the driver chooses.
func (d *MalgoDevice) BlockSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.blockBytes
}

// Start begins streaming into the staging buffer.
func (d *MalgoDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device == nil {
		return errors.Newf("capture device not open").
			Component("myaudio").
			Category(errors.CategoryState).
			Build()
	}
	if err := d.device.Start(); err != nil {
		return deviceInitError(err, "start_device")
	}
	return nil
}

// Read blocks until len(p) bytes are staged or the device stops.
func (d *MalgoDevice) Read(p []byte) (int, error) {
	for {
		select {
		case <-d.stopped:
			return 0, ErrDeviceStopped
		default:
		}

		if d.staging != nil && d.staging.Length() >= len(p) {
			n, err := d.staging.Read(p)
			if err != nil {
				return n, errors.New(err).
					Component("myaudio").
					Category(errors.CategoryDeviceRead).
					Context("operation", "staging_read").
					Build()
			}
			return n, nil
		}

		select {
		case <-d.notify:
		case <-d.stopped:
			return 0, ErrDeviceStopped
		}
	}
}

// Buffered returns the bytes staged by the driver callback and not yet read.
func (d *MalgoDevice) Buffered() int {
	if d.staging == nil {
		return 0
	}
	return d.staging.Length()
}

// Stop halts the device and releases driver resources. Safe to call twice.
func (d *MalgoDevice) Stop() error {
	d.stopOnce.Do(func() { close(d.stopped) })

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device != nil {
		if err := d.device.Stop(); err != nil {
			GetLogger().Warn("failed to stop capture device", logger.Error(err))
		}
		d.device.Uninit()
		d.device = nil
	}

	if d.ctx != nil {
		if err := d.ctx.Uninit(); err != nil {
			GetLogger().Warn("failed to release audio context", logger.Error(err))
		}
		d.ctx.Free()
		d.ctx = nil
	}

	if overruns := d.overruns.Load(); overruns > 0 {
		GetLogger().Info("capture staging overruns during session", logger.Uint64("overruns", overruns))
	}

	return nil
}

// onData runs on the driver thread and must not block.
func (d *MalgoDevice) onData(_, pInput []byte, _ uint32) {
	if _, err := d.staging.Write(pInput); err != nil {
		d.overruns.Add(1)
	}

	select {
	case d.notify <- struct{}{}:
	default:
	}
}

func (d *MalgoDevice) onStop() {
	GetLogger().Debug("capture device stopped by driver")
}
