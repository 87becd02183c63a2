package myaudio

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/tphakala/livesound/internal/errors"
)

const (
	// BitDepth is the only PCM sample width the pipeline captures.
	BitDepth = 16
	// BytesPerSample for mono 16-bit PCM.
	BytesPerSample = BitDepth / 8
)

var (
	// ErrDeviceStopped is returned by Read once the device has been stopped.
	ErrDeviceStopped = errors.NewStd("capture device stopped")

	// ErrSourceExhausted is returned by CaptureLoop.Run when a finite source hits io.EOF.
	ErrSourceExhausted = fmt.Errorf("capture source exhausted: %w", io.EOF)
)

// Format describes the PCM stream requested from a capture device.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// MonoFormat returns the mono 16-bit format at sampleRate.
func MonoFormat(sampleRate int) Format {
	return Format{SampleRate: sampleRate, Channels: 1, BitDepth: BitDepth}
}

// CaptureDevice is a blocking source of PCM blocks.
//
// Open must reach a ready state or fail with a device-init error. BlockSize
// reports the minimum viable read size in bytes, 0 when unknown. Read blocks
// until one block is available, the device is stopped (ErrDeviceStopped) or a
// finite source is exhausted (io.EOF). Stop releases the device and must be
// safe to call more than once.
type CaptureDevice interface {
	Open(format Format) error
	BlockSize() int
	Start() error
	Read(p []byte) (int, error)
	Stop() error
}

// BufferedDevice is implemented by devices that stage audio ahead of Read.
// Buffered reports the staged byte count.
type BufferedDevice interface {
	Buffered() int
}

// DeviceInfo describes a capture device.
type DeviceInfo struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	ID        string `json:"id"`
	IsDefault bool   `json:"isDefault"`
}

// SelectDevice picks a device by name. "", "default" and "sysdefault" select
// the system default (or the first device). Otherwise exact name, decoded ID
// and substring matches are tried in that order.
func SelectDevice(devices []DeviceInfo, name string) (DeviceInfo, error) {
	if name == "" || name == "default" || name == "sysdefault" {
		for _, d := range devices {
			if d.IsDefault {
				return d, nil
			}
		}
		if len(devices) > 0 {
			return devices[0], nil
		}
	}

	for _, d := range devices {
		if d.Name == name {
			return d, nil
		}
	}

	for _, d := range devices {
		if d.ID == name {
			return d, nil
		}
	}

	for _, d := range devices {
		if name != "" && strings.Contains(d.Name, name) {
			return d, nil
		}
	}

	return DeviceInfo{}, errors.Newf("no capture device matching %q", name).
		Component("myaudio").
		Category(errors.CategoryDeviceInit).
		Context("device_name", name).
		Context("available_devices", len(devices)).
		Build()
}

// hexToASCII decodes a hex-encoded device ID, trimming trailing NULs.
func hexToASCII(hexStr string) (string, error) {
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\x00"), nil
}

// deviceInitError wraps a failure to bring a device to a ready state.
func deviceInitError(err error, operation string) error {
	return errors.New(err).
		Component("myaudio").
		Category(errors.CategoryDeviceInit).
		Context("operation", operation).
		Build()
}
