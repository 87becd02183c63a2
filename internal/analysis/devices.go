package analysis

import (
	"path/filepath"
	"strings"

	"github.com/tphakala/livesound/internal/conf"
	"github.com/tphakala/livesound/internal/myaudio"
)

// DefaultDevices is the production DeviceFactory. A source ending in .wav is
// read from disk, anything else names a capture device.
func DefaultDevices(settings *conf.Settings) (myaudio.CaptureDevice, error) {
	source := settings.Audio.Source
	if IsFileSource(source) {
		return myaudio.NewFileDevice(conf.ExpandPath(source), settings.Audio.RealtimeFile), nil
	}
	return myaudio.NewMalgoDevice(source, settings.Audio.BlockFrames), nil
}

// IsFileSource reports whether source refers to a WAV file.
func IsFileSource(source string) bool {
	return strings.EqualFold(filepath.Ext(source), ".wav")
}
