package myaudio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvertS16LE(t *testing.T) {
	t.Parallel()

	src := []byte{
		0x00, 0x00, // 0
		0xff, 0x7f, // 32767
		0x00, 0x80, // -32768
		0x00, 0x40, // 16384
		0x01, // dangling byte
	}

	got := ConvertS16LE(nil, src)
	assert.Len(t, got, 4)
	assert.InDelta(t, 0, got[0], 1e-9)
	assert.InDelta(t, 32767.0/32768.0, got[1], 1e-6)
	assert.InDelta(t, -1, got[2], 1e-9)
	assert.InDelta(t, 0.5, got[3], 1e-9)
}

func TestConvertS16LEAppends(t *testing.T) {
	t.Parallel()

	dst := make([]float32, 1, 8)
	dst[0] = 42
	dst = ConvertS16LE(dst, []byte{0x00, 0x40})
	assert.Equal(t, []float32{42, 0.5}, dst)
}

func TestEncodeS16LEClipsAndRoundTrips(t *testing.T) {
	t.Parallel()

	samples := []float32{0, 0.5, -0.5, 2, -2}
	raw := make([]byte, len(samples)*2)
	EncodeS16LE(raw, samples)

	got := ConvertS16LE(nil, raw)
	assert.InDeltaSlice(t, []float32{0, 0.5, -0.5, 32767.0 / 32768.0, -1}, got, 1e-6)
}
