package myaudio

import (
	"encoding/binary"
	"slices"
)

// s16Scale maps int16 PCM onto [-1, 1).
const s16Scale = 1.0 / 32768.0

// ConvertS16LE appends the samples of little-endian 16-bit PCM in src to dst
// as float32 in [-1, 1). A trailing odd byte is ignored.
func ConvertS16LE(dst []float32, src []byte) []float32 {
	n := len(src) / 2
	base := len(dst)
	dst = slices.Grow(dst, n)[:base+n]
	for i := range n {
		dst[base+i] = float32(int16(binary.LittleEndian.Uint16(src[2*i:]))) * s16Scale
	}
	return dst
}

// EncodeS16LE writes float32 samples as little-endian 16-bit PCM into dst,
// clipping to the int16 range. dst must hold 2*len(samples) bytes.
func EncodeS16LE(dst []byte, samples []float32) {
	for i, s := range samples {
		v := s * 32768
		switch {
		case v > 32767:
			v = 32767
		case v < -32768:
			v = -32768
		}
		binary.LittleEndian.PutUint16(dst[2*i:], uint16(int16(v)))
	}
}
