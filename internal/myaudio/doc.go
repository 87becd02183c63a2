// Package myaudio implements the capture side of the pipeline: capture devices
// (malgo microphone, WAV file), the S16LE to float32 conversion, the shared
// RingBuffer with its smoothed window read, and the CaptureLoop that moves
// blocks from a device into the buffer.
//
// The RingBuffer is the only structure shared between the capture goroutine
// and the inference goroutine. Its mutex covers the copy on Append and the
// window materialization on ReadWindow, never device I/O.
package myaudio
