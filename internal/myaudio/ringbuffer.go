package myaudio

import (
	"sync"

	"github.com/tphakala/livesound/internal/errors"
)

// RingBuffer is a fixed-capacity circular store of float32 samples.
// offset always points at the next write position.
type RingBuffer struct {
	mu     sync.Mutex
	data   []float32
	offset int
}

// NewRingBuffer creates a ring buffer holding capacity samples.
func NewRingBuffer(capacity int) (*RingBuffer, error) {
	if capacity <= 0 {
		return nil, errors.Newf("ring buffer capacity must be positive, got %d", capacity).
			Component("myaudio").
			Category(errors.CategoryBuffer).
			Context("operation", "new_ring_buffer").
			Build()
	}

	return &RingBuffer{data: make([]float32, capacity)}, nil
}

// CapacityFor returns the buffer size for a window: the smallest multiple of
// blockSamples that holds windowLength samples.
func CapacityFor(windowLength, blockSamples int) int {
	if blockSamples <= 0 {
		return windowLength
	}
	blocks := (windowLength + blockSamples - 1) / blockSamples
	return max(blocks, 1) * blockSamples
}

// Append copies block into the buffer at the write cursor, wrapping at capacity.
// Only the last Capacity() samples of an oversized block are kept.
func (rb *RingBuffer) Append(block []float32) {
	n := len(block)
	if n == 0 {
		return
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	capacity := len(rb.data)
	start := rb.offset
	if n > capacity {
		start = (rb.offset + n - capacity) % capacity
		block = block[n-capacity:]
	}

	// split across the end of storage
	first := copy(rb.data[start:], block)
	copy(rb.data, block[first:])

	rb.offset = (rb.offset + n) % capacity
}

// ReadWindow returns the length most recent samples, oldest first. When
// points > 1 each position i with i >= points and storage index j >= points
// is replaced by the mean of the points raw samples ending at j.
func (rb *RingBuffer) ReadWindow(length, points int) ([]float32, error) {
	window := make([]float32, length)
	if err := rb.ReadWindowInto(window, points); err != nil {
		return nil, err
	}
	return window, nil
}

// ReadWindowInto fills dst with the len(dst) most recent samples using the
// same smoothing rule as ReadWindow. It does not allocate.
func (rb *RingBuffer) ReadWindowInto(dst []float32, points int) error {
	length := len(dst)

	rb.mu.Lock()
	defer rb.mu.Unlock()

	capacity := len(rb.data)
	if length == 0 || length > capacity {
		return errors.Newf("window length %d out of range for capacity %d", length, capacity).
			Component("myaudio").
			Category(errors.CategoryBuffer).
			Context("operation", "read_window").
			Context("window_length", length).
			Context("capacity", capacity).
			Build()
	}

	points = max(points, 1)

	j := (rb.offset - length + capacity) % capacity
	for i := range length {
		if points > 1 && i >= points && j >= points {
			dst[i] = movingAverage(rb.data, j, points)
		} else {
			dst[i] = rb.data[j]
		}
		j++
		if j == capacity {
			j = 0
		}
	}

	return nil
}

// Offset returns the current write cursor.
func (rb *RingBuffer) Offset() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.offset
}

// Capacity returns the fixed number of samples the buffer holds.
func (rb *RingBuffer) Capacity() int {
	return len(rb.data)
}
