package myaudio

import (
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/livesound/internal/errors"
)

func seq(from, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(from + i)
	}
	return out
}

func TestCapacityFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		window, block, want int
	}{
		{15600, 16000, 16000},
		{16000, 16000, 16000},
		{16001, 16000, 32000},
		{1000, 256, 1024},
		{1000, 0, 1000},
		{10, 100, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CapacityFor(tt.window, tt.block), "window=%d block=%d", tt.window, tt.block)
	}
}

func TestNewRingBufferRejectsZeroCapacity(t *testing.T) {
	t.Parallel()

	_, err := NewRingBuffer(0)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryBuffer))
}

func TestAppendWrapsAndSplits(t *testing.T) {
	t.Parallel()

	rb, err := NewRingBuffer(8)
	require.NoError(t, err)

	rb.Append(seq(1, 6))
	assert.Equal(t, 6, rb.Offset())

	// crosses the boundary: 2 samples at the end, 3 at the start
	rb.Append(seq(7, 5))
	assert.Equal(t, 3, rb.Offset())

	window, err := rb.ReadWindow(8, 1)
	require.NoError(t, err)
	assert.Equal(t, seq(4, 8), window)
}

func TestAppendOversizedBlockKeepsTail(t *testing.T) {
	t.Parallel()

	rb, err := NewRingBuffer(4)
	require.NoError(t, err)

	rb.Append(seq(1, 2))
	rb.Append(seq(10, 7))
	assert.Equal(t, (2+7)%4, rb.Offset())

	window, err := rb.ReadWindow(4, 1)
	require.NoError(t, err)
	assert.Equal(t, seq(13, 4), window)
}

func TestWraparoundIdempotence(t *testing.T) {
	t.Parallel()

	for _, capacity := range []int{1, 7, 64, 1000} {
		rb, err := NewRingBuffer(capacity)
		require.NoError(t, err)

		// move the cursor somewhere arbitrary first
		rb.Append(seq(1, capacity/3+1))
		before := rb.Offset()

		rng := rand.New(rand.NewPCG(uint64(capacity), 7))
		remaining := capacity
		for remaining > 0 {
			n := min(remaining, 1+rng.IntN(capacity))
			rb.Append(seq(0, n))
			remaining -= n
		}

		assert.Equal(t, before, rb.Offset(), "capacity %d", capacity)
	}
}

func TestReadWindowBoundsAtEveryCursor(t *testing.T) {
	t.Parallel()

	const capacity = 37
	rb, err := NewRingBuffer(capacity)
	require.NoError(t, err)

	written := 0
	for step := range 3 * capacity {
		rb.Append(seq(written+1, 1))
		written++

		for _, length := range []int{1, 2, capacity / 2, capacity - 1, capacity} {
			for _, points := range []int{1, 3} {
				window, err := rb.ReadWindow(length, points)
				require.NoError(t, err, "step %d length %d", step, length)
				require.Len(t, window, length)
			}
		}
	}

	_, err = rb.ReadWindow(capacity+1, 1)
	require.Error(t, err)
	_, err = rb.ReadWindow(0, 1)
	require.Error(t, err)
}

func TestReadWindowSinglePointIsRaw(t *testing.T) {
	t.Parallel()

	rb, err := NewRingBuffer(16)
	require.NoError(t, err)

	raw := []float32{0.5, -0.25, 1, 0, 0.125, -1, 0.75, 0.3, -0.3, 0.9, 0.1, 0.2}
	rb.Append(raw)
	rb.Append(raw) // wraps

	window, err := rb.ReadWindow(len(raw), 1)
	require.NoError(t, err)
	assert.Equal(t, raw, window)
}

func TestReadWindowSmoothing(t *testing.T) {
	t.Parallel()

	rb, err := NewRingBuffer(10)
	require.NoError(t, err)
	rb.Append(seq(1, 10)) // data = 1..10, offset back at 0

	window, err := rb.ReadWindow(6, 2)
	require.NoError(t, err)

	// j starts at 4 (value 5). i=0,1 raw; from i=2 mean of data[j-1], data[j]
	want := []float32{5, 6, 6.5, 7.5, 8.5, 9.5}
	assert.InDeltaSlice(t, want, window, 1e-6)
}

func TestReadWindowSmoothingSkipsLowStorageIndexes(t *testing.T) {
	t.Parallel()

	rb, err := NewRingBuffer(8)
	require.NoError(t, err)
	rb.Append(seq(1, 8))
	rb.Append(seq(9, 2)) // data = 9,10,3,4,5,6,7,8 offset 2

	window, err := rb.ReadWindow(8, 3)
	require.NoError(t, err)

	// j walks 2..7 then 0,1. Positions where j < 3 or i < 3 stay raw.
	want := []float32{
		3,                 // i=0 j=2
		4,                 // i=1 j=3
		5,                 // i=2 j=4
		(4 + 5 + 6) / 3.0, // i=3 j=5
		(5 + 6 + 7) / 3.0, // i=4 j=6
		(6 + 7 + 8) / 3.0, // i=5 j=7
		9,                 // i=6 j=0
		10,                // i=7 j=1
	}
	assert.InDeltaSlice(t, want, window, 1e-6)
}

// Writer appends a strictly increasing sequence in random block sizes. Any
// consistent snapshot is a run of zeros followed by consecutive values, so a
// torn read shows up as a gap or a step backwards.
func TestConcurrentAppendAndReadNeverTears(t *testing.T) {
	t.Parallel()

	const (
		capacity = 4096
		total    = 2_000_000
	)
	rb, err := NewRingBuffer(capacity)
	require.NoError(t, err)

	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Go(func() {
		defer close(done)
		rng := rand.New(rand.NewPCG(1, 2))
		next := 1
		for next <= total {
			n := min(1+rng.IntN(700), total-next+1)
			rb.Append(seq(next, n))
			next += n
		}
	})

	rng := rand.New(rand.NewPCG(3, 4))
	reads := 0
	for {
		select {
		case <-done:
			wg.Wait()
			require.Positive(t, reads)
			return
		default:
		}

		length := 1 + rng.IntN(capacity)
		window, err := rb.ReadWindow(length, 1)
		require.NoError(t, err)
		reads++

		i := 0
		for i < len(window) && window[i] == 0 {
			i++
		}
		for k := i + 1; k < len(window); k++ {
			if window[k] != window[k-1]+1 {
				t.Fatalf("torn window at %d: %v then %v (length %d)", k, window[k-1], window[k], length)
			}
		}
		if len(window) > i {
			require.LessOrEqual(t, window[len(window)-1], float32(total))
		}
	}
}
