package myaudio

// movingAverage returns the mean of the k samples of data ending at index end,
// wrapping below index 0.
func movingAverage(data []float32, end, k int) float32 {
	n := len(data)
	var sum float64
	idx := end
	for range k {
		sum += float64(data[idx])
		idx--
		if idx < 0 {
			idx = n - 1
		}
	}
	return float32(sum / float64(k))
}

// IsSilent reports whether every sample in window is exactly zero.
// An empty window counts as silent.
func IsSilent(window []float32) bool {
	for _, s := range window {
		if s != 0 {
			return false
		}
	}
	return true
}
