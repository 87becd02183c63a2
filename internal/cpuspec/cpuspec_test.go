package cpuspec

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPerformanceCores(t *testing.T) {
	t.Parallel()

	tests := []struct {
		brand string
		want  int
	}{
		{"12th Gen Intel(R) Core(TM) i9-12900K", 8},
		{"13th Gen Intel(R) Core(TM) i5-13600K", 6},
		{"12th Gen Intel(R) Core(TM) i3-12100F", 4},
		{"Intel(R) Core(TM) Ultra 7 265K", 8},
		{"Intel(R) Core(TM) Ultra 5 225", 4},
		{"Apple M1", 4},
		{"Apple M4", 6},
		{"Apple M2 Max", 12},
		{"Apple M1 Ultra", 16},
		{"AMD Ryzen 7 5800X 8-Core Processor", 0},
		{"Intel(R) Core(TM) i7-8700 CPU @ 3.20GHz", 0},
		{"", 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, performanceCores(tt.brand), tt.brand)
	}
}

func TestOptimalThreadCountPrefersPerformanceCores(t *testing.T) {
	t.Parallel()

	n := runtime.NumCPU()

	assert.Equal(t, min(2, n), CPUSpec{PerformanceCores: 2, PhysicalCores: 10, LogicalCores: 20}.OptimalThreadCount())
	assert.Equal(t, min(3, n), CPUSpec{PhysicalCores: 3, LogicalCores: 6}.OptimalThreadCount())
	assert.Equal(t, min(5, n), CPUSpec{LogicalCores: 5}.OptimalThreadCount())
	assert.Equal(t, n, CPUSpec{}.OptimalThreadCount())
}

func TestDetermineThreadCount(t *testing.T) {
	t.Parallel()

	n := runtime.NumCPU()

	assert.Equal(t, 1, DetermineThreadCount(1))
	assert.Equal(t, n, DetermineThreadCount(n+64))
	auto := DetermineThreadCount(0)
	assert.GreaterOrEqual(t, auto, 1)
	assert.LessOrEqual(t, auto, n)
}
