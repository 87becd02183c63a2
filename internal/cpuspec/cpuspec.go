// Package cpuspec picks an inference thread count from the host CPU topology.
package cpuspec

import (
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// CPUSpec is the subset of CPU topology relevant to interpreter threading.
type CPUSpec struct {
	BrandName        string
	PhysicalCores    int
	LogicalCores     int
	PerformanceCores int // 0 when the CPU is not a known hybrid part
}

// GetCPUSpec inspects the running CPU.
func GetCPUSpec() CPUSpec {
	return CPUSpec{
		BrandName:        cpuid.CPU.BrandName,
		PhysicalCores:    cpuid.CPU.PhysicalCores,
		LogicalCores:     cpuid.CPU.LogicalCores,
		PerformanceCores: performanceCores(cpuid.CPU.BrandName),
	}
}

// OptimalThreadCount returns the thread count for a single interpreter.
// Hybrid parts use their performance cores only, since efficiency cores slow
// down every invoke that lands on them. SMT siblings are ignored.
func (c CPUSpec) OptimalThreadCount() int {
	available := runtime.NumCPU()

	switch {
	case c.PerformanceCores > 0:
		return min(c.PerformanceCores, available)
	case c.PhysicalCores > 0:
		return min(c.PhysicalCores, available)
	case c.LogicalCores > 0:
		return min(c.LogicalCores, available)
	default:
		return available
	}
}

// DetermineThreadCount resolves a configured thread count. Zero selects the
// optimal count for this host; anything else is capped at the CPU count.
func DetermineThreadCount(configured int) int {
	available := runtime.NumCPU()
	if configured <= 0 {
		return max(1, GetCPUSpec().OptimalThreadCount())
	}
	return min(configured, available)
}

var (
	intelHybridRegex = regexp.MustCompile(`intel.*core.*i[3579]-1([234])(\d)00`)
	coreUltraRegex   = regexp.MustCompile(`intel.*core.*ultra\s+([579])\s+(?:processor\s+)?(\d{3})`)
	appleRegex       = regexp.MustCompile(`apple\s+m([1-4])(?:\s+(pro|max|ultra))?`)
)

// performanceCores maps known hybrid CPUs to their P-core count.
func performanceCores(brandName string) int {
	brand := strings.ToLower(brandName)

	// 12th to 14th gen desktop parts: i9/i7 have 8 P-cores, i5 6 (4 for x1xx/x4xx low end), i3 4
	if m := intelHybridRegex.FindStringSubmatch(brand); m != nil {
		tier, _ := strconv.Atoi(m[2])
		switch {
		case tier >= 7:
			return 8
		case tier >= 4:
			return 6
		default:
			return 4
		}
	}

	if m := coreUltraRegex.FindStringSubmatch(brand); m != nil {
		switch m[1] {
		case "9", "7":
			return 8
		case "5":
			if m[2] == "225" {
				return 4
			}
			return 6
		}
	}

	if m := appleRegex.FindStringSubmatch(brand); m != nil {
		gen, variant := m[1], m[2]
		switch variant {
		case "":
			if gen == "4" {
				return 6
			}
			return 4
		case "pro":
			return 8
		case "max":
			if gen == "1" {
				return 8
			}
			return 12
		case "ultra":
			if gen == "1" {
				return 16
			}
			return 24
		}
	}

	return 0
}
