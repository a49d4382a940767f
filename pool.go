package latexmath

import "runtime"

// Worker sizing constants.
const (
	// MinWorkers ensures at least one compilation can run.
	MinWorkers = 1

	// MaxWorkers caps concurrent latex processes; each one is CPU-bound and
	// spawns its own subprocess tree.
	MaxWorkers = 8

	// cpuDivisor leaves headroom for the toolchain's child processes.
	cpuDivisor = 2
)

// ResolveWorkers determines how many fragments compile concurrently.
// Priority: explicit workers > GOMAXPROCS-based calculation.
// Exported for use by CLIs sizing their own document-level pools.
func ResolveWorkers(workers int) int {
	// Explicit value takes priority
	if workers > 0 {
		return workers
	}

	// Auto-calculate based on GOMAXPROCS (adjusted by automaxprocs for containers)
	available := runtime.GOMAXPROCS(0)
	n := available / cpuDivisor

	if n < MinWorkers {
		return MinWorkers
	}
	if n > MaxWorkers {
		return MaxWorkers
	}
	return n
}
