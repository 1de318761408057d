package concurrency

import (
	"log"
	"runtime"

	"go.uber.org/automaxprocs/maxprocs"
)

// InitializeForKubernetes sets up the process for containerized deployments.
// Call at the very start of main() before any other initialization.
// Returns an undo function that restores the original GOMAXPROCS value.
func InitializeForKubernetes() func() {
	// Set GOMAXPROCS to match the Linux container CPU quota. This respects
	// cgroup CPU limits, which is crucial for Kubernetes.
	undo, err := maxprocs.Set(maxprocs.Logger(log.Printf))
	if err != nil {
		log.Printf("Failed to set maxprocs: %v", err)
		return func() {}
	}

	log.Printf("Concurrency initialized: GOMAXPROCS=%d", runtime.GOMAXPROCS(0))
	return undo
}

// GetEffectiveCPUs returns the effective number of CPUs available.
// This respects cgroup limits in containerized environments.
func GetEffectiveCPUs() int {
	return runtime.GOMAXPROCS(0)
}
