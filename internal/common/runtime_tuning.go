package common

import (
	"os"
	"runtime"
	"runtime/debug"

	"github.com/rs/zerolog/log"
)

// defaultMemLimit caps the heap when GOMEMLIMIT is unset. Request handling is
// I/O bound; the only large allocations are registry snapshots.
const defaultMemLimit = 1 << 30

// InitRuntime applies the memory limit and logs the runtime settings.
// GOGC, GOMAXPROCS and GOMEMLIMIT in the environment take precedence.
func InitRuntime() {
	if os.Getenv("GOMEMLIMIT") == "" {
		debug.SetMemoryLimit(defaultMemLimit)
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	log.Info().
		Int("num_cpu", runtime.NumCPU()).
		Int("gomaxprocs", runtime.GOMAXPROCS(0)).
		Int64("memlimit_mb", debug.SetMemoryLimit(-1)/1024/1024).
		Uint64("heap_alloc_mb", memStats.HeapAlloc/1024/1024).
		Str("go_version", runtime.Version()).
		Msg("[runtime] Current runtime settings")
}
