// Package parallel provides the chunked worker execution used by the CPU
// kernels and the image preprocessor.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64,
	}
}

// FixedConfig returns a configuration pinned to a fixed worker count.
// The CPU inference backend runs with a fixed thread count rather than
// scaling to the machine, so latency stays predictable alongside the
// camera and UI work sharing the device.
func FixedConfig(workers int) Config {
	if workers < 1 {
		workers = 1
	}
	return Config{
		Enabled:      workers > 1,
		NumWorkers:   workers,
		MinChunkSize: 16,
	}
}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is too small.
func For(n int, f func(i int), cfg Config) {
	if !cfg.Enabled || n < cfg.MinChunkSize {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// ForRows executes f(row) for each image row, chunked by row.
// Rows are coarse units already, so the chunk floor is 1.
func ForRows(rows int, f func(row int), cfg Config) {
	rowCfg := cfg
	rowCfg.MinChunkSize = 1
	if !cfg.Enabled || rows < 2 {
		for r := 0; r < rows; r++ {
			f(r)
		}
		return
	}
	For(rows, f, rowCfg)
}
