package parallel

import (
	"sync/atomic"
	"testing"
)

func TestFor_CoversAllIndices(t *testing.T) {
	const n = 1000
	seen := make([]int32, n)

	For(n, func(i int) {
		atomic.AddInt32(&seen[i], 1)
	}, DefaultConfig())

	for i, count := range seen {
		if count != 1 {
			t.Fatalf("index %d visited %d times, want 1", i, count)
		}
	}
}

func TestFor_SequentialFallback(t *testing.T) {
	cfg := Config{Enabled: false}
	var sum int // no synchronization: must run on the calling goroutine
	For(10, func(i int) { sum += i }, cfg)
	if sum != 45 {
		t.Errorf("sum = %d, want 45", sum)
	}
}

func TestFixedConfig(t *testing.T) {
	cfg := FixedConfig(4)
	if cfg.NumWorkers != 4 || !cfg.Enabled {
		t.Errorf("FixedConfig(4) = %+v", cfg)
	}

	cfg = FixedConfig(0)
	if cfg.NumWorkers != 1 || cfg.Enabled {
		t.Errorf("FixedConfig(0) = %+v", cfg)
	}
}

func TestForRows_CoversAllRows(t *testing.T) {
	const rows = 37
	seen := make([]int32, rows)

	ForRows(rows, func(r int) {
		atomic.AddInt32(&seen[r], 1)
	}, FixedConfig(4))

	for r, count := range seen {
		if count != 1 {
			t.Fatalf("row %d visited %d times, want 1", r, count)
		}
	}
}
