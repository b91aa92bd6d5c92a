// Package classify owns the loaded model: backend selection with
// accelerator capability fallback, single forward passes over
// preprocessed tensors, and conversion of raw output into ranked
// predictions.
package classify

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/theamorn/foodlens/internal/backend/cpu"
	"github.com/theamorn/foodlens/internal/backend/webgpu"
	"github.com/theamorn/foodlens/internal/imaging"
	"github.com/theamorn/foodlens/internal/labels"
	"github.com/theamorn/foodlens/internal/model"
	"github.com/theamorn/foodlens/internal/parallel"
	"github.com/theamorn/foodlens/internal/tensor"
)

// Errors surfaced by the inference boundary.
var (
	// ErrModelLoad reports bad model bytes or an unreadable label source.
	// A failed load never disturbs a previously loaded handle.
	ErrModelLoad = errors.New("classify: model load failed")

	// ErrInference reports a forward pass that could not run: tensor
	// shape mismatch, or a handle already torn down.
	ErrInference = errors.New("classify: inference failed")
)

// Kind selects the execution strategy.
type Kind int

// Execution strategies.
const (
	KindCPU Kind = iota
	KindAccelerator
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindCPU:
		return "CPU"
	case KindAccelerator:
		return "Accelerator"
	default:
		return "Unknown"
	}
}

// Config configures a model load.
type Config struct {
	// Kind is the requested backend. Accelerator silently downgrades to
	// CPU when the device cannot initialize one.
	Kind Kind

	// Threads is the CPU worker count. Zero means cpu.DefaultThreads.
	Threads int
}

// Handle is one loaded model: the parsed graph, its label table and the
// execution backend. Run calls must be serialized by the caller; the
// pipeline controller guarantees at most one in-flight pass.
type Handle struct {
	graph     *model.Graph
	table     *labels.Table
	backend   tensor.Backend
	accel     *webgpu.Backend // non-nil when effective == KindAccelerator
	effective Kind
	closed    atomic.Bool
}

// Load parses model bytes and the label source and prepares an execution
// backend. All-or-nothing: any failure returns ErrModelLoad and no
// resources stay allocated.
func Load(modelBytes []byte, labelSource io.Reader, cfg Config) (*Handle, error) {
	graph, err := model.Parse(modelBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}

	table, err := labels.Parse(labelSource, graph.ClassCount())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}

	h := &Handle{graph: graph, table: table}

	if cfg.Kind == KindAccelerator {
		if accel, accelErr := webgpu.New(); accelErr == nil {
			h.backend = accel
			h.accel = accel
			h.effective = KindAccelerator
			return h, nil
		}
		// Capability downgrade, not an error.
	}

	threads := cfg.Threads
	if threads <= 0 {
		threads = cpu.DefaultThreads
	}
	h.backend = cpu.NewWithThreads(threads)
	h.effective = KindCPU
	return h, nil
}

// Effective returns the backend actually in use, never the requested one.
func (h *Handle) Effective() Kind {
	return h.effective
}

// InputSize returns the model's required spatial size S.
func (h *Handle) InputSize() int {
	return h.graph.InputSize()
}

// Labels returns the label table built at load time.
func (h *Handle) Labels() *labels.Table {
	return h.table
}

// OutputQuantized reports whether raw output is on the 0-255 scale.
func (h *Handle) OutputQuantized() bool {
	return h.graph.OutputType() == model.DTypeUint8
}

// PreprocessOptions returns the imaging options matching the model's
// input contract.
func (h *Handle) PreprocessOptions() imaging.Options {
	mean, std := h.graph.Normalization()
	return imaging.Options{
		Size:     h.graph.InputSize(),
		DType:    h.graph.InputTensorType(),
		Mean:     mean,
		Std:      std,
		Parallel: parallel.DefaultConfig(),
	}
}

// Run executes one forward pass and returns the raw output buffer
// bit-for-bit as the model produced it, with no postprocessing.
func (h *Handle) Run(in *tensor.RawTensor) (*tensor.RawTensor, error) {
	if h.closed.Load() {
		return nil, fmt.Errorf("%w: handle is closed", ErrInference)
	}

	out, err := h.graph.Execute(in, h.backend)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}
	return out, nil
}

// Close tears the handle down. Subsequent Run calls return ErrInference.
// Idempotent.
func (h *Handle) Close() {
	if h.closed.Swap(true) {
		return
	}
	if h.accel != nil {
		h.accel.Close()
		h.accel = nil
	}
}
