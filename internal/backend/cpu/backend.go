// Package cpu implements the pure Go CPU execution backend for the
// classifier graph.
package cpu

import (
	"fmt"

	"github.com/theamorn/foodlens/internal/parallel"
	"github.com/theamorn/foodlens/internal/tensor"
)

// DefaultThreads is the fixed worker count for CPU inference.
const DefaultThreads = 4

// Backend runs graph operations on the CPU with a fixed-size worker pool.
type Backend struct {
	cfg parallel.Config
}

// New creates a CPU backend with the default thread count.
func New() *Backend {
	return NewWithThreads(DefaultThreads)
}

// NewWithThreads creates a CPU backend pinned to the given worker count.
func NewWithThreads(threads int) *Backend {
	return &Backend{cfg: parallel.FixedConfig(threads)}
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (b *Backend) Device() tensor.Device {
	return tensor.CPU
}

// Threads returns the configured worker count.
func (b *Backend) Threads() int {
	return b.cfg.NumWorkers
}

// ReLU applies max(0, x) element-wise.
func (b *Backend) ReLU(x *tensor.RawTensor) (*tensor.RawTensor, error) {
	if x.DType() != tensor.Float32 {
		return nil, fmt.Errorf("relu: unsupported dtype %s", x.DType())
	}

	out, err := tensor.NewRaw(x.Shape(), tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("relu: %w", err)
	}

	src := x.AsFloat32()
	dst := out.AsFloat32()
	for i, v := range src {
		if v > 0 {
			dst[i] = v
		}
	}
	return out, nil
}

// AddBias adds bias[c] to every element of channel c. Input is
// [N, C, H, W] (bias per feature map) or [N, C] (bias per column).
func (b *Backend) AddBias(x, bias *tensor.RawTensor) (*tensor.RawTensor, error) {
	if x.DType() != tensor.Float32 || bias.DType() != tensor.Float32 {
		return nil, fmt.Errorf("addbias: unsupported dtypes %s, %s", x.DType(), bias.DType())
	}
	shape := x.Shape()
	if len(bias.Shape()) != 1 {
		return nil, fmt.Errorf("addbias: bias must be 1D, got %v", bias.Shape())
	}

	var channels, spatial int
	switch len(shape) {
	case 2:
		channels, spatial = shape[1], 1
	case 4:
		channels, spatial = shape[1], shape[2]*shape[3]
	default:
		return nil, fmt.Errorf("addbias: input must be 2D or 4D, got %v", shape)
	}
	if bias.Shape()[0] != channels {
		return nil, fmt.Errorf("addbias: bias length %d != channels %d", bias.Shape()[0], channels)
	}

	out, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("addbias: %w", err)
	}

	src := x.AsFloat32()
	bv := bias.AsFloat32()
	dst := out.AsFloat32()
	batch := shape[0]

	i := 0
	for n := 0; n < batch; n++ {
		for c := 0; c < channels; c++ {
			for s := 0; s < spatial; s++ {
				dst[i] = src[i] + bv[c]
				i++
			}
		}
	}
	return out, nil
}
