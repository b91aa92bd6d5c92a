// Package webgpu implements the accelerator delegate backend over
// WebGPU, using go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO
// bindings.
//
// The delegate accelerates the matrix products that dominate inference
// time; operations without a compute shader fall back per-op to the CPU
// kernels. New fails cleanly when no adapter or native library is
// available, which the classifier treats as a capability downgrade, not
// an error.
package webgpu

import (
	"fmt"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/theamorn/foodlens/internal/backend/cpu"
	"github.com/theamorn/foodlens/internal/tensor"
)

// Backend runs graph operations on the GPU where supported.
type Backend struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	// Shader and pipeline cache
	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex

	// Host-side fallback for operations without a compute shader.
	host *cpu.Backend
}

// Supported reports whether an accelerator device can be initialized.
// Probing tears the device down again; use New to keep one.
func Supported() bool {
	b, err := New()
	if err != nil {
		return false
	}
	b.Close()
	return true
}

// New creates a WebGPU backend.
// Returns an error if WebGPU is not available or initialization fails.
func New() (backend *Backend, err error) {
	// Recover from panic if the wgpu native library is not found.
	defer func() {
		if r := recover(); r != nil {
			backend = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance, instanceErr := wgpu.CreateInstance(nil)
	if instanceErr != nil {
		return nil, fmt.Errorf("webgpu: failed to create instance: %w", instanceErr)
	}
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request adapter: %w", adapterErr)
	}

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w", deviceErr)
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue")
	}

	return &Backend{
		instance:  instance,
		adapter:   adapter,
		device:    device,
		queue:     queue,
		shaders:   make(map[string]*wgpu.ShaderModule),
		pipelines: make(map[string]*wgpu.ComputePipeline),
		host:      cpu.New(),
	}, nil
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return "WebGPU"
}

// Device returns the compute device.
func (b *Backend) Device() tensor.Device {
	return tensor.WebGPU
}

// Close releases GPU resources. The backend is unusable afterwards.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range b.pipelines {
		p.Release()
	}
	for _, s := range b.shaders {
		s.Release()
	}
	b.pipelines = make(map[string]*wgpu.ComputePipeline)
	b.shaders = make(map[string]*wgpu.ShaderModule)

	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

// MatMul multiplies (M, K) @ (K, N) -> (M, N) on the GPU.
func (b *Backend) MatMul(a, other *tensor.RawTensor) (*tensor.RawTensor, error) {
	return b.runMatMul(a, other)
}

// ReLU applies max(0, x) element-wise on the GPU.
func (b *Backend) ReLU(x *tensor.RawTensor) (*tensor.RawTensor, error) {
	return b.runReLU(x)
}

// Conv2D has no compute shader; it runs on the host kernels.
func (b *Backend) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) (*tensor.RawTensor, error) {
	return b.host.Conv2D(input, kernel, stride, padding)
}

// MaxPool2D has no compute shader; it runs on the host kernels.
func (b *Backend) MaxPool2D(input *tensor.RawTensor, kernelSize, stride int) (*tensor.RawTensor, error) {
	return b.host.MaxPool2D(input, kernelSize, stride)
}

// AddBias is memory-bound; the transfer would cost more than the add.
func (b *Backend) AddBias(x, bias *tensor.RawTensor) (*tensor.RawTensor, error) {
	return b.host.AddBias(x, bias)
}
