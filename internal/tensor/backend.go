package tensor

// Backend is the set of operations a loaded classifier graph needs from an
// execution strategy.
//
// Implementations:
//   - cpu: pure Go kernels on a fixed-size worker pool
//   - webgpu: accelerator delegate; unsupported operations fall back to
//     the CPU kernels per-op
//
// Operands are always Float32; backends return errors rather than panic so
// the inference boundary can classify failures.
type Backend interface {
	// MatMul multiplies (M, K) @ (K, N) -> (M, N).
	MatMul(a, b *RawTensor) (*RawTensor, error)

	// Conv2D convolves input [N, C_in, H, W] with kernel
	// [C_out, C_in, K_h, K_w] at the given stride and zero padding.
	Conv2D(input, kernel *RawTensor, stride, padding int) (*RawTensor, error)

	// MaxPool2D applies max pooling with a square window.
	MaxPool2D(input *RawTensor, kernelSize, stride int) (*RawTensor, error)

	// ReLU applies max(0, x) element-wise.
	ReLU(x *RawTensor) (*RawTensor, error)

	// AddBias adds bias[c] to every element of channel (or column) c.
	// Input is [N, C, H, W] or [N, C]; bias is [C].
	AddBias(x, bias *RawTensor) (*RawTensor, error)

	// Metadata
	Name() string
	Device() Device
}
