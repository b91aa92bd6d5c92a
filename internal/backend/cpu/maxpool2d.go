package cpu

import (
	"fmt"
	"math"

	"github.com/theamorn/foodlens/internal/tensor"
)

// MaxPool2D applies max pooling with a square window over [N, C, H, W].
func (b *Backend) MaxPool2D(input *tensor.RawTensor, kernelSize, stride int) (*tensor.RawTensor, error) {
	shape := input.Shape()
	if len(shape) != 4 {
		return nil, fmt.Errorf("maxpool2d: input must be 4D [N,C,H,W], got %dD", len(shape))
	}
	if input.DType() != tensor.Float32 {
		return nil, fmt.Errorf("maxpool2d: unsupported dtype %s", input.DType())
	}
	if kernelSize < 1 || stride < 1 {
		return nil, fmt.Errorf("maxpool2d: kernel %d and stride %d must be >= 1", kernelSize, stride)
	}

	n, c, h, w := shape[0], shape[1], shape[2], shape[3]
	hOut := (h-kernelSize)/stride + 1
	wOut := (w-kernelSize)/stride + 1
	if hOut <= 0 || wOut <= 0 {
		return nil, fmt.Errorf("maxpool2d: window %d too large for %dx%d input", kernelSize, h, w)
	}

	output, err := tensor.NewRaw(tensor.Shape{n, c, hOut, wOut}, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("maxpool2d: %w", err)
	}

	src := input.AsFloat32()
	dst := output.AsFloat32()

	for batch := 0; batch < n; batch++ {
		for ch := 0; ch < c; ch++ {
			in := src[(batch*c+ch)*h*w:]
			out := dst[(batch*c+ch)*hOut*wOut:]
			for oy := 0; oy < hOut; oy++ {
				for ox := 0; ox < wOut; ox++ {
					best := float32(math.Inf(-1))
					for ky := 0; ky < kernelSize; ky++ {
						row := in[(oy*stride+ky)*w+ox*stride:]
						for kx := 0; kx < kernelSize; kx++ {
							if row[kx] > best {
								best = row[kx]
							}
						}
					}
					out[oy*wOut+ox] = best
				}
			}
		}
	}
	return output, nil
}
