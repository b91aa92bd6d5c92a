package cpu

import (
	"fmt"

	"github.com/theamorn/foodlens/internal/parallel"
	"github.com/theamorn/foodlens/internal/tensor"
)

// Conv2D performs 2D convolution using the im2col algorithm: input
// patches become rows of a column matrix, the kernel becomes a weight
// matrix, and the convolution reduces to one matrix multiplication.
//
// Input shape: [N, C_in, H, W]
// Kernel shape: [C_out, C_in, K_h, K_w]
// Output shape: [N, C_out, H_out, W_out]
func (b *Backend) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) (*tensor.RawTensor, error) {
	inputShape := input.Shape()
	kernelShape := kernel.Shape()

	if len(inputShape) != 4 {
		return nil, fmt.Errorf("conv2d: input must be 4D [N,C,H,W], got %dD", len(inputShape))
	}
	if len(kernelShape) != 4 {
		return nil, fmt.Errorf("conv2d: kernel must be 4D [C_out,C_in,K_h,K_w], got %dD", len(kernelShape))
	}
	if input.DType() != tensor.Float32 || kernel.DType() != tensor.Float32 {
		return nil, fmt.Errorf("conv2d: unsupported dtypes %s, %s", input.DType(), kernel.DType())
	}
	if stride < 1 {
		return nil, fmt.Errorf("conv2d: stride must be >= 1, got %d", stride)
	}

	n, cIn, h, w := inputShape[0], inputShape[1], inputShape[2], inputShape[3]
	cOut, cInK, kh, kw := kernelShape[0], kernelShape[1], kernelShape[2], kernelShape[3]

	if cIn != cInK {
		return nil, fmt.Errorf("conv2d: input channels %d != kernel channels %d", cIn, cInK)
	}

	hOut := (h+2*padding-kh)/stride + 1
	wOut := (w+2*padding-kw)/stride + 1
	if hOut <= 0 || wOut <= 0 {
		return nil, fmt.Errorf("conv2d: invalid output dimensions %dx%d (check stride/padding)", hOut, wOut)
	}

	output, err := tensor.NewRaw(tensor.Shape{n, cOut, hOut, wOut}, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("conv2d: %w", err)
	}

	// Step 1: im2col. colBuf is [N * H_out * W_out, C_in * K_h * K_w].
	colWidth := cIn * kh * kw
	colHeight := n * hOut * wOut
	colBuf := make([]float32, colHeight*colWidth)
	im2colFloat32(colBuf, input.AsFloat32(), n, cIn, h, w, kh, kw, hOut, wOut, stride, padding)

	// Step 2: one matmul per output channel row.
	// kernelData is already [C_out, C_in * K_h * K_w] in row-major.
	// result[c, p] = sum_k kernel[c, k] * colBuf[p, k]
	kernelData := kernel.AsFloat32()
	outputData := output.AsFloat32()

	chCfg := b.cfg
	chCfg.MinChunkSize = 1
	parallel.For(cOut, func(c int) {
		kRow := kernelData[c*colWidth : (c+1)*colWidth]
		for p := 0; p < colHeight; p++ {
			col := colBuf[p*colWidth : (p+1)*colWidth]
			sum := float32(0)
			for k, kv := range kRow {
				sum += kv * col[k]
			}
			// p enumerates (n, h, w) in row-major order, so writing at
			// [n, c, h, w] only reindexes the batch/channel prefix.
			batch := p / (hOut * wOut)
			rest := p % (hOut * wOut)
			outputData[batch*cOut*hOut*wOut+c*hOut*wOut+rest] = sum
		}
	}, chCfg)

	return output, nil
}

// im2colFloat32 transforms [N, C, H, W] input into a column matrix
// [N * H_out * W_out, C * K_h * K_w], one row per output position, with
// zero padding outside the input bounds.
func im2colFloat32(colBuf, inputData []float32, n, c, h, w, kh, kw, hOut, wOut, stride, padding int) {
	colWidth := c * kh * kw
	colIdx := 0

	for batch := 0; batch < n; batch++ {
		for outH := 0; outH < hOut; outH++ {
			for outW := 0; outW < wOut; outW++ {
				hStart := outH*stride - padding
				wStart := outW*stride - padding
				bufIdx := colIdx * colWidth

				for ch := 0; ch < c; ch++ {
					for ky := 0; ky < kh; ky++ {
						for kx := 0; kx < kw; kx++ {
							y := hStart + ky
							x := wStart + kx
							if y >= 0 && y < h && x >= 0 && x < w {
								colBuf[bufIdx] = inputData[batch*c*h*w+ch*h*w+y*w+x]
							} else {
								colBuf[bufIdx] = 0
							}
							bufIdx++
						}
					}
				}
				colIdx++
			}
		}
	}
}
