package model

import (
	"fmt"
	"math"

	"github.com/theamorn/foodlens/internal/tensor"
)

// Execute runs one forward pass on the given backend and returns the raw
// output tensor: (1, classCount) float32 logits, or uint8 on the 0-255
// probability scale for quantized models.
//
// Execute is read-only on the Graph and safe to call from any goroutine,
// but backends are not proven safe for concurrent invocation; callers
// serialize passes (the pipeline controller enforces this).
func (g *Graph) Execute(input *tensor.RawTensor, b tensor.Backend) (*tensor.RawTensor, error) {
	if !input.Shape().Equal(g.InputShape()) {
		return nil, fmt.Errorf("model: input shape %v does not match %v", input.Shape(), g.InputShape())
	}
	if input.DType() != g.InputTensorType() {
		return nil, fmt.Errorf("model: input dtype %s does not match %s", input.DType(), g.InputTensorType())
	}

	x, err := g.toNCHW(input)
	if err != nil {
		return nil, err
	}

	for i, l := range g.layers {
		switch l.kind {
		case LayerConv2D:
			x, err = b.Conv2D(x, l.kernel, l.stride, l.padding)
			if err == nil {
				x, err = b.AddBias(x, l.bias)
			}
		case LayerReLU:
			x, err = b.ReLU(x)
		case LayerMaxPool2D:
			x, err = b.MaxPool2D(x, l.poolKernel, l.poolStride)
		case LayerFlatten:
			x, err = flatten(x)
		case LayerDense:
			x, err = b.MatMul(x, l.weights)
			if err == nil {
				x, err = b.AddBias(x, l.bias)
			}
		default:
			err = fmt.Errorf("unknown layer kind %d", l.kind)
		}
		if err != nil {
			return nil, fmt.Errorf("model: layer %d (%s): %w", i, l.kind, err)
		}
	}

	if g.outputType == DTypeUint8 {
		return quantizeOutput(x)
	}
	return x, nil
}

// toNCHW converts the (1, S, S, 3) input to float32 (1, 3, S, S).
// Quantized inputs are dequantized to [0, 1].
func (g *Graph) toNCHW(input *tensor.RawTensor) (*tensor.RawTensor, error) {
	s := g.inputSize
	out, err := tensor.NewRaw(tensor.Shape{1, 3, s, s}, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, err
	}
	dst := out.AsFloat32()

	plane := s * s
	if input.DType() == tensor.Uint8 {
		src := input.AsUint8()
		for p := 0; p < plane; p++ {
			dst[p] = float32(src[p*3]) / 255
			dst[plane+p] = float32(src[p*3+1]) / 255
			dst[2*plane+p] = float32(src[p*3+2]) / 255
		}
	} else {
		src := input.AsFloat32()
		for p := 0; p < plane; p++ {
			dst[p] = src[p*3]
			dst[plane+p] = src[p*3+1]
			dst[2*plane+p] = src[p*3+2]
		}
	}
	return out, nil
}

// flatten reshapes [1, C, H, W] to [1, C*H*W]; memory order is unchanged.
func flatten(x *tensor.RawTensor) (*tensor.RawTensor, error) {
	return tensor.FromFloat32(x.AsFloat32(), tensor.Shape{1, x.NumElements()})
}

// quantizeOutput maps float logits to the 0-255 probability scale a
// quantized model reports: softmax, then round(p * 255).
func quantizeOutput(logits *tensor.RawTensor) (*tensor.RawTensor, error) {
	src := logits.AsFloat32()
	probs := softmax(src)

	out, err := tensor.NewRaw(logits.Shape(), tensor.Uint8, tensor.CPU)
	if err != nil {
		return nil, err
	}
	dst := out.AsUint8()
	for i, p := range probs {
		dst[i] = uint8(math.Round(float64(p) * 255))
	}
	return out, nil
}

// softmax computes a max-subtracted softmax over the full vector.
func softmax(logits []float32) []float32 {
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}

	probs := make([]float32, len(logits))
	sum := float64(0)
	for i, v := range logits {
		e := math.Exp(float64(v - maxLogit))
		probs[i] = float32(e)
		sum += e
	}
	for i := range probs {
		probs[i] = float32(float64(probs[i]) / sum)
	}
	return probs
}
