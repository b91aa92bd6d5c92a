package model

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/theamorn/foodlens/internal/tensor"
)

// layer is one parsed graph layer. Weight tensors are immutable after
// load and shared by every forward pass.
type layer struct {
	kind LayerKind

	// Conv2D
	stride  int
	padding int
	kernel  *tensor.RawTensor // [C_out, C_in, K, K]

	// MaxPool2D
	poolKernel int
	poolStride int

	// Dense. Stored pre-transposed as [in, out] so a row-vector input
	// multiplies directly.
	weights *tensor.RawTensor

	// Conv2D and Dense
	bias *tensor.RawTensor
}

// Graph is a loaded classifier network plus its input/output contract.
type Graph struct {
	inputSize  int
	classCount int
	inputType  DTypeCode
	outputType DTypeCode
	mean       float32
	std        float32
	layers     []layer
}

// InputSize returns the required spatial size S; input is (1, S, S, 3).
func (g *Graph) InputSize() int { return g.inputSize }

// ClassCount returns the number of output classes.
func (g *Graph) ClassCount() int { return g.classCount }

// InputType returns the input element type.
func (g *Graph) InputType() DTypeCode { return g.inputType }

// OutputType returns the output element type.
func (g *Graph) OutputType() DTypeCode { return g.outputType }

// Normalization returns the mean and std for float input packing.
func (g *Graph) Normalization() (mean, std float32) { return g.mean, g.std }

// InputShape returns the expected input tensor shape.
func (g *Graph) InputShape() tensor.Shape {
	return tensor.Shape{1, g.inputSize, g.inputSize, 3}
}

// InputTensorType returns the tensor dtype matching the input contract.
func (g *Graph) InputTensorType() tensor.DataType {
	if g.inputType == DTypeUint8 {
		return tensor.Uint8
	}
	return tensor.Float32
}

// Parse loads an FLM container from bytes. The returned Graph shares no
// state with the input slice.
func Parse(data []byte) (*Graph, error) {
	r := &reader{r: bytes.NewReader(data)}

	magic := r.uint32()
	if r.err == nil && magic != flmMagic {
		return nil, fmt.Errorf("%w: bad magic 0x%X", ErrFormat, magic)
	}
	version := r.uint32()
	if r.err == nil && version != flmVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrFormat, version)
	}

	g := &Graph{}
	g.inputSize = int(r.uint32())
	g.classCount = int(r.uint32())
	g.inputType = DTypeCode(r.uint8())
	g.outputType = DTypeCode(r.uint8())
	r.skip(2)
	g.mean = r.float32()
	g.std = r.float32()
	layerCount := int(r.uint32())

	if r.err != nil {
		return nil, fmt.Errorf("%w: truncated header: %v", ErrFormat, r.err)
	}
	if g.inputSize <= 0 || g.inputSize > 4096 {
		return nil, fmt.Errorf("%w: input size %d", ErrFormat, g.inputSize)
	}
	if g.classCount <= 1 {
		return nil, fmt.Errorf("%w: class count %d", ErrFormat, g.classCount)
	}
	if g.inputType > DTypeFloat32 || g.outputType > DTypeFloat32 {
		return nil, fmt.Errorf("%w: unknown dtype codes %d/%d", ErrFormat, g.inputType, g.outputType)
	}
	if layerCount <= 0 || layerCount > 256 {
		return nil, fmt.Errorf("%w: layer count %d", ErrFormat, layerCount)
	}

	// Track the activation shape through the graph so inconsistent
	// weights fail at load, not mid-inference. Shape is NCHW, or
	// [1, features] after flatten.
	c, h, w := 3, g.inputSize, g.inputSize
	flat := 0 // non-zero once flattened

	for i := 0; i < layerCount; i++ {
		kind := LayerKind(r.uint8())
		if r.err != nil {
			return nil, fmt.Errorf("%w: truncated at layer %d", ErrFormat, i)
		}

		switch kind {
		case LayerConv2D:
			if flat != 0 {
				return nil, fmt.Errorf("%w: layer %d: conv2d after flatten", ErrFormat, i)
			}
			outC := int(r.uint32())
			inC := int(r.uint32())
			k := int(r.uint32())
			stride := int(r.uint32())
			padding := int(r.uint32())
			if r.err != nil || outC <= 0 || inC <= 0 || k <= 0 || stride <= 0 || padding < 0 {
				return nil, fmt.Errorf("%w: layer %d: bad conv2d params", ErrFormat, i)
			}
			if inC != c {
				return nil, fmt.Errorf("%w: layer %d: conv2d expects %d channels, graph has %d", ErrFormat, i, inC, c)
			}

			kernel, err := r.floatTensor(tensor.Shape{outC, inC, k, k})
			if err != nil {
				return nil, fmt.Errorf("%w: layer %d: conv2d weights: %v", ErrFormat, i, err)
			}
			bias, err := r.floatTensor(tensor.Shape{outC})
			if err != nil {
				return nil, fmt.Errorf("%w: layer %d: conv2d bias: %v", ErrFormat, i, err)
			}

			h = (h+2*padding-k)/stride + 1
			w = (w+2*padding-k)/stride + 1
			if h <= 0 || w <= 0 {
				return nil, fmt.Errorf("%w: layer %d: conv2d collapses spatial dims", ErrFormat, i)
			}
			c = outC
			g.layers = append(g.layers, layer{kind: kind, kernel: kernel, bias: bias, stride: stride, padding: padding})

		case LayerReLU:
			g.layers = append(g.layers, layer{kind: kind})

		case LayerMaxPool2D:
			if flat != 0 {
				return nil, fmt.Errorf("%w: layer %d: maxpool after flatten", ErrFormat, i)
			}
			k := int(r.uint32())
			stride := int(r.uint32())
			if r.err != nil || k <= 0 || stride <= 0 {
				return nil, fmt.Errorf("%w: layer %d: bad maxpool params", ErrFormat, i)
			}
			h = (h-k)/stride + 1
			w = (w-k)/stride + 1
			if h <= 0 || w <= 0 {
				return nil, fmt.Errorf("%w: layer %d: maxpool collapses spatial dims", ErrFormat, i)
			}
			g.layers = append(g.layers, layer{kind: kind, poolKernel: k, poolStride: stride})

		case LayerFlatten:
			if flat != 0 {
				return nil, fmt.Errorf("%w: layer %d: double flatten", ErrFormat, i)
			}
			flat = c * h * w
			g.layers = append(g.layers, layer{kind: kind})

		case LayerDense:
			if flat == 0 {
				return nil, fmt.Errorf("%w: layer %d: dense before flatten", ErrFormat, i)
			}
			outF := int(r.uint32())
			inF := int(r.uint32())
			if r.err != nil || outF <= 0 || inF <= 0 {
				return nil, fmt.Errorf("%w: layer %d: bad dense params", ErrFormat, i)
			}
			if inF != flat {
				return nil, fmt.Errorf("%w: layer %d: dense expects %d features, graph has %d", ErrFormat, i, inF, flat)
			}

			// Container stores [out, in]; transpose to [in, out] for the
			// row-vector matmul.
			raw := make([]float32, outF*inF)
			if err := r.floats(raw); err != nil {
				return nil, fmt.Errorf("%w: layer %d: dense weights: %v", ErrFormat, i, err)
			}
			transposed := make([]float32, len(raw))
			for o := 0; o < outF; o++ {
				for in := 0; in < inF; in++ {
					transposed[in*outF+o] = raw[o*inF+in]
				}
			}
			weights, err := tensor.FromFloat32(transposed, tensor.Shape{inF, outF})
			if err != nil {
				return nil, fmt.Errorf("%w: layer %d: dense weights: %v", ErrFormat, i, err)
			}
			bias, err := r.floatTensor(tensor.Shape{outF})
			if err != nil {
				return nil, fmt.Errorf("%w: layer %d: dense bias: %v", ErrFormat, i, err)
			}

			flat = outF
			g.layers = append(g.layers, layer{kind: kind, weights: weights, bias: bias})

		default:
			return nil, fmt.Errorf("%w: layer %d: unknown kind %d", ErrFormat, i, uint8(kind))
		}
	}

	if flat == 0 {
		return nil, fmt.Errorf("%w: graph never flattens to class scores", ErrFormat)
	}
	if flat != g.classCount {
		return nil, fmt.Errorf("%w: graph produces %d outputs, header declares %d classes", ErrFormat, flat, g.classCount)
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrFormat, r.remaining())
	}

	return g, nil
}

// reader wraps sticky-error little-endian decoding.
type reader struct {
	r   *bytes.Reader
	err error
}

func (r *reader) uint32() uint32 {
	if r.err != nil {
		return 0
	}
	var v uint32
	r.err = binary.Read(r.r, binary.LittleEndian, &v)
	return v
}

func (r *reader) uint8() uint8 {
	if r.err != nil {
		return 0
	}
	var v uint8
	r.err = binary.Read(r.r, binary.LittleEndian, &v)
	return v
}

func (r *reader) float32() float32 {
	if r.err != nil {
		return 0
	}
	var v float32
	r.err = binary.Read(r.r, binary.LittleEndian, &v)
	return v
}

func (r *reader) skip(n int) {
	if r.err != nil {
		return
	}
	_, r.err = r.r.Seek(int64(n), io.SeekCurrent)
}

func (r *reader) floats(dst []float32) error {
	if r.err != nil {
		return r.err
	}
	if err := binary.Read(r.r, binary.LittleEndian, dst); err != nil {
		r.err = err
		return err
	}
	return nil
}

func (r *reader) floatTensor(shape tensor.Shape) (*tensor.RawTensor, error) {
	data := make([]float32, shape.NumElements())
	if err := r.floats(data); err != nil {
		return nil, err
	}
	return tensor.FromFloat32(data, shape)
}

func (r *reader) remaining() int {
	return r.r.Len()
}
