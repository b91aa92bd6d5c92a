package imaging

import (
	"fmt"
	"time"

	"github.com/theamorn/foodlens/internal/parallel"
	"github.com/theamorn/foodlens/internal/tensor"
)

// Options configures preprocessing for one model's input contract.
type Options struct {
	// Size is the model's required spatial size S; output is (1, S, S, 3).
	Size int

	// DType selects the element type: Uint8 raw bytes or Float32
	// normalized as (v - Mean) / Std.
	DType tensor.DataType

	// Mean and Std normalize float inputs. Ignored for Uint8.
	Mean float32
	Std  float32

	// Parallel controls row-parallel color conversion.
	Parallel parallel.Config
}

// Timings is the per-stage preprocessing cost of one frame.
type Timings struct {
	Convert time.Duration // Color conversion and rotation.
	Resize  time.Duration // Center crop and resize.
}

// Preprocess converts one frame into the (1, S, S, 3) tensor the model
// expects: color conversion, rotation, center square crop, bilinear
// resize, R,G,B channel packing.
func Preprocess(f *Frame, opts Options) (*tensor.RawTensor, Timings, error) {
	var tm Timings
	if opts.Size <= 0 {
		return nil, tm, fmt.Errorf("%w: target size %d", ErrInvalidDimensions, opts.Size)
	}

	start := time.Now()
	img, err := ToRGB(f, opts.Parallel)
	if err != nil {
		return nil, tm, err
	}
	img, err = Rotate(img, f.Rotation)
	if err != nil {
		return nil, tm, err
	}
	tm.Convert = time.Since(start)

	start = time.Now()
	img = CenterCropSquare(img)
	img = ResizeBilinear(img, opts.Size)
	tm.Resize = time.Since(start)

	out, err := Pack(img, opts)
	if err != nil {
		return nil, tm, err
	}
	return out, tm, nil
}

// Pack writes an S x S RGB image into a (1, S, S, 3) tensor of the
// requested element type.
func Pack(img *RGB, opts Options) (*tensor.RawTensor, error) {
	if img.Width != opts.Size || img.Height != opts.Size {
		return nil, fmt.Errorf("%w: image %dx%d, want %dx%d",
			ErrInvalidDimensions, img.Width, img.Height, opts.Size, opts.Size)
	}
	shape := tensor.Shape{1, opts.Size, opts.Size, 3}

	switch opts.DType {
	case tensor.Uint8:
		return tensor.FromUint8(img.Pix, shape)
	case tensor.Float32:
		std := opts.Std
		if std == 0 {
			std = 1
		}
		out, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
		if err != nil {
			return nil, err
		}
		dst := out.AsFloat32()
		for i, v := range img.Pix {
			dst[i] = (float32(v) - opts.Mean) / std
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported tensor dtype %s", ErrDecode, opts.DType)
	}
}
