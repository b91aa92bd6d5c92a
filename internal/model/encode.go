package model

import (
	"bytes"
	"encoding/binary"
)

// Spec describes an FLM container to encode. Used by the test fixtures
// and the asset tooling; inference only ever parses.
type Spec struct {
	InputSize  int
	ClassCount int
	InputType  DTypeCode
	OutputType DTypeCode
	Mean       float32
	Std        float32
	Layers     []LayerSpec
}

// LayerSpec describes one layer record.
type LayerSpec struct {
	Kind LayerKind

	// Conv2D
	OutChannels int
	InChannels  int
	Kernel      int
	Stride      int
	Padding     int

	// MaxPool2D
	PoolKernel int
	PoolStride int

	// Dense
	OutFeatures int
	InFeatures  int

	// Conv2D and Dense. Dense weights are [out, in] row-major.
	Weights []float32
	Bias    []float32
}

// Encode serializes the spec into FLM container bytes.
func Encode(s Spec) []byte {
	var buf bytes.Buffer
	w := func(v any) { _ = binary.Write(&buf, binary.LittleEndian, v) }

	w(uint32(flmMagic))
	w(uint32(flmVersion))
	w(uint32(s.InputSize))
	w(uint32(s.ClassCount))
	w(uint8(s.InputType))
	w(uint8(s.OutputType))
	w(uint16(0))
	w(s.Mean)
	w(s.Std)
	w(uint32(len(s.Layers)))

	for _, l := range s.Layers {
		w(uint8(l.Kind))
		switch l.Kind {
		case LayerConv2D:
			w(uint32(l.OutChannels))
			w(uint32(l.InChannels))
			w(uint32(l.Kernel))
			w(uint32(l.Stride))
			w(uint32(l.Padding))
			w(l.Weights)
			w(l.Bias)
		case LayerMaxPool2D:
			w(uint32(l.PoolKernel))
			w(uint32(l.PoolStride))
		case LayerDense:
			w(uint32(l.OutFeatures))
			w(uint32(l.InFeatures))
			w(l.Weights)
			w(l.Bias)
		case LayerReLU, LayerFlatten:
			// no params
		}
	}

	return buf.Bytes()
}
