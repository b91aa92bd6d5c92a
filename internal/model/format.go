// Package model loads FLM classifier containers and executes their
// layer graph through an execution backend.
//
// FLM (FoodLens model, v1) is a flat little-endian container:
//
//	[4 bytes: "FLM1" magic]
//	[4 bytes: version (1)]
//	[4 bytes: input spatial size S]
//	[4 bytes: class count]
//	[1 byte: input dtype] [1 byte: output dtype] [2 bytes: reserved]
//	[4 bytes: normalization mean (float32)]
//	[4 bytes: normalization std (float32)]
//	[4 bytes: layer count]
//	[layer records]
//
// Input is always (1, S, S, 3) RGB. Dtype 0 is uint8, 1 is float32.
// A uint8 output dtype marks a quantized model whose output encodes
// probability on a 0-255 scale; float32 output is raw logits.
package model

import "errors"

const (
	flmMagic   = 0x314D4C46 // "FLM1" in little-endian
	flmVersion = 1
)

// ErrFormat reports model bytes that cannot be parsed as an FLM container.
var ErrFormat = errors.New("model: malformed container")

// DTypeCode identifies an element type in the container header.
type DTypeCode uint8

// Container element types.
const (
	DTypeUint8   DTypeCode = 0
	DTypeFloat32 DTypeCode = 1
)

// LayerKind identifies a layer record.
type LayerKind uint8

// Layer kinds.
const (
	LayerConv2D LayerKind = iota + 1
	LayerReLU
	LayerMaxPool2D
	LayerFlatten
	LayerDense
)

// String returns the layer kind name.
func (k LayerKind) String() string {
	switch k {
	case LayerConv2D:
		return "conv2d"
	case LayerReLU:
		return "relu"
	case LayerMaxPool2D:
		return "maxpool2d"
	case LayerFlatten:
		return "flatten"
	case LayerDense:
		return "dense"
	default:
		return "unknown"
	}
}
