// Package tensor provides the fixed-shape numeric buffers consumed by the
// FoodLens inference backends.
package tensor

// DataType represents runtime type information for tensors.
//
// The classifier only ever moves two element types: uint8 for raw image
// bytes and quantized model output, float32 for normalized input and
// logits.
type DataType int

// Supported data types.
const (
	Uint8 DataType = iota
	Float32
)

// Size returns the byte size of one element of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Uint8:
		return 1
	case Float32:
		return 4
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Uint8:
		return "uint8"
	case Float32:
		return "float32"
	default:
		return "unknown"
	}
}
