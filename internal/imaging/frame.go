// Package imaging converts raw camera frames into the fixed-size RGB
// tensors the classifier consumes.
//
// The whole package is stateless: every function takes one frame and
// returns fresh buffers, so independent frames can be processed
// concurrently without shared mutable data.
package imaging

import (
	"errors"
	"time"
)

// Errors returned by frame interpretation.
var (
	// ErrDecode reports a source buffer that cannot be interpreted under
	// its declared pixel format (missing planes, short buffers, strides
	// inconsistent with the declared dimensions).
	ErrDecode = errors.New("imaging: cannot decode frame")

	// ErrInvalidDimensions reports degenerate geometry (zero width or height).
	ErrInvalidDimensions = errors.New("imaging: invalid dimensions")
)

// Format identifies the pixel layout of a camera frame.
type Format int

// Supported source pixel formats.
const (
	// FormatYUV420 is planar 4:2:0: a full-resolution luma plane followed
	// by half-resolution U and V planes.
	FormatYUV420 Format = iota

	// FormatNV21 is semi-planar 4:2:0: a full-resolution luma plane
	// followed by one interleaved VU plane.
	FormatNV21

	// FormatRGBA is packed 8-bit R,G,B,A.
	FormatRGBA

	// FormatBGRA is packed 8-bit B,G,R,A.
	FormatBGRA
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatYUV420:
		return "YUV420"
	case FormatNV21:
		return "NV21"
	case FormatRGBA:
		return "RGBA"
	case FormatBGRA:
		return "BGRA"
	default:
		return "Unknown"
	}
}

// Plane is one plane of a frame buffer.
type Plane struct {
	Data   []byte
	Stride int // Bytes per row. Zero means tightly packed.
}

// Frame is one camera capture.
//
// Frames are shared by reference from the camera callback; callers must
// not modify plane data after submitting a frame. The pipeline owns an
// admitted frame exclusively and releases it as soon as preprocessing
// completes or the frame is dropped.
type Frame struct {
	Planes    []Plane
	Width     int
	Height    int
	Format    Format
	Rotation  int // Degrees clockwise: 0, 90, 180 or 270.
	Timestamp time.Time
	Seq       uint64 // Assigned by the pipeline on admission.
}

// RGB is a packed 8-bit R,G,B image, tightly packed row-major.
type RGB struct {
	Pix    []byte
	Width  int
	Height int
}

// NewRGB allocates a zeroed RGB image.
func NewRGB(width, height int) *RGB {
	return &RGB{
		Pix:    make([]byte, width*height*3),
		Width:  width,
		Height: height,
	}
}

// At returns the r,g,b bytes at (x, y). No bounds check.
func (img *RGB) At(x, y int) (uint8, uint8, uint8) {
	i := (y*img.Width + x) * 3
	return img.Pix[i], img.Pix[i+1], img.Pix[i+2]
}
