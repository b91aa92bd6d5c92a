package imaging

import (
	"fmt"

	"github.com/theamorn/foodlens/internal/parallel"
)

// ToRGB converts a frame to a packed RGB image.
//
// Planar and semi-planar 4:2:0 sources use the BT.601 full-range
// transform with nearest chroma upsampling: each chroma sample covers a
// 2x2 luma block. Packed 4-channel sources reorder channels and drop
// alpha. Results are clamped to [0, 255].
func ToRGB(f *Frame, cfg parallel.Config) (*RGB, error) {
	if f.Width <= 0 || f.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, f.Width, f.Height)
	}

	switch f.Format {
	case FormatYUV420:
		return yuv420ToRGB(f, cfg)
	case FormatNV21:
		return nv21ToRGB(f, cfg)
	case FormatRGBA:
		return packedToRGB(f, 0, 1, 2, cfg)
	case FormatBGRA:
		return packedToRGB(f, 2, 1, 0, cfg)
	default:
		return nil, fmt.Errorf("%w: unknown format %d", ErrDecode, int(f.Format))
	}
}

// plane returns frame plane i with its effective stride, validating that
// the declared geometry fits inside the buffer.
func plane(f *Frame, i, minStride, rows int) ([]byte, int, error) {
	if i >= len(f.Planes) {
		return nil, 0, fmt.Errorf("%w: %s frame needs plane %d, got %d planes", ErrDecode, f.Format, i, len(f.Planes))
	}
	p := f.Planes[i]
	stride := p.Stride
	if stride == 0 {
		stride = minStride
	}
	if stride < minStride {
		return nil, 0, fmt.Errorf("%w: plane %d stride %d < row width %d", ErrDecode, i, stride, minStride)
	}
	// The last row does not need trailing stride padding.
	need := stride*(rows-1) + minStride
	if len(p.Data) < need {
		return nil, 0, fmt.Errorf("%w: plane %d has %d bytes, need %d for %dx%d stride %d",
			ErrDecode, i, len(p.Data), need, minStride, rows, stride)
	}
	return p.Data, stride, nil
}

func yuv420ToRGB(f *Frame, cfg parallel.Config) (*RGB, error) {
	w, h := f.Width, f.Height
	cw, ch := (w+1)/2, (h+1)/2

	y, yStride, err := plane(f, 0, w, h)
	if err != nil {
		return nil, err
	}
	u, uStride, err := plane(f, 1, cw, ch)
	if err != nil {
		return nil, err
	}
	v, vStride, err := plane(f, 2, cw, ch)
	if err != nil {
		return nil, err
	}

	out := NewRGB(w, h)
	parallel.ForRows(h, func(row int) {
		dst := out.Pix[row*w*3:]
		ySrc := y[row*yStride:]
		uSrc := u[(row/2)*uStride:]
		vSrc := v[(row/2)*vStride:]
		for x := 0; x < w; x++ {
			writeYUV(dst[x*3:], ySrc[x], uSrc[x/2], vSrc[x/2])
		}
	}, cfg)
	return out, nil
}

func nv21ToRGB(f *Frame, cfg parallel.Config) (*RGB, error) {
	w, h := f.Width, f.Height
	cw, ch := (w+1)/2, (h+1)/2

	y, yStride, err := plane(f, 0, w, h)
	if err != nil {
		return nil, err
	}
	// Interleaved VU plane: two bytes per chroma sample.
	vu, vuStride, err := plane(f, 1, cw*2, ch)
	if err != nil {
		return nil, err
	}

	out := NewRGB(w, h)
	parallel.ForRows(h, func(row int) {
		dst := out.Pix[row*w*3:]
		ySrc := y[row*yStride:]
		vuSrc := vu[(row/2)*vuStride:]
		for x := 0; x < w; x++ {
			c := (x / 2) * 2
			writeYUV(dst[x*3:], ySrc[x], vuSrc[c+1], vuSrc[c])
		}
	}, cfg)
	return out, nil
}

// writeYUV converts one BT.601 full-range YUV sample to RGB.
func writeYUV(dst []byte, y, u, v uint8) {
	yf := float32(y)
	uf := float32(u) - 128
	vf := float32(v) - 128

	dst[0] = clampByte(yf + 1.402*vf)
	dst[1] = clampByte(yf - 0.344136*uf - 0.714136*vf)
	dst[2] = clampByte(yf + 1.772*uf)
}

func clampByte(v float32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// packedToRGB reorders a packed 4-channel plane into RGB, dropping the
// fourth channel. ri/gi/bi give the source offsets of R, G and B.
func packedToRGB(f *Frame, ri, gi, bi int, cfg parallel.Config) (*RGB, error) {
	w, h := f.Width, f.Height
	src, stride, err := plane(f, 0, w*4, h)
	if err != nil {
		return nil, err
	}

	out := NewRGB(w, h)
	parallel.ForRows(h, func(row int) {
		dst := out.Pix[row*w*3:]
		rowSrc := src[row*stride:]
		for x := 0; x < w; x++ {
			px := rowSrc[x*4:]
			dst[x*3] = px[ri]
			dst[x*3+1] = px[gi]
			dst[x*3+2] = px[bi]
		}
	}, cfg)
	return out, nil
}
