package imaging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theamorn/foodlens/internal/parallel"
	"github.com/theamorn/foodlens/internal/tensor"
)

func rgbaFrame(w, h int, r, g, b, a byte) *Frame {
	data := make([]byte, w*h*4)
	for i := 0; i < w*h; i++ {
		data[i*4] = r
		data[i*4+1] = g
		data[i*4+2] = b
		data[i*4+3] = a
	}
	return &Frame{
		Planes: []Plane{{Data: data}},
		Width:  w,
		Height: h,
		Format: FormatRGBA,
	}
}

func yuv420Frame(w, h int, y, u, v byte) *Frame {
	cw, ch := (w+1)/2, (h+1)/2
	yPlane := make([]byte, w*h)
	uPlane := make([]byte, cw*ch)
	vPlane := make([]byte, cw*ch)
	for i := range yPlane {
		yPlane[i] = y
	}
	for i := range uPlane {
		uPlane[i] = u
		vPlane[i] = v
	}
	return &Frame{
		Planes: []Plane{{Data: yPlane}, {Data: uPlane}, {Data: vPlane}},
		Width:  w,
		Height: h,
		Format: FormatYUV420,
	}
}

func TestToRGB_PackedChannelOrder(t *testing.T) {
	cfg := parallel.DefaultConfig()

	rgba := rgbaFrame(2, 2, 10, 20, 30, 255)
	img, err := ToRGB(rgba, cfg)
	require.NoError(t, err)
	r, g, b := img.At(1, 1)
	assert.Equal(t, []uint8{10, 20, 30}, []uint8{r, g, b})

	bgra := rgbaFrame(2, 2, 30, 20, 10, 255)
	bgra.Format = FormatBGRA
	img, err = ToRGB(bgra, cfg)
	require.NoError(t, err)
	r, g, b = img.At(0, 0)
	assert.Equal(t, []uint8{10, 20, 30}, []uint8{r, g, b})
}

func TestToRGB_YUV420Gray(t *testing.T) {
	// Neutral chroma must produce pure gray at the luma level.
	img, err := ToRGB(yuv420Frame(4, 4, 128, 128, 128), parallel.DefaultConfig())
	require.NoError(t, err)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			r, g, b := img.At(x, y)
			assert.Equal(t, uint8(128), r)
			assert.Equal(t, uint8(128), g)
			assert.Equal(t, uint8(128), b)
		}
	}
}

func TestToRGB_NV21MatchesPlanar(t *testing.T) {
	const w, h = 6, 4
	planar := yuv420Frame(w, h, 90, 100, 160)

	cw, ch := (w+1)/2, (h+1)/2
	vu := make([]byte, cw*ch*2)
	for i := 0; i < cw*ch; i++ {
		vu[i*2] = 160   // V first in NV21
		vu[i*2+1] = 100 // then U
	}
	nv21 := &Frame{
		Planes: []Plane{{Data: planar.Planes[0].Data}, {Data: vu}},
		Width:  w,
		Height: h,
		Format: FormatNV21,
	}

	cfg := parallel.DefaultConfig()
	want, err := ToRGB(planar, cfg)
	require.NoError(t, err)
	got, err := ToRGB(nv21, cfg)
	require.NoError(t, err)
	assert.Equal(t, want.Pix, got.Pix)
}

func TestToRGB_Errors(t *testing.T) {
	cfg := parallel.DefaultConfig()

	_, err := ToRGB(&Frame{Width: 0, Height: 10, Format: FormatRGBA}, cfg)
	assert.ErrorIs(t, err, ErrInvalidDimensions)

	_, err = ToRGB(&Frame{Width: 10, Height: 0, Format: FormatRGBA}, cfg)
	assert.ErrorIs(t, err, ErrInvalidDimensions)

	// Missing chroma planes.
	f := yuv420Frame(4, 4, 0, 0, 0)
	f.Planes = f.Planes[:1]
	_, err = ToRGB(f, cfg)
	assert.ErrorIs(t, err, ErrDecode)

	// Stride inconsistent with declared width.
	f = rgbaFrame(4, 4, 0, 0, 0, 0)
	f.Planes[0].Stride = 8 // needs at least 16
	_, err = ToRGB(f, cfg)
	assert.ErrorIs(t, err, ErrDecode)

	// Buffer too short for declared dimensions.
	f = rgbaFrame(4, 4, 0, 0, 0, 0)
	f.Planes[0].Data = f.Planes[0].Data[:10]
	_, err = ToRGB(f, cfg)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestToRGB_RespectsStridePadding(t *testing.T) {
	// 2x2 RGBA with 4 bytes of padding per row.
	const stride = 2*4 + 4
	data := make([]byte, stride*2)
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			data[y*stride+x*4] = byte(100 + y*2 + x) // R encodes position
		}
	}
	f := &Frame{
		Planes: []Plane{{Data: data, Stride: stride}},
		Width:  2, Height: 2,
		Format: FormatRGBA,
	}

	img, err := ToRGB(f, parallel.DefaultConfig())
	require.NoError(t, err)
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			r, _, _ := img.At(x, y)
			assert.Equal(t, uint8(100+y*2+x), r)
		}
	}
}

// gradient builds a w x h image whose red channel encodes x and green
// channel encodes y, to make rotations distinguishable.
func gradient(w, h int) *RGB {
	img := NewRGB(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 3
			img.Pix[i] = byte(x)
			img.Pix[i+1] = byte(y)
		}
	}
	return img
}

func TestRotate(t *testing.T) {
	img := gradient(3, 2)

	r90, err := Rotate(img, 90)
	require.NoError(t, err)
	assert.Equal(t, 2, r90.Width)
	assert.Equal(t, 3, r90.Height)
	// Source (0,0) lands at (h-1, 0) = (1, 0) after 90 degrees clockwise.
	r, g, _ := r90.At(1, 0)
	assert.Equal(t, uint8(0), r)
	assert.Equal(t, uint8(0), g)
	// Source (2,1) lands at (0, 2).
	r, g, _ = r90.At(0, 2)
	assert.Equal(t, uint8(2), r)
	assert.Equal(t, uint8(1), g)

	r180, err := Rotate(img, 180)
	require.NoError(t, err)
	r, g, _ = r180.At(0, 0)
	assert.Equal(t, uint8(2), r)
	assert.Equal(t, uint8(1), g)

	r270, err := Rotate(img, 270)
	require.NoError(t, err)
	assert.Equal(t, 2, r270.Width)
	// Source (2,1) lands at (1, 0) after 270 degrees clockwise.
	r, g, _ = r270.At(1, 0)
	assert.Equal(t, uint8(2), r)
	assert.Equal(t, uint8(1), g)

	same, err := Rotate(img, 0)
	require.NoError(t, err)
	assert.Same(t, img, same)

	_, err = Rotate(img, 45)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestRotate_FourTimes90IsIdentity(t *testing.T) {
	img := gradient(5, 7)
	out := img
	var err error
	for i := 0; i < 4; i++ {
		out, err = Rotate(out, 90)
		require.NoError(t, err)
	}
	assert.Equal(t, img.Pix, out.Pix)
}

func TestCenterCropSquare(t *testing.T) {
	img := gradient(6, 4)
	out := CenterCropSquare(img)
	assert.Equal(t, 4, out.Width)
	assert.Equal(t, 4, out.Height)
	// Crop removes one pixel column from each side: (0,0) was (1,0).
	r, g, _ := out.At(0, 0)
	assert.Equal(t, uint8(1), r)
	assert.Equal(t, uint8(0), g)

	tall := gradient(4, 6)
	out = CenterCropSquare(tall)
	assert.Equal(t, 4, out.Width)
	_, g, _ = out.At(0, 0)
	assert.Equal(t, uint8(1), g)

	square := gradient(4, 4)
	assert.Same(t, square, CenterCropSquare(square))
}

func TestResizeBilinear_UniformStaysUniform(t *testing.T) {
	img := NewRGB(100, 100)
	for i := 0; i < len(img.Pix); i += 3 {
		img.Pix[i] = 200
		img.Pix[i+1] = 50
		img.Pix[i+2] = 2
	}

	out := ResizeBilinear(img, 33)
	for i := 0; i < len(out.Pix); i += 3 {
		require.Equal(t, uint8(200), out.Pix[i])
		require.Equal(t, uint8(50), out.Pix[i+1])
		require.Equal(t, uint8(2), out.Pix[i+2])
	}
}

func TestPreprocess_TensorLengthForAllFormats(t *testing.T) {
	const size = 192
	opts := Options{Size: size, DType: tensor.Uint8, Parallel: parallel.DefaultConfig()}

	frames := map[string]*Frame{
		"RGBA":   rgbaFrame(31, 47, 1, 2, 3, 4),
		"BGRA":   func() *Frame { f := rgbaFrame(31, 47, 1, 2, 3, 4); f.Format = FormatBGRA; return f }(),
		"YUV420": yuv420Frame(31, 47, 100, 110, 120),
		"NV21": {
			Planes: []Plane{
				{Data: make([]byte, 31*47)},
				{Data: make([]byte, 16*24*2)},
			},
			Width: 31, Height: 47, Format: FormatNV21,
		},
	}

	for name, f := range frames {
		t.Run(name, func(t *testing.T) {
			out, _, err := Preprocess(f, opts)
			require.NoError(t, err)
			assert.Equal(t, size*size*3, out.ByteSize())
			assert.True(t, out.Shape().Equal(tensor.Shape{1, size, size, 3}))
		})
	}
}

func TestPreprocess_SolidRedStaysSolidRed(t *testing.T) {
	// A 224x224 solid-red frame at rotation 0 must produce a tensor that
	// is (255, 0, 0) at every pixel, whatever the resize does.
	f := rgbaFrame(224, 224, 255, 0, 0, 255)
	out, _, err := Preprocess(f, Options{Size: 224, DType: tensor.Uint8, Parallel: parallel.DefaultConfig()})
	require.NoError(t, err)

	pix := out.AsUint8()
	for i := 0; i < len(pix); i += 3 {
		require.Equal(t, uint8(255), pix[i], "red at pixel %d", i/3)
		require.Equal(t, uint8(0), pix[i+1], "green at pixel %d", i/3)
		require.Equal(t, uint8(0), pix[i+2], "blue at pixel %d", i/3)
	}

	// Same property through an actual resize.
	small := rgbaFrame(64, 48, 255, 0, 0, 255)
	out, _, err = Preprocess(small, Options{Size: 224, DType: tensor.Uint8, Parallel: parallel.DefaultConfig()})
	require.NoError(t, err)
	pix = out.AsUint8()
	for i := 0; i < len(pix); i += 3 {
		require.Equal(t, uint8(255), pix[i])
		require.Equal(t, uint8(0), pix[i+1])
		require.Equal(t, uint8(0), pix[i+2])
	}
}

func TestPreprocess_FloatNormalization(t *testing.T) {
	f := rgbaFrame(8, 8, 255, 0, 127, 255)
	out, _, err := Preprocess(f, Options{
		Size: 8, DType: tensor.Float32,
		Mean: 127.5, Std: 127.5,
		Parallel: parallel.DefaultConfig(),
	})
	require.NoError(t, err)

	data := out.AsFloat32()
	assert.InDelta(t, 1.0, data[0], 1e-6)
	assert.InDelta(t, -1.0, data[1], 1e-6)
	assert.InDelta(t, (127.0-127.5)/127.5, data[2], 1e-6)
}

func TestPreprocess_Timings(t *testing.T) {
	f := yuv420Frame(320, 240, 128, 128, 128)
	f.Rotation = 90
	_, tm, err := Preprocess(f, Options{Size: 64, DType: tensor.Uint8, Parallel: parallel.DefaultConfig()})
	require.NoError(t, err)
	assert.Greater(t, tm.Convert+tm.Resize, time.Duration(0))
}
