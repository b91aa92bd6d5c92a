package classify

import (
	"fmt"
	"image"

	"github.com/nfnt/resize"

	"github.com/theamorn/foodlens/internal/imaging"
)

// ClassifyImage runs one synchronous pass over a decoded still image and
// returns the full ranked list (minus the background class). Unlike the
// streaming path it uses bicubic resampling; stills are one-shot and can
// afford the better kernel.
func ClassifyImage(h *Handle, img image.Image, n int) ([]Prediction, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInference)
	}

	size := h.InputSize()
	square := centerCropSquare(img)
	scaled := resize.Resize(uint(size), uint(size), square, resize.Bicubic)

	rgb := imaging.NewRGB(size, size)
	i := 0
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := scaled.At(scaled.Bounds().Min.X+x, scaled.Bounds().Min.Y+y).RGBA()
			rgb.Pix[i] = uint8(r >> 8)
			rgb.Pix[i+1] = uint8(g >> 8)
			rgb.Pix[i+2] = uint8(b >> 8)
			i += 3
		}
	}

	in, err := imaging.Pack(rgb, h.PreprocessOptions())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}

	raw, err := h.Run(in)
	if err != nil {
		return nil, err
	}
	return Predictions(raw, h.Labels(), n)
}

// centerCropSquare trims the longer axis symmetrically. Odd remainders
// leave the extra pixel on the trailing edge.
func centerCropSquare(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == h {
		return img
	}

	side := w
	if h < side {
		side = h
	}
	x0 := b.Min.X + (w-side)/2
	y0 := b.Min.Y + (h-side)/2
	crop := image.Rect(x0, y0, x0+side, y0+side)

	type subImager interface {
		SubImage(image.Rectangle) image.Image
	}
	if s, ok := img.(subImager); ok {
		return s.SubImage(crop)
	}

	dst := image.NewRGBA(image.Rect(0, 0, side, side))
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			dst.Set(x, y, img.At(x0+x, y0+y))
		}
	}
	return dst
}
