package imaging

import "fmt"

// Rotate rotates the image clockwise by one of the four right angles so
// the subject is upright. degrees must be 0, 90, 180 or 270.
func Rotate(img *RGB, degrees int) (*RGB, error) {
	switch degrees {
	case 0:
		return img, nil
	case 90:
		return rotate90(img), nil
	case 180:
		return rotate180(img), nil
	case 270:
		return rotate270(img), nil
	default:
		return nil, fmt.Errorf("%w: rotation %d not a right angle", ErrDecode, degrees)
	}
}

func rotate90(img *RGB) *RGB {
	w, h := img.Width, img.Height
	out := NewRGB(h, w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// (x, y) -> (h-1-y, x)
			src := (y*w + x) * 3
			dst := (x*h + (h - 1 - y)) * 3
			out.Pix[dst] = img.Pix[src]
			out.Pix[dst+1] = img.Pix[src+1]
			out.Pix[dst+2] = img.Pix[src+2]
		}
	}
	return out
}

func rotate180(img *RGB) *RGB {
	w, h := img.Width, img.Height
	out := NewRGB(w, h)
	n := w * h
	for i := 0; i < n; i++ {
		src := i * 3
		dst := (n - 1 - i) * 3
		out.Pix[dst] = img.Pix[src]
		out.Pix[dst+1] = img.Pix[src+1]
		out.Pix[dst+2] = img.Pix[src+2]
	}
	return out
}

func rotate270(img *RGB) *RGB {
	w, h := img.Width, img.Height
	out := NewRGB(h, w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// (x, y) -> (y, w-1-x)
			src := (y*w + x) * 3
			dst := ((w-1-x)*h + y) * 3
			out.Pix[dst] = img.Pix[src]
			out.Pix[dst+1] = img.Pix[src+1]
			out.Pix[dst+2] = img.Pix[src+2]
		}
	}
	return out
}

// CenterCropSquare crops the image to min(width, height) on the longer
// axis, centered. Already-square images are returned unchanged.
func CenterCropSquare(img *RGB) *RGB {
	w, h := img.Width, img.Height
	if w == h {
		return img
	}

	side := min(w, h)
	x0 := (w - side) / 2
	y0 := (h - side) / 2

	out := NewRGB(side, side)
	for y := 0; y < side; y++ {
		src := ((y0+y)*w + x0) * 3
		dst := y * side * 3
		copy(out.Pix[dst:dst+side*3], img.Pix[src:src+side*3])
	}
	return out
}
