package imaging

// ResizeBilinear scales the image to size x size with bilinear
// interpolation. The sampling grid is pixel-center aligned, so a
// uniform-color source stays uniform and the output is deterministic
// for a fixed input.
//
// Live frames use bilinear; the still-image path uses bicubic through
// its own resizer since latency does not dominate there.
func ResizeBilinear(img *RGB, size int) *RGB {
	if img.Width == size && img.Height == size {
		return img
	}

	out := NewRGB(size, size)
	scaleX := float32(img.Width) / float32(size)
	scaleY := float32(img.Height) / float32(size)

	for dy := 0; dy < size; dy++ {
		srcY := (float32(dy)+0.5)*scaleY - 0.5
		if srcY < 0 {
			srcY = 0
		}
		y0 := int(srcY)
		y1 := y0 + 1
		if y1 >= img.Height {
			y1 = img.Height - 1
		}
		fy := srcY - float32(y0)

		for dx := 0; dx < size; dx++ {
			srcX := (float32(dx)+0.5)*scaleX - 0.5
			if srcX < 0 {
				srcX = 0
			}
			x0 := int(srcX)
			x1 := x0 + 1
			if x1 >= img.Width {
				x1 = img.Width - 1
			}
			fx := srcX - float32(x0)

			dst := (dy*size + dx) * 3
			for c := 0; c < 3; c++ {
				p00 := float32(img.Pix[(y0*img.Width+x0)*3+c])
				p01 := float32(img.Pix[(y0*img.Width+x1)*3+c])
				p10 := float32(img.Pix[(y1*img.Width+x0)*3+c])
				p11 := float32(img.Pix[(y1*img.Width+x1)*3+c])

				top := p00 + (p01-p00)*fx
				bottom := p10 + (p11-p10)*fx
				out.Pix[dst+c] = clampByte(top + (bottom-top)*fy + 0.5)
			}
		}
	}
	return out
}
