package image

import (
	"image"

	"golang.org/x/image/draw"
)

// ToNRGBA returns img as non-premultiplied 8-bit RGBA with bounds starting
// at the origin. An *image.NRGBA already at the origin is returned as is.
func ToNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	if n, ok := img.(*image.NRGBA); ok && b.Min == (image.Point{}) {
		return n
	}

	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// IsOpaque reports whether every pixel of img has full alpha.
func IsOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xFFFF {
				return false
			}
		}
	}
	return true
}

// HasAlpha reports whether img's pixel type carries an alpha channel.
// Non-premultiplied types always do, since decoders return them only for
// sources that store alpha. Premultiplied types do when some pixel is not
// opaque, and a paletted image when some palette entry is not.
func HasAlpha(img image.Image) bool {
	switch m := img.(type) {
	case *image.NRGBA, *image.NRGBA64, *image.NYCbCrA, *image.Alpha, *image.Alpha16:
		return true
	case *image.Gray, *image.Gray16, *image.YCbCr, *image.CMYK:
		return false
	case *image.Paletted:
		for _, c := range m.Palette {
			if _, _, _, a := c.RGBA(); a != 0xFFFF {
				return true
			}
		}
		return false
	}
	return !IsOpaque(img)
}
