package blur

import (
	"fmt"
	"image"

	imgio "github.com/gogpu/blur/internal/image"
)

// Load reads an image file. TGA is chosen by the .tga extension; PNG, JPEG,
// GIF, BMP, TIFF and WebP are detected from the content. The channel mode
// follows the file's stored layout: a file with an alpha channel loads as
// RGBA even when every pixel is opaque.
func Load(path string) (*Image, error) {
	d, err := imgio.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrImageLoad, path, err)
	}
	mode := RGB
	if d.Alpha {
		mode = RGBA
	}
	img := fromImage(d.Image, mode)
	Logger().Debug("blur: image loaded",
		"path", path, "format", d.Format,
		"width", img.Width, "height", img.Height, "mode", img.Mode)
	return img, nil
}

// Save writes img to path in the format implied by the extension
// (.tga, .png, .jpg, .jpeg, .bmp, .tif, .tiff). An RGBA image is stored
// with an alpha channel where the format allows it: TGA writes 32 bits per
// pixel for RGBA and 24 for RGB. PNG and BMP drop the channel when every
// pixel is opaque.
func Save(img *Image, path string) error {
	if err := img.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrImageSave, path, err)
	}
	if err := imgio.Save(img.stdImage(), path); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrImageSave, path, err)
	}
	return nil
}

// FromImage converts any image.Image to an Image. The result is RGBA when
// the pixel type carries alpha (*image.NRGBA always does) and RGB otherwise.
func FromImage(src image.Image) *Image {
	mode := RGB
	if imgio.HasAlpha(src) {
		mode = RGBA
	}
	return fromImage(src, mode)
}

func fromImage(src image.Image, mode ChannelMode) *Image {
	n := imgio.ToNRGBA(src)
	w, h := n.Rect.Dx(), n.Rect.Dy()
	c := mode.Channels()

	img := &Image{Width: w, Height: h, Mode: mode, Pix: make([]byte, w*h*c)}
	for y := range h {
		row := n.Pix[y*n.Stride : y*n.Stride+w*4]
		dst := img.Pix[y*w*c : (y+1)*w*c]
		for x := range w {
			copy(dst[x*c:x*c+c], row[x*4:x*4+c])
		}
	}
	return img
}

// ToNRGBA returns img as a standard library image.
func (img *Image) ToNRGBA() *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, img.Width, img.Height))
	c := img.Mode.Channels()
	for i := range img.Width * img.Height {
		d := dst.Pix[i*4 : i*4+4]
		copy(d, img.Pix[i*c:i*c+c])
		if c == 3 {
			d[3] = 0xFF
		}
	}
	return dst
}

// stdImage returns img as an *image.NRGBA for RGBA and an opaque
// *image.RGBA for RGB, so encoders see the channel layout in the type.
func (img *Image) stdImage() image.Image {
	if img.Mode == RGBA {
		return img.ToNRGBA()
	}
	dst := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for i := range img.Width * img.Height {
		d := dst.Pix[i*4 : i*4+4]
		copy(d, img.Pix[i*3:i*3+3])
		d[3] = 0xFF
	}
	return dst
}
