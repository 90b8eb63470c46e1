package blur

import (
	"fmt"
	"math"
)

// ChannelMode is the per-pixel channel layout of an Image.
type ChannelMode int

const (
	// RGB stores three bytes per pixel. Alpha is implicitly opaque.
	RGB ChannelMode = 3

	// RGBA stores four bytes per pixel with straight (non-premultiplied) alpha.
	RGBA ChannelMode = 4
)

// Channels returns the bytes per pixel.
func (m ChannelMode) Channels() int { return int(m) }

func (m ChannelMode) String() string {
	switch m {
	case RGB:
		return "RGB"
	case RGBA:
		return "RGBA"
	default:
		return fmt.Sprintf("ChannelMode(%d)", int(m))
	}
}

// Valid reports whether m is RGB or RGBA.
func (m ChannelMode) Valid() bool { return m == RGB || m == RGBA }

// Image is an 8-bit raster in row-major order.
type Image struct {
	Width  int
	Height int
	Mode   ChannelMode

	// Pix holds Width*Height*Mode.Channels() bytes.
	Pix []byte
}

// NewImage allocates a zeroed image.
func NewImage(width, height int, mode ChannelMode) (*Image, error) {
	img := &Image{Width: width, Height: height, Mode: mode}
	n, err := img.byteLen()
	if err != nil {
		return nil, err
	}
	img.Pix = make([]byte, n)
	return img, nil
}

// Validate checks the shape invariant len(Pix) == Width*Height*channels.
func (img *Image) Validate() error {
	if img == nil {
		return fmt.Errorf("%w: nil image", ErrInvalidImage)
	}
	n, err := img.byteLen()
	if err != nil {
		return err
	}
	if len(img.Pix) != n {
		return fmt.Errorf("%w: %d bytes for %dx%d %s, want %d",
			ErrInvalidImage, len(img.Pix), img.Width, img.Height, img.Mode, n)
	}
	return nil
}

func (img *Image) byteLen() (int, error) {
	if img.Width <= 0 || img.Height <= 0 {
		return 0, fmt.Errorf("%w: dimensions %dx%d must be positive", ErrInvalidImage, img.Width, img.Height)
	}
	if !img.Mode.Valid() {
		return 0, fmt.Errorf("%w: channel mode %v", ErrInvalidImage, img.Mode)
	}
	c := img.Mode.Channels()
	if img.Width > math.MaxInt/c/img.Height {
		return 0, fmt.Errorf("%w: %dx%d pixels overflow the address space", ErrResourceExhaustion, img.Width, img.Height)
	}
	return img.Width * img.Height * c, nil
}

// Clone returns a deep copy of img.
func (img *Image) Clone() *Image {
	c := *img
	c.Pix = append([]byte(nil), img.Pix...)
	return &c
}
