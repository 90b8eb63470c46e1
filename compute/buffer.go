package compute

import (
	"fmt"
	"math"
)

// Components is the number of float32 values per working-buffer pixel.
const Components = 4

// WorkingBuffer is an interleaved RGBA float32 image on the 0-255 scale.
type WorkingBuffer struct {
	Width  int
	Height int

	// Pix holds R, G, B, A for each pixel in row-major order.
	// len(Pix) == Width * Height * 4.
	Pix []float32
}

// NewWorkingBuffer allocates a zeroed buffer.
// It fails with ErrResourceExhaustion when the element count overflows.
func NewWorkingBuffer(width, height int) (WorkingBuffer, error) {
	n, err := ElementCount(width, height)
	if err != nil {
		return WorkingBuffer{}, err
	}
	return WorkingBuffer{Width: width, Height: height, Pix: make([]float32, n)}, nil
}

// ElementCount returns width * height * 4, checking for overflow.
func ElementCount(width, height int) (int, error) {
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("%w: dimensions %dx%d must be positive", ErrInvalidParameter, width, height)
	}
	if width > math.MaxInt/Components/height {
		return 0, fmt.Errorf("%w: %dx%d pixels overflow the address space", ErrResourceExhaustion, width, height)
	}
	return width * height * Components, nil
}

// Validate checks that Pix matches the declared shape.
func (b WorkingBuffer) Validate() error {
	n, err := ElementCount(b.Width, b.Height)
	if err != nil {
		return err
	}
	if len(b.Pix) != n {
		return fmt.Errorf("%w: buffer has %d elements, want %d for %dx%d", ErrInvalidParameter, len(b.Pix), n, b.Width, b.Height)
	}
	return nil
}

// At returns the RGBA components of the pixel at (x, y).
func (b WorkingBuffer) At(x, y int) [4]float32 {
	i := (y*b.Width + x) * Components
	return [4]float32{b.Pix[i], b.Pix[i+1], b.Pix[i+2], b.Pix[i+3]}
}
