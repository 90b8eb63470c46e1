// Package tga reads and writes Truevision TGA images.
//
// Pixel decoding is delegated to github.com/ftrvxmtrx/tga, which covers
// color-mapped, truecolor and monochrome files with or without RLE. This
// package adds header validation and reports the stored channel layout,
// which that decoder hides behind an always-NRGBA result. Encode writes
// truecolor with a top-left origin at 24 or 32 bits per pixel.
package tga

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	tgadec "github.com/ftrvxmtrx/tga"
)

// Errors returned by Decode and Encode.
var (
	// ErrUnsupported is returned for valid TGA files this package cannot read.
	ErrUnsupported = errors.New("tga: unsupported image")

	// ErrFormat is returned for malformed files.
	ErrFormat = errors.New("tga: invalid format")
)

// Image types from the TGA 2.0 specification.
const (
	typeColorMapped    = 1
	typeTrueColor      = 2
	typeGray           = 3
	typeRLEColorMapped = 9
	typeRLETrueColor   = 10
	typeRLEGray        = 11
)

// Descriptor bits.
const (
	descRightToLeft = 0x10
	descTopToBottom = 0x20
	descAlphaMask   = 0x0F
)

const (
	headerSize = 18
	footerSize = 26
)

// header is the fixed 18-byte TGA header.
type header struct {
	IDLength      uint8
	ColorMapType  uint8
	ImageType     uint8
	ColorMapFirst uint16
	ColorMapLen   uint16
	ColorMapDepth uint8
	XOrigin       uint16
	YOrigin       uint16
	Width         uint16
	Height        uint16
	PixelDepth    uint8
	Descriptor    uint8
}

func (h header) alphaBits() uint8 { return h.Descriptor & descAlphaMask }

// hasAlpha reports whether pixels carry an alpha channel. A 32-bit
// truecolor pixel with no alpha bits declared stores padding, not alpha.
func (h header) hasAlpha() bool {
	if h.alphaBits() != 0 {
		return true
	}
	switch h.ImageType {
	case typeGray, typeRLEGray:
		return h.PixelDepth == 16
	case typeColorMapped, typeRLEColorMapped:
		return h.ColorMapDepth == 32
	}
	return false
}

func readHeader(r io.Reader) (header, error) {
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return h, fmt.Errorf("%w: short header", ErrFormat)
		}
		return h, fmt.Errorf("tga: read header: %w", err)
	}

	var ok bool
	switch h.ImageType {
	case typeTrueColor, typeRLETrueColor:
		ok = h.PixelDepth == 16 || h.PixelDepth == 24 || h.PixelDepth == 32
	case typeGray, typeRLEGray:
		ok = h.PixelDepth == 8 || h.PixelDepth == 16
	case typeColorMapped, typeRLEColorMapped:
		ok = h.PixelDepth == 8
	case 0:
		return h, fmt.Errorf("%w: no image data", ErrFormat)
	default:
		return h, fmt.Errorf("%w: image type %d", ErrUnsupported, h.ImageType)
	}
	if !ok {
		return h, fmt.Errorf("%w: %d bits per pixel for image type %d", ErrUnsupported, h.PixelDepth, h.ImageType)
	}
	if h.Width == 0 || h.Height == 0 {
		return h, fmt.Errorf("%w: empty image %dx%d", ErrFormat, h.Width, h.Height)
	}
	return h, nil
}

// Info describes how a decoded file stored its pixels.
type Info struct {
	Width, Height int

	// Depth is the stored bits per pixel.
	Depth int

	// Alpha reports whether the file stores an alpha channel. It is true for
	// a 32-bit file with alpha bits declared even when every pixel is opaque.
	Alpha bool
}

// DecodeConfig returns the dimensions and color model of a TGA image.
func DecodeConfig(r io.Reader) (image.Config, error) {
	h, err := readHeader(r)
	if err != nil {
		return image.Config{}, err
	}
	model := color.NRGBAModel
	if !h.hasAlpha() && (h.ImageType == typeGray || h.ImageType == typeRLEGray) {
		model = color.GrayModel
	}
	return image.Config{ColorModel: model, Width: int(h.Width), Height: int(h.Height)}, nil
}

// Decode reads a TGA image and reports its stored layout. The image is an
// *image.NRGBA, or *image.RGBA when the extension area declares
// premultiplied alpha. Pixels without an alpha channel have alpha 255.
func Decode(r io.Reader) (image.Image, Info, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, Info{}, fmt.Errorf("tga: read: %w", err)
	}

	h, err := readHeader(bytes.NewReader(data))
	if err != nil {
		return nil, Info{}, err
	}
	info := Info{
		Width:  int(h.Width),
		Height: int(h.Height),
		Depth:  int(h.PixelDepth),
		Alpha:  h.hasAlpha(),
	}

	if err := checkLength(h, len(data)); err != nil {
		return nil, info, err
	}
	// The decoder seeks a footer-size back from the end; shorter input
	// would seek before the start.
	if len(data) < footerSize {
		data = append(data, make([]byte, footerSize-len(data))...)
	}

	img, err := tgadec.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, info, fmt.Errorf("%w: truncated pixel data", ErrFormat)
		}
		return nil, info, fmt.Errorf("%w: %w", ErrFormat, err)
	}

	if h.PixelDepth == 32 && !info.Alpha {
		if n, ok := img.(*image.NRGBA); ok {
			for i := 3; i < len(n.Pix); i += 4 {
				n.Pix[i] = 0xFF
			}
		}
	}
	return img, info, nil
}

// checkLength rejects uncompressed files shorter than their header implies.
func checkLength(h header, n int) error {
	switch h.ImageType {
	case typeTrueColor, typeGray, typeColorMapped:
	default:
		return nil
	}
	need := int64(headerSize) + int64(h.IDLength) +
		int64(h.Width)*int64(h.Height)*int64((h.PixelDepth+7)/8)
	if h.ColorMapType != 0 {
		need += int64(h.ColorMapLen) * int64((h.ColorMapDepth+7)/8)
	}
	if int64(n) < need {
		return fmt.Errorf("%w: truncated pixel data", ErrFormat)
	}
	return nil
}

// Options configures Encode.
type Options struct {
	// RLE selects run-length encoded output (type 10).
	RLE bool

	// Depth is 24 or 32 bits per pixel. Zero picks 24 for opaque images and
	// 32 otherwise.
	Depth int
}

// Encode writes img as a truecolor TGA.
func Encode(w io.Writer, img image.Image, o *Options) error {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 || b.Dx() > 0xFFFF || b.Dy() > 0xFFFF {
		return fmt.Errorf("%w: cannot encode %dx%d", ErrUnsupported, b.Dx(), b.Dy())
	}

	var opts Options
	if o != nil {
		opts = *o
	}
	depth := opts.Depth
	if depth == 0 {
		depth = 32
		if isOpaque(img) {
			depth = 24
		}
	}

	var desc uint8
	switch depth {
	case 24:
		desc = descTopToBottom
	case 32:
		desc = descTopToBottom | 8
	default:
		return fmt.Errorf("%w: cannot encode %d bits per pixel", ErrUnsupported, depth)
	}
	bpp := depth / 8

	h := header{
		ImageType:  typeTrueColor,
		Width:      uint16(b.Dx()), //nolint:gosec // checked above
		Height:     uint16(b.Dy()), //nolint:gosec // checked above
		PixelDepth: uint8(depth),   //nolint:gosec // 24 or 32
		Descriptor: desc,
	}
	if opts.RLE {
		h.ImageType = typeRLETrueColor
	}

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("tga: write header: %w", err)
	}

	row := make([]byte, b.Dx()*bpp)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			d := (x - b.Min.X) * bpp
			row[d+0] = c.B
			row[d+1] = c.G
			row[d+2] = c.R
			if bpp == 4 {
				row[d+3] = c.A
			}
		}
		var err error
		if opts.RLE {
			err = encodeRLERow(bw, row, bpp)
		} else {
			_, err = bw.Write(row)
		}
		if err != nil {
			return fmt.Errorf("tga: write pixels: %w", err)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("tga: flush: %w", err)
	}
	return nil
}

// encodeRLERow writes one scanline as RLE packets. Packets never cross rows.
func encodeRLERow(w io.Writer, row []byte, bpp int) error {
	n := len(row) / bpp
	px := func(i int) []byte { return row[i*bpp : (i+1)*bpp] }
	same := func(i, j int) bool { return bytes.Equal(px(i), px(j)) }

	for i := 0; i < n; {
		// Run of identical pixels.
		run := 1
		for i+run < n && run < 128 && same(i, i+run) {
			run++
		}
		if run > 1 {
			if _, err := w.Write([]byte{byte(0x80 | (run - 1))}); err != nil {
				return err
			}
			if _, err := w.Write(px(i)); err != nil {
				return err
			}
			i += run
			continue
		}

		// Raw packet up to the next run of two.
		raw := 1
		for i+raw < n && raw < 128 && !(i+raw+1 < n && same(i+raw, i+raw+1)) {
			raw++
		}
		if _, err := w.Write([]byte{byte(raw - 1)}); err != nil {
			return err
		}
		if _, err := w.Write(row[i*bpp : (i+raw)*bpp]); err != nil {
			return err
		}
		i += raw
	}
	return nil
}

// isOpaque reports whether every pixel of img has full alpha.
func isOpaque(img image.Image) bool {
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
