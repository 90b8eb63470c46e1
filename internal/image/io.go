package image

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"github.com/gogpu/blur/internal/tga"
)

// I/O errors.
var (
	// ErrUnsupportedFormat is returned when the image format is not supported.
	ErrUnsupportedFormat = errors.New("image: unsupported format")

	// ErrEmptyData is returned when image data is empty.
	ErrEmptyData = errors.New("image: empty data")
)

// DefaultJPEGQuality is used by Save for .jpg and .jpeg outputs.
const DefaultJPEGQuality = 95

// Decoded is a decoded image with its container format and stored channel
// layout.
type Decoded struct {
	Image  image.Image
	Format Format

	// Alpha reports whether the source stores an alpha channel, which it
	// may do even when every pixel is opaque.
	Alpha bool
}

// Load reads an image file. A .tga extension selects TGA directly; any other
// file is detected from its content.
func Load(path string) (Decoded, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return Decoded{}, fmt.Errorf("image: open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if FormatFromPath(path) == FormatTGA {
		return decodeTGA(f)
	}
	return Decode(f)
}

// LoadFromBytes decodes an in-memory image, auto-detecting the format.
func LoadFromBytes(data []byte) (Decoded, error) {
	if len(data) == 0 {
		return Decoded{}, ErrEmptyData
	}
	return Decode(bytes.NewReader(data))
}

// magic lists the leading bytes of each format with a signature. '?' matches
// any byte. TGA has none and is tried when nothing else matches.
var magic = []struct {
	prefix string
	format Format
}{
	{"\x89PNG\r\n\x1a\n", FormatPNG},
	{"\xff\xd8", FormatJPEG},
	{"GIF87a", FormatGIF},
	{"GIF89a", FormatGIF},
	{"BM", FormatBMP},
	{"II*\x00", FormatTIFF},
	{"MM\x00*", FormatTIFF},
	{"RIFF????WEBP", FormatWebP},
}

func match(prefix string, b []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range len(prefix) {
		if prefix[i] != '?' && prefix[i] != b[i] {
			return false
		}
	}
	return true
}

// Sniff returns the format whose signature starts b, or FormatUnknown.
func Sniff(b []byte) Format {
	for _, m := range magic {
		if match(m.prefix, b) {
			return m.format
		}
	}
	return FormatUnknown
}

// Decode decodes an image from r. Signed formats are detected from their
// leading bytes; anything else is decoded as TGA.
func Decode(r io.Reader) (Decoded, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(12)
	if err != nil && !errors.Is(err, io.EOF) {
		return Decoded{}, fmt.Errorf("image: read: %w", err)
	}
	if len(head) == 0 {
		return Decoded{}, ErrEmptyData
	}

	format := Sniff(head)
	if format == FormatUnknown {
		d, err := decodeTGA(br)
		if err != nil {
			return Decoded{}, fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
		}
		return d, nil
	}

	var img image.Image
	switch format {
	case FormatPNG:
		img, err = png.Decode(br)
	case FormatJPEG:
		img, err = jpeg.Decode(br)
	case FormatGIF:
		img, err = gif.Decode(br)
	case FormatBMP:
		img, err = bmp.Decode(br)
	case FormatTIFF:
		img, err = tiff.Decode(br)
	case FormatWebP:
		img, err = webp.Decode(br)
	}
	if err != nil {
		return Decoded{}, fmt.Errorf("image: decode %s: %w", format, err)
	}
	return Decoded{Image: img, Format: format, Alpha: HasAlpha(img)}, nil
}

func decodeTGA(r io.Reader) (Decoded, error) {
	img, info, err := tga.Decode(r)
	if err != nil {
		return Decoded{}, fmt.Errorf("image: decode TGA: %w", err)
	}
	return Decoded{Image: img, Format: FormatTGA, Alpha: info.Alpha}, nil
}

// Save writes img to path in the format implied by its extension.
func Save(img image.Image, path string) error {
	format := FormatFromPath(path)
	if !format.CanEncode() {
		return fmt.Errorf("%w: cannot write %q", ErrUnsupportedFormat, filepath.Ext(path))
	}

	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("image: create file: %w", err)
	}

	if err := Encode(f, img, format); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

// Encode writes img to w in the given format. The stored layout follows
// HasAlpha where the format can choose: TGA gets 32 bits per pixel for
// images with alpha and 24 otherwise.
func Encode(w io.Writer, img image.Image, format Format) error {
	var err error
	switch format {
	case FormatTGA:
		depth := 24
		if HasAlpha(img) {
			depth = 32
		}
		err = tga.Encode(w, img, &tga.Options{RLE: true, Depth: depth})
	case FormatPNG:
		err = png.Encode(w, img)
	case FormatJPEG:
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: DefaultJPEGQuality})
	case FormatBMP:
		err = bmp.Encode(w, img)
	case FormatTIFF:
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return fmt.Errorf("image: encode %s: %w", format, err)
	}
	return nil
}
