// Package image loads and saves raster files for the blur tools.
//
// Decoding is by file extension for TGA and by content sniffing for every
// format registered with the standard image package (PNG, JPEG, GIF, BMP,
// TIFF, WebP). Encoding is chosen by the output file extension.
package image

import (
	"path/filepath"
	"strings"
)

// Format identifies an on-disk container.
type Format uint8

const (
	// FormatUnknown is the zero value.
	FormatUnknown Format = iota

	// FormatTGA is Truevision TGA, the default container of the CLI.
	FormatTGA

	// FormatPNG is Portable Network Graphics.
	FormatPNG

	// FormatJPEG is baseline or progressive JPEG.
	FormatJPEG

	// FormatGIF is GIF (first frame only).
	FormatGIF

	// FormatBMP is Windows bitmap.
	FormatBMP

	// FormatTIFF is Tagged Image File Format.
	FormatTIFF

	// FormatWebP is WebP (lossy and lossless).
	FormatWebP

	// formatCount is the number of formats (for internal use).
	formatCount
)

// FormatInfo contains metadata about a container format.
type FormatInfo struct {
	// Name is the short lower-case format name.
	Name string

	// Extensions lists lower-case file extensions including the dot.
	Extensions []string

	// CanEncode reports whether Save can write this format.
	CanEncode bool
}

// formatInfoTable contains metadata for each format.
var formatInfoTable = [formatCount]FormatInfo{
	FormatUnknown: {Name: "unknown"},
	FormatTGA: {
		Name:       "tga",
		Extensions: []string{".tga", ".tpic"},
		CanEncode:  true,
	},
	FormatPNG: {
		Name:       "png",
		Extensions: []string{".png"},
		CanEncode:  true,
	},
	FormatJPEG: {
		Name:       "jpeg",
		Extensions: []string{".jpg", ".jpeg"},
		CanEncode:  true,
	},
	FormatGIF: {
		Name:       "gif",
		Extensions: []string{".gif"},
		CanEncode:  false,
	},
	FormatBMP: {
		Name:       "bmp",
		Extensions: []string{".bmp"},
		CanEncode:  true,
	},
	FormatTIFF: {
		Name:       "tiff",
		Extensions: []string{".tif", ".tiff"},
		CanEncode:  true,
	},
	FormatWebP: {
		Name:       "webp",
		Extensions: []string{".webp"},
		CanEncode:  false,
	},
}

// Info returns the FormatInfo for this format.
func (f Format) Info() FormatInfo {
	if f >= formatCount {
		return formatInfoTable[FormatUnknown]
	}
	return formatInfoTable[f]
}

// String returns the format name.
func (f Format) String() string {
	return f.Info().Name
}

// CanEncode reports whether images can be saved in this format.
func (f Format) CanEncode() bool {
	return f.Info().CanEncode
}

// FormatFromPath returns the format implied by the file extension.
func FormatFromPath(path string) Format {
	ext := strings.ToLower(filepath.Ext(path))
	for f := FormatTGA; f < formatCount; f++ {
		for _, e := range formatInfoTable[f].Extensions {
			if e == ext {
				return f
			}
		}
	}
	return FormatUnknown
}
