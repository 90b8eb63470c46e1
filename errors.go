package blur

import (
	"errors"

	"github.com/gogpu/blur/compute"
)

// Errors reported by the pipeline. Device-layer sentinels are re-exported
// from package compute so callers need a single import.
var (
	// ErrInvalidParameter is returned for sigma < 1, NaN or infinite.
	ErrInvalidParameter = compute.ErrInvalidParameter

	// ErrInvalidImage is returned when an Image violates its shape invariant.
	ErrInvalidImage = errors.New("blur: invalid image")

	// ErrImageLoad is returned when an input file cannot be read or decoded.
	ErrImageLoad = errors.New("blur: image load failed")

	// ErrImageSave is returned when the result cannot be encoded or written.
	ErrImageSave = errors.New("blur: image save failed")

	ErrNoDevice             = compute.ErrNoDevice
	ErrUnsupportedImageSize = compute.ErrUnsupportedImageSize
	ErrDevice               = compute.ErrDevice
	ErrKernelBuild          = compute.ErrKernelBuild
	ErrResourceExhaustion   = compute.ErrResourceExhaustion
)

// BuildError carries the device compiler log of a failed kernel build.
type BuildError = compute.BuildError
