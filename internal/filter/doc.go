// Package filter provides the host-side numerics of the separable Gaussian
// blur.
//
// This package contains:
//   - Gaussian kernel synthesis (2*ceil(sigma)+1 taps, normalized)
//   - A bounded kernel cache for repeated sigmas
//   - A sequential clamp-to-edge separable convolution used as the host
//     reference for tiled compute devices
//   - Float to byte truncation with clamping
//
// All filters operate on interleaved RGBA float32 buffers on the 0-255
// scale.
package filter
