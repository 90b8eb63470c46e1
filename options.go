package blur

import "github.com/gogpu/blur/compute"

// Option configures a Pipeline during creation.
//
// Example:
//
//	p := blur.New(dev,
//	    blur.WithTileSize(8, 8),
//	    blur.WithHostBudget(512<<20),
//	)
type Option func(*options)

// options holds optional configuration for Pipeline creation.
type options struct {
	engine     []compute.EngineOption
	hostBudget int64
}

// WithTileSize sets the work-group dimensions used for both passes.
// The default is 16x16. Non-positive values keep the default.
func WithTileSize(w, h int) Option {
	return func(o *options) {
		o.engine = append(o.engine, compute.WithTileSize(w, h))
	}
}

// WithKernelSource replaces the device's embedded kernel source. The text
// must define the gaussian_blur entry point in the device's language.
func WithKernelSource(src []byte) Option {
	return func(o *options) {
		o.engine = append(o.engine, compute.WithKernelSource(src))
	}
}

// WithHostBudget bounds the host memory, in bytes, a single run may use for
// its working buffers. Zero or negative means unlimited.
func WithHostBudget(bytes int64) Option {
	return func(o *options) {
		o.hostBudget = bytes
	}
}
