package compute

import (
	"fmt"
	"time"

	"github.com/gogpu/blur/internal/parallel"
)

// EngineOption configures an Engine during creation.
type EngineOption func(*engineOptions)

// engineOptions holds optional configuration for Engine creation.
type engineOptions struct {
	tileW, tileH int
	source       []byte
}

// WithTileSize sets the work-group dimensions. The default is 16x16.
func WithTileSize(w, h int) EngineOption {
	return func(o *engineOptions) {
		if w > 0 {
			o.tileW = w
		}
		if h > 0 {
			o.tileH = h
		}
	}
}

// WithKernelSource replaces the device's embedded kernel source.
func WithKernelSource(src []byte) EngineOption {
	return func(o *engineOptions) {
		o.source = src
	}
}

// PassStats records the timing of one blur run.
type PassStats struct {
	Upload     time.Duration
	Horizontal time.Duration
	Vertical   time.Duration
	Download   time.Duration
}

// Total returns the summed duration of every stage.
func (s PassStats) Total() time.Duration {
	return s.Upload + s.Horizontal + s.Vertical + s.Download
}

// Engine runs separable blurs on one device.
//
// An Engine holds no per-run state and is safe for concurrent use when its
// device is.
type Engine struct {
	dev  Device
	opts engineOptions
}

// NewEngine creates an engine bound to dev.
func NewEngine(dev Device, opts ...EngineOption) *Engine {
	o := engineOptions{tileW: parallel.TileWidth, tileH: parallel.TileHeight}
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{dev: dev, opts: o}
}

// Device returns the engine's device.
func (e *Engine) Device() Device { return e.dev }

// TileSize returns the work-group dimensions used for dispatch.
func (e *Engine) TileSize() (w, h int) { return e.opts.tileW, e.opts.tileH }

// CheckSize reports whether an image of width x height can be blurred with a
// kernel of kernelSize taps on this engine's device.
func (e *Engine) CheckSize(width, height, kernelSize int) error {
	n, err := ElementCount(width, height)
	if err != nil {
		return err
	}

	lim := e.dev.Limits()
	tw, th := e.opts.tileW, e.opts.tileH

	if exceeds(width, lim.MaxGlobalSize[0]) || exceeds(height, lim.MaxGlobalSize[1]) {
		return fmt.Errorf("%w: %dx%d exceeds the maximum index space %dx%d of %s",
			ErrUnsupportedImageSize, width, height, lim.MaxGlobalSize[0], lim.MaxGlobalSize[1], e.dev.Name())
	}

	grid := parallel.NewGrid(width, height, tw, th)
	if exceeds(grid.GroupsX(), lim.MaxWorkGroups[0]) || exceeds(grid.GroupsY(), lim.MaxWorkGroups[1]) {
		return fmt.Errorf("%w: %dx%d work-groups exceed the maximum %dx%d of %s",
			ErrUnsupportedImageSize, grid.GroupsX(), grid.GroupsY(), lim.MaxWorkGroups[0], lim.MaxWorkGroups[1], e.dev.Name())
	}

	if lim.MaxBufferSize > 0 && int64(n)*4 > lim.MaxBufferSize {
		return fmt.Errorf("%w: %d byte buffer exceeds the maximum %d of %s",
			ErrUnsupportedImageSize, int64(n)*4, lim.MaxBufferSize, e.dev.Name())
	}

	if exceeds(tw, lim.MaxLocalSize[0]) || exceeds(th, lim.MaxLocalSize[1]) || exceeds(tw*th, lim.MaxWorkGroupInvocations) {
		return fmt.Errorf("%w: work-group %dx%d exceeds the limits of %s", ErrDevice, tw, th, e.dev.Name())
	}

	if staging := StagingBytes(tw, th, kernelSize); exceeds(staging, lim.MaxLocalMemory) {
		return fmt.Errorf("%w: %d bytes of tile staging for kernel size %d exceed %d bytes of local memory on %s",
			ErrResourceExhaustion, staging, kernelSize, lim.MaxLocalMemory, e.dev.Name())
	}

	return nil
}

// exceeds reports v > limit for a positive limit; zero means unlimited.
func exceeds(v, limit int) bool {
	return limit > 0 && v > limit
}

// RunSeparableBlur convolves buf with kernel horizontally, then vertically,
// and returns a new buffer of the same shape. buf is not modified.
func (e *Engine) RunSeparableBlur(buf WorkingBuffer, kernel []float32) (WorkingBuffer, error) {
	out, _, err := e.run(buf, kernel)
	return out, err
}

// RunSeparableBlurStats is RunSeparableBlur that also reports stage timings.
func (e *Engine) RunSeparableBlurStats(buf WorkingBuffer, kernel []float32) (WorkingBuffer, PassStats, error) {
	return e.run(buf, kernel)
}

func (e *Engine) run(buf WorkingBuffer, kernel []float32) (WorkingBuffer, PassStats, error) {
	var stats PassStats

	if err := buf.Validate(); err != nil {
		return WorkingBuffer{}, stats, err
	}
	ks := len(kernel)
	if ks == 0 || ks%2 == 0 {
		return WorkingBuffer{}, stats, fmt.Errorf("%w: kernel length %d must be odd", ErrInvalidParameter, ks)
	}
	if err := e.CheckSize(buf.Width, buf.Height, ks); err != nil {
		return WorkingBuffer{}, stats, err
	}

	log := Logger()
	tw, th := e.opts.tileW, e.opts.tileH

	prog, err := e.dev.Build(BuildOptions{
		Source:     e.opts.source,
		KernelSize: ks,
		TileWidth:  tw,
		TileHeight: th,
	})
	if err != nil {
		return WorkingBuffer{}, stats, err
	}
	defer prog.Release()

	n := len(buf.Pix)
	input, err := e.dev.NewBuffer("blur_input", n)
	if err != nil {
		return WorkingBuffer{}, stats, err
	}
	defer input.Release()

	intermediate, err := e.dev.NewBuffer("blur_intermediate", n)
	if err != nil {
		return WorkingBuffer{}, stats, err
	}
	defer intermediate.Release()

	output, err := e.dev.NewBuffer("blur_output", n)
	if err != nil {
		return WorkingBuffer{}, stats, err
	}
	defer output.Release()

	weights, err := e.dev.NewBuffer("blur_weights", ks)
	if err != nil {
		return WorkingBuffer{}, stats, err
	}
	defer weights.Release()

	log.Debug("compute: buffers allocated",
		"device", e.dev.Name(),
		"width", buf.Width, "height", buf.Height,
		"kernel_size", ks, "bytes_per_buffer", n*4)

	start := time.Now()
	if err := e.dev.Write(input, buf.Pix); err != nil {
		return WorkingBuffer{}, stats, err
	}
	if err := e.dev.Write(weights, kernel); err != nil {
		return WorkingBuffer{}, stats, err
	}
	stats.Upload = time.Since(start)

	args := DispatchArgs{
		Input:      input,
		Output:     intermediate,
		Weights:    weights,
		Width:      buf.Width,
		Height:     buf.Height,
		KernelSize: ks,
		Axis:       AxisHorizontal,
	}

	start = time.Now()
	if err := prog.Dispatch(args); err != nil {
		return WorkingBuffer{}, stats, fmt.Errorf("%s pass: %w", AxisHorizontal, err)
	}
	stats.Horizontal = time.Since(start)

	args.Input, args.Output, args.Axis = intermediate, output, AxisVertical

	start = time.Now()
	if err := prog.Dispatch(args); err != nil {
		return WorkingBuffer{}, stats, fmt.Errorf("%s pass: %w", AxisVertical, err)
	}
	stats.Vertical = time.Since(start)

	result := WorkingBuffer{Width: buf.Width, Height: buf.Height, Pix: make([]float32, n)}

	start = time.Now()
	if err := e.dev.Read(result.Pix, output); err != nil {
		return WorkingBuffer{}, stats, err
	}
	stats.Download = time.Since(start)

	log.Debug("compute: separable blur complete",
		"device", e.dev.Name(),
		"upload", stats.Upload,
		"horizontal", stats.Horizontal,
		"vertical", stats.Vertical,
		"download", stats.Download)

	return result, stats, nil
}
