package compute

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/blur/internal/filter"
	"github.com/gogpu/blur/internal/parallel"
)

// DefaultCPULimits are the limits reported by a CPUDevice unless overridden.
var DefaultCPULimits = Limits{
	MaxGlobalSize:           [2]int{1 << 16, 1 << 16},
	MaxWorkGroups:           [2]int{1 << 16, 1 << 16},
	MaxLocalSize:            [2]int{1024, 1024},
	MaxWorkGroupInvocations: 1024,
	MaxLocalMemory:          1 << 20,
	MaxBufferSize:           1 << 34,
}

// CPUOption configures a CPUDevice.
type CPUOption func(*cpuOptions)

type cpuOptions struct {
	workers int
	limits  Limits
}

// WithWorkers sets the number of worker goroutines.
// Zero or negative uses GOMAXPROCS.
func WithWorkers(n int) CPUOption {
	return func(o *cpuOptions) {
		o.workers = n
	}
}

// WithCPULimits overrides the limits the device reports and enforces.
func WithCPULimits(l Limits) CPUOption {
	return func(o *cpuOptions) {
		o.limits = l
	}
}

// CPUDevice executes gaussian_blur work-groups on a goroutine pool.
//
// Each work-group copies its tile plus halo into a pooled staging slice
// (the tile-local memory), then every work-item computes from staging.
// The copy completing before the compute loop starts is the intra-tile
// barrier; WorkerPool.Dispatch returning is the barrier between passes.
//
// CPUDevice is safe for concurrent use.
type CPUDevice struct {
	pool   *parallel.WorkerPool
	limits Limits
	closed atomic.Bool

	// stages recycles per-work-group staging slices.
	stages sync.Pool
}

var _ Device = (*CPUDevice)(nil)

// NewCPUDevice creates a host device and starts its worker pool.
func NewCPUDevice(opts ...CPUOption) *CPUDevice {
	o := cpuOptions{limits: DefaultCPULimits}
	for _, opt := range opts {
		opt(&o)
	}
	d := &CPUDevice{
		pool:   parallel.NewWorkerPool(o.workers),
		limits: o.limits,
	}
	d.stages.New = func() any { return &stageBuffer{} }
	return d
}

// Name returns "cpu" with the worker count.
func (d *CPUDevice) Name() string {
	return fmt.Sprintf("cpu (%d workers)", d.pool.Workers())
}

// Limits returns the configured limits.
func (d *CPUDevice) Limits() Limits { return d.limits }

// Close stops the worker pool. Close is idempotent.
func (d *CPUDevice) Close() error {
	if d.closed.CompareAndSwap(false, true) {
		d.pool.Close()
	}
	return nil
}

// cpuBuffer is host memory standing in for device memory.
type cpuBuffer struct {
	label string
	data  []float32
}

func (b *cpuBuffer) Len() int { return len(b.data) }
func (b *cpuBuffer) Release() { b.data = nil }

// NewBuffer allocates n float32 elements.
func (d *CPUDevice) NewBuffer(label string, n int) (Buffer, error) {
	if d.closed.Load() {
		return nil, DeviceError("create buffer "+label, ErrClosed)
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: buffer %s has %d elements", ErrInvalidParameter, label, n)
	}
	if d.limits.MaxBufferSize > 0 && int64(n)*4 > d.limits.MaxBufferSize {
		return nil, DeviceError("create buffer "+label,
			fmt.Errorf("%w: %d bytes", ErrResourceExhaustion, int64(n)*4))
	}
	return &cpuBuffer{label: label, data: make([]float32, n)}, nil
}

// Write copies src into dst.
func (d *CPUDevice) Write(dst Buffer, src []float32) error {
	b, err := d.buffer(dst, "write buffer")
	if err != nil {
		return err
	}
	if len(src) > len(b.data) {
		return fmt.Errorf("%w: write of %d elements into %s of %d", ErrInvalidParameter, len(src), b.label, len(b.data))
	}
	copy(b.data, src)
	return nil
}

// Read copies src into dst.
func (d *CPUDevice) Read(dst []float32, src Buffer) error {
	b, err := d.buffer(src, "read buffer")
	if err != nil {
		return err
	}
	if len(dst) > len(b.data) {
		return fmt.Errorf("%w: read of %d elements from %s of %d", ErrInvalidParameter, len(dst), b.label, len(b.data))
	}
	copy(dst, b.data)
	return nil
}

func (d *CPUDevice) buffer(buf Buffer, op string) (*cpuBuffer, error) {
	b, ok := buf.(*cpuBuffer)
	if !ok || b == nil {
		return nil, fmt.Errorf("%w: %s: buffer %T does not belong to the cpu device", ErrInvalidParameter, op, buf)
	}
	if b.data == nil {
		return nil, DeviceError(op, fmt.Errorf("buffer %s already released", b.label))
	}
	return b, nil
}

// Build validates the kernel and tile configuration. The source text is
// not used; the host kernel is compiled into the binary.
func (d *CPUDevice) Build(opts BuildOptions) (Program, error) {
	if d.closed.Load() {
		return nil, DeviceError("build program", ErrClosed)
	}
	if opts.KernelSize <= 0 || opts.KernelSize%2 == 0 {
		return nil, fmt.Errorf("%w: kernel size %d must be odd", ErrInvalidParameter, opts.KernelSize)
	}
	if opts.TileWidth <= 0 || opts.TileHeight <= 0 {
		return nil, fmt.Errorf("%w: tile %dx%d", ErrInvalidParameter, opts.TileWidth, opts.TileHeight)
	}
	return &cpuProgram{
		dev:        d,
		kernelSize: opts.KernelSize,
		tileW:      opts.TileWidth,
		tileH:      opts.TileHeight,
	}, nil
}

// cpuProgram dispatches work-groups onto the device's pool.
type cpuProgram struct {
	dev          *CPUDevice
	kernelSize   int
	tileW, tileH int
	released     atomic.Bool
}

func (p *cpuProgram) Release() { p.released.Store(true) }

// Dispatch runs one pass and returns when every work-group has finished.
func (p *cpuProgram) Dispatch(args DispatchArgs) error {
	if p.released.Load() {
		return DeviceError("dispatch", errors.New("program released"))
	}
	if args.KernelSize != p.kernelSize {
		return fmt.Errorf("%w: dispatch kernel size %d, program built for %d", ErrInvalidParameter, args.KernelSize, p.kernelSize)
	}
	n, err := ElementCount(args.Width, args.Height)
	if err != nil {
		return err
	}

	src, err := p.dev.buffer(args.Input, "dispatch input")
	if err != nil {
		return err
	}
	dst, err := p.dev.buffer(args.Output, "dispatch output")
	if err != nil {
		return err
	}
	weights, err := p.dev.buffer(args.Weights, "dispatch weights")
	if err != nil {
		return err
	}
	if len(src.data) < n || len(dst.data) < n || len(weights.data) < args.KernelSize {
		return fmt.Errorf("%w: buffers too small for %dx%d", ErrInvalidParameter, args.Width, args.Height)
	}

	k := tileKernel{
		src:     src.data,
		dst:     dst.data,
		weights: weights.data[:args.KernelSize],
		width:   args.Width,
		height:  args.Height,
		tileW:   p.tileW,
		tileH:   p.tileH,
		axis:    args.Axis,
	}

	grid := parallel.NewGrid(args.Width, args.Height, p.tileW, p.tileH)
	groups := grid.Groups()
	err = p.dev.pool.Dispatch(len(groups), func(i int) {
		sb := p.dev.stages.Get().(*stageBuffer)
		k.run(groups[i], sb.get(k.stageLen()))
		p.dev.stages.Put(sb)
	})
	if err != nil {
		return DeviceError("dispatch "+EntryPoint, err)
	}
	return nil
}

// stageBuffer wraps a slice for sync.Pool.
type stageBuffer struct {
	data []float32
}

func (s *stageBuffer) get(n int) []float32 {
	if cap(s.data) < n {
		s.data = make([]float32, n)
	}
	return s.data[:n]
}

// tileKernel is the host rendition of the gaussian_blur kernel.
type tileKernel struct {
	src, dst, weights []float32
	width, height     int
	tileW, tileH      int
	axis              Axis
}

// stageLen returns the staging elements for one work-group on this axis.
func (k *tileKernel) stageLen() int {
	halo := len(k.weights) - 1
	if k.axis == AxisHorizontal {
		return (k.tileW + halo) * k.tileH * Components
	}
	return k.tileW * (k.tileH + halo) * Components
}

// run executes one work-group: cooperative load, barrier, compute.
func (k *tileKernel) run(g parallel.WorkGroup, stage []float32) {
	ks := len(k.weights)
	r := ks / 2

	if k.axis == AxisHorizontal {
		stride := k.tileW + ks - 1
		// Load: rows of the tile, columns extended by the halo, clamped.
		for ly := 0; ly < k.tileH; ly++ {
			gy := filter.ClampInt(g.OriginY+ly, 0, k.height-1)
			row := gy * k.width
			for sx := 0; sx < stride; sx++ {
				gx := filter.ClampInt(g.OriginX-r+sx, 0, k.width-1)
				copy(stage[(ly*stride+sx)*Components:][:Components], k.src[(row+gx)*Components:])
			}
		}

		for ly := 0; ly < g.Height; ly++ {
			for lx := 0; lx < g.Width; lx++ {
				var acc [Components]float64
				for t := 0; t < ks; t++ {
					w := float64(k.weights[t])
					s := (ly*stride + lx + t) * Components
					acc[0] += float64(stage[s+0]) * w
					acc[1] += float64(stage[s+1]) * w
					acc[2] += float64(stage[s+2]) * w
					acc[3] += float64(stage[s+3]) * w
				}
				k.store(g.OriginX+lx, g.OriginY+ly, acc)
			}
		}
		return
	}

	rows := k.tileH + ks - 1
	for sy := 0; sy < rows; sy++ {
		gy := filter.ClampInt(g.OriginY-r+sy, 0, k.height-1)
		row := gy * k.width
		for lx := 0; lx < k.tileW; lx++ {
			gx := filter.ClampInt(g.OriginX+lx, 0, k.width-1)
			copy(stage[(sy*k.tileW+lx)*Components:][:Components], k.src[(row+gx)*Components:])
		}
	}

	for ly := 0; ly < g.Height; ly++ {
		for lx := 0; lx < g.Width; lx++ {
			var acc [Components]float64
			for t := 0; t < ks; t++ {
				w := float64(k.weights[t])
				s := ((ly+t)*k.tileW + lx) * Components
				acc[0] += float64(stage[s+0]) * w
				acc[1] += float64(stage[s+1]) * w
				acc[2] += float64(stage[s+2]) * w
				acc[3] += float64(stage[s+3]) * w
			}
			k.store(g.OriginX+lx, g.OriginY+ly, acc)
		}
	}
}

func (k *tileKernel) store(x, y int, acc [Components]float64) {
	i := (y*k.width + x) * Components
	k.dst[i+0] = float32(acc[0])
	k.dst[i+1] = float32(acc[1])
	k.dst[i+2] = float32(acc[2])
	k.dst[i+3] = float32(acc[3])
}
