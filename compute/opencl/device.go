//go:build opencl

package opencl

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jgillich/go-opencl/cl"

	"github.com/gogpu/blur/compute"
	"github.com/gogpu/blur/internal/parallel"
)

//go:embed kernel.cl
var kernelSource string

// DefaultSource returns the embedded OpenCL C kernel.
func DefaultSource() []byte { return []byte(kernelSource) }

// Device is a compute.Device on one OpenCL device.
//
// Calls into the runtime are serialized by an internal mutex, so a Device
// may be shared by concurrent pipelines.
type Device struct {
	mu sync.Mutex

	device  *cl.Device
	context *cl.Context
	queue   *cl.CommandQueue

	name   string
	limits compute.Limits
	closed bool

	logger atomic.Pointer[slog.Logger]
}

var _ compute.Device = (*Device)(nil)

// New opens the first GPU on any platform, falling back to the first CPU
// device. It returns compute.ErrNoDevice when neither exists.
func New() (*Device, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		msg := "querying OpenCL platforms"
		if strings.Contains(err.Error(), "-1001") {
			msg += ": no ICD loader reported any platforms"
		}
		return nil, fmt.Errorf("%w: %s: %w", compute.ErrNoDevice, msg, err)
	}
	if len(platforms) == 0 {
		return nil, fmt.Errorf("%w: no OpenCL platforms available", compute.ErrNoDevice)
	}

	device := firstDevice(platforms, cl.DeviceTypeGPU)
	if device == nil {
		device = firstDevice(platforms, cl.DeviceTypeCPU)
	}
	if device == nil {
		return nil, fmt.Errorf("%w: no suitable OpenCL devices found", compute.ErrNoDevice)
	}

	context, err := cl.CreateContext([]*cl.Device{device})
	if err != nil {
		return nil, compute.DeviceError("create context", err)
	}
	queue, err := context.CreateCommandQueue(device, 0)
	if err != nil {
		context.Release()
		return nil, compute.DeviceError("create command queue", err)
	}

	d := &Device{
		device:  device,
		context: context,
		queue:   queue,
		name:    device.Name(),
		limits:  deviceLimits(device),
	}
	d.log().Info("opencl: device opened", "device", d.name, "limits", d.limits)
	return d, nil
}

func firstDevice(platforms []*cl.Platform, typ cl.DeviceType) *cl.Device {
	for _, p := range platforms {
		devices, err := p.GetDevices(typ)
		if err != nil && err != cl.ErrDeviceNotFound {
			continue
		}
		if len(devices) > 0 {
			return devices[0]
		}
	}
	return nil
}

// deviceLimits reads the dispatch limits. OpenCL 1.x bounds the index space
// by size_t only, so MaxGlobalSize is left to the 32-bit kernel indexing.
func deviceLimits(d *cl.Device) compute.Limits {
	var local [2]int
	if sizes := d.MaxWorkItemSizes(); len(sizes) >= 2 {
		local = [2]int{sizes[0], sizes[1]}
	}
	const maxIndex = 1 << 31
	return compute.Limits{
		MaxGlobalSize:           [2]int{maxIndex - 1, maxIndex - 1},
		MaxLocalSize:            local,
		MaxWorkGroupInvocations: d.MaxWorkGroupSize(),
		MaxLocalMemory:          int(d.LocalMemSize()),
		MaxBufferSize:           d.MaxMemAllocSize(),
	}
}

// Name returns the OpenCL device name.
func (d *Device) Name() string { return d.name }

// Limits returns the device limits.
func (d *Device) Limits() compute.Limits { return d.limits }

// SetLogger sets the device logger. Nil restores compute.Logger.
func (d *Device) SetLogger(l *slog.Logger) { d.logger.Store(l) }

func (d *Device) log() *slog.Logger {
	if l := d.logger.Load(); l != nil {
		return l
	}
	return compute.Logger()
}

// Close releases the queue and context. Close is idempotent.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.queue.Release()
	d.context.Release()
	return nil
}

// clBuffer is a float32 memory object.
type clBuffer struct {
	dev   *Device
	mem   *cl.MemObject
	label string
	n     int
}

func (b *clBuffer) Len() int { return b.n }

func (b *clBuffer) Release() {
	b.dev.mu.Lock()
	defer b.dev.mu.Unlock()
	if b.mem != nil {
		b.mem.Release()
		b.mem = nil
	}
}

// NewBuffer allocates a read-write memory object of n float32 elements.
func (d *Device) NewBuffer(label string, n int) (compute.Buffer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: buffer %s has %d elements", compute.ErrInvalidParameter, label, n)
	}
	if d.limits.MaxBufferSize > 0 && int64(n)*4 > d.limits.MaxBufferSize {
		return nil, compute.DeviceError("create buffer "+label,
			fmt.Errorf("%w: %d bytes", compute.ErrResourceExhaustion, int64(n)*4))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, compute.DeviceError("create buffer "+label, compute.ErrClosed)
	}
	mem, err := d.context.CreateEmptyBuffer(cl.MemReadWrite, n*4)
	if err != nil {
		return nil, compute.DeviceError("create buffer "+label, err)
	}
	return &clBuffer{dev: d, mem: mem, label: label, n: n}, nil
}

// Write uploads src with a blocking write.
func (d *Device) Write(dst compute.Buffer, src []float32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.buffer(dst, "write buffer")
	if err != nil {
		return err
	}
	if len(src) > b.n {
		return fmt.Errorf("%w: write of %d elements into %s of %d", compute.ErrInvalidParameter, len(src), b.label, b.n)
	}
	if _, err := d.queue.EnqueueWriteBufferFloat32(b.mem, true, 0, src, nil); err != nil {
		return compute.DeviceError("write buffer "+b.label, err)
	}
	return nil
}

// Read downloads into dst with a blocking read.
func (d *Device) Read(dst []float32, src compute.Buffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.buffer(src, "read buffer")
	if err != nil {
		return err
	}
	if len(dst) > b.n {
		return fmt.Errorf("%w: read of %d elements from %s of %d", compute.ErrInvalidParameter, len(dst), b.label, b.n)
	}
	if _, err := d.queue.EnqueueReadBufferFloat32(b.mem, true, 0, dst, nil); err != nil {
		return compute.DeviceError("read buffer "+b.label, err)
	}
	return nil
}

// buffer resolves a compute.Buffer. Caller holds d.mu.
func (d *Device) buffer(buf compute.Buffer, op string) (*clBuffer, error) {
	if d.closed {
		return nil, compute.DeviceError(op, compute.ErrClosed)
	}
	b, ok := buf.(*clBuffer)
	if !ok || b == nil || b.dev != d {
		return nil, fmt.Errorf("%w: %s: buffer %T does not belong to %s", compute.ErrInvalidParameter, op, buf, d.name)
	}
	if b.mem == nil {
		return nil, compute.DeviceError(op, fmt.Errorf("buffer %s already released", b.label))
	}
	return b, nil
}

// program is a built gaussian_blur kernel.
type program struct {
	dev          *Device
	program      *cl.Program
	kernel       *cl.Kernel
	kernelSize   int
	tileW, tileH int
	scratch      int
}

// Build compiles the OpenCL C source. A compiler failure is returned as
// *compute.BuildError carrying the build log.
func (d *Device) Build(opts compute.BuildOptions) (compute.Program, error) {
	if opts.KernelSize <= 0 || opts.KernelSize%2 == 0 {
		return nil, fmt.Errorf("%w: kernel size %d must be odd", compute.ErrInvalidParameter, opts.KernelSize)
	}
	if opts.TileWidth <= 0 || opts.TileHeight <= 0 {
		return nil, fmt.Errorf("%w: tile %dx%d", compute.ErrInvalidParameter, opts.TileWidth, opts.TileHeight)
	}
	scratch := compute.ScratchBytes(opts.TileWidth, opts.TileHeight, opts.KernelSize)
	if d.limits.MaxLocalMemory > 0 && scratch > d.limits.MaxLocalMemory {
		return nil, fmt.Errorf("%w: %d bytes of local scratch exceed %d on %s",
			compute.ErrResourceExhaustion, scratch, d.limits.MaxLocalMemory, d.name)
	}

	src := opts.Source
	if len(src) == 0 {
		src = DefaultSource()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, compute.DeviceError("build program", compute.ErrClosed)
	}

	prog, err := d.context.CreateProgramWithSource([]string{string(src)})
	if err != nil {
		return nil, compute.DeviceError("create program", err)
	}
	if err := prog.BuildProgram([]*cl.Device{d.device}, ""); err != nil {
		prog.Release()
		var buildErr cl.BuildError
		if errors.As(err, &buildErr) {
			return nil, &compute.BuildError{Device: d.name, Log: string(buildErr)}
		}
		return nil, &compute.BuildError{Device: d.name, Err: err}
	}
	kernel, err := prog.CreateKernel(compute.EntryPoint)
	if err != nil {
		prog.Release()
		return nil, compute.DeviceError("create kernel "+compute.EntryPoint, err)
	}

	d.log().Debug("opencl: program built",
		"kernel_size", opts.KernelSize,
		"tile", fmt.Sprintf("%dx%d", opts.TileWidth, opts.TileHeight),
		"scratch_bytes", scratch)

	return &program{
		dev:        d,
		program:    prog,
		kernel:     kernel,
		kernelSize: opts.KernelSize,
		tileW:      opts.TileWidth,
		tileH:      opts.TileHeight,
		scratch:    scratch,
	}, nil
}

// Release frees the kernel and program. Release is idempotent.
func (p *program) Release() {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	if p.kernel != nil {
		p.kernel.Release()
		p.kernel = nil
	}
	if p.program != nil {
		p.program.Release()
		p.program = nil
	}
}

// Dispatch sets the eight kernel arguments, enqueues the rounded-up range
// and waits for the queue to drain.
func (p *program) Dispatch(args compute.DispatchArgs) error {
	if args.KernelSize != p.kernelSize {
		return fmt.Errorf("%w: dispatch kernel size %d, program built for %d",
			compute.ErrInvalidParameter, args.KernelSize, p.kernelSize)
	}
	n, err := compute.ElementCount(args.Width, args.Height)
	if err != nil {
		return err
	}

	d := p.dev
	d.mu.Lock()
	defer d.mu.Unlock()

	if p.kernel == nil {
		return compute.DeviceError("dispatch", errors.New("program released"))
	}
	src, err := d.buffer(args.Input, "dispatch input")
	if err != nil {
		return err
	}
	dst, err := d.buffer(args.Output, "dispatch output")
	if err != nil {
		return err
	}
	weights, err := d.buffer(args.Weights, "dispatch weights")
	if err != nil {
		return err
	}
	if src.n < n || dst.n < n || weights.n < args.KernelSize {
		return fmt.Errorf("%w: buffers too small for %dx%d", compute.ErrInvalidParameter, args.Width, args.Height)
	}

	k := p.kernel
	if err := k.SetArgBuffer(0, src.mem); err != nil {
		return compute.DeviceError("set arg input", err)
	}
	if err := k.SetArgLocal(1, p.scratch); err != nil {
		return compute.DeviceError("set arg scratch", err)
	}
	if err := k.SetArgInt32(2, int32(args.Width)); err != nil { //nolint:gosec // bounded by MaxGlobalSize
		return compute.DeviceError("set arg width", err)
	}
	if err := k.SetArgInt32(3, int32(args.Height)); err != nil { //nolint:gosec // bounded by MaxGlobalSize
		return compute.DeviceError("set arg height", err)
	}
	if err := k.SetArgBuffer(4, weights.mem); err != nil {
		return compute.DeviceError("set arg weights", err)
	}
	if err := k.SetArgInt32(5, int32(args.KernelSize)); err != nil { //nolint:gosec // small odd value
		return compute.DeviceError("set arg kernel size", err)
	}
	if err := k.SetArgInt32(6, int32(args.Axis)); err != nil { //nolint:gosec // 0 or 1
		return compute.DeviceError("set arg axis", err)
	}
	if err := k.SetArgBuffer(7, dst.mem); err != nil {
		return compute.DeviceError("set arg output", err)
	}

	grid := parallel.NewGrid(args.Width, args.Height, p.tileW, p.tileH)
	gw, gh := grid.GlobalSize()
	if _, err := d.queue.EnqueueNDRangeKernel(k, nil, []int{gw, gh}, []int{p.tileW, p.tileH}, nil); err != nil {
		return compute.DeviceError("enqueue "+compute.EntryPoint, err)
	}
	if err := d.queue.Finish(); err != nil {
		return compute.DeviceError("finish "+args.Axis.String()+" pass", err)
	}
	return nil
}
