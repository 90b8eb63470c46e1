//go:build !nogpu

package wgpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/blur/compute"
	"github.com/gogpu/blur/internal/parallel"
)

// paramsSize is the byte size of the Params uniform.
const paramsSize = 16

// program is a compiled gaussian_blur pipeline for one kernel and tile size.
type program struct {
	dev          *Device
	kernelSize   int
	tileW, tileH int

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline
}

// Build renders the WGSL template, compiles it to SPIR-V and creates the
// compute pipeline. A naga failure is returned as *compute.BuildError with
// the compiler message as its log.
func (d *Device) Build(opts compute.BuildOptions) (compute.Program, error) {
	if opts.KernelSize <= 0 || opts.KernelSize%2 == 0 {
		return nil, fmt.Errorf("%w: kernel size %d must be odd", compute.ErrInvalidParameter, opts.KernelSize)
	}
	if opts.TileWidth <= 0 || opts.TileHeight <= 0 {
		return nil, fmt.Errorf("%w: tile %dx%d", compute.ErrInvalidParameter, opts.TileWidth, opts.TileHeight)
	}

	src := opts.Source
	if len(src) == 0 {
		src = DefaultSource()
	}
	wgsl, err := renderShader(src, opts)
	if err != nil {
		return nil, &compute.BuildError{Device: d.name, Log: err.Error(), Err: err}
	}
	spirv, err := compileSPIRV(wgsl)
	if err != nil {
		return nil, &compute.BuildError{Device: d.name, Log: err.Error(), Err: err}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, compute.DeviceError("build program", compute.ErrClosed)
	}

	p := &program{dev: d, kernelSize: opts.KernelSize, tileW: opts.TileWidth, tileH: opts.TileHeight}
	if err := p.create(spirv); err != nil {
		p.destroy()
		return nil, err
	}

	d.log().Debug("wgpu: program built",
		"kernel_size", opts.KernelSize,
		"tile", fmt.Sprintf("%dx%d", opts.TileWidth, opts.TileHeight),
		"spirv_words", len(spirv))
	return p, nil
}

// create builds the pipeline objects. Caller holds dev.mu.
func (p *program) create(spirv []uint32) error {
	device := p.dev.device

	shader, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  compute.EntryPoint,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return &compute.BuildError{Device: p.dev.name, Log: err.Error(), Err: compute.DeviceError("create shader module", err)}
	}
	p.shader = shader

	bindLayout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "blur_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 3, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return compute.DeviceError("create bind group layout", err)
	}
	p.bindLayout = bindLayout

	pipeLayout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "blur_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		return compute.DeviceError("create pipeline layout", err)
	}
	p.pipeLayout = pipeLayout

	pipeline, err := device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: "blur_pipeline", Layout: p.pipeLayout,
		Compute: hal.ComputeState{Module: p.shader, EntryPoint: compute.EntryPoint},
	})
	if err != nil {
		return compute.DeviceError("create compute pipeline", err)
	}
	p.pipeline = pipeline
	return nil
}

// Release destroys the pipeline objects. Release is idempotent.
func (p *program) Release() {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	p.destroy()
}

// destroy frees pipeline objects in reverse creation order. Caller holds dev.mu.
func (p *program) destroy() {
	device := p.dev.device
	if device == nil {
		return
	}
	if p.pipeline != nil {
		device.DestroyComputePipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.pipeLayout != nil {
		device.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	if p.bindLayout != nil {
		device.DestroyBindGroupLayout(p.bindLayout)
		p.bindLayout = nil
	}
	if p.shader != nil {
		device.DestroyShaderModule(p.shader)
		p.shader = nil
	}
}

// Dispatch records one compute pass over the rounded-up grid, submits it and
// waits for completion.
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

	if p.pipeline == nil {
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

	params, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "blur_params", Size: paramsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return compute.DeviceError("create uniform buffer", err)
	}
	defer d.device.DestroyBuffer(params)
	d.queue.WriteBuffer(params, 0, encodeParams(args))

	pixelBytes := uint64(n) * 4                //nolint:gosec // n > 0
	weightBytes := uint64(args.KernelSize) * 4 //nolint:gosec // odd and positive
	bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "blur_bind", Layout: p.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: params.NativeHandle(), Offset: 0, Size: paramsSize}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: src.buf.NativeHandle(), Offset: 0, Size: pixelBytes}},
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: weights.buf.NativeHandle(), Offset: 0, Size: weightBytes}},
			{Binding: 3, Resource: gputypes.BufferBinding{Buffer: dst.buf.NativeHandle(), Offset: 0, Size: pixelBytes}},
		},
	})
	if err != nil {
		return compute.DeviceError("create bind group", err)
	}
	defer d.device.DestroyBindGroup(bg)

	grid := parallel.NewGrid(args.Width, args.Height, p.tileW, p.tileH)
	gx, gy := uint32(grid.GroupsX()), uint32(grid.GroupsY()) //nolint:gosec // checked against device limits

	err = d.submit("blur_"+args.Axis.String(), func(encoder hal.CommandEncoder) {
		pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "blur_" + args.Axis.String()})
		pass.SetPipeline(p.pipeline)
		pass.SetBindGroup(0, bg, nil)
		pass.Dispatch(gx, gy, 1)
		pass.End()
	})
	if err != nil {
		return compute.DeviceError("dispatch "+compute.EntryPoint, err)
	}
	return nil
}

// encodeParams packs the Params uniform: width, height, kernel_size, is_x_axis.
func encodeParams(args compute.DispatchArgs) []byte {
	b := make([]byte, paramsSize)
	binary.LittleEndian.PutUint32(b[0:], uint32(args.Width))      //nolint:gosec // positive
	binary.LittleEndian.PutUint32(b[4:], uint32(args.Height))     //nolint:gosec // positive
	binary.LittleEndian.PutUint32(b[8:], uint32(args.KernelSize)) //nolint:gosec // positive
	binary.LittleEndian.PutUint32(b[12:], uint32(args.Axis))
	return b
}

func float32Bytes(src []float32) []byte {
	b := make([]byte, len(src)*4)
	for i, v := range src {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func bytesToFloat32(dst []float32, b []byte) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
}
