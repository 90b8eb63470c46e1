//go:build !nogpu

// Package wgpu runs the gaussian_blur kernel on a GPU through the Pure Go
// WebGPU HAL (Vulkan backend). The WGSL kernel is compiled to SPIR-V with
// naga and stages each tile plus halo in workgroup memory.
//
// Build with -tags nogpu to exclude this package's GPU code.
package wgpu

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/blur/compute"
)

// fenceTimeout bounds every wait for GPU completion.
const fenceTimeout = 5 * time.Second

// Device is a compute.Device backed by a wgpu HAL device.
//
// All GPU calls are serialized by an internal mutex, so a Device may be
// shared by concurrent pipelines.
type Device struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	name   string
	limits compute.Limits

	closed         bool
	externalDevice bool // true when using a shared device (don't destroy on Close)

	logger atomic.Pointer[slog.Logger]
}

var _ compute.Device = (*Device)(nil)

// New opens the first discrete or integrated GPU on the Vulkan backend,
// falling back to the first adapter of any type.
// It returns compute.ErrNoDevice when no adapter is available.
func New() (*Device, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan backend not available", compute.ErrNoDevice)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %w", compute.ErrNoDevice, err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: no GPU adapters found", compute.ErrNoDevice)
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	limits := gputypes.DefaultLimits()
	openDev, err := selected.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		instance.Destroy()
		return nil, compute.DeviceError("open device", err)
	}

	d := newDevice(openDev.Device, openDev.Queue, selected.Info.Name, limits)
	d.instance = instance
	d.log().Info("wgpu: device opened", "adapter", selected.Info.Name, "type", selected.Info.DeviceType)
	return d, nil
}

// NewFromProvider uses a shared GPU device from an external provider. The
// provider must implement HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue. Close leaves the shared device open.
func NewFromProvider(provider any, limits gputypes.Limits) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: provider does not expose HAL types", compute.ErrInvalidParameter)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: provider HalDevice is not hal.Device", compute.ErrInvalidParameter)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: provider HalQueue is not hal.Queue", compute.ErrInvalidParameter)
	}

	d := newDevice(device, queue, "wgpu (shared)", limits)
	d.externalDevice = true
	return d, nil
}

func newDevice(device hal.Device, queue hal.Queue, name string, limits gputypes.Limits) *Device {
	return &Device{
		device: device,
		queue:  queue,
		name:   name,
		limits: limitsFrom(limits),
	}
}

// limitsFrom maps WebGPU limits onto the dispatch limits. WebGPU bounds the
// work-group count, not the index space, so MaxGlobalSize stays unlimited.
func limitsFrom(l gputypes.Limits) compute.Limits {
	groups := int(l.MaxComputeWorkgroupsPerDimension)
	return compute.Limits{
		MaxWorkGroups:           [2]int{groups, groups},
		MaxLocalSize:            [2]int{int(l.MaxComputeWorkgroupSizeX), int(l.MaxComputeWorkgroupSizeY)},
		MaxWorkGroupInvocations: int(l.MaxComputeInvocationsPerWorkgroup),
		MaxLocalMemory:          int(l.MaxComputeWorkgroupStorageSize),
		MaxBufferSize:           int64(min(l.MaxBufferSize, uint64(1)<<62)), //nolint:gosec // clamped
	}
}

// Name returns the adapter name.
func (d *Device) Name() string { return d.name }

// Limits returns the limits the device was opened with.
func (d *Device) Limits() compute.Limits { return d.limits }

// SetLogger sets the device logger. Nil restores compute.Logger.
func (d *Device) SetLogger(l *slog.Logger) { d.logger.Store(l) }

func (d *Device) log() *slog.Logger {
	if l := d.logger.Load(); l != nil {
		return l
	}
	return compute.Logger()
}

// Close destroys the device unless it is shared. Close is idempotent.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if !d.externalDevice {
		if d.device != nil {
			d.device.Destroy()
		}
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.device = nil
	d.queue = nil
	d.instance = nil
	return nil
}

// gpuBuffer is a storage buffer of float32 elements.
type gpuBuffer struct {
	dev   *Device
	buf   hal.Buffer
	label string
	n     int
}

func (b *gpuBuffer) Len() int { return b.n }

func (b *gpuBuffer) Release() {
	b.dev.mu.Lock()
	defer b.dev.mu.Unlock()
	if b.buf != nil && b.dev.device != nil {
		b.dev.device.DestroyBuffer(b.buf)
	}
	b.buf = nil
}

// NewBuffer allocates a storage buffer of n float32 elements.
func (d *Device) NewBuffer(label string, n int) (compute.Buffer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: buffer %s has %d elements", compute.ErrInvalidParameter, label, n)
	}
	size := uint64(n) * 4 //nolint:gosec // n > 0
	if d.limits.MaxBufferSize > 0 && int64(size) > d.limits.MaxBufferSize {
		return nil, compute.DeviceError("create buffer "+label,
			fmt.Errorf("%w: %d bytes", compute.ErrResourceExhaustion, size))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, compute.DeviceError("create buffer "+label, compute.ErrClosed)
	}

	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label, Size: size,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, compute.DeviceError("create buffer "+label, err)
	}
	return &gpuBuffer{dev: d, buf: buf, label: label, n: n}, nil
}

// Write uploads src to the start of dst.
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
	d.queue.WriteBuffer(b.buf, 0, float32Bytes(src))
	return nil
}

// Read copies the start of src into dst through a mappable staging buffer.
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
	size := uint64(len(dst)) * 4

	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "blur_staging", Size: size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return compute.DeviceError("create staging buffer", err)
	}
	defer d.device.DestroyBuffer(staging)

	err = d.submit("blur_readback", func(encoder hal.CommandEncoder) {
		encoder.CopyBufferToBuffer(b.buf, staging, []hal.BufferCopy{
			{SrcOffset: 0, DstOffset: 0, Size: size},
		})
	})
	if err != nil {
		return compute.DeviceError("read buffer "+b.label, err)
	}

	raw := make([]byte, size)
	if err := d.queue.ReadBuffer(staging, 0, raw); err != nil {
		return compute.DeviceError("read buffer "+b.label, err)
	}
	bytesToFloat32(dst, raw)
	return nil
}

// buffer resolves a compute.Buffer. Caller holds d.mu.
func (d *Device) buffer(buf compute.Buffer, op string) (*gpuBuffer, error) {
	if d.closed {
		return nil, compute.DeviceError(op, compute.ErrClosed)
	}
	b, ok := buf.(*gpuBuffer)
	if !ok || b == nil || b.dev != d {
		return nil, fmt.Errorf("%w: %s: buffer %T does not belong to %s", compute.ErrInvalidParameter, op, buf, d.name)
	}
	if b.buf == nil {
		return nil, compute.DeviceError(op, fmt.Errorf("buffer %s already released", b.label))
	}
	return b, nil
}

// submit records commands with encode, submits them and waits for the
// fence. Caller holds d.mu.
func (d *Device) submit(label string, encode func(hal.CommandEncoder)) error {
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}

	encode(encoder)

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer d.device.DestroyFence(fence)

	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	fenceOK, err := d.device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return fmt.Errorf("wait for GPU: %w", err)
	}
	if !fenceOK {
		return errors.New("wait for GPU: timed out")
	}
	return nil
}
