package compute

import (
	"math/rand/v2"
	"testing"
)

// Test helper functions shared across compute tests.

// randomBuffer returns a deterministic working buffer with values in [0,255].
func randomBuffer(w, h int, seed uint64) WorkingBuffer {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	buf := WorkingBuffer{Width: w, Height: h, Pix: make([]float32, w*h*Components)}
	for i := range buf.Pix {
		buf.Pix[i] = float32(rng.IntN(256))
	}
	return buf
}

// absf32 returns the absolute value of a float32.
func absf32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

// assertClose fails the test at the first element differing by more than tol.
func assertClose(t *testing.T, got, want []float32, tol float32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range got {
		if absf32(got[i]-want[i]) > tol {
			t.Fatalf("[%d] (pixel %d, channel %d) = %v, want %v", i, i/Components, i%Components, got[i], want[i])
		}
	}
}

// newTestCPU returns a CPU device closed at test cleanup.
func newTestCPU(t *testing.T, opts ...CPUOption) *CPUDevice {
	t.Helper()
	dev := NewCPUDevice(opts...)
	t.Cleanup(func() { _ = dev.Close() })
	return dev
}

// trackingDevice wraps a Device, counting live buffers and programs and
// optionally failing the Nth call to a chosen operation.
type trackingDevice struct {
	Device

	failOp string
	failAt int
	calls  map[string]int

	liveBuffers  int
	livePrograms int
}

func newTrackingDevice(inner Device) *trackingDevice {
	return &trackingDevice{Device: inner, calls: make(map[string]int)}
}

func (d *trackingDevice) hit(op string) error {
	d.calls[op]++
	if op == d.failOp && d.calls[op] == d.failAt {
		return DeviceError(op, errInjected)
	}
	return nil
}

func (d *trackingDevice) Build(opts BuildOptions) (Program, error) {
	if err := d.hit("build"); err != nil {
		return nil, err
	}
	p, err := d.Device.Build(opts)
	if err != nil {
		return nil, err
	}
	d.livePrograms++
	return &trackingProgram{Program: p, dev: d}, nil
}

func (d *trackingDevice) NewBuffer(label string, n int) (Buffer, error) {
	if err := d.hit("buffer"); err != nil {
		return nil, err
	}
	b, err := d.Device.NewBuffer(label, n)
	if err != nil {
		return nil, err
	}
	d.liveBuffers++
	return &trackingBuffer{Buffer: b, dev: d}, nil
}

func (d *trackingDevice) Write(dst Buffer, src []float32) error {
	if err := d.hit("write"); err != nil {
		return err
	}
	return d.Device.Write(dst.(*trackingBuffer).Buffer, src)
}

func (d *trackingDevice) Read(dst []float32, src Buffer) error {
	if err := d.hit("read"); err != nil {
		return err
	}
	return d.Device.Read(dst, src.(*trackingBuffer).Buffer)
}

type trackingBuffer struct {
	Buffer
	dev      *trackingDevice
	released bool
}

func (b *trackingBuffer) Release() {
	if !b.released {
		b.released = true
		b.dev.liveBuffers--
	}
	b.Buffer.Release()
}

type trackingProgram struct {
	Program
	dev      *trackingDevice
	released bool
}

func (p *trackingProgram) Dispatch(args DispatchArgs) error {
	if err := p.dev.hit("dispatch"); err != nil {
		return err
	}
	args.Input = args.Input.(*trackingBuffer).Buffer
	args.Output = args.Output.(*trackingBuffer).Buffer
	args.Weights = args.Weights.(*trackingBuffer).Buffer
	return p.Program.Dispatch(args)
}

func (p *trackingProgram) Release() {
	if !p.released {
		p.released = true
		p.dev.livePrograms--
	}
	p.Program.Release()
}
