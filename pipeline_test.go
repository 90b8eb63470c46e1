package blur

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/gogpu/blur/compute"
	"github.com/gogpu/blur/internal/filter"
)

func TestRunTwoByTwo(t *testing.T) {
	p := newTestPipeline(t)
	img := &Image{Width: 2, Height: 2, Mode: RGBA, Pix: []byte{
		255, 0, 0, 255, 0, 255, 0, 255,
		0, 0, 255, 255, 255, 255, 255, 255,
	}}

	got, err := p.Run(img, 1.0)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Kernel [0.274, 0.452, 0.274] with clamp-to-edge on 2 pixels.
	want := []byte{
		153, 69, 69, 255, 101, 185, 69, 255,
		101, 69, 185, 255, 153, 185, 185, 255,
	}
	if !bytes.Equal(got.Pix, want) {
		t.Errorf("Run() = %v, want %v", got.Pix, want)
	}

	again, err := p.Run(img, 1.0)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if !bytes.Equal(again.Pix, got.Pix) {
		t.Error("repeated runs are not bit-identical")
	}
}

func TestRunPreservesInput(t *testing.T) {
	p := newTestPipeline(t)
	img := solidImage(t, 5, 5, RGB, 0, 0, 0)
	img.Pix[12*3] = 255
	orig := img.Clone()

	if _, err := p.Run(img, 2); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !bytes.Equal(img.Pix, orig.Pix) {
		t.Error("Run modified its input")
	}
}

func TestRunUniformUnchanged(t *testing.T) {
	p := newTestPipeline(t)
	tests := []struct {
		name  string
		w, h  int
		mode  ChannelMode
		px    []byte
		sigma float64
	}{
		{"rgb small", 3, 3, RGB, []byte{200, 100, 50}, 1},
		{"rgba odd size", 37, 21, RGBA, []byte{12, 34, 56, 78}, 2.5},
		{"rgb large sigma", 20, 20, RGB, []byte{255, 255, 255}, 9},
		{"single pixel", 1, 1, RGBA, []byte{1, 2, 3, 4}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := solidImage(t, tt.w, tt.h, tt.mode, tt.px...)
			got, err := p.Run(img, tt.sigma)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if got.Width != tt.w || got.Height != tt.h || got.Mode != tt.mode {
				t.Fatalf("Run() shape = %dx%d %v", got.Width, got.Height, got.Mode)
			}
			if !bytes.Equal(got.Pix, img.Pix) {
				t.Errorf("uniform image changed: first pixel %v, want %v", rgbaAt(got, 0, 0), tt.px)
			}
		})
	}
}

func TestRunImpulseMatchesKernelOuterProduct(t *testing.T) {
	const size, sigma = 15, 2.0
	p := newTestPipeline(t)

	img := solidImage(t, size, size, RGB, 0, 0, 0)
	c := size / 2
	copy(rgbaAt(img, c, c), []byte{255, 255, 255})

	got, err := p.Run(img, sigma)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	k := filter.GaussianKernel(sigma)
	r := len(k) / 2
	for y := range size {
		for x := range size {
			want := 0.0
			dx, dy := x-c+r, y-c+r
			if dx >= 0 && dx < len(k) && dy >= 0 && dy < len(k) {
				want = 255 * float64(k[dx]) * float64(k[dy])
			}
			v := float64(rgbaAt(got, x, y)[0])
			if math.Abs(v-want) > 1 {
				t.Errorf("(%d,%d) = %v, want %.3f", x, y, v, want)
			}
		}
	}

	// Mirror images along one axis are exact; across axes the pass order
	// changes the float32 rounding of the intermediate.
	for d := 1; d <= r; d++ {
		e := int(rgbaAt(got, c+d, c)[0])
		if v := int(rgbaAt(got, c-d, c)[0]); v != e {
			t.Errorf("horizontal falloff at distance %d: %d vs %d", d, v, e)
		}
		for _, o := range [][2]int{{c, c + d}, {c, c - d}} {
			if v := int(rgbaAt(got, o[0], o[1])[0]); v < e-1 || v > e+1 {
				t.Errorf("vertical falloff at distance %d: %d vs %d", d, v, e)
			}
		}
	}
}

// spread returns the intensity-weighted variance of the red channel
// around the image center.
func spread(img *Image) float64 {
	cx, cy := float64(img.Width/2), float64(img.Height/2)
	var sum, acc float64
	for y := range img.Height {
		for x := range img.Width {
			v := float64(rgbaAt(img, x, y)[0])
			dx, dy := float64(x)-cx, float64(y)-cy
			sum += v
			acc += v * (dx*dx + dy*dy)
		}
	}
	return acc / sum
}

func TestRunVarianceIncreasesWithSigma(t *testing.T) {
	p := newTestPipeline(t)
	img := solidImage(t, 41, 41, RGBA, 0, 0, 0, 255)
	copy(rgbaAt(img, 20, 20), []byte{255, 255, 255, 255})

	prev := 0.0
	for _, sigma := range []float64{1, 1.5, 2, 3, 4} {
		got, err := p.Run(img, sigma)
		if err != nil {
			t.Fatalf("Run(sigma=%v) error = %v", sigma, err)
		}
		v := spread(got)
		if v <= prev {
			t.Errorf("variance at sigma %v = %.3f, not greater than %.3f", sigma, v, prev)
		}
		prev = v
	}
}

func TestRunKernelLargerThanImage(t *testing.T) {
	p := newTestPipeline(t)
	img, err := NewImage(4, 4, RGBA)
	if err != nil {
		t.Fatal(err)
	}
	for i := range img.Pix {
		img.Pix[i] = byte(i * 3)
	}

	got, err := p.Run(img, 5)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Clamp-to-edge reference on the host.
	buf := ToWorkingBuffer(img)
	ref := filter.SeparableBlur(buf.Pix, 4, 4, filter.GaussianKernel(5))
	want := ToImage(compute.WorkingBuffer{Width: 4, Height: 4, Pix: ref}, RGBA)
	if !bytes.Equal(got.Pix, want.Pix) {
		t.Errorf("Run() = %v, want %v", got.Pix, want.Pix)
	}
}

func TestRunTileSizes(t *testing.T) {
	img, err := NewImage(23, 9, RGB)
	if err != nil {
		t.Fatal(err)
	}
	for i := range img.Pix {
		img.Pix[i] = byte(i * 7)
	}

	base, err := newTestPipeline(t).Run(img, 2)
	if err != nil {
		t.Fatal(err)
	}
	for _, ts := range [][2]int{{1, 1}, {4, 8}, {8, 4}, {32, 32}} {
		got, err := newTestPipeline(t, WithTileSize(ts[0], ts[1])).Run(img, 2)
		if err != nil {
			t.Fatalf("tile %v: Run() error = %v", ts, err)
		}
		if !bytes.Equal(got.Pix, base.Pix) {
			t.Errorf("tile %v output differs from 16x16", ts)
		}
	}
}

func TestRunInvalidSigma(t *testing.T) {
	p := newTestPipeline(t)
	img := solidImage(t, 2, 2, RGB, 1, 2, 3)
	for _, sigma := range []float64{0, 0.999, -1, math.NaN(), math.Inf(1), math.Inf(-1), MaxSigma + 1, 1e19} {
		if _, err := p.Run(img, sigma); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("Run(sigma=%v) error = %v, want ErrInvalidParameter", sigma, err)
		}
	}
}

// Sigmas whose kernel cannot be staged are rejected by the device limits
// check before any weights are allocated.
func TestRunHugeSigmaRejectedBeforeSynthesis(t *testing.T) {
	p := newTestPipeline(t)
	img := solidImage(t, 2, 2, RGB, 1, 2, 3)
	for _, sigma := range []float64{1e5, MaxSigma} {
		if _, err := p.Run(img, sigma); !errors.Is(err, ErrResourceExhaustion) {
			t.Errorf("Run(sigma=%v) error = %v, want ErrResourceExhaustion", sigma, err)
		}
	}
}

func TestRunInvalidImage(t *testing.T) {
	p := newTestPipeline(t)
	bad := &Image{Width: 2, Height: 2, Mode: RGB, Pix: make([]byte, 3)}
	if _, err := p.Run(bad, 1); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("Run() error = %v, want ErrInvalidImage", err)
	}
	if _, err := p.Run(nil, 1); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("Run(nil) error = %v, want ErrInvalidImage", err)
	}
}

func TestRunHostBudget(t *testing.T) {
	p := newTestPipeline(t, WithHostBudget(1024))
	small := solidImage(t, 4, 4, RGB, 9, 9, 9) // 2 * 16 * 16 bytes
	if _, err := p.Run(small, 1); err != nil {
		t.Fatalf("Run(4x4) error = %v", err)
	}

	big := solidImage(t, 8, 8, RGB, 9, 9, 9)
	if _, err := p.Run(big, 1); !errors.Is(err, ErrResourceExhaustion) {
		t.Errorf("Run(8x8) error = %v, want ErrResourceExhaustion", err)
	}
}

func TestRunUnsupportedImageSize(t *testing.T) {
	lim := compute.DefaultCPULimits
	lim.MaxGlobalSize = [2]int{8, 8}
	dev := compute.NewCPUDevice(compute.WithWorkers(1), compute.WithCPULimits(lim))
	t.Cleanup(func() { _ = dev.Close() })

	img := solidImage(t, 9, 2, RGB, 1, 1, 1)
	if _, err := New(dev).Run(img, 1); !errors.Is(err, ErrUnsupportedImageSize) {
		t.Errorf("Run() error = %v, want ErrUnsupportedImageSize", err)
	}
}

func TestRunClosedDevice(t *testing.T) {
	dev := compute.NewCPUDevice(compute.WithWorkers(1))
	p := New(dev)
	_ = dev.Close()

	_, err := p.Run(solidImage(t, 2, 2, RGB, 1, 1, 1), 1)
	if !errors.Is(err, ErrDevice) {
		t.Errorf("Run() error = %v, want ErrDevice", err)
	}
}

func TestRunStats(t *testing.T) {
	p := newTestPipeline(t)
	_, stats, err := p.RunStats(solidImage(t, 32, 32, RGB, 1, 1, 1), 2)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total() < stats.Horizontal {
		t.Errorf("Total() = %v < Horizontal %v", stats.Total(), stats.Horizontal)
	}
}

func TestBlurFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.tga")
	out := filepath.Join(dir, "out.png")

	src := solidImage(t, 6, 4, RGB, 40, 80, 120)
	if err := Save(src, in); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	p := newTestPipeline(t)
	if err := p.BlurFile(in, out, 1.5); err != nil {
		t.Fatalf("BlurFile() error = %v", err)
	}

	got, err := Load(out)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Mode != RGB || !bytes.Equal(got.Pix, src.Pix) {
		t.Errorf("BlurFile of uniform image = %v %v, want unchanged", got.Mode, got.Pix[:3])
	}
}

// An opaque 32-bit TGA must come back as 32-bit RGBA, not be narrowed to
// 24-bit RGB because no pixel happens to be translucent.
func TestBlurFileOpaque32BitTGA(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.tga")
	out := filepath.Join(dir, "out.tga")

	src := solidImage(t, 5, 3, RGBA, 40, 80, 120, 255)
	if err := Save(src, in); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	data, err := os.ReadFile(in)
	if err != nil {
		t.Fatal(err)
	}
	if data[16] != 32 {
		t.Fatalf("input depth = %d, want 32", data[16])
	}

	p := newTestPipeline(t)
	if err := p.BlurFile(in, out, 1); err != nil {
		t.Fatalf("BlurFile() error = %v", err)
	}

	data, err = os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if data[16] != 32 {
		t.Errorf("output depth = %d, want 32", data[16])
	}
	got, err := Load(out)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Mode != RGBA || !bytes.Equal(got.Pix, src.Pix) {
		t.Errorf("BlurFile = %v %v, want unchanged RGBA", got.Mode, got.Pix[:4])
	}
}

func TestBlurFileErrors(t *testing.T) {
	dir := t.TempDir()
	p := newTestPipeline(t)

	in := filepath.Join(dir, "in.png")
	if err := Save(solidImage(t, 2, 2, RGB, 1, 1, 1), in); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		in, out string
		sigma   float64
		want    error
	}{
		{"bad sigma before load", filepath.Join(dir, "missing.png"), filepath.Join(dir, "o.png"), 0.5, ErrInvalidParameter},
		{"missing input", filepath.Join(dir, "missing.png"), filepath.Join(dir, "o.png"), 1, ErrImageLoad},
		{"unwritable format", in, filepath.Join(dir, "o.gif"), 1, ErrImageSave},
		{"missing directory", in, filepath.Join(dir, "nope", "o.png"), 1, ErrImageSave},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := p.BlurFile(tt.in, tt.out, tt.sigma); !errors.Is(err, tt.want) {
				t.Errorf("BlurFile() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateSigma(t *testing.T) {
	if err := ValidateSigma(1); err != nil {
		t.Errorf("ValidateSigma(1) error = %v", err)
	}
	if err := ValidateSigma(100.5); err != nil {
		t.Errorf("ValidateSigma(100.5) error = %v", err)
	}
	if err := ValidateSigma(MaxSigma); err != nil {
		t.Errorf("ValidateSigma(MaxSigma) error = %v", err)
	}
	if err := ValidateSigma(1e19); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("ValidateSigma(1e19) error = %v, want ErrInvalidParameter", err)
	}
}

func BenchmarkRun(b *testing.B) {
	p := newTestPipeline(b)
	img, err := NewImage(256, 256, RGBA)
	if err != nil {
		b.Fatal(err)
	}
	for i := range img.Pix {
		img.Pix[i] = byte(i)
	}
	b.ReportAllocs()
	for b.Loop() {
		if _, err := p.Run(img, 3); err != nil {
			b.Fatal(err)
		}
	}
}
