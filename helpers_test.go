package blur

import (
	"testing"

	"github.com/gogpu/blur/compute"
)

// newTestPipeline returns a pipeline on a small CPU device closed at cleanup.
func newTestPipeline(t testing.TB, opts ...Option) *Pipeline {
	t.Helper()
	dev := compute.NewCPUDevice(compute.WithWorkers(2))
	t.Cleanup(func() { _ = dev.Close() })
	return New(dev, opts...)
}

// solidImage returns an image with every pixel set to px.
func solidImage(t testing.TB, w, h int, mode ChannelMode, px ...byte) *Image {
	t.Helper()
	img, err := NewImage(w, h, mode)
	if err != nil {
		t.Fatalf("NewImage(%d, %d, %v) error = %v", w, h, mode, err)
	}
	for i := 0; i < len(img.Pix); i += len(px) {
		copy(img.Pix[i:], px)
	}
	return img
}

// rgbaAt returns the channels of the pixel at (x, y).
func rgbaAt(img *Image, x, y int) []byte {
	c := img.Mode.Channels()
	i := (y*img.Width + x) * c
	return img.Pix[i : i+c]
}
