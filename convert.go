package blur

import (
	"github.com/gogpu/blur/compute"
	"github.com/gogpu/blur/internal/filter"
)

// ToWorkingBuffer widens img to interleaved RGBA float32 on the 0-255 scale.
// RGB pixels get alpha 255. img must be valid.
func ToWorkingBuffer(img *Image) compute.WorkingBuffer {
	n := img.Width * img.Height
	buf := compute.WorkingBuffer{
		Width:  img.Width,
		Height: img.Height,
		Pix:    make([]float32, n*compute.Components),
	}

	c := img.Mode.Channels()
	for i := range n {
		s := img.Pix[i*c : i*c+c]
		d := buf.Pix[i*compute.Components : i*compute.Components+compute.Components]
		d[0] = float32(s[0])
		d[1] = float32(s[1])
		d[2] = float32(s[2])
		if c == 4 {
			d[3] = float32(s[3])
		} else {
			d[3] = 255
		}
	}
	return buf
}

// ToImage narrows buf to 8-bit channels in the given mode. Each component is
// clamped to [0, 255] and truncated. Alpha is dropped for RGB.
func ToImage(buf compute.WorkingBuffer, mode ChannelMode) *Image {
	n := buf.Width * buf.Height
	c := mode.Channels()
	img := &Image{
		Width:  buf.Width,
		Height: buf.Height,
		Mode:   mode,
		Pix:    make([]byte, n*c),
	}

	for i := range n {
		s := buf.Pix[i*compute.Components : i*compute.Components+compute.Components]
		d := img.Pix[i*c : i*c+c]
		for ch := range c {
			d[ch] = filter.TruncateUint8(s[ch])
		}
	}
	return img
}
