package filter

import "sync"

// Channels is the number of interleaved float components per pixel in a
// working buffer (R, G, B, A).
const Channels = 4

// SeparableBlur applies a two-pass separable convolution to an interleaved
// RGBA float buffer and returns a new buffer of the same shape.
// The separable algorithm processes horizontal and vertical passes
// independently, achieving O(w*h*k) complexity instead of O(w*h*k*k).
//
// Neighbors outside the image are clamped to the nearest edge pixel.
// SeparableBlur runs sequentially on the calling goroutine; it is the
// host reference that tiled devices are checked against.
func SeparableBlur(src []float32, width, height int, kernel []float32) []float32 {
	size := width * height * Channels
	if width <= 0 || height <= 0 || len(src) < size || len(kernel) == 0 {
		return nil
	}

	temp := getTempBuffer(width, height)
	defer putTempBuffer(temp)

	dst := make([]float32, size)

	// Pass 1: Horizontal blur (src -> temp)
	blurHorizontal(src, temp, width, height, kernel)

	// Pass 2: Vertical blur (temp -> dst)
	blurVertical(temp, dst, width, height, kernel)

	return dst
}

// blurHorizontal applies 1D horizontal convolution.
func blurHorizontal(src, dst []float32, width, height int, kernel []float32) {
	kernelSize := len(kernel)
	halfKernel := kernelSize / 2

	for y := 0; y < height; y++ {
		row := y * width
		for x := 0; x < width; x++ {
			var r, g, b, a float64

			for k := 0; k < kernelSize; k++ {
				// Clamp to source bounds (edge extension)
				kx := ClampInt(x+k-halfKernel, 0, width-1)

				srcIdx := (row + kx) * Channels
				weight := float64(kernel[k])

				r += float64(src[srcIdx+0]) * weight
				g += float64(src[srcIdx+1]) * weight
				b += float64(src[srcIdx+2]) * weight
				a += float64(src[srcIdx+3]) * weight
			}

			dstIdx := (row + x) * Channels
			dst[dstIdx+0] = float32(r)
			dst[dstIdx+1] = float32(g)
			dst[dstIdx+2] = float32(b)
			dst[dstIdx+3] = float32(a)
		}
	}
}

// blurVertical applies 1D vertical convolution.
func blurVertical(src, dst []float32, width, height int, kernel []float32) {
	kernelSize := len(kernel)
	halfKernel := kernelSize / 2

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var r, g, b, a float64

			for k := 0; k < kernelSize; k++ {
				ky := ClampInt(y+k-halfKernel, 0, height-1)

				srcIdx := (ky*width + x) * Channels
				weight := float64(kernel[k])

				r += float64(src[srcIdx+0]) * weight
				g += float64(src[srcIdx+1]) * weight
				b += float64(src[srcIdx+2]) * weight
				a += float64(src[srcIdx+3]) * weight
			}

			dstIdx := (y*width + x) * Channels
			dst[dstIdx+0] = float32(r)
			dst[dstIdx+1] = float32(g)
			dst[dstIdx+2] = float32(b)
			dst[dstIdx+3] = float32(a)
		}
	}
}

// floatBuffer wraps a slice for sync.Pool to avoid allocation warnings.
type floatBuffer struct {
	data []float32
}

// Temporary buffer pool for blur operations.
var tempBufferPool = sync.Pool{
	New: func() interface{} {
		return &floatBuffer{data: make([]float32, 256*256*Channels)}
	},
}

// getTempBuffer retrieves a temporary buffer from the pool.
// The buffer is guaranteed to have exactly width*height*4 elements.
func getTempBuffer(width, height int) []float32 {
	size := width * height * Channels
	wrapper := tempBufferPool.Get().(*floatBuffer)

	if len(wrapper.data) < size {
		// Need larger buffer - return old one and allocate new
		tempBufferPool.Put(wrapper)
		return make([]float32, size)
	}

	return wrapper.data[:size]
}

// putTempBuffer returns a temporary buffer to the pool.
func putTempBuffer(buf []float32) {
	// Only pool reasonably-sized buffers
	if cap(buf) <= 16*1024*1024 {
		tempBufferPool.Put(&floatBuffer{data: buf[:cap(buf)]})
	}
}

// ClampInt clamps an integer to [minVal, maxVal].
func ClampInt(v, minVal, maxVal int) int {
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}

// truncEpsilon absorbs float accumulation error just below an integer so
// that a value like 199.99998 truncates to 200.
const truncEpsilon = 1e-3

// TruncateUint8 clamps a float32 to [0, 255] and truncates it to uint8.
func TruncateUint8(v float32) uint8 {
	if v != v || v <= 0 { // NaN or negative
		return 0
	}
	v += truncEpsilon
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
