package filter

import (
	"math"

	"github.com/gogpu/blur/internal/cache"
)

// GaussianKernel generates a 1D Gaussian kernel for the given sigma.
// The kernel is normalized so all values sum to 1.0.
//
// The kernel size is 2 * ceil(sigma) + 1 and the center tap sits at index
// ceil(sigma). Each tap is G(x) = exp(-x²/(2σ²)) / (σ√(2π)) before
// normalization.
//
// Sigma values below 1 must be rejected by the caller; for sigma <= 0 the
// identity kernel [1.0] is returned.
func GaussianKernel(sigma float64) []float32 {
	if sigma <= 0 || math.IsNaN(sigma) {
		return []float32{1.0}
	}

	halfSize := KernelRadius(sigma)
	size := halfSize*2 + 1

	weights := make([]float64, size)
	twoSigmaSq := 2 * sigma * sigma
	norm := 1 / (sigma * math.Sqrt(2*math.Pi))
	sum := float64(0)

	for i := 0; i < size; i++ {
		x := float64(i - halfSize)
		w := math.Exp(-(x*x)/twoSigmaSq) * norm
		weights[i] = w
		sum += w
	}

	kernel := make([]float32, size)
	var narrowed float64
	for i, w := range weights {
		kernel[i] = float32(w / sum)
		narrowed += float64(kernel[i])
	}

	// Fold the float32 rounding residual into the center tap.
	kernel[halfSize] += float32(1 - narrowed)

	return kernel
}

// MaxSigma is the largest sigma whose kernel size, 2 * ceil(sigma) + 1,
// fits in an int32 kernel argument.
const MaxSigma = math.MaxInt32 / 2

// KernelRadius returns the number of taps on each side of the center,
// ceil(sigma). Sigma above MaxSigma saturates at MaxSigma.
func KernelRadius(sigma float64) int {
	if sigma <= 0 || math.IsNaN(sigma) {
		return 0
	}
	if sigma > MaxSigma {
		return MaxSigma
	}
	return int(math.Ceil(sigma))
}

// KernelSize returns the kernel length for sigma, 2 * ceil(sigma) + 1.
// This is useful for pre-allocating buffers and checking device limits
// before any weights are computed.
func KernelSize(sigma float64) int {
	return KernelRadius(sigma)*2 + 1
}

// KernelCenter returns the center index of a kernel of the given size.
func KernelCenter(kernelSize int) int {
	return kernelSize / 2
}

// kernelCache caches computed Gaussian kernels keyed by the exact bit
// pattern of sigma, so 1.0 and 1.0000001 are distinct entries.
type kernelCache struct {
	entries *cache.Cache[uint64, []float32]
}

var defaultKernelCache = newKernelCache(64)

func newKernelCache(maxLen int) *kernelCache {
	return &kernelCache{entries: cache.New[uint64, []float32](maxLen)}
}

// get retrieves a kernel from cache or generates and caches it.
func (c *kernelCache) get(sigma float64) []float32 {
	return c.entries.GetOrCreate(math.Float64bits(sigma), func() []float32 {
		return GaussianKernel(sigma)
	})
}

// len returns the number of cached kernels.
func (c *kernelCache) len() int { return c.entries.Len() }

// KernelCacheStats reports the shared kernel cache counters.
func KernelCacheStats() cache.Stats { return defaultKernelCache.entries.Stats() }

// CachedGaussianKernel returns a cached Gaussian kernel for sigma.
// This is more efficient when the same sigma is used repeatedly.
// The returned slice is shared and must not be modified.
func CachedGaussianKernel(sigma float64) []float32 {
	return defaultKernelCache.get(sigma)
}
