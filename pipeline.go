package blur

import (
	"fmt"
	"math"

	"github.com/gogpu/blur/compute"
	"github.com/gogpu/blur/internal/filter"
)

// Accepted standard deviations. MaxSigma keeps the kernel size within an
// int32.
const (
	MinSigma = 1.0
	MaxSigma = filter.MaxSigma
)

// hostBuffers is the number of full-size working buffers a run holds on the
// host at once: the converted input and the downloaded result.
const hostBuffers = 2

// Pipeline blurs images on one device.
//
// A Pipeline holds no per-run state. It is safe for concurrent use when its
// device is.
type Pipeline struct {
	engine     *compute.Engine
	hostBudget int64
}

// New creates a pipeline bound to dev. The caller keeps ownership of dev and
// closes it after the last run.
func New(dev compute.Device, opts ...Option) *Pipeline {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	propagateLogger(dev, Logger())
	return &Pipeline{
		engine:     compute.NewEngine(dev, o.engine...),
		hostBudget: o.hostBudget,
	}
}

// Device returns the pipeline's device.
func (p *Pipeline) Device() compute.Device { return p.engine.Device() }

// Run blurs img with a Gaussian of the given sigma and returns a new image of
// the same dimensions and channel mode. img is not modified.
func (p *Pipeline) Run(img *Image, sigma float64) (*Image, error) {
	out, _, err := p.RunStats(img, sigma)
	return out, err
}

// RunStats is Run that also reports device stage timings.
func (p *Pipeline) RunStats(img *Image, sigma float64) (*Image, compute.PassStats, error) {
	if err := ValidateSigma(sigma); err != nil {
		return nil, compute.PassStats{}, err
	}
	if err := img.Validate(); err != nil {
		return nil, compute.PassStats{}, err
	}
	if err := p.checkHostBudget(img.Width, img.Height); err != nil {
		return nil, compute.PassStats{}, err
	}
	// Reject sizes the device cannot run before allocating the kernel.
	if err := p.engine.CheckSize(img.Width, img.Height, filter.KernelSize(sigma)); err != nil {
		return nil, compute.PassStats{}, err
	}

	kernel := filter.CachedGaussianKernel(sigma)
	buf := ToWorkingBuffer(img)

	out, stats, err := p.engine.RunSeparableBlurStats(buf, kernel)
	if err != nil {
		return nil, stats, err
	}

	Logger().Info("blur: run complete",
		"device", p.engine.Device().Name(),
		"width", img.Width, "height", img.Height, "mode", img.Mode,
		"sigma", sigma, "kernel_size", len(kernel),
		"elapsed", stats.Total())

	return ToImage(out, img.Mode), stats, nil
}

// BlurFile loads in, blurs it and writes the result to out. The output
// format follows the extension of out.
func (p *Pipeline) BlurFile(in, out string, sigma float64) error {
	if err := ValidateSigma(sigma); err != nil {
		return err
	}
	img, err := Load(in)
	if err != nil {
		return err
	}
	res, err := p.Run(img, sigma)
	if err != nil {
		return err
	}
	return Save(res, out)
}

// ValidateSigma rejects NaN and sigma outside [MinSigma, MaxSigma].
func ValidateSigma(sigma float64) error {
	if math.IsNaN(sigma) || sigma < MinSigma || sigma > MaxSigma {
		return fmt.Errorf("%w: sigma %v must be in [%v, %d]", ErrInvalidParameter, sigma, MinSigma, MaxSigma)
	}
	return nil
}

func (p *Pipeline) checkHostBudget(width, height int) error {
	n, err := compute.ElementCount(width, height)
	if err != nil {
		return err
	}
	if int64(n) > math.MaxInt64/4/hostBuffers {
		return fmt.Errorf("%w: %dx%d working buffers overflow", ErrResourceExhaustion, width, height)
	}
	need := int64(n) * 4 * hostBuffers
	if p.hostBudget > 0 && need > p.hostBudget {
		return fmt.Errorf("%w: %dx%d needs %d bytes of host memory, budget is %d",
			ErrResourceExhaustion, width, height, need, p.hostBudget)
	}
	return nil
}
