// Command gblur applies a Gaussian blur to an image file.
//
// Usage:
//
//	gblur -in photo.tga -out blurred.png -sigma 3
//
// Missing -in, -out or -sigma values are prompted for on standard input.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gogpu/blur"
	"github.com/gogpu/blur/internal/cli"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stdout, "gblur: %v\n", err)
		}
		os.Exit(1)
	}
}

type config struct {
	in, out string
	sigma   float64
	device  string
	kernel  string
	workers int
	tile    int
	verbose bool

	// sigmaSet is true when -sigma was given, even as 0.
	sigmaSet bool
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var cfg config
	fs := flag.NewFlagSet("gblur", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.in, "in", "", "input image path")
	fs.StringVar(&cfg.out, "out", "", "output image path (format from extension)")
	fs.Float64Var(&cfg.sigma, "sigma", 0, "Gaussian standard deviation (>= 1)")
	fs.StringVar(&cfg.device, "device", cli.DeviceAuto, "compute device: "+strings.Join(cli.DeviceKinds, ", "))
	fs.StringVar(&cfg.kernel, "kernel", "", "kernel source file overriding the embedded kernel")
	fs.IntVar(&cfg.workers, "workers", 0, "cpu device worker count (0 = GOMAXPROCS)")
	fs.IntVar(&cfg.tile, "tile", 0, "square work-group size (0 = 16)")
	fs.BoolVar(&cfg.verbose, "v", false, "verbose logging on stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "sigma" {
			cfg.sigmaSet = true
		}
	})

	if err := prompt(&cfg, stdin, stdout); err != nil {
		return err
	}
	if err := blur.ValidateSigma(cfg.sigma); err != nil {
		return fmt.Errorf("parse sigma: %w", err)
	}

	log := cli.NewLogger(stderr, cfg.verbose)
	blur.SetLogger(log)

	src, err := cli.LoadKernel(cfg.kernel)
	if err != nil {
		return err
	}

	dev, err := cli.OpenDevice(cfg.device, cfg.workers, log)
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	defer dev.Close()

	opts := []blur.Option{blur.WithTileSize(cfg.tile, cfg.tile)}
	if src != nil {
		opts = append(opts, blur.WithKernelSource(src))
	}
	p := blur.New(dev, opts...)

	img, err := blur.Load(cfg.in)
	if err != nil {
		return err
	}
	res, stats, err := p.RunStats(img, cfg.sigma)
	if err != nil {
		return fmt.Errorf("blur on %s: %w", dev.Name(), err)
	}
	if err := blur.Save(res, cfg.out); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Blurred %s (%dx%d %s) with sigma %g on %s in %v -> %s\n",
		cfg.in, img.Width, img.Height, img.Mode, cfg.sigma, dev.Name(), stats.Total(), cfg.out)
	return nil
}

// prompt fills empty paths and an unset sigma from stdin.
func prompt(cfg *config, stdin io.Reader, stdout io.Writer) error {
	if cfg.in != "" && cfg.out != "" && cfg.sigmaSet {
		return nil
	}
	sc := bufio.NewScanner(stdin)
	ask := func(label string) (string, error) {
		fmt.Fprintf(stdout, "%s: ", label)
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", fmt.Errorf("read %s: %w", label, err)
			}
			return "", fmt.Errorf("read %s: %w", label, io.ErrUnexpectedEOF)
		}
		return strings.TrimSpace(sc.Text()), nil
	}

	var err error
	if cfg.in == "" {
		if cfg.in, err = ask("Input image"); err != nil {
			return err
		}
	}
	if cfg.out == "" {
		if cfg.out, err = ask("Output image"); err != nil {
			return err
		}
	}
	if !cfg.sigmaSet {
		s, err := ask("Sigma")
		if err != nil {
			return err
		}
		if cfg.sigma, err = strconv.ParseFloat(s, 64); err != nil {
			return fmt.Errorf("parse sigma: %w", err)
		}
	}
	return nil
}
