// Package cli holds the device selection and logging setup shared by the
// gblur and gblurd commands.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/gogpu/blur/compute"
)

// Device kinds accepted by OpenDevice.
const (
	DeviceAuto   = "auto"
	DeviceCPU    = "cpu"
	DeviceGPU    = "gpu"
	DeviceOpenCL = "opencl"
)

// DeviceKinds lists the accepted -device values.
var DeviceKinds = []string{DeviceAuto, DeviceCPU, DeviceGPU, DeviceOpenCL}

// ErrUnknownDevice is returned for an unrecognized device kind.
var ErrUnknownDevice = errors.New("cli: unknown device")

// OpenDevice opens a device of the given kind. "auto" tries the GPU and
// falls back to the CPU when no adapter is available. workers applies to
// the CPU device only.
func OpenDevice(kind string, workers int, log *slog.Logger) (compute.Device, error) {
	switch strings.ToLower(kind) {
	case DeviceCPU:
		return compute.NewCPUDevice(compute.WithWorkers(workers)), nil
	case DeviceGPU:
		return openGPU()
	case DeviceOpenCL:
		return openOpenCL()
	case DeviceAuto, "":
		dev, err := openGPU()
		if err == nil {
			return dev, nil
		}
		log.Warn("gpu unavailable, using cpu", "err", err)
		return compute.NewCPUDevice(compute.WithWorkers(workers)), nil
	default:
		return nil, fmt.Errorf("%w %q (want one of %s)", ErrUnknownDevice, kind, strings.Join(DeviceKinds, ", "))
	}
}

// LoadKernel reads a kernel source override. An empty path returns nil so
// the device uses its embedded source.
func LoadKernel(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read kernel source: %w", err)
	}
	return src, nil
}

// NewLogger returns a text logger on w at Debug when verbose, Warn otherwise.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
