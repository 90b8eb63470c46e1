package compute

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every device.
var (
	// ErrInvalidParameter is returned for malformed arguments such as an
	// even-length kernel or a buffer whose length does not match its shape.
	ErrInvalidParameter = errors.New("compute: invalid parameter")

	// ErrNoDevice is returned when no platform or adapter is available.
	ErrNoDevice = errors.New("compute: no device available")

	// ErrUnsupportedImageSize is returned when the image exceeds the
	// device's index-space, work-group count or buffer size limits.
	ErrUnsupportedImageSize = errors.New("compute: image size exceeds device limits")

	// ErrDevice wraps any failing call into the device runtime.
	ErrDevice = errors.New("compute: device error")

	// ErrKernelBuild is matched by every *BuildError.
	ErrKernelBuild = errors.New("compute: kernel build failed")

	// ErrResourceExhaustion is returned when host memory or device-local
	// staging memory cannot hold the requested allocation.
	ErrResourceExhaustion = errors.New("compute: resource exhausted")

	// ErrClosed is returned when a closed device is used.
	ErrClosed = errors.New("compute: device closed")
)

// BuildError reports a kernel compilation failure with the device log.
type BuildError struct {
	// Device is the name of the device that rejected the source.
	Device string

	// Log is the compiler output, possibly multi-line.
	Log string

	// Err is the underlying runtime error, if any.
	Err error
}

func (e *BuildError) Error() string {
	msg := "compute: kernel build failed"
	if e.Device != "" {
		msg += " on " + e.Device
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Log != "" {
		msg += "\n" + e.Log
	}
	return msg
}

// Unwrap lets errors.Is match both ErrKernelBuild and the runtime cause.
func (e *BuildError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrKernelBuild}
	}
	return []error{ErrKernelBuild, e.Err}
}

// DeviceError wraps err as ErrDevice, naming the failing operation.
// A nil err yields nil.
func DeviceError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrDevice, op, err)
}
