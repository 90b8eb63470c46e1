// Package blur applies a separable Gaussian blur to raster images on a
// data-parallel compute device.
//
// # Overview
//
// A blur run synthesizes a normalized 1D Gaussian kernel from sigma, converts
// the image to an interleaved RGBA float32 working buffer, convolves it
// horizontally and then vertically on a [compute.Device], and converts the
// result back to the input's channel layout. Dimensions and channel mode are
// preserved.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/blur"
//	    "github.com/gogpu/blur/compute"
//	)
//
//	dev := compute.NewCPUDevice()
//	defer dev.Close()
//
//	p := blur.New(dev)
//	if err := p.BlurFile("in.tga", "out.tga", 3.0); err != nil {
//	    log.Fatal(err)
//	}
//
// # Devices
//
// Every device implements [compute.Device]:
//   - [compute.CPUDevice]: work-groups on a goroutine pool, always available
//   - compute/wgpu: Pure Go WebGPU (Vulkan) with a WGSL kernel
//   - compute/opencl: OpenCL, built with the opencl tag
//
// The device is an explicit value. Independent pipelines may run in parallel
// on separate images; a device documents whether it may be shared.
//
// # Edge Policy
//
// Neighbor reads outside the image are clamped to the nearest border pixel,
// so a uniform image stays uniform and no read leaves the image.
//
// # Errors
//
// Failures are reported through sentinel errors matched with errors.Is:
// [ErrInvalidParameter], [ErrInvalidImage], [ErrImageLoad], [ErrImageSave],
// [ErrNoDevice], [ErrUnsupportedImageSize], [ErrDevice], [ErrKernelBuild]
// and [ErrResourceExhaustion].
package blur

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"
)
