// Package compute runs the two-pass separable convolution on a
// data-parallel device.
//
// A [Device] exposes the small runtime surface the blur needs: buffer
// allocation, host/device transfers, program compilation from kernel source
// and dispatch of the gaussian_blur entry point over a 2D index space of
// 16x16 work-groups. Three devices implement it:
//
//   - [CPUDevice]: work-groups run as goroutine tasks with pooled staging
//     slices; always available
//   - compute/wgpu: Pure Go WebGPU (Vulkan) with a WGSL kernel
//   - compute/opencl: OpenCL through cgo, built with the opencl tag
//
// [Engine] owns one blur run: it checks the image against [Limits],
// allocates input, intermediate, output and weight buffers, dispatches the
// horizontal pass then the vertical pass (the intermediate never leaves the
// device) and reads the result back. Every buffer is released on every
// return path.
//
// Errors are matchable with errors.Is against the sentinels in this
// package. Compilation failures are reported as [*BuildError] carrying the
// device build log.
package compute
