// Package opencl runs the gaussian_blur kernel through OpenCL.
//
// The device code requires cgo and an OpenCL ICD loader and is compiled only
// with the opencl build tag:
//
//	go build -tags opencl ./...
//
// Kernel arguments follow the fixed order input, local scratch, width,
// height, weights, kernel size, axis flag, output. The scratch argument is
// sized 16*(tileW+kernelSize-1)*(tileH+kernelSize-1) bytes.
package opencl
