//go:build opencl

package cli

import (
	"github.com/gogpu/blur/compute"
	"github.com/gogpu/blur/compute/opencl"
)

func openOpenCL() (compute.Device, error) {
	d, err := opencl.New()
	if err != nil {
		return nil, err
	}
	return d, nil
}
