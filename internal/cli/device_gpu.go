//go:build !nogpu

package cli

import (
	"github.com/gogpu/blur/compute"
	"github.com/gogpu/blur/compute/wgpu"
)

func openGPU() (compute.Device, error) {
	d, err := wgpu.New()
	if err != nil {
		return nil, err
	}
	return d, nil
}
