//go:build !opencl

package cli

import (
	"fmt"

	"github.com/gogpu/blur/compute"
)

func openOpenCL() (compute.Device, error) {
	return nil, fmt.Errorf("%w: built without the opencl tag", compute.ErrNoDevice)
}
