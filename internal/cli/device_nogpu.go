//go:build nogpu

package cli

import (
	"fmt"

	"github.com/gogpu/blur/compute"
)

func openGPU() (compute.Device, error) {
	return nil, fmt.Errorf("%w: built with nogpu", compute.ErrNoDevice)
}
