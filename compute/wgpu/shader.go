//go:build !nogpu

package wgpu

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"

	"github.com/gogpu/naga"

	"github.com/gogpu/blur/compute"
	"github.com/gogpu/blur/internal/parallel"
)

//go:embed shaders/gaussian_blur.wgsl
var gaussianBlurWGSL string

// DefaultSource returns the embedded WGSL template.
func DefaultSource() []byte { return []byte(gaussianBlurWGSL) }

// shaderParams are the template fields available to kernel sources.
type shaderParams struct {
	TileWidth  int
	TileHeight int
	Radius     int

	// HorizontalStride is the staging row length of the horizontal pass.
	HorizontalStride int

	// HorizontalStage and VerticalStage are the staged pixels per pass.
	HorizontalStage int
	VerticalStage   int

	// StageLen is the workgroup array length serving both passes.
	StageLen int

	// LoadOffsets are the per-invocation strides of the staging load.
	LoadOffsets []int

	// Taps are the kernel indices 0..KernelSize-1.
	Taps []int
}

func newShaderParams(opts compute.BuildOptions) shaderParams {
	tw, th, ks := opts.TileWidth, opts.TileHeight, opts.KernelSize
	halo := ks - 1
	p := shaderParams{
		TileWidth:        tw,
		TileHeight:       th,
		Radius:           halo / 2,
		HorizontalStride: tw + halo,
		HorizontalStage:  (tw + halo) * th,
		VerticalStage:    tw * (th + halo),
	}
	p.StageLen = max(p.HorizontalStage, p.VerticalStage)

	invocations := tw * th
	steps := parallel.DivCeil(p.StageLen, invocations)
	p.LoadOffsets = make([]int, steps)
	for i := range steps {
		p.LoadOffsets[i] = i * invocations
	}
	p.Taps = make([]int, ks)
	for i := range ks {
		p.Taps[i] = i
	}
	return p
}

// renderShader expands the kernel template for one kernel and tile size.
func renderShader(src []byte, opts compute.BuildOptions) (string, error) {
	tmpl, err := template.New(compute.EntryPoint).Option("missingkey=error").Parse(string(src))
	if err != nil {
		return "", fmt.Errorf("parse kernel template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, newShaderParams(opts)); err != nil {
		return "", fmt.Errorf("render kernel template: %w", err)
	}
	return buf.String(), nil
}

// compileSPIRV compiles WGSL to little-endian SPIR-V words.
func compileSPIRV(wgsl string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		return nil, err
	}

	spirvCode := make([]uint32, len(spirvBytes)/4)
	for i := range spirvCode {
		spirvCode[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return spirvCode, nil
}
