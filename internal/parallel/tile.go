// Package parallel provides work-group scheduling infrastructure for the
// compute devices that run on host goroutines.
//
// A 2D index space (one work-item per pixel) is divided into fixed-size
// work-groups. Each work-group is an independent task; a dispatch runs them
// on a WorkerPool and returns only when all are done.
//
//   - 16x16 work-groups by default, matching the GPU kernels
//   - Global size rounded up to a work-group multiple
//   - Groups claimed from a shared cursor so uneven edge groups balance out
//
// Thread safety: Grid is an immutable value. WorkerPool is safe for
// concurrent use.
package parallel

// Default work-group dimensions shared by every device.
const (
	// TileWidth is the default work-group width in work-items.
	TileWidth = 16

	// TileHeight is the default work-group height in work-items.
	TileHeight = 16
)

// WorkGroup is one tile of the index space.
//
// Edge groups may have fewer valid work-items than the group size when the
// image is not evenly divisible; work-items beyond the image are inactive.
type WorkGroup struct {
	// X is the group column index (0-based).
	X int

	// Y is the group row index (0-based).
	Y int

	// OriginX is the global X of the group's first work-item.
	OriginX int

	// OriginY is the global Y of the group's first work-item.
	OriginY int

	// Width is the number of active columns (<= group width).
	Width int

	// Height is the number of active rows (<= group height).
	Height int
}

// Grid partitions a width x height index space into work-groups.
type Grid struct {
	width, height int
	tileW, tileH  int
	groupsX       int
	groupsY       int
}

// NewGrid creates a grid for the given image size and work-group size.
// Non-positive tile dimensions fall back to TileWidth and TileHeight.
func NewGrid(width, height, tileW, tileH int) Grid {
	if tileW <= 0 {
		tileW = TileWidth
	}
	if tileH <= 0 {
		tileH = TileHeight
	}
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return Grid{
		width:   width,
		height:  height,
		tileW:   tileW,
		tileH:   tileH,
		groupsX: DivCeil(width, tileW),
		groupsY: DivCeil(height, tileH),
	}
}

// GroupsX returns the number of work-group columns.
func (g Grid) GroupsX() int { return g.groupsX }

// GroupsY returns the number of work-group rows.
func (g Grid) GroupsY() int { return g.groupsY }

// GroupCount returns the total number of work-groups.
func (g Grid) GroupCount() int { return g.groupsX * g.groupsY }

// TileSize returns the work-group dimensions.
func (g Grid) TileSize() (w, h int) { return g.tileW, g.tileH }

// GlobalSize returns the index space size rounded up to whole work-groups.
func (g Grid) GlobalSize() (w, h int) {
	return g.groupsX * g.tileW, g.groupsY * g.tileH
}

// Group returns the work-group at column gx, row gy.
func (g Grid) Group(gx, gy int) WorkGroup {
	ox := gx * g.tileW
	oy := gy * g.tileH
	return WorkGroup{
		X:       gx,
		Y:       gy,
		OriginX: ox,
		OriginY: oy,
		Width:   min(g.tileW, g.width-ox),
		Height:  min(g.tileH, g.height-oy),
	}
}

// Groups returns every work-group in row-major order.
func (g Grid) Groups() []WorkGroup {
	groups := make([]WorkGroup, 0, g.GroupCount())
	for gy := 0; gy < g.groupsY; gy++ {
		for gx := 0; gx < g.groupsX; gx++ {
			groups = append(groups, g.Group(gx, gy))
		}
	}
	return groups
}

// DivCeil returns ceil(n / d) for non-negative n and positive d.
func DivCeil(n, d int) int {
	return (n + d - 1) / d
}

// RoundUp returns n rounded up to a multiple of d.
func RoundUp(n, d int) int {
	return DivCeil(n, d) * d
}
