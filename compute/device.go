package compute

// EntryPoint is the kernel function every device dispatches.
const EntryPoint = "gaussian_blur"

// Axis selects the direction of a 1D convolution pass. The values match
// the kernel's axis flag argument.
type Axis uint32

const (
	// AxisVertical convolves along columns.
	AxisVertical Axis = 0

	// AxisHorizontal convolves along rows.
	AxisHorizontal Axis = 1
)

func (a Axis) String() string {
	switch a {
	case AxisVertical:
		return "vertical"
	case AxisHorizontal:
		return "horizontal"
	default:
		return "unknown"
	}
}

// Limits describes the dispatch capabilities of a device.
// Zero fields are treated as unlimited.
type Limits struct {
	// MaxGlobalSize is the largest index-space extent per dimension (x, y).
	MaxGlobalSize [2]int

	// MaxWorkGroups is the largest number of work-groups per dimension.
	MaxWorkGroups [2]int

	// MaxLocalSize is the largest work-group size per dimension.
	MaxLocalSize [2]int

	// MaxWorkGroupInvocations bounds the work-items in one work-group.
	MaxWorkGroupInvocations int

	// MaxLocalMemory is the tile-local staging memory in bytes.
	MaxLocalMemory int

	// MaxBufferSize is the largest single buffer in bytes.
	MaxBufferSize int64
}

// Buffer is device memory holding float32 values.
type Buffer interface {
	// Len returns the buffer capacity in float32 elements.
	Len() int

	// Release frees the device memory. Release is idempotent.
	Release()
}

// BuildOptions configures program compilation.
type BuildOptions struct {
	// Source overrides the device's embedded kernel source when non-empty.
	Source []byte

	// KernelSize is the number of taps the program must support.
	KernelSize int

	// TileWidth and TileHeight are the work-group dimensions.
	TileWidth  int
	TileHeight int
}

// DispatchArgs are the ordered parameters of one gaussian_blur dispatch.
type DispatchArgs struct {
	Input   Buffer
	Output  Buffer
	Weights Buffer

	Width      int
	Height     int
	KernelSize int
	Axis       Axis
}

// Program is a compiled gaussian_blur kernel.
type Program interface {
	// Dispatch runs one pass over a Width x Height index space rounded up
	// to whole work-groups. It returns after the device has finished, so
	// a following Dispatch observes the complete output.
	Dispatch(args DispatchArgs) error

	// Release frees the program. Release is idempotent.
	Release()
}

// Device is an explicitly passed compute context.
//
// Implementations must allow Build, NewBuffer, Write, Read and Dispatch
// from one goroutine at a time per run; independent runs may share a
// device when the implementation documents it as safe for concurrent use.
type Device interface {
	// Name identifies the device for diagnostics.
	Name() string

	// Limits reports the device's dispatch limits.
	Limits() Limits

	// Build compiles the kernel for the given kernel and tile size.
	Build(opts BuildOptions) (Program, error)

	// NewBuffer allocates a buffer of n float32 elements.
	NewBuffer(label string, n int) (Buffer, error)

	// Write copies src into dst starting at element 0.
	Write(dst Buffer, src []float32) error

	// Read copies src into dst starting at element 0.
	Read(dst []float32, src Buffer) error

	// Close releases the device.
	Close() error
}

// StagingBytes returns the tile-local memory one work-group needs: the tile
// plus a halo of (kernelSize-1)/2 pixels on both sides of the pass axis,
// four float32 components per pixel. The larger of the two pass layouts is
// returned so one allocation serves both passes.
func StagingBytes(tileW, tileH, kernelSize int) int {
	halo := kernelSize - 1
	return 16 * max((tileW+halo)*tileH, tileW*(tileH+halo))
}

// ScratchBytes returns the local scratch size of the OpenCL argument
// contract, 4*4*(tileW+kernelSize-1)*(tileH+kernelSize-1) bytes.
func ScratchBytes(tileW, tileH, kernelSize int) int {
	return 16 * (tileW + kernelSize - 1) * (tileH + kernelSize - 1)
}
