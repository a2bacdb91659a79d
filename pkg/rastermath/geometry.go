package rastermath

const (
	// DefaultBlockSize is the square block used when neither the caller nor
	// the memory budget pins a size and the native tiling is smaller.
	DefaultBlockSize = 256

	// MinBlockSize is the hard floor for the memory-derived block size.
	MinBlockSize = 32
)

// Window is one rectangular unit of work within a raster.
type Window struct {
	X, Y          int
	Width, Height int
}

// Pixels returns the number of pixels covered by the window.
func (w Window) Pixels() int { return w.Width * w.Height }

// PlanBlocks tiles a width x height extent into row-major windows of at most
// blockW x blockH pixels, clipping the final column and row. The windows
// partition the extent exactly: no gaps, no overlap.
func PlanBlocks(width, height, blockW, blockH int) ([]Window, error) {
	if width <= 0 || height <= 0 {
		return nil, configErrorf("invalid raster dimensions %dx%d", width, height)
	}
	if blockW <= 0 || blockH <= 0 {
		return nil, configErrorf("invalid block size %dx%d", blockW, blockH)
	}
	cols := (width + blockW - 1) / blockW
	rows := (height + blockH - 1) / blockH
	plan := make([]Window, 0, cols*rows)
	for y := 0; y < height; y += blockH {
		h := min(blockH, height-y)
		for x := 0; x < width; x += blockW {
			plan = append(plan, Window{X: x, Y: y, Width: min(blockW, width-x), Height: h})
		}
	}
	return plan, nil
}
