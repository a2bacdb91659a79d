package rastermath

import (
	"gonum.org/v1/gonum/mat"

	"rastermath/pkg/raster"
)

// OutputSpec declares the shape of one output raster. Every block result for
// that output must have exactly Bands columns; mismatches fail the run.
type OutputSpec struct {
	Bands    int
	DataType raster.DataType
	NoData   float64
}

// DefaultFlushInterval is the number of block writes between explicit
// flushes of the output rasters.
const DefaultFlushInterval = 16

// blockWriter scatters block results back into their windows and writes them
// to the output rasters. Writes are issued only from the controlling
// goroutine; each block owns a disjoint window, so completion order does not
// matter.
type blockWriter struct {
	flushEvery int
	written    int
}

// writeBlock scatters one result into its window. positions maps result rows
// to offsets within the window; nil means the identity mapping. Pixels with
// no result row are filled with the spec's nodata value.
func (w *blockWriter) writeBlock(out raster.Dataset, spec OutputSpec, blockIdx int, win Window, positions []int, res *mat.Dense) error {
	n := win.Pixels()
	buf := make([]float64, n)
	for b := 0; b < spec.Bands; b++ {
		for i := range buf {
			buf[i] = spec.NoData
		}
		if res != nil {
			rows, _ := res.Dims()
			if positions == nil {
				for p := 0; p < rows; p++ {
					buf[p] = res.At(p, b)
				}
			} else {
				for r, p := range positions {
					buf[p] = res.At(r, b)
				}
			}
		}
		if err := out.Write(b+1, win.X, win.Y, win.Width, win.Height, buf); err != nil {
			return &IOError{Op: "write", Block: blockIdx, Window: win, Err: err}
		}
	}

	w.written++
	if w.flushEvery > 0 && w.written%w.flushEvery == 0 {
		if err := out.Flush(); err != nil {
			return &IOError{Op: "flush", Block: blockIdx, Window: win, Err: err}
		}
	}
	return nil
}
