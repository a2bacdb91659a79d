package rastermath

import (
	"gonum.org/v1/gonum/mat"

	"rastermath/pkg/raster"
)

// blockReader assembles the pixel batch for one window: the corresponding
// window from every input raster, bands stacked into columns, filtered down
// to the rows the mask entry keeps.
type blockReader struct {
	inputs []raster.Dataset
	bands  int // stacked band count across all inputs

	// filterNoData additionally drops rows whose first stacked band equals
	// the input nodata value, matching the mask semantics of thematic maps
	// that encode nodata in the data raster itself.
	filterNoData bool
	nodata       float64
}

// read returns the batch (rows = kept pixels, columns = stacked bands) and
// the position of each row within the window, row-major. A nil position
// slice means the identity mapping: every window pixel kept, in order.
// Never called for skip blocks.
func (r *blockReader) read(blockIdx int, win Window, entry MaskEntry) (*mat.Dense, []int, error) {
	n := win.Pixels()
	planes := make([][]float64, r.bands)
	col := 0
	for _, ds := range r.inputs {
		for b := 1; b <= ds.Bands(); b++ {
			buf := make([]float64, n)
			if err := ds.Read(b, win.X, win.Y, win.Width, win.Height, buf); err != nil {
				return nil, nil, &IOError{Op: "read", Block: blockIdx, Window: win, Err: err}
			}
			planes[col] = buf
			col++
		}
	}

	if entry.Class == BlockFull && !r.filterNoData {
		batch := mat.NewDense(n, r.bands, nil)
		for c, plane := range planes {
			for p := 0; p < n; p++ {
				batch.Set(p, c, plane[p])
			}
		}
		return batch, nil, nil
	}

	positions := make([]int, 0, n)
	for p := 0; p < n; p++ {
		if entry.Class == BlockPartial && !entry.Valid[p] {
			continue
		}
		if r.filterNoData && planes[0][p] == r.nodata {
			continue
		}
		positions = append(positions, p)
	}
	if len(positions) == 0 {
		return nil, positions, nil
	}
	batch := mat.NewDense(len(positions), r.bands, nil)
	for c, plane := range planes {
		for row, p := range positions {
			batch.Set(row, c, plane[p])
		}
	}
	return batch, positions, nil
}
