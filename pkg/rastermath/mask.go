package rastermath

import (
	"rastermath/pkg/raster"
)

// BlockClass is the mask classification of one block.
type BlockClass int

const (
	// BlockFull means every pixel participates; no per-pixel filtering.
	BlockFull BlockClass = iota
	// BlockPartial means some pixels are masked; Valid records which.
	BlockPartial
	// BlockSkip means every pixel is masked; the block is never read.
	BlockSkip
)

func (c BlockClass) String() string {
	switch c {
	case BlockFull:
		return "full"
	case BlockPartial:
		return "partial"
	case BlockSkip:
		return "skip"
	}
	return "unknown"
}

// ValidRange defines which mask values mark a pixel as participating:
// those within [Min, Max] inclusive.
type ValidRange struct {
	Min, Max float64
}

// Contains reports whether v falls in the range.
func (r ValidRange) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// MaskEntry is the classification of one block of the plan. Valid is set
// only for partial blocks and runs row-major over the block's window.
type MaskEntry struct {
	Class BlockClass
	Valid []bool
}

// MaskPlan holds one entry per block plan window, same order.
type MaskPlan []MaskEntry

// ValidCount returns the number of participating pixels for a window of n
// pixels under this entry.
func (e MaskEntry) ValidCount(n int) int {
	switch e.Class {
	case BlockFull:
		return n
	case BlockSkip:
		return 0
	}
	count := 0
	for _, ok := range e.Valid {
		if ok {
			count++
		}
	}
	return count
}

// allFullPlan is the mask plan used when no mask raster is attached.
func allFullPlan(blocks int) MaskPlan {
	plan := make(MaskPlan, blocks)
	for i := range plan {
		plan[i] = MaskEntry{Class: BlockFull}
	}
	return plan
}

// buildMaskPlan reads the mask raster window by window, aligned to the block
// plan, and classifies each block. The mask's first band is used. The caller
// has already verified the mask geometry against the inputs.
func buildMaskPlan(mask raster.Dataset, plan []Window, valid ValidRange) (MaskPlan, error) {
	out := make(MaskPlan, len(plan))
	var buf []float64
	for i, win := range plan {
		n := win.Pixels()
		if cap(buf) < n {
			buf = make([]float64, n)
		}
		if err := mask.Read(1, win.X, win.Y, win.Width, win.Height, buf[:n]); err != nil {
			return nil, &IOError{Op: "read mask", Block: i, Window: win, Err: err}
		}
		validCount := 0
		vec := make([]bool, n)
		for p, v := range buf[:n] {
			if valid.Contains(v) {
				vec[p] = true
				validCount++
			}
		}
		switch validCount {
		case n:
			out[i] = MaskEntry{Class: BlockFull}
		case 0:
			out[i] = MaskEntry{Class: BlockSkip}
		default:
			out[i] = MaskEntry{Class: BlockPartial, Valid: vec}
		}
	}
	return out, nil
}
