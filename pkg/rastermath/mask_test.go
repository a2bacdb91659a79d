package rastermath

import (
	"testing"

	"rastermath/pkg/raster"
)

// countingDataset wraps a Dataset and counts Read calls, to prove skip
// blocks never touch the data rasters.
type countingDataset struct {
	raster.Dataset
	reads int
}

func (c *countingDataset) Read(band, x, y, w, h int, dst []float64) error {
	c.reads++
	return c.Dataset.Read(band, x, y, w, h, dst)
}

// TestNoMaskAllFull verifies every block is classified full without a mask
// and batches carry every window pixel
func TestNoMaskAllFull(t *testing.T) {
	in := newTestInput(t, 100, 100, 1)
	rm, err := New(Params{Workers: 1, BlockSize: 32}, in)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := rm.Plan(); err != nil {
		t.Fatalf("Plan: %v", err)
	}

	for i := range rm.plan {
		if rm.maskPlan[i].Class != BlockFull {
			t.Fatalf("block %d classified %v, want full", i, rm.maskPlan[i].Class)
		}
		blk, err := rm.GetBlock(i)
		if err != nil {
			t.Fatalf("GetBlock(%d): %v", i, err)
		}
		rows, _ := blk.Batch.Dims()
		if rows != blk.Window.Pixels() {
			t.Errorf("block %d batch has %d rows, window has %d pixels", i, rows, blk.Window.Pixels())
		}
		if blk.Positions != nil {
			t.Errorf("block %d: full block should use the identity position index", i)
		}
	}
}

// TestMaskClassification verifies skip/partial/full classification and the
// validity vector
func TestMaskClassification(t *testing.T) {
	// 64x64 raster in four 32x32 blocks; mask block 0 fully invalid,
	// block 1 half valid, blocks 2 and 3 fully valid.
	in := newTestInput(t, 64, 64, 1)
	mask := newMask(t, 64, 64, func(x, y int) float64 {
		switch {
		case x < 32 && y < 32:
			return 0 // block 0: all invalid
		case x >= 32 && y < 32 && x < 48:
			return 0 // block 1: left half invalid
		default:
			return 1
		}
	})

	rm, err := New(Params{Workers: 1, BlockSize: 32}, in)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := rm.SetMask(mask, ValidRange{Min: 1, Max: 255}); err != nil {
		t.Fatalf("SetMask: %v", err)
	}
	if err := rm.Plan(); err != nil {
		t.Fatalf("Plan: %v", err)
	}

	wantClass := []BlockClass{BlockSkip, BlockPartial, BlockFull, BlockFull}
	for i, want := range wantClass {
		if got := rm.maskPlan[i].Class; got != want {
			t.Errorf("block %d classified %v, want %v", i, got, want)
		}
	}

	// Partial block: 16 of 32 columns valid per row.
	entry := rm.maskPlan[1]
	if got := entry.ValidCount(32 * 32); got != 16*32 {
		t.Errorf("partial block has %d valid pixels, want %d", got, 16*32)
	}
}

// TestSkipBlockNeverRead verifies fully-masked blocks trigger no data reads
func TestSkipBlockNeverRead(t *testing.T) {
	base := newTestInput(t, 64, 64, 1)
	counting := &countingDataset{Dataset: base}
	mask := newMask(t, 64, 64, func(x, y int) float64 {
		if y < 32 {
			return 0 // top two blocks entirely invalid
		}
		return 1
	})

	rm, err := New(Params{Workers: 1, BlockSize: 32}, counting)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := rm.SetMask(mask, ValidRange{Min: 1, Max: 255}); err != nil {
		t.Fatalf("SetMask: %v", err)
	}
	if err := rm.Plan(); err != nil {
		t.Fatalf("Plan: %v", err)
	}

	counting.reads = 0
	out := newOutput(t, 64, 64, 1)
	if err := rm.AddFunction(identityFunc, out, specFor(out)); err == nil {
		t.Fatal("AddFunction after Plan should fail")
	}

	// Iterate: only the two bottom blocks surface.
	seen := 0
	for rm.HasNext() {
		blk, err := rm.NextBlock()
		if err != nil {
			t.Fatalf("NextBlock: %v", err)
		}
		if blk.Window.Y < 32 {
			t.Errorf("skip block %d surfaced by iterator", blk.Index)
		}
		seen++
	}
	if seen != 2 {
		t.Errorf("iterator yielded %d blocks, want 2", seen)
	}
	// Two blocks, one band each: exactly two data reads.
	if counting.reads != 2 {
		t.Errorf("data raster saw %d reads, want 2", counting.reads)
	}

	// GetBlock on a skip block returns the classification without reading.
	before := counting.reads
	blk, err := rm.GetBlock(0)
	if err != nil {
		t.Fatalf("GetBlock(0): %v", err)
	}
	if blk.Class != BlockSkip || blk.Batch != nil {
		t.Errorf("skip block came back %v with batch %v", blk.Class, blk.Batch)
	}
	if counting.reads != before {
		t.Error("GetBlock on a skip block read the data raster")
	}
}

// TestMaskGeometryMismatch verifies misaligned masks are rejected eagerly
func TestMaskGeometryMismatch(t *testing.T) {
	in := newTestInput(t, 64, 64, 1)
	rm, err := New(Params{Workers: 1}, in)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	wrongSize := newMask(t, 32, 64, func(x, y int) float64 { return 1 })
	if err := rm.SetMask(wrongSize, ValidRange{Min: 1, Max: 1}); err == nil {
		t.Error("expected geometry error for wrong-sized mask")
	}

	shifted := newMask(t, 64, 64, func(x, y int) float64 { return 1 })
	shifted.SetGeoTransform(raster.GeoTransform{10, 1, 0, 0, 0, -1})
	if err := rm.SetMask(shifted, ValidRange{Min: 1, Max: 1}); err == nil {
		t.Error("expected geometry error for shifted mask")
	}
}
