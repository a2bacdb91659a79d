package raster

import (
	"bytes"
	"testing"
)

// TestTIFFExportImport verifies the grayscale bridge preserves shape and the
// rescaled value ordering
func TestTIFFExportImport(t *testing.T) {
	ds, err := NewMemDataset(6, 4, 1, Float64)
	if err != nil {
		t.Fatalf("NewMemDataset: %v", err)
	}
	vals := make([]float64, 24)
	for i := range vals {
		vals[i] = float64(i) * 10
	}
	if err := ds.Write(1, 0, 0, 6, 4, vals); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var buf bytes.Buffer
	if err := ExportTIFF(&buf, ds, 1); err != nil {
		t.Fatalf("ExportTIFF: %v", err)
	}

	back, err := ImportTIFF(&buf)
	if err != nil {
		t.Fatalf("ImportTIFF: %v", err)
	}
	if back.Width() != 6 || back.Height() != 4 {
		t.Fatalf("shape %dx%d, want 6x4", back.Width(), back.Height())
	}

	got := make([]float64, 24)
	if err := back.Read(1, 0, 0, 6, 4, got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	// Min maps to 0, max to 65535, and ordering is preserved.
	if got[0] != 0 {
		t.Errorf("min pixel = %g, want 0", got[0])
	}
	if got[23] != 65535 {
		t.Errorf("max pixel = %g, want 65535", got[23])
	}
	for i := 1; i < len(got); i++ {
		if got[i] < got[i-1] {
			t.Errorf("ordering broken at pixel %d: %g < %g", i, got[i], got[i-1])
		}
	}
}

// TestTIFFExportRescaleEndpoints verifies the rescale hits the exact 16-bit
// endpoints even when the scale factor is not exactly representable
func TestTIFFExportRescaleEndpoints(t *testing.T) {
	// 65535/7 has no exact float64 representation, so the band maximum
	// lands a hair under 65535 before rounding.
	ds, err := NewMemDataset(8, 1, 1, Float64)
	if err != nil {
		t.Fatalf("NewMemDataset: %v", err)
	}
	if err := ds.Write(1, 0, 0, 8, 1, []float64{0, 1, 2, 3, 4, 5, 6, 7}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var buf bytes.Buffer
	if err := ExportTIFF(&buf, ds, 1); err != nil {
		t.Fatalf("ExportTIFF: %v", err)
	}
	back, err := ImportTIFF(&buf)
	if err != nil {
		t.Fatalf("ImportTIFF: %v", err)
	}
	got := make([]float64, 8)
	if err := back.Read(1, 0, 0, 8, 1, got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got[0] != 0 {
		t.Errorf("min pixel = %g, want 0", got[0])
	}
	if got[7] != 65535 {
		t.Errorf("max pixel = %g, want 65535", got[7])
	}
}
