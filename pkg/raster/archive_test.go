package raster

import (
	"bytes"
	"testing"
)

// TestArchiveRoundTrip verifies a full snapshot survives compression
func TestArchiveRoundTrip(t *testing.T) {
	src, err := NewMemDataset(17, 9, 3, Float64)
	if err != nil {
		t.Fatalf("NewMemDataset: %v", err)
	}
	src.SetNoData(-1)
	src.SetGeoTransform(GeoTransform{10, 2, 0, 90, 0, -2})
	src.SetProjection("EPSG:4326")
	for b := 1; b <= 3; b++ {
		buf := make([]float64, 17*9)
		for i := range buf {
			buf[i] = float64(b*1000 + i)
		}
		if err := src.Write(b, 0, 0, 17, 9, buf); err != nil {
			t.Fatalf("Write band %d: %v", b, err)
		}
	}

	var archived bytes.Buffer
	if err := WriteArchive(&archived, src); err != nil {
		t.Fatalf("WriteArchive: %v", err)
	}

	back, err := ReadArchive(&archived)
	if err != nil {
		t.Fatalf("ReadArchive: %v", err)
	}
	if back.Width() != 17 || back.Height() != 9 || back.Bands() != 3 {
		t.Fatalf("shape %dx%dx%d, want 17x9x3", back.Width(), back.Height(), back.Bands())
	}
	if back.NoData() != -1 {
		t.Errorf("nodata %g, want -1", back.NoData())
	}
	if back.Projection() != "EPSG:4326" {
		t.Errorf("projection %q", back.Projection())
	}
	if !back.GeoTransform().ApproxEqual(src.GeoTransform()) {
		t.Errorf("geotransform %v, want %v", back.GeoTransform(), src.GeoTransform())
	}

	a := make([]float64, 17*9)
	b := make([]float64, 17*9)
	for band := 1; band <= 3; band++ {
		if err := src.Read(band, 0, 0, 17, 9, a); err != nil {
			t.Fatalf("Read src: %v", err)
		}
		if err := back.Read(band, 0, 0, 17, 9, b); err != nil {
			t.Fatalf("Read back: %v", err)
		}
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("band %d pixel %d = %g, want %g", band, i, b[i], a[i])
			}
		}
	}
}

// TestReadArchiveRejectsGarbage verifies corrupt streams error out
func TestReadArchiveRejectsGarbage(t *testing.T) {
	if _, err := ReadArchive(bytes.NewReader([]byte("not a zstd stream"))); err == nil {
		t.Error("expected error for garbage input")
	}
}
