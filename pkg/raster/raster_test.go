package raster

import (
	"math"
	"testing"
)

// TestDataTypeSize verifies the storage size of every data type
func TestDataTypeSize(t *testing.T) {
	cases := []struct {
		dt   DataType
		want int
	}{
		{Uint8, 1},
		{Int16, 2},
		{Uint16, 2},
		{Int32, 4},
		{Uint32, 4},
		{Float32, 4},
		{Float64, 8},
	}
	for _, c := range cases {
		if got := c.dt.Size(); got != c.want {
			t.Errorf("%v.Size() = %d, want %d", c.dt, got, c.want)
		}
	}
}

// TestQuantize verifies rounding and clamping per data type
func TestQuantize(t *testing.T) {
	cases := []struct {
		dt   DataType
		in   float64
		want float64
	}{
		{Uint8, 12.6, 13},
		{Uint8, -5, 0},
		{Uint8, 300, 255},
		{Int16, -40000, math.MinInt16},
		{Int16, 40000, math.MaxInt16},
		{Uint16, 65536, 65535},
		{Int32, 1.4, 1},
		{Uint32, -1, 0},
		{Float64, 3.14159, 3.14159},
	}
	for _, c := range cases {
		if got := c.dt.Quantize(c.in); got != c.want {
			t.Errorf("%v.Quantize(%g) = %g, want %g", c.dt, c.in, got, c.want)
		}
	}

	// Float32 narrows without clamping
	got := Float32.Quantize(1.0 / 3.0)
	if got != float64(float32(1.0/3.0)) {
		t.Errorf("Float32.Quantize narrowing mismatch: %g", got)
	}
}

// TestTypeForRange verifies the smallest-type selection
func TestTypeForRange(t *testing.T) {
	cases := []struct {
		min, max float64
		want     DataType
	}{
		{0, 255, Uint8},
		{0, 260, Uint16},
		{0, 70000, Uint32},
		{-10, 100, Int16},
		{-40000, 100, Int32},
		{0, 0.5, Float32},
	}
	for _, c := range cases {
		if got := TypeForRange(c.min, c.max); got != c.want {
			t.Errorf("TypeForRange(%g, %g) = %v, want %v", c.min, c.max, got, c.want)
		}
	}
}

// TestGeoTransformApply verifies the affine pixel-to-map mapping
func TestGeoTransformApply(t *testing.T) {
	gt := GeoTransform{100, 10, 0, 200, 0, -10}

	x, y := gt.Apply(0, 0)
	if x != 100 || y != 200 {
		t.Errorf("origin mapped to (%g,%g), want (100,200)", x, y)
	}

	x, y = gt.Apply(3, 2)
	if x != 130 || y != 180 {
		t.Errorf("(3,2) mapped to (%g,%g), want (130,180)", x, y)
	}

	if !gt.ApproxEqual(gt) {
		t.Error("transform not equal to itself")
	}
	other := gt
	other[0] += 0.5
	if gt.ApproxEqual(other) {
		t.Error("shifted transform reported equal")
	}
}

// TestMemDatasetReadWrite verifies a windowed write/read round trip
func TestMemDatasetReadWrite(t *testing.T) {
	ds, err := NewMemDataset(8, 6, 2, Float64)
	if err != nil {
		t.Fatalf("NewMemDataset: %v", err)
	}

	src := []float64{1, 2, 3, 4, 5, 6}
	if err := ds.Write(2, 3, 2, 3, 2, src); err != nil {
		t.Fatalf("Write: %v", err)
	}

	dst := make([]float64, 6)
	if err := ds.Read(2, 3, 2, 3, 2, dst); err != nil {
		t.Fatalf("Read: %v", err)
	}
	for i := range src {
		if dst[i] != src[i] {
			t.Errorf("pixel %d = %g, want %g", i, dst[i], src[i])
		}
	}

	// Untouched pixels stay zero
	if err := ds.Read(2, 0, 0, 1, 1, dst[:1]); err != nil {
		t.Fatalf("Read origin: %v", err)
	}
	if dst[0] != 0 {
		t.Errorf("untouched pixel = %g, want 0", dst[0])
	}
}

// TestMemDatasetQuantizesOnWrite verifies the declared dtype is honored
func TestMemDatasetQuantizesOnWrite(t *testing.T) {
	ds, err := NewMemDataset(2, 1, 1, Uint8)
	if err != nil {
		t.Fatalf("NewMemDataset: %v", err)
	}
	if err := ds.Write(1, 0, 0, 2, 1, []float64{300, -7}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	dst := make([]float64, 2)
	if err := ds.Read(1, 0, 0, 2, 1, dst); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if dst[0] != 255 || dst[1] != 0 {
		t.Errorf("got %v, want [255 0]", dst)
	}
}

// TestMemDatasetBounds verifies out-of-range windows and bands are rejected
func TestMemDatasetBounds(t *testing.T) {
	ds, err := NewMemDataset(4, 4, 1, Float64)
	if err != nil {
		t.Fatalf("NewMemDataset: %v", err)
	}
	buf := make([]float64, 16)

	if err := ds.Read(2, 0, 0, 2, 2, buf); err == nil {
		t.Error("expected error for band out of range")
	}
	if err := ds.Read(1, 3, 3, 2, 2, buf); err == nil {
		t.Error("expected error for window past the edge")
	}
	if err := ds.Write(1, -1, 0, 2, 2, buf); err == nil {
		t.Error("expected error for negative offset")
	}
	if err := ds.Read(1, 0, 0, 4, 4, buf[:4]); err == nil {
		t.Error("expected error for short buffer")
	}

	if _, err := NewMemDataset(0, 4, 1, Float64); err == nil {
		t.Error("expected error for zero width")
	}
	if _, err := NewMemDataset(4, 4, 0, Float64); err == nil {
		t.Error("expected error for zero bands")
	}
}

// TestMemDatasetClosed verifies operations fail after Close
func TestMemDatasetClosed(t *testing.T) {
	ds, err := NewMemDataset(4, 4, 1, Float64)
	if err != nil {
		t.Fatalf("NewMemDataset: %v", err)
	}
	if err := ds.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	buf := make([]float64, 16)
	if err := ds.Read(1, 0, 0, 4, 4, buf); err == nil {
		t.Error("expected error reading closed dataset")
	}
	if err := ds.Write(1, 0, 0, 4, 4, buf); err == nil {
		t.Error("expected error writing closed dataset")
	}
}
