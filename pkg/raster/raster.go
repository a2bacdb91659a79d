// Package raster provides the raster backend used by the block processing
// engine: data types, windowed dataset access, and codecs for a few on-disk
// formats. Pixel values cross the package boundary as float64 planes; each
// dataset quantizes to its declared data type on write.
package raster

import (
	"fmt"
	"math"
)

// DefaultNoData is used when a raster declares no nodata value of its own.
const DefaultNoData = -9999

// DataType identifies the storage type of a raster band.
type DataType int

const (
	Uint8 DataType = iota
	Int16
	Uint16
	Int32
	Uint32
	Float32
	Float64
)

// Size returns the storage size of one pixel value in bytes.
func (dt DataType) Size() int {
	switch dt {
	case Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Float64:
		return 8
	}
	return 0
}

func (dt DataType) String() string {
	switch dt {
	case Uint8:
		return "uint8"
	case Int16:
		return "int16"
	case Uint16:
		return "uint16"
	case Int32:
		return "int32"
	case Uint32:
		return "uint32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	}
	return fmt.Sprintf("DataType(%d)", int(dt))
}

// Quantize converts v to the nearest value representable by the data type.
// Integer types round and clamp to their range, Float32 narrows, Float64
// passes through unchanged.
func (dt DataType) Quantize(v float64) float64 {
	switch dt {
	case Uint8:
		return clampRound(v, 0, math.MaxUint8)
	case Int16:
		return clampRound(v, math.MinInt16, math.MaxInt16)
	case Uint16:
		return clampRound(v, 0, math.MaxUint16)
	case Int32:
		return clampRound(v, math.MinInt32, math.MaxInt32)
	case Uint32:
		return clampRound(v, 0, math.MaxUint32)
	case Float32:
		return float64(float32(v))
	}
	return v
}

func clampRound(v, lo, hi float64) float64 {
	v = math.Round(v)
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// TypeForRange returns the smallest integer data type able to hold every
// value in [minValue, maxValue]. Non-integral bounds yield a float type.
func TypeForRange(minValue, maxValue float64) DataType {
	if minValue != math.Trunc(minValue) || maxValue != math.Trunc(maxValue) {
		if math.Abs(minValue) <= math.MaxFloat32 && math.Abs(maxValue) <= math.MaxFloat32 {
			return Float32
		}
		return Float64
	}
	if minValue >= 0 {
		switch {
		case maxValue <= math.MaxUint8:
			return Uint8
		case maxValue <= math.MaxUint16:
			return Uint16
		default:
			return Uint32
		}
	}
	if minValue >= math.MinInt16 && maxValue <= math.MaxInt16 {
		return Int16
	}
	return Int32
}

// GeoTransform is the affine transform from pixel to map coordinates, in the
// usual six-coefficient order: origin x, pixel width, row rotation, origin y,
// column rotation, pixel height (negative for north-up rasters).
type GeoTransform [6]float64

// Apply maps a pixel position to map coordinates.
func (gt GeoTransform) Apply(col, row float64) (x, y float64) {
	x = gt[0] + col*gt[1] + row*gt[2]
	y = gt[3] + col*gt[4] + row*gt[5]
	return x, y
}

// PixelSize returns the absolute pixel width and height in map units.
func (gt GeoTransform) PixelSize() (w, h float64) {
	return math.Abs(gt[1]), math.Abs(gt[5])
}

// ApproxEqual reports whether two transforms agree within a small tolerance.
func (gt GeoTransform) ApproxEqual(other GeoTransform) bool {
	const eps = 1e-9
	for i := range gt {
		if math.Abs(gt[i]-other[i]) > eps {
			return false
		}
	}
	return true
}

// Dataset is a windowed view onto raster storage. Bands are numbered from 1.
// Read and Write exchange row-major float64 buffers of length w*h for the
// requested window; implementations quantize to their data type on write.
//
// Implementations must support concurrent calls to Read. Write, Flush and
// Close are only ever called from a single goroutine.
type Dataset interface {
	Width() int
	Height() int
	Bands() int
	DataType() DataType
	NoData() float64
	GeoTransform() GeoTransform
	Projection() string

	// BlockSize returns the native tile size of the storage layout.
	BlockSize() (w, h int)

	Read(band, x, y, w, h int, dst []float64) error
	Write(band, x, y, w, h int, src []float64) error

	// Flush forces buffered writes to storage.
	Flush() error
	Close() error
}

func checkWindow(ds Dataset, band, x, y, w, h int) error {
	if band < 1 || band > ds.Bands() {
		return fmt.Errorf("band %d out of range [1,%d]", band, ds.Bands())
	}
	if w <= 0 || h <= 0 {
		return fmt.Errorf("empty window %dx%d", w, h)
	}
	if x < 0 || y < 0 || x+w > ds.Width() || y+h > ds.Height() {
		return fmt.Errorf("window (%d,%d %dx%d) outside raster %dx%d",
			x, y, w, h, ds.Width(), ds.Height())
	}
	return nil
}
