package raster

import (
	"fmt"
)

// MemDataset is an in-memory Dataset backed by one float64 plane per band.
// It is the working implementation for tests and for callers that assemble
// rasters programmatically before exporting them to a file format.
type MemDataset struct {
	width, height, bands int
	dtype                DataType
	nodata               float64
	gt                   GeoTransform
	proj                 string
	blockW, blockH       int
	planes               [][]float64
	closed               bool
}

// NewMemDataset allocates a dataset of the given shape. All pixels start at
// zero, the nodata value defaults to DefaultNoData and the native block size
// to 256x256 clipped to the raster extent.
func NewMemDataset(width, height, bands int, dtype DataType) (*MemDataset, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("raster: invalid dimensions %dx%d", width, height)
	}
	if bands <= 0 {
		return nil, fmt.Errorf("raster: invalid band count %d", bands)
	}
	bw, bh := 256, 256
	if width < bw {
		bw = width
	}
	if height < bh {
		bh = height
	}
	ds := &MemDataset{
		width:  width,
		height: height,
		bands:  bands,
		dtype:  dtype,
		nodata: DefaultNoData,
		gt:     GeoTransform{0, 1, 0, 0, 0, -1},
		blockW: bw,
		blockH: bh,
		planes: make([][]float64, bands),
	}
	for b := range ds.planes {
		ds.planes[b] = make([]float64, width*height)
	}
	return ds, nil
}

func (ds *MemDataset) Width() int                 { return ds.width }
func (ds *MemDataset) Height() int                { return ds.height }
func (ds *MemDataset) Bands() int                 { return ds.bands }
func (ds *MemDataset) DataType() DataType         { return ds.dtype }
func (ds *MemDataset) NoData() float64            { return ds.nodata }
func (ds *MemDataset) GeoTransform() GeoTransform { return ds.gt }
func (ds *MemDataset) Projection() string         { return ds.proj }
func (ds *MemDataset) BlockSize() (int, int)      { return ds.blockW, ds.blockH }

func (ds *MemDataset) SetNoData(v float64)            { ds.nodata = v }
func (ds *MemDataset) SetGeoTransform(gt GeoTransform) { ds.gt = gt }
func (ds *MemDataset) SetProjection(proj string)      { ds.proj = proj }

// SetBlockSize overrides the native tile size reported by BlockSize.
func (ds *MemDataset) SetBlockSize(w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("raster: invalid block size %dx%d", w, h)
	}
	ds.blockW, ds.blockH = w, h
	return nil
}

func (ds *MemDataset) Read(band, x, y, w, h int, dst []float64) error {
	if ds.closed {
		return fmt.Errorf("raster: read from closed dataset")
	}
	if err := checkWindow(ds, band, x, y, w, h); err != nil {
		return err
	}
	if len(dst) < w*h {
		return fmt.Errorf("raster: destination buffer %d smaller than window %d", len(dst), w*h)
	}
	plane := ds.planes[band-1]
	for row := 0; row < h; row++ {
		src := plane[(y+row)*ds.width+x:]
		copy(dst[row*w:(row+1)*w], src[:w])
	}
	return nil
}

func (ds *MemDataset) Write(band, x, y, w, h int, src []float64) error {
	if ds.closed {
		return fmt.Errorf("raster: write to closed dataset")
	}
	if err := checkWindow(ds, band, x, y, w, h); err != nil {
		return err
	}
	if len(src) < w*h {
		return fmt.Errorf("raster: source buffer %d smaller than window %d", len(src), w*h)
	}
	plane := ds.planes[band-1]
	for row := 0; row < h; row++ {
		base := (y+row)*ds.width + x
		for col := 0; col < w; col++ {
			plane[base+col] = ds.dtype.Quantize(src[row*w+col])
		}
	}
	return nil
}

func (ds *MemDataset) Flush() error { return nil }

func (ds *MemDataset) Close() error {
	ds.closed = true
	return nil
}

// Fill sets every pixel of a band to v (quantized).
func (ds *MemDataset) Fill(band int, v float64) error {
	if err := checkWindow(ds, band, 0, 0, ds.width, ds.height); err != nil {
		return err
	}
	q := ds.dtype.Quantize(v)
	plane := ds.planes[band-1]
	for i := range plane {
		plane[i] = q
	}
	return nil
}
