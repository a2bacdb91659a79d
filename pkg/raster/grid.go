package raster

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// GridDataset is a file-backed Dataset using a simple band-sequential binary
// layout: a fixed header followed by each band's pixels in row-major order,
// stored in the declared data type. Windowed reads and writes seek directly
// to the affected rows, so rasters much larger than memory can be processed
// block by block.
//
// Layout:
//
//	magic "RGRD" | version u16 | width u32 | height u32 | bands u32
//	dtype u8 | nodata f64 | geotransform 6*f64 | blockW u32 | blockH u32
//	projLen u32 | projection bytes | band planes
type GridDataset struct {
	f          *os.File
	path       string
	width      int
	height     int
	bands      int
	dtype      DataType
	nodata     float64
	gt         GeoTransform
	proj       string
	blockW     int
	blockH     int
	dataOffset int64
	writable   bool
}

const (
	gridMagic   = "RGRD"
	gridVersion = 1
)

// GridOptions carries the optional metadata for CreateGrid.
type GridOptions struct {
	NoData       *float64
	GeoTransform *GeoTransform
	Projection   string
	BlockW       int
	BlockH       int
}

// CreateGrid creates a new writable grid file, zero-filling the pixel area so
// that windowed writes can land anywhere in the extent.
func CreateGrid(path string, width, height, bands int, dtype DataType, opts *GridOptions) (*GridDataset, error) {
	if width <= 0 || height <= 0 || bands <= 0 {
		return nil, fmt.Errorf("raster: invalid grid shape %dx%dx%d", width, height, bands)
	}
	if dtype.Size() == 0 {
		return nil, fmt.Errorf("raster: unknown data type %v", dtype)
	}
	ds := &GridDataset{
		path:     path,
		width:    width,
		height:   height,
		bands:    bands,
		dtype:    dtype,
		nodata:   DefaultNoData,
		gt:       GeoTransform{0, 1, 0, 0, 0, -1},
		blockW:   min(width, 256),
		blockH:   min(height, 256),
		writable: true,
	}
	if opts != nil {
		if opts.NoData != nil {
			ds.nodata = *opts.NoData
		}
		if opts.GeoTransform != nil {
			ds.gt = *opts.GeoTransform
		}
		ds.proj = opts.Projection
		if opts.BlockW > 0 {
			ds.blockW = opts.BlockW
		}
		if opts.BlockH > 0 {
			ds.blockH = opts.BlockH
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("raster: create %s: %w", path, err)
	}
	ds.f = f
	if err := ds.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	size := ds.dataOffset + int64(width)*int64(height)*int64(bands)*int64(dtype.Size())
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("raster: allocate %s: %w", path, err)
	}
	return ds, nil
}

// OpenGrid opens an existing grid file read-only.
func OpenGrid(path string) (*GridDataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("raster: open %s: %w", path, err)
	}
	ds := &GridDataset{f: f, path: path}
	if err := ds.readHeader(); err != nil {
		f.Close()
		return nil, fmt.Errorf("raster: open %s: %w", path, err)
	}
	return ds, nil
}

func (ds *GridDataset) writeHeader() error {
	buf := make([]byte, 0, 128+len(ds.proj))
	buf = append(buf, gridMagic...)
	buf = binary.LittleEndian.AppendUint16(buf, gridVersion)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(ds.width))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(ds.height))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(ds.bands))
	buf = append(buf, byte(ds.dtype))
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(ds.nodata))
	for _, c := range ds.gt {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(c))
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(ds.blockW))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(ds.blockH))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(ds.proj)))
	buf = append(buf, ds.proj...)
	if _, err := ds.f.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("raster: write header: %w", err)
	}
	ds.dataOffset = int64(len(buf))
	return nil
}

func (ds *GridDataset) readHeader() error {
	fixed := make([]byte, 4+2+4+4+4+1+8+6*8+4+4+4)
	if _, err := ds.f.ReadAt(fixed, 0); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if string(fixed[:4]) != gridMagic {
		return fmt.Errorf("not a grid file (bad magic)")
	}
	if v := binary.LittleEndian.Uint16(fixed[4:]); v != gridVersion {
		return fmt.Errorf("unsupported grid version %d", v)
	}
	ds.width = int(binary.LittleEndian.Uint32(fixed[6:]))
	ds.height = int(binary.LittleEndian.Uint32(fixed[10:]))
	ds.bands = int(binary.LittleEndian.Uint32(fixed[14:]))
	ds.dtype = DataType(fixed[18])
	ds.nodata = math.Float64frombits(binary.LittleEndian.Uint64(fixed[19:]))
	off := 27
	for i := range ds.gt {
		ds.gt[i] = math.Float64frombits(binary.LittleEndian.Uint64(fixed[off:]))
		off += 8
	}
	ds.blockW = int(binary.LittleEndian.Uint32(fixed[off:]))
	ds.blockH = int(binary.LittleEndian.Uint32(fixed[off+4:]))
	projLen := int(binary.LittleEndian.Uint32(fixed[off+8:]))
	if ds.width <= 0 || ds.height <= 0 || ds.bands <= 0 || ds.dtype.Size() == 0 {
		return fmt.Errorf("corrupt grid header")
	}
	if projLen > 0 {
		proj := make([]byte, projLen)
		if _, err := ds.f.ReadAt(proj, int64(len(fixed))); err != nil {
			return fmt.Errorf("read projection: %w", err)
		}
		ds.proj = string(proj)
	}
	ds.dataOffset = int64(len(fixed) + projLen)
	return nil
}

func (ds *GridDataset) Width() int                 { return ds.width }
func (ds *GridDataset) Height() int                { return ds.height }
func (ds *GridDataset) Bands() int                 { return ds.bands }
func (ds *GridDataset) DataType() DataType         { return ds.dtype }
func (ds *GridDataset) NoData() float64            { return ds.nodata }
func (ds *GridDataset) GeoTransform() GeoTransform { return ds.gt }
func (ds *GridDataset) Projection() string         { return ds.proj }
func (ds *GridDataset) BlockSize() (int, int)      { return ds.blockW, ds.blockH }
func (ds *GridDataset) Path() string               { return ds.path }

func (ds *GridDataset) pixelOffset(band, x, y int) int64 {
	plane := int64(band-1) * int64(ds.width) * int64(ds.height)
	return ds.dataOffset + (plane+int64(y)*int64(ds.width)+int64(x))*int64(ds.dtype.Size())
}

func (ds *GridDataset) Read(band, x, y, w, h int, dst []float64) error {
	if ds.f == nil {
		return fmt.Errorf("raster: read from closed dataset")
	}
	if err := checkWindow(ds, band, x, y, w, h); err != nil {
		return err
	}
	if len(dst) < w*h {
		return fmt.Errorf("raster: destination buffer %d smaller than window %d", len(dst), w*h)
	}
	size := ds.dtype.Size()
	row := make([]byte, w*size)
	for r := 0; r < h; r++ {
		if _, err := ds.f.ReadAt(row, ds.pixelOffset(band, x, y+r)); err != nil {
			return fmt.Errorf("raster: read %s: %w", ds.path, err)
		}
		decodeValues(ds.dtype, row, dst[r*w:(r+1)*w])
	}
	return nil
}

func (ds *GridDataset) Write(band, x, y, w, h int, src []float64) error {
	if ds.f == nil {
		return fmt.Errorf("raster: write to closed dataset")
	}
	if !ds.writable {
		return fmt.Errorf("raster: %s is read-only", ds.path)
	}
	if err := checkWindow(ds, band, x, y, w, h); err != nil {
		return err
	}
	if len(src) < w*h {
		return fmt.Errorf("raster: source buffer %d smaller than window %d", len(src), w*h)
	}
	size := ds.dtype.Size()
	row := make([]byte, w*size)
	for r := 0; r < h; r++ {
		encodeValues(ds.dtype, src[r*w:(r+1)*w], row)
		if _, err := ds.f.WriteAt(row, ds.pixelOffset(band, x, y+r)); err != nil {
			return fmt.Errorf("raster: write %s: %w", ds.path, err)
		}
	}
	return nil
}

func (ds *GridDataset) Flush() error {
	if ds.f == nil || !ds.writable {
		return nil
	}
	if err := ds.f.Sync(); err != nil {
		return fmt.Errorf("raster: flush %s: %w", ds.path, err)
	}
	return nil
}

func (ds *GridDataset) Close() error {
	if ds.f == nil {
		return nil
	}
	err := ds.Flush()
	if cerr := ds.f.Close(); err == nil {
		err = cerr
	}
	ds.f = nil
	return err
}

func encodeValues(dt DataType, src []float64, dst []byte) {
	switch dt {
	case Uint8:
		for i, v := range src {
			dst[i] = byte(dt.Quantize(v))
		}
	case Int16:
		for i, v := range src {
			binary.LittleEndian.PutUint16(dst[i*2:], uint16(int16(dt.Quantize(v))))
		}
	case Uint16:
		for i, v := range src {
			binary.LittleEndian.PutUint16(dst[i*2:], uint16(dt.Quantize(v)))
		}
	case Int32:
		for i, v := range src {
			binary.LittleEndian.PutUint32(dst[i*4:], uint32(int32(dt.Quantize(v))))
		}
	case Uint32:
		for i, v := range src {
			binary.LittleEndian.PutUint32(dst[i*4:], uint32(dt.Quantize(v)))
		}
	case Float32:
		for i, v := range src {
			binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(float32(v)))
		}
	case Float64:
		for i, v := range src {
			binary.LittleEndian.PutUint64(dst[i*8:], math.Float64bits(v))
		}
	}
}

func decodeValues(dt DataType, src []byte, dst []float64) {
	switch dt {
	case Uint8:
		for i := range dst {
			dst[i] = float64(src[i])
		}
	case Int16:
		for i := range dst {
			dst[i] = float64(int16(binary.LittleEndian.Uint16(src[i*2:])))
		}
	case Uint16:
		for i := range dst {
			dst[i] = float64(binary.LittleEndian.Uint16(src[i*2:]))
		}
	case Int32:
		for i := range dst {
			dst[i] = float64(int32(binary.LittleEndian.Uint32(src[i*4:])))
		}
	case Uint32:
		for i := range dst {
			dst[i] = float64(binary.LittleEndian.Uint32(src[i*4:]))
		}
	case Float32:
		for i := range dst {
			dst[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:])))
		}
	case Float64:
		for i := range dst {
			dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(src[i*8:]))
		}
	}
}
