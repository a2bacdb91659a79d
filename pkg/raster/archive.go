package raster

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"
)

// Archive format: a zstd stream carrying the same header as the grid format
// followed by every band plane as little-endian float64 values. Unlike the
// grid format it is sequential-only, so it suits snapshots and transport
// rather than windowed processing.

// WriteArchive writes a compressed snapshot of the whole dataset. The source
// is read row by row, so datasets larger than memory stream through.
func WriteArchive(w io.Writer, ds Dataset) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("raster: archive writer: %w", err)
	}

	hdr := make([]byte, 0, 128+len(ds.Projection()))
	hdr = append(hdr, gridMagic...)
	hdr = binary.LittleEndian.AppendUint16(hdr, gridVersion)
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(ds.Width()))
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(ds.Height()))
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(ds.Bands()))
	hdr = append(hdr, byte(ds.DataType()))
	hdr = binary.LittleEndian.AppendUint64(hdr, math.Float64bits(ds.NoData()))
	for _, c := range ds.GeoTransform() {
		hdr = binary.LittleEndian.AppendUint64(hdr, math.Float64bits(c))
	}
	bw, bh := ds.BlockSize()
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(bw))
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(bh))
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(len(ds.Projection())))
	hdr = append(hdr, ds.Projection()...)
	if _, err := zw.Write(hdr); err != nil {
		zw.Close()
		return fmt.Errorf("raster: archive header: %w", err)
	}

	width := ds.Width()
	row := make([]float64, width)
	raw := make([]byte, width*8)
	for b := 1; b <= ds.Bands(); b++ {
		for y := 0; y < ds.Height(); y++ {
			if err := ds.Read(b, 0, y, width, 1, row); err != nil {
				zw.Close()
				return err
			}
			for i, v := range row {
				binary.LittleEndian.PutUint64(raw[i*8:], math.Float64bits(v))
			}
			if _, err := zw.Write(raw); err != nil {
				zw.Close()
				return fmt.Errorf("raster: archive data: %w", err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("raster: archive close: %w", err)
	}
	return nil
}

// ReadArchive decompresses a snapshot into a MemDataset.
func ReadArchive(r io.Reader) (*MemDataset, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("raster: archive reader: %w", err)
	}
	defer zr.Close()
	br := bufio.NewReader(zr)

	fixed := make([]byte, 4+2+4+4+4+1+8+6*8+4+4+4)
	if _, err := io.ReadFull(br, fixed); err != nil {
		return nil, fmt.Errorf("raster: archive header: %w", err)
	}
	if string(fixed[:4]) != gridMagic {
		return nil, fmt.Errorf("raster: not an archive (bad magic)")
	}
	if v := binary.LittleEndian.Uint16(fixed[4:]); v != gridVersion {
		return nil, fmt.Errorf("raster: unsupported archive version %d", v)
	}
	width := int(binary.LittleEndian.Uint32(fixed[6:]))
	height := int(binary.LittleEndian.Uint32(fixed[10:]))
	bands := int(binary.LittleEndian.Uint32(fixed[14:]))
	dtype := DataType(fixed[18])
	nodata := math.Float64frombits(binary.LittleEndian.Uint64(fixed[19:]))
	var gt GeoTransform
	off := 27
	for i := range gt {
		gt[i] = math.Float64frombits(binary.LittleEndian.Uint64(fixed[off:]))
		off += 8
	}
	blockW := int(binary.LittleEndian.Uint32(fixed[off:]))
	blockH := int(binary.LittleEndian.Uint32(fixed[off+4:]))
	projLen := int(binary.LittleEndian.Uint32(fixed[off+8:]))

	ds, err := NewMemDataset(width, height, bands, dtype)
	if err != nil {
		return nil, fmt.Errorf("raster: archive header: %w", err)
	}
	ds.SetNoData(nodata)
	ds.SetGeoTransform(gt)
	if blockW > 0 && blockH > 0 {
		ds.SetBlockSize(blockW, blockH)
	}
	if projLen > 0 {
		proj := make([]byte, projLen)
		if _, err := io.ReadFull(br, proj); err != nil {
			return nil, fmt.Errorf("raster: archive projection: %w", err)
		}
		ds.SetProjection(string(proj))
	}

	raw := make([]byte, width*8)
	for b := 0; b < bands; b++ {
		plane := ds.planes[b]
		for y := 0; y < height; y++ {
			if _, err := io.ReadFull(br, raw); err != nil {
				return nil, fmt.Errorf("raster: archive data: %w", err)
			}
			for x := 0; x < width; x++ {
				plane[y*width+x] = math.Float64frombits(binary.LittleEndian.Uint64(raw[x*8:]))
			}
		}
	}
	return ds, nil
}
