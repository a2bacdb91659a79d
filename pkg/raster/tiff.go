package raster

import (
	"fmt"
	"image"
	"io"
	"math"

	"golang.org/x/image/tiff"
)

// ExportTIFF writes one band as a 16-bit grayscale TIFF, linearly rescaling
// the band's value range to [0,65535]. Nodata pixels map to zero. The export
// is a visual bridge, not a lossless round trip; use the grid or archive
// formats to preserve values.
func ExportTIFF(w io.Writer, ds Dataset, band int) error {
	stats, err := ComputeStats(ds, band)
	if err != nil {
		return err
	}
	lo, hi := stats.Min, stats.Max
	scale := 0.0
	if hi > lo {
		scale = 65535.0 / (hi - lo)
	}

	width, height := ds.Width(), ds.Height()
	nodata := ds.NoData()
	img := image.NewGray16(image.Rect(0, 0, width, height))
	row := make([]float64, width)
	for y := 0; y < height; y++ {
		if err := ds.Read(band, 0, y, width, 1, row); err != nil {
			return err
		}
		for x, v := range row {
			var g uint16
			if v != nodata {
				// Round rather than truncate: (hi-lo)*scale can land just
				// below 65535 in floating point.
				g = uint16(math.Min(65535, math.Round((v-lo)*scale)))
			}
			off := img.PixOffset(x, y)
			img.Pix[off] = uint8(g >> 8)
			img.Pix[off+1] = uint8(g)
		}
	}
	if err := tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		return fmt.Errorf("raster: tiff encode: %w", err)
	}
	return nil
}

// ImportTIFF decodes a TIFF image into a single-band Float64 MemDataset of
// 16-bit luminance values.
func ImportTIFF(r io.Reader) (*MemDataset, error) {
	img, err := tiff.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("raster: tiff decode: %w", err)
	}
	bounds := img.Bounds()
	ds, err := NewMemDataset(bounds.Dx(), bounds.Dy(), 1, Float64)
	if err != nil {
		return nil, err
	}
	plane := ds.planes[0]
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			lum, _, _, _ := img.At(x, y).RGBA()
			plane[(y-bounds.Min.Y)*ds.width+(x-bounds.Min.X)] = float64(lum)
		}
	}
	return ds, nil
}
