package raster

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadEsriASCII parses a single-band ESRI ASCII grid into a MemDataset with
// Float64 storage. Both the cell-corner (xllcorner/yllcorner) and cell-center
// (xllcenter/yllcenter) header variants are accepted.
func ReadEsriASCII(r io.Reader) (*MemDataset, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	sc.Split(bufio.ScanWords)

	next := func() (string, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", err
			}
			return "", io.ErrUnexpectedEOF
		}
		return sc.Text(), nil
	}

	var (
		ncols, nrows   int
		xll, yll, cell float64
		nodata         = float64(DefaultNoData)
		center         bool
		haveCols       bool
		haveRows       bool
		haveCell       bool
	)

	// Header: key/value pairs until the first bare number.
	var first string
	for {
		key, err := next()
		if err != nil {
			return nil, fmt.Errorf("raster: asc header: %w", err)
		}
		if _, convErr := strconv.ParseFloat(key, 64); convErr == nil {
			first = key
			break
		}
		val, err := next()
		if err != nil {
			return nil, fmt.Errorf("raster: asc header value for %q: %w", key, err)
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("raster: asc header %q: %w", key, err)
		}
		switch strings.ToLower(key) {
		case "ncols":
			ncols, haveCols = int(f), true
		case "nrows":
			nrows, haveRows = int(f), true
		case "xllcorner":
			xll = f
		case "yllcorner":
			yll = f
		case "xllcenter":
			xll, center = f, true
		case "yllcenter":
			yll, center = f, true
		case "cellsize":
			cell, haveCell = f, true
		case "nodata_value":
			nodata = f
		default:
			return nil, fmt.Errorf("raster: asc header: unknown key %q", key)
		}
	}
	if !haveCols || !haveRows || !haveCell || ncols <= 0 || nrows <= 0 || cell <= 0 {
		return nil, fmt.Errorf("raster: asc header incomplete (%d cols, %d rows, cellsize %g)", ncols, nrows, cell)
	}
	if center {
		xll -= cell / 2
		yll -= cell / 2
	}

	ds, err := NewMemDataset(ncols, nrows, 1, Float64)
	if err != nil {
		return nil, err
	}
	ds.SetNoData(nodata)
	ds.SetGeoTransform(GeoTransform{xll, cell, 0, yll + float64(nrows)*cell, 0, -cell})

	plane := ds.planes[0]
	for i := 0; i < ncols*nrows; i++ {
		var tok string
		if i == 0 {
			tok = first
		} else {
			tok, err = next()
			if err != nil {
				return nil, fmt.Errorf("raster: asc data at cell %d: %w", i, err)
			}
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("raster: asc data at cell %d: %w", i, err)
		}
		plane[i] = v
	}
	return ds, nil
}

// WriteEsriASCII writes one band of a dataset as an ESRI ASCII grid. The
// geotransform must be axis-aligned (no rotation terms) with square pixels.
func WriteEsriASCII(w io.Writer, ds Dataset, band int) error {
	gt := ds.GeoTransform()
	if gt[2] != 0 || gt[4] != 0 {
		return fmt.Errorf("raster: asc export requires an axis-aligned geotransform")
	}
	pw, ph := gt.PixelSize()
	if pw != ph {
		return fmt.Errorf("raster: asc export requires square pixels, got %gx%g", pw, ph)
	}
	width, height := ds.Width(), ds.Height()
	yll := gt[3] - float64(height)*pw

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ncols %d\n", width)
	fmt.Fprintf(bw, "nrows %d\n", height)
	fmt.Fprintf(bw, "xllcorner %g\n", gt[0])
	fmt.Fprintf(bw, "yllcorner %g\n", yll)
	fmt.Fprintf(bw, "cellsize %g\n", pw)
	fmt.Fprintf(bw, "NODATA_value %g\n", ds.NoData())

	row := make([]float64, width)
	for y := 0; y < height; y++ {
		if err := ds.Read(band, 0, y, width, 1, row); err != nil {
			return err
		}
		for x, v := range row {
			if x > 0 {
				bw.WriteByte(' ')
			}
			fmt.Fprintf(bw, "%g", v)
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
