package raster

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// BandStats summarizes the valid (non-nodata) pixels of one band.
type BandStats struct {
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
	Count  int
}

// ComputeStats scans a band block by block, following the dataset's native
// tiling, and merges per-block statistics so memory stays bounded by one
// block regardless of raster size.
func ComputeStats(ds Dataset, band int) (BandStats, error) {
	if band < 1 || band > ds.Bands() {
		return BandStats{}, fmt.Errorf("raster: band %d out of range [1,%d]", band, ds.Bands())
	}
	bw, bh := ds.BlockSize()
	if bw <= 0 || bh <= 0 {
		bw, bh = ds.Width(), 1
	}
	nodata := ds.NoData()

	total := BandStats{Min: math.Inf(1), Max: math.Inf(-1)}
	var mean, m2 float64 // pooled mean and sum of squared deviations

	buf := make([]float64, bw*bh)
	valid := make([]float64, 0, bw*bh)
	for y := 0; y < ds.Height(); y += bh {
		h := min(bh, ds.Height()-y)
		for x := 0; x < ds.Width(); x += bw {
			w := min(bw, ds.Width()-x)
			if err := ds.Read(band, x, y, w, h, buf[:w*h]); err != nil {
				return BandStats{}, err
			}
			valid = valid[:0]
			for _, v := range buf[:w*h] {
				if v != nodata && !math.IsNaN(v) {
					valid = append(valid, v)
				}
			}
			if len(valid) == 0 {
				continue
			}
			total.Min = math.Min(total.Min, floats.Min(valid))
			total.Max = math.Max(total.Max, floats.Max(valid))

			bMean := stat.Mean(valid, nil)
			bM2 := stat.Variance(valid, nil) * float64(len(valid)-1)
			if math.IsNaN(bM2) {
				bM2 = 0
			}
			// Chan et al. pooled update of mean and M2.
			n1, n2 := float64(total.Count), float64(len(valid))
			delta := bMean - mean
			mean += delta * n2 / (n1 + n2)
			m2 += bM2 + delta*delta*n1*n2/(n1+n2)
			total.Count += len(valid)
		}
	}

	if total.Count == 0 {
		return BandStats{}, nil
	}
	total.Mean = mean
	if total.Count > 1 {
		total.StdDev = math.Sqrt(m2 / float64(total.Count-1))
	}
	return total, nil
}
