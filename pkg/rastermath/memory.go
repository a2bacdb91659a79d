package rastermath

import "math"

// MemoryProvider reports the memory available to the process. The engine
// queries it once at planning time; tests inject a fixed provider.
type MemoryProvider interface {
	AvailableBytes() (uint64, error)
}

// memorySafetyMargin is the fraction of available memory the block plan is
// allowed to claim. Blocks are held simultaneously by every worker, and the
// backend keeps its own buffers, so the budget stays well under the total.
const memorySafetyMargin = 0.5

// ChooseBlockSize derives the largest square block side whose total
// footprint, side*side*bytesPerPixel*workers, fits within the safety-adjusted
// available memory. The result is clamped to [MinBlockSize, fallback]; the
// floor wins if the two clamps conflict. A zero available value means the
// memory query failed, in which case the clamped fallback is returned.
func ChooseBlockSize(available uint64, bytesPerPixel, workers, fallback int) int {
	if fallback < MinBlockSize {
		fallback = MinBlockSize
	}
	if available == 0 {
		return fallback
	}
	if bytesPerPixel < 1 {
		bytesPerPixel = 1
	}
	if workers < 1 {
		workers = 1
	}
	budget := float64(available) * memorySafetyMargin
	side := int(math.Sqrt(budget / float64(bytesPerPixel*workers)))
	if side > fallback {
		return fallback
	}
	if side < MinBlockSize {
		return MinBlockSize
	}
	return side
}
