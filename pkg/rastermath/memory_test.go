package rastermath

import (
	"errors"
	"testing"
)

// fixedMemory is a deterministic MemoryProvider for tests.
type fixedMemory struct {
	bytes uint64
	err   error
}

func (m fixedMemory) AvailableBytes() (uint64, error) { return m.bytes, m.err }

// TestChooseBlockSizeFootprint verifies the returned size never exceeds the
// supplied budget across a grid of combinations, while respecting the floor
func TestChooseBlockSizeFootprint(t *testing.T) {
	availables := []uint64{1 << 20, 16 << 20, 256 << 20, 8 << 30}
	bytesPerPixel := []int{8, 32, 80, 256}
	workers := []int{1, 2, 4, 16}
	const fallback = 1024

	for _, avail := range availables {
		for _, bpp := range bytesPerPixel {
			for _, w := range workers {
				side := ChooseBlockSize(avail, bpp, w, fallback)
				if side < MinBlockSize {
					t.Fatalf("ChooseBlockSize(%d,%d,%d) = %d below floor", avail, bpp, w, side)
				}
				if side > fallback {
					t.Fatalf("ChooseBlockSize(%d,%d,%d) = %d above fallback", avail, bpp, w, side)
				}
				footprint := uint64(side) * uint64(side) * uint64(bpp) * uint64(w)
				// The floor may override the budget; otherwise the
				// footprint must fit in available memory.
				if side > MinBlockSize && footprint > avail {
					t.Fatalf("ChooseBlockSize(%d,%d,%d) = %d: footprint %d exceeds available",
						avail, bpp, w, side, footprint)
				}
			}
		}
	}
}

// TestChooseBlockSizeFallback verifies behavior when memory is unknown or ample
func TestChooseBlockSizeFallback(t *testing.T) {
	if got := ChooseBlockSize(0, 8, 4, 512); got != 512 {
		t.Errorf("unknown memory: got %d, want fallback 512", got)
	}
	if got := ChooseBlockSize(1<<40, 8, 1, 256); got != 256 {
		t.Errorf("ample memory: got %d, want fallback cap 256", got)
	}
	if got := ChooseBlockSize(1024, 8, 4, 256); got != MinBlockSize {
		t.Errorf("tiny memory: got %d, want floor %d", got, MinBlockSize)
	}
	// A fallback below the floor is raised to it.
	if got := ChooseBlockSize(0, 8, 1, 16); got != MinBlockSize {
		t.Errorf("small fallback: got %d, want %d", got, MinBlockSize)
	}
}

// TestChooseBlockSizeScalesDownWithWorkers verifies more workers shrink blocks
func TestChooseBlockSizeScalesDownWithWorkers(t *testing.T) {
	const avail = 64 << 20
	one := ChooseBlockSize(avail, 32, 1, 4096)
	many := ChooseBlockSize(avail, 32, 8, 4096)
	if many >= one {
		t.Errorf("8 workers chose %d, 1 worker chose %d; expected smaller blocks with more workers", many, one)
	}
}

// TestEngineUsesInjectedProvider verifies planning consults the provider
func TestEngineUsesInjectedProvider(t *testing.T) {
	in := newTestInput(t, 512, 512, 1)

	// A tiny budget must shrink blocks to the floor.
	rm, err := New(Params{Workers: 1, Memory: fixedMemory{bytes: 1 << 12}}, in)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := rm.Plan(); err != nil {
		t.Fatalf("Plan: %v", err)
	}
	p := rm.Parameters()
	if p.BlockWidth != MinBlockSize || p.BlockHeight != MinBlockSize {
		t.Errorf("block size %dx%d, want floor %dx%d", p.BlockWidth, p.BlockHeight, MinBlockSize, MinBlockSize)
	}

	// A failing provider falls back to the default block size.
	rm2, err := New(Params{Workers: 1, Memory: fixedMemory{err: errors.New("no meminfo")}}, newTestInput(t, 512, 512, 1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := rm2.Plan(); err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if p := rm2.Parameters(); p.BlockWidth != DefaultBlockSize {
		t.Errorf("block size %d, want fallback %d", p.BlockWidth, DefaultBlockSize)
	}
}
