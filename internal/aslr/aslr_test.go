package aslr

import (
	"iter"
	"testing"

	"github.com/rvkernel/rvk/internal/addr"
)

type constSource uint64

func (c constSource) Uint64() uint64 { return uint64(c) }

func gapsOf(ranges ...addr.VirtRange) iter.Seq[addr.VirtRange] {
	return func(yield func(addr.VirtRange) bool) {
		for _, r := range ranges {
			if !yield(r) {
				return
			}
		}
	}
}

func TestDisabledRandomizerPicksLowestFit(t *testing.T) {
	r := New(nil)
	gaps := gapsOf(
		addr.VirtRange{Start: 0x1000, End: 0x2000},
		addr.VirtRange{Start: 0x10000, End: 0x20000},
	)
	spot, ok := r.FindSpot(0x1000, 0x1000, 48, gaps)
	if !ok || spot != 0x1000 {
		t.Fatalf("FindSpot = (%#x, %v), want (0x1000, true)", uint64(spot), ok)
	}
}

func TestDisabledRandomizerNoFit(t *testing.T) {
	r := New(nil)
	gaps := gapsOf(addr.VirtRange{Start: 0x1000, End: 0x1800})
	if _, ok := r.FindSpot(0x1000, 0x1000, 48, gaps); ok {
		t.Fatalf("expected no fit in an undersized gap")
	}
}

// TestRandomizedFindSpotFallsBackToExactPass exercises the second-pass
// "guess was too big, recount and retry" path: with only tiny real gaps but
// an astronomically large first-pass entropy space, the two gaps hold only
// two spots, so any first-pass target index of 2 or more overshoots every gap.
func TestRandomizedFindSpotFallsBackToExactPass(t *testing.T) {
	r := New(constSource(123456789))
	gaps := gapsOf(
		addr.VirtRange{Start: 0x1000, End: 0x2000},
		addr.VirtRange{Start: 0x5000, End: 0x6000},
	)
	spot, ok := r.FindSpot(0x1000, 0x1000, 57, gaps)
	if !ok {
		t.Fatalf("expected a spot via the exact-pass fallback")
	}
	if spot != 0x1000 && spot != 0x5000 {
		t.Fatalf("spot = %#x, want one of the two gap starts", uint64(spot))
	}
}

func TestSpotsInRangeCounts(t *testing.T) {
	r := addr.VirtRange{Start: 0x1000, End: 0x4000} // 3 pages
	if got := spotsInRange(0x1000, 0x1000, r); got != 3 {
		t.Fatalf("spotsInRange = %d, want 3", got)
	}
	if got := spotsInRange(0x4000, 0x1000, r); got != 0 {
		t.Fatalf("spotsInRange for oversized request = %d, want 0", got)
	}
}
