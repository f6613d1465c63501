// Package aslr implements the gap-sampling allocation policy used by the
// virtual memory manager (spec.md §4.E "Allocation policy"). It is
// supplemented from original_source/libs/mem-aslr, which documents the
// two-pass "guess, then recount" algorithm this package reproduces: first
// guess a target spot index uniformly over the theoretical address-space
// entropy; if that guess lands beyond the gaps actually available, make a
// second, exact pass now that the real spot count is known.
package aslr

import (
	"iter"
	"math/bits"

	"github.com/rvkernel/rvk/internal/addr"
)

// Source supplies 64 bits of randomness per call. Production code wires in
// a CSPRNG-backed source; passing a nil Source to New (New(nil)) disables
// ASLR and always behaves as plain first-fit.
type Source interface {
	Uint64() uint64
}

// Randomizer samples a spot among the free gaps of a region tree. The zero
// value (or New(nil)) is a disabled randomizer: it always returns the
// lowest-addressed fitting spot.
type Randomizer struct {
	src Source
}

// New builds a Randomizer. A nil src disables randomization.
func New(src Source) *Randomizer {
	return &Randomizer{src: src}
}

// Enabled reports whether this Randomizer actually randomizes, as opposed
// to degrading to deterministic first-fit.
func (r *Randomizer) Enabled() bool { return r != nil && r.src != nil }

func (r *Randomizer) uniform(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	if !r.Enabled() {
		return 0
	}
	return r.src.Uint64() % n
}

// FindSpot searches gaps (yielded lowest address first) for a spot of the
// given size and alignment. vaBits is the number of usable virtual address
// bits the caller's MemoryMode provides (mmu.MemoryMode computes this);
// it bounds the first-pass guess. gaps must be safe to range over more
// than once (a Go 1.23 iterator closing over the same tree snapshot).
func (r *Randomizer) FindSpot(size, align uintptr, vaBits uint, gaps iter.Seq[addr.VirtRange]) (addr.VirtAddr, bool) {
	if !r.Enabled() {
		spot, _, ok := chooseSpot(size, align, 0, gaps)
		return spot, ok
	}

	alignBits := uint(bits.TrailingZeros(uint(align)))
	entropy := uint(0)
	if vaBits > alignBits {
		entropy = vaBits - alignBits
	}
	maxSpots := uint64(1) << entropy

	target := r.uniform(maxSpots)
	if spot, _, ok := chooseSpot(size, align, target, gaps); ok {
		return spot, true
	}

	_, total, _ := chooseSpot(size, align, ^uint64(0), gaps)
	if total == 0 {
		return 0, false
	}
	target2 := r.uniform(total)
	spot, _, ok := chooseSpot(size, align, target2, gaps)
	return spot, ok
}

// chooseSpot walks gaps counting candidate aligned spots until target_index
// falls within the current gap, mirroring original_source's choose_spot.
// It always returns the total candidate count seen so far, letting the
// caller retry exactly with that count when the first guess overshoots.
func chooseSpot(size, align uintptr, target uint64, gaps iter.Seq[addr.VirtRange]) (addr.VirtAddr, uint64, bool) {
	var total uint64
	for gap := range gaps {
		aligned := gap.AlignIn(align)
		spots := spotsInRange(size, align, aligned)
		total += spots
		if target < spots {
			return aligned.Start.Add(uintptr(target) * align), total, true
		}
		target -= spots
	}
	return 0, total, false
}

// spotsInRange returns how many aligned starting addresses within r can
// hold size bytes. r must already be aligned to align at both ends.
func spotsInRange(size, align uintptr, r addr.VirtRange) uint64 {
	if r.Empty() {
		return 0
	}
	sz := r.Size()
	if sz < size {
		return 0
	}
	return uint64((sz-size)/align) + 1
}
