// Package bootmem implements the bootstrap physical frame allocator: a
// one-shot, top-down bump allocator carved out of the memory regions the
// loader hands off to the kernel. It mirrors the teacher's
// kernel/mem/pmm/allocator.BootMemAllocator in spirit (replay-free
// bookkeeping, monotonic allocation) but serves arbitrary-sized, aligned
// layouts top-down within the highest region that still fits, per
// spec.md §4.B.
package bootmem

import (
	"sort"

	"github.com/rvkernel/rvk/internal/addr"
	"github.com/rvkernel/rvk/internal/kerror"
)

var (
	// ErrExhausted is returned when no region can satisfy a request.
	ErrExhausted = kerror.New("bootmem", "out of memory")
	// ErrBadLayout is returned for a zero-size or non-power-of-two-aligned layout.
	ErrBadLayout = kerror.New("bootmem", "invalid layout")
)

// Layout describes an allocation request: size bytes aligned to align,
// where align must be a power of two.
type Layout struct {
	Size  uintptr
	Align uintptr
}

// region tracks the still-unallocated tail of one input memory region.
// Allocation proceeds top-down, so `end` retreats toward `start` as frames
// are handed out; `start` never moves.
type region struct {
	start addr.PhysAddr
	end   addr.PhysAddr // exclusive, shrinks as allocations are carved off the top
}

// Allocator is a bump allocator over a sorted, non-overlapping, page-aligned
// set of physical memory regions. It never frees: see Deallocate.
type Allocator struct {
	regions  []region
	used     []addr.PhysRange
	pageSize uintptr
}

// New builds an Allocator from the free physical ranges reported at boot
// (spec.md §6 BootInfo.free_memory). Ranges need not be pre-sorted; New
// sorts them and drops empty ones. It does not check that they are disjoint.
func New(pageSize uintptr, free []addr.PhysRange) *Allocator {
	sorted := append([]addr.PhysRange(nil), free...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	a := &Allocator{pageSize: pageSize}
	for _, r := range sorted {
		if r.Empty() {
			continue
		}
		a.regions = append(a.regions, region{start: r.Start, end: r.End})
	}
	return a
}

// AllocateContiguous reserves a page-aligned, layout-sized block, searching
// regions from the highest address down and, within a region, allocating
// from its current top. A request that would straddle the boundary between
// the current top and the start of the region is rejected for that region
// (the wasted tail is not tracked as "used" since it was never handed to a
// region with insufficient remaining space); the search then continues into
// lower regions.
func (a *Allocator) AllocateContiguous(l Layout) (addr.PhysAddr, *kerror.Error) {
	if l.Size == 0 || l.Align == 0 || l.Align&(l.Align-1) != 0 {
		return 0, ErrBadLayout
	}

	for i := len(a.regions) - 1; i >= 0; i-- {
		r := &a.regions[i]
		if r.end <= r.start || uintptr(r.end) < l.Size {
			continue
		}

		candidateEnd := r.end
		candidateStart := candidateEnd.Sub(l.Size).AlignDown(l.Align)
		if candidateStart < r.start {
			continue
		}

		r.end = candidateStart
		used := addr.PhysRange{Start: candidateStart, End: candidateStart.Add(l.Size)}
		a.used = append(a.used, used)
		return candidateStart, nil
	}

	return 0, ErrExhausted
}

// AllocateZeroed behaves like AllocateContiguous. Actual zeroing of the
// returned frame is the caller's responsibility: it must go through
// whichever identity/physmap window is active at boot time, which this
// package — being agnostic of the hardware address space — cannot reach
// directly. zero is a caller-supplied callback used to perform the zeroing
// (e.g. via the boot-time identity map); it is invoked with the returned
// address and layout size.
func (a *Allocator) AllocateZeroed(l Layout, zero func(addr.PhysAddr, uintptr)) (addr.PhysAddr, *kerror.Error) {
	p, err := a.AllocateContiguous(l)
	if err != nil {
		return 0, err
	}
	if zero != nil {
		zero(p, l.Size)
	}
	return p, nil
}

// Deallocate is unimplemented: the bootstrap allocator is monotonic by
// design (spec.md §4.B). It exists only so callers can type-check against a
// common frame-allocator-ish interface; calling it is a programming error.
func (a *Allocator) Deallocate(addr.PhysAddr, Layout) {
	panic("bootmem: Deallocate is not supported; the bootstrap allocator is monotonic")
}

// UsedRanges returns every range handed out so far, in allocation order.
// Only this package's tests call it; the arena allocator has no step that
// reads these ranges.
func (a *Allocator) UsedRanges() []addr.PhysRange {
	return append([]addr.PhysRange(nil), a.used...)
}

// FreeRegions returns the remaining unallocated tail of every input region,
// handed to the arena allocator to seed its buddy structures.
func (a *Allocator) FreeRegions() []addr.PhysRange {
	out := make([]addr.PhysRange, 0, len(a.regions))
	for _, r := range a.regions {
		if r.end > r.start {
			out = append(out, addr.PhysRange{Start: r.start, End: r.end})
		}
	}
	return out
}
