package mmu

import (
	"runtime"

	"github.com/rvkernel/rvk/internal/addr"
	"github.com/rvkernel/rvk/internal/kfmt"
)

// Flush accumulates the virtual ranges invalidated by a map/unmap/
// set_attributes batch so the shootdown can be issued once at the end of
// the batch rather than after every single page (spec.md §4.D "Flush",
// §5 ordering guarantee (ii): "a Flush must be disposed of via flush() or
// ignore() before the page tables it describes are observed again").
//
// A Flush that is dropped without either call is a bug: the stale TLB
// entries it was tracking would otherwise silently survive. newFlush
// registers a finalizer (leakedFlush) that reports this the way the teacher's Spinlock
// reports a double-unlock, as a loud diagnostic rather than a panic deep
// inside the garbage collector.
type Flush struct {
	asid     Asid
	ranges   []addr.VirtRange
	disposed bool
}

func newFlush(asid Asid) *Flush {
	f := &Flush{asid: asid}
	runtime.SetFinalizer(f, leakedFlush)
	return f
}

func (f *Flush) add(r addr.VirtRange) {
	f.ranges = append(f.ranges, r)
}

// Flush issues the local TLB shootdown for every accumulated range and
// marks the accumulator disposed. Remote-hart shootdown (spec.md §5's
// cross-CPU IPI step) is the caller's responsibility once MapContiguous/
// Unmap/SetAttributes return; this method only covers the local hart's
// sfence.vma, matching original_source's fence()/fence_all() split.
func (f *Flush) Flush() {
	if f.disposed {
		return
	}
	for _, r := range f.ranges {
		fenceRange(uint64(f.asid), uint64(r.Start), uint64(r.Size()))
	}
	f.disposed = true
	runtime.SetFinalizer(f, nil)
}

// Ignore marks the accumulator disposed without issuing a shootdown, for
// the case where the caller already knows no translation for this range
// was ever cached (e.g. first-time mapping of a previously vacant range
// with no aliasing TLB entry possible).
func (f *Flush) Ignore() {
	f.disposed = true
	runtime.SetFinalizer(f, nil)
}

func leakedFlush(f *Flush) {
	if !f.disposed {
		kfmt.Printf("mmu: Flush for asid %d garbage collected without flush() or ignore() (%d ranges leaked)\n", int(f.asid), len(f.ranges))
	}
}
