// Package vmm implements the virtual-memory manager (spec.md §4.E): an
// augmented interval tree of regions, wired/paged VMOs, batched hardware
// updates, and page-fault servicing. It is layered directly on package mmu
// (component D) and has no teacher-file grounding of its own — gopher-os's
// vmm package only manages page tables, not a region tree — so this
// package is built from the spec and original_source/kernel/src/vm/
// address_space_region.rs, written in the surrounding packages' idiom
// (kerror sentinels, struct-per-concern files, table-driven tests).
package vmm

import (
	"sync"

	"github.com/rvkernel/rvk/internal/addr"
	"github.com/rvkernel/rvk/internal/kerror"
	"github.com/rvkernel/rvk/internal/mmu"
)

// VMO is the source of pages for a region (spec.md §3 "VMO").
type VMO interface {
	// Size returns the VMO's length in bytes.
	Size() uintptr
}

// WiredVMO maps a fixed physical range that is never paged out.
type WiredVMO struct {
	Phys addr.PhysRange
}

// NewWiredVMO wraps a fixed physical range.
func NewWiredVMO(phys addr.PhysRange) *WiredVMO { return &WiredVMO{Phys: phys} }

// Size implements VMO.
func (w *WiredVMO) Size() uintptr { return w.Phys.Size() }

// PhysAt returns the physical address backing the given byte offset.
func (w *WiredVMO) PhysAt(offset uintptr) addr.PhysAddr {
	return w.Phys.Start.Add(offset)
}

// FrameSource is the frame source a PagedVMO draws on to fault in new
// frames; it is the same shape mmu.FrameAllocator uses for
// table frames, kept as its own named type since a VMO's frames and a
// HardwareAddressSpace's table frames are conceptually different pools
// even when, as in this kernel, they're drawn from the same allocator.
type FrameSource = mmu.FrameAllocator

// PagedVMO owns a sparse array of refcounted frames allocated on demand
// (spec.md §3 "VMO ... Paged: owns an array of refcounted frames,
// allocated on fault").
type PagedVMO struct {
	mu       sync.Mutex
	size     uintptr
	pageSize uintptr
	frames   map[uintptr]addr.PhysAddr // page-aligned offset -> backing frame
	source   FrameSource
	zeroFill func(phys addr.PhysAddr, length uintptr)
}

// NewPagedVMO creates an empty paged VMO of the given size. zeroFill must
// write zeroes to the physical frame through the physmap window (this
// package never touches physical memory directly).
func NewPagedVMO(size, pageSize uintptr, source FrameSource, zeroFill func(addr.PhysAddr, uintptr)) *PagedVMO {
	return &PagedVMO{size: size, pageSize: pageSize, frames: make(map[uintptr]addr.PhysAddr), source: source, zeroFill: zeroFill}
}

// Size implements VMO.
func (p *PagedVMO) Size() uintptr { return p.size }

// RequireFrame returns the frame backing the page containing offset,
// allocating and zero-filling a fresh one on first access (spec.md §4.E
// step 4, "require_frame"). cause_is_write is accepted for parity with the
// spec's signature; this VMO has no copy-on-write sharing yet, so every
// access (read or write) to an unbacked page allocates the same way.
func (p *PagedVMO) RequireFrame(offset uintptr, causeIsWrite bool) (addr.PhysAddr, *kerror.Error) {
	pageOffset := offset &^ (p.pageSize - 1)

	p.mu.Lock()
	defer p.mu.Unlock()

	if phys, ok := p.frames[pageOffset]; ok {
		return phys, nil
	}

	phys, err := p.source.Allocate(p.pageSize, p.pageSize)
	if err != nil {
		return 0, err
	}
	p.zeroFill(phys, p.pageSize)
	p.frames[pageOffset] = phys
	return phys, nil
}

// Frames returns every currently-backed page offset, for teardown.
func (p *PagedVMO) Frames() map[uintptr]addr.PhysAddr {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[uintptr]addr.PhysAddr, len(p.frames))
	for k, v := range p.frames {
		out[k] = v
	}
	return out
}

// AccessForReason derives the permission bits a trap reason requires, used
// by page-fault servicing to check a region's permissions (spec.md §4.E
// step 2).
func AccessForReason(write, exec bool) mmu.Attrs {
	a := mmu.Attrs{Read: true}
	a.Write = write
	a.Exec = exec
	return a
}

// Permits reports whether region permissions satisfy the requested access.
func Permits(have, want mmu.Attrs) bool {
	if want.Write && !have.Write {
		return false
	}
	if want.Exec && !have.Exec {
		return false
	}
	if want.Read && !have.Read {
		return false
	}
	return true
}
