// Package mmu implements the hardware address space layer: a multi-level
// RISC-V page table (Sv39/Sv48/Sv57, spec.md §4.D) with a cursor-based
// walker, TLB shootdown batching, and the map/unmap/query/activate
// operations named in spec.md §4.D. It is grounded on the teacher's
// kernel/mem/vmm page-table code (pdt.go, map.go, translate.go, walk.go),
// generalized from the teacher's fixed two-level amd64 scheme to an
// arbitrary-depth, architecture-tagged table per
// original_source/libs/kmem/src/arch/riscv64.rs.
package mmu

import (
	"github.com/rvkernel/rvk/internal/addr"
	"github.com/rvkernel/rvk/internal/kerror"
)

// PTE is one architecture-tagged page table entry. The bit layout follows
// the RISC-V Sv39/48/57 PTE format: V|R|W|X|U|G|A|D in the low 8 bits, 2
// bits reserved for software use, a 44-bit PPN, and reserved/PBMT/N bits
// above it (the latter are never set by this implementation).
type PTE uint64

const (
	bitValid    = 1 << 0
	bitRead     = 1 << 1
	bitWrite    = 1 << 2
	bitExec     = 1 << 3
	bitUser     = 1 << 4
	bitGlob     = 1 << 5
	bitAccessed = 1 << 6
	bitDirty    = 1 << 7

	ppnShift = 10
	ppnMask  = (uint64(1)<<44 - 1) << ppnShift
)

// Attrs describes the permission/caching bits of a leaf mapping.
type Attrs struct {
	Read, Write, Exec bool
	User              bool
	Global            bool
}

// RW is shorthand for the common read+write kernel mapping.
func RW() Attrs { return Attrs{Read: true, Write: true} }

// RX is shorthand for a read+execute kernel mapping.
func RX() Attrs { return Attrs{Read: true, Exec: true} }

// RO is shorthand for a read-only mapping.
func RO() Attrs { return Attrs{Read: true} }

func (a Attrs) bits() uint64 {
	var b uint64 = bitValid
	if a.Read {
		b |= bitRead
	}
	if a.Write {
		b |= bitWrite
	}
	if a.Exec {
		b |= bitExec
	}
	if a.User {
		b |= bitUser
	}
	if a.Global {
		b |= bitGlob
	}
	return b
}

func attrsFromBits(b uint64) Attrs {
	return Attrs{
		Read:   b&bitRead != 0,
		Write:  b&bitWrite != 0,
		Exec:   b&bitExec != 0,
		User:   b&bitUser != 0,
		Global: b&bitGlob != 0,
	}
}

// EntryKind is the semantic state a PTE can be observed in.
type EntryKind int

const (
	// Vacant means the entry has never been installed (V=0).
	Vacant EntryKind = iota
	// LeafKind means the entry maps a physical frame directly.
	LeafKind
	// TableKind means the entry points at the next-level table.
	TableKind
)

// Kind classifies the entry. A valid entry with no R/W/X bits set points at
// a child table; any R/W/X bit set makes it a leaf, per the RISC-V spec
// (and original_source's is_leaf/is_table convention).
func (p PTE) Kind() EntryKind {
	if p&bitValid == 0 {
		return Vacant
	}
	if p&(bitRead|bitWrite|bitExec) != 0 {
		return LeafKind
	}
	return TableKind
}

// Addr extracts the physical page number field and returns the
// page-aligned physical address it names.
func (p PTE) Addr(pageShift uint) addr.PhysAddr {
	ppn := (uint64(p) & ppnMask) >> ppnShift
	return addr.PhysAddr(ppn << pageShift)
}

// Attrs returns the leaf attributes encoded in the entry. Calling it on a
// non-leaf entry returns the zero value.
func (p PTE) Attrs() Attrs {
	return attrsFromBits(uint64(p))
}

func newLeaf(phys addr.PhysAddr, pageShift uint, a Attrs) PTE {
	ppn := uint64(phys) >> pageShift
	return PTE(a.bits() | (ppn << ppnShift))
}

func newTable(phys addr.PhysAddr, pageShift uint) PTE {
	ppn := uint64(phys) >> pageShift
	return PTE(bitValid | (ppn << ppnShift))
}

// setAttrsOnly rewrites the permission bits of a leaf entry in place,
// leaving its physical address untouched (used by SetAttributes).
func (p PTE) setAttrsOnly(a Attrs) PTE {
	return PTE((uint64(p) &^ (bitRead | bitWrite | bitExec | bitUser | bitGlob)) | a.bits() | bitValid)
}

var (
	// ErrAddressAlignment is returned when a virtual/physical endpoint is
	// not aligned to the page size.
	ErrAddressAlignment = kerror.New("mmu", "address not page aligned")
	// ErrAlreadyMapped is returned by MapContiguous when the destination
	// range is already mapped to a different physical range.
	ErrAlreadyMapped = kerror.New("mmu", "virtual range already mapped to a different physical range")
	// ErrNotMapped is returned by Unmap/SetAttributes/Query for an address
	// with no leaf mapping.
	ErrNotMapped = kerror.New("mmu", "virtual address not mapped")
	// ErrHugePage is returned when a walk encounters a leaf where it
	// expected an intermediate table (spec.md §4.D "programming error").
	ErrHugePage = kerror.New("mmu", "unexpected leaf entry where a table was expected")
)
