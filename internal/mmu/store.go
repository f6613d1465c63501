package mmu

import (
	"github.com/rvkernel/rvk/internal/addr"
	"github.com/rvkernel/rvk/internal/kerror"
)

// Table is a fixed-size, architecture-tagged page table. Its length is
// always mode.EntriesPerTable() for the owning HardwareAddressSpace's mode.
type Table []PTE

// TableStore is the seam between the page-table walker and physical
// memory. In the kernel this is backed by the permanent physmap window
// (package physmap) plus the frame allocator; in tests it is backed by a
// plain in-memory map, mirroring how the teacher's pdt.go drops down to raw
// memory only at the edges (map.go's pdtEntryAddress/tableForEntry style
// helpers).
type TableStore interface {
	// AllocTable reserves and zeroes one page-sized table and returns its
	// physical address.
	AllocTable() (addr.PhysAddr, *kerror.Error)
	// FreeTable releases a table frame previously returned by AllocTable.
	FreeTable(phys addr.PhysAddr)
	// Table returns a mutable view of the table at phys. The returned slice
	// aliases the underlying storage; writes are visible immediately.
	Table(phys addr.PhysAddr) Table
}
