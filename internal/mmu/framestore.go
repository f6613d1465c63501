package mmu

import (
	"unsafe"

	"github.com/rvkernel/rvk/internal/addr"
	"github.com/rvkernel/rvk/internal/kerror"
)

// FrameAllocator is the page-frame source this package needs, in byte sizes
// and physical addresses; *pmm/arena.Allocator's own Allocate/Deallocate
// take a hart and a Layout and deal in Frames, so it does not match this
// interface as is. It is kept as an interface so mmu never imports pmm/arena directly: the
// hardware address space depends on "a source of page-aligned physical
// memory," not on the buddy allocator's concrete type.
type FrameAllocator interface {
	Allocate(size, align uintptr) (addr.PhysAddr, *kerror.Error)
	Deallocate(phys addr.PhysAddr, size, align uintptr)
}

// PhysWindow maps length bytes of physical memory starting at phys into
// the kernel's permanent identity window (package physmap) and returns a
// pointer to the mapped bytes.
type PhysWindow func(phys addr.PhysAddr, length uintptr) unsafe.Pointer

// physFrameStore is the TableStore the running kernel plugs into every
// HardwareAddressSpace: table frames come from the physical frame
// allocator and are accessed through the physmap window, mirroring how the
// teacher's pdt.go resolves a physical frame to a usable *pageTable via its
// direct-mapped region rather than a temporary per-access mapping.
type physFrameStore struct {
	frames FrameAllocator
	window PhysWindow
	mode   MemoryMode
}

// NewPhysFrameStore builds the kernel's real TableStore.
func NewPhysFrameStore(mode MemoryMode, frames FrameAllocator, window PhysWindow) TableStore {
	return &physFrameStore{frames: frames, window: window, mode: mode}
}

func (s *physFrameStore) AllocTable() (addr.PhysAddr, *kerror.Error) {
	pageSize := s.mode.PageSize()
	phys, err := s.frames.Allocate(pageSize, pageSize)
	if err != nil {
		return 0, err
	}
	tbl := s.Table(phys)
	for i := range tbl {
		tbl[i] = PTE(0)
	}
	return phys, nil
}

func (s *physFrameStore) FreeTable(phys addr.PhysAddr) {
	pageSize := s.mode.PageSize()
	s.frames.Deallocate(phys, pageSize, pageSize)
}

func (s *physFrameStore) Table(phys addr.PhysAddr) Table {
	n := s.mode.EntriesPerTable()
	ptr := s.window(phys, uintptr(n)*8)
	return unsafe.Slice((*PTE)(ptr), n)
}
