// Package goruntime hooks the Go runtime's own memory allocator
// (runtime.sysReserve/sysMap/sysAlloc) to the kernel's hardware address
// space and physical frame allocator, so that once the arena allocator
// (component C) and a hardware address space (component D) exist, the
// Go heap can grow on top of them instead of needing its own platform
// mmap. Grounded on kernel/goruntime/bootstrap.go's //go:linkname
// redirection of the same three functions, generalized from amd64's
// vmm.Map/allocator.AllocFrame to RISC-V's mmu.HardwareAddressSpace and
// pmm/arena.Allocator.
package goruntime

import (
	"sync"
	"unsafe"

	"github.com/rvkernel/rvk/internal/addr"
	"github.com/rvkernel/rvk/internal/kerror"
	"github.com/rvkernel/rvk/internal/mmu"
	"github.com/rvkernel/rvk/internal/pmm/arena"
)

var (
	mu sync.Mutex

	activeSpace *mmu.HardwareAddressSpace
	frameAlloc  *arena.Allocator
	nextVirt    addr.VirtAddr
	heapEnd     addr.VirtAddr
)

// Init records the address space and frame allocator the Go allocator
// hooks below should use, and the virtual range reserved for the Go
// heap (spec.md §4.D's caller-chosen heap window, not claimed by this
// package on its own).
func Init(space *mmu.HardwareAddressSpace, frames *arena.Allocator, heap addr.VirtRange) {
	mu.Lock()
	defer mu.Unlock()
	activeSpace = space
	frameAlloc = frames
	nextVirt = heap.Start
	heapEnd = heap.End
}

//go:linkname mSysStatInc runtime.mSysStatInc
func mSysStatInc(*uint64, uintptr)

// reserveRegion bumps the next-free pointer inside the heap window
// handed to Init, page-aligning the request. It never unwinds: like
// the original's EarlyReserveRegion, this path runs once per Go
// allocator arena grab, not in a hot loop, so a monotonic bump
// allocator is sufficient.
func reserveRegion(size uintptr) (addr.VirtAddr, *kerror.Error) {
	mu.Lock()
	defer mu.Unlock()

	pageSize := frameAlloc.PageSize()
	aligned := (size + pageSize - 1) &^ (pageSize - 1)

	start := nextVirt
	end := start.Add(aligned)
	if uintptr(end) > uintptr(heapEnd) {
		return 0, kerror.New("goruntime", "heap window exhausted")
	}
	nextVirt = end
	return start, nil
}

// mapRegion allocates one frame per page of [virt, virt+size) and maps
// it into activeSpace with attrs, backing the reservation eagerly. The
// original's sysMap instead mapped every page to one shared
// copy-on-write zero frame, deferring real allocation to the first
// write fault; this package has no zero-frame/copy-on-write primitive
// to reuse (internal/mmu's fault path is scoped to spec.md §4.D's
// demand-paging-free design), so it allocates eagerly. This costs more
// physical memory up front but is otherwise observably identical to a
// caller that immediately touches every page it reserves, which is how
// the Go allocator uses sysMap in practice. It passes arena.NoHart to
// every Allocate call: the Go scheduler may invoke these hooks from more
// than one OS thread at once, and this package has no hart-exclusive
// calling convention to assert, so it always takes the arena-locked path
// rather than risk an unsynchronized per-hart cache slot shared by two
// concurrent callers.
func mapRegion(virt addr.VirtAddr, size uintptr, attrs mmu.Attrs) *kerror.Error {
	pageSize := frameAlloc.PageSize()
	pages := (size + pageSize - 1) / pageSize

	for i := uintptr(0); i < pages; i++ {
		frame, err := frameAlloc.Allocate(arena.NoHart, arena.Layout{Size: pageSize, Align: pageSize})
		if err != nil {
			return err
		}

		va := virt.Add(i * pageSize)
		vr := addr.VirtRange{Start: va, End: va.Add(pageSize)}
		if _, err := activeSpace.MapContiguous(vr, frame.Address(pageShiftOf(frameAlloc)), attrs); err != nil {
			return err
		}
	}
	return nil
}

// pageShiftOf recovers the page shift from an Allocator's PageSize,
// since Allocator keeps it unexported.
func pageShiftOf(al *arena.Allocator) uint {
	size := al.PageSize()
	shift := uint(0)
	for size > 1 {
		size >>= 1
		shift++
	}
	return shift
}

// sysReserve reserves address space without allocating any memory or
// establishing any page mappings. Replaces runtime.sysReserve.
//
//go:nosplit
func sysReserve(_ unsafe.Pointer, size uintptr, reserved *bool) unsafe.Pointer {
	region, err := reserveRegion(size)
	if err != nil {
		panic(err)
	}
	*reserved = true
	return unsafe.Pointer(uintptr(region))
}

// sysMap establishes a mapping for a region previously reserved via
// sysReserve. Replaces runtime.sysMap.
//
//go:nosplit
func sysMap(virtAddr unsafe.Pointer, size uintptr, reserved bool, sysStat *uint64) unsafe.Pointer {
	if !reserved {
		panic("goruntime: sysMap should only be called with reserved=true")
	}

	pageSize := frameAlloc.PageSize()
	region := addr.VirtAddr(uintptr(virtAddr)).AlignUp(pageSize)
	aligned := (size + pageSize - 1) &^ (pageSize - 1)

	if err := mapRegion(region, aligned, mmu.RW()); err != nil {
		return unsafe.Pointer(uintptr(0))
	}

	mSysStatInc(sysStat, uintptr(aligned))
	return unsafe.Pointer(uintptr(region))
}

// sysAlloc reserves virtual address space and backs it with physical
// frames in one step. Replaces runtime.sysAlloc.
//
//go:nosplit
func sysAlloc(size uintptr, sysStat *uint64) unsafe.Pointer {
	region, err := reserveRegion(size)
	if err != nil {
		return unsafe.Pointer(uintptr(0))
	}

	pageSize := frameAlloc.PageSize()
	aligned := (size + pageSize - 1) &^ (pageSize - 1)
	if err := mapRegion(region, aligned, mmu.RW()); err != nil {
		return unsafe.Pointer(uintptr(0))
	}

	mSysStatInc(sysStat, uintptr(aligned))
	return unsafe.Pointer(uintptr(region))
}
