// Package physmap implements the permanent physical-memory window (spec.md
// §4.F): a single, write-once mapping of all physical RAM into the kernel
// half, installed once during boot and read by every subsystem that needs
// to turn a PhysAddr into a dereferenceable pointer (table walkers, VMO
// zero-filling, the early console). Grounded on
// original_source/libs/pmm/src/lib.rs's PhysicalAddress::from_phys
// (`physmap_offset.add(phys.as_raw())`) and
// original_source/libs/kmem-core/src/arch/mod.rs's
// `address.to_virt(self.memory_mode().physmap_base())`: the mapping is a
// single additive offset, not a page-table walk, because the window covers
// every physical frame identically and permanently.
package physmap

import (
	"sync"
	"unsafe"

	"github.com/rvkernel/rvk/internal/addr"
	"github.com/rvkernel/rvk/internal/kerror"
)

var (
	// ErrAlreadyInstalled is returned by Install if called again with a
	// different base or size.
	ErrAlreadyInstalled = kerror.New("physmap", "physmap already installed")
	// ErrNotInstalled is returned by PhysToVirt/VirtToPhys before Install
	// runs (Window panics instead).
	ErrNotInstalled = kerror.New("physmap", "physmap not installed")
	// ErrOutOfRange is returned when an address falls outside the window's
	// covered physical range.
	ErrOutOfRange = kerror.New("physmap", "address outside the physmap range")
)

var (
	once  sync.Once
	win   window
	ready bool
)

type window struct {
	base addr.VirtAddr // virtual base the window starts at
	size uintptr       // bytes covered, starting at physical address 0
}

// Install installs the global physmap window, mapping physical addresses
// [0, size) to virtual addresses [base, base+size). It must be called
// exactly once, early in boot after the MMU has mapped the window (spec.md
// §3 "BootInfo ... physmap base"); later calls with a different base or size
// return ErrAlreadyInstalled and leave the existing window in place, and a
// repeat call with the same base and size returns nil.
func Install(base addr.VirtAddr, size uintptr) *kerror.Error {
	var err *kerror.Error
	once.Do(func() {
		win = window{base: base, size: size}
		ready = true
	})
	if !ready || win.base != base || win.size != size {
		err = ErrAlreadyInstalled
	}
	return err
}

// Installed reports whether Install has run.
func Installed() bool { return ready }

func inRange(phys addr.PhysAddr, length uintptr) bool {
	end := uintptr(phys) + length
	return end >= uintptr(phys) && end <= win.size && uintptr(phys) < win.size
}

// PhysToVirt converts a physical address to its permanently-mapped virtual
// address.
func PhysToVirt(phys addr.PhysAddr) (addr.VirtAddr, *kerror.Error) {
	if !ready {
		return 0, ErrNotInstalled
	}
	if !inRange(phys, 0) {
		return 0, ErrOutOfRange
	}
	return win.base.Add(uintptr(phys)), nil
}

// VirtToPhys converts a virtual address known to lie within the physmap
// window back to its physical address.
func VirtToPhys(virt addr.VirtAddr) (addr.PhysAddr, *kerror.Error) {
	if !ready {
		return 0, ErrNotInstalled
	}
	if virt < win.base || uintptr(virt-win.base) >= win.size {
		return 0, ErrOutOfRange
	}
	return addr.PhysAddr(uintptr(virt - win.base)), nil
}

// Window returns an unsafe.Pointer to length bytes of physical memory
// starting at phys, through the permanent window. This is the sole
// sanctioned way to dereference physical memory outside of the MMU's own
// page-table walk; mmu.PhysWindow and vmm's VMO zero-fill callbacks are
// both built on it.
func Window(phys addr.PhysAddr, length uintptr) unsafe.Pointer {
	if !ready {
		panic("physmap: Window called before Install")
	}
	if !inRange(phys, length) {
		panic("physmap: address range outside the physmap window")
	}
	virt := win.base.Add(uintptr(phys))
	return unsafe.Pointer(uintptr(virt))
}

// ZeroFill zeroes length bytes of physical memory starting at phys, through
// the physmap window. It is the zeroFill callback vmm.NewPagedVMO expects.
func ZeroFill(phys addr.PhysAddr, length uintptr) {
	p := Window(phys, length)
	buf := unsafe.Slice((*byte)(p), length)
	for i := range buf {
		buf[i] = 0
	}
}
