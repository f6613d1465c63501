package vmm

import (
	"sync"

	"github.com/rvkernel/rvk/internal/addr"
	"github.com/rvkernel/rvk/internal/aslr"
	"github.com/rvkernel/rvk/internal/kerror"
	"github.com/rvkernel/rvk/internal/mmu"
)

var (
	// ErrAccessDenied is returned when a fault's required access exceeds
	// its region's permissions, or when no region covers the faulting
	// address at all (spec.md §4.E step 1-2).
	ErrAccessDenied = kerror.New("vmm", "access denied")
	// ErrNoSpace is returned when the allocator cannot find a free range
	// of the requested size/alignment anywhere in the configured bounds.
	ErrNoSpace = kerror.New("vmm", "no free virtual address range of the requested size")
)

// Layout describes a requested virtual allocation's size and alignment,
// mirroring pmm/arena.Layout and pmm/bootmem.Layout.
type Layout struct {
	Size  uintptr
	Align uintptr
}

// AddressSpace owns one hardware address space, its region tree, and the
// frame allocator new paged VMOs draw from (spec.md §3 "AddressSpace (high
// level)").
type AddressSpace struct {
	mu    sync.Mutex
	has   *mmu.HardwareAddressSpace
	tree  *tree
	lo    addr.VirtAddr
	hi    addr.VirtAddr
	aslr  *aslr.Randomizer
	pages FrameSource
}

// New builds an empty address space covering [lo, hi) of has's virtual
// address range.
func New(has *mmu.HardwareAddressSpace, lo, hi addr.VirtAddr, randomizer *aslr.Randomizer, pages FrameSource) *AddressSpace {
	return &AddressSpace{has: has, tree: newTree(), lo: lo, hi: hi, aslr: randomizer, pages: pages}
}

// HardwareAddressSpace exposes the underlying hardware mapper, e.g. for
// Activate().
func (as *AddressSpace) HardwareAddressSpace() *mmu.HardwareAddressSpace { return as.has }

// RegionCount reports how many regions are currently mapped.
func (as *AddressSpace) RegionCount() int {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.tree.regionCount()
}

// MakeRegion builds the Region for a freshly chosen virtual range; passed
// to Map as the factory spec.md calls make_region.
type MakeRegion func(r addr.VirtRange) *Region

// Map finds a free virtual range satisfying layout, asks factory to build
// the backing Region, inserts it into the tree, and for a Wired VMO,
// eagerly materializes its mapping (spec.md §4.E "Map"). Paged VMOs are
// left unmapped until their first fault.
func (as *AddressSpace) Map(layout Layout, perms mmu.Attrs, factory MakeRegion) (*Region, *kerror.Error) {
	as.mu.Lock()
	defer as.mu.Unlock()

	vaBits := as.has.Mode().VABits()
	spot, ok := as.aslr.FindSpot(layout.Size, layout.Align, vaBits, as.tree.gaps(as.lo, as.hi))
	if !ok {
		return nil, ErrNoSpace
	}

	virt := addr.VirtRange{Start: spot, End: spot.Add(layout.Size)}
	r := factory(virt)
	r.Range = virt
	r.Perms = perms
	if err := as.tree.insert(r); err != nil {
		return nil, err
	}

	if wired, isWired := r.VMO.(*WiredVMO); isWired {
		batch := NewBatch(as.has)
		batch.Append(r.Range, wired.PhysAt(r.VMOOffset), r.Perms)
		if err := batch.FlushChanges(); err != nil {
			as.tree.remove(r.Range.Start)
			return nil, err
		}
	}

	return r, nil
}

// Unmap removes the region starting at start, unmaps its hardware
// translations through a Batch, and drops the manager's reference to its
// VMO (spec.md §4.E "Unmap"). The caller is responsible for the VMO's own
// refcounting; this method only removes the region-tree entry and its
// hardware mappings.
func (as *AddressSpace) Unmap(start addr.VirtAddr) *kerror.Error {
	as.mu.Lock()
	defer as.mu.Unlock()

	r, err := as.tree.remove(start)
	if err != nil {
		return err
	}

	batch := NewBatch(as.has)
	batch.AppendUnmap(r.Range)
	return batch.FlushChanges()
}

// Find returns the region containing va, or nil.
func (as *AddressSpace) Find(va addr.VirtAddr) *Region {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.tree.find(va)
}

// FaultAccess is the permission the faulting trap reason requires.
type FaultAccess struct {
	Write bool
	Exec  bool
}

// HandleFault services a page fault against the address containing va,
// following spec.md §4.E's five steps: look up the region, check
// permissions, materialize a Wired slice or fault in a Paged frame, batch
// the mapping, and flush.
func (as *AddressSpace) HandleFault(va addr.VirtAddr, access FaultAccess) *kerror.Error {
	as.mu.Lock()
	defer as.mu.Unlock()

	r := as.tree.find(va)
	if r == nil {
		return ErrAccessDenied
	}

	want := AccessForReason(access.Write, access.Exec)
	if !Permits(r.Perms, want) {
		return ErrAccessDenied
	}

	pageSize := as.has.Mode().PageSize()
	pageVA := va.AlignDown(pageSize)
	offsetInVMO := r.VMOOffset + uintptr(pageVA-r.Range.Start)

	var phys addr.PhysAddr
	switch vmo := r.VMO.(type) {
	case *WiredVMO:
		phys = vmo.PhysAt(offsetInVMO)
	case *PagedVMO:
		var err *kerror.Error
		phys, err = vmo.RequireFrame(offsetInVMO, access.Write)
		if err != nil {
			return err
		}
	default:
		return kerror.New("vmm", "unknown VMO kind")
	}

	virt := addr.VirtRange{Start: pageVA, End: pageVA.Add(pageSize)}
	batch := NewBatch(as.has)
	batch.Append(virt, phys, r.Perms)
	return batch.FlushChanges()
}
