package mmu

import (
	"github.com/rvkernel/rvk/internal/addr"
	"github.com/rvkernel/rvk/internal/kerror"
)

// Asid is a hardware address-space identifier, narrowed to what RISC-V's
// satp ASID field can hold.
type Asid uint16

// HardwareAddressSpace owns one root page table and its ASID (spec.md §4.D
// "HardwareAddressSpace"). It is the generalization of the teacher's
// PageDirectoryTable to an arbitrary-depth, mode-parameterized table.
type HardwareAddressSpace struct {
	mode  MemoryMode
	root  addr.PhysAddr
	asid  Asid
	store TableStore
}

// New allocates a fresh root table and returns an empty address space for
// the given mode.
func New(mode MemoryMode, asid Asid, store TableStore) (*HardwareAddressSpace, *kerror.Error) {
	root, err := store.AllocTable()
	if err != nil {
		return nil, err
	}
	return &HardwareAddressSpace{mode: mode, root: root, asid: asid, store: store}, nil
}

// Mode returns the paging scheme this address space uses.
func (h *HardwareAddressSpace) Mode() MemoryMode { return h.mode }

// Root returns the physical address of the root table, for Activate/satp.
func (h *HardwareAddressSpace) Root() addr.PhysAddr { return h.root }

// Asid returns the address space's hardware ASID.
func (h *HardwareAddressSpace) Asid() Asid { return h.asid }

func alignedTo(a uintptr, align uintptr) bool { return a&(align-1) == 0 }

// MapContiguous installs leaf entries mapping virt, page by page, onto a
// contiguous run of physical frames starting at phys (spec.md §4.D
// "map_contiguous"). It returns a Flush accumulating every newly-valid
// virtual page so the caller can shoot down stale TLB entries once, after
// the whole range (or a merged batch of ranges) has been installed. A page
// already mapped to the same frame is left unchanged, attributes included;
// a page mapped to a different frame fails with ErrAlreadyMapped.
func (h *HardwareAddressSpace) MapContiguous(virt addr.VirtRange, phys addr.PhysAddr, a Attrs) (*Flush, *kerror.Error) {
	pageSize := h.mode.PageSize()
	if !alignedTo(uintptr(virt.Start), pageSize) || !alignedTo(uintptr(virt.End), pageSize) {
		return nil, ErrAddressAlignment
	}
	if !alignedTo(uintptr(phys), pageSize) {
		return nil, ErrAddressAlignment
	}

	flush := newFlush(h.asid)
	va := virt.Start
	pa := phys
	for va < virt.End {
		c, err := h.descend(va, true)
		if err != nil {
			return nil, err
		}
		if leaf := c.leafEntry(); leaf.Kind() != Vacant {
			if leaf.Kind() != LeafKind || leaf.Addr(h.mode.PageShift) != pa {
				return nil, ErrAlreadyMapped
			}
		} else {
			c.setLeaf(newLeaf(pa, h.mode.PageShift, a))
			flush.add(addr.VirtRange{Start: va, End: va + addr.VirtAddr(pageSize)})
		}

		va += addr.VirtAddr(pageSize)
		pa += addr.PhysAddr(pageSize)
	}
	return flush, nil
}

// Unmap clears every leaf entry covering virt and reclaims any intermediate
// table left entirely vacant (spec.md §4.D "unmap"). Every page in the
// range must already be mapped.
func (h *HardwareAddressSpace) Unmap(virt addr.VirtRange) (*Flush, *kerror.Error) {
	pageSize := h.mode.PageSize()
	if !alignedTo(uintptr(virt.Start), pageSize) || !alignedTo(uintptr(virt.End), pageSize) {
		return nil, ErrAddressAlignment
	}

	flush := newFlush(h.asid)
	for va := virt.Start; va < virt.End; va += addr.VirtAddr(pageSize) {
		c, err := h.descend(va, false)
		if err != nil {
			return nil, err
		}
		if c.leafEntry().Kind() != LeafKind {
			return nil, ErrNotMapped
		}
		c.setLeaf(PTE(0))
		h.pruneEmptyTables(c)
		flush.add(addr.VirtRange{Start: va, End: va + addr.VirtAddr(pageSize)})
	}
	return flush, nil
}

// SetAttributes rewrites the permission bits of every leaf covering virt
// without touching its physical mapping (spec.md §4.D "set_attributes").
func (h *HardwareAddressSpace) SetAttributes(virt addr.VirtRange, a Attrs) (*Flush, *kerror.Error) {
	pageSize := h.mode.PageSize()
	if !alignedTo(uintptr(virt.Start), pageSize) || !alignedTo(uintptr(virt.End), pageSize) {
		return nil, ErrAddressAlignment
	}

	flush := newFlush(h.asid)
	for va := virt.Start; va < virt.End; va += addr.VirtAddr(pageSize) {
		c, err := h.descend(va, false)
		if err != nil {
			return nil, err
		}
		if c.leafEntry().Kind() != LeafKind {
			return nil, ErrNotMapped
		}
		c.setLeaf(c.leafEntry().setAttrsOnly(a))
		flush.add(addr.VirtRange{Start: va, End: va + addr.VirtAddr(pageSize)})
	}
	return flush, nil
}

// QueryResult reports what a single virtual address currently maps to.
type QueryResult struct {
	Phys  addr.PhysAddr
	Attrs Attrs
}

// Query resolves one virtual address to its physical mapping and current
// attributes (spec.md §4.D "query"). It does not allocate and never
// returns a Flush, since it mutates nothing.
func (h *HardwareAddressSpace) Query(va addr.VirtAddr) (QueryResult, *kerror.Error) {
	pageSize := h.mode.PageSize()
	c, err := h.descend(va, false)
	if err != nil {
		return QueryResult{}, err
	}
	entry := c.leafEntry()
	if entry.Kind() != LeafKind {
		return QueryResult{}, ErrNotMapped
	}
	offset := uintptr(va) & (pageSize - 1)
	return QueryResult{
		Phys:  entry.Addr(h.mode.PageShift) + addr.PhysAddr(offset),
		Attrs: entry.Attrs(),
	}, nil
}

// Activate installs this address space as the active one on the current
// hart (spec.md §4.D "activate"), writing satp and issuing a local
// sfence.vma. The actual CSR write lives in the architecture stub in
// arch_riscv64.go/.s, following the teacher's pattern of isolating the
// single privileged instruction behind a tiny asm function
// (kernel/mem/vmm: switchPDT/activePDT).
func (h *HardwareAddressSpace) Activate() {
	setActiveTable(h.mode.SATPMode, uint64(h.asid), uint64(h.root)>>h.mode.PageShift)
	fenceAll()
}
