package vmm

import (
	"testing"

	"github.com/rvkernel/rvk/internal/addr"
	"github.com/rvkernel/rvk/internal/aslr"
	"github.com/rvkernel/rvk/internal/kerror"
	"github.com/rvkernel/rvk/internal/mmu"
)

// fakeTableStore is an in-memory mmu.TableStore, independent from the one
// in package mmu's own tests (that one is unexported to that package).
type fakeTableStore struct {
	entries int
	next    addr.PhysAddr
	tables  map[addr.PhysAddr]mmu.Table
}

func newFakeTableStore(entries int) *fakeTableStore {
	return &fakeTableStore{entries: entries, next: 0x1000, tables: make(map[addr.PhysAddr]mmu.Table)}
}

func (s *fakeTableStore) AllocTable() (addr.PhysAddr, *kerror.Error) {
	phys := s.next
	s.next += 0x1000
	s.tables[phys] = make(mmu.Table, s.entries)
	return phys, nil
}
func (s *fakeTableStore) FreeTable(phys addr.PhysAddr) { delete(s.tables, phys) }
func (s *fakeTableStore) Table(phys addr.PhysAddr) mmu.Table {
	t, ok := s.tables[phys]
	if !ok {
		panic("vmm test: unknown table")
	}
	return t
}

// fakeFrames is a trivial bump frame source over [0x100000, 0x200000).
type fakeFrames struct {
	next addr.PhysAddr
}

func newFakeFrames() *fakeFrames { return &fakeFrames{next: 0x100000} }

func (f *fakeFrames) Allocate(size, align uintptr) (addr.PhysAddr, *kerror.Error) {
	phys := f.next
	f.next += addr.PhysAddr(size)
	return phys, nil
}
func (f *fakeFrames) Deallocate(phys addr.PhysAddr, size, align uintptr) {}

func newTestAddressSpace(t *testing.T, randomizer *aslr.Randomizer) (*AddressSpace, *fakeFrames) {
	t.Helper()
	store := newFakeTableStore(mmu.Sv39.EntriesPerTable())
	has, err := mmu.New(mmu.Sv39, 0, store)
	if err != nil {
		t.Fatalf("mmu.New: %v", err)
	}
	frames := newFakeFrames()
	as := New(has, 0x10000000, 0x20000000, randomizer, frames)
	return as, frames
}

func TestMapWiredRegionIsImmediatelyQueryable(t *testing.T) {
	as, _ := newTestAddressSpace(t, aslr.New(nil))
	pageSize := mmu.Sv39.PageSize()
	phys := addr.PhysAddr(0x80000000)

	r, err := as.Map(Layout{Size: pageSize, Align: pageSize}, mmu.RW(), func(v addr.VirtRange) *Region {
		return &Region{VMO: NewWiredVMO(addr.PhysRange{Start: phys, End: phys.Add(pageSize)})}
	})
	if err != nil {
		t.Fatalf("Map: %v", err)
	}

	res, qerr := as.HardwareAddressSpace().Query(r.Range.Start)
	if qerr != nil {
		t.Fatalf("Query: %v", qerr)
	}
	if res.Phys != phys {
		t.Fatalf("Query().Phys = %#x, want %#x", uint64(res.Phys), uint64(phys))
	}
}

func TestMapFailsWhenAddressSpaceIsFull(t *testing.T) {
	as, _ := newTestAddressSpace(t, aslr.New(nil))
	pageSize := mmu.Sv39.PageSize()

	// An address space with room for exactly one page: the first Map takes
	// the only slot and the second finds no free range.
	as2 := &AddressSpace{has: as.has, tree: newTree(), lo: 0x10000000, hi: addr.VirtAddr(0x10000000 + pageSize), aslr: aslr.New(nil), pages: as.pages}

	phys := addr.PhysAddr(0x80000000)
	factory := func(v addr.VirtRange) *Region {
		return &Region{VMO: NewWiredVMO(addr.PhysRange{Start: phys, End: phys.Add(pageSize)})}
	}

	if _, err := as2.Map(Layout{Size: pageSize, Align: pageSize}, mmu.RW(), factory); err != nil {
		t.Fatalf("first Map: %v", err)
	}
	if _, err := as2.Map(Layout{Size: pageSize, Align: pageSize}, mmu.RW(), factory); err != ErrNoSpace {
		t.Fatalf("second Map = %v, want ErrNoSpace (address space exhausted)", err)
	}
}

func TestUnmapThenQueryFails(t *testing.T) {
	as, _ := newTestAddressSpace(t, aslr.New(nil))
	pageSize := mmu.Sv39.PageSize()
	phys := addr.PhysAddr(0x90000000)

	r, err := as.Map(Layout{Size: pageSize, Align: pageSize}, mmu.RW(), func(v addr.VirtRange) *Region {
		return &Region{VMO: NewWiredVMO(addr.PhysRange{Start: phys, End: phys.Add(pageSize)})}
	})
	if err != nil {
		t.Fatalf("Map: %v", err)
	}

	if err := as.Unmap(r.Range.Start); err != nil {
		t.Fatalf("Unmap: %v", err)
	}
	if _, qerr := as.HardwareAddressSpace().Query(r.Range.Start); qerr != mmu.ErrNotMapped {
		t.Fatalf("Query after Unmap = %v, want ErrNotMapped", qerr)
	}
	if got := as.RegionCount(); got != 0 {
		t.Fatalf("RegionCount after Unmap = %d, want 0", got)
	}
}

// TestHandleFaultPagedVMOAllocatesOnce checks that a paged VMO fault
// allocates a frame on first access and reuses it on a second fault to a
// nearby offset in the same page.
func TestHandleFaultPagedVMOAllocatesOnce(t *testing.T) {
	as, frames := newTestAddressSpace(t, aslr.New(nil))
	pageSize := mmu.Sv39.PageSize()

	var zeroed []addr.PhysAddr
	vmo := NewPagedVMO(pageSize, pageSize, frames, func(phys addr.PhysAddr, length uintptr) {
		zeroed = append(zeroed, phys)
	})

	r, err := as.Map(Layout{Size: pageSize, Align: pageSize}, mmu.RW(), func(v addr.VirtRange) *Region {
		return &Region{VMO: vmo}
	})
	if err != nil {
		t.Fatalf("Map: %v", err)
	}

	if err := as.HandleFault(r.Range.Start, FaultAccess{Write: true}); err != nil {
		t.Fatalf("first HandleFault: %v", err)
	}
	if err := as.HandleFault(r.Range.Start.Add(pageSize/2), FaultAccess{}); err != nil {
		t.Fatalf("second HandleFault: %v", err)
	}

	if len(zeroed) != 1 {
		t.Fatalf("zeroFill called %d times, want 1 (one frame backs the whole page)", len(zeroed))
	}

	res, qerr := as.HardwareAddressSpace().Query(r.Range.Start)
	if qerr != nil {
		t.Fatalf("Query: %v", qerr)
	}
	if res.Phys != zeroed[0] {
		t.Fatalf("Query().Phys = %#x, want the zero-filled frame %#x", uint64(res.Phys), uint64(zeroed[0]))
	}
}

func TestHandleFaultDeniesWriteToReadOnlyRegion(t *testing.T) {
	as, frames := newTestAddressSpace(t, aslr.New(nil))
	pageSize := mmu.Sv39.PageSize()
	vmo := NewPagedVMO(pageSize, pageSize, frames, func(addr.PhysAddr, uintptr) {})

	r, err := as.Map(Layout{Size: pageSize, Align: pageSize}, mmu.RO(), func(v addr.VirtRange) *Region {
		return &Region{VMO: vmo}
	})
	if err != nil {
		t.Fatalf("Map: %v", err)
	}

	if err := as.HandleFault(r.Range.Start, FaultAccess{Write: true}); err != ErrAccessDenied {
		t.Fatalf("HandleFault(write) on RO region = %v, want ErrAccessDenied", err)
	}
}

func TestHandleFaultNoRegionIsAccessDenied(t *testing.T) {
	as, _ := newTestAddressSpace(t, aslr.New(nil))
	if err := as.HandleFault(0x10000000, FaultAccess{}); err != ErrAccessDenied {
		t.Fatalf("HandleFault outside any region = %v, want ErrAccessDenied", err)
	}
}

func TestBatchMergesAdjacentMaps(t *testing.T) {
	as, _ := newTestAddressSpace(t, aslr.New(nil))
	pageSize := mmu.Sv39.PageSize()
	b := NewBatch(as.HardwareAddressSpace())

	base := addr.VirtAddr(0x30000000)
	phys := addr.PhysAddr(0xa0000000)
	b.Append(addr.VirtRange{Start: base, End: base.Add(pageSize)}, phys, mmu.RW())
	b.Append(addr.VirtRange{Start: base.Add(pageSize), End: base.Add(2 * pageSize)}, phys.Add(pageSize), mmu.RW())

	if got := b.Len(); got != 1 {
		t.Fatalf("Len() after two adjacent appends = %d, want 1 (merged)", got)
	}

	if err := b.FlushChanges(); err != nil {
		t.Fatalf("FlushChanges: %v", err)
	}

	res, qerr := as.HardwareAddressSpace().Query(base.Add(pageSize))
	if qerr != nil {
		t.Fatalf("Query: %v", qerr)
	}
	if res.Phys != phys.Add(pageSize) {
		t.Fatalf("Query().Phys = %#x, want %#x", uint64(res.Phys), uint64(phys)+uint64(pageSize))
	}
}
