package mmu

import (
	"testing"

	"github.com/rvkernel/rvk/internal/addr"
	"github.com/rvkernel/rvk/internal/kerror"
)

// fakeStore is an in-memory TableStore for tests: table frames are just
// Go-allocated slices keyed by a monotonically increasing fake physical
// address, so tests never touch real memory.
type fakeStore struct {
	entries int
	next    addr.PhysAddr
	tables  map[addr.PhysAddr]Table
}

func newFakeStore(entries int) *fakeStore {
	return &fakeStore{entries: entries, next: 0x1000, tables: make(map[addr.PhysAddr]Table)}
}

func (s *fakeStore) AllocTable() (addr.PhysAddr, *kerror.Error) {
	phys := s.next
	s.next += 0x1000
	s.tables[phys] = make(Table, s.entries)
	return phys, nil
}

func (s *fakeStore) FreeTable(phys addr.PhysAddr) {
	delete(s.tables, phys)
}

func (s *fakeStore) Table(phys addr.PhysAddr) Table {
	t, ok := s.tables[phys]
	if !ok {
		panic("mmu: Table() on unknown physical address")
	}
	return t
}

func newTestSpace(t *testing.T, mode MemoryMode) (*HardwareAddressSpace, *fakeStore) {
	t.Helper()
	store := newFakeStore(mode.EntriesPerTable())
	h, err := New(mode, 0, store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h, store
}

// TestMapQueryUnmapRoundTrip covers scenario S2 from spec.md §8: map a
// single page, query it back, unmap it, and confirm the query then fails.
func TestMapQueryUnmapRoundTrip(t *testing.T) {
	h, _ := newTestSpace(t, Sv39)

	va := addr.VirtAddr(0x1000)
	pa := addr.PhysAddr(0x80000000)
	virt := addr.VirtRange{Start: va, End: va + addr.VirtAddr(Sv39.PageSize())}

	flush, err := h.MapContiguous(virt, pa, RW())
	if err != nil {
		t.Fatalf("MapContiguous: %v", err)
	}
	flush.Flush()

	res, err := h.Query(va + 0x10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Phys != pa+0x10 {
		t.Fatalf("Query().Phys = %#x, want %#x", uint64(res.Phys), uint64(pa)+0x10)
	}
	if !res.Attrs.Read || !res.Attrs.Write || res.Attrs.Exec {
		t.Fatalf("Query().Attrs = %+v, want RW only", res.Attrs)
	}

	flush2, err := h.Unmap(virt)
	if err != nil {
		t.Fatalf("Unmap: %v", err)
	}
	flush2.Flush()

	if _, err := h.Query(va); err != ErrNotMapped {
		t.Fatalf("Query after unmap = %v, want ErrNotMapped", err)
	}
}

// TestSetAttributesPreservesPhysAddr checks invariant 5 from spec.md §8:
// set_attributes never changes the physical address a leaf resolves to.
func TestSetAttributesPreservesPhysAddr(t *testing.T) {
	h, _ := newTestSpace(t, Sv39)

	va := addr.VirtAddr(0x2000)
	pa := addr.PhysAddr(0x90000000)
	virt := addr.VirtRange{Start: va, End: va + addr.VirtAddr(Sv39.PageSize())}

	flush, err := h.MapContiguous(virt, pa, RW())
	if err != nil {
		t.Fatalf("MapContiguous: %v", err)
	}
	flush.Ignore()

	before, err := h.Query(va)
	if err != nil {
		t.Fatalf("Query before: %v", err)
	}

	flush2, err := h.SetAttributes(virt, RO())
	if err != nil {
		t.Fatalf("SetAttributes: %v", err)
	}
	flush2.Flush()

	after, err := h.Query(va)
	if err != nil {
		t.Fatalf("Query after: %v", err)
	}
	if after.Phys != before.Phys {
		t.Fatalf("SetAttributes changed Phys: before %#x after %#x", uint64(before.Phys), uint64(after.Phys))
	}
	if after.Attrs.Write {
		t.Fatalf("SetAttributes(RO) left Write set")
	}
}

// TestUnmapPrunesEmptyIntermediateTables checks invariant 6: unmapping the
// only leaf under an intermediate table reclaims that table.
func TestUnmapPrunesEmptyIntermediateTables(t *testing.T) {
	h, store := newTestSpace(t, Sv39)

	va := addr.VirtAddr(0x400000) // distinct level-2 (2MiB) group from va=0
	pa := addr.PhysAddr(0xa0000000)
	virt := addr.VirtRange{Start: va, End: va + addr.VirtAddr(Sv39.PageSize())}

	before := len(store.tables)
	flush, err := h.MapContiguous(virt, pa, RW())
	if err != nil {
		t.Fatalf("MapContiguous: %v", err)
	}
	flush.Ignore()
	afterMap := len(store.tables)
	if afterMap <= before {
		t.Fatalf("expected MapContiguous to allocate intermediate tables, tables before=%d after=%d", before, afterMap)
	}

	flush2, err := h.Unmap(virt)
	if err != nil {
		t.Fatalf("Unmap: %v", err)
	}
	flush2.Ignore()

	afterUnmap := len(store.tables)
	if afterUnmap != before {
		// The root table itself is never pruned (pruneEmptyTables never
		// frees level 0); every intermediate table created solely to reach this
		// one leaf must be freed once its last entry is cleared.
		t.Fatalf("tables after unmap = %d, want %d (root only)", afterUnmap, before)
	}
}

// TestMapRejectsMisalignedRange checks that sub-page virtual/physical
// endpoints are rejected rather than silently truncated.
func TestMapRejectsMisalignedRange(t *testing.T) {
	h, _ := newTestSpace(t, Sv39)
	virt := addr.VirtRange{Start: 0x1001, End: 0x2001}
	if _, err := h.MapContiguous(virt, 0x80000000, RW()); err != ErrAddressAlignment {
		t.Fatalf("MapContiguous with misaligned range = %v, want ErrAddressAlignment", err)
	}
}

// TestMapRejectsDoubleMap checks that mapping an already-mapped page fails
// instead of silently overwriting it.
func TestMapRejectsDoubleMap(t *testing.T) {
	h, _ := newTestSpace(t, Sv39)
	virt := addr.VirtRange{Start: 0x3000, End: 0x4000}
	if _, err := h.MapContiguous(virt, 0x80000000, RW()); err != nil {
		t.Fatalf("first map: %v", err)
	}
	if _, err := h.MapContiguous(virt, 0x81000000, RW()); err != ErrAlreadyMapped {
		t.Fatalf("second map = %v, want ErrAlreadyMapped", err)
	}
}

// TestSv48DeeperWalk exercises the 4-level Sv48 path, since TestMap... above
// only cover Sv39's 3 levels.
func TestSv48DeeperWalk(t *testing.T) {
	h, _ := newTestSpace(t, Sv48)
	va := addr.VirtAddr(0x8000000000) // forces a distinct level-0 index
	virt := addr.VirtRange{Start: va, End: va + addr.VirtAddr(Sv48.PageSize())}

	flush, err := h.MapContiguous(virt, 0x100000000, RX())
	if err != nil {
		t.Fatalf("MapContiguous: %v", err)
	}
	flush.Ignore()

	res, err := h.Query(va)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Phys != 0x100000000 || !res.Attrs.Exec {
		t.Fatalf("Query() = %+v, want phys 0x100000000 and Exec", res)
	}
}
