package goruntime

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvkernel/rvk/internal/addr"
	"github.com/rvkernel/rvk/internal/kerror"
	"github.com/rvkernel/rvk/internal/mmu"
	"github.com/rvkernel/rvk/internal/pmm/arena"
)

// fakeStore is an in-memory mmu.TableStore, the same shape mmu's own
// tests use, reimplemented here since it is unexported in that package.
type fakeStore struct {
	entries int
	next    addr.PhysAddr
	tables  map[addr.PhysAddr]mmu.Table
}

func newFakeStore(entries int) *fakeStore {
	return &fakeStore{entries: entries, next: 0x10_0000, tables: make(map[addr.PhysAddr]mmu.Table)}
}

func (s *fakeStore) AllocTable() (addr.PhysAddr, *kerror.Error) {
	phys := s.next
	s.next += 0x1000
	s.tables[phys] = make(mmu.Table, s.entries)
	return phys, nil
}

func (s *fakeStore) FreeTable(phys addr.PhysAddr) { delete(s.tables, phys) }

func (s *fakeStore) Table(phys addr.PhysAddr) mmu.Table {
	t, ok := s.tables[phys]
	if !ok {
		panic("goruntime test: Table() on unknown physical address")
	}
	return t
}

func setupTest(t *testing.T) {
	t.Helper()

	store := newFakeStore(mmu.Sv39.EntriesPerTable())
	space, err := mmu.New(mmu.Sv39, 0, store)
	require.Nil(t, err)

	free := []addr.PhysRange{{Start: 0x8000_0000, End: 0x9000_0000}}
	alloc := arena.NewAllocator(12, free)

	heap := addr.VirtRange{Start: 0x1000_0000, End: 0x2000_0000}
	Init(space, alloc, heap)
}

func TestSysReserveReturnsPagesFromHeapWindow(t *testing.T) {
	setupTest(t)

	var reserved bool
	p1 := sysReserve(nil, 4096, &reserved)
	require.True(t, reserved)
	p2 := sysReserve(nil, 4096, &reserved)

	assert.NotEqual(t, p1, p2)
	assert.Equal(t, unsafe.Pointer(uintptr(0x1000_0000)), p1)
	assert.Equal(t, unsafe.Pointer(uintptr(0x1000_1000)), p2)
}

func TestSysReserveExhaustsHeapWindow(t *testing.T) {
	setupTest(t)

	assert.Panics(t, func() {
		var reserved bool
		sysReserve(nil, 0x2000_0000, &reserved) // larger than the whole window
	})
}

func TestSysAllocMapsBackedMemory(t *testing.T) {
	setupTest(t)

	var stat uint64
	p := sysAlloc(4096, &stat)
	require.NotEqual(t, unsafe.Pointer(uintptr(0)), p)

	res, kerr := activeSpace.Query(addr.VirtAddr(uintptr(p)))
	require.Nil(t, kerr)
	assert.True(t, res.Attrs.Read)
	assert.True(t, res.Attrs.Write)
}

func TestSysMapRequiresReserved(t *testing.T) {
	setupTest(t)

	var stat uint64
	assert.Panics(t, func() {
		sysMap(unsafe.Pointer(uintptr(0x1000_0000)), 4096, false, &stat)
	})
}

func TestSysMapBacksReservedRegion(t *testing.T) {
	setupTest(t)

	var reserved bool
	p := sysReserve(nil, 4096, &reserved)
	require.True(t, reserved)

	var stat uint64
	mapped := sysMap(p, 4096, true, &stat)
	assert.Equal(t, p, mapped)

	res, kerr := activeSpace.Query(addr.VirtAddr(uintptr(p)))
	require.Nil(t, kerr)
	assert.True(t, res.Attrs.Write)
}
