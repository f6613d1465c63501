package mmu

import "github.com/rvkernel/rvk/internal/addr"

// MemoryMode describes one of the RISC-V paging schemes (Sv39/Sv48/Sv57),
// grounded on original_source/libs/kmem/src/arch/riscv64.rs's per-mode
// LEVELS tables. Every level uses the same 9-bit VPN index and 4KiB base
// page; only the table depth (and therefore the size of the virtual
// address space) differs between modes.
type MemoryMode struct {
	Name      string
	Levels    int // 3 for Sv39, 4 for Sv48, 5 for Sv57
	VPNBits   uint
	PageShift uint
	SATPMode  uint64 // value of the satp.MODE field that selects this scheme
}

// EntriesPerTable is 1<<VPNBits: the fixed fan-out of every level.
func (m MemoryMode) EntriesPerTable() int { return 1 << m.VPNBits }

// PageSize is 1<<PageShift, the base (leaf-most) page size.
func (m MemoryMode) PageSize() uintptr { return uintptr(1) << m.PageShift }

// LevelPageSize returns the span of one entry at the given level, where
// level 0 is the root and level Levels-1 is the leaf-most level.
func (m MemoryMode) LevelPageSize(level int) uintptr {
	shift := m.PageShift + m.VPNBits*uint(m.Levels-1-level)
	return uintptr(1) << shift
}

// VABits returns the number of usable virtual address bits this mode
// addresses (PageShift + VPNBits*Levels), the entropy bound aslr.Randomizer
// needs for its first-pass guess.
func (m MemoryMode) VABits() uint {
	return m.PageShift + m.VPNBits*uint(m.Levels)
}

// VPNIndex extracts the index into the table at the given level for va.
func (m MemoryMode) VPNIndex(va addr.VirtAddr, level int) uint {
	shift := m.PageShift + m.VPNBits*uint(m.Levels-1-level)
	mask := uint64(1)<<m.VPNBits - 1
	return uint((uint64(va) >> shift) & mask)
}

var (
	// Sv39 covers a 39-bit virtual address space over 3 levels (1GiB, 2MiB,
	// 4KiB spans).
	Sv39 = MemoryMode{Name: "Sv39", Levels: 3, VPNBits: 9, PageShift: 12, SATPMode: 8}
	// Sv48 adds a fourth level (512GiB, 1GiB, 2MiB, 4KiB spans).
	Sv48 = MemoryMode{Name: "Sv48", Levels: 4, VPNBits: 9, PageShift: 12, SATPMode: 9}
	// Sv57 adds a fifth level (256TiB, 512GiB, 1GiB, 2MiB, 4KiB spans).
	Sv57 = MemoryMode{Name: "Sv57", Levels: 5, VPNBits: 9, PageShift: 12, SATPMode: 10}
)

// DefaultPhysmapBase is the fixed virtual base of the permanent physical
// memory window (spec.md §4.F), matching the teacher's single well-known
// constant convention and grounded on original_source's
// DEFAULT_PHYSMAP_BASE.
const DefaultPhysmapBase = addr.VirtAddr(0xffffffc000000000)
