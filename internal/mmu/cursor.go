package mmu

import (
	"github.com/rvkernel/rvk/internal/addr"
	"github.com/rvkernel/rvk/internal/kerror"
)

// cursor walks a single root-to-leaf path, the shared machinery behind
// MapContiguous/Unmap/SetAttributes/Query (spec.md §4.D "Cursor"). It keeps
// the chain of (table, index) pairs it descended through so a caller can
// rewrite the leaf and, on unmap, walk back up to prune now-empty tables.
type cursor struct {
	store TableStore
	mode  MemoryMode

	tables [8]Table // depth is at most Sv57's 5 levels; 8 is headroom
	idx    [8]uint
	depth  int // number of levels actually descended (== len(tables) in use)
}

// descend walks from root down to the leaf level for va, allocating
// intermediate tables as needed when alloc is true. It returns the leaf
// table and the index within it where va's entry lives.
func (h *HardwareAddressSpace) descend(va addr.VirtAddr, alloc bool) (*cursor, *kerror.Error) {
	c := &cursor{store: h.store, mode: h.mode}

	tablePhys := h.root
	for level := 0; level < h.mode.Levels; level++ {
		tbl := h.store.Table(tablePhys)
		i := h.mode.VPNIndex(va, level)
		c.tables[level] = tbl
		c.idx[level] = i
		c.depth = level + 1

		if level == h.mode.Levels-1 {
			break
		}

		entry := tbl[i]
		switch entry.Kind() {
		case Vacant:
			if !alloc {
				return c, ErrNotMapped
			}
			childPhys, err := h.store.AllocTable()
			if err != nil {
				return c, err
			}
			tbl[i] = newTable(childPhys, h.mode.PageShift)
			tablePhys = childPhys
		case TableKind:
			tablePhys = entry.Addr(h.mode.PageShift)
		case LeafKind:
			return c, ErrHugePage
		}
	}
	return c, nil
}

// leafEntry returns the PTE at the walked leaf position.
func (c *cursor) leafEntry() PTE {
	return c.tables[c.depth-1][c.idx[c.depth-1]]
}

// setLeaf installs v at the walked leaf position.
func (c *cursor) setLeaf(v PTE) {
	c.tables[c.depth-1][c.idx[c.depth-1]] = v
}

// pruneEmptyTables walks back up from the leaf's parent to the root,
// freeing any intermediate table that became entirely vacant after an
// unmap (spec.md §4.D step for Unmap: "reclaim now-empty intermediate
// tables").
func (h *HardwareAddressSpace) pruneEmptyTables(c *cursor) {
	for level := c.depth - 2; level >= 0; level-- {
		tbl := c.tables[level+1]
		if !tableAllVacant(tbl) {
			break
		}
		parent := c.tables[level]
		parentIdx := c.idx[level]
		childPhys := parent[parentIdx].Addr(h.mode.PageShift)
		parent[parentIdx] = PTE(0)
		h.store.FreeTable(childPhys)
	}
}

func tableAllVacant(t Table) bool {
	for _, e := range t {
		if e.Kind() != Vacant {
			return false
		}
	}
	return true
}
