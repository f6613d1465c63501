package runtime

import "github.com/rvkernel/rvk/internal/wasm/translate"

// nullFuncRef marks an empty table slot (spec.md §4.J table builtins
// operate on funcref elements; this package only supports funcref
// tables, the only element type the module translator's element-segment
// decoder produces function indices for).
const nullFuncRef = ^uint32(0)

// Table is one instance's table of (for now, exclusively) function
// references, stored as the referenced function's combined-index-space
// FuncIndex, with nullFuncRef standing in for a null entry.
type Table struct {
	desc translate.TableDesc
	elems []uint32
}

// NewTable allocates a Table at its declared minimum size, every slot
// null.
func NewTable(desc translate.TableDesc) *Table {
	t := &Table{desc: desc, elems: make([]uint32, desc.Limits.Min)}
	for i := range t.elems {
		t.elems[i] = nullFuncRef
	}
	return t
}

// Size reports the table's current element count.
func (t *Table) Size() uint32 { return uint32(len(t.elems)) }

// Get returns the function index stored at idx and true, (0, false) if
// idx is out of bounds, or (nullFuncRef, false) if the slot is null.
func (t *Table) Get(idx uint32) (uint32, bool) {
	if idx >= uint32(len(t.elems)) {
		return 0, false
	}
	v := t.elems[idx]
	return v, v != nullFuncRef
}

// Set stores a function index (or nullFuncRef) at idx.
func (t *Table) Set(idx uint32, funcIdx uint32) bool {
	if idx >= uint32(len(t.elems)) {
		return false
	}
	t.elems[idx] = funcIdx
	return true
}

// Grow appends delta null slots, then fills every newly added slot with
// fillFunc, mirroring table.grow's fill-on-grow semantics.
func (t *Table) Grow(delta uint32, fillFunc uint32) (previous uint32, ok bool) {
	previous = t.Size()
	newSize := uint64(previous) + uint64(delta)
	if t.desc.Limits.HasMax && newSize > t.desc.Limits.Max {
		return previous, false
	}
	grown := make([]uint32, newSize)
	copy(grown, t.elems)
	for i := previous; i < uint32(newSize); i++ {
		grown[i] = fillFunc
	}
	t.elems = grown
	return previous, true
}
