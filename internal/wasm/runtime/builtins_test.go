package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvkernel/rvk/internal/wasm/translate"
)

// newTestTable builds a funcref table of size, pre-filled with distinct
// non-null values elems[i] = i+1 so an overlapping copy's effect on each
// slot is unambiguous from its final value.
func newTestTable(size uint32) *Table {
	t := NewTable(translate.TableDesc{Limits: translate.Limits{Min: uint64(size)}})
	for i := uint32(0); i < size; i++ {
		t.Set(i, i+1)
	}
	return t
}

func tableValues(t *Table) []uint32 {
	out := make([]uint32, t.Size())
	for i := range out {
		v, _ := t.Get(uint32(i))
		out[i] = v
	}
	return out
}

// TestTableCopyOverlappingForward covers dst > src on the same table,
// where a naive forward Get/Set loop would read back a value the copy
// itself had already overwritten (the reviewed regression): copying
// [0,4) to [2,6) within a 6-element table must read every source slot's
// original value before any destination slot is written.
func TestTableCopyOverlappingForward(t *testing.T) {
	tbl := newTestTable(6)
	inst := &Instance{Tables: []*Table{tbl}}

	_, err := builtinTableCopy(inst, []Val{I32Val(0), I32Val(0), I32Val(2), I32Val(0), I32Val(4)})
	require.NoError(t, err)

	assert.Equal(t, []uint32{1, 2, 1, 2, 3, 4}, tableValues(tbl))
}

// TestTableCopyOverlappingBackward covers src > dst on the same table:
// copying [2,8) to [0,6) within an 8-element table.
func TestTableCopyOverlappingBackward(t *testing.T) {
	tbl := newTestTable(8)
	inst := &Instance{Tables: []*Table{tbl}}

	_, err := builtinTableCopy(inst, []Val{I32Val(0), I32Val(0), I32Val(0), I32Val(2), I32Val(6)})
	require.NoError(t, err)

	assert.Equal(t, []uint32{3, 4, 5, 6, 7, 8, 7, 8}, tableValues(tbl))
}

func TestTableCopyAcrossDistinctTables(t *testing.T) {
	src := newTestTable(4)
	dst := newTestTable(4)
	inst := &Instance{Tables: []*Table{dst, src}}

	_, err := builtinTableCopy(inst, []Val{I32Val(0), I32Val(1), I32Val(0), I32Val(0), I32Val(4)})
	require.NoError(t, err)

	assert.Equal(t, []uint32{1, 2, 3, 4}, tableValues(dst))
}

func TestTableCopyOutOfBoundsSourceTraps(t *testing.T) {
	tbl := newTestTable(4)
	inst := &Instance{Tables: []*Table{tbl}}

	_, err := builtinTableCopy(inst, []Val{I32Val(0), I32Val(0), I32Val(0), I32Val(2), I32Val(4)})
	require.Error(t, err)
}

func TestTableCopyOutOfBoundsDestTraps(t *testing.T) {
	tbl := newTestTable(4)
	inst := &Instance{Tables: []*Table{tbl}}

	_, err := builtinTableCopy(inst, []Val{I32Val(0), I32Val(0), I32Val(2), I32Val(0), I32Val(4)})
	require.Error(t, err)
}

func TestTableCopyZeroLengthIsNoop(t *testing.T) {
	tbl := newTestTable(4)
	inst := &Instance{Tables: []*Table{tbl}}
	before := tableValues(tbl)

	_, err := builtinTableCopy(inst, []Val{I32Val(0), I32Val(0), I32Val(1), I32Val(2), I32Val(0)})
	require.NoError(t, err)

	assert.Equal(t, before, tableValues(tbl))
}

func TestTableFillAndGrow(t *testing.T) {
	tbl := newTestTable(4)
	inst := &Instance{Tables: []*Table{tbl}}

	_, err := builtinTableFill(inst, []Val{I32Val(0), I32Val(1), I32Val(99), I32Val(2)})
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 99, 99, 4}, tableValues(tbl))

	results, err := builtinTableGrow(inst, []Val{I32Val(0), I32Val(7), I32Val(2)})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int32(4), results[0].I32())
	assert.Equal(t, uint32(6), tbl.Size())
}
