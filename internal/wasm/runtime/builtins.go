package runtime

import "fmt"

// Builtin is a VMContext builtin: a host-implemented operation callable
// from interpreted Wasm code via the fixed builtin table (spec.md §4.J
// "builtins: pointer to a fixed array of builtin function pointers").
// This package has no raw function-pointer table to index since the
// interpreter calls into Go directly; Builtins plays the role that
// table would have, keyed by name instead of by array slot. Nothing in
// this package adds its entries to an Instance's ImportedFuncs, and the
// interpreter does not dispatch to it; the functions are called directly
// (as builtins_test.go does).
type Builtin func(inst *Instance, args []Val) ([]Val, error)

// Builtins is the fixed builtin set, matching original_source/kernel/src/wasm/vm/builtins.rs's member
// list (the atomic wait/notify and raise builtins are kept even though
// this interpreter has no threads of its own, since a future SMP-aware
// interpreter would still dispatch through this same table).
var Builtins = map[string]Builtin{
	"memory_grow":          builtinMemoryGrow,
	"memory_fill":          builtinMemoryFill,
	"memory_init":          builtinMemoryInit,
	"data_drop":            builtinDataDrop,
	"memory_copy":          builtinMemoryCopy,
	"table_grow_func_ref":  builtinTableGrow,
	"table_fill_func_ref":  builtinTableFill,
	"table_copy":           builtinTableCopy,
	"table_init":           builtinTableInit,
	"elem_drop":            builtinElemDrop,
	"memory_atomic_notify": builtinMemoryAtomicNotify,
	"memory_atomic_wait32": builtinMemoryAtomicWait32,
	"memory_atomic_wait64": builtinMemoryAtomicWait64,
	"raise":                builtinRaise,
}

func builtinMemoryGrow(inst *Instance, args []Val) ([]Val, error) {
	memIdx, delta := args[0].I32(), args[1].I32()
	if int(memIdx) >= len(inst.Memories) {
		return nil, fmt.Errorf("runtime: memory_grow on undefined memory %d", memIdx)
	}
	prev, ok := inst.Memories[memIdx].Grow(uint64(delta))
	if !ok {
		return []Val{I32Val(-1)}, nil
	}
	return []Val{I32Val(int32(prev))}, nil
}

func builtinMemoryFill(inst *Instance, args []Val) ([]Val, error) {
	memIdx := args[0].I32()
	dst, val, length := args[1].I32(), args[2].I32(), args[3].I32()
	mem := inst.Memories[memIdx]
	if !mem.CheckBounds(uint64(uint32(dst)), uint64(uint32(length))) {
		return nil, NewTrap(TrapMemoryOutOfBounds)
	}
	b := mem.Bytes()[dst : uint32(dst)+uint32(length)]
	for i := range b {
		b[i] = byte(val)
	}
	return nil, nil
}

func builtinMemoryCopy(inst *Instance, args []Val) ([]Val, error) {
	memIdx := args[0].I32()
	dst, src, length := args[1].I32(), args[2].I32(), args[3].I32()
	mem := inst.Memories[memIdx]
	if !mem.CheckBounds(uint64(uint32(dst)), uint64(uint32(length))) || !mem.CheckBounds(uint64(uint32(src)), uint64(uint32(length))) {
		return nil, NewTrap(TrapMemoryOutOfBounds)
	}
	b := mem.Bytes()
	copy(b[dst:uint32(dst)+uint32(length)], b[src:uint32(src)+uint32(length)])
	return nil, nil
}

func builtinMemoryInit(inst *Instance, args []Val) ([]Val, error) {
	memIdx, dataIdx := args[0].I32(), args[1].I32()
	dst, src, length := args[2].I32(), args[3].I32(), args[4].I32()
	mem := inst.Memories[memIdx]
	data, ok := inst.passiveData[int(dataIdx)]
	if !ok {
		return nil, NewTrap(TrapMemoryOutOfBounds)
	}
	if uint64(src)+uint64(uint32(length)) > uint64(len(data)) {
		return nil, NewTrap(TrapMemoryOutOfBounds)
	}
	if !mem.CheckBounds(uint64(uint32(dst)), uint64(uint32(length))) {
		return nil, NewTrap(TrapMemoryOutOfBounds)
	}
	copy(mem.Bytes()[dst:uint32(dst)+uint32(length)], data[src:uint32(src)+uint32(length)])
	return nil, nil
}

func builtinDataDrop(inst *Instance, args []Val) ([]Val, error) {
	delete(inst.passiveData, int(args[0].I32()))
	return nil, nil
}

func builtinTableGrow(inst *Instance, args []Val) ([]Val, error) {
	tblIdx := args[0].I32()
	fill, delta := uint32(args[1].I32()), uint32(args[2].I32())
	prev, ok := inst.Tables[tblIdx].Grow(delta, fill)
	if !ok {
		return []Val{I32Val(-1)}, nil
	}
	return []Val{I32Val(int32(prev))}, nil
}

func builtinTableFill(inst *Instance, args []Val) ([]Val, error) {
	tblIdx := args[0].I32()
	dst, fill, length := uint32(args[1].I32()), uint32(args[2].I32()), uint32(args[3].I32())
	tbl := inst.Tables[tblIdx]
	for i := uint32(0); i < length; i++ {
		if !tbl.Set(dst+i, fill) {
			return nil, NewTrap(TrapTableOutOfBounds)
		}
	}
	return nil, nil
}

func builtinTableCopy(inst *Instance, args []Val) ([]Val, error) {
	dstTbl, srcTbl := args[0].I32(), args[1].I32()
	dst, src, length := uint32(args[2].I32()), uint32(args[3].I32()), uint32(args[4].I32())
	srcT, dstT := inst.Tables[srcTbl], inst.Tables[dstTbl]

	// table.copy is specified as if the source range were staged through
	// a temporary before any destination slot is written, so a same-table
	// copy with overlapping src/dst ranges must not let an early write
	// clobber a value a later iteration still needs to read. Read the
	// whole source range into buf first, then write buf into the
	// destination: correct regardless of overlap or iteration direction,
	// and checks every source index is in bounds before any write lands.
	buf := make([]uint32, length)
	for i := uint32(0); i < length; i++ {
		v, ok := srcT.Get(src + i)
		if !ok && src+i >= srcT.Size() {
			return nil, NewTrap(TrapTableOutOfBounds)
		}
		buf[i] = v
	}
	for i := uint32(0); i < length; i++ {
		if !dstT.Set(dst+i, buf[i]) {
			return nil, NewTrap(TrapTableOutOfBounds)
		}
	}
	return nil, nil
}

func builtinTableInit(inst *Instance, args []Val) ([]Val, error) {
	tblIdx, elemIdx := args[0].I32(), args[1].I32()
	dst, src, length := uint32(args[2].I32()), uint32(args[3].I32()), uint32(args[4].I32())
	elems, ok := inst.passiveElements[int(elemIdx)]
	if !ok {
		return nil, NewTrap(TrapTableOutOfBounds)
	}
	if uint64(src)+uint64(length) > uint64(len(elems)) {
		return nil, NewTrap(TrapTableOutOfBounds)
	}
	tbl := inst.Tables[tblIdx]
	for i := uint32(0); i < length; i++ {
		if !tbl.Set(dst+i, elems[src+i]) {
			return nil, NewTrap(TrapTableOutOfBounds)
		}
	}
	return nil, nil
}

func builtinElemDrop(inst *Instance, args []Val) ([]Val, error) {
	delete(inst.passiveElements, int(args[0].I32()))
	return nil, nil
}

// The atomic wait/notify builtins assume a single hart runs this
// interpreter at a time (there is no SMP scheduling in this package),
// so wait always reports "not equal" immediately rather than blocking,
// and notify always reports zero waiters woken.
func builtinMemoryAtomicNotify(inst *Instance, args []Val) ([]Val, error) {
	return []Val{I32Val(0)}, nil
}

func builtinMemoryAtomicWait32(inst *Instance, args []Val) ([]Val, error) {
	return []Val{I32Val(1)}, nil
}

func builtinMemoryAtomicWait64(inst *Instance, args []Val) ([]Val, error) {
	return []Val{I32Val(1)}, nil
}

// builtinRaise converts a guest-requested abort into a Trap the same way
// a wasm `unreachable` does, matching the original's raise() builtin
// used by compiled traps that can't express their reason inline.
func builtinRaise(inst *Instance, args []Val) ([]Val, error) {
	return nil, NewTrap(TrapCode(args[0].I32()))
}
