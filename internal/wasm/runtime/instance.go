package runtime

import (
	"fmt"

	"github.com/rvkernel/rvk/internal/wasm/translate"
)

// HostFunc is a host-provided implementation of an imported function.
type HostFunc func(inst *Instance, args []Val) ([]Val, error)

// Instance is one instantiated Wasm module: its own memories, tables,
// globals, and the resolved bindings for everything it imported (spec.md
// §4.J "Allocates the VMContext ... per-defined memory ... per-defined
// table"). There is no separate VMContext byte-buffer here — Go's GC
// means there's no need for the original's raw-pointer-plus-offsets
// struct; Offsets is filled in by AllocateModule (via ForModule), but
// nothing in this package reads it.
type Instance struct {
	Module  *translate.Module
	Offsets VMContextOffsets

	Memories []*Memory
	Tables   []*Table
	Globals  []uint64

	ImportedFuncs []HostFunc

	passiveElements map[int][]uint32
	passiveData     map[int][]byte
}

// Allocator allocates instance resources, matching the original's
// InstanceAllocator trait's allocate_memory/allocate_table split —
// collapsed here to a single entry point, AllocateModule, with no
// deallocate step (Go's GC reclaims a dropped Instance), since this
// package has exactly one allocation strategy (no pooling allocator
// variant), unlike the original's on-demand vs. pooling choice.
type Allocator struct{}

// AllocateModule composes memory/table/global allocation into one
// instance, unwinding (discarding partial state; Go's GC reclaims it)
// on failure, matching spec.md §4.J "A single allocate_module(Module) ->
// InstanceHandle composes these, unwinding partial allocation on
// failure."
func (Allocator) AllocateModule(m *translate.Module, imports []HostFunc) (*Instance, error) {
	if len(imports) != len(m.ImportedFunctions) {
		return nil, fmt.Errorf("runtime: module imports %d functions, got %d host bindings", len(m.ImportedFunctions), len(imports))
	}

	inst := &Instance{
		Module:          m,
		Offsets:         ForModule(m),
		ImportedFuncs:   imports,
		passiveElements: map[int][]uint32{},
		passiveData:     map[int][]byte{},
	}

	for _, desc := range m.DefinedMemories {
		inst.Memories = append(inst.Memories, NewMemory(desc))
	}
	for _, desc := range m.DefinedTables {
		inst.Tables = append(inst.Tables, NewTable(desc))
	}

	inst.Globals = make([]uint64, len(m.DefinedGlobals))
	for i, g := range m.DefinedGlobals {
		v, err := inst.evalConstExpr(g.Init)
		if err != nil {
			return nil, err
		}
		inst.Globals[i] = v
	}

	for i, el := range m.Elements {
		switch el.Mode {
		case translate.ElementActive:
			if int(el.TableIdx) >= len(inst.Tables) {
				return nil, fmt.Errorf("runtime: active element segment targets undefined table %d", el.TableIdx)
			}
			off, err := inst.evalConstExpr(el.Offset)
			if err != nil {
				return nil, err
			}
			tbl := inst.Tables[el.TableIdx]
			for j, fi := range el.FuncIndices {
				if !tbl.Set(uint32(off)+uint32(j), fi) {
					return nil, NewTrap(TrapTableOutOfBounds)
				}
			}
		case translate.ElementPassive:
			idxs := make([]uint32, len(el.FuncIndices))
			copy(idxs, el.FuncIndices)
			inst.passiveElements[i] = idxs
		case translate.ElementDeclared:
			// Declared segments only assert escaping; nothing to materialize.
		}
	}

	for i, d := range m.Data {
		switch d.Mode {
		case translate.DataActive:
			if int(d.MemoryIdx) >= len(inst.Memories) {
				return nil, fmt.Errorf("runtime: active data segment targets undefined memory %d", d.MemoryIdx)
			}
			off, err := inst.evalConstExpr(d.Offset)
			if err != nil {
				return nil, err
			}
			mem := inst.Memories[d.MemoryIdx]
			if !mem.CheckBounds(off, uint64(len(d.Bytes))) {
				return nil, NewTrap(TrapMemoryOutOfBounds)
			}
			copy(mem.Bytes()[off:], d.Bytes)
		case translate.DataPassive:
			b := make([]byte, len(d.Bytes))
			copy(b, d.Bytes)
			inst.passiveData[i] = b
		}
	}

	return inst, nil
}

// evalConstExpr evaluates a module-level constant initializer against
// the instance under construction. global.get indexes inst.Globals, which
// holds only the module's defined globals: imported globals are not
// resolved, and a global not yet initialized reads as 0.
func (inst *Instance) evalConstExpr(ce translate.ConstExpr) (uint64, error) {
	switch ce.Op {
	case translate.ConstI32Const:
		return uint64(uint32(ce.I32)), nil
	case translate.ConstI64Const:
		return uint64(ce.I64), nil
	case translate.ConstF32Const:
		return uint64(ce.F32Bits), nil
	case translate.ConstF64Const:
		return ce.F64Bits, nil
	case translate.ConstRefNull:
		return uint64(nullFuncRef), nil
	case translate.ConstRefFunc:
		return uint64(ce.FuncIdx), nil
	case translate.ConstGlobalGet:
		if int(ce.GlobalIdx) >= len(inst.Globals) {
			return 0, fmt.Errorf("runtime: const expr references undefined global %d", ce.GlobalIdx)
		}
		return inst.Globals[ce.GlobalIdx], nil
	default:
		return 0, fmt.Errorf("runtime: unsupported const expr op %d", ce.Op)
	}
}
