package runtime

import "github.com/rvkernel/rvk/internal/wasm/translate"

const ptrSize = 8

// VMContextOffsets assigns byte offsets into an instance's VMContext for
// every field the generated/interpreted code and builtins need to reach
// (spec.md §4.J "VMContextOffsets::for_module(isa, module) assigns byte
// offsets for ..."). Every field here is a flat array/pointer-sized slot;
// there is no struct padding logic beyond size*ptrSize, matching the
// original's pointer-width-only layout.
type VMContextOffsets struct {
	Magic            uint32
	Builtins         uint32
	DefinedTables    uint32
	DefinedMemories  uint32 // pointer array: one *Memory per defined memory
	OwnedMemories    uint32 // inline Memory storage the pointers above reference
	DefinedGlobals   uint32
	EscapedFuncs     uint32
	ImportedFuncs    uint32
	ImportedTables   uint32
	ImportedMemories uint32
	ImportedGlobals  uint32
	StackLimit       uint32
	LastWasmExitFP   uint32
	LastWasmExitPC   uint32
	LastWasmEntrySP  uint32
	Size             uint32
}

// ForModule computes the VMContext layout for m, in the same field order
// the original's for_module assigns them.
func ForModule(m *translate.Module) VMContextOffsets {
	var o VMContextOffsets
	cursor := uint32(0)

	alloc := func(n int, sz uint32) uint32 {
		off := cursor
		cursor += uint32(n) * sz
		return off
	}

	o.Magic = alloc(1, 4)
	cursor = align(cursor, ptrSize)
	o.Builtins = alloc(1, ptrSize)
	o.DefinedTables = alloc(len(m.DefinedTables), ptrSize*3) // base, len, cap-ish triple per table
	o.DefinedMemories = alloc(len(m.DefinedMemories), ptrSize)
	o.OwnedMemories = alloc(len(m.DefinedMemories), memoryInlineSize)
	o.DefinedGlobals = alloc(len(m.DefinedGlobals), 16) // largest value type (v128/i64) plus tag
	o.EscapedFuncs = alloc(countEscaping(m), ptrSize*2)  // {func ptr, vmctx ptr} per escaped function
	o.ImportedFuncs = alloc(len(m.ImportedFunctions), ptrSize*2)
	o.ImportedTables = alloc(len(m.ImportedTables), ptrSize)
	o.ImportedMemories = alloc(len(m.ImportedMemories), ptrSize)
	o.ImportedGlobals = alloc(len(m.ImportedGlobals), ptrSize)
	o.StackLimit = alloc(1, ptrSize)
	o.LastWasmExitFP = alloc(1, ptrSize)
	o.LastWasmExitPC = alloc(1, ptrSize)
	o.LastWasmEntrySP = alloc(1, ptrSize)

	o.Size = align(cursor, ptrSize)
	return o
}

// memoryInlineSize is the size of one vm.Memory record stored inline in
// VMContext's owned-memories array (base pointer + current length + a
// guard-region size field).
const memoryInlineSize = ptrSize * 3

func align(v, to uint32) uint32 {
	return (v + to - 1) &^ (to - 1)
}

func countEscaping(m *translate.Module) int {
	n := 0
	for _, f := range m.DefinedFunctions {
		if f.Type.Escapes {
			n++
		}
	}
	return n
}
