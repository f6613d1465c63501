package translate

import (
	"bytes"
	"fmt"
)

const (
	magic   = 0x6d736100 // "\0asm", read little-endian as a u32
	version = 1
)

type sectionID uint8

const (
	secCustom sectionID = iota
	secType
	secImport
	secFunction
	secTable
	secMemory
	secGlobal
	secExport
	secStart
	secElement
	secCode
	secData
	secDataCount
)

// Decode parses a complete Wasm binary module into a ModuleTranslation,
// driving a single streaming pass over its sections (spec.md §4.I
// "Streaming translator driven by a standard Wasm module parser"). Code
// section entries are stored as raw (locals, body-byte) pairs only;
// per-function validation and IR construction are deferred to the
// compiler, matching FunctionBodyInput's role in module_env.rs.
func Decode(wasm []byte) (*ModuleTranslation, error) {
	r := &reader{data: wasm}

	magicBytes, err := r.bytes(4)
	if err != nil {
		return nil, fmt.Errorf("translate: %w", err)
	}
	if !bytes.Equal(magicBytes, []byte{0x00, 0x61, 0x73, 0x6d}) {
		return nil, fmt.Errorf("translate: not a wasm module (bad magic)")
	}
	ver, err := r.u32le()
	if err != nil {
		return nil, fmt.Errorf("translate: %w", err)
	}
	if ver != version {
		return nil, fmt.Errorf("translate: unsupported wasm version %d", ver)
	}

	t := &ModuleTranslation{}
	m := &t.Module

	var funcTypeIdx []uint32 // per defined function, its index into m.Types

	var lastSection sectionID
	seenCode := false

	for r.remaining() > 0 {
		id, err := r.byte()
		if err != nil {
			return nil, err
		}
		size, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("translate: %w", err)
		}
		body, err := r.bytes(size)
		if err != nil {
			return nil, fmt.Errorf("translate: %w", err)
		}

		sid := sectionID(id)
		if sid != secCustom {
			if sid < lastSection {
				return nil, fmt.Errorf("translate: sections out of order (id %d after %d)", sid, lastSection)
			}
			lastSection = sid
		}

		sr := &reader{data: body}
		switch sid {
		case secCustom:
			// Name/producer/debug sections: skipped, not required for
			// translation (spec.md's Non-goals don't name DWARF-in-wasm
			// support, and nothing downstream consumes it).
		case secType:
			if err := decodeTypeSection(sr, m); err != nil {
				return nil, err
			}
		case secImport:
			if err := decodeImportSection(sr, m); err != nil {
				return nil, err
			}
		case secFunction:
			funcTypeIdx, err = decodeFunctionSection(sr, m)
			if err != nil {
				return nil, err
			}
		case secTable:
			if err := decodeTableSection(sr, m); err != nil {
				return nil, err
			}
		case secMemory:
			if err := decodeMemorySection(sr, m); err != nil {
				return nil, err
			}
		case secGlobal:
			if err := decodeGlobalSection(sr, m); err != nil {
				return nil, err
			}
		case secExport:
			if err := decodeExportSection(sr, m); err != nil {
				return nil, err
			}
		case secStart:
			idx, err := sr.u32()
			if err != nil {
				return nil, err
			}
			m.HasStart = true
			m.StartFunc = idx
		case secElement:
			if err := decodeElementSection(sr, m); err != nil {
				return nil, err
			}
		case secDataCount:
			if _, err := sr.u32(); err != nil {
				return nil, err
			}
		case secCode:
			if err := decodeCodeSection(sr, m, funcTypeIdx); err != nil {
				return nil, err
			}
			seenCode = true
		case secData:
			if err := decodeDataSection(sr, m); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("translate: unknown section id %d", id)
		}
	}

	if len(funcTypeIdx) > 0 && !seenCode {
		return nil, fmt.Errorf("translate: function section present with no code section")
	}
	markEscapingFunctions(m)

	return t, nil
}

func decodeTypeSection(r *reader, m *Module) error {
	n, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		form, err := r.byte()
		if err != nil {
			return err
		}
		if form != 0x60 {
			return fmt.Errorf("translate: unsupported type form %#x (only func types)", form)
		}
		numParams, err := r.u32()
		if err != nil {
			return err
		}
		params := make([]ValType, numParams)
		for j := range params {
			if params[j], err = r.valType(); err != nil {
				return err
			}
		}
		numResults, err := r.u32()
		if err != nil {
			return err
		}
		results := make([]ValType, numResults)
		for j := range results {
			if results[j], err = r.valType(); err != nil {
				return err
			}
		}
		m.Types = append(m.Types, FuncType{Params: params, Results: results})
	}
	return nil
}

func decodeImportSection(r *reader, m *Module) error {
	n, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		modName, err := r.name()
		if err != nil {
			return err
		}
		field, err := r.name()
		if err != nil {
			return err
		}
		kind, err := r.byte()
		if err != nil {
			return err
		}
		var idx EntityIndex
		switch kind {
		case 0x00: // func
			typeIdx, err := r.u32()
			if err != nil {
				return err
			}
			if int(typeIdx) >= len(m.Types) {
				return fmt.Errorf("translate: import function type index %d out of range", typeIdx)
			}
			idx = EntityIndex{Kind: EntityFunction, Idx: uint32(len(m.ImportedFunctions))}
			m.ImportedFunctions = append(m.ImportedFunctions, ImportedFunction{Import: m.Types[typeIdx]})
		case 0x01: // table
			elemType, err := r.valType()
			if err != nil {
				return err
			}
			limits, err := r.limits()
			if err != nil {
				return err
			}
			idx = EntityIndex{Kind: EntityTable, Idx: uint32(len(m.ImportedTables))}
			m.ImportedTables = append(m.ImportedTables, TableDesc{ElemType: elemType, Limits: limits})
		case 0x02: // memory
			desc, err := decodeMemoryDesc(r)
			if err != nil {
				return err
			}
			idx = EntityIndex{Kind: EntityMemory, Idx: uint32(len(m.ImportedMemories))}
			m.ImportedMemories = append(m.ImportedMemories, desc)
		case 0x03: // global
			typ, err := r.valType()
			if err != nil {
				return err
			}
			mut, err := r.byte()
			if err != nil {
				return err
			}
			idx = EntityIndex{Kind: EntityGlobal, Idx: uint32(len(m.ImportedGlobals))}
			m.ImportedGlobals = append(m.ImportedGlobals, GlobalDesc{Type: typ, Mutable: mut != 0})
		default:
			return fmt.Errorf("translate: unknown import kind %#x", kind)
		}
		m.Imports = append(m.Imports, Import{Module: modName, Field: field, Index: idx})
	}
	return nil
}

func decodeFunctionSection(r *reader, m *Module) ([]uint32, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	typeIdx := make([]uint32, n)
	for i := range typeIdx {
		idx, err := r.u32()
		if err != nil {
			return nil, err
		}
		if int(idx) >= len(m.Types) {
			return nil, fmt.Errorf("translate: function type index %d out of range", idx)
		}
		typeIdx[i] = idx
		m.DefinedFunctions = append(m.DefinedFunctions, DefinedFunction{
			Type: FunctionType{Signature: m.Types[idx]},
		})
	}
	return typeIdx, nil
}

func decodeTableSection(r *reader, m *Module) error {
	n, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		elemType, err := r.valType()
		if err != nil {
			return err
		}
		limits, err := r.limits()
		if err != nil {
			return err
		}
		m.DefinedTables = append(m.DefinedTables, TableDesc{ElemType: elemType, Limits: limits})
	}
	return nil
}

func decodeMemoryDesc(r *reader) (MemoryDesc, error) {
	flags, err := r.byte()
	if err != nil {
		return MemoryDesc{}, err
	}
	is64 := flags&0x04 != 0
	shared := flags&0x02 != 0
	hasMax := flags&0x01 != 0

	readIdx := func() (uint64, error) {
		if is64 {
			return r.uleb()
		}
		v, err := r.u32()
		return uint64(v), err
	}

	min, err := readIdx()
	if err != nil {
		return MemoryDesc{}, err
	}
	l := Limits{Min: min}
	if hasMax {
		max, err := readIdx()
		if err != nil {
			return MemoryDesc{}, err
		}
		l.HasMax = true
		l.Max = max
	}
	return MemoryDesc{Limits: l, Is64: is64, Shared: shared}, nil
}

func decodeMemorySection(r *reader, m *Module) error {
	n, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		desc, err := decodeMemoryDesc(r)
		if err != nil {
			return err
		}
		m.DefinedMemories = append(m.DefinedMemories, desc)
	}
	return nil
}

func decodeGlobalSection(r *reader, m *Module) error {
	n, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		typ, err := r.valType()
		if err != nil {
			return err
		}
		mut, err := r.byte()
		if err != nil {
			return err
		}
		init, err := r.constExpr()
		if err != nil {
			return err
		}
		m.DefinedGlobals = append(m.DefinedGlobals, GlobalDesc{Type: typ, Mutable: mut != 0, Init: init})
	}
	return nil
}

func decodeExportSection(r *reader, m *Module) error {
	n, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		name, err := r.name()
		if err != nil {
			return err
		}
		kind, err := r.byte()
		if err != nil {
			return err
		}
		idx, err := r.u32()
		if err != nil {
			return err
		}
		var ek EntityKind
		switch kind {
		case 0x00:
			ek = EntityFunction
		case 0x01:
			ek = EntityTable
		case 0x02:
			ek = EntityMemory
		case 0x03:
			ek = EntityGlobal
		default:
			return fmt.Errorf("translate: unknown export kind %#x", kind)
		}
		m.Exports = append(m.Exports, Export{Name: name, Index: EntityIndex{Kind: ek, Idx: idx}})
	}
	return nil
}

func decodeElementSection(r *reader, m *Module) error {
	n, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		flags, err := r.u32()
		if err != nil {
			return err
		}
		el := Element{}
		switch flags {
		case 0: // active, table 0, expr offset, func indices
			off, err := r.constExpr()
			if err != nil {
				return err
			}
			el.Mode, el.Offset = ElementActive, off
			idxs, err := decodeFuncIndexVec(r)
			if err != nil {
				return err
			}
			el.FuncIndices = idxs
		case 1: // passive, elemkind, func indices
			if _, err := r.byte(); err != nil { // elemkind
				return err
			}
			idxs, err := decodeFuncIndexVec(r)
			if err != nil {
				return err
			}
			el.Mode, el.FuncIndices = ElementPassive, idxs
		case 2: // active, explicit table idx, expr offset, elemkind, func indices
			tableIdx, err := r.u32()
			if err != nil {
				return err
			}
			off, err := r.constExpr()
			if err != nil {
				return err
			}
			if _, err := r.byte(); err != nil {
				return err
			}
			idxs, err := decodeFuncIndexVec(r)
			if err != nil {
				return err
			}
			el.Mode, el.TableIdx, el.Offset, el.FuncIndices = ElementActive, tableIdx, off, idxs
		case 3: // declared, elemkind, func indices
			if _, err := r.byte(); err != nil {
				return err
			}
			idxs, err := decodeFuncIndexVec(r)
			if err != nil {
				return err
			}
			el.Mode, el.FuncIndices = ElementDeclared, idxs
		default:
			return fmt.Errorf("translate: element segment flags %d (expression-valued/table-typed elements) not supported", flags)
		}
		m.Elements = append(m.Elements, el)
	}
	return nil
}

func decodeFuncIndexVec(r *reader) ([]uint32, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	idxs := make([]uint32, n)
	for i := range idxs {
		if idxs[i], err = r.u32(); err != nil {
			return nil, err
		}
	}
	return idxs, nil
}

func decodeCodeSection(r *reader, m *Module, funcTypeIdx []uint32) error {
	n, err := r.u32()
	if err != nil {
		return err
	}
	if int(n) != len(funcTypeIdx) {
		return fmt.Errorf("translate: code section has %d bodies, function section declared %d", n, len(funcTypeIdx))
	}
	for i := uint32(0); i < n; i++ {
		bodySize, err := r.u32()
		if err != nil {
			return err
		}
		bodyBytes, err := r.bytes(bodySize)
		if err != nil {
			return err
		}
		br := &reader{data: bodyBytes}
		locals, err := decodeLocals(br)
		if err != nil {
			return err
		}
		code := bodyBytes[br.pos:]
		m.DefinedFunctions[i].Body = FunctionBodyInput{Locals: locals, Code: code}
	}
	return nil
}

func decodeLocals(r *reader) ([]ValType, error) {
	numGroups, err := r.u32()
	if err != nil {
		return nil, err
	}
	var locals []ValType
	for i := uint32(0); i < numGroups; i++ {
		count, err := r.u32()
		if err != nil {
			return nil, err
		}
		typ, err := r.valType()
		if err != nil {
			return nil, err
		}
		for j := uint32(0); j < count; j++ {
			locals = append(locals, typ)
		}
	}
	return locals, nil
}

func decodeDataSection(r *reader, m *Module) error {
	n, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		flags, err := r.u32()
		if err != nil {
			return err
		}
		d := Data{}
		switch flags {
		case 0:
			off, err := r.constExpr()
			if err != nil {
				return err
			}
			d.Mode, d.Offset = DataActive, off
		case 1:
			d.Mode = DataPassive
		case 2:
			memIdx, err := r.u32()
			if err != nil {
				return err
			}
			off, err := r.constExpr()
			if err != nil {
				return err
			}
			d.Mode, d.MemoryIdx, d.Offset = DataActive, memIdx, off
		default:
			return fmt.Errorf("translate: unknown data segment flags %d", flags)
		}
		size, err := r.u32()
		if err != nil {
			return err
		}
		b, err := r.bytes(size)
		if err != nil {
			return err
		}
		d.Bytes = b
		m.Data = append(m.Data, d)
	}
	return nil
}

// markEscapingFunctions sets FunctionType.Escapes for every defined
// function reachable from outside the module: exported, the start
// function, or placed in a table/declared element segment — mirrors
// FunctionType::is_escaping's func_ref-table-index assignment trigger in
// module.rs, without assigning the actual funcref-table slot (component
// J's instance allocator does that).
func markEscapingFunctions(m *Module) {
	numImported := m.NumImportedFuncs()
	mark := func(funcIdx uint32) {
		if funcIdx < numImported {
			return
		}
		m.DefinedFunctions[funcIdx-numImported].Type.Escapes = true
	}
	for _, e := range m.Exports {
		if e.Index.Kind == EntityFunction {
			mark(e.Index.Idx)
		}
	}
	if m.HasStart {
		mark(m.StartFunc)
	}
	for _, el := range m.Elements {
		for _, fi := range el.FuncIndices {
			mark(fi)
		}
	}
}
