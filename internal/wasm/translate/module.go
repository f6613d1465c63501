package translate

// FunctionType pairs a function's signature with whether it "escapes" the
// module (exported, the start function, or listed in any element segment,
// as markEscapingFunctions sets it) — mirrors
// module.rs's FunctionType/FuncRefIndex, minus the compiled-funcref-table
// index assignment, which belongs to the runtime's instance allocator
// (component J), not translation.
type FunctionType struct {
	Signature FuncType
	Escapes   bool
}

// ImportedFunction and DefinedFunction are kept as separate slices rather
// than one combined Functions array indexed through EntityIndex, per
// SPEC_FULL.md §I's supplement from module_env.rs's separate
// num_imported_funcs counter and PrimaryMap<FuncIndex, _> indexing that
// treats imported and defined functions as one space split by a count,
// not two arrays — this package goes one step further and makes the split
// explicit as two slices, since Go has no PrimaryMap/EntityRef newtype-
// index convenience to lean on instead.
type ImportedFunction struct {
	Import FuncType
}

// DefinedFunction is a function defined (not imported) by the module,
// still carrying its raw, unvalidated body bytes — validation and
// compilation are deferred to the compiler (spec.md §4.I
// "FunctionBodyInput (validator + raw body bytes), deferred to the
// compiler").
type DefinedFunction struct {
	Type FunctionType
	Body FunctionBodyInput
}

// FunctionBodyInput is one function body as decoded straight off the wire:
// its declared local types (run-length encoded in the wire format, expanded
// here) and the raw instruction bytes, unvalidated.
type FunctionBodyInput struct {
	Locals []ValType
	Code   []byte
}

// Module is the translator's output: everything a compiler or interpreter
// needs to instantiate and run the Wasm module (spec.md §4.I).
type Module struct {
	Name      string
	StartFunc uint32
	HasStart  bool

	Types []FuncType

	ImportedFunctions []ImportedFunction
	ImportedTables    []TableDesc
	ImportedMemories  []MemoryDesc
	ImportedGlobals   []GlobalDesc

	DefinedFunctions []DefinedFunction
	DefinedTables    []TableDesc
	DefinedMemories  []MemoryDesc
	DefinedGlobals   []GlobalDesc

	Imports []Import
	Exports []Export

	Elements []Element
	Data     []Data
}

// NumImportedFuncs, NumImportedTables, NumImportedMemories, and
// NumImportedGlobals report how many of each entity kind were imported,
// i.e. the offset at which the module's own defined entities begin in
// that kind's combined index space.
func (m *Module) NumImportedFuncs() uint32    { return uint32(len(m.ImportedFunctions)) }
func (m *Module) NumImportedTables() uint32   { return uint32(len(m.ImportedTables)) }
func (m *Module) NumImportedMemories() uint32 { return uint32(len(m.ImportedMemories)) }
func (m *Module) NumImportedGlobals() uint32  { return uint32(len(m.ImportedGlobals)) }

// FuncSignature resolves funcIdx (over the combined imported+defined
// function index space) to its type.
func (m *Module) FuncSignature(funcIdx uint32) FuncType {
	if funcIdx < m.NumImportedFuncs() {
		return m.ImportedFunctions[funcIdx].Import
	}
	return m.DefinedFunctions[funcIdx-m.NumImportedFuncs()].Type.Signature
}

// ModuleTranslation is the translator's accumulator, matching
// module_env.rs's ModuleTranslation<'wasm> (module + function_body_inputs
// + types kept alongside each other during the single decode pass).
type ModuleTranslation struct {
	Module Module
}
