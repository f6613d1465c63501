package translate

import "testing"

// identityModule hand-encodes a minimal valid wasm binary: one function
// type (i32)->i32, one defined function implementing it as `local.get 0`,
// exported as "answer". Built byte-for-byte against the binary format
// spec rather than via any encoder, the same way internal/unwind's CFI
// tests hand-build synthetic .eh_frame bytes.
func identityModule() []byte {
	return []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, // magic + version

		0x01, 0x06, // type section, size 6
		0x01,       // 1 type
		0x60,       // func form
		0x01, 0x7f, // 1 param: i32
		0x01, 0x7f, // 1 result: i32

		0x03, 0x02, // function section, size 2
		0x01, 0x00, // 1 function, type index 0

		0x07, 0x0a, // export section, size 10
		0x01,                               // 1 export
		0x06, 'a', 'n', 's', 'w', 'e', 'r', // name "answer"
		0x00, 0x00, // func kind, index 0

		0x0a, 0x06, // code section, size 6
		0x01,             // 1 body
		0x04,             // body size 4
		0x00,             // 0 local decl groups
		0x20, 0x00, 0x0b, // local.get 0; end
	}
}

func TestDecodeIdentityModule(t *testing.T) {
	tr, err := Decode(identityModule())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	m := &tr.Module

	if len(m.Types) != 1 {
		t.Fatalf("Types = %d, want 1", len(m.Types))
	}
	want := FuncType{Params: []ValType{ValI32}, Results: []ValType{ValI32}}
	if !m.Types[0].equal(want) {
		t.Fatalf("Types[0] = %+v, want %+v", m.Types[0], want)
	}

	if len(m.DefinedFunctions) != 1 {
		t.Fatalf("DefinedFunctions = %d, want 1", len(m.DefinedFunctions))
	}
	fn := m.DefinedFunctions[0]
	if !fn.Type.Escapes {
		t.Fatal("exported function should be marked escaping")
	}
	if !fn.Type.Signature.equal(want) {
		t.Fatalf("function signature = %+v, want %+v", fn.Type.Signature, want)
	}
	wantCode := []byte{0x20, 0x00, 0x0b}
	if string(fn.Body.Code) != string(wantCode) {
		t.Fatalf("body code = %v, want %v", fn.Body.Code, wantCode)
	}
	if len(fn.Body.Locals) != 0 {
		t.Fatalf("locals = %v, want none", fn.Body.Locals)
	}

	if len(m.Exports) != 1 || m.Exports[0].Name != "answer" {
		t.Fatalf("Exports = %+v, want one export named answer", m.Exports)
	}
	if m.Exports[0].Index != (EntityIndex{Kind: EntityFunction, Idx: 0}) {
		t.Fatalf("export index = %+v, want func 0", m.Exports[0].Index)
	}

	if got := m.FuncSignature(0); !got.equal(want) {
		t.Fatalf("FuncSignature(0) = %+v, want %+v", got, want)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := Decode([]byte{0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00})
	if err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestDecodeRejectsTruncatedSection(t *testing.T) {
	data := identityModule()
	truncated := data[:len(data)-3] // cut into the code section
	_, err := Decode(truncated)
	if err == nil {
		t.Fatal("expected error for truncated module")
	}
}

func TestDecodeWithImportsSplitsIndexSpace(t *testing.T) {
	// type section: one type (i32)->()
	data := []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,

		0x01, 0x05, // type section size 5
		0x01,       // 1 type
		0x60,       // func form
		0x01, 0x7f, // 1 param i32
		0x00, // 0 results

		0x02, 0x0b, // import section size 11
		0x01,                          // 1 import
		0x03, 'e', 'n', 'v',           // module "env"
		0x03, 'l', 'o', 'g',           // field "log"
		0x00, 0x00, // func kind, type index 0
	}
	tr, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	m := &tr.Module
	if m.NumImportedFuncs() != 1 {
		t.Fatalf("NumImportedFuncs = %d, want 1", m.NumImportedFuncs())
	}
	if len(m.Imports) != 1 || m.Imports[0].Module != "env" || m.Imports[0].Field != "log" {
		t.Fatalf("Imports = %+v", m.Imports)
	}
	wantSig := FuncType{Params: []ValType{ValI32}}
	if got := m.FuncSignature(0); !got.equal(wantSig) {
		t.Fatalf("FuncSignature(0) = %+v, want %+v", got, wantSig)
	}
}
