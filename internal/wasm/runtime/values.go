package runtime

import "github.com/rvkernel/rvk/internal/wasm/translate"

// Val is a typed Wasm value at the host boundary (spec.md §4.J step 2
// "lower each parameter into a VMVal" / step 5 "lift each output VMVal
// back to a typed Val").
type Val struct {
	Type translate.ValType
	bits uint64
}

func I32Val(v int32) Val     { return Val{Type: translate.ValI32, bits: uint64(uint32(v))} }
func I64Val(v int64) Val     { return Val{Type: translate.ValI64, bits: uint64(v)} }
func F32Val(bits uint32) Val { return Val{Type: translate.ValF32, bits: uint64(bits)} }
func F64Val(bits uint64) Val { return Val{Type: translate.ValF64, bits: bits} }

func (v Val) I32() int32      { return int32(uint32(v.bits)) }
func (v Val) I64() int64      { return int64(v.bits) }
func (v Val) F32Bits() uint32 { return uint32(v.bits) }
func (v Val) F64Bits() uint64 { return v.bits }

// vmVal is the untyped raw storage form used in the store's scratch
// vector (spec.md §4.J step 1 "Borrow ... the store's Vec<VMVal> scratch").
// Go's Val already carries its bits untyped internally, so vmVal is a
// thin alias rather than a distinct representation.
type vmVal = uint64

func toVMVal(v Val) vmVal { return v.bits }

func fromVMVal(bits vmVal, typ translate.ValType) Val { return Val{Type: typ, bits: bits} }
