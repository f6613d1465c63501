package runtime

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
	"slices"
)

// interp executes one DefinedFunction body directly against an
// instance's state, standing in for the original's compile-to-native-code
// step (see trap.go's package doc comment). Covers an opcode subset for
// straight-line integer-heavy code: structured control flow
// (block/loop/if/else/br/br_if/return), calls (direct and indirect),
// drop/select, locals/globals, the full-width i32.load/i64.load/
// i32.store/i64.store on memory 0, and the i32/i64 comparison,
// arithmetic, bitwise, shift and rotate operators. Narrow loads and
// stores, the integer conversions (wrap, extend), floating-point
// arithmetic and memory ops, reference types beyond funcref, and
// multi-value block types are not handled; any other opcode returns an
// error.
type interp struct {
	inst   *Instance
	locals []uint64
	stack  []uint64
}

type ctrlKind uint8

const (
	ctrlNone ctrlKind = iota
	ctrlBranch
	ctrlReturn
)

type ctrlSignal struct {
	kind  ctrlKind
	depth int
}

func (s *interp) push(v uint64) { s.stack = append(s.stack, v) }
func (s *interp) pop() uint64 {
	v := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return v
}

// callFunction invokes funcIdx (over the combined index space) with
// argument values already on the interpreter's stack top (popped in
// declared order), pushing its results.
func (s *interp) callFunction(funcIdx uint32) error {
	sig := s.inst.Module.FuncSignature(funcIdx)
	args := make([]Val, len(sig.Params))
	for i := len(args) - 1; i >= 0; i-- {
		args[i] = fromVMVal(s.pop(), sig.Params[i])
	}
	results, err := s.inst.callUnchecked(funcIdx, args)
	if err != nil {
		return err
	}
	for _, r := range results {
		s.push(toVMVal(r))
	}
	return nil
}

// run executes code, returning how control left it: fell off the end
// (ctrlNone), branched out (ctrlBranch, with the depth still to unwind
// after this block absorbs one level), or hit a wasm `return`.
func (s *interp) run(code []byte) (ctrlSignal, error) {
	pos := 0
	for pos < len(code) {
		op := code[pos]
		pos++
		switch op {
		case 0x00: // unreachable
			return ctrlSignal{}, NewTrap(TrapUnreachable)
		case 0x01: // nop
		case 0x02, 0x03, 0x04: // block, loop, if
			n := skipBlockType(code[pos:])
			pos += n
			end, elsePos := findBlockEnd(code, pos)
			var body []byte
			var elseBody []byte
			if op == 0x04 {
				cond := s.pop()
				if elsePos >= 0 {
					if cond != 0 {
						body, elseBody = code[pos:elsePos], code[elsePos+1:end]
					} else {
						body, elseBody = nil, code[elsePos+1:end]
					}
				} else if cond != 0 {
					body = code[pos:end]
				}
			} else {
				body = code[pos:end]
			}

			var sig ctrlSignal
			var err error
			if op == 0x03 { // loop: branch depth 0 re-enters the loop body
				for {
					sig, err = s.run(body)
					if err != nil {
						return ctrlSignal{}, err
					}
					if sig.kind == ctrlBranch && sig.depth == 0 {
						continue
					}
					break
				}
			} else if op == 0x04 {
				if body != nil {
					sig, err = s.run(body)
				} else if elseBody != nil {
					sig, err = s.run(elseBody)
				}
				if err != nil {
					return ctrlSignal{}, err
				}
			} else {
				sig, err = s.run(body)
				if err != nil {
					return ctrlSignal{}, err
				}
			}

			switch sig.kind {
			case ctrlBranch:
				if sig.depth == 0 {
					// absorbed by this block; continue after it
				} else {
					return ctrlSignal{kind: ctrlBranch, depth: sig.depth - 1}, nil
				}
			case ctrlReturn:
				return sig, nil
			}
			pos = end + 1 // past the matching 0x0b

		case 0x0b: // end (of the top-level function body, or reached via recursion's slice boundary)
			return ctrlSignal{}, nil
		case 0x0c: // br
			depth, n := readU32(code, pos)
			pos += n
			return ctrlSignal{kind: ctrlBranch, depth: int(depth)}, nil
		case 0x0d: // br_if
			depth, n := readU32(code, pos)
			pos += n
			if s.pop() != 0 {
				return ctrlSignal{kind: ctrlBranch, depth: int(depth)}, nil
			}
		case 0x0f: // return
			return ctrlSignal{kind: ctrlReturn}, nil
		case 0x10: // call
			idx, n := readU32(code, pos)
			pos += n
			if err := s.callFunction(idx); err != nil {
				return ctrlSignal{}, err
			}
		case 0x11: // call_indirect
			typeIdx, n := readU32(code, pos)
			pos += n
			tableIdx, n := readU32(code, pos)
			pos += n
			elemIdx := uint32(s.pop())
			if int(tableIdx) >= len(s.inst.Tables) {
				return ctrlSignal{}, fmt.Errorf("runtime: call_indirect on undefined table %d", tableIdx)
			}
			funcIdx, ok := s.inst.Tables[tableIdx].Get(elemIdx)
			if !ok {
				return ctrlSignal{}, NewTrap(TrapNullReference)
			}
			if int(typeIdx) >= len(s.inst.Module.Types) {
				return ctrlSignal{}, fmt.Errorf("runtime: call_indirect references undefined type %d", typeIdx)
			}
			got, want := s.inst.Module.FuncSignature(funcIdx), s.inst.Module.Types[typeIdx]
			if !slices.Equal(got.Params, want.Params) || !slices.Equal(got.Results, want.Results) {
				return ctrlSignal{}, NewTrap(TrapIndirectCallTypeMismatch)
			}
			if err := s.callFunction(funcIdx); err != nil {
				return ctrlSignal{}, err
			}
		case 0x1a: // drop
			s.pop()
		case 0x1b: // select
			c := s.pop()
			b := s.pop()
			a := s.pop()
			if c != 0 {
				s.push(a)
			} else {
				s.push(b)
			}
		case 0x20: // local.get
			idx, n := readU32(code, pos)
			pos += n
			s.push(s.locals[idx])
		case 0x21: // local.set
			idx, n := readU32(code, pos)
			pos += n
			s.locals[idx] = s.pop()
		case 0x22: // local.tee
			idx, n := readU32(code, pos)
			pos += n
			s.locals[idx] = s.stack[len(s.stack)-1]
		case 0x23: // global.get
			idx, n := readU32(code, pos)
			pos += n
			s.push(s.inst.Globals[idx])
		case 0x24: // global.set
			idx, n := readU32(code, pos)
			pos += n
			s.inst.Globals[idx] = s.pop()
		case 0x28, 0x29: // i32.load, i64.load
			_, n := readU32(code, pos) // align
			pos += n
			offset, n := readU32(code, pos)
			pos += n
			addr := uint64(uint32(s.pop())) + uint64(offset)
			width := 4
			if op == 0x29 {
				width = 8
			}
			mem := s.inst.Memories[0]
			if !mem.CheckBounds(addr, uint64(width)) {
				return ctrlSignal{}, NewTrap(TrapMemoryOutOfBounds)
			}
			b := mem.Bytes()[addr : addr+uint64(width)]
			if width == 4 {
				s.push(uint64(binary.LittleEndian.Uint32(b)))
			} else {
				s.push(binary.LittleEndian.Uint64(b))
			}
		case 0x36, 0x37: // i32.store, i64.store
			_, n := readU32(code, pos)
			pos += n
			offset, n := readU32(code, pos)
			pos += n
			width := 4
			if op == 0x37 {
				width = 8
			}
			raw := s.pop()
			addr := uint64(uint32(s.pop())) + uint64(offset)
			mem := s.inst.Memories[0]
			if !mem.CheckBounds(addr, uint64(width)) {
				return ctrlSignal{}, NewTrap(TrapMemoryOutOfBounds)
			}
			b := mem.Bytes()[addr : addr+uint64(width)]
			if width == 4 {
				binary.LittleEndian.PutUint32(b, uint32(raw))
			} else {
				binary.LittleEndian.PutUint64(b, raw)
			}
		case 0x41: // i32.const
			v, n := readS32(code, pos)
			pos += n
			s.push(uint64(uint32(v)))
		case 0x42: // i64.const
			v, n := readS64(code, pos)
			pos += n
			s.push(uint64(v))
		default:
			if res, n, ok := s.execNumeric(op); ok {
				pos += n
				if err := res(); err != nil {
					return ctrlSignal{}, err
				}
				continue
			}
			return ctrlSignal{}, fmt.Errorf("runtime: unsupported opcode %#x", op)
		}
	}
	return ctrlSignal{}, nil
}

// execNumeric handles the i32/i64 comparison/arithmetic opcodes, which
// have no trailing immediates (n is always 0) and operate purely on the
// value stack.
func (s *interp) execNumeric(op byte) (apply func() error, n int, ok bool) {
	apply = func() error { return nil }
	switch {
	case op >= 0x45 && op <= 0x4f: // i32 comparisons
		b := uint32(s.pop())
		var a uint32
		unary := op == 0x45 // eqz
		if !unary {
			a = uint32(s.pop())
		}
		var r bool
		switch op {
		case 0x45:
			r = b == 0
		case 0x46:
			r = a == b
		case 0x47:
			r = a != b
		case 0x48:
			r = int32(a) < int32(b)
		case 0x49:
			r = a < b
		case 0x4a:
			r = int32(a) > int32(b)
		case 0x4b:
			r = a > b
		case 0x4c:
			r = int32(a) <= int32(b)
		case 0x4d:
			r = a <= b
		case 0x4e:
			r = int32(a) >= int32(b)
		case 0x4f:
			r = a >= b
		}
		s.push(boolU64(r))
		return apply, 0, true
	case op >= 0x50 && op <= 0x5a: // i64 comparisons
		b := s.pop()
		var a uint64
		unary := op == 0x50
		if !unary {
			a = s.pop()
		}
		var r bool
		switch op {
		case 0x50:
			r = b == 0
		case 0x51:
			r = a == b
		case 0x52:
			r = a != b
		case 0x53:
			r = int64(a) < int64(b)
		case 0x54:
			r = a < b
		case 0x55:
			r = int64(a) > int64(b)
		case 0x56:
			r = a > b
		case 0x57:
			r = int64(a) <= int64(b)
		case 0x58:
			r = a <= b
		case 0x59:
			r = int64(a) >= int64(b)
		case 0x5a:
			r = a >= b
		}
		s.push(boolU64(r))
		return apply, 0, true
	case op >= 0x67 && op <= 0x78: // i32 unary/binary arithmetic
		return s.execI32Arith(op), 0, true
	case op >= 0x79 && op <= 0x8a: // i64 unary/binary arithmetic
		return s.execI64Arith(op), 0, true
	default:
		return nil, 0, false
	}
}

func (s *interp) execI32Arith(op byte) func() error {
	return func() error {
		if op >= 0x67 && op <= 0x69 { // clz, ctz, popcnt: unary
			a := uint32(s.pop())
			var r uint32
			switch op {
			case 0x67:
				r = uint32(bits.LeadingZeros32(a))
			case 0x68:
				r = uint32(bits.TrailingZeros32(a))
				if a == 0 {
					r = 32
				}
			case 0x69:
				r = uint32(bits.OnesCount32(a))
			}
			s.push(uint64(r))
			return nil
		}
		b := uint32(s.pop())
		a := uint32(s.pop())
		var r uint32
		switch op {
		case 0x6a:
			r = a + b
		case 0x6b:
			r = a - b
		case 0x6c:
			r = a * b
		case 0x6d:
			if b == 0 {
				return NewTrap(TrapIntegerDivisionByZero)
			}
			if int32(a) == math.MinInt32 && int32(b) == -1 {
				return NewTrap(TrapIntegerOverflow)
			}
			r = uint32(int32(a) / int32(b))
		case 0x6e:
			if b == 0 {
				return NewTrap(TrapIntegerDivisionByZero)
			}
			r = a / b
		case 0x6f:
			if b == 0 {
				return NewTrap(TrapIntegerDivisionByZero)
			}
			r = uint32(int32(a) % int32(b))
		case 0x70:
			if b == 0 {
				return NewTrap(TrapIntegerDivisionByZero)
			}
			r = a % b
		case 0x71:
			r = a & b
		case 0x72:
			r = a | b
		case 0x73:
			r = a ^ b
		case 0x74:
			r = a << (b & 31)
		case 0x75:
			r = uint32(int32(a) >> (b & 31))
		case 0x76:
			r = a >> (b & 31)
		case 0x77:
			r = bits.RotateLeft32(a, int(b&31))
		case 0x78:
			r = bits.RotateLeft32(a, -int(b&31))
		}
		s.push(uint64(r))
		return nil
	}
}

func (s *interp) execI64Arith(op byte) func() error {
	return func() error {
		if op >= 0x79 && op <= 0x7b { // clz, ctz, popcnt: unary
			a := s.pop()
			var r uint64
			switch op {
			case 0x79:
				r = uint64(bits.LeadingZeros64(a))
			case 0x7a:
				r = uint64(bits.TrailingZeros64(a))
				if a == 0 {
					r = 64
				}
			case 0x7b:
				r = uint64(bits.OnesCount64(a))
			}
			s.push(r)
			return nil
		}
		b := s.pop()
		a := s.pop()
		var r uint64
		switch op {
		case 0x7c:
			r = a + b
		case 0x7d:
			r = a - b
		case 0x7e:
			r = a * b
		case 0x7f:
			if b == 0 {
				return NewTrap(TrapIntegerDivisionByZero)
			}
			if int64(a) == math.MinInt64 && int64(b) == -1 {
				return NewTrap(TrapIntegerOverflow)
			}
			r = uint64(int64(a) / int64(b))
		case 0x80:
			if b == 0 {
				return NewTrap(TrapIntegerDivisionByZero)
			}
			r = a / b
		case 0x81:
			if b == 0 {
				return NewTrap(TrapIntegerDivisionByZero)
			}
			r = uint64(int64(a) % int64(b))
		case 0x82:
			if b == 0 {
				return NewTrap(TrapIntegerDivisionByZero)
			}
			r = a % b
		case 0x83:
			r = a & b
		case 0x84:
			r = a | b
		case 0x85:
			r = a ^ b
		case 0x86:
			r = a << (b & 63)
		case 0x87:
			r = uint64(int64(a) >> (b & 63))
		case 0x88:
			r = a >> (b & 63)
		case 0x89:
			r = bits.RotateLeft64(a, int(b&63))
		case 0x8a:
			r = bits.RotateLeft64(a, -int(b&63))
		}
		s.push(r)
		return nil
	}
}

func boolU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func readU32(code []byte, pos int) (uint32, int) {
	var result uint32
	var shift uint
	n := 0
	for {
		b := code[pos+n]
		n++
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	return result, n
}

func readS32(code []byte, pos int) (int32, int) {
	v, n := readSLEB(code, pos, 32)
	return int32(v), n
}

func readS64(code []byte, pos int) (int64, int) {
	v, n := readSLEB(code, pos, 64)
	return v, n
}

func readSLEB(code []byte, pos int, width uint) (int64, int) {
	var result int64
	var shift uint
	n := 0
	var b byte
	for {
		b = code[pos+n]
		n++
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if shift < width && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result, n
}

// skipBlockType returns how many bytes the block type immediate
// (following block/loop/if) occupies: 1 for void or a value type, or the
// LEB128 width of a type-section index for multi-value block types
// (whose arity this interpreter does not itself need to track, since
// control transfer here works on raw byte ranges rather than a typed
// operand stack).
func skipBlockType(code []byte) int {
	b := code[0]
	if b == 0x40 || isValTypeByte(b) {
		return 1
	}
	_, n := readS32(code, 0) // s33 type index, LEB-encoded
	return n
}

func isValTypeByte(b byte) bool {
	switch b {
	case 0x7f, 0x7e, 0x7d, 0x7c, 0x7b, 0x70, 0x6f:
		return true
	default:
		return false
	}
}

// findBlockEnd scans a structured-control-flow body starting at pos for
// its matching 0x0b (end), tracking nested block/loop/if depth, and
// reports the position of a top-level 0x05 (else) if one is present
// (elsePos is -1 otherwise).
func findBlockEnd(code []byte, pos int) (end int, elsePos int) {
	depth := 0
	elsePos = -1
	i := pos
	for i < len(code) {
		op := code[i]
		i++
		switch {
		case op == 0x02 || op == 0x03 || op == 0x04:
			i += skipBlockType(code[i:])
			depth++
		case op == 0x0b:
			if depth == 0 {
				return i - 1, elsePos
			}
			depth--
		case op == 0x05:
			if depth == 0 {
				elsePos = i - 1
			}
		case op == 0x0c, op == 0x0d:
			_, n := readU32(code, i)
			i += n
		case op == 0x10:
			_, n := readU32(code, i)
			i += n
		case op == 0x11:
			_, n := readU32(code, i)
			i += n
			_, n = readU32(code, i)
			i += n
		case op == 0x20, op == 0x21, op == 0x22, op == 0x23, op == 0x24:
			_, n := readU32(code, i)
			i += n
		case op == 0x28, op == 0x29, op == 0x36, op == 0x37:
			_, n := readU32(code, i)
			i += n
			_, n2 := readU32(code, i)
			i += n2
		case op == 0x41:
			_, n := readS32(code, i)
			i += n
		case op == 0x42:
			_, n := readS64(code, i)
			i += n
		}
	}
	return len(code), elsePos
}
