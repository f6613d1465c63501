package unwind

import (
	"encoding/binary"
	"fmt"
)

// RuleKind is how a register's value at a given PC is recovered, mirroring
// gimli's RegisterRule enum restricted to the subset original_source's
// Frame::unwind actually switches on.
type RuleKind uint8

const (
	RuleUndefined RuleKind = iota
	RuleSameValue
	RuleOffset   // value is *(cfa + offset)
	RuleValOffset // value is cfa + offset
	RuleRegister  // value is the current value of another register
)

// Rule is one register's recovery rule.
type Rule struct {
	Kind   RuleKind
	Offset int64
	Reg    Reg
}

// Row is the CFI table row in effect at one PC: how to compute the CFA,
// and a recovery Rule per register (spec.md §4.H "consults the FDE to
// compute the next CFA and restores callee-saved registers per the
// register rules").
type Row struct {
	CFARegister Reg
	CFAOffset   int64
	Rules       [MaxReg]Rule
}

func newRow() Row {
	var r Row
	for i := range r.Rules {
		r.Rules[i] = Rule{Kind: RuleUndefined}
	}
	return r
}

// cie is a parsed Common Information Entry: the instructions shared by
// every FDE that references it, plus the two factors CFI offsets are
// scaled by.
type cie struct {
	codeAlign      uint64
	dataAlign      int64
	retAddrReg     Reg
	initialInstrs  []byte
	fdePtrEncoding byte // DW_EH_PE_* byte read from a "zR" augmentation, 0 (absptr) if none
	hasAugData     bool // augmentation string started with 'z': each FDE carries a length-prefixed aug data blob
}

// FDE is a parsed Frame Description Entry: the PC range it covers and the
// instructions that build on its CIE's initial row.
type FDE struct {
	cie       *cie
	start     uint64
	end       uint64
	instrs    []byte
}

// Contains reports whether pc falls within the FDE's covered range.
func (f *FDE) Contains(pc uint64) bool { return pc >= f.start && pc < f.end }

// Table is a parsed .eh_frame section: every FDE, ready for lookup by PC.
type Table struct {
	fdes []*FDE
}

// FDEFor returns the FDE covering pc, or nil.
func (t *Table) FDEFor(pc uint64) *FDE {
	for _, f := range t.fdes {
		if f.Contains(pc) {
			return f
		}
	}
	return nil
}

// ParseEHFrame parses the raw bytes of a .eh_frame section into a Table.
// sectionVMA is the virtual address the section is loaded at, used to
// resolve pc-relative pointer encodings.
func ParseEHFrame(data []byte, sectionVMA uint64) (*Table, error) {
	t := &Table{}
	cies := map[int]*cie{}

	off := 0
	for off < len(data) {
		entryStart := off
		length, n := readU32(data, off)
		off += n
		if length == 0 {
			break // terminator
		}
		if length == 0xffffffff {
			return nil, fmt.Errorf("unwind: 64-bit DWARF eh_frame not supported")
		}
		entryEnd := off + int(length)
		if entryEnd > len(data) {
			return nil, fmt.Errorf("unwind: eh_frame entry overruns section")
		}

		cieOrFdeID, n := readU32(data, off)
		idOff := off
		off += n

		if cieOrFdeID == 0 {
			c, err := parseCIE(data[off:entryEnd])
			if err != nil {
				return nil, err
			}
			cies[entryStart] = c
		} else {
			cieOffset := idOff - int(cieOrFdeID)
			c, ok := cies[cieOffset]
			if !ok {
				return nil, fmt.Errorf("unwind: FDE references unknown CIE at %#x", cieOffset)
			}
			f, err := parseFDE(data[off:entryEnd], c, sectionVMA, off)
			if err != nil {
				return nil, err
			}
			t.fdes = append(t.fdes, f)
		}
		off = entryEnd
	}
	return t, nil
}

func parseCIE(body []byte) (*cie, error) {
	off := 0
	if len(body) < 1 {
		return nil, fmt.Errorf("unwind: truncated CIE")
	}
	version := body[off]
	off++
	_ = version

	augEnd := indexByte(body[off:], 0)
	if augEnd < 0 {
		return nil, fmt.Errorf("unwind: CIE augmentation string not terminated")
	}
	aug := string(body[off : off+augEnd])
	off += augEnd + 1

	codeAlign, n := readULEB128(body, off)
	off += n
	dataAlign, n := readSLEB128(body, off)
	off += n

	retReg, n := readULEB128(body, off)
	off += n

	hasAug := len(aug) > 0 && aug[0] == 'z'
	var ptrEnc byte
	if hasAug {
		_, n := readULEB128(body, off) // augmentation data length
		off += n
		for _, c := range aug[1:] {
			switch c {
			case 'R':
				ptrEnc = body[off]
				off++
			case 'P':
				// personality pointer: encoding byte + encoded pointer, skipped (no personality routines in this kernel)
				enc := body[off]
				off++
				off += ptrEncSize(enc)
			case 'L':
				off++ // LSDA pointer encoding byte, LSDA itself is per-FDE
			case 'S':
				// signal frame marker, no extra bytes
			}
		}
	}

	return &cie{
		codeAlign:      codeAlign,
		dataAlign:      dataAlign,
		retAddrReg:     Reg(retReg),
		initialInstrs:  body[off:],
		fdePtrEncoding: ptrEnc,
		hasAugData:     hasAug,
	}, nil
}

func parseFDE(body []byte, c *cie, sectionVMA uint64, bodyFileOff int) (*FDE, error) {
	off := 0

	initial, n := readEncodedPointer(body, off, c.fdePtrEncoding, sectionVMA, uint64(bodyFileOff))
	off += n
	// The range length is encoded the same way minus the pcrel/datarel
	// application bits: it's always an absolute count of bytes.
	rangeLen, n := readEncodedPointer(body, off, c.fdePtrEncoding&0x0f, sectionVMA, 0)
	off += n

	if c.hasAugData {
		length, n := readULEB128(body, off)
		off += n + int(length) // skip per-FDE augmentation data (e.g. an LSDA pointer); this kernel never reads it
	}

	return &FDE{
		cie:    c,
		start:  initial,
		end:    initial + rangeLen,
		instrs: body[off:],
	}, nil
}

func ptrEncSize(enc byte) int {
	switch enc & 0x07 {
	case 0x00: // absptr, width is the target's address size
		return 8
	case 0x02:
		return 2
	case 0x03:
		return 4
	case 0x04:
		return 8
	default:
		return 8
	}
}

func readEncodedPointer(data []byte, off int, enc byte, sectionVMA uint64, pcrelFileOff uint64) (uint64, int) {
	if enc == 0xff { // DW_EH_PE_omit
		return 0, 0
	}
	format := enc & 0x0f
	application := enc & 0x70

	var v uint64
	var n int
	switch format {
	case 0x00, 0x04: // absptr / udata8
		v, n = readU64(data, off)
	case 0x03: // udata4
		v32, nn := readU32(data, off)
		v, n = uint64(v32), nn
	case 0x0b: // sdata4
		v32, nn := readU32(data, off)
		v, n = uint64(int64(int32(v32))), nn
	case 0x0a: // sdata2
		v16, nn := readU16(data, off)
		v, n = uint64(int64(int16(v16))), nn
	default:
		v, n = readU64(data, off)
	}

	if application == 0x10 { // DW_EH_PE_pcrel
		v += sectionVMA + pcrelFileOff
	}
	return v, n
}

// RowAt executes f's CIE's initial instructions followed by f's own
// instructions up to (and including) the last one whose advanced location
// does not exceed pc, producing the CFI row in effect there.
func RowAt(f *FDE, pc uint64) (Row, error) {
	row := newRow()
	loc := f.start

	run := func(instrs []byte) error {
		var stack []Row
		off := 0
		for off < len(instrs) {
			op := instrs[off]
			off++
			switch {
			case op&0xc0 == 0x40: // DW_CFA_advance_loc
				loc += uint64(op&0x3f) * f.cie.codeAlign
			case op&0xc0 == 0x80: // DW_CFA_offset
				reg := Reg(op & 0x3f)
				val, n := readULEB128(instrs, off)
				off += n
				if reg < MaxReg {
					row.Rules[reg] = Rule{Kind: RuleOffset, Offset: int64(val) * f.cie.dataAlign}
				}
			case op&0xc0 == 0xc0: // DW_CFA_restore
				reg := Reg(op & 0x3f)
				if reg < MaxReg {
					row.Rules[reg] = Rule{Kind: RuleUndefined}
				}
			default:
				switch op {
				case 0x00: // nop
				case 0x01: // set_loc
					v, n := readU64(instrs, off)
					off += n
					loc = v
				case 0x02: // advance_loc1
					loc += uint64(instrs[off]) * f.cie.codeAlign
					off++
				case 0x03: // advance_loc2
					v, n := readU16(instrs, off)
					off += n
					loc += uint64(v) * f.cie.codeAlign
				case 0x04: // advance_loc4
					v, n := readU32(instrs, off)
					off += n
					loc += uint64(v) * f.cie.codeAlign
				case 0x0c: // def_cfa
					reg, n := readULEB128(instrs, off)
					off += n
					val, n := readULEB128(instrs, off)
					off += n
					row.CFARegister = Reg(reg)
					row.CFAOffset = int64(val)
				case 0x0d: // def_cfa_register
					reg, n := readULEB128(instrs, off)
					off += n
					row.CFARegister = Reg(reg)
				case 0x0e: // def_cfa_offset
					val, n := readULEB128(instrs, off)
					off += n
					row.CFAOffset = int64(val)
				case 0x0f: // def_cfa_expression: unsupported, skip the encoded expression and leave row as-is
					length, n := readULEB128(instrs, off)
					off += n + int(length)
				case 0x07: // undefined
					reg, n := readULEB128(instrs, off)
					off += n
					if Reg(reg) < MaxReg {
						row.Rules[reg] = Rule{Kind: RuleUndefined}
					}
				case 0x08: // same_value
					reg, n := readULEB128(instrs, off)
					off += n
					if Reg(reg) < MaxReg {
						row.Rules[reg] = Rule{Kind: RuleSameValue}
					}
				case 0x09: // register
					reg, n := readULEB128(instrs, off)
					off += n
					other, n := readULEB128(instrs, off)
					off += n
					if Reg(reg) < MaxReg {
						row.Rules[reg] = Rule{Kind: RuleRegister, Reg: Reg(other)}
					}
				case 0x0a: // remember_state
					stack = append(stack, row)
				case 0x0b: // restore_state
					if len(stack) > 0 {
						row = stack[len(stack)-1]
						stack = stack[:len(stack)-1]
					}
				default:
					return fmt.Errorf("unwind: unsupported CFI opcode %#x", op)
				}
			}
			if loc > pc {
				return nil
			}
		}
		return nil
	}

	if err := run(f.cie.initialInstrs); err != nil {
		return row, err
	}
	// loc is still f.start (CIE instructions don't advance location); walk
	// the FDE's own instructions forward from there, stopping once loc
	// would pass pc.
	if err := run(f.instrs); err != nil {
		return row, err
	}
	return row, nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func readU16(data []byte, off int) (uint16, int) {
	if off+2 > len(data) {
		return 0, 0
	}
	return binary.LittleEndian.Uint16(data[off:]), 2
}

func readU32(data []byte, off int) (uint32, int) {
	if off+4 > len(data) {
		return 0, 0
	}
	return binary.LittleEndian.Uint32(data[off:]), 4
}

func readU64(data []byte, off int) (uint64, int) {
	if off+8 > len(data) {
		return 0, 0
	}
	return binary.LittleEndian.Uint64(data[off:]), 8
}

func readULEB128(data []byte, off int) (uint64, int) {
	var result uint64
	var shift uint
	n := 0
	for {
		if off+n >= len(data) {
			return result, n
		}
		b := data[off+n]
		n++
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	return result, n
}

func readSLEB128(data []byte, off int) (int64, int) {
	var result int64
	var shift uint
	n := 0
	var b byte
	for {
		if off+n >= len(data) {
			return result, n
		}
		b = data[off+n]
		n++
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result, n
}
