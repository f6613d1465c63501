package unwind

import "fmt"

// Frame is one unwound stack frame: the table row in effect there plus the
// register context the unwinder reconstructed for it (spec.md §4.H,
// original_source/libs/unwind2/src/frame.rs's Frame).
type Frame struct {
	table *Table
	row   Row
	regs  Registers
	pc    uint64
}

// PC returns the address this frame was executing at (or, for every frame
// but the innermost, the address it will resume at once its callee
// returns).
func (f *Frame) PC() uint64 { return f.pc }

// SP returns the frame's stack pointer.
func (f *Frame) SP() uint64 { return f.regs.Get(SP) }

// unwind computes the register context of the caller of f, applying f's
// row's rules (mirrors Frame::unwind).
func (f *Frame) unwind() (Registers, error) {
	cfa := f.regs.Get(f.row.CFARegister) + uint64(f.row.CFAOffset)

	var next Registers
	next.Set(SP, cfa)
	next.Set(RA, 0) // cleared; restored below if the row has a rule for it

	for i := Reg(0); i < MaxReg; i++ {
		rule := f.row.Rules[i]
		switch rule.Kind {
		case RuleUndefined:
			// Leaf functions often keep their return address live in a
			// register with no CFI rule for it; preserve it rather than
			// losing the unwind at the first leaf frame.
			if i == RA {
				next.Set(i, f.regs.Get(RA))
			}
		case RuleSameValue:
			next.Set(i, f.regs.Get(i))
		case RuleOffset:
			addr := uint64(int64(cfa) + rule.Offset)
			next.Set(i, readWord(addr))
		case RuleValOffset:
			next.Set(i, uint64(int64(cfa)+rule.Offset))
		case RuleRegister:
			next.Set(i, f.regs.Get(rule.Reg))
		}
	}
	return next, nil
}

// readWord is the sole point where the unwinder dereferences a stack
// address computed from CFI data. It reads real memory through readWordAt
// (mem.go) on every build target; tests replace it with a fake
// (frame_test.go).
var readWord = func(addr uint64) uint64 { return readWordAt(addr) }

// FrameIter walks the call stack starting from a seed PC/register context,
// yielding one Frame per call site (spec.md §4.H "FrameIter::new() seeds
// from the current call site ... FrameIter::from_registers seeds from an
// arbitrary context, used from trap handlers").
type FrameIter struct {
	table *Table
	regs  Registers
	pc    uint64
	limit int
}

// FromRegisters seeds a FrameIter from an arbitrary register context, as
// used when unwinding starting from a trap frame.
func FromRegisters(table *Table, regs Registers, pc uint64, maxFrames int) *FrameIter {
	return &FrameIter{table: table, regs: regs, pc: pc, limit: maxFrames}
}

// Next returns the next frame, or (nil, nil) once the unwinder reaches the
// bottom of the stack (no CFI row restored a return address).
func (it *FrameIter) Next() (*Frame, error) {
	if it.limit <= 0 || it.pc == 0 {
		return nil, nil
	}

	// The return address points at the instruction *after* the call; step
	// back one byte so the PC used for FDE lookup lands inside the call
	// instruction's own row, not the next one's. The frame itself still
	// reports the unadjusted address.
	lookupPC := it.pc - 1

	fde := it.table.FDEFor(lookupPC)
	if fde == nil {
		return nil, fmt.Errorf("unwind: no FDE covers pc %#x", lookupPC)
	}
	row, err := RowAt(fde, lookupPC)
	if err != nil {
		return nil, err
	}

	frame := &Frame{table: it.table, row: row, regs: it.regs, pc: it.pc}
	next, err := frame.unwind()
	if err != nil {
		return nil, err
	}

	it.regs = next
	it.pc = next.Get(RA)
	it.limit--
	return frame, nil
}
