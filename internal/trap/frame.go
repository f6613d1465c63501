package trap

import "github.com/rvkernel/rvk/internal/kfmt"

// Frame is the full register context the vectored trap entry saves before
// calling into Go (spec.md §3 "TrapFrame"). X[0] (the hardwired zero
// register) is never written by the entry stub and always reads zero; F
// holds the floating-point registers only when the trapping context had
// FP state live, and is otherwise left zeroed. Anchor lets the unwinder
// (package unwind) recognize a trap frame on the stack and seed a
// FrameIter from it instead of the current call site.
type Frame struct {
	X      [32]uint64
	F      [32]uint64
	PC     uint64
	Anchor uint64
}

// Print dumps the frame to the active kfmt sink, in the teacher's
// register-dump style (irq.Regs.Print/irq.Frame.Print).
func (f *Frame) Print() {
	kfmt.Printf("pc  = %16x\n", f.PC)
	for i := 0; i < 32; i += 2 {
		kfmt.Printf("x%d = %16x  x%d = %16x\n", i, f.X[i], i+1, f.X[i+1])
	}
}
