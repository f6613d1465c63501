package unwind

import (
	"fmt"

	"golang.org/x/arch/riscv64asm"
)

// DisassembleFaultingInstruction decodes the single instruction at pc out of
// code (a window onto the kernel text section, e.g. read through the
// physmap), for inclusion in a trap report. Grounded on this module's
// domain-stack wiring of golang.org/x/arch/riscv64asm — the pack has no
// disassembler of its own, and a hand-rolled RV64GC decoder would just
// re-implement what the x/arch package already does correctly.
func DisassembleFaultingInstruction(code []byte, pc uint64) string {
	inst, err := riscv64asm.Decode(code)
	if err != nil {
		return fmt.Sprintf("%#x: <unable to decode instruction: %v>", pc, err)
	}
	return fmt.Sprintf("%#x: %s", pc, riscv64asm.GNUSyntax(inst))
}
