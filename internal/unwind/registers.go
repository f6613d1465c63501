// Package unwind implements the DWARF CFI (.eh_frame) stack unwinder and
// crash backtrace/symbolization (spec.md §4.H). Grounded on
// original_source/libs/unwind2 (Frame/FramesIter, the CfaRule/RegisterRule
// evaluation loop) and original_source/kernel/src/backtrace/mod.rs
// (Backtrace capture + lazy Display-time symbolization).
//
// The original is built on the `gimli` crate, which has no counterpart
// wired anywhere in the example pack (grepped: no eh_frame/CFI library
// appears in any example repo's go.mod). Rather than invent a dependency
// nothing in the pack grounds, the CFI bytecode interpreter here is
// hand-written directly against the DWARF CFI spec's instruction encoding,
// restricted to the subset real toolchains actually emit for a
// leaf-frame-aware, non-exception-handling bare-metal target: no
// DW_CFA_expression/val_expression, and FDE/CIE pointer encodings limited
// to DW_EH_PE_absptr and DW_EH_PE_pcrel|DW_EH_PE_sdata4 (the two GCC/LLVM
// actually use for eh_frame on this class of target). See DESIGN.md.
package unwind

// Reg names the RISC-V integer registers this package restores, by their
// DWARF register number (== their x-register index on riscv64).
type Reg int

const (
	RA     Reg = 1  // x1, return address
	SP     Reg = 2  // x2, stack pointer
	FP     Reg = 8  // x8, frame pointer (s0)
	MaxReg Reg = 32
)

// Registers is the fixed-capacity register file FrameIter carries between
// frames (spec.md §4.H "a fixed-capacity Registers struct per
// architecture"). Go has no value-generic array sizes, so unlike the
// original's per-arch const generic, this package just hardcodes riscv64's
// 32 integer registers; a second architecture would need its own type.
type Registers struct {
	X [MaxReg]uint64
}

// Get returns the value of reg.
func (r *Registers) Get(reg Reg) uint64 { return r.X[reg] }

// Set assigns reg.
func (r *Registers) Set(reg Reg, v uint64) { r.X[reg] = v }
