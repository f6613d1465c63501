//go:build riscv64

package mmu

// setActiveTable writes satp with the given MODE/ASID/PPN fields, switching
// the current hart to a new root table. Implemented in arch_riscv64.s,
// following the teacher's convention of keeping every privileged
// instruction behind a tiny hand-written asm stub (kernel/mem/vmm's
// switchPDT/activePDT).
//
//go:noescape
func setActiveTable(satpMode, asid, ppn uint64)

// fenceRange issues sfence.vma for a single page range under the given
// ASID. RISC-V's sfence.vma only takes one virtual address at a time, so
// callers with a multi-page range are expected to have already looped;
// Flush.Flush does that via fenceRange per accumulated range.
//
//go:noescape
func fenceRange(asid, vaddr, size uint64)

// fenceAll issues a global sfence.vma covering every address and ASID,
// used after Activate() installs a new root table.
//
//go:noescape
func fenceAll()
