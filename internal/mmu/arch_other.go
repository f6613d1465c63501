//go:build !riscv64

package mmu

// On non-riscv64 hosts (development machines, CI) there is no satp CSR or
// sfence.vma instruction to execute. These stubs let the rest of the
// package — and its tests — build and run unmodified; only the actual
// kernel binary is ever linked for riscv64, where arch_riscv64.s supplies
// the real implementations.
func setActiveTable(satpMode, asid, ppn uint64) {}

func fenceRange(asid, vaddr, size uint64) {}

func fenceAll() {}
