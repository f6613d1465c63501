// Package trap implements the trap pipeline (spec.md §4.G): the TrapFrame
// saved by the vectored entry, the Trap value a hart's handler constructs
// from it, and the catch/resume mechanism subsystems use to intercept a
// trap instead of letting it fall through to the default panic handler.
//
// Grounded on original_source/kernel/src/traps.rs. That file's catch_traps
// doc comment calls the mechanism "analogous to catch_unwind"; this
// package takes that literally and builds CatchTraps/ResumeTrap on Go's
// own panic/recover rather than hand-written setjmp/longjmp, since
// panic/recover already is Go's non-local, stack-unwinding control
// transfer and every reason this package resumes synchronously
// (exceptions raised by the very code CatchTraps is wrapping) unwinds
// correctly through it. See DESIGN.md for the tradeoff this simplifies
// away (asynchronous interrupts don't have a Go call stack to unwind).
package trap

import "github.com/rvkernel/rvk/internal/addr"

// Trap is the decoded cause of a hardware trap (spec.md §3 "Trap").
type Trap struct {
	PC              addr.VirtAddr
	FP              addr.VirtAddr
	FaultingAddress addr.VirtAddr
	Reason          Reason
}
