package trap

import "github.com/rvkernel/rvk/internal/kfmt"

// MaxHarts bounds the number of simultaneously active harts this package
// tracks state for. Each hart's slot in harts is only ever touched by code
// running on that hart, mirroring the original's cpu_local! per-core
// storage without needing real thread-local storage.
const MaxHarts = 16

type resumeFrame struct {
	mask  Mask
	trap  Trap
	valid bool // true once ResumeTrap has populated trap for this frame
}

type hartState struct {
	stack     []*resumeFrame
	inHandler bool
}

var harts [MaxHarts]hartState

// caughtTrap is the panic payload ResumeTrap uses to unwind directly back
// to the matching CatchTraps call, standing in for the original's
// setjmp/longjmp pair: recover() is Go's own non-local control transfer,
// and every reason this package resumes is synchronous with the code
// CatchTraps wraps, so it always unwinds through a live Go call stack.
type caughtTrap struct {
	frame *resumeFrame
}

// CatchTraps runs f, intercepting any trap ResumeTrap raises on hart whose
// reason is in mask before it would otherwise reach an outer catcher or
// the default panic handler (spec.md §4.G "catch_traps"). It returns f's
// result unless a matching trap was caught, in which case caught is non-nil
// and the zero value of R is returned.
func CatchTraps[R any](hart int, mask Mask, f func() R) (result R, caught *Trap) {
	h := &harts[hart]
	fr := &resumeFrame{mask: mask}
	h.stack = append(h.stack, fr)

	defer func() {
		h.stack = h.stack[:len(h.stack)-1]
		r := recover()
		if r == nil {
			return
		}
		c, ok := r.(caughtTrap)
		if !ok || c.frame != fr {
			panic(r) // not ours: let an outer CatchTraps, or nothing, handle it
		}
		caught = &c.frame.trap
	}()

	result = f()
	return result, nil
}

// ResumeTrap raises trap on hart without giving any subsystem (in
// particular the VM page-fault handler) a chance to service it first,
// searching outward through the hart's CatchTraps stack for the first
// frame whose mask contains the trap's reason (spec.md §4.G
// "resume_trap"). If none matches, it delegates to the uncaught-trap
// handler, which never returns.
func ResumeTrap(hart int, tr Trap) {
	h := &harts[hart]
	h.inHandler = false

	for i := len(h.stack) - 1; i >= 0; i-- {
		fr := h.stack[i]
		if fr.mask.Contains(tr.Reason) {
			fr.trap = tr
			fr.valid = true
			panic(caughtTrap{frame: fr})
		}
	}

	faultResumePanic(tr)
}

func faultResumePanic(tr Trap) {
	kfmt.Printf("UNCAUGHT KERNEL TRAP %s pc=%16x fp=%16x faulting_address=%16x\n",
		tr.Reason.String(), uint64(tr.PC), uint64(tr.FP), uint64(tr.FaultingAddress))
	panic(tr)
}

// PageFaultHandler attempts to service a page-fault trap (spec.md §4.G,
// "consult the vm subsystem ... does it have special handling?"). It
// returns handled=true if the fault was serviced and execution may resume
// at the faulting instruction, or a non-nil err to report a fatal failure
// servicing it. SetPageFaultHandler installs the kernel's vmm-backed
// implementation at boot; trap intentionally does not import package vmm
// directly so the two packages stay decoupled the way traps.rs only calls
// through the generic vm::trap_handler entry point.
type PageFaultHandler func(tr Trap) (handled bool, err error)

var pageFaultHandler PageFaultHandler

// SetPageFaultHandler installs the subsystem callback BeginTrap consults
// for page-fault reasons.
func SetPageFaultHandler(h PageFaultHandler) { pageFaultHandler = h }

// BeginTrap processes a trap fully: unlike ResumeTrap, it first gives the
// registered page-fault handler a chance to service the fault, and only
// falls back to ResumeTrap if the handler declines or isn't installed
// (spec.md §4.G "begin_trap"). It aborts if called reentrantly on the same
// hart before the previous trap was acknowledged.
func BeginTrap(hart int, tr Trap) {
	h := &harts[hart]
	if h.inHandler {
		panic("trap occurred while in trap handler")
	}
	h.inHandler = true

	if tr.Reason.IsPageFault() && pageFaultHandler != nil {
		handled, err := pageFaultHandler(tr)
		if err != nil {
			kfmt.Printf("error servicing page fault: %s\n", err.Error())
			ResumeTrap(hart, tr)
			return
		}
		if handled {
			return
		}
	}

	ResumeTrap(hart, tr)
}
