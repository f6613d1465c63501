package trap

import (
	"errors"
	"testing"
)

func resetHart(h int) {
	harts[h] = hartState{}
	pageFaultHandler = nil
}

func TestCatchTrapsReturnsResultWhenNoTrapRaised(t *testing.T) {
	resetHart(0)
	result, caught := CatchTraps(0, MaskAllSynchronous, func() int { return 42 })
	if caught != nil {
		t.Fatalf("caught = %v, want nil", caught)
	}
	if result != 42 {
		t.Fatalf("result = %d, want 42", result)
	}
	if len(harts[0].stack) != 0 {
		t.Fatalf("hart stack not popped: %v", harts[0].stack)
	}
}

func TestCatchTrapsInterceptsMatchingResumeTrap(t *testing.T) {
	resetHart(0)
	tr := Trap{PC: 0x8000, Reason: StorePageFault}

	result, caught := CatchTraps(0, MaskPageFaults, func() int {
		ResumeTrap(0, tr)
		t.Fatal("unreachable: ResumeTrap must not return")
		return 0
	})

	if caught == nil {
		t.Fatal("caught = nil, want the raised trap")
	}
	if *caught != tr {
		t.Fatalf("caught = %+v, want %+v", *caught, tr)
	}
	if result != 0 {
		t.Fatalf("result = %d, want zero value", result)
	}
}

func TestCatchTrapsIgnoresNonMatchingReason(t *testing.T) {
	resetHart(0)
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected ResumeTrap to panic past a non-matching CatchTraps frame")
		}
	}()

	CatchTraps(0, MaskPageFaults, func() int {
		ResumeTrap(0, Trap{Reason: IllegalInstruction})
		return 0
	})
}

func TestCatchTrapsNested(t *testing.T) {
	resetHart(0)
	inner := Trap{Reason: IllegalInstruction}

	_, outerCaught := CatchTraps(0, MaskAllSynchronous, func() int {
		_, innerCaught := CatchTraps(0, MaskPageFaults, func() int {
			ResumeTrap(0, inner)
			return 0
		})
		if innerCaught != nil {
			t.Fatal("inner frame's mask does not cover IllegalInstruction, must not catch")
		}
		return 7
	})

	if outerCaught == nil || *outerCaught != inner {
		t.Fatalf("outerCaught = %v, want %+v", outerCaught, inner)
	}
}

func TestBeginTrapServicesPageFaultWithoutResuming(t *testing.T) {
	resetHart(0)
	var seen Trap
	SetPageFaultHandler(func(tr Trap) (bool, error) {
		seen = tr
		return true, nil
	})

	tr := Trap{Reason: LoadPageFault, FaultingAddress: 0x1000}
	BeginTrap(0, tr)

	if seen != tr {
		t.Fatalf("page fault handler saw %+v, want %+v", seen, tr)
	}
	if harts[0].inHandler != true {
		t.Fatalf("inHandler = false after a serviced fault, want true (only ResumeTrap clears it)")
	}
}

func TestBeginTrapFallsBackToResumeTrapWhenUnhandled(t *testing.T) {
	resetHart(0)
	SetPageFaultHandler(func(tr Trap) (bool, error) { return false, nil })

	tr := Trap{Reason: StorePageFault}
	_, caught := CatchTraps(0, MaskPageFaults, func() int {
		BeginTrap(0, tr)
		return 0
	})
	if caught == nil || *caught != tr {
		t.Fatalf("caught = %v, want %+v", caught, tr)
	}
}

func TestBeginTrapResumesOnHandlerError(t *testing.T) {
	resetHart(0)
	SetPageFaultHandler(func(tr Trap) (bool, error) { return false, errors.New("boom") })

	tr := Trap{Reason: StorePageFault}
	_, caught := CatchTraps(0, MaskPageFaults, func() int {
		BeginTrap(0, tr)
		return 0
	})
	if caught == nil || *caught != tr {
		t.Fatalf("caught = %v, want %+v", caught, tr)
	}
}

func TestBeginTrapAbortsOnReentrancy(t *testing.T) {
	resetHart(0)
	harts[0].inHandler = true

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected BeginTrap to panic on reentrant invocation")
		}
	}()
	BeginTrap(0, Trap{Reason: IllegalInstruction})
}
