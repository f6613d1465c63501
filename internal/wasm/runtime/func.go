package runtime

import (
	"fmt"

	"github.com/rvkernel/rvk/internal/trap"
	"github.com/rvkernel/rvk/internal/wasm/translate"
)

// Func is a callable Wasm function value: either a defined function
// bound to its owning Instance, or a host import.
type Func struct {
	inst    *Instance
	funcIdx uint32
}

// Export looks up a function exported under name, or reports ok=false.
func (inst *Instance) Export(name string) (Func, bool) {
	for _, e := range inst.Module.Exports {
		if e.Name == name && e.Index.Kind == translate.EntityFunction {
			return Func{inst: inst, funcIdx: e.Index.Idx}, true
		}
	}
	return Func{}, false
}

// callResult bundles call() 's two return values into one type, since
// trap.CatchTraps is generic over a single result type R.
type callResult struct {
	values []Val
	err    error
}

// Call runs f with params, following spec.md §4.J's host->wasm call
// path. Steps 1-3 (borrowing/resizing a shared VMVal scratch vector,
// resolving the target VMFuncRef) collapse here to plain Go slices and a
// direct Instance/funcIdx pair — there is no separate vmctx/funcref
// indirection to resolve since this package interprets function bodies
// directly rather than through compiled machine code reached by a raw
// function pointer.
func (f Func) Call(params []Val) ([]Val, error) {
	return f.inst.callUnchecked(f.funcIdx, params)
}

// callUnchecked is shared by Func.Call and the interpreter's own `call`/
// `call_indirect` opcodes.
func (inst *Instance) callUnchecked(funcIdx uint32, args []Val) ([]Val, error) {
	numImported := inst.Module.NumImportedFuncs()
	if funcIdx < numImported {
		return inst.ImportedFuncs[funcIdx](inst, args)
	}

	def := inst.Module.DefinedFunctions[funcIdx-numImported]
	sig := def.Type.Signature
	if len(args) != len(sig.Params) {
		return nil, fmt.Errorf("runtime: function %d expects %d params, got %d", funcIdx, len(sig.Params), len(args))
	}

	locals := make([]uint64, len(sig.Params)+len(def.Body.Locals))
	for i, a := range args {
		locals[i] = toVMVal(a)
	}

	it := &interp{inst: inst, locals: locals}

	// Step 4 ("enter wasm ... catch traps with a mask covering all
	// Wasm-reachable reasons"): real hardware faults taken while this
	// call is executing (e.g. a host import dereferencing bad memory)
	// still arrive through the kernel's trap pipeline and are caught
	// here; they are returned as a plain error naming the trap reason,
	// not as a *Trap. The interpreter's own checks return *Trap values as
	// ordinary Go errors and never raise a hardware fault.
	result, caught := trap.CatchTraps(0, trap.MaskAllSynchronous, func() callResult {
		_, err := it.run(def.Body.Code)
		if err != nil {
			return callResult{err: err}
		}
		results := make([]Val, len(sig.Results))
		for i := len(results) - 1; i >= 0; i-- {
			results[i] = fromVMVal(it.pop(), sig.Results[i])
		}
		return callResult{values: results}
	})
	if caught != nil {
		return nil, fmt.Errorf("wasm: hardware trap during call: %s", caught.Reason)
	}
	return result.values, result.err
}
