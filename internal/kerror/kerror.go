// Package kerror provides allocation-free error values for code paths that
// must run before the kernel heap exists (the bootstrap allocator, the
// mapper, the trap pipeline) or from inside a trap handler.
//
// Go's errors.New allocates, and the runtime's own allocator is not
// guaranteed to be available at these call sites, so errors here are
// declared as package-level *Error values rather than constructed on demand.
package kerror

// Error is a comparable, non-allocating error value. All sentinel errors in
// the pre-heap packages are declared as global *Error variables so that
// comparisons can use plain pointer equality instead of errors.Is.
type Error struct {
	// Module names the subsystem that raised the error (e.g. "pmm/arena").
	Module string
	// Message is a short, static description of the failure.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Module + ": " + e.Message
}

// New declares a sentinel error. Call it only from package-level var blocks;
// it performs an allocation and must never be called from a hot path.
func New(module, message string) *Error {
	return &Error{Module: module, Message: message}
}
