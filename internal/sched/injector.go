package sched

// Injector is a global MPSC queue for task submissions from contexts
// that don't own a worker's run queue directly (an interrupt handler, a
// remote hart, cmd/rvk-mkboot's bench harness), grounded on
// original_source/libs/async-kit/src/scheduler/steal.rs's Injector.
type Injector struct {
	q *stealableQueue
}

// NewInjector constructs an empty Injector.
func NewInjector() *Injector {
	return &Injector{q: newStealableQueue()}
}

// Push submits task for eventual execution by whichever worker next
// steals from this Injector.
func (in *Injector) Push(t *Task) { in.q.push(t) }

// TrySteal attempts to acquire exclusive stealing rights over this
// Injector, matching Injector::try_steal. The returned Stealer holds
// that exclusivity until Release is called.
func (in *Injector) TrySteal() (*Stealer, error) {
	return newStealer(in.q)
}
