// Package sched implements a work-stealing, multiple-producer
// single-consumer run-queue scheduler (spec.md §4.K): each worker owns a
// run queue it alone consumes from; an Injector is a global MPSC queue
// for remote submissions; a Stealer acquires exclusive consumer access
// to a queue and drains roughly half of it onto another worker.
//
// Unlike gopher-os-gopher-os/src/gopheros/kernel/sync's Spinlock, which
// wraps one piece of arch-specific state behind a tiny API, this package
// is pure Go: the scheduler itself needs no hart-specific instructions,
// so (per SPEC_FULL.md) it is exercised directly under `go test` on the
// host, the same way cmd/rvk-mkboot's bench-sched subcommand drives it
// host-side.
package sched

// Task is one schedulable unit of work. Run executes the task to
// completion or until it voluntarily returns (cooperative scheduling:
// spec.md §5 "Suspension points ... at explicit await points"); this
// package does not itself implement an async executor, only the queues
// tasks move through, so Run is expected to drive its own suspension
// logic and re-spawn itself via Enqueue if it needs to resume later.
type Task struct {
	Run func()

	// next links Task nodes inside whichever queue currently owns them,
	// standing in for the original's intrusive Header/TaskRef list node
	// (alloc.Box<Task> pinned, no separate node). Go's GC makes the
	// pinning unnecessary; a single next pointer per task is enough
	// since a Task is only ever a member of one queue at a time.
	next *Task
}

// NewTask wraps fn as a schedulable Task.
func NewTask(fn func()) *Task { return &Task{Run: fn} }
