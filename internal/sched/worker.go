package sched

// Worker owns one local run queue: one hart's scheduling loop. Other
// harts reach it only through Enqueue (remote submission) or by
// stealing via TryStealFrom against this Worker's own run queue,
// matching "each worker owns a run queue ... Stealer acquires exclusive
// consumer access to another worker's queue" (spec.md §4.K).
type Worker struct {
	id    int
	queue *stealableQueue
}

// NewWorker constructs an idle Worker identified by id (typically the
// hart id it runs on).
func NewWorker(id int) *Worker {
	return &Worker{id: id, queue: newStealableQueue()}
}

// ID reports the worker's identifier.
func (w *Worker) ID() int { return w.id }

// Enqueue submits t onto this worker's run queue, satisfying the
// Scheduler interface so a Stealer can hand stolen tasks straight to a
// destination Worker.
func (w *Worker) Enqueue(t *Task) { w.queue.push(t) }

// Pop removes and returns the next task to run on this worker, in FIFO
// order. Called only by the hart that owns this Worker.
func (w *Worker) Pop() (*Task, bool) { return w.queue.pop() }

// Len reports the worker's approximate queue depth (for load-balancing
// decisions by whatever drives the scheduling loop).
func (w *Worker) Len() int { return int(w.queue.queued.Load()) }

// TryStealFrom attempts to acquire exclusive stealing rights over
// victim's run queue, matching Scheduler::try_steal against a sibling
// worker (as opposed to an Injector).
func TryStealFrom(victim *Worker) (*Stealer, error) {
	return newStealer(victim.queue)
}

// RunOne pops and runs the next locally queued task, reporting whether
// one was available.
func (w *Worker) RunOne() bool {
	t, ok := w.Pop()
	if !ok {
		return false
	}
	t.Run()
	return true
}
