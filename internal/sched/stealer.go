package sched

// Scheduler is anything a Stealer can hand stolen tasks to, matching the
// Schedule trait bound steal.rs's try_spawn_one requires (the original's
// task.bind_scheduler + scheduler.wake split collapses to one call here:
// Go tasks carry no scheduler-affinity state to rebind, so handing a
// *Task to a destination Worker is the whole of "spawning" it there).
type Scheduler interface {
	Enqueue(t *Task)
}

// Stealer grants exclusive consumer access to one queue (an Injector's
// or a Worker's run queue) until Release is called, mirroring
// steal.rs's Stealer<'queue, S> guard.
type Stealer struct {
	c        *consumer
	snapshot int
}

func newStealer(q *stealableQueue) (*Stealer, error) {
	c, err := q.tryConsume()
	if err != nil {
		return nil, err
	}
	return &Stealer{c: c, snapshot: c.snapshot}, nil
}

// InitialTaskCount reports how many tasks the target queue held when
// this Stealer was created (Stealer::initial_task_count).
func (s *Stealer) InitialTaskCount() int { return s.snapshot }

// Release relinquishes exclusive consumer access early. Safe to call
// more than once.
func (s *Stealer) Release() { s.c.release() }

// trySpawnOne steals a single task and hands it to dst, reporting
// whether a task was available (Stealer::try_spawn_one).
func (s *Stealer) trySpawnOne(dst Scheduler) bool {
	t, ok := s.c.dequeue()
	if !ok {
		return false
	}
	dst.Enqueue(t)
	return true
}

// SpawnOne steals exactly one task and hands it to dst. Panics if the
// target queue is unexpectedly empty, matching Stealer::spawn_one's
// "should always hold at least one task" assertion — callers only ever
// reach SpawnOne/SpawnN/SpawnHalf after confirming InitialTaskCount > 0.
func (s *Stealer) SpawnOne(dst Scheduler) {
	if !s.trySpawnOne(dst) {
		panic("sched: Stealer target should always hold at least one task")
	}
}

// SpawnN steals up to max tasks (stopping early if the queue runs dry)
// and hands them to dst, returning how many were actually stolen.
// Steals none when max is 0 or the queue is already empty
// (Stealer::spawn_n).
func (s *Stealer) SpawnN(dst Scheduler, max int) int {
	stolen := 0
	for stolen < max && s.trySpawnOne(dst) {
		stolen++
	}
	return stolen
}

// SpawnHalf steals ceil(n/2) of the tasks present when this Stealer was
// created and hands them to dst, returning how many were actually
// stolen (Stealer::spawn_half).
func (s *Stealer) SpawnHalf(dst Scheduler) int {
	max := (s.snapshot + 1) / 2 // ceil(n/2)
	return s.SpawnN(dst, max)
}
