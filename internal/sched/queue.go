package sched

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrBusy is returned by TryConsume when another Stealer already holds
// exclusive consumer access to this queue (mirrors TryStealError::Busy).
var ErrBusy = errors.New("sched: queue already has an active consumer")

// ErrEmpty is returned by TryConsume when the queue holds no tasks
// (mirrors TryStealError::Empty).
var ErrEmpty = errors.New("sched: queue is empty")

// stealableQueue is an intrusive singly-linked MPSC queue: any number of
// producers may Push concurrently, but only one consumer may be
// dequeuing at a time, enforced by consumerActive. Both Injector and a
// worker's local RunQueue are backed by one of these — the original
// draws the same line (Injector's run_queue and a worker's run queue are
// both an mpsc_queue::MpscQueue<Header>), it is only the Stealer's
// target that differs.
type stealableQueue struct {
	mu   sync.Mutex
	head *Task
	tail *Task

	queued         atomic.Int64 // approximate count, matches Injector's AtomicUsize
	consumerActive atomic.Bool
}

func newStealableQueue() *stealableQueue { return &stealableQueue{} }

// push enqueues task at the tail. Safe for concurrent callers.
func (q *stealableQueue) push(t *Task) {
	t.next = nil
	q.mu.Lock()
	if q.tail == nil {
		q.head, q.tail = t, t
	} else {
		q.tail.next = t
		q.tail = t
	}
	q.mu.Unlock()
	q.queued.Add(1)
}

// tryConsume grants exclusive dequeue access, snapshotting the queue's
// current task count the way Stealer::new does (task_snapshot).
func (q *stealableQueue) tryConsume() (*consumer, error) {
	if !q.consumerActive.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	snapshot := q.queued.Load()
	if snapshot <= 0 {
		q.consumerActive.Store(false)
		return nil, ErrEmpty
	}
	return &consumer{q: q, snapshot: int(snapshot)}, nil
}

// pop dequeues the head task directly, without going through the
// exclusive-consumer gate: the owning Worker calls this, the same way
// the original's worker loop holds its own run queue's Consumer for as
// long as it runs (only a remote Stealer needs the gate, to keep two
// concurrent thieves from trampling each other's snapshot-bound steal).
func (q *stealableQueue) pop() (*Task, bool) {
	q.mu.Lock()
	t := q.head
	if t == nil {
		q.mu.Unlock()
		return nil, false
	}
	q.head = t.next
	if q.head == nil {
		q.tail = nil
	}
	q.mu.Unlock()
	q.queued.Add(-1)
	t.next = nil
	return t, true
}

// consumer grants one steal's worth of exclusive dequeue access to a
// stealableQueue (mpsc_queue::Consumer's role in steal.rs).
type consumer struct {
	q        *stealableQueue
	snapshot int
}

// dequeue pops the head task, or reports ok=false if the queue is empty.
func (c *consumer) dequeue() (*Task, bool) { return c.q.pop() }

// release relinquishes exclusive consumer access, matching Stealer's
// Drop impl (dropping the Consumer guard).
func (c *consumer) release() { c.q.consumerActive.Store(false) }
