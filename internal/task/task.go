// Package task defines the cooperatively scheduled unit of work that a
// Worker runs. A Task is carried by one goroutine for its entire life, but
// that goroutine only ever executes while it holds the Worker's baton: every
// suspension point (block on an fd, sleep, yield) hands the baton back to
// the Worker and parks on resumeCh until the Worker hands it back. This
// keeps the "one task per worker thread at a time" invariant (spec §5,
// "Suspension points") without a hand-rolled continuation/state-machine —
// the design notes explicitly allow "a target supporting lightweight
// threads" to use one goroutine per client provided suspension happens only
// at I/O calls, which is what BlockOnFD/Sleep/Yield below guarantee.
package task

import (
	"container/heap"
	"time"
)

// State mirrors the Task lifecycle from spec §3.
type State int32

const (
	Runnable State = iota
	Blocked
	Sleeping
	Done
)

func (s State) String() string {
	switch s {
	case Runnable:
		return "runnable"
	case Blocked:
		return "blocked"
	case Sleeping:
		return "sleeping"
	case Done:
		return "done"
	}
	return "unknown"
}

// Direction matches poll.Direction without importing it here, so this
// package stays free of the platform-specific poll backend.
type Direction uint8

const (
	Read Direction = 1 << iota
	Write
)

// Task is exclusively owned by one Worker (spec §3 invariant). Fields other
// than the channels and ID are only ever touched by whichever goroutine
// currently holds the baton (the Worker's loop, or the Task's own goroutine
// between a resume and its next suspension) — never concurrently, so no
// locking is needed on them.
type Task struct {
	ID uint64

	State    State
	FD       int
	Dir      Direction
	Deadline time.Time // valid while Sleeping
	HeapIdx  int        // container/heap bookkeeping, sleep_heap only

	// ResumeErr carries the reason a suspension ended: nil on normal
	// readiness/wakeup, a sentinel error (e.g. closed-stream) otherwise. The
	// Worker sets it before sending on resumeCh; the Task reads it right
	// after waking.
	ResumeErr error

	resumeCh chan struct{} // Worker -> Task: "you have the baton"
	doneCh   chan struct{} // Task -> Worker: "I suspended or finished"
}

// New allocates a Task. The caller must start a goroutine that eventually
// calls Run with the body; Worker.Spawn does both.
func New(id uint64) *Task {
	return &Task{
		ID:       id,
		State:    Runnable,
		resumeCh: make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Launch starts body on a new goroutine. The goroutine blocks immediately
// waiting for the first baton handoff from the Worker, then runs body to
// completion or to its first suspension point (whichever comes first, body
// is expected to call back into the Worker at suspension points). Once body
// returns, the Task reports Done and signals doneCh a final time.
func (t *Task) Launch(body func(*Task)) {
	go func() {
		<-t.resumeCh
		body(t)
		t.State = Done
		t.doneCh <- struct{}{}
	}()
}

// Resume hands the baton to the task and waits until it suspends again (or
// finishes). Called only from the Worker's own goroutine.
func (t *Task) Resume(err error) {
	t.ResumeErr = err
	t.resumeCh <- struct{}{}
	<-t.doneCh
}

// Suspend is called from within the Task's goroutine (which currently holds
// the baton) to hand it back to the Worker and park until resumed. newState
// records why (Blocked/Sleeping/Runnable-for-yield) so the Worker loop can
// file the task into the right structure before calling this.
func (t *Task) Suspend(newState State) error {
	t.State = newState
	t.doneCh <- struct{}{}
	<-t.resumeCh
	return t.ResumeErr
}

// SleepHeap is a container/heap.Interface ordering tasks by Deadline, used
// by Worker as the per-worker sleep_heap (spec §3/§4.1).
type SleepHeap []*Task

func (h SleepHeap) Len() int            { return len(h) }
func (h SleepHeap) Less(i, j int) bool  { return h[i].Deadline.Before(h[j].Deadline) }
func (h SleepHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].HeapIdx, h[j].HeapIdx = i, j
}
func (h *SleepHeap) Push(x any) {
	t := x.(*Task)
	t.HeapIdx = len(*h)
	*h = append(*h, t)
}
func (h *SleepHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.HeapIdx = -1
	*h = old[:n-1]
	return t
}

var _ heap.Interface = (*SleepHeap)(nil)
