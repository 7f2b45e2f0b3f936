// Package worker implements the per-thread event loop and cooperative task
// scheduler described in spec §4.1/§4.5. Each Worker pins a single OS thread
// (runtime.LockOSThread) and owns, without locking, its poller, ready queue,
// sleep heap and fd registry — the only cross-thread mutable state on the
// hot path is the atomic connection counter the acceptor reads (spec §5).
//
// Grounded on the retrieved eventloop package's poller/registry split
// (joeycumines-go-utilpkg/eventloop/poller_linux.go, registry.go) and on the
// raw-epoll reference server's accept/read/write loop structure, adapted
// from a single-threaded demo into the N-worker, task-per-connection design
// spec.md asks for.
package worker

import (
	"container/heap"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"cohosrv/internal/poll"
	"cohosrv/internal/task"
)

// ErrTimeout is the ResumeErr a Task observes when its fd registration is
// swept for idle timeout (spec §5, "Cancellation and timeouts").
var ErrTimeout = timeoutError{}

type timeoutError struct{}

func (timeoutError) Error() string   { return "worker: idle timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return false }

// ErrClosed is the ResumeErr a Task observes when the poller reports
// hangup/error on its fd.
var ErrClosed = closedError{}

type closedError struct{}

func (closedError) Error() string { return "worker: connection closed" }

// regEntry is what Worker stores per registered (blocked-on) descriptor: the
// parked task plus the wall-clock deadline that governs idle-timeout sweep.
// Storing the deadline alongside the registry entry (rather than in a second
// heap keyed on the Task) keeps the §3 invariant intact — a Task still
// appears in at most one of {ready queue, sleep heap, registry} at a time;
// the deadline here is bookkeeping about the registration, not a second
// membership of the Task.
type regEntry struct {
	t        *task.Task
	deadline time.Time // zero = no idle timeout enforced
}

// spawnReq is how a task is handed to a Worker from another goroutine
// (typically the acceptor). It crosses threads only via incoming, which is a
// buffered channel — the only place a non-owning goroutine touches Worker
// state.
type spawnReq struct {
	body     func(*task.Task)
	isClient bool
}

const defaultReadyBudget = 64

// Worker is one per OS thread. Create with New, start with Run (blocks;
// call in its own goroutine), stop with Close.
type Worker struct {
	id     int
	log    zerolog.Logger
	poller poll.Poller

	readyBudget int

	ready   []*task.Task // FIFO; arrival-order fairness (spec §4.1 step 1)
	readyAt int          // index of the next task to run (avoids O(n) pop)

	sleeping task.SleepHeap // min-heap by deadline (spec §3)

	registry map[int]*regEntry // fd -> blocked task (spec §3 invariant)

	nextTaskID uint64

	incoming chan spawnReq // cross-thread: new tasks to launch
	wakeR    int           // eventfd read end, woken to break Wait early
	wakeW    int           // eventfd write end (same fd on Linux eventfd)

	connCount atomic.Int64 // cross-thread visible (spec §5)

	closing atomic.Bool
	doneCh  chan struct{}
}

// New creates a Worker. It does not start the event loop; call Run in a
// dedicated goroutine.
func New(id int, log zerolog.Logger, readyBudget int) (*Worker, error) {
	p, err := poll.New(256)
	if err != nil {
		return nil, err
	}
	if readyBudget <= 0 {
		readyBudget = defaultReadyBudget
	}
	w := &Worker{
		id:          id,
		log:         log.With().Int("worker", id).Logger(),
		poller:      p,
		readyBudget: readyBudget,
		registry:    make(map[int]*regEntry),
		incoming:    make(chan spawnReq, 1024),
		doneCh:      make(chan struct{}),
	}
	r, wfd, err := newWakeFD()
	if err != nil {
		p.Close()
		return nil, err
	}
	w.wakeR, w.wakeW = r, wfd
	if err := w.poller.Register(w.wakeR, poll.Read); err != nil {
		p.Close()
		return nil, err
	}
	return w, nil
}

// ID is the dense integer identifying this worker within its Manager.
func (w *Worker) ID() int { return w.id }

// ConnCount is the number of live client tasks on this worker. Read
// lock-free from the acceptor goroutine (spec §5).
func (w *Worker) ConnCount() int64 { return w.connCount.Load() }

// Spawn hands a new task body to this worker. Safe to call from any
// goroutine. isClient controls whether the task counts toward ConnCount.
func (w *Worker) Spawn(isClient bool, body func(*task.Task)) {
	w.incoming <- spawnReq{body: body, isClient: isClient}
	wakeWrite(w.wakeW)
}

// SpawnClient is the acceptor's entry point: it counts toward ConnCount for
// the worker's lifetime of the connection.
func (w *Worker) SpawnClient(body func(*task.Task)) {
	w.connCount.Add(1)
	w.Spawn(true, func(t *task.Task) {
		defer w.connCount.Add(-1)
		body(t)
	})
}

// Close asks the event loop to stop and waits for Run to return, which it
// does at the first iteration that finds the worker idle (see idle); it
// then releases the poller and the wake fd. Safe to call once from any
// goroutine.
func (w *Worker) Close() {
	if w.closing.CompareAndSwap(false, true) {
		wakeWrite(w.wakeW)
		<-w.doneCh
		w.poller.Close()
		closeWakeFD(w.wakeR, w.wakeW)
	}
}

// Run executes the main loop described in spec §4.1. Call in its own
// goroutine; it pins the calling goroutine's OS thread for its lifetime so
// that epoll/eventfd state never migrates between threads.
func (w *Worker) Run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.doneCh)

	for {
		w.drainIncoming()

		ran := 0
		for w.readyAt < len(w.ready) && ran < w.readyBudget {
			t := w.ready[w.readyAt]
			w.readyAt++
			w.runOne(t)
			ran++
		}
		w.compactReady()

		if w.closing.Load() && w.idle() {
			return
		}

		timeout := w.computeTimeout()
		events, err := w.poller.Wait(timeout)
		if err != nil {
			w.log.Error().Err(err).Msg("poll wait failed")
			continue
		}
		w.dispatchEvents(events)
		w.wakeExpiredSleepers()
		w.sweepTimedOutClients()
	}
}

func (w *Worker) idle() bool {
	return w.readyAt >= len(w.ready) && len(w.registry) == 0 && w.sleeping.Len() == 0
}

func (w *Worker) compactReady() {
	if w.readyAt > 0 && w.readyAt == len(w.ready) {
		w.ready = w.ready[:0]
		w.readyAt = 0
	} else if w.readyAt > 1024 {
		w.ready = append(w.ready[:0], w.ready[w.readyAt:]...)
		w.readyAt = 0
	}
}

func (w *Worker) drainIncoming() {
	for {
		select {
		case req := <-w.incoming:
			w.nextTaskID++
			t := task.New(w.nextTaskID)
			t.Launch(req.body)
			w.enqueueReady(t)
		default:
			_ = drainWakeFD(w.wakeR)
			return
		}
	}
}

func (w *Worker) enqueueReady(t *task.Task) {
	t.State = task.Runnable
	w.ready = append(w.ready, t)
}

// runOne hands the baton to t and waits for it to suspend again. Any fd
// registration or sleep/ready enqueue the task performs during its slice
// happens via BlockOnFD/Sleep/Yield below, called from inside t's own
// goroutine while it holds the baton — so touching w.registry/w.sleeping/
// w.ready there is race-free.
func (w *Worker) runOne(t *task.Task) {
	t.Resume(nil)
}

// BlockOnFD suspends the calling task until fd is ready for dir, or the
// optional deadline passes, or the poller reports the descriptor closed.
// Must be called from within the task's own goroutine (i.e. while it holds
// the baton) — exactly the contract task.Suspend documents.
func (w *Worker) BlockOnFD(t *task.Task, fd int, dir task.Direction, deadline time.Time) error {
	if err := w.poller.Register(fd, toPollDir(dir)); err != nil {
		// Already registered (e.g. re-blocking on the same fd after a
		// partial write) — rearm instead.
		if err2 := w.poller.Rearm(fd, toPollDir(dir)); err2 != nil {
			return err
		}
	}
	t.FD = fd
	t.Dir = dir
	t.Deadline = deadline
	w.registry[fd] = &regEntry{t: t, deadline: deadline}
	return t.Suspend(task.Blocked)
}

// Deregister removes fd from the poller and registry without resuming
// anything. Called when a connection closes voluntarily while no task is
// currently blocked on it (e.g. between pipelined requests), and internally
// before closing a socket to uphold "no descriptor is closed while a task is
// blocked on it" (spec §3).
func (w *Worker) Deregister(fd int) {
	delete(w.registry, fd)
	w.poller.Deregister(fd)
}

// Sleep suspends the calling task until deadline.
func (w *Worker) Sleep(t *task.Task, deadline time.Time) error {
	t.Deadline = deadline
	heap.Push(&w.sleeping, t)
	return t.Suspend(task.Sleeping)
}

// Yield moves the calling task to the tail of the ready queue, guaranteeing
// other runnable tasks get a turn (spec §4.1, "yield").
func (w *Worker) Yield(t *task.Task) error {
	w.enqueueReady(t)
	return t.Suspend(task.Runnable)
}

func (w *Worker) computeTimeout() time.Duration {
	var deadline time.Time
	if w.sleeping.Len() > 0 {
		deadline = w.sleeping[0].Deadline
	}
	for _, e := range w.registry {
		if e.deadline.IsZero() {
			continue
		}
		if deadline.IsZero() || e.deadline.Before(deadline) {
			deadline = e.deadline
		}
	}
	if deadline.IsZero() {
		if len(w.ready) > w.readyAt {
			return 0
		}
		return -1
	}
	d := time.Until(deadline)
	if d < 0 {
		d = 0
	}
	return d
}

func (w *Worker) dispatchEvents(events []poll.Event) {
	for _, ev := range events {
		if ev.Fd == w.wakeR {
			continue
		}
		entry, ok := w.registry[ev.Fd]
		if !ok {
			continue
		}
		delete(w.registry, ev.Fd)
		t := entry.t
		if ev.Error || ev.HangUp {
			t.ResumeErr = ErrClosed
		} else {
			t.ResumeErr = nil
		}
		w.enqueueReady(t)
	}
}

func (w *Worker) wakeExpiredSleepers() {
	now := time.Now()
	for w.sleeping.Len() > 0 && !w.sleeping[0].Deadline.After(now) {
		t := heap.Pop(&w.sleeping).(*task.Task)
		t.ResumeErr = nil
		w.enqueueReady(t)
	}
}

func (w *Worker) sweepTimedOutClients() {
	now := time.Now()
	var expired []int
	for fd, e := range w.registry {
		if !e.deadline.IsZero() && e.deadline.Before(now) {
			expired = append(expired, fd)
		}
	}
	for _, fd := range expired {
		e := w.registry[fd]
		delete(w.registry, fd)
		w.poller.Deregister(fd)
		e.t.ResumeErr = ErrTimeout
		w.enqueueReady(e.t)
	}
}

func toPollDir(d task.Direction) poll.Direction {
	var out poll.Direction
	if d&task.Read != 0 {
		out |= poll.Read
	}
	if d&task.Write != 0 {
		out |= poll.Write
	}
	return out
}
