package poll

import (
	"os"
	"testing"
	"time"
)

// newPipeFDs returns the raw fds of an os.Pipe, detaching them from the
// *os.File wrappers (which would otherwise register the fds with Go's own
// netpoller and fight our Register/Wait calls for readiness events).
func newPipeFDs(t *testing.T) (r, w int, cleanup func()) {
	t.Helper()
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	rfd, wfd := int(pr.Fd()), int(pw.Fd())
	return rfd, wfd, func() {
		pr.Close()
		pw.Close()
	}
}

func TestRegisterAndWaitReadable(t *testing.T) {
	p, err := New(8)
	if err != nil {
		t.Skipf("poll.New unavailable on this platform: %v", err)
	}
	defer p.Close()

	rfd, wfd, cleanup := newPipeFDs(t)
	defer cleanup()

	if err := p.Register(rfd, Read); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := os.NewFile(uintptr(wfd), "w").WriteString("x"); err != nil {
		t.Fatalf("write: %v", err)
	}

	events, err := p.Wait(time.Second)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(events) != 1 || events[0].Fd != rfd || !events[0].Readable {
		t.Fatalf("events = %+v, want one readable event for fd %d", events, rfd)
	}
}

func TestWaitTimesOutWithNoEvents(t *testing.T) {
	p, err := New(8)
	if err != nil {
		t.Skipf("poll.New unavailable on this platform: %v", err)
	}
	defer p.Close()

	rfd, _, cleanup := newPipeFDs(t)
	defer cleanup()

	if err := p.Register(rfd, Read); err != nil {
		t.Fatalf("Register: %v", err)
	}

	events, err := p.Wait(20 * time.Millisecond)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("events = %+v, want none", events)
	}
}

func TestDeregisterIsIdempotent(t *testing.T) {
	p, err := New(8)
	if err != nil {
		t.Skipf("poll.New unavailable on this platform: %v", err)
	}
	defer p.Close()

	rfd, _, cleanup := newPipeFDs(t)
	defer cleanup()

	if err := p.Register(rfd, Read); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := p.Deregister(rfd); err != nil {
		t.Fatalf("first Deregister: %v", err)
	}
	if err := p.Deregister(rfd); err != nil {
		t.Fatalf("second Deregister should be a no-op, got: %v", err)
	}
}

func TestRearmAfterOneShotFire(t *testing.T) {
	p, err := New(8)
	if err != nil {
		t.Skipf("poll.New unavailable on this platform: %v", err)
	}
	defer p.Close()

	rfd, wfd, cleanup := newPipeFDs(t)
	defer cleanup()
	wf := os.NewFile(uintptr(wfd), "w")

	if err := p.Register(rfd, Read); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := wf.WriteString("a"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if events, err := p.Wait(time.Second); err != nil || len(events) != 1 {
		t.Fatalf("first Wait: events=%v err=%v", events, err)
	}

	// One-shot: a second Wait without Rearm must not re-report the fd, even
	// though the pipe is still readable (the byte was never drained).
	if events, err := p.Wait(20 * time.Millisecond); err != nil || len(events) != 0 {
		t.Fatalf("Wait after one-shot fire should see nothing, got events=%v err=%v", events, err)
	}

	if err := p.Rearm(rfd, Read); err != nil {
		t.Fatalf("Rearm: %v", err)
	}
	if events, err := p.Wait(time.Second); err != nil || len(events) != 1 {
		t.Fatalf("Wait after Rearm: events=%v err=%v", events, err)
	}
}
