package worker

import (
	"sync"
	"testing"
	"time"

	"cohosrv/internal/log"
	"cohosrv/internal/task"
)

func TestManagerPickLeastLoadedAndTieBreak(t *testing.T) {
	m, err := NewManager(3, log.New(log.Options{Level: "error"}), 0)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	// All workers start at zero load; ties break toward the first (id 0).
	if got := m.Pick(); got != m.Workers()[0] {
		t.Fatalf("Pick on empty manager = worker %d, want 0", got.ID())
	}

	// Bump worker 0 and worker 1's connection counts directly via
	// SpawnClient, which increments synchronously regardless of whether the
	// task body has actually been scheduled yet. Worker 0 runs one body at a
	// time and the first one blocks on release, so only the first signals wg.
	var wg sync.WaitGroup
	release := make(chan struct{})
	wg.Add(1)
	m.Workers()[0].SpawnClient(func(_ *task.Task) { wg.Done(); <-release })
	m.Workers()[0].SpawnClient(func(_ *task.Task) { <-release })

	wg.Wait()
	if got := m.Pick(); got != m.Workers()[1] {
		t.Fatalf("Pick after loading worker 0 = worker %d, want 1", got.ID())
	}

	close(release)
}

func TestConnCountTracksClientLifetime(t *testing.T) {
	m, err := NewManager(1, log.New(log.Options{Level: "error"}), 0)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	w := m.Workers()[0]
	if w.ConnCount() != 0 {
		t.Fatalf("initial ConnCount = %d, want 0", w.ConnCount())
	}

	done := make(chan struct{})
	w.SpawnClient(func(_ *task.Task) { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("client task never ran")
	}

	ok := waitUntilWorker(time.Second, func() bool { return w.ConnCount() == 0 })
	if !ok {
		t.Fatalf("ConnCount never returned to 0, got %d", w.ConnCount())
	}
}

func TestTotalConnsSumsAcrossWorkers(t *testing.T) {
	m, err := NewManager(2, log.New(log.Options{Level: "error"}), 0)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	m.Workers()[0].SpawnClient(func(_ *task.Task) { wg.Done(); <-release })
	m.Workers()[1].SpawnClient(func(_ *task.Task) { wg.Done(); <-release })
	wg.Wait()

	if got := m.TotalConns(); got != 2 {
		t.Fatalf("TotalConns = %d, want 2", got)
	}
	close(release)
}

func TestYieldReordersReadyQueue(t *testing.T) {
	w, err := New(0, log.New(log.Options{Level: "error"}), 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	go w.Run()
	defer w.Close()

	var mu sync.Mutex
	var order []string
	done := make(chan struct{}, 2)

	w.Spawn(false, func(t *task.Task) {
		mu.Lock()
		order = append(order, "a-before-yield")
		mu.Unlock()
		_ = w.Yield(t)
		mu.Lock()
		order = append(order, "a-after-yield")
		mu.Unlock()
		done <- struct{}{}
	})
	w.Spawn(false, func(t *task.Task) {
		mu.Lock()
		order = append(order, "b")
		mu.Unlock()
		done <- struct{}{}
	})

	<-done
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "a-before-yield" || order[len(order)-1] != "a-after-yield" {
		t.Fatalf("unexpected interleaving: %v", order)
	}
}

func waitUntilWorker(d time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}
