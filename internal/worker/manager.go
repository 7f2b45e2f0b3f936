package worker

import (
	"github.com/rs/zerolog"
)

// Manager owns the fixed pool of N workers (spec §5: "N parallel OS threads,
// each running a single-threaded cooperative scheduler"). Load balancing
// happens only at this layer, and only at assignment time: Pick returns the
// worker with the smallest ConnCount, ties broken by worker id, reading the
// atomic counters without any lock (spec §5, §9 "Open questions" — staleness
// is accepted).
type Manager struct {
	workers []*Worker
}

// NewManager starts n workers, each on its own goroutine.
func NewManager(n int, log zerolog.Logger, readyBudget int) (*Manager, error) {
	if n <= 0 {
		n = 1
	}
	m := &Manager{workers: make([]*Worker, 0, n)}
	for i := 0; i < n; i++ {
		w, err := New(i, log, readyBudget)
		if err != nil {
			m.Close()
			return nil, err
		}
		m.workers = append(m.workers, w)
		go w.Run()
	}
	return m, nil
}

// Pick selects the least-loaded worker (spec §5).
func (m *Manager) Pick() *Worker {
	best := m.workers[0]
	for _, w := range m.workers[1:] {
		if w.ConnCount() < best.ConnCount() {
			best = w
		}
	}
	return best
}

// Workers returns the underlying slice (read-only use: stats, iteration).
func (m *Manager) Workers() []*Worker { return m.workers }

// TotalConns sums ConnCount across all workers, for /status-style reporting.
func (m *Manager) TotalConns() int64 {
	var total int64
	for _, w := range m.workers {
		total += w.ConnCount()
	}
	return total
}

// Close stops every worker and waits for its loop to exit.
func (m *Manager) Close() {
	for _, w := range m.workers {
		if w != nil {
			w.Close()
		}
	}
}
