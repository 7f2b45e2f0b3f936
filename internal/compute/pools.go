// Package compute wires the teacher's priority-queue worker pools
// (internal/sched) to the CPU/IO-bound handler functions it shipped with
// (internal/handlers), adapted from the old switch-based router's InitPools
// (internal/router/router.go in the original teacher tree) into a
// standalone registration step any router can call into. These pools
// intentionally run on their own goroutines outside the cooperative
// scheduler in internal/worker: CPU-bound work (isprime, pi, mandelbrot...)
// would otherwise monopolize a worker's single OS thread and stall every
// other connection it owns, so it is offloaded here instead (spec §9
// "Global state"/§5 concurrency model discusses keeping blocking work off
// the cooperative scheduler).
package compute

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"cohosrv/internal/handlers"
	"cohosrv/internal/jobs"
	"cohosrv/internal/resp"
	"cohosrv/internal/sched"
)

// Pools bundles the compute-pool manager and the background job manager
// built on top of it, for the HTTP surface in cmd/cohosrv to register
// routes against.
type Pools struct {
	Manager *sched.Manager
	Jobs    *jobs.Manager
}

// Init registers every compute pool the teacher shipped, sized from cfg, and
// starts a background job manager with the given result-retention TTL. log
// is threaded into every pool (internal/sched) and into the handler task
// bodies (internal/handlers) so both log through the same zerolog instance
// as the rest of the tree instead of the teacher's original silent pools.
func Init(cfg map[string]int, jobTTL time.Duration, log zerolog.Logger) *Pools {
	handlers.SetLogger(log)
	m := sched.NewManager()

	reg := func(name string, fn sched.TaskFunc, workersKey, queueKey string) {
		_ = m.Register(name, sched.NewPool(name, fn, cfg[workersKey], cfg[queueKey], log))
	}

	reg("sleep", func(_ context.Context, p map[string]string) resp.Result { return handlers.SleepTask(p) },
		"workers.sleep", "queue.sleep")
	reg("spin", func(_ context.Context, p map[string]string) resp.Result { return handlers.SpinTask(p) },
		"workers.spin", "queue.spin")

	reg("isprime", func(ctx context.Context, p map[string]string) resp.Result { return handlers.IsPrimeJSONCtx(ctx, p) },
		"workers.isprime", "queue.isprime")
	reg("factor", func(ctx context.Context, p map[string]string) resp.Result { return handlers.FactorJSONCtx(ctx, p) },
		"workers.factor", "queue.factor")
	reg("pi", func(ctx context.Context, p map[string]string) resp.Result { return handlers.PiJSONCtx(ctx, p) },
		"workers.pi", "queue.pi")
	reg("mandelbrot", func(ctx context.Context, p map[string]string) resp.Result { return handlers.MandelbrotJSONCtx(ctx, p) },
		"workers.mandelbrot", "queue.mandelbrot")
	reg("matrixmul", func(ctx context.Context, p map[string]string) resp.Result { return handlers.MatrixMulHashCtx(ctx, p) },
		"workers.matrixmul", "queue.matrixmul")

	reg("wordcount", func(ctx context.Context, p map[string]string) resp.Result { return handlers.WordCountJSONCtx(ctx, p) },
		"workers.wordcount", "queue.wordcount")
	reg("grep", func(ctx context.Context, p map[string]string) resp.Result { return handlers.GrepJSONCtx(ctx, p) },
		"workers.grep", "queue.grep")
	reg("hashfile", func(ctx context.Context, p map[string]string) resp.Result { return handlers.HashFileJSONCtx(ctx, p) },
		"workers.hashfile", "queue.hashfile")
	reg("sortfile", func(ctx context.Context, p map[string]string) resp.Result { return handlers.SortFileJSONCtx(ctx, p) },
		"workers.sortfile", "queue.sortfile")
	reg("compress", func(ctx context.Context, p map[string]string) resp.Result { return handlers.CompressJSONCtx(ctx, p) },
		"workers.compress", "queue.compress")

	// handlers.Sleep/Simulate/LoadTest (internal/handlers/basic.go) call
	// through this package-level hook rather than taking a *sched.Manager
	// directly, so wiring it here keeps those handlers usable without
	// changing their signatures.
	handlers.Submit = func(task string, params map[string]string, timeout time.Duration) (resp.Result, bool) {
		pool, ok := m.Pool(task)
		if !ok {
			return resp.NotFound("no_pool", "pool not found"), false
		}
		return pool.SubmitAndWait(params, timeout)
	}

	return &Pools{Manager: m, Jobs: jobs.NewManager(m, jobTTL)}
}

func (p *Pools) Close() {
	if p.Jobs != nil {
		p.Jobs.Close()
	}
}

// DefaultWorkerConfig mirrors the teacher's cmd/server/main.go getenvInt
// defaults, now sourced in one place instead of scattered across main().
func DefaultWorkerConfig() map[string]int {
	return map[string]int{
		"workers.sleep": 2, "queue.sleep": 8,
		"workers.spin": 2, "queue.spin": 8,

		"workers.isprime": 2, "queue.isprime": 64,
		"workers.factor": 2, "queue.factor": 64,
		"workers.pi": 1, "queue.pi": 8,
		"workers.mandelbrot": 1, "queue.mandelbrot": 4,
		"workers.matrixmul": 1, "queue.matrixmul": 8,

		"workers.wordcount": 2, "queue.wordcount": 64,
		"workers.grep": 2, "queue.grep": 64,
		"workers.hashfile": 2, "queue.hashfile": 64,
		"workers.sortfile": 1, "queue.sortfile": 4,
		"workers.compress": 1, "queue.compress": 4,
	}
}
