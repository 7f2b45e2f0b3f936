package compute

import (
	"os"
	"time"

	"cohosrv/internal/handlers"
	"cohosrv/internal/router"
	"cohosrv/internal/worker"
)

var startedAt = time.Now

// RegisterBasic mounts the teacher's always-available handlers
// (internal/handlers/basic.go, files.go) that don't need a worker pool:
// simple computation, file scratchpad operations, and a process status
// endpoint reporting the cooperative scheduler's live connection count.
func RegisterBasic(r *router.Router, m *worker.Manager) {
	boot := startedAt()

	r.Route("GET").Path(router.Return{}).Handle(func(ctx *router.Context) router.Response {
		return router.PlainOK("hello\n")
	})
	r.Route("GET").Path(router.Exact("help")).Handle(func(ctx *router.Context) router.Response {
		return router.FromResult(handlers.Help())
	})
	r.Route("GET").Path(router.Exact("status")).Handle(func(ctx *router.Context) router.Response {
		return router.JSON(200, map[string]any{
			"pid":         os.Getpid(),
			"uptime_s":    time.Since(boot).Seconds(),
			"connections": m.TotalConns(),
			"workers":     len(m.Workers()),
		})
	})
	r.Route("GET").Path(router.Exact("timestamp")).Handle(func(ctx *router.Context) router.Response {
		return router.FromResult(handlers.Timestamp(queryArgs(ctx)))
	})
	r.Route("GET").Path(router.Exact("reverse")).Handle(func(ctx *router.Context) router.Response {
		return router.FromResult(handlers.Reverse(queryArgs(ctx)))
	})
	r.Route("GET").Path(router.Exact("toupper")).Handle(func(ctx *router.Context) router.Response {
		return router.FromResult(handlers.ToUpper(queryArgs(ctx)))
	})
	r.Route("GET").Path(router.Exact("hash")).Handle(func(ctx *router.Context) router.Response {
		return router.FromResult(handlers.Hash(queryArgs(ctx)))
	})
	r.Route("GET").Path(router.Exact("random")).Handle(func(ctx *router.Context) router.Response {
		return router.FromResult(handlers.Random(queryArgs(ctx)))
	})
	r.Route("GET").Path(router.Exact("fibonacci")).Handle(func(ctx *router.Context) router.Response {
		return router.FromResult(handlers.Fibonacci(queryArgs(ctx)))
	})
	r.Route("GET").Path(router.Exact("sleep")).Handle(func(ctx *router.Context) router.Response {
		return router.FromResult(handlers.Sleep(queryArgs(ctx)))
	})
	r.Route("GET").Path(router.Exact("simulate")).Handle(func(ctx *router.Context) router.Response {
		return router.FromResult(handlers.Simulate(queryArgs(ctx)))
	})
	r.Route("GET").Path(router.Exact("loadtest")).Handle(func(ctx *router.Context) router.Response {
		return router.FromResult(handlers.LoadTest(queryArgs(ctx)))
	})
	r.Route("GET").Path(router.Exact("createfile")).Handle(func(ctx *router.Context) router.Response {
		return router.FromResult(handlers.CreateFile(queryArgs(ctx)))
	})
	r.Route("GET").Path(router.Exact("deletefile")).Handle(func(ctx *router.Context) router.Response {
		return router.FromResult(handlers.DeleteFile(queryArgs(ctx)))
	})
	r.Route("GET").Path(router.Exact("events")).Handle(eventsTicker)
}
