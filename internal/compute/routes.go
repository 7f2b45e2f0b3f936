package compute

import (
	"net/url"
	"time"

	"cohosrv/internal/resp"
	"cohosrv/internal/router"
)

// submitSync runs name's pool synchronously against args, mapping
// backpressure into the same resp.Result shapes the teacher's router used.
func (p *Pools) submitSync(name string, args map[string]string, timeout time.Duration) resp.Result {
	pool, ok := p.Manager.Pool(name)
	if !ok {
		return resp.NotFound("no_pool", "pool not found")
	}
	r, _ := pool.SubmitAndWait(args, timeout)
	return r
}

// Register installs the compute and background-job HTTP surface (spec's
// supplemented "asynchronous task execution" feature) onto r, generalizing
// the teacher's /isprime, /jobs/*, /metrics switch cases
// (internal/router/router.go) into typed routes.
func Register(r *router.Router, p *Pools, cpuTimeout, ioTimeout time.Duration) {
	cpuPools := []string{"isprime", "factor", "pi", "mandelbrot", "matrixmul"}
	ioPools := []string{"wordcount", "grep", "hashfile", "sortfile", "compress"}

	for _, name := range cpuPools {
		name := name
		r.Route("GET").Path(router.Exact(name)).Handle(func(ctx *router.Context) router.Response {
			return router.FromResult(p.submitSync(name, queryArgs(ctx), cpuTimeout))
		})
	}
	for _, name := range ioPools {
		name := name
		r.Route("GET").Path(router.Exact(name)).Handle(func(ctx *router.Context) router.Response {
			return router.FromResult(p.submitSync(name, queryArgs(ctx), ioTimeout))
		})
	}

	r.Route("GET").Path(router.Exact("metrics")).Handle(func(ctx *router.Context) router.Response {
		return router.JSONOK(p.Manager.MetricsJSON())
	})

	r.Route("GET").Path(router.Exact("jobs"), router.Exact("submit")).Handle(func(ctx *router.Context) router.Response {
		args := queryArgs(ctx)
		task := args["task"]
		if task == "" {
			return router.BadRequest("task", "task=<pool_name> required")
		}
		params := make(map[string]string, len(args))
		for k, v := range args {
			if k != "task" {
				params[k] = v
			}
		}
		id := p.Jobs.Submit(task, params, cpuTimeout)
		if id == "" {
			return router.NotFound("no_pool", "pool not found")
		}
		return router.JSON(200, map[string]any{"job_id": id, "status": "queued"})
	})

	r.Route("GET").Path(router.Exact("jobs"), router.Exact("status")).Handle(func(ctx *router.Context) router.Response {
		id := queryArgs(ctx)["id"]
		if id == "" {
			return router.BadRequest("id", "id required")
		}
		if js, ok := p.Jobs.SnapshotJSON(id); ok {
			return router.JSONOK(js)
		}
		return router.NotFound("not_found", "job not found")
	})

	r.Route("GET").Path(router.Exact("jobs"), router.Exact("result")).Handle(func(ctx *router.Context) router.Response {
		id := queryArgs(ctx)["id"]
		if id == "" {
			return router.BadRequest("id", "id required")
		}
		body, ok, err := p.Jobs.ResultJSON(id)
		if !ok {
			return router.NotFound("not_found", "job not found")
		}
		if err != nil {
			return router.BadRequest("not_ready", "job not finished yet")
		}
		return router.JSONOK(body)
	})

	r.Route("GET").Path(router.Exact("jobs"), router.Exact("list")).Handle(func(ctx *router.Context) router.Response {
		return router.JSONOK(p.Jobs.ListJSON())
	})
}

// queryArgs flattens the request's query string into the single-valued
// map[string]string shape the teacher's handlers (internal/handlers/*.go)
// expect, taking the first value of any repeated key.
func queryArgs(ctx *router.Context) map[string]string {
	values, _ := url.ParseQuery(ctx.Request.RawQuery)
	out := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
