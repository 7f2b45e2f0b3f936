package main

import (
	"time"

	"github.com/rs/zerolog"

	"cohosrv/internal/router"
)

// accessLogFilter logs one line per request, timing it across Before/After,
// generalizing the teacher's inline log.Printf call at the top of HandleConn
// (internal/server/server.go) into a router.Filter any route can opt out of
// by being registered on a router that doesn't install it.
func accessLogFilter(log zerolog.Logger) router.Filter {
	return router.FilterFuncs{
		BeforeFn: func(ctx *router.Context) *router.Response {
			ctx.Set("access_log_start", time.Now())
			return nil
		},
		AfterFn: func(ctx *router.Context, resp *router.Response) *router.Response {
			started, _ := ctx.Get("access_log_start")
			var elapsed time.Duration
			if t, ok := started.(time.Time); ok {
				elapsed = time.Since(t)
			}
			log.Info().
				Str("method", ctx.Request.Method).
				Str("path", ctx.Request.Path).
				Int("status", resp.Status).
				Dur("elapsed", elapsed).
				Msg("request")
			return resp
		},
	}
}
