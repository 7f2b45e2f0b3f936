package compute

import (
	"io"
	"strconv"
	"time"

	"cohosrv/internal/httpio"
	"cohosrv/internal/router"
	"cohosrv/internal/util"
)

// eventsTicker pushes count SSE ticks (default 5) spaced interval apart
// (default 200ms), one per second-counter, before closing the stream. It is
// the one route in the tree exercising httpio.EventWriter (spec §6's
// generator surface: event:/id:/retry:/data: lines), wired through
// router.Response.Stream the same way any other streamed body would be.
func eventsTicker(ctx *router.Context) router.Response {
	q := queryArgs(ctx)

	count := 5
	if n, err := strconv.Atoi(q["count"]); err == nil && n > 0 && n <= 100 {
		count = n
	}
	interval := 200 * time.Millisecond
	if ms, err := strconv.Atoi(q["interval_ms"]); err == nil && ms > 0 {
		interval = time.Duration(ms) * time.Millisecond
	}

	pr, pw := io.Pipe()
	go func() {
		ew := httpio.NewEventWriter(pw)
		for i := 1; i <= count; i++ {
			err := ew.Send(httpio.Event{
				Event: "tick",
				ID:    util.NewReqID(),
				Retry: 1000,
				Data:  strconv.Itoa(i),
			})
			if err != nil {
				break
			}
			if i < count {
				time.Sleep(interval)
			}
		}
		pw.Close()
	}()

	h := httpio.Header{}
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	return router.Response{Status: 200, Header: h, Stream: pr}
}
