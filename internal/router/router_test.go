package router

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cohosrv/internal/httpio"
)

func newReq(method, path string) *httpio.Request {
	return &httpio.Request{Method: method, Target: path, Path: path, Header: httpio.Header{}}
}

func TestDispatch_ExactBeatsString(t *testing.T) {
	r := New(zerolog.Nop())
	r.Route("GET").Path(Exact("users"), String{Name: "id"}).Handle(func(ctx *Context) Response {
		return PlainOK("wildcard")
	})
	r.Route("GET").Path(Exact("users"), Exact("me")).Handle(func(ctx *Context) Response {
		return PlainOK("exact")
	})

	resp := r.Dispatch(context.Background(), newReq("GET", "/users/me"), "", "")
	assert.Equal(t, "exact", string(resp.Body))

	resp = r.Dispatch(context.Background(), newReq("GET", "/users/alice"), "", "")
	assert.Equal(t, "wildcard", string(resp.Body))
}

func TestDispatch_IntCaptures(t *testing.T) {
	r := New(zerolog.Nop())
	var captured int64
	r.Route("GET").Path(Exact("items"), Int{Name: "n"}).Handle(func(ctx *Context) Response {
		captured, _ = ctx.Int("n")
		return PlainOK("ok")
	})
	resp := r.Dispatch(context.Background(), newReq("GET", "/items/42"), "", "")
	require.Equal(t, 200, resp.Status)
	assert.EqualValues(t, 42, captured)
}

func TestDispatch_RestCapturesTail(t *testing.T) {
	r := New(zerolog.Nop())
	var captured string
	r.Route("GET").Path(Exact("static"), Rest{Name: "path"}).Handle(func(ctx *Context) Response {
		captured, _ = ctx.String("path")
		return PlainOK("ok")
	})
	r.Dispatch(context.Background(), newReq("GET", "/static/css/app.css"), "", "")
	assert.Equal(t, "css/app.css", captured)
}

func TestDispatch_MethodMismatchIsNotFound405(t *testing.T) {
	r := New(zerolog.Nop())
	r.Route("GET").Path(Exact("widgets")).Handle(func(ctx *Context) Response { return PlainOK("ok") })

	resp := r.Dispatch(context.Background(), newReq("POST", "/widgets"), "", "")
	assert.Equal(t, 405, resp.Status)

	resp = r.Dispatch(context.Background(), newReq("GET", "/missing"), "", "")
	assert.Equal(t, 404, resp.Status)
}

func TestEmbrace_RunsLIFO(t *testing.T) {
	var order []string
	mk := func(name string) Filter {
		return FilterFuncs{
			BeforeFn: func(ctx *Context) *Response { order = append(order, "before:"+name); return nil },
			AfterFn: func(ctx *Context, r *Response) *Response {
				order = append(order, "after:"+name)
				return r
			},
		}
	}
	r := New(zerolog.Nop())
	r.Route("GET").Path(Exact("x")).Filter(Embrace(mk("a"), mk("b"))).Handle(func(ctx *Context) Response {
		order = append(order, "handler")
		return PlainOK("ok")
	})
	r.Dispatch(context.Background(), newReq("GET", "/x"), "", "")
	assert.Equal(t, []string{"before:a", "before:b", "handler", "after:b", "after:a"}, order)
}

func TestCross_KeepsDeclaredOrderBothPhases(t *testing.T) {
	var order []string
	mk := func(name string) Filter {
		return FilterFuncs{
			BeforeFn: func(ctx *Context) *Response { order = append(order, "before:"+name); return nil },
			AfterFn: func(ctx *Context, r *Response) *Response {
				order = append(order, "after:"+name)
				return r
			},
		}
	}
	r := New(zerolog.Nop())
	r.Route("GET").Path(Exact("x")).Filter(Cross(mk("a"), mk("b"))).Handle(func(ctx *Context) Response {
		order = append(order, "handler")
		return PlainOK("ok")
	})
	r.Dispatch(context.Background(), newReq("GET", "/x"), "", "")
	assert.Equal(t, []string{"before:a", "before:b", "handler", "after:a", "after:b"}, order)
}

func TestReturnMatchesOnlyAtBoundary(t *testing.T) {
	r := New(zerolog.Nop())
	r.Route("GET").Path(Exact("files"), Return{}).Handle(func(ctx *Context) Response { return PlainOK("index") })
	r.Route("GET").Path(Exact("files"), String{Name: "name"}).Handle(func(ctx *Context) Response { return PlainOK("file") })

	resp := r.Dispatch(context.Background(), newReq("GET", "/files"), "", "")
	assert.Equal(t, "index", string(resp.Body))

	resp = r.Dispatch(context.Background(), newReq("GET", "/files/readme.txt"), "", "")
	assert.Equal(t, "file", string(resp.Body))
}
