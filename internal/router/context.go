package router

import (
	"context"

	"cohosrv/internal/httpio"
)

// Context carries one request through matching, filters and the handler.
// Generalizes the teacher's bare (method, target) Dispatch signature
// (internal/router/router.go) into a struct so filters can attach state
// without a parallel parameter list.
type Context struct {
	Ctx     context.Context
	Request *httpio.Request
	Params  map[string]any

	// Host/Addr record which listener and Host header this request arrived
	// on, for routes scoped by address or virtual host (spec §4.4).
	Host string
	Addr string

	// ranBefore is Embrace's bookkeeping for which of its nested filters
	// actually ran, so After only unwinds the ones whose Before executed.
	ranBefore []Filter

	// values lets filters stash request-scoped data (e.g. an auth
	// principal) for the handler or later filters to read.
	values map[string]any
}

func newContext(ctx context.Context, req *httpio.Request, host, addr string) *Context {
	return &Context{Ctx: ctx, Request: req, Params: map[string]any{}, Host: host, Addr: addr}
}

func (c *Context) Set(key string, v any) {
	if c.values == nil {
		c.values = map[string]any{}
	}
	c.values[key] = v
}

func (c *Context) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Int reads a path parameter captured by router.Int, panicking-free: it
// returns 0, false if the name wasn't captured or wasn't an int segment.
func (c *Context) Int(name string) (int64, bool) {
	v, ok := c.Params[name]
	if !ok {
		return 0, false
	}
	n, ok := v.(int64)
	return n, ok
}

func (c *Context) String(name string) (string, bool) {
	v, ok := c.Params[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
