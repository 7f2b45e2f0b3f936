package router

// Filter is the unit of request/response middleware spec §4.4 composes.
// Before runs on the way in and may short-circuit by returning a non-nil
// Response; After runs on the way out and may rewrite the Response a
// downstream handler (or filter) produced.
type Filter interface {
	Before(ctx *Context) *Response
	After(ctx *Context, resp *Response) *Response
}

// FilterFuncs is the common case: a Filter built from two plain functions,
// either of which may be nil to skip that phase.
type FilterFuncs struct {
	BeforeFn func(ctx *Context) *Response
	AfterFn  func(ctx *Context, resp *Response) *Response
}

func (f FilterFuncs) Before(ctx *Context) *Response {
	if f.BeforeFn == nil {
		return nil
	}
	return f.BeforeFn(ctx)
}

func (f FilterFuncs) After(ctx *Context, resp *Response) *Response {
	if f.AfterFn == nil {
		return resp
	}
	return f.AfterFn(ctx, resp)
}

// Handler produces a Response from a request Context.
type Handler func(ctx *Context) Response

// embraceFilter and crossFilter are themselves Filters, so Embrace/Cross
// compositions nest arbitrarily inside one another.
type embraceFilter struct{ filters []Filter }

// Embrace composes filters the way ordinary nested middleware does
// (LIFO): the first filter's Before runs first and its After runs last,
// exactly as if each filter wrapped the next in a call chain. Use this when
// a filter's response-side logic genuinely depends on an inner filter
// having already run (e.g. an auth filter that must see the final status
// code before logging it).
func Embrace(filters ...Filter) Filter { return embraceFilter{filters: filters} }

func (e embraceFilter) Before(ctx *Context) *Response {
	for _, f := range e.filters {
		if r := f.Before(ctx); r != nil {
			return r
		}
		ctx.ranBefore = append(ctx.ranBefore, f)
	}
	return nil
}

func (e embraceFilter) After(ctx *Context, resp *Response) *Response {
	ran := ctx.ranBefore
	ctx.ranBefore = nil
	for i := len(ran) - 1; i >= 0; i-- {
		resp = ran[i].After(ctx, resp)
	}
	return resp
}

type crossFilter struct{ filters []Filter }

// Cross composes filters so Before and After both run in the SAME
// declared order, decoupling the response-side order from the
// before-side nesting. Use this when two filters' After logic has an
// ordering requirement independent of which "owns" the other — e.g. a
// compression filter must rewrite the body before a stats filter records
// its final size, even though both ran their Before in the same order.
func Cross(filters ...Filter) Filter { return crossFilter{filters: filters} }

func (c crossFilter) Before(ctx *Context) *Response {
	for _, f := range c.filters {
		if r := f.Before(ctx); r != nil {
			return r
		}
	}
	return nil
}

func (c crossFilter) After(ctx *Context, resp *Response) *Response {
	for _, f := range c.filters {
		resp = f.After(ctx, resp)
	}
	return resp
}

// chain turns a Handler plus its route-level filter into one Handler,
// running Before -> handler (unless short-circuited) -> After.
func chain(h Handler, f Filter) Handler {
	if f == nil {
		return h
	}
	return func(ctx *Context) Response {
		if r := f.Before(ctx); r != nil {
			return *r
		}
		resp := h(ctx)
		if r := f.After(ctx, &resp); r != nil {
			return *r
		}
		return resp
	}
}
