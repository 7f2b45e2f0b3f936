package router

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"cohosrv/internal/httpio"
)

// Router resolves a request to a Handler by trying registered routes in
// specificity order (spec §4.4), generalizing the teacher's single
// switch-based Dispatch (internal/router/router.go) into composable,
// independently testable route registrations.
type Router struct {
	routes      []*Route
	global      Filter
	log         zerolog.Logger
	nextOrder   int
	notFound    Handler
}

func New(log zerolog.Logger) *Router {
	return &Router{log: log, notFound: func(ctx *Context) Response { return NotFound("not_found", "route") }}
}

// Use installs a filter applied to every route, outermost (spec's global
// filter scope — e.g. access logging, panic recovery).
func (r *Router) Use(f Filter) {
	if r.global == nil {
		r.global = f
		return
	}
	r.global = Embrace(r.global, f)
}

// Builder accumulates matchers for one route before Handle finalizes it.
type Builder struct {
	r        *Router
	methods  []string
	matchers []Matcher
	filter   Filter
	host     string
	addr     string
}

func (r *Router) Route(methods ...string) *Builder {
	return &Builder{r: r, methods: methods}
}

func (b *Builder) Path(matchers ...Matcher) *Builder { b.matchers = matchers; return b }
func (b *Builder) Host(h string) *Builder            { b.host = h; return b }
func (b *Builder) Addr(a string) *Builder            { b.addr = a; return b }
func (b *Builder) Filter(f Filter) *Builder          { b.filter = f; return b }

func (b *Builder) Handle(h Handler) *Route {
	rt := &Route{
		methods:  b.methods,
		matchers: b.matchers,
		filter:   b.filter,
		handler:  h,
		host:     b.host,
		addr:     b.addr,
		order:    b.r.nextOrder,
	}
	b.r.nextOrder++
	b.r.routes = append(b.r.routes, rt)
	sort.SliceStable(b.r.routes, func(i, j int) bool { return b.r.routes[i].less(b.r.routes[j]) })
	return rt
}

// Dispatch resolves ctx against the registered routes and runs the matching
// handler (wrapped in its route filter, then the global filter). Returns a
// 405 if some route's path matched but no method did, 404 otherwise.
func (r *Router) Dispatch(ctx context.Context, req *httpio.Request, host, addr string) Response {
	rc := newContext(ctx, req, host, addr)
	segments := splitPath(req.Path)

	pathMatched := false
	for _, rt := range r.routes {
		ok, params := rt.matches(rc, segments)
		if !ok {
			if pathMatchesIgnoringMethod(rt, rc, segments) {
				pathMatched = true
			}
			continue
		}
		rc.Params = params
		h := chain(rt.handler, rt.filter)
		if r.global != nil {
			h = chain(h, r.global)
		}
		return h(rc)
	}

	if pathMatched {
		h := r.withGlobal(func(ctx *Context) Response { return MethodNotAllowed() })
		return h(rc)
	}
	return r.withGlobal(r.notFound)(rc)
}

func (r *Router) withGlobal(h Handler) Handler {
	if r.global == nil {
		return h
	}
	return chain(h, r.global)
}

func pathMatchesIgnoringMethod(rt *Route, ctx *Context, segments []string) bool {
	save := rt.methods
	rt.methods = nil
	ok, _ := rt.matches(ctx, segments)
	rt.methods = save
	return ok
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
