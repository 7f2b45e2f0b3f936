// Package resp is the result envelope the compute-pool subsystem
// (internal/sched, internal/jobs, internal/handlers) returns from task
// bodies that run detached from any one request/connection — background
// pool workers and async jobs outlive the *router.Context that queued them,
// so they cannot hand back a router.Response directly the way a synchronous
// route handler does. router.FromResult (internal/router/legacy.go) is the
// one-way bridge back into the new router's Response type.
package resp

import "cohosrv/internal/failure"

// ErrObj es el error estándar que serializamos en JSON.
type ErrObj struct {
	Code   string `json:"error"`
	Detail string `json:"detail"`
}

// Result es el contrato de salida del router.
// Si JSON=true, Body ya es un JSON serializado.
// Si Err!=nil, el servidor enviará {"error","detail"} con Status.
type Result struct {
	Status  int
	Body    string
	JSON    bool
	Err     *ErrObj
	Headers map[string]string // headers extra (X-Worker-Id, etc.)

	// Kind classifies Err using the spec §7 taxonomy (internal/failure), so
	// FromResult can decide whether the connection that surfaces this result
	// should be torn down afterward instead of kept alive for keep-alive
	// reuse. Only meaningful when Err != nil.
	Kind failure.Kind
}

// WithHeader devuelve una copia de Result con un header adicional.
func (r Result) WithHeader(k, v string) Result {
	if r.Headers == nil {
		r.Headers = make(map[string]string, 1)
	}
	r.Headers[k] = v
	return r
}

// Constructores coherentes en todo el árbol:

func PlainOK(body string) Result { return Result{Status: 200, Body: body, JSON: false} }
func JSONOK(json string) Result  { return Result{Status: 200, Body: json, JSON: true} }

// BadReq, Conflict, and TooMany are rejections the spec's Policy kind
// covers (spec §7: request rejected by a configured limit or validation
// rule) — the connection stays alive, only this one request is refused.
func BadReq(code, d string) Result  { return Result{Status: 400, JSON: true, Kind: failure.Policy, Err: &ErrObj{code, d}} }
func Conflict(code, d string) Result { return Result{Status: 409, JSON: true, Kind: failure.Policy, Err: &ErrObj{code, d}} }
func TooMany(code, d string) Result { return Result{Status: 429, JSON: true, Kind: failure.Policy, Err: &ErrObj{code, d}} }

// NotFound is a Handler-kind result: the route matched but the handler's
// own lookup came up empty, not a transport or protocol failure.
func NotFound(code, d string) Result { return Result{Status: 404, JSON: true, Kind: failure.Handler, Err: &ErrObj{code, d}} }

// IntErr reports a Handler-kind failure the handler itself could not
// recover from (spec §7's handler-boundary recovery — the same kind
// failure.FromPanic assigns a recovered route panic).
func IntErr(code, d string) Result { return Result{Status: 500, JSON: true, Kind: failure.Handler, Err: &ErrObj{code, d}} }

// Unavail reports a Transport-kind failure: pool backpressure, an execution
// timeout, or a canceled context all mean the underlying work could not be
// trusted to finish cleanly, so FromResult asks the server to close the
// connection rather than keep it alive for reuse.
func Unavail(code, d string) Result { return Result{Status: 503, JSON: true, Kind: failure.Transport, Err: &ErrObj{code, d}} }
