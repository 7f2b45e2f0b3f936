package handlers

import (
	"github.com/rs/zerolog"

	"cohosrv/internal/failure"
	"cohosrv/internal/resp"
)

// Log is this package's structured logger, set by compute.Init (mirroring
// the Submit hook below it in basic.go) so the CPU/IO task bodies log
// through the same github.com/rs/zerolog instance the rest of the tree
// uses instead of silently swallowing validation/IO failures. Defaults to
// a no-op logger so handlers remain usable (e.g. in tests) before a caller
// wires one in.
var Log = zerolog.Nop()

// SetLogger installs the logger every handlers.* error path below logs
// through.
func SetLogger(l zerolog.Logger) { Log = l }

// classify builds the resp.Result every *JSON(Ctx) handler in this package
// returns on failure, tagging it with the spec §7 Kind (internal/failure)
// FromResult (internal/router/legacy.go) uses to decide whether the
// connection survives the response, and logging it at a level matched to
// that Kind's severity.
func classify(kind failure.Kind, status int, code, detail string) resp.Result {
	ev := Log.Debug()
	if kind == failure.Handler || kind == failure.Transport || kind == failure.Fatal {
		ev = Log.Warn()
	}
	ev.Str("kind", kind.String()).Str("code", code).Msg(detail)
	return resp.Result{Status: status, JSON: true, Kind: kind, Err: &resp.ErrObj{Code: code, Detail: detail}}
}

// badReq, conflict, and tooMany are Policy-kind rejections (spec §7):
// invalid/conflicting input, the connection itself stays healthy.
func badReq(code, detail string) resp.Result  { return classify(failure.Policy, 400, code, detail) }
func conflict(code, detail string) resp.Result { return classify(failure.Policy, 409, code, detail) }
func tooMany(code, detail string) resp.Result { return classify(failure.Policy, 429, code, detail) }

// notFound and intErr are Handler-kind: the route matched and ran, but the
// lookup came up empty or the handler itself could not complete — the same
// kind failure.FromPanic assigns a recovered route panic.
func notFound(code, detail string) resp.Result { return classify(failure.Handler, 404, code, detail) }
func intErr(code, detail string) resp.Result   { return classify(failure.Handler, 500, code, detail) }

// unavail is Transport-kind: pool backpressure, an execution timeout, or a
// canceled job all mean the work could not be trusted to finish cleanly, so
// FromResult closes the connection instead of offering it for reuse.
func unavail(code, detail string) resp.Result { return classify(failure.Transport, 503, code, detail) }
