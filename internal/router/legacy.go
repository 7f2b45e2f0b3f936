package router

import (
	"cohosrv/internal/failure"
	"cohosrv/internal/resp"
)

// FromResult bridges the teacher's resp.Result (internal/resp/resp.go),
// still used by the adapted compute-pool subsystem in internal/compute, into
// a Response this router can write. Kept as a narrow adapter rather than
// rewriting every compute handler's return type, since resp.Result's
// plain/JSON/error shape maps onto Response without loss.
func FromResult(r resp.Result) Response {
	h := Header{}
	for k, v := range r.Headers {
		h.Set(k, v)
	}
	if r.Err != nil {
		h.Set("Content-Type", "application/json")
		// Transport- and Fatal-kind results (pool backpressure, execution
		// timeouts, canceled jobs) mean the work backing this response could
		// not be trusted to finish cleanly — ask the server to drop the
		// connection instead of offering it for keep-alive reuse.
		if r.Kind == failure.Transport || r.Kind == failure.Fatal {
			h.Set("Connection", "close")
		}
		return Response{Status: r.Status, Header: h, Body: []byte(
			`{"error":"` + jsonEscape(r.Err.Code) + `","detail":"` + jsonEscape(r.Err.Detail) + `"}`)}
	}
	if r.JSON {
		h.Set("Content-Type", "application/json")
	} else {
		h.Set("Content-Type", "text/plain; charset=utf-8")
	}
	return Response{Status: r.Status, Header: h, Body: []byte(r.Body)}
}

func jsonEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
