package router

import (
	"encoding/json"
	"io"

	"cohosrv/internal/httpio"
)

// Response is the router/handler contract, generalizing the teacher's
// resp.Result (internal/resp/resp.go) from a fixed plain-text-or-JSON body
// to the three body shapes spec §4.3 needs a handler to be able to produce:
// a fixed in-memory body, a streamed body (chunked), or a file to be sent
// via sendfile. Exactly one of Body/Stream/File should be set.
type Response struct {
	Status int
	Header httpio.Header

	Body   []byte
	Stream io.Reader // chunked if Status allows a body and ContentLength is unknown

	// File, when set, asks the server to serve this open descriptor via
	// sendfile instead of copying through Body/Stream (spec §4.5).
	File *FileBody
}

type FileBody struct {
	FD     int
	Offset int64
	Size   int64
	Close  func() // released after the response is fully written
}

func header() httpio.Header { return httpio.Header{} }

func PlainOK(body string) Response {
	h := header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	return Response{Status: 200, Header: h, Body: []byte(body)}
}

func JSONOK(payload string) Response {
	h := header()
	h.Set("Content-Type", "application/json")
	return Response{Status: 200, Header: h, Body: []byte(payload)}
}

// JSON marshals v and wraps any marshal error as a 500, mirroring how
// callers in the teacher's router ignored json.Marshal errors on
// already-valid internal structures (internal/router/router.go) but now
// surfacing a failure instead of silently sending an empty body.
func JSON(status int, v any) Response {
	b, err := json.Marshal(v)
	if err != nil {
		return ErrorJSON(500, "marshal_error", err.Error())
	}
	h := header()
	h.Set("Content-Type", "application/json")
	return Response{Status: status, Header: h, Body: b}
}

type errObj struct {
	Code   string `json:"error"`
	Detail string `json:"detail"`
}

// ErrorJSON serializes the uniform {"error","detail"} payload the teacher's
// resp package used (internal/resp/resp.go), generalized to any status.
func ErrorJSON(status int, code, detail string) Response {
	b, _ := json.Marshal(errObj{Code: code, Detail: detail})
	h := header()
	h.Set("Content-Type", "application/json")
	return Response{Status: status, Header: h, Body: b}
}

func BadRequest(code, detail string) Response   { return ErrorJSON(400, code, detail) }
func Forbidden(code, detail string) Response    { return ErrorJSON(403, code, detail) }
func NotFound(code, detail string) Response     { return ErrorJSON(404, code, detail) }
func MethodNotAllowed() Response                { return ErrorJSON(405, "method_not_allowed", "method not allowed") }
func Conflict(code, detail string) Response     { return ErrorJSON(409, code, detail) }
func TooLarge(code, detail string) Response     { return ErrorJSON(413, code, detail) }
func TooMany(code, detail string) Response      { return ErrorJSON(429, code, detail) }
func InternalError(code, detail string) Response { return ErrorJSON(500, code, detail) }
func Unavailable(code, detail string) Response  { return ErrorJSON(503, code, detail) }

// WithHeader returns a copy of r with an additional header value, matching
// the teacher's resp.Result.WithHeader (internal/resp/resp.go).
func (r Response) WithHeader(k, v string) Response {
	if r.Header == nil {
		r.Header = httpio.Header{}
	} else {
		r.Header = r.Header.Clone()
	}
	r.Header.Add(k, v)
	return r
}
