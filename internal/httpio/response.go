package httpio

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// fileSender is satisfied by *netio.Conn; kept as a narrow local interface
// instead of importing internal/netio so httpio stays usable over any
// io.Writer (tests use a bytes.Buffer) and only gets the sendfile/cork fast
// path when the real connection is underneath (spec §4.2/§4.3).
type fileSender interface {
	Sendfile(src int, offset *int64, count int) (int, error)
	Cork() error
	Uncork() error
}

// ResponseWriter assembles one HTTP/1.1 response, generalizing the teacher's
// single `write` helper (internal/http10/response.go) from a fixed
// Content-Length/Connection:close response into status/headers/body framing
// that also supports chunked and sendfile bodies (spec §4.3).
type ResponseWriter struct {
	w      io.Writer
	proto  string
	wrote  bool
	server string
}

func NewResponseWriter(w io.Writer, proto, serverName string) *ResponseWriter {
	return &ResponseWriter{w: w, proto: proto, server: serverName}
}

// WriteFixed writes a response whose full body is already in memory or
// known-length, using Content-Length framing (the common case).
func (rw *ResponseWriter) WriteFixed(status int, header Header, body []byte) error {
	h := header.Clone()
	h.Set("Content-Length", strconv.Itoa(len(body)))
	h.Del("Transfer-Encoding")
	if err := rw.writeHeadLine(status, h); err != nil {
		return err
	}
	_, err := rw.w.Write(body)
	return err
}

// WriteChunked streams body through chunked transfer-encoding, for handlers
// that don't know their output length up front (spec §4.3).
func (rw *ResponseWriter) WriteChunked(status int, header Header, body io.Reader, trailer Header) error {
	h := header.Clone()
	h.Del("Content-Length")
	h.Set("Transfer-Encoding", "chunked")
	if err := rw.writeHeadLine(status, h); err != nil {
		return err
	}
	cw := newChunkedWriter(rw.w)
	buf := make([]byte, 32*1024)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := cw.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	if trailer == nil {
		trailer = Header{}
	}
	return cw.Close(trailer)
}

// WriteSendfile writes headers then streams count bytes from src (an open
// file descriptor) via the connection's zero-copy sendfile(2) path (spec
// §4.5 SendFileCache). Falls back to nothing special if w isn't a
// fileSender — callers needing the fallback should use WriteFixed/WriteChunked
// instead, since sendfile requires a raw fd destination.
func (rw *ResponseWriter) WriteSendfile(status int, header Header, fs fileSender, src int, offset int64, count int64) error {
	h := header.Clone()
	h.Set("Content-Length", strconv.FormatInt(count, 10))
	h.Del("Transfer-Encoding")
	if err := fs.Cork(); err == nil {
		defer fs.Uncork()
	}
	if err := rw.writeHeadLine(status, h); err != nil {
		return err
	}
	off := offset
	remaining := count
	for remaining > 0 {
		n, err := fs.Sendfile(src, &off, int(remaining))
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		remaining -= int64(n)
	}
	return nil
}

// WriteEmpty writes a response with no body (e.g. 204, 304, or a HEAD
// response for a resource that would otherwise carry a body).
func (rw *ResponseWriter) WriteEmpty(status int, header Header) error {
	h := header.Clone()
	h.Del("Transfer-Encoding")
	if !h.Has("Content-Length") {
		h.Set("Content-Length", "0")
	}
	return rw.writeHeadLine(status, h)
}

func (rw *ResponseWriter) writeHeadLine(status int, h Header) error {
	if rw.wrote {
		return fmt.Errorf("httpio: response already started")
	}
	rw.wrote = true
	if !h.Has("Date") {
		h.Set("Date", time.Now().UTC().Format(time.RFC1123))
	}
	if !h.Has("Server") && rw.server != "" {
		h.Set("Server", rw.server)
	}
	if _, err := fmt.Fprintf(rw.w, "%s %d %s\r\n", rw.proto, status, StatusText(status)); err != nil {
		return err
	}
	for _, k := range h.sortedKeys() {
		for _, v := range h[k] {
			if _, err := fmt.Fprintf(rw.w, "%s: %s\r\n", k, v); err != nil {
				return err
			}
		}
	}
	_, err := io.WriteString(rw.w, "\r\n")
	return err
}

// EventWriter formats Server-Sent Events onto an underlying io.Writer
// (spec's supplemented streaming-response feature). It does not frame its
// own HTTP response: a route exposes one by returning a router.Response
// with Stream set to the read end of an io.Pipe and Header's Content-Type
// set to text/event-stream, writing events from a goroutine via the write
// end — internal/server's normal chunked-transfer-encoding write path
// (httpio.ResponseWriter.WriteChunked) then owns the actual wire framing,
// so EventWriter only ever needs to know how to spell an SSE frame.
type EventWriter struct {
	w io.Writer
}

// NewEventWriter wraps w (typically the write end of an io.Pipe feeding a
// router.Response.Stream) so its Send calls write correctly framed SSE
// events.
func NewEventWriter(w io.Writer) *EventWriter {
	return &EventWriter{w: w}
}

// Event is one Server-Sent Event frame. ID and Retry are optional per spec
// §6's generator surface ("a handler ... calls to push event:, id:, retry:,
// and data: lines"); Data may itself span several lines, each becoming its
// own "data:" line per the SSE wire format.
type Event struct {
	Event string
	ID    string
	Retry int // milliseconds; 0 means omit the retry: line
	Data  string
}

// Send writes a single SSE frame built from the given field/value lines, in
// event/id/retry/data order, ending with the blank line that terminates an
// event. The event:, id: and retry: lines are written only when set; at
// least one data: line is always written, even for empty Data.
func (ew *EventWriter) Send(ev Event) error {
	var b strings.Builder
	if ev.Event != "" {
		fmt.Fprintf(&b, "event: %s\n", ev.Event)
	}
	if ev.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", ev.ID)
	}
	if ev.Retry > 0 {
		fmt.Fprintf(&b, "retry: %d\n", ev.Retry)
	}
	for _, line := range strings.Split(ev.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteByte('\n')
	_, err := ew.w.Write([]byte(b.String()))
	return err
}

// StatusText generalizes the teacher's statusText switch
// (internal/http10/response.go) to the full set of codes this library's
// router and filecache can produce.
func StatusText(code int) string {
	switch code {
	case 200:
		return "OK"
	case 201:
		return "Created"
	case 202:
		return "Accepted"
	case 204:
		return "No Content"
	case 206:
		return "Partial Content"
	case 301:
		return "Moved Permanently"
	case 302:
		return "Found"
	case 304:
		return "Not Modified"
	case 400:
		return "Bad Request"
	case 401:
		return "Unauthorized"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 405:
		return "Method Not Allowed"
	case 408:
		return "Request Timeout"
	case 409:
		return "Conflict"
	case 411:
		return "Length Required"
	case 413:
		return "Payload Too Large"
	case 429:
		return "Too Many Requests"
	case 500:
		return "Internal Server Error"
	case 501:
		return "Not Implemented"
	case 502:
		return "Bad Gateway"
	case 503:
		return "Service Unavailable"
	case 505:
		return "HTTP Version Not Supported"
	default:
		return "OK"
	}
}
