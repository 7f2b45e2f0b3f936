package httpio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Request is the HTTP/1.1 generalization of the teacher's HTTP/1.0 Request
// (internal/http10/parser.go): method/target/proto/header survive, headers
// become a multimap, and Body/ContentLength/Chunked/Close are added to carry
// the framing information spec §4.3 requires a router/handler to see.
type Request struct {
	Method   string
	Target   string
	Path     string
	RawQuery string
	Proto    string // "HTTP/1.0" or "HTTP/1.1"
	Header   Header

	// Body is the framed request body: a Content-Length-limited reader, a
	// dechunking reader, or http.NoBody-equivalent (io.EOF immediately) when
	// neither framing header is present.
	Body          io.Reader
	ContentLength int64 // -1 when chunked, 0 when absent
	Chunked       bool

	// Close records whether this request forces connection teardown after
	// its response: explicit "Connection: close", or implied by HTTP/1.0
	// without "Connection: keep-alive" (spec §4.3 keep-alive rules).
	Close bool

	Trailer Header // populated after Body is fully drained, for chunked trailers
}

var (
	// ErrBadRequest covers structural malformations: missing CRLF, a
	// request-line that doesn't split into exactly 3 fields, a header line
	// without ':'. Mirrors internal/http10/parser.go's ErrBadRequest,
	// generalized across both supported protocol versions.
	ErrBadRequest = errors.New("httpio: malformed request")
	// ErrUnsupportedProto replaces the teacher's HTTP/1.0-only ErrBadProto
	// now that both 1.0 and 1.1 are accepted.
	ErrUnsupportedProto = errors.New("httpio: unsupported protocol version")
	// ErrRequestTooLarge is returned when Content-Length exceeds the
	// configured body cap (spec §4.3 edge cases, §7 Policy errors).
	ErrRequestTooLarge = errors.New("httpio: request body too large")
	// ErrAmbiguousFraming is returned when both Transfer-Encoding: chunked
	// and Content-Length are present with conflicting meaning (RFC 7230
	// §3.3.3 requires rejecting this, not guessing).
	ErrAmbiguousFraming = errors.New("httpio: conflicting Content-Length and Transfer-Encoding")
	// ErrMethodNotAllowed is returned when the request line's method is
	// outside spec §4.3's fixed {GET, HEAD, PUT, POST, DELETE} set. Checked
	// at parse time so an unsupported method is rejected with 405 even
	// against a target no route matches, rather than falling through to
	// router.Dispatch's path-based 404/405 distinction.
	ErrMethodNotAllowed = errors.New("httpio: method not allowed")
)

const maxHeaderLines = 256

// allowedMethods is spec §4.3's fixed method set; anything else is a 405
// regardless of whether any route's path matches the request target.
var allowedMethods = map[string]bool{
	"GET": true, "HEAD": true, "PUT": true, "POST": true, "DELETE": true,
}

// ParseRequest reads one HTTP/1.0 or HTTP/1.1 request from r. maxBody caps
// the declared Content-Length (0 = unlimited); it does not limit chunked
// bodies, and internal/server applies no cap of its own to them either.
func ParseRequest(r *bufio.Reader, maxBody int64) (*Request, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(line, "\r\n") {
		return nil, ErrBadRequest
	}
	parts := strings.SplitN(strings.TrimSuffix(line, "\r\n"), " ", 3)
	if len(parts) != 3 {
		return nil, ErrBadRequest
	}
	method, target, proto := parts[0], parts[1], parts[2]
	if proto != "HTTP/1.0" && proto != "HTTP/1.1" {
		return nil, ErrUnsupportedProto
	}
	if !allowedMethods[method] {
		return nil, ErrMethodNotAllowed
	}

	header := Header{}
	for i := 0; ; i++ {
		if i >= maxHeaderLines {
			return nil, ErrBadRequest
		}
		l, err := r.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil, ErrBadRequest
			}
			return nil, err
		}
		if l == "\r\n" {
			break
		}
		if !strings.HasSuffix(l, "\r\n") {
			return nil, ErrBadRequest
		}
		l = strings.TrimSuffix(l, "\r\n")
		// RFC 7230 §3.2.4: obsolete line folding (leading whitespace
		// continuing the previous header) is a request smuggling vector and
		// must be rejected, not accepted.
		if len(l) > 0 && (l[0] == ' ' || l[0] == '\t') {
			return nil, ErrBadRequest
		}
		kv := strings.SplitN(l, ":", 2)
		if len(kv) != 2 || strings.TrimSpace(kv[0]) != kv[0] {
			return nil, ErrBadRequest
		}
		header.Add(kv[0], strings.TrimSpace(kv[1]))
	}

	req := &Request{Method: method, Target: target, Proto: proto, Header: header}
	req.Path, req.RawQuery = SplitTarget(target)
	req.Close = computeClose(proto, header)

	if err := req.frameBody(r, maxBody); err != nil {
		return nil, err
	}
	return req, nil
}

func computeClose(proto string, h Header) bool {
	conn := strings.ToLower(h.Get("Connection"))
	switch conn {
	case "close":
		return true
	case "keep-alive":
		return false
	}
	return proto == "HTTP/1.0" // HTTP/1.0 defaults to close unless keep-alive is explicit
}

func (req *Request) frameBody(r *bufio.Reader, maxBody int64) error {
	te := strings.ToLower(req.Header.Get("Transfer-Encoding"))
	clRaw := req.Header.Get("Content-Length")

	switch {
	case te != "" && te != "identity":
		if clRaw != "" {
			return ErrAmbiguousFraming
		}
		if te != "chunked" {
			return fmt.Errorf("httpio: unsupported transfer-encoding %q", te)
		}
		req.Chunked = true
		req.ContentLength = -1
		cr := newChunkedReader(r)
		req.Body = cr
		req.Trailer = cr.trailer
	case clRaw != "":
		n, err := strconv.ParseInt(clRaw, 10, 64)
		if err != nil || n < 0 {
			return ErrBadRequest
		}
		if maxBody > 0 && n > maxBody {
			return ErrRequestTooLarge
		}
		req.ContentLength = n
		req.Body = io.LimitReader(r, n)
	default:
		req.ContentLength = 0
		req.Body = http10EmptyBody{}
	}
	return nil
}

// SplitTarget separates path and query, generalizing
// internal/http10/query.go's SplitTarget (kept byte-identical in behavior,
// just promoted to this package since httpio.Request now owns both fields
// directly).
func SplitTarget(t string) (path, query string) {
	path = t
	if i := strings.IndexByte(t, '?'); i >= 0 {
		path, query = t[:i], t[i+1:]
	}
	return
}

type http10EmptyBody struct{}

func (http10EmptyBody) Read([]byte) (int, error) { return 0, io.EOF }
