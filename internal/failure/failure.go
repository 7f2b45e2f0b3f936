// Package failure implements the error taxonomy from spec §7: every error
// that can surface out of this library is classified into one of five
// kinds so callers (and our own logging) can decide mechanically whether to
// retry, respond, or tear the connection down.
package failure

import "fmt"

type Kind int

const (
	// Transport covers fd-level failures: read/write errors, reset
	// connections, poller errors. Always fatal to the connection.
	Transport Kind = iota
	// Protocol covers malformed HTTP: bad request lines, bad chunked
	// framing, unsupported protocol versions. Fatal to the connection
	// (spec: a protocol error cannot be recovered mid-stream).
	Protocol
	// Policy covers request rejected by configured limits: body too large,
	// too many headers, rate limited. Recoverable — a response is sent and
	// the connection may continue.
	Policy
	// Handler covers a panic or error surfaced by user route/filter code.
	// Recovered at the handler boundary; never escapes to crash the worker.
	Handler
	// Fatal covers internal invariant violations — bugs in this library
	// itself, not in caller code or network input.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Transport:
		return "transport"
	case Protocol:
		return "protocol"
	case Policy:
		return "policy"
	case Handler:
		return "handler"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with its Kind and, where applicable, the
// HTTP status that should be written for it.
type Error struct {
	Kind   Kind
	Status int // 0 if this kind never reaches a response (e.g. Transport)
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, status int, err error) *Error {
	return &Error{Kind: kind, Status: status, Err: err}
}

func Transportf(format string, args ...any) *Error {
	return New(Transport, 0, fmt.Errorf(format, args...))
}

func Protocolf(status int, format string, args ...any) *Error {
	return New(Protocol, status, fmt.Errorf(format, args...))
}

func Policyf(status int, format string, args ...any) *Error {
	return New(Policy, status, fmt.Errorf(format, args...))
}

func Fatalf(format string, args ...any) *Error {
	return New(Fatal, 0, fmt.Errorf(format, args...))
}

// FromPanic classifies a recovered handler panic (spec §7, "handler-boundary
// recovery"): the value is wrapped as a Handler-kind Error carrying a 500,
// never re-panicked.
func FromPanic(v any) *Error {
	if err, ok := v.(error); ok {
		return New(Handler, 500, err)
	}
	return New(Handler, 500, fmt.Errorf("%v", v))
}
