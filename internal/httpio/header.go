// Package httpio implements the HTTP/1.1 request parser and response writer
// described in spec §4.3. It never imports net/http: producing this wire
// format by hand, over the cooperative Conn in internal/netio, is the
// subject of this library, not something to delegate to the standard
// library's own server (see DESIGN.md).
package httpio

import (
	"sort"
	"strings"
)

// Header is a case-insensitive multimap, generalizing the teacher's
// single-value map[string]string (internal/http10/parser.go) to support
// repeated fields HTTP/1.1 needs (Set-Cookie, Vary, chunked trailers).
type Header map[string][]string

func canonicalKey(k string) string {
	if k == "" {
		return k
	}
	b := []byte(strings.ToLower(k))
	upperNext := true
	for i, c := range b {
		if upperNext && c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
		upperNext = c == '-'
	}
	return string(b)
}

func (h Header) Get(key string) string {
	v := h[canonicalKey(key)]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

func (h Header) Values(key string) []string { return h[canonicalKey(key)] }

func (h Header) Set(key, value string) { h[canonicalKey(key)] = []string{value} }

func (h Header) Add(key, value string) {
	k := canonicalKey(key)
	h[k] = append(h[k], value)
}

func (h Header) Del(key string) { delete(h, canonicalKey(key)) }

func (h Header) Has(key string) bool {
	_, ok := h[canonicalKey(key)]
	return ok
}

// sortedKeys gives deterministic header write order, purely so responses are
// reproducible in tests and logs; HTTP does not require any particular
// order.
func (h Header) sortedKeys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns an independent copy, used when filters or the router need to
// mutate headers without affecting a shared base set (spec §4.4 filters).
func (h Header) Clone() Header {
	out := make(Header, len(h))
	for k, v := range h {
		cp := make([]string, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}
