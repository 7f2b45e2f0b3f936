// Package cookie implements Set-Cookie/Cookie handling on top of the
// standard library's net/http.Cookie. spec §4.3 explicitly places cookie
// parsing out of this library's core scope ("not a core HTTP/1.1 concern"),
// so there is no grounded reason to hand-roll RFC 6265 parsing the way
// internal/httpio hand-rolls the request/response framing that IS this
// library's subject — see DESIGN.md.
package cookie

import (
	"net/http"

	"cohosrv/internal/httpio"
)

// Set appends a Set-Cookie header built from c to h.
func Set(h httpio.Header, c *http.Cookie) {
	h.Add("Set-Cookie", c.String())
}

// Delete appends a Set-Cookie header that expires c.Name immediately
// (Max-Age=-1), the standard way to ask a browser to drop a cookie.
func Delete(h httpio.Header, name, path, domain string) {
	Set(h, &http.Cookie{Name: name, Value: "", Path: path, Domain: domain, MaxAge: -1})
}

// Parse reads every cookie sent on the request's Cookie header.
func Parse(h httpio.Header) []*http.Cookie {
	raw := h.Get("Cookie")
	if raw == "" {
		return nil
	}
	header := http.Header{}
	header.Add("Cookie", raw)
	req := &http.Request{Header: header}
	return req.Cookies()
}

// Get returns the named cookie's value, or ("", false) if absent.
func Get(h httpio.Header, name string) (string, bool) {
	for _, c := range Parse(h) {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}
