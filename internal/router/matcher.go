// Package router implements the typed route matcher and filter composition
// described in spec §4.4. It deliberately does not sit on top of a
// regex-dispatch mux (gorilla/mux, seen elsewhere in the retrieved
// examples): mux resolves overlapping routes by registration order, which
// cannot express the fixed specificity ordering — Return > Exact > Int >
// String > Rest — this package's Dispatch requires (see DESIGN.md).
package router

import (
	"strconv"
	"strings"
)

// Specificity orders competing matches on the same path shape; lower value
// wins. Matches the teacher's "more literal wins" intuition from its
// switch-based Dispatch (internal/router/router.go), generalized into data
// instead of source-order fallthrough.
type specificity int

const (
	specReturn specificity = iota
	specExact
	specInt
	specString
	specRest
)

// Matcher recognizes and extracts one path segment (or, for Rest, the
// remaining suffix). Segment receives the captured value and must report
// whether it matched.
type Matcher interface {
	Match(segment string, rest []string) (ok bool, captured any, consumedRest bool)
	specificity() specificity
	name() string
}

// Exact matches a single literal segment verbatim.
type Exact string

func (e Exact) Match(seg string, _ []string) (bool, any, bool) { return seg == string(e), seg, false }
func (e Exact) specificity() specificity                       { return specExact }
func (e Exact) name() string                                   { return string(e) }

// Int matches a segment that parses as a base-10 integer, capturing it as
// int64.
type Int struct{ Name string }

func (m Int) Match(seg string, _ []string) (bool, any, bool) {
	n, err := strconv.ParseInt(seg, 10, 64)
	if err != nil {
		return false, nil, false
	}
	return true, n, false
}
func (m Int) specificity() specificity { return specInt }
func (m Int) name() string             { return ":" + m.Name }

// String matches any single non-empty segment, captured verbatim.
type String struct{ Name string }

func (m String) Match(seg string, _ []string) (bool, any, bool) {
	if seg == "" {
		return false, nil, false
	}
	return true, seg, false
}
func (m String) specificity() specificity { return specString }
func (m String) name() string             { return "*" + m.Name }

// Rest greedily captures the current segment plus every remaining segment,
// joined with "/". It must be the last matcher in a route.
type Rest struct{ Name string }

func (m Rest) Match(seg string, rest []string) (bool, any, bool) {
	all := append([]string{seg}, rest...)
	return true, strings.Join(all, "/"), true
}
func (m Rest) specificity() specificity { return specRest }
func (m Rest) name() string             { return "..." + m.Name }

// Return matches the empty remainder: it succeeds only when there is no
// segment left to consume, i.e. the route ends here. Used to let a route
// like /files/:path and /files (no further segments) coexist with Return
// taking precedence at the boundary (spec §4.4).
type Return struct{}

func (Return) Match(seg string, _ []string) (bool, any, bool) { return seg == "", nil, false }
func (Return) specificity() specificity                       { return specReturn }
func (Return) name() string                                   { return "$" }
