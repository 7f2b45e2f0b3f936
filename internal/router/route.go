package router

// Route is one registered (method, matcher-chain) -> Handler binding,
// optionally scoped to a Host/Addr and wrapped in a Filter.
type Route struct {
	methods []string // empty = any method
	matchers []Matcher
	filter   Filter
	handler  Handler

	host string // empty = any host
	addr string // empty = any listen address

	order int // registration order, final tiebreak
}

func (rt *Route) matches(ctx *Context, segments []string) (bool, map[string]any) {
	if len(rt.methods) > 0 && !containsMethod(rt.methods, ctx.Request.Method) {
		return false, nil
	}
	if rt.host != "" && rt.host != ctx.Host {
		return false, nil
	}
	if rt.addr != "" && rt.addr != ctx.Addr {
		return false, nil
	}
	params := map[string]any{}
	i := 0
	for _, m := range rt.matchers {
		if _, isReturn := m.(Return); isReturn {
			if i != len(segments) {
				return false, nil
			}
			continue
		}
		if i >= len(segments) {
			return false, nil
		}
		seg, rest := segments[i], segments[i+1:]
		ok, captured, consumedRest := m.Match(seg, rest)
		if !ok {
			return false, nil
		}
		if name := paramName(m); name != "" {
			params[name] = captured
		}
		if consumedRest {
			i = len(segments)
			continue
		}
		i++
	}
	return i == len(segments), params
}

func paramName(m Matcher) string {
	switch v := m.(type) {
	case Int:
		return v.Name
	case String:
		return v.Name
	case Rest:
		return v.Name
	default:
		return ""
	}
}

func containsMethod(methods []string, m string) bool {
	for _, x := range methods {
		if x == m {
			return true
		}
	}
	return false
}

// specVector is the per-route specificity used to order competing matches:
// the matcher kind of each segment position, most specific first, with
// shorter (fewer matchers, i.e. Return ends it sooner) preferred on a tie.
func (rt *Route) specVector() []specificity {
	v := make([]specificity, len(rt.matchers))
	for i, m := range rt.matchers {
		v[i] = m.specificity()
	}
	return v
}

// less reports whether rt should be tried before other when both match the
// same request (spec §4.4: Return > Exact > Int > String > Rest, ties by
// registration order).
func (rt *Route) less(other *Route) bool {
	a, b := rt.specVector(), other.specVector()
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return rt.order < other.order
}
