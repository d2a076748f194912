package rest

import (
	"net/url"
	"slices"
	"strings"
)

// Reserved query parameter names. Everything else in a query string is a column filter.
const (
	ParamSelect = "select"
	ParamOrder  = "order"
	ParamLimit  = "limit"
	ParamOffset = "offset"
	ParamAnd    = "and"
	ParamOr     = "or"
)

// IsReservedParam reports whether name is a non-filter query parameter.
func IsReservedParam(name string) bool {
	switch name {
	case ParamSelect, ParamOrder, ParamLimit, ParamOffset:
		return true
	}
	return false
}

// Value is the content of one query parameter: either a single string or a list of
// strings sent as repeated parameters.
type Value struct {
	items []string
	multi bool
}

// Scalar returns a single-valued Value.
func Scalar(s string) Value { return Value{items: []string{s}} }

// Multi returns a list-valued Value.
func Multi(items ...string) Value { return Value{items: slices.Clone(items), multi: true} }

// Scalar returns the single value and true, or "" and false for a list.
func (v Value) Scalar() (string, bool) {
	if v.multi || len(v.items) == 0 {
		return "", false
	}
	return v.items[0], true
}

// Values returns every value in order.
func (v Value) Values() []string { return slices.Clone(v.items) }

// String renders v for diagnostics; lists are joined with "&".
func (v Value) String() string { return strings.Join(v.items, "&") }

// with applies the accumulation rule: first value scalar, second promotes to a list,
// later values append.
func (v Value) with(s string) Value {
	if len(v.items) == 0 {
		return Scalar(s)
	}
	items := append(slices.Clone(v.items), s)
	return Value{items: items, multi: true}
}

// Params is a flat set of query parameters.
type Params map[string]Value

// Add accumulates val onto key.
func (p Params) Add(key, val string) {
	p[key] = p[key].with(val)
}

// Set replaces key with a scalar.
func (p Params) Set(key, val string) {
	p[key] = Scalar(val)
}

// Get returns the first value of key.
func (p Params) Get(key string) string {
	if v, ok := p[key]; ok && len(v.items) > 0 {
		return v.items[0]
	}
	return ""
}

// Merge copies every parameter of other into p, replacing existing keys.
func (p Params) Merge(other Params) {
	for k, v := range other {
		p[k] = v
	}
}

// URLValues converts p into its wire form.
func (p Params) URLValues() url.Values {
	values := make(url.Values, len(p))
	for k, v := range p {
		values[k] = v.Values()
	}
	return values
}

// Encode serializes p as a query string sorted by key.
func (p Params) Encode() string {
	return p.URLValues().Encode()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
