package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FormatValue renders a JSON-like value the way it appears in a query string.
// Strings are used verbatim, lists are comma-joined and objects are JSON-encoded.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case []string:
		return strings.Join(val, ",")
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = FormatValue(item)
		}
		return strings.Join(parts, ",")
	case map[string]any:
		return marshalJSON(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// braceWrap renders a containment operand as a single {...} term:
// lists become {a,b}, objects their JSON text, scalars {v} unless already braced.
func braceWrap(v any) string {
	switch val := v.(type) {
	case map[string]any:
		return marshalJSON(val)
	case []any, []string:
		return "{" + FormatValue(val) + "}"
	}

	s := strings.TrimSpace(FormatValue(v))
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		return s
	}
	return "{" + s + "}"
}

// parenWrap renders an `in` operand as (a,b,c).
func parenWrap(v any) string {
	s := strings.TrimSpace(FormatValue(v))
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		return s
	}
	return "(" + s + ")"
}

// marshalJSON encodes v without HTML escaping. Values that cannot be encoded fall back to fmt.
func marshalJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
