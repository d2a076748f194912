package rest

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Header names and media types spoken by PostgREST.
const (
	HeaderPrefer         = "Prefer"
	HeaderContentRange   = "Content-Range"
	HeaderAcceptProfile  = "Accept-Profile"
	HeaderContentProfile = "Content-Profile"

	MediaTypeJSON   = "application/json"
	MediaTypeObject = "application/vnd.pgrst.object+json"
)

// Prefer holds preferences from the Prefer header (RFC 7240).
type Prefer struct {
	Return string // "minimal", "representation", "headers-only"
	Count  string // "exact", "planned", "estimated"
}

// String renders p as a Prefer header value, e.g. "return=representation,count=exact".
func (p *Prefer) String() string {
	if p == nil {
		return ""
	}
	var parts []string
	if p.Return != "" {
		parts = append(parts, "return="+p.Return)
	}
	if p.Count != "" {
		parts = append(parts, "count="+p.Count)
	}
	return strings.Join(parts, ",")
}

// ParsePrefer parses the Prefer header according to RFC 7240.
// It returns nil if the header is empty.
func ParsePrefer(header string) *Prefer {
	if header == "" {
		return nil
	}

	p := &Prefer{
		Return: "minimal", // RFC 7240 default behavior
	}

	parseKeyValPairs(header, func(key, value string) {
		switch key {
		case "return":
			if isValidReturn(value) {
				p.Return = strings.ToLower(value)
			}
		case "count":
			if isValidCount(value) {
				p.Count = strings.ToLower(value)
			}
		}
	})

	return p
}

// parseKeyValPairs parses comma-separated preference directives.
// For each key=value pair found, it calls fn with the key and value.
func parseKeyValPairs(header string, fn func(key, value string)) {
	for pref := range strings.SplitSeq(header, ",") {
		pref = strings.TrimSpace(pref)
		if key, value, found := strings.Cut(pref, "="); found {
			key = strings.TrimSpace(strings.ToLower(key))
			value = strings.Trim(strings.TrimSpace(value), `"`)
			fn(key, value)
		}
	}
}

func isValidReturn(s string) bool {
	switch strings.ToLower(s) {
	case "minimal", "representation", "headers-only":
		return true
	}
	return false
}

func isValidCount(s string) bool {
	switch strings.ToLower(s) {
	case "exact", "planned", "estimated":
		return true
	}
	return false
}

// WantsRepresentation reports whether the client prefers full representation
// in the response body for mutation operations.
func (p *Prefer) WantsRepresentation() bool {
	return p != nil && p.Return == "representation"
}

// WantsCountExact reports whether the client wants an exact count in the response.
func (p *Prefer) WantsCountExact() bool {
	return p != nil && p.Count == "exact"
}

// ProfileHeader returns the header carrying the schema for method:
// Accept-Profile for reads, Content-Profile for writes.
func ProfileHeader(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		return HeaderAcceptProfile
	}
	return HeaderContentProfile
}

// ParseContentRange extracts the total from a Content-Range value like "0-24/319".
func ParseContentRange(v string) (int, error) {
	if v == "" {
		return 0, ErrMissingContentRange
	}
	i := strings.LastIndex(v, "/")
	if i < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidContentRange, v)
	}
	total, err := strconv.Atoi(strings.TrimSpace(v[i+1:]))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidContentRange, v)
	}
	return total, nil
}

// FormatContentRange renders the range of n items starting at offset out of total.
// An empty range reads "*/total".
func FormatContentRange(offset, n, total int) string {
	if n <= 0 {
		return fmt.Sprintf("*/%d", total)
	}
	return fmt.Sprintf("%d-%d/%d", offset, offset+n-1, total)
}
