package rest

import (
	"strings"
)

// NullsOrder is a default null-ordering policy applied to every sort term.
type NullsOrder string

const (
	NullsDefault NullsOrder = ""
	NullsFirst   NullsOrder = "nullsfirst"
	NullsLast    NullsOrder = "nullslast"
)

// NullsOverride is a per-call null-ordering request. A nil field is unset; an explicit
// false cancels the matching policy.
type NullsOverride struct {
	First *bool
	Last  *bool
}

// ResolveNulls combines policy with override. Any explicit override wins over the policy;
// when both First and Last are requested, Last wins.
func ResolveNulls(policy NullsOrder, override NullsOverride) NullsOrder {
	if override.Last != nil && *override.Last {
		return NullsLast
	}
	if override.First != nil && *override.First {
		return NullsFirst
	}
	if override.First != nil && policy == NullsFirst {
		return NullsDefault
	}
	if override.Last != nil && policy == NullsLast {
		return NullsDefault
	}
	return policy
}

// OrderBy renders the order parameter for sorting by field. Sorting by the virtual id
// expands into one term per key column, in key order.
func OrderBy(field, direction string, key PrimaryKey, nulls NullsOrder) string {
	dir := strings.ToLower(direction)
	suffix := ""
	if nulls != NullsDefault {
		suffix = "." + string(nulls)
	}

	if field != VirtualIDField || len(key) == 0 {
		return field + "." + dir + suffix
	}

	terms := make([]string, len(key))
	for i, col := range key {
		terms[i] = col + "." + dir + suffix
	}
	return strings.Join(terms, ",")
}

// OrderParam is one parsed term of an order parameter.
type OrderParam struct {
	Column        string
	Direction     string // asc or desc
	NullsPosition string // first or last
}

// ParseOrder parses an order parameter such as "name.desc.nullslast,id".
func ParseOrder(order string) []OrderParam {
	parts := splitOrderParamString(order) // split by comma, but ignore commas inside parentheses
	result := make([]OrderParam, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		nullsPosition := ""
		if strings.HasSuffix(part, ".nullsfirst") {
			part = strings.TrimSuffix(part, ".nullsfirst")
			nullsPosition = "first"
		} else if strings.HasSuffix(part, ".nullslast") {
			part = strings.TrimSuffix(part, ".nullslast")
			nullsPosition = "last"
		}

		direction := "asc"
		if strings.HasSuffix(part, ".desc") {
			part = strings.TrimSuffix(part, ".desc")
			direction = "desc"
		} else if strings.HasSuffix(part, ".asc") {
			part = strings.TrimSuffix(part, ".asc")
		}

		// PostgreSQL puts nulls last ascending and first descending
		if nullsPosition == "" {
			nullsPosition = "last"
			if direction == "desc" {
				nullsPosition = "first"
			}
		}

		result = append(result, OrderParam{
			Column:        part,
			Direction:     direction,
			NullsPosition: nullsPosition,
		})
	}

	return result
}

// splitOrderParamString splits the order string by commas, but ignores commas inside parentheses
func splitOrderParamString(order string) []string {
	var parts []string
	var current strings.Builder
	parenDepth := 0

	for _, char := range order {
		switch char {
		case '(':
			parenDepth++
			current.WriteRune(char)
		case ')':
			parenDepth--
			current.WriteRune(char)
		case ',':
			if parenDepth == 0 {
				parts = append(parts, current.String())
				current.Reset()
			} else {
				current.WriteRune(char)
			}
		default:
			current.WriteRune(char)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}
