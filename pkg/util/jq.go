package util

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	errInvalidInput = errors.New("invalid input or empty path")
	errNoWildcard   = errors.New("no matching elements found for wildcard path")
)

// Jq reads a value out of decoded JSON using a jq-like dotted path, e.g. ".role",
// ".realm_access.roles[0]" or ".groups[*].name". A leading dot is optional.
func Jq(input map[string]any, path string) (any, error) {
	path = strings.TrimPrefix(path, ".")
	if input == nil || path == "" {
		return nil, errInvalidInput
	}
	return walk(input, splitPath(path))
}

func splitPath(path string) []string {
	segs := strings.Split(path, ".")
	out := segs[:0]
	for _, s := range segs {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func walk(current any, segs []string) (any, error) {
	for i, seg := range segs {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected map at path segment: %s", seg)
		}

		name, index, indexed, err := parseSegment(seg)
		if err != nil {
			return nil, err
		}
		value, exists := obj[name]
		if !exists {
			return nil, fmt.Errorf("key not found: %s", name)
		}
		if !indexed {
			current = value
			continue
		}

		items, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("expected array at key: %s", name)
		}
		if index == "" || index == "*" {
			if i == len(segs)-1 {
				return items, nil
			}
			return collect(items, segs[i+1:])
		}

		n, err := strconv.Atoi(index)
		if err != nil || n < 0 || n >= len(items) {
			return nil, fmt.Errorf("invalid index %s at key: %s", index, name)
		}
		current = items[n]
	}
	return current, nil
}

// parseSegment splits "name[idx]" into its parts. indexed is false for a plain key.
func parseSegment(seg string) (name, index string, indexed bool, err error) {
	open := strings.IndexByte(seg, '[')
	if open < 0 {
		return seg, "", false, nil
	}
	end := strings.IndexByte(seg, ']')
	if end < open {
		return "", "", false, fmt.Errorf("malformed array syntax in key: %s", seg)
	}
	return seg[:open], seg[open+1 : end], true, nil
}

// collect applies the remaining path to every object in items, flattening array results.
func collect(items []any, rest []string) (any, error) {
	results := make([]any, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		value, err := walk(obj, rest)
		if err != nil {
			continue
		}
		if list, ok := value.([]any); ok {
			results = append(results, list...)
		} else {
			results = append(results, value)
		}
	}
	if len(results) == 0 {
		return nil, errNoWildcard
	}
	return results, nil
}
