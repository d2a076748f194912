package provider

import (
	"fmt"
	"maps"

	"github.com/edgeflare/dataprovider/pkg/rest"
)

func toRecord(v any) (map[string]any, error) {
	switch r := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return r, nil
	}
	return nil, fmt.Errorf("expected a JSON object in response, got %T", v)
}

func toRecords(v any) ([]map[string]any, error) {
	switch rs := v.(type) {
	case nil:
		return []map[string]any{}, nil
	case []any:
		out := make([]map[string]any, 0, len(rs))
		for i, item := range rs {
			r, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("expected a JSON object at index %d in response, got %T", i, item)
			}
			out = append(out, r)
		}
		return out, nil
	case map[string]any:
		return []map[string]any{rs}, nil
	}
	return nil, fmt.Errorf("expected a JSON array in response, got %T", v)
}

// prefetcher moves named sub-resources out of records into a side map, keeping one copy
// of each sub-record per identifier.
type prefetcher struct {
	keys  rest.Keys
	seen  map[string]map[string]struct{}
	out   map[string][]map[string]any
	names []string
}

// newPrefetcher returns nil when nothing is prefetched.
func newPrefetcher(names []string, keys rest.Keys) *prefetcher {
	if len(names) == 0 {
		return nil
	}
	pf := &prefetcher{
		keys:  keys,
		names: names,
		seen:  make(map[string]map[string]struct{}, len(names)),
		out:   make(map[string][]map[string]any, len(names)),
	}
	for _, name := range names {
		pf.seen[name] = map[string]struct{}{}
		pf.out[name] = []map[string]any{}
	}
	return pf
}

// extract returns a copy of record without the prefetched fields.
func (pf *prefetcher) extract(record map[string]any) map[string]any {
	if pf == nil || record == nil {
		return record
	}
	out := maps.Clone(record)
	for _, name := range pf.names {
		value, ok := out[name]
		if !ok {
			continue
		}
		delete(out, name)

		switch sub := value.(type) {
		case []any:
			for _, item := range sub {
				if m, ok := item.(map[string]any); ok {
					pf.add(name, m)
				}
			}
		case map[string]any:
			pf.add(name, sub)
		}
	}
	return out
}

func (pf *prefetcher) add(name string, sub map[string]any) {
	id := rest.FormatValue(rest.EncodeID(sub, pf.keys.Resolve(name)))
	if _, dup := pf.seen[name][id]; dup {
		return
	}
	pf.seen[name][id] = struct{}{}
	pf.out[name] = append(pf.out[name], sub)
}

func (pf *prefetcher) meta() *ResultMeta {
	if pf == nil {
		return nil
	}
	return &ResultMeta{Prefetched: pf.out}
}
