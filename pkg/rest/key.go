package rest

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
)

const (
	// VirtualIDField is the field an admin UI reads the record identifier from.
	VirtualIDField = "id"
	// RPCPrefix marks resources that are database functions rather than tables or views.
	RPCPrefix = "rpc/"
)

// PrimaryKey is the ordered list of columns identifying a record of a resource.
type PrimaryKey []string

// DefaultPrimaryKey returns the key used by resources without explicit configuration.
func DefaultPrimaryKey() PrimaryKey { return PrimaryKey{VirtualIDField} }

// IsCompound reports whether the key spans more than one column.
func (k PrimaryKey) IsCompound() bool { return len(k) > 1 }

// IsDefault reports whether k is exactly [id].
func (k PrimaryKey) IsDefault() bool {
	return slices.Equal(k, DefaultPrimaryKey())
}

// Keys maps resource names to their primary keys. It is read-only after construction.
type Keys map[string]PrimaryKey

// Resolve returns the key configured for resource, or [id].
func (k Keys) Resolve(resource string) PrimaryKey {
	if pk, ok := k[resource]; ok && len(pk) > 0 {
		return pk
	}
	return DefaultPrimaryKey()
}

// IsRPC reports whether resource names a database function endpoint.
func IsRPC(resource string) bool {
	return strings.HasPrefix(resource, RPCPrefix)
}

// DecodeID splits id into its key components, as strings.
func DecodeID(id any, key PrimaryKey) ([]string, error) {
	values, err := DecodeValues(id, key)
	if err != nil {
		return nil, err
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = FormatValue(v)
	}
	return parts, nil
}

// DecodeValues splits id into its key components keeping their JSON types.
// For a single-column key the identifier itself is the only component.
func DecodeValues(id any, key PrimaryKey) ([]any, error) {
	if !key.IsCompound() {
		return []any{id}, nil
	}

	raw := FormatValue(id)
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var values []any
	if err := dec.Decode(&values); err != nil {
		return nil, &DecodeError{ID: raw, Err: err}
	}
	if dec.More() {
		return nil, &DecodeError{ID: raw, Err: fmt.Errorf("trailing data after key array")}
	}
	if len(values) != len(key) {
		return nil, &DecodeError{ID: raw, Err: fmt.Errorf("expected %d key components, got %d", len(key), len(values))}
	}
	return values, nil
}

// EncodeID derives the identifier of record. A single-column key yields the column
// value unchanged; a compound key yields the JSON array of its column values.
func EncodeID(record map[string]any, key PrimaryKey) any {
	if !key.IsCompound() {
		return record[key[0]]
	}

	values := make([]any, len(key))
	for i, col := range key {
		values[i] = record[col]
	}
	return marshalJSON(values)
}

// WithVirtualID sets record[id] to the encoded identifier unless key is [id].
// The record is modified in place and returned.
func WithVirtualID(record map[string]any, key PrimaryKey) map[string]any {
	if record == nil || key.IsDefault() {
		return record
	}
	record[VirtualIDField] = EncodeID(record, key)
	return record
}

// WithoutVirtualID returns a copy of record without the id field unless key is [id].
// Key columns stay in place.
func WithoutVirtualID(record map[string]any, key PrimaryKey) map[string]any {
	if record == nil || key.IsDefault() {
		return record
	}
	out := maps.Clone(record)
	delete(out, VirtualIDField)
	return out
}

// RemovePrimaryKey returns a copy of record without the key columns.
func RemovePrimaryKey(record map[string]any, key PrimaryKey) map[string]any {
	out := maps.Clone(record)
	if out == nil {
		out = map[string]any{}
	}
	for _, col := range key {
		delete(out, col)
	}
	return out
}

// KeyQuery builds the filter matching the given identifiers of resource.
//
// One identifier yields col=eq.v, or for compound keys and=(c1.eq.v1,c2.eq.v2); rpc/
// resources take compound components as plain function arguments instead. Several
// identifiers yield col=in.(v1,v2), or or=(and(...),and(...)) for compound keys; this is
// not expressible for rpc/ resources and fails with ErrUnsupportedQuery.
// A non-empty selection is added as the select parameter.
func KeyQuery(key PrimaryKey, resource string, ids []any, sel Selection) (Params, error) {
	q := Params{}

	switch {
	case len(ids) > 1:
		if IsRPC(resource) {
			return nil, fmt.Errorf("%w: rpc endpoints are not views, no query generation for multiple key values implemented (resource %s)", ErrUnsupportedQuery, resource)
		}
		if key.IsCompound() {
			groups := make([]string, len(ids))
			for i, id := range ids {
				parts, err := DecodeID(id, key)
				if err != nil {
					return nil, err
				}
				groups[i] = ParamAnd + "(" + strings.Join(eqClauses(key, parts), ",") + ")"
			}
			q.Set(ParamOr, "("+strings.Join(groups, ",")+")")
		} else {
			parts := make([]string, len(ids))
			for i, id := range ids {
				parts[i] = FormatValue(id)
			}
			q.Set(key[0], string(OpIn)+".("+strings.Join(parts, ",")+")")
		}

	case len(ids) == 1:
		parts, err := DecodeID(ids[0], key)
		if err != nil {
			return nil, err
		}
		switch {
		case !key.IsCompound():
			q.Set(key[0], string(OpEq)+"."+parts[0])
		case IsRPC(resource):
			for i, col := range key {
				q.Set(col, parts[i])
			}
		default:
			q.Set(ParamAnd, "("+strings.Join(eqClauses(key, parts), ",")+")")
		}
	}

	if s := sel.String(); s != "" {
		q.Set(ParamSelect, s)
	}
	return q, nil
}

func eqClauses(key PrimaryKey, parts []string) []string {
	clauses := make([]string, len(key))
	for i, col := range key {
		clauses[i] = col + "." + string(OpEq) + "." + parts[i]
	}
	return clauses
}
