package rest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilters(t *testing.T) {
	tests := []struct {
		filter    map[string]any
		expected  Params
		name      string
		defaultOp Operator
	}{
		{
			name: "operators and word splitting",
			filter: map[string]any{
				"q1":       "foo",
				"q2@ilike": "bar",
				"q3@like":  "baz qux",
				"q4@gt":    "c",
			},
			defaultOp: OpEq,
			expected: Params{
				"q1": Scalar("eq.foo"),
				"q2": Scalar("ilike.*bar*"),
				"q3": Multi("like.*baz*", "like.*qux*"),
				"q4": Scalar("gt.c"),
			},
		},
		{
			name:      "nested object becomes dotted path",
			filter:    map[string]any{"rel": map[string]any{"field@gt": 5}},
			defaultOp: OpEq,
			expected:  Params{"rel.field": Scalar("gt.5")},
		},
		{
			name:      "deeply nested path uses default operator",
			filter:    map[string]any{"a": map[string]any{"b": map[string]any{"c": true}}},
			defaultOp: OpEq,
			expected:  Params{"a.b.c": Scalar("eq.true")},
		},
		{
			name:      "in wraps lists in parentheses",
			filter:    map[string]any{"id@in": []any{1, 2, 3}},
			defaultOp: OpEq,
			expected:  Params{"id": Scalar("in.(1,2,3)")},
		},
		{
			name:      "in keeps an already wrapped scalar",
			filter:    map[string]any{"id@in": "(4,5)"},
			defaultOp: OpEq,
			expected:  Params{"id": Scalar("in.(4,5)")},
		},
		{
			name:      "containment uses braces",
			filter:    map[string]any{"tags@cs": []any{"a", "b"}, "roles@cd": "admin"},
			defaultOp: OpEq,
			expected: Params{
				"tags":  Scalar("cs.{a,b}"),
				"roles": Scalar("cd.{admin}"),
			},
		},
		{
			name:      "containment with object emits json",
			filter:    map[string]any{"attrs@cs": map[string]any{"color": "red"}},
			defaultOp: OpEq,
			expected:  Params{"attrs": Scalar(`cs.{"color":"red"}`)},
		},
		{
			name:      "explicit operator inside a nested path keeps the object operand",
			filter:    map[string]any{"meta": map[string]any{"attrs@cd": map[string]any{"size": 2}}},
			defaultOp: OpEq,
			expected:  Params{"meta.attrs": Scalar(`cd.{"size":2}`)},
		},
		{
			name:      "default containment operator still descends plain keys",
			filter:    map[string]any{"attrs": map[string]any{"color": "red"}},
			defaultOp: OpCs,
			expected:  Params{"attrs.color": Scalar("cs.{red}")},
		},
		{
			name:      "or group",
			filter:    map[string]any{"@or": map[string]any{"a": 1, "b@gt": 2}},
			defaultOp: OpEq,
			expected:  Params{"or": Scalar("(a.eq.1,b.gt.2)")},
		},
		{
			name: "nested logical groups",
			filter: map[string]any{
				"@or": map[string]any{
					"a":    1,
					"@and": map[string]any{"b": 2, "c@lt": 3},
				},
			},
			defaultOp: OpEq,
			expected:  Params{"or": Scalar("(a.eq.1,and(b.eq.2,c.lt.3))")},
		},
		{
			name:      "group expands multi-valued fields",
			filter:    map[string]any{"@and": map[string]any{"title@ilike": "go rest"}},
			defaultOp: OpEq,
			expected:  Params{"and": Scalar("(title.ilike.*go*,title.ilike.*rest*)")},
		},
		{
			name:      "blank search text emits nothing",
			filter:    map[string]any{"q@like": "   "},
			defaultOp: OpEq,
			expected:  Params{},
		},
		{
			name:      "no default operator passes values through",
			filter:    map[string]any{"arg": "x", "n": 3},
			defaultOp: OpNone,
			expected:  Params{"arg": Scalar("x"), "n": Scalar("3")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := ParseFilters(tt.filter, tt.defaultOp, Selection{})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, parsed.Filter)
			assert.Empty(t, parsed.Select)
		})
	}
}

func TestParseFiltersDepthLimit(t *testing.T) {
	filter := map[string]any{"leaf": 1}
	for range MaxFilterDepth + 8 {
		filter = map[string]any{"f": filter}
	}

	_, err := ParseFilters(filter, OpEq, Selection{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedFilter)

	var mfe *MalformedFilterError
	require.ErrorAs(t, err, &mfe)
	assert.Greater(t, mfe.Depth, MaxFilterDepth)
}

func TestParseFiltersLogicalNeedsObject(t *testing.T) {
	_, err := ParseFilters(map[string]any{"@or": "a.eq.1"}, OpEq, Selection{})
	assert.ErrorIs(t, err, ErrMalformedFilter)
}

func TestSelectionString(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		sel      Selection
	}{
		{name: "empty", sel: Selection{}, expected: ""},
		{name: "columns", sel: Selection{Columns: []string{"id", "name"}}, expected: "id,name"},
		{name: "embed only", sel: Selection{Embed: []string{"author"}, Prefetch: []string{"tags"}}, expected: "*,author(*),tags(*)"},
		{name: "columns and embed", sel: Selection{Columns: []string{"id"}, Embed: []string{"author"}}, expected: "id,author(*)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.sel.String())
		})
	}

	parsed, err := ParseFilters(nil, OpEq, Selection{Columns: []string{"id"}})
	require.NoError(t, err)
	assert.Equal(t, "id", parsed.Select)
	assert.Empty(t, parsed.Filter)
}
