package rest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func TestOrderBy(t *testing.T) {
	tests := []struct {
		name      string
		field     string
		direction string
		expected  string
		key       PrimaryKey
		nulls     NullsOrder
	}{
		{name: "id expands to key columns", field: "id", direction: "DESC", key: PrimaryKey{"id", "type"}, expected: "id.desc,type.desc"},
		{name: "plain field", field: "xxx", direction: "ASC", key: PrimaryKey{"id"}, expected: "xxx.asc"},
		{name: "default key", field: "id", direction: "asc", key: DefaultPrimaryKey(), expected: "id.asc"},
		{name: "nulls suffix on every term", field: "id", direction: "ASC", key: PrimaryKey{"a", "b"}, nulls: NullsLast, expected: "a.asc.nullslast,b.asc.nullslast"},
		{name: "nulls first", field: "title", direction: "desc", key: DefaultPrimaryKey(), nulls: NullsFirst, expected: "title.desc.nullsfirst"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, OrderBy(tt.field, tt.direction, tt.key, tt.nulls))
		})
	}
}

func TestResolveNulls(t *testing.T) {
	tests := []struct {
		name     string
		policy   NullsOrder
		override NullsOverride
		expected NullsOrder
	}{
		{name: "no policy no override", expected: NullsDefault},
		{name: "policy only", policy: NullsLast, expected: NullsLast},
		{name: "override wins", policy: NullsLast, override: NullsOverride{First: ptr(true)}, expected: NullsFirst},
		{name: "override without policy", override: NullsOverride{Last: ptr(true)}, expected: NullsLast},
		{name: "both requested last wins", policy: NullsFirst, override: NullsOverride{First: ptr(true), Last: ptr(true)}, expected: NullsLast},
		{name: "explicit false removes policy", policy: NullsFirst, override: NullsOverride{First: ptr(false)}, expected: NullsDefault},
		{name: "unrelated false keeps policy", policy: NullsFirst, override: NullsOverride{Last: ptr(false)}, expected: NullsFirst},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ResolveNulls(tt.policy, tt.override))
		})
	}
}

func TestParseOrder(t *testing.T) {
	got := ParseOrder("name.desc.nullslast, age ,id.asc.nullsfirst,score.desc")
	assert.Equal(t, []OrderParam{
		{Column: "name", Direction: "desc", NullsPosition: "last"},
		{Column: "age", Direction: "asc", NullsPosition: "last"},
		{Column: "id", Direction: "asc", NullsPosition: "first"},
		{Column: "score", Direction: "desc", NullsPosition: "first"},
	}, got)

	assert.Empty(t, ParseOrder(""))
}
