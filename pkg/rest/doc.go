// Package rest translates generic CRUD query parameters into the PostgREST dialect.
//
// It holds the two pure building blocks used by the data provider:
//
//   - the key codec, which maps a (possibly compound) primary key to the single opaque
//     identifier an admin UI works with, and builds the key-match filters for one or many
//     identifiers
//   - the filter translator, which flattens a nested filter object into operator-prefixed
//     query parameters, and renders order and select parameters
//
// Filter keys carry their operator after an `@` separator:
//
//	Filter key            | Query parameter
//	----------------------|------------------------------------------------
//	{"title": "foo"}      | title=eq.foo (default operator)
//	{"age@gt": 18}        | age=gt.18
//	{"q@ilike": "a b"}    | q=ilike.*a*&q=ilike.*b*
//	{"id@in": [1, 2]}     | id=in.(1,2)
//	{"tags@cs": ["a"]}    | tags=cs.{a}
//	{"@or": {...}}        | or=(age.lt.18,age.gt.21)
//	{"rel": {"f@gt": 5}}  | rel.f=gt.5
//	{"arg@": "x"}         | arg=x (rpc argument, no operator)
//
// Compound keys are exposed as a JSON array string:
//
//	key [id type] + {"id": 1, "type": "X"}  ->  `[1,"X"]`
//	single id      ->  and=(id.eq.1,type.eq.X)
//	many ids       ->  or=(and(id.eq.1,type.eq.X),and(id.eq.2,type.eq.Y))
//
// See https://docs.postgrest.org/en/stable/references/api/tables_views.html
package rest
