package rest

import (
	"slices"
	"strings"
)

// Operator is a PostgREST filter operator.
type Operator string

// Operators listed at https://docs.postgrest.org/en/stable/references/api/tables_views.html#operators
const (
	OpEq    Operator = "eq"
	OpGt    Operator = "gt"
	OpGte   Operator = "gte"
	OpLt    Operator = "lt"
	OpLte   Operator = "lte"
	OpNeq   Operator = "neq"
	OpLike  Operator = "like"
	OpIlike Operator = "ilike"
	OpMatch Operator = "match"
	OpIn    Operator = "in"
	OpIs    Operator = "is"
	OpFts   Operator = "fts"
	OpCs    Operator = "cs"
	OpCd    Operator = "cd"
	OpOv    Operator = "ov"
	OpNot   Operator = "not"
	OpAnd   Operator = "and"
	OpOr    Operator = "or"

	// OpNone emits the bare value, as rpc arguments expect.
	OpNone Operator = ""
)

// OperatorSeparator separates the field from the operator in a filter key, e.g. "age@gt".
const OperatorSeparator = "@"

// MaxFilterDepth bounds the nesting of filter objects.
const MaxFilterDepth = 32

// IsLogical reports whether op groups sub-filters.
func (op Operator) IsLogical() bool { return op == OpAnd || op == OpOr }

// Selection describes the select parameter: plain columns plus embedded resources.
type Selection struct {
	Columns  []string
	Embed    []string
	Prefetch []string
}

// String renders the select parameter: the columns (or * when only embeds are given)
// followed by name(*) per embedded or prefetched resource. Empty when nothing is selected.
func (s Selection) String() string {
	embeds := slices.Concat(s.Embed, s.Prefetch)
	if len(s.Columns) == 0 && len(embeds) == 0 {
		return ""
	}

	parts := make([]string, 0, len(s.Columns)+len(embeds)+1)
	if len(s.Columns) > 0 {
		parts = append(parts, s.Columns...)
	} else {
		parts = append(parts, "*")
	}
	for _, name := range embeds {
		parts = append(parts, name+"(*)")
	}
	return strings.Join(parts, ",")
}

// ParsedFilter is the translated form of a filter object.
type ParsedFilter struct {
	Filter Params
	Select string
}

// ParseFilters flattens filter into query parameters. Keys without an operator use defaultOp.
// Keys are visited in sorted order so repeated fields accumulate deterministically.
func ParseFilters(filter map[string]any, defaultOp Operator, sel Selection) (*ParsedFilter, error) {
	p := &filterParser{defaultOp: defaultOp, maxDepth: MaxFilterDepth}

	out := Params{}
	if err := p.parse(filter, 0, out); err != nil {
		return nil, err
	}
	return &ParsedFilter{Filter: out, Select: sel.String()}, nil
}

// shapeFunc turns one operand into zero or more operator clauses.
type shapeFunc func(p *filterParser, op Operator, field string, value any, depth int) ([]string, error)

type operatorRule struct {
	shape shapeFunc
	// grouped rules store their clause under the operator name instead of the field
	grouped bool
}

// ruleFor returns the shaping rule of op. Operators without a rule emit op.value.
func ruleFor(op Operator) (operatorRule, bool) {
	switch op {
	case OpLike, OpIlike:
		return operatorRule{shape: shapeWords}, true
	case OpCs, OpCd:
		return operatorRule{shape: shapeBraces}, true
	case OpIn:
		return operatorRule{shape: shapeList}, true
	case OpAnd, OpOr:
		return operatorRule{shape: shapeGroup, grouped: true}, true
	}
	return operatorRule{}, false
}

type filterParser struct {
	defaultOp Operator
	maxDepth  int
}

func (p *filterParser) parse(filter map[string]any, depth int, out Params) error {
	if depth > p.maxDepth {
		return &MalformedFilterError{Depth: depth, Reason: "filter nested too deeply"}
	}

	for _, key := range sortedKeys(filter) {
		value := filter[key]
		field, op, explicit := p.splitKey(key)

		// only a key without @operator names a path; cs/cd take the object as operand
		if obj, ok := value.(map[string]any); ok && field != "" && !explicit {
			if err := p.descend(field, obj, depth+1, out); err != nil {
				return err
			}
			continue
		}
		if err := p.emit(field, op, value, depth, out); err != nil {
			return err
		}
	}
	return nil
}

// descend follows a nested object, dot-joining the keys into a field path.
// The innermost key supplies the operator.
func (p *filterParser) descend(path string, obj map[string]any, depth int, out Params) error {
	if depth > p.maxDepth {
		return &MalformedFilterError{Path: path, Depth: depth, Reason: "filter nested too deeply"}
	}

	for _, key := range sortedKeys(obj) {
		value := obj[key]
		field, op, explicit := p.splitKey(key)
		child := path + "." + field

		if inner, ok := value.(map[string]any); ok && !explicit {
			if err := p.descend(child, inner, depth+1, out); err != nil {
				return err
			}
			continue
		}
		if err := p.emit(child, op, value, depth, out); err != nil {
			return err
		}
	}
	return nil
}

func (p *filterParser) emit(field string, op Operator, value any, depth int, out Params) error {
	if op == OpNone {
		out.Add(field, FormatValue(value))
		return nil
	}

	rule, ok := ruleFor(op)
	if !ok {
		out.Add(field, string(op)+"."+FormatValue(value))
		return nil
	}

	clauses, err := rule.shape(p, op, field, value, depth)
	if err != nil {
		return err
	}
	key := field
	if rule.grouped {
		key = string(op)
	}
	for _, c := range clauses {
		out.Add(key, c)
	}
	return nil
}

// splitKey separates "field@op". explicit is false when the key carries no operator.
func (p *filterParser) splitKey(key string) (field string, op Operator, explicit bool) {
	field, o, found := strings.Cut(key, OperatorSeparator)
	if !found {
		return field, p.defaultOp, false
	}
	return field, Operator(o), true
}

// shapeWords splits a search text on whitespace, one *word* clause per word.
func shapeWords(_ *filterParser, op Operator, _ string, value any, _ int) ([]string, error) {
	var words []string
	switch v := value.(type) {
	case []any, []string:
		words = strings.Split(FormatValue(v), ",")
	default:
		words = strings.Fields(FormatValue(v))
	}

	clauses := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(w); w == "" {
			continue
		}
		clauses = append(clauses, string(op)+".*"+w+"*")
	}
	return clauses, nil
}

func shapeBraces(_ *filterParser, op Operator, _ string, value any, _ int) ([]string, error) {
	return []string{string(op) + "." + braceWrap(value)}, nil
}

func shapeList(_ *filterParser, op Operator, _ string, value any, _ int) ([]string, error) {
	return []string{string(op) + "." + parenWrap(value)}, nil
}

// shapeGroup translates a sub-filter and flattens it into one (a.op.v,b.op.v) clause.
func shapeGroup(p *filterParser, op Operator, field string, value any, depth int) ([]string, error) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, &MalformedFilterError{Path: field, Depth: depth, Reason: "logical operator " + string(op) + " needs an object"}
	}

	sub := Params{}
	if err := p.parse(obj, depth+1, sub); err != nil {
		return nil, err
	}

	var exprs []string
	for _, k := range sortedKeys(sub) {
		for _, item := range sub[k].items {
			if Operator(k).IsLogical() {
				// nested groups read and(...) rather than and.(...)
				exprs = append(exprs, k+item)
			} else {
				exprs = append(exprs, k+"."+item)
			}
		}
	}
	if len(exprs) == 0 {
		return nil, nil
	}
	return []string{"(" + strings.Join(exprs, ",") + ")"}, nil
}
