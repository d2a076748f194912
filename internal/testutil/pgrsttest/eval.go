package pgrsttest

import (
	"fmt"
	"maps"
	"net/url"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/edgeflare/dataprovider/pkg/rest"
)

// cond is a row predicate.
type cond interface {
	match(row map[string]any) bool
}

// expr is one op.value term, optionally negated with not.
type expr struct {
	op     rest.Operator
	arg    string
	negate bool
}

type leaf struct {
	path []string
	expr expr
}

type group struct {
	items  []cond
	or     bool
	negate bool
}

var knownOps = map[rest.Operator]bool{
	rest.OpEq: true, rest.OpNeq: true, rest.OpGt: true, rest.OpGte: true, rest.OpLt: true,
	rest.OpLte: true, rest.OpLike: true, rest.OpIlike: true, rest.OpMatch: true, rest.OpIn: true,
	rest.OpIs: true, rest.OpFts: true, rest.OpCs: true, rest.OpCd: true, rest.OpOv: true,
}

// parseExpr reads "[not.]op.value". It reports false when s does not start with an operator.
func parseExpr(s string) (expr, bool) {
	var e expr
	if tail, ok := strings.CutPrefix(s, string(rest.OpNot)+"."); ok {
		e.negate = true
		s = tail
	}
	op, arg, ok := strings.Cut(s, ".")
	if !ok || !knownOps[rest.Operator(op)] {
		return expr{}, false
	}
	e.op = rest.Operator(op)
	e.arg = arg
	return e, true
}

// parseWhere turns the filter parameters of query into one conjunction. With lenient set,
// values without an operator are skipped instead of rejected; rpc arguments look like that.
func parseWhere(query url.Values, lenient bool) (cond, error) {
	all := &group{}
	for _, k := range slices.Sorted(maps.Keys(query)) {
		if rest.IsReservedParam(k) {
			continue
		}
		for _, v := range query[k] {
			switch k {
			case rest.ParamAnd, rest.ParamOr:
				g, err := parseGroup(v, k == rest.ParamOr, 0)
				if err != nil {
					return nil, err
				}
				all.items = append(all.items, g)
			default:
				e, ok := parseExpr(v)
				if !ok {
					if lenient {
						continue
					}
					return nil, fmt.Errorf("failed to parse filter %s=%s", k, v)
				}
				all.items = append(all.items, &leaf{path: strings.Split(k, "."), expr: e})
			}
		}
	}
	return all, nil
}

// parseGroup reads "(item,item,...)" where an item is col.op.value or a nested and(...)/or(...).
func parseGroup(s string, or bool, depth int) (*group, error) {
	if depth > rest.MaxFilterDepth {
		return nil, fmt.Errorf("logic tree too deep")
	}
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		return nil, fmt.Errorf("failed to parse logic tree %q", s)
	}

	g := &group{or: or}
	for _, item := range splitTopLevel(s[1 : len(s)-1]) {
		negate := false
		if tail, ok := strings.CutPrefix(item, "not."); ok {
			negate = true
			item = tail
		}

		if name, inner, ok := cutGroup(item); ok {
			sub, err := parseGroup(inner, name == rest.ParamOr, depth+1)
			if err != nil {
				return nil, err
			}
			sub.negate = negate
			g.items = append(g.items, sub)
			continue
		}
		if negate {
			item = "not." + item
		}

		l, err := parseLeaf(item)
		if err != nil {
			return nil, err
		}
		g.items = append(g.items, l)
	}
	return g, nil
}

// cutGroup splits "and(...)" into "and" and "(...)".
func cutGroup(item string) (string, string, bool) {
	for _, name := range []string{rest.ParamAnd, rest.ParamOr} {
		if strings.HasPrefix(item, name+"(") && strings.HasSuffix(item, ")") {
			return name, item[len(name):], true
		}
	}
	return "", "", false
}

// parseLeaf reads "a.b.op.value": the column path runs up to the first operator segment.
func parseLeaf(item string) (*leaf, error) {
	segs := strings.Split(item, ".")
	for i := 1; i < len(segs); i++ {
		if segs[i] != string(rest.OpNot) && !knownOps[rest.Operator(segs[i])] {
			continue
		}
		if e, ok := parseExpr(strings.Join(segs[i:], ".")); ok {
			return &leaf{path: segs[:i], expr: e}, nil
		}
	}
	return nil, fmt.Errorf("failed to parse filter %q", item)
}

// splitTopLevel splits on commas outside parentheses, braces and double quotes.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	quoted := false
	for i, c := range s {
		switch {
		case c == '"':
			quoted = !quoted
		case quoted:
		case c == '(' || c == '{':
			depth++
		case c == ')' || c == '}':
			depth--
		case c == ',' && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		parts = append(parts, s[start:])
	}
	return parts
}

func (g *group) match(row map[string]any) bool {
	result := !g.or
	for _, c := range g.items {
		if c.match(row) == g.or {
			result = g.or
			break
		}
	}
	return result != g.negate
}

func (l *leaf) match(row map[string]any) bool {
	v, ok := lookupPath(row, l.path)
	if !ok {
		v = nil
	}
	return l.expr.eval(v) != l.expr.negate
}

func (e expr) eval(v any) bool {
	switch e.op {
	case rest.OpIs:
		switch strings.ToLower(e.arg) {
		case "null":
			return v == nil
		case "true":
			return rest.FormatValue(v) == "true"
		case "false":
			return rest.FormatValue(v) == "false"
		}
		return false
	case rest.OpIn:
		items := listArg(e.arg, "(", ")")
		return slices.ContainsFunc(items, func(item string) bool { return v != nil && compare(v, item) == 0 })
	case rest.OpCs:
		have := arrayValue(v)
		return allIn(listArg(e.arg, "{", "}"), have)
	case rest.OpCd:
		return allIn(arrayValue(v), listArg(e.arg, "{", "}"))
	case rest.OpOv:
		want := listArg(e.arg, "{", "}")
		return slices.ContainsFunc(arrayValue(v), func(s string) bool { return slices.Contains(want, s) })
	case rest.OpLike, rest.OpIlike:
		if v == nil {
			return false
		}
		pattern := "^" + strings.ReplaceAll(regexp.QuoteMeta(e.arg), `\*`, ".*") + "$"
		if e.op == rest.OpIlike {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		return err == nil && re.MatchString(rest.FormatValue(v))
	case rest.OpMatch:
		re, err := regexp.Compile(e.arg)
		return err == nil && v != nil && re.MatchString(rest.FormatValue(v))
	case rest.OpFts:
		text := strings.ToLower(rest.FormatValue(v))
		for _, word := range strings.Fields(strings.ToLower(e.arg)) {
			if !strings.Contains(text, word) {
				return false
			}
		}
		return v != nil
	}

	if v == nil {
		return false
	}
	c := compare(v, e.arg)
	switch e.op {
	case rest.OpEq:
		return c == 0
	case rest.OpNeq:
		return c != 0
	case rest.OpGt:
		return c > 0
	case rest.OpGte:
		return c >= 0
	case rest.OpLt:
		return c < 0
	case rest.OpLte:
		return c <= 0
	}
	return false
}

// compare orders a row value against a query text, numerically when both are numbers.
func compare(v any, s string) int {
	text := rest.FormatValue(v)
	a, errA := strconv.ParseFloat(text, 64)
	b, errB := strconv.ParseFloat(s, 64)
	if errA == nil && errB == nil {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	}
	return strings.Compare(text, strings.Trim(s, `"`))
}

func listArg(s, prefix, suffix string) []string {
	s = strings.TrimSuffix(strings.TrimPrefix(s, prefix), suffix)
	if s == "" {
		return nil
	}
	items := splitTopLevel(s)
	for i, item := range items {
		items[i] = strings.Trim(strings.TrimSpace(item), `"`)
	}
	return items
}

func arrayValue(v any) []string {
	switch a := v.(type) {
	case []any:
		out := make([]string, len(a))
		for i, item := range a {
			out[i] = rest.FormatValue(item)
		}
		return out
	case string:
		return listArg(a, "{", "}")
	}
	return nil
}

func allIn(items, set []string) bool {
	for _, item := range items {
		if !slices.Contains(set, item) {
			return false
		}
	}
	return true
}

func lookupPath(row map[string]any, path []string) (any, bool) {
	var cur any = row
	for _, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[seg]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// filterRows returns the rows matching where, sharing the row maps with the input.
func filterRows(rows []map[string]any, where cond) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		if where.match(row) {
			out = append(out, row)
		}
	}
	return out
}

func sortRows(rows []map[string]any, order []rest.OrderParam) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range order {
			a, b := rows[i][o.Column], rows[j][o.Column]
			switch {
			case a == nil && b == nil:
				continue
			case a == nil:
				return o.NullsPosition == "first"
			case b == nil:
				return o.NullsPosition != "first"
			}
			c := compare(a, rest.FormatValue(b))
			if c == 0 {
				continue
			}
			if o.Direction == "desc" {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// project applies a select parameter: listed columns, or every column for * or an empty
// select, plus one field per name(...) embed resolved through the table relations.
func (s *Server) project(schema string, t *table, rows []map[string]any, sel string) ([]map[string]any, error) {
	var cols, embeds []string
	all := sel == ""
	for _, item := range splitTopLevel(sel) {
		item = strings.TrimSpace(item)
		switch {
		case item == "*":
			all = true
		case strings.Contains(item, "("):
			embeds = append(embeds, item[:strings.Index(item, "(")])
		case item != "":
			cols = append(cols, item)
		}
	}
	if len(cols) == 0 && !all && len(embeds) > 0 {
		all = true
	}

	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		var p map[string]any
		if all {
			p = maps.Clone(row)
		} else {
			p = make(map[string]any, len(cols)+len(embeds))
			for _, c := range cols {
				p[c] = row[c]
			}
		}
		for _, name := range embeds {
			v, err := s.embed(schema, t, row, name)
			if err != nil {
				return nil, err
			}
			p[name] = v
		}
		out[i] = p
	}
	return out, nil
}

func (s *Server) embed(schema string, t *table, row map[string]any, name string) (any, error) {
	var rel relation
	ok := false
	if t != nil {
		rel, ok = t.rels[name]
	}
	if !ok {
		return nil, fmt.Errorf("could not find a relationship for %q", name)
	}
	target, ok := s.tables[schema+"."+rel.target]
	if !ok {
		return nil, fmt.Errorf("relation %q does not exist", rel.target)
	}

	var matches []any
	for _, other := range target.rows {
		if row[rel.local] != nil && rest.FormatValue(other[rel.foreign]) == rest.FormatValue(row[rel.local]) {
			matches = append(matches, maps.Clone(other))
		}
	}
	if rel.many {
		if matches == nil {
			matches = []any{}
		}
		return matches, nil
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0], nil
}
