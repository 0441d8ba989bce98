package rest

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// condition is a horizontal filter: a single column test, or an and/or
// group of conditions.
type condition struct {
	negate bool

	column string // may carry a json path
	op     string
	quant  string // any or all, for like(any) and friends
	value  string

	logic    string // "and" or "or" for groups
	children []condition
}

var operators = map[string]bool{
	"eq": true, "neq": true, "gt": true, "gte": true, "lt": true, "lte": true,
	"like": true, "ilike": true, "match": true, "imatch": true,
	"in": true, "is": true, "isdistinct": true,
	"cs": true, "cd": true, "ov": true,
	"fts": true, "plfts": true, "phfts": true, "wfts": true,
}

// parseFilter parses "[not.]op[(quant)].value" for column.
func parseFilter(column, value string) (condition, error) {
	c := condition{column: column}
	if rest, ok := strings.CutPrefix(value, "not."); ok {
		c.negate = true
		value = rest
	}
	op, val, ok := strings.Cut(value, ".")
	if !ok {
		return c, fmt.Errorf("unexpected %q expecting an operator", value)
	}
	if i := strings.IndexByte(op, '('); i >= 0 && strings.HasSuffix(op, ")") {
		c.quant = op[i+1 : len(op)-1]
		op = op[:i]
		if c.quant != "any" && c.quant != "all" {
			// fts(config) carries a text search configuration, ignored here
			if !strings.HasSuffix(op, "fts") {
				return c, fmt.Errorf("unknown quantifier %q", c.quant)
			}
			c.quant = ""
		}
	}
	if !operators[op] {
		return c, fmt.Errorf("unknown operator %q", op)
	}
	c.op = op
	c.value = val
	return c, nil
}

// parseLogic parses the value of or=(...) and and=(...), including nested
// and(...), or(...) and not. prefixes.
func parseLogic(logic, value string, negate bool) (condition, error) {
	inner, ok := strings.CutPrefix(value, "(")
	if !ok || !strings.HasSuffix(inner, ")") {
		return condition{}, fmt.Errorf("%s value %q must be enclosed in parentheses", logic, value)
	}
	inner = inner[:len(inner)-1]
	g := condition{logic: logic, negate: negate}
	for _, item := range splitTopLevel(inner) {
		item = strings.TrimSpace(item)
		if item == "" {
			return g, fmt.Errorf("empty condition in %s", logic)
		}
		neg := false
		if rest, ok := strings.CutPrefix(item, "not."); ok {
			neg = true
			item = rest
		}
		if l, rest, ok := cutLogic(item); ok {
			child, err := parseLogic(l, rest, neg)
			if err != nil {
				return g, err
			}
			g.children = append(g.children, child)
			continue
		}
		column, val, ok := strings.Cut(item, ".")
		if !ok {
			return g, fmt.Errorf("unexpected %q expecting a filter", item)
		}
		if neg {
			val = "not." + val
		}
		child, err := parseFilter(column, val)
		if err != nil {
			return g, err
		}
		g.children = append(g.children, child)
	}
	return g, nil
}

func cutLogic(item string) (string, string, bool) {
	for _, l := range []string{"and", "or"} {
		if rest, ok := strings.CutPrefix(item, l+"("); ok {
			return l, "(" + rest, true
		}
	}
	return "", "", false
}

// splitTopLevel splits at commas outside parentheses, braces and double
// quotes.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	quoted := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\\' && quoted:
			i++
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
	return append(parts, s[start:])
}

// listValues parses "(a,b,\"c,d\")" or "{a,b}" into its elements.
func listValues(s string) []string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '(' && s[len(s)-1] == ')' || s[0] == '{' && s[len(s)-1] == '}') {
		s = s[1 : len(s)-1]
	}
	if s == "" {
		return nil
	}
	parts := splitTopLevel(s)
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if len(p) >= 2 && p[0] == '"' && p[len(p)-1] == '"' {
			p = strings.ReplaceAll(p[1:len(p)-1], `\"`, `"`)
		}
		parts[i] = p
	}
	return parts
}

// columns returns every column referenced by c.
func (c condition) columns() []string {
	if c.logic == "" {
		col, _ := splitJSONPath(c.column)
		return []string{col}
	}
	var out []string
	for _, ch := range c.children {
		out = append(out, ch.columns()...)
	}
	return out
}

// eval reports whether row satisfies c. Comparisons with null are unknown
// and never match, negated or not, as in SQL.
func (c condition) eval(row Row) bool {
	match, known := c.test(row)
	return known && match
}

func (c condition) test(row Row) (match, known bool) {
	if c.logic != "" {
		match, known = c.group(row)
	} else {
		match, known = c.compare(row)
	}
	if c.negate && known {
		match = !match
	}
	return match, known
}

func (c condition) group(row Row) (bool, bool) {
	sawUnknown := false
	for _, ch := range c.children {
		m, k := ch.test(row)
		switch {
		case !k:
			sawUnknown = true
		case c.logic == "or" && m:
			return true, true
		case c.logic == "and" && !m:
			return false, true
		}
	}
	if sawUnknown {
		return false, false
	}
	return c.logic == "and", true
}

func (c condition) compare(row Row) (bool, bool) {
	col, steps := splitJSONPath(c.column)
	v := walkJSON(row[col], steps)

	switch c.op {
	case "is":
		return isMatch(v, c.value), true
	case "isdistinct":
		return !equalValues(v, literal(c.value)), true
	}
	if v == nil {
		return false, false
	}

	switch c.op {
	case "eq", "neq", "gt", "gte", "lt", "lte", "like", "ilike", "match", "imatch":
		if c.quant != "" {
			return c.quantified(v), true
		}
		return scalarMatch(c.op, v, c.value), true
	case "in":
		return slices.ContainsFunc(listValues(c.value), func(s string) bool {
			return equalValues(v, s)
		}), true
	case "cs", "cd", "ov":
		return containerMatch(c.op, v, c.value), true
	case "fts", "plfts", "phfts", "wfts":
		return textSearch(textOf(v), c.value), true
	}
	return false, false
}

func (c condition) quantified(v any) bool {
	vals := listValues(c.value)
	test := func(s string) bool { return scalarMatch(c.op, v, s) }
	if c.quant == "all" {
		return len(vals) > 0 && !slices.ContainsFunc(vals, func(s string) bool { return !test(s) })
	}
	return slices.ContainsFunc(vals, test)
}

func scalarMatch(op string, v any, lit string) bool {
	switch op {
	case "eq":
		return equalValues(v, lit)
	case "neq":
		return !equalValues(v, lit)
	case "like", "ilike":
		return likePattern(lit, op == "ilike").MatchString(textOf(v))
	case "match", "imatch":
		expr := lit
		if op == "imatch" {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		return err == nil && re.MatchString(textOf(v))
	}
	cmp, ok := compareValues(v, lit)
	if !ok {
		return false
	}
	switch op {
	case "gt":
		return cmp > 0
	case "gte":
		return cmp >= 0
	case "lt":
		return cmp < 0
	case "lte":
		return cmp <= 0
	}
	return false
}

func isMatch(v any, lit string) bool {
	switch strings.ToLower(lit) {
	case "null":
		return v == nil
	case "not_null":
		return v != nil
	case "unknown":
		return v == nil
	case "true", "false":
		b, ok := v.(bool)
		return ok && b == (strings.ToLower(lit) == "true")
	}
	return false
}

// literal turns a filter value into the typed value used by isdistinct.
func literal(s string) any {
	if s == "null" {
		return nil
	}
	return s
}

// likePattern compiles a like pattern; * is accepted for %.
func likePattern(pat string, fold bool) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("^")
	if fold {
		b.WriteString("(?is)")
	} else {
		b.WriteString("(?s)")
	}
	for _, r := range pat {
		switch r {
		case '%', '*':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

// containerMatch implements cs (@>), cd (<@) and ov (&&) for arrays and
// json objects. The literal is a {a,b} array or json.
func containerMatch(op string, v any, lit string) bool {
	var want any
	if strings.HasPrefix(lit, "{") && !json.Valid([]byte(lit)) || strings.HasPrefix(lit, "(") {
		vals := listValues(lit)
		arr := make([]any, len(vals))
		for i, s := range vals {
			arr[i] = s
		}
		want = arr
	} else if err := json.Unmarshal([]byte(lit), &want); err != nil {
		return false
	}
	want = normalizeValue(want)

	switch op {
	case "cs":
		return contains(v, want)
	case "cd":
		return contains(want, v)
	}
	a, aok := v.([]any)
	b, bok := want.([]any)
	if !aok || !bok {
		return false
	}
	return slices.ContainsFunc(a, func(x any) bool {
		return slices.ContainsFunc(b, func(y any) bool { return equalValues(x, y) })
	})
}

// contains reports whether outer contains inner, like jsonb @>.
func contains(outer, inner any) bool {
	switch in := inner.(type) {
	case map[string]any:
		out, ok := outer.(map[string]any)
		if !ok {
			return false
		}
		for k, v := range in {
			ov, ok := out[k]
			if !ok || !contains(ov, v) {
				return false
			}
		}
		return true
	case []any:
		out, ok := outer.([]any)
		if !ok {
			return false
		}
		for _, v := range in {
			if !slices.ContainsFunc(out, func(o any) bool { return contains(o, v) }) {
				return false
			}
		}
		return true
	}
	return equalValues(outer, inner)
}

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

// textSearch is a small stand-in for to_tsquery matching: every term must
// occur in the document, or any term when the query uses | or "or".
func textSearch(doc, query string) bool {
	words := map[string]bool{}
	for _, w := range wordRe.FindAllString(strings.ToLower(doc), -1) {
		words[w] = true
	}
	lower := strings.ToLower(query)
	anyOf := strings.Contains(lower, "|") || strings.Contains(lower, " or ")
	terms := wordRe.FindAllString(lower, -1)
	terms = slices.DeleteFunc(terms, func(t string) bool { return t == "or" && anyOf })
	if len(terms) == 0 {
		return false
	}
	for _, t := range terms {
		if words[t] && anyOf {
			return true
		}
		if !words[t] && !anyOf {
			return false
		}
	}
	return !anyOf
}
