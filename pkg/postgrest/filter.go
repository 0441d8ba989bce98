package postgrest

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
)

// Filter operators understood by PostgREST.
const (
	OpEq            = "eq"
	OpNeq           = "neq"
	OpGt            = "gt"
	OpGte           = "gte"
	OpLt            = "lt"
	OpLte           = "lte"
	OpLike          = "like"
	OpILike         = "ilike"
	OpIs            = "is"
	OpIn            = "in"
	OpContains      = "cs"
	OpContainedBy   = "cd"
	OpOverlaps      = "ov"
	OpRangeGt       = "sr"
	OpRangeGte      = "nxl"
	OpRangeLt       = "sl"
	OpRangeLte      = "nxr"
	OpRangeAdjacent = "adj"
	OpFTS           = "fts"
	OpPlainFTS      = "plfts"
	OpPhraseFTS     = "phfts"
	OpWebFTS        = "wfts"
)

// TextSearchType selects the to_tsquery variant used by TextSearch.
type TextSearchType int

const (
	TextSearchDefault TextSearchType = iota
	TextSearchPlain
	TextSearchPhrase
	TextSearchWebsearch
)

// TextSearchOptions configures TextSearch.
type TextSearchOptions struct {
	Config string // text search configuration, e.g. english
	Type   TextSearchType
}

// FilterOptions targets a logical filter at an embedded resource.
type FilterOptions struct {
	ReferencedTable string
}

func (q Query) addFilter(key, value string) Query {
	q = q.clone()
	q.state.Filters = append(q.state.Filters, Filter{Key: key, Value: value})
	return q
}

// Eq matches rows where column equals value. Column may be prefixed with the
// dotted path of an embed, e.g. messages.username.
func (q Query) Eq(column string, value any) Query {
	return q.addFilter(column, OpEq+"."+formatValue(value))
}

// Neq matches rows where column is not equal to value.
func (q Query) Neq(column string, value any) Query {
	return q.addFilter(column, OpNeq+"."+formatValue(value))
}

// Gt matches rows where column is greater than value.
func (q Query) Gt(column string, value any) Query {
	return q.addFilter(column, OpGt+"."+formatValue(value))
}

// Gte matches rows where column is greater than or equal to value.
func (q Query) Gte(column string, value any) Query {
	return q.addFilter(column, OpGte+"."+formatValue(value))
}

// Lt matches rows where column is less than value.
func (q Query) Lt(column string, value any) Query {
	return q.addFilter(column, OpLt+"."+formatValue(value))
}

// Lte matches rows where column is less than or equal to value.
func (q Query) Lte(column string, value any) Query {
	return q.addFilter(column, OpLte+"."+formatValue(value))
}

// Like matches column against a case sensitive pattern; % may be written as *.
func (q Query) Like(column, pattern string) Query {
	return q.addFilter(column, OpLike+"."+pattern)
}

// ILike is the case insensitive Like.
func (q Query) ILike(column, pattern string) Query {
	return q.addFilter(column, OpILike+"."+pattern)
}

// LikeAllOf matches column against every pattern.
func (q Query) LikeAllOf(column string, patterns []string) Query {
	return q.addFilter(column, "like(all).{"+strings.Join(patterns, ",")+"}")
}

// LikeAnyOf matches column against at least one pattern.
func (q Query) LikeAnyOf(column string, patterns []string) Query {
	return q.addFilter(column, "like(any).{"+strings.Join(patterns, ",")+"}")
}

// Is checks for exact equality with null, true, false or unknown. A nil value
// is null.
func (q Query) Is(column string, value any) Query {
	return q.addFilter(column, OpIs+"."+formatValue(value))
}

// In matches rows where column is one of values. Strings holding a comma or
// parenthesis are quoted.
func (q Query) In(column string, values ...any) Query {
	parts := make([]string, len(values))
	for i, v := range values {
		s := formatValue(v)
		if _, ok := v.(string); ok && strings.ContainsAny(s, ",()") {
			s = `"` + s + `"`
		}
		parts[i] = s
	}
	return q.addFilter(column, OpIn+".("+strings.Join(parts, ",")+")")
}

// Contains matches jsonb, array and range columns containing value. A string
// is passed through as a range or array literal, a slice becomes an array
// literal and anything else is sent as json.
func (q Query) Contains(column string, value any) Query {
	return q.addFilter(column, OpContains+"."+formatContainer(value))
}

// ContainedBy matches columns whose every element is contained in value.
func (q Query) ContainedBy(column string, value any) Query {
	return q.addFilter(column, OpContainedBy+"."+formatContainer(value))
}

// Overlaps matches array or range columns sharing an element with value.
func (q Query) Overlaps(column string, value any) Query {
	if s, ok := value.(string); ok {
		return q.addFilter(column, OpOverlaps+"."+s)
	}
	return q.addFilter(column, OpOverlaps+"."+formatContainer(value))
}

// RangeGt matches range columns strictly right of rng.
func (q Query) RangeGt(column, rng string) Query {
	return q.addFilter(column, OpRangeGt+"."+rng)
}

// RangeGte matches range columns not extending left of rng.
func (q Query) RangeGte(column, rng string) Query {
	return q.addFilter(column, OpRangeGte+"."+rng)
}

// RangeLt matches range columns strictly left of rng.
func (q Query) RangeLt(column, rng string) Query {
	return q.addFilter(column, OpRangeLt+"."+rng)
}

// RangeLte matches range columns not extending right of rng.
func (q Query) RangeLte(column, rng string) Query {
	return q.addFilter(column, OpRangeLte+"."+rng)
}

// RangeAdjacent matches range columns adjacent to rng.
func (q Query) RangeAdjacent(column, rng string) Query {
	return q.addFilter(column, OpRangeAdjacent+"."+rng)
}

// TextSearch matches tsvector columns against query.
func (q Query) TextSearch(column, query string, opts ...TextSearchOptions) Query {
	var o TextSearchOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	op := OpFTS
	switch o.Type {
	case TextSearchPlain:
		op = OpPlainFTS
	case TextSearchPhrase:
		op = OpPhraseFTS
	case TextSearchWebsearch:
		op = OpWebFTS
	}
	if o.Config != "" {
		op += "(" + o.Config + ")"
	}
	return q.addFilter(column, op+"."+query)
}

// Match adds an Eq filter for every entry of query, in key order.
func (q Query) Match(query map[string]any) Query {
	for _, k := range slices.Sorted(maps.Keys(query)) {
		q = q.Eq(k, query[k])
	}
	return q
}

// Not negates operator, e.g. Not("status", "is", nil) sends status=not.is.null.
// value is sent as written; use the typed filters when escaping matters.
func (q Query) Not(column, operator string, value any) Query {
	return q.addFilter(column, "not."+operator+"."+formatValue(value))
}

// Or matches rows satisfying at least one of the raw PostgREST filters, e.g.
// "id.eq.1,name.like.*bot". With a ReferencedTable the condition applies to
// that embed's rows.
func (q Query) Or(filters string, opts ...FilterOptions) Query {
	var ref string
	if len(opts) > 0 {
		ref = opts[0].ReferencedTable
	}
	return q.addFilter(prefixed(ref, "or"), "("+filters+")")
}

// Filter adds a raw filter; value must already follow PostgREST syntax for
// operator, e.g. Filter("id", "in", "(1,2)").
func (q Query) Filter(column, operator, value string) Query {
	return q.addFilter(column, operator+"."+value)
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(v)
}

func formatContainer(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case nil:
		return "null"
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = formatValue(rv.Index(i).Interface())
		}
		return "{" + strings.Join(parts, ",") + "}"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
