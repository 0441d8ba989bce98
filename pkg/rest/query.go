package rest

import (
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/edgeflare/pgrest/pkg/postgrest/selectexpr"
)

// level holds the filters and modifiers addressed to one level of the
// result: the top level (path "") or an embed (its dotted path).
type level struct {
	filters []condition
	order   []OrderParam
	limit   *int
	offset  int
}

// QueryParams is a parsed read request.
type QueryParams struct {
	Select     selectexpr.Tree
	Levels     map[string]*level
	Columns    []string // columns= of a bulk insert
	OnConflict []string
	Args       map[string]string // rpc arguments passed in the query string
}

func (p *QueryParams) level(path string) *level {
	l, ok := p.Levels[path]
	if !ok {
		l = &level{}
		p.Levels[path] = l
	}
	return l
}

// at returns the level for path without creating it.
func (p *QueryParams) at(path string) *level {
	if l, ok := p.Levels[path]; ok {
		return l
	}
	return &level{}
}

// Check if parameter name is a reserved keyword
func isReservedParam(name string) bool {
	switch name {
	case "select", "columns", "on_conflict":
		return true
	}
	return false
}

// parseQueryParams parses select, filters and modifiers. rpcParams names
// query parameters that are function arguments rather than filters.
func parseQueryParams(values url.Values, rpcParams []string) (*QueryParams, *apiError) {
	p := &QueryParams{Levels: map[string]*level{}}

	sel := values.Get("select")
	if strings.TrimSpace(sel) == "" {
		sel = "*"
	}
	tree, err := selectexpr.Parse(sel)
	if err != nil {
		return nil, errParse("select", err.Error())
	}
	p.Select = tree

	if cols := values.Get("columns"); cols != "" {
		p.Columns = listValues(cols)
	}
	if oc := values.Get("on_conflict"); oc != "" {
		p.OnConflict = listValues(oc)
	}

	for _, key := range sortedKeys(values) {
		if isReservedParam(key) {
			continue
		}
		if slices.Contains(rpcParams, key) {
			if p.Args == nil {
				p.Args = map[string]string{}
			}
			p.Args[key] = values.Get(key)
			continue
		}
		for _, value := range values[key] {
			if apiErr := p.add(key, value); apiErr != nil {
				return nil, apiErr
			}
		}
	}
	return p, nil
}

func (p *QueryParams) add(key, value string) *apiError {
	segs := strings.Split(key, ".")
	last := segs[len(segs)-1]
	path := strings.Join(segs[:len(segs)-1], ".")

	switch last {
	case "order":
		terms, err := parseOrderParam(value)
		if err != nil {
			return errParse("order", err.Error())
		}
		l := p.level(path)
		l.order = append(l.order, terms...)
	case "limit":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return errParse("limit", "invalid limit "+strconv.Quote(value))
		}
		p.level(path).limit = &n
	case "offset":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return errParse("offset", "invalid offset "+strconv.Quote(value))
		}
		p.level(path).offset = n
	case "or", "and":
		negate := false
		if len(segs) > 1 && segs[len(segs)-2] == "not" {
			negate = true
			path = strings.Join(segs[:len(segs)-2], ".")
		}
		c, err := parseLogic(last, value, negate)
		if err != nil {
			return errParse("logic tree", err.Error())
		}
		l := p.level(path)
		l.filters = append(l.filters, c)
	default:
		c, err := parseFilter(last, value)
		if err != nil {
			return errParse("filter", err.Error())
		}
		l := p.level(path)
		l.filters = append(l.filters, c)
	}
	return nil
}

func sortedKeys(v url.Values) []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
