package postgrest

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/edgeflare/pgrest/pkg/postgrest/selectexpr"
)

// Param is a single query string parameter.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered list of query string parameters. Order is kept so that
// the same query always encodes to the same URL.
type Params []Param

// Get returns the first value for key, or "".
func (p Params) Get(key string) string {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value
		}
	}
	return ""
}

// Values returns every value for key in order.
func (p Params) Values(key string) []string {
	var out []string
	for _, kv := range p {
		if kv.Key == key {
			out = append(out, kv.Value)
		}
	}
	return out
}

// Has reports whether key is present.
func (p Params) Has(key string) bool {
	for _, kv := range p {
		if kv.Key == key {
			return true
		}
	}
	return false
}

// set replaces the value of key in place, or appends it.
func (p Params) set(key, value string) Params {
	for i := range p {
		if p[i].Key == key {
			p[i].Value = value
			return p
		}
	}
	return append(p, Param{Key: key, Value: value})
}

// Encode writes the parameters as a query string. Values are percent-encoded,
// but the characters that carry meaning in select, filter and order values
// (, ( ) : ! *) are written literally.
func (p Params) Encode() string {
	var b strings.Builder
	for i, kv := range p {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(escape(kv.Key))
		b.WriteByte('=')
		b.WriteString(escape(kv.Value))
	}
	return b.String()
}

var literal = strings.NewReplacer(
	"%2C", ",",
	"%28", "(",
	"%29", ")",
	"%3A", ":",
	"%21", "!",
	"%2A", "*",
	"+", "%20",
)

func escape(s string) string {
	return literal.Replace(url.QueryEscape(s))
}

// Filter is an encoded horizontal filter: Key is a column, optionally
// prefixed with the dotted path of an embed (messages.id), or a logical
// operator (or, messages.and); Value is operator.value.
type Filter struct {
	Key   string
	Value string
}

// Nulls places null values when ordering.
type Nulls int

const (
	NullsDefault Nulls = iota
	NullsFirst
	NullsLast
)

// OrderTerm orders the top level resource, or the embed at ReferencedTable.
type OrderTerm struct {
	Column          string
	Descending      bool
	Nulls           Nulls
	ReferencedTable string
}

func (o OrderTerm) String() string {
	var b strings.Builder
	b.WriteString(o.Column)
	if o.Descending {
		b.WriteString(".desc")
	} else {
		b.WriteString(".asc")
	}
	switch o.Nulls {
	case NullsFirst:
		b.WriteString(".nullsfirst")
	case NullsLast:
		b.WriteString(".nullslast")
	}
	return b.String()
}

// Page is a limit or offset, for the top level or an embed.
type Page struct {
	ReferencedTable string
	Limit           *int
	Offset          *int
}

// State is everything except the select tree that ends up in the query string.
type State struct {
	Filters []Filter
	Orders  []OrderTerm
	Pages   []Page
	Extra   Params // columns, on_conflict and other mutation parameters
}

func prefixed(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// Encode merges a compiled select tree with filter, order and paging state
// into query parameters. The select value is re-serialized from the tree, so
// whitespace is dropped and modifiers are canonical. A nil tree emits no
// select parameter.
//
// Parameters are written in this order: select, filters in call order, order
// per referenced table in first-use order, limit and offset, extra.
func Encode(tree selectexpr.Tree, st State) Params {
	var p Params
	if tree != nil {
		p = append(p, Param{Key: "select", Value: tree.String()})
	}
	for _, f := range st.Filters {
		p = append(p, Param{Key: f.Key, Value: f.Value})
	}

	var orders Params
	for _, o := range st.Orders {
		key := prefixed(o.ReferencedTable, "order")
		if cur := orders.Get(key); cur != "" {
			orders = orders.set(key, cur+","+o.String())
		} else {
			orders = orders.set(key, o.String())
		}
	}
	p = append(p, orders...)

	var pages Params
	for _, pg := range st.Pages {
		if pg.Offset != nil {
			pages = pages.set(prefixed(pg.ReferencedTable, "offset"), strconv.Itoa(*pg.Offset))
		}
		if pg.Limit != nil {
			pages = pages.set(prefixed(pg.ReferencedTable, "limit"), strconv.Itoa(*pg.Limit))
		}
	}
	p = append(p, pages...)

	for _, kv := range st.Extra {
		p = p.set(kv.Key, kv.Value)
	}
	return p
}
