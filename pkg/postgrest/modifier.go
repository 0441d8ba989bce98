package postgrest

import "net/http"

// OrderOptions configures Order.
type OrderOptions struct {
	Descending      bool
	Nulls           Nulls
	ReferencedTable string // dotted path of the embed to order, e.g. messages
}

// PageOptions targets Limit and Range at an embedded resource.
type PageOptions struct {
	ReferencedTable string
}

// Order sorts by column. Repeated calls add tie breakers in call order.
func (q Query) Order(column string, opts ...OrderOptions) Query {
	var o OrderOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	q = q.clone()
	q.state.Orders = append(q.state.Orders, OrderTerm{
		Column:          column,
		Descending:      o.Descending,
		Nulls:           o.Nulls,
		ReferencedTable: o.ReferencedTable,
	})
	return q
}

// Limit caps the number of rows returned.
func (q Query) Limit(n int, opts ...PageOptions) Query {
	var o PageOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	q = q.clone()
	q.state.Pages = append(q.state.Pages, Page{ReferencedTable: o.ReferencedTable, Limit: &n})
	return q
}

// Range returns rows from index from to index to, both inclusive and zero
// based.
func (q Query) Range(from, to int, opts ...PageOptions) Query {
	var o PageOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	limit := to - from + 1
	q = q.clone()
	q.state.Pages = append(q.state.Pages, Page{ReferencedTable: o.ReferencedTable, Offset: &from, Limit: &limit})
	return q
}

// Single asks for exactly one row as an object. Zero or several rows are an
// error (PGRST116).
func (q Query) Single() Query {
	q = q.clone()
	q.shape = shapeSingle
	q.accept = MediaTypeObject
	return q
}

// MaybeSingle returns one row as an object, or null when nothing matched.
// Several rows are an error.
func (q Query) MaybeSingle() Query {
	q = q.clone()
	q.shape = shapeMaybeSingle
	if q.method != http.MethodGet && q.method != http.MethodHead {
		q.accept = MediaTypeObject
	} else {
		q.accept = ""
	}
	return q
}

// CSV returns rows as csv text. Response.Data then holds a json string.
func (q Query) CSV() Query {
	q = q.clone()
	q.shape = shapeArray
	q.accept = MediaTypeCSV
	return q
}

// GeoJSON returns rows as a GeoJSON FeatureCollection.
func (q Query) GeoJSON() Query {
	q = q.clone()
	q.shape = shapeArray
	q.accept = MediaTypeGeo
	return q
}
