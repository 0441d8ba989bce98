package rest

import (
	"encoding/json"
	"maps"
	"net/http"
	"slices"

	"github.com/edgeflare/pgrest/pkg/metrics"
	"github.com/edgeflare/pgrest/pkg/postgrest/selectexpr"
)

// evaluator runs a parsed read request against the store. Callers hold the
// store lock for its whole life.
type evaluator struct {
	store  *Store
	params *QueryParams
	rels   map[*selectexpr.Embed]relationship
}

// newEvaluator resolves every embed of the select tree and checks that
// filters and modifiers only address known columns and embeds, so that
// errors are reported even when no row matches.
func (s *Store) newEvaluator(root *relation, params *QueryParams) (*evaluator, *apiError) {
	ev := &evaluator{
		store:  s,
		params: params,
		rels:   make(map[*selectexpr.Embed]relationship),
	}
	if err := ev.plan(root, params.Select, ""); err != nil {
		return nil, err
	}
	for path := range params.Levels {
		if path != "" && params.Select.Find(path) == nil {
			return nil, &apiError{
				status:  http.StatusBadRequest,
				Code:    "PGRST108",
				Message: "'" + path + "' is not an embedded resource in this request",
			}
		}
	}
	return ev, nil
}

func (ev *evaluator) plan(rel *relation, tree selectexpr.Tree, path string) *apiError {
	lvl := ev.params.at(path)
	for _, c := range lvl.filters {
		for _, col := range c.columns() {
			if !hasColumn(rel, col) {
				return errColumn(rel.Name, col)
			}
		}
	}
	for _, o := range lvl.order {
		if col, _ := splitJSONPath(o.Column); !hasColumn(rel, col) {
			return errColumn(rel.Name, col)
		}
	}

	for _, n := range tree {
		switch n := n.(type) {
		case *selectexpr.Field:
			if n.Name == "*" || n.Name == "" {
				continue
			}
			if col, _ := splitJSONPath(n.Name); !hasColumn(rel, col) {
				return errColumn(rel.Name, col)
			}
		case *selectexpr.Embed:
			r, err := ev.store.resolve(rel, n)
			if err != nil {
				return err
			}
			ev.rels[n] = r
			metrics.ServerEmbeds.WithLabelValues(joinLabel(n.Join)).Inc()
			if err := ev.plan(r.target, n.Children, joinPath(path, n.Key())); err != nil {
				return err
			}
		}
	}
	return nil
}

func joinLabel(j selectexpr.JoinType) string {
	if s := j.String(); s != "" {
		return s
	}
	return "default"
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func hasColumn(rel *relation, col string) bool {
	if len(rel.Columns) == 0 {
		return true
	}
	_, ok := rel.Column(col)
	return ok
}

// columnNames lists the columns * expands to.
func columnNames(rel *relation, row Row) []string {
	if len(rel.Columns) > 0 {
		return rel.ColumnNames()
	}
	return slices.Sorted(maps.Keys(row))
}

// eval filters, projects, orders, aggregates and pages rows of rel for one
// level. total is the number of results before paging.
func (ev *evaluator) eval(rel *relation, tree selectexpr.Tree, path string, rows []Row, filter bool) ([]*object, int, *apiError) {
	lvl := ev.params.at(path)
	var items []ordered
	for _, row := range rows {
		if filter && !matchAll(lvl.filters, row) {
			continue
		}
		obj, keep, err := ev.project(rel, tree, path, row)
		if err != nil {
			return nil, 0, err
		}
		if keep {
			items = append(items, ordered{row: row, obj: obj})
		}
	}
	sortRows(items, lvl.order)

	objs := make([]*object, len(items))
	for i, it := range items {
		objs[i] = it.obj
	}
	if hasAggregate(tree) {
		var err *apiError
		if objs, err = aggregate(tree, objs); err != nil {
			return nil, 0, err
		}
	}
	total := len(objs)
	return page(objs, lvl.offset, lvl.limit), total, nil
}

func matchAll(conds []condition, row Row) bool {
	for _, c := range conds {
		if !c.eval(row) {
			return false
		}
	}
	return true
}

func page[T any](items []T, offset int, limit *int) []T {
	if offset >= len(items) {
		return items[:0]
	}
	items = items[offset:]
	if limit != nil && *limit < len(items) {
		items = items[:*limit]
	}
	return items
}

// project builds the result object of one row. keep is false when an
// !inner embed found no related row.
func (ev *evaluator) project(rel *relation, tree selectexpr.Tree, path string, row Row) (*object, bool, *apiError) {
	obj := newObject()
	for _, n := range tree {
		switch n := n.(type) {
		case *selectexpr.Field:
			switch {
			case n.Aggregate != "":
				var v any = true // a bare count() counts rows
				if n.Name != "" {
					col, steps := splitJSONPath(n.Name)
					v = walkJSON(row[col], steps)
				}
				obj.set(n.Key(), aggCell{fn: n.Aggregate, cast: n.Cast, val: v})
			case n.Name == "*":
				for _, col := range columnNames(rel, row) {
					obj.set(col, row[col])
				}
			default:
				col, steps := splitJSONPath(n.Name)
				v := walkJSON(row[col], steps)
				if n.Cast != "" {
					var err *apiError
					if v, err = castValue(v, n.Cast); err != nil {
						return nil, false, err
					}
				}
				obj.set(n.Key(), v)
			}

		case *selectexpr.Embed:
			r := ev.rels[n]
			children, _, err := ev.eval(r.target, n.Children, joinPath(path, n.Key()), r.related(row), true)
			if err != nil {
				return nil, false, err
			}
			if n.Join == selectexpr.JoinInner && len(children) == 0 {
				return nil, false, nil
			}
			if n.Spread {
				spread(obj, r, n.Children, children)
				continue
			}
			if r.toOne() {
				var v any
				if len(children) > 0 {
					v = children[0]
				}
				obj.set(n.Key(), v)
			} else {
				obj.set(n.Key(), children)
			}
		}
	}
	return obj, true, nil
}

// spread merges the fields of an embed into its parent. A to-many spread
// yields one array per field.
func spread(obj *object, r relationship, tree selectexpr.Tree, children []*object) {
	keys := treeKeys(r.target, tree)
	if r.toOne() {
		for _, k := range keys {
			var v any
			if len(children) > 0 {
				v = children[0].get(k)
			}
			obj.set(k, v)
		}
		return
	}
	for _, k := range keys {
		vals := make([]any, len(children))
		for i, c := range children {
			vals[i] = c.get(k)
		}
		obj.set(k, vals)
	}
}

// treeKeys lists the keys a tree produces for rel, without evaluating it.
func treeKeys(rel *relation, tree selectexpr.Tree) []string {
	var keys []string
	for _, n := range tree {
		switch n := n.(type) {
		case *selectexpr.Field:
			if n.Name == "*" && n.Aggregate == "" {
				var sample Row
				if len(rel.rows) > 0 {
					sample = rel.rows[0]
				}
				keys = append(keys, columnNames(rel, sample)...)
				continue
			}
			keys = append(keys, n.Key())
		case *selectexpr.Embed:
			keys = append(keys, n.Key())
		}
	}
	return keys
}

type aggCell struct {
	fn   string
	cast string
	val  any
}

func hasAggregate(tree selectexpr.Tree) bool {
	return slices.ContainsFunc(tree, func(n selectexpr.Node) bool {
		f, ok := n.(*selectexpr.Field)
		return ok && f.Aggregate != ""
	})
}

// aggregate groups objects by their non aggregated values and folds the
// aggregate cells of each group.
func aggregate(tree selectexpr.Tree, objs []*object) ([]*object, *apiError) {
	type group struct {
		first *object
		cells map[string][]any
	}
	var order []string
	groups := map[string]*group{}
	for _, o := range objs {
		plain := newObject()
		for _, k := range o.keys {
			if _, ok := o.vals[k].(aggCell); !ok {
				plain.set(k, o.vals[k])
			}
		}
		b, _ := json.Marshal(plain)
		key := string(b)
		g, ok := groups[key]
		if !ok {
			g = &group{first: o, cells: map[string][]any{}}
			groups[key] = g
			order = append(order, key)
		}
		for _, k := range o.keys {
			if c, ok := o.vals[k].(aggCell); ok {
				g.cells[k] = append(g.cells[k], c.val)
			}
		}
	}

	onlyAggregates := !slices.ContainsFunc(tree, func(n selectexpr.Node) bool {
		f, ok := n.(*selectexpr.Field)
		return !ok || f.Aggregate == ""
	})
	if len(objs) == 0 && onlyAggregates {
		o := newObject()
		for _, n := range tree {
			f := n.(*selectexpr.Field)
			v, err := fold(f.Aggregate, f.Cast, nil)
			if err != nil {
				return nil, err
			}
			o.set(f.Key(), v)
		}
		return []*object{o}, nil
	}

	out := make([]*object, 0, len(order))
	for _, key := range order {
		g := groups[key]
		o := newObject()
		for _, k := range g.first.keys {
			v := g.first.vals[k]
			if c, ok := v.(aggCell); ok {
				folded, err := fold(c.fn, c.cast, g.cells[k])
				if err != nil {
					return nil, err
				}
				v = folded
			}
			o.set(k, v)
		}
		out = append(out, o)
	}
	return out, nil
}

func fold(fn, cast string, vals []any) (any, *apiError) {
	var result any
	switch fn {
	case "count":
		n := 0
		for _, v := range vals {
			if v != nil {
				n++
			}
		}
		result = float64(n)
	case "sum", "avg":
		sum, n := 0.0, 0
		for _, v := range vals {
			if f, ok := toFloat(v); ok && v != nil {
				sum += f
				n++
			}
		}
		switch {
		case n == 0:
			result = nil
		case fn == "avg":
			result = sum / float64(n)
		default:
			result = sum
		}
	case "min", "max":
		for _, v := range vals {
			if v == nil {
				continue
			}
			if result == nil {
				result = v
				continue
			}
			c, _ := compareValues(v, result)
			if (fn == "min" && c < 0) || (fn == "max" && c > 0) {
				result = v
			}
		}
	}
	if cast != "" {
		return castValue(result, cast)
	}
	return result, nil
}
