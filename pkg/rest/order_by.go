package rest

import (
	"fmt"
	"slices"
	"strings"
)

type OrderParam struct {
	Column     string // may carry a json path
	Descending bool
	NullsFirst bool
}

// parseOrderParam parses "col[.asc|.desc][.nullsfirst|.nullslast],...".
// Nulls sort last ascending and first descending unless told otherwise, as
// in postgres.
func parseOrderParam(order string) ([]OrderParam, error) {
	parts := splitTopLevel(order)
	result := make([]OrderParam, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("empty term in order %q", order)
		}

		nulls := ""
		if rest, ok := strings.CutSuffix(part, ".nullsfirst"); ok {
			part, nulls = rest, "first"
		} else if rest, ok := strings.CutSuffix(part, ".nullslast"); ok {
			part, nulls = rest, "last"
		}

		desc := false
		if rest, ok := strings.CutSuffix(part, ".desc"); ok {
			part, desc = rest, true
		} else if rest, ok := strings.CutSuffix(part, ".asc"); ok {
			part = rest
		}

		if part == "" {
			return nil, fmt.Errorf("missing column in order %q", order)
		}
		result = append(result, OrderParam{
			Column:     part,
			Descending: desc,
			NullsFirst: nulls == "first" || (nulls == "" && desc),
		})
	}

	return result, nil
}

type ordered struct {
	row Row
	obj *object
}

func sortRows(items []ordered, terms []OrderParam) {
	if len(terms) == 0 {
		return
	}
	slices.SortStableFunc(items, func(a, b ordered) int {
		for _, t := range terms {
			col, steps := splitJSONPath(t.Column)
			av := walkJSON(a.row[col], steps)
			bv := walkJSON(b.row[col], steps)
			if c := compareOrder(av, bv, t); c != 0 {
				return c
			}
		}
		return 0
	})
}

func compareOrder(a, b any, t OrderParam) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		if t.NullsFirst {
			return -1
		}
		return 1
	case b == nil:
		if t.NullsFirst {
			return 1
		}
		return -1
	}
	c, _ := compareValues(a, b)
	if t.Descending {
		return -c
	}
	return c
}
