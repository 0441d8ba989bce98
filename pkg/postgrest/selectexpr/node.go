package selectexpr

import "strings"

// JoinType is the join modifier carried by an embedded resource.
type JoinType int

const (
	// JoinDefault keeps the parent row whether or not related rows exist.
	JoinDefault JoinType = iota
	// JoinInner (!inner) excludes the parent row when no related row matches.
	JoinInner
	// JoinLeft (!left) forces an outer join, keeping the parent row.
	JoinLeft
)

func (j JoinType) String() string {
	switch j {
	case JoinInner:
		return "inner"
	case JoinLeft:
		return "left"
	}
	return ""
}

func parseJoinType(s string) (JoinType, bool) {
	switch s {
	case "inner":
		return JoinInner, true
	case "left":
		return JoinLeft, true
	}
	return JoinDefault, false
}

// Aggregate functions accepted in field position, e.g. count() or amount.sum().
var aggregates = map[string]bool{
	"count": true,
	"sum":   true,
	"avg":   true,
	"min":   true,
	"max":   true,
}

// Node is an element of an embedding tree: either a *Field or an *Embed.
type Node interface {
	node()
	String() string
}

// Field selects a column, a json path or all columns (*) of the current level.
type Field struct {
	Name      string // column, json path or "*"; empty for a bare count()
	Alias     string
	Cast      string
	Aggregate string
}

// Embed selects a related resource reached through a foreign key.
type Embed struct {
	Target   string // table, view, constraint or column name
	Alias    string
	Hint     string // constraint or column name disambiguating the relationship
	Join     JoinType
	Spread   bool // ...target(cols) flattens a to-one embed into the parent
	Children Tree
}

func (*Field) node() {}
func (*Embed) node() {}

// Key is the name under which the field appears in a result row.
func (f *Field) Key() string {
	switch {
	case f.Alias != "":
		return f.Alias
	case f.Aggregate != "":
		return f.Aggregate
	}
	if i := strings.LastIndex(f.Name, "->"); i >= 0 {
		return strings.TrimPrefix(f.Name[i+2:], ">")
	}
	return f.Name
}

// Key is the name under which the embed appears in a result row and the path
// element used to address it in filters and modifiers.
func (e *Embed) Key() string {
	if e.Alias != "" {
		return e.Alias
	}
	return e.Target
}

// Tree is an ordered embedding tree produced by Parse.
type Tree []Node

// Depth returns 1 for a tree without embeds, plus one per nesting level.
func (t Tree) Depth() int {
	depth := 0
	for _, n := range t {
		d := 1
		if e, ok := n.(*Embed); ok {
			d = 1 + e.Children.Depth()
		}
		depth = max(depth, d)
	}
	return depth
}

// Walk calls fn for every node in depth-first order. path is the dotted path
// of the embed owning the node, empty at the top level. Returning false from
// fn skips the children of an embed.
func (t Tree) Walk(fn func(path string, n Node) bool) {
	t.walk("", fn)
}

func (t Tree) walk(path string, fn func(string, Node) bool) {
	for _, n := range t {
		if !fn(path, n) {
			continue
		}
		switch n := n.(type) {
		case *Field:
		case *Embed:
			n.Children.walk(joinPath(path, n.Key()), fn)
		}
	}
}

// Embeds returns the dotted path of every embed in the tree.
func (t Tree) Embeds() []string {
	var paths []string
	t.Walk(func(path string, n Node) bool {
		if e, ok := n.(*Embed); ok {
			paths = append(paths, joinPath(path, e.Key()))
		}
		return true
	})
	return paths
}

// Find returns the embed addressed by a dotted path, or nil.
func (t Tree) Find(path string) *Embed {
	head, rest, _ := strings.Cut(path, ".")
	for _, n := range t {
		e, ok := n.(*Embed)
		if !ok || e.Key() != head {
			continue
		}
		if rest == "" {
			return e
		}
		return e.Children.Find(rest)
	}
	return nil
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}
