package selectexpr

import "strings"

// String serializes the tree back to a select expression. Whitespace is
// dropped and modifiers are written in canonical !hint!join order, so the
// output parses to an equal tree.
func (t Tree) String() string {
	var b strings.Builder
	t.write(&b)
	return b.String()
}

func (t Tree) write(b *strings.Builder) {
	for i, n := range t {
		if i > 0 {
			b.WriteByte(',')
		}
		switch n := n.(type) {
		case *Field:
			n.write(b)
		case *Embed:
			n.write(b)
		}
	}
}

func (f *Field) String() string {
	var b strings.Builder
	f.write(&b)
	return b.String()
}

func (f *Field) write(b *strings.Builder) {
	if f.Alias != "" {
		b.WriteString(quoteIdent(f.Alias))
		b.WriteByte(':')
	}
	switch {
	case f.Name == "*":
		b.WriteByte('*')
	case f.Aggregate != "" && f.Name == "":
		b.WriteString(f.Aggregate)
		b.WriteString("()")
	case f.Aggregate != "":
		b.WriteString(f.Name)
		b.WriteByte('.')
		b.WriteString(f.Aggregate)
		b.WriteString("()")
	default:
		b.WriteString(quoteIdent(f.Name))
	}
	if f.Cast != "" {
		b.WriteString("::")
		b.WriteString(quoteIdent(f.Cast))
	}
}

func (e *Embed) String() string {
	var b strings.Builder
	e.write(&b)
	return b.String()
}

func (e *Embed) write(b *strings.Builder) {
	if e.Spread {
		b.WriteString("...")
	}
	if e.Alias != "" {
		b.WriteString(quoteIdent(e.Alias))
		b.WriteByte(':')
	}
	b.WriteString(quoteIdent(e.Target))
	if e.Hint != "" {
		b.WriteByte('!')
		b.WriteString(e.Hint)
	}
	if e.Join != JoinDefault {
		b.WriteByte('!')
		b.WriteString(e.Join.String())
	}
	b.WriteByte('(')
	e.Children.write(b)
	b.WriteByte(')')
}

// quoteIdent returns s double quoted if it would not scan back as a single
// identifier.
func quoteIdent(s string) string {
	if s != "" && !strings.HasPrefix(s, "...") {
		plain := true
		for i := 0; i < len(s); i++ {
			if !isIdentChar(s[i]) {
				plain = false
				break
			}
		}
		if plain {
			return s
		}
	}
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('"')
	return b.String()
}
