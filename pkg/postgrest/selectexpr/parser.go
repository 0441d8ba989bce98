package selectexpr

import (
	"fmt"
	"strings"
)

type parser struct {
	exp  string
	toks []Token
	pos  int
}

// Parse compiles a select expression into an embedding tree.
//
// A select expression is a comma separated list of segments:
//
//	segment := ['...'] [alias ':'] target ['!' hint] ['!' joinType] ['(' segment-list ')']
//	         | [alias ':'] column ['.' aggregate '()'] ['::' cast]
//	target  := identifier | '*'
//	joinType := 'inner' | 'left'
//
// Identifiers may be double quoted to include grammar characters. Hints are
// forwarded untouched; resolving them is left to the server.
func Parse(exp string) (Tree, error) {
	toks, err := Scan(exp)
	if err != nil {
		return nil, err
	}
	p := &parser{exp: exp, toks: toks}
	if p.peek().Kind == EOF {
		return nil, &SyntaxError{Msg: "empty select expression"}
	}
	tree, err := p.parseList(false)
	if err != nil {
		return nil, err
	}
	return tree, nil
}

// MustParse is like Parse but panics on error.
func MustParse(exp string) Tree {
	t, err := Parse(exp)
	if err != nil {
		panic(fmt.Sprintf("selectexpr: Parse(%q): %v", exp, err))
	}
	return t
}

func (p *parser) parseList(nested bool) (Tree, error) {
	var tree Tree
	for {
		n, err := p.parseSegment()
		if err != nil {
			return nil, err
		}
		tree = append(tree, n)

		tok := p.peek()
		switch tok.Kind {
		case Comma:
			p.pos++
		case RParen:
			if nested {
				return tree, nil
			}
			return nil, p.errorf(tok.Pos, `unexpected ")"`)
		case EOF:
			if !nested {
				return tree, nil
			}
			return nil, p.errorf(tok.Pos, `looking for ")"`)
		default:
			return nil, p.errorf(tok.Pos, "unexpected %s %q", tok.Kind, tok.Text)
		}
	}
}

func (p *parser) parseSegment() (Node, error) {
	spread := p.accept(Spread)

	name, err := p.parseName()
	if err != nil {
		return nil, err
	}
	var alias string
	if colon := p.peek(); colon.Kind == Colon {
		if name.Kind == Star {
			return nil, p.errorf(colon.Pos, "* cannot be aliased")
		}
		p.pos++
		alias = name.Text
		if name, err = p.parseName(); err != nil {
			return nil, err
		}
		if name.Kind == Star {
			return nil, p.errorf(name.Pos, "* cannot be aliased")
		}
	}

	var mods []Token
	for p.peek().Kind == Bang {
		bang := p.next()
		mod := p.peek()
		if mod.Kind != Ident {
			return nil, p.errorf(bang.Pos, `empty modifier after "!"`)
		}
		p.pos++
		mods = append(mods, mod)
	}

	if open := p.peek(); open.Kind == LParen {
		p.pos++
		if p.peek().Kind == RParen {
			return p.parseAggregate(name, alias, mods, spread, open)
		}
		return p.parseEmbed(name, alias, mods, spread, open)
	}

	if spread {
		return nil, p.errorf(name.Pos, "spread requires an embedded resource")
	}
	if len(mods) > 0 {
		return nil, p.errorf(mods[0].Pos-1, "modifier %q on a column", "!"+mods[0].Text)
	}
	f := &Field{Name: name.Text, Alias: alias}
	if name.Kind == Star {
		if p.peek().Kind == DoubleColon {
			return nil, p.errorf(p.peek().Pos, "* cannot be cast")
		}
		return f, nil
	}
	if f.Cast, err = p.parseCast(); err != nil {
		return nil, err
	}
	return f, nil
}

// parseName reads an identifier, a quoted identifier or *.
func (p *parser) parseName() (Token, error) {
	tok := p.peek()
	switch tok.Kind {
	case Quoted:
		switch tok.Text {
		case "":
			return Token{}, p.errorf(tok.Pos, "empty target name")
		case "*":
			return Token{}, p.errorf(tok.Pos, `quoted "*" is not a column name`)
		}
		p.pos++
		return tok, nil
	case Ident, Star:
		p.pos++
		return tok, nil
	case Comma, RParen, EOF, Colon, Bang, LParen:
		return Token{}, p.errorf(tok.Pos, "empty target name")
	}
	return Token{}, p.errorf(tok.Pos, "unexpected %s %q", tok.Kind, tok.Text)
}

func (p *parser) parseEmbed(name Token, alias string, mods []Token, spread bool, open Token) (Node, error) {
	if name.Kind == Star {
		return nil, p.errorf(name.Pos, "* cannot be embedded")
	}
	e := &Embed{Target: name.Text, Alias: alias, Spread: spread}
	switch len(mods) {
	case 0:
	case 1:
		if j, ok := parseJoinType(mods[0].Text); ok {
			e.Join = j
		} else {
			e.Hint = mods[0].Text
		}
	case 2:
		j, ok := parseJoinType(mods[1].Text)
		if !ok {
			return nil, p.errorf(mods[1].Pos, "unknown join type %q", mods[1].Text)
		}
		e.Hint, e.Join = mods[0].Text, j
	default:
		return nil, p.errorf(mods[2].Pos-1, "too many modifiers")
	}

	children, err := p.parseList(true)
	if err != nil {
		return nil, err
	}
	if closing := p.next(); closing.Kind != RParen {
		return nil, p.errorf(open.Pos, `unmatched "("`)
	}
	if dc := p.peek(); dc.Kind == DoubleColon {
		return nil, p.errorf(dc.Pos, "embedded resource %q cannot be cast", e.Key())
	}
	e.Children = children
	return e, nil
}

// parseAggregate handles name() where name is count or column.fn. Anything
// else followed by empty parentheses is an embed without children.
func (p *parser) parseAggregate(name Token, alias string, mods []Token, spread bool, open Token) (Node, error) {
	col, fn, ok := splitAggregate(name)
	if !ok || len(mods) > 0 || spread {
		return nil, p.errorf(open.Pos, "empty child list for %q", name.Text)
	}
	p.pos++ // )
	f := &Field{Name: col, Alias: alias, Aggregate: fn}
	cast, err := p.parseCast()
	if err != nil {
		return nil, err
	}
	f.Cast = cast
	return f, nil
}

func splitAggregate(name Token) (col, fn string, ok bool) {
	if name.Kind != Ident {
		return "", "", false
	}
	if name.Text == "count" {
		return "", "count", true
	}
	i := strings.LastIndexByte(name.Text, '.')
	if i <= 0 || !aggregates[name.Text[i+1:]] {
		return "", "", false
	}
	return name.Text[:i], name.Text[i+1:], true
}

func (p *parser) parseCast() (string, error) {
	dc := p.peek()
	if dc.Kind != DoubleColon {
		return "", nil
	}
	p.pos++
	typ := p.peek()
	if (typ.Kind != Ident && typ.Kind != Quoted) || typ.Text == "" {
		return "", p.errorf(dc.Pos, "malformed cast")
	}
	p.pos++
	return typ.Text, nil
}

func (p *parser) peek() Token {
	return p.toks[p.pos]
}

func (p *parser) next() Token {
	tok := p.toks[p.pos]
	if tok.Kind != EOF {
		p.pos++
	}
	return tok
}

func (p *parser) accept(k Kind) bool {
	if p.peek().Kind == k {
		p.pos++
		return true
	}
	return false
}

func (p *parser) errorf(pos int, format string, args ...any) *SyntaxError {
	return &SyntaxError{
		Segment: segmentAt(p.exp, pos),
		Msg:     fmt.Sprintf(format, args...),
		Pos:     pos,
	}
}
