package selectexpr

import (
	"fmt"
	"strings"
)

// Kind identifies the syntactic class of a Token.
type Kind int

const (
	EOF         Kind = iota
	Ident            // bare identifier, may contain '.', '-', '>' (json paths, aggregates)
	Quoted           // "double quoted" identifier, Text holds the unquoted value
	Star             // *
	Comma            // ,
	Colon            // :
	DoubleColon      // ::
	Bang             // !
	LParen           // (
	RParen           // )
	Spread           // ...
)

var kindNames = [...]string{
	EOF:         "end of input",
	Ident:       "identifier",
	Quoted:      "quoted identifier",
	Star:        `"*"`,
	Comma:       `","`,
	Colon:       `":"`,
	DoubleColon: `"::"`,
	Bang:        `"!"`,
	LParen:      `"("`,
	RParen:      `")"`,
	Spread:      `"..."`,
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Token is one syntactic unit of a select expression. Pos and End are byte
// offsets into the scanned expression.
type Token struct {
	Kind Kind
	Text string
	Pos  int
	End  int
}

// SyntaxError reports a malformed select expression.
type SyntaxError struct {
	Segment string // offending segment, verbatim
	Msg     string
	Pos     int // byte offset in the full expression
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("selectexpr: %s at char %d in %q", e.Msg, e.Pos, e.Segment)
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}

// isIdentChar reports whether c may appear in a bare identifier. Everything
// that is not whitespace or a grammar character is accepted so that json
// paths (data->a->>b), array casts (text[]) and aggregates (col.sum) scan as
// a single token.
func isIdentChar(c byte) bool {
	if isSpace(c) {
		return false
	}
	switch c {
	case ',', '(', ')', ':', '!', '"', '*':
		return false
	}
	return true
}

type scanner struct {
	exp    string
	pos    int
	parens []int // offsets of currently open parentheses
}

// Scan splits a select expression into tokens. Whitespace outside of quotes
// is dropped. The returned slice always ends with an EOF token.
//
// Scan fails on unbalanced parentheses and unterminated quotes.
func Scan(exp string) ([]Token, error) {
	s := &scanner{exp: exp}
	var toks []Token
	for {
		tok, err := s.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Kind == EOF {
			return toks, nil
		}
	}
}

func (s *scanner) next() (Token, error) {
	for s.pos < len(s.exp) && isSpace(s.exp[s.pos]) {
		s.pos++
	}
	start := s.pos
	if start >= len(s.exp) {
		if n := len(s.parens); n > 0 {
			return Token{}, s.errorf(s.parens[n-1], `unmatched "("`)
		}
		return Token{Kind: EOF, Pos: start, End: start}, nil
	}

	c := s.exp[start]
	switch c {
	case ',':
		return s.emit(Comma, 1), nil
	case '*':
		return s.emit(Star, 1), nil
	case '!':
		return s.emit(Bang, 1), nil
	case ':':
		if strings.HasPrefix(s.exp[start:], "::") {
			return s.emit(DoubleColon, 2), nil
		}
		return s.emit(Colon, 1), nil
	case '(':
		s.parens = append(s.parens, start)
		return s.emit(LParen, 1), nil
	case ')':
		if len(s.parens) == 0 {
			return Token{}, s.errorf(start, `unmatched ")"`)
		}
		s.parens = s.parens[:len(s.parens)-1]
		return s.emit(RParen, 1), nil
	case '"':
		return s.scanQuoted()
	}

	if strings.HasPrefix(s.exp[start:], "...") {
		return s.emit(Spread, 3), nil
	}

	end := start
	for end < len(s.exp) && isIdentChar(s.exp[end]) {
		end++
	}
	s.pos = end
	return Token{Kind: Ident, Text: s.exp[start:end], Pos: start, End: end}, nil
}

func (s *scanner) emit(kind Kind, width int) Token {
	tok := Token{Kind: kind, Text: s.exp[s.pos : s.pos+width], Pos: s.pos, End: s.pos + width}
	s.pos += width
	return tok
}

// scanQuoted reads a double quoted identifier. Backslash escapes the next
// character.
func (s *scanner) scanQuoted() (Token, error) {
	start := s.pos
	var b strings.Builder
	escaped := false
	for i := start + 1; i < len(s.exp); i++ {
		c := s.exp[i]
		switch {
		case escaped:
			b.WriteByte(c)
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			s.pos = i + 1
			return Token{Kind: Quoted, Text: b.String(), Pos: start, End: s.pos}, nil
		default:
			b.WriteByte(c)
		}
	}
	return Token{}, s.errorf(start, "unterminated quoted identifier")
}

func (s *scanner) errorf(pos int, format string, args ...any) *SyntaxError {
	return &SyntaxError{
		Segment: segmentAt(s.exp, pos),
		Msg:     fmt.Sprintf(format, args...),
		Pos:     pos,
	}
}

// Segments returns the top-level comma separated segments of exp with
// surrounding whitespace trimmed. Commas nested in parentheses or quotes are
// part of their segment.
func Segments(exp string) ([]string, error) {
	toks, err := Scan(exp)
	if err != nil {
		return nil, err
	}
	var segs []string
	depth := 0
	start := -1
	end := 0
	for _, tok := range toks {
		switch tok.Kind {
		case LParen:
			depth++
		case RParen:
			depth--
		}
		if (tok.Kind == Comma && depth == 0) || tok.Kind == EOF {
			if start >= 0 {
				segs = append(segs, exp[start:end])
			} else if tok.Kind == Comma || len(segs) > 0 {
				segs = append(segs, "")
			}
			start = -1
			continue
		}
		if start < 0 {
			start = tok.Pos
		}
		end = tok.End
	}
	return segs, nil
}

// segmentAt returns the top-level segment of exp that contains pos. It does
// not validate exp and is only used to describe errors.
func segmentAt(exp string, pos int) string {
	depth := 0
	quoted := false
	start := 0
	for i := 0; i < len(exp); i++ {
		c := exp[i]
		switch {
		case quoted:
			if c == '\\' {
				i++
			} else if c == '"' {
				quoted = false
			}
		case c == '"':
			quoted = true
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == ',' && depth <= 0:
			if i >= pos {
				return strings.TrimSpace(exp[start:i])
			}
			start = i + 1
		}
	}
	return strings.TrimSpace(exp[start:])
}
