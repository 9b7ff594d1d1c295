// Package parser implements the recursive-descent parser over the lexer's
// token stream, producing a spanned AST.
package parser

import (
	"fmt"

	"github.com/jinjacore/dbtjinja/internal/ast"
	"github.com/jinjacore/dbtjinja/internal/lexer"
)

// Error is a parse failure with filename+span attached, filling in
// location info on every error that lacks it.
type Error struct {
	Filename string
	Span     lexer.Span
	Msg      string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.Filename, e.Span.Start.Line, e.Span.Start.Col, e.Msg)
}

// Parser is a recursive-descent parser over a Lexer's token stream.
type Parser struct {
	lex      *lexer.Lexer
	filename string

	depth    int // recursion ceiling guard
	loopDepth int
	macroDepth int

	macroNames *macroArena
}

// macroArena interns synthesized macro names (test_foo, snapshot_foo, ...)
// so their lifetime matches the source.
type macroArena struct {
	names map[string]string
}

func newMacroArena() *macroArena { return &macroArena{names: make(map[string]string)} }

func (a *macroArena) intern(s string) string {
	if v, ok := a.names[s]; ok {
		return v
	}
	a.names[s] = s
	return s
}

func New(src, filename string, delim lexer.Delimiters) *Parser {
	return &Parser{
		lex:        lexer.New(src, filename, delim),
		filename:   filename,
		macroNames: newMacroArena(),
	}
}

// Parse lexes and parses the full template into a Template node.
func Parse(src, filename string, delim lexer.Delimiters) (*ast.Template, error) {
	p := New(src, filename, delim)
	return p.parseTemplate()
}

func (p *Parser) errorf(span lexer.Span, format string, args ...interface{}) error {
	return &Error{Filename: p.filename, Span: span, Msg: fmt.Sprintf(format, args...)}
}

func (p *Parser) enter() error {
	p.depth++
	if p.depth > 100 {
		return p.errorf(p.lex.Peek().Span, "recursion limit exceeded while parsing")
	}
	return nil
}

func (p *Parser) leave() { p.depth-- }

func (p *Parser) peek() lexer.Token { return p.lex.Peek() }
func (p *Parser) next() lexer.Token { return p.lex.Next() }

func (p *Parser) expect(tt lexer.TokenType, what string) (lexer.Token, error) {
	t := p.peek()
	if t.Type != tt {
		return t, p.errorf(t.Span, "expected %s, found %q", what, t.Literal)
	}
	return p.next(), nil
}

func (p *Parser) expectKeyword(kw string) error {
	t := p.peek()
	if t.Type != lexer.IDENT || t.Literal != kw {
		return p.errorf(t.Span, "expected keyword %q, found %q", kw, t.Literal)
	}
	p.next()
	return nil
}

func (p *Parser) atKeyword(kw string) bool {
	t := p.peek()
	return t.Type == lexer.IDENT && t.Literal == kw
}

// parseTemplate parses top-level {% %}/{{ }}/raw-data sequences until EOF.
func (p *Parser) parseTemplate() (*ast.Template, error) {
	start := p.peek().Span
	body, _, err := p.parseStmtsUntil()
	if err != nil {
		return nil, err
	}
	end := start
	if len(body) > 0 {
		end = body[len(body)-1].Span()
	}
	return &ast.Template{Spanned: ast.With(ast.NewSpan(start, end)), Body: body}, nil
}
