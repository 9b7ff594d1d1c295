package parser

import (
	"strings"

	"github.com/jinjacore/dbtjinja/internal/ast"
	"github.com/jinjacore/dbtjinja/internal/lexer"
)

func contains(set []string, s string) bool {
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}

// parseStmtsUntil parses a sequence of statements until EOF (terminators
// empty) or until a `{% <terminator> %}` tag is seen, in which case it
// consumes the `{%` and the terminator keyword (but not anything after) and
// returns which terminator matched.
func (p *Parser) parseStmtsUntil(terminators ...string) ([]ast.Stmt, string, error) {
	if err := p.enter(); err != nil {
		return nil, "", err
	}
	defer p.leave()

	var stmts []ast.Stmt
	for {
		tok := p.peek()
		switch tok.Type {
		case lexer.EOF:
			if len(terminators) == 0 {
				return stmts, "", nil
			}
			return nil, "", p.errorf(tok.Span, "unexpected end of template, expected one of %v", terminators)

		case lexer.TEMPLATE_DATA:
			p.next()
			stmts = append(stmts, &ast.EmitRaw{Spanned: ast.With(tok.Span), Data: tok.Literal})

		case lexer.VAR_BEGIN:
			p.next()
			expr, err := p.parseExpr()
			if err != nil {
				return nil, "", err
			}
			endTok, err := p.expect(lexer.VAR_END, "}}")
			if err != nil {
				return nil, "", err
			}
			stmts = append(stmts, &ast.EmitExpr{Spanned: ast.With(ast.NewSpan(tok.Span, endTok.Span)), Expr: expr})

		case lexer.COMMENT_BEGIN:
			p.next()
			p.next() // swallow body + COMMENT_END; lexer discards comment text

		case lexer.BLOCK_BEGIN:
			p.next()
			nameTok := p.peek()
			if nameTok.Type == lexer.IDENT && contains(terminators, nameTok.Literal) {
				p.next()
				return stmts, nameTok.Literal, nil
			}
			stmt, err := p.parseTag(tok)
			if err != nil {
				return nil, "", err
			}
			if stmt != nil {
				stmts = append(stmts, stmt)
			}

		default:
			return nil, "", p.errorf(tok.Span, "unexpected token %q", tok.Literal)
		}
	}
}

// parseTag dispatches on the identifier immediately after `{%`.
// begin is the BLOCK_BEGIN token's span, used as the statement's start span.
func (p *Parser) parseTag(begin lexer.Token) (ast.Stmt, error) {
	nameTok, err := p.expect(lexer.IDENT, "tag name")
	if err != nil {
		return nil, err
	}
	switch nameTok.Literal {
	case "for":
		return p.parseFor(begin)
	case "if":
		return p.parseIf(begin)
	case "with":
		return p.parseWith(begin)
	case "set":
		return p.parseSet(begin)
	case "autoescape":
		return p.parseAutoEscape(begin)
	case "filter":
		return p.parseFilterBlock(begin)
	case "block":
		if p.macroDepth > 0 {
			return nil, p.errorf(nameTok.Span, "'block' is not allowed inside a macro body")
		}
		return p.parseBlock(begin)
	case "extends":
		return p.parseExtends(begin)
	case "include":
		return p.parseInclude(begin)
	case "import":
		return p.parseImport(begin)
	case "from":
		return p.parseFromImport(begin)
	case "macro":
		return p.parseMacro(begin, ast.MacroKindMacro)
	case "test":
		return p.parseMacro(begin, ast.MacroKindTest)
	case "snapshot":
		return p.parseMacro(begin, ast.MacroKindSnapshot)
	case "materialization":
		return p.parseMacro(begin, ast.MacroKindMaterialization)
	case "docs":
		return p.parseDocs(begin)
	case "call":
		return p.parseCallBlock(begin)
	case "do", "print":
		return p.parseDo(begin)
	case "break":
		if p.loopDepth == 0 {
			return nil, p.errorf(nameTok.Span, "'break' outside of a loop")
		}
		end, err := p.expect(lexer.BLOCK_END, "%}")
		if err != nil {
			return nil, err
		}
		return &ast.Break{Spanned: ast.With(ast.NewSpan(begin.Span, end.Span))}, nil
	case "continue":
		if p.loopDepth == 0 {
			return nil, p.errorf(nameTok.Span, "'continue' outside of a loop")
		}
		end, err := p.expect(lexer.BLOCK_END, "%}")
		if err != nil {
			return nil, err
		}
		return &ast.Continue{Spanned: ast.With(ast.NewSpan(begin.Span, end.Span))}, nil
	default:
		return nil, p.errorf(nameTok.Span, "unknown tag %q", nameTok.Literal)
	}
}

func (p *Parser) parseFor(begin lexer.Token) (ast.Stmt, error) {
	var targets []string
	for {
		id, err := p.expect(lexer.IDENT, "loop variable")
		if err != nil {
			return nil, err
		}
		targets = append(targets, id.Literal)
		if p.peek().Type == lexer.COMMA {
			p.next()
			continue
		}
		break
	}
	if err := p.expectKeyword("in"); err != nil {
		return nil, err
	}
	iter, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	recursive := false
	if p.atKeyword("recursive") {
		p.next()
		recursive = true
	}
	var filter ast.Expr
	if p.atKeyword("if") {
		p.next()
		filter, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(lexer.BLOCK_END, "%}"); err != nil {
		return nil, err
	}
	p.loopDepth++
	body, term, err := p.parseStmtsUntil("else", "endfor")
	p.loopDepth--
	if err != nil {
		return nil, err
	}
	var elseBody []ast.Stmt
	if term == "else" {
		if _, err := p.expect(lexer.BLOCK_END, "%}"); err != nil {
			return nil, err
		}
		elseBody, _, err = p.parseStmtsUntil("endfor")
		if err != nil {
			return nil, err
		}
	}
	end, err := p.expect(lexer.BLOCK_END, "%}")
	if err != nil {
		return nil, err
	}
	return &ast.ForLoop{
		Spanned: ast.With(ast.NewSpan(begin.Span, end.Span)),
		Target:  targets, Iter: iter, Body: body, Else: elseBody,
		Recursive: recursive, Filter: filter,
	}, nil
}

func (p *Parser) parseIf(begin lexer.Token) (*ast.IfCond, error) {
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.BLOCK_END, "%}"); err != nil {
		return nil, err
	}
	then, term, err := p.parseStmtsUntil("elif", "else", "endif")
	if err != nil {
		return nil, err
	}
	node := &ast.IfCond{Cond: cond, Then: then}
	switch term {
	case "elif":
		elif, err := p.parseIf(begin)
		if err != nil {
			return nil, err
		}
		node.Else = []ast.Stmt{elif}
		node.Spanned = ast.With(ast.NewSpan(begin.Span, elif.Span()))
		return node, nil
	case "else":
		if _, err := p.expect(lexer.BLOCK_END, "%}"); err != nil {
			return nil, err
		}
		elseBody, _, err := p.parseStmtsUntil("endif")
		if err != nil {
			return nil, err
		}
		node.Else = elseBody
	}
	end, err := p.expect(lexer.BLOCK_END, "%}")
	if err != nil {
		return nil, err
	}
	node.Spanned = ast.With(ast.NewSpan(begin.Span, end.Span))
	return node, nil
}

func (p *Parser) parseWith(begin lexer.Token) (ast.Stmt, error) {
	var names []string
	var values []ast.Expr
	for {
		id, err := p.expect(lexer.IDENT, "binding name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.ASSIGN, "="); err != nil {
			return nil, err
		}
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		names = append(names, id.Literal)
		values = append(values, v)
		if p.peek().Type == lexer.COMMA {
			p.next()
			continue
		}
		break
	}
	if _, err := p.expect(lexer.BLOCK_END, "%}"); err != nil {
		return nil, err
	}
	body, _, err := p.parseStmtsUntil("endwith")
	if err != nil {
		return nil, err
	}
	end, err := p.expect(lexer.BLOCK_END, "%}")
	if err != nil {
		return nil, err
	}
	return &ast.WithBlock{Spanned: ast.With(ast.NewSpan(begin.Span, end.Span)), Names: names, Values: values, Body: body}, nil
}

func (p *Parser) parseAssignTarget() (ast.Expr, error) {
	id, err := p.expect(lexer.IDENT, "assignment target")
	if err != nil {
		return nil, err
	}
	var target ast.Expr = &ast.Var{Spanned: ast.With(id.Span), Name: id.Literal}
	for {
		if p.peek().Type == lexer.DOT {
			p.next()
			attr, err := p.expect(lexer.IDENT, "attribute name")
			if err != nil {
				return nil, err
			}
			target = &ast.GetAttr{Spanned: ast.With(ast.NewSpan(target.Span(), attr.Span)), Target: target, Name: attr.Literal}
			continue
		}
		break
	}
	return target, nil
}

func (p *Parser) parseSet(begin lexer.Token) (ast.Stmt, error) {
	target, err := p.parseAssignTarget()
	if err != nil {
		return nil, err
	}
	filter := ""
	if p.peek().Type == lexer.PIPE {
		p.next()
		id, err := p.expect(lexer.IDENT, "filter name")
		if err != nil {
			return nil, err
		}
		filter = id.Literal
	}
	if p.peek().Type == lexer.ASSIGN {
		p.next()
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		end, err := p.expect(lexer.BLOCK_END, "%}")
		if err != nil {
			return nil, err
		}
		return &ast.Set{Spanned: ast.With(ast.NewSpan(begin.Span, end.Span)), Target: target, Value: val, Filter: filter}, nil
	}
	// `{% set name %}...{% endset %}` block form.
	if _, err := p.expect(lexer.BLOCK_END, "%}"); err != nil {
		return nil, err
	}
	body, _, err := p.parseStmtsUntil("endset")
	if err != nil {
		return nil, err
	}
	end, err := p.expect(lexer.BLOCK_END, "%}")
	if err != nil {
		return nil, err
	}
	return &ast.SetBlock{Spanned: ast.With(ast.NewSpan(begin.Span, end.Span)), Target: target, Body: body, Filter: filter}, nil
}

func (p *Parser) parseAutoEscape(begin lexer.Token) (ast.Stmt, error) {
	mode, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.BLOCK_END, "%}"); err != nil {
		return nil, err
	}
	body, _, err := p.parseStmtsUntil("endautoescape")
	if err != nil {
		return nil, err
	}
	end, err := p.expect(lexer.BLOCK_END, "%}")
	if err != nil {
		return nil, err
	}
	return &ast.AutoEscape{Spanned: ast.With(ast.NewSpan(begin.Span, end.Span)), Mode: mode, Body: body}, nil
}

func (p *Parser) parseFilterBlock(begin lexer.Token) (ast.Stmt, error) {
	id, err := p.expect(lexer.IDENT, "filter name")
	if err != nil {
		return nil, err
	}
	filterExpr, err := p.parseFilterChainFrom(id)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.BLOCK_END, "%}"); err != nil {
		return nil, err
	}
	body, _, err := p.parseStmtsUntil("endfilter")
	if err != nil {
		return nil, err
	}
	end, err := p.expect(lexer.BLOCK_END, "%}")
	if err != nil {
		return nil, err
	}
	return &ast.FilterBlock{Spanned: ast.With(ast.NewSpan(begin.Span, end.Span)), Filter: filterExpr, Body: body}, nil
}

func (p *Parser) parseBlock(begin lexer.Token) (ast.Stmt, error) {
	id, err := p.expect(lexer.IDENT, "block name")
	if err != nil {
		return nil, err
	}
	scoped, required := false, false
	for p.peek().Type == lexer.IDENT {
		switch p.peek().Literal {
		case "scoped":
			p.next()
			scoped = true
		case "required":
			p.next()
			required = true
		default:
			goto doneMods
		}
	}
doneMods:
	if _, err := p.expect(lexer.BLOCK_END, "%}"); err != nil {
		return nil, err
	}
	body, _, err := p.parseStmtsUntil("endblock")
	if err != nil {
		return nil, err
	}
	// optional trailing name after endblock
	if p.peek().Type == lexer.IDENT {
		p.next()
	}
	end, err := p.expect(lexer.BLOCK_END, "%}")
	if err != nil {
		return nil, err
	}
	return &ast.Block{Spanned: ast.With(ast.NewSpan(begin.Span, end.Span)), Name: id.Literal, Body: body, Scoped: scoped, Required: required}, nil
}

func (p *Parser) parseExtends(begin lexer.Token) (ast.Stmt, error) {
	tpl, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	end, err := p.expect(lexer.BLOCK_END, "%}")
	if err != nil {
		return nil, err
	}
	return &ast.Extends{Spanned: ast.With(ast.NewSpan(begin.Span, end.Span)), Template: tpl}, nil
}

func (p *Parser) parseIgnoreMissing() bool {
	if p.atKeyword("ignore") {
		p.next()
		if p.atKeyword("missing") {
			p.next()
		}
		return true
	}
	return false
}

func (p *Parser) parseInclude(begin lexer.Token) (ast.Stmt, error) {
	tpl, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	ignoreMissing := p.parseIgnoreMissing()
	withContext := true
	if p.atKeyword("without") {
		p.next()
		p.expectKeyword("context")
		withContext = false
	} else if p.atKeyword("with") {
		p.next()
		p.expectKeyword("context")
	}
	end, err := p.expect(lexer.BLOCK_END, "%}")
	if err != nil {
		return nil, err
	}
	return &ast.Include{Spanned: ast.With(ast.NewSpan(begin.Span, end.Span)), Template: tpl, IgnoreMissing: ignoreMissing, WithContext: withContext}, nil
}

func (p *Parser) parseImport(begin lexer.Token) (ast.Stmt, error) {
	tpl, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("as"); err != nil {
		return nil, err
	}
	name, err := p.expect(lexer.IDENT, "import alias")
	if err != nil {
		return nil, err
	}
	ignoreMissing := p.parseIgnoreMissing()
	end, err := p.expect(lexer.BLOCK_END, "%}")
	if err != nil {
		return nil, err
	}
	return &ast.Import{Spanned: ast.With(ast.NewSpan(begin.Span, end.Span)), Template: tpl, Name: name.Literal, IgnoreMissing: ignoreMissing}, nil
}

func (p *Parser) parseFromImport(begin lexer.Token) (ast.Stmt, error) {
	tpl, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("import"); err != nil {
		return nil, err
	}
	var names []ast.ImportedName
	for {
		id, err := p.expect(lexer.IDENT, "imported macro name")
		if err != nil {
			return nil, err
		}
		in := ast.ImportedName{Name: id.Literal}
		if p.atKeyword("as") {
			p.next()
			alias, err := p.expect(lexer.IDENT, "alias")
			if err != nil {
				return nil, err
			}
			in.Alias = alias.Literal
		}
		names = append(names, in)
		if p.peek().Type == lexer.COMMA {
			p.next()
			continue
		}
		break
	}
	ignoreMissing := p.parseIgnoreMissing()
	end, err := p.expect(lexer.BLOCK_END, "%}")
	if err != nil {
		return nil, err
	}
	return &ast.FromImport{Spanned: ast.With(ast.NewSpan(begin.Span, end.Span)), Template: tpl, Names: names, IgnoreMissing: ignoreMissing}, nil
}

// parseMacro parses `macro`/`test`/`snapshot`/`materialization` declarations
// and computes the internal name.
func (p *Parser) parseMacro(begin lexer.Token, kind ast.MacroKind) (ast.Stmt, error) {
	id, err := p.expect(lexer.IDENT, "name")
	if err != nil {
		return nil, err
	}
	name := id.Literal
	internal := name
	var args []ast.MacroArg

	switch kind {
	case ast.MacroKindMacro:
		var err error
		args, err = p.parseMacroArgs()
		if err != nil {
			return nil, err
		}
	case ast.MacroKindTest:
		internal = "test_" + name
		var err error
		args, err = p.parseMacroArgs()
		if err != nil {
			return nil, err
		}
	case ast.MacroKindSnapshot:
		internal = "snapshot_" + name
	case ast.MacroKindMaterialization:
		adapter := "default"
		if p.peek().Type == lexer.COMMA {
			p.next()
			for {
				kwID, err := p.expect(lexer.IDENT, "materialization option")
				if err != nil {
					return nil, err
				}
				if _, err := p.expect(lexer.ASSIGN, "="); err != nil {
					return nil, err
				}
				val, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				if kwID.Literal == "adapter" {
					if c, ok := val.(*ast.Const); ok && c.Kind == ast.ConstString {
						adapter = c.S
					}
				}
				if p.peek().Type == lexer.COMMA {
					p.next()
					continue
				}
				break
			}
		}
		internal = "materialization_" + name + "_" + adapter
	}

	p.macroNames.intern(internal)

	if _, err := p.expect(lexer.BLOCK_END, "%}"); err != nil {
		return nil, err
	}
	p.macroDepth++
	body, _, err := p.parseStmtsUntil("endmacro", "endtest", "endsnapshot", "endmaterialization")
	p.macroDepth--
	if err != nil {
		return nil, err
	}
	end, err := p.expect(lexer.BLOCK_END, "%}")
	if err != nil {
		return nil, err
	}
	return &ast.Macro{
		Spanned: ast.With(ast.NewSpan(begin.Span, end.Span)),
		Kind:    kind, Name: name, InternalName: internal, Args: args, Body: body,
	}, nil
}

func (p *Parser) parseMacroArgs() ([]ast.MacroArg, error) {
	if _, err := p.expect(lexer.LPAREN, "("); err != nil {
		return nil, err
	}
	var args []ast.MacroArg
	for p.peek().Type != lexer.RPAREN {
		id, err := p.expect(lexer.IDENT, "argument name")
		if err != nil {
			return nil, err
		}
		a := ast.MacroArg{Name: id.Literal}
		if p.peek().Type == lexer.ASSIGN {
			p.next()
			def, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			a.Default = def
		}
		args = append(args, a)
		if p.peek().Type == lexer.COMMA {
			p.next()
			continue
		}
		break
	}
	if _, err := p.expect(lexer.RPAREN, ")"); err != nil {
		return nil, err
	}
	return args, nil
}

// parseDocs captures a `docs name ... enddocs` body raw, force-advancing
// past whatever malformed tokens live inside.
func (p *Parser) parseDocs(begin lexer.Token) (ast.Stmt, error) {
	id, err := p.expect(lexer.IDENT, "docs name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.BLOCK_END, "%}"); err != nil {
		return nil, err
	}
	var raw strings.Builder
	for {
		t := p.peek()
		if t.Type == lexer.BLOCK_BEGIN {
			p.next()
			if p.peek().Type == lexer.IDENT && p.peek().Literal == "enddocs" {
				p.next()
				break
			}
			// Not the end tag: the body is "syntactically lawless" here,
			// so swallow tokens raw rather than trying to parse them.
			for p.peek().Type != lexer.BLOCK_END && p.peek().Type != lexer.EOF {
				raw.WriteString(p.peek().Literal)
				p.next()
			}
			continue
		}
		if t.Type == lexer.EOF {
			return nil, p.errorf(t.Span, "unterminated docs block")
		}
		raw.WriteString(t.Literal)
		p.next()
	}
	end, err := p.expect(lexer.BLOCK_END, "%}")
	if err != nil {
		return nil, err
	}
	internal := "docs_" + id.Literal
	p.macroNames.intern(internal)
	return &ast.Macro{
		Spanned: ast.With(ast.NewSpan(begin.Span, end.Span)),
		Kind:    ast.MacroKindDocs, Name: id.Literal, InternalName: internal, DocsRaw: raw.String(),
	}, nil
}

func (p *Parser) parseCallBlock(begin lexer.Token) (ast.Stmt, error) {
	// `{% call(a, b) macro(...) %}` caller-argument lists are not modeled
	// separately; the call expression itself is all codegen needs.
	call, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.BLOCK_END, "%}"); err != nil {
		return nil, err
	}
	body, _, err := p.parseStmtsUntil("endcall")
	if err != nil {
		return nil, err
	}
	end, err := p.expect(lexer.BLOCK_END, "%}")
	if err != nil {
		return nil, err
	}
	return &ast.CallBlock{Spanned: ast.With(ast.NewSpan(begin.Span, end.Span)), Call: call, Body: body}, nil
}

func (p *Parser) parseDo(begin lexer.Token) (ast.Stmt, error) {
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	end, err := p.expect(lexer.BLOCK_END, "%}")
	if err != nil {
		return nil, err
	}
	return &ast.Do{Spanned: ast.With(ast.NewSpan(begin.Span, end.Span)), Expr: e}, nil
}
