package parser

import (
	"strconv"

	"github.com/jinjacore/dbtjinja/internal/ast"
	"github.com/jinjacore/dbtjinja/internal/lexer"
)

// parseExpr is the precedence-cascade entry point:
// ifexpr ← or ← and ← not ← compare ← math1 ← concat ← math2 ← pow ← unary ← primary
func (p *Parser) parseExpr() (ast.Expr, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	return p.parseIfExpr()
}

func (p *Parser) parseIfExpr() (ast.Expr, error) {
	then, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.atKeyword("if") {
		return then, nil
	}
	p.next()
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	var elseExpr ast.Expr
	if p.atKeyword("else") {
		p.next()
		elseExpr, err = p.parseIfExpr()
		if err != nil {
			return nil, err
		}
	}
	end := cond.Span()
	if elseExpr != nil {
		end = elseExpr.Span()
	}
	return &ast.IfExpr{Spanned: ast.With(ast.NewSpan(then.Span(), end)), Cond: cond, Then: then, Else: elseExpr}, nil
}

func (p *Parser) parseOr() (ast.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("or") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &ast.BinOp{Spanned: ast.With(ast.NewSpan(left.Span(), right.Span())), Op: "or", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (ast.Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("and") {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &ast.BinOp{Spanned: ast.With(ast.NewSpan(left.Span(), right.Span())), Op: "and", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (ast.Expr, error) {
	if p.atKeyword("not") {
		start := p.peek().Span
		p.next()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryOp{Spanned: ast.With(ast.NewSpan(start, operand.Span())), Op: "not", Expr: operand}, nil
	}
	return p.parseCompare()
}

var compareOps = map[lexer.TokenType]string{
	lexer.EQ: "==", lexer.NE: "!=", lexer.LT: "<", lexer.LE: "<=", lexer.GT: ">", lexer.GE: ">=",
}

func (p *Parser) parseCompare() (ast.Expr, error) {
	left, err := p.parseMath1()
	if err != nil {
		return nil, err
	}
	for {
		if op, ok := compareOps[p.peek().Type]; ok {
			p.next()
			right, err := p.parseMath1()
			if err != nil {
				return nil, err
			}
			left = &ast.BinOp{Spanned: ast.With(ast.NewSpan(left.Span(), right.Span())), Op: op, Left: left, Right: right}
			continue
		}
		if p.atKeyword("in") {
			p.next()
			right, err := p.parseMath1()
			if err != nil {
				return nil, err
			}
			left = &ast.BinOp{Spanned: ast.With(ast.NewSpan(left.Span(), right.Span())), Op: "in", Left: left, Right: right}
			continue
		}
		if p.atKeyword("not") {
			// `not in` — only consume if followed by `in`.
			save := *p.lex
			p.next()
			if p.atKeyword("in") {
				p.next()
				right, err := p.parseMath1()
				if err != nil {
					return nil, err
				}
				inOp := &ast.BinOp{Spanned: ast.With(ast.NewSpan(left.Span(), right.Span())), Op: "in", Left: left, Right: right}
				left = &ast.UnaryOp{Spanned: inOp.Spanned, Op: "not", Expr: inOp}
				continue
			}
			*p.lex = save
		}
		if p.atKeyword("is") {
			var err error
			left, err = p.parseTest(left)
			if err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	return left, nil
}

func (p *Parser) parseTest(target ast.Expr) (ast.Expr, error) {
	p.next() // "is"
	not := false
	if p.atKeyword("not") {
		p.next()
		not = true
	}
	id, err := p.expect(lexer.IDENT, "test name")
	if err != nil {
		return nil, err
	}
	var args []ast.Expr
	var kwargs []ast.KwArg
	end := id.Span
	if p.peek().Type == lexer.LPAREN {
		args, kwargs, end, err = p.parseCallArgs()
		if err != nil {
			return nil, err
		}
	} else if canStartExpr(p.peek()) {
		// `is divisibleby 3` — a single bare argument without parens.
		arg, err := p.parseMath1()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		end = arg.Span()
	}
	return &ast.Test{Spanned: ast.With(ast.NewSpan(target.Span(), end)), Target: target, Name: id.Literal, Not: not, Args: args, Kwargs: kwargs}, nil
}

func canStartExpr(t lexer.Token) bool {
	switch t.Type {
	case lexer.IDENT, lexer.INT, lexer.FLOAT, lexer.BIGINT, lexer.STRING, lexer.MINUS, lexer.LPAREN, lexer.LBRACKET, lexer.LBRACE:
		return true
	}
	return false
}

func (p *Parser) parseMath1() (ast.Expr, error) {
	left, err := p.parseConcat()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == lexer.PLUS || p.peek().Type == lexer.MINUS {
		op := "+"
		if p.peek().Type == lexer.MINUS {
			op = "-"
		}
		p.next()
		right, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		left = &ast.BinOp{Spanned: ast.With(ast.NewSpan(left.Span(), right.Span())), Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseConcat() (ast.Expr, error) {
	left, err := p.parseMath2()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == lexer.TILDE {
		p.next()
		right, err := p.parseMath2()
		if err != nil {
			return nil, err
		}
		left = &ast.BinOp{Spanned: ast.With(ast.NewSpan(left.Span(), right.Span())), Op: "~", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMath2() (ast.Expr, error) {
	left, err := p.parsePow()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch p.peek().Type {
		case lexer.STAR:
			op = "*"
		case lexer.SLASH:
			op = "/"
		case lexer.SLASHSLASH:
			op = "//"
		case lexer.PERCENT:
			op = "%"
		default:
			return left, nil
		}
		p.next()
		right, err := p.parsePow()
		if err != nil {
			return nil, err
		}
		left = &ast.BinOp{Spanned: ast.With(ast.NewSpan(left.Span(), right.Span())), Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parsePow() (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.peek().Type == lexer.STARSTAR {
		p.next()
		right, err := p.parsePow() // right-associative
		if err != nil {
			return nil, err
		}
		return &ast.BinOp{Spanned: ast.With(ast.NewSpan(left.Span(), right.Span())), Op: "**", Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *Parser) parseUnary() (ast.Expr, error) {
	if p.peek().Type == lexer.MINUS {
		start := p.peek().Span
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryOp{Spanned: ast.With(ast.NewSpan(start, operand.Span())), Op: "-", Expr: operand}, nil
	}
	return p.parsePostfix(nil)
}

// parsePostfix parses a primary expression (unless seed is non-nil, in
// which case seed is the already-parsed base) followed by any chain of
// `.attr`, `[index]`, `[start:stop:step]`, `(args)`, filters and tests.
func (p *Parser) parsePostfix(seed ast.Expr) (ast.Expr, error) {
	var e ast.Expr
	var err error
	if seed != nil {
		e = seed
	} else {
		e, err = p.parsePrimary()
		if err != nil {
			return nil, err
		}
	}
	for {
		switch p.peek().Type {
		case lexer.DOT:
			p.next()
			id, err := p.expect(lexer.IDENT, "attribute name")
			if err != nil {
				return nil, err
			}
			e = &ast.GetAttr{Spanned: ast.With(ast.NewSpan(e.Span(), id.Span)), Target: e, Name: id.Literal}
		case lexer.LBRACKET:
			e, err = p.parseIndexOrSlice(e)
			if err != nil {
				return nil, err
			}
		case lexer.LPAREN:
			args, kwargs, splat, kwsplat, end, err := p.parseFullCallArgs()
			if err != nil {
				return nil, err
			}
			e = &ast.Call{Spanned: ast.With(ast.NewSpan(e.Span(), end)), Callee: e, Args: args, Kwargs: kwargs, ArgSplat: splat, KwargSplat: kwsplat}
		case lexer.PIPE:
			p.next()
			id, err := p.expect(lexer.IDENT, "filter name")
			if err != nil {
				return nil, err
			}
			var args []ast.Expr
			var kwargs []ast.KwArg
			end := id.Span
			if p.peek().Type == lexer.LPAREN {
				args, kwargs, end, err = p.parseCallArgs()
				if err != nil {
					return nil, err
				}
			}
			e = &ast.Filter{Spanned: ast.With(ast.NewSpan(e.Span(), end)), Target: e, Name: id.Literal, Args: args, Kwargs: kwargs}
		default:
			return e, nil
		}
	}
}

// parseFilterChainFrom builds a filter chain whose first link's name token
// was already consumed by the caller (used by `{% filter %}` blocks, which
// write the filter name before the usual `|`). The chain's innermost Target
// is left nil; codegen supplies the captured block body there.
func (p *Parser) parseFilterChainFrom(nameTok lexer.Token) (ast.Expr, error) {
	var e ast.Expr
	if p.peek().Type == lexer.LPAREN {
		args, kwargs, end, err := p.parseCallArgs()
		if err != nil {
			return nil, err
		}
		e = &ast.Filter{Spanned: ast.With(ast.NewSpan(nameTok.Span, end)), Target: nil, Name: nameTok.Literal, Args: args, Kwargs: kwargs}
	} else {
		e = &ast.Filter{Spanned: ast.With(nameTok.Span), Target: nil, Name: nameTok.Literal}
	}
	for p.peek().Type == lexer.PIPE {
		p.next()
		id, err := p.expect(lexer.IDENT, "filter name")
		if err != nil {
			return nil, err
		}
		var args []ast.Expr
		var kwargs []ast.KwArg
		end := id.Span
		if p.peek().Type == lexer.LPAREN {
			args, kwargs, end, err = p.parseCallArgs()
			if err != nil {
				return nil, err
			}
		}
		e = &ast.Filter{Spanned: ast.With(ast.NewSpan(e.Span(), end)), Target: e, Name: id.Literal, Args: args, Kwargs: kwargs}
	}
	return e, nil
}

func (p *Parser) parseIndexOrSlice(target ast.Expr) (ast.Expr, error) {
	p.next() // [
	var start, stop, step ast.Expr
	var err error
	isSlice := false
	if p.peek().Type != lexer.COLON {
		start, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	if p.peek().Type == lexer.COLON {
		isSlice = true
		p.next()
		if p.peek().Type != lexer.COLON && p.peek().Type != lexer.RBRACKET {
			stop, err = p.parseExpr()
			if err != nil {
				return nil, err
			}
		}
		if p.peek().Type == lexer.COLON {
			p.next()
			if p.peek().Type != lexer.RBRACKET {
				step, err = p.parseExpr()
				if err != nil {
					return nil, err
				}
			}
		}
	}
	end, err := p.expect(lexer.RBRACKET, "]")
	if err != nil {
		return nil, err
	}
	if isSlice {
		return &ast.Slice{Spanned: ast.With(ast.NewSpan(target.Span(), end.Span)), Target: target, Start: start, Stop: stop, Step: step}, nil
	}
	return &ast.GetItem{Spanned: ast.With(ast.NewSpan(target.Span(), end.Span)), Target: target, Index: start}, nil
}

// parseCallArgs parses `(args)` and returns only positional/keyword args
// (used by filters/tests, which never take splats).
func (p *Parser) parseCallArgs() ([]ast.Expr, []ast.KwArg, lexer.Span, error) {
	args, kwargs, _, _, end, err := p.parseFullCallArgs()
	return args, kwargs, end, err
}

// parseFullCallArgs parses `(arg, *splat, name=val, **kwsplat)`:
// positional, then keyword, with non-keyword after keyword rejected.
func (p *Parser) parseFullCallArgs() ([]ast.Expr, []ast.KwArg, ast.Expr, ast.Expr, lexer.Span, error) {
	if _, err := p.expect(lexer.LPAREN, "("); err != nil {
		return nil, nil, nil, nil, lexer.Span{}, err
	}
	var args []ast.Expr
	var kwargs []ast.KwArg
	var argSplat, kwSplat ast.Expr
	seenKeyword := false
	for p.peek().Type != lexer.RPAREN {
		if p.peek().Type == lexer.STARSTAR {
			p.next()
			e, err := p.parseExpr()
			if err != nil {
				return nil, nil, nil, nil, lexer.Span{}, err
			}
			kwSplat = e
		} else if p.peek().Type == lexer.STAR {
			p.next()
			e, err := p.parseExpr()
			if err != nil {
				return nil, nil, nil, nil, lexer.Span{}, err
			}
			argSplat = e
		} else if p.peek().Type == lexer.IDENT && p.isKeywordArg() {
			id, _ := p.expect(lexer.IDENT, "keyword name")
			p.next() // =
			v, err := p.parseExpr()
			if err != nil {
				return nil, nil, nil, nil, lexer.Span{}, err
			}
			kwargs = append(kwargs, ast.KwArg{Name: id.Literal, Value: v})
			seenKeyword = true
		} else {
			if seenKeyword {
				return nil, nil, nil, nil, lexer.Span{}, p.errorf(p.peek().Span, "positional argument follows keyword argument")
			}
			e, err := p.parseExpr()
			if err != nil {
				return nil, nil, nil, nil, lexer.Span{}, err
			}
			args = append(args, e)
		}
		if p.peek().Type == lexer.COMMA {
			p.next()
			continue
		}
		break
	}
	end, err := p.expect(lexer.RPAREN, ")")
	if err != nil {
		return nil, nil, nil, nil, lexer.Span{}, err
	}
	return args, kwargs, argSplat, kwSplat, end.Span, nil
}

// isKeywordArg peeks two tokens ahead without consuming: IDENT followed by
// `=` (not `==`) signals a keyword argument.
func (p *Parser) isKeywordArg() bool {
	save := *p.lex
	p.next() // consume the ident speculatively
	isKw := p.peek().Type == lexer.ASSIGN
	*p.lex = save
	return isKw
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	t := p.peek()
	switch t.Type {
	case lexer.INT:
		p.next()
		n, _ := strconv.ParseInt(t.Literal, 10, 64)
		return &ast.Const{Spanned: ast.With(t.Span), Kind: ast.ConstInt, I: n}, nil
	case lexer.BIGINT:
		p.next()
		return &ast.Const{Spanned: ast.With(t.Span), Kind: ast.ConstBigInt, Big: t.Literal}, nil
	case lexer.FLOAT:
		p.next()
		f, _ := strconv.ParseFloat(t.Literal, 64)
		return &ast.Const{Spanned: ast.With(t.Span), Kind: ast.ConstFloat, F: f}, nil
	case lexer.STRING:
		p.next()
		return &ast.Const{Spanned: ast.With(t.Span), Kind: ast.ConstString, S: t.Literal}, nil
	case lexer.LPAREN:
		p.next()
		first, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.peek().Type == lexer.COMMA {
			items := []ast.Expr{first}
			for p.peek().Type == lexer.COMMA {
				p.next()
				if p.peek().Type == lexer.RPAREN {
					break
				}
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				items = append(items, e)
			}
			end, err := p.expect(lexer.RPAREN, ")")
			if err != nil {
				return nil, err
			}
			return &ast.Tuple{Spanned: ast.With(ast.NewSpan(t.Span, end.Span)), Items: items}, nil
		}
		if _, err := p.expect(lexer.RPAREN, ")"); err != nil {
			return nil, err
		}
		return first, nil
	case lexer.LBRACKET:
		return p.parseListLit(t)
	case lexer.LBRACE:
		return p.parseMapLit(t)
	case lexer.IDENT:
		return p.parseIdentPrimary(t)
	default:
		return nil, p.errorf(t.Span, "unexpected token %q", t.Literal)
	}
}

func (p *Parser) parseIdentPrimary(t lexer.Token) (ast.Expr, error) {
	switch t.Literal {
	case "true", "True":
		p.next()
		return &ast.Const{Spanned: ast.With(t.Span), Kind: ast.ConstBool, B: true}, nil
	case "false", "False":
		p.next()
		return &ast.Const{Spanned: ast.With(t.Span), Kind: ast.ConstBool, B: false}, nil
	case "none", "None", "null":
		p.next()
		return &ast.Const{Spanned: ast.With(t.Span), Kind: ast.ConstNone}, nil
	case "undefined":
		p.next()
		return &ast.Const{Spanned: ast.With(t.Span), Kind: ast.ConstUndefined}, nil
	}
	p.next()
	return &ast.Var{Spanned: ast.With(t.Span), Name: t.Literal}, nil
}

func (p *Parser) parseListLit(t lexer.Token) (ast.Expr, error) {
	p.next()
	var items []ast.Expr
	for p.peek().Type != lexer.RBRACKET {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, e)
		if p.peek().Type == lexer.COMMA {
			p.next()
			continue
		}
		break
	}
	end, err := p.expect(lexer.RBRACKET, "]")
	if err != nil {
		return nil, err
	}
	return &ast.List{Spanned: ast.With(ast.NewSpan(t.Span, end.Span)), Items: items}, nil
}

func (p *Parser) parseMapLit(t lexer.Token) (ast.Expr, error) {
	p.next()
	var keys, values []ast.Expr
	for p.peek().Type != lexer.RBRACE {
		k, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.COLON, ":"); err != nil {
			return nil, err
		}
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
		values = append(values, v)
		if p.peek().Type == lexer.COMMA {
			p.next()
			continue
		}
		break
	}
	end, err := p.expect(lexer.RBRACE, "}")
	if err != nil {
		return nil, err
	}
	return &ast.MapLit{Spanned: ast.With(ast.NewSpan(t.Span, end.Span)), Keys: keys, Values: values}, nil
}
