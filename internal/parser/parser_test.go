package parser

import (
	"testing"

	"github.com/jinjacore/dbtjinja/internal/ast"
	"github.com/jinjacore/dbtjinja/internal/lexer"
)

func parse(t *testing.T, src string) *ast.Template {
	t.Helper()
	tpl, err := Parse(src, "t", lexer.DefaultDelimiters())
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return tpl
}

func TestParsePlainText(t *testing.T) {
	tpl := parse(t, "hello world")
	if len(tpl.Body) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(tpl.Body))
	}
	raw, ok := tpl.Body[0].(*ast.EmitRaw)
	if !ok || raw.Data != "hello world" {
		t.Fatalf("expected EmitRaw(%q), got %#v", "hello world", tpl.Body[0])
	}
}

func TestParseVariableEmit(t *testing.T) {
	tpl := parse(t, "{{ name }}")
	emit, ok := tpl.Body[0].(*ast.EmitExpr)
	if !ok {
		t.Fatalf("expected EmitExpr, got %#v", tpl.Body[0])
	}
	v, ok := emit.Expr.(*ast.Var)
	if !ok || v.Name != "name" {
		t.Fatalf("expected Var(name), got %#v", emit.Expr)
	}
}

func TestParseBinaryExpression(t *testing.T) {
	tpl := parse(t, "{{ a + b }}")
	emit := tpl.Body[0].(*ast.EmitExpr)
	bin, ok := emit.Expr.(*ast.BinOp)
	if !ok || bin.Op != "+" {
		t.Fatalf("expected BinOp(+), got %#v", emit.Expr)
	}
}

func TestParseIfElif(t *testing.T) {
	tpl := parse(t, "{% if a %}x{% elif b %}y{% else %}z{% endif %}")
	ifc, ok := tpl.Body[0].(*ast.IfCond)
	if !ok {
		t.Fatalf("expected IfCond, got %#v", tpl.Body[0])
	}
	if len(ifc.Then) != 1 {
		t.Fatalf("expected 1 then-statement, got %d", len(ifc.Then))
	}
	elif, ok := ifc.Else[0].(*ast.IfCond)
	if !ok {
		t.Fatalf("expected the elif branch to be a nested IfCond, got %#v", ifc.Else)
	}
	if len(elif.Else) != 1 {
		t.Fatalf("expected the elif's else branch to hold the final else body")
	}
}

func TestParseForLoop(t *testing.T) {
	tpl := parse(t, "{% for x in items %}{{ x }}{% endfor %}")
	loop, ok := tpl.Body[0].(*ast.ForLoop)
	if !ok {
		t.Fatalf("expected ForLoop, got %#v", tpl.Body[0])
	}
	if len(loop.Target) != 1 || loop.Target[0] != "x" {
		t.Fatalf("expected loop target [x], got %v", loop.Target)
	}
	iterVar, ok := loop.Iter.(*ast.Var)
	if !ok || iterVar.Name != "items" {
		t.Fatalf("expected iter Var(items), got %#v", loop.Iter)
	}
}

func TestParseSetStatement(t *testing.T) {
	tpl := parse(t, "{% set total = 1 + 2 %}")
	set, ok := tpl.Body[0].(*ast.Set)
	if !ok {
		t.Fatalf("expected Set, got %#v", tpl.Body[0])
	}
	target, ok := set.Target.(*ast.Var)
	if !ok || target.Name != "total" {
		t.Fatalf("expected target Var(total), got %#v", set.Target)
	}
}

func TestParseStringLiteral(t *testing.T) {
	tpl := parse(t, `{{ "hi" }}`)
	emit := tpl.Body[0].(*ast.EmitExpr)
	c, ok := emit.Expr.(*ast.Const)
	if !ok || c.Kind != ast.ConstString || c.S != "hi" {
		t.Fatalf("expected Const(string, %q), got %#v", "hi", emit.Expr)
	}
}

func TestParseFilterChain(t *testing.T) {
	tpl := parse(t, "{{ name | upper | trim }}")
	emit := tpl.Body[0].(*ast.EmitExpr)
	outer, ok := emit.Expr.(*ast.Filter)
	if !ok || outer.Name != "trim" {
		t.Fatalf("expected outermost Filter(trim), got %#v", emit.Expr)
	}
	inner, ok := outer.Target.(*ast.Filter)
	if !ok || inner.Name != "upper" {
		t.Fatalf("expected inner Filter(upper) as trim's target, got %#v", outer.Target)
	}
	v, ok := inner.Target.(*ast.Var)
	if !ok || v.Name != "name" {
		t.Fatalf("expected Var(name) at the base of the chain, got %#v", inner.Target)
	}
}

func TestParseUnmatchedBlockIsAnError(t *testing.T) {
	_, err := Parse("{% if a %}no endif", "t", lexer.DefaultDelimiters())
	if err == nil {
		t.Fatalf("expected an error for an unterminated {%% if %%}")
	}
}
