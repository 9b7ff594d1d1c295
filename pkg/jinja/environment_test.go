package jinja

import (
	"strings"
	"testing"

	"github.com/jinjacore/dbtjinja/internal/config"
	"github.com/jinjacore/dbtjinja/internal/value"
)

func newEnv(t *testing.T) *Environment {
	t.Helper()
	return New(config.Default())
}

func render(t *testing.T, src string, ctx map[string]interface{}) string {
	t.Helper()
	env := newEnv(t)
	tpl, err := env.FromString("t", src)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	out, err := tpl.Render(ctx)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	return out
}

func TestRenderVariableInterpolation(t *testing.T) {
	got := render(t, "hello {{ name }}", map[string]interface{}{"name": "world"})
	if got != "hello world" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderFilterChain(t *testing.T) {
	got := render(t, "{{ name | upper | trim }}", map[string]interface{}{"name": "  bolt  "})
	if got != "BOLT" {
		t.Fatalf("got %q, want %q", got, "BOLT")
	}
}

func TestRenderIfElse(t *testing.T) {
	src := "{% if n > 0 %}positive{% elif n == 0 %}zero{% else %}negative{% endif %}"
	if got := render(t, src, map[string]interface{}{"n": 5}); got != "positive" {
		t.Fatalf("got %q", got)
	}
	if got := render(t, src, map[string]interface{}{"n": 0}); got != "zero" {
		t.Fatalf("got %q", got)
	}
	if got := render(t, src, map[string]interface{}{"n": -1}); got != "negative" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderForLoop(t *testing.T) {
	src := "{% for x in items %}{{ x }},{% endfor %}"
	got := render(t, src, map[string]interface{}{"items": []interface{}{1, 2, 3}})
	if got != "1,2,3," {
		t.Fatalf("got %q", got)
	}
}

func TestRenderForLoopIndexAndLast(t *testing.T) {
	src := "{% for x in items %}{{ loop.index }}:{{ x }}{% if not loop.last %}|{% endif %}{% endfor %}"
	got := render(t, src, map[string]interface{}{"items": []interface{}{"a", "b"}})
	if got != "1:a|2:b" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderSetAndExpression(t *testing.T) {
	src := "{% set total = a + b %}{{ total }}"
	got := render(t, src, map[string]interface{}{"a": 2, "b": 3})
	if got != "5" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderMacro(t *testing.T) {
	src := "{% macro greet(name) %}hi {{ name }}{% endmacro %}{{ greet('bolt') }}"
	got := render(t, src, nil)
	if got != "hi bolt" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderUndefinedVariableIsEmptyByDefault(t *testing.T) {
	got := render(t, "[{{ missing }}]", nil)
	if got != "[]" {
		t.Fatalf("lenient undefined mode should render missing as empty, got %q", got)
	}
}

func TestRenderDictAndAttributeAccess(t *testing.T) {
	src := "{{ user.name }} is {{ user.age }}"
	got := render(t, src, map[string]interface{}{
		"user": map[string]interface{}{"name": "ada", "age": 36},
	})
	if got != "ada is 36" {
		t.Fatalf("got %q", got)
	}
}

func TestCheckTypesReportsUndeclaredGlobalUsage(t *testing.T) {
	env := newEnv(t)
	tpl, err := env.FromString("t", "{{ total + 1 }}")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	// `total` is neither a local nor a declared global, so the checker
	// reports the lookup as an unknown name.
	found := false
	for _, d := range tpl.CheckTypes() {
		if strings.Contains(d.Message, "unknown name total") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected CheckTypes to report the undeclared global total")
	}
}

func TestMapLoaderInclude(t *testing.T) {
	env := newEnv(t)
	loader := NewMapLoader(map[string]string{
		"partial.txt": "included",
	}, env.delim)
	env.SetLoader(loader)

	tpl, err := env.FromString("main", "before {% include 'partial.txt' %} after")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	out, err := tpl.Render(nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "included") {
		t.Fatalf("expected included partial content in output, got %q", out)
	}
}

func TestRenderMacroExplicitReturn(t *testing.T) {
	src := "{% macro f() %}{{ return(7) }}{% endmacro %}{% set v = f() %}{{ v }}"
	got := render(t, src, nil)
	if got != "7" {
		t.Fatalf("got %q, want %q", got, "7")
	}
}

func TestRenderMacroExplicitReturnDiscardsCapturedOutput(t *testing.T) {
	src := "{% macro f() %}before{{ return('x') }}after{% endmacro %}[{{ f() }}]"
	got := render(t, src, nil)
	if got != "[x]" {
		t.Fatalf("expected return() to discard the macro's own emitted text, got %q", got)
	}
}

func TestRenderMacroWithoutReturnYieldsCapturedBody(t *testing.T) {
	src := "{% macro greet(name) %}hi {{ name }}{% endmacro %}{% set v = greet('bolt') %}[{{ v }}]"
	got := render(t, src, nil)
	if got != "[hi bolt]" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderCallBlockAndCaller(t *testing.T) {
	src := "{% macro wrap() %}<{{ caller() }}>{% endmacro %}{% call wrap() %}inner{% endcall %}"
	got := render(t, src, nil)
	if got != "<inner>" {
		t.Fatalf("got %q, want %q", got, "<inner>")
	}
}

func TestRenderShortCircuitAndPreservesOperand(t *testing.T) {
	got := render(t, "{{ a and b }}", map[string]interface{}{"a": 0, "b": "unused"})
	if got != "0" {
		t.Fatalf("`and` should short-circuit to the falsy left operand's own value, got %q", got)
	}
	got = render(t, "{{ a and b }}", map[string]interface{}{"a": "left", "b": "right"})
	if got != "right" {
		t.Fatalf("`and` with a truthy left operand should yield the right operand, got %q", got)
	}
}

func TestRenderShortCircuitOrPreservesOperand(t *testing.T) {
	got := render(t, "{{ a or b }}", map[string]interface{}{"a": "", "b": "fallback"})
	if got != "fallback" {
		t.Fatalf("`or` should fall through to the right operand when the left is falsy, got %q", got)
	}
	got = render(t, "{{ a or b }}", map[string]interface{}{"a": "present", "b": "unused"})
	if got != "present" {
		t.Fatalf("`or` with a truthy left operand should short-circuit to it untouched, got %q", got)
	}
}

func TestRenderFilterBlock(t *testing.T) {
	src := "{% filter upper %}hi {{ name }}{% endfilter %}"
	got := render(t, src, map[string]interface{}{"name": "bolt"})
	if got != "HI BOLT" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderSetBlock(t *testing.T) {
	src := "{% set greeting %}hello {{ name }}{% endset %}{{ greeting }}, {{ greeting }}"
	got := render(t, src, map[string]interface{}{"name": "bolt"})
	if got != "hello bolt, hello bolt" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderExtendsAndSuper(t *testing.T) {
	env := newEnv(t)
	loader := NewMapLoader(map[string]string{
		"base.txt": "[{% block body %}base{% endblock %}]",
	}, env.delim)
	env.SetLoader(loader)

	tpl, err := env.FromString("child", "{% extends 'base.txt' %}{% block body %}child-{{ super() }}{% endblock %}")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	out, err := tpl.Render(nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "[child-base]" {
		t.Fatalf("got %q, want %q", out, "[child-base]")
	}
}

func TestRenderImport(t *testing.T) {
	env := newEnv(t)
	loader := NewMapLoader(map[string]string{
		"lib.txt": "{% macro greet(name) %}hi {{ name }}{% endmacro %}",
	}, env.delim)
	env.SetLoader(loader)

	tpl, err := env.FromString("main", "{% import 'lib.txt' as lib %}{{ lib.greet('bolt') }}")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	out, err := tpl.Render(nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "hi bolt" {
		t.Fatalf("got %q, want %q", out, "hi bolt")
	}
}

func TestRenderFromImport(t *testing.T) {
	env := newEnv(t)
	loader := NewMapLoader(map[string]string{
		"lib.txt": "{% macro greet(name) %}hi {{ name }}{% endmacro %}{% macro bye(name) %}bye {{ name }}{% endmacro %}",
	}, env.delim)
	env.SetLoader(loader)

	tpl, err := env.FromString("main", "{% from 'lib.txt' import greet, bye as farewell %}{{ greet('bolt') }}/{{ farewell('bolt') }}")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	out, err := tpl.Render(nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "hi bolt/bye bolt" {
		t.Fatalf("got %q, want %q", out, "hi bolt/bye bolt")
	}
}

func TestRenderRefInjectsLocationKwarg(t *testing.T) {
	env := newEnv(t)
	var gotLine int64 = -1
	env.RegisterFunction("ref", func(args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
		if kwargs == nil {
			t.Fatalf("ref() was called with no kwargs at all")
		}
		loc, ok := kwargs.Get(value.Obj(value.NewString("location")))
		if !ok {
			t.Fatalf("ref() kwargs carried no location entry")
		}
		m, ok := loc.AsObject().(*value.Map)
		if !ok {
			t.Fatalf("location value was not a map, got %T", loc.AsObject())
		}
		line, ok := m.Get(value.Obj(value.NewString("line")))
		if !ok {
			t.Fatalf("location map carried no line entry")
		}
		gotLine = line.AsInt()
		return value.Obj(value.NewString("resolved")), nil
	})
	tpl, err := env.FromString("t", "\n{{ ref('my_model') }}")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	out, err := tpl.Render(nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "\nresolved" {
		t.Fatalf("got %q", out)
	}
	if gotLine != 2 {
		t.Fatalf("expected the location kwarg's line to point at the ref() call site (line 2), got %d", gotLine)
	}
}

func TestRenderBuiltinRenderCompilesAndRendersItsArgument(t *testing.T) {
	got := render(t, "{{ render('select ' ~ col) }}", map[string]interface{}{"col": "1"})
	if got != "select 1" {
		t.Fatalf("got %q, want %q", got, "select 1")
	}
}

func TestRenderPackageNamespaceDispatch(t *testing.T) {
	env := newEnv(t)
	if err := env.RegisterPackageTemplate("my_pkg", "{% macro helper(x) %}got {{ x }}{% endmacro %}"); err != nil {
		t.Fatalf("RegisterPackageTemplate: %v", err)
	}

	t.Run("qualified call", func(t *testing.T) {
		tpl, err := env.FromString("t", "{{ my_pkg.helper('a') }}")
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		out, err := tpl.Render(nil)
		if err != nil {
			t.Fatalf("render: %v", err)
		}
		if out != "got a" {
			t.Fatalf("got %q", out)
		}
	})

	t.Run("unqualified call falls through to current package", func(t *testing.T) {
		env.SetCurrentPackage("my_pkg")
		tpl, err := env.FromString("t2", "{{ helper('b') }}")
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		out, err := tpl.Render(nil)
		if err != nil {
			t.Fatalf("render: %v", err)
		}
		if out != "got b" {
			t.Fatalf("got %q", out)
		}
	})
}

func TestRegisterGlobalVisibleInTemplate(t *testing.T) {
	env := newEnv(t)
	if err := env.RegisterGlobal("site", "dbtjinja"); err != nil {
		t.Fatalf("RegisterGlobal: %v", err)
	}
	tpl, err := env.FromString("t", "{{ site }}")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	out, err := tpl.Render(nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "dbtjinja" {
		t.Fatalf("got %q", out)
	}
}
