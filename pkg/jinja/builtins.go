package jinja

import (
	"fmt"

	"github.com/jinjacore/dbtjinja/internal/argparser"
	"github.com/jinjacore/dbtjinja/internal/builtins"
	"github.com/jinjacore/dbtjinja/internal/value"
)

// registerBuiltins installs the default filter/test/function set. A host
// can still override any entry by calling Register* again with the same
// name.
func registerBuiltins(e *Environment) {
	for name, f := range builtins.Filters {
		e.RegisterFilter(name, f)
	}
	for name, f := range builtins.Tests {
		e.RegisterTest(name, f)
	}
	for name, f := range builtins.Functions {
		e.RegisterFunction(name, f)
	}
	e.RegisterFunction("render", e.fnRender)
}

// fnRender implements the `render(sql)` builtin: it compiles its string
// argument as a standalone template against this same Environment (sharing
// its filters/tests/functions/globals) and renders it with no additional
// context, returning the rendered text.
func (e *Environment) fnRender(args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	p := argparser.New("render", args, kwargs)
	src, err := p.NextArg("sql")
	if err != nil {
		return value.Undefined(), err
	}
	if err := p.Finish(); err != nil {
		return value.Undefined(), err
	}
	s, ok := src.AsObject().(*value.String)
	if !ok {
		return value.Undefined(), fmt.Errorf("render: argument must be a string")
	}
	tpl, err := e.FromString("<render>", s.Go())
	if err != nil {
		return value.Undefined(), err
	}
	out, err := tpl.Render(nil)
	if err != nil {
		return value.Undefined(), err
	}
	return value.Obj(value.NewString(out)), nil
}
