// Package argparser implements the shared call-argument validation used by
// filters, tests, functions and the adapter bridge.
package argparser

import (
	"fmt"

	"github.com/jinjacore/dbtjinja/internal/value"
)

// Kind classifies an argument-validation failure.
type Kind uint8

const (
	MissingArgument Kind = iota
	TooManyArguments
	InvalidArgument
	InvalidOperation
)

// Error is a CPython-style rich diagnostic for a failed call-argument parse.
type Error struct {
	Kind Kind
	Func string
	Msg  string
}

func (e *Error) Error() string {
	if e.Func == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Func, e.Msg)
}

// ArgParser walks a call's positional args and kwargs bundle, enforcing
// arity and reporting unused keyword arguments once the call completes.
type ArgParser struct {
	funcName string
	args     []value.Value
	pos      int
	kwargs   *value.Kwargs
}

func New(funcName string, args []value.Value, kwargs *value.Kwargs) *ArgParser {
	return &ArgParser{funcName: funcName, args: args, kwargs: kwargs}
}

// NextArg returns the next positional argument, or falls back to the
// same-named kwarg, or fails with MissingArgument if neither is present.
func (p *ArgParser) NextArg(name string) (value.Value, error) {
	if p.pos < len(p.args) {
		v := p.args[p.pos]
		p.pos++
		return v, nil
	}
	if p.kwargs != nil {
		if v, ok := p.kwargs.Get(value.Obj(value.NewString(name))); ok {
			p.kwargs.MarkUsed(name)
			return v, nil
		}
	}
	return value.Undefined(), &Error{Kind: MissingArgument, Func: p.funcName,
		Msg: fmt.Sprintf("missing required argument %q", name)}
}

// NextArgOptional is NextArg without the MissingArgument failure, returning
// def when the argument was not supplied.
func (p *ArgParser) NextArgOptional(name string, def value.Value) value.Value {
	v, err := p.NextArg(name)
	if err != nil {
		return def
	}
	return v
}

// NextKwarg fetches a keyword-only argument by name without consuming a
// positional slot.
func (p *ArgParser) NextKwarg(name string) (value.Value, bool) {
	if p.kwargs == nil {
		return value.Undefined(), false
	}
	v, ok := p.kwargs.Get(value.Obj(value.NewString(name)))
	if ok {
		p.kwargs.MarkUsed(name)
	}
	return v, ok
}

// Finish validates there are no leftover positional arguments and no unused
// keyword arguments; unused keys are reported after the call completes.
func (p *ArgParser) Finish() error {
	if p.pos < len(p.args) {
		return &Error{Kind: TooManyArguments, Func: p.funcName,
			Msg: fmt.Sprintf("expected at most %d positional argument(s), got %d", p.pos, len(p.args))}
	}
	if p.kwargs != nil {
		if unused := p.kwargs.Unused(); len(unused) > 0 {
			return &Error{Kind: InvalidArgument, Func: p.funcName,
				Msg: fmt.Sprintf("unexpected keyword argument(s): %v", unused)}
		}
	}
	return nil
}

// TrailingKwargs returns every kwarg entry regardless of used-state, for
// callers (like the adapter bridge) that forward an open kwargs set.
func (p *ArgParser) TrailingKwargs() []value.MapEntry {
	if p.kwargs == nil {
		return nil
	}
	return p.kwargs.Entries()
}
