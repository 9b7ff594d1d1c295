package argparser

import (
	"testing"

	"github.com/jinjacore/dbtjinja/internal/value"
)

func strVal(s string) value.Value { return value.Obj(value.NewString(s)) }

func TestNextArgPositional(t *testing.T) {
	p := New("f", []value.Value{strVal("a"), value.Int(1)}, nil)
	v, err := p.NextArg("name")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, ok := v.AsObject().(*value.String)
	if !ok || s.Go() != "a" {
		t.Fatalf("expected %q, got %v", "a", v)
	}
	v, err = p.NextArg("count")
	if err != nil || v.AsInt() != 1 {
		t.Fatalf("expected second positional 1, got %v (err=%v)", v, err)
	}
	if err := p.Finish(); err != nil {
		t.Fatalf("Finish should succeed when all positionals consumed: %v", err)
	}
}

func TestNextArgFallsBackToKwarg(t *testing.T) {
	kw := value.NewKwargs()
	kw.Set(strVal("name"), strVal("bolt"))
	p := New("f", nil, kw)

	v, err := p.NextArg("name")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, _ := v.AsObject().(*value.String)
	if s.Go() != "bolt" {
		t.Fatalf("expected kwarg fallback value %q, got %v", "bolt", v)
	}
	if err := p.Finish(); err != nil {
		t.Fatalf("the kwarg was consumed, Finish should succeed: %v", err)
	}
}

func TestNextArgMissingFails(t *testing.T) {
	p := New("f", nil, nil)
	_, err := p.NextArg("name")
	if err == nil {
		t.Fatalf("expected MissingArgument error")
	}
	ae, ok := err.(*Error)
	if !ok || ae.Kind != MissingArgument {
		t.Fatalf("expected *Error{Kind: MissingArgument}, got %#v", err)
	}
}

func TestNextArgOptionalFallsBackToDefault(t *testing.T) {
	p := New("f", nil, nil)
	def := value.Bool(true)
	got := p.NextArgOptional("flag", def)
	if !got.AsBool() {
		t.Fatalf("expected default true, got %v", got)
	}
}

func TestFinishRejectsExtraPositionals(t *testing.T) {
	p := New("f", []value.Value{strVal("a"), strVal("b")}, nil)
	if _, err := p.NextArg("only"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := p.Finish()
	if err == nil {
		t.Fatalf("expected TooManyArguments error for the unconsumed second positional")
	}
	ae, ok := err.(*Error)
	if !ok || ae.Kind != TooManyArguments {
		t.Fatalf("expected *Error{Kind: TooManyArguments}, got %#v", err)
	}
}

func TestFinishRejectsUnusedKwargs(t *testing.T) {
	kw := value.NewKwargs()
	kw.Set(strVal("bogus"), value.Int(1))
	p := New("f", nil, kw)
	err := p.Finish()
	if err == nil {
		t.Fatalf("expected InvalidArgument error for the unused keyword argument")
	}
	ae, ok := err.(*Error)
	if !ok || ae.Kind != InvalidArgument {
		t.Fatalf("expected *Error{Kind: InvalidArgument}, got %#v", err)
	}
}

func TestNextKwargDoesNotConsumePositionalSlot(t *testing.T) {
	kw := value.NewKwargs()
	kw.Set(strVal("opt"), value.Int(7))
	p := New("f", []value.Value{strVal("positional")}, kw)

	v, ok := p.NextKwarg("opt")
	if !ok || v.AsInt() != 7 {
		t.Fatalf("expected kwarg opt=7, got %v (ok=%v)", v, ok)
	}
	posVal, err := p.NextArg("pos")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, _ := posVal.AsObject().(*value.String)
	if s.Go() != "positional" {
		t.Fatalf("NextKwarg should not have consumed the positional slot, got %v", posVal)
	}
}
