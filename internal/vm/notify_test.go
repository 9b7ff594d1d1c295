package vm

import (
	"testing"

	"github.com/google/uuid"

	"github.com/jinjacore/dbtjinja/internal/ast"
	"github.com/jinjacore/dbtjinja/internal/lexer"
	"github.com/jinjacore/dbtjinja/internal/opcode"
	"github.com/jinjacore/dbtjinja/internal/value"
)

func TestLocationValueCarriesFileLineAndColumn(t *testing.T) {
	span := ast.Span{Start: lexer.Pos{Line: 3, Col: 5, Offset: 40}}
	v := locationValue("model.sql", span)

	m, ok := v.AsObject().(*value.Map)
	if !ok {
		t.Fatalf("expected a *value.Map, got %T", v.AsObject())
	}
	assertMapString(t, m, "file", "model.sql")
	assertMapInt(t, m, "line", 3)
	assertMapInt(t, m, "column", 5)
}

func assertMapString(t *testing.T, m *value.Map, key, want string) {
	t.Helper()
	v, ok := m.Get(value.Obj(value.NewString(key)))
	if !ok {
		t.Fatalf("expected key %q to be present", key)
	}
	s, ok := v.AsObject().(*value.String)
	if !ok || s.Go() != want {
		t.Fatalf("expected %q = %q, got %v", key, want, v)
	}
}

func assertMapInt(t *testing.T, m *value.Map, key string, want int64) {
	t.Helper()
	v, ok := m.Get(value.Obj(value.NewString(key)))
	if !ok {
		t.Fatalf("expected key %q to be present", key)
	}
	if v.AsInt() != want {
		t.Fatalf("expected %q = %d, got %v", key, want, v)
	}
}

func TestExecNotifyRefInjectsLocationKwargAndNotifiesListener(t *testing.T) {
	m := newTestVM()
	fr := &Frame{File: "model.sql"}
	fr.pushScope(nil)
	m.frames = append(m.frames, fr)
	m.push(value.Obj(value.NewString("my_model")))

	var gotName string
	var gotArgs []value.Value
	m.listener = &fakeListener{onRef: func(name string, args []value.Value) {
		gotName = name
		gotArgs = args
	}}

	var capturedKwargs *value.Kwargs
	m.RegisterFunction("ref", func(args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
		capturedKwargs = kwargs
		return value.Obj(value.NewString("resolved")), nil
	})

	span := ast.Span{Start: lexer.Pos{Line: 2, Col: 1}}
	in := opcode.Instruction{Op: opcode.NotifyRef, Str: "ref", Int: 1, Span: span}
	if err := m.execNotifyRef(fr, in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotName != "ref" || len(gotArgs) != 1 {
		t.Fatalf("expected the listener to observe the ref() call, got name=%q args=%v", gotName, gotArgs)
	}
	if capturedKwargs == nil {
		t.Fatalf("expected the registered ref function to receive kwargs")
	}
	loc, ok := capturedKwargs.Get(value.Obj(value.NewString("location")))
	if !ok {
		t.Fatalf("expected a synthetic location kwarg")
	}
	locMap, ok := loc.AsObject().(*value.Map)
	if !ok {
		t.Fatalf("expected location to be a map, got %T", loc.AsObject())
	}
	assertMapInt(t, locMap, "line", 2)

	out := m.pop()
	if s, ok := out.AsObject().(*value.String); !ok || s.Go() != "resolved" {
		t.Fatalf("expected the registered ref function's result to be pushed, got %v", out)
	}
}

type fakeListener struct {
	onRef func(name string, args []value.Value)
}

func (f *fakeListener) OnRef(id uuid.UUID, name string, args []value.Value, span ast.Span) {
	if f.onRef != nil {
		f.onRef(name, args)
	}
}

func (f *fakeListener) OnSource(id uuid.UUID, name string, args []value.Value, span ast.Span) {}
