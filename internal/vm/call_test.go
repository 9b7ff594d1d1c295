package vm

import (
	"strings"
	"testing"

	"github.com/jinjacore/dbtjinja/internal/config"
	"github.com/jinjacore/dbtjinja/internal/opcode"
	"github.com/jinjacore/dbtjinja/internal/value"
)

func newTestVM() *VM {
	return New(nil, nil, config.Default())
}

func TestResolveNamespaceMacroPrefersCurrentPackage(t *testing.T) {
	m := newTestVM()
	m.RegisterPackage("pkg_a", map[string]value.Value{"helper": value.Obj(value.NewString("from-a"))})
	m.RegisterPackage("pkg_b", map[string]value.Value{"helper": value.Obj(value.NewString("from-b"))})
	m.SetCurrentPackage("pkg_a")
	m.SetRootPackage("pkg_b")

	got, ok := m.resolveNamespaceMacro("helper")
	if !ok {
		t.Fatalf("expected helper to resolve")
	}
	if s, _ := got.AsObject().(*value.String); s == nil || s.Go() != "from-a" {
		t.Fatalf("expected the current package to win, got %v", got)
	}
}

func TestResolveNamespaceMacroFallsBackToRootPackage(t *testing.T) {
	m := newTestVM()
	m.RegisterPackage("pkg_a", map[string]value.Value{})
	m.RegisterPackage("pkg_b", map[string]value.Value{"helper": value.Obj(value.NewString("from-b"))})
	m.SetCurrentPackage("pkg_a")
	m.SetRootPackage("pkg_b")

	got, ok := m.resolveNamespaceMacro("helper")
	if !ok {
		t.Fatalf("expected helper to resolve via the root package")
	}
	if s, _ := got.AsObject().(*value.String); s == nil || s.Go() != "from-b" {
		t.Fatalf("expected the root package fallback, got %v", got)
	}
}

func TestResolveNamespaceMacroFallsBackToOtherRegisteredPackages(t *testing.T) {
	m := newTestVM()
	m.RegisterPackage("zzz", map[string]value.Value{"helper": value.Obj(value.NewString("from-zzz"))})

	got, ok := m.resolveNamespaceMacro("helper")
	if !ok {
		t.Fatalf("expected helper to resolve from an unrelated registered package")
	}
	if s, _ := got.AsObject().(*value.String); s == nil || s.Go() != "from-zzz" {
		t.Fatalf("expected the only registered package's macro, got %v", got)
	}
}

func TestResolveNamespaceMacroNotFound(t *testing.T) {
	m := newTestVM()
	m.RegisterPackage("pkg_a", map[string]value.Value{"other": value.Obj(value.NewString("x"))})

	if _, ok := m.resolveNamespaceMacro("helper"); ok {
		t.Fatalf("expected no match for an unregistered name")
	}
}

func TestCallerFromScopeWrapsCapturedCallBlockBody(t *testing.T) {
	m := newTestVM()
	fr := &Frame{}
	fr.pushScope(nil)
	fr.store("__caller__", value.Obj(value.NewString("captured body")))

	c := m.callerFromScope(fr)
	ho, ok := c.AsObject().(*value.HostObject)
	if !ok {
		t.Fatalf("expected a HostObject wrapping the captured text, got %T", c.AsObject())
	}
	res, err := ho.Call(nil, nil)
	if err != nil {
		t.Fatalf("unexpected error calling caller(): %v", err)
	}
	s, ok := res.AsObject().(*value.String)
	if !ok || s.Go() != "captured body" {
		t.Fatalf("expected caller() to yield the captured block body, got %v", res)
	}

	if _, ok := fr.Scopes[0].locals["__caller__"]; ok {
		t.Fatalf("expected __caller__ to be consumed so it can't leak into a later call")
	}
}

func TestCallerFromScopeReturnsEmptyValueWhenNoCallBlockIsActive(t *testing.T) {
	m := newTestVM()
	fr := &Frame{}
	fr.pushScope(nil)

	c := m.callerFromScope(fr)
	if c.AsObject() != nil {
		t.Fatalf("expected an empty Value outside a {%% call %%} block, got %v", c)
	}
}

func TestInvokeMacroResolvesBodyAgainstOwnerProgramNotActiveProgram(t *testing.T) {
	m := newTestVM()
	callerFrame := &Frame{File: "caller.tpl"}
	callerFrame.pushScope(nil)
	m.frames = append(m.frames, callerFrame)
	m.captures = append(m.captures, &strings.Builder{})

	ownerProg := opcode.NewProgram("owner.tpl", "")
	ownerProg.Blocks["__macro_f"] = []opcode.Instruction{
		{Op: opcode.EmitRaw, Str: "hi from owner"},
		{Op: opcode.Return},
	}
	ownerProg.MacroArgs["f"] = opcode.MacroSig{}
	macro := &value.Macro{Name: "f", Owner: ownerProg}

	// Simulate the macro being invoked while a *different* Program is
	// active, the way a namespace-package or imported macro is: pass a
	// decoy activeProgram with no matching block and confirm invokeMacro
	// still resolves the body via m.Owner rather than the decoy.
	decoy := opcode.NewProgram("decoy.tpl", "")
	out, err := m.invokeMacro(decoy, macro, nil, nil, value.Value{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, ok := out.AsObject().(*value.String)
	if !ok || s.Go() != "hi from owner" {
		t.Fatalf("expected the macro's own captured body text, got %v", out)
	}
}
