package typecheck

import (
	"strings"
	"testing"

	"github.com/jinjacore/dbtjinja/internal/codegen"
	"github.com/jinjacore/dbtjinja/internal/lexer"
	"github.com/jinjacore/dbtjinja/internal/opcode"
	"github.com/jinjacore/dbtjinja/internal/parser"
	"github.com/jinjacore/dbtjinja/internal/types"
)

func compile(t *testing.T, src string) *opcode.Program {
	t.Helper()
	tpl, err := parser.Parse(src, "t", lexer.DefaultDelimiters())
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	prog, err := codegen.Compile(tpl, "t", src)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	return prog
}

func hasMessageContaining(diags []Diagnostic, substr string) bool {
	for _, d := range diags {
		if strings.Contains(d.Message, substr) {
			return true
		}
	}
	return false
}

// optionalUser is a global shaped like `{email: string} | none`, the
// standard fixture every narrowing test below guards before reading
// `user.email`.
func optionalUser() types.Type {
	return types.Union(types.None(), types.Struct(types.Field{Name: "email", Type: types.String()}))
}

func TestUnguardedOptionalAttrAccessProducesDiagnostic(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterGlobal("user", optionalUser())
	prog := compile(t, "{{ user.email }}")
	diags := NewChecker(reg).CheckProgram(prog)
	if !hasMessageContaining(diags, "has no attribute email") {
		t.Fatalf("expected an unnarrowed optional attr access to be flagged, got %v", diags)
	}
}

func TestBarePathGuardNarrowsOptionalGlobal(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterGlobal("user", optionalUser())
	prog := compile(t, "{% if user %}{{ user.email }}{% endif %}")
	diags := NewChecker(reg).CheckProgram(prog)
	if hasMessageContaining(diags, "has no attribute email") {
		t.Fatalf("expected the bare-path guard to narrow user past none, got %v", diags)
	}
}

func TestIsNotNoneGuardNarrowsOptionalGlobal(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterGlobal("user", optionalUser())
	prog := compile(t, "{% if user is not none %}{{ user.email }}{% endif %}")
	diags := NewChecker(reg).CheckProgram(prog)
	if hasMessageContaining(diags, "has no attribute email") {
		t.Fatalf("expected `is not none` to narrow user past none, got %v", diags)
	}
}

func TestAndGuardNarrowsBothOperands(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterGlobal("x", optionalUser())
	reg.RegisterGlobal("y", optionalUser())
	prog := compile(t, "{% if x is not none and y is not none %}{{ x.email }}{{ y.email }}{% endif %}")
	diags := NewChecker(reg).CheckProgram(prog)
	if hasMessageContaining(diags, "has no attribute email") {
		t.Fatalf("expected `and` to narrow both x and y, got %v", diags)
	}
}

func TestOrGuardLeavesFalseBranchUnnarrowed(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterGlobal("x", optionalUser())
	reg.RegisterGlobal("y", optionalUser())
	prog := compile(t, "{% if x is not none or y is not none %}a{% else %}{{ x.email }}{% endif %}")
	diags := NewChecker(reg).CheckProgram(prog)
	if !hasMessageContaining(diags, "has no attribute email") {
		t.Fatalf("expected the else branch of an `or` guard to stay unnarrowed, got %v", diags)
	}
}

func TestFilterMembershipNarrowsToSequence(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterGlobal("x", types.Union(types.None(), types.List(types.AnySoft())))
	prog := compile(t, "{% if x | is_list %}{{ x[0] }}{% endif %}")
	diags := NewChecker(reg).CheckProgram(prog)
	if hasMessageContaining(diags, "cannot index into") {
		t.Fatalf("expected `x | is_list` to narrow x to a sequence before indexing, got %v", diags)
	}
}

func TestUndeclaredGlobalProducesUnknownNameDiagnostic(t *testing.T) {
	prog := compile(t, "{{ mystery }}")
	diags := NewChecker(NewRegistry()).CheckProgram(prog)
	if !hasMessageContaining(diags, "unknown name mystery") {
		t.Fatalf("expected an undeclared global lookup to be flagged, got %v", diags)
	}
}

func TestMacroReturnTypeMismatchProducesDiagnostic(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterFunction(FuncSig{Name: "f", Ret: types.Integer()})
	prog := compile(t, "{% macro f() %}hello{% endmacro %}")
	diags := NewChecker(reg).CheckProgram(prog)
	if !hasMessageContaining(diags, "macro f returns") {
		t.Fatalf("expected a macro whose captured body is a string to be flagged against a declared integer return, got %v", diags)
	}
}

func TestCallMethodOnNamespaceUsesRegisteredSignature(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterGlobal("adapter", types.Namespace("adapter"))
	reg.RegisterMethod("adapter", FuncSig{Name: "quote", Ret: types.String()})
	prog := compile(t, "{{ adapter.quote('x') }}")
	diags := NewChecker(reg).CheckProgram(prog)
	if hasMessageContaining(diags, "unknown method") {
		t.Fatalf("expected a registered namespace method to resolve cleanly, got %v", diags)
	}
}

func TestCallMethodOnNamespaceFlagsUnknownMethod(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterGlobal("adapter", types.Namespace("adapter"))
	prog := compile(t, "{{ adapter.bogus('x') }}")
	diags := NewChecker(reg).CheckProgram(prog)
	if !hasMessageContaining(diags, "unknown method bogus") {
		t.Fatalf("expected an unregistered namespace method to be flagged, got %v", diags)
	}
}
