package codegen

import (
	"strings"
	"testing"

	"github.com/jinjacore/dbtjinja/internal/lexer"
	"github.com/jinjacore/dbtjinja/internal/opcode"
	"github.com/jinjacore/dbtjinja/internal/parser"
)

func compile(t *testing.T, src string) *opcode.Program {
	t.Helper()
	tpl, err := parser.Parse(src, "t", lexer.DefaultDelimiters())
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	prog, err := Compile(tpl, "t", src)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	return prog
}

// constraints returns every TypeConstraint hint's raw "kind|path|assert"
// string emitted while compiling src.
func constraints(t *testing.T, src string) []string {
	t.Helper()
	prog := compile(t, src)
	var out []string
	for _, in := range prog.Instructions {
		if in.Op == opcode.TypeConstraint {
			out = append(out, in.Str)
		}
	}
	return out
}

func hasConstraint(got []string, want string) bool {
	for _, g := range got {
		if g == want {
			return true
		}
	}
	return false
}

func TestExtractConstraintBarePath(t *testing.T) {
	got := constraints(t, "{% if x %}a{% endif %}")
	if !hasConstraint(got, "notnull|x|1") {
		t.Fatalf("expected a NotNull(x) hint for the true branch, got %v", got)
	}
	if !hasConstraint(got, "notnull|x|0") {
		t.Fatalf("expected the inverted NotNull(x) hint for the false branch, got %v", got)
	}
}

func TestExtractConstraintBareAttrPath(t *testing.T) {
	got := constraints(t, "{% if user.email %}a{% endif %}")
	if !hasConstraint(got, "notnull|user.email|1") {
		t.Fatalf("expected NotNull(user.email), got %v", got)
	}
}

func TestExtractConstraintIsTest(t *testing.T) {
	got := constraints(t, "{% if x is not none %}a{% endif %}")
	if !hasConstraint(got, "notnull|x|1") {
		t.Fatalf("expected `is not none` to assert NotNull(x) in the true branch, got %v", got)
	}
}

func TestExtractConstraintNegatedArbitraryExpr(t *testing.T) {
	got := constraints(t, "{% if not x %}a{% endif %}")
	// Entering the true branch means `not x` held, i.e. x did NOT pass its
	// bare-path NotNull check; entering the false branch means x did.
	if !hasConstraint(got, "notnull|x|0") {
		t.Fatalf("expected the true branch to carry the negated constraint on x, got %v", got)
	}
	if !hasConstraint(got, "notnull|x|1") {
		t.Fatalf("expected the false branch to carry the un-negated constraint on x, got %v", got)
	}
}

func TestExtractConstraintAndCombinesBothOperands(t *testing.T) {
	got := constraints(t, "{% if x is not none and y is not none %}a{% endif %}")
	if !hasConstraint(got, "notnull|x|1") || !hasConstraint(got, "notnull|y|1") {
		t.Fatalf("expected the true branch of an `and` to narrow both operands, got %v", got)
	}
}

func TestExtractConstraintOrCombinesBothOperandsOnFalseBranch(t *testing.T) {
	got := constraints(t, "{% if x is not none or y is not none %}a{% else %}b{% endif %}")
	if !hasConstraint(got, "notnull|x|0") || !hasConstraint(got, "notnull|y|0") {
		t.Fatalf("expected the false branch of an `or` to narrow both operands negated, got %v", got)
	}
}

func TestExtractConstraintFilterMembership(t *testing.T) {
	got := constraints(t, "{% if x | is_list %}a{% endif %}")
	if !hasConstraint(got, "is:sequence|x|1") {
		t.Fatalf("expected `x | is_list` to assert Is(sequence) on x, got %v", got)
	}
}

func TestCompileMacroEmitsReturnAtBodyEnd(t *testing.T) {
	prog := compile(t, "{% macro f() %}hi{% endmacro %}")
	body, ok := prog.Blocks["__macro_f"]
	if !ok {
		t.Fatalf("expected a compiled body for macro f, blocks: %v", prog.Blocks)
	}
	if len(body) == 0 || body[len(body)-1].Op != opcode.Return {
		t.Fatalf("expected the macro body to end with an implicit Return")
	}
}

func TestCompileProducesNoStrayConstraintsForPlainEmit(t *testing.T) {
	prog := compile(t, "hello {{ name }}")
	for _, in := range prog.Instructions {
		if in.Op == opcode.TypeConstraint {
			t.Fatalf("did not expect any TypeConstraint hints for plain output, got %q", in.Str)
		}
	}
	if !strings.Contains(prog.Source, "hello") {
		t.Fatalf("expected the Program to retain its source text")
	}
}
