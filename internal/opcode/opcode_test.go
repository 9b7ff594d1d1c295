package opcode

import (
	"testing"

	"github.com/jinjacore/dbtjinja/internal/value"
)

func TestOpStringKnownAndUnknown(t *testing.T) {
	if Add.String() != "Add" {
		t.Fatalf("got %q", Add.String())
	}
	if got := Op(9999).String(); got != "Op(?)" {
		t.Fatalf("expected Op(?) for an unregistered opcode, got %q", got)
	}
}

func TestOpTerminator(t *testing.T) {
	terminators := []Op{Jump, JumpIfFalse, JumpIfFalseOrPop, JumpIfTrueOrPop, Iterate, Return}
	for _, op := range terminators {
		if !op.Terminator() {
			t.Errorf("expected %v.Terminator() == true", op)
		}
	}
	if Add.Terminator() {
		t.Fatalf("Add should not be a terminator")
	}
}

func TestProgramEmitAndPatch(t *testing.T) {
	p := NewProgram("t", "{{ 1 }}")
	idx := p.Emit(Instruction{Op: Jump, Int: -1})
	if idx != 0 {
		t.Fatalf("expected first emit to return index 0, got %d", idx)
	}
	p.Emit(Instruction{Op: Add})
	if p.Len() != 2 {
		t.Fatalf("expected 2 instructions, got %d", p.Len())
	}
	p.Patch(idx, 1)
	if p.Instructions[0].Int != 1 {
		t.Fatalf("expected patched jump target 1, got %d", p.Instructions[0].Int)
	}
}

func TestProgramAddConstant(t *testing.T) {
	p := NewProgram("t", "")
	i0 := p.AddConstant(value.Int(1))
	i1 := p.AddConstant(value.Int(2))
	if i0 != 0 || i1 != 1 {
		t.Fatalf("expected sequential constant indices, got %d, %d", i0, i1)
	}
}
