package opcode

import "github.com/jinjacore/dbtjinja/internal/value"

// Program is a compiled template's bytecode: a flat instruction vector plus
// the block-name -> instruction-vector map used by template inheritance.
type Program struct {
	Instructions []Instruction
	Blocks       map[string][]Instruction
	Constants    []value.Value
	File         string
	Source       string

	// MacroArgs records each macro's declared positional argument names
	// and variadic flags, keyed by internal name. Instruction operands
	// only carry one Int/Str/Const slot each, too narrow for an arg list,
	// so codegen records it here instead; the VM needs the declared names
	// to run its argument-default IsUndefined-swap logic.
	MacroArgs map[string]MacroSig
}

// MacroSig is one macro's calling-convention metadata.
type MacroSig struct {
	ArgNames  []string
	HasVararg bool
	HasCaller bool
}

func NewProgram(file, source string) *Program {
	return &Program{Blocks: make(map[string][]Instruction), MacroArgs: make(map[string]MacroSig), File: file, Source: source}
}

// Emit appends an instruction and returns its index (used as a jump target
// placeholder by codegen's pending-block stack).
func (p *Program) Emit(in Instruction) int {
	p.Instructions = append(p.Instructions, in)
	return len(p.Instructions) - 1
}

// AddConstant interns a runtime constant and returns its pool index.
func (p *Program) AddConstant(v value.Value) int {
	p.Constants = append(p.Constants, v)
	return len(p.Constants) - 1
}

// Len reports the current instruction count, i.e. the index the next
// emitted instruction will occupy.
func (p *Program) Len() int { return len(p.Instructions) }

// Patch backfills the jump-target operand of the instruction at idx.
func (p *Program) Patch(idx int, target int) {
	p.Instructions[idx].Int = int64(target)
}
