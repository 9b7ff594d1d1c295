// Package opcode defines the bytecode instruction set shared by the code
// generator, the virtual machine and the CFG builder.
package opcode

import "github.com/jinjacore/dbtjinja/internal/ast"

// Op is a dense enum of opcodes. Names mirror the operation categories in
// the compiler pipeline.
type Op uint16

const (
	// Stack manipulation
	Swap Op = iota
	DupTop
	DiscardTop

	// Emission
	Emit
	EmitRaw
	BeginCapture
	EndCapture

	// Naming
	StoreLocal
	Lookup
	GetAttr
	SetAttr
	GetItem
	SliceOp

	// Constants and literals
	LoadConst
	LoadType
	BuildList
	BuildTuple
	BuildMap
	BuildKwargs
	MergeKwargs
	UnpackList
	UnpackLists

	// Arithmetic / comparison
	Add
	Sub
	Mul
	Div
	IntDiv
	Rem
	Pow
	Eq
	Ne
	Lt
	Lte
	Gt
	Gte
	Not
	Neg
	In
	StringConcat
	StringFormat // "%s" % value

	// Control
	Jump
	JumpIfFalse
	JumpIfFalseOrPop
	JumpIfTrueOrPop
	PushLoop
	Iterate
	PushDidNotIterate
	PopFrame
	PushWith

	// Block I/O
	CallBlock
	LoadBlocks
	Include
	ExportLocals
	FastSuper
	FastRecurse

	// Macros
	BuildMacro
	Enclose
	GetClosure
	Return // carries an "explicit" flag, see Instruction.Flag

	// Filtering / testing
	ApplyFilter
	PerformTest

	// Dispatch
	CallFunction
	CallMethod
	CallObject

	// Auto-escape
	PushAutoEscape
	PopAutoEscape

	// Type-checker hints
	TypeConstraint
	UnionType
	MacroStart
	MacroStop
	MacroName

	// Model-reference notification hooks (ref/source call-site spans)
	NotifyRef
)

var names = map[Op]string{
	Swap: "Swap", DupTop: "DupTop", DiscardTop: "DiscardTop",
	Emit: "Emit", EmitRaw: "EmitRaw", BeginCapture: "BeginCapture", EndCapture: "EndCapture",
	StoreLocal: "StoreLocal", Lookup: "Lookup", GetAttr: "GetAttr", SetAttr: "SetAttr",
	GetItem: "GetItem", SliceOp: "SliceOp",
	LoadConst: "LoadConst", LoadType: "LoadType", BuildList: "BuildList", BuildTuple: "BuildTuple",
	BuildMap: "BuildMap", BuildKwargs: "BuildKwargs", MergeKwargs: "MergeKwargs",
	UnpackList: "UnpackList", UnpackLists: "UnpackLists",
	Add: "Add", Sub: "Sub", Mul: "Mul", Div: "Div", IntDiv: "IntDiv", Rem: "Rem", Pow: "Pow",
	Eq: "Eq", Ne: "Ne", Lt: "Lt", Lte: "Lte", Gt: "Gt", Gte: "Gte", Not: "Not", Neg: "Neg",
	In: "In", StringConcat: "StringConcat", StringFormat: "StringFormat",
	Jump: "Jump", JumpIfFalse: "JumpIfFalse", JumpIfFalseOrPop: "JumpIfFalseOrPop",
	JumpIfTrueOrPop: "JumpIfTrueOrPop", PushLoop: "PushLoop", Iterate: "Iterate",
	PushDidNotIterate: "PushDidNotIterate", PopFrame: "PopFrame", PushWith: "PushWith",
	CallBlock: "CallBlock", LoadBlocks: "LoadBlocks", Include: "Include",
	ExportLocals: "ExportLocals", FastSuper: "FastSuper", FastRecurse: "FastRecurse",
	BuildMacro: "BuildMacro", Enclose: "Enclose", GetClosure: "GetClosure", Return: "Return",
	ApplyFilter: "ApplyFilter", PerformTest: "PerformTest",
	CallFunction: "CallFunction", CallMethod: "CallMethod", CallObject: "CallObject",
	PushAutoEscape: "PushAutoEscape", PopAutoEscape: "PopAutoEscape",
	TypeConstraint: "TypeConstraint", UnionType: "UnionType", MacroStart: "MacroStart",
	MacroStop: "MacroStop", MacroName: "MacroName", NotifyRef: "NotifyRef",
}

func (o Op) String() string {
	if n, ok := names[o]; ok {
		return n
	}
	return "Op(?)"
}

// Terminator reports whether this opcode ends a basic block for CFG
// purposes: starts a new block after any terminator.
func (o Op) Terminator() bool {
	switch o {
	case Jump, JumpIfFalse, JumpIfFalseOrPop, JumpIfTrueOrPop, Iterate, Return:
		return true
	}
	return false
}

// Instruction is one bytecode op plus its operand and originating span,
// preserved from the AST node it was compiled from.
type Instruction struct {
	Op   Op
	Span ast.Span

	// Operand payload. Only the field(s) relevant to Op are meaningful;
	// operands are typed instead of hand-packed bytes, which the type checker
	// and disassembler both need to introspect without re-decoding.
	Int    int64  // jump targets, local slot indices, arities, unpack counts
	Str    string // names: locals, attrs, filters, tests, functions, blocks
	Const  int    // index into the constant pool
	Flag   bool   // Return.Explicit, PushLoop flags bit 0, etc.
	Flag2  bool   // PushLoop flags bit 1 (recursive)
}
