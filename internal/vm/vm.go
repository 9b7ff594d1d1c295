// Package vm implements the stack-based bytecode interpreter.
package vm

import (
	"strings"

	"github.com/google/uuid"

	"github.com/jinjacore/dbtjinja/internal/ast"
	"github.com/jinjacore/dbtjinja/internal/config"
	"github.com/jinjacore/dbtjinja/internal/opcode"
	"github.com/jinjacore/dbtjinja/internal/value"
)

// FilterFunc implements a `| name(args)` pipeline stage.
type FilterFunc func(target value.Value, args []value.Value, kwargs *value.Kwargs) (value.Value, error)

// TestFunc implements an `is name(args)` membership test.
type TestFunc func(target value.Value, args []value.Value) (bool, error)

// FunctionFunc implements a free function callable from template code.
type FunctionFunc func(args []value.Value, kwargs *value.Kwargs) (value.Value, error)

// Loader resolves a template name to its compiled Program, for
// Include/Extends/Import.
type Loader interface {
	Load(name string) (*opcode.Program, error)
}

// Listener receives rendering events for host observability: ref()/source()
// call-site notifications used by the owning data-transformation tool to
// build its dependency graph. Each event carries a correlation id so a host
// can join VM events against its own external traces.
type Listener interface {
	OnRef(id uuid.UUID, name string, args []value.Value, span ast.Span)
	OnSource(id uuid.UUID, name string, args []value.Value, span ast.Span)
}

// VM executes one compiled Program against a set of registries and an
// optional template Loader for inheritance/include/import.
type VM struct {
	stack  []value.Value
	frames []*Frame

	globals map[string]value.Value

	filters   map[string]FilterFunc
	tests     map[string]TestFunc
	functions map[string]FunctionFunc

	loader   Loader
	listener Listener

	// packages backs the dbt macro namespace resolver: package name ->
	// macro/function name -> callable, populated by RegisterPackage.
	// currentPackage/rootPackage name the two packages searched first when
	// a bare call name isn't a local, a global, or a free function.
	packages       map[string]map[string]value.Value
	currentPackage string
	rootPackage    string

	// blockChain maps a block name to its specialization stack, innermost
	// (most-derived) first, populated by LoadBlocks walking the extends
	// chain. Backs super().
	blockChain map[string][][]opcode.Instruction
	blockIdx   map[string]int
	// blockNameStack tracks which block body is currently executing, so a
	// bare super() call knows which chain to advance.
	blockNameStack []string

	captures []*strings.Builder

	// returnValue/returnExplicit carry an explicit `return(x)` call's
	// argument up through errReturnSignal to the invokeMacro that catches
	// it; returnExplicit is false for a macro body's own implicit
	// end-of-body Return, which instead returns its captured output.
	returnValue    value.Value
	returnExplicit bool

	autoEscape []config.AutoEscapeMode

	includeDepth int
	loadedTpls   map[string]bool

	undefined config.UndefinedBehavior

	fuelUsed  int64
	fuelLimit int64

	// activeProgram is the Program whose Blocks map macro/block bodies are
	// resolved against; it changes across Include/Import boundaries.
	activeProgram *opcode.Program
}

// New constructs a VM ready to Run one or more programs sharing the given
// registries.
func New(loader Loader, listener Listener, opts config.Options) *VM {
	return &VM{
		globals:    make(map[string]value.Value),
		filters:    make(map[string]FilterFunc),
		tests:      make(map[string]TestFunc),
		functions:  make(map[string]FunctionFunc),
		blockChain: make(map[string][][]opcode.Instruction),
		blockIdx:   make(map[string]int),
		loadedTpls: make(map[string]bool),
		packages:   make(map[string]map[string]value.Value),
		loader:     loader,
		listener:   listener,
		autoEscape: []config.AutoEscapeMode{opts.AutoEscapeModeDefault()},
		undefined:  opts.UndefinedBehavior(),
		fuelLimit:  opts.FuelLimit,
	}
}

func (vm *VM) RegisterGlobal(name string, v value.Value)   { vm.globals[name] = v }
func (vm *VM) RegisterFilter(name string, f FilterFunc)     { vm.filters[name] = f }
func (vm *VM) RegisterTest(name string, f TestFunc)         { vm.tests[name] = f }
func (vm *VM) RegisterFunction(name string, f FunctionFunc) { vm.functions[name] = f }

// RegisterPackage adds one named package to the macro namespace resolver,
// merging into any macros already registered under that name.
func (vm *VM) RegisterPackage(name string, macros map[string]value.Value) {
	pkg, ok := vm.packages[name]
	if !ok {
		pkg = make(map[string]value.Value)
		vm.packages[name] = pkg
	}
	for k, v := range macros {
		pkg[k] = v
	}
}

// SetCurrentPackage/SetRootPackage name the two packages searched first by
// the namespace resolver (see resolveNamespaceMacro), matching the
// `<current_package>.<name>` / `<root_package>.<name>` precedence a
// package-qualified macro call resolves against when called unqualified.
func (vm *VM) SetCurrentPackage(name string) { vm.currentPackage = name }
func (vm *VM) SetRootPackage(name string)    { vm.rootPackage = name }

// Run executes prog's top-level body and returns the rendered text.
func (vm *VM) Run(prog *opcode.Program, file string, locals map[string]value.Value) (string, error) {
	out, _, err := vm.run(prog, file, locals)
	return out, err
}

// RunAndExport behaves like Run but also returns the top-level scope's
// bindings (the same set `{% import %}` exposes on a module object), so a
// host can harvest a compiled template's macros for registration as a
// namespace-resolver package without layering a synthetic include.
func (vm *VM) RunAndExport(prog *opcode.Program, file string, locals map[string]value.Value) (string, map[string]value.Value, error) {
	return vm.run(prog, file, locals)
}

func (vm *VM) run(prog *opcode.Program, file string, locals map[string]value.Value) (string, map[string]value.Value, error) {
	vm.captures = []*strings.Builder{{}}
	vm.loadedTpls[file] = true
	vm.activeProgram = prog
	fr := &Frame{File: file, Instrs: prog.Instructions, Consts: prog.Constants}
	fr.pushScope(nil)
	for k, v := range locals {
		fr.store(k, v)
	}
	vm.frames = append(vm.frames, fr)
	err := vm.exec(prog)
	exported := make(map[string]value.Value)
	for _, e := range vm.exportLocals(fr).Entries() {
		if k, ok := e.Key.AsObject().(*value.String); ok {
			exported[k.Go()] = e.Val
		}
	}
	vm.frames = vm.frames[:len(vm.frames)-1]
	if err != nil {
		return "", exported, err
	}
	return vm.captures[len(vm.captures)-1].String(), exported, nil
}

func (vm *VM) push(v value.Value) { vm.stack = append(vm.stack, v) }

func (vm *VM) pop() value.Value {
	n := len(vm.stack)
	v := vm.stack[n-1]
	vm.stack = vm.stack[:n-1]
	return v
}

func (vm *VM) peek(fromTop int) value.Value {
	return vm.stack[len(vm.stack)-1-fromTop]
}

func (vm *VM) frame() *Frame { return vm.frames[len(vm.frames)-1] }

func (vm *VM) out() *strings.Builder { return vm.captures[len(vm.captures)-1] }

func (vm *VM) curAutoEscape() config.AutoEscapeMode {
	return vm.autoEscape[len(vm.autoEscape)-1]
}
