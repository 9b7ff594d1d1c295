// Package jinja is the public embedding API: an Environment holding the
// host's configuration and registries, Templates compiled against it, and
// the Listener contract for dependency-graph observability.
package jinja

import (
	"fmt"

	"github.com/jinjacore/dbtjinja/internal/adapter"
	"github.com/jinjacore/dbtjinja/internal/config"
	"github.com/jinjacore/dbtjinja/internal/lexer"
	"github.com/jinjacore/dbtjinja/internal/opcode"
	"github.com/jinjacore/dbtjinja/internal/typecheck"
	"github.com/jinjacore/dbtjinja/internal/types"
	"github.com/jinjacore/dbtjinja/internal/value"
	"github.com/jinjacore/dbtjinja/internal/vm"
)

// Listener is re-exported so hosts implementing it don't need to import
// internal/vm directly.
type Listener = vm.Listener

// Loader is re-exported for the same reason; MapLoader/DirLoader in this
// package are the two loaders shipped out of the box.
type Loader = vm.Loader

// Diagnostic is re-exported so callers of Template.CheckTypes don't need to
// import internal/typecheck directly.
type Diagnostic = typecheck.Diagnostic

// Environment holds one project's configuration, template loader, and the
// filter/test/function/global registries every compiled Template shares.
type Environment struct {
	opts     config.Options
	delim    lexer.Delimiters
	loader   Loader
	listener Listener

	filters   map[string]vm.FilterFunc
	tests     map[string]vm.TestFunc
	functions map[string]vm.FunctionFunc
	globals   map[string]value.Value

	// packages backs the dbt macro namespace resolver: the macros a
	// package's top-level template body defines, keyed by package name,
	// plus which two packages `<current_package>`/`<root_package>` name.
	packages       map[string]map[string]value.Value
	currentPackage string
	rootPackage    string

	checker *typecheck.Registry
}

// New constructs an Environment from Options, wiring its delimiter
// configuration into the lexer/parser and registering the builtin
// filters/tests/functions (builtins.go).
func New(opts config.Options) *Environment {
	e := &Environment{
		opts: opts,
		delim: lexer.Delimiters{
			BlockBegin: opts.BlockBegin, BlockEnd: opts.BlockEnd,
			VarBegin: opts.VarBegin, VarEnd: opts.VarEnd,
			CommentBegin: opts.CommentBegin, CommentEnd: opts.CommentEnd,
			LstripBlocks: opts.LstripBlocks, TrimBlocks: opts.TrimBlocks,
		},
		filters:   make(map[string]vm.FilterFunc),
		tests:     make(map[string]vm.TestFunc),
		functions: make(map[string]vm.FunctionFunc),
		globals:   make(map[string]value.Value),
		packages:  make(map[string]map[string]value.Value),
		checker:   typecheck.NewRegistry(),
	}
	registerBuiltins(e)
	return e
}

// SetLoader installs the template-name resolver used by {% include %},
// {% extends %}, {% import %} and {% from import %}.
func (e *Environment) SetLoader(l Loader) { e.loader = l }

// SetListener installs the host's rendering-event observer.
func (e *Environment) SetListener(l Listener) { e.listener = l }

// RegisterFilter adds a `| name(...)` pipeline stage.
func (e *Environment) RegisterFilter(name string, f vm.FilterFunc) { e.filters[name] = f }

// RegisterTest adds an `is name(...)` membership test.
func (e *Environment) RegisterTest(name string, f vm.TestFunc) { e.tests[name] = f }

// RegisterFunction adds a free function callable from template code, and
// records its signature in the type-checker registry so CheckTypes can
// validate its call sites against a macro declared with the same name.
func (e *Environment) RegisterFunction(name string, f vm.FunctionFunc, sig ...typecheck.FuncSig) {
	e.functions[name] = f
	if len(sig) > 0 {
		e.checker.RegisterFunction(sig[0])
	}
}

// RegisterGlobal binds a name visible to every template this Environment
// compiles, both at render time and (via declaredType) to the type
// checker's entry state.
func (e *Environment) RegisterGlobal(name string, v interface{}, declaredType ...types.Type) error {
	vv, err := ToValue(v)
	if err != nil {
		return err
	}
	e.globals[name] = vv
	if len(declaredType) > 0 {
		e.checker.RegisterGlobal(name, declaredType[0])
	}
	return nil
}

// RegisterMethod declares a namespace-typed host object's method signature
// for CallMethod's static resolution.
func (e *Environment) RegisterMethod(namespace string, sig typecheck.FuncSig) {
	e.checker.RegisterMethod(namespace, sig)
}

// RegisterPackageTemplate compiles src and runs its top-level body once to
// harvest the macros (and any other top-level names) it defines, then
// exposes them under pkgName to every future render's namespace resolver —
// `pkgName.macro(...)` calls, and unqualified calls that fall through
// local/global/free-function lookup to `<current_package>`/`<root_package>`.
func (e *Environment) RegisterPackageTemplate(pkgName, src string) error {
	tpl, err := e.FromString("__package_"+pkgName, src)
	if err != nil {
		return err
	}
	machine := e.newVM()
	_, exported, err := machine.RunAndExport(tpl.prog, tpl.name, nil)
	if err != nil {
		return err
	}
	if e.packages[pkgName] == nil {
		e.packages[pkgName] = make(map[string]value.Value)
	}
	for k, v := range exported {
		e.packages[pkgName][k] = v
	}
	return nil
}

// SetCurrentPackage/SetRootPackage name the packages searched, in that
// order, when a call name resolves through neither a local scope, a
// global, nor a registered free function.
func (e *Environment) SetCurrentPackage(name string) { e.currentPackage = name }
func (e *Environment) SetRootPackage(name string)    { e.rootPackage = name }

// RegisterAdapter exposes a connection-management bridge to templates as
// the `adapter` global, so macros can call e.g. adapter.execute(sql) and
// adapter.get_columns_in_relation(relation) against a real typed backend.
func (e *Environment) RegisterAdapter(bridge *adapter.Bridge) error {
	return e.RegisterGlobal("adapter", bridge.HostObject())
}

// FromString compiles src directly, bypassing the loader (for one-off
// rendering of a template string the host already has in memory).
func (e *Environment) FromString(name, src string) (*Template, error) {
	prog, err := compileSource(name, src, e.delim)
	if err != nil {
		return nil, err
	}
	return &Template{env: e, prog: prog, name: name}, nil
}

// Get loads and compiles a template by name through the installed Loader.
func (e *Environment) Get(name string) (*Template, error) {
	if e.loader == nil {
		return nil, fmt.Errorf("jinja: no loader installed, cannot resolve %q", name)
	}
	prog, err := e.loader.Load(name)
	if err != nil {
		return nil, err
	}
	return &Template{env: e, prog: prog, name: name}, nil
}

func (e *Environment) newVM() *vm.VM {
	machine := vm.New(e.loader, e.listener, e.opts)
	for name, f := range e.filters {
		machine.RegisterFilter(name, f)
	}
	for name, f := range e.tests {
		machine.RegisterTest(name, f)
	}
	for name, f := range e.functions {
		machine.RegisterFunction(name, f)
	}
	for name, v := range e.globals {
		machine.RegisterGlobal(name, v)
	}
	for name, macros := range e.packages {
		machine.RegisterPackage(name, macros)
	}
	if e.currentPackage != "" {
		machine.SetCurrentPackage(e.currentPackage)
	}
	if e.rootPackage != "" {
		machine.SetRootPackage(e.rootPackage)
	}
	return machine
}

// CheckTypes runs the flow-sensitive static checker over a compiled program
// using this Environment's declared function/method/global signatures,
// without executing it.
func (e *Environment) CheckTypes(prog *opcode.Program) []typecheck.Diagnostic {
	return typecheck.NewChecker(e.checker).CheckProgram(prog)
}
