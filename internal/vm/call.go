package vm

import (
	"sort"
	"strings"

	"github.com/jinjacore/dbtjinja/internal/opcode"
	"github.com/jinjacore/dbtjinja/internal/value"
)

// buildMacro captures the defining frame's entire current scope chain as
// the macro's closure (see codegen.compileMacro for why this replaces a
// per-free-variable GetClosure sequence) and tags it with the declared
// calling convention recorded in prog.MacroArgs.
func (vm *VM) buildMacro(prog *opcode.Program, internalName string) value.Value {
	sig := prog.MacroArgs[internalName]
	closure := make(map[string]value.Value)
	fr := vm.frame()
	for _, s := range fr.Scopes {
		for k, v := range s.locals {
			closure[k] = v
		}
	}
	return value.Obj(&value.Macro{
		Name: internalName, ArgNames: sig.ArgNames,
		HasVararg: sig.HasVararg, HasCaller: sig.HasCaller, Closure: closure,
		Owner: prog,
	})
}

// invokeMacro runs a macro's compiled body in a fresh frame: closure first,
// then declared positional names bound from args/kwargs, then the
// `varargs`/`kwargs` implicit bindings every macro body may reference
// (ast.FreeVars always seeds them as bound names). The body's emitted text
// is captured into its own buffer rather than the ambient output, so the
// macro's value is either that captured text (normal completion) or the
// argument of an explicit `return(x)` call, which discards the capture.
func (vm *VM) invokeMacro(prog *opcode.Program, m *value.Macro, args []value.Value, kwargs *value.Kwargs, caller value.Value) (value.Value, error) {
	if owner, ok := m.Owner.(*opcode.Program); ok && owner != nil {
		prog = owner
	}
	body := prog.Blocks["__macro_"+m.Name]
	nf := &Frame{File: vm.frame().File, Instrs: body, Consts: prog.Constants, Caller: caller}
	nf.pushScope(nil)
	for k, v := range m.Closure {
		nf.store(k, v)
	}

	remaining := append([]value.Value{}, args...)
	for _, name := range m.ArgNames {
		if len(remaining) > 0 {
			nf.store(name, remaining[0])
			remaining = remaining[1:]
			continue
		}
		if kwargs != nil {
			if v, ok := kwargs.Get(value.Obj(value.NewString(name))); ok {
				kwargs.MarkUsed(name)
				nf.store(name, v)
				continue
			}
		}
		nf.store(name, value.Undefined())
	}
	nf.store("varargs", value.Obj(value.NewList(remaining)))
	if kwargs != nil {
		nf.store("kwargs", value.Obj(kwargs))
	} else {
		nf.store("kwargs", value.Obj(value.NewKwargs()))
	}

	vm.captures = append(vm.captures, &strings.Builder{})
	vm.frames = append(vm.frames, nf)
	savedStack := vm.stack
	savedProgram := vm.activeProgram
	vm.stack = nil
	vm.activeProgram = prog
	vm.returnExplicit = false
	err := vm.exec(prog)
	explicit, retVal := vm.returnExplicit, vm.returnValue
	vm.returnExplicit = false
	vm.returnValue = value.Value{}

	captured := vm.captures[len(vm.captures)-1].String()
	vm.captures = vm.captures[:len(vm.captures)-1]
	vm.stack = savedStack
	vm.activeProgram = savedProgram
	vm.frames = vm.frames[:len(vm.frames)-1]
	if err != nil {
		return value.Value{}, err
	}
	if explicit {
		return retVal, nil
	}
	return value.Obj(value.NewString(captured)), nil
}

func (vm *VM) execCallFunction(fr *Frame, in opcode.Instruction) error {
	n := int(in.Int)
	kwargs, args := vm.popCallArgs(n)
	if in.Str == "super" {
		return vm.execSuperCall(fr, in)
	}
	if in.Str == "return" {
		v := value.None()
		if len(args) > 0 {
			v = args[0]
		}
		vm.returnValue = v
		vm.returnExplicit = true
		return errReturnSignal
	}
	if in.Str == "loop" {
		if l := fr.currentLoop(); l != nil {
			res, err := loopObject(l).Call(args, kwargs)
			if err != nil {
				return vm.errorf(KindInvalidOperation, in.Span, "%s", err)
			}
			vm.push(res)
			return nil
		}
	}
	if v, ok := vm.findCallable(fr, in.Str); ok {
		if m, ok := v.AsObject().(*value.Macro); ok {
			res, err := vm.invokeMacro(vm.activeProgram, m, args, kwargs, vm.callerFromScope(fr))
			if err != nil {
				return err
			}
			vm.push(res)
			return nil
		}
		return vm.invokeCallable(v, args, kwargs, in)
	}
	if fn, ok := vm.functions[in.Str]; ok {
		res, err := fn(args, kwargs)
		if err != nil {
			return vm.errorf(KindInvalidOperation, in.Span, "%s", err)
		}
		vm.push(res)
		return nil
	}
	return vm.errorf(KindUnknownFunction, in.Span, "unknown function %q", in.Str)
}

// callerFromScope consumes the `__caller__` binding a {% call %}/{% endcall %}
// block stores in the calling frame just before invoking the named macro,
// wrapping its captured body text in a callable so the macro's own
// `caller()` call returns it. The binding is deleted once read so it can't
// leak into an unrelated later call sharing the same scope.
func (vm *VM) callerFromScope(fr *Frame) value.Value {
	for i := len(fr.Scopes) - 1; i >= 0; i-- {
		v, ok := fr.Scopes[i].locals["__caller__"]
		if !ok {
			continue
		}
		delete(fr.Scopes[i].locals, "__caller__")
		text := ""
		if s, ok := v.AsObject().(*value.String); ok {
			text = s.Go()
		}
		return value.Obj(&value.HostObject{
			TypeName: "caller",
			Data:     text,
			Callable: func(args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
				return value.Obj(value.NewString(text)), nil
			},
		})
	}
	return value.Value{}
}

func (vm *VM) findCallable(fr *Frame, name string) (value.Value, bool) {
	if name == "caller" {
		if fr.Caller.IsObj() && fr.Caller.AsObject() != nil {
			return fr.Caller, true
		}
		return value.Value{}, false
	}
	for i := len(fr.Scopes) - 1; i >= 0; i-- {
		if v, ok := fr.Scopes[i].locals[name]; ok {
			switch v.AsObject().(type) {
			case *value.Macro, *value.HostObject:
				return v, true
			}
		}
	}
	if v, ok := vm.globals[name]; ok {
		switch v.AsObject().(type) {
		case *value.Macro, *value.HostObject:
			return v, true
		}
	}
	return vm.resolveNamespaceMacro(name)
}

// resolveNamespaceMacro implements the dbt macro namespace resolver: a call
// name that isn't a local, a global, or a free function is searched, in
// order, as `<current_package>.<name>`, then `<root_package>.<name>`, then
// against every other registered package (the internal-packages registry),
// first match wins.
func (vm *VM) resolveNamespaceMacro(name string) (value.Value, bool) {
	if vm.currentPackage != "" {
		if v, ok := vm.packages[vm.currentPackage][name]; ok {
			return v, true
		}
	}
	if vm.rootPackage != "" && vm.rootPackage != vm.currentPackage {
		if v, ok := vm.packages[vm.rootPackage][name]; ok {
			return v, true
		}
	}
	others := make([]string, 0, len(vm.packages))
	for pkg := range vm.packages {
		if pkg != vm.currentPackage && pkg != vm.rootPackage {
			others = append(others, pkg)
		}
	}
	sort.Strings(others)
	for _, pkg := range others {
		if v, ok := vm.packages[pkg][name]; ok {
			return v, true
		}
	}
	return value.Value{}, false
}

func (vm *VM) invokeCallable(v value.Value, args []value.Value, kwargs *value.Kwargs, in opcode.Instruction) error {
	switch callee := v.AsObject().(type) {
	case *value.Macro:
		res, err := vm.invokeMacro(vm.activeProgram, callee, args, kwargs, value.Value{})
		if err != nil {
			return err
		}
		vm.push(res)
		return nil
	case *value.HostObject:
		res, err := callee.Call(args, kwargs)
		if err != nil {
			return vm.errorf(KindInvalidOperation, in.Span, "%s", err)
		}
		vm.push(res)
		return nil
	}
	return vm.errorf(KindUnknownFunction, in.Span, "value is not callable")
}

func (vm *VM) popCallArgs(n int) (*value.Kwargs, []value.Value) {
	var kwargs *value.Kwargs
	if len(vm.stack) > 0 {
		if kw, ok := vm.peek(0).AsObject().(*value.Kwargs); ok {
			kwargs = kw
			vm.pop()
		}
	}
	args := make([]value.Value, n)
	copy(args, vm.stack[len(vm.stack)-n:])
	vm.stack = vm.stack[:len(vm.stack)-n]
	return kwargs, args
}

// execCallMethod dispatches `.name(args)` calls: the supplemented soft
// dict/list methods first, then host-object callables.
func (vm *VM) execCallMethod(fr *Frame, in opcode.Instruction) error {
	n := int(in.Int)
	kwargs, args := vm.popCallArgs(n)
	target := vm.pop()
	if ns, ok := target.AsObject().(*value.PackageRef); ok {
		v, ok := vm.packages[ns.Name][in.Str]
		if !ok {
			return vm.errorf(KindUnknownFunction, in.Span, "unknown macro %q in package %q", in.Str, ns.Name)
		}
		return vm.invokeCallable(v, args, kwargs, in)
	}
	if v, err, handled := vm.dictListMethod(target, in.Str, args); handled {
		if err != nil {
			return vm.errorf(KindInvalidOperation, in.Span, "%s", err)
		}
		vm.push(v)
		return nil
	}
	if ho, ok := target.AsObject().(*value.HostObject); ok && ho.TypeName == "loop" && in.Str == "cycle" {
		l := ho.Data.(*loopState)
		if len(args) == 0 {
			vm.push(value.Undefined())
			return nil
		}
		v := args[l.cycleIdx%len(args)]
		l.cycleIdx++
		vm.push(v)
		return nil
	}
	if ho, ok := target.AsObject().(*value.HostObject); ok {
		res, err := ho.Call(args, kwargs)
		if err != nil {
			return vm.errorf(KindInvalidOperation, in.Span, "%s", err)
		}
		vm.push(res)
		return nil
	}
	return vm.errorf(KindUnknownFunction, in.Span, "unknown method %q", in.Str)
}

func (vm *VM) execCallObject(fr *Frame, in opcode.Instruction) error {
	n := int(in.Int)
	kwargs, args := vm.popCallArgs(n)
	callee := vm.pop()
	return vm.invokeCallable(callee, args, kwargs, in)
}
