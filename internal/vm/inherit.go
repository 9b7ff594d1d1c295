package vm

import (
	"strings"

	"github.com/jinjacore/dbtjinja/internal/opcode"
	"github.com/jinjacore/dbtjinja/internal/value"
)

// maxIncludeDepth bounds {% include %}/{% import %} recursion the same way
// a real template engine guards against a template including itself.
const maxIncludeDepth = 64

// execSetAttr disambiguates attribute assignment (in.Str is the attribute
// name, stack holds [value, target]) from item assignment (in.Str == "",
// stack holds [value, target, index]) — see codegen.compileStoreTarget.
func (vm *VM) execSetAttr(fr *Frame, in opcode.Instruction) error {
	if in.Str != "" {
		target := vm.pop()
		v := vm.pop()
		switch o := target.AsObject().(type) {
		case *value.Namespace:
			o.SetAttr(in.Str, v)
			return nil
		}
		return vm.errorf(KindInvalidOperation, in.Span, "object has no writable attribute %q", in.Str)
	}

	idx := vm.pop()
	target := vm.pop()
	v := vm.pop()
	switch o := target.AsObject().(type) {
	case *value.List:
		if !o.Mutable() {
			return vm.errorf(KindInvalidOperation, in.Span, "cannot assign into an immutable list")
		}
		i := int(idx.AsInt())
		if i < 0 {
			i += o.Len()
		}
		if !o.Set(i, v) {
			return vm.errorf(KindInvalidOperation, in.Span, "list index out of range")
		}
		return nil
	case *value.Map:
		if !o.Mutable() {
			return vm.errorf(KindInvalidOperation, in.Span, "cannot assign into an immutable dict")
		}
		o.Set(idx, v)
		return nil
	case *value.Namespace:
		o.SetAttr(vm.keyAsString(idx), v)
		return nil
	}
	return vm.errorf(KindInvalidOperation, in.Span, "value does not support item assignment")
}

// blockBody resolves which specialization of a block to run: the
// most-derived override registered in blockChain (populated by extends), or
// the active program's own definition when there is no inheritance chain.
func (vm *VM) blockBody(name string) []opcode.Instruction {
	if chain, ok := vm.blockChain[name]; ok && len(chain) > 0 {
		if idx := vm.blockIdx[name]; idx < len(chain) {
			return chain[idx]
		}
		return nil
	}
	return vm.activeProgram.Blocks[name]
}

// execCallBlock runs a {% block %} body inline, sharing the calling frame's
// scope chain so block content sees the surrounding template's locals.
func (vm *VM) execCallBlock(fr *Frame, in opcode.Instruction) error {
	body := vm.blockBody(in.Str)
	if body == nil {
		return nil
	}
	vm.blockNameStack = append(vm.blockNameStack, in.Str)
	nf := &Frame{File: fr.File, Instrs: body, Consts: vm.activeProgram.Constants, Scopes: fr.Scopes, Caller: fr.Caller}
	vm.frames = append(vm.frames, nf)
	err := vm.exec(vm.activeProgram)
	vm.frames = vm.frames[:len(vm.frames)-1]
	vm.blockNameStack = vm.blockNameStack[:len(vm.blockNameStack)-1]
	return err
}

// execLoadBlocks implements {% extends %}: the child's own block bodies
// become the most-derived link, the parent's become the next one down, and
// execution switches to the parent's top level (child statements after
// extends are unreachable, matching Jinja). This models a single level of
// inheritance per extends statement; a parent that itself extends another
// template chains further the same way when its own LoadBlocks runs.
func (vm *VM) execLoadBlocks(fr *Frame, in opcode.Instruction) error {
	tmplVal := vm.pop()
	s, ok := tmplVal.AsObject().(*value.String)
	if !ok {
		return vm.errorf(KindTemplateNotFound, in.Span, "extends target is not a template name")
	}
	if vm.loader == nil {
		return vm.errorf(KindTemplateNotFound, in.Span, "no template loader configured for extends %q", s.Go())
	}
	parent, err := vm.loader.Load(s.Go())
	if err != nil {
		return vm.errorf(KindTemplateNotFound, in.Span, "template %q not found: %s", s.Go(), err)
	}

	child := vm.activeProgram
	for name, body := range child.Blocks {
		vm.blockChain[name] = append([][]opcode.Instruction{body}, vm.blockChain[name]...)
	}
	for name, body := range parent.Blocks {
		if _, ok := vm.blockChain[name]; !ok {
			vm.blockChain[name] = [][]opcode.Instruction{body}
		} else {
			vm.blockChain[name] = append(vm.blockChain[name], body)
		}
	}

	vm.activeProgram = parent
	fr.Instrs = parent.Instructions
	fr.Consts = parent.Constants
	fr.IP = 0
	return nil
}

// execInclude backs {% include %}, {% import %} and {% from import %}
// alike: it renders the named template into a fresh frame, then pushes a
// module-like HostObject that is both GetAttr-able (for import) and
// directly renderable as its body text (for a bare include statement,
// which the caller follows with Emit).
func (vm *VM) execInclude(fr *Frame, in opcode.Instruction) error {
	tmplVal := vm.pop()
	s, ok := tmplVal.AsObject().(*value.String)
	if !ok {
		return vm.errorf(KindTemplateNotFound, in.Span, "include target is not a template name")
	}
	name := s.Go()

	missing := func() error {
		vm.push(value.Obj(&value.HostObject{TypeName: "module", RenderFn: func() (string, bool) { return "", true }}))
		return nil
	}
	if vm.loader == nil {
		if in.Flag {
			return missing()
		}
		return vm.errorf(KindTemplateNotFound, in.Span, "no template loader configured for %q", name)
	}
	if vm.includeDepth >= maxIncludeDepth {
		return vm.errorf(KindRecursionLimit, in.Span, "%s: %s", errIncludeOverflow, name)
	}
	prog, err := vm.loader.Load(name)
	if err != nil {
		if in.Flag {
			return missing()
		}
		return vm.errorf(KindTemplateNotFound, in.Span, "template %q not found: %s", name, err)
	}

	vm.includeDepth++
	savedProgram := vm.activeProgram
	nf := &Frame{File: name, Instrs: prog.Instructions, Consts: prog.Constants}
	nf.pushScope(nil)
	if in.Flag2 {
		for _, sc := range fr.Scopes {
			for k, v := range sc.locals {
				nf.store(k, v)
			}
		}
	}
	vm.captures = append(vm.captures, &strings.Builder{})
	vm.frames = append(vm.frames, nf)
	vm.activeProgram = prog
	runErr := vm.exec(prog)
	vm.frames = vm.frames[:len(vm.frames)-1]
	vm.activeProgram = savedProgram
	vm.includeDepth--

	out := vm.captures[len(vm.captures)-1]
	vm.captures = vm.captures[:len(vm.captures)-1]
	if runErr != nil {
		return runErr
	}

	text := out.String()
	exported := vm.exportLocals(nf)
	attrs := make(map[string]value.Value, exported.Len())
	for _, e := range exported.Entries() {
		if k, ok := e.Key.AsObject().(*value.String); ok {
			attrs[k.Go()] = e.Val
		}
	}
	vm.push(value.Obj(&value.HostObject{TypeName: "module", Attrs: attrs, RenderFn: func() (string, bool) { return text, true }}))
	return nil
}

// execSuperCall implements super(): it re-runs the next less-derived body
// in the current block's specialization chain, captured into a string so
// {{ super() }} can be used as an expression.
func (vm *VM) execSuperCall(fr *Frame, in opcode.Instruction) error {
	if len(vm.blockNameStack) == 0 {
		return vm.errorf(KindInvalidOperation, in.Span, "super() called outside a block")
	}
	name := vm.blockNameStack[len(vm.blockNameStack)-1]
	chain := vm.blockChain[name]
	idx := vm.blockIdx[name]
	if idx+1 >= len(chain) {
		vm.push(value.Obj(value.NewString("")))
		return nil
	}
	vm.blockIdx[name] = idx + 1
	body := chain[idx+1]

	vm.captures = append(vm.captures, &strings.Builder{})
	nf := &Frame{File: fr.File, Instrs: body, Consts: vm.activeProgram.Constants, Scopes: fr.Scopes, Caller: fr.Caller}
	vm.frames = append(vm.frames, nf)
	runErr := vm.exec(vm.activeProgram)
	vm.frames = vm.frames[:len(vm.frames)-1]
	vm.blockIdx[name] = idx

	b := vm.captures[len(vm.captures)-1]
	vm.captures = vm.captures[:len(vm.captures)-1]
	if runErr != nil {
		return runErr
	}
	vm.push(value.Obj(value.NewString(b.String())))
	return nil
}

// execSuper exists for FastSuper, an opcode current codegen never emits
// (super() compiles through CallFunction like any other call); kept so the
// dispatch table has a real handler rather than a latent panic if that
// changes.
func (vm *VM) execSuper(fr *Frame, in opcode.Instruction) error {
	return vm.execSuperCall(fr, in)
}

// execRecurse backs FastRecurse, which current codegen never emits: calling
// the loop object directly (`loop(children)`) for recursive {% for %}
// bodies is documented as unimplemented in loopObject's Callable stub, and
// nothing produces this opcode yet.
func (vm *VM) execRecurse(fr *Frame, in opcode.Instruction) error {
	return vm.errorf(KindInvalidOperation, in.Span, "recursive loop continuation is not supported")
}
