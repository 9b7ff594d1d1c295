package vm

import (
	"strings"

	"github.com/jinjacore/dbtjinja/internal/config"
	"github.com/jinjacore/dbtjinja/internal/opcode"
	"github.com/jinjacore/dbtjinja/internal/value"
)

// exec runs fr (the top of vm.frames) to completion, i.e. until its
// instruction pointer falls off the end or a Return instruction fires.
func (vm *VM) exec(prog *opcode.Program) error {
	fr := vm.frame()
	for fr.IP < len(fr.Instrs) {
		in := fr.Instrs[fr.IP]
		fr.IP++
		if err := vm.step(prog, fr, in); err != nil {
			if err == errReturnSignal {
				return nil
			}
			return err
		}
	}
	return nil
}

var errReturnSignal = &Error{Kind: KindInvalidOperation, Message: "return"}

func (vm *VM) step(prog *opcode.Program, fr *Frame, in opcode.Instruction) error {
	switch in.Op {
	case opcode.Swap:
		n := len(vm.stack)
		vm.stack[n-1], vm.stack[n-2] = vm.stack[n-2], vm.stack[n-1]
	case opcode.DupTop:
		vm.push(vm.peek(0))
	case opcode.DiscardTop:
		vm.pop()

	case opcode.Emit:
		v := vm.pop()
		vm.out().WriteString(vm.renderValue(v))
	case opcode.EmitRaw:
		vm.out().WriteString(in.Str)
	case opcode.BeginCapture:
		vm.captures = append(vm.captures, &strings.Builder{})
	case opcode.EndCapture:
		b := vm.captures[len(vm.captures)-1]
		vm.captures = vm.captures[:len(vm.captures)-1]
		vm.push(value.Obj(value.NewString(b.String())))

	case opcode.StoreLocal:
		fr.store(in.Str, vm.pop())
	case opcode.Lookup:
		vm.push(vm.lookup(fr, in.Str))
	case opcode.GetAttr:
		target := vm.pop()
		vm.push(vm.getAttr(target, in.Str))
	case opcode.SetAttr:
		return vm.execSetAttr(fr, in)
	case opcode.GetItem:
		idx := vm.pop()
		target := vm.pop()
		vm.push(vm.getItem(target, idx))
	case opcode.SliceOp:
		step := vm.pop()
		stop := vm.pop()
		start := vm.pop()
		target := vm.pop()
		vm.push(vm.sliceValue(target, start, stop, step))

	case opcode.LoadConst:
		if in.Const < 0 {
			vm.push(value.Undefined())
		} else {
			vm.push(fr.Consts[in.Const])
		}
	case opcode.LoadType:
		vm.push(value.Undefined())
	case opcode.BuildList:
		n := int(in.Int)
		items := make([]value.Value, n)
		copy(items, vm.stack[len(vm.stack)-n:])
		vm.stack = vm.stack[:len(vm.stack)-n]
		vm.push(value.Obj(value.NewList(items)))
	case opcode.BuildTuple:
		n := int(in.Int)
		items := make([]value.Value, n)
		copy(items, vm.stack[len(vm.stack)-n:])
		vm.stack = vm.stack[:len(vm.stack)-n]
		vm.push(value.Obj(value.NewList(items)))
	case opcode.BuildMap:
		n := int(in.Int)
		m := value.NewMap()
		base := len(vm.stack) - 2*n
		for i := 0; i < n; i++ {
			k := vm.stack[base+2*i]
			v := vm.stack[base+2*i+1]
			m.Set(k, v)
		}
		vm.stack = vm.stack[:base]
		vm.push(value.Obj(m))
	case opcode.BuildKwargs:
		v := vm.pop()
		kw := vm.popKwargsOrNew()
		kw.Set(value.Obj(value.NewString(in.Str)), v)
		vm.push(value.Obj(kw))
	case opcode.MergeKwargs:
		src := vm.pop()
		kw := vm.popKwargsOrNew()
		if m, ok := src.AsObject().(*value.Map); ok {
			for _, e := range m.Entries() {
				kw.Set(e.Key, e.Val)
			}
		}
		vm.push(value.Obj(kw))
	case opcode.UnpackList:
		return vm.execUnpackList(fr, in)
	case opcode.UnpackLists:
		src := vm.pop()
		if l, ok := src.AsObject().(*value.List); ok {
			for _, it := range l.Items() {
				vm.push(it)
			}
		}

	case opcode.Add, opcode.Sub, opcode.Mul, opcode.Div, opcode.IntDiv, opcode.Rem, opcode.Pow:
		return vm.execArith(fr, in)
	case opcode.StringFormat:
		return vm.execStringFormat(fr, in)
	case opcode.Eq, opcode.Ne, opcode.Lt, opcode.Lte, opcode.Gt, opcode.Gte:
		return vm.execCompare(fr, in)
	case opcode.Not:
		v := vm.pop()
		vm.push(value.Bool(!v.Truthy()))
	case opcode.Neg:
		v := vm.pop()
		if v.IsInt() {
			vm.push(value.Int(-v.AsInt()))
		} else if v.IsFloat() {
			vm.push(value.Float(-v.AsFloat()))
		} else {
			vm.push(value.Undefined())
		}
	case opcode.In:
		return vm.execIn(fr, in)
	case opcode.StringConcat:
		b := vm.pop()
		a := vm.pop()
		vm.push(value.Obj(value.NewString(vm.renderValue(a) + vm.renderValue(b))))

	case opcode.Jump:
		fr.IP = int(in.Int)
	case opcode.JumpIfFalse:
		v := vm.pop()
		if !v.Truthy() {
			fr.IP = int(in.Int)
		}
	case opcode.JumpIfFalseOrPop:
		if !vm.peek(0).Truthy() {
			fr.IP = int(in.Int)
		} else {
			vm.pop()
		}
	case opcode.JumpIfTrueOrPop:
		if vm.peek(0).Truthy() {
			fr.IP = int(in.Int)
		} else {
			vm.pop()
		}
	case opcode.PushLoop:
		return vm.execPushLoop(fr, in)
	case opcode.Iterate:
		return vm.execIterate(fr, in)
	case opcode.PushDidNotIterate:
		l := fr.currentLoop()
		vm.push(value.Bool(l == nil || len(l.items) == 0))
	case opcode.PopFrame:
		fr.popScope()
	case opcode.PushWith:
		fr.pushScope(nil)

	case opcode.CallBlock:
		return vm.execCallBlock(fr, in)
	case opcode.LoadBlocks:
		return vm.execLoadBlocks(fr, in)
	case opcode.Include:
		return vm.execInclude(fr, in)
	case opcode.ExportLocals:
		vm.push(value.Obj(vm.exportLocals(fr)))
	case opcode.FastSuper:
		return vm.execSuper(fr, in)
	case opcode.FastRecurse:
		return vm.execRecurse(fr, in)

	case opcode.BuildMacro:
		vm.push(vm.buildMacro(prog, in.Str))
	case opcode.Enclose:
		// macro value is on top; closure capture already embedded by
		// buildMacro copying the defining frame's whole scope chain
	case opcode.GetClosure:
		vm.push(vm.lookup(fr, in.Str))
	case opcode.Return:
		if in.Flag && len(vm.stack) > 0 {
			// a value left on the stack here is dropped when invokeMacro
			// restores the caller's stack; `return(x)` calls deliver their
			// value through execCallFunction instead
		}
		return errReturnSignal

	case opcode.ApplyFilter:
		return vm.execFilter(fr, in)
	case opcode.PerformTest:
		return vm.execTest(fr, in)

	case opcode.CallFunction:
		return vm.execCallFunction(fr, in)
	case opcode.CallMethod:
		return vm.execCallMethod(fr, in)
	case opcode.CallObject:
		return vm.execCallObject(fr, in)

	case opcode.PushAutoEscape:
		v := vm.pop()
		vm.autoEscape = append(vm.autoEscape, autoEscapeModeOf(v))
	case opcode.PopAutoEscape:
		vm.autoEscape = vm.autoEscape[:len(vm.autoEscape)-1]

	case opcode.TypeConstraint, opcode.UnionType, opcode.MacroStart, opcode.MacroStop, opcode.MacroName:
		// type-checker hints; no-op at runtime

	case opcode.NotifyRef:
		return vm.execNotifyRef(fr, in)

	default:
		return vm.errorf(KindInvalidOperation, in.Span, "unimplemented opcode %s", in.Op)
	}
	return nil
}

func autoEscapeModeOf(v value.Value) config.AutoEscapeMode {
	if v.IsBool() {
		if v.AsBool() {
			return config.AutoEscapeHTML
		}
		return config.AutoEscapeNone
	}
	if s, ok := v.AsObject().(*value.String); ok {
		switch s.Go() {
		case "html":
			return config.AutoEscapeHTML
		case "json":
			return config.AutoEscapeJSON
		}
	}
	return config.AutoEscapeNone
}

func (vm *VM) popKwargsOrNew() *value.Kwargs {
	if len(vm.stack) > 0 {
		if kw, ok := vm.peek(0).AsObject().(*value.Kwargs); ok {
			vm.pop()
			return kw
		}
	}
	return value.NewKwargs()
}

func (vm *VM) execUnpackList(fr *Frame, in opcode.Instruction) error {
	n := int(in.Int)
	src := vm.pop()
	l, ok := src.AsObject().(*value.List)
	if !ok {
		return vm.errorf(KindInvalidOperation, in.Span, "cannot unpack non-sequence value")
	}
	items := l.Items()
	if len(items) != n {
		return vm.errorf(KindInvalidOperation, in.Span, "expected %d items to unpack, got %d", n, len(items))
	}
	for i := n - 1; i >= 0; i-- {
		vm.push(items[i])
	}
	return nil
}
