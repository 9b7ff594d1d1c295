package vm

import (
	"github.com/jinjacore/dbtjinja/internal/opcode"
	"github.com/jinjacore/dbtjinja/internal/value"
)

func (vm *VM) execFilter(fr *Frame, in opcode.Instruction) error {
	kwargs, _ := vm.popTrailingKwargs()
	n := int(in.Int)
	args := make([]value.Value, n)
	copy(args, vm.stack[len(vm.stack)-n:])
	vm.stack = vm.stack[:len(vm.stack)-n]
	target := vm.pop()
	f, ok := vm.filters[in.Str]
	if !ok {
		return vm.errorf(KindUnknownFilter, in.Span, "unknown filter %q", in.Str)
	}
	res, err := f(target, args, kwargs)
	if err != nil {
		return vm.errorf(KindInvalidOperation, in.Span, "%s", err)
	}
	vm.push(res)
	return nil
}

func (vm *VM) popTrailingKwargs() (*value.Kwargs, bool) {
	if len(vm.stack) == 0 {
		return nil, false
	}
	if kw, ok := vm.peek(0).AsObject().(*value.Kwargs); ok {
		vm.pop()
		return kw, true
	}
	return nil, false
}

func (vm *VM) execTest(fr *Frame, in opcode.Instruction) error {
	n := int(in.Int)
	args := make([]value.Value, n)
	copy(args, vm.stack[len(vm.stack)-n:])
	vm.stack = vm.stack[:len(vm.stack)-n]
	target := vm.pop()
	t, ok := vm.tests[in.Str]
	if !ok {
		return vm.errorf(KindUnknownTest, in.Span, "unknown test %q", in.Str)
	}
	res, err := t(target, args)
	if err != nil {
		return vm.errorf(KindInvalidOperation, in.Span, "%s", err)
	}
	vm.push(value.Bool(res))
	return nil
}
