package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jinjacore/dbtjinja/internal/opcode"
	"github.com/jinjacore/dbtjinja/internal/value"
)

func (vm *VM) execArith(fr *Frame, in opcode.Instruction) error {
	b := vm.pop()
	a := vm.pop()
	if a.IsUndefined() || b.IsUndefined() {
		return vm.errorf(KindUndefined, in.Span, "arithmetic on an undefined value")
	}
	if in.Op == opcode.Add {
		if al, ok := a.AsObject().(*value.List); ok {
			if bl, ok := b.AsObject().(*value.List); ok {
				out := append(append([]value.Value{}, al.Items()...), bl.Items()...)
				vm.push(value.Obj(value.NewList(out)))
				return nil
			}
		}
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if !aok || !bok {
		return vm.errorf(KindInvalidOperation, in.Span, "unsupported operand types for %s", in.Op)
	}
	bothInt := a.IsInt() && b.IsInt()
	var res float64
	switch in.Op {
	case opcode.Add:
		res = af + bf
	case opcode.Sub:
		res = af - bf
	case opcode.Mul:
		res = af * bf
	case opcode.Div:
		if bf == 0 {
			return vm.errorf(KindInvalidOperation, in.Span, "division by zero")
		}
		vm.push(value.Float(af / bf))
		return nil
	case opcode.IntDiv:
		if bf == 0 {
			return vm.errorf(KindInvalidOperation, in.Span, "division by zero")
		}
		vm.push(value.Int(int64(af) / int64(bf)))
		return nil
	case opcode.Rem:
		if bf == 0 {
			return vm.errorf(KindInvalidOperation, in.Span, "division by zero")
		}
		if bothInt {
			vm.push(value.Int(int64(af) % int64(bf)))
			return nil
		}
		res = float64(int64(af) % int64(bf))
	case opcode.Pow:
		res = math.Pow(af, bf)
	}
	if bothInt {
		vm.push(value.Int(int64(res)))
	} else {
		vm.push(value.Float(res))
	}
	return nil
}

func asFloat(v value.Value) (float64, bool) {
	if v.IsInt() {
		return float64(v.AsInt()), true
	}
	if v.IsFloat() {
		return v.AsFloat(), true
	}
	return 0, false
}

func (vm *VM) execCompare(fr *Frame, in opcode.Instruction) error {
	b := vm.pop()
	a := vm.pop()
	switch in.Op {
	case opcode.Eq:
		vm.push(value.Bool(value.Equal(a, b)))
	case opcode.Ne:
		vm.push(value.Bool(!value.Equal(a, b)))
	case opcode.Lt:
		vm.push(value.Bool(value.Compare(a, b) < 0))
	case opcode.Lte:
		vm.push(value.Bool(value.Compare(a, b) <= 0))
	case opcode.Gt:
		vm.push(value.Bool(value.Compare(a, b) > 0))
	case opcode.Gte:
		vm.push(value.Bool(value.Compare(a, b) >= 0))
	}
	return nil
}

func (vm *VM) execIn(fr *Frame, in opcode.Instruction) error {
	container := vm.pop()
	needle := vm.pop()
	found := false
	switch o := container.AsObject().(type) {
	case *value.List:
		for _, it := range o.Items() {
			if value.Equal(it, needle) {
				found = true
				break
			}
		}
	case *value.Map:
		_, found = o.Get(needle)
	case *value.String:
		if s, ok := needle.AsObject().(*value.String); ok {
			found = strings.Contains(o.Go(), s.Go())
		}
	}
	vm.push(value.Bool(found))
	return nil
}

// execStringFormat implements the supplemented `"%s" % value` formatting
// operator: only %s/%d/%f are honored, matching the subset templates
// actually exercise.
func (vm *VM) execStringFormat(fr *Frame, in opcode.Instruction) error {
	rhs := vm.pop()
	lhs := vm.pop()
	fmtStr, ok := lhs.AsObject().(*value.String)
	if !ok {
		return vm.errorf(KindInvalidOperation, in.Span, "'%%' requires a string left operand")
	}
	var args []value.Value
	if l, ok := rhs.AsObject().(*value.List); ok {
		args = l.Items()
	} else {
		args = []value.Value{rhs}
	}
	out, err := formatPercent(fmtStr.Go(), args, vm)
	if err != nil {
		return vm.errorf(KindInvalidOperation, in.Span, "%s", err)
	}
	vm.push(value.Obj(value.NewString(out)))
	return nil
}

func formatPercent(f string, args []value.Value, vm *VM) (string, error) {
	var b strings.Builder
	ai := 0
	for i := 0; i < len(f); i++ {
		c := f[i]
		if c != '%' || i+1 >= len(f) {
			b.WriteByte(c)
			continue
		}
		i++
		if ai >= len(args) {
			return "", fmt.Errorf("not enough arguments for format string")
		}
		arg := args[ai]
		ai++
		switch f[i] {
		case 's':
			b.WriteString(vm.renderValue(arg))
		case 'd':
			if arg.IsInt() {
				b.WriteString(strconv.FormatInt(arg.AsInt(), 10))
			} else {
				b.WriteString(vm.renderValue(arg))
			}
		case 'f':
			af, _ := asFloat(arg)
			b.WriteString(strconv.FormatFloat(af, 'f', 6, 64))
		case '%':
			b.WriteByte('%')
			ai--
		default:
			b.WriteByte('%')
			b.WriteByte(f[i])
		}
	}
	return b.String(), nil
}
