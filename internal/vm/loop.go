package vm

import (
	"github.com/jinjacore/dbtjinja/internal/opcode"
	"github.com/jinjacore/dbtjinja/internal/value"
)

// execPushLoop materializes the iterable on top of the stack into a
// loopState and pushes a new scope carrying it.
func (vm *VM) execPushLoop(fr *Frame, in opcode.Instruction) error {
	iter := vm.pop()
	items, err := vm.materialize(iter, in)
	if err != nil {
		return err
	}
	depth := 0
	if cur := fr.currentLoop(); cur != nil {
		depth = cur.depth + 1
	}
	fr.pushScope(&loopState{items: items, index: -1, depth: depth, recursive: in.Flag2})
	return nil
}

func (vm *VM) materialize(v value.Value, in opcode.Instruction) ([]value.Value, error) {
	switch o := v.AsObject().(type) {
	case *value.List:
		return o.Items(), nil
	case *value.Map:
		out := make([]value.Value, 0)
		for _, e := range o.Entries() {
			out = append(out, e.Key)
		}
		return out, nil
	case *value.String:
		var out []value.Value
		for _, r := range o.Go() {
			out = append(out, value.Obj(value.NewString(string(r))))
		}
		return out, nil
	case nil:
		return nil, nil
	}
	return nil, vm.errorf(KindInvalidOperation, in.Span, "value is not iterable")
}

// execIterate advances the innermost loop, jumping to in.Int (past the
// loop body) once items are exhausted.
func (vm *VM) execIterate(fr *Frame, in opcode.Instruction) error {
	l := fr.currentLoop()
	if l == nil {
		fr.IP = int(in.Int)
		return nil
	}
	l.index++
	if l.index >= len(l.items) {
		fr.IP = int(in.Int)
		return nil
	}
	vm.push(l.items[l.index])
	return nil
}
