package vm

import (
	"github.com/google/uuid"

	"github.com/jinjacore/dbtjinja/internal/ast"
	"github.com/jinjacore/dbtjinja/internal/opcode"
	"github.com/jinjacore/dbtjinja/internal/value"
)

// execNotifyRef implements the model-reference notification hooks: it
// tells the host Listener about a ref()/source() call site (for dependency
// graph construction) and then resolves the call through whatever
// "ref"/"source" function the host registered, falling back to an opaque
// relation handle when none is registered. The call is augmented with a
// synthetic `location` kwarg describing the call site, so a host function
// can report it back for error messages without re-deriving it.
func (vm *VM) execNotifyRef(fr *Frame, in opcode.Instruction) error {
	n := int(in.Int)
	args := make([]value.Value, n)
	copy(args, vm.stack[len(vm.stack)-n:])
	vm.stack = vm.stack[:len(vm.stack)-n]

	if vm.listener != nil {
		id := uuid.New()
		if in.Str == "source" {
			vm.listener.OnSource(id, in.Str, args, in.Span)
		} else {
			vm.listener.OnRef(id, in.Str, args, in.Span)
		}
	}

	kwargs := value.NewKwargs()
	kwargs.Set(value.Obj(value.NewString("location")), locationValue(fr.File, in.Span))

	if fn, ok := vm.functions[in.Str]; ok {
		res, err := fn(args, kwargs)
		if err != nil {
			return vm.errorf(KindInvalidOperation, in.Span, "%s", err)
		}
		vm.push(res)
		return nil
	}

	attrs := map[string]value.Value{"name": value.Undefined()}
	if len(args) > 0 {
		attrs["name"] = args[len(args)-1]
	}
	vm.push(value.Obj(&value.HostObject{TypeName: "relation", Attrs: attrs}))
	return nil
}

// locationValue builds the `{"file": ..., "line": ..., "column": ...}`
// value carried as the synthetic `location` kwarg on every ref()/source()
// call, describing where in the template the call site's arguments start.
func locationValue(file string, span ast.Span) value.Value {
	m := value.NewMap()
	m.Set(value.Obj(value.NewString("file")), value.Obj(value.NewString(file)))
	m.Set(value.Obj(value.NewString("line")), value.Int(int64(span.Start.Line)))
	m.Set(value.Obj(value.NewString("column")), value.Int(int64(span.Start.Col)))
	return value.Obj(m)
}
