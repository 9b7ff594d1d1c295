package vm

import "github.com/jinjacore/dbtjinja/internal/value"

// dictListMethod implements the supplemented soft dict/list methods
// (`.items()`, `.keys()`, `.values()`, `.append()`, `.update()`). handled
// is false when name/target don't match any of these, so callers can fall
// through to host-object dispatch.
func (vm *VM) dictListMethod(target value.Value, name string, args []value.Value) (value.Value, error, bool) {
	switch o := target.AsObject().(type) {
	case *value.Map:
		switch name {
		case "items":
			out := make([]value.Value, 0)
			for _, e := range o.Entries() {
				out = append(out, value.Obj(value.NewList([]value.Value{e.Key, e.Val})))
			}
			return value.Obj(value.NewList(out)), nil, true
		case "keys":
			out := make([]value.Value, 0)
			for _, e := range o.Entries() {
				out = append(out, e.Key)
			}
			return value.Obj(value.NewList(out)), nil, true
		case "values":
			out := make([]value.Value, 0)
			for _, e := range o.Entries() {
				out = append(out, e.Val)
			}
			return value.Obj(value.NewList(out)), nil, true
		case "get":
			if len(args) == 0 {
				return value.Undefined(), nil, true
			}
			if v, ok := o.Get(args[0]); ok {
				return v, nil, true
			}
			if len(args) > 1 {
				return args[1], nil, true
			}
			return value.Undefined(), nil, true
		case "update":
			if !o.Mutable() {
				return value.Value{}, errNotMutable("dict"), true
			}
			if len(args) > 0 {
				if m, ok := args[0].AsObject().(*value.Map); ok {
					for _, e := range m.Entries() {
						o.Set(e.Key, e.Val)
					}
				}
			}
			return value.None(), nil, true
		}
	case *value.List:
		switch name {
		case "append":
			if !o.Mutable() {
				return value.Value{}, errNotMutable("list"), true
			}
			if len(args) > 0 {
				o.Append(args[0])
			}
			return value.None(), nil, true
		}
	}
	return value.Value{}, nil, false
}

func errNotMutable(kind string) error {
	return &Error{Kind: KindInvalidOperation, Message: "cannot mutate an immutable " + kind}
}
