package builtins

import (
	"fmt"

	"github.com/jinjacore/dbtjinja/internal/argparser"
	"github.com/jinjacore/dbtjinja/internal/value"
	"github.com/jinjacore/dbtjinja/internal/vm"
)

// Functions is the default free-function registry.
var Functions = map[string]vm.FunctionFunc{
	"range":     fnRange,
	"dict":      fnDict,
	"namespace": fnNamespace,
}

func fnRange(args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	p := argparser.New("range", args, kwargs)
	a, err := p.NextArg("start_or_stop")
	if err != nil {
		return value.Undefined(), err
	}
	start, stop, step := int64(0), a.AsInt(), int64(1)
	if b := p.NextArgOptional("stop", value.Undefined()); !b.IsUndefined() {
		start = a.AsInt()
		stop = b.AsInt()
	}
	if s := p.NextArgOptional("step", value.Int(1)); s.IsInt() {
		step = s.AsInt()
	}
	if err := p.Finish(); err != nil {
		return value.Undefined(), err
	}
	if step == 0 {
		return value.Undefined(), fmt.Errorf("range: step cannot be 0")
	}
	var out []value.Value
	if step > 0 {
		for i := start; i < stop; i += step {
			out = append(out, value.Int(i))
		}
	} else {
		for i := start; i > stop; i += step {
			out = append(out, value.Int(i))
		}
	}
	return value.Obj(value.NewMutableList(out)), nil
}

func fnDict(args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	m := value.NewMutableMap()
	if kwargs != nil {
		for _, e := range kwargs.Entries() {
			m.Set(e.Key, e.Val)
		}
	}
	return value.Obj(m), nil
}

func fnNamespace(args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
	initial := make(map[string]value.Value)
	if kwargs != nil {
		for _, e := range kwargs.Entries() {
			if s, ok := e.Key.AsObject().(*value.String); ok {
				initial[s.Go()] = e.Val
			}
		}
	}
	return value.Obj(value.NewNamespace(initial)), nil
}
