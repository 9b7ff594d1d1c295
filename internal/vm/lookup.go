package vm

import (
	"strconv"
	"strings"

	"github.com/jinjacore/dbtjinja/internal/config"
	"github.com/jinjacore/dbtjinja/internal/value"
)

// lookup resolves a bare name: current frame's scopes (innermost first,
// with `loop` resolved against the nearest enclosing loopState), then
// globals.
func (vm *VM) lookup(fr *Frame, name string) value.Value {
	if name == "loop" {
		if l := fr.currentLoop(); l != nil {
			return value.Obj(loopObject(l))
		}
	}
	for i := len(fr.Scopes) - 1; i >= 0; i-- {
		if v, ok := fr.Scopes[i].locals[name]; ok {
			return v
		}
	}
	if v, ok := vm.globals[name]; ok {
		return v
	}
	if _, ok := vm.packages[name]; ok {
		return value.Obj(&value.PackageRef{Name: name})
	}
	return vm.undefinedValue(name)
}

func (vm *VM) undefinedValue(name string) value.Value {
	switch vm.undefined {
	case config.Strict, config.SemiStrict:
		return value.Undefined()
	default:
		return value.Undefined()
	}
}

func loopObject(l *loopState) *value.HostObject {
	attrs := make(map[string]value.Value)
	for _, n := range []string{"index", "index0", "revindex", "revindex0", "first", "last",
		"length", "depth", "depth0", "previtem", "nextitem"} {
		if v, ok := l.attr(n); ok {
			attrs[n] = v
		}
	}
	// Calling the loop object directly (`loop(children)`) recurses into a
	// `{% for ... recursive %}` body with a new iterable — left
	// unimplemented (documented in DESIGN.md): it would require re-running
	// the enclosing for-body's instruction range as a sub-frame, which
	// needs the body's span threaded through PushLoop and isn't wired.
	return &value.HostObject{TypeName: "loop", Data: l, Attrs: attrs, Callable: func(args []value.Value, kwargs *value.Kwargs) (value.Value, error) {
		return value.Undefined(), nil
	}}
}

func (vm *VM) getAttr(target value.Value, name string) value.Value {
	if target.IsObj() && target.AsObject() != nil {
		if v, ok := target.AsObject().GetAttr(name); ok {
			return v
		}
	}
	return value.Undefined()
}

func (vm *VM) getItem(target, idx value.Value) value.Value {
	switch o := target.AsObject().(type) {
	case *value.List:
		i := int(idx.AsInt())
		if i < 0 {
			i += o.Len()
		}
		v, ok := o.Get(i)
		if !ok {
			return value.Undefined()
		}
		return v
	case *value.Map:
		v, ok := o.Get(idx)
		if !ok {
			return value.Undefined()
		}
		return v
	case *value.String:
		i := int(idx.AsInt())
		runes := []rune(o.Go())
		if i < 0 {
			i += len(runes)
		}
		if i < 0 || i >= len(runes) {
			return value.Undefined()
		}
		return value.Obj(value.NewString(string(runes[i])))
	case *value.HostObject:
		if v, ok := o.GetAttr(vm.keyAsString(idx)); ok {
			return v
		}
	}
	return value.Undefined()
}

func (vm *VM) keyAsString(v value.Value) string {
	if s, ok := v.AsObject().(*value.String); ok {
		return s.Go()
	}
	if v.IsInt() {
		return strconv.FormatInt(v.AsInt(), 10)
	}
	return ""
}

func (vm *VM) sliceValue(target, start, stop, step value.Value) value.Value {
	l, ok := target.AsObject().(*value.List)
	var items []value.Value
	var isStr bool
	var str []rune
	if ok {
		items = l.Items()
	} else if s, ok := target.AsObject().(*value.String); ok {
		isStr = true
		str = []rune(s.Go())
		items = make([]value.Value, len(str))
	} else {
		return value.Undefined()
	}
	n := len(items)
	if isStr {
		n = len(str)
	}
	st := 1
	if step.IsInt() {
		st = int(step.AsInt())
	}
	startI, stopI := sliceBounds(start, stop, n, st)
	var outIdx []int
	if st > 0 {
		for i := startI; i < stopI; i += st {
			outIdx = append(outIdx, i)
		}
	} else if st < 0 {
		for i := startI; i > stopI; i += st {
			outIdx = append(outIdx, i)
		}
	}
	if isStr {
		var b strings.Builder
		for _, i := range outIdx {
			if i >= 0 && i < len(str) {
				b.WriteRune(str[i])
			}
		}
		return value.Obj(value.NewString(b.String()))
	}
	out := make([]value.Value, 0, len(outIdx))
	for _, i := range outIdx {
		if i >= 0 && i < len(items) {
			out = append(out, items[i])
		}
	}
	return value.Obj(value.NewList(out))
}

func sliceBounds(start, stop value.Value, n, step int) (int, int) {
	def0, defN := 0, n
	if step < 0 {
		def0, defN = n-1, -1
	}
	s := def0
	if start.IsInt() {
		s = normIndex(int(start.AsInt()), n)
	}
	e := defN
	if stop.IsInt() {
		e = normIndex(int(stop.AsInt()), n)
	}
	return s, e
}

func normIndex(i, n int) int {
	if i < 0 {
		i += n
	}
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

func (vm *VM) exportLocals(fr *Frame) *value.Map {
	m := value.NewMap()
	for _, s := range fr.Scopes {
		for k, v := range s.locals {
			m.Set(value.Obj(value.NewString(k)), v)
		}
	}
	return m
}
