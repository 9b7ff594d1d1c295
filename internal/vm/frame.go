package vm

import (
	"github.com/jinjacore/dbtjinja/internal/ast"
	"github.com/jinjacore/dbtjinja/internal/opcode"
	"github.com/jinjacore/dbtjinja/internal/value"
)

// scope is one lexical level of name bindings within a Frame, pushed by
// PushWith/PushLoop/a macro call and popped by PopFrame/loop exit/return.
type scope struct {
	locals map[string]value.Value
	loop   *loopState
}

func newScope() *scope { return &scope{locals: make(map[string]value.Value)} }

// loopState tracks everything `loop.*` exposes: index, length, depth,
// iterator, prev/current/next, and the changed-sentinel.
type loopState struct {
	items     []value.Value
	index     int // 0-based index of the item about to be bound
	depth     int
	recursive bool
	changedPrev value.Value
	changedSet  bool
	cycleIdx    int
}

func (l *loopState) attr(name string) (value.Value, bool) {
	switch name {
	case "index":
		return value.Int(int64(l.index + 1)), true
	case "index0":
		return value.Int(int64(l.index)), true
	case "revindex":
		return value.Int(int64(len(l.items) - l.index)), true
	case "revindex0":
		return value.Int(int64(len(l.items) - l.index - 1)), true
	case "first":
		return value.Bool(l.index == 0), true
	case "last":
		return value.Bool(l.index == len(l.items)-1), true
	case "length":
		return value.Int(int64(len(l.items))), true
	case "depth":
		return value.Int(int64(l.depth + 1)), true
	case "depth0":
		return value.Int(int64(l.depth)), true
	case "previtem":
		if l.index > 0 {
			return l.items[l.index-1], true
		}
		return value.Undefined(), true
	case "nextitem":
		if l.index+1 < len(l.items) {
			return l.items[l.index+1], true
		}
		return value.Undefined(), true
	}
	return value.Undefined(), false
}

// Frame is one call-stack entry: a template, a macro body or an included
// template's top level, each with its own instruction slice and scope
// stack.
type Frame struct {
	File    string
	Instrs  []opcode.Instruction
	Consts  []value.Value
	IP      int
	Scopes  []*scope
	Caller  value.Value // the `caller()` value bound inside a {% call %}
	RetSlot *value.Value // not written by Return; macro results travel through vm.returnValue
}

func (f *Frame) pushScope(l *loopState) {
	s := newScope()
	s.loop = l
	f.Scopes = append(f.Scopes, s)
}

func (f *Frame) popScope() {
	if len(f.Scopes) > 0 {
		f.Scopes = f.Scopes[:len(f.Scopes)-1]
	}
}

func (f *Frame) top() *scope { return f.Scopes[len(f.Scopes)-1] }

func (f *Frame) currentLoop() *loopState {
	for i := len(f.Scopes) - 1; i >= 0; i-- {
		if f.Scopes[i].loop != nil {
			return f.Scopes[i].loop
		}
	}
	return nil
}

func (f *Frame) store(name string, v value.Value) {
	f.top().locals[name] = v
}

func (f *Frame) lookup(name string) (value.Value, bool) {
	for i := len(f.Scopes) - 1; i >= 0; i-- {
		if v, ok := f.Scopes[i].locals[name]; ok {
			return v, true
		}
		if f.Scopes[i].loop != nil && name == "loop" {
			return value.Undefined(), false // handled specially by caller
		}
	}
	return value.Undefined(), false
}

func (f *Frame) currentSpan() ast.Span {
	if f.IP >= 0 && f.IP < len(f.Instrs) {
		return f.Instrs[f.IP].Span
	}
	return ast.Span{}
}
