package typecheck

import (
	"github.com/jinjacore/dbtjinja/internal/ast"
	"github.com/jinjacore/dbtjinja/internal/types"
)

// stackVal is one abstract operand: its static type plus the dotted path
// it was read from, when known (root local name, or "root.attr.attr2..."),
// so GetAttr/GetItem can consult the refinement map built by TypeConstraint
// hints.
type stackVal struct {
	typ  types.Type
	path string
}

// State is the abstract state flowing along one CFG edge.
type State struct {
	Stack  []stackVal
	Locals map[string]types.Type

	// Refine holds path -> narrowed-type overrides asserted by
	// TypeConstraint hints, consulted ahead of a path's plain declared
	// type by Lookup/GetAttr.
	Refine map[string]types.Type

	// LoopElemStack tracks the element type of each enclosing for-loop,
	// innermost last, consumed by Iterate's post-push.
	LoopElemStack []types.Type

	SingleBranch map[string]bool

	RVType     types.Type
	ReturnSpan ast.Span
}

func newState() *State {
	return &State{
		Locals:       make(map[string]types.Type),
		Refine:       make(map[string]types.Type),
		SingleBranch: make(map[string]bool),
	}
}

// clone deep-copies everything the worklist mutates per block so sharing a
// predecessor's out-state across multiple successors is safe.
func (s *State) clone() *State {
	ns := &State{
		Stack:         append([]stackVal(nil), s.Stack...),
		Locals:        make(map[string]types.Type, len(s.Locals)),
		Refine:        make(map[string]types.Type, len(s.Refine)),
		LoopElemStack: append([]types.Type(nil), s.LoopElemStack...),
		SingleBranch:  make(map[string]bool, len(s.SingleBranch)),
		RVType:        s.RVType,
		ReturnSpan:    s.ReturnSpan,
	}
	for k, v := range s.Locals {
		ns.Locals[k] = v
	}
	for k, v := range s.Refine {
		ns.Refine[k] = v
	}
	for k, v := range s.SingleBranch {
		ns.SingleBranch[k] = v
	}
	return ns
}

func (s *State) curLoopElem() types.Type {
	if len(s.LoopElemStack) == 0 {
		return types.AnySoft()
	}
	return s.LoopElemStack[len(s.LoopElemStack)-1]
}

// mergeStates merges two predecessor states at a CFG join point: stack
// truncated to the shorter length then elementwise unioned, locals unioned
// on matching keys (keys present on only one side widen to Any-hard and are
// recorded in single_branch_definition_vars), loop element type unioned.
func mergeStates(a, b *State) *State {
	out := newState()

	n := len(a.Stack)
	if len(b.Stack) < n {
		n = len(b.Stack)
	}
	out.Stack = make([]stackVal, n)
	for i := 0; i < n; i++ {
		av, bv := a.Stack[len(a.Stack)-n+i], b.Stack[len(b.Stack)-n+i]
		path := ""
		if av.path == bv.path {
			path = av.path
		}
		out.Stack[i] = stackVal{typ: types.Union(av.typ, bv.typ), path: path}
	}

	seen := make(map[string]bool)
	for k, av := range a.Locals {
		seen[k] = true
		if bv, ok := b.Locals[k]; ok {
			out.Locals[k] = types.Union(av, bv)
		} else {
			out.Locals[k] = types.AnyHard()
			out.SingleBranch[k] = true
		}
	}
	for k, bv := range b.Locals {
		if seen[k] {
			continue
		}
		out.Locals[k] = types.AnyHard()
		_ = bv
		out.SingleBranch[k] = true
	}
	for k := range a.SingleBranch {
		out.SingleBranch[k] = true
	}
	for k := range b.SingleBranch {
		out.SingleBranch[k] = true
	}

	for k, v := range a.Refine {
		if bv, ok := b.Refine[k]; ok {
			out.Refine[k] = types.Union(v, bv)
		}
	}

	switch {
	case len(a.LoopElemStack) == 0 && len(b.LoopElemStack) == 0:
	case len(a.LoopElemStack) == 0:
		out.LoopElemStack = append(out.LoopElemStack, b.LoopElemStack...)
	case len(b.LoopElemStack) == 0:
		out.LoopElemStack = append(out.LoopElemStack, a.LoopElemStack...)
	default:
		m := len(a.LoopElemStack)
		if len(b.LoopElemStack) < m {
			m = len(b.LoopElemStack)
		}
		for i := 0; i < m; i++ {
			av, bv := a.LoopElemStack[len(a.LoopElemStack)-m+i], b.LoopElemStack[len(b.LoopElemStack)-m+i]
			u := types.Union(av, bv)
			if u.Kind == types.KindUnion {
				u = types.AnySoft()
			}
			out.LoopElemStack = append(out.LoopElemStack, u)
		}
	}

	out.RVType = types.Union(a.RVType, b.RVType)
	if a.ReturnSpan != (ast.Span{}) {
		out.ReturnSpan = a.ReturnSpan
	} else {
		out.ReturnSpan = b.ReturnSpan
	}
	return out
}

// equalStates is the worklist's fixpoint test: string-render each piece
// (types.Type already defines structural String()) and compare.
func equalStates(a, b *State) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.Stack) != len(b.Stack) || len(a.Locals) != len(b.Locals) {
		return false
	}
	for i := range a.Stack {
		if a.Stack[i].typ.String() != b.Stack[i].typ.String() || a.Stack[i].path != b.Stack[i].path {
			return false
		}
	}
	for k, v := range a.Locals {
		bv, ok := b.Locals[k]
		if !ok || v.String() != bv.String() {
			return false
		}
	}
	return a.RVType.String() == b.RVType.String()
}
