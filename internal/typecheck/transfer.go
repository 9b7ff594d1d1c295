package typecheck

import (
	"strconv"
	"strings"

	"github.com/jinjacore/dbtjinja/internal/cfg"
	"github.com/jinjacore/dbtjinja/internal/opcode"
	"github.com/jinjacore/dbtjinja/internal/types"
	"github.com/jinjacore/dbtjinja/internal/value"
)

// transferBlock runs the abstract transfer over one basic block's
// instructions in order, mutating st and recording diagnostics on c.
func (c *Checker) transferBlock(prog *opcode.Program, blk *cfg.Block, st *State, macro string) *State {
	for i := blk.Start; i < blk.End; i++ {
		c.transferOne(prog, prog.Instructions[i], st, macro)
	}
	return st
}

func (c *Checker) pushDiag(in opcode.Instruction, macro, msg string) {
	c.diag = append(c.diag, Diagnostic{Span: in.Span, Message: msg, Macro: macro})
}

func (c *Checker) pop(st *State) stackVal {
	if len(st.Stack) == 0 {
		return stackVal{typ: types.AnySoft()}
	}
	v := st.Stack[len(st.Stack)-1]
	st.Stack = st.Stack[:len(st.Stack)-1]
	return v
}

func (c *Checker) push(st *State, v stackVal) { st.Stack = append(st.Stack, v) }

func (c *Checker) transferOne(prog *opcode.Program, in opcode.Instruction, st *State, macro string) {
	switch in.Op {
	case opcode.Swap:
		n := len(st.Stack)
		if n >= 2 {
			st.Stack[n-1], st.Stack[n-2] = st.Stack[n-2], st.Stack[n-1]
		}
	case opcode.DupTop:
		if len(st.Stack) > 0 {
			c.push(st, st.Stack[len(st.Stack)-1])
		} else {
			c.push(st, stackVal{typ: types.AnySoft()})
		}
	case opcode.DiscardTop:
		c.pop(st)

	case opcode.Emit, opcode.EndCapture:
		if in.Op == opcode.Emit {
			c.pop(st)
		}
		if in.Op == opcode.EndCapture {
			c.push(st, stackVal{typ: types.String()})
		}
	case opcode.BeginCapture, opcode.EmitRaw:
		// no stack effect

	case opcode.StoreLocal:
		v := c.pop(st)
		st.Locals[in.Str] = v.typ
		delete(st.SingleBranch, in.Str)
	case opcode.Lookup:
		c.transferLookup(in, st, macro)
	case opcode.GetAttr:
		c.transferGetAttr(in, st, macro)
	case opcode.SetAttr:
		if in.Str != "" {
			c.pop(st) // target
			c.pop(st) // value
		} else {
			c.pop(st) // index
			c.pop(st) // target
			c.pop(st) // value
		}
	case opcode.GetItem:
		idx := c.pop(st)
		_ = idx
		target := c.pop(st)
		// Literal subscript indices aren't tracked on the stack value yet,
		// so tuple GetItem falls back to the unknown-index path.
		t, ok := types.ItemType(target.typ, nil)
		if !ok {
			c.pushDiag(in, macro, "cannot index into "+target.typ.String())
			t = types.AnySoft()
		}
		c.push(st, stackVal{typ: t})
	case opcode.SliceOp:
		c.pop(st)
		c.pop(st)
		c.pop(st)
		target := c.pop(st)
		c.push(st, stackVal{typ: target.typ})

	case opcode.LoadConst:
		c.push(st, stackVal{typ: constType(prog, in)})
	case opcode.LoadType:
		c.push(st, stackVal{typ: types.AnySoft()})
	case opcode.BuildList:
		n := int(in.Int)
		var elems []types.Type
		for j := 0; j < n; j++ {
			elems = append(elems, c.pop(st).typ)
		}
		elem := types.AnySoft()
		if len(elems) > 0 {
			elem = types.Union(elems...)
		}
		c.push(st, stackVal{typ: types.List(elem)})
	case opcode.BuildTuple:
		n := int(in.Int)
		elems := make([]types.Type, n)
		for j := n - 1; j >= 0; j-- {
			elems[j] = c.pop(st).typ
		}
		c.push(st, stackVal{typ: types.Tuple(elems...)})
	case opcode.BuildMap:
		c.transferBuildMap(in, st)
	case opcode.BuildKwargs:
		c.pop(st)
		c.push(st, stackVal{typ: types.Kwargs()})
	case opcode.MergeKwargs:
		c.pop(st)
		c.push(st, stackVal{typ: types.Kwargs()})
	case opcode.UnpackList:
		c.transferUnpack(in, st, macro)
	case opcode.UnpackLists:
		src := c.pop(st)
		if src.typ.Kind == types.KindList {
			c.push(st, stackVal{typ: *src.typ.Elem})
		} else {
			c.push(st, stackVal{typ: types.AnySoft()})
		}

	case opcode.Add, opcode.Sub, opcode.Mul, opcode.Div, opcode.IntDiv, opcode.Rem, opcode.Pow:
		rhs := c.pop(st)
		lhs := c.pop(st)
		t, ok := types.CanBinaryOpWith(lhs.typ, rhs.typ, arithSymbol(in.Op))
		if !ok {
			c.pushDiag(in, macro, "operator "+arithSymbol(in.Op)+" not defined for "+lhs.typ.String()+" and "+rhs.typ.String())
			t = types.AnySoft()
		}
		c.push(st, stackVal{typ: t})
	case opcode.StringFormat:
		c.pop(st)
		c.pop(st)
		c.push(st, stackVal{typ: types.String()})
	case opcode.Eq, opcode.Ne, opcode.Lt, opcode.Lte, opcode.Gt, opcode.Gte:
		rhs := c.pop(st)
		lhs := c.pop(st)
		_, ok := types.CanCompareWith(lhs.typ, rhs.typ, compareSymbol(in.Op))
		if !ok {
			c.pushDiag(in, macro, "cannot compare "+lhs.typ.String()+" and "+rhs.typ.String())
		}
		c.push(st, stackVal{typ: types.Bool()})
	case opcode.Not:
		v := c.pop(st)
		if v.typ.IsOptional() {
			c.push(st, stackVal{typ: v.typ.Exclude(types.KindNone)})
		} else {
			c.push(st, stackVal{typ: types.Bool()})
		}
	case opcode.Neg:
		v := c.pop(st)
		c.push(st, stackVal{typ: v.typ})
	case opcode.In:
		c.pop(st)
		c.pop(st)
		c.push(st, stackVal{typ: types.Bool()})
	case opcode.StringConcat:
		c.pop(st)
		c.pop(st)
		c.push(st, stackVal{typ: types.String()})

	case opcode.Jump, opcode.JumpIfFalse:
		if in.Op == opcode.JumpIfFalse {
			c.pop(st)
		}
	case opcode.JumpIfFalseOrPop, opcode.JumpIfTrueOrPop:
		// conditionally pops at runtime; abstractly leave the value, since
		// both successors see either the popped-through value or nothing —
		// the merge's truncate-to-min-length absorbs the difference.
	case opcode.PushLoop:
		iter := c.pop(st)
		st.LoopElemStack = append(st.LoopElemStack, types.LoopElemType(iter.typ))
	case opcode.Iterate:
		c.push(st, stackVal{typ: st.curLoopElem()})
	case opcode.PushDidNotIterate:
		c.push(st, stackVal{typ: types.Bool()})
	case opcode.PopFrame:
		if len(st.LoopElemStack) > 0 {
			st.LoopElemStack = st.LoopElemStack[:len(st.LoopElemStack)-1]
		}
	case opcode.PushWith:
		// no stack effect

	case opcode.CallBlock, opcode.LoadBlocks, opcode.Include, opcode.FastSuper, opcode.FastRecurse:
		if in.Op == opcode.LoadBlocks || in.Op == opcode.Include {
			c.pop(st)
		}
		if in.Op == opcode.Include {
			c.push(st, stackVal{typ: types.Namespace("module")})
		}
		if in.Op == opcode.FastSuper {
			c.push(st, stackVal{typ: types.String()})
		}
	case opcode.ExportLocals:
		c.push(st, stackVal{typ: types.Dict(types.String(), types.AnySoft())})

	case opcode.BuildMacro:
		sig := prog.MacroArgs[in.Str]
		args := make([]types.Field, len(sig.ArgNames))
		for i, n := range sig.ArgNames {
			args[i] = types.Field{Name: n, Type: types.AnySoft()}
		}
		c.push(st, stackVal{typ: types.Function(args, types.String())})
	case opcode.Enclose, opcode.GetClosure:
		// closure capture carries no additional static type information
	case opcode.Return:
		if in.Flag && len(st.Stack) > 0 {
			v := c.pop(st)
			st.RVType = v.typ
		} else {
			st.RVType = types.String()
		}
		st.ReturnSpan = in.Span

	case opcode.ApplyFilter:
		c.transferFilter(in, st)
	case opcode.PerformTest:
		c.transferTest(in, st)

	case opcode.CallFunction:
		c.transferCallFunction(in, st, macro)
	case opcode.CallMethod:
		c.transferCallMethod(in, st, macro)
	case opcode.CallObject:
		n := int(in.Int)
		for j := 0; j < n; j++ {
			c.pop(st)
		}
		callee := c.pop(st)
		if callee.typ.Kind == types.KindFunction {
			c.push(st, stackVal{typ: *callee.typ.Ret})
		} else {
			c.push(st, stackVal{typ: types.AnySoft()})
		}

	case opcode.PushAutoEscape:
		c.pop(st)
	case opcode.PopAutoEscape:
		// no-op

	case opcode.TypeConstraint:
		c.transferConstraint(in, st)
	case opcode.UnionType, opcode.MacroStart, opcode.MacroStop, opcode.MacroName:
		// markers only

	case opcode.NotifyRef:
		n := int(in.Int)
		for j := 0; j < n; j++ {
			c.pop(st)
		}
		c.push(st, stackVal{typ: types.Object("relation")})
	}
}

func arithSymbol(op opcode.Op) string {
	switch op {
	case opcode.Add:
		return "+"
	case opcode.Sub:
		return "-"
	case opcode.Mul:
		return "*"
	case opcode.Div:
		return "/"
	case opcode.IntDiv:
		return "//"
	case opcode.Rem:
		return "%"
	case opcode.Pow:
		return "**"
	}
	return "?"
}

func compareSymbol(op opcode.Op) string {
	switch op {
	case opcode.Eq:
		return "=="
	case opcode.Ne:
		return "!="
	case opcode.Lt:
		return "<"
	case opcode.Lte:
		return "<="
	case opcode.Gt:
		return ">"
	case opcode.Gte:
		return ">="
	}
	return "?"
}

func constType(prog *opcode.Program, in opcode.Instruction) types.Type {
	if in.Const < 0 || in.Const >= len(prog.Constants) {
		return types.Undefined()
	}
	v := prog.Constants[in.Const]
	switch {
	case v.IsNone():
		return types.None()
	case v.IsUndefined():
		return types.Undefined()
	case v.IsBool():
		return types.Bool()
	case v.IsInt():
		return types.Integer()
	case v.IsFloat():
		return types.Float()
	case v.IsObj():
		if s, ok := v.AsObject().(*value.String); ok {
			return types.StringLiteral(s.Go())
		}
	}
	return types.AnySoft()
}

func (c *Checker) transferLookup(in opcode.Instruction, st *State, macro string) {
	if in.Str == "loop" {
		c.push(st, stackVal{typ: types.Namespace("loop")})
		return
	}
	if t, ok := st.Refine[in.Str]; ok {
		c.push(st, stackVal{typ: t, path: in.Str})
		return
	}
	if t, ok := st.Locals[in.Str]; ok {
		if st.SingleBranch[in.Str] {
			c.pushDiag(in, macro, "variable "+in.Str+" is only defined on some branches")
			c.push(st, stackVal{typ: types.AnySoft(), path: in.Str})
			return
		}
		c.push(st, stackVal{typ: t, path: in.Str})
		return
	}
	c.pushDiag(in, macro, "unknown name "+in.Str)
	c.push(st, stackVal{typ: types.AnySoft(), path: in.Str})
}

func (c *Checker) transferGetAttr(in opcode.Instruction, st *State, macro string) {
	target := c.pop(st)
	path := ""
	if target.path != "" {
		path = target.path + "." + in.Str
	}
	if path != "" {
		if t, ok := st.Refine[path]; ok {
			c.push(st, stackVal{typ: t, path: path})
			return
		}
	}
	t, ok := types.AttrType(target.typ, in.Str)
	if !ok {
		if target.typ.Kind != types.KindAny {
			c.pushDiag(in, macro, "type "+target.typ.String()+" has no attribute "+in.Str)
		}
		t = types.AnySoft()
	}
	c.push(st, stackVal{typ: t, path: path})
}

func (c *Checker) transferBuildMap(in opcode.Instruction, st *State) {
	n := int(in.Int)
	keys := make([]stackVal, n)
	vals := make([]stackVal, n)
	for j := n - 1; j >= 0; j-- {
		vals[j] = c.pop(st)
		keys[j] = c.pop(st)
	}
	allLiteral := n > 0
	for _, k := range keys {
		if k.typ.Kind != types.KindString || k.typ.StringLiteral == nil {
			allLiteral = false
			break
		}
	}
	if allLiteral {
		fields := make([]types.Field, n)
		for i := range keys {
			fields[i] = types.Field{Name: *keys[i].typ.StringLiteral, Type: vals[i].typ}
		}
		c.push(st, stackVal{typ: types.Struct(fields...)})
		return
	}
	c.push(st, stackVal{typ: types.AnyHard()})
}

func (c *Checker) transferUnpack(in opcode.Instruction, st *State, macro string) {
	n := int(in.Int)
	src := c.pop(st)
	switch {
	case src.typ.Kind == types.KindTuple && len(src.typ.Fields) == n:
		for j := n - 1; j >= 0; j-- {
			c.push(st, stackVal{typ: src.typ.Fields[j].Type})
		}
	case src.typ.Kind == types.KindList:
		for j := 0; j < n; j++ {
			c.push(st, stackVal{typ: *src.typ.Elem})
		}
	default:
		c.pushDiag(in, macro, "cannot unpack "+src.typ.String()+" into "+strconv.Itoa(n)+" names")
		for j := 0; j < n; j++ {
			c.push(st, stackVal{typ: types.AnySoft()})
		}
	}
}

func (c *Checker) transferFilter(in opcode.Instruction, st *State) {
	n := int(in.Int)
	if len(st.Stack) > 0 && st.Stack[len(st.Stack)-1].typ.Kind == types.KindKwargs {
		c.pop(st)
	}
	for j := 0; j < n; j++ {
		c.pop(st)
	}
	target := c.pop(st)
	if in.Str == "string" || in.Str == "upper" || in.Str == "lower" || in.Str == "trim" || in.Str == "title" || in.Str == "capitalize" || in.Str == "tojson" {
		c.push(st, stackVal{typ: types.String()})
		return
	}
	if in.Str == "int" {
		c.push(st, stackVal{typ: types.Integer()})
		return
	}
	if in.Str == "float" {
		c.push(st, stackVal{typ: types.Float()})
		return
	}
	if in.Str == "list" {
		if target.typ.Kind == types.KindList {
			c.push(st, stackVal{typ: target.typ})
			return
		}
		c.push(st, stackVal{typ: types.List(types.AnySoft())})
		return
	}
	if in.Str == "default" {
		c.push(st, stackVal{typ: target.typ.GetNonOptionalType()})
		return
	}
	c.push(st, stackVal{typ: types.AnySoft()})
}

func (c *Checker) transferTest(in opcode.Instruction, st *State) {
	n := int(in.Int)
	for j := 0; j < n; j++ {
		c.pop(st)
	}
	c.pop(st)
	c.push(st, stackVal{typ: types.Bool()})
}

func (c *Checker) transferCallFunction(in opcode.Instruction, st *State, macro string) {
	n := int(in.Int)
	if len(st.Stack) > 0 && st.Stack[len(st.Stack)-1].typ.Kind == types.KindKwargs {
		c.pop(st)
	}
	for j := 0; j < n; j++ {
		c.pop(st)
	}
	if in.Str == "caller" {
		if t, ok := st.Locals["caller"]; ok && t.Kind == types.KindFunction {
			c.push(st, stackVal{typ: *t.Ret})
			return
		}
		c.push(st, stackVal{typ: types.AnySoft()})
		return
	}
	if in.Str == "super" {
		c.push(st, stackVal{typ: types.String()})
		return
	}
	if in.Str == "loop" {
		c.push(st, stackVal{typ: types.AnySoft()})
		return
	}
	if t, ok := st.Locals[in.Str]; ok && t.Kind == types.KindFunction {
		c.push(st, stackVal{typ: *t.Ret})
		return
	}
	if sig, ok := c.reg.Functions[in.Str]; ok {
		c.push(st, stackVal{typ: sig.Ret})
		return
	}
	c.pushDiag(in, macro, "unknown function "+in.Str)
	c.push(st, stackVal{typ: types.AnySoft()})
}

func (c *Checker) transferCallMethod(in opcode.Instruction, st *State, macro string) {
	n := int(in.Int)
	if len(st.Stack) > 0 && st.Stack[len(st.Stack)-1].typ.Kind == types.KindKwargs {
		c.pop(st)
	}
	for j := 0; j < n; j++ {
		c.pop(st)
	}
	target := c.pop(st)
	if target.typ.Kind == types.KindNamespace {
		if methods, ok := c.reg.Namespaces[target.typ.NSName]; ok {
			if sig, ok := methods[in.Str]; ok {
				c.push(st, stackVal{typ: sig.Ret})
				return
			}
		}
		c.pushDiag(in, macro, "unknown method "+in.Str+" on "+target.typ.String())
	}
	c.push(st, stackVal{typ: types.AnySoft()})
}

func (c *Checker) transferConstraint(in opcode.Instruction, st *State) {
	kind, path, test, assert, ok := decodeConstraint(in.Str)
	if !ok {
		return
	}
	cur, known := st.Locals[path]
	if root, rest, isSub := splitPath(path); isSub {
		if rt, ok := st.Refine[root]; ok {
			cur, known = rt, true
		} else if rt, ok := st.Locals[root]; ok {
			cur, known = rt, true
		}
		_ = rest
	}
	if !known {
		cur = types.AnySoft()
	}
	constraint := types.Constraint{Kind: kind, Assert: assert, Test: test}
	st.Refine[path] = constraint.Apply(cur)
}

func splitPath(path string) (root, rest string, isSub bool) {
	idx := strings.IndexByte(path, '.')
	if idx < 0 {
		return path, "", false
	}
	return path[:idx], path[idx+1:], true
}

// decodeConstraint inverts codegen's encodeConstraint ("kind|path|assert").
func decodeConstraint(s string) (kind types.ConstraintKind, path, test string, assert, ok bool) {
	parts := strings.SplitN(s, "|", 3)
	if len(parts) != 3 {
		return 0, "", "", false, false
	}
	k, p, a := parts[0], parts[1], parts[2]
	if strings.HasPrefix(k, "is:") {
		kind = types.ConstraintIs
		test = strings.TrimPrefix(k, "is:")
	} else {
		kind = types.ConstraintNotNull
	}
	return kind, p, test, a == "1", true
}
