// Package codegen lowers the AST into bytecode. One compile
// pass produces a single Program; TypeConstraint/MacroStart/MacroStop/
// MacroName instructions are always emitted as lightweight hints
// consumed by internal/typecheck and treated as no-ops by internal/vm (the
// UnionType hint opcode exists in the instruction set but is not emitted) —
// this is the "dual-profile" split from a single emission pass rather than
// two separate passes, since both consumers read the same linear stream
// and the hint opcodes cost nothing on the render path.
package codegen

import (
	"fmt"
	"strconv"

	"github.com/jinjacore/dbtjinja/internal/ast"
	"github.com/jinjacore/dbtjinja/internal/opcode"
	"github.com/jinjacore/dbtjinja/internal/types"
	"github.com/jinjacore/dbtjinja/internal/value"
)

// pending is one entry of the jump-patching stack: a block awaiting one or
// more backfilled targets once its extent is known.
type pending struct {
	kind       string // "branch", "loop", "scbool"
	jumpIdx    int    // index of the instruction needing a Patch
	extraJumps []int  // additional jumps to the same target (e.g. if/elif chain ends)
}

// Compiler lowers one template body into a Program.
type Compiler struct {
	prog       *opcode.Program
	pending    []pending
	macroNames map[string]bool
}

// Compile lowers a parsed template into a Program.
func Compile(tpl *ast.Template, file, source string) (*opcode.Program, error) {
	c := &Compiler{prog: opcode.NewProgram(file, source), macroNames: map[string]bool{}}
	if err := c.compileStmts(tpl.Body); err != nil {
		return nil, err
	}
	c.emit(opcode.Return, tpl.Span())
	return c.prog, nil
}

func (c *Compiler) emit(op opcode.Op, span ast.Span) int {
	return c.prog.Emit(opcode.Instruction{Op: op, Span: span})
}

func (c *Compiler) emitStr(op opcode.Op, span ast.Span, s string) int {
	return c.prog.Emit(opcode.Instruction{Op: op, Span: span, Str: s})
}

func (c *Compiler) emitInt(op opcode.Op, span ast.Span, i int64) int {
	return c.prog.Emit(opcode.Instruction{Op: op, Span: span, Int: i})
}

func (c *Compiler) compileStmts(stmts []ast.Stmt) error {
	for _, s := range stmts {
		if err := c.compileStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) compileStmt(s ast.Stmt) error {
	switch n := s.(type) {
	case *ast.EmitRaw:
		c.emitStr(opcode.EmitRaw, n.Span(), n.Data)
	case *ast.EmitExpr:
		if err := c.compileExpr(n.Expr); err != nil {
			return err
		}
		c.emit(opcode.Emit, n.Span())
	case *ast.Comment:
		// no bytecode
	case *ast.Do:
		if err := c.compileExpr(n.Expr); err != nil {
			return err
		}
		c.emit(opcode.DiscardTop, n.Span())
	case *ast.Set:
		if err := c.compileExpr(n.Value); err != nil {
			return err
		}
		if n.Filter != "" {
			c.emitStr(opcode.ApplyFilter, n.Span(), n.Filter)
		}
		if err := c.compileStoreTarget(n.Target); err != nil {
			return err
		}
	case *ast.SetBlock:
		c.emit(opcode.BeginCapture, n.Span())
		if err := c.compileStmts(n.Body); err != nil {
			return err
		}
		c.emit(opcode.EndCapture, n.Span())
		if n.Filter != "" {
			c.emitStr(opcode.ApplyFilter, n.Span(), n.Filter)
		}
		if err := c.compileStoreTarget(n.Target); err != nil {
			return err
		}
	case *ast.IfCond:
		return c.compileIf(n)
	case *ast.ForLoop:
		return c.compileFor(n)
	case *ast.WithBlock:
		c.emit(opcode.PushWith, n.Span())
		for i, name := range n.Names {
			if err := c.compileExpr(n.Values[i]); err != nil {
				return err
			}
			c.emitStr(opcode.StoreLocal, n.Span(), name)
		}
		if err := c.compileStmts(n.Body); err != nil {
			return err
		}
		c.emit(opcode.PopFrame, n.Span())
	case *ast.AutoEscape:
		if err := c.compileExpr(n.Mode); err != nil {
			return err
		}
		c.emit(opcode.PushAutoEscape, n.Span())
		if err := c.compileStmts(n.Body); err != nil {
			return err
		}
		c.emit(opcode.PopAutoEscape, n.Span())
	case *ast.FilterBlock:
		c.emit(opcode.BeginCapture, n.Span())
		if err := c.compileStmts(n.Body); err != nil {
			return err
		}
		c.emit(opcode.EndCapture, n.Span())
		if err := c.compileFilterChainTail(n.Filter); err != nil {
			return err
		}
		c.emit(opcode.Emit, n.Span())
	case *ast.Block:
		c.emitStr(opcode.CallBlock, n.Span(), n.Name)
		c.prog.Blocks[n.Name] = nil // body compiled separately below
		saved := c.prog.Instructions
		c.prog.Instructions = nil
		if err := c.compileStmts(n.Body); err != nil {
			return err
		}
		c.emit(opcode.Return, n.Span())
		c.prog.Blocks[n.Name] = c.prog.Instructions
		c.prog.Instructions = saved
	case *ast.Include:
		if err := c.compileExpr(n.Template); err != nil {
			return err
		}
		c.prog.Emit(opcode.Instruction{Op: opcode.Include, Span: n.Span(), Flag: n.IgnoreMissing, Flag2: n.WithContext})
		c.emit(opcode.Emit, n.Span())
	case *ast.Import:
		if err := c.compileExpr(n.Template); err != nil {
			return err
		}
		c.prog.Emit(opcode.Instruction{Op: opcode.Include, Span: n.Span(), Flag: n.IgnoreMissing})
		c.emitStr(opcode.StoreLocal, n.Span(), n.Name)
	case *ast.FromImport:
		if err := c.compileExpr(n.Template); err != nil {
			return err
		}
		c.prog.Emit(opcode.Instruction{Op: opcode.Include, Span: n.Span(), Flag: n.IgnoreMissing})
		tmp := "__import__"
		c.emitStr(opcode.StoreLocal, n.Span(), tmp)
		for _, nm := range n.Names {
			c.emitStr(opcode.Lookup, n.Span(), tmp)
			c.emitStr(opcode.GetAttr, n.Span(), nm.Name)
			alias := nm.Alias
			if alias == "" {
				alias = nm.Name
			}
			c.emitStr(opcode.StoreLocal, n.Span(), alias)
		}
	case *ast.Extends:
		if err := c.compileExpr(n.Template); err != nil {
			return err
		}
		c.emit(opcode.LoadBlocks, n.Span())
	case *ast.Macro:
		return c.compileMacro(n)
	case *ast.CallBlock:
		c.emit(opcode.BeginCapture, n.Span())
		if err := c.compileStmts(n.Body); err != nil {
			return err
		}
		c.emit(opcode.EndCapture, n.Span())
		tmp := "__caller__"
		c.emitStr(opcode.StoreLocal, n.Span(), tmp)
		if err := c.compileExpr(n.Call); err != nil {
			return err
		}
		c.emit(opcode.Emit, n.Span())
	case *ast.Continue, *ast.Break:
		return c.compileLoopCtl(s)
	default:
		return fmt.Errorf("codegen: unhandled statement %T", s)
	}
	return nil
}

func (c *Compiler) compileLoopCtl(s ast.Stmt) error {
	var jump int
	var kind string
	switch s.(type) {
	case *ast.Continue:
		kind = "loop-continue"
	case *ast.Break:
		kind = "loop-break"
	}
	jump = c.emit(opcode.Jump, s.Span())
	for i := len(c.pending) - 1; i >= 0; i-- {
		if c.pending[i].kind == "loop" {
			c.pending[i].extraJumps = append(c.pending[i].extraJumps, jump)
			return nil
		}
	}
	return fmt.Errorf("codegen: %s outside loop", kind)
}

func (c *Compiler) compileStoreTarget(target ast.Expr) error {
	switch t := target.(type) {
	case *ast.Var:
		c.emitStr(opcode.StoreLocal, t.Span(), t.Name)
		return nil
	case *ast.GetAttr:
		if err := c.compileExpr(t.Target); err != nil {
			return err
		}
		c.emitStr(opcode.SetAttr, t.Span(), t.Name)
		return nil
	case *ast.GetItem:
		if err := c.compileExpr(t.Target); err != nil {
			return err
		}
		if err := c.compileExpr(t.Index); err != nil {
			return err
		}
		c.emit(opcode.SetAttr, t.Span())
		return nil
	}
	return fmt.Errorf("codegen: invalid assignment target %T", target)
}

func (c *Compiler) compileIf(n *ast.IfCond) error {
	if err := c.compileExpr(n.Cond); err != nil {
		return err
	}
	c.extractConstraint(n.Cond, true)
	jmpElse := c.emit(opcode.JumpIfFalse, n.Span())
	if err := c.compileStmts(n.Then); err != nil {
		return err
	}
	jmpEnd := c.emit(opcode.Jump, n.Span())
	c.prog.Patch(jmpElse, c.prog.Len())
	c.extractConstraint(n.Cond, false)
	if n.Else != nil {
		if err := c.compileStmts(n.Else); err != nil {
			return err
		}
	}
	c.prog.Patch(jmpEnd, c.prog.Len())
	return nil
}

func (c *Compiler) compileFor(n *ast.ForLoop) error {
	if err := c.compileExpr(n.Iter); err != nil {
		return err
	}
	recur := n.Recursive
	c.prog.Emit(opcode.Instruction{Op: opcode.PushLoop, Span: n.Span(), Flag2: recur})
	bodyStart := c.prog.Len()
	iterJmp := c.emit(opcode.Iterate, n.Span())
	if len(n.Target) == 1 {
		c.emitStr(opcode.StoreLocal, n.Span(), n.Target[0])
	} else {
		c.emitInt(opcode.UnpackList, n.Span(), int64(len(n.Target)))
		for _, t := range n.Target {
			c.emitStr(opcode.StoreLocal, n.Span(), t)
		}
	}
	if n.Filter != nil {
		if err := c.compileExpr(n.Filter); err != nil {
			return err
		}
		skip := c.emit(opcode.JumpIfFalse, n.Span())
		if err := c.compileStmts(n.Body); err != nil {
			return err
		}
		c.prog.Patch(skip, c.prog.Len())
	} else {
		c.pending = append(c.pending, pending{kind: "loop"})
		if err := c.compileStmts(n.Body); err != nil {
			return err
		}
		p := c.pending[len(c.pending)-1]
		c.pending = c.pending[:len(c.pending)-1]
		for _, j := range p.extraJumps {
			c.prog.Patch(j, c.prog.Len())
		}
	}
	c.emitInt(opcode.Jump, n.Span(), int64(bodyStart))
	c.prog.Patch(iterJmp, c.prog.Len())
	c.emit(opcode.PopFrame, n.Span())
	if n.Else != nil {
		c.emit(opcode.PushDidNotIterate, n.Span())
		skipElse := c.emit(opcode.JumpIfFalse, n.Span())
		if err := c.compileStmts(n.Else); err != nil {
			return err
		}
		c.prog.Patch(skipElse, c.prog.Len())
	}
	return nil
}

func (c *Compiler) compileMacro(n *ast.Macro) error {
	// ast.FreeVars identifies the closure's captured names, but its result
	// is not used here or by the type checker; the VM captures a
	// macro's entire defining scope chain in one step (invokeMacro), since
	// an Instruction's single Str/Int/Const operand slots are too narrow
	// to carry an arbitrary free-variable list.
	_ = ast.FreeVars(n.Args, n.Body)
	c.emit(opcode.MacroStart, n.Span())
	c.emitStr(opcode.MacroName, n.Span(), n.InternalName)

	argNames := make([]string, len(n.Args))
	for i, a := range n.Args {
		argNames[i] = a.Name
	}
	c.prog.MacroArgs[n.InternalName] = opcode.MacroSig{ArgNames: argNames, HasVararg: true, HasCaller: true}

	saved := c.prog.Instructions
	c.prog.Instructions = nil
	for _, a := range n.Args {
		if a.Default != nil {
			c.emitStr(opcode.Lookup, n.Span(), a.Name)
			c.emitStr(opcode.PerformTest, n.Span(), "undefined")
			jmp := c.emit(opcode.JumpIfFalse, n.Span())
			if err := c.compileExpr(a.Default); err != nil {
				return err
			}
			c.emitStr(opcode.StoreLocal, n.Span(), a.Name)
			c.prog.Patch(jmp, c.prog.Len())
		}
	}
	if err := c.compileStmts(n.Body); err != nil {
		return err
	}
	c.emit(opcode.Return, n.Span())
	body := c.prog.Instructions
	c.prog.Instructions = saved

	c.prog.Blocks["__macro_"+n.InternalName] = body
	c.emitStr(opcode.BuildMacro, n.Span(), n.InternalName)
	c.emit(opcode.Enclose, n.Span())
	c.emitStr(opcode.StoreLocal, n.Span(), n.Name)
	c.emit(opcode.MacroStop, n.Span())
	c.macroNames[n.InternalName] = true
	return nil
}

func (c *Compiler) compileFilterChainTail(filterExpr ast.Expr) error {
	// filterExpr is a Filter chain rooted at an implicit captured value;
	// its innermost Target was a placeholder Var during parse — compile the
	// chain's filter applications against the already-on-stack capture.
	var names []struct {
		name   string
		args   []ast.Expr
		kwargs []ast.KwArg
	}
	cur := filterExpr
	for {
		f, ok := cur.(*ast.Filter)
		if !ok {
			break
		}
		names = append([]struct {
			name   string
			args   []ast.Expr
			kwargs []ast.KwArg
		}{{f.Name, f.Args, f.Kwargs}}, names...)
		cur = f.Target
	}
	for _, f := range names {
		for _, a := range f.args {
			if err := c.compileExpr(a); err != nil {
				return err
			}
		}
		for _, kw := range f.kwargs {
			if err := c.compileExpr(kw.Value); err != nil {
				return err
			}
			c.emitStr(opcode.BuildKwargs, filterExpr.Span(), kw.Name)
		}
		c.prog.Emit(opcode.Instruction{Op: opcode.ApplyFilter, Span: filterExpr.Span(), Str: f.name, Int: int64(len(f.args))})
	}
	return nil
}

// extractConstraint emits TypeConstraint hints narrowing the checker's
// refinement map for whichever branch of cond is about to run.
// assertBranch selects the polarity for the branch being entered (true for
// the `if`/`elif` body, false past the JumpIfFalse). It recurses through
// `not`, short-circuit `and`/`or`, and recognizes five condition shapes:
// a bare path (truthy implies non-null), `x is [not] name`, `x | is_list`
// style membership filters, and the two logical combinators.
func (c *Compiler) extractConstraint(cond ast.Expr, assertBranch bool) {
	switch n := cond.(type) {
	case *ast.UnaryOp:
		if n.Op == "not" {
			c.extractConstraint(n.Expr, !assertBranch)
		}

	case *ast.BinOp:
		switch n.Op {
		case "and":
			// Only the true branch lets us conclude both operands held;
			// failing `and` doesn't say which side was false.
			if assertBranch {
				c.extractConstraint(n.Left, true)
				c.extractConstraint(n.Right, true)
			}
		case "or":
			// Symmetric: only the false branch tells us both operands failed.
			if !assertBranch {
				c.extractConstraint(n.Left, false)
				c.extractConstraint(n.Right, false)
			}
		}

	case *ast.Test:
		path, ok := pathOf(n.Target)
		if !ok {
			return
		}
		want := assertBranch
		if n.Not {
			want = !want
		}
		var ck types.ConstraintKind
		switch n.Name {
		case "none", "defined", "undefined":
			ck = types.ConstraintNotNull
			if n.Name == "none" || n.Name == "undefined" {
				want = !want
			}
		default:
			ck = types.ConstraintIs
		}
		c.emitConstraint(n.Span(), ck, path, n.Name, want)

	case *ast.Filter:
		path, ok := pathOf(n.Target)
		if !ok {
			return
		}
		switch n.Name {
		case "list", "is_list", "sequence", "is_sequence":
			c.emitConstraint(n.Span(), types.ConstraintIs, path, "sequence", assertBranch)
		case "is_mapping", "mapping":
			c.emitConstraint(n.Span(), types.ConstraintIs, path, "mapping", assertBranch)
		}

	default:
		if path, ok := pathOf(cond); ok {
			c.emitConstraint(cond.Span(), types.ConstraintNotNull, path, "", assertBranch)
		}
	}
}

func (c *Compiler) emitConstraint(span ast.Span, ck types.ConstraintKind, path, test string, want bool) {
	c.prog.Emit(opcode.Instruction{Op: opcode.TypeConstraint, Span: span, Str: encodeConstraint(ck, path, test, want)})
}

func pathOf(e ast.Expr) (string, bool) {
	switch n := e.(type) {
	case *ast.Var:
		return n.Name, true
	case *ast.GetAttr:
		base, ok := pathOf(n.Target)
		if !ok {
			return "", false
		}
		return base + "." + n.Name, true
	case *ast.GetItem:
		base, ok := pathOf(n.Target)
		if !ok {
			return "", false
		}
		c, ok := n.Index.(*ast.Const)
		if !ok || c.Kind != ast.ConstInt {
			return "", false
		}
		return base + "." + strconv.FormatInt(c.I, 10), true
	}
	return "", false
}

func encodeConstraint(kind types.ConstraintKind, path, test string, assert bool) string {
	k := "notnull"
	if kind == types.ConstraintIs {
		k = "is:" + test
	}
	a := "0"
	if assert {
		a = "1"
	}
	return k + "|" + path + "|" + a
}

// ConstantValue folds a literal AST expression into a runtime Value, or
// ok=false if the expression is not a compile-time constant. Nothing in
// the compile pass calls it.
func ConstantValue(e ast.Expr) (value.Value, bool) {
	c, ok := e.(*ast.Const)
	if !ok {
		return value.Value{}, false
	}
	switch c.Kind {
	case ast.ConstNone:
		return value.None(), true
	case ast.ConstBool:
		return value.Bool(c.B), true
	case ast.ConstInt:
		return value.Int(c.I), true
	case ast.ConstFloat:
		return value.Float(c.F), true
	case ast.ConstString:
		return value.Obj(value.NewString(c.S)), true
	}
	return value.Value{}, false
}
