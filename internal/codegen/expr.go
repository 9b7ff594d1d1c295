package codegen

import (
	"fmt"
	"math/big"

	"github.com/jinjacore/dbtjinja/internal/ast"
	"github.com/jinjacore/dbtjinja/internal/opcode"
	"github.com/jinjacore/dbtjinja/internal/value"
)

func (c *Compiler) compileExpr(e ast.Expr) error {
	switch n := e.(type) {
	case *ast.Const:
		return c.compileConst(n)
	case *ast.Var:
		c.emitStr(opcode.Lookup, n.Span(), n.Name)
		return nil
	case *ast.UnaryOp:
		if err := c.compileExpr(n.Expr); err != nil {
			return err
		}
		switch n.Op {
		case "-":
			c.emit(opcode.Neg, n.Span())
		case "not":
			c.emit(opcode.Not, n.Span())
		default:
			return fmt.Errorf("codegen: unknown unary op %q", n.Op)
		}
		return nil
	case *ast.BinOp:
		return c.compileBinOp(n)
	case *ast.IfExpr:
		if err := c.compileExpr(n.Cond); err != nil {
			return err
		}
		jmpElse := c.emit(opcode.JumpIfFalse, n.Span())
		if err := c.compileExpr(n.Then); err != nil {
			return err
		}
		jmpEnd := c.emit(opcode.Jump, n.Span())
		c.prog.Patch(jmpElse, c.prog.Len())
		if n.Else != nil {
			if err := c.compileExpr(n.Else); err != nil {
				return err
			}
		} else {
			c.prog.Emit(opcode.Instruction{Op: opcode.LoadConst, Span: n.Span(), Const: -1})
		}
		c.prog.Patch(jmpEnd, c.prog.Len())
		return nil
	case *ast.GetAttr:
		if err := c.compileExpr(n.Target); err != nil {
			return err
		}
		c.emitStr(opcode.GetAttr, n.Span(), n.Name)
		return nil
	case *ast.GetItem:
		if err := c.compileExpr(n.Target); err != nil {
			return err
		}
		if err := c.compileExpr(n.Index); err != nil {
			return err
		}
		c.emit(opcode.GetItem, n.Span())
		return nil
	case *ast.Slice:
		if err := c.compileExpr(n.Target); err != nil {
			return err
		}
		for _, part := range []ast.Expr{n.Start, n.Stop, n.Step} {
			if part == nil {
				c.prog.Emit(opcode.Instruction{Op: opcode.LoadConst, Span: n.Span(), Const: -1})
				continue
			}
			if err := c.compileExpr(part); err != nil {
				return err
			}
		}
		c.emit(opcode.SliceOp, n.Span())
		return nil
	case *ast.Filter:
		return c.compileFilter(n)
	case *ast.Test:
		return c.compileTest(n)
	case *ast.Call:
		return c.compileCall(n)
	case *ast.List:
		for _, it := range n.Items {
			if err := c.compileExpr(it); err != nil {
				return err
			}
		}
		c.emitInt(opcode.BuildList, n.Span(), int64(len(n.Items)))
		return nil
	case *ast.Tuple:
		for _, it := range n.Items {
			if err := c.compileExpr(it); err != nil {
				return err
			}
		}
		c.emitInt(opcode.BuildTuple, n.Span(), int64(len(n.Items)))
		return nil
	case *ast.MapLit:
		for i, k := range n.Keys {
			if err := c.compileExpr(k); err != nil {
				return err
			}
			if err := c.compileExpr(n.Values[i]); err != nil {
				return err
			}
		}
		c.emitInt(opcode.BuildMap, n.Span(), int64(len(n.Keys)))
		return nil
	}
	return fmt.Errorf("codegen: unhandled expression %T", e)
}

func (c *Compiler) compileConst(n *ast.Const) error {
	var v value.Value
	switch n.Kind {
	case ast.ConstNone:
		v = value.None()
	case ast.ConstUndefined:
		v = value.Undefined()
	case ast.ConstBool:
		v = value.Bool(n.B)
	case ast.ConstInt:
		v = value.Int(n.I)
	case ast.ConstBigInt:
		bi := new(big.Int)
		bi.SetString(n.Big, 10)
		v = value.Obj(&value.BigInt{V: bi})
	case ast.ConstFloat:
		v = value.Float(n.F)
	case ast.ConstString:
		v = value.Obj(value.NewString(n.S))
	case ast.ConstBytes:
		v = value.Obj(&value.Bytes{B: []byte(n.S)})
	default:
		return fmt.Errorf("codegen: unknown const kind %v", n.Kind)
	}
	idx := c.prog.AddConstant(v)
	c.prog.Emit(opcode.Instruction{Op: opcode.LoadConst, Span: n.Span(), Const: idx})
	return nil
}

var binOps = map[string]opcode.Op{
	"+": opcode.Add, "-": opcode.Sub, "*": opcode.Mul, "/": opcode.Div,
	"//": opcode.IntDiv, "%": opcode.Rem, "**": opcode.Pow,
	"==": opcode.Eq, "!=": opcode.Ne, "<": opcode.Lt, "<=": opcode.Lte,
	">": opcode.Gt, ">=": opcode.Gte, "in": opcode.In, "~": opcode.StringConcat,
}

func (c *Compiler) compileBinOp(n *ast.BinOp) error {
	switch n.Op {
	case "and":
		if err := c.compileExpr(n.Left); err != nil {
			return err
		}
		jmp := c.emit(opcode.JumpIfFalseOrPop, n.Span())
		if err := c.compileExpr(n.Right); err != nil {
			return err
		}
		c.prog.Patch(jmp, c.prog.Len())
		return nil
	case "or":
		if err := c.compileExpr(n.Left); err != nil {
			return err
		}
		jmp := c.emit(opcode.JumpIfTrueOrPop, n.Span())
		if err := c.compileExpr(n.Right); err != nil {
			return err
		}
		c.prog.Patch(jmp, c.prog.Len())
		return nil
	}
	if err := c.compileExpr(n.Left); err != nil {
		return err
	}
	if err := c.compileExpr(n.Right); err != nil {
		return err
	}
	op, ok := binOps[n.Op]
	if !ok {
		return fmt.Errorf("codegen: unknown binary op %q", n.Op)
	}
	// "%" against a String lhs is string formatting, not arithmetic
	// remainder. Rem vs StringFormat only matters for static typing;
	// codegen emits StringFormat only when the left operand is a string
	// literal known at compile time, otherwise it emits Rem and leaves
	// runtime dispatch to the VM's type switch.
	if n.Op == "%" {
		if lit, ok := n.Left.(*ast.Const); ok && lit.Kind == ast.ConstString {
			c.emit(opcode.StringFormat, n.Span())
			return nil
		}
	}
	c.emit(op, n.Span())
	return nil
}

func (c *Compiler) compileFilter(n *ast.Filter) error {
	if err := c.compileExpr(n.Target); err != nil {
		return err
	}
	for _, a := range n.Args {
		if err := c.compileExpr(a); err != nil {
			return err
		}
	}
	for _, kw := range n.Kwargs {
		if err := c.compileExpr(kw.Value); err != nil {
			return err
		}
		c.emitStr(opcode.BuildKwargs, n.Span(), kw.Name)
	}
	c.prog.Emit(opcode.Instruction{Op: opcode.ApplyFilter, Span: n.Span(), Str: n.Name, Int: int64(len(n.Args))})
	return nil
}

func (c *Compiler) compileTest(n *ast.Test) error {
	if err := c.compileExpr(n.Target); err != nil {
		return err
	}
	for _, a := range n.Args {
		if err := c.compileExpr(a); err != nil {
			return err
		}
	}
	c.prog.Emit(opcode.Instruction{Op: opcode.PerformTest, Span: n.Span(), Str: n.Name, Int: int64(len(n.Args))})
	if n.Not {
		c.emit(opcode.Not, n.Span())
	}
	return nil
}

func (c *Compiler) compileCall(n *ast.Call) error {
	if callee, ok := n.Callee.(*ast.Var); ok && (callee.Name == "ref" || callee.Name == "source") {
		for _, a := range n.Args {
			if err := c.compileExpr(a); err != nil {
				return err
			}
		}
		c.prog.Emit(opcode.Instruction{Op: opcode.NotifyRef, Span: n.Span(), Str: callee.Name, Int: int64(len(n.Args))})
		return nil
	}
	switch callee := n.Callee.(type) {
	case *ast.GetAttr:
		if err := c.compileExpr(callee.Target); err != nil {
			return err
		}
		if err := c.compileArgs(n); err != nil {
			return err
		}
		c.prog.Emit(opcode.Instruction{Op: opcode.CallMethod, Span: n.Span(), Str: callee.Name, Int: int64(len(n.Args))})
		return nil
	case *ast.Var:
		if err := c.compileArgs(n); err != nil {
			return err
		}
		c.prog.Emit(opcode.Instruction{Op: opcode.CallFunction, Span: n.Span(), Str: callee.Name, Int: int64(len(n.Args))})
		return nil
	}
	if err := c.compileExpr(n.Callee); err != nil {
		return err
	}
	if err := c.compileArgs(n); err != nil {
		return err
	}
	c.prog.Emit(opcode.Instruction{Op: opcode.CallObject, Span: n.Span(), Int: int64(len(n.Args))})
	return nil
}

func (c *Compiler) compileArgs(n *ast.Call) error {
	for _, a := range n.Args {
		if err := c.compileExpr(a); err != nil {
			return err
		}
	}
	if n.ArgSplat != nil {
		if err := c.compileExpr(n.ArgSplat); err != nil {
			return err
		}
		c.emit(opcode.UnpackLists, n.Span())
	}
	for _, kw := range n.Kwargs {
		if err := c.compileExpr(kw.Value); err != nil {
			return err
		}
		c.emitStr(opcode.BuildKwargs, n.Span(), kw.Name)
	}
	if n.KwargSplat != nil {
		if err := c.compileExpr(n.KwargSplat); err != nil {
			return err
		}
		c.emit(opcode.MergeKwargs, n.Span())
	}
	return nil
}
