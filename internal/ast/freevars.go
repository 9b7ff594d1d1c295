package ast

// FreeVars computes the set of names read inside a macro body that are not
// bound by one of its own parameters or `{% set %}`s — the closure the
// macro captures at BuildMacro time.
func FreeVars(args []MacroArg, body []Stmt) []string {
	bound := map[string]bool{"caller": true, "varargs": true, "kwargs": true}
	for _, a := range args {
		bound[a.Name] = true
	}
	free := map[string]bool{}
	walkStmts(body, bound, free)
	out := make([]string, 0, len(free))
	for n := range free {
		out = append(out, n)
	}
	return out
}

func walkStmts(stmts []Stmt, bound map[string]bool, free map[string]bool) {
	for _, s := range stmts {
		walkStmt(s, bound, free)
	}
}

func walkStmt(s Stmt, bound, free map[string]bool) {
	switch n := s.(type) {
	case *EmitExpr:
		walkExpr(n.Expr, bound, free)
	case *EmitRaw:
	case *ForLoop:
		walkExpr(n.Iter, bound, free)
		child := cloneSet(bound)
		for _, t := range n.Target {
			child[t] = true
		}
		child["loop"] = true
		walkStmts(n.Body, child, free)
		walkStmts(n.Else, bound, free)
	case *IfCond:
		walkExpr(n.Cond, bound, free)
		walkStmts(n.Then, bound, free)
		walkStmts(n.Else, bound, free)
	case *WithBlock:
		child := cloneSet(bound)
		for i, nm := range n.Names {
			walkExpr(n.Values[i], bound, free)
			child[nm] = true
		}
		walkStmts(n.Body, child, free)
	case *Set:
		walkExpr(n.Value, bound, free)
		if v, ok := n.Target.(*Var); ok {
			bound[v.Name] = true
		} else {
			walkExpr(n.Target, bound, free)
		}
	case *SetBlock:
		walkStmts(n.Body, bound, free)
		if v, ok := n.Target.(*Var); ok {
			bound[v.Name] = true
		}
	case *AutoEscape:
		walkExpr(n.Mode, bound, free)
		walkStmts(n.Body, bound, free)
	case *FilterBlock:
		walkExpr(n.Filter, bound, free)
		walkStmts(n.Body, bound, free)
	case *Block:
		walkStmts(n.Body, bound, free)
	case *CallBlock:
		walkExpr(n.Call, bound, free)
		walkStmts(n.Body, bound, free)
	case *Do:
		walkExpr(n.Expr, bound, free)
	}
}

func cloneSet(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func walkExpr(e Expr, bound, free map[string]bool) {
	if e == nil {
		return
	}
	switch n := e.(type) {
	case *Var:
		if !bound[n.Name] {
			free[n.Name] = true
		}
	case *Const:
	case *Slice:
		walkExpr(n.Target, bound, free)
		walkExpr(n.Start, bound, free)
		walkExpr(n.Stop, bound, free)
		walkExpr(n.Step, bound, free)
	case *UnaryOp:
		walkExpr(n.Expr, bound, free)
	case *BinOp:
		walkExpr(n.Left, bound, free)
		walkExpr(n.Right, bound, free)
	case *IfExpr:
		walkExpr(n.Cond, bound, free)
		walkExpr(n.Then, bound, free)
		walkExpr(n.Else, bound, free)
	case *Filter:
		walkExpr(n.Target, bound, free)
		for _, a := range n.Args {
			walkExpr(a, bound, free)
		}
		for _, kw := range n.Kwargs {
			walkExpr(kw.Value, bound, free)
		}
	case *Test:
		walkExpr(n.Target, bound, free)
		for _, a := range n.Args {
			walkExpr(a, bound, free)
		}
	case *GetAttr:
		walkExpr(n.Target, bound, free)
	case *GetItem:
		walkExpr(n.Target, bound, free)
		walkExpr(n.Index, bound, free)
	case *Call:
		walkExpr(n.Callee, bound, free)
		for _, a := range n.Args {
			walkExpr(a, bound, free)
		}
		for _, kw := range n.Kwargs {
			walkExpr(kw.Value, bound, free)
		}
		walkExpr(n.ArgSplat, bound, free)
		walkExpr(n.KwargSplat, bound, free)
	case *List:
		for _, it := range n.Items {
			walkExpr(it, bound, free)
		}
	case *MapLit:
		for i := range n.Keys {
			walkExpr(n.Keys[i], bound, free)
			walkExpr(n.Values[i], bound, free)
		}
	case *Tuple:
		for _, it := range n.Items {
			walkExpr(it, bound, free)
		}
	}
}
