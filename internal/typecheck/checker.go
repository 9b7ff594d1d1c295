package typecheck

import (
	"github.com/jinjacore/dbtjinja/internal/cfg"
	"github.com/jinjacore/dbtjinja/internal/opcode"
	"github.com/jinjacore/dbtjinja/internal/types"
)

// Checker runs the worklist fixpoint over one compiled Program's top level,
// its named blocks, and its macro bodies, each as an independent CFG. It
// accumulates Diagnostics across all of them; a failure in one never stops
// the others; the checker is best-effort.
type Checker struct {
	reg  *Registry
	diag []Diagnostic
}

func NewChecker(reg *Registry) *Checker {
	if reg == nil {
		reg = NewRegistry()
	}
	return &Checker{reg: reg}
}

// CheckProgram type-checks prog's top level plus every block and macro body
// it defines, returning all diagnostics raised.
func (c *Checker) CheckProgram(prog *opcode.Program) []Diagnostic {
	c.diag = nil

	entry := newState()
	for k, v := range c.reg.Globals {
		entry.Locals[k] = v
	}
	c.runGraph(prog, prog.Instructions, entry, "")

	for name, body := range prog.Blocks {
		if body == nil {
			continue
		}
		if macroName, ok := macroInternalName(name); ok {
			c.runMacro(prog, macroName, body)
			continue
		}
		blockEntry := newState()
		for k, v := range c.reg.Globals {
			blockEntry.Locals[k] = v
		}
		c.runGraph(prog, body, blockEntry, "")
	}

	return c.diag
}

func macroInternalName(blockKey string) (string, bool) {
	const prefix = "__macro_"
	if len(blockKey) > len(prefix) && blockKey[:len(prefix)] == prefix {
		return blockKey[len(prefix):], true
	}
	return "", false
}

func (c *Checker) runMacro(prog *opcode.Program, name string, body []opcode.Instruction) {
	sig := prog.MacroArgs[name]
	entry := newState()
	for k, v := range c.reg.Globals {
		entry.Locals[k] = v
	}
	for _, a := range sig.ArgNames {
		entry.Locals[a] = types.AnySoft()
	}
	entry.Locals["varargs"] = types.List(types.AnySoft())
	entry.Locals["kwargs"] = types.Kwargs()
	if sig.HasCaller {
		entry.Locals["caller"] = types.Function(nil, types.AnySoft())
	}

	final := c.runGraph(prog, body, entry, name)

	declared, ok := c.reg.Functions[name]
	if !ok || final == nil {
		return
	}
	rv := final.RVType
	if rv.Kind == types.KindNone {
		rv = types.String()
	}
	if !types.IsSubtypeOf(rv, declared.Ret) {
		c.diag = append(c.diag, Diagnostic{
			Span:    final.ReturnSpan,
			Message: "macro " + name + " returns " + rv.String() + ", declared " + declared.Ret.String(),
			Macro:   name,
		})
	}
}

// runGraph builds body's CFG and iterates the worklist to a fixpoint,
// returning the merged terminal state of its exit blocks (blocks ending in
// Return, or with no successors).
func (c *Checker) runGraph(prog *opcode.Program, body []opcode.Instruction, entry *State, macro string) *State {
	sub := &opcode.Program{Instructions: body, Constants: prog.Constants, Blocks: prog.Blocks, MacroArgs: prog.MacroArgs}
	g := cfg.Build(sub)
	if len(g.Blocks) == 0 {
		return entry
	}

	in := make([]*State, len(g.Blocks))
	out := make([]*State, len(g.Blocks))
	queue := append([]int(nil), g.Entries...)
	if len(queue) == 0 {
		queue = []int{0}
	}
	queued := make(map[int]bool)
	for _, b := range queue {
		in[b] = entry.clone()
		queued[b] = true
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		queued[id] = false
		blk := g.Blocks[id]
		if in[id] == nil {
			in[id] = newState()
		}
		st := c.transferBlock(sub, blk, in[id].clone(), macro)
		if out[id] != nil && equalStates(out[id], st) {
			continue
		}
		out[id] = st
		for _, s := range blk.Succs {
			var merged *State
			if in[s] == nil {
				merged = st.clone()
			} else {
				merged = mergeStates(in[s], st)
			}
			changed := in[s] == nil || !equalStates(in[s], merged)
			in[s] = merged
			if changed && !queued[s] {
				queue = append(queue, s)
				queued[s] = true
			}
		}
	}

	var term *State
	for _, blk := range g.Blocks {
		if len(blk.Succs) == 0 && out[blk.ID] != nil {
			if term == nil {
				term = out[blk.ID]
			} else {
				term = mergeStates(term, out[blk.ID])
			}
		}
	}
	if term == nil {
		term = entry
	}
	return term
}

