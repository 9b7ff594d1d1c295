// Package cfg builds a control-flow graph over a bytecode Program, used by
// the flow-sensitive type checker.
package cfg

import "github.com/jinjacore/dbtjinja/internal/opcode"

// Block is a basic block: a contiguous run of non-branching instructions.
type Block struct {
	ID         int
	Start, End int // [Start, End) instruction index range
	Preds      []int
	Succs      []int
	// Macro is the name of the macro this block syntactically belongs to,
	// derived by walking MacroStart/MacroStop markers; empty at top level.
	Macro string
}

// Graph is the CFG for one Program (or one macro body sliced from it).
type Graph struct {
	Blocks []*Block
	// ByInstr maps an instruction index to the block containing it.
	ByInstr []int
	// Entries holds the IDs of blocks with no predecessor.
	Entries []int
}

// Build scans prog's instructions once, starting a new block after any
// terminator or jump target, and wires predecessor/successor edges.
func Build(prog *opcode.Program) *Graph {
	n := len(prog.Instructions)
	g := &Graph{ByInstr: make([]int, n)}
	if n == 0 {
		return g
	}

	isTarget := make([]bool, n+1)
	for i, in := range prog.Instructions {
		if isJump(in.Op) {
			t := int(in.Int)
			if t >= 0 && t <= n {
				isTarget[t] = true
			}
		}
	}

	var starts []int
	starts = append(starts, 0)
	for i, in := range prog.Instructions {
		if in.Op.Terminator() && i+1 < n {
			starts = append(starts, i+1)
		}
		if i+1 < n && isTarget[i+1] {
			starts = append(starts, i+1)
		}
	}
	starts = dedupSortedInts(starts)

	curMacro := ""
	macroStack := []string{}
	for bi, s := range starts {
		e := n
		if bi+1 < len(starts) {
			e = starts[bi+1]
		}
		blk := &Block{ID: bi, Start: s, End: e}
		for i := s; i < e; i++ {
			switch prog.Instructions[i].Op {
			case opcode.MacroStart:
				macroStack = append(macroStack, prog.Instructions[i].Str)
				curMacro = prog.Instructions[i].Str
			case opcode.MacroStop:
				if len(macroStack) > 0 {
					macroStack = macroStack[:len(macroStack)-1]
				}
				if len(macroStack) > 0 {
					curMacro = macroStack[len(macroStack)-1]
				} else {
					curMacro = ""
				}
			}
			g.ByInstr[i] = bi
		}
		blk.Macro = curMacro
		g.Blocks = append(g.Blocks, blk)
	}

	for _, blk := range g.Blocks {
		last := prog.Instructions[blk.End-1]
		switch {
		case last.Op == opcode.Jump:
			addEdge(g, blk.ID, g.ByInstr[clamp(int(last.Int), n)])
		case last.Op == opcode.JumpIfFalse || last.Op == opcode.JumpIfFalseOrPop || last.Op == opcode.JumpIfTrueOrPop:
			addEdge(g, blk.ID, g.ByInstr[clamp(int(last.Int), n)])
			if blk.End < n {
				addEdge(g, blk.ID, g.ByInstr[blk.End])
			}
		case last.Op == opcode.Iterate:
			addEdge(g, blk.ID, g.ByInstr[clamp(int(last.Int), n)])
			if blk.End < n {
				addEdge(g, blk.ID, g.ByInstr[blk.End])
			}
		case last.Op == opcode.Return:
			// no successor
		default:
			if blk.End < n {
				addEdge(g, blk.ID, g.ByInstr[blk.End])
			}
		}
	}

	for _, blk := range g.Blocks {
		if len(blk.Preds) == 0 {
			g.Entries = append(g.Entries, blk.ID)
		}
	}
	return g
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func addEdge(g *Graph, from, to int) {
	for _, s := range g.Blocks[from].Succs {
		if s == to {
			return
		}
	}
	g.Blocks[from].Succs = append(g.Blocks[from].Succs, to)
	g.Blocks[to].Preds = append(g.Blocks[to].Preds, from)
}

func isJump(op opcode.Op) bool {
	switch op {
	case opcode.Jump, opcode.JumpIfFalse, opcode.JumpIfFalseOrPop, opcode.JumpIfTrueOrPop, opcode.Iterate:
		return true
	}
	return false
}

func dedupSortedInts(xs []int) []int {
	// simple insertion sort + dedup; block-start lists are small.
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
	out := xs[:0]
	var last = -1
	for _, x := range xs {
		if x != last {
			out = append(out, x)
			last = x
		}
	}
	return out
}
