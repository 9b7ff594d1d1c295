package jinja

import (
	"github.com/jinjacore/dbtjinja/internal/opcode"
	"github.com/jinjacore/dbtjinja/internal/value"
)

// Template is one compiled program bound to the Environment it was
// compiled against. A new VM is built per Render call — the VM's stack and
// frame state are not safe to share across concurrent or repeated renders.
type Template struct {
	env  *Environment
	prog *opcode.Program
	name string
}

// Program exposes the compiled bytecode, for a host that wants to run
// CheckTypes itself or cache/inspect it directly.
func (t *Template) Program() *opcode.Program { return t.prog }

// Render executes the template against ctx (a map of Go values, converted
// via ToValue) and returns the rendered output.
func (t *Template) Render(ctx map[string]interface{}) (string, error) {
	locals := make(map[string]value.Value, len(ctx))
	for k, v := range ctx {
		vv, err := ToValue(v)
		if err != nil {
			return "", err
		}
		locals[k] = vv
	}
	machine := t.env.newVM()
	return machine.Run(t.prog, t.name, locals)
}

// CheckTypes runs the static checker over this template's bytecode.
func (t *Template) CheckTypes() []Diagnostic {
	return t.env.CheckTypes(t.prog)
}
