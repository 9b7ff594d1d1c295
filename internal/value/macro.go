package value

// Macro is the runtime value produced by BuildMacro/Enclose: a callable
// template-defined function closing over its defining scope.
type Macro struct {
	Name      string
	ArgNames  []string
	HasVararg bool
	HasCaller bool
	Closure   map[string]Value
	// Body is opaque to this package; the VM stores the compiled
	// instruction slice keyed by Name in the owning Program and looks it
	// up by Name at call time, avoiding an import cycle with internal/opcode.
	// Owner holds that same owning *opcode.Program, kept opaque for the same
	// reason, so a macro captured from one compiled template (e.g. through
	// the package/namespace registry or an import) still finds its body
	// when invoked while a different Program is active.
	Owner interface{}
}

func (m *Macro) Type() string  { return "macro" }
func (m *Macro) Truthy() bool  { return true }
func (m *Macro) Repr() Repr    { return ReprPlain }
func (m *Macro) Enumeration() Enumeration { return EnumNonEnumerable }
func (m *Macro) Mutable() bool { return false }
func (m *Macro) Render() (string, bool) { return "", false }
func (m *Macro) GetAttr(name string) (Value, bool) { return Undefined(), false }
