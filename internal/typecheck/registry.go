package typecheck

import "github.com/jinjacore/dbtjinja/internal/types"

// FuncSig is a function-registry entry's static signature: the argument
// list and return type used to resolve call sites against a declared
// function, filter, test, or namespace method.
type FuncSig struct {
	Name string
	Args []types.Field
	Ret  types.Type
}

// Registry holds the host-declared function/filter/test signatures and
// per-namespace method tables consulted by CallFunction/CallMethod
// transfer: CallMethod on a namespace-typed receiver dispatches to
// <ns>.<name> in the registry.
type Registry struct {
	Functions  map[string]FuncSig
	Namespaces map[string]map[string]FuncSig
	// Globals seeds the entry state's locals — the host's declared context
	// schema, consulted before a Lookup is reported unknown.
	Globals map[string]types.Type
}

func NewRegistry() *Registry {
	return &Registry{
		Functions:  make(map[string]FuncSig),
		Namespaces: make(map[string]map[string]FuncSig),
		Globals:    make(map[string]types.Type),
	}
}

func (r *Registry) RegisterFunction(sig FuncSig) { r.Functions[sig.Name] = sig }

func (r *Registry) RegisterMethod(namespace string, sig FuncSig) {
	if r.Namespaces[namespace] == nil {
		r.Namespaces[namespace] = make(map[string]FuncSig)
	}
	r.Namespaces[namespace][sig.Name] = sig
}

func (r *Registry) RegisterGlobal(name string, t types.Type) { r.Globals[name] = t }
