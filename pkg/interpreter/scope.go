package interpreter

import "byterun/pkg/object"

// Namespace maps names to guest values.
type Namespace map[string]object.Value

// Scope holds the namespaces a frame resolves names in. A global scope's
// locals are its globals; a local scope owns its locals and refers to the
// module globals it was defined in.
type Scope struct {
	Locals  Namespace
	Globals Namespace
	global  bool
}

// GlobalScope returns a scope whose locals alias ns
func GlobalScope(ns Namespace) *Scope {
	return &Scope{Locals: ns, Globals: ns, global: true}
}

// LocalScope returns a scope with owned locals under globals
func LocalScope(locals, globals Namespace) *Scope {
	if locals == nil {
		locals = Namespace{}
	}
	return &Scope{Locals: locals, Globals: globals}
}

// IsGlobal reports whether locals and globals are the same namespace
func (s *Scope) IsGlobal() bool {
	return s.global
}

// moduleNamespace returns a fresh top-level namespace
func moduleNamespace() Namespace {
	return Namespace{
		"__name__":    "__main__",
		"__doc__":     nil,
		"__package__": nil,
	}
}
