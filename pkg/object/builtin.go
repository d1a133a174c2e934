package object

import "fmt"

// BuiltinFunc is the Go signature of a builtin callable.
type BuiltinFunc func(args []Value, kwargs map[string]Value) (Value, error)

// Builtin is a callable implemented in Go.
type Builtin struct {
	Name string
	Fn   BuiltinFunc
}

// NewBuiltin wraps fn as a guest callable
func NewBuiltin(name string, fn BuiltinFunc) *Builtin {
	return &Builtin{Name: name, Fn: fn}
}

func (b *Builtin) TypeName() string { return "builtin_function_or_method" }

func (b *Builtin) String() string {
	return fmt.Sprintf("<built-in function %s>", b.Name)
}

// Call invokes the builtin
func (b *Builtin) Call(args []Value, kwargs map[string]Value) (Value, error) {
	return b.Fn(args, kwargs)
}
