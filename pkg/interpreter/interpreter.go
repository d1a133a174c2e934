// Package interpreter runs code units on a block-stack virtual machine.
package interpreter

import (
	"context"
	"io"
	"os"

	"byterun/pkg/code"
	"byterun/pkg/object"
	"byterun/pkg/operator"

	"github.com/charmbracelet/log"
)

// DefaultMaxDepth bounds the call stack unless WithMaxDepth overrides it
const DefaultMaxDepth = 1000

// Engine executes code units. It is not safe for concurrent use.
type Engine struct {
	frames        []*Frame         // call stack, innermost last
	lastException *ExceptionTriple // exception being raised or handled
	returnValue   object.Value

	out      io.Writer       // output writer for print
	ops      operator.Table  // primitive operators
	decoder  code.Decoder    // raw instruction decoder
	builtins Namespace       // names visible to every frame
	ctx      context.Context // checked between instructions

	maxSteps  int // maximum steps (0 = unlimited)
	steps     int // steps executed
	maxDepth  int // maximum call depth
	trace     bool
	softspace bool // PRINT_ITEM separator pending
}

type Option func(*Engine)

// WithWriter sets the output writer for print statements
func WithWriter(w io.Writer) Option {
	return func(e *Engine) { e.out = w }
}

// WithMaxSteps sets a maximum number of executed instructions before returning ErrMaxStepsExceeded
func WithMaxSteps(n int) Option {
	return func(e *Engine) { e.maxSteps = n }
}

// WithMaxDepth sets the call depth beyond which calls raise RecursionError
func WithMaxDepth(n int) Option {
	return func(e *Engine) { e.maxDepth = n }
}

// WithOperators replaces the operator table
func WithOperators(t operator.Table) Option {
	return func(e *Engine) { e.ops = t }
}

// WithDecoder replaces the instruction decoder
func WithDecoder(d code.Decoder) Option {
	return func(e *Engine) { e.decoder = d }
}

// WithBuiltins adds or overrides builtin names
func WithBuiltins(ns Namespace) Option {
	return func(e *Engine) {
		for k, v := range ns {
			e.builtins[k] = v
		}
	}
}

// WithTrace logs every executed instruction at debug level
func WithTrace(on bool) Option {
	return func(e *Engine) { e.trace = on }
}

// New creates an engine with the default operator table, decoder and builtins
func New(opts ...Option) *Engine {
	e := &Engine{
		out:      os.Stdout,
		ops:      operator.Default(),
		decoder:  code.DefaultDecoder{},
		maxDepth: DefaultMaxDepth,
		ctx:      context.Background(),
	}
	e.builtins = e.defaultBuiltins()

	for _, o := range opts {
		o(e)
	}

	return e
}

// Builtins returns the builtin namespace shared by top-level frames
func (e *Engine) Builtins() Namespace {
	return e.builtins
}

// Output returns the output writer used for print
func (e *Engine) Output() io.Writer {
	return e.out
}

// Steps returns the number of instructions executed so far
func (e *Engine) Steps() int {
	return e.steps
}

// LastException returns the exception currently raised or handled
func (e *Engine) LastException() *ExceptionTriple {
	return e.lastException
}

// Run executes unit as top-level code. Omitted namespaces get a fresh
// module namespace; when both are given, locals are unified with globals.
func (e *Engine) Run(ctx context.Context, unit *code.Unit, globals, locals Namespace) (object.Value, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	e.ctx = ctx
	if len(e.frames) == 0 {
		e.steps = 0
		e.lastException = nil
		e.softspace = false
	}

	f := e.MakeFrame(unit, nil, globals, locals)
	v, _, err := e.execute(f)
	if err != nil {
		if exc, ok := err.(*object.Exception); ok {
			return nil, &GuestError{Triple: *newTriple(exc)}
		}
		return nil, err
	}

	return v, nil
}

// MakeFrame builds a frame for unit. With globals, locals are merged into
// them and the frame runs in one global scope. Otherwise a fresh local
// namespace under the running frame's globals, or under a fresh module
// namespace when nothing is running.
func (e *Engine) MakeFrame(unit *code.Unit, callargs, globals, locals Namespace) *Frame {
	var scope *Scope
	switch {
	case globals != nil:
		for k, v := range locals {
			globals[k] = v
		}
		scope = GlobalScope(globals)
	case locals != nil:
		if cur := e.frame(); cur != nil {
			scope = LocalScope(locals, cur.Scope.Globals)
		} else {
			scope = LocalScope(locals, moduleNamespace())
		}
	case e.frame() != nil:
		scope = LocalScope(nil, e.frame().Scope.Globals)
	default:
		scope = GlobalScope(moduleNamespace())
	}

	for k, v := range callargs {
		scope.Locals[k] = v
	}

	return e.newFrame(unit, scope)
}

func (e *Engine) newFrame(unit *code.Unit, scope *Scope) *Frame {
	builtins := e.builtins
	caller := e.frame()
	if caller != nil {
		builtins = caller.Builtins
	}
	return newFrame(unit, scope, builtins, caller)
}

// CallFunction binds args to fn's parameters and runs its code in a new
// frame. Generator functions return a suspended *Generator instead.
func (e *Engine) CallFunction(fn *Function, args []object.Value, kwargs map[string]object.Value) (object.Value, error) {
	callargs, err := bindArguments(fn, args, kwargs)
	if err != nil {
		return nil, err
	}

	f := e.newFrame(fn.Code, LocalScope(callargs, fn.Globals))

	ncell := len(fn.Code.CellVars)
	for i, name := range fn.Code.CellVars {
		c := &Cell{}
		if v, ok := callargs[name]; ok {
			c.Set(v)
		}
		f.Cells[i] = c
	}
	for i := range fn.Code.FreeVars {
		if i < len(fn.Closure) {
			f.Cells[ncell+i] = fn.Closure[i]
		} else {
			f.Cells[ncell+i] = &Cell{}
		}
	}

	if fn.Code.IsGenerator() {
		return &Generator{Name: fn.Name, frame: f, engine: e}, nil
	}

	v, _, err := e.execute(f)
	return v, err
}

// frame returns the running frame, or nil if none
func (e *Engine) frame() *Frame {
	if len(e.frames) == 0 {
		return nil
	}
	return e.frames[len(e.frames)-1]
}

// Depth returns the call stack depth
func (e *Engine) Depth() int {
	return len(e.frames)
}

func (e *Engine) pushFrame(f *Frame) error {
	if e.maxDepth > 0 && len(e.frames) >= e.maxDepth {
		return object.NewException(object.RecursionErrorClass, "maximum recursion depth exceeded")
	}
	e.frames = append(e.frames, f)
	log.Debug("push frame", "code", f.Code.Name, "depth", len(e.frames))
	return nil
}

func (e *Engine) popFrame() {
	f := e.frames[len(e.frames)-1]
	e.frames[len(e.frames)-1] = nil
	e.frames = e.frames[:len(e.frames)-1]
	log.Debug("pop frame", "code", f.Code.Name, "depth", len(e.frames))
}
