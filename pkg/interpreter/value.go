package interpreter

import (
	"errors"
	"fmt"

	"byterun/pkg/code"
	"byterun/pkg/object"
)

// Callable is implemented by every guest value CALL_FUNCTION can invoke
// besides exception classes.
type Callable interface {
	Call(args []object.Value, kwargs map[string]object.Value) (object.Value, error)
}

// Cell is a shared storage location captured by closures. Functions hold
// the same *Cell as the frame that created it, so writes on either side
// are visible to both.
type Cell struct {
	value object.Value
	set   bool
}

// NewCell returns a cell holding v
func NewCell(v object.Value) *Cell {
	return &Cell{value: v, set: true}
}

func (c *Cell) TypeName() string { return "cell" }

// Get returns the cell contents; ok is false for an empty cell
func (c *Cell) Get() (object.Value, bool) {
	return c.value, c.set
}

func (c *Cell) Set(v object.Value) {
	c.value, c.set = v, true
}

// Function is a code unit bound to its defining globals, defaults and
// captured cells.
type Function struct {
	Name     string
	Code     *code.Unit
	Globals  Namespace
	Defaults []object.Value
	Closure  []*Cell

	engine *Engine
}

func (fn *Function) TypeName() string { return "function" }

func (fn *Function) String() string {
	return fmt.Sprintf("<function %s>", fn.Name)
}

// Call invokes the function on the engine that created it
func (fn *Function) Call(args []object.Value, kwargs map[string]object.Value) (object.Value, error) {
	return fn.engine.CallFunction(fn, args, kwargs)
}

// Generator is the suspended frame of a generator function call. Each Next
// resumes the frame until its next yield.
type Generator struct {
	Name string

	frame    *Frame
	engine   *Engine
	started  bool
	running  bool
	finished bool
}

func (g *Generator) TypeName() string { return "generator" }

func (g *Generator) String() string {
	return fmt.Sprintf("<generator object %s>", g.Name)
}

// Next implements object.Iterator
func (g *Generator) Next() (object.Value, bool, error) {
	if g.finished {
		return nil, false, nil
	}
	if g.running {
		return nil, false, object.NewException(object.ValueErrorClass, "generator already executing")
	}

	// the resumed YIELD_VALUE evaluates to None
	if g.started {
		g.frame.Push(nil)
	}
	g.started = true
	g.running = true
	g.frame.caller = g.engine.frame()

	v, why, err := g.engine.execute(g.frame)
	g.running = false

	if err != nil {
		g.finished = true
		var exc *object.Exception
		if errors.As(err, &exc) && exc.Class.IsSubclass(object.StopIterationClass) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if why == WhyYield {
		return v, true, nil
	}

	g.finished = true
	return nil, false, nil
}
