package interpreter

import (
	"byterun/pkg/code"
	"byterun/pkg/object"
	"byterun/pkg/stack"
)

// Frame is one activation of a code unit.
type Frame struct {
	Code     *code.Unit
	Scope    *Scope
	Builtins Namespace
	Cells    []*Cell // cell variables followed by free variables
	IP       int     // offset of the next instruction

	caller *Frame
	lastIP int // offset of the instruction being executed
	stack  *stack.Stack[object.Value]
	blocks *stack.Stack[Block]
}

// newFrame starts every cell and free slot as an empty cell; calls replace
// them with bound arguments and closure cells.
func newFrame(u *code.Unit, scope *Scope, builtins Namespace, caller *Frame) *Frame {
	cells := make([]*Cell, len(u.CellVars)+len(u.FreeVars))
	for i := range cells {
		cells[i] = &Cell{}
	}
	return &Frame{
		Code:     u,
		Scope:    scope,
		Builtins: builtins,
		Cells:    cells,
		caller:   caller,
		stack:    stack.New[object.Value](),
		blocks:   stack.New[Block](),
	}
}

// Caller returns the frame that was running when this one was entered
func (f *Frame) Caller() *Frame {
	return f.caller
}

// LastIP returns the offset of the instruction being executed
func (f *Frame) LastIP() int {
	return f.lastIP
}

func (f *Frame) underflow(what string) {
	panic(&StackError{Code: f.Code.Name, Offset: f.lastIP, What: what})
}

// Push pushes values onto the value stack, the last one ending on top
func (f *Frame) Push(vals ...object.Value) {
	f.stack.Push(vals...)
}

// Pop removes the top value. An empty stack panics with a *StackError.
func (f *Frame) Pop() object.Value {
	v, ok := f.stack.Pop()
	if !ok {
		f.underflow("value")
	}
	return v
}

// PopN removes the n topmost values and returns them deepest first
func (f *Frame) PopN(n int) []object.Value {
	vals, ok := f.stack.PopN(n)
	if !ok {
		f.underflow("value")
	}
	return vals
}

// Top returns the top value without removing it
func (f *Frame) Top() object.Value {
	return f.Peek(0)
}

// Peek returns the value i positions below the top
func (f *Frame) Peek(i int) object.Value {
	v, ok := f.stack.PeekAt(i)
	if !ok {
		f.underflow("value")
	}
	return v
}

// Depth returns the value stack depth
func (f *Frame) Depth() int {
	return f.stack.Size()
}

// Stack returns a copy of the value stack, bottom first
func (f *Frame) Stack() []object.Value {
	return append([]object.Value(nil), f.stack.Array()...)
}

// PushBlock enters a block recording the current stack depth
func (f *Frame) PushBlock(kind BlockKind, handler int) {
	f.blocks.Push(Block{Kind: kind, Handler: handler, Level: f.stack.Size()})
}

// PopBlock leaves the innermost block
func (f *Frame) PopBlock() Block {
	b, ok := f.blocks.Pop()
	if !ok {
		f.underflow("block")
	}
	return b
}

// TopBlock returns the innermost block without leaving it
func (f *Frame) TopBlock() (Block, bool) {
	return f.blocks.Peek()
}

// Blocks returns a copy of the block stack, outermost first
func (f *Frame) Blocks() []Block {
	return append([]Block(nil), f.blocks.Array()...)
}

// restore drops values above depth
func (f *Frame) restore(depth int) {
	f.stack.Truncate(depth)
}

// activeHandler finds the exception triple kept by the innermost
// ExceptHandler block of f, if any.
func (f *Frame) activeHandler() *ExceptionTriple {
	blocks := f.blocks.Array()
	vals := f.stack.Array()

	for i := len(blocks) - 1; i >= 0; i-- {
		b := blocks[i]
		if b.Kind != ExceptHandlerBlock || b.Level+3 > len(vals) {
			continue
		}
		if t := tripleFrom(vals[b.Level : b.Level+3]); t != nil {
			return t
		}
	}
	return nil
}

// tripleFrom decodes (context, value, kind) as laid out on the value stack
func tripleFrom(vals []object.Value) *ExceptionTriple {
	kind, ok1 := vals[2].(*object.Class)
	exc, ok2 := vals[1].(*object.Exception)
	if !ok1 || !ok2 {
		return nil
	}
	tb, _ := vals[0].(*object.Traceback)
	return &ExceptionTriple{Kind: kind, Value: exc, Context: tb}
}
