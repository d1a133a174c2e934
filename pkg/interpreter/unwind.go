package interpreter

import (
	"byterun/pkg/object"

	"github.com/charmbracelet/log"
)

// unwind pops the innermost block under completion c and reports what is
// left to propagate. A normal completion means control was absorbed.
func (e *Engine) unwind(f *Frame, c Completion) Completion {
	if top, ok := f.TopBlock(); ok && top.Kind == LoopBlock && c.Why == WhyContinue {
		// the loop block stays; its iterator is still on the stack
		f.IP = c.Target
		return normal
	}

	b := f.PopBlock()
	e.unwindBlock(f, b, c.Why == WhyException)

	switch {
	case b.Kind == LoopBlock && c.Why == WhyBreak:
		f.IP = b.Handler
		return normal

	case (b.Kind == SetupExceptBlock || b.Kind == FinallyBlock) && c.Why == WhyException:
		t := e.lastException
		f.PushBlock(ExceptHandlerBlock, -1)
		f.Push(t.Context, t.Value, t.Kind)
		f.Push(t.Context, t.Value, t.Kind)
		f.IP = b.Handler
		log.Debug("handle exception", "code", f.Code.Name, "exception", t.Value, "handler", b.Handler)
		return normal

	case b.Kind == FinallyBlock:
		switch c.Why {
		case WhyReturn:
			f.Push(c.Value)
		case WhyContinue:
			f.Push(c.Target)
		}
		f.Push(c.Why)
		f.IP = b.Handler
		return normal
	}

	return c
}

// unwindBlock restores the value stack to the block's level. Leaving an
// ExceptHandler block pops the kept triple. An exception on its way out
// stays the last exception; any other exit restores the exception of the
// next enclosing handler, or none.
func (e *Engine) unwindBlock(f *Frame, b Block, inFlight bool) {
	level := b.Level
	if b.Kind == ExceptHandlerBlock {
		level += 3
	}
	f.restore(level)

	if b.Kind != ExceptHandlerBlock {
		return
	}

	t := tripleFrom(f.PopN(3))
	switch {
	case inFlight && e.lastException != nil:
	case inFlight:
		e.lastException = t
	default:
		e.lastException = e.handling(f)
	}
}

// raise turns a catchable error into the frame's exception completion,
// recording the frame in its traceback. Fatal errors are returned as is.
func (e *Engine) raise(f *Frame, err error) (Completion, error) {
	exc, ok := guestException(err)
	if !ok {
		return normal, fatal(f, err)
	}

	if exc.Traceback == nil {
		exc.Traceback = &object.Traceback{}
	}
	exc.Traceback.Add(f.Code.Name, f.lastIP)

	if exc.Context == nil {
		if h := e.handling(f); h != nil && !chained(h.Value, exc) {
			exc.Context = h.Value
		}
	}

	e.lastException = newTriple(exc)
	log.Debug("raise", "code", f.Code.Name, "offset", f.lastIP, "exception", exc)
	return Completion{Why: WhyException}, nil
}

// reraise makes t the in-flight exception without a new traceback entry
func (e *Engine) reraise(t *ExceptionTriple) Completion {
	e.lastException = t
	return Completion{Why: WhyException}
}

// handling returns the exception handled by the innermost except clause
// on the call stack, starting at f.
func (e *Engine) handling(f *Frame) *ExceptionTriple {
	for fr := f; fr != nil; fr = fr.caller {
		if t := fr.activeHandler(); t != nil {
			return t
		}
	}
	return nil
}

// chained reports whether target is exc or already in exc's context chain
func chained(exc, target *object.Exception) bool {
	for x := exc; x != nil; x = x.Context {
		if x == target {
			return true
		}
	}
	return false
}
