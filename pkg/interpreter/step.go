package interpreter

import (
	"fmt"

	"byterun/pkg/code"
	"byterun/pkg/object"

	"github.com/charmbracelet/log"
)

// execute runs f until it returns, yields or raises. The frame is pushed
// on entry and popped on every exit path. A raised guest exception is
// returned as its *object.Exception.
func (e *Engine) execute(f *Frame) (object.Value, Why, error) {
	if err := e.pushFrame(f); err != nil {
		return nil, WhyException, err
	}

	var c Completion
	var err error
	for {
		c, err = e.step(f)
		if err != nil {
			break
		}

		if c.Why != WhyYield {
			for c.Why != WhyNone && f.blocks.Size() > 0 {
				c = e.unwindSafe(f, c, &err)
				if err != nil {
					break
				}
			}
		}

		if err != nil || c.Why != WhyNone {
			break
		}
	}

	e.popFrame()

	if err != nil {
		return nil, WhyNone, err
	}
	if c.Why == WhyException {
		return nil, WhyException, e.lastException.Value
	}
	return c.Value, c.Why, nil
}

// unwindSafe runs unwind, turning a stack underflow into a fatal error
func (e *Engine) unwindSafe(f *Frame, c Completion, errp *error) (out Completion) {
	defer func() {
		if r := recover(); r != nil {
			se, ok := r.(*StackError)
			if !ok {
				panic(r)
			}
			*errp = se
		}
	}()
	return e.unwind(f, c)
}

// step executes a single instruction of f
func (e *Engine) step(f *Frame) (c Completion, err error) {
	defer func() {
		if r := recover(); r != nil {
			se, ok := r.(*StackError)
			if !ok {
				panic(r)
			}
			c, err = normal, se
		}
	}()

	if err := e.ctx.Err(); err != nil {
		return normal, fmt.Errorf("interpreter: %w", err)
	}
	if e.maxSteps > 0 && e.steps >= e.maxSteps {
		return normal, ErrMaxStepsExceeded
	}
	e.steps++

	// falling off the end returns None
	if f.IP == f.Code.Len() {
		f.lastIP = f.IP
		e.returnValue = nil
		return Completion{Why: WhyReturn}, nil
	}

	ins, next, err := e.decoder.Decode(f.Code, f.IP)
	if err != nil {
		return normal, err
	}
	f.lastIP = ins.Offset
	f.IP = next

	if e.trace {
		log.Debug("exec", "code", f.Code.Name, "ins", ins, "depth", f.Depth())
	}

	c, err = e.dispatch(f, ins)
	if err != nil {
		return e.raise(f, err)
	}

	switch c.Why {
	case WhyReturn, WhyYield:
		e.returnValue = c.Value
	}
	return c, nil
}

// dispatch executes one decoded instruction
func (e *Engine) dispatch(f *Frame, ins code.Instruction) (Completion, error) {
	switch ins.Op {
	case code.OpNop:

	case code.OpPopTop:
		f.Pop()

	case code.OpRotTwo:
		vals := f.PopN(2)
		f.Push(vals[1], vals[0])

	case code.OpRotThree:
		vals := f.PopN(3)
		f.Push(vals[2], vals[0], vals[1])

	case code.OpDupTop:
		f.Push(f.Top())

	case code.OpDupTopTwo:
		vals := f.PopN(2)
		f.Push(vals[0], vals[1], vals[0], vals[1])

	case code.OpLoadConst:
		f.Push(ins.Arg)

	case code.OpLoadName:
		name := ins.Arg.(string)
		if v, ok := f.Scope.Locals[name]; ok {
			f.Push(v)
		} else if v, ok := f.Scope.Globals[name]; ok {
			f.Push(v)
		} else if v, ok := f.Builtins[name]; ok {
			f.Push(v)
		} else {
			return normal, object.NewException(object.NameErrorClass, "name '%s' is not defined", name)
		}

	case code.OpStoreName:
		f.Scope.Locals[ins.Arg.(string)] = f.Pop()

	case code.OpDeleteName:
		name := ins.Arg.(string)
		if _, ok := f.Scope.Locals[name]; !ok {
			return normal, object.NewException(object.NameErrorClass, "name '%s' is not defined", name)
		}
		delete(f.Scope.Locals, name)

	case code.OpLoadFast:
		name := ins.Arg.(string)
		v, ok := f.Scope.Locals[name]
		if !ok {
			return normal, object.NewException(object.UnboundLocalErrorClass, "local variable '%s' referenced before assignment", name)
		}
		f.Push(v)

	case code.OpStoreFast:
		f.Scope.Locals[ins.Arg.(string)] = f.Pop()

	case code.OpDeleteFast:
		name := ins.Arg.(string)
		if _, ok := f.Scope.Locals[name]; !ok {
			return normal, object.NewException(object.UnboundLocalErrorClass, "local variable '%s' referenced before assignment", name)
		}
		delete(f.Scope.Locals, name)

	case code.OpLoadGlobal:
		name := ins.Arg.(string)
		if v, ok := f.Scope.Globals[name]; ok {
			f.Push(v)
		} else if v, ok := f.Builtins[name]; ok {
			f.Push(v)
		} else {
			return normal, object.NewException(object.NameErrorClass, "name '%s' is not defined", name)
		}

	case code.OpStoreGlobal:
		f.Scope.Globals[ins.Arg.(string)] = f.Pop()

	case code.OpLoadDeref:
		i := ins.Target()
		v, ok := f.Cells[i].Get()
		if !ok {
			return normal, unboundCell(f.Code, i)
		}
		f.Push(v)

	case code.OpStoreDeref:
		f.Cells[ins.Target()].Set(f.Pop())

	case code.OpLoadClosure:
		f.Push(f.Cells[ins.Target()])

	case code.OpUnary:
		v, err := e.ops.Unary(ins.Operator, f.Pop())
		if err != nil {
			return normal, err
		}
		f.Push(v)

	case code.OpBinary, code.OpInplace:
		vals := f.PopN(2)
		v, err := e.binary(ins, vals[0], vals[1])
		if err != nil {
			return normal, err
		}
		f.Push(v)

	case code.OpCompareOp:
		vals := f.PopN(2)
		v, err := e.compare(ins.Arg.(string), vals[0], vals[1])
		if err != nil {
			return normal, err
		}
		f.Push(v)

	case code.OpStoreSubscr:
		vals := f.PopN(3)
		if err := object.SetItem(vals[1], vals[2], vals[0]); err != nil {
			return normal, err
		}

	case code.OpDeleteSubscr:
		vals := f.PopN(2)
		if err := object.DelItem(vals[0], vals[1]); err != nil {
			return normal, err
		}

	case code.OpBuildTuple:
		f.Push(object.Tuple(f.PopN(ins.Target())))

	case code.OpBuildList:
		f.Push(object.NewList(f.PopN(ins.Target())...))

	case code.OpBuildMap:
		f.Push(object.NewDict())

	case code.OpStoreMap:
		vals := f.PopN(2)
		d, ok := f.Top().(*object.Dict)
		if !ok {
			return normal, fmt.Errorf("STORE_MAP on %s", object.TypeName(f.Top()))
		}
		if err := d.Set(vals[1], vals[0]); err != nil {
			return normal, err
		}

	case code.OpListAppend:
		v := f.Pop()
		l, ok := f.Peek(ins.Target() - 1).(*object.List)
		if !ok {
			return normal, fmt.Errorf("LIST_APPEND on %s", object.TypeName(f.Peek(ins.Target()-1)))
		}
		l.Append(v)

	case code.OpUnpackSequence:
		items, err := object.Collect(f.Pop())
		if err != nil {
			return normal, err
		}
		n := ins.Target()
		switch {
		case len(items) > n:
			return normal, object.NewException(object.ValueErrorClass, "too many values to unpack (expected %d)", n)
		case len(items) < n:
			return normal, object.NewException(object.ValueErrorClass, "need more than %d values to unpack", len(items))
		}
		for i := len(items) - 1; i >= 0; i-- {
			f.Push(items[i])
		}

	case code.OpJumpForward, code.OpJumpAbsolute:
		f.IP = ins.Target()

	case code.OpPopJumpIfTrue:
		if object.Truthy(f.Pop()) {
			f.IP = ins.Target()
		}

	case code.OpPopJumpIfFalse:
		if !object.Truthy(f.Pop()) {
			f.IP = ins.Target()
		}

	case code.OpJumpIfTrueOrPop:
		if object.Truthy(f.Top()) {
			f.IP = ins.Target()
		} else {
			f.Pop()
		}

	case code.OpJumpIfFalseOrPop:
		if !object.Truthy(f.Top()) {
			f.IP = ins.Target()
		} else {
			f.Pop()
		}

	case code.OpSetupLoop:
		f.PushBlock(LoopBlock, ins.Target())

	case code.OpSetupExcept:
		f.PushBlock(SetupExceptBlock, ins.Target())

	case code.OpSetupFinally:
		f.PushBlock(FinallyBlock, ins.Target())

	case code.OpPopBlock:
		f.PopBlock()

	case code.OpBreakLoop:
		return Completion{Why: WhyBreak}, nil

	case code.OpContinueLoop:
		return Completion{Why: WhyContinue, Target: ins.Target()}, nil

	case code.OpGetIter:
		it, err := object.Iter(f.Pop())
		if err != nil {
			return normal, err
		}
		f.Push(it)

	case code.OpForIter:
		it, ok := f.Top().(object.Iterator)
		if !ok {
			return normal, object.NewException(object.TypeErrorClass, "'%s' object is not an iterator", object.TypeName(f.Top()))
		}
		v, more, err := it.Next()
		if err != nil {
			return normal, err
		}
		if more {
			f.Push(v)
		} else {
			f.Pop()
			f.IP = ins.Target()
		}

	case code.OpEndFinally:
		return e.endFinally(f)

	case code.OpPopExcept:
		b := f.PopBlock()
		if b.Kind != ExceptHandlerBlock {
			return normal, fmt.Errorf("POP_EXCEPT: popped %s block: %w", b.Kind, ErrBadBlock)
		}
		e.unwindBlock(f, b, false)

	case code.OpRaiseVarargs:
		return e.raiseVarargs(f, ins.Target())

	case code.OpMakeFunction, code.OpMakeClosure:
		fn, err := e.makeFunction(f, ins)
		if err != nil {
			return normal, err
		}
		f.Push(fn)

	case code.OpCallFunction:
		return e.callFunction(f, ins.Target())

	case code.OpReturnValue:
		return Completion{Why: WhyReturn, Value: f.Pop()}, nil

	case code.OpYieldValue:
		return Completion{Why: WhyYield, Value: f.Pop()}, nil

	case code.OpPrintItem:
		v := f.Pop()
		if e.softspace {
			fmt.Fprint(e.out, " ")
		}
		fmt.Fprint(e.out, object.Str(v))
		e.softspace = true

	case code.OpPrintNewline:
		fmt.Fprintln(e.out)
		e.softspace = false

	default:
		return normal, &code.UnsupportedOpcodeError{Name: ins.Mnemonic(), Offset: ins.Offset}
	}

	return normal, nil
}

func unboundCell(u *code.Unit, i int) error {
	name := u.CellName(i)
	if i < len(u.CellVars) {
		return object.NewException(object.UnboundLocalErrorClass, "local variable '%s' referenced before assignment", name)
	}
	return object.NewException(object.NameErrorClass, "free variable '%s' referenced before assignment in enclosing scope", name)
}

// binary applies BINARY_* and INPLACE_* operators. In-place addition
// extends a list without copying it.
func (e *Engine) binary(ins code.Instruction, a, b object.Value) (object.Value, error) {
	if ins.Op == code.OpInplace && ins.Operator == "ADD" {
		if l, ok := a.(*object.List); ok {
			items, err := object.Collect(b)
			if err != nil {
				return nil, err
			}
			l.Items = append(l.Items, items...)
			return l, nil
		}
	}
	return e.ops.Binary(ins.Operator, a, b)
}

// compare applies COMPARE_OP, resolving `exception match` itself
func (e *Engine) compare(op string, a, b object.Value) (object.Value, error) {
	if op != "exception match" {
		return e.ops.Compare(op, a, b)
	}
	return exceptionMatch(a, b)
}

func exceptionMatch(v, target object.Value) (bool, error) {
	var kind *object.Class
	switch x := v.(type) {
	case *object.Class:
		kind = x
	case *object.Exception:
		kind = x.Class
	default:
		return false, nil
	}

	switch t := target.(type) {
	case *object.Class:
		return kind.IsSubclass(t), nil
	case object.Tuple:
		for _, item := range t {
			ok, err := exceptionMatch(kind, item)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	}
	return false, object.NewException(object.TypeErrorClass, "catching classes that do not inherit from BaseException is not allowed")
}

// endFinally restores the completion stashed when the finally or except
// handler was entered
func (e *Engine) endFinally(f *Frame) (Completion, error) {
	switch v := f.Pop().(type) {
	case nil:
		return normal, nil
	case Why:
		switch v {
		case WhyReturn:
			return Completion{Why: WhyReturn, Value: f.Pop()}, nil
		case WhyContinue:
			target, ok := f.Pop().(int)
			if !ok {
				return normal, ErrEndFinally
			}
			return Completion{Why: WhyContinue, Target: target}, nil
		case WhyBreak:
			return Completion{Why: WhyBreak}, nil
		}
		return normal, fmt.Errorf("%w: %s", ErrEndFinally, v)
	case *object.Class:
		vals := f.PopN(2)
		t := tripleFrom([]object.Value{vals[0], vals[1], v})
		if t == nil {
			return normal, ErrEndFinally
		}
		return e.reraise(t), nil
	default:
		return normal, fmt.Errorf("%w: %s on top of the stack", ErrEndFinally, object.TypeName(v))
	}
}

// raiseVarargs implements RAISE_VARARGS: 0 re-raises the handled
// exception, 1 raises TOS, 2 raises TOS1 from TOS.
func (e *Engine) raiseVarargs(f *Frame, argc int) (Completion, error) {
	switch argc {
	case 0:
		t := e.handling(f)
		if t == nil {
			t = e.lastException
		}
		if t == nil {
			return normal, object.NewException(object.RuntimeErrorClass, "No active exception to reraise")
		}
		return e.reraise(t), nil

	case 1, 2:
		var cause object.Value
		if argc == 2 {
			cause = f.Pop()
		}
		exc, err := instantiate(f.Pop())
		if err != nil {
			return normal, err
		}
		if argc == 2 && cause != nil {
			c, err := instantiate(cause)
			if err != nil {
				return normal, object.NewException(object.TypeErrorClass, "exception causes must derive from BaseException")
			}
			exc.Cause = c
		}
		return normal, exc
	}

	return normal, fmt.Errorf("RAISE_VARARGS: bad argument count %d", argc)
}

// instantiate normalizes a raised value to an exception instance
func instantiate(v object.Value) (*object.Exception, error) {
	switch x := v.(type) {
	case *object.Exception:
		return x, nil
	case *object.Class:
		return x.New(), nil
	}
	return nil, object.NewException(object.TypeErrorClass, "exceptions must derive from BaseException")
}

// makeFunction implements MAKE_FUNCTION and MAKE_CLOSURE. The stack holds
// the defaults, the closure tuple for MAKE_CLOSURE, the code and the name.
func (e *Engine) makeFunction(f *Frame, ins code.Instruction) (*Function, error) {
	argc := ins.Target()
	if argc>>8 != 0 {
		return nil, fmt.Errorf("%s: keyword-only defaults and annotations are not supported", ins.Op)
	}

	name, ok := f.Pop().(string)
	if !ok {
		return nil, fmt.Errorf("%s: function name is not a string", ins.Op)
	}
	unit, ok := f.Pop().(*code.Unit)
	if !ok {
		return nil, fmt.Errorf("%s: %s is not a code unit", ins.Op, name)
	}

	var closure []*Cell
	if ins.Op == code.OpMakeClosure {
		cells, ok := f.Pop().(object.Tuple)
		if !ok {
			return nil, fmt.Errorf("%s: closure is not a tuple", ins.Op)
		}
		for _, c := range cells {
			cell, ok := c.(*Cell)
			if !ok {
				return nil, fmt.Errorf("%s: closure holds a %s", ins.Op, object.TypeName(c))
			}
			closure = append(closure, cell)
		}
		if len(closure) != len(unit.FreeVars) {
			return nil, fmt.Errorf("%s: %s needs %d cells, got %d", ins.Op, name, len(unit.FreeVars), len(closure))
		}
	}

	return &Function{
		Name:     name,
		Code:     unit,
		Globals:  f.Scope.Globals,
		Defaults: f.PopN(argc & 0xff),
		Closure:  closure,
		engine:   e,
	}, nil
}

// callFunction implements CALL_FUNCTION: the low byte counts positional
// arguments, the next byte keyword (name, value) pairs.
func (e *Engine) callFunction(f *Frame, arg int) (Completion, error) {
	npos, nkw := arg&0xff, (arg>>8)&0xff

	var kwargs map[string]object.Value
	if nkw > 0 {
		pairs := f.PopN(2 * nkw)
		kwargs = make(map[string]object.Value, nkw)
		for i := 0; i < len(pairs); i += 2 {
			k, ok := pairs[i].(string)
			if !ok {
				return normal, object.NewException(object.TypeErrorClass, "keywords must be strings")
			}
			kwargs[k] = pairs[i+1]
		}
	}
	args := f.PopN(npos)
	callee := f.Pop()

	v, err := e.call(callee, args, kwargs)
	if err != nil {
		return normal, err
	}
	f.Push(v)
	return normal, nil
}

func (e *Engine) call(callee object.Value, args []object.Value, kwargs map[string]object.Value) (object.Value, error) {
	switch fn := callee.(type) {
	case *Function:
		if fn.engine != e {
			return nil, fmt.Errorf("function %s belongs to another engine", fn.Name)
		}
		return e.CallFunction(fn, args, kwargs)
	case *object.Class:
		if len(kwargs) > 0 {
			return nil, object.NewException(object.TypeErrorClass, "%s does not take keyword arguments", fn.Name)
		}
		return fn.New(args...), nil
	case Callable:
		return fn.Call(args, kwargs)
	}
	return nil, object.NewException(object.TypeErrorClass, "'%s' object is not callable", object.TypeName(callee))
}
