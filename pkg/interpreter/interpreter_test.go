package interpreter

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"byterun/pkg/asm"
	"byterun/pkg/code"
	"byterun/pkg/object"
)

func assemble(t *testing.T, src string) *code.Unit {
	t.Helper()
	u, err := asm.Assemble(src)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	return u
}

func run(t *testing.T, src string, opts ...Option) (object.Value, string, error) {
	t.Helper()
	var out bytes.Buffer
	e := New(append([]Option{WithWriter(&out)}, opts...)...)
	v, err := e.Run(context.Background(), assemble(t, src), nil, nil)
	if e.Depth() != 0 {
		t.Errorf("expected an empty call stack, got depth %d", e.Depth())
	}
	return v, out.String(), err
}

func guestClass(t *testing.T, err error) *object.Exception {
	t.Helper()
	var ge *GuestError
	if !errors.As(err, &ge) {
		t.Fatalf("expected a *GuestError, got %v", err)
	}
	return ge.Triple.Value
}

func TestRun(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected object.Value
		output   string
	}{
		{
			name: "arithmetic",
			src: `
code main
    LOAD_CONST 2
    LOAD_CONST 3
    BINARY_ADD
    LOAD_CONST 4
    BINARY_MULTIPLY
    RETURN_VALUE
end`,
			expected: int64(20),
		},
		{
			name: "implicit return",
			src: `
code main
    LOAD_CONST 1
    STORE_NAME x
end`,
			expected: nil,
		},
		{
			name: "loop with break",
			src: `
code main
    LOAD_CONST 0
    STORE_NAME total
    SETUP_LOOP done
    LOAD_NAME range
    LOAD_CONST 10
    CALL_FUNCTION 1
    GET_ITER
top:
    FOR_ITER exit
    STORE_NAME i
    LOAD_NAME i
    LOAD_CONST 5
    COMPARE_OP eq
    POP_JUMP_IF_FALSE body
    BREAK_LOOP
body:
    LOAD_NAME total
    LOAD_NAME i
    INPLACE_ADD
    STORE_NAME total
    JUMP_ABSOLUTE top
exit:
    POP_BLOCK
done:
    LOAD_NAME total
    RETURN_VALUE
end`,
			expected: int64(10),
		},
		{
			name: "continue through finally",
			src: `
code main
    LOAD_CONST 0
    STORE_NAME count
    SETUP_LOOP done
    LOAD_NAME range
    LOAD_CONST 3
    CALL_FUNCTION 1
    GET_ITER
top:
    FOR_ITER exit
    STORE_NAME i
    SETUP_FINALLY fin
    CONTINUE_LOOP top
    POP_BLOCK
    LOAD_CONST None
fin:
    LOAD_NAME count
    LOAD_CONST 1
    INPLACE_ADD
    STORE_NAME count
    END_FINALLY
    JUMP_ABSOLUTE top
exit:
    POP_BLOCK
done:
    LOAD_NAME count
    RETURN_VALUE
end`,
			expected: int64(3),
		},
		{
			name: "break through finally",
			src: `
code main
    SETUP_LOOP done
    LOAD_CONST (1, 2, 3)
    GET_ITER
top:
    FOR_ITER exit
    STORE_NAME i
    SETUP_FINALLY fin
    BREAK_LOOP
    POP_BLOCK
    LOAD_CONST None
fin:
    LOAD_NAME i
    PRINT_ITEM
    PRINT_NEWLINE
    END_FINALLY
    JUMP_ABSOLUTE top
exit:
    POP_BLOCK
done:
    LOAD_CONST "done"
    RETURN_VALUE
end`,
			expected: "done",
			output:   "1\n",
		},
		{
			name: "return through finally",
			src: `
code main
    LOAD_CONST @f
    LOAD_CONST "f"
    MAKE_FUNCTION 0
    CALL_FUNCTION 0
    RETURN_VALUE
end

code f()
    SETUP_FINALLY fin
    LOAD_CONST "body"
    RETURN_VALUE
    POP_BLOCK
    LOAD_CONST None
fin:
    LOAD_GLOBAL print
    LOAD_CONST "cleanup"
    CALL_FUNCTION 1
    POP_TOP
    END_FINALLY
    LOAD_CONST "unreached"
    RETURN_VALUE
end`,
			expected: "body",
			output:   "cleanup\n",
		},
		{
			name: "defaults and keywords",
			src: `
code main
    LOAD_CONST 10
    LOAD_CONST @f
    LOAD_CONST "f"
    MAKE_FUNCTION 1
    STORE_NAME f
    LOAD_NAME f
    LOAD_CONST 1
    CALL_FUNCTION 1
    LOAD_NAME f
    LOAD_CONST 1
    LOAD_CONST "b"
    LOAD_CONST 2
    CALL_FUNCTION 1 1
    BUILD_TUPLE 2
    RETURN_VALUE
end

code f(a, b)
    LOAD_FAST a
    LOAD_FAST b
    BINARY_ADD
    RETURN_VALUE
end`,
			expected: object.Tuple{int64(11), int64(3)},
		},
		{
			name: "varargs",
			src: `
code main
    LOAD_CONST @f
    LOAD_CONST "f"
    MAKE_FUNCTION 0
    LOAD_CONST 1
    LOAD_CONST 2
    LOAD_CONST 3
    LOAD_CONST "k"
    LOAD_CONST 4
    CALL_FUNCTION 3 1
    RETURN_VALUE
end

code f(a, *rest, **kw)
    LOAD_FAST rest
    LOAD_GLOBAL len
    LOAD_FAST kw
    CALL_FUNCTION 1
    BUILD_TUPLE 2
    RETURN_VALUE
end`,
			expected: object.Tuple{object.Tuple{int64(2), int64(3)}, int64(1)},
		},
		{
			name: "closure shares cell",
			src: `
code main
    LOAD_CONST @make
    LOAD_CONST "make"
    MAKE_FUNCTION 0
    CALL_FUNCTION 0
    UNPACK_SEQUENCE 2
    STORE_NAME inc
    STORE_NAME get
    LOAD_NAME inc
    CALL_FUNCTION 0
    POP_TOP
    LOAD_NAME inc
    CALL_FUNCTION 0
    POP_TOP
    LOAD_NAME get
    CALL_FUNCTION 0
    RETURN_VALUE
end

code make()
    .cellvars n
    LOAD_CONST 0
    STORE_DEREF n
    LOAD_CLOSURE n
    BUILD_TUPLE 1
    LOAD_CONST @inc
    LOAD_CONST "inc"
    MAKE_CLOSURE 0
    LOAD_CLOSURE n
    BUILD_TUPLE 1
    LOAD_CONST @get
    LOAD_CONST "get"
    MAKE_CLOSURE 0
    BUILD_TUPLE 2
    RETURN_VALUE
end

code inc()
    .freevars n
    LOAD_DEREF n
    LOAD_CONST 1
    INPLACE_ADD
    STORE_DEREF n
    LOAD_CONST None
    RETURN_VALUE
end

code get()
    .freevars n
    LOAD_DEREF n
    RETURN_VALUE
end`,
			expected: int64(2),
		},
		{
			name: "generator",
			src: `
code main
    LOAD_NAME list
    LOAD_CONST @gen
    LOAD_CONST "gen"
    MAKE_FUNCTION 0
    LOAD_CONST 4
    CALL_FUNCTION 1
    CALL_FUNCTION 1
    RETURN_VALUE
end

code gen(n)
    .generator
    SETUP_LOOP done
    LOAD_GLOBAL range
    LOAD_FAST n
    CALL_FUNCTION 1
    GET_ITER
top:
    FOR_ITER exit
    STORE_FAST i
    LOAD_FAST i
    LOAD_FAST i
    BINARY_MULTIPLY
    YIELD_VALUE
    POP_TOP
    JUMP_ABSOLUTE top
exit:
    POP_BLOCK
done:
    LOAD_CONST None
    RETURN_VALUE
end`,
			expected: object.NewList(int64(0), int64(1), int64(4), int64(9)),
		},
		{
			name: "containers",
			src: `
code main
    BUILD_MAP 1
    LOAD_CONST 1
    LOAD_CONST "a"
    STORE_MAP
    STORE_NAME d
    LOAD_CONST 2
    LOAD_NAME d
    LOAD_CONST "b"
    STORE_SUBSCR
    LOAD_NAME d
    LOAD_CONST "a"
    DELETE_SUBSCR
    BUILD_LIST 0
    LOAD_CONST 7
    LIST_APPEND 1
    LOAD_NAME d
    LOAD_CONST "b"
    BINARY_SUBSCR
    BUILD_TUPLE 2
    RETURN_VALUE
end`,
			expected: object.Tuple{object.NewList(int64(7)), int64(2)},
		},
		{
			name: "stack shuffles",
			src: `
code main
    LOAD_CONST 1
    LOAD_CONST 2
    LOAD_CONST 3
    ROT_THREE
    ROT_TWO
    DUP_TOP_TWO
    BUILD_TUPLE 5
    RETURN_VALUE
end`,
			expected: object.Tuple{int64(3), int64(2), int64(1), int64(2), int64(1)},
		},
		{
			name: "print statement",
			src: `
code main
    LOAD_CONST "a"
    PRINT_ITEM
    LOAD_CONST 1
    PRINT_ITEM
    PRINT_NEWLINE
    LOAD_CONST (1, "b")
    PRINT_ITEM
    PRINT_NEWLINE
end`,
			output: "a 1\n(1, 'b')\n",
		},
		{
			name: "print builtin",
			src: `
code main
    LOAD_NAME print
    LOAD_CONST 1
    LOAD_CONST 2
    LOAD_CONST "sep"
    LOAD_CONST "-"
    LOAD_CONST "end"
    LOAD_CONST "!"
    CALL_FUNCTION 2 2
    RETURN_VALUE
end`,
			output: "1-2!",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, output, err := run(t, test.src)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !object.Equal(got, test.expected) {
				t.Errorf("expected %s, got %s", object.Repr(test.expected), object.Repr(got))
			}
			if output != test.output {
				t.Errorf("expected output %q, got %q", test.output, output)
			}
		})
	}
}

func TestGuestExceptions(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		class   *object.Class
		message string
	}{
		{
			name: "undefined name",
			src: `
code main
    LOAD_NAME missing
end`,
			class:   object.NameErrorClass,
			message: "name 'missing' is not defined",
		},
		{
			name: "unexpected keyword",
			src: `
code main
    LOAD_CONST @f
    LOAD_CONST "f"
    MAKE_FUNCTION 0
    LOAD_CONST 1
    LOAD_CONST "c"
    LOAD_CONST 2
    CALL_FUNCTION 1 1
end

code f(a)
    LOAD_FAST a
    RETURN_VALUE
end`,
			class:   object.TypeErrorClass,
			message: "f() got an unexpected keyword argument 'c'",
		},
		{
			name: "missing argument",
			src: `
code main
    LOAD_CONST @f
    LOAD_CONST "f"
    MAKE_FUNCTION 0
    CALL_FUNCTION 0
end

code f(a, b)
    LOAD_FAST a
    RETURN_VALUE
end`,
			class:   object.TypeErrorClass,
			message: "f() missing 2 required positional arguments: 'a', 'b'",
		},
		{
			name: "not callable",
			src: `
code main
    LOAD_CONST 1
    CALL_FUNCTION 0
end`,
			class:   object.TypeErrorClass,
			message: "'int' object is not callable",
		},
		{
			name: "unpack too many",
			src: `
code main
    LOAD_CONST (1, 2, 3)
    UNPACK_SEQUENCE 2
end`,
			class:   object.ValueErrorClass,
			message: "too many values to unpack (expected 2)",
		},
		{
			name: "unbound local",
			src: `
code main
    LOAD_CONST @f
    LOAD_CONST "f"
    MAKE_FUNCTION 0
    CALL_FUNCTION 0
end

code f()
    LOAD_FAST x
    RETURN_VALUE
end`,
			class:   object.UnboundLocalErrorClass,
			message: "local variable 'x' referenced before assignment",
		},
		{
			name: "bare raise without exception",
			src: `
code main
    RAISE_VARARGS 0
end`,
			class:   object.RuntimeErrorClass,
			message: "No active exception to reraise",
		},
		{
			name: "raise a class",
			src: `
code main
    LOAD_NAME KeyError
    RAISE_VARARGS 1
end`,
			class: object.KeyErrorClass,
		},
		{
			name: "division by zero",
			src: `
code main
    LOAD_CONST 1
    LOAD_CONST 0
    BINARY_TRUE_DIVIDE
end`,
			class:   object.ZeroDivisionErrorClass,
			message: "division by zero",
		},
		{
			name: "huge repeat",
			src: `
code main
    LOAD_CONST (1, 2)
    LOAD_CONST 4611686018427387904
    BINARY_MULTIPLY
end`,
			class:   object.OverflowErrorClass,
			message: "repeated sequence is too long",
		},
		{
			name: "integer overflow",
			src: `
code main
    LOAD_CONST 9223372036854775807
    LOAD_CONST 1
    BINARY_ADD
end`,
			class:   object.OverflowErrorClass,
			message: "integer addition result too large",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, _, err := run(t, test.src)
			exc := guestClass(t, err)
			if exc.Class != test.class {
				t.Errorf("expected %s, got %s", test.class.Name, exc.Class.Name)
			}
			if exc.Message() != test.message {
				t.Errorf("expected message %q, got %q", test.message, exc.Message())
			}
			if IsFatal(err) {
				t.Errorf("guest exception %v reported as fatal", err)
			}
		})
	}
}

func TestExceptHandler(t *testing.T) {
	src := `
code main
    SETUP_EXCEPT handler
    LOAD_CONST 1
    LOAD_CONST 0
    BINARY_TRUE_DIVIDE
    POP_TOP
    POP_BLOCK
    JUMP_FORWARD after
handler:
    LOAD_NAME snap
    CALL_FUNCTION 0
    POP_TOP
    DUP_TOP
    LOAD_NAME ZeroDivisionError
    COMPARE_OP exception_match
    POP_JUMP_IF_FALSE reraise
    POP_TOP
    STORE_NAME err
    POP_TOP
    POP_EXCEPT
    JUMP_FORWARD after
reraise:
    END_FINALLY
after:
    LOAD_NAME err
    RETURN_VALUE
end`

	var e *Engine
	var stack []object.Value
	var blocks []Block
	snap := object.NewBuiltin("snap", func(args []object.Value, kwargs map[string]object.Value) (object.Value, error) {
		stack = e.frame().Stack()
		blocks = e.frame().Blocks()
		return nil, nil
	})
	e = New(WithBuiltins(Namespace{"snap": snap}))

	v, err := e.Run(context.Background(), assemble(t, src), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exc, ok := v.(*object.Exception)
	if !ok || exc.Class != object.ZeroDivisionErrorClass {
		t.Fatalf("expected a ZeroDivisionError, got %v", v)
	}
	if e.LastException() != nil {
		t.Errorf("expected the handled exception to be cleared, got %v", e.LastException().Value)
	}

	if len(blocks) != 1 || blocks[0].Kind != ExceptHandlerBlock || blocks[0].Level != 0 {
		t.Fatalf("expected a single except-handler block at level 0, got %+v", blocks)
	}
	if len(stack) != 6 {
		t.Fatalf("expected two exception triples on the stack, got %v", stack)
	}
	if _, ok := stack[3].(*object.Traceback); !ok || stack[4] != exc || stack[5] != object.ZeroDivisionErrorClass {
		t.Errorf("expected (traceback, value, kind) on top, got %v", stack[3:])
	}
}

func TestExceptionThroughFinally(t *testing.T) {
	src := `
code main
    SETUP_EXCEPT handler
    SETUP_FINALLY fin
    LOAD_NAME missing
    POP_TOP
    POP_BLOCK
    LOAD_CONST None
fin:
    LOAD_CONST "cleanup"
    PRINT_ITEM
    PRINT_NEWLINE
    END_FINALLY
    POP_BLOCK
    JUMP_FORWARD after
handler:
    POP_TOP
    STORE_NAME err
    POP_TOP
    POP_EXCEPT
after:
    LOAD_NAME err
    RETURN_VALUE
end`

	v, output, err := run(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	exc, ok := v.(*object.Exception)
	if !ok || exc.Class != object.NameErrorClass {
		t.Errorf("expected the NameError to reach the handler, got %v", v)
	}
	if output != "cleanup\n" {
		t.Errorf("expected the finally body to run once, got %q", output)
	}
}

func TestFinallyInsideExcept(t *testing.T) {
	src := `
code main
    SETUP_EXCEPT handler
    LOAD_NAME ValueError
    RAISE_VARARGS 1
    POP_BLOCK
    JUMP_FORWARD after
handler:
    POP_TOP
    POP_TOP
    POP_TOP
    SETUP_FINALLY fin
%s
    POP_BLOCK
    LOAD_CONST None
fin:
    LOAD_CONST "inner"
    PRINT_ITEM
    PRINT_NEWLINE
    END_FINALLY
    POP_EXCEPT
after:
    LOAD_CONST "ok"
    RETURN_VALUE
end`

	t.Run("normal exit", func(t *testing.T) {
		var out bytes.Buffer
		e := New(WithWriter(&out))
		v, err := e.Run(context.Background(), assemble(t, strings.Replace(src, "%s", "    NOP", 1)), nil, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != "ok" || out.String() != "inner\n" {
			t.Errorf("unexpected result %v with output %q", v, out.String())
		}
		if e.LastException() != nil {
			t.Errorf("expected no exception after the handler, got %v", e.LastException().Value)
		}
	})

	t.Run("raise in finally body", func(t *testing.T) {
		_, output, err := run(t, strings.Replace(src, "%s", "    LOAD_NAME KeyError\n    RAISE_VARARGS 1", 1))
		exc := guestClass(t, err)
		if exc.Class != object.KeyErrorClass {
			t.Fatalf("expected KeyError, got %v", exc)
		}
		if exc.Context == nil || exc.Context.Class != object.ValueErrorClass {
			t.Errorf("expected the handled ValueError as context, got %v", exc.Context)
		}
		if output != "inner\n" {
			t.Errorf("expected the finally body to run once, got %q", output)
		}
	})
}

func TestRaiseInHandler(t *testing.T) {
	handler := `
code main
    SETUP_EXCEPT handler
    LOAD_NAME ValueError
    LOAD_CONST "first"
    CALL_FUNCTION 1
    RAISE_VARARGS 1
    POP_BLOCK
    JUMP_FORWARD after
handler:
    POP_TOP
    POP_TOP
    POP_TOP
%s
    POP_EXCEPT
after:
    LOAD_CONST None
    RETURN_VALUE
end`

	t.Run("context", func(t *testing.T) {
		_, _, err := run(t, strings.Replace(handler, "%s", "    LOAD_NAME KeyError\n    RAISE_VARARGS 1", 1))
		exc := guestClass(t, err)
		if exc.Class != object.KeyErrorClass {
			t.Fatalf("expected KeyError, got %v", exc)
		}
		if exc.Context == nil || exc.Context.Class != object.ValueErrorClass {
			t.Errorf("expected ValueError as context, got %v", exc.Context)
		}
	})

	t.Run("cause", func(t *testing.T) {
		_, _, err := run(t, strings.Replace(handler, "%s", "    LOAD_NAME KeyError\n    LOAD_NAME TypeError\n    RAISE_VARARGS 2", 1))
		exc := guestClass(t, err)
		if exc.Cause == nil || exc.Cause.Class != object.TypeErrorClass {
			t.Errorf("expected TypeError as cause, got %v", exc.Cause)
		}
	})

	t.Run("reraise", func(t *testing.T) {
		_, _, err := run(t, strings.Replace(handler, "%s", "    RAISE_VARARGS 0", 1))
		exc := guestClass(t, err)
		if exc.Class != object.ValueErrorClass || exc.Message() != "first" {
			t.Fatalf("expected the original ValueError, got %v", exc)
		}
		if n := len(exc.Traceback.Entries); n != 1 {
			t.Errorf("expected a single traceback entry, got %d", n)
		}
	})
}

func TestTraceback(t *testing.T) {
	src := `
code main
    LOAD_CONST @f
    LOAD_CONST "f"
    MAKE_FUNCTION 0
    CALL_FUNCTION 0
    RETURN_VALUE
end

code f()
    LOAD_CONST 1
    LOAD_CONST 0
    BINARY_FLOOR_DIVIDE
    RETURN_VALUE
end`

	_, _, err := run(t, src)
	exc := guestClass(t, err)
	entries := exc.Traceback.Entries
	if len(entries) != 2 || entries[0].Code != "f" || entries[0].Offset != 2 || entries[1].Code != "main" || entries[1].Offset != 3 {
		t.Errorf("unexpected traceback %+v", entries)
	}

	msg := err.Error()
	for _, want := range []string{"Traceback (most recent call last):", "in f at offset 2", "ZeroDivisionError"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %q", want, msg)
		}
	}
}

func TestRecursionLimit(t *testing.T) {
	src := `
code main
    LOAD_CONST @f
    LOAD_CONST "f"
    MAKE_FUNCTION 0
    STORE_NAME f
    LOAD_NAME f
    CALL_FUNCTION 0
    RETURN_VALUE
end

code f()
    LOAD_GLOBAL f
    CALL_FUNCTION 0
    RETURN_VALUE
end`

	_, _, err := run(t, src, WithMaxDepth(50))
	exc := guestClass(t, err)
	if exc.Class != object.RecursionErrorClass {
		t.Fatalf("expected RecursionError, got %v", exc)
	}
	if n := len(exc.Traceback.Entries); n != 50 {
		t.Errorf("expected one traceback entry per frame, got %d", n)
	}
}

func TestFatalErrors(t *testing.T) {
	loop := `
code main
top:
    JUMP_ABSOLUTE top
end`

	t.Run("max steps", func(t *testing.T) {
		e := New(WithMaxSteps(100))
		_, err := e.Run(context.Background(), assemble(t, loop), nil, nil)
		if !errors.Is(err, ErrMaxStepsExceeded) {
			t.Fatalf("expected ErrMaxStepsExceeded, got %v", err)
		}
		if e.Steps() != 100 {
			t.Errorf("expected 100 steps, got %d", e.Steps())
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := New().Run(ctx, assemble(t, loop), nil, nil)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("stack underflow", func(t *testing.T) {
		src := `
code main
    SETUP_EXCEPT handler
    POP_TOP
    POP_BLOCK
handler:
    LOAD_CONST None
    RETURN_VALUE
end`
		_, _, err := run(t, src)
		var se *StackError
		if !errors.As(err, &se) || se.Offset != 1 {
			t.Fatalf("expected a stack underflow at offset 1, got %v", err)
		}
		if !IsFatal(err) {
			t.Error("expected a fatal error")
		}
	})

	t.Run("unsupported opcode", func(t *testing.T) {
		u := &code.Unit{
			Name: "main",
			Instructions: []code.RawInstruction{
				{Name: "IMPORT_NAME", Arg: 0},
			},
		}
		_, err := New().Run(context.Background(), u, nil, nil)
		var unsupported *code.UnsupportedOpcodeError
		if !errors.As(err, &unsupported) || unsupported.Name != "IMPORT_NAME" {
			t.Fatalf("expected an unsupported opcode error, got %v", err)
		}
	})
}

func TestNamespaces(t *testing.T) {
	src := `
code main
    LOAD_NAME x
    LOAD_CONST 1
    BINARY_ADD
    STORE_NAME y
end`

	globals := Namespace{"x": int64(41)}
	if _, err := New().Run(context.Background(), assemble(t, src), globals, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if globals["y"] != int64(42) {
		t.Errorf("expected y = 42 in globals, got %v", globals["y"])
	}

	locals := Namespace{"x": int64(1)}
	if _, err := New().Run(context.Background(), assemble(t, src), nil, locals); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if locals["y"] != int64(2) {
		t.Errorf("expected y = 2 in locals, got %v", locals["y"])
	}

	globals = Namespace{}
	locals = Namespace{"x": int64(9)}
	if _, err := New().Run(context.Background(), assemble(t, src), globals, locals); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if globals["x"] != int64(9) || globals["y"] != int64(10) {
		t.Errorf("expected locals unified into globals, got %v", globals)
	}
}

func TestCallFunctionFromGo(t *testing.T) {
	src := `
code main
    LOAD_CONST @double
    LOAD_CONST "double"
    MAKE_FUNCTION 0
    RETURN_VALUE
end

code double(x)
    LOAD_FAST x
    LOAD_CONST 2
    BINARY_MULTIPLY
    RETURN_VALUE
end`

	e := New()
	v, err := e.Run(context.Background(), assemble(t, src), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fn, ok := v.(*Function)
	if !ok {
		t.Fatalf("expected a function, got %v", v)
	}

	got, err := fn.Call([]object.Value{int64(21)}, nil)
	if err != nil || got != int64(42) {
		t.Errorf("expected 42, got %v (%v)", got, err)
	}

	_, err = fn.Call(nil, map[string]object.Value{"y": int64(1)})
	var binding *ArgumentBindingError
	if !errors.As(err, &binding) {
		t.Errorf("expected an argument binding error, got %v", err)
	}
}

type snapshot struct {
	stack  []object.Value
	blocks []Block
}

// runSnapshots runs src with a snap builtin that records the calling
// frame's value and block stacks.
func runSnapshots(t *testing.T, src string) (object.Value, []snapshot, *Engine, error) {
	t.Helper()
	var e *Engine
	var snaps []snapshot
	snap := object.NewBuiltin("snap", func(args []object.Value, kwargs map[string]object.Value) (object.Value, error) {
		snaps = append(snaps, snapshot{stack: e.frame().Stack(), blocks: e.frame().Blocks()})
		return nil, nil
	})
	e = New(WithBuiltins(Namespace{"snap": snap}), WithWriter(&bytes.Buffer{}))
	v, err := e.Run(context.Background(), assemble(t, src), nil, nil)
	return v, snaps, e, err
}

func TestBreakRestoresStacks(t *testing.T) {
	src := `
code main
    LOAD_CONST "sentinel"
    LOAD_NAME snap
    CALL_FUNCTION 0
    POP_TOP
    SETUP_LOOP done
    LOAD_CONST (1, 2, 3)
    GET_ITER
top:
    FOR_ITER exit
    POP_TOP
    LOAD_NAME snap
    CALL_FUNCTION 0
    POP_TOP
    BREAK_LOOP
exit:
    POP_BLOCK
done:
    LOAD_NAME snap
    CALL_FUNCTION 0
    POP_TOP
    RETURN_VALUE
end`

	v, snaps, _, err := runSnapshots(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "sentinel" {
		t.Errorf("expected the sentinel back, got %v", v)
	}
	if len(snaps) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(snaps))
	}

	inside := snaps[1]
	if len(inside.stack) != 2 || len(inside.blocks) != 1 || inside.blocks[0].Kind != LoopBlock || inside.blocks[0].Level != 1 {
		t.Errorf("unexpected stacks inside the loop: %v %+v", inside.stack, inside.blocks)
	}

	before, after := snaps[0], snaps[2]
	if len(after.stack) != len(before.stack) || after.stack[0] != "sentinel" {
		t.Errorf("expected the pre-loop stack %v after break, got %v", before.stack, after.stack)
	}
	if len(after.blocks) != 0 {
		t.Errorf("expected no blocks after break, got %+v", after.blocks)
	}
}

func TestBindingFailureLeavesCallerUntouched(t *testing.T) {
	src := `
code main
    LOAD_CONST @f
    LOAD_CONST "f"
    MAKE_FUNCTION 0
    STORE_NAME f
    LOAD_CONST "sentinel"
    SETUP_LOOP done
    LOAD_NAME check
    LOAD_NAME f
    CALL_FUNCTION 1
    POP_TOP
    POP_BLOCK
done:
    RETURN_VALUE
end

code f(a)
    LOAD_FAST a
    RETURN_VALUE
end`

	tests := []struct {
		name    string
		args    []object.Value
		kwargs  map[string]object.Value
		message string
	}{
		{"unexpected keyword", []object.Value{int64(1)}, map[string]object.Value{"c": int64(2)}, "f() got an unexpected keyword argument 'c'"},
		{"multiple values", []object.Value{int64(1)}, map[string]object.Value{"a": int64(2)}, "f() got multiple values for argument 'a'"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var e *Engine
			var callErr error
			check := object.NewBuiltin("check", func(args []object.Value, kwargs map[string]object.Value) (object.Value, error) {
				f := e.frame()
				depth, stack, blocks := e.Depth(), f.Stack(), f.Blocks()

				_, callErr = args[0].(*Function).Call(test.args, test.kwargs)

				if e.Depth() != depth || e.frame() != f {
					t.Errorf("expected call depth %d, got %d", depth, e.Depth())
				}
				if got := f.Stack(); len(got) != len(stack) || got[0] != stack[0] {
					t.Errorf("expected value stack %v, got %v", stack, got)
				}
				if got := f.Blocks(); len(got) != len(blocks) || got[0] != blocks[0] {
					t.Errorf("expected block stack %+v, got %+v", blocks, got)
				}
				return nil, nil
			})
			e = New(WithBuiltins(Namespace{"check": check}))

			v, err := e.Run(context.Background(), assemble(t, src), nil, nil)
			if err != nil || v != "sentinel" {
				t.Fatalf("expected the sentinel back, got %v (%v)", v, err)
			}

			var binding *ArgumentBindingError
			if !errors.As(callErr, &binding) {
				t.Fatalf("expected an argument binding error, got %v", callErr)
			}
			if binding.Error() != test.message {
				t.Errorf("expected %q, got %q", test.message, binding.Error())
			}
		})
	}
}

func TestReturnInFinallyOverrides(t *testing.T) {
	src := `
code main
    LOAD_CONST @f
    LOAD_CONST "f"
    MAKE_FUNCTION 0
    CALL_FUNCTION 0
    RETURN_VALUE
end

code f()
    SETUP_FINALLY fin
%s
    POP_BLOCK
    LOAD_CONST None
fin:
    LOAD_CONST "finally"
    RETURN_VALUE
end`

	tests := []struct {
		name string
		body string
	}{
		{"pending return", "    LOAD_CONST \"body\"\n    RETURN_VALUE"},
		{"pending exception", "    LOAD_GLOBAL KeyError\n    RAISE_VARARGS 1"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			e := New(WithWriter(&bytes.Buffer{}))
			v, err := e.Run(context.Background(), assemble(t, strings.Replace(src, "%s", test.body, 1)), nil, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if v != "finally" {
				t.Errorf("expected the finally body's value, got %v", v)
			}
			if e.LastException() != nil {
				t.Errorf("expected no exception left over, got %v", e.LastException().Value)
			}
		})
	}
}

func TestLeavingHandlerClearsException(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{
			name: "return from handler",
			src: `
code main
    LOAD_CONST @f
    LOAD_CONST "f"
    MAKE_FUNCTION 0
    CALL_FUNCTION 0
    POP_TOP
    RAISE_VARARGS 0
end

code f()
    SETUP_EXCEPT handler
    LOAD_GLOBAL ValueError
    RAISE_VARARGS 1
    POP_BLOCK
    JUMP_FORWARD after
handler:
    POP_TOP
    POP_TOP
    POP_TOP
    LOAD_CONST "handled"
    RETURN_VALUE
after:
    LOAD_CONST None
    RETURN_VALUE
end`,
		},
		{
			name: "break from handler",
			src: `
code main
    SETUP_LOOP done
    SETUP_EXCEPT handler
    LOAD_NAME ValueError
    RAISE_VARARGS 1
    POP_BLOCK
    BREAK_LOOP
handler:
    POP_TOP
    POP_TOP
    POP_TOP
    BREAK_LOOP
done:
    RAISE_VARARGS 0
end`,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, _, err := run(t, test.src)
			exc := guestClass(t, err)
			if exc.Class != object.RuntimeErrorClass || exc.Message() != "No active exception to reraise" {
				t.Errorf("expected RuntimeError for a bare raise, got %v", exc)
			}
		})
	}
}

func TestTopLevelCells(t *testing.T) {
	src := `
code main
    .cellvars n
    LOAD_CONST 1
    STORE_DEREF n
    LOAD_DEREF n
    RETURN_VALUE
end`

	v, _, err := run(t, src)
	if err != nil || v != int64(1) {
		t.Fatalf("expected 1, got %v (%v)", v, err)
	}

	unbound := `
code main
    .cellvars n
    LOAD_DEREF n
end`
	_, _, err = run(t, unbound)
	exc := guestClass(t, err)
	if exc.Class != object.UnboundLocalErrorClass {
		t.Errorf("expected UnboundLocalError, got %v", exc)
	}
}
