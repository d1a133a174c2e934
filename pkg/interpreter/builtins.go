package interpreter

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"byterun/pkg/object"
)

// defaultBuiltins returns the names every top-level frame can see: a small
// set of functions plus the builtin exception classes.
func (e *Engine) defaultBuiltins() Namespace {
	ns := Namespace{
		"len":        builtin("len", 1, 1, builtinLen),
		"range":      builtin("range", 1, 3, builtinRange),
		"repr":       builtin("repr", 1, 1, func(args []object.Value) (object.Value, error) { return object.Repr(args[0]), nil }),
		"str":        builtin("str", 0, 1, builtinStr),
		"int":        builtin("int", 0, 1, builtinInt),
		"float":      builtin("float", 0, 1, builtinFloat),
		"bool":       builtin("bool", 0, 1, func(args []object.Value) (object.Value, error) { return len(args) == 1 && object.Truthy(args[0]), nil }),
		"list":       builtin("list", 0, 1, builtinList),
		"tuple":      builtin("tuple", 0, 1, builtinTuple),
		"iter":       builtin("iter", 1, 1, func(args []object.Value) (object.Value, error) { return object.Iter(args[0]) }),
		"next":       builtin("next", 1, 2, builtinNext),
		"isinstance": builtin("isinstance", 2, 2, builtinIsInstance),
		"abs":        builtin("abs", 1, 1, builtinAbs),
		"print":      object.NewBuiltin("print", e.builtinPrint),
	}

	for _, c := range object.BuiltinClasses {
		ns[c.Name] = c
	}

	return ns
}

// builtin wraps a positional-only function, checking its arity
func builtin(name string, lo, hi int, fn func(args []object.Value) (object.Value, error)) *object.Builtin {
	return object.NewBuiltin(name, func(args []object.Value, kwargs map[string]object.Value) (object.Value, error) {
		if len(kwargs) > 0 {
			return nil, object.NewException(object.TypeErrorClass, "%s() takes no keyword arguments", name)
		}
		switch {
		case lo == hi && len(args) != lo:
			return nil, object.NewException(object.TypeErrorClass, "%s() takes exactly %s (%d given)", name, plural(lo, "argument"), len(args))
		case len(args) < lo:
			return nil, object.NewException(object.TypeErrorClass, "%s() expected at least %s, got %d", name, plural(lo, "argument"), len(args))
		case len(args) > hi:
			return nil, object.NewException(object.TypeErrorClass, "%s() expected at most %s, got %d", name, plural(hi, "argument"), len(args))
		}
		return fn(args)
	})
}

// builtinPrint writes its arguments separated by sep and followed by end
func (e *Engine) builtinPrint(args []object.Value, kwargs map[string]object.Value) (object.Value, error) {
	sep, end := " ", "\n"
	for k, v := range kwargs {
		s, ok := v.(string)
		if v != nil && !ok {
			return nil, object.NewException(object.TypeErrorClass, "%s must be None or a string, not %s", k, object.TypeName(v))
		}
		switch k {
		case "sep":
			if v != nil {
				sep = s
			}
		case "end":
			if v != nil {
				end = s
			}
		default:
			return nil, object.NewException(object.TypeErrorClass, "'%s' is an invalid keyword argument for print()", k)
		}
	}

	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = object.Str(a)
	}
	fmt.Fprint(e.out, strings.Join(parts, sep)+end)
	e.softspace = false
	return nil, nil
}

func builtinLen(args []object.Value) (object.Value, error) {
	return object.Len(args[0])
}

func builtinRange(args []object.Value) (object.Value, error) {
	bounds := make([]int64, len(args))
	for i, a := range args {
		n, ok := a.(int64)
		if b, isBool := a.(bool); isBool {
			n, ok = 0, true
			if b {
				n = 1
			}
		}
		if !ok {
			return nil, object.NewException(object.TypeErrorClass, "'%s' object cannot be interpreted as an integer", object.TypeName(a))
		}
		bounds[i] = n
	}

	switch len(bounds) {
	case 1:
		return object.NewRange(0, bounds[0], 1)
	case 2:
		return object.NewRange(bounds[0], bounds[1], 1)
	}
	return object.NewRange(bounds[0], bounds[1], bounds[2])
}

func builtinStr(args []object.Value) (object.Value, error) {
	if len(args) == 0 {
		return "", nil
	}
	return object.Str(args[0]), nil
}

func builtinInt(args []object.Value) (object.Value, error) {
	if len(args) == 0 {
		return int64(0), nil
	}
	switch x := args[0].(type) {
	case int64:
		return x, nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case float64:
		if math.IsInf(x, 0) || math.IsNaN(x) {
			return nil, object.NewException(object.ValueErrorClass, "cannot convert float %s to integer", object.Repr(x))
		}
		return int64(x), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return nil, object.NewException(object.ValueErrorClass, "invalid literal for int() with base 10: %s", object.Repr(x))
		}
		return n, nil
	}
	return nil, object.NewException(object.TypeErrorClass, "int() argument must be a string or a number, not '%s'", object.TypeName(args[0]))
}

func builtinFloat(args []object.Value) (object.Value, error) {
	if len(args) == 0 {
		return 0.0, nil
	}
	if s, ok := args[0].(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, object.NewException(object.ValueErrorClass, "could not convert string to float: %s", object.Repr(s))
		}
		return f, nil
	}
	f, err := object.AsFloat64(args[0])
	if err != nil {
		return nil, object.NewException(object.TypeErrorClass, "float() argument must be a string or a number, not '%s'", object.TypeName(args[0]))
	}
	return f, nil
}

func builtinList(args []object.Value) (object.Value, error) {
	if len(args) == 0 {
		return object.NewList(), nil
	}
	items, err := object.Collect(args[0])
	if err != nil {
		return nil, err
	}
	return &object.List{Items: items}, nil
}

func builtinTuple(args []object.Value) (object.Value, error) {
	if len(args) == 0 {
		return object.Tuple{}, nil
	}
	if t, ok := args[0].(object.Tuple); ok {
		return t, nil
	}
	items, err := object.Collect(args[0])
	if err != nil {
		return nil, err
	}
	return object.Tuple(items), nil
}

func builtinNext(args []object.Value) (object.Value, error) {
	it, ok := args[0].(object.Iterator)
	if !ok {
		return nil, object.NewException(object.TypeErrorClass, "'%s' object is not an iterator", object.TypeName(args[0]))
	}
	v, more, err := it.Next()
	if err != nil {
		return nil, err
	}
	if !more {
		if len(args) == 2 {
			return args[1], nil
		}
		return nil, object.StopIterationClass.New()
	}
	return v, nil
}

func builtinIsInstance(args []object.Value) (object.Value, error) {
	exc, ok := args[0].(*object.Exception)
	switch t := args[1].(type) {
	case *object.Class:
		return ok && exc.Class.IsSubclass(t), nil
	case object.Tuple:
		for _, item := range t {
			c, isClass := item.(*object.Class)
			if !isClass {
				return nil, object.NewException(object.TypeErrorClass, "isinstance() arg 2 must be a type or tuple of types")
			}
			if ok && exc.Class.IsSubclass(c) {
				return true, nil
			}
		}
		return false, nil
	}
	return nil, object.NewException(object.TypeErrorClass, "isinstance() arg 2 must be a type or tuple of types")
}

func builtinAbs(args []object.Value) (object.Value, error) {
	switch x := args[0].(type) {
	case int64:
		if x == math.MinInt64 {
			return nil, object.NewException(object.OverflowErrorClass, "integer absolute value too large")
		}
		if x < 0 {
			return -x, nil
		}
		return x, nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case float64:
		return math.Abs(x), nil
	}
	return nil, object.NewException(object.TypeErrorClass, "bad operand type for abs(): '%s'", object.TypeName(args[0]))
}
