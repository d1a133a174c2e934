package object

import (
	"fmt"
	"math"
)

// Value is any guest value. Scalars use Go's native representations:
// nil (None), bool, int64, float64 and string.
type Value = any

type Kind int

const (
	KindUnknown Kind = iota
	KindNone
	KindBool
	KindInt
	KindFloat
	KindString
	KindTuple
	KindList
	KindDict
	KindObject
)

// Typed is implemented by non-scalar guest values that report their own type name.
type Typed interface {
	TypeName() string
}

// KindOf classifies a guest value.
func KindOf(v Value) Kind {
	switch v.(type) {
	case nil:
		return KindNone
	case bool:
		return KindBool
	case int64:
		return KindInt
	case float64:
		return KindFloat
	case string:
		return KindString
	case Tuple:
		return KindTuple
	case *List:
		return KindList
	case *Dict:
		return KindDict
	case Typed:
		return KindObject
	default:
		return KindUnknown
	}
}

// TypeName returns the guest-visible type name of v.
func TypeName(v Value) string {
	switch x := v.(type) {
	case nil:
		return "NoneType"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	case Tuple:
		return "tuple"
	case *List:
		return "list"
	case *Dict:
		return "dict"
	case Typed:
		return x.TypeName()
	default:
		return fmt.Sprintf("<go %T>", v)
	}
}

// Truthy reports the truth value of v.
func Truthy(v Value) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	case Tuple:
		return len(x) > 0
	case *List:
		return len(x.Items) > 0
	case *Dict:
		return x.Len() > 0
	case *Range:
		return x.Len() > 0
	default:
		return true
	}
}

// AsFloat64 converts the value to float64 if possible.
func AsFloat64(v Value) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case bool:
		if x {
			return 1.0, nil
		}
		return 0.0, nil
	default:
		return 0, fmt.Errorf("cannot convert %s to float", TypeName(v))
	}
}

// AsInt64 converts the value to int64 if possible. Floats are only accepted
// when they hold an integral value.
func AsInt64(v Value) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return int64(x), nil
		}
		return 0, fmt.Errorf("float %v is not integral", x)
	default:
		return 0, fmt.Errorf("cannot convert %s to int", TypeName(v))
	}
}

// IsNumber reports whether v takes part in arithmetic (bool counts as an int).
func IsNumber(v Value) bool {
	switch v.(type) {
	case int64, float64, bool:
		return true
	default:
		return false
	}
}

// Normalize maps Go scalars onto the guest representation: every integer
// type becomes int64, float32 becomes float64 and []any becomes a Tuple.
func Normalize(v any) Value {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	case []any:
		t := make(Tuple, len(x))
		for i, e := range x {
			t[i] = Normalize(e)
		}
		return t
	default:
		return v
	}
}

// Equal implements guest ==. Numbers compare by value across int, float and bool.
func Equal(a, b Value) bool {
	if IsNumber(a) && IsNumber(b) {
		_, aFloat := a.(float64)
		_, bFloat := b.(float64)
		if aFloat || bFloat {
			af, _ := AsFloat64(a)
			bf, _ := AsFloat64(b)
			return af == bf
		}
		ai, _ := AsInt64(a)
		bi, _ := AsInt64(b)
		return ai == bi
	}

	switch x := a.(type) {
	case nil:
		return b == nil
	case string:
		y, ok := b.(string)
		return ok && x == y
	case Tuple:
		y, ok := b.(Tuple)
		return ok && equalSlices(x, y)
	case *List:
		y, ok := b.(*List)
		return ok && equalSlices(x.Items, y.Items)
	case *Dict:
		y, ok := b.(*Dict)
		return ok && x.equal(y)
	default:
		return Identical(a, b)
	}
}

func equalSlices(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Identical implements guest `is`. Scalars are identical when they have the
// same kind and value; reference values when they are the same object.
func Identical(a, b Value) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case bool, int64, float64, string:
		return KindOf(a) == KindOf(b) && a == b
	case Tuple:
		y, ok := b.(Tuple)
		if !ok || len(x) != len(y) {
			return false
		}
		return len(x) == 0 || &x[0] == &y[0]
	default:
		if !isComparable(a) || !isComparable(b) {
			return false
		}
		return a == b
	}
}

func isComparable(v Value) bool {
	switch v.(type) {
	case Tuple, []any:
		return false
	default:
		return true
	}
}
