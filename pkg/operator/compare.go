package operator

import (
	"byterun/pkg/object"
)

// Compare applies a COMPARE_OP operator. `exception match` is resolved by
// the engine and never reaches the table.
func (Standard) Compare(op string, a, b object.Value) (object.Value, error) {
	switch op {
	case "==":
		return object.Equal(a, b), nil
	case "!=":
		return !object.Equal(a, b), nil
	case "is":
		return object.Identical(a, b), nil
	case "is not":
		return !object.Identical(a, b), nil
	case "in", "not in":
		ok, err := object.Contains(b, a)
		if err != nil {
			return nil, fromException(op, err)
		}
		if op == "not in" {
			return !ok, nil
		}
		return ok, nil
	case "<", "<=", ">", ">=":
		c, err := order(op, a, b)
		if err != nil {
			return nil, err
		}
		switch op {
		case "<":
			return c < 0, nil
		case "<=":
			return c <= 0, nil
		case ">":
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	}

	return nil, typeError(op, "unknown comparison operator %s", op)
}

// order returns -1, 0 or 1 for the ordering of a and b
func order(op string, a, b object.Value) (int, error) {
	if object.IsNumber(a) && object.IsNumber(b) {
		_, aFloat := a.(float64)
		_, bFloat := b.(float64)
		if aFloat || bFloat {
			af, _ := object.AsFloat64(a)
			bf, _ := object.AsFloat64(b)
			return cmp3(af < bf, af > bf), nil
		}
		ai, _ := object.AsInt64(a)
		bi, _ := object.AsInt64(b)
		return cmp3(ai < bi, ai > bi), nil
	}

	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return cmp3(x < y, x > y), nil
		}
	case object.Tuple:
		if y, ok := b.(object.Tuple); ok {
			return orderSlices(op, x, y)
		}
	case *object.List:
		if y, ok := b.(*object.List); ok {
			return orderSlices(op, x.Items, y.Items)
		}
	}

	return 0, typeError(op, "'%s' not supported between instances of '%s' and '%s'", op, object.TypeName(a), object.TypeName(b))
}

// orderSlices compares lexicographically, the first unequal pair deciding
func orderSlices(op string, a, b []object.Value) (int, error) {
	for i := 0; i < len(a) && i < len(b); i++ {
		if object.Equal(a[i], b[i]) {
			continue
		}
		return order(op, a[i], b[i])
	}
	return cmp3(len(a) < len(b), len(a) > len(b)), nil
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	default:
		return 0
	}
}
