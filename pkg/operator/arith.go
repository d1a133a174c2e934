package operator

import (
	"errors"
	"math"
	"math/bits"
	"strings"

	"byterun/pkg/object"
)

// maxRepeat bounds the length of a sequence built by seq*n
const maxRepeat = 1 << 28

var binarySymbols = map[string]string{
	"ADD":          "+",
	"SUBTRACT":     "-",
	"MULTIPLY":     "*",
	"TRUE_DIVIDE":  "/",
	"DIVIDE":       "/",
	"FLOOR_DIVIDE": "//",
	"MODULO":       "%",
	"POWER":        "** or pow()",
	"LSHIFT":       "<<",
	"RSHIFT":       ">>",
	"AND":          "&",
	"OR":           "|",
	"XOR":          "^",
}

// Binary applies a BINARY_* or INPLACE_* operator
func (Standard) Binary(op string, a, b object.Value) (object.Value, error) {
	if op == "SUBSCR" {
		v, err := object.GetItem(a, b)
		return v, fromException(op, err)
	}

	symbol, ok := binarySymbols[op]
	if !ok {
		return nil, typeError(op, "unknown binary operator %s", op)
	}

	if object.IsNumber(a) && object.IsNumber(b) {
		return numeric(op, a, b)
	}

	switch op {
	case "ADD":
		switch x := a.(type) {
		case string:
			if y, ok := b.(string); ok {
				return x + y, nil
			}
		case object.Tuple:
			if y, ok := b.(object.Tuple); ok {
				out := make(object.Tuple, 0, len(x)+len(y))
				return append(append(out, x...), y...), nil
			}
		case *object.List:
			if y, ok := b.(*object.List); ok {
				return object.NewList(append(append([]object.Value(nil), x.Items...), y.Items...)...), nil
			}
		}

	case "MULTIPLY":
		if n, seq, ok := sequenceRepeat(a, b); ok {
			return repeat(op, seq, n)
		}
	}

	return nil, unsupported(op, symbol, a, b)
}

// sequenceRepeat recognises seq*int and int*seq
func sequenceRepeat(a, b object.Value) (int64, object.Value, bool) {
	if _, isFloat := b.(float64); !isFloat && object.IsNumber(b) {
		switch a.(type) {
		case string, object.Tuple, *object.List:
			n, _ := object.AsInt64(b)
			return n, a, true
		}
	}
	if _, isFloat := a.(float64); !isFloat && object.IsNumber(a) {
		switch b.(type) {
		case string, object.Tuple, *object.List:
			n, _ := object.AsInt64(a)
			return n, b, true
		}
	}
	return 0, nil, false
}

func repeat(op string, seq object.Value, n int64) (object.Value, error) {
	if n < 0 {
		n = 0
	}
	if l, _ := object.Len(seq); l > 0 && n > maxRepeat/l {
		return nil, overflow(op, "repeated sequence is too long")
	}

	switch x := seq.(type) {
	case string:
		return strings.Repeat(x, int(n)), nil
	case object.Tuple:
		out := make(object.Tuple, 0, len(x)*int(n))
		for i := int64(0); i < n; i++ {
			out = append(out, x...)
		}
		return out, nil
	case *object.List:
		out := make([]object.Value, 0, len(x.Items)*int(n))
		for i := int64(0); i < n; i++ {
			out = append(out, x.Items...)
		}
		return &object.List{Items: out}, nil
	}
	return nil, unsupported(op, binarySymbols[op], seq, n)
}

// numeric evaluates an arithmetic or bitwise operator on two numbers,
// promoting to float when either side is a float
func numeric(op string, a, b object.Value) (object.Value, error) {
	_, aFloat := a.(float64)
	_, bFloat := b.(float64)
	useFloat := aFloat || bFloat

	switch op {
	case "AND", "OR", "XOR", "LSHIFT", "RSHIFT":
		if useFloat {
			return nil, unsupported(op, binarySymbols[op], a, b)
		}
		return bitwise(op, a, b)

	case "TRUE_DIVIDE", "DIVIDE":
		af, _ := object.AsFloat64(a)
		bf, _ := object.AsFloat64(b)
		if bf == 0 {
			return nil, zeroDivision(op, "division by zero")
		}
		return af / bf, nil
	}

	if useFloat {
		af, _ := object.AsFloat64(a)
		bf, _ := object.AsFloat64(b)
		switch op {
		case "ADD":
			return af + bf, nil
		case "SUBTRACT":
			return af - bf, nil
		case "MULTIPLY":
			return af * bf, nil
		case "FLOOR_DIVIDE":
			if bf == 0 {
				return nil, zeroDivision(op, "float floor division by zero")
			}
			return math.Floor(af / bf), nil
		case "MODULO":
			if bf == 0 {
				return nil, zeroDivision(op, "float modulo")
			}
			m := math.Mod(af, bf)
			if m != 0 && (m < 0) != (bf < 0) {
				m += bf
			}
			return m, nil
		case "POWER":
			if af == 0 && bf < 0 {
				return nil, zeroDivision(op, "0.0 cannot be raised to a negative power")
			}
			return math.Pow(af, bf), nil
		}
	}

	ai, _ := object.AsInt64(a)
	bi, _ := object.AsInt64(b)
	switch op {
	case "ADD":
		r := ai + bi
		if (r > ai) != (bi > 0) {
			return nil, overflow(op, "integer addition result too large")
		}
		return r, nil
	case "SUBTRACT":
		r := ai - bi
		if (r < ai) != (bi > 0) {
			return nil, overflow(op, "integer subtraction result too large")
		}
		return r, nil
	case "MULTIPLY":
		r, ok := mulInt64(ai, bi)
		if !ok {
			return nil, overflow(op, "integer multiplication result too large")
		}
		return r, nil
	case "FLOOR_DIVIDE":
		if bi == 0 {
			return nil, zeroDivision(op, "integer division or modulo by zero")
		}
		if ai == math.MinInt64 && bi == -1 {
			return nil, overflow(op, "integer division result too large")
		}
		return floorDiv(ai, bi), nil
	case "MODULO":
		if bi == 0 {
			return nil, zeroDivision(op, "integer division or modulo by zero")
		}
		return ai - floorDiv(ai, bi)*bi, nil
	case "POWER":
		if bi < 0 {
			if ai == 0 {
				return nil, zeroDivision(op, "0.0 cannot be raised to a negative power")
			}
			return math.Pow(float64(ai), float64(bi)), nil
		}
		r, ok := ipow(ai, bi)
		if !ok {
			return nil, overflow(op, "integer power result too large")
		}
		return r, nil
	}

	return nil, typeError(op, "unsupported numeric operator %s", op)
}

func bitwise(op string, a, b object.Value) (object.Value, error) {
	_, aBool := a.(bool)
	_, bBool := b.(bool)
	ai, _ := object.AsInt64(a)
	bi, _ := object.AsInt64(b)

	switch op {
	case "AND", "OR", "XOR":
		var r int64
		switch op {
		case "AND":
			r = ai & bi
		case "OR":
			r = ai | bi
		default:
			r = ai ^ bi
		}
		if aBool && bBool {
			return r != 0, nil
		}
		return r, nil

	case "LSHIFT", "RSHIFT":
		if bi < 0 {
			return nil, &OperatorError{Class: object.ValueErrorClass, Op: op, Message: "negative shift count"}
		}
		if op == "RSHIFT" {
			if bi > 63 {
				bi = 63
			}
			return ai >> uint(bi), nil
		}
		if bi > 63 || (ai<<uint(bi))>>uint(bi) != ai {
			return nil, overflow(op, "shift result too large")
		}
		return ai << uint(bi), nil
	}

	return nil, typeError(op, "unknown bitwise operator %s", op)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// mulInt64 multiplies a and b, reporting false when the product does not
// fit in an int64
func mulInt64(a, b int64) (int64, bool) {
	neg := (a < 0) != (b < 0)
	hi, lo := bits.Mul64(absUint64(a), absUint64(b))
	if hi != 0 {
		return 0, false
	}
	if neg {
		if lo > 1<<63 {
			return 0, false
		}
		return -int64(lo), true
	}
	if lo > math.MaxInt64 {
		return 0, false
	}
	return int64(lo), true
}

func absUint64(x int64) uint64 {
	if x < 0 {
		return uint64(-(x + 1)) + 1
	}
	return uint64(x)
}

func ipow(base, exp int64) (int64, bool) {
	result := int64(1)
	for exp > 0 {
		var ok bool
		if exp&1 == 1 {
			if result, ok = mulInt64(result, base); !ok {
				return 0, false
			}
		}
		exp >>= 1
		if exp > 0 {
			if base, ok = mulInt64(base, base); !ok {
				return 0, false
			}
		}
	}
	return result, true
}

func overflow(op, msg string) *OperatorError {
	return &OperatorError{Class: object.OverflowErrorClass, Op: op, Message: msg}
}

func zeroDivision(op, msg string) *OperatorError {
	return &OperatorError{Class: object.ZeroDivisionErrorClass, Op: op, Message: msg}
}

// fromException converts a guest exception raised by the object package
// into an OperatorError of the same kind
func fromException(op string, err error) error {
	if err == nil {
		return nil
	}
	var exc *object.Exception
	if errors.As(err, &exc) {
		return &OperatorError{Class: exc.Class, Op: op, Message: exc.Message()}
	}
	return err
}
