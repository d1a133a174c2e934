// Package operator holds the pluggable primitive operations the engine
// delegates UNARY_*, BINARY_*, INPLACE_* and COMPARE_OP instructions to.
package operator

import (
	"fmt"
	"math"

	"byterun/pkg/object"
)

// Table applies primitive operators. Operator names are the instruction
// suffixes (ADD, NEGATIVE, SUBSCR, ...) or the comparison spelling (<, in, is not, ...).
type Table interface {
	Unary(op string, operand object.Value) (object.Value, error)
	Binary(op string, left, right object.Value) (object.Value, error)
	Compare(op string, left, right object.Value) (object.Value, error)
}

// OperatorError reports a failed primitive operation. Class is the guest
// exception kind the engine raises for it.
type OperatorError struct {
	Class   *object.Class
	Op      string
	Message string
}

func (e *OperatorError) Error() string {
	return fmt.Sprintf("%s: %s", e.Class.Name, e.Message)
}

func typeError(op string, format string, args ...any) *OperatorError {
	return &OperatorError{Class: object.TypeErrorClass, Op: op, Message: fmt.Sprintf(format, args...)}
}

func unsupported(op, symbol string, a, b object.Value) *OperatorError {
	return typeError(op, "unsupported operand type(s) for %s: '%s' and '%s'", symbol, object.TypeName(a), object.TypeName(b))
}

// Standard is the default operator table over the object package's values.
type Standard struct{}

// Default returns the standard operator table
func Default() Table {
	return Standard{}
}

var unarySymbols = map[string]string{
	"POSITIVE": "+",
	"NEGATIVE": "-",
	"INVERT":   "~",
	"NOT":      "not",
}

// Unary applies a UNARY_* operator
func (Standard) Unary(op string, v object.Value) (object.Value, error) {
	switch op {
	case "NOT":
		return !object.Truthy(v), nil

	case "POSITIVE", "NEGATIVE":
		switch x := v.(type) {
		case float64:
			if op == "NEGATIVE" {
				return -x, nil
			}
			return x, nil
		case int64, bool:
			i, _ := object.AsInt64(x)
			if op == "NEGATIVE" {
				if i == math.MinInt64 {
					return nil, overflow(op, "integer negation result too large")
				}
				return -i, nil
			}
			return i, nil
		}

	case "INVERT":
		switch x := v.(type) {
		case int64, bool:
			i, _ := object.AsInt64(x)
			return ^i, nil
		}

	default:
		return nil, typeError(op, "unknown unary operator %s", op)
	}

	return nil, typeError(op, "bad operand type for unary %s: '%s'", unarySymbols[op], object.TypeName(v))
}
