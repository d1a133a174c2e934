package object

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Repr renders v the way the guest repr() builtin does
func Repr(v Value) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return formatFloat(x)
	case string:
		return quote(x)
	case Tuple:
		if len(x) == 1 {
			return "(" + Repr(x[0]) + ",)"
		}
		return "(" + joinRepr(x) + ")"
	case *List:
		return "[" + joinRepr(x.Items) + "]"
	case *Dict:
		parts := make([]string, len(x.entries))
		for i, e := range x.entries {
			parts[i] = Repr(e.Key) + ": " + Repr(e.Value)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *Range:
		if x.Step == 1 {
			return fmt.Sprintf("range(%d, %d)", x.Start, x.Stop)
		}
		return fmt.Sprintf("range(%d, %d, %d)", x.Start, x.Stop, x.Step)
	case *Exception:
		return x.Class.Name + Repr(x.Args)
	case fmt.Stringer:
		return x.String()
	case Typed:
		return fmt.Sprintf("<%s object>", x.TypeName())
	default:
		return fmt.Sprintf("<go %T %v>", v, v)
	}
}

// Str renders v the way the guest str() builtin does
func Str(v Value) string {
	switch x := v.(type) {
	case string:
		return x
	case *Exception:
		return x.Message()
	default:
		return Repr(v)
	}
}

func joinRepr(items []Value) string {
	parts := make([]string, len(items))
	for i, e := range items {
		parts[i] = Repr(e)
	}
	return strings.Join(parts, ", ")
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}

	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eIn") {
		s += ".0"
	}
	return s
}

// quote uses single quotes unless the string contains one and no double quote
func quote(s string) string {
	q := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		q = '"'
	}

	var b strings.Builder
	b.WriteByte(q)
	for _, r := range s {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == rune(q):
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\t':
			b.WriteString(`\t`)
		case r == '\r':
			b.WriteString(`\r`)
		case r < 0x20:
			fmt.Fprintf(&b, `\x%02x`, r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte(q)
	return b.String()
}
