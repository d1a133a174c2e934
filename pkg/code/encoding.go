package code

import (
	"fmt"

	"byterun/pkg/object"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical options so equal units encode to equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("code: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// constant kinds on the wire
const (
	constNone  = "n"
	constBool  = "b"
	constInt   = "i"
	constFloat = "f"
	constStr   = "s"
	constTuple = "t"
	constCode  = "c"
)

type wireConst struct {
	Kind  string      `cbor:"k"`
	Int   int64       `cbor:"i,omitempty"`
	Float float64     `cbor:"f,omitempty"`
	Str   string      `cbor:"s,omitempty"`
	Bool  bool        `cbor:"b,omitempty"`
	Items []wireConst `cbor:"t,omitempty"`
	Code  *wireUnit   `cbor:"c,omitempty"`
}

type wireInstruction struct {
	Name string `cbor:"n"`
	Arg  int    `cbor:"a"`
}

type wireUnit struct {
	Name         string            `cbor:"name"`
	Filename     string            `cbor:"file,omitempty"`
	Instructions []wireInstruction `cbor:"code"`
	Consts       []wireConst       `cbor:"consts,omitempty"`
	Names        []string          `cbor:"names,omitempty"`
	VarNames     []string          `cbor:"varnames,omitempty"`
	CellVars     []string          `cbor:"cellvars,omitempty"`
	FreeVars     []string          `cbor:"freevars,omitempty"`
	ArgCount     int               `cbor:"argcount"`
	Flags        uint8             `cbor:"flags"`
}

// Marshal serializes a unit and every nested unit in its constant pool.
func Marshal(u *Unit) ([]byte, error) {
	w, err := toWire(u)
	if err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(w)
}

// Unmarshal deserializes a unit produced by Marshal and validates it.
func Unmarshal(data []byte) (*Unit, error) {
	var w wireUnit
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("code: unmarshal unit: %w", err)
	}
	u, err := fromWire(&w)
	if err != nil {
		return nil, err
	}
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("code: invalid unit: %w", err)
	}
	return u, nil
}

func toWire(u *Unit) (*wireUnit, error) {
	w := &wireUnit{
		Name:         u.Name,
		Filename:     u.Filename,
		Instructions: make([]wireInstruction, len(u.Instructions)),
		Names:        u.Names,
		VarNames:     u.VarNames,
		CellVars:     u.CellVars,
		FreeVars:     u.FreeVars,
		ArgCount:     u.ArgCount,
		Flags:        uint8(u.Flags),
	}
	for i, ins := range u.Instructions {
		w.Instructions[i] = wireInstruction{Name: ins.Name, Arg: ins.Arg}
	}
	for i, c := range u.Consts {
		wc, err := constToWire(c)
		if err != nil {
			return nil, fmt.Errorf("code: %s: const %d: %w", u.Name, i, err)
		}
		w.Consts = append(w.Consts, wc)
	}
	return w, nil
}

func constToWire(v object.Value) (wireConst, error) {
	switch x := object.Normalize(v).(type) {
	case nil:
		return wireConst{Kind: constNone}, nil
	case bool:
		return wireConst{Kind: constBool, Bool: x}, nil
	case int64:
		return wireConst{Kind: constInt, Int: x}, nil
	case float64:
		return wireConst{Kind: constFloat, Float: x}, nil
	case string:
		return wireConst{Kind: constStr, Str: x}, nil
	case object.Tuple:
		items := make([]wireConst, len(x))
		for i, item := range x {
			wc, err := constToWire(item)
			if err != nil {
				return wireConst{}, err
			}
			items[i] = wc
		}
		return wireConst{Kind: constTuple, Items: items}, nil
	case *Unit:
		wu, err := toWire(x)
		if err != nil {
			return wireConst{}, err
		}
		return wireConst{Kind: constCode, Code: wu}, nil
	}
	return wireConst{}, fmt.Errorf("unsupported constant type %s", object.TypeName(v))
}

func fromWire(w *wireUnit) (*Unit, error) {
	u := &Unit{
		Name:         w.Name,
		Filename:     w.Filename,
		Instructions: make([]RawInstruction, len(w.Instructions)),
		Names:        w.Names,
		VarNames:     w.VarNames,
		CellVars:     w.CellVars,
		FreeVars:     w.FreeVars,
		ArgCount:     w.ArgCount,
		Flags:        Flags(w.Flags),
	}
	for i, ins := range w.Instructions {
		u.Instructions[i] = RawInstruction{Name: ins.Name, Arg: ins.Arg}
	}
	for i, wc := range w.Consts {
		c, err := constFromWire(wc)
		if err != nil {
			return nil, fmt.Errorf("code: %s: const %d: %w", w.Name, i, err)
		}
		u.Consts = append(u.Consts, c)
	}
	return u, nil
}

func constFromWire(w wireConst) (object.Value, error) {
	switch w.Kind {
	case constNone:
		return nil, nil
	case constBool:
		return w.Bool, nil
	case constInt:
		return w.Int, nil
	case constFloat:
		return w.Float, nil
	case constStr:
		return w.Str, nil
	case constTuple:
		items := make(object.Tuple, len(w.Items))
		for i, item := range w.Items {
			v, err := constFromWire(item)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return items, nil
	case constCode:
		if w.Code == nil {
			return nil, fmt.Errorf("code constant without a body")
		}
		return fromWire(w.Code)
	}
	return nil, fmt.Errorf("unknown constant kind %q", w.Kind)
}
