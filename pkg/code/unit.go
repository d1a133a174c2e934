// Package code defines compiled code units and the decoder that turns their
// raw instructions into resolved (opcode, argument) pairs.
package code

import (
	"errors"
	"fmt"

	"byterun/pkg/object"
)

// NoArg marks a raw instruction without an argument.
const NoArg = -1

// RawInstruction is one undecoded instruction: a mnemonic and a raw index.
type RawInstruction struct {
	Name string
	Arg  int
}

// Flags describe the calling shape of a code unit.
type Flags uint8

const (
	FlagVarArgs     Flags = 1 << iota // collects extra positional arguments
	FlagVarKeywords                   // collects extra keyword arguments
	FlagGenerator                     // calling it produces a generator
)

// Unit is an immutable compiled artifact. Formal parameters are
// VarNames[:ArgCount], followed by the *args name when FlagVarArgs is set and
// then the **kwargs name when FlagVarKeywords is set.
type Unit struct {
	Name         string
	Filename     string
	Instructions []RawInstruction
	Consts       []object.Value
	Names        []string
	VarNames     []string
	CellVars     []string
	FreeVars     []string
	ArgCount     int
	Flags        Flags
}

func (u *Unit) TypeName() string { return "code" }

func (u *Unit) String() string {
	return fmt.Sprintf("<code object %s>", u.Name)
}

// Len returns the number of instructions
func (u *Unit) Len() int {
	return len(u.Instructions)
}

// Params returns the positional parameter names
func (u *Unit) Params() []string {
	return u.VarNames[:u.ArgCount]
}

// VarArgsName returns the name bound to extra positional arguments
func (u *Unit) VarArgsName() (string, bool) {
	if u.Flags&FlagVarArgs == 0 {
		return "", false
	}
	return u.VarNames[u.ArgCount], true
}

// VarKeywordsName returns the name bound to extra keyword arguments
func (u *Unit) VarKeywordsName() (string, bool) {
	if u.Flags&FlagVarKeywords == 0 {
		return "", false
	}
	i := u.ArgCount
	if u.Flags&FlagVarArgs != 0 {
		i++
	}
	return u.VarNames[i], true
}

// IsGenerator reports whether calling the unit yields a generator
func (u *Unit) IsGenerator() bool {
	return u.Flags&FlagGenerator != 0
}

// CellName returns the name of cell slot i (cell variables, then free variables)
func (u *Unit) CellName(i int) string {
	if i < len(u.CellVars) {
		return u.CellVars[i]
	}
	return u.FreeVars[i-len(u.CellVars)]
}

// Validate checks the argument shape, every raw index and every jump
// target, recursing into nested code units in the constant pool.
func (u *Unit) Validate() error {
	params := u.ArgCount
	if u.Flags&FlagVarArgs != 0 {
		params++
	}
	if u.Flags&FlagVarKeywords != 0 {
		params++
	}
	if u.ArgCount < 0 || params > len(u.VarNames) {
		return fmt.Errorf("%s: %d parameters declared but only %d local names", u.Name, params, len(u.VarNames))
	}

	var errs []error
	for off := range u.Instructions {
		if _, _, err := (DefaultDecoder{}).Decode(u, off); err != nil {
			errs = append(errs, err)
		}
	}

	for _, c := range u.Consts {
		if nested, ok := c.(*Unit); ok {
			if err := nested.Validate(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

// UnsupportedOpcodeError reports a mnemonic the engine cannot dispatch.
type UnsupportedOpcodeError struct {
	Name   string
	Offset int
}

func (e *UnsupportedOpcodeError) Error() string {
	if e.Offset < 0 {
		return fmt.Sprintf("unsupported opcode %q", e.Name)
	}
	return fmt.Sprintf("unsupported opcode %q at offset %d", e.Name, e.Offset)
}

// DecodeError reports a raw instruction whose argument cannot be resolved.
type DecodeError struct {
	Unit   string
	Offset int
	Op     string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: offset %d: %s: %v", e.Unit, e.Offset, e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

var (
	ErrOffsetOutOfRange = errors.New("offset out of range")
	ErrIndexOutOfRange  = errors.New("argument index out of range")
	ErrMissingArgument  = errors.New("missing argument")
	ErrBadJumpTarget    = errors.New("jump target out of range")
)
