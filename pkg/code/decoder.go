package code

import (
	"fmt"
	"strings"

	"byterun/pkg/object"
)

// Instruction is a decoded instruction with its argument already resolved:
// constants and names are materialized, jump targets are absolute offsets.
type Instruction struct {
	Op       Opcode
	Operator string       // suffix for the UNARY_/BINARY_/INPLACE_ families
	Arg      object.Value // resolved argument, nil for ArgNone
	Offset   int
}

// Target returns the resolved jump target or integer argument
func (i Instruction) Target() int {
	n, _ := i.Arg.(int)
	return n
}

// Mnemonic reconstructs the instruction name
func (i Instruction) Mnemonic() string {
	switch i.Op {
	case OpUnary, OpBinary, OpInplace:
		return strings.TrimSuffix(i.Op.String(), "*") + i.Operator
	default:
		return i.Op.String()
	}
}

// String returns a string representation of the instruction
func (i Instruction) String() string {
	if i.Arg == nil && i.Op.Arg() == ArgNone {
		return fmt.Sprintf("(%d, %s)", i.Offset, i.Mnemonic())
	}
	return fmt.Sprintf("(%d, %s, %s)", i.Offset, i.Mnemonic(), object.Repr(i.Arg))
}

// Decoder produces the instruction at offset and the offset of the next one.
type Decoder interface {
	Decode(u *Unit, offset int) (Instruction, int, error)
}

// DefaultDecoder resolves raw indices against the unit's tables.
type DefaultDecoder struct{}

// Decode implements Decoder
func (DefaultDecoder) Decode(u *Unit, offset int) (Instruction, int, error) {
	if offset < 0 || offset >= len(u.Instructions) {
		return Instruction{}, offset, &DecodeError{Unit: u.Name, Offset: offset, Op: "fetch", Err: ErrOffsetOutOfRange}
	}

	raw := u.Instructions[offset]
	op, operator, err := ParseOpcode(raw.Name)
	if err != nil {
		return Instruction{}, offset, &UnsupportedOpcodeError{Name: raw.Name, Offset: offset}
	}

	ins := Instruction{Op: op, Operator: operator, Offset: offset}
	next := offset + 1

	kind := op.Arg()
	if kind == ArgNone {
		return ins, next, nil
	}
	if raw.Arg < 0 {
		return Instruction{}, offset, &DecodeError{Unit: u.Name, Offset: offset, Op: raw.Name, Err: ErrMissingArgument}
	}

	fail := func(err error) (Instruction, int, error) {
		return Instruction{}, offset, &DecodeError{Unit: u.Name, Offset: offset, Op: raw.Name, Err: err}
	}

	switch kind {
	case ArgInt:
		ins.Arg = raw.Arg

	case ArgConst:
		if raw.Arg >= len(u.Consts) {
			return fail(fmt.Errorf("%w: const %d of %d", ErrIndexOutOfRange, raw.Arg, len(u.Consts)))
		}
		ins.Arg = u.Consts[raw.Arg]

	case ArgName:
		if raw.Arg >= len(u.Names) {
			return fail(fmt.Errorf("%w: name %d of %d", ErrIndexOutOfRange, raw.Arg, len(u.Names)))
		}
		ins.Arg = u.Names[raw.Arg]

	case ArgLocal:
		if raw.Arg >= len(u.VarNames) {
			return fail(fmt.Errorf("%w: local %d of %d", ErrIndexOutOfRange, raw.Arg, len(u.VarNames)))
		}
		ins.Arg = u.VarNames[raw.Arg]

	case ArgCell:
		if raw.Arg >= len(u.CellVars)+len(u.FreeVars) {
			return fail(fmt.Errorf("%w: cell %d of %d", ErrIndexOutOfRange, raw.Arg, len(u.CellVars)+len(u.FreeVars)))
		}
		ins.Arg = raw.Arg

	case ArgJumpRel, ArgJumpAbs:
		target := raw.Arg
		if kind == ArgJumpRel {
			target += next
		}
		if target > len(u.Instructions) {
			return fail(fmt.Errorf("%w: %d", ErrBadJumpTarget, target))
		}
		ins.Arg = target

	case ArgCompare:
		if raw.Arg >= len(CompareOps) {
			return fail(fmt.Errorf("%w: compare op %d", ErrIndexOutOfRange, raw.Arg))
		}
		ins.Arg = CompareOps[raw.Arg]
	}

	return ins, next, nil
}
