package code

import (
	"fmt"
	"io"
	"strings"

	"byterun/pkg/color"
	"byterun/pkg/object"
)

// Disassemble writes a listing of u followed by every nested code unit.
// Jump targets are marked with ">>".
func Disassemble(w io.Writer, u *Unit) error {
	return disassemble(w, u, DefaultDecoder{})
}

func disassemble(w io.Writer, u *Unit, dec Decoder) error {
	targets := make(map[int]bool)
	decoded := make([]Instruction, 0, len(u.Instructions))
	var nested []*Unit

	for off := 0; off < len(u.Instructions); {
		ins, next, err := dec.Decode(u, off)
		if err != nil {
			return err
		}
		if ins.Op.IsJump() {
			targets[ins.Target()] = true
		}
		if c, ok := ins.Arg.(*Unit); ok {
			nested = append(nested, c)
		}
		decoded = append(decoded, ins)
		off = next
	}

	header := fmt.Sprintf("Disassembly of %s", u.Name)
	if u.Filename != "" {
		header += fmt.Sprintf(" (%s)", u.Filename)
	}
	fmt.Fprintln(w, color.GreenText("=== "+header+" ==="))

	for _, ins := range decoded {
		mark := "  "
		if targets[ins.Offset] {
			mark = color.MagentaText(">>")
		}

		line := fmt.Sprintf("%s %s %s", mark, color.CyanText(fmt.Sprintf("%4d", ins.Offset)), color.YellowText(fmt.Sprintf("%-20s", ins.Mnemonic())))
		if arg := describeArg(u, ins); arg != "" {
			line += " " + color.BlueText(arg)
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}

	for _, c := range nested {
		fmt.Fprintln(w)
		if err := disassemble(w, c, dec); err != nil {
			return err
		}
	}

	return nil
}

func describeArg(u *Unit, ins Instruction) string {
	switch ins.Op.Arg() {
	case ArgNone:
		return ""
	case ArgCell:
		return fmt.Sprintf("%d (%s)", ins.Target(), u.CellName(ins.Target()))
	case ArgJumpRel, ArgJumpAbs:
		return fmt.Sprintf("to %d", ins.Target())
	case ArgName, ArgLocal, ArgCompare:
		return fmt.Sprintf("(%s)", ins.Arg)
	case ArgConst:
		return fmt.Sprintf("(%s)", object.Repr(ins.Arg))
	default:
		return fmt.Sprintf("%v", ins.Arg)
	}
}
