package asm_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"byterun/pkg/asm"
	"byterun/pkg/code"
	"byterun/pkg/object"
)

const program = `
; entry unit
code main
    LOAD_CONST @make_adder
    LOAD_CONST "make_adder"
    MAKE_FUNCTION 0
    STORE_NAME make_adder
    LOAD_NAME make_adder
    LOAD_CONST 2
    CALL_FUNCTION 1
    STORE_NAME add2
    SETUP_LOOP done
    LOAD_CONST (1, 2.5, "x", None, True)
    GET_ITER
top:
    FOR_ITER exit
    POP_TOP
    JUMP_ABSOLUTE top
exit:
    POP_BLOCK
done:
    LOAD_NAME add2
    LOAD_CONST 2
    COMPARE_OP not_in
    RETURN_VALUE
end

code make_adder(n)
    .cellvars n
    LOAD_CLOSURE n
    BUILD_TUPLE 1
    LOAD_CONST @adder
    LOAD_CONST "adder"
    MAKE_CLOSURE 0
    RETURN_VALUE
end

code adder(x, *rest, **kw)
    .freevars n
    .locals tmp
    LOAD_FAST x
    LOAD_DEREF n
    BINARY_ADD
    STORE_FAST tmp
    LOAD_FAST tmp
    LOAD_FAST tmp
    CALL_FUNCTION 1 2
    RETURN_VALUE
end
`

func TestAssemble(t *testing.T) {
	u, err := asm.Assemble(program)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if u.Name != "main" || u.Filename != "<asm>" {
		t.Errorf("unexpected entry unit %s (%s)", u.Name, u.Filename)
	}

	makeAdder, ok := u.Consts[0].(*code.Unit)
	if !ok || makeAdder.Name != "make_adder" || makeAdder.ArgCount != 1 {
		t.Fatalf("expected make_adder as first constant, got %v", u.Consts[0])
	}
	if len(makeAdder.CellVars) != 1 || makeAdder.CellVars[0] != "n" {
		t.Errorf("expected cellvars [n], got %v", makeAdder.CellVars)
	}

	adder, ok := makeAdder.Consts[0].(*code.Unit)
	if !ok || adder.Name != "adder" {
		t.Fatalf("expected adder nested in make_adder, got %v", makeAdder.Consts[0])
	}
	if adder.Flags != code.FlagVarArgs|code.FlagVarKeywords {
		t.Errorf("expected varargs and varkeywords flags, got %d", adder.Flags)
	}
	if got := strings.Join(adder.VarNames, ","); got != "x,rest,kw,tmp" {
		t.Errorf("expected varnames x,rest,kw,tmp, got %s", got)
	}

	dec := code.DefaultDecoder{}
	tests := []struct {
		unit        *code.Unit
		offset      int
		op          code.Opcode
		arg         object.Value
		description string
	}{
		{u, 8, code.OpSetupLoop, 15, "relative jump to label"},
		{u, 11, code.OpForIter, 14, "for iter exit label"},
		{u, 13, code.OpJumpAbsolute, 11, "backward absolute jump"},
		{u, 17, code.OpCompareOp, "not in", "compare alias"},
		{u, 6, code.OpCallFunction, 1, "positional count"},
		{adder, 1, code.OpLoadDeref, 0, "free variable cell index"},
		{adder, 3, code.OpStoreFast, "tmp", "declared local"},
		{adder, 6, code.OpCallFunction, 1 | 2<<8, "keyword count packed above the positional count"},
	}

	for _, test := range tests {
		ins, _, err := dec.Decode(test.unit, test.offset)
		if err != nil {
			t.Errorf("%s: unexpected error %v", test.description, err)
			continue
		}
		if ins.Op != test.op || ins.Arg != test.arg {
			t.Errorf("%s: expected %s %v, got %s %v", test.description, test.op, test.arg, ins.Op, ins.Arg)
		}
	}

	tuple, ok := u.Consts[3].(object.Tuple)
	if !ok || object.Repr(tuple) != `(1, 2.5, 'x', None, True)` {
		t.Errorf("unexpected tuple constant %s", object.Repr(u.Consts[3]))
	}
}

func TestAssembleDedupesConstants(t *testing.T) {
	u, err := asm.Assemble(`
code main
    LOAD_CONST 1
    LOAD_CONST True
    LOAD_CONST 1
    LOAD_CONST 1.0
    BUILD_TUPLE 4
    RETURN_VALUE
end`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(u.Consts) != 3 {
		t.Errorf("expected 1, True and 1.0 as separate constants, got %v", u.Consts)
	}
	if u.Instructions[0].Arg != u.Instructions[2].Arg {
		t.Errorf("expected repeated constant to share a slot")
	}
}

func TestAssembleGenerator(t *testing.T) {
	u, err := asm.Assemble(`
code "<gen>"()
    .generator
    LOAD_CONST None
    RETURN_VALUE
end`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Name != "<gen>" || !u.IsGenerator() {
		t.Errorf("expected generator unit <gen>, got %s flags %d", u.Name, u.Flags)
	}
}

func TestAssembleErrors(t *testing.T) {
	tests := []struct {
		src         string
		message     string
		description string
	}{
		{"code m\n  LOAD_ATTR x\nend", `unsupported opcode "LOAD_ATTR"`, "unknown mnemonic"},
		{"code m\n  JUMP_ABSOLUTE nowhere\nend", `undefined label "nowhere"`, "missing label"},
		{"code m\n  LOAD_DEREF x\nend", `"x" is not declared`, "undeclared cell"},
		{"code m\n  POP_TOP 1\nend", "takes no operand", "extra operand"},
		{"code m\n  LOAD_CONST @other\nend", `undefined code block "other"`, "missing ref"},
		{"code m\n  NOP\n", "missing end", "unterminated block"},
		{"code m\nl:\n  NOP\n  JUMP_FORWARD l\nend", "cannot jump backwards", "relative backward jump"},
		{"code m\n  COMPARE_OP \"<>\"\nend", `unknown comparison "<>"`, "bad comparison"},
		{"code m\n  .bogus\nend", `unknown directive ".bogus"`, "bad directive"},
		{"code m\n  NOP $\nend", `illegal token "$"`, "illegal character"},
		{"code m\n  LOAD_CONST @m\nend", "references itself", "self reference"},
		{"", "no code blocks", "empty input"},
	}

	for _, test := range tests {
		_, err := asm.Assemble(test.src)
		var list asm.ErrorList
		if !errors.As(err, &list) {
			t.Errorf("%s: expected ErrorList, got %v", test.description, err)
			continue
		}
		if !strings.Contains(err.Error(), test.message) {
			t.Errorf("%s: expected %q in %q", test.description, test.message, err.Error())
		}
	}
}

func TestAssembleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog.bas")
	if err := os.WriteFile(path, []byte(program), 0o644); err != nil {
		t.Fatal(err)
	}

	u, err := asm.AssembleFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Filename != path {
		t.Errorf("expected filename %s, got %s", path, u.Filename)
	}

	if _, err := asm.AssembleFile(filepath.Join(t.TempDir(), "missing.bas")); err == nil {
		t.Errorf("expected missing file to fail")
	}
}

func TestAssembleRoundTripsThroughCBOR(t *testing.T) {
	u, err := asm.Assemble(program)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := code.Marshal(u)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := code.Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	adder := got.Consts[0].(*code.Unit).Consts[0].(*code.Unit)
	if adder.Name != "adder" || len(adder.FreeVars) != 1 || adder.Flags != code.FlagVarArgs|code.FlagVarKeywords {
		t.Errorf("nested closure unit lost in round trip: %+v", adder)
	}
}
