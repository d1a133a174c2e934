package code

import (
	"fmt"
	"strings"
)

// Opcode is the closed set of instruction kinds the engine dispatches on.
// The UNARY_*, BINARY_* and INPLACE_* mnemonic families collapse onto
// OpUnary, OpBinary and OpInplace with the suffix kept as the operator name.
type Opcode int

// List of opcodes
const (
	OpNop Opcode = iota
	OpPopTop
	OpRotTwo
	OpRotThree
	OpDupTop
	OpDupTopTwo

	OpLoadConst
	OpLoadName
	OpStoreName
	OpDeleteName
	OpLoadFast
	OpStoreFast
	OpDeleteFast
	OpLoadGlobal
	OpStoreGlobal
	OpLoadDeref
	OpStoreDeref
	OpLoadClosure

	OpUnary
	OpBinary
	OpInplace
	OpCompareOp
	OpStoreSubscr
	OpDeleteSubscr

	OpBuildTuple
	OpBuildList
	OpBuildMap
	OpStoreMap
	OpListAppend
	OpUnpackSequence

	OpJumpForward
	OpJumpAbsolute
	OpPopJumpIfTrue
	OpPopJumpIfFalse
	OpJumpIfTrueOrPop
	OpJumpIfFalseOrPop

	OpSetupLoop
	OpBreakLoop
	OpContinueLoop
	OpGetIter
	OpForIter
	OpPopBlock
	OpSetupExcept
	OpSetupFinally
	OpEndFinally
	OpPopExcept
	OpRaiseVarargs

	OpMakeFunction
	OpMakeClosure
	OpCallFunction
	OpReturnValue
	OpYieldValue

	OpPrintItem
	OpPrintNewline
)

// ArgKind describes how the decoder resolves an instruction's raw argument.
type ArgKind int

const (
	ArgNone    ArgKind = iota
	ArgInt             // raw integer (counts, flags)
	ArgConst           // index into Consts
	ArgName            // index into Names
	ArgLocal           // index into VarNames
	ArgCell            // index into CellVars followed by FreeVars
	ArgJumpRel         // offset relative to the next instruction
	ArgJumpAbs         // absolute instruction offset
	ArgCompare         // index into CompareOps
)

type opInfo struct {
	name string
	arg  ArgKind
}

var opcodes = map[Opcode]opInfo{
	OpNop:       {"NOP", ArgNone},
	OpPopTop:    {"POP_TOP", ArgNone},
	OpRotTwo:    {"ROT_TWO", ArgNone},
	OpRotThree:  {"ROT_THREE", ArgNone},
	OpDupTop:    {"DUP_TOP", ArgNone},
	OpDupTopTwo: {"DUP_TOP_TWO", ArgNone},

	OpLoadConst:   {"LOAD_CONST", ArgConst},
	OpLoadName:    {"LOAD_NAME", ArgName},
	OpStoreName:   {"STORE_NAME", ArgName},
	OpDeleteName:  {"DELETE_NAME", ArgName},
	OpLoadFast:    {"LOAD_FAST", ArgLocal},
	OpStoreFast:   {"STORE_FAST", ArgLocal},
	OpDeleteFast:  {"DELETE_FAST", ArgLocal},
	OpLoadGlobal:  {"LOAD_GLOBAL", ArgName},
	OpStoreGlobal: {"STORE_GLOBAL", ArgName},
	OpLoadDeref:   {"LOAD_DEREF", ArgCell},
	OpStoreDeref:  {"STORE_DEREF", ArgCell},
	OpLoadClosure: {"LOAD_CLOSURE", ArgCell},

	OpUnary:        {"UNARY_*", ArgNone},
	OpBinary:       {"BINARY_*", ArgNone},
	OpInplace:      {"INPLACE_*", ArgNone},
	OpCompareOp:    {"COMPARE_OP", ArgCompare},
	OpStoreSubscr:  {"STORE_SUBSCR", ArgNone},
	OpDeleteSubscr: {"DELETE_SUBSCR", ArgNone},

	OpBuildTuple:     {"BUILD_TUPLE", ArgInt},
	OpBuildList:      {"BUILD_LIST", ArgInt},
	OpBuildMap:       {"BUILD_MAP", ArgInt},
	OpStoreMap:       {"STORE_MAP", ArgNone},
	OpListAppend:     {"LIST_APPEND", ArgInt},
	OpUnpackSequence: {"UNPACK_SEQUENCE", ArgInt},

	OpJumpForward:      {"JUMP_FORWARD", ArgJumpRel},
	OpJumpAbsolute:     {"JUMP_ABSOLUTE", ArgJumpAbs},
	OpPopJumpIfTrue:    {"POP_JUMP_IF_TRUE", ArgJumpAbs},
	OpPopJumpIfFalse:   {"POP_JUMP_IF_FALSE", ArgJumpAbs},
	OpJumpIfTrueOrPop:  {"JUMP_IF_TRUE_OR_POP", ArgJumpAbs},
	OpJumpIfFalseOrPop: {"JUMP_IF_FALSE_OR_POP", ArgJumpAbs},

	OpSetupLoop:    {"SETUP_LOOP", ArgJumpRel},
	OpBreakLoop:    {"BREAK_LOOP", ArgNone},
	OpContinueLoop: {"CONTINUE_LOOP", ArgJumpAbs},
	OpGetIter:      {"GET_ITER", ArgNone},
	OpForIter:      {"FOR_ITER", ArgJumpRel},
	OpPopBlock:     {"POP_BLOCK", ArgNone},
	OpSetupExcept:  {"SETUP_EXCEPT", ArgJumpRel},
	OpSetupFinally: {"SETUP_FINALLY", ArgJumpRel},
	OpEndFinally:   {"END_FINALLY", ArgNone},
	OpPopExcept:    {"POP_EXCEPT", ArgNone},
	OpRaiseVarargs: {"RAISE_VARARGS", ArgInt},

	OpMakeFunction: {"MAKE_FUNCTION", ArgInt},
	OpMakeClosure:  {"MAKE_CLOSURE", ArgInt},
	OpCallFunction: {"CALL_FUNCTION", ArgInt},
	OpReturnValue:  {"RETURN_VALUE", ArgNone},
	OpYieldValue:   {"YIELD_VALUE", ArgNone},

	OpPrintItem:    {"PRINT_ITEM", ArgNone},
	OpPrintNewline: {"PRINT_NEWLINE", ArgNone},
}

// mnemonic -> opcode, without the operator families
var mnemonics = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodes))
	for op, info := range opcodes {
		if !strings.HasSuffix(info.name, "*") {
			m[info.name] = op
		}
	}
	return m
}()

// operator families, matched by prefix when no exact mnemonic exists
var families = []struct {
	prefix string
	op     Opcode
}{
	{"UNARY_", OpUnary},
	{"BINARY_", OpBinary},
	{"INPLACE_", OpInplace},
}

// CompareOps are the COMPARE_OP operator names, indexed by raw argument.
var CompareOps = []string{"<", "<=", "==", "!=", ">", ">=", "in", "not in", "is", "is not", "exception match"}

// String returns the mnemonic of the opcode
func (op Opcode) String() string {
	if info, ok := opcodes[op]; ok {
		return info.name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(op))
}

// Arg returns how the opcode's argument is resolved
func (op Opcode) Arg() ArgKind {
	return opcodes[op].arg
}

// IsJump reports whether the opcode's argument is a jump target
func (op Opcode) IsJump() bool {
	k := op.Arg()
	return k == ArgJumpRel || k == ArgJumpAbs
}

// ParseOpcode resolves a mnemonic: first by exact name, then by operator
// family prefix. The returned operator is the family suffix, empty otherwise.
func ParseOpcode(name string) (Opcode, string, error) {
	if op, ok := mnemonics[name]; ok {
		return op, "", nil
	}

	for _, f := range families {
		if suffix, ok := strings.CutPrefix(name, f.prefix); ok && suffix != "" {
			return f.op, suffix, nil
		}
	}

	return 0, "", &UnsupportedOpcodeError{Name: name, Offset: -1}
}

// CompareIndex returns the raw COMPARE_OP argument for an operator name
func CompareIndex(op string) (int, bool) {
	for i, name := range CompareOps {
		if name == op {
			return i, true
		}
	}
	return -1, false
}
