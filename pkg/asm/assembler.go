// Package asm assembles the textual form of code units.
//
// A source file holds one or more code blocks; the first one is the entry unit:
//
//	code main
//	    LOAD_CONST @square
//	    LOAD_CONST "square"
//	    MAKE_FUNCTION 0
//	    STORE_NAME square
//	    ...
//	end
//
//	code square(x)
//	    LOAD_FAST x
//	    LOAD_FAST x
//	    BINARY_MULTIPLY
//	    RETURN_VALUE
//	end
//
// Parameters may include *args and **kwargs. The directives .cellvars,
// .freevars and .locals declare names, .generator marks a generator body.
// Labels are written "name:" and jump operands name them.
package asm

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"byterun/pkg/code"
	"byterun/pkg/object"
)

type statement struct {
	pos      Position
	mnemonic string
	operands []Token
}

type block struct {
	pos        Position
	unit       *code.Unit
	params     []string
	varargs    string
	varkw      string
	locals     []string
	labels     map[string]int
	statements []statement
	consts     map[string]int
}

type assembler struct {
	lex      *Lexer
	tok      Token
	lines    []string
	filename string
	blocks   []*block
	byName   map[string]*block
	errors   ErrorList
}

// Assemble assembles source text and returns the entry unit
func Assemble(src string) (*code.Unit, error) {
	return assemble("<asm>", src)
}

// AssembleFile reads and assembles a source file
func AssembleFile(path string) (*code.Unit, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("asm: %w", err)
	}
	return assemble(path, string(src))
}

func assemble(filename, src string) (*code.Unit, error) {
	a := &assembler{
		lex:      NewLexer(src),
		lines:    strings.Split(src, "\n"),
		filename: filename,
		byName:   make(map[string]*block),
	}
	a.next()
	a.parse()

	if len(a.errors) == 0 && len(a.blocks) == 0 {
		a.errorf(a.tok.Pos, "no code blocks")
	}
	if len(a.errors) > 0 {
		return nil, a.errors
	}

	for _, b := range a.blocks {
		a.resolve(b)
	}
	if len(a.errors) > 0 {
		return nil, a.errors
	}

	for _, b := range a.blocks {
		a.checkCycles(b, map[*block]bool{})
	}
	if len(a.errors) > 0 {
		return nil, a.errors
	}

	entry := a.blocks[0].unit
	if err := entry.Validate(); err != nil {
		return nil, fmt.Errorf("asm: %w", err)
	}
	return entry, nil
}

func (a *assembler) next() {
	a.tok = a.lex.NextToken()
	for a.tok.Type == ILLEGAL {
		a.errorf(a.tok.Pos, "illegal token %q", a.tok.Lexeme)
		a.tok = a.lex.NextToken()
	}
}

func (a *assembler) errorf(pos Position, format string, args ...any) {
	ctx := ""
	if pos.Line >= 1 && pos.Line <= len(a.lines) {
		ctx = strings.TrimSpace(a.lines[pos.Line-1])
	}
	a.errors = append(a.errors, &Error{Pos: pos, Msg: fmt.Sprintf(format, args...), Context: ctx})
}

// skipLine drops tokens up to and including the next newline
func (a *assembler) skipLine() {
	for a.tok.Type != NEWLINE && a.tok.Type != EOF {
		a.next()
	}
	if a.tok.Type == NEWLINE {
		a.next()
	}
}

func (a *assembler) expectEOL() bool {
	if a.tok.Type != NEWLINE && a.tok.Type != EOF {
		a.errorf(a.tok.Pos, "unexpected %s %q", a.tok.Type, a.tok.Lexeme)
		a.skipLine()
		return false
	}
	if a.tok.Type == NEWLINE {
		a.next()
	}
	return true
}

func (a *assembler) parse() {
	for a.tok.Type != EOF {
		switch a.tok.Type {
		case NEWLINE:
			a.next()
		case CODE:
			a.parseBlock()
		default:
			a.errorf(a.tok.Pos, "expected a code block, got %s %q", a.tok.Type, a.tok.Lexeme)
			a.skipLine()
		}
	}
}

func (a *assembler) parseBlock() {
	b := &block{
		pos:    a.tok.Pos,
		unit:   &code.Unit{Filename: a.filename},
		labels: make(map[string]int),
		consts: make(map[string]int),
	}
	a.next()

	if a.tok.Type != IDENT && a.tok.Type != STRING {
		a.errorf(a.tok.Pos, "expected a code block name")
		a.skipLine()
		return
	}
	name := a.tok.Literal
	a.next()

	if _, dup := a.byName[name]; dup {
		a.errorf(b.pos, "code block %q already defined", name)
	}

	if a.tok.Type == LPAREN {
		a.parseParams(b)
	}
	a.expectEOL()

	for a.tok.Type != END {
		switch a.tok.Type {
		case EOF:
			a.errorf(b.pos, "code block %q is missing end", name)
			return
		case NEWLINE:
			a.next()
		case DIRECTIVE:
			a.parseDirective(b)
		case IDENT:
			a.parseStatement(b)
		default:
			a.errorf(a.tok.Pos, "unexpected %s %q", a.tok.Type, a.tok.Lexeme)
			a.skipLine()
		}
	}
	a.next()
	a.expectEOL()

	u := b.unit
	u.Name = name
	u.ArgCount = len(b.params)
	if b.varargs != "" {
		u.Flags |= code.FlagVarArgs
	}
	if b.varkw != "" {
		u.Flags |= code.FlagVarKeywords
	}

	varnames := append([]string{}, b.params...)
	if b.varargs != "" {
		varnames = append(varnames, b.varargs)
	}
	if b.varkw != "" {
		varnames = append(varnames, b.varkw)
	}
	for _, l := range b.locals {
		varnames = appendUnique(varnames, l)
	}

	u.VarNames = varnames

	a.blocks = append(a.blocks, b)
	a.byName[name] = b
}

func (a *assembler) parseParams(b *block) {
	a.next()
	seen := map[string]bool{}

	for a.tok.Type != RPAREN {
		kind := a.tok.Type
		if kind == STAR || kind == DSTAR {
			a.next()
		}
		if a.tok.Type != IDENT {
			a.errorf(a.tok.Pos, "expected a parameter name")
			return
		}
		p := a.tok.Literal
		if seen[p] {
			a.errorf(a.tok.Pos, "duplicate parameter %q", p)
		}
		seen[p] = true

		switch {
		case kind == DSTAR:
			b.varkw = p
		case b.varkw != "":
			a.errorf(a.tok.Pos, "parameter %q after **%s", p, b.varkw)
		case kind == STAR:
			if b.varargs != "" {
				a.errorf(a.tok.Pos, "more than one *args parameter")
			}
			b.varargs = p
		case b.varargs != "":
			a.errorf(a.tok.Pos, "keyword-only parameter %q is not supported", p)
		default:
			b.params = append(b.params, p)
		}
		a.next()

		if a.tok.Type == COMMA {
			a.next()
		} else if a.tok.Type != RPAREN {
			a.errorf(a.tok.Pos, "expected , or ) in parameter list")
			return
		}
	}
	a.next()
}

func (a *assembler) parseDirective(b *block) {
	d := a.tok
	a.next()

	var names []string
	for a.tok.Type == IDENT || a.tok.Type == COMMA {
		if a.tok.Type == IDENT {
			names = append(names, a.tok.Literal)
		}
		a.next()
	}

	switch d.Literal {
	case "cellvars":
		for _, n := range names {
			b.unit.CellVars = appendUnique(b.unit.CellVars, n)
		}
	case "freevars":
		for _, n := range names {
			b.unit.FreeVars = appendUnique(b.unit.FreeVars, n)
		}
	case "locals":
		b.locals = append(b.locals, names...)
	case "generator":
		if len(names) > 0 {
			a.errorf(d.Pos, ".generator takes no names")
		}
		b.unit.Flags |= code.FlagGenerator
	default:
		a.errorf(d.Pos, "unknown directive %q", d.Lexeme)
	}
	a.expectEOL()
}

func (a *assembler) parseStatement(b *block) {
	first := a.tok
	a.next()

	if a.tok.Type == COLON {
		if _, dup := b.labels[first.Literal]; dup {
			a.errorf(first.Pos, "label %q already defined", first.Literal)
		}
		b.labels[first.Literal] = len(b.statements)
		a.next()
		if a.tok.Type == NEWLINE || a.tok.Type == EOF {
			a.expectEOL()
			return
		}
		if a.tok.Type != IDENT {
			a.errorf(a.tok.Pos, "expected an instruction after label %q", first.Literal)
			a.skipLine()
			return
		}
		first = a.tok
		a.next()
	}

	st := statement{pos: first.Pos, mnemonic: first.Literal}
	for a.tok.Type != NEWLINE && a.tok.Type != EOF {
		st.operands = append(st.operands, a.tok)
		a.next()
	}
	b.statements = append(b.statements, st)
	a.expectEOL()
}

func appendUnique(list []string, name string) []string {
	for _, n := range list {
		if n == name {
			return list
		}
	}
	return append(list, name)
}

func indexOf(list []string, name string) int {
	for i, n := range list {
		if n == name {
			return i
		}
	}
	return -1
}

// resolve turns the block's statements into raw instructions
func (a *assembler) resolve(b *block) {
	u := b.unit
	u.Instructions = make([]code.RawInstruction, 0, len(b.statements))

	for offset, st := range b.statements {
		op, _, err := code.ParseOpcode(st.mnemonic)
		if err != nil {
			a.errorf(st.pos, "unsupported opcode %q", st.mnemonic)
			continue
		}

		arg, ok := a.operand(b, op, offset, st)
		if !ok {
			continue
		}
		u.Instructions = append(u.Instructions, code.RawInstruction{Name: st.mnemonic, Arg: arg})
	}
}

func (a *assembler) operand(b *block, op code.Opcode, offset int, st statement) (int, bool) {
	u := b.unit
	ops := st.operands
	kind := op.Arg()

	if kind == code.ArgNone {
		if len(ops) > 0 {
			a.errorf(st.pos, "%s takes no operand", st.mnemonic)
			return 0, false
		}
		return code.NoArg, true
	}
	if len(ops) == 0 {
		a.errorf(st.pos, "%s needs an operand", st.mnemonic)
		return 0, false
	}

	single := func(want TokenType) (Token, bool) {
		if len(ops) != 1 || ops[0].Type != want {
			a.errorf(st.pos, "%s expects a single %s operand", st.mnemonic, want)
			return Token{}, false
		}
		return ops[0], true
	}

	switch kind {
	case code.ArgInt:
		if op == code.OpCallFunction && len(ops) == 2 {
			npos, ok1 := a.count(st, ops[0])
			nkw, ok2 := a.count(st, ops[1])
			return npos | nkw<<8, ok1 && ok2
		}
		tok, ok := single(INT)
		if !ok {
			return 0, false
		}
		return a.count(st, tok)

	case code.ArgConst:
		v, rest, err := a.literal(ops)
		if err == nil && len(rest) > 0 {
			err = fmt.Errorf("unexpected %q after constant", rest[0].Lexeme)
		}
		if err != nil {
			a.errorf(st.pos, "%s: %v", st.mnemonic, err)
			return 0, false
		}
		return addConst(b, v), true

	case code.ArgName:
		tok, ok := single(IDENT)
		if !ok {
			return 0, false
		}
		u.Names = appendUnique(u.Names, tok.Literal)
		return indexOf(u.Names, tok.Literal), true

	case code.ArgLocal:
		tok, ok := single(IDENT)
		if !ok {
			return 0, false
		}
		u.VarNames = appendUnique(u.VarNames, tok.Literal)
		return indexOf(u.VarNames, tok.Literal), true

	case code.ArgCell:
		tok, ok := single(IDENT)
		if !ok {
			return 0, false
		}
		if i := indexOf(u.CellVars, tok.Literal); i >= 0 {
			return i, true
		}
		if i := indexOf(u.FreeVars, tok.Literal); i >= 0 {
			return len(u.CellVars) + i, true
		}
		a.errorf(st.pos, "%q is not declared in .cellvars or .freevars", tok.Literal)
		return 0, false

	case code.ArgJumpRel, code.ArgJumpAbs:
		tok, ok := single(IDENT)
		if !ok {
			return 0, false
		}
		target, found := b.labels[tok.Literal]
		if !found {
			a.errorf(st.pos, "undefined label %q", tok.Literal)
			return 0, false
		}
		if kind == code.ArgJumpAbs {
			return target, true
		}
		if target < offset+1 {
			a.errorf(st.pos, "%s cannot jump backwards to %q", st.mnemonic, tok.Literal)
			return 0, false
		}
		return target - (offset + 1), true

	case code.ArgCompare:
		if len(ops) != 1 || (ops[0].Type != STRING && ops[0].Type != IDENT) {
			a.errorf(st.pos, "COMPARE_OP expects an operator")
			return 0, false
		}
		name := ops[0].Literal
		if alias, ok := compareAliases[name]; ok && ops[0].Type == IDENT {
			name = alias
		}
		i, ok := code.CompareIndex(name)
		if !ok {
			a.errorf(st.pos, "unknown comparison %q", ops[0].Literal)
			return 0, false
		}
		return i, true
	}

	a.errorf(st.pos, "%s: unhandled operand kind", st.mnemonic)
	return 0, false
}

var compareAliases = map[string]string{
	"lt":              "<",
	"le":              "<=",
	"eq":              "==",
	"ne":              "!=",
	"gt":              ">",
	"ge":              ">=",
	"in":              "in",
	"not_in":          "not in",
	"is":              "is",
	"is_not":          "is not",
	"exception_match": "exception match",
}

func (a *assembler) count(st statement, tok Token) (int, bool) {
	if tok.Type != INT {
		a.errorf(st.pos, "%s expects an integer, got %q", st.mnemonic, tok.Lexeme)
		return 0, false
	}
	n, err := strconv.Atoi(tok.Lexeme)
	if err != nil || n < 0 || n > 0xff {
		a.errorf(st.pos, "%s: count %s out of range", st.mnemonic, tok.Lexeme)
		return 0, false
	}
	return n, true
}

// literal parses one constant and returns the remaining tokens
func (a *assembler) literal(toks []Token) (object.Value, []Token, error) {
	if len(toks) == 0 {
		return nil, nil, fmt.Errorf("missing constant")
	}

	tok, rest := toks[0], toks[1:]
	switch tok.Type {
	case INT:
		n, err := strconv.ParseInt(tok.Lexeme, 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("bad integer %q", tok.Lexeme)
		}
		return n, rest, nil
	case FLOAT:
		f, err := strconv.ParseFloat(tok.Lexeme, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("bad float %q", tok.Lexeme)
		}
		return f, rest, nil
	case STRING:
		return tok.Literal, rest, nil
	case IDENT:
		switch tok.Literal {
		case "None":
			return nil, rest, nil
		case "True":
			return true, rest, nil
		case "False":
			return false, rest, nil
		}
		return nil, nil, fmt.Errorf("unknown constant %q", tok.Literal)
	case REF:
		target, ok := a.byName[tok.Literal]
		if !ok {
			return nil, nil, fmt.Errorf("undefined code block %q", tok.Literal)
		}
		return target.unit, rest, nil
	case LPAREN:
		tuple := object.Tuple{}
		for len(rest) > 0 && rest[0].Type != RPAREN {
			v, r, err := a.literal(rest)
			if err != nil {
				return nil, nil, err
			}
			tuple = append(tuple, v)
			rest = r
			if len(rest) > 0 && rest[0].Type == COMMA {
				rest = rest[1:]
			} else if len(rest) > 0 && rest[0].Type != RPAREN {
				return nil, nil, fmt.Errorf("expected , or ) in tuple")
			}
		}
		if len(rest) == 0 {
			return nil, nil, fmt.Errorf("unterminated tuple")
		}
		return tuple, rest[1:], nil
	}

	return nil, nil, fmt.Errorf("unexpected %q", tok.Lexeme)
}

// addConst interns v in the block's constant pool. Code units are never
// shared between slots; scalars and tuples are keyed by kind and repr.
func addConst(b *block, v object.Value) int {
	u := b.unit
	if _, isCode := v.(*code.Unit); !isCode {
		key := fmt.Sprintf("%d:%s", object.KindOf(v), object.Repr(v))
		if i, ok := b.consts[key]; ok {
			return i
		}
		b.consts[key] = len(u.Consts)
	}
	u.Consts = append(u.Consts, v)
	return len(u.Consts) - 1
}

// checkCycles rejects code units that contain themselves
func (a *assembler) checkCycles(b *block, visiting map[*block]bool) {
	if visiting[b] {
		a.errorf(b.pos, "code block %q references itself through constants", b.unit.Name)
		return
	}
	visiting[b] = true
	defer delete(visiting, b)

	for _, nested := range nestedUnits(b.unit.Consts) {
		a.checkCycles(a.byName[nested.Name], visiting)
	}
}

func nestedUnits(values []object.Value) []*code.Unit {
	var units []*code.Unit
	for _, v := range values {
		switch x := v.(type) {
		case *code.Unit:
			units = append(units, x)
		case object.Tuple:
			units = append(units, nestedUnits(x)...)
		}
	}
	return units
}
