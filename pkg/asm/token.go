package asm

import (
	"fmt"
	"regexp"
)

type TokenType int

type Position struct {
	Line   int
	Column int
}

// Returns a string representation of the Position
func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

type Token struct {
	Type    TokenType // Type of the token
	Lexeme  string    // Actual string from source
	Literal string    // Unquoted value for strings, stripped sigil for directives and refs
	Pos     Position  // Position in source
}

const (
	EOF TokenType = iota // End of input

	CODE      // code
	END       // end
	IDENT     // identifier or mnemonic
	INT       // integer literal
	FLOAT     // float literal
	STRING    // "string"
	DIRECTIVE // .cellvars
	REF       // @unit
	COLON     // :
	COMMA     // ,
	LPAREN    // (
	RPAREN    // )
	STAR      // *
	DSTAR     // **
	NEWLINE   // end of line

	ILLEGAL // illegal token
)

var tokenNames = map[TokenType]string{
	EOF:       "$",
	CODE:      "code",
	END:       "end",
	IDENT:     "ident",
	INT:       "int",
	FLOAT:     "float",
	STRING:    "string",
	DIRECTIVE: "directive",
	REF:       "ref",
	COLON:     ":",
	COMMA:     ",",
	LPAREN:    "(",
	RPAREN:    ")",
	STAR:      "*",
	DSTAR:     "**",
	NEWLINE:   "newline",
	ILLEGAL:   "illegal",
}

// String returns a string representation of the TokenType
func (t TokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(t))
}

// String returns a string representation of the Token
func (t Token) String() string {
	return fmt.Sprintf("T_{%s, %q, %s}", t.Type, t.Lexeme, t.Pos)
}

var tokenRegexes = map[TokenType]*regexp.Regexp{
	CODE:      regexp.MustCompile(`^code\b`),
	END:       regexp.MustCompile(`^end\b`),
	FLOAT:     regexp.MustCompile(`^-?(\d+\.\d+([eE][+-]?\d+)?|\d+[eE][+-]?\d+)`),
	INT:       regexp.MustCompile(`^-?\d+`),
	STRING:    regexp.MustCompile(`^"([^"\\]|\\.)*"`),
	DIRECTIVE: regexp.MustCompile(`^\.[a-z]+`),
	REF:       regexp.MustCompile(`^@[A-Za-z_<][A-Za-z0-9_<>]*`),
	IDENT:     regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*`),
	DSTAR:     regexp.MustCompile(`^\*\*`),
	STAR:      regexp.MustCompile(`^\*`),
	COLON:     regexp.MustCompile(`^:`),
	COMMA:     regexp.MustCompile(`^,`),
	LPAREN:    regexp.MustCompile(`^\(`),
	RPAREN:    regexp.MustCompile(`^\)`),
}

var (
	blankRegex   = regexp.MustCompile(`^[ \t\r]+`)
	commentRegex = regexp.MustCompile(`^[;#][^\n]*`)
)

// Token precedence order for matching (keywords before identifiers, floats before ints)
var tokenPrecedenceOrder = []TokenType{
	CODE, END, FLOAT, INT, STRING, DIRECTIVE, REF, IDENT,
	DSTAR, STAR, COLON, COMMA, LPAREN, RPAREN,
}

// MatchToken matches the token at the start of s. Blanks and comments match
// as EOF with a non-empty lexeme so the caller can skip them.
func MatchToken(s string) (TokenType, string, bool) {
	if s == "" {
		return EOF, "", false
	} else if match := blankRegex.FindString(s); match != "" {
		return EOF, match, true
	} else if match := commentRegex.FindString(s); match != "" {
		return EOF, match, true
	} else if s[0] == '\n' {
		return NEWLINE, "\n", true
	}

	for _, tokenType := range tokenPrecedenceOrder {
		if match := tokenRegexes[tokenType].FindString(s); match != "" {
			return tokenType, match, true
		}
	}

	return ILLEGAL, string(s[0]), false
}
