package asm

import "strconv"

type Lexer struct {
	input    string // input string to be tokenized
	position int    // current position in the input string
	line     int    // current line number for error reporting
	column   int    // current column number for error reporting
}

// Create a new lexer instance
func NewLexer(s string) *Lexer {
	return &Lexer{
		input:  s,
		line:   1,
		column: 1,
	}
}

// Get the next token from the input
func (l *Lexer) NextToken() Token {
	for {
		pos := l.currentPosition()
		tokenType, lexeme, matched := MatchToken(l.input[l.position:])

		if tokenType == EOF && lexeme == "" {
			return Token{Type: EOF, Pos: pos}
		}
		if tokenType == EOF {
			l.advance(len(lexeme))
			continue
		}
		if !matched {
			l.advance(1)
			return Token{Type: ILLEGAL, Lexeme: lexeme, Pos: pos}
		}

		literal := lexeme
		switch tokenType {
		case STRING:
			s, err := strconv.Unquote(lexeme)
			if err != nil {
				l.advance(len(lexeme))
				return Token{Type: ILLEGAL, Lexeme: lexeme, Pos: pos}
			}
			literal = s
		case DIRECTIVE, REF:
			literal = lexeme[1:]
		}

		l.advance(len(lexeme))
		return Token{Type: tokenType, Lexeme: lexeme, Literal: literal, Pos: pos}
	}
}

// View next token without advancing the position
func (l *Lexer) Peek() Token {
	cpos, cline, ccol := l.position, l.line, l.column
	tok := l.NextToken()
	l.position, l.line, l.column = cpos, cline, ccol
	return tok
}

// Advance the lexer position by n characters
func (l *Lexer) advance(n int) {
	for i := 0; i < n; i++ {
		if l.position >= len(l.input) {
			break
		}

		if l.input[l.position] == '\n' {
			l.line++
			l.column = 1
		} else {
			l.column++
		}

		l.position++
	}
}

// Get the current position of the lexer
func (l *Lexer) currentPosition() Position {
	return Position{Line: l.line, Column: l.column}
}
