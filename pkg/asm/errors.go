package asm

import (
	"strings"

	"byterun/pkg/color"
)

// Error is an assembly error at a source position.
type Error struct {
	Pos     Position
	Msg     string
	Context string // offending source line
}

func (e *Error) Error() string {
	return e.Pos.String() + ": " + e.Msg
}

// Pretty renders the error with its source line, colored when enabled
func (e *Error) Pretty() string {
	return color.ErrorWithPosition(e.Pos.Line, e.Pos.Column, e.Msg, e.Context)
}

// ErrorList collects every error found in one assembly pass.
type ErrorList []*Error

func (l ErrorList) Error() string {
	msgs := make([]string, len(l))
	for i, e := range l {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}

// Pretty renders every error on its own line
func (l ErrorList) Pretty() string {
	msgs := make([]string, len(l))
	for i, e := range l {
		msgs[i] = e.Pretty()
	}
	return strings.Join(msgs, "\n")
}
