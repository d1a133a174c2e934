package object

import (
	"fmt"
	"strings"
)

// Class is an exception kind. Kinds form a single-inheritance tree rooted at
// BaseExceptionClass.
type Class struct {
	Name string
	Base *Class
}

func (c *Class) TypeName() string { return "type" }

func (c *Class) String() string {
	return fmt.Sprintf("<class '%s'>", c.Name)
}

// IsSubclass reports whether c is target or derives from it.
func (c *Class) IsSubclass(target *Class) bool {
	for k := c; k != nil; k = k.Base {
		if k == target {
			return true
		}
	}
	return false
}

// New instantiates the class with the given arguments
func (c *Class) New(args ...Value) *Exception {
	return &Exception{Class: c, Args: Tuple(args)}
}

// NewClass declares a new exception kind deriving from base
func NewClass(name string, base *Class) *Class {
	return &Class{Name: name, Base: base}
}

var (
	BaseExceptionClass     = NewClass("BaseException", nil)
	ExceptionClass         = NewClass("Exception", BaseExceptionClass)
	StopIterationClass     = NewClass("StopIteration", ExceptionClass)
	ArithmeticErrorClass   = NewClass("ArithmeticError", ExceptionClass)
	ZeroDivisionErrorClass = NewClass("ZeroDivisionError", ArithmeticErrorClass)
	OverflowErrorClass     = NewClass("OverflowError", ArithmeticErrorClass)
	AssertionErrorClass    = NewClass("AssertionError", ExceptionClass)
	LookupErrorClass       = NewClass("LookupError", ExceptionClass)
	IndexErrorClass        = NewClass("IndexError", LookupErrorClass)
	KeyErrorClass          = NewClass("KeyError", LookupErrorClass)
	NameErrorClass         = NewClass("NameError", ExceptionClass)
	UnboundLocalErrorClass = NewClass("UnboundLocalError", NameErrorClass)
	RuntimeErrorClass      = NewClass("RuntimeError", ExceptionClass)
	RecursionErrorClass    = NewClass("RecursionError", RuntimeErrorClass)
	TypeErrorClass         = NewClass("TypeError", ExceptionClass)
	ValueErrorClass        = NewClass("ValueError", ExceptionClass)
)

// BuiltinClasses lists the exception kinds installed in every builtin namespace.
var BuiltinClasses = []*Class{
	BaseExceptionClass, ExceptionClass, StopIterationClass, ArithmeticErrorClass,
	ZeroDivisionErrorClass, OverflowErrorClass, AssertionErrorClass, LookupErrorClass,
	IndexErrorClass, KeyErrorClass, NameErrorClass, UnboundLocalErrorClass,
	RuntimeErrorClass, RecursionErrorClass, TypeErrorClass, ValueErrorClass,
}

// Exception is a guest exception instance. It implements error so guest
// exceptions travel through ordinary Go error returns.
type Exception struct {
	Class     *Class
	Args      Tuple
	Cause     *Exception // explicit `raise ... from ...`
	Context   *Exception // exception being handled when this one was raised
	Traceback *Traceback
}

// NewException creates an instance of c whose single argument is the formatted message
func NewException(c *Class, format string, args ...any) *Exception {
	return c.New(fmt.Sprintf(format, args...))
}

func (e *Exception) TypeName() string { return e.Class.Name }

// Message renders the exception arguments the way str() does
func (e *Exception) Message() string {
	switch len(e.Args) {
	case 0:
		return ""
	case 1:
		return Str(e.Args[0])
	default:
		return Repr(e.Args)
	}
}

func (e *Exception) Error() string {
	if msg := e.Message(); msg != "" {
		return e.Class.Name + ": " + msg
	}
	return e.Class.Name
}

// TraceEntry records one frame an exception passed through.
type TraceEntry struct {
	Code   string
	Offset int
}

// Traceback is the context part of an exception triple, innermost frame first.
type Traceback struct {
	Entries []TraceEntry
}

func (t *Traceback) TypeName() string { return "traceback" }

// Add appends the frame the exception is currently leaving
func (t *Traceback) Add(code string, offset int) {
	t.Entries = append(t.Entries, TraceEntry{Code: code, Offset: offset})
}

// String renders the traceback outermost frame first
func (t *Traceback) String() string {
	var b strings.Builder
	b.WriteString("Traceback (most recent call last):\n")
	for i := len(t.Entries) - 1; i >= 0; i-- {
		e := t.Entries[i]
		fmt.Fprintf(&b, "  in %s at offset %d\n", e.Code, e.Offset)
	}
	return b.String()
}
