package interpreter

import (
	"context"
	"errors"
	"fmt"

	"byterun/pkg/code"
	"byterun/pkg/object"
	"byterun/pkg/operator"
)

var (
	ErrStackUnderflow   = errors.New("stack underflow")
	ErrMaxStepsExceeded = errors.New("maximum steps exceeded")
	ErrBadBlock         = errors.New("block stack mismatch")
	ErrEndFinally       = errors.New("confused END_FINALLY")
)

// StackError is the panic value used when a frame's value or block stack
// underflows. The dispatch loop recovers it and aborts the run.
type StackError struct {
	Code   string
	Offset int
	What   string // "value" or "block"
}

func (e *StackError) Error() string {
	return fmt.Sprintf("%s: offset %d: %s %v", e.Code, e.Offset, e.What, ErrStackUnderflow)
}

func (e *StackError) Unwrap() error {
	return ErrStackUnderflow
}

// ArgumentBindingError reports a call whose arguments do not fit the
// callee's parameters. It surfaces in the caller as a guest TypeError.
type ArgumentBindingError struct {
	Function string
	Message  string
}

func (e *ArgumentBindingError) Error() string {
	return fmt.Sprintf("%s() %s", e.Function, e.Message)
}

// ExceptionTriple is the (kind, value, context) record of the exception
// currently being raised or handled.
type ExceptionTriple struct {
	Kind    *object.Class
	Value   *object.Exception
	Context *object.Traceback
}

func newTriple(exc *object.Exception) *ExceptionTriple {
	return &ExceptionTriple{Kind: exc.Class, Value: exc, Context: exc.Traceback}
}

// GuestError carries a guest exception that no frame handled out of Run.
type GuestError struct {
	Triple ExceptionTriple
}

func (e *GuestError) Error() string {
	if e.Triple.Context == nil || len(e.Triple.Context.Entries) == 0 {
		return e.Triple.Value.Error()
	}
	return e.Triple.Context.String() + e.Triple.Value.Error()
}

func (e *GuestError) Unwrap() error {
	return e.Triple.Value
}

// IsFatal reports whether err aborts a run instead of being catchable by
// guest code.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var exc *object.Exception
	var binding *ArgumentBindingError
	var op *operator.OperatorError
	switch {
	case errors.As(err, &exc), errors.As(err, &binding), errors.As(err, &op):
		return false
	}
	return true
}

// guestException converts a catchable error into the guest exception it
// stands for. Fatal errors are reported with ok == false.
func guestException(err error) (*object.Exception, bool) {
	var exc *object.Exception
	if errors.As(err, &exc) {
		return exc, true
	}

	var binding *ArgumentBindingError
	if errors.As(err, &binding) {
		return object.NewException(object.TypeErrorClass, "%s", binding.Error()), true
	}

	var op *operator.OperatorError
	if errors.As(err, &op) {
		return object.NewException(op.Class, "%s", op.Message), true
	}

	return nil, false
}

// fatal annotates engine-level errors with the failing position
func fatal(f *Frame, err error) error {
	var unsupported *code.UnsupportedOpcodeError
	var stackErr *StackError
	switch {
	case errors.As(err, &unsupported), errors.As(err, &stackErr),
		errors.Is(err, ErrMaxStepsExceeded),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%s: offset %d: %w", f.Code.Name, f.lastIP, err)
}
