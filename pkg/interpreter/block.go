package interpreter

import "fmt"

// BlockKind is the kind of control region a Block guards.
type BlockKind int

const (
	LoopBlock BlockKind = iota
	SetupExceptBlock
	FinallyBlock
	ExceptHandlerBlock
)

func (k BlockKind) String() string {
	switch k {
	case LoopBlock:
		return "loop"
	case SetupExceptBlock:
		return "setup-except"
	case FinallyBlock:
		return "finally"
	case ExceptHandlerBlock:
		return "except-handler"
	}
	return fmt.Sprintf("block(%d)", int(k))
}

// Block is an entry of a frame's block stack. Level is the value stack
// depth when the block was entered.
type Block struct {
	Kind    BlockKind
	Handler int
	Level   int
}

// Why is the reason a step stopped sequential execution.
type Why int

const (
	WhyNone Why = iota
	WhyReturn
	WhyBreak
	WhyContinue
	WhyException
	WhyYield
)

func (w Why) String() string {
	switch w {
	case WhyNone:
		return "none"
	case WhyReturn:
		return "return"
	case WhyBreak:
		return "break"
	case WhyContinue:
		return "continue"
	case WhyException:
		return "exception"
	case WhyYield:
		return "yield"
	}
	return fmt.Sprintf("why(%d)", int(w))
}

// Completion is the outcome of one step. Value is set for Return and
// Yield, Target for Continue. The exception of a WhyException completion
// lives in the engine's lastException.
type Completion struct {
	Why    Why
	Value  any
	Target int
}

var normal = Completion{}
