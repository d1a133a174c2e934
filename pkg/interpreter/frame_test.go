package interpreter

import (
	"errors"
	"testing"

	"byterun/pkg/code"
	"byterun/pkg/object"
)

func testFrame() *Frame {
	u := &code.Unit{Name: "test"}
	return newFrame(u, GlobalScope(moduleNamespace()), Namespace{}, nil)
}

func TestFrameValueStack(t *testing.T) {
	f := testFrame()
	f.Push(int64(1), int64(2), int64(3))

	if f.Top() != int64(3) || f.Peek(2) != int64(1) {
		t.Fatalf("unexpected stack %v", f.Stack())
	}

	vals := f.PopN(2)
	if len(vals) != 2 || vals[0] != int64(2) || vals[1] != int64(3) {
		t.Errorf("PopN(2): expected [2 3], got %v", vals)
	}
	if got := f.PopN(0); len(got) != 0 {
		t.Errorf("PopN(0): expected no values, got %v", got)
	}
	if f.Pop() != int64(1) || f.Depth() != 0 {
		t.Errorf("expected an empty stack, got %v", f.Stack())
	}
}

func TestFrameUnderflow(t *testing.T) {
	tests := []struct {
		name string
		op   func(f *Frame)
		what string
	}{
		{"pop", func(f *Frame) { f.Pop() }, "value"},
		{"popn", func(f *Frame) { f.Push(nil); f.PopN(2) }, "value"},
		{"peek", func(f *Frame) { f.Peek(0) }, "value"},
		{"block", func(f *Frame) { f.PopBlock() }, "block"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			defer func() {
				r := recover()
				se, ok := r.(*StackError)
				if !ok {
					t.Fatalf("expected a *StackError panic, got %v", r)
				}
				if se.What != test.what || !errors.Is(se, ErrStackUnderflow) {
					t.Errorf("unexpected error %v", se)
				}
			}()
			test.op(testFrame())
		})
	}
}

func TestFrameBlocks(t *testing.T) {
	f := testFrame()
	f.Push("iterator")
	f.PushBlock(LoopBlock, 10)
	f.Push(int64(1), int64(2))
	f.PushBlock(FinallyBlock, 20)

	b, ok := f.TopBlock()
	if !ok || b.Kind != FinallyBlock || b.Level != 3 || b.Handler != 20 {
		t.Fatalf("unexpected top block %+v", b)
	}

	f.PopBlock()
	b = f.PopBlock()
	if b.Kind != LoopBlock || b.Level != 1 {
		t.Errorf("unexpected block %+v", b)
	}
	f.restore(b.Level)
	if f.Depth() != 1 || f.Top() != "iterator" {
		t.Errorf("restore: unexpected stack %v", f.Stack())
	}
	if len(f.Blocks()) != 0 {
		t.Errorf("expected no blocks, got %v", f.Blocks())
	}
}

func TestFrameActiveHandler(t *testing.T) {
	f := testFrame()
	if f.activeHandler() != nil {
		t.Fatal("expected no active handler")
	}

	exc := object.NewException(object.KeyErrorClass, "k")
	tb := &object.Traceback{}
	f.Push("below")
	f.PushBlock(ExceptHandlerBlock, -1)
	f.Push(tb, exc, exc.Class, tb, exc, exc.Class)

	got := f.activeHandler()
	if got == nil || got.Value != exc || got.Kind != object.KeyErrorClass || got.Context != tb {
		t.Errorf("unexpected handler triple %+v", got)
	}
}

func TestCell(t *testing.T) {
	c := &Cell{}
	if _, ok := c.Get(); ok {
		t.Error("expected an empty cell")
	}
	c.Set(nil)
	if v, ok := c.Get(); !ok || v != nil {
		t.Errorf("expected a set None cell, got %v %v", v, ok)
	}
	if v, _ := NewCell(int64(4)).Get(); v != int64(4) {
		t.Errorf("expected 4, got %v", v)
	}
}
