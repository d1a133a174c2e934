package stack

// Stack is a slice-backed LIFO.
type Stack[T any] struct {
	a []T
	l int
}

// New creates a new stack holding elm, the last element on top
func New[T any](elm ...T) *Stack[T] {
	s := Stack[T]{
		a: make([]T, 0, len(elm)+8),
		l: 0,
	}

	for _, e := range elm {
		s.l++
		s.a = append(s.a, e)
	}

	return &s
}

// Push adds elements to the top of the stack, the last one ending on top
func (s *Stack[T]) Push(elm ...T) {
	s.l += len(elm)
	s.a = append(s.a, elm...)
}

// Pop removes and returns the top element of the stack
func (s *Stack[T]) Pop() (T, bool) {
	var zero T
	if s.l < 1 {
		return zero, false
	}

	s.l--
	elm := s.a[s.l]
	s.a[s.l] = zero
	s.a = s.a[:s.l]

	return elm, true
}

// PopN removes the n topmost elements and returns them deepest first.
// The returned slice does not alias the stack's storage.
func (s *Stack[T]) PopN(n int) ([]T, bool) {
	if n < 0 || n > s.l {
		return nil, false
	}

	out := make([]T, n)
	copy(out, s.a[s.l-n:s.l])
	s.Truncate(s.l - n)

	return out, true
}

// Peek returns the top element of the stack without removing it
func (s *Stack[T]) Peek() (T, bool) {
	return s.PeekAt(0)
}

// PeekAt returns the element i positions below the top (0 is the top)
func (s *Stack[T]) PeekAt(i int) (T, bool) {
	var zero T
	if i < 0 || i >= s.l {
		return zero, false
	}

	return s.a[s.l-1-i], true
}

// Truncate drops elements until the stack holds at most n of them
func (s *Stack[T]) Truncate(n int) {
	if n < 0 {
		n = 0
	}

	var zero T
	for s.l > n {
		s.l--
		s.a[s.l] = zero
	}
	s.a = s.a[:s.l]
}

// Get the size of the stack
func (s *Stack[T]) Size() int {
	return s.l
}

// Array returns the underlying array of the stack, bottom first
func (s Stack[T]) Array() []T {
	return s.a
}
