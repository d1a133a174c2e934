package object

// Iterator yields values until exhausted. ok is false once there are no
// more values; err carries a guest exception raised while producing one.
type Iterator interface {
	Next() (v Value, ok bool, err error)
}

// Range is the lazy integer sequence produced by the range builtin.
type Range struct {
	Start, Stop, Step int64
}

// NewRange creates a range, rejecting a zero step
func NewRange(start, stop, step int64) (*Range, error) {
	if step == 0 {
		return nil, NewException(ValueErrorClass, "range() arg 3 must not be zero")
	}
	return &Range{Start: start, Stop: stop, Step: step}, nil
}

func (r *Range) TypeName() string { return "range" }

// Len returns the number of values the range yields
func (r *Range) Len() int64 {
	if r.Step > 0 && r.Start < r.Stop {
		return (r.Stop - r.Start + r.Step - 1) / r.Step
	}
	if r.Step < 0 && r.Start > r.Stop {
		return (r.Start - r.Stop - r.Step - 1) / -r.Step
	}
	return 0
}

func (r *Range) contains(n int64) bool {
	if r.Step > 0 && (n < r.Start || n >= r.Stop) {
		return false
	}
	if r.Step < 0 && (n > r.Start || n <= r.Stop) {
		return false
	}
	return (n-r.Start)%r.Step == 0
}

type rangeIterator struct {
	r    *Range
	next int64
	left int64
}

func (it *rangeIterator) TypeName() string { return "range_iterator" }

func (it *rangeIterator) Next() (Value, bool, error) {
	if it.left <= 0 {
		return nil, false, nil
	}
	v := it.next
	it.next += it.r.Step
	it.left--
	return v, true, nil
}

type sliceIterator struct {
	typ   string
	items []Value
	i     int
}

func (it *sliceIterator) TypeName() string { return it.typ }

func (it *sliceIterator) Next() (Value, bool, error) {
	if it.i >= len(it.items) {
		return nil, false, nil
	}
	v := it.items[it.i]
	it.i++
	return v, true, nil
}

type listIterator struct {
	l *List
	i int
}

func (it *listIterator) TypeName() string { return "list_iterator" }

// Next re-reads the list length so appends made while iterating are seen
func (it *listIterator) Next() (Value, bool, error) {
	if it.i >= len(it.l.Items) {
		return nil, false, nil
	}
	v := it.l.Items[it.i]
	it.i++
	return v, true, nil
}

// Iter returns an iterator over v. Iterators are their own iterators.
func Iter(v Value) (Iterator, error) {
	switch x := v.(type) {
	case Iterator:
		return x, nil
	case Tuple:
		return &sliceIterator{typ: "tuple_iterator", items: x}, nil
	case *List:
		return &listIterator{l: x}, nil
	case string:
		runes := []rune(x)
		items := make([]Value, len(runes))
		for i, r := range runes {
			items[i] = string(r)
		}
		return &sliceIterator{typ: "str_iterator", items: items}, nil
	case *Dict:
		return &sliceIterator{typ: "dict_keyiterator", items: x.Keys()}, nil
	case *Range:
		return &rangeIterator{r: x, next: x.Start, left: x.Len()}, nil
	default:
		return nil, NewException(TypeErrorClass, "'%s' object is not iterable", TypeName(v))
	}
}

// Collect drains an iterable into a slice
func Collect(v Value) ([]Value, error) {
	switch x := v.(type) {
	case Tuple:
		return append([]Value(nil), x...), nil
	case *List:
		return append([]Value(nil), x.Items...), nil
	}

	it, err := Iter(v)
	if err != nil {
		return nil, err
	}

	var out []Value
	for {
		e, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, e)
	}
}
