package object

import (
	"math"
	"strings"
)

// Tuple is an immutable sequence.
type Tuple []Value

// List is a mutable sequence, shared by reference.
type List struct {
	Items []Value
}

// NewList creates a list holding a copy of items
func NewList(items ...Value) *List {
	return &List{Items: append([]Value(nil), items...)}
}

// Append adds v to the end of the list
func (l *List) Append(v Value) {
	l.Items = append(l.Items, v)
}

// DictEntry is one key/value pair of a Dict, in insertion order.
type DictEntry struct {
	Key   Value
	Value Value
}

// Dict is an insertion-ordered mapping keyed by hashable guest values.
type Dict struct {
	index   map[any]int
	entries []DictEntry
}

// NewDict creates an empty dict
func NewDict() *Dict {
	return &Dict{index: make(map[any]int)}
}

// hashKey maps a guest key onto a comparable Go key. Numbers that compare
// equal share a key so 1, 1.0 and True address the same slot.
func hashKey(k Value) (any, error) {
	switch x := k.(type) {
	case nil, string:
		return x, nil
	case bool, int64:
		i, _ := AsInt64(x)
		return i, nil
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) && math.Abs(x) < 1<<62 {
			return int64(x), nil
		}
		return x, nil
	case Tuple:
		return "\x00tuple" + Repr(x), nil
	case *List, *Dict:
		return nil, NewException(TypeErrorClass, "unhashable type: '%s'", TypeName(k))
	default:
		if !isComparable(k) {
			return nil, NewException(TypeErrorClass, "unhashable type: '%s'", TypeName(k))
		}
		return k, nil
	}
}

// Get looks up k
func (d *Dict) Get(k Value) (Value, bool, error) {
	hk, err := hashKey(k)
	if err != nil {
		return nil, false, err
	}

	i, ok := d.index[hk]
	if !ok {
		return nil, false, nil
	}
	return d.entries[i].Value, true, nil
}

// Set stores v under k, keeping the original insertion position of k
func (d *Dict) Set(k, v Value) error {
	hk, err := hashKey(k)
	if err != nil {
		return err
	}

	if i, ok := d.index[hk]; ok {
		d.entries[i].Value = v
		return nil
	}
	d.index[hk] = len(d.entries)
	d.entries = append(d.entries, DictEntry{Key: k, Value: v})
	return nil
}

// Delete removes k, reporting whether it was present
func (d *Dict) Delete(k Value) (bool, error) {
	hk, err := hashKey(k)
	if err != nil {
		return false, err
	}

	i, ok := d.index[hk]
	if !ok {
		return false, nil
	}

	d.entries = append(d.entries[:i], d.entries[i+1:]...)
	delete(d.index, hk)
	for j := i; j < len(d.entries); j++ {
		hk, _ := hashKey(d.entries[j].Key)
		d.index[hk] = j
	}
	return true, nil
}

// Len returns the number of entries
func (d *Dict) Len() int {
	return len(d.entries)
}

// Entries returns the entries in insertion order
func (d *Dict) Entries() []DictEntry {
	return d.entries
}

// Keys returns the keys in insertion order
func (d *Dict) Keys() []Value {
	keys := make([]Value, len(d.entries))
	for i, e := range d.entries {
		keys[i] = e.Key
	}
	return keys
}

func (d *Dict) equal(o *Dict) bool {
	if d.Len() != o.Len() {
		return false
	}
	for _, e := range d.entries {
		v, ok, err := o.Get(e.Key)
		if err != nil || !ok || !Equal(e.Value, v) {
			return false
		}
	}
	return true
}

// Len implements the len builtin
func Len(v Value) (int64, error) {
	switch x := v.(type) {
	case string:
		return int64(len([]rune(x))), nil
	case Tuple:
		return int64(len(x)), nil
	case *List:
		return int64(len(x.Items)), nil
	case *Dict:
		return int64(x.Len()), nil
	case *Range:
		return x.Len(), nil
	default:
		return 0, NewException(TypeErrorClass, "object of type '%s' has no len()", TypeName(v))
	}
}

// sequenceIndex resolves a possibly negative index against a sequence of length n
func sequenceIndex(typ string, key Value, n int) (int, error) {
	if _, ok := key.(float64); ok {
		return 0, NewException(TypeErrorClass, "%s indices must be integers, not float", typ)
	}
	i, err := AsInt64(key)
	if err != nil {
		return 0, NewException(TypeErrorClass, "%s indices must be integers, not %s", typ, TypeName(key))
	}
	if i < 0 {
		i += int64(n)
	}
	if i < 0 || i >= int64(n) {
		return 0, NewException(IndexErrorClass, "%s index out of range", typ)
	}
	return int(i), nil
}

// GetItem implements container[key]
func GetItem(container, key Value) (Value, error) {
	switch x := container.(type) {
	case Tuple:
		i, err := sequenceIndex("tuple", key, len(x))
		if err != nil {
			return nil, err
		}
		return x[i], nil
	case *List:
		i, err := sequenceIndex("list", key, len(x.Items))
		if err != nil {
			return nil, err
		}
		return x.Items[i], nil
	case string:
		r := []rune(x)
		i, err := sequenceIndex("string", key, len(r))
		if err != nil {
			return nil, err
		}
		return string(r[i]), nil
	case *Dict:
		v, ok, err := x.Get(key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, NewException(KeyErrorClass, "%s", Repr(key))
		}
		return v, nil
	case *Range:
		i, err := sequenceIndex("range object", key, int(x.Len()))
		if err != nil {
			return nil, err
		}
		return x.Start + int64(i)*x.Step, nil
	default:
		return nil, NewException(TypeErrorClass, "'%s' object is not subscriptable", TypeName(container))
	}
}

// SetItem implements container[key] = v
func SetItem(container, key, v Value) error {
	switch x := container.(type) {
	case *List:
		i, err := sequenceIndex("list assignment", key, len(x.Items))
		if err != nil {
			return err
		}
		x.Items[i] = v
		return nil
	case *Dict:
		return x.Set(key, v)
	default:
		return NewException(TypeErrorClass, "'%s' object does not support item assignment", TypeName(container))
	}
}

// DelItem implements del container[key]
func DelItem(container, key Value) error {
	switch x := container.(type) {
	case *List:
		i, err := sequenceIndex("list assignment", key, len(x.Items))
		if err != nil {
			return err
		}
		x.Items = append(x.Items[:i], x.Items[i+1:]...)
		return nil
	case *Dict:
		ok, err := x.Delete(key)
		if err != nil {
			return err
		}
		if !ok {
			return NewException(KeyErrorClass, "%s", Repr(key))
		}
		return nil
	default:
		return NewException(TypeErrorClass, "'%s' object does not support item deletion", TypeName(container))
	}
}

// Contains implements `needle in haystack`
func Contains(haystack, needle Value) (bool, error) {
	switch x := haystack.(type) {
	case string:
		s, ok := needle.(string)
		if !ok {
			return false, NewException(TypeErrorClass, "'in <string>' requires string as left operand, not %s", TypeName(needle))
		}
		return strings.Contains(x, s), nil
	case *Dict:
		_, ok, err := x.Get(needle)
		return ok, err
	case *Range:
		n, err := AsInt64(needle)
		if err != nil {
			return false, nil
		}
		return x.contains(n), nil
	}

	it, err := Iter(haystack)
	if err != nil {
		return false, NewException(TypeErrorClass, "argument of type '%s' is not iterable", TypeName(haystack))
	}
	for {
		v, ok, err := it.Next()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		if Equal(v, needle) {
			return true, nil
		}
	}
}
