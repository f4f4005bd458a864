package vm

import (
	"strings"
)

// ---------------------------------------------------------------------------
// Array: fixed-length storage, one mutable slot per element
// ---------------------------------------------------------------------------

// Array is a fixed-length array. Multi-dimensional arrays nest Arrays.
// Arrays are reference-like: duplication shares identity.
type Array struct {
	slots []*Reference
}

// NewArray creates an array of n Nil slots.
func NewArray(n int) *Array {
	a := &Array{slots: make([]*Reference, n)}
	for i := range a.slots {
		a.slots[i] = NewReference(Nil)
	}
	return a
}

// NewArrayFrom creates an array holding by-value copies of values.
func NewArrayFrom(values []Value) *Array {
	a := &Array{slots: make([]*Reference, len(values))}
	for i, v := range values {
		a.slots[i] = NewReference(v.AsByValue())
	}
	return a
}

// NewMultiArray creates nested Nil-filled arrays with the given dimensions.
func NewMultiArray(dims []int) *Array {
	a := NewArray(dims[0])
	if len(dims) > 1 {
		for _, slot := range a.slots {
			slot.Value = NewMultiArray(dims[1:])
		}
	}
	return a
}

// Len returns the number of elements.
func (a *Array) Len() int {
	return len(a.slots)
}

// At returns the element at i.
func (a *Array) At(i int) Value {
	return a.slots[i].Value
}

// Values returns a snapshot of the elements.
func (a *Array) Values() []Value {
	out := make([]Value, len(a.slots))
	for i, s := range a.slots {
		out[i] = s.Value
	}
	return out
}

func (*Array) Kind() Kind { return KindArray }

func (a *Array) ExpressionOp(op Opcode, other Value) (Value, error) {
	return nil, unsupportedOp(a, op, other)
}

func (a *Array) GetMember(name string) (*Reference, error) {
	if name == "length" {
		return NewImmutableReference(Integer(len(a.slots))), nil
	}
	return nil, noMember(a, name)
}

// GetIndexer returns the slot at args[0]. Further arguments index into
// nested arrays, so a[i, j] is a[i][j].
func (a *Array) GetIndexer(args []Value) (*Reference, error) {
	if len(args) == 0 {
		return nil, faultf(ErrOperator, "array indexer needs an argument")
	}
	i, ok := args[0].(Integer)
	if !ok {
		return nil, faultf(ErrOperator, "array index must be Integer, got %s", args[0].Kind())
	}
	if i < 0 || int(i) >= len(a.slots) {
		return nil, faultf(ErrIndexRange, "%d not in [0, %d)", i, len(a.slots))
	}
	slot := a.slots[i]
	if len(args) == 1 {
		return slot, nil
	}
	return slot.Value.GetIndexer(args[1:])
}

func (a *Array) Call(ctx *Context, args []Value) (Result, error) {
	return Result{}, notCallable(a)
}

func (a *Array) AsByValue() Value { return a }

func (a *Array) Equal(other Value) bool {
	o, ok := other.(*Array)
	return ok && o == a
}

func (a *Array) Hash() uint64 {
	return uint64(len(a.slots)) ^ 0xa5a5a5a5
}

func (a *Array) String() string {
	parts := make([]string, len(a.slots))
	for i, s := range a.slots {
		if inner, ok := s.Value.(String); ok {
			parts[i] = `"` + string(inner) + `"`
			continue
		}
		parts[i] = s.Value.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
