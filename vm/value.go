package vm

import (
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Value: the runtime value protocol
// ---------------------------------------------------------------------------

// Kind tags the variant of a Value.
type Kind int

const (
	KindNil Kind = iota
	KindBoolean
	KindInteger
	KindFloat
	KindString
	KindArray
	KindInstance
	KindClass
	KindFunction
	KindHost
)

var kindNames = [...]string{
	KindNil:      "Nil",
	KindBoolean:  "Boolean",
	KindInteger:  "Integer",
	KindFloat:    "Float",
	KindString:   "String",
	KindArray:    "Array",
	KindInstance: "Instance",
	KindClass:    "Class",
	KindFunction: "Function",
	KindHost:     "Host",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Value is implemented by every runtime value, script-created or host-made.
//
// ExpressionOp evaluates a binary operator with other as the right operand,
// or a unary operator when other is nil. Member and indexer lookups return
// References so results can be assigned through. AsByValue returns the copy
// stored at assignment and argument boundaries: value-like kinds duplicate,
// reference-like kinds return themselves.
type Value interface {
	Kind() Kind
	ExpressionOp(op Opcode, other Value) (Value, error)
	GetMember(name string) (*Reference, error)
	GetIndexer(args []Value) (*Reference, error)
	Call(ctx *Context, args []Value) (Result, error)
	AsByValue() Value
	Equal(other Value) bool
	Hash() uint64
	String() string
}

// Result is what a call produces: a value plus whether the callee can be
// resumed (it suspended at a yield).
type Result struct {
	Value     Value
	CanResume bool
}

// Truthy reports whether v counts as true for conditional jumps.
// Nil and false are falsy; everything else is truthy.
func Truthy(v Value) bool {
	switch x := v.(type) {
	case nil, NilValue:
		return false
	case Boolean:
		return bool(x)
	}
	return true
}

// Operate evaluates op on left and right (right is nil for unary
// operators). Equality, inequality, logical not and nil-coalescing apply to
// every kind; everything else dispatches on the left operand.
func Operate(op Opcode, left, right Value) (Value, error) {
	switch op {
	case OpEqual:
		return Boolean(left.Equal(right)), nil
	case OpNotEqual:
		return Boolean(!left.Equal(right)), nil
	case OpNot:
		return Boolean(!Truthy(left)), nil
	case OpNilCoalesce:
		if left.Kind() == KindNil {
			return right, nil
		}
		return left, nil
	}
	return left.ExpressionOp(op, right)
}

// ---------------------------------------------------------------------------
// Defaults shared by the variants
// ---------------------------------------------------------------------------

func unsupportedOp(v Value, op Opcode, other Value) error {
	if other == nil {
		return faultf(ErrOperator, "%s %s", op.Name(), v.Kind())
	}
	return faultf(ErrOperator, "%s %s %s", v.Kind(), op.Name(), other.Kind())
}

func noMember(v Value, name string) error {
	return faultf(ErrNoMember, "%s has no member %q", v.Kind(), name)
}

func noIndexer(v Value) error {
	return faultf(ErrOperator, "%s cannot be indexed", v.Kind())
}

func notCallable(v Value) error {
	return faultf(ErrNotCallable, "%s", v.Kind())
}

func hashString(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// ---------------------------------------------------------------------------
// Nil
// ---------------------------------------------------------------------------

// NilValue is the type of Nil.
type NilValue struct{}

// Nil is the singleton nil value.
var Nil Value = NilValue{}

func (NilValue) Kind() Kind { return KindNil }

func (n NilValue) ExpressionOp(op Opcode, other Value) (Value, error) {
	return nil, unsupportedOp(n, op, other)
}

func (NilValue) GetMember(name string) (*Reference, error) {
	return nil, faultf(ErrMemberNil, "%q", name)
}

func (NilValue) GetIndexer(args []Value) (*Reference, error) {
	return nil, ErrIndexNil
}

func (NilValue) Call(ctx *Context, args []Value) (Result, error) {
	return Result{}, ErrCallNil
}

func (n NilValue) AsByValue() Value      { return n }
func (NilValue) Equal(other Value) bool  { return other != nil && other.Kind() == KindNil }
func (NilValue) Hash() uint64            { return 0 }
func (NilValue) String() string          { return "nil" }

// ---------------------------------------------------------------------------
// Boolean
// ---------------------------------------------------------------------------

// Boolean is a script boolean.
type Boolean bool

func (Boolean) Kind() Kind { return KindBoolean }

func (b Boolean) ExpressionOp(op Opcode, other Value) (Value, error) {
	o, ok := other.(Boolean)
	if !ok {
		return nil, unsupportedOp(b, op, other)
	}
	switch op {
	case OpAnd:
		return b && o, nil
	case OpOr:
		return b || o, nil
	case OpXor:
		return Boolean(b != o), nil
	}
	return nil, unsupportedOp(b, op, other)
}

func (b Boolean) GetMember(name string) (*Reference, error)  { return nil, noMember(b, name) }
func (b Boolean) GetIndexer(args []Value) (*Reference, error) { return nil, noIndexer(b) }
func (b Boolean) Call(ctx *Context, args []Value) (Result, error) {
	return Result{}, notCallable(b)
}
func (b Boolean) AsByValue() Value { return b }
func (b Boolean) Equal(other Value) bool {
	o, ok := other.(Boolean)
	return ok && o == b
}
func (b Boolean) Hash() uint64 {
	if b {
		return 1
	}
	return 2
}
func (b Boolean) String() string { return strconv.FormatBool(bool(b)) }

// ---------------------------------------------------------------------------
// Integer
// ---------------------------------------------------------------------------

// Integer is a 64-bit signed script integer.
type Integer int64

func (Integer) Kind() Kind { return KindInteger }

func (i Integer) ExpressionOp(op Opcode, other Value) (Value, error) {
	switch o := other.(type) {
	case nil:
		switch op {
		case OpNegative:
			return -i, nil
		case OpBitNot:
			return ^i, nil
		}
	case Integer:
		switch op {
		case OpPlus:
			return i + o, nil
		case OpMinus:
			return i - o, nil
		case OpMultiply:
			return i * o, nil
		case OpDivide:
			if o == 0 {
				return nil, faultf(ErrOperator, "integer division by zero")
			}
			return i / o, nil
		case OpModular:
			if o == 0 {
				return nil, faultf(ErrOperator, "integer division by zero")
			}
			return i % o, nil
		case OpAnd:
			return i & o, nil
		case OpOr:
			return i | o, nil
		case OpXor:
			return i ^ o, nil
		case OpLeftBitShift:
			return i << uint64(o), nil
		case OpRightBitShift:
			return i >> uint64(o), nil
		case OpGreater:
			return Boolean(i > o), nil
		case OpLesser:
			return Boolean(i < o), nil
		case OpGreaterEqual:
			return Boolean(i >= o), nil
		case OpLesserEqual:
			return Boolean(i <= o), nil
		}
	case Float:
		return Float(i).ExpressionOp(op, o)
	case String:
		if op == OpPlus {
			return String(i.String()) + o, nil
		}
	}
	return nil, unsupportedOp(i, op, other)
}

func (i Integer) GetMember(name string) (*Reference, error)  { return nil, noMember(i, name) }
func (i Integer) GetIndexer(args []Value) (*Reference, error) { return nil, noIndexer(i) }
func (i Integer) Call(ctx *Context, args []Value) (Result, error) {
	return Result{}, notCallable(i)
}
func (i Integer) AsByValue() Value { return i }
func (i Integer) Equal(other Value) bool {
	switch o := other.(type) {
	case Integer:
		return o == i
	case Float:
		return float64(o) == float64(i)
	}
	return false
}
func (i Integer) Hash() uint64   { return uint64(i) }
func (i Integer) String() string { return strconv.FormatInt(int64(i), 10) }

// ---------------------------------------------------------------------------
// Float
// ---------------------------------------------------------------------------

// Float is a 64-bit script float.
type Float float64

func (Float) Kind() Kind { return KindFloat }

func (f Float) ExpressionOp(op Opcode, other Value) (Value, error) {
	var o Float
	switch x := other.(type) {
	case nil:
		if op == OpNegative {
			return -f, nil
		}
		return nil, unsupportedOp(f, op, other)
	case Float:
		o = x
	case Integer:
		o = Float(x)
	case String:
		if op == OpPlus {
			return String(f.String()) + x, nil
		}
		return nil, unsupportedOp(f, op, other)
	default:
		return nil, unsupportedOp(f, op, other)
	}

	switch op {
	case OpPlus:
		return f + o, nil
	case OpMinus:
		return f - o, nil
	case OpMultiply:
		return f * o, nil
	case OpDivide:
		return f / o, nil
	case OpModular:
		return Float(math.Mod(float64(f), float64(o))), nil
	case OpGreater:
		return Boolean(f > o), nil
	case OpLesser:
		return Boolean(f < o), nil
	case OpGreaterEqual:
		return Boolean(f >= o), nil
	case OpLesserEqual:
		return Boolean(f <= o), nil
	}
	return nil, unsupportedOp(f, op, other)
}

func (f Float) GetMember(name string) (*Reference, error)  { return nil, noMember(f, name) }
func (f Float) GetIndexer(args []Value) (*Reference, error) { return nil, noIndexer(f) }
func (f Float) Call(ctx *Context, args []Value) (Result, error) {
	return Result{}, notCallable(f)
}
func (f Float) AsByValue() Value { return f }
func (f Float) Equal(other Value) bool {
	switch o := other.(type) {
	case Float:
		return o == f
	case Integer:
		return float64(f) == float64(o)
	}
	return false
}
func (f Float) Hash() uint64 {
	if f == Float(math.Trunc(float64(f))) && !math.IsInf(float64(f), 0) {
		return uint64(int64(f))
	}
	return math.Float64bits(float64(f))
}
func (f Float) String() string { return strconv.FormatFloat(float64(f), 'g', -1, 64) }

// ---------------------------------------------------------------------------
// String
// ---------------------------------------------------------------------------

// String is an immutable script string.
type String string

func (String) Kind() Kind { return KindString }

func (s String) ExpressionOp(op Opcode, other Value) (Value, error) {
	switch o := other.(type) {
	case String:
		switch op {
		case OpPlus:
			return s + o, nil
		case OpGreater:
			return Boolean(s > o), nil
		case OpLesser:
			return Boolean(s < o), nil
		case OpGreaterEqual:
			return Boolean(s >= o), nil
		case OpLesserEqual:
			return Boolean(s <= o), nil
		}
	case Integer:
		if op == OpMultiply {
			if o < 0 {
				return nil, faultf(ErrOperator, "negative repeat count %d", o)
			}
			return String(strings.Repeat(string(s), int(o))), nil
		}
	}
	if other != nil && op == OpPlus {
		return s + String(other.String()), nil
	}
	return nil, unsupportedOp(s, op, other)
}

func (s String) GetMember(name string) (*Reference, error) {
	if name == "length" {
		return NewImmutableReference(Integer(len([]rune(string(s))))), nil
	}
	return nil, noMember(s, name)
}

func (s String) GetIndexer(args []Value) (*Reference, error) {
	if len(args) != 1 {
		return nil, faultf(ErrOperator, "string indexer takes 1 argument, got %d", len(args))
	}
	i, ok := args[0].(Integer)
	if !ok {
		return nil, faultf(ErrOperator, "string index must be Integer, got %s", args[0].Kind())
	}
	runes := []rune(string(s))
	if i < 0 || int(i) >= len(runes) {
		return nil, faultf(ErrIndexRange, "%d not in [0, %d)", i, len(runes))
	}
	return NewImmutableReference(String(runes[i])), nil
}

func (s String) Call(ctx *Context, args []Value) (Result, error) {
	return Result{}, notCallable(s)
}
func (s String) AsByValue() Value { return s }
func (s String) Equal(other Value) bool {
	o, ok := other.(String)
	return ok && o == s
}
func (s String) Hash() uint64   { return hashString(string(s)) }
func (s String) String() string { return string(s) }
