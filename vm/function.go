package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Method descriptors
// ---------------------------------------------------------------------------

// NativeFunc is the host function shape: calling context, bound instance
// (Nil when unbound), ordered arguments. It reports the result and whether
// it can be resumed, the same shape script methods present.
type NativeFunc func(ctx *Context, self Value, args []Value) (Result, error)

// Method is a callable descriptor. ScriptMethod and NativeMethod present
// the same shape so call sites need not tell them apart.
type Method interface {
	MethodName() string
	ParamCount() int
	IsVararg() bool
}

// ScriptMethod is a method compiled from source.
type ScriptMethod struct {
	Name   string
	Params int
	Vararg bool
	Code   Code
}

func (m *ScriptMethod) MethodName() string { return m.Name }
func (m *ScriptMethod) ParamCount() int    { return m.Params }
func (m *ScriptMethod) IsVararg() bool     { return m.Vararg }

// NativeMethod is a method backed by a host callback. Params is advisory;
// the callback receives every argument.
type NativeMethod struct {
	Name   string
	Params int
	Vararg bool
	Fn     NativeFunc
}

func (m *NativeMethod) MethodName() string { return m.Name }
func (m *NativeMethod) ParamCount() int    { return m.Params }
func (m *NativeMethod) IsVararg() bool     { return m.Vararg }

// NewNative wraps fn as a vararg native method.
func NewNative(name string, fn NativeFunc) *NativeMethod {
	return &NativeMethod{Name: name, Vararg: true, Fn: fn}
}

// ---------------------------------------------------------------------------
// Function: a callable value
// ---------------------------------------------------------------------------

// Function is a method bound to an optional instance and, for lambdas, to
// the frame it was created in.
type Function struct {
	Method Method
	Self   Value       // Nil when unbound
	Outer  *StackFrame // enclosing frame for lambdas, else nil
}

// NewFunction returns an unbound function value for m.
func NewFunction(m Method) *Function {
	return &Function{Method: m, Self: Nil}
}

func (*Function) Kind() Kind { return KindFunction }

func (f *Function) ExpressionOp(op Opcode, other Value) (Value, error) {
	return nil, unsupportedOp(f, op, other)
}

func (f *Function) GetMember(name string) (*Reference, error) {
	switch name {
	case "name":
		return NewImmutableReference(String(f.Method.MethodName())), nil
	case "arity":
		return NewImmutableReference(Integer(f.Method.ParamCount())), nil
	}
	return nil, noMember(f, name)
}

func (f *Function) GetIndexer(args []Value) (*Reference, error) {
	return nil, noIndexer(f)
}

// Call runs the function to its first suspension or completion.
func (f *Function) Call(ctx *Context, args []Value) (Result, error) {
	switch m := f.Method.(type) {
	case *ScriptMethod:
		if err := ctx.enter(); err != nil {
			return Result{}, err
		}
		defer ctx.leave()
		frame := NewStackFrame(ctx, m, f.Self, args, f.Outer)
		if err := frame.Execute(); err != nil {
			return Result{}, err
		}
		return Result{Value: frame.ReturnValue, CanResume: frame.State() == FrameSuspended}, nil
	case *NativeMethod:
		res, err := m.Fn(ctx, f.Self, args)
		if res.Value == nil {
			res.Value = Nil
		}
		return res, err
	}
	return Result{}, faultf(ErrNotCallable, "unknown method kind %T", f.Method)
}

// StartCoroutine creates a coroutine frame over the function. args must
// already be a by-value snapshot.
func (f *Function) StartCoroutine(ctx *Context, args []Value) Coroutine {
	switch m := f.Method.(type) {
	case *ScriptMethod:
		return &ScriptCoroutine{frame: NewStackFrame(ctx, m, f.Self, args, f.Outer)}
	case *NativeMethod:
		return &NativeCoroutine{ctx: ctx, fn: m.Fn, self: f.Self, args: args}
	}
	return Exhausted
}

func (f *Function) AsByValue() Value { return f }

func (f *Function) Equal(other Value) bool {
	o, ok := other.(*Function)
	if !ok {
		return false
	}
	if o == f {
		return true
	}
	if o.Method != f.Method || o.Outer != f.Outer {
		return false
	}
	if o.Self == nil || f.Self == nil {
		return o.Self == f.Self
	}
	return o.Self.Equal(f.Self)
}

func (f *Function) Hash() uint64 {
	return hashString(f.Method.MethodName())
}

func (f *Function) String() string {
	return fmt.Sprintf("<func %s/%d>", f.Method.MethodName(), f.Method.ParamCount())
}
