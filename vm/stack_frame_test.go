package vm

import (
	"errors"
	"testing"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func build(emit func(b *ILBuilder)) Code {
	b := NewILBuilder()
	emit(b)
	return b.Build()
}

func newTestFrame(v *VM, code Code, args ...Value) *StackFrame {
	m := &ScriptMethod{Name: "test", Code: code}
	return NewStackFrame(NewContext(v), m, Nil, args, nil)
}

// ---------------------------------------------------------------------------
// Execution tests
// ---------------------------------------------------------------------------

func TestStackFrame_AssignAndReturn(t *testing.T) {
	f := newTestFrame(New(), build(func(b *ILBuilder) {
		b.EmitString(OpDefineLocal, "x")
		b.EmitInt(OpPushInteger, 5)
		b.Emit(OpAssign)
		b.Emit(OpPop)
		b.EmitString(OpLoadObject, "x")
		b.Emit(OpReturn)
	}))
	if err := f.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if f.State() != FrameCompleted {
		t.Errorf("State = %s, want completed", f.State())
	}
	if f.ReturnValue != Integer(5) {
		t.Errorf("ReturnValue = %v, want 5", f.ReturnValue)
	}
}

func TestStackFrame_EndOfCodeReturnsNil(t *testing.T) {
	f := newTestFrame(New(), build(func(b *ILBuilder) {
		b.EmitInt(OpPushInteger, 1)
		b.Emit(OpPop)
	}))
	if err := f.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if f.State() != FrameCompleted || f.ReturnValue != Nil {
		t.Errorf("got (%s, %v), want (completed, nil)", f.State(), f.ReturnValue)
	}
}

func TestStackFrame_YieldAndResume(t *testing.T) {
	f := newTestFrame(New(), build(func(b *ILBuilder) {
		b.EmitInt(OpPushInteger, 1)
		b.Emit(OpYield)
		b.EmitInt(OpPushInteger, 2)
		b.Emit(OpYield)
		b.EmitInt(OpPushInteger, 3)
		b.Emit(OpReturn)
	}))

	if err := f.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := []struct {
		v     Value
		state FrameState
	}{
		{Integer(1), FrameSuspended},
		{Integer(2), FrameSuspended},
		{Integer(3), FrameCompleted},
		{Integer(3), FrameCompleted}, // resuming a completed frame does nothing
	}
	for i, w := range want {
		if i > 0 {
			if err := f.Resume(); err != nil {
				t.Fatalf("Resume %d: %v", i, err)
			}
		}
		if f.ReturnValue != w.v || f.State() != w.state {
			t.Errorf("step %d: got (%v, %s), want (%v, %s)", i, f.ReturnValue, f.State(), w.v, w.state)
		}
	}
}

func TestStackFrame_LocalsSurviveSuspension(t *testing.T) {
	f := newTestFrame(New(), build(func(b *ILBuilder) {
		b.EmitString(OpDefineLocal, "i")
		b.EmitInt(OpPushInteger, 0)
		b.Emit(OpAssign)
		b.Emit(OpPop)
		top := b.NewLabel()
		b.Mark(top)
		b.EmitString(OpLoadObject, "i")
		b.EmitInt(OpPushInteger, 1)
		b.Emit(OpPlusAssign)
		b.Emit(OpYield)
		b.EmitJump(OpJump, top)
	}))

	if err := f.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for want := Integer(1); want <= 3; want++ {
		if f.ReturnValue != want {
			t.Errorf("ReturnValue = %v, want %v", f.ReturnValue, want)
		}
		if f.StackDepth() != 0 {
			t.Errorf("StackDepth = %d after yield, want 0", f.StackDepth())
		}
		if err := f.Resume(); err != nil {
			t.Fatalf("Resume: %v", err)
		}
	}
	if v, _ := f.Local("i"); v != Integer(4) {
		t.Errorf("i = %v, want 4", v)
	}
}

func TestStackFrame_Arguments(t *testing.T) {
	f := newTestFrame(New(), build(func(b *ILBuilder) {
		b.EmitInt(OpPushArgument, 0)
		b.EmitInt(OpPushArgument, 5)
		b.EmitInt(OpMakeArray, 2)
		b.Emit(OpReturn)
	}), Integer(7))
	if err := f.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got := f.ReturnValue.(*Array).Values()
	if got[0] != Integer(7) || got[1] != Nil {
		t.Errorf("arguments = %v, want [7, nil]", got)
	}
}

func TestStackFrame_Varargs(t *testing.T) {
	m := &ScriptMethod{Name: "v", Params: 1, Vararg: true, Code: build(func(b *ILBuilder) {
		b.Emit(OpLoadVarargs)
		b.Emit(OpReturn)
	})}
	f := NewStackFrame(NewContext(New()), m, Nil, []Value{Integer(1), Integer(2), Integer(3)}, nil)
	if err := f.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := f.ReturnValue.String(); got != "[2, 3]" {
		t.Errorf("varargs = %s, want [2, 3]", got)
	}
}

func TestStackFrame_ShortCircuitShape(t *testing.T) {
	// false && <fault> must not evaluate the right operand.
	f := newTestFrame(New(), build(func(b *ILBuilder) {
		end := b.NewLabel()
		b.EmitBool(OpPushBool, false)
		b.Emit(OpDup)
		b.EmitJump(OpFalseJump, end)
		b.Emit(OpPop)
		b.Emit(OpPushNil)
		b.EmitInt(OpCall, 0)
		b.Mark(end)
		b.Emit(OpReturn)
	}))
	if err := f.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if f.ReturnValue != Boolean(false) {
		t.Errorf("ReturnValue = %v, want false", f.ReturnValue)
	}
}

// ---------------------------------------------------------------------------
// Fault tests
// ---------------------------------------------------------------------------

func TestStackFrame_Faults(t *testing.T) {
	tests := []struct {
		name  string
		emit  func(b *ILBuilder)
		want  error
		op    Opcode
		index int
	}{
		{"call on nil", func(b *ILBuilder) {
			b.EmitString(OpLoadObject, "missing")
			b.EmitInt(OpCall, 0)
		}, ErrCallNil, OpCall, 1},
		{"member on nil", func(b *ILBuilder) {
			b.Emit(OpPushNil)
			b.EmitString(OpLoadMember, "x")
		}, ErrMemberNil, OpLoadMember, 1},
		{"index on nil", func(b *ILBuilder) {
			b.Emit(OpPushNil)
			b.EmitInt(OpPushInteger, 0)
			b.EmitInt(OpIndexerCall, 1)
		}, ErrIndexNil, OpIndexerCall, 2},
		{"undefined coroutine", func(b *ILBuilder) {
			b.EmitString(OpResumeCoroutine, "co")
		}, ErrUndefinedCoroutine, OpResumeCoroutine, 0},
		{"assign to immutable", func(b *ILBuilder) {
			b.EmitString(OpLoadObject, "print")
			b.EmitInt(OpPushInteger, 1)
			b.Emit(OpAssign)
		}, ErrImmutable, OpAssign, 2},
		{"division by zero", func(b *ILBuilder) {
			b.EmitInt(OpPushInteger, 1)
			b.EmitInt(OpPushInteger, 0)
			b.Emit(OpDivide)
		}, ErrOperator, OpDivide, 2},
		{"index out of range", func(b *ILBuilder) {
			b.EmitInt(OpMakeArray, 0)
			b.EmitInt(OpPushInteger, 3)
			b.EmitInt(OpIndexerCall, 1)
		}, ErrIndexRange, OpIndexerCall, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFrame(New(), build(tt.emit))
			err := f.Execute()
			if !errors.Is(err, tt.want) {
				t.Fatalf("Execute error = %v, want %v", err, tt.want)
			}
			var rt *RuntimeError
			if !errors.As(err, &rt) {
				t.Fatalf("error %T is not a *RuntimeError", err)
			}
			if rt.Op != tt.op || rt.Index != tt.index {
				t.Errorf("fault at (%s, %d), want (%s, %d)", rt.Op, rt.Index, tt.op, tt.index)
			}
			if f.State() != FrameCompleted {
				t.Errorf("State = %s after fault, want completed", f.State())
			}
		})
	}
}

func TestStackFrame_UnknownNameBecomesLocal(t *testing.T) {
	f := newTestFrame(New(), build(func(b *ILBuilder) {
		b.EmitString(OpLoadObject, "x")
		b.EmitInt(OpPushInteger, 1)
		b.Emit(OpAssign)
		b.Emit(OpReturn)
	}))
	if err := f.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if v, ok := f.Local("x"); !ok || v != Integer(1) {
		t.Errorf("x = (%v, %v), want (1, true)", v, ok)
	}
	if got := f.Locals(); len(got) != 1 || got[0] != "x" {
		t.Errorf("Locals() = %v, want [x]", got)
	}
}
