package vm

import (
	"testing"
)

// counter returns a stateful native that yields 1..n, then completes.
func counter(n int, calls *int) NativeFunc {
	i := 0
	return func(ctx *Context, self Value, args []Value) (Result, error) {
		*calls++
		i++
		return Result{Value: Integer(i), CanResume: i < n}, nil
	}
}

func TestNativeCoroutine_Exhaustion(t *testing.T) {
	v := New()
	calls := 0
	v.RegisterNative("count", 0, false, counter(3, &calls))

	f := newTestFrame(v, build(func(b *ILBuilder) {
		b.EmitString(OpLoadObject, "count")
		b.EmitNameCount(OpStartCoroutine, "c", 0)
		for i := 0; i < 5; i++ {
			b.EmitString(OpResumeCoroutine, "c")
		}
		b.EmitInt(OpMakeArray, 5)
		b.Emit(OpReturn)
	}))
	if err := f.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := f.ReturnValue.String(); got != "[1, 2, 3, nil, nil]" {
		t.Errorf("resumes = %s, want [1, 2, 3, nil, nil]", got)
	}
	if calls != 3 {
		t.Errorf("callback ran %d times, want 3", calls)
	}
}

func TestScriptCoroutine_YieldOnceThenReturn(t *testing.T) {
	v := New()
	ticks := 0
	v.RegisterNative("tick", 0, false, func(ctx *Context, self Value, args []Value) (Result, error) {
		ticks++
		return Result{Value: Nil}, nil
	})
	v.DefineMethod(&ScriptMethod{Name: "body", Code: build(func(b *ILBuilder) {
		b.EmitString(OpLoadObject, "tick")
		b.EmitInt(OpCall, 0)
		b.Emit(OpPop)
		b.EmitInt(OpPushInteger, 10)
		b.Emit(OpYield)
		b.EmitInt(OpPushInteger, 20)
		b.Emit(OpReturn)
	})})

	f := newTestFrame(v, build(func(b *ILBuilder) {
		b.EmitString(OpLoadObject, "body")
		b.EmitNameCount(OpStartCoroutine, "c", 0)
		b.EmitString(OpResumeCoroutine, "c")
		b.EmitString(OpResumeCoroutine, "c")
		b.EmitString(OpResumeCoroutine, "c")
		b.EmitInt(OpMakeArray, 3)
		b.Emit(OpReturn)
	}))
	if err := f.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := f.ReturnValue.String(); got != "[10, 20, nil]" {
		t.Errorf("resumes = %s, want [10, 20, nil]", got)
	}
	if ticks != 1 {
		t.Errorf("body entered %d times, want 1", ticks)
	}
}

func TestResumeCoroutineInto(t *testing.T) {
	v := New()
	calls := 0
	v.RegisterNative("count", 0, false, counter(2, &calls))

	f := newTestFrame(v, build(func(b *ILBuilder) {
		b.EmitString(OpDefineLocal, "x")
		b.Emit(OpPop)
		b.EmitString(OpLoadObject, "count")
		b.EmitNameCount(OpStartCoroutine, "c", 0)
		for i := 0; i < 3; i++ {
			b.EmitString(OpLoadObject, "x")
			b.EmitString(OpResumeCoroutineInto, "c")
		}
		b.EmitString(OpLoadObject, "x")
		b.EmitInt(OpMakeArray, 4)
		b.Emit(OpReturn)
	}))
	if err := f.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// The third resume finds the binding exhausted and leaves x alone.
	if got := f.ReturnValue.String(); got != "[true, false, false, 2]" {
		t.Errorf("resumes = %s, want [true, false, false, 2]", got)
	}
}

func TestScriptCoroutine_Direct(t *testing.T) {
	m := &ScriptMethod{Name: "gen", Params: 1, Code: build(func(b *ILBuilder) {
		b.EmitInt(OpPushArgument, 0)
		b.Emit(OpYield)
		b.EmitInt(OpPushArgument, 0)
		b.EmitInt(OpPushInteger, 1)
		b.Emit(OpPlus)
		b.Emit(OpReturn)
	})}
	co := NewScriptCoroutine(NewContext(New()), m, []Value{Integer(5)})

	v, more, err := co.Resume()
	if err != nil || v != Integer(5) || !more {
		t.Errorf("first Resume = (%v, %v, %v), want (5, true, nil)", v, more, err)
	}
	v, more, err = co.Resume()
	if err != nil || v != Integer(6) || more {
		t.Errorf("second Resume = (%v, %v, %v), want (6, false, nil)", v, more, err)
	}
}

func TestExhaustedIsNoop(t *testing.T) {
	v, more, err := Exhausted.Resume()
	if v != Nil || more || err != nil {
		t.Errorf("Exhausted.Resume = (%v, %v, %v), want (nil, false, nil)", v, more, err)
	}
}

func TestStartCoroutine_NotAFunction(t *testing.T) {
	f := newTestFrame(New(), build(func(b *ILBuilder) {
		b.EmitInt(OpPushInteger, 1)
		b.EmitNameCount(OpStartCoroutine, "c", 0)
	}))
	if err := f.Execute(); err == nil {
		t.Error("starting a coroutine over an Integer should fault")
	}
}
