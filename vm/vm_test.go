package vm

import (
	"bytes"
	"errors"
	"sort"
	"testing"
)

func TestVM_ResolveOrder(t *testing.T) {
	v := New()
	v.DefineMethod(&ScriptMethod{Name: "f"})
	if _, ok := v.Resolve("f").Value.(*Function); !ok {
		t.Errorf("f should resolve to a method, got %v", v.Resolve("f").Value)
	}
	v.SetGlobal("f", Integer(1))
	if got := v.Resolve("f").Value; got != Integer(1) {
		t.Errorf("global should shadow method, got %v", got)
	}
	if v.Resolve("nothing") != Undefined {
		t.Error("unknown name should resolve to Undefined")
	}
}

func TestVM_DuplicateClass(t *testing.T) {
	v := New()
	if err := v.DefineClass(NewClass("A")); err != nil {
		t.Fatalf("DefineClass: %v", err)
	}
	if err := v.DefineClass(NewClass("A")); !errors.Is(err, ErrDuplicateClass) {
		t.Errorf("second DefineClass = %v, want ErrDuplicateClass", err)
	}
}

func TestVM_Names(t *testing.T) {
	v := New()
	v.SetGlobal("zeta", Nil)
	names := v.Names()
	if !sort.StringsAreSorted(names) {
		t.Errorf("Names not sorted: %v", names)
	}
	found := false
	for _, n := range names {
		if n == "zeta" {
			found = true
		}
	}
	if !found {
		t.Errorf("Names = %v, missing zeta", names)
	}
}

func TestVM_RunUndefined(t *testing.T) {
	if _, err := New().Run("main"); !errors.Is(err, ErrUndefined) {
		t.Errorf("Run(main) = %v, want ErrUndefined", err)
	}
}

func TestVM_NewFrameRequiresScriptMethod(t *testing.T) {
	if _, err := New().NewFrame("print"); !errors.Is(err, ErrUndefined) {
		t.Errorf("NewFrame(print) = %v, want ErrUndefined", err)
	}
}

// ---------------------------------------------------------------------------
// Builtins
// ---------------------------------------------------------------------------

func TestBuiltin_Println(t *testing.T) {
	v := New()
	var out bytes.Buffer
	v.Out = &out
	if _, err := v.Call("println", Integer(1), String("a"), Nil); err != nil {
		t.Fatalf("println: %v", err)
	}
	if got := out.String(); got != "1 a nil\n" {
		t.Errorf("output = %q, want %q", got, "1 a nil\n")
	}
}

func TestBuiltin_Conversions(t *testing.T) {
	tests := []struct {
		fn   string
		arg  Value
		want Value
	}{
		{"int", String("0x10"), Integer(16)},
		{"int", Float(2.9), Integer(2)},
		{"int", Boolean(true), Integer(1)},
		{"float", Integer(3), Float(3)},
		{"float", String("1.5"), Float(1.5)},
		{"string", Integer(42), String("42")},
		{"len", String("abc"), Integer(3)},
		{"len", NewArray(4), Integer(4)},
	}
	v := New()
	for _, tt := range tests {
		res, err := v.Call(tt.fn, tt.arg)
		if err != nil {
			t.Errorf("%s(%v): %v", tt.fn, tt.arg, err)
			continue
		}
		if res.Value != tt.want {
			t.Errorf("%s(%v) = %v, want %v", tt.fn, tt.arg, res.Value, tt.want)
		}
	}
}

func TestBuiltin_ConversionErrors(t *testing.T) {
	v := New()
	if _, err := v.Call("int", String("abc")); !errors.Is(err, ErrOperator) {
		t.Errorf("int(abc) = %v, want ErrOperator", err)
	}
	if _, err := v.Call("len", Integer(1)); !errors.Is(err, ErrNoMember) {
		t.Errorf("len(1) = %v, want ErrNoMember", err)
	}
}

func TestBuiltin_Array(t *testing.T) {
	res, err := New().Call("array", Integer(2), Integer(3))
	if err != nil {
		t.Fatalf("array: %v", err)
	}
	a := res.Value.(*Array)
	if a.Len() != 2 || a.At(0).(*Array).Len() != 3 {
		t.Errorf("array(2, 3) = %v", a)
	}
}

// ---------------------------------------------------------------------------
// Classes and instances
// ---------------------------------------------------------------------------

func TestClass_NewRunsInitializersAndConstructor(t *testing.T) {
	c := NewClass("Point")
	c.Fields = []*Field{
		{Name: "x", Init: &ScriptMethod{Name: "Point.x", Code: build(func(b *ILBuilder) {
			b.EmitInt(OpPushInteger, 7)
			b.Emit(OpReturn)
		})}},
		{Name: "y"},
	}
	c.Methods = []Method{&ScriptMethod{Name: "new", Params: 1, Code: build(func(b *ILBuilder) {
		b.Emit(OpPushSelf)
		b.EmitString(OpLoadMember, "y")
		b.EmitInt(OpPushArgument, 0)
		b.Emit(OpAssign)
		b.Emit(OpReturn)
	})}}

	res, err := c.Call(NewContext(New()), []Value{Integer(3)})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	inst := res.Value.(*Instance)
	if x, _ := inst.Field("x"); x != Integer(7) {
		t.Errorf("x = %v, want 7", x)
	}
	if y, _ := inst.Field("y"); y != Integer(3) {
		t.Errorf("y = %v, want 3", y)
	}
}

func TestClass_Members(t *testing.T) {
	outer := NewClass("Outer")
	if err := outer.AddInnerClass(NewClass("Inner")); err != nil {
		t.Fatalf("AddInnerClass: %v", err)
	}
	if err := outer.AddInnerClass(NewClass("Inner")); !errors.Is(err, ErrDuplicateClass) {
		t.Errorf("duplicate inner class = %v, want ErrDuplicateClass", err)
	}
	ref, err := outer.GetMember("Inner")
	if err != nil {
		t.Fatalf("GetMember(Inner): %v", err)
	}
	if ref.Value.(*Class).Name != "Inner" {
		t.Errorf("Inner = %v", ref.Value)
	}
	if _, err := outer.GetMember("missing"); !errors.Is(err, ErrNoMember) {
		t.Errorf("missing member = %v, want ErrNoMember", err)
	}
}

func TestVM_CallDepthLimit(t *testing.T) {
	// f calls itself forever
	b := NewILBuilder()
	b.EmitString(OpLoadObject, "f")
	b.EmitInt(OpCall, 0)
	b.Emit(OpReturn)
	code := b.Build()

	for _, limit := range []int{0, 64} {
		v := New()
		v.MaxCallDepth = limit
		v.DefineMethod(&ScriptMethod{Name: "f", Code: code})

		_, err := v.Run("f")
		if !errors.Is(err, ErrStackOverflow) {
			t.Fatalf("limit %d: err = %v, want ErrStackOverflow", limit, err)
		}
		var rt *RuntimeError
		if !errors.As(err, &rt) || rt.Method != "f" || rt.Op != OpCall {
			t.Errorf("limit %d: err = %#v, want RuntimeError at CALL in f", limit, err)
		}
	}
}

func TestContext_Depth(t *testing.T) {
	ctx := NewContext(&VM{MaxCallDepth: 2})
	for i := 0; i < 2; i++ {
		if err := ctx.enter(); err != nil {
			t.Fatalf("enter #%d: %v", i+1, err)
		}
	}
	if err := ctx.enter(); !errors.Is(err, ErrStackOverflow) {
		t.Errorf("third enter = %v, want ErrStackOverflow", err)
	}
	if ctx.Depth() != 2 {
		t.Errorf("Depth() = %d, want 2", ctx.Depth())
	}
	ctx.leave()
	if err := ctx.enter(); err != nil {
		t.Errorf("enter after leave: %v", err)
	}
}
