package vm

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Opcode metadata tests
// ---------------------------------------------------------------------------

func TestOpcodeInfo(t *testing.T) {
	tests := []struct {
		op    Opcode
		name  string
		shape OperandShape
	}{
		{OpNop, "NOP", ShapeNone},
		{OpPop, "POP", ShapeNone},
		{OpAsValue, "AS_VALUE", ShapeNone},
		{OpPushBool, "PUSH_BOOL", ShapeBool},
		{OpPushInteger, "PUSH_INTEGER", ShapeInt},
		{OpPushFloat, "PUSH_FLOAT", ShapeFloat},
		{OpPushString, "PUSH_STRING", ShapeString},
		{OpLoadObject, "LOAD_OBJECT", ShapeString},
		{OpPushArgument, "PUSH_ARGUMENT", ShapeInt},
		{OpNilCoalesceAssign, "NIL_COALESCE_ASSIGN", ShapeNone},
		{OpFalseJump, "FALSE_JUMP", ShapeInt},
		{OpStartCoroutine, "START_COROUTINE", ShapeNameCount},
		{OpResumeCoroutineInto, "RESUME_COROUTINE_INTO", ShapeString},
		{OpYield, "YIELD", ShapeNone},
	}

	for _, tt := range tests {
		info := tt.op.Info()
		if info.Name != tt.name {
			t.Errorf("%s: Name = %q, want %q", tt.op, info.Name, tt.name)
		}
		if info.Shape != tt.shape {
			t.Errorf("%s: Shape = %s, want %s", tt.op, info.Shape, tt.shape)
		}
	}
}

func TestUnknownOpcode(t *testing.T) {
	op := Opcode(0xEE)
	if op.Valid() {
		t.Error("0xEE should not be a valid opcode")
	}
	if !strings.HasPrefix(op.Name(), "UNKNOWN_") {
		t.Errorf("unknown opcode should have UNKNOWN_ prefix, got %q", op.Name())
	}
}

func TestCompoundOpcodesHaveBase(t *testing.T) {
	for op := OpPlusAssign; op <= OpNilCoalesceAssign; op++ {
		base, ok := compoundBase[op]
		if !ok {
			t.Errorf("%s has no base operator", op)
			continue
		}
		if base.IsJump() || !base.Valid() {
			t.Errorf("%s: base %s is not a plain operator", op, base)
		}
	}
}

func TestIsJump(t *testing.T) {
	for _, op := range []Opcode{OpJump, OpTrueJump, OpFalseJump, OpNilJump} {
		if !op.IsJump() {
			t.Errorf("%s.IsJump() = false, want true", op)
		}
	}
	if OpCall.IsJump() {
		t.Error("CALL is not a jump")
	}
}

// ---------------------------------------------------------------------------
// ILBuilder tests
// ---------------------------------------------------------------------------

func TestILBuilder_ForwardLabel(t *testing.T) {
	b := NewILBuilder()
	end := b.NewLabel()
	b.EmitBool(OpPushBool, true)
	b.EmitJump(OpFalseJump, end)
	b.EmitInt(OpPushInteger, 1)
	b.Emit(OpPop)
	b.Mark(end)
	b.Emit(OpPushNil)
	code := b.Build()

	if code[1].Int != 4 {
		t.Errorf("forward jump target = %d, want 4", code[1].Int)
	}
}

func TestILBuilder_BackwardLabel(t *testing.T) {
	b := NewILBuilder()
	top := b.NewLabel()
	b.Mark(top)
	b.Emit(OpNop)
	b.EmitJump(OpJump, top)
	code := b.Build()

	if code[1].Int != 0 {
		t.Errorf("backward jump target = %d, want 0", code[1].Int)
	}
}

func TestILBuilder_DanglingLabelPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Build should panic on a dangling label")
		}
	}()
	b := NewILBuilder()
	b.EmitJump(OpJump, b.NewLabel())
	b.Build()
}

func TestILBuilder_UnusedLabelIsFine(t *testing.T) {
	b := NewILBuilder()
	b.NewLabel()
	b.Emit(OpNop)
	if got := len(b.Build()); got != 1 {
		t.Errorf("len(code) = %d, want 1", got)
	}
}

func TestILBuilder_EmitJumpRejectsNonJump(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("EmitJump should panic for a non-jump opcode")
		}
	}()
	b := NewILBuilder()
	b.EmitJump(OpPop, b.NewLabel())
}

// ---------------------------------------------------------------------------
// Disassembly tests
// ---------------------------------------------------------------------------

func TestDisassemble(t *testing.T) {
	b := NewILBuilder()
	end := b.NewLabel()
	b.EmitString(OpDefineLocal, "x")
	b.EmitInt(OpPushInteger, 42)
	b.Emit(OpAssign)
	b.EmitJump(OpJump, end)
	b.Mark(end)
	b.EmitFloat(OpPushFloat, 2)
	b.EmitNameCount(OpStartCoroutine, "co", 1)
	b.Emit(OpReturn)

	want := strings.Join([]string{
		`0000  DEFINE_LOCAL "x"`,
		`0001  PUSH_INTEGER 42`,
		`0002  ASSIGN`,
		`0003  JUMP -> 0004`,
		`0004  PUSH_FLOAT 2.0`,
		`0005  START_COROUTINE "co" 1`,
		`0006  RETURN`,
	}, "\n")
	if got := Disassemble(b.Build()); got != want {
		t.Errorf("Disassemble =\n%s\nwant\n%s", got, want)
	}
}

func TestInstructionText(t *testing.T) {
	in := Instruction{Op: OpPushBool, Bool: true}
	if got := in.Text(); got != "PUSH_BOOL true" {
		t.Errorf("Text() = %q, want %q", got, "PUSH_BOOL true")
	}
	if got := (Instruction{Op: OpDup}).Text(); got != "DUP" {
		t.Errorf("Text() = %q, want %q", got, "DUP")
	}
}
