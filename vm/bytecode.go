package vm

import (
	"fmt"
	"math"
	"strconv"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single IL instruction kind. The byte value is the tag
// persisted by the image codec and must never be renumbered.
type Opcode byte

// Stack Operations
const (
	OpNop     Opcode = 0x00 // no operation
	OpPop     Opcode = 0x01 // discard top of stack
	OpDup     Opcode = 0x02 // duplicate top of stack (same reference)
	OpAsValue Opcode = 0x03 // replace top with a by-value copy of its payload
)

// Push Constants
const (
	OpPushNil     Opcode = 0x10 // push nil
	OpPushBool    Opcode = 0x11 // push boolean operand
	OpPushInteger Opcode = 0x12 // push int64 operand
	OpPushFloat   Opcode = 0x13 // push float64 operand
	OpPushString  Opcode = 0x14 // push string operand
	OpPushSelf    Opcode = 0x15 // push the bound instance (nil outside methods)
)

// Name Operations
const (
	OpLoadObject   Opcode = 0x20 // resolve name: locals, outer frames, VM
	OpDefineLocal  Opcode = 0x21 // create a fresh local and push its slot
	OpLoadMember   Opcode = 0x22 // pop target, push target.name
	OpLoadVarargs  Opcode = 0x23 // push the variable-arguments array
	OpPushArgument Opcode = 0x24 // push argument by index (nil if missing)
)

// Arithmetic and Bitwise
const (
	OpPlus          Opcode = 0x30
	OpMinus         Opcode = 0x31
	OpMultiply      Opcode = 0x32
	OpDivide        Opcode = 0x33
	OpModular       Opcode = 0x34
	OpAnd           Opcode = 0x35
	OpOr            Opcode = 0x36
	OpXor           Opcode = 0x37
	OpLeftBitShift  Opcode = 0x38
	OpRightBitShift Opcode = 0x39
	OpNilCoalesce   Opcode = 0x3A
)

// Comparisons and Unary
const (
	OpEqual        Opcode = 0x40
	OpNotEqual     Opcode = 0x41
	OpGreater      Opcode = 0x42
	OpLesser       Opcode = 0x43
	OpGreaterEqual Opcode = 0x44
	OpLesserEqual  Opcode = 0x45
	OpNot          Opcode = 0x48
	OpNegative     Opcode = 0x49
	OpBitNot       Opcode = 0x4A
)

// Assignment
const (
	OpAssign              Opcode = 0x50 // pop value, pop slot, store, push value
	OpPlusAssign          Opcode = 0x51
	OpMinusAssign         Opcode = 0x52
	OpMultiplyAssign      Opcode = 0x53
	OpDivideAssign        Opcode = 0x54
	OpModularAssign       Opcode = 0x55
	OpAndAssign           Opcode = 0x56
	OpOrAssign            Opcode = 0x57
	OpXorAssign           Opcode = 0x58
	OpLeftBitShiftAssign  Opcode = 0x59
	OpRightBitShiftAssign Opcode = 0x5A
	OpNilCoalesceAssign   Opcode = 0x5B
)

// Control Flow (operand is an absolute instruction index)
const (
	OpJump      Opcode = 0x60 // unconditional jump
	OpTrueJump  Opcode = 0x61 // pop, jump if truthy
	OpFalseJump Opcode = 0x62 // pop, jump if not truthy
	OpNilJump   Opcode = 0x63 // pop, jump if nil
)

// Calls and Construction
const (
	OpCall        Opcode = 0x70 // pop argc args and callee, push result
	OpIndexerCall Opcode = 0x71 // pop argc args and target, push element slot
	OpMakeArray   Opcode = 0x72 // pop n values, push array
	OpMakeLambda  Opcode = 0x73 // push closure over the named top-level method
)

// Coroutines
const (
	OpStartCoroutine      Opcode = 0x80 // pop argc args and source, bind name
	OpResumeCoroutine     Opcode = 0x81 // push next value (nil when exhausted)
	OpResumeCoroutineInto Opcode = 0x82 // pop slot, store next value, push resumable flag
)

// Returns
const (
	OpReturn Opcode = 0xF0 // pop value, complete the frame
	OpYield  Opcode = 0xF1 // pop value, suspend the frame
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OperandShape describes the operand fields an opcode carries.
type OperandShape byte

const (
	ShapeNone      OperandShape = iota // no operand
	ShapeInt                           // int64
	ShapeFloat                         // float64
	ShapeString                        // length-prefixed string
	ShapeBool                          // one byte
	ShapeNameCount                     // string + int64
)

func (s OperandShape) String() string {
	switch s {
	case ShapeNone:
		return "none"
	case ShapeInt:
		return "int"
	case ShapeFloat:
		return "float"
	case ShapeString:
		return "string"
	case ShapeBool:
		return "bool"
	case ShapeNameCount:
		return "name+count"
	}
	return fmt.Sprintf("Shape(%d)", byte(s))
}

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name        string       // human-readable name
	Shape       OperandShape // operand fields, shared by codec and disassembler
	StackEffect int          // net effect on stack (-1 = variable for count shapes)
}

// opcodeTable maps opcodes to their metadata. It is the single source for
// the image encoder, decoder and disassembler.
var opcodeTable = map[Opcode]OpcodeInfo{
	OpNop:     {"NOP", ShapeNone, 0},
	OpPop:     {"POP", ShapeNone, -1},
	OpDup:     {"DUP", ShapeNone, 1},
	OpAsValue: {"AS_VALUE", ShapeNone, 0},

	OpPushNil:     {"PUSH_NIL", ShapeNone, 1},
	OpPushBool:    {"PUSH_BOOL", ShapeBool, 1},
	OpPushInteger: {"PUSH_INTEGER", ShapeInt, 1},
	OpPushFloat:   {"PUSH_FLOAT", ShapeFloat, 1},
	OpPushString:  {"PUSH_STRING", ShapeString, 1},
	OpPushSelf:    {"PUSH_SELF", ShapeNone, 1},

	OpLoadObject:   {"LOAD_OBJECT", ShapeString, 1},
	OpDefineLocal:  {"DEFINE_LOCAL", ShapeString, 1},
	OpLoadMember:   {"LOAD_MEMBER", ShapeString, 0},
	OpLoadVarargs:  {"LOAD_VARARGS", ShapeNone, 1},
	OpPushArgument: {"PUSH_ARGUMENT", ShapeInt, 1},

	OpPlus:          {"PLUS", ShapeNone, -1},
	OpMinus:         {"MINUS", ShapeNone, -1},
	OpMultiply:      {"MULTIPLY", ShapeNone, -1},
	OpDivide:        {"DIVIDE", ShapeNone, -1},
	OpModular:       {"MODULAR", ShapeNone, -1},
	OpAnd:           {"AND", ShapeNone, -1},
	OpOr:            {"OR", ShapeNone, -1},
	OpXor:           {"XOR", ShapeNone, -1},
	OpLeftBitShift:  {"LEFT_SHIFT", ShapeNone, -1},
	OpRightBitShift: {"RIGHT_SHIFT", ShapeNone, -1},
	OpNilCoalesce:   {"NIL_COALESCE", ShapeNone, -1},

	OpEqual:        {"EQUAL", ShapeNone, -1},
	OpNotEqual:     {"NOT_EQUAL", ShapeNone, -1},
	OpGreater:      {"GREATER", ShapeNone, -1},
	OpLesser:       {"LESSER", ShapeNone, -1},
	OpGreaterEqual: {"GREATER_EQUAL", ShapeNone, -1},
	OpLesserEqual:  {"LESSER_EQUAL", ShapeNone, -1},
	OpNot:          {"NOT", ShapeNone, 0},
	OpNegative:     {"NEGATIVE", ShapeNone, 0},
	OpBitNot:       {"BIT_NOT", ShapeNone, 0},

	OpAssign:              {"ASSIGN", ShapeNone, -1},
	OpPlusAssign:          {"PLUS_ASSIGN", ShapeNone, -1},
	OpMinusAssign:         {"MINUS_ASSIGN", ShapeNone, -1},
	OpMultiplyAssign:      {"MULTIPLY_ASSIGN", ShapeNone, -1},
	OpDivideAssign:        {"DIVIDE_ASSIGN", ShapeNone, -1},
	OpModularAssign:       {"MODULAR_ASSIGN", ShapeNone, -1},
	OpAndAssign:           {"AND_ASSIGN", ShapeNone, -1},
	OpOrAssign:            {"OR_ASSIGN", ShapeNone, -1},
	OpXorAssign:           {"XOR_ASSIGN", ShapeNone, -1},
	OpLeftBitShiftAssign:  {"LEFT_SHIFT_ASSIGN", ShapeNone, -1},
	OpRightBitShiftAssign: {"RIGHT_SHIFT_ASSIGN", ShapeNone, -1},
	OpNilCoalesceAssign:   {"NIL_COALESCE_ASSIGN", ShapeNone, -1},

	OpJump:      {"JUMP", ShapeInt, 0},
	OpTrueJump:  {"TRUE_JUMP", ShapeInt, -1},
	OpFalseJump: {"FALSE_JUMP", ShapeInt, -1},
	OpNilJump:   {"NIL_JUMP", ShapeInt, -1},

	OpCall:        {"CALL", ShapeInt, -1},
	OpIndexerCall: {"INDEXER_CALL", ShapeInt, -1},
	OpMakeArray:   {"MAKE_ARRAY", ShapeInt, -1},
	OpMakeLambda:  {"MAKE_LAMBDA", ShapeString, 1},

	OpStartCoroutine:      {"START_COROUTINE", ShapeNameCount, -1},
	OpResumeCoroutine:     {"RESUME_COROUTINE", ShapeString, 1},
	OpResumeCoroutineInto: {"RESUME_COROUTINE_INTO", ShapeString, 0},

	OpReturn: {"RETURN", ShapeNone, -1},
	OpYield:  {"YIELD", ShapeNone, -1},
}

// compoundBase maps each compound-assignment opcode to its plain operator.
var compoundBase = map[Opcode]Opcode{
	OpPlusAssign:          OpPlus,
	OpMinusAssign:         OpMinus,
	OpMultiplyAssign:      OpMultiply,
	OpDivideAssign:        OpDivide,
	OpModularAssign:       OpModular,
	OpAndAssign:           OpAnd,
	OpOrAssign:            OpOr,
	OpXorAssign:           OpXor,
	OpLeftBitShiftAssign:  OpLeftBitShift,
	OpRightBitShiftAssign: OpRightBitShift,
	OpNilCoalesceAssign:   OpNilCoalesce,
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Valid reports whether op is a known opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// Shape returns the operand shape for an opcode.
func (op Opcode) Shape() OperandShape {
	return op.Info().Shape
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// IsJump reports whether op's integer operand is a jump target.
func (op Opcode) IsJump() bool {
	switch op {
	case OpJump, OpTrueJump, OpFalseJump, OpNilJump:
		return true
	}
	return false
}

// IsCounted reports whether the opcode's int operand is an argument or
// element count.
func (op Opcode) IsCounted() bool {
	switch op {
	case OpCall, OpIndexerCall, OpMakeArray, OpStartCoroutine:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Instruction and Code
// ---------------------------------------------------------------------------

// Instruction is one IL instruction. Only the fields named by the opcode's
// shape are meaningful.
type Instruction struct {
	Op     Opcode
	Int    int64
	Float  float64
	String string
	Bool   bool
}

// Operands renders the meaningful operand fields.
func (in Instruction) Operands() string {
	switch in.Op.Shape() {
	case ShapeInt:
		return strconv.FormatInt(in.Int, 10)
	case ShapeFloat:
		return strconv.FormatFloat(in.Float, 'g', -1, 64)
	case ShapeString:
		return strconv.Quote(in.String)
	case ShapeBool:
		return strconv.FormatBool(in.Bool)
	case ShapeNameCount:
		return fmt.Sprintf("%q %d", in.String, in.Int)
	}
	return ""
}

func (in Instruction) Text() string {
	if ops := in.Operands(); ops != "" {
		return in.Op.Name() + " " + ops
	}
	return in.Op.Name()
}

// Code is a method's instruction array. Jump operands index into it.
type Code []Instruction

// ---------------------------------------------------------------------------
// ILBuilder: Helper for constructing code
// ---------------------------------------------------------------------------

// ILBuilder helps construct instruction sequences with symbolic labels.
type ILBuilder struct {
	code   Code
	labels []*Label
}

// NewILBuilder creates a new builder.
func NewILBuilder() *ILBuilder {
	return &ILBuilder{code: make(Code, 0, 32)}
}

// Len returns the number of instructions emitted so far.
func (b *ILBuilder) Len() int {
	return len(b.code)
}

// Emit appends an instruction with no operands.
func (b *ILBuilder) Emit(op Opcode) {
	b.code = append(b.code, Instruction{Op: op})
}

// EmitInt appends an instruction with an integer operand.
func (b *ILBuilder) EmitInt(op Opcode, v int64) {
	b.code = append(b.code, Instruction{Op: op, Int: v})
}

// EmitFloat appends an instruction with a float operand.
func (b *ILBuilder) EmitFloat(op Opcode, v float64) {
	b.code = append(b.code, Instruction{Op: op, Float: v})
}

// EmitString appends an instruction with a string operand.
func (b *ILBuilder) EmitString(op Opcode, s string) {
	b.code = append(b.code, Instruction{Op: op, String: s})
}

// EmitBool appends an instruction with a boolean operand.
func (b *ILBuilder) EmitBool(op Opcode, v bool) {
	b.code = append(b.code, Instruction{Op: op, Bool: v})
}

// EmitNameCount appends an instruction with a name and a count.
func (b *ILBuilder) EmitNameCount(op Opcode, name string, n int) {
	b.code = append(b.code, Instruction{Op: op, String: name, Int: int64(n)})
}

// ---------------------------------------------------------------------------
// Label management for jumps
// ---------------------------------------------------------------------------

// Label represents a jump target that may not be placed yet.
type Label struct {
	resolved bool
	position int   // target index once resolved
	refs     []int // instruction indices that jump here
}

// NewLabel creates an unresolved label.
func (b *ILBuilder) NewLabel() *Label {
	l := &Label{refs: make([]int, 0, 2)}
	b.labels = append(b.labels, l)
	return l
}

// Mark resolves a label to the next instruction index.
func (b *ILBuilder) Mark(label *Label) {
	if label.resolved {
		panic("label already resolved")
	}
	label.resolved = true
	label.position = len(b.code)

	for _, ref := range label.refs {
		b.code[ref].Int = int64(label.position)
	}
	label.refs = nil
}

// EmitJump emits a jump instruction targeting label.
func (b *ILBuilder) EmitJump(op Opcode, label *Label) {
	if !op.IsJump() {
		panic(fmt.Sprintf("EmitJump: %s is not a jump", op))
	}
	if label.resolved {
		b.EmitInt(op, int64(label.position))
		return
	}
	label.refs = append(label.refs, len(b.code))
	b.EmitInt(op, -1)
}

// Build seals the builder and returns the code. A label that was jumped
// to but never marked is a compiler bug and panics.
func (b *ILBuilder) Build() Code {
	for _, l := range b.labels {
		if !l.resolved && len(l.refs) > 0 {
			panic(fmt.Sprintf("dangling label referenced at %v", l.refs))
		}
	}
	code := b.code
	b.code = nil
	b.labels = nil
	return code
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction renders the instruction at index pc.
func DisassembleInstruction(code Code, pc int) string {
	in := code[pc]
	if in.Op.IsJump() {
		return fmt.Sprintf("%04d  %s -> %04d", pc, in.Op.Name(), in.Int)
	}
	if in.Op == OpPushFloat && !math.IsInf(in.Float, 0) && in.Float == math.Trunc(in.Float) {
		return fmt.Sprintf("%04d  %s %.1f", pc, in.Op.Name(), in.Float)
	}
	if ops := in.Operands(); ops != "" {
		return fmt.Sprintf("%04d  %s %s", pc, in.Op.Name(), ops)
	}
	return fmt.Sprintf("%04d  %s", pc, in.Op.Name())
}

// Disassemble returns a full listing of code, one instruction per line.
func Disassemble(code Code) string {
	var result string
	for pc := range code {
		if result != "" {
			result += "\n"
		}
		result += DisassembleInstruction(code, pc)
	}
	return result
}
