package vm

import (
	"errors"
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// StackFrame: resumable IL interpreter for one call
// ---------------------------------------------------------------------------

// FrameState is the lifecycle state of a StackFrame.
type FrameState int

const (
	FrameCreated FrameState = iota
	FrameRunning
	FrameSuspended
	FrameCompleted
)

func (s FrameState) String() string {
	switch s {
	case FrameCreated:
		return "created"
	case FrameRunning:
		return "running"
	case FrameSuspended:
		return "suspended"
	case FrameCompleted:
		return "completed"
	}
	return fmt.Sprintf("FrameState(%d)", int(s))
}

// StackFrame executes one method's code against an operand stack of
// References and a locals table. Its suspended state is exactly the
// program counter, the operand stack and the locals, so Resume simply
// re-enters the dispatch loop.
type StackFrame struct {
	ctx        *Context
	method     *ScriptMethod
	code       Code
	stack      []*Reference
	locals     map[string]*Reference
	args       []Value
	varargs    []Value
	self       Value
	outer      *StackFrame // lexically enclosing frame for lambdas
	coroutines map[string]Coroutine
	pc         int
	state      FrameState

	// ReturnValue is the value of the last return or yield.
	ReturnValue Value
}

// NewStackFrame creates a frame for m. Arguments beyond m's parameter count
// become the variable arguments when m is vararg.
func NewStackFrame(ctx *Context, m *ScriptMethod, self Value, args []Value, outer *StackFrame) *StackFrame {
	if self == nil {
		self = Nil
	}
	f := &StackFrame{
		ctx:         ctx,
		method:      m,
		code:        m.Code,
		stack:       make([]*Reference, 0, 16),
		locals:      make(map[string]*Reference),
		args:        args,
		self:        self,
		outer:       outer,
		coroutines:  make(map[string]Coroutine),
		ReturnValue: Nil,
	}
	if m.Vararg && len(args) > m.Params {
		f.args = args[:m.Params]
		f.varargs = args[m.Params:]
	}
	ctx.Log.Debugf("frame %s created with %d args", m.Name, len(args))
	return f
}

// State returns the frame's lifecycle state.
func (f *StackFrame) State() FrameState {
	return f.state
}

// PC returns the program counter.
func (f *StackFrame) PC() int {
	return f.pc
}

// StackDepth returns the number of operands on the stack.
func (f *StackFrame) StackDepth() int {
	return len(f.stack)
}

// Local returns the value of a local variable.
func (f *StackFrame) Local(name string) (Value, bool) {
	r, ok := f.locals[name]
	if !ok {
		return nil, false
	}
	return r.Value, true
}

// Locals returns the names of this frame's locals, sorted.
func (f *StackFrame) Locals() []string {
	names := make([]string, 0, len(f.locals))
	for name := range f.locals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetLocal defines or overwrites a local variable.
func (f *StackFrame) SetLocal(name string, v Value) {
	f.locals[name] = NewReference(v)
}

// Execute resets the program counter and runs until the first yield,
// return, or the end of the code.
func (f *StackFrame) Execute() error {
	f.pc = 0
	f.stack = f.stack[:0]
	return f.run()
}

// Resume continues from the preserved counter, stack and locals. Resuming a
// completed frame does nothing.
func (f *StackFrame) Resume() error {
	if f.state == FrameCompleted {
		return nil
	}
	return f.run()
}

// ---------------------------------------------------------------------------
// Stack helpers
// ---------------------------------------------------------------------------

func (f *StackFrame) push(r *Reference) {
	f.stack = append(f.stack, r)
}

func (f *StackFrame) pushValue(v Value) {
	f.stack = append(f.stack, NewImmutableReference(v))
}

func (f *StackFrame) pop() *Reference {
	n := len(f.stack)
	if n == 0 {
		panic(fmt.Sprintf("%s: operand stack underflow at %04d", f.method.Name, f.pc))
	}
	r := f.stack[n-1]
	f.stack[n-1] = nil
	f.stack = f.stack[:n-1]
	return r
}

func (f *StackFrame) top() *Reference {
	if len(f.stack) == 0 {
		panic(fmt.Sprintf("%s: operand stack underflow at %04d", f.method.Name, f.pc))
	}
	return f.stack[len(f.stack)-1]
}

// popArgs pops n operands and returns their by-value copies in
// left-to-right order.
func (f *StackFrame) popArgs(n int) []Value {
	args := make([]Value, n)
	for i := n - 1; i >= 0; i-- {
		args[i] = f.pop().Value.AsByValue()
	}
	return args
}

// ---------------------------------------------------------------------------
// Name resolution
// ---------------------------------------------------------------------------

// lookup resolves a bare name: locals of this frame and its enclosing
// frames, then the VM (globals, top-level methods, classes). An unknown
// name becomes a fresh Nil local.
func (f *StackFrame) lookup(name string) *Reference {
	for fr := f; fr != nil; fr = fr.outer {
		if r, ok := fr.locals[name]; ok {
			return r
		}
	}
	if f.ctx.VM != nil {
		if r := f.ctx.VM.Resolve(name); r != Undefined {
			return r
		}
	}
	r := NewReference(Nil)
	f.locals[name] = r
	return r
}

// findCoroutine locates the frame holding a coroutine binding.
func (f *StackFrame) findCoroutine(name string) (*StackFrame, Coroutine) {
	for fr := f; fr != nil; fr = fr.outer {
		if co, ok := fr.coroutines[name]; ok {
			return fr, co
		}
	}
	return nil, nil
}

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

func (f *StackFrame) complete(v Value) {
	f.ReturnValue = v
	f.state = FrameCompleted
}

// fault stops the frame and wraps err with the faulting instruction.
func (f *StackFrame) fault(in Instruction, err error) error {
	f.state = FrameCompleted
	var rt *RuntimeError
	if errors.As(err, &rt) {
		return err
	}
	return &RuntimeError{Op: in.Op, Index: f.pc, Method: f.method.Name, Err: err}
}

func (f *StackFrame) run() error {
	f.state = FrameRunning

	for f.pc < len(f.code) {
		in := f.code[f.pc]

		switch in.Op {
		case OpNop:

		case OpPop:
			f.pop()

		case OpDup:
			f.push(f.top())

		case OpAsValue:
			r := f.pop()
			f.pushValue(r.Value.AsByValue())

		case OpPushNil:
			f.pushValue(Nil)

		case OpPushBool:
			f.pushValue(Boolean(in.Bool))

		case OpPushInteger:
			f.pushValue(Integer(in.Int))

		case OpPushFloat:
			f.pushValue(Float(in.Float))

		case OpPushString:
			f.pushValue(String(in.String))

		case OpPushSelf:
			f.pushValue(f.self)

		case OpLoadObject:
			f.push(f.lookup(in.String))

		case OpDefineLocal:
			r := NewReference(Nil)
			f.locals[in.String] = r
			f.push(r)

		case OpLoadMember:
			target := f.pop().Value
			if target.Kind() == KindNil {
				return f.fault(in, faultf(ErrMemberNil, "%q", in.String))
			}
			r, err := target.GetMember(in.String)
			if err != nil {
				return f.fault(in, err)
			}
			f.push(r)

		case OpLoadVarargs:
			f.pushValue(NewArrayFrom(f.varargs))

		case OpPushArgument:
			i := int(in.Int)
			if i >= 0 && i < len(f.args) {
				f.pushValue(f.args[i])
			} else {
				f.pushValue(Nil)
			}

		case OpPlus, OpMinus, OpMultiply, OpDivide, OpModular,
			OpAnd, OpOr, OpXor, OpLeftBitShift, OpRightBitShift, OpNilCoalesce,
			OpEqual, OpNotEqual, OpGreater, OpLesser, OpGreaterEqual, OpLesserEqual:
			right := f.pop().Value
			left := f.pop().Value
			v, err := Operate(in.Op, left, right)
			if err != nil {
				return f.fault(in, err)
			}
			f.pushValue(v)

		case OpNot, OpNegative, OpBitNot:
			operand := f.pop().Value
			v, err := Operate(in.Op, operand, nil)
			if err != nil {
				return f.fault(in, err)
			}
			f.pushValue(v)

		case OpAssign:
			v := f.pop().Value
			target := f.pop()
			if err := target.Set(v.AsByValue()); err != nil {
				return f.fault(in, err)
			}
			f.pushValue(v)

		case OpPlusAssign, OpMinusAssign, OpMultiplyAssign, OpDivideAssign,
			OpModularAssign, OpAndAssign, OpOrAssign, OpXorAssign,
			OpLeftBitShiftAssign, OpRightBitShiftAssign, OpNilCoalesceAssign:
			v := f.pop().Value
			target := f.pop()
			res, err := Operate(compoundBase[in.Op], target.Value, v)
			if err != nil {
				return f.fault(in, err)
			}
			if err := target.Set(res.AsByValue()); err != nil {
				return f.fault(in, err)
			}
			f.pushValue(res)

		case OpJump:
			f.pc = int(in.Int)
			continue

		case OpTrueJump, OpFalseJump, OpNilJump:
			cond := f.pop().Value
			var taken bool
			switch in.Op {
			case OpTrueJump:
				taken = Truthy(cond)
			case OpFalseJump:
				taken = !Truthy(cond)
			default:
				taken = cond.Kind() == KindNil
			}
			if taken {
				f.pc = int(in.Int)
				continue
			}

		case OpCall:
			args := f.popArgs(int(in.Int))
			callee := f.pop().Value
			if callee.Kind() == KindNil {
				return f.fault(in, ErrCallNil)
			}
			res, err := callee.Call(f.ctx, args)
			if err != nil {
				return f.fault(in, err)
			}
			f.pushValue(res.Value)

		case OpIndexerCall:
			args := f.popArgs(int(in.Int))
			target := f.pop().Value
			if target.Kind() == KindNil {
				return f.fault(in, ErrIndexNil)
			}
			r, err := target.GetIndexer(args)
			if err != nil {
				return f.fault(in, err)
			}
			f.push(r)

		case OpMakeArray:
			f.pushValue(NewArrayFrom(f.popArgs(int(in.Int))))

		case OpMakeLambda:
			m := f.ctx.VM.Method(in.String)
			if m == nil {
				return f.fault(in, faultf(ErrUndefined, "lambda body %s", in.String))
			}
			f.pushValue(&Function{Method: m, Self: f.self, Outer: f})

		case OpStartCoroutine:
			args := f.popArgs(int(in.Int))
			source := f.pop().Value
			fn, ok := source.(*Function)
			if !ok {
				return f.fault(in, faultf(ErrNotCallable, "coroutine source is %s", source.Kind()))
			}
			f.coroutines[in.String] = fn.StartCoroutine(f.ctx, args)

		case OpResumeCoroutine:
			owner, co := f.findCoroutine(in.String)
			if co == nil {
				return f.fault(in, faultf(ErrUndefinedCoroutine, "%s", in.String))
			}
			if co == Exhausted {
				f.pushValue(Nil)
				break
			}
			v, more, err := co.Resume()
			if err != nil {
				return f.fault(in, err)
			}
			if !more {
				f.exhaust(owner, in.String)
			}
			f.pushValue(v)

		case OpResumeCoroutineInto:
			target := f.pop()
			owner, co := f.findCoroutine(in.String)
			if co == nil {
				return f.fault(in, faultf(ErrUndefinedCoroutine, "%s", in.String))
			}
			if co == Exhausted {
				f.pushValue(Boolean(false))
				break
			}
			v, more, err := co.Resume()
			if err != nil {
				return f.fault(in, err)
			}
			if err := target.Set(v.AsByValue()); err != nil {
				return f.fault(in, err)
			}
			if !more {
				f.exhaust(owner, in.String)
			}
			f.pushValue(Boolean(more))

		case OpReturn:
			f.complete(f.pop().Value)
			return nil

		case OpYield:
			f.ReturnValue = f.pop().Value
			f.pc++
			f.state = FrameSuspended
			f.ctx.Log.Debugf("frame %s suspended at %04d", f.method.Name, f.pc)
			return nil

		default:
			panic(fmt.Sprintf("%s: unknown opcode %s at %04d", f.method.Name, in.Op, f.pc))
		}

		f.pc++
	}

	f.complete(Nil)
	return nil
}

func (f *StackFrame) exhaust(owner *StackFrame, name string) {
	owner.coroutines[name] = Exhausted
	f.ctx.Log.Debugf("coroutine %s exhausted", name)
}
