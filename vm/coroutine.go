package vm

// ---------------------------------------------------------------------------
// Coroutine frames
// ---------------------------------------------------------------------------

// Coroutine is a resumable unit. Resume advances it and reports the value
// produced and whether it can be resumed again.
type Coroutine interface {
	Resume() (Value, bool, error)
}

// ScriptCoroutine runs a script method in its own stack frame. The first
// Resume executes from the start; later ones continue after the last yield.
type ScriptCoroutine struct {
	frame   *StackFrame
	started bool
}

// NewScriptCoroutine creates a coroutine over m with an argument snapshot.
func NewScriptCoroutine(ctx *Context, m *ScriptMethod, args []Value) *ScriptCoroutine {
	return &ScriptCoroutine{frame: NewStackFrame(ctx, m, Nil, snapshot(args), nil)}
}

func (c *ScriptCoroutine) Resume() (Value, bool, error) {
	if err := c.frame.ctx.enter(); err != nil {
		return Nil, false, err
	}
	defer c.frame.ctx.leave()

	var err error
	if !c.started {
		c.started = true
		err = c.frame.Execute()
	} else {
		err = c.frame.Resume()
	}
	if err != nil {
		return Nil, false, err
	}
	return c.frame.ReturnValue, c.frame.State() == FrameSuspended, nil
}

// NativeCoroutine re-invokes a host callback with a fixed argument
// snapshot on every Resume.
type NativeCoroutine struct {
	ctx  *Context
	fn   NativeFunc
	self Value
	args []Value
}

// NewNativeCoroutine creates a coroutine over fn with an argument snapshot.
func NewNativeCoroutine(ctx *Context, fn NativeFunc, args []Value) *NativeCoroutine {
	return &NativeCoroutine{ctx: ctx, fn: fn, self: Nil, args: snapshot(args)}
}

func (c *NativeCoroutine) Resume() (Value, bool, error) {
	res, err := c.fn(c.ctx, c.self, c.args)
	if err != nil {
		return Nil, false, err
	}
	if res.Value == nil {
		res.Value = Nil
	}
	return res.Value, res.CanResume, nil
}

// exhaustedCoroutine is the sentinel bound after terminal completion.
type exhaustedCoroutine struct{}

func (exhaustedCoroutine) Resume() (Value, bool, error) { return Nil, false, nil }

// Exhausted replaces a coroutine binding once it has completed. Resuming
// it is a safe no-op.
var Exhausted Coroutine = exhaustedCoroutine{}

// snapshot duplicates args by value.
func snapshot(args []Value) []Value {
	out := make([]Value, len(args))
	for i, a := range args {
		out[i] = a.AsByValue()
	}
	return out
}
