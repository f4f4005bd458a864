package vm

import (
	"io"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("kecaknoah.vm")

// Context is the calling context handed to every frame and native
// function of one execution. Its ID tags log lines.
type Context struct {
	ID  uuid.UUID
	VM  *VM
	Log commonlog.Logger

	depth int // script frames currently executing
}

// NewContext creates a context bound to vm.
func NewContext(vm *VM) *Context {
	id := uuid.New()
	return &Context{
		ID:  id,
		VM:  vm,
		Log: commonlog.NewKeyValueLogger(log, "context", id.String()),
	}
}

// Depth returns the number of script frames currently executing.
func (c *Context) Depth() int {
	return c.depth
}

// enter records a nested script frame execution. It fails with
// ErrStackOverflow once the VM's call depth limit is reached.
func (c *Context) enter() error {
	limit := DefaultMaxCallDepth
	if c.VM != nil && c.VM.MaxCallDepth > 0 {
		limit = c.VM.MaxCallDepth
	}
	if c.depth >= limit {
		return faultf(ErrStackOverflow, "call depth exceeds %d", limit)
	}
	c.depth++
	return nil
}

func (c *Context) leave() {
	c.depth--
}

// Out returns the writer used by print builtins.
func (c *Context) Out() io.Writer {
	return c.VM.Out
}
