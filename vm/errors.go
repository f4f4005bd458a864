package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Runtime faults
// ---------------------------------------------------------------------------

// Runtime fault kinds. A RuntimeError wraps exactly one of these.
var (
	ErrCallNil            = errors.New("call on nil")
	ErrMemberNil          = errors.New("member access on nil")
	ErrIndexNil           = errors.New("indexer access on nil")
	ErrUndefinedCoroutine = errors.New("undefined coroutine")
	ErrIndexRange         = errors.New("index out of range")
	ErrDuplicateClass     = errors.New("duplicate class name")
	ErrNotCallable        = errors.New("value is not callable")
	ErrImmutable          = errors.New("assignment to immutable reference")
	ErrOperator           = errors.New("unsupported operator")
	ErrNoMember           = errors.New("no such member")
	ErrUndefined          = errors.New("undefined name")
	ErrStackOverflow      = errors.New("stack overflow")
)

// RuntimeError is a fault raised while executing IL. It aborts the current
// execution and propagates to the caller of Execute, Resume or Call.
type RuntimeError struct {
	Op      Opcode // instruction that faulted
	Index   int    // instruction index within the method
	Method  string // method name, if known
	Message string
	Err     error // one of the Err* kinds above
}

func (e *RuntimeError) Error() string {
	where := fmt.Sprintf("%04d %s", e.Index, e.Op.Name())
	if e.Method != "" {
		where = e.Method + " " + where
	}
	if e.Message == "" {
		return fmt.Sprintf("runtime error at %s: %v", where, e.Err)
	}
	return fmt.Sprintf("runtime error at %s: %v: %s", where, e.Err, e.Message)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// faultf builds an error of the given kind for value-level failures.
// The stack frame attaches opcode and position when it propagates.
func faultf(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}
