package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Instance: an object created from a Class
// ---------------------------------------------------------------------------

// Instance is a class instance with its own field slots. Instances are
// reference-like: duplication shares identity.
type Instance struct {
	Class  *Class
	fields map[string]*Reference
}

// Field returns the current value of a field and whether it exists.
func (o *Instance) Field(name string) (Value, bool) {
	ref, ok := o.fields[name]
	if !ok {
		return nil, false
	}
	return ref.Value, true
}

func (*Instance) Kind() Kind { return KindInstance }

func (o *Instance) ExpressionOp(op Opcode, other Value) (Value, error) {
	return nil, unsupportedOp(o, op, other)
}

// GetMember returns a field slot, or an instance method bound to o.
func (o *Instance) GetMember(name string) (*Reference, error) {
	if ref, ok := o.fields[name]; ok {
		return ref, nil
	}
	if m := o.Class.InstanceMethod(name); m != nil {
		return NewImmutableReference(&Function{Method: m, Self: o}), nil
	}
	return nil, noMember(o, name)
}

func (o *Instance) GetIndexer(args []Value) (*Reference, error) {
	return nil, noIndexer(o)
}

func (o *Instance) Call(ctx *Context, args []Value) (Result, error) {
	return Result{}, notCallable(o)
}

func (o *Instance) AsByValue() Value { return o }

func (o *Instance) Equal(other Value) bool {
	x, ok := other.(*Instance)
	return ok && x == o
}

func (o *Instance) Hash() uint64 { return o.Class.Hash() }

func (o *Instance) String() string {
	parts := make([]string, 0, len(o.Class.Fields))
	for _, f := range o.Class.Fields {
		parts = append(parts, fmt.Sprintf("%s=%s", f.Name, o.fields[f.Name].Value))
	}
	return o.Class.Name + "{" + strings.Join(parts, ", ") + "}"
}

// ---------------------------------------------------------------------------
// HostObject: a host value exposed to scripts
// ---------------------------------------------------------------------------

// HostObject wraps a Go value with named native members. Members are
// called with the HostObject bound as self.
type HostObject struct {
	Name    string
	Data    interface{}
	Members map[string]*NativeMethod
}

func (*HostObject) Kind() Kind { return KindHost }

func (h *HostObject) ExpressionOp(op Opcode, other Value) (Value, error) {
	return nil, unsupportedOp(h, op, other)
}

func (h *HostObject) GetMember(name string) (*Reference, error) {
	if m, ok := h.Members[name]; ok {
		return NewImmutableReference(&Function{Method: m, Self: h}), nil
	}
	return nil, noMember(h, name)
}

func (h *HostObject) GetIndexer(args []Value) (*Reference, error) {
	return nil, noIndexer(h)
}

func (h *HostObject) Call(ctx *Context, args []Value) (Result, error) {
	return Result{}, notCallable(h)
}

func (h *HostObject) AsByValue() Value { return h }

func (h *HostObject) Equal(other Value) bool {
	x, ok := other.(*HostObject)
	return ok && x == h
}

func (h *HostObject) Hash() uint64 { return hashString("host " + h.Name) }

func (h *HostObject) String() string { return "<" + h.Name + ">" }
