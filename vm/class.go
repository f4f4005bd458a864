package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Class: script or host class descriptor
// ---------------------------------------------------------------------------

// Field is an instance field declaration. Init computes the initial value;
// it is nil when the field starts as Nil (always the case after Load, since
// initializers are not persisted).
type Field struct {
	Name string
	Init *ScriptMethod
}

// Class describes a class. It is also a Value: members reach class methods,
// inner classes and the constructor "new".
type Class struct {
	Name         string
	InnerClasses []*Class
	Methods      []Method // instance methods
	ClassMethods []Method // static methods
	Fields       []*Field
}

// NewClass creates an empty class.
func NewClass(name string) *Class {
	return &Class{Name: name}
}

// AddInnerClass nests inner under c. Names must be unique within c.
func (c *Class) AddInnerClass(inner *Class) error {
	if c.InnerClass(inner.Name) != nil {
		return faultf(ErrDuplicateClass, "%s.%s", c.Name, inner.Name)
	}
	c.InnerClasses = append(c.InnerClasses, inner)
	return nil
}

// InnerClass returns the nested class with the given name, or nil.
func (c *Class) InnerClass(name string) *Class {
	for _, inner := range c.InnerClasses {
		if inner.Name == name {
			return inner
		}
	}
	return nil
}

// InstanceMethod returns the instance method with the given name, or nil.
func (c *Class) InstanceMethod(name string) Method {
	return findMethod(c.Methods, name)
}

// ClassMethod returns the static method with the given name, or nil.
func (c *Class) ClassMethod(name string) Method {
	return findMethod(c.ClassMethods, name)
}

// FieldNames returns the declared field names in order.
func (c *Class) FieldNames() []string {
	names := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		names[i] = f.Name
	}
	return names
}

func findMethod(methods []Method, name string) Method {
	for _, m := range methods {
		if m.MethodName() == name {
			return m
		}
	}
	return nil
}

// New creates an instance: fields are initialized from their initializers
// (Nil when absent), then the instance method "new" runs with args if the
// class defines one.
func (c *Class) New(ctx *Context, args []Value) (*Instance, error) {
	inst := &Instance{Class: c, fields: make(map[string]*Reference, len(c.Fields))}
	for _, f := range c.Fields {
		v := Nil
		if f.Init != nil {
			res, err := NewFunction(f.Init).Call(ctx, nil)
			if err != nil {
				return nil, fmt.Errorf("initializing %s.%s: %w", c.Name, f.Name, err)
			}
			v = res.Value.AsByValue()
		}
		inst.fields[f.Name] = NewReference(v)
	}

	if ctor := c.InstanceMethod("new"); ctor != nil {
		fn := &Function{Method: ctor, Self: inst}
		if _, err := fn.Call(ctx, args); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

func (*Class) Kind() Kind { return KindClass }

func (c *Class) ExpressionOp(op Opcode, other Value) (Value, error) {
	return nil, unsupportedOp(c, op, other)
}

func (c *Class) GetMember(name string) (*Reference, error) {
	if name == "new" {
		return NewImmutableReference(&Function{Method: c.constructor(), Self: c}), nil
	}
	if m := c.ClassMethod(name); m != nil {
		return NewImmutableReference(&Function{Method: m, Self: c}), nil
	}
	if inner := c.InnerClass(name); inner != nil {
		return NewImmutableReference(inner), nil
	}
	if name == "name" {
		return NewImmutableReference(String(c.Name)), nil
	}
	return nil, noMember(c, name)
}

// constructor wraps New as a native method.
func (c *Class) constructor() *NativeMethod {
	return &NativeMethod{
		Name:   c.Name + ".new",
		Vararg: true,
		Fn: func(ctx *Context, self Value, args []Value) (Result, error) {
			inst, err := c.New(ctx, args)
			if err != nil {
				return Result{}, err
			}
			return Result{Value: inst}, nil
		},
	}
}

func (c *Class) GetIndexer(args []Value) (*Reference, error) {
	return nil, noIndexer(c)
}

// Call on a class constructs an instance, same as Class.new(args).
func (c *Class) Call(ctx *Context, args []Value) (Result, error) {
	inst, err := c.New(ctx, args)
	if err != nil {
		return Result{}, err
	}
	return Result{Value: inst}, nil
}

func (c *Class) AsByValue() Value { return c }

func (c *Class) Equal(other Value) bool {
	o, ok := other.(*Class)
	return ok && o == c
}

func (c *Class) Hash() uint64 { return hashString("class " + c.Name) }

func (c *Class) String() string { return "<class " + c.Name + ">" }
