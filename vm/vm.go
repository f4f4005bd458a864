package vm

import (
	"fmt"
	"io"
	"os"
	"sort"
)

// ---------------------------------------------------------------------------
// VM: module registry and name resolution
// ---------------------------------------------------------------------------

// VM holds one module's globals, top-level methods and classes. Execution
// is single-threaded; a VM must not be shared across goroutines while
// running.
type VM struct {
	// Out receives print output.
	Out io.Writer

	// MaxCallDepth bounds nested script calls and coroutine resumes in one
	// execution. Zero means DefaultMaxCallDepth.
	MaxCallDepth int

	globals map[string]*Reference
	methods map[string]Method
	classes map[string]*Class
}

// DefaultMaxCallDepth is the call depth limit of a VM that sets none.
const DefaultMaxCallDepth = 4096

// New creates a VM with the builtin natives registered.
func New() *VM {
	vm := &VM{
		Out:     os.Stdout,
		globals: make(map[string]*Reference),
		methods: make(map[string]Method),
		classes: make(map[string]*Class),
	}
	registerBuiltins(vm)
	return vm
}

// Load registers every top-level method and class of img. Class names must
// be unique within the VM.
func (vm *VM) Load(img *Image) error {
	for _, c := range img.Classes {
		if err := vm.DefineClass(c); err != nil {
			return err
		}
	}
	for _, m := range img.Methods {
		vm.DefineMethod(m)
	}
	log.Debugf("loaded %d classes, %d methods", len(img.Classes), len(img.Methods))
	return nil
}

// DefineMethod registers or replaces a top-level method.
func (vm *VM) DefineMethod(m Method) {
	vm.methods[m.MethodName()] = m
}

// DefineClass registers a top-level class.
func (vm *VM) DefineClass(c *Class) error {
	if _, exists := vm.classes[c.Name]; exists {
		return faultf(ErrDuplicateClass, "%s", c.Name)
	}
	vm.classes[c.Name] = c
	return nil
}

// RegisterNative binds a host function as a top-level method.
func (vm *VM) RegisterNative(name string, params int, vararg bool, fn NativeFunc) {
	vm.DefineMethod(&NativeMethod{Name: name, Params: params, Vararg: vararg, Fn: fn})
}

// SetGlobal defines or overwrites a module-level global.
func (vm *VM) SetGlobal(name string, v Value) {
	if r, ok := vm.globals[name]; ok {
		r.Value = v
		return
	}
	vm.globals[name] = NewReference(v)
}

// Global returns a global's value.
func (vm *VM) Global(name string) (Value, bool) {
	r, ok := vm.globals[name]
	if !ok {
		return nil, false
	}
	return r.Value, true
}

// Method returns a top-level method by name, or nil.
func (vm *VM) Method(name string) Method {
	return vm.methods[name]
}

// Class returns a top-level class by name, or nil.
func (vm *VM) Class(name string) *Class {
	return vm.classes[name]
}

// Names returns every resolvable top-level name, sorted.
func (vm *VM) Names() []string {
	seen := make(map[string]bool)
	var names []string
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	for n := range vm.globals {
		add(n)
	}
	for n := range vm.methods {
		add(n)
	}
	for n := range vm.classes {
		add(n)
	}
	sort.Strings(names)
	return names
}

// Resolve looks a bare name up in order: globals, top-level methods,
// top-level classes. It returns Undefined when nothing matches.
func (vm *VM) Resolve(name string) *Reference {
	if r, ok := vm.globals[name]; ok {
		return r
	}
	if m, ok := vm.methods[name]; ok {
		return NewImmutableReference(NewFunction(m))
	}
	if c, ok := vm.classes[name]; ok {
		return NewImmutableReference(c)
	}
	return Undefined
}

// NewFrame creates a stack frame over a top-level script method without
// running it.
func (vm *VM) NewFrame(name string, args ...Value) (*StackFrame, error) {
	m, ok := vm.methods[name].(*ScriptMethod)
	if !ok {
		return nil, fmt.Errorf("%w: script method %s", ErrUndefined, name)
	}
	return NewStackFrame(NewContext(vm), m, Nil, snapshot(args), nil), nil
}

// Call invokes a top-level method in a fresh context.
func (vm *VM) Call(name string, args ...Value) (Result, error) {
	m, ok := vm.methods[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUndefined, name)
	}
	return NewFunction(m).Call(NewContext(vm), snapshot(args))
}

// Run calls the entry method and returns its value. Faults are logged at
// the host boundary and returned.
func (vm *VM) Run(entry string, args ...Value) (Value, error) {
	res, err := vm.Call(entry, args...)
	if err != nil {
		log.Errorf("%s: %s", entry, err)
		return Nil, err
	}
	return res.Value, nil
}
