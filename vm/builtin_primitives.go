package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Builtin natives
// ---------------------------------------------------------------------------

func registerBuiltins(vm *VM) {
	vm.RegisterNative("print", 0, true, builtinPrint(false))
	vm.RegisterNative("println", 0, true, builtinPrint(true))
	vm.RegisterNative("array", 1, true, builtinArray)
	vm.RegisterNative("string", 1, false, builtinString)
	vm.RegisterNative("int", 1, false, builtinInt)
	vm.RegisterNative("float", 1, false, builtinFloat)
	vm.RegisterNative("len", 1, false, builtinLen)
}

func builtinPrint(newline bool) NativeFunc {
	return func(ctx *Context, self Value, args []Value) (Result, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.String()
		}
		text := strings.Join(parts, " ")
		if newline {
			text += "\n"
		}
		if _, err := fmt.Fprint(ctx.Out(), text); err != nil {
			return Result{}, err
		}
		return Result{Value: Nil}, nil
	}
}

// builtinArray creates a Nil-filled array; array(2, 3) nests.
func builtinArray(ctx *Context, self Value, args []Value) (Result, error) {
	if len(args) == 0 {
		return Result{}, faultf(ErrOperator, "array needs at least one dimension")
	}
	dims := make([]int, len(args))
	for i, a := range args {
		n, ok := a.(Integer)
		if !ok || n < 0 {
			return Result{}, faultf(ErrOperator, "array dimension must be a non-negative Integer, got %s", a)
		}
		dims[i] = int(n)
	}
	return Result{Value: NewMultiArray(dims)}, nil
}

func oneArg(name string, args []Value) (Value, error) {
	if len(args) != 1 {
		return nil, faultf(ErrOperator, "%s takes 1 argument, got %d", name, len(args))
	}
	return args[0], nil
}

func builtinString(ctx *Context, self Value, args []Value) (Result, error) {
	v, err := oneArg("string", args)
	if err != nil {
		return Result{}, err
	}
	return Result{Value: String(v.String())}, nil
}

func builtinInt(ctx *Context, self Value, args []Value) (Result, error) {
	v, err := oneArg("int", args)
	if err != nil {
		return Result{}, err
	}
	switch x := v.(type) {
	case Integer:
		return Result{Value: x}, nil
	case Float:
		return Result{Value: Integer(int64(x))}, nil
	case Boolean:
		if x {
			return Result{Value: Integer(1)}, nil
		}
		return Result{Value: Integer(0)}, nil
	case String:
		n, err := strconv.ParseInt(strings.TrimSpace(string(x)), 0, 64)
		if err != nil {
			return Result{}, faultf(ErrOperator, "int(%q): %v", string(x), err)
		}
		return Result{Value: Integer(n)}, nil
	}
	return Result{}, faultf(ErrOperator, "int(%s)", v.Kind())
}

func builtinFloat(ctx *Context, self Value, args []Value) (Result, error) {
	v, err := oneArg("float", args)
	if err != nil {
		return Result{}, err
	}
	switch x := v.(type) {
	case Float:
		return Result{Value: x}, nil
	case Integer:
		return Result{Value: Float(x)}, nil
	case String:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
		if err != nil {
			return Result{}, faultf(ErrOperator, "float(%q): %v", string(x), err)
		}
		return Result{Value: Float(f)}, nil
	}
	return Result{}, faultf(ErrOperator, "float(%s)", v.Kind())
}

func builtinLen(ctx *Context, self Value, args []Value) (Result, error) {
	v, err := oneArg("len", args)
	if err != nil {
		return Result{}, err
	}
	r, err := v.GetMember("length")
	if err != nil {
		return Result{}, err
	}
	return Result{Value: r.Value}, nil
}
