package compiler

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/kecaknoah/vm"
)

var log = commonlog.GetLogger("kecaknoah.compiler")

// ---------------------------------------------------------------------------
// Precompiler: AST to IL
// ---------------------------------------------------------------------------

// Options controls compilation.
type Options struct {
	// FoldConstants evaluates literal-only unary and binary expressions at
	// compile time.
	FoldConstants bool
}

// Precompiler compiles ASTs to IL. Expression code is emitted post-order
// and every expression leaves exactly one operand on the stack.
//
// An AST shape the parser cannot produce is a compiler bug and panics.
type Precompiler struct {
	opts Options

	builder *vm.ILBuilder
	loops   []loopLabels

	lambdas   []*vm.ScriptMethod // generated lambda bodies
	lambdaSeq int
}

// loopLabels are the jump targets of the innermost loop.
type loopLabels struct {
	continueTo *vm.Label
	breakTo    *vm.Label
}

// NewPrecompiler creates a precompiler.
func NewPrecompiler(opts Options) *Precompiler {
	return &Precompiler{opts: opts}
}

// Compile parses and compiles source.
func Compile(source string, opts Options) (*vm.Image, error) {
	prog, err := ParseSource(source)
	if err != nil {
		return nil, err
	}
	return NewPrecompiler(opts).CompileProgram(prog)
}

// CompileExpr parses and compiles a single expression into a method named
// "<expr>" that returns its value. Lambda bodies it needs are returned too.
func CompileExpr(source string, opts Options) (*vm.Image, error) {
	expr, err := ParseExpressionSource(source)
	if err != nil {
		return nil, err
	}
	c := NewPrecompiler(opts)
	c.builder = vm.NewILBuilder()
	c.compileExpr(expr)
	c.builder.Emit(vm.OpReturn)
	main := &vm.ScriptMethod{Name: "<expr>", Code: c.builder.Build()}
	return &vm.Image{Methods: append([]*vm.ScriptMethod{main}, c.lambdas...)}, nil
}

// CompileProgram compiles every class and function of prog. Generated
// lambda bodies are appended as top-level methods.
func (c *Precompiler) CompileProgram(prog *Program) (*vm.Image, error) {
	img := &vm.Image{}
	seen := make(map[string]bool)
	for _, decl := range prog.Classes {
		if seen[decl.Name] {
			return nil, fmt.Errorf("%w: %s", vm.ErrDuplicateClass, decl.Name)
		}
		seen[decl.Name] = true
		cls, err := c.CompileClass(decl)
		if err != nil {
			return nil, err
		}
		img.Classes = append(img.Classes, cls)
	}
	for _, fn := range prog.Functions {
		img.Methods = append(img.Methods, c.CompileFunction(fn))
	}
	img.Methods = append(img.Methods, c.lambdas...)
	c.lambdas = nil
	log.Debugf("compiled %d classes, %d methods", len(img.Classes), len(img.Methods))
	return img, nil
}

// CompileClass compiles a class declaration. Inner class names must be
// unique within their class.
func (c *Precompiler) CompileClass(decl *ClassDecl) (*vm.Class, error) {
	cls := vm.NewClass(decl.Name)
	for _, innerDecl := range decl.InnerClasses {
		inner, err := c.CompileClass(innerDecl)
		if err != nil {
			return nil, err
		}
		if err := cls.AddInnerClass(inner); err != nil {
			return nil, err
		}
	}
	for _, fn := range decl.Methods {
		cls.Methods = append(cls.Methods, c.CompileFunction(fn))
	}
	for _, fn := range decl.ClassMethods {
		cls.ClassMethods = append(cls.ClassMethods, c.CompileFunction(fn))
	}
	for _, f := range decl.Fields {
		field := &vm.Field{Name: f.Name}
		if f.Init != nil {
			field.Init = c.compileMethod(decl.Name+"."+f.Name, nil, false, func() {
				c.compileExpr(f.Init)
				c.builder.Emit(vm.OpReturn)
			})
		}
		cls.Fields = append(cls.Fields, field)
	}
	return cls, nil
}

// CompileFunction compiles a function or method declaration.
func (c *Precompiler) CompileFunction(fn *FuncDecl) *vm.ScriptMethod {
	return c.compileMethod(fn.Name, fn.Params, fn.Vararg, func() {
		c.compileBlock(fn.Body)
	})
}

// CompileBlock compiles a statement list on its own (no prologue, no
// implicit return).
func (c *Precompiler) CompileBlock(stmts []Stmt) vm.Code {
	saved := c.builder
	c.builder = vm.NewILBuilder()
	defer func() { c.builder = saved }()
	c.compileBlock(stmts)
	return c.builder.Build()
}

// CompileExpression compiles one expression on its own; the code leaves
// exactly one operand on the stack.
func (c *Precompiler) CompileExpression(e Expr) vm.Code {
	saved := c.builder
	c.builder = vm.NewILBuilder()
	defer func() { c.builder = saved }()
	c.compileExpr(e)
	return c.builder.Build()
}

// Lambdas returns the lambda bodies generated so far by CompileExpression
// and CompileBlock.
func (c *Precompiler) Lambdas() []*vm.ScriptMethod {
	return c.lambdas
}

// compileMethod builds a method: parameters are bound to locals from the
// arguments, body is emitted, and the method ends with an implicit
// PushNil; Return.
func (c *Precompiler) compileMethod(name string, params []string, vararg bool, body func()) *vm.ScriptMethod {
	savedBuilder, savedLoops := c.builder, c.loops
	c.builder = vm.NewILBuilder()
	c.loops = nil
	defer func() { c.builder, c.loops = savedBuilder, savedLoops }()

	for i, p := range params {
		c.builder.EmitString(vm.OpDefineLocal, p)
		c.builder.EmitInt(vm.OpPushArgument, int64(i))
		c.builder.Emit(vm.OpAssign)
		c.builder.Emit(vm.OpPop)
	}
	body()
	c.builder.Emit(vm.OpPushNil)
	c.builder.Emit(vm.OpReturn)

	m := &vm.ScriptMethod{Name: name, Params: len(params), Vararg: vararg, Code: c.builder.Build()}
	log.Debugf("compiled %s: %d instructions", name, len(m.Code))
	return m
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (c *Precompiler) compileBlock(stmts []Stmt) {
	for _, s := range stmts {
		c.compileStmt(s)
	}
}

func (c *Precompiler) compileStmt(s Stmt) {
	b := c.builder
	switch n := s.(type) {
	case *ExprStmt:
		c.compileExpr(n.Expr)
		b.Emit(vm.OpPop)

	case *LocalStmt:
		b.EmitString(vm.OpDefineLocal, n.Name)
		if n.Init != nil {
			c.compileExpr(n.Init)
			b.Emit(vm.OpAssign)
		}
		b.Emit(vm.OpPop)

	case *CoroutineStmt:
		c.compileExpr(n.Source)
		for _, a := range n.Args {
			c.compileExpr(a)
		}
		b.EmitNameCount(vm.OpStartCoroutine, n.Name, len(n.Args))

	case *ReturnStmt:
		c.compileValueOrNil(n.Value)
		b.Emit(vm.OpReturn)

	case *YieldStmt:
		c.compileValueOrNil(n.Value)
		b.Emit(vm.OpYield)

	case *IfStmt:
		end := b.NewLabel()
		for _, arm := range n.Arms {
			next := b.NewLabel()
			c.compileExpr(arm.Cond)
			b.EmitJump(vm.OpFalseJump, next)
			c.compileBlock(arm.Body)
			b.EmitJump(vm.OpJump, end)
			b.Mark(next)
		}
		if n.Else != nil {
			c.compileBlock(n.Else)
		}
		b.Mark(end)

	case *WhileStmt:
		top, end := b.NewLabel(), b.NewLabel()
		b.Mark(top)
		c.compileExpr(n.Cond)
		b.EmitJump(vm.OpFalseJump, end)
		c.compileLoopBody(n.Body, top, end)
		b.EmitJump(vm.OpJump, top)
		b.Mark(end)

	case *ForStmt:
		for _, init := range n.Inits {
			c.compileExpr(init)
			b.Emit(vm.OpPop)
		}
		top, cont, end := b.NewLabel(), b.NewLabel(), b.NewLabel()
		b.Mark(top)
		if n.Cond != nil {
			c.compileExpr(n.Cond)
			b.EmitJump(vm.OpFalseJump, end)
		}
		c.compileLoopBody(n.Body, cont, end)
		b.Mark(cont)
		for _, step := range n.Steps {
			c.compileExpr(step)
			b.Emit(vm.OpPop)
		}
		b.EmitJump(vm.OpJump, top)
		b.Mark(end)

	case *ContinueStmt:
		b.EmitJump(vm.OpJump, c.innermostLoop().continueTo)

	case *BreakStmt:
		b.EmitJump(vm.OpJump, c.innermostLoop().breakTo)

	default:
		panic(fmt.Sprintf("precompiler: unexpected statement %T", s))
	}
}

func (c *Precompiler) compileLoopBody(body []Stmt, continueTo, breakTo *vm.Label) {
	c.loops = append(c.loops, loopLabels{continueTo: continueTo, breakTo: breakTo})
	c.compileBlock(body)
	c.loops = c.loops[:len(c.loops)-1]
}

func (c *Precompiler) innermostLoop() loopLabels {
	if len(c.loops) == 0 {
		panic("precompiler: break or continue outside loop")
	}
	return c.loops[len(c.loops)-1]
}

func (c *Precompiler) compileValueOrNil(e Expr) {
	if e == nil {
		c.builder.Emit(vm.OpPushNil)
		return
	}
	c.compileExpr(e)
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

var binaryOpcodes = map[TokenType]vm.Opcode{
	TokenPlus:         vm.OpPlus,
	TokenMinus:        vm.OpMinus,
	TokenStar:         vm.OpMultiply,
	TokenSlash:        vm.OpDivide,
	TokenPercent:      vm.OpModular,
	TokenAmp:          vm.OpAnd,
	TokenPipe:         vm.OpOr,
	TokenCaret:        vm.OpXor,
	TokenShiftLeft:    vm.OpLeftBitShift,
	TokenShiftRight:   vm.OpRightBitShift,
	TokenEqual:        vm.OpEqual,
	TokenNotEqual:     vm.OpNotEqual,
	TokenGreater:      vm.OpGreater,
	TokenLess:         vm.OpLesser,
	TokenGreaterEqual: vm.OpGreaterEqual,
	TokenLessEqual:    vm.OpLesserEqual,

	TokenAssign:            vm.OpAssign,
	TokenPlusAssign:        vm.OpPlusAssign,
	TokenMinusAssign:       vm.OpMinusAssign,
	TokenStarAssign:        vm.OpMultiplyAssign,
	TokenSlashAssign:       vm.OpDivideAssign,
	TokenPercentAssign:     vm.OpModularAssign,
	TokenAmpAssign:         vm.OpAndAssign,
	TokenPipeAssign:        vm.OpOrAssign,
	TokenCaretAssign:       vm.OpXorAssign,
	TokenShiftLeftAssign:   vm.OpLeftBitShiftAssign,
	TokenShiftRightAssign:  vm.OpRightBitShiftAssign,
	TokenNilCoalesceAssign: vm.OpNilCoalesceAssign,
}

var unaryOpcodes = map[TokenType]vm.Opcode{
	TokenMinus: vm.OpNegative,
	TokenBang:  vm.OpNot,
	TokenTilde: vm.OpBitNot,
}

func (c *Precompiler) compileExpr(e Expr) {
	if c.opts.FoldConstants {
		e = Fold(e)
	}

	b := c.builder
	switch n := e.(type) {
	case *IntLiteral:
		b.EmitInt(vm.OpPushInteger, n.Value)
	case *FloatLiteral:
		b.EmitFloat(vm.OpPushFloat, n.Value)
	case *StringLiteral:
		b.EmitString(vm.OpPushString, n.Value)
	case *BoolLiteral:
		b.EmitBool(vm.OpPushBool, n.Value)
	case *NilLiteral:
		b.Emit(vm.OpPushNil)
	case *Identifier:
		b.EmitString(vm.OpLoadObject, n.Name)
	case *SelfExpr:
		b.Emit(vm.OpPushSelf)
	case *ParenExpr:
		c.compileExpr(n.Inner)
	case *VarargExpr:
		b.Emit(vm.OpLoadVarargs)

	case *ArrayLiteral:
		for _, el := range n.Elements {
			c.compileExpr(el)
		}
		b.EmitInt(vm.OpMakeArray, int64(len(n.Elements)))

	case *LambdaExpr:
		c.lambdaSeq++
		name := fmt.Sprintf("<lambda>%d", c.lambdaSeq)
		body := n.Body
		m := c.compileMethod(name, n.Params, n.Vararg, func() {
			c.compileExpr(body)
			c.builder.Emit(vm.OpReturn)
		})
		c.lambdas = append(c.lambdas, m)
		b.EmitString(vm.OpMakeLambda, name)

	case *ResumeExpr:
		if n.Target == nil {
			b.EmitString(vm.OpResumeCoroutine, n.Name)
			return
		}
		c.compileExpr(n.Target)
		b.EmitString(vm.OpResumeCoroutineInto, n.Name)

	case *UnaryExpr:
		switch n.Op {
		case TokenIncrement, TokenDecrement:
			c.compileExpr(n.Operand)
			b.EmitInt(vm.OpPushInteger, 1)
			b.Emit(stepOpcode(n.Op))
		default:
			op, ok := unaryOpcodes[n.Op]
			if !ok {
				panic(fmt.Sprintf("precompiler: unexpected unary operator %s", n.Op))
			}
			c.compileExpr(n.Operand)
			b.Emit(op)
		}

	case *PostfixExpr:
		// Leaves the value from before the step.
		c.compileExpr(n.Operand)
		b.Emit(vm.OpAsValue)
		c.compileExpr(n.Operand)
		b.EmitInt(vm.OpPushInteger, 1)
		b.Emit(stepOpcode(n.Op))
		b.Emit(vm.OpPop)

	case *MemberExpr:
		c.compileExpr(n.Target)
		b.EmitString(vm.OpLoadMember, n.Name)

	case *CallExpr:
		c.compileExpr(n.Target)
		for _, a := range n.Args {
			c.compileExpr(a)
		}
		if n.Kind == CallIndex {
			b.EmitInt(vm.OpIndexerCall, int64(len(n.Args)))
		} else {
			b.EmitInt(vm.OpCall, int64(len(n.Args)))
		}

	case *BinaryExpr:
		c.compileBinary(n)

	case *ConditionalExpr:
		elseL, end := b.NewLabel(), b.NewLabel()
		c.compileExpr(n.Cond)
		b.EmitJump(vm.OpFalseJump, elseL)
		c.compileExpr(n.True)
		b.EmitJump(vm.OpJump, end)
		b.Mark(elseL)
		c.compileExpr(n.False)
		b.Mark(end)

	default:
		panic(fmt.Sprintf("precompiler: unexpected expression %T", e))
	}
}

func stepOpcode(t TokenType) vm.Opcode {
	if t == TokenIncrement {
		return vm.OpPlusAssign
	}
	return vm.OpMinusAssign
}

// compileBinary emits left, right, operator; &&, || and ?? short-circuit.
func (c *Precompiler) compileBinary(n *BinaryExpr) {
	b := c.builder
	switch n.Op {
	case TokenAndAlso, TokenOrElse:
		end := b.NewLabel()
		c.compileExpr(n.Left)
		b.Emit(vm.OpDup)
		if n.Op == TokenAndAlso {
			b.EmitJump(vm.OpFalseJump, end)
		} else {
			b.EmitJump(vm.OpTrueJump, end)
		}
		b.Emit(vm.OpPop)
		c.compileExpr(n.Right)
		b.Mark(end)
		return

	case TokenNilCoalesce:
		rhs, end := b.NewLabel(), b.NewLabel()
		c.compileExpr(n.Left)
		b.Emit(vm.OpDup)
		b.EmitJump(vm.OpNilJump, rhs)
		b.EmitJump(vm.OpJump, end)
		b.Mark(rhs)
		b.Emit(vm.OpPop)
		c.compileExpr(n.Right)
		b.Mark(end)
		return
	}

	op, ok := binaryOpcodes[n.Op]
	if !ok {
		panic(fmt.Sprintf("precompiler: unexpected binary operator %s", n.Op))
	}
	c.compileExpr(n.Left)
	c.compileExpr(n.Right)
	b.Emit(op)
}
