package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree for Kecaknoah
// ---------------------------------------------------------------------------

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Span() Span
	node() // marker method
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// IntLiteral represents an integer literal.
type IntLiteral struct {
	SpanVal Span
	Value   int64
}

func (n *IntLiteral) Span() Span { return n.SpanVal }
func (n *IntLiteral) node()      {}
func (n *IntLiteral) expr()      {}

// FloatLiteral represents a floating-point literal.
type FloatLiteral struct {
	SpanVal Span
	Value   float64
}

func (n *FloatLiteral) Span() Span { return n.SpanVal }
func (n *FloatLiteral) node()      {}
func (n *FloatLiteral) expr()      {}

// StringLiteral represents a string literal.
type StringLiteral struct {
	SpanVal Span
	Value   string
}

func (n *StringLiteral) Span() Span { return n.SpanVal }
func (n *StringLiteral) node()      {}
func (n *StringLiteral) expr()      {}

// BoolLiteral represents true or false.
type BoolLiteral struct {
	SpanVal Span
	Value   bool
}

func (n *BoolLiteral) Span() Span { return n.SpanVal }
func (n *BoolLiteral) node()      {}
func (n *BoolLiteral) expr()      {}

// NilLiteral represents nil.
type NilLiteral struct {
	SpanVal Span
}

func (n *NilLiteral) Span() Span { return n.SpanVal }
func (n *NilLiteral) node()      {}
func (n *NilLiteral) expr()      {}

// Identifier represents a bare name, resolved at run time.
type Identifier struct {
	SpanVal Span
	Name    string
}

func (n *Identifier) Span() Span { return n.SpanVal }
func (n *Identifier) node()      {}
func (n *Identifier) expr()      {}

// SelfExpr represents the self reference inside an instance method.
type SelfExpr struct {
	SpanVal Span
}

func (n *SelfExpr) Span() Span { return n.SpanVal }
func (n *SelfExpr) node()      {}
func (n *SelfExpr) expr()      {}

// ParenExpr represents a parenthesized expression.
type ParenExpr struct {
	SpanVal Span
	Inner   Expr
}

func (n *ParenExpr) Span() Span { return n.SpanVal }
func (n *ParenExpr) node()      {}
func (n *ParenExpr) expr()      {}

// VarargExpr represents the `...` marker: the variable-arguments array.
type VarargExpr struct {
	SpanVal Span
}

func (n *VarargExpr) Span() Span { return n.SpanVal }
func (n *VarargExpr) node()      {}
func (n *VarargExpr) expr()      {}

// ArrayLiteral represents [a, b, c].
type ArrayLiteral struct {
	SpanVal  Span
	Elements []Expr
}

func (n *ArrayLiteral) Span() Span { return n.SpanVal }
func (n *ArrayLiteral) node()      {}
func (n *ArrayLiteral) expr()      {}

// LambdaExpr represents \(params) => body.
type LambdaExpr struct {
	SpanVal Span
	Params  []string
	Vararg  bool
	Body    Expr
}

func (n *LambdaExpr) Span() Span { return n.SpanVal }
func (n *LambdaExpr) node()      {}
func (n *LambdaExpr) expr()      {}

// ResumeExpr represents a coroutine resume: name$ or name$(target).
// Target is nil for the one-operand form.
type ResumeExpr struct {
	SpanVal Span
	Name    string
	Target  Expr
}

func (n *ResumeExpr) Span() Span { return n.SpanVal }
func (n *ResumeExpr) node()      {}
func (n *ResumeExpr) expr()      {}

// UnaryExpr represents a prefix operator: - ! ~ ++ --.
type UnaryExpr struct {
	SpanVal Span
	Op      TokenType
	Operand Expr
}

func (n *UnaryExpr) Span() Span { return n.SpanVal }
func (n *UnaryExpr) node()      {}
func (n *UnaryExpr) expr()      {}

// PostfixExpr represents x++ or x--.
type PostfixExpr struct {
	SpanVal Span
	Op      TokenType
	Operand Expr
}

func (n *PostfixExpr) Span() Span { return n.SpanVal }
func (n *PostfixExpr) node()      {}
func (n *PostfixExpr) expr()      {}

// MemberExpr represents target.name.
type MemberExpr struct {
	SpanVal Span
	Target  Expr
	Name    string
}

func (n *MemberExpr) Span() Span { return n.SpanVal }
func (n *MemberExpr) node()      {}
func (n *MemberExpr) expr()      {}

// CallKind distinguishes invocation from indexing.
type CallKind int

const (
	CallInvoke CallKind = iota // target(args)
	CallIndex                  // target[args]
)

// CallExpr represents a call or indexer access.
type CallExpr struct {
	SpanVal Span
	Target  Expr
	Args    []Expr
	Kind    CallKind
}

func (n *CallExpr) Span() Span { return n.SpanVal }
func (n *CallExpr) node()      {}
func (n *CallExpr) expr()      {}

// BinaryExpr represents left op right, including the assignment family.
type BinaryExpr struct {
	SpanVal Span
	Op      TokenType
	Left    Expr
	Right   Expr
}

func (n *BinaryExpr) Span() Span { return n.SpanVal }
func (n *BinaryExpr) node()      {}
func (n *BinaryExpr) expr()      {}

// ConditionalExpr represents cond ? a : b.
type ConditionalExpr struct {
	SpanVal Span
	Cond    Expr
	True    Expr
	False   Expr
}

func (n *ConditionalExpr) Span() Span { return n.SpanVal }
func (n *ConditionalExpr) node()      {}
func (n *ConditionalExpr) expr()      {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// LocalStmt declares one local variable with an optional initializer.
type LocalStmt struct {
	SpanVal Span
	Name    string
	Init    Expr // nil if absent
}

func (n *LocalStmt) Span() Span { return n.SpanVal }
func (n *LocalStmt) node()      {}
func (n *LocalStmt) stmt()      {}

// CoroutineStmt binds a new coroutine: coroutine name = source(args).
type CoroutineStmt struct {
	SpanVal Span
	Name    string
	Source  Expr
	Args    []Expr
}

func (n *CoroutineStmt) Span() Span { return n.SpanVal }
func (n *CoroutineStmt) node()      {}
func (n *CoroutineStmt) stmt()      {}

// ReturnStmt represents return [value].
type ReturnStmt struct {
	SpanVal Span
	Value   Expr // nil for a bare return
}

func (n *ReturnStmt) Span() Span { return n.SpanVal }
func (n *ReturnStmt) node()      {}
func (n *ReturnStmt) stmt()      {}

// YieldStmt represents yield [value].
type YieldStmt struct {
	SpanVal Span
	Value   Expr // nil for a bare yield
}

func (n *YieldStmt) Span() Span { return n.SpanVal }
func (n *YieldStmt) node()      {}
func (n *YieldStmt) stmt()      {}

// CondBlock is one guarded arm of an if statement.
type CondBlock struct {
	Cond Expr
	Body []Stmt
}

// IfStmt represents if/elif/else. Arms[0] is the primary block.
type IfStmt struct {
	SpanVal Span
	Arms    []*CondBlock
	Else    []Stmt // nil when absent
}

func (n *IfStmt) Span() Span { return n.SpanVal }
func (n *IfStmt) node()      {}
func (n *IfStmt) stmt()      {}

// ForStmt represents for inits; cond; steps ... next.
type ForStmt struct {
	SpanVal Span
	Inits   []Expr
	Cond    Expr // nil means always true
	Steps   []Expr
	Body    []Stmt
}

func (n *ForStmt) Span() Span { return n.SpanVal }
func (n *ForStmt) node()      {}
func (n *ForStmt) stmt()      {}

// WhileStmt represents while cond ... next.
type WhileStmt struct {
	SpanVal Span
	Cond    Expr
	Body    []Stmt
}

func (n *WhileStmt) Span() Span { return n.SpanVal }
func (n *WhileStmt) node()      {}
func (n *WhileStmt) stmt()      {}

// ContinueStmt jumps to the next loop iteration.
type ContinueStmt struct {
	SpanVal Span
}

func (n *ContinueStmt) Span() Span { return n.SpanVal }
func (n *ContinueStmt) node()      {}
func (n *ContinueStmt) stmt()      {}

// BreakStmt leaves the innermost loop.
type BreakStmt struct {
	SpanVal Span
}

func (n *BreakStmt) Span() Span { return n.SpanVal }
func (n *BreakStmt) node()      {}
func (n *BreakStmt) stmt()      {}

// ExprStmt is an expression evaluated for its side effect.
type ExprStmt struct {
	SpanVal Span
	Expr    Expr
}

func (n *ExprStmt) Span() Span { return n.SpanVal }
func (n *ExprStmt) node()      {}
func (n *ExprStmt) stmt()      {}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

// FuncDecl declares a function, instance method or class method.
type FuncDecl struct {
	SpanVal Span
	Name    string
	Params  []string
	Vararg  bool
	Static  bool
	Body    []Stmt
}

func (n *FuncDecl) Span() Span { return n.SpanVal }
func (n *FuncDecl) node()      {}

// Signature renders the declaration head, e.g. "func add(a, b)".
func (n *FuncDecl) Signature() string {
	var sb strings.Builder
	if n.Static {
		sb.WriteString("static ")
	}
	sb.WriteString("func ")
	sb.WriteString(n.Name)
	sb.WriteString("(")
	params := append([]string(nil), n.Params...)
	if n.Vararg {
		params = append(params, "...")
	}
	sb.WriteString(strings.Join(params, ", "))
	sb.WriteString(")")
	return sb.String()
}

// FieldDecl declares an instance field with an optional initializer.
type FieldDecl struct {
	SpanVal Span
	Name    string
	Init    Expr // nil if absent
}

func (n *FieldDecl) Span() Span { return n.SpanVal }
func (n *FieldDecl) node()      {}

// ClassDecl declares a class.
type ClassDecl struct {
	SpanVal      Span
	Name         string
	InnerClasses []*ClassDecl
	Methods      []*FuncDecl // instance methods
	ClassMethods []*FuncDecl // static methods
	Fields       []*FieldDecl
}

func (n *ClassDecl) Span() Span { return n.SpanVal }
func (n *ClassDecl) node()      {}

// Program is a whole source file.
type Program struct {
	SpanVal   Span
	Classes   []*ClassDecl
	Functions []*FuncDecl
}

func (n *Program) Span() Span { return n.SpanVal }
func (n *Program) node()      {}

// ---------------------------------------------------------------------------
// Operator classification
// ---------------------------------------------------------------------------

// IsAssignOp reports whether t belongs to the assignment family.
func IsAssignOp(t TokenType) bool {
	return t >= TokenAssign && t <= TokenNilCoalesceAssign
}

// ---------------------------------------------------------------------------
// Formatting
// ---------------------------------------------------------------------------

// FormatExpr renders e as a fully parenthesized prefix form, e.g.
// "(+ 1 (* 2 3))". Used by tests and the language server.
func FormatExpr(e Expr) string {
	var sb strings.Builder
	formatExpr(&sb, e)
	return sb.String()
}

func formatExpr(sb *strings.Builder, e Expr) {
	switch n := e.(type) {
	case nil:
		sb.WriteString("<nil>")
	case *IntLiteral:
		sb.WriteString(strconv.FormatInt(n.Value, 10))
	case *FloatLiteral:
		sb.WriteString(strconv.FormatFloat(n.Value, 'g', -1, 64))
	case *StringLiteral:
		sb.WriteString(strconv.Quote(n.Value))
	case *BoolLiteral:
		sb.WriteString(strconv.FormatBool(n.Value))
	case *NilLiteral:
		sb.WriteString("nil")
	case *Identifier:
		sb.WriteString(n.Name)
	case *SelfExpr:
		sb.WriteString("self")
	case *VarargExpr:
		sb.WriteString("...")
	case *ParenExpr:
		formatExpr(sb, n.Inner)
	case *ArrayLiteral:
		sb.WriteString("[")
		for i, el := range n.Elements {
			if i > 0 {
				sb.WriteString(" ")
			}
			formatExpr(sb, el)
		}
		sb.WriteString("]")
	case *LambdaExpr:
		params := append([]string(nil), n.Params...)
		if n.Vararg {
			params = append(params, "...")
		}
		fmt.Fprintf(sb, "(lambda (%s) ", strings.Join(params, " "))
		formatExpr(sb, n.Body)
		sb.WriteString(")")
	case *ResumeExpr:
		if n.Target == nil {
			fmt.Fprintf(sb, "%s$", n.Name)
			return
		}
		fmt.Fprintf(sb, "(%s$ ", n.Name)
		formatExpr(sb, n.Target)
		sb.WriteString(")")
	case *UnaryExpr:
		fmt.Fprintf(sb, "(%s ", n.Op)
		formatExpr(sb, n.Operand)
		sb.WriteString(")")
	case *PostfixExpr:
		sb.WriteString("(")
		formatExpr(sb, n.Operand)
		fmt.Fprintf(sb, " %s)", n.Op)
	case *MemberExpr:
		sb.WriteString("(. ")
		formatExpr(sb, n.Target)
		fmt.Fprintf(sb, " %s)", n.Name)
	case *CallExpr:
		if n.Kind == CallIndex {
			sb.WriteString("(index ")
		} else {
			sb.WriteString("(call ")
		}
		formatExpr(sb, n.Target)
		for _, a := range n.Args {
			sb.WriteString(" ")
			formatExpr(sb, a)
		}
		sb.WriteString(")")
	case *BinaryExpr:
		fmt.Fprintf(sb, "(%s ", n.Op)
		formatExpr(sb, n.Left)
		sb.WriteString(" ")
		formatExpr(sb, n.Right)
		sb.WriteString(")")
	case *ConditionalExpr:
		sb.WriteString("(? ")
		formatExpr(sb, n.Cond)
		sb.WriteString(" ")
		formatExpr(sb, n.True)
		sb.WriteString(" ")
		formatExpr(sb, n.False)
		sb.WriteString(")")
	default:
		fmt.Fprintf(sb, "<%T>", e)
	}
}
