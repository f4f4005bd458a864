package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Parser: Recursive descent + precedence climbing for Kecaknoah
// ---------------------------------------------------------------------------

// ParseError is a position-tagged syntax error. Parsing stops at the first one.
type ParseError struct {
	Message string
	Line    int
	Column  int

	// Incomplete is set when the input ended before the construct did.
	Incomplete bool
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

// bailout unwinds the parser to its entry point after the first error.
type bailout struct{ err *ParseError }

// Parser parses a token stream into an AST.
type Parser struct {
	tokens    TokenStream
	last      Token // most recently consumed token
	loopDepth int   // enclosing for/while count, for break and continue
}

// NewParser creates a parser over tokens.
func NewParser(tokens TokenStream) *Parser {
	return &Parser{tokens: tokens}
}

// Parse parses a whole program from tokens.
func Parse(tokens TokenStream) (*Program, error) {
	return NewParser(tokens).ParseProgram()
}

// ParseSource lexes and parses a whole program.
func ParseSource(source string) (*Program, error) {
	return Parse(NewLexer(source))
}

// ParseAsExpression parses exactly one expression; the stream must be fully
// consumed afterwards.
func ParseAsExpression(tokens TokenStream) (Expr, error) {
	return NewParser(tokens).ParseExpressionOnly()
}

// ParseExpressionSource lexes and parses a single expression.
func ParseExpressionSource(source string) (Expr, error) {
	return ParseAsExpression(NewLexer(source))
}

// ---------------------------------------------------------------------------
// Token helpers
// ---------------------------------------------------------------------------

// peek returns the next token. Lexical errors abort here.
func (p *Parser) peek() Token {
	t := p.tokens.Peek()
	if t.Type == TokenError {
		p.failAt(t.Pos, "%s", t.Literal)
	}
	return t
}

func (p *Parser) peekIs(t TokenType) bool {
	return p.peek().Type == t
}

// next consumes the next token.
func (p *Parser) next() Token {
	p.peek()
	p.last = p.tokens.Next()
	return p.last
}

// expect consumes a token of type t or aborts.
func (p *Parser) expect(t TokenType) Token {
	tok := p.peek()
	if tok.Type != t {
		p.errorf("expected %s, got %s", t, describe(tok))
	}
	return p.next()
}

// expectSeparator requires a logical line break (or EOF).
func (p *Parser) expectSeparator() {
	tok := p.peek()
	switch tok.Type {
	case TokenNewline:
		p.next()
	case TokenEOF:
	default:
		p.errorf("expected end of line, got %s", describe(tok))
	}
}

// skipSeparators collapses consecutive logical line breaks.
func (p *Parser) skipSeparators() {
	for p.peekIs(TokenNewline) {
		p.next()
	}
}

// errorf aborts the parse at the next token's position.
func (p *Parser) errorf(format string, args ...interface{}) {
	p.failAt(p.tokens.Peek().Pos, format, args...)
}

func (p *Parser) failAt(pos Position, format string, args ...interface{}) {
	panic(bailout{&ParseError{
		Message:    fmt.Sprintf(format, args...),
		Line:       pos.Line,
		Column:     pos.Column,
		Incomplete: p.tokens.Peek().Type == TokenEOF,
	}})
}

// recoverError converts a bailout into a returned error.
func recoverError(err *error) {
	if r := recover(); r != nil {
		b, ok := r.(bailout)
		if !ok {
			panic(r)
		}
		*err = b.err
	}
}

func (p *Parser) spanFrom(start Position) Span {
	return Span{Start: start, End: p.last.Pos}
}

func describe(t Token) string {
	switch t.Type {
	case TokenEOF:
		return "end of input"
	case TokenNewline:
		return "end of line"
	case TokenIdentifier, TokenInteger, TokenFloat:
		return fmt.Sprintf("%q", t.Literal)
	case TokenString:
		return "string literal"
	}
	return fmt.Sprintf("'%s'", t.Type)
}

// ---------------------------------------------------------------------------
// Top-level parsing
// ---------------------------------------------------------------------------

// ParseProgram parses classes and functions until EOF.
func (p *Parser) ParseProgram() (prog *Program, err error) {
	defer recoverError(&err)

	start := p.peek().Pos
	prog = &Program{}
	p.skipSeparators()
	for !p.peekIs(TokenEOF) {
		switch p.peek().Type {
		case TokenClass:
			prog.Classes = append(prog.Classes, p.parseClass())
		case TokenFunc:
			prog.Functions = append(prog.Functions, p.parseFunc(false))
		default:
			p.errorf("expected class or func, got %s", describe(p.peek()))
		}
		p.skipSeparators()
	}
	prog.SpanVal = p.spanFrom(start)
	return prog, nil
}

// ParseExpressionOnly parses one expression and requires the rest of the
// stream to be empty (trailing line breaks are allowed).
func (p *Parser) ParseExpressionOnly() (expr Expr, err error) {
	defer recoverError(&err)

	p.skipSeparators()
	expr = p.parseExpression()
	p.skipSeparators()
	if !p.peekIs(TokenEOF) {
		p.errorf("unexpected %s after expression", describe(p.peek()))
	}
	return expr, nil
}

func (p *Parser) parseClass() *ClassDecl {
	start := p.expect(TokenClass).Pos
	cls := &ClassDecl{Name: p.expect(TokenIdentifier).Literal}
	p.expectSeparator()

	for {
		p.skipSeparators()
		switch p.peek().Type {
		case TokenEndClass:
			p.next()
			cls.SpanVal = p.spanFrom(start)
			return cls
		case TokenFunc:
			cls.Methods = append(cls.Methods, p.parseFunc(false))
		case TokenStatic:
			p.next()
			if !p.peekIs(TokenFunc) {
				p.errorf("expected func after static, got %s", describe(p.peek()))
			}
			cls.ClassMethods = append(cls.ClassMethods, p.parseFunc(true))
		case TokenLocal:
			for _, l := range p.parseLocals() {
				cls.Fields = append(cls.Fields, &FieldDecl{SpanVal: l.SpanVal, Name: l.Name, Init: l.Init})
			}
		case TokenClass:
			cls.InnerClasses = append(cls.InnerClasses, p.parseClass())
		default:
			p.errorf("unexpected %s in class %s", describe(p.peek()), cls.Name)
		}
		if !p.peekIs(TokenEndClass) {
			p.expectSeparator()
		}
	}
}

func (p *Parser) parseFunc(static bool) *FuncDecl {
	start := p.expect(TokenFunc).Pos
	fn := &FuncDecl{Name: p.expect(TokenIdentifier).Literal, Static: static}

	if p.peekIs(TokenLParen) {
		p.next()
		fn.Params, fn.Vararg = p.parseParams()
		p.expect(TokenRParen)
	}
	p.expectSeparator()

	fn.Body = p.parseBlock(TokenEndFunc)
	p.expect(TokenEndFunc)
	fn.SpanVal = p.spanFrom(start)
	return fn
}

// parseParams parses a comma-separated parameter list up to, not
// including, the closing parenthesis. Only the last parameter may be `...`.
func (p *Parser) parseParams() ([]string, bool) {
	var params []string
	seen := make(map[string]bool)
	if p.peekIs(TokenRParen) {
		return nil, false
	}
	for {
		if p.peekIs(TokenVararg) {
			p.next()
			if !p.peekIs(TokenRParen) {
				p.errorf("... must be the last parameter")
			}
			return params, true
		}
		tok := p.expect(TokenIdentifier)
		if seen[tok.Literal] {
			p.failAt(tok.Pos, "duplicate parameter %s", tok.Literal)
		}
		seen[tok.Literal] = true
		params = append(params, tok.Literal)
		if !p.peekIs(TokenComma) {
			return params, false
		}
		p.next()
	}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// parseBlock parses statements until one of the terminators is next. The
// terminator itself is left in the stream.
func (p *Parser) parseBlock(terminators ...TokenType) []Stmt {
	var stmts []Stmt
	for {
		p.skipSeparators()
		tok := p.peek()
		if isOneOf(tok.Type, terminators) {
			return stmts
		}
		if tok.Type == TokenEOF {
			p.errorf("unexpected end of input, expected %s", terminators[0])
		}
		stmts = append(stmts, p.parseStatement()...)
		if !isOneOf(p.peek().Type, terminators) {
			p.expectSeparator()
		}
	}
}

func isOneOf(t TokenType, set []TokenType) bool {
	for _, s := range set {
		if t == s {
			return true
		}
	}
	return false
}

// parseStatement parses one statement. A local list yields one LocalStmt
// per declared name.
func (p *Parser) parseStatement() []Stmt {
	tok := p.peek()
	switch tok.Type {
	case TokenLocal:
		locals := p.parseLocals()
		stmts := make([]Stmt, len(locals))
		for i, l := range locals {
			stmts[i] = l
		}
		return stmts
	case TokenCoroutine:
		return []Stmt{p.parseCoroutine()}
	case TokenReturn:
		p.next()
		return []Stmt{&ReturnStmt{Value: p.parseOptionalValue(), SpanVal: p.spanFrom(tok.Pos)}}
	case TokenYield:
		p.next()
		return []Stmt{&YieldStmt{Value: p.parseOptionalValue(), SpanVal: p.spanFrom(tok.Pos)}}
	case TokenIf:
		return []Stmt{p.parseIf()}
	case TokenFor:
		return []Stmt{p.parseFor()}
	case TokenWhile:
		return []Stmt{p.parseWhile()}
	case TokenContinue:
		if p.loopDepth == 0 {
			p.errorf("continue outside loop")
		}
		p.next()
		return []Stmt{&ContinueStmt{SpanVal: p.spanFrom(tok.Pos)}}
	case TokenBreak:
		if p.loopDepth == 0 {
			p.errorf("break outside loop")
		}
		p.next()
		return []Stmt{&BreakStmt{SpanVal: p.spanFrom(tok.Pos)}}
	}

	expr := p.parseExpression()
	if !isStatementExpr(expr) {
		p.failAt(tok.Pos, "expression %s is not a statement", FormatExpr(expr))
	}
	return []Stmt{&ExprStmt{SpanVal: expr.Span(), Expr: expr}}
}

// isStatementExpr reports whether e may stand alone as a statement: only
// calls and assignment-family binaries qualify.
func isStatementExpr(e Expr) bool {
	switch n := e.(type) {
	case *CallExpr:
		return n.Kind == CallInvoke
	case *BinaryExpr:
		return IsAssignOp(n.Op)
	}
	return false
}

func (p *Parser) parseLocals() []*LocalStmt {
	p.expect(TokenLocal)
	var locals []*LocalStmt
	for {
		tok := p.expect(TokenIdentifier)
		l := &LocalStmt{Name: tok.Literal}
		if p.peekIs(TokenAssign) {
			p.next()
			l.Init = p.parseExpression()
		}
		l.SpanVal = p.spanFrom(tok.Pos)
		locals = append(locals, l)
		if !p.peekIs(TokenComma) {
			return locals
		}
		p.next()
	}
}

func (p *Parser) parseCoroutine() *CoroutineStmt {
	start := p.expect(TokenCoroutine).Pos
	co := &CoroutineStmt{Name: p.expect(TokenIdentifier).Literal}
	p.expect(TokenAssign)
	src := p.parseExpression()
	if call, ok := src.(*CallExpr); ok && call.Kind == CallInvoke {
		co.Source = call.Target
		co.Args = call.Args
	} else {
		co.Source = src
	}
	co.SpanVal = p.spanFrom(start)
	return co
}

// parseOptionalValue parses the operand of return/yield if one follows.
func (p *Parser) parseOptionalValue() Expr {
	if !startsExpression(p.peek().Type) {
		return nil
	}
	return p.parseExpression()
}

func (p *Parser) parseIf() *IfStmt {
	start := p.expect(TokenIf).Pos
	cond := p.parseExpression()
	p.expect(TokenThen)

	// Single-line form: if cond then statement
	if !p.peekIs(TokenNewline) {
		body := p.parseStatement()
		return &IfStmt{
			SpanVal: p.spanFrom(start),
			Arms:    []*CondBlock{{Cond: cond, Body: body}},
		}
	}

	stmt := &IfStmt{}
	body := p.parseBlock(TokenElif, TokenElse, TokenEndIf)
	stmt.Arms = append(stmt.Arms, &CondBlock{Cond: cond, Body: body})
	for p.peekIs(TokenElif) {
		p.next()
		cond := p.parseExpression()
		p.expect(TokenThen)
		p.expectSeparator()
		body := p.parseBlock(TokenElif, TokenElse, TokenEndIf)
		stmt.Arms = append(stmt.Arms, &CondBlock{Cond: cond, Body: body})
	}
	if p.peekIs(TokenElse) {
		p.next()
		p.expectSeparator()
		stmt.Else = p.parseBlock(TokenEndIf)
		if stmt.Else == nil {
			stmt.Else = []Stmt{}
		}
	}
	p.expect(TokenEndIf)
	stmt.SpanVal = p.spanFrom(start)
	return stmt
}

func (p *Parser) parseFor() *ForStmt {
	start := p.expect(TokenFor).Pos
	stmt := &ForStmt{}

	stmt.Inits = p.parseExprList()
	p.expect(TokenNewline)
	if !p.peekIs(TokenNewline) {
		stmt.Cond = p.parseExpression()
	}
	p.expect(TokenNewline)
	stmt.Steps = p.parseExprList()
	p.expectSeparator()

	stmt.Body = p.parseLoopBody()
	p.expect(TokenNext)
	stmt.SpanVal = p.spanFrom(start)
	return stmt
}

func (p *Parser) parseLoopBody() []Stmt {
	p.loopDepth++
	defer func() { p.loopDepth-- }()
	return p.parseBlock(TokenNext)
}

// parseExprList parses comma-separated expressions up to a separator.
func (p *Parser) parseExprList() []Expr {
	var list []Expr
	if p.peekIs(TokenNewline) || p.peekIs(TokenEOF) {
		return nil
	}
	for {
		list = append(list, p.parseExpression())
		if !p.peekIs(TokenComma) {
			return list
		}
		p.next()
	}
}

func (p *Parser) parseWhile() *WhileStmt {
	start := p.expect(TokenWhile).Pos
	stmt := &WhileStmt{Cond: p.parseExpression()}
	p.expectSeparator()
	stmt.Body = p.parseLoopBody()
	p.expect(TokenNext)
	stmt.SpanVal = p.spanFrom(start)
	return stmt
}

// ---------------------------------------------------------------------------
// Expressions: precedence climbing
// ---------------------------------------------------------------------------

// maxPriority is the highest binary priority (multiplicative).
const maxPriority = 11

// binaryPriority maps binary operator tokens to their priority,
// 0 (assignment family, ternary) through 11 (multiplicative).
var binaryPriority = map[TokenType]int{
	TokenAssign:            0,
	TokenPlusAssign:        0,
	TokenMinusAssign:       0,
	TokenStarAssign:        0,
	TokenSlashAssign:       0,
	TokenPercentAssign:     0,
	TokenAmpAssign:         0,
	TokenPipeAssign:        0,
	TokenCaretAssign:       0,
	TokenShiftLeftAssign:   0,
	TokenShiftRightAssign:  0,
	TokenNilCoalesceAssign: 0,
	TokenNilCoalesce:       1,
	TokenOrElse:            2,
	TokenAndAlso:           3,
	TokenPipe:              4,
	TokenCaret:             5,
	TokenAmp:               6,
	TokenEqual:             7,
	TokenNotEqual:          7,
	TokenLess:              8,
	TokenGreater:           8,
	TokenLessEqual:         8,
	TokenGreaterEqual:      8,
	TokenShiftLeft:         9,
	TokenShiftRight:        9,
	TokenPlus:              10,
	TokenMinus:             10,
	TokenStar:              11,
	TokenSlash:             11,
	TokenPercent:           11,
}

// Priority returns the binary priority of t and whether t is a binary
// operator at all.
func Priority(t TokenType) (int, bool) {
	prio, ok := binaryPriority[t]
	return prio, ok
}

// isTerminator reports whether t always ends an expression.
func isTerminator(t TokenType) bool {
	switch t {
	case TokenRParen, TokenRBracket, TokenComma, TokenColon, TokenArrow,
		TokenNewline, TokenEOF:
		return true
	}
	return t.IsKeyword() && !startsExpression(t)
}

// startsExpression reports whether t can begin an expression.
func startsExpression(t TokenType) bool {
	switch t {
	case TokenInteger, TokenFloat, TokenString, TokenIdentifier,
		TokenNil, TokenTrue, TokenFalse, TokenSelf,
		TokenLParen, TokenLBracket, TokenVararg, TokenLambda,
		TokenMinus, TokenPlus, TokenBang, TokenTilde,
		TokenIncrement, TokenDecrement:
		return true
	}
	return false
}

// parseExpression parses a full expression and applies the assignment
// right-association pass.
func (p *Parser) parseExpression() Expr {
	return Reassociate(p.climb(0))
}

// climb parses a left-leaning chain of operators at exactly priority,
// with operands parsed at priority+1.
func (p *Parser) climb(priority int) Expr {
	if priority > maxPriority {
		return p.parseUnary()
	}

	left := p.climb(priority + 1)
	for {
		tok := p.peek()
		if isTerminator(tok.Type) {
			return left
		}

		if priority == 0 && tok.Type == TokenQuestion {
			left = p.parseConditional(left)
			continue
		}

		prio, ok := binaryPriority[tok.Type]
		if !ok || prio != priority {
			return left
		}
		p.next()
		right := p.climb(priority + 1)
		left = &BinaryExpr{
			SpanVal: Span{Start: left.Span().Start, End: right.Span().End},
			Op:      tok.Type,
			Left:    left,
			Right:   right,
		}
	}
}

// parseConditional parses "? a : b" after cond. When cond is the tail of a
// not-yet-rotated assignment chain, the conditional binds to its last
// operand so that x = c ? a : b assigns the selected value.
func (p *Parser) parseConditional(cond Expr) Expr {
	p.expect(TokenQuestion)
	whenTrue := p.parseExpression()
	p.expect(TokenColon)
	whenFalse := p.climb(0)

	wrap := func(c Expr) Expr {
		return &ConditionalExpr{
			SpanVal: Span{Start: c.Span().Start, End: whenFalse.Span().End},
			Cond:    c,
			True:    whenTrue,
			False:   whenFalse,
		}
	}

	if bin, ok := cond.(*BinaryExpr); ok && IsAssignOp(bin.Op) {
		return &BinaryExpr{
			SpanVal: Span{Start: bin.SpanVal.Start, End: whenFalse.Span().End},
			Op:      bin.Op,
			Left:    bin.Left,
			Right:   wrap(bin.Right),
		}
	}
	return wrap(cond)
}

// parseUnary handles prefix operators.
func (p *Parser) parseUnary() Expr {
	tok := p.peek()
	switch tok.Type {
	case TokenPlus:
		p.next()
		return p.parseUnary()
	case TokenMinus, TokenBang, TokenTilde, TokenIncrement, TokenDecrement:
		p.next()
		operand := p.parseUnary()
		return &UnaryExpr{
			SpanVal: Span{Start: tok.Pos, End: operand.Span().End},
			Op:      tok.Type,
			Operand: operand,
		}
	}
	return p.parsePostfix()
}

// parsePostfix parses a primary followed by any chain of .name, (args) and
// [args], then an optional ++ or --.
func (p *Parser) parsePostfix() Expr {
	expr := p.parsePrimary()
	start := expr.Span().Start

	for {
		switch p.peek().Type {
		case TokenPeriod:
			p.next()
			name := p.expect(TokenIdentifier).Literal
			expr = &MemberExpr{SpanVal: p.spanFrom(start), Target: expr, Name: name}
			continue
		case TokenLParen:
			p.next()
			args := p.parseArgs(TokenRParen)
			expr = &CallExpr{SpanVal: p.spanFrom(start), Target: expr, Args: args, Kind: CallInvoke}
			continue
		case TokenLBracket:
			p.next()
			args := p.parseArgs(TokenRBracket)
			if len(args) == 0 {
				p.failAt(p.last.Pos, "indexer requires at least one argument")
			}
			expr = &CallExpr{SpanVal: p.spanFrom(start), Target: expr, Args: args, Kind: CallIndex}
			continue
		}
		break
	}

	if tok := p.peek(); tok.Type == TokenIncrement || tok.Type == TokenDecrement {
		p.next()
		expr = &PostfixExpr{SpanVal: p.spanFrom(start), Op: tok.Type, Operand: expr}
	}
	return expr
}

// parseArgs parses comma-separated expressions and the closing token.
func (p *Parser) parseArgs(closing TokenType) []Expr {
	var args []Expr
	if p.peekIs(closing) {
		p.next()
		return args
	}
	for {
		args = append(args, p.parseExpression())
		if p.peekIs(TokenComma) {
			p.next()
			continue
		}
		p.expect(closing)
		return args
	}
}

func (p *Parser) parsePrimary() Expr {
	tok := p.peek()
	switch tok.Type {
	case TokenInteger:
		p.next()
		return p.parseInteger(tok)
	case TokenFloat:
		p.next()
		v, err := strconv.ParseFloat(strings.ReplaceAll(tok.Literal, "_", ""), 64)
		if err != nil {
			p.failAt(tok.Pos, "invalid float literal %s", tok.Literal)
		}
		return &FloatLiteral{SpanVal: p.spanFrom(tok.Pos), Value: v}
	case TokenString:
		p.next()
		return &StringLiteral{SpanVal: p.spanFrom(tok.Pos), Value: tok.Literal}
	case TokenTrue, TokenFalse:
		p.next()
		return &BoolLiteral{SpanVal: p.spanFrom(tok.Pos), Value: tok.Type == TokenTrue}
	case TokenNil:
		p.next()
		return &NilLiteral{SpanVal: p.spanFrom(tok.Pos)}
	case TokenSelf:
		p.next()
		return &SelfExpr{SpanVal: p.spanFrom(tok.Pos)}
	case TokenVararg:
		p.next()
		return &VarargExpr{SpanVal: p.spanFrom(tok.Pos)}
	case TokenIdentifier:
		p.next()
		if p.peekIs(TokenDollar) {
			return p.parseResume(tok)
		}
		return &Identifier{SpanVal: p.spanFrom(tok.Pos), Name: tok.Literal}
	case TokenLParen:
		p.next()
		inner := p.parseExpression()
		p.expect(TokenRParen)
		return &ParenExpr{SpanVal: p.spanFrom(tok.Pos), Inner: inner}
	case TokenLBracket:
		p.next()
		elems := p.parseArgs(TokenRBracket)
		return &ArrayLiteral{SpanVal: p.spanFrom(tok.Pos), Elements: elems}
	case TokenLambda:
		return p.parseLambda()
	}
	p.errorf("unexpected %s", describe(tok))
	return nil
}

func (p *Parser) parseInteger(tok Token) Expr {
	lit := strings.ReplaceAll(tok.Literal, "_", "")
	v, err := strconv.ParseInt(lit, 0, 64)
	if err != nil {
		// Hex and binary literals may use the full 64 bits.
		u, uerr := strconv.ParseUint(lit, 0, 64)
		if uerr != nil || !(strings.HasPrefix(lit, "0x") || strings.HasPrefix(lit, "0X") ||
			strings.HasPrefix(lit, "0b") || strings.HasPrefix(lit, "0B")) {
			p.failAt(tok.Pos, "invalid integer literal %s", tok.Literal)
		}
		v = int64(u)
	}
	return &IntLiteral{SpanVal: p.spanFrom(tok.Pos), Value: v}
}

// parseResume parses name$ or name$(target); name has been consumed.
func (p *Parser) parseResume(name Token) Expr {
	p.expect(TokenDollar)
	res := &ResumeExpr{Name: name.Literal}
	if p.peekIs(TokenLParen) {
		p.next()
		res.Target = p.parseExpression()
		p.expect(TokenRParen)
	}
	res.SpanVal = p.spanFrom(name.Pos)
	return res
}

func (p *Parser) parseLambda() Expr {
	start := p.expect(TokenLambda).Pos
	p.expect(TokenLParen)
	params, vararg := p.parseParams()
	p.expect(TokenRParen)
	p.expect(TokenArrow)
	body := p.parseExpression()
	return &LambdaExpr{SpanVal: p.spanFrom(start), Params: params, Vararg: vararg, Body: body}
}
