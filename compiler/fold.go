package compiler

import "github.com/chazu/kecaknoah/vm"

// ---------------------------------------------------------------------------
// Constant folding
// ---------------------------------------------------------------------------

// Fold evaluates unary and binary expressions whose operands are literals,
// using the same operator semantics as the VM. The assignment family and
// the short-circuit operators are never folded themselves; only their
// operands are. An operation that would fault at run time (division by
// zero, mismatched kinds) is left as is so the fault still happens when the
// code runs.
func Fold(e Expr) Expr {
	switch n := e.(type) {
	case *ParenExpr:
		inner := Fold(n.Inner)
		if isLiteral(inner) {
			return inner
		}
		return &ParenExpr{SpanVal: n.SpanVal, Inner: inner}

	case *UnaryExpr:
		op, ok := unaryOpcodes[n.Op]
		if !ok {
			return e
		}
		operand := Fold(n.Operand)
		if v, ok := literalValue(operand); ok {
			if res, err := vm.Operate(op, v, nil); err == nil {
				if lit, ok := valueLiteral(res, n.SpanVal); ok {
					return lit
				}
			}
		}
		return &UnaryExpr{SpanVal: n.SpanVal, Op: n.Op, Operand: operand}

	case *BinaryExpr:
		if IsAssignOp(n.Op) {
			return &BinaryExpr{SpanVal: n.SpanVal, Op: n.Op, Left: n.Left, Right: Fold(n.Right)}
		}
		left, right := Fold(n.Left), Fold(n.Right)
		op, ok := binaryOpcodes[n.Op]
		if !ok {
			return &BinaryExpr{SpanVal: n.SpanVal, Op: n.Op, Left: left, Right: right}
		}
		lv, lok := literalValue(left)
		rv, rok := literalValue(right)
		if lok && rok {
			if res, err := vm.Operate(op, lv, rv); err == nil {
				if lit, ok := valueLiteral(res, n.SpanVal); ok {
					return lit
				}
			}
		}
		return &BinaryExpr{SpanVal: n.SpanVal, Op: n.Op, Left: left, Right: right}
	}
	return e
}

func isLiteral(e Expr) bool {
	_, ok := literalValue(e)
	return ok
}

func literalValue(e Expr) (vm.Value, bool) {
	switch n := e.(type) {
	case *IntLiteral:
		return vm.Integer(n.Value), true
	case *FloatLiteral:
		return vm.Float(n.Value), true
	case *StringLiteral:
		return vm.String(n.Value), true
	case *BoolLiteral:
		return vm.Boolean(n.Value), true
	case *NilLiteral:
		return vm.Nil, true
	}
	return nil, false
}

func valueLiteral(v vm.Value, span Span) (Expr, bool) {
	switch x := v.(type) {
	case vm.Integer:
		return &IntLiteral{SpanVal: span, Value: int64(x)}, true
	case vm.Float:
		return &FloatLiteral{SpanVal: span, Value: float64(x)}, true
	case vm.String:
		return &StringLiteral{SpanVal: span, Value: string(x)}, true
	case vm.Boolean:
		return &BoolLiteral{SpanVal: span, Value: bool(x)}, true
	case vm.NilValue:
		return &NilLiteral{SpanVal: span}, true
	}
	return nil, false
}
