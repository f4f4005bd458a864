package compiler

// ---------------------------------------------------------------------------
// Right-association pass for the assignment family
// ---------------------------------------------------------------------------

// Reassociate rotates the left spine of an assignment chain produced by
// precedence climbing so that assignment-family operators associate to the
// right: ((a = b) = c) becomes (a = (b = c)).
//
// The rotation only touches nodes whose operator is assignment-family;
// every other subtree is returned unchanged.
func Reassociate(e Expr) Expr {
	outer, ok := e.(*BinaryExpr)
	if !ok || !IsAssignOp(outer.Op) {
		return e
	}
	inner, ok := outer.Left.(*BinaryExpr)
	if !ok || !IsAssignOp(inner.Op) {
		return e
	}

	// ((x op1 y) op2 z)  =>  x op1 (y op2 z)
	right := Reassociate(&BinaryExpr{
		SpanVal: Span{Start: inner.Right.Span().Start, End: outer.SpanVal.End},
		Op:      outer.Op,
		Left:    inner.Right,
		Right:   outer.Right,
	})
	return Reassociate(&BinaryExpr{
		SpanVal: outer.SpanVal,
		Op:      inner.Op,
		Left:    inner.Left,
		Right:   right,
	})
}
