package compiler

import "testing"

func ident(name string) *Identifier { return &Identifier{Name: name} }

func bin(op TokenType, l, r Expr) *BinaryExpr { return &BinaryExpr{Op: op, Left: l, Right: r} }

func TestReassociate(t *testing.T) {
	tests := []struct {
		name string
		in   Expr
		want string
	}{
		{
			"left chain rotates",
			bin(TokenAssign, bin(TokenAssign, ident("a"), ident("b")), ident("c")),
			"(= a (= b c))",
		},
		{
			"three deep",
			bin(TokenPlusAssign, bin(TokenAssign, bin(TokenMinusAssign, ident("a"), ident("b")), ident("c")), ident("d")),
			"(-= a (= b (+= c d)))",
		},
		{
			"non-assignment left operand untouched",
			bin(TokenAssign, bin(TokenPlus, ident("a"), ident("b")), ident("c")),
			"(= (+ a b) c)",
		},
		{
			"non-assignment root untouched",
			bin(TokenPlus, bin(TokenAssign, ident("a"), ident("b")), ident("c")),
			"(+ (= a b) c)",
		},
		{
			"already right-leaning",
			bin(TokenAssign, ident("a"), bin(TokenAssign, ident("b"), ident("c"))),
			"(= a (= b c))",
		},
		{"leaf", ident("a"), "a"},
	}
	for _, tt := range tests {
		if got := FormatExpr(Reassociate(tt.in)); got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.name, got, tt.want)
		}
	}
}
