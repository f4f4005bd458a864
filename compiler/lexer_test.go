package compiler

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func tokenTypes(t *testing.T, input string) []TokenType {
	t.Helper()
	tokens, err := Tokenize(input)
	if err != nil {
		t.Fatalf("Tokenize(%q): %v", input, err)
	}
	types := make([]TokenType, len(tokens))
	for i, tok := range tokens {
		types[i] = tok.Type
	}
	return types
}

func TestLexer_Operators(t *testing.T) {
	tests := []struct {
		input string
		want  []TokenType
	}{
		{"a <<= 1", []TokenType{TokenIdentifier, TokenShiftLeftAssign, TokenInteger, TokenEOF}},
		{"a ??= b ?? c", []TokenType{TokenIdentifier, TokenNilCoalesceAssign, TokenIdentifier, TokenNilCoalesce, TokenIdentifier, TokenEOF}},
		{"x++ + ++y", []TokenType{TokenIdentifier, TokenIncrement, TokenPlus, TokenIncrement, TokenIdentifier, TokenEOF}},
		{"a && b || !c", []TokenType{TokenIdentifier, TokenAndAlso, TokenIdentifier, TokenOrElse, TokenBang, TokenIdentifier, TokenEOF}},
		{`\(x, ...) => x`, []TokenType{TokenLambda, TokenLParen, TokenIdentifier, TokenComma, TokenVararg, TokenRParen, TokenArrow, TokenIdentifier, TokenEOF}},
		{"co$(v)", []TokenType{TokenIdentifier, TokenDollar, TokenLParen, TokenIdentifier, TokenRParen, TokenEOF}},
		{"a >= b != c", []TokenType{TokenIdentifier, TokenGreaterEqual, TokenIdentifier, TokenNotEqual, TokenIdentifier, TokenEOF}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, tokenTypes(t, tt.input)); diff != "" {
			t.Errorf("Tokenize(%q) mismatch (-want +got):\n%s", tt.input, diff)
		}
	}
}

func TestLexer_Keywords(t *testing.T) {
	got := tokenTypes(t, "class endclass func endfunc static local if then elif else endif for while next continue break return yield coroutine nil true false self")
	want := []TokenType{}
	for k := TokenClass; k <= TokenSelf; k++ {
		want = append(want, k)
	}
	want = append(want, TokenEOF)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("keywords mismatch (-want +got):\n%s", diff)
	}
	if len(Keywords()) != len(reservedWords) {
		t.Errorf("Keywords() has %d entries, want %d", len(Keywords()), len(reservedWords))
	}
}

func TestLexer_Numbers(t *testing.T) {
	tests := []struct {
		input   string
		typ     TokenType
		literal string
	}{
		{"42", TokenInteger, "42"},
		{"1_000", TokenInteger, "1_000"},
		{"0xFF", TokenInteger, "0xFF"},
		{"0b1010", TokenInteger, "0b1010"},
		{"3.14", TokenFloat, "3.14"},
		{"1e10", TokenFloat, "1e10"},
		{"2.5E-3", TokenFloat, "2.5E-3"},
	}
	for _, tt := range tests {
		tokens, err := Tokenize(tt.input)
		if err != nil {
			t.Errorf("Tokenize(%q): %v", tt.input, err)
			continue
		}
		if tokens[0].Type != tt.typ || tokens[0].Literal != tt.literal {
			t.Errorf("Tokenize(%q) = %s, want %s(%q)", tt.input, tokens[0], tt.typ, tt.literal)
		}
	}
}

func TestLexer_Strings(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"hello"`, "hello"},
		{`'single'`, "single"},
		{`"a\nb\t\"q\""`, "a\nb\t\"q\""},
		{`'it\'s'`, "it's"},
		{`"héllo"`, "héllo"},
	}
	for _, tt := range tests {
		tokens, err := Tokenize(tt.input)
		if err != nil {
			t.Errorf("Tokenize(%q): %v", tt.input, err)
			continue
		}
		if tokens[0].Type != TokenString || tokens[0].Literal != tt.want {
			t.Errorf("Tokenize(%q) = %q, want %q", tt.input, tokens[0].Literal, tt.want)
		}
	}
}

func TestLexer_NewlinesAndComments(t *testing.T) {
	got := tokenTypes(t, "a # comment\nb; c /* block\ncomment */ d")
	want := []TokenType{TokenIdentifier, TokenNewline, TokenIdentifier, TokenNewline, TokenIdentifier, TokenIdentifier, TokenEOF}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestLexer_NewlinesInsideBrackets(t *testing.T) {
	got := tokenTypes(t, "f(a,\n b)\n[1,\n2]")
	want := []TokenType{
		TokenIdentifier, TokenLParen, TokenIdentifier, TokenComma, TokenIdentifier, TokenRParen, TokenNewline,
		TokenLBracket, TokenInteger, TokenComma, TokenInteger, TokenRBracket, TokenEOF,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestLexer_Positions(t *testing.T) {
	tokens, err := Tokenize("a\n  bb = 1")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	want := []Position{{1, 1}, {1, 2}, {2, 3}, {2, 6}, {2, 8}}
	for i, pos := range want {
		if tokens[i].Pos != pos {
			t.Errorf("token %d (%s) at %s, want %s", i, tokens[i], tokens[i].Pos, pos)
		}
	}
}

func TestLexer_Errors(t *testing.T) {
	tests := []struct {
		input   string
		line    int
		column  int
		message string
	}{
		{`"open`, 1, 1, "unterminated string"},
		{"a @ b", 1, 3, "unexpected character @"},
		{`x = "\q"`, 1, 5, `unknown escape sequence \q`},
		{"1e+", 1, 1, "malformed exponent"},
	}
	for _, tt := range tests {
		_, err := Tokenize(tt.input)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Errorf("Tokenize(%q) error = %v, want *ParseError", tt.input, err)
			continue
		}
		if pe.Line != tt.line || pe.Column != tt.column || pe.Message != tt.message {
			t.Errorf("Tokenize(%q) = %v, want %d:%d: %s", tt.input, pe, tt.line, tt.column, tt.message)
		}
	}
}

func TestLexer_PeekNext(t *testing.T) {
	l := NewLexer("a b")
	if l.Peek().Literal != "a" || l.Peek().Literal != "a" {
		t.Error("Peek should not consume")
	}
	if l.Next().Literal != "a" || l.Next().Literal != "b" {
		t.Error("Next should consume in order")
	}
	if l.Next().Type != TokenEOF || l.Next().Type != TokenEOF {
		t.Error("EOF should be sticky")
	}
}
