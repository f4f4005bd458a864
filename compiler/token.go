package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the Kecaknoah lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError
	TokenNewline // logical line break: '\n' or ';'

	// Literals
	TokenInteger    // 42, 0xFF, 0b1010
	TokenFloat      // 3.14, 1.5e10
	TokenString     // "hello", 'hello'
	TokenIdentifier // foo, Bar

	// Keywords
	TokenClass
	TokenEndClass
	TokenFunc
	TokenEndFunc
	TokenStatic
	TokenLocal
	TokenIf
	TokenThen
	TokenElif
	TokenElse
	TokenEndIf
	TokenFor
	TokenWhile
	TokenNext
	TokenContinue
	TokenBreak
	TokenReturn
	TokenYield
	TokenCoroutine
	TokenNil
	TokenTrue
	TokenFalse
	TokenSelf

	// Delimiters
	TokenLParen   // (
	TokenRParen   // )
	TokenLBracket // [
	TokenRBracket // ]
	TokenComma    // ,
	TokenPeriod   // .
	TokenColon    // :
	TokenQuestion // ?
	TokenArrow    // =>
	TokenLambda   // \
	TokenDollar   // $
	TokenVararg   // ...

	// Arithmetic and bitwise operators
	TokenPlus       // +
	TokenMinus      // -
	TokenStar       // *
	TokenSlash      // /
	TokenPercent    // %
	TokenAmp        // &
	TokenPipe       // |
	TokenCaret      // ^
	TokenTilde      // ~
	TokenShiftLeft  // <<
	TokenShiftRight // >>

	// Logical and comparison operators
	TokenBang         // !
	TokenAndAlso      // &&
	TokenOrElse       // ||
	TokenNilCoalesce  // ??
	TokenEqual        // ==
	TokenNotEqual     // !=
	TokenLess         // <
	TokenGreater      // >
	TokenLessEqual    // <=
	TokenGreaterEqual // >=

	// Increment / decrement
	TokenIncrement // ++
	TokenDecrement // --

	// Assignment family
	TokenAssign            // =
	TokenPlusAssign        // +=
	TokenMinusAssign       // -=
	TokenStarAssign        // *=
	TokenSlashAssign       // /=
	TokenPercentAssign     // %=
	TokenAmpAssign         // &=
	TokenPipeAssign        // |=
	TokenCaretAssign       // ^=
	TokenShiftLeftAssign   // <<=
	TokenShiftRightAssign  // >>=
	TokenNilCoalesceAssign // ??=
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenError:      "ERROR",
	TokenNewline:    "NEWLINE",
	TokenInteger:    "INTEGER",
	TokenFloat:      "FLOAT",
	TokenString:     "STRING",
	TokenIdentifier: "IDENTIFIER",

	TokenClass:     "class",
	TokenEndClass:  "endclass",
	TokenFunc:      "func",
	TokenEndFunc:   "endfunc",
	TokenStatic:    "static",
	TokenLocal:     "local",
	TokenIf:        "if",
	TokenThen:      "then",
	TokenElif:      "elif",
	TokenElse:      "else",
	TokenEndIf:     "endif",
	TokenFor:       "for",
	TokenWhile:     "while",
	TokenNext:      "next",
	TokenContinue:  "continue",
	TokenBreak:     "break",
	TokenReturn:    "return",
	TokenYield:     "yield",
	TokenCoroutine: "coroutine",
	TokenNil:       "nil",
	TokenTrue:      "true",
	TokenFalse:     "false",
	TokenSelf:      "self",

	TokenLParen:   "(",
	TokenRParen:   ")",
	TokenLBracket: "[",
	TokenRBracket: "]",
	TokenComma:    ",",
	TokenPeriod:   ".",
	TokenColon:    ":",
	TokenQuestion: "?",
	TokenArrow:    "=>",
	TokenLambda:   "\\",
	TokenDollar:   "$",
	TokenVararg:   "...",

	TokenPlus:       "+",
	TokenMinus:      "-",
	TokenStar:       "*",
	TokenSlash:      "/",
	TokenPercent:    "%",
	TokenAmp:        "&",
	TokenPipe:       "|",
	TokenCaret:      "^",
	TokenTilde:      "~",
	TokenShiftLeft:  "<<",
	TokenShiftRight: ">>",

	TokenBang:         "!",
	TokenAndAlso:      "&&",
	TokenOrElse:       "||",
	TokenNilCoalesce:  "??",
	TokenEqual:        "==",
	TokenNotEqual:     "!=",
	TokenLess:         "<",
	TokenGreater:      ">",
	TokenLessEqual:    "<=",
	TokenGreaterEqual: ">=",

	TokenIncrement: "++",
	TokenDecrement: "--",

	TokenAssign:            "=",
	TokenPlusAssign:        "+=",
	TokenMinusAssign:       "-=",
	TokenStarAssign:        "*=",
	TokenSlashAssign:       "/=",
	TokenPercentAssign:     "%=",
	TokenAmpAssign:         "&=",
	TokenPipeAssign:        "|=",
	TokenCaretAssign:       "^=",
	TokenShiftLeftAssign:   "<<=",
	TokenShiftRightAssign:  ">>=",
	TokenNilCoalesceAssign: "??=",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// IsKeyword reports whether t is a reserved word.
func (t TokenType) IsKeyword() bool {
	return t >= TokenClass && t <= TokenSelf
}

// Position is a 1-based source location.
type Position struct {
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token represents a lexical token. Tokens are immutable once produced.
type Token struct {
	Type    TokenType
	Literal string   // the raw text (decoded for strings)
	Pos     Position // start position
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF:
		return "EOF"
	case TokenNewline:
		return "NEWLINE"
	case TokenError:
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// Reserved words mapped to their token types.
var reservedWords = map[string]TokenType{
	"class":     TokenClass,
	"endclass":  TokenEndClass,
	"func":      TokenFunc,
	"endfunc":   TokenEndFunc,
	"static":    TokenStatic,
	"local":     TokenLocal,
	"if":        TokenIf,
	"then":      TokenThen,
	"elif":      TokenElif,
	"else":      TokenElse,
	"endif":     TokenEndIf,
	"for":       TokenFor,
	"while":     TokenWhile,
	"next":      TokenNext,
	"continue":  TokenContinue,
	"break":     TokenBreak,
	"return":    TokenReturn,
	"yield":     TokenYield,
	"coroutine": TokenCoroutine,
	"nil":       TokenNil,
	"true":      TokenTrue,
	"false":     TokenFalse,
	"self":      TokenSelf,
}

// Keywords returns the reserved words in declaration order.
func Keywords() []string {
	out := make([]string, 0, len(reservedWords))
	for t := TokenClass; t <= TokenSelf; t++ {
		out = append(out, t.String())
	}
	return out
}

// TokenStream is a front-consumable token sequence. The parser only peeks
// at or removes the next token.
type TokenStream interface {
	Peek() Token
	Next() Token
}

// SliceStream is a TokenStream over a pre-lexed token slice.
type SliceStream struct {
	tokens []Token
	pos    int
}

// NewSliceStream wraps tokens. A trailing EOF is appended when missing.
func NewSliceStream(tokens []Token) *SliceStream {
	if len(tokens) == 0 || tokens[len(tokens)-1].Type != TokenEOF {
		var pos Position
		if len(tokens) > 0 {
			pos = tokens[len(tokens)-1].Pos
		}
		tokens = append(tokens, Token{Type: TokenEOF, Pos: pos})
	}
	return &SliceStream{tokens: tokens}
}

// Peek returns the next token without consuming it.
func (s *SliceStream) Peek() Token {
	return s.tokens[s.pos]
}

// Next consumes and returns the next token. EOF is sticky.
func (s *SliceStream) Next() Token {
	t := s.tokens[s.pos]
	if s.pos < len(s.tokens)-1 {
		s.pos++
	}
	return t
}
