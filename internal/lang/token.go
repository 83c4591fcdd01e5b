// Package lang implements the glint scripting language: lexer, parser and a
// tree-walking interpreter with statement-level hooks for debuggers.
//
// A glint program is a sequence of newline-terminated statements:
//
//	/// Doubles its argument.
//	fn double(x) {
//	    return x * 2
//	}
//	let r = { value = double(21) }
//	print(r.value)
//
// Values are Int, Float, String, Bool, arrays, records, functions and the
// unit value ().
package lang

import "fmt"

// Pos is a source position. Line and Col are 1-based; Col counts runes.
type Pos struct {
	Line int
	Col  int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Before reports whether p comes strictly before q
func (p Pos) Before(q Pos) bool {
	return p.Line < q.Line || (p.Line == q.Line && p.Col < q.Col)
}

// TokenKind identifies the lexical class of a token
type TokenKind int

const (
	TokenEOF TokenKind = iota
	TokenIllegal
	TokenNewline
	TokenDocComment

	TokenIdent
	TokenInt
	TokenFloat
	TokenString

	// keywords
	TokenLet
	TokenFn
	TokenReturn
	TokenIf
	TokenElse
	TokenWhile
	TokenTrue
	TokenFalse

	TokenLParen
	TokenRParen
	TokenLBrace
	TokenRBrace
	TokenLBracket
	TokenRBracket
	TokenComma
	TokenDot
	TokenAssign

	TokenPlus
	TokenMinus
	TokenStar
	TokenSlash
	TokenPercent
	TokenEq
	TokenNotEq
	TokenLt
	TokenLtEq
	TokenGt
	TokenGtEq
	TokenAnd
	TokenOr
	TokenBang
)

var tokenNames = map[TokenKind]string{
	TokenEOF:        "end of file",
	TokenIllegal:    "illegal token",
	TokenNewline:    "newline",
	TokenDocComment: "doc comment",
	TokenIdent:      "identifier",
	TokenInt:        "integer",
	TokenFloat:      "float",
	TokenString:     "string",
	TokenLet:        "let",
	TokenFn:         "fn",
	TokenReturn:     "return",
	TokenIf:         "if",
	TokenElse:       "else",
	TokenWhile:      "while",
	TokenTrue:       "true",
	TokenFalse:      "false",
	TokenLParen:     "(",
	TokenRParen:     ")",
	TokenLBrace:     "{",
	TokenRBrace:     "}",
	TokenLBracket:   "[",
	TokenRBracket:   "]",
	TokenComma:      ",",
	TokenDot:        ".",
	TokenAssign:     "=",
	TokenPlus:       "+",
	TokenMinus:      "-",
	TokenStar:       "*",
	TokenSlash:      "/",
	TokenPercent:    "%",
	TokenEq:         "==",
	TokenNotEq:      "!=",
	TokenLt:         "<",
	TokenLtEq:       "<=",
	TokenGt:         ">",
	TokenGtEq:       ">=",
	TokenAnd:        "&&",
	TokenOr:         "||",
	TokenBang:       "!",
}

func (k TokenKind) String() string {
	if name, ok := tokenNames[k]; ok {
		return name
	}
	return fmt.Sprintf("token(%d)", int(k))
}

var keywords = map[string]TokenKind{
	"let":    TokenLet,
	"fn":     TokenFn,
	"return": TokenReturn,
	"if":     TokenIf,
	"else":   TokenElse,
	"while":  TokenWhile,
	"true":   TokenTrue,
	"false":  TokenFalse,
}

// IsKeyword reports whether name is reserved
func IsKeyword(name string) bool {
	_, ok := keywords[name]
	return ok
}

// Token is a lexical token. Text holds the literal source for identifiers and
// numbers, the decoded value for strings and the trimmed text for doc comments.
type Token struct {
	Kind TokenKind
	Text string
	Pos  Pos
	End  Pos
}
