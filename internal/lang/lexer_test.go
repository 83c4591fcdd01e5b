package lang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(toks []Token) []TokenKind {
	out := make([]TokenKind, len(toks))
	for i, tok := range toks {
		out[i] = tok.Kind
	}
	return out
}

func TestTokenize_Statement(t *testing.T) {
	toks := Tokenize("let x = 1.5 + 2 // trailing\n")
	assert.Equal(t, []TokenKind{
		TokenLet, TokenIdent, TokenAssign, TokenFloat, TokenPlus, TokenInt, TokenNewline, TokenEOF,
	}, kinds(toks))
	assert.Equal(t, "x", toks[1].Text)
	assert.Equal(t, Pos{Line: 1, Col: 5}, toks[1].Pos)
	assert.Equal(t, "1.5", toks[3].Text)
}

func TestTokenize_DocComments(t *testing.T) {
	toks := Tokenize("/// Doubles its argument.\n//// banner\n// plain\nfn")
	require.Equal(t, []TokenKind{
		TokenDocComment, TokenNewline, TokenNewline, TokenNewline, TokenFn, TokenEOF,
	}, kinds(toks))
	assert.Equal(t, "Doubles its argument.", toks[0].Text)
	assert.Equal(t, Pos{Line: 4, Col: 1}, toks[4].Pos)
}

func TestTokenize_Operators(t *testing.T) {
	toks := Tokenize("== != <= >= && || < > = ! - * / %")
	assert.Equal(t, []TokenKind{
		TokenEq, TokenNotEq, TokenLtEq, TokenGtEq, TokenAnd, TokenOr,
		TokenLt, TokenGt, TokenAssign, TokenBang, TokenMinus, TokenStar, TokenSlash, TokenPercent,
		TokenEOF,
	}, kinds(toks))
}

func TestTokenize_Strings(t *testing.T) {
	toks := Tokenize(`"a\"b\n" "wörld"`)
	require.Len(t, toks, 3)
	assert.Equal(t, "a\"b\n", toks[0].Text)
	assert.Equal(t, "wörld", toks[1].Text)
	assert.Equal(t, Pos{Line: 1, Col: 10}, toks[1].Pos)
	assert.Equal(t, Pos{Line: 1, Col: 17}, toks[1].End)
}

func TestTokenize_UnterminatedString(t *testing.T) {
	toks := Tokenize("\"abc\nlet")
	assert.Equal(t, TokenIllegal, toks[0].Kind)
	assert.Equal(t, "unterminated string", toks[0].Text)
	assert.Equal(t, TokenNewline, toks[1].Kind)
	assert.Equal(t, TokenLet, toks[2].Kind)
}

func TestTokenize_NumberThenField(t *testing.T) {
	// 1.x is an int followed by a field access, not a float
	toks := Tokenize("1.x")
	assert.Equal(t, []TokenKind{TokenInt, TokenDot, TokenIdent, TokenEOF}, kinds(toks))
}

func TestIsKeyword(t *testing.T) {
	assert.True(t, IsKeyword("while"))
	assert.False(t, IsKeyword("print"))
}
