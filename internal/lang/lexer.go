package lang

import (
	"strings"
	"unicode"
)

// Lexer splits glint source into tokens
type Lexer struct {
	src  []rune
	off  int
	line int
	col  int
}

// NewLexer creates a lexer over src
func NewLexer(src string) *Lexer {
	return &Lexer{src: []rune(src), line: 1, col: 1}
}

// Tokenize returns every token of src, ending with TokenEOF
func Tokenize(src string) []Token {
	lx := NewLexer(src)
	var toks []Token
	for {
		tok := lx.Next()
		toks = append(toks, tok)
		if tok.Kind == TokenEOF {
			return toks
		}
	}
}

func (lx *Lexer) pos() Pos {
	return Pos{Line: lx.line, Col: lx.col}
}

func (lx *Lexer) peekRune(ahead int) rune {
	if lx.off+ahead >= len(lx.src) {
		return 0
	}
	return lx.src[lx.off+ahead]
}

func (lx *Lexer) advance() rune {
	r := lx.src[lx.off]
	lx.off++
	if r == '\n' {
		lx.line++
		lx.col = 1
	} else {
		lx.col++
	}
	return r
}

// Next returns the next token
func (lx *Lexer) Next() Token {
	for lx.off < len(lx.src) {
		r := lx.peekRune(0)
		switch {
		case r == '\n':
			start := lx.pos()
			lx.advance()
			return Token{Kind: TokenNewline, Text: "\n", Pos: start, End: start}
		case r == ' ' || r == '\t' || r == '\r':
			lx.advance()
		case r == '/' && lx.peekRune(1) == '/':
			if tok, ok := lx.comment(); ok {
				return tok
			}
		default:
			return lx.token()
		}
	}
	p := lx.pos()
	return Token{Kind: TokenEOF, Pos: p, End: p}
}

// comment consumes a line comment. Doc comments (///) become tokens.
func (lx *Lexer) comment() (Token, bool) {
	start := lx.pos()
	doc := lx.peekRune(2) == '/' && lx.peekRune(3) != '/'
	var sb strings.Builder
	for lx.off < len(lx.src) && lx.peekRune(0) != '\n' {
		sb.WriteRune(lx.advance())
	}
	if !doc {
		return Token{}, false
	}
	text := strings.TrimPrefix(sb.String(), "///")
	return Token{Kind: TokenDocComment, Text: strings.TrimSpace(text), Pos: start, End: lx.pos()}, true
}

func (lx *Lexer) token() Token {
	start := lx.pos()
	r := lx.advance()

	single := func(kind TokenKind) Token {
		return Token{Kind: kind, Text: string(r), Pos: start, End: lx.pos()}
	}
	double := func(next rune, kind, otherwise TokenKind) Token {
		if lx.peekRune(0) == next {
			lx.advance()
			return Token{Kind: kind, Text: string([]rune{r, next}), Pos: start, End: lx.pos()}
		}
		return single(otherwise)
	}

	switch {
	case isIdentStart(r):
		return lx.ident(start, r)
	case unicode.IsDigit(r):
		return lx.number(start, r)
	}

	switch r {
	case '"':
		return lx.str(start)
	case '(':
		return single(TokenLParen)
	case ')':
		return single(TokenRParen)
	case '{':
		return single(TokenLBrace)
	case '}':
		return single(TokenRBrace)
	case '[':
		return single(TokenLBracket)
	case ']':
		return single(TokenRBracket)
	case ',':
		return single(TokenComma)
	case '.':
		return single(TokenDot)
	case '+':
		return single(TokenPlus)
	case '-':
		return single(TokenMinus)
	case '*':
		return single(TokenStar)
	case '/':
		return single(TokenSlash)
	case '%':
		return single(TokenPercent)
	case '=':
		return double('=', TokenEq, TokenAssign)
	case '!':
		return double('=', TokenNotEq, TokenBang)
	case '<':
		return double('=', TokenLtEq, TokenLt)
	case '>':
		return double('=', TokenGtEq, TokenGt)
	case '&':
		return double('&', TokenAnd, TokenIllegal)
	case '|':
		return double('|', TokenOr, TokenIllegal)
	}
	return single(TokenIllegal)
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func (lx *Lexer) ident(start Pos, first rune) Token {
	var sb strings.Builder
	sb.WriteRune(first)
	for lx.off < len(lx.src) && isIdentPart(lx.peekRune(0)) {
		sb.WriteRune(lx.advance())
	}
	text := sb.String()
	kind := TokenIdent
	if kw, ok := keywords[text]; ok {
		kind = kw
	}
	return Token{Kind: kind, Text: text, Pos: start, End: lx.pos()}
}

func (lx *Lexer) number(start Pos, first rune) Token {
	var sb strings.Builder
	sb.WriteRune(first)
	kind := TokenInt
	for lx.off < len(lx.src) {
		r := lx.peekRune(0)
		if unicode.IsDigit(r) {
			sb.WriteRune(lx.advance())
			continue
		}
		if r == '.' && kind == TokenInt && unicode.IsDigit(lx.peekRune(1)) {
			kind = TokenFloat
			sb.WriteRune(lx.advance())
			continue
		}
		break
	}
	return Token{Kind: kind, Text: sb.String(), Pos: start, End: lx.pos()}
}

func (lx *Lexer) str(start Pos) Token {
	var sb strings.Builder
	for lx.off < len(lx.src) {
		r := lx.peekRune(0)
		switch r {
		case '"':
			lx.advance()
			return Token{Kind: TokenString, Text: sb.String(), Pos: start, End: lx.pos()}
		case '\n':
			return Token{Kind: TokenIllegal, Text: "unterminated string", Pos: start, End: lx.pos()}
		case '\\':
			lx.advance()
			if lx.off >= len(lx.src) {
				break
			}
			switch esc := lx.advance(); esc {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case 'r':
				sb.WriteRune('\r')
			case '"', '\\':
				sb.WriteRune(esc)
			default:
				sb.WriteRune('\\')
				sb.WriteRune(esc)
			}
		default:
			sb.WriteRune(lx.advance())
		}
	}
	return Token{Kind: TokenIllegal, Text: "unterminated string", Pos: start, End: lx.pos()}
}
