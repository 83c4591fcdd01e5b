package lang

import (
	"fmt"
	"strconv"
	"strings"
)

// SyntaxError is a parse failure at a source position
type SyntaxError struct {
	Pos Pos
	End Pos
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Pos.Line, e.Pos.Col, e.Msg)
}

// ErrorList collects the syntax errors of one parse
type ErrorList []*SyntaxError

func (l ErrorList) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	}
	return fmt.Sprintf("%s (and %d more errors)", l[0].Error(), len(l)-1)
}

// Parse parses a whole program. On failure the partial program is returned
// together with an ErrorList.
func Parse(src string) (*Program, error) {
	prog, errs := ParseTolerant(src)
	if len(errs) > 0 {
		return prog, errs
	}
	return prog, nil
}

// ParseTolerant parses src, skipping statements that fail to parse. Every
// well-formed statement is kept.
func ParseTolerant(src string) (*Program, ErrorList) {
	p := &parser{toks: Tokenize(src)}
	prog := &Program{}
	for {
		p.skipNewlines()
		tok := p.peek()
		if tok.Kind == TokenEOF {
			break
		}
		if tok.Kind == TokenRBrace {
			p.record(tok, "unexpected }")
			p.next()
			continue
		}
		if s := p.parseStmtRecover(false); s != nil {
			prog.Stmts = append(prog.Stmts, s)
		}
	}
	return prog, p.errs
}

// ParseExpr parses a single expression, as used by breakpoint conditions and
// debugger evaluation
func ParseExpr(src string) (expr Expr, err error) {
	p := &parser{toks: Tokenize(strings.TrimSpace(src))}
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			expr, err = nil, p.errs
		}
	}()

	expr = p.parseExpr()
	p.skipNewlines()
	if tok := p.peek(); tok.Kind != TokenEOF {
		p.fail(tok, "unexpected %s after expression", describe(tok))
	}
	return expr, nil
}

type bailout struct{}

type parser struct {
	toks []Token
	i    int
	nest int // open ( [ and record braces; newlines are insignificant while > 0
	errs ErrorList
}

func (p *parser) peek() Token {
	if p.nest > 0 {
		for p.toks[p.i].Kind == TokenNewline || p.toks[p.i].Kind == TokenDocComment {
			p.i++
		}
	}
	return p.toks[p.i]
}

func (p *parser) next() Token {
	tok := p.peek()
	if tok.Kind != TokenEOF {
		p.i++
	}
	return tok
}

func (p *parser) skipNewlines() {
	for p.toks[p.i].Kind == TokenNewline {
		p.i++
	}
}

func (p *parser) expect(kind TokenKind) Token {
	tok := p.peek()
	if tok.Kind != kind {
		p.fail(tok, "expected %s, found %s", kind, describe(tok))
	}
	return p.next()
}

func (p *parser) record(tok Token, format string, args ...any) {
	p.errs = append(p.errs, &SyntaxError{Pos: tok.Pos, End: tok.End, Msg: fmt.Sprintf(format, args...)})
}

func (p *parser) fail(tok Token, format string, args ...any) {
	p.record(tok, format, args...)
	panic(bailout{})
}

func describe(tok Token) string {
	switch tok.Kind {
	case TokenIdent:
		return fmt.Sprintf("identifier %q", tok.Text)
	case TokenIllegal:
		return tok.Text
	}
	return tok.Kind.String()
}

func (p *parser) parseStmtRecover(inBlock bool) (s Stmt) {
	start, nest := p.i, p.nest
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			p.nest = nest
			p.sync(inBlock, start)
			s = nil
		}
	}()

	s = p.parseStmt()
	if s == nil {
		return nil
	}

	switch tok := p.peek(); tok.Kind {
	case TokenNewline, TokenDocComment:
		p.next()
	case TokenEOF, TokenRBrace:
	default:
		p.record(tok, "unexpected %s after statement", describe(tok))
		p.sync(inBlock, start)
	}
	return s
}

// sync skips to the start of the next statement after an error
func (p *parser) sync(inBlock bool, start int) {
	errLine := 0
	if len(p.errs) > 0 {
		errLine = p.errs[len(p.errs)-1].Pos.Line
	}

	depth := 0
loop:
	for {
		tok := p.toks[p.i]
		switch tok.Kind {
		case TokenEOF:
			break loop
		case TokenNewline:
			if depth == 0 {
				p.i++
				break loop
			}
		case TokenLBrace:
			depth++
		case TokenRBrace:
			if depth == 0 {
				if inBlock {
					break loop
				}
			} else {
				depth--
			}
		case TokenLet, TokenFn, TokenWhile, TokenIf, TokenReturn:
			if depth == 0 && tok.Pos.Line > errLine {
				break loop
			}
		}
		p.i++
	}

	if p.i == start && p.toks[p.i].Kind != TokenEOF {
		p.i++
	}
}

func (p *parser) parseStmt() Stmt {
	var docs []string
	for {
		tok := p.peek()
		if tok.Kind == TokenDocComment {
			docs = append(docs, tok.Text)
			p.next()
			continue
		}
		if tok.Kind == TokenNewline && len(docs) > 0 {
			p.next()
			continue
		}
		break
	}
	doc := strings.Join(docs, "\n")

	tok := p.peek()
	switch tok.Kind {
	case TokenEOF, TokenRBrace:
		return nil
	case TokenLet:
		return p.parseLet(doc)
	case TokenFn:
		if p.toks[p.i+1].Kind == TokenIdent {
			return p.parseFn(doc)
		}
	case TokenReturn:
		p.next()
		ret := &ReturnStmt{At: tok.Pos}
		switch p.peek().Kind {
		case TokenNewline, TokenEOF, TokenRBrace, TokenDocComment:
		default:
			ret.Value = p.parseExpr()
		}
		return ret
	case TokenIf:
		return p.parseIf()
	case TokenWhile:
		p.next()
		cond := p.parseExpr()
		return &WhileStmt{At: tok.Pos, Cond: cond, Body: p.parseBlock()}
	}

	x := p.parseExpr()
	if eq := p.peek(); eq.Kind == TokenAssign {
		switch x.(type) {
		case *Ident, *FieldExpr, *IndexExpr:
		default:
			p.fail(eq, "cannot assign to this expression")
		}
		p.next()
		return &AssignStmt{Target: x, Value: p.parseExpr()}
	}
	return &ExprStmt{X: x}
}

func (p *parser) parseLet(doc string) *LetStmt {
	kw := p.next()
	name := p.expect(TokenIdent)
	p.expect(TokenAssign)
	return &LetStmt{At: kw.Pos, Name: name.Text, NamePos: name.Pos, Value: p.parseExpr(), Doc: doc}
}

func (p *parser) parseFn(doc string) *FnStmt {
	kw := p.next()
	name := p.expect(TokenIdent)
	params := p.parseParams()
	return &FnStmt{At: kw.Pos, Name: name.Text, NamePos: name.Pos, Params: params, Body: p.parseBlock(), Doc: doc}
}

func (p *parser) parseIf() *IfStmt {
	kw := p.next()
	stmt := &IfStmt{At: kw.Pos, Cond: p.parseExpr()}
	stmt.Then = p.parseBlock()
	if p.peek().Kind == TokenElse {
		p.next()
		if p.peek().Kind == TokenIf {
			stmt.Else = p.parseIf()
		} else {
			stmt.Else = p.parseBlock()
		}
	}
	return stmt
}

func (p *parser) parseParams() []Param {
	p.expect(TokenLParen)
	p.nest++
	var params []Param
	for p.peek().Kind != TokenRParen {
		name := p.expect(TokenIdent)
		params = append(params, Param{Name: name.Text, At: name.Pos})
		if p.peek().Kind != TokenComma {
			break
		}
		p.next()
	}
	p.expect(TokenRParen)
	p.nest--
	return params
}

func (p *parser) parseBlock() *Block {
	saved := p.nest
	p.nest = 0
	defer func() { p.nest = saved }()

	lb := p.expect(TokenLBrace)
	b := &Block{At: lb.Pos}
	for {
		p.skipNewlines()
		tok := p.peek()
		if tok.Kind == TokenRBrace {
			p.next()
			b.End = tok.Pos
			return b
		}
		if tok.Kind == TokenEOF {
			// Keep what was parsed so far; editors see unfinished blocks constantly.
			p.record(tok, "expected }, found end of file")
			b.End = tok.Pos
			return b
		}
		if s := p.parseStmtRecover(true); s != nil {
			b.Stmts = append(b.Stmts, s)
		}
	}
}

var precedences = map[TokenKind]int{
	TokenOr:      1,
	TokenAnd:     2,
	TokenEq:      3,
	TokenNotEq:   3,
	TokenLt:      4,
	TokenLtEq:    4,
	TokenGt:      4,
	TokenGtEq:    4,
	TokenPlus:    5,
	TokenMinus:   5,
	TokenStar:    6,
	TokenSlash:   6,
	TokenPercent: 6,
}

func (p *parser) parseExpr() Expr {
	return p.parseBinary(1)
}

func (p *parser) parseBinary(minPrec int) Expr {
	x := p.parseUnary()
	for {
		op := p.peek()
		prec := precedences[op.Kind]
		if prec == 0 || prec < minPrec {
			return x
		}
		p.next()
		p.skipNewlines()
		y := p.parseBinary(prec + 1)
		x = &BinaryExpr{X: x, Op: op.Kind, OpPos: op.Pos, Y: y}
	}
}

func (p *parser) parseUnary() Expr {
	tok := p.peek()
	if tok.Kind == TokenMinus || tok.Kind == TokenBang {
		p.next()
		return &UnaryExpr{At: tok.Pos, Op: tok.Kind, X: p.parseUnary()}
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() Expr {
	x := p.parsePrimary()
	for {
		tok := p.peek()
		switch tok.Kind {
		case TokenLParen:
			p.next()
			x = &CallExpr{Fn: x, Args: p.parseList(TokenRParen), At: tok.Pos}
		case TokenDot:
			p.next()
			name := p.expect(TokenIdent)
			x = &FieldExpr{X: x, Name: name.Text, NamePos: name.Pos}
		case TokenLBracket:
			p.next()
			p.nest++
			idx := p.parseExpr()
			p.expect(TokenRBracket)
			p.nest--
			x = &IndexExpr{X: x, Index: idx, At: tok.Pos}
		default:
			return x
		}
	}
}

// parseList parses comma separated expressions up to and including close.
// The opening token has already been consumed.
func (p *parser) parseList(close TokenKind) []Expr {
	p.nest++
	var items []Expr
	for p.peek().Kind != close {
		items = append(items, p.parseExpr())
		if p.peek().Kind != TokenComma {
			break
		}
		p.next()
	}
	p.expect(close)
	p.nest--
	return items
}

func (p *parser) parsePrimary() Expr {
	tok := p.peek()
	switch tok.Kind {
	case TokenInt:
		p.next()
		v, err := strconv.ParseInt(tok.Text, 10, 64)
		if err != nil {
			p.fail(tok, "integer literal %s out of range", tok.Text)
		}
		return &IntLit{At: tok.Pos, Value: v}
	case TokenFloat:
		p.next()
		v, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			p.fail(tok, "invalid float literal %s", tok.Text)
		}
		return &FloatLit{At: tok.Pos, Value: v}
	case TokenString:
		p.next()
		return &StringLit{At: tok.Pos, Value: tok.Text}
	case TokenTrue, TokenFalse:
		p.next()
		return &BoolLit{At: tok.Pos, Value: tok.Kind == TokenTrue}
	case TokenIdent:
		p.next()
		return &Ident{At: tok.Pos, Name: tok.Text}
	case TokenLParen:
		p.next()
		p.nest++
		x := p.parseExpr()
		p.expect(TokenRParen)
		p.nest--
		return x
	case TokenLBracket:
		p.next()
		return &ArrayLit{At: tok.Pos, Elems: p.parseList(TokenRBracket)}
	case TokenLBrace:
		return p.parseRecord()
	case TokenFn:
		p.next()
		params := p.parseParams()
		return &FuncLit{At: tok.Pos, Params: params, Body: p.parseBlock()}
	case TokenIllegal:
		if tok.Text == "unterminated string" {
			p.fail(tok, "unterminated string literal")
		}
		p.fail(tok, "unexpected character %q", tok.Text)
	}
	p.fail(tok, "unexpected %s", describe(tok))
	return nil
}

func (p *parser) parseRecord() *RecordLit {
	lb := p.next()
	p.nest++
	rec := &RecordLit{At: lb.Pos}
	for p.peek().Kind != TokenRBrace {
		name := p.expect(TokenIdent)
		p.expect(TokenAssign)
		rec.Fields = append(rec.Fields, FieldInit{Name: name.Text, At: name.Pos, Value: p.parseExpr()})
		if p.peek().Kind == TokenComma {
			p.next()
		}
	}
	p.expect(TokenRBrace)
	p.nest--
	return rec
}
