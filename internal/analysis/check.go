package analysis

import (
	"github.com/ctagard/glint-ls/internal/lang"
)

// Unknown is the type of expressions the checker cannot type
var Unknown Type = TypeVar("_")

// BindingKind classifies a declared name
type BindingKind int

const (
	BindingValue BindingKind = iota
	BindingFunction
	BindingParam
)

// Binding is a declared name with its inferred type
type Binding struct {
	Name string
	Kind BindingKind
	Type Type
	Doc  string
	Pos  lang.Pos // position of the name
	Decl lang.Pos // position of the declaring statement
}

// scope is the global scope or the body of one function. Blocks of if and
// while share the enclosing function scope, as they do at run time.
type scope struct {
	parent   *scope
	start    lang.Pos
	end      lang.Pos
	bindings []*Binding
	current  map[string]*Binding
	children []*scope
}

func newScope(parent *scope, start, end lang.Pos) *scope {
	s := &scope{parent: parent, start: start, end: end, current: make(map[string]*Binding)}
	if parent != nil {
		parent.children = append(parent.children, s)
	}
	return s
}

func (s *scope) contains(pos lang.Pos) bool {
	return !pos.Before(s.start) && !s.end.Before(pos)
}

type checker struct {
	cur *scope
}

type fnContext struct {
	results []Type
}

func check(prog *lang.Program) *scope {
	global := newScope(nil, lang.Pos{Line: 1, Col: 1}, lang.Pos{Line: 1 << 30, Col: 1})
	c := &checker{cur: global}
	c.stmts(prog.Stmts, nil)
	return global
}

func (c *checker) declare(b *Binding) {
	c.cur.bindings = append(c.cur.bindings, b)
	c.cur.current[b.Name] = b
}

func (c *checker) lookup(name string) Type {
	for s := c.cur; s != nil; s = s.parent {
		if b, ok := s.current[name]; ok {
			return b.Type
		}
	}
	if ft, ok := builtinTypes[name]; ok {
		return ft
	}
	return Unknown
}

func (c *checker) stmts(list []lang.Stmt, fn *fnContext) {
	for _, s := range list {
		c.stmt(s, fn)
	}
}

func (c *checker) stmt(s lang.Stmt, fn *fnContext) {
	switch s := s.(type) {
	case *lang.LetStmt:
		c.declare(&Binding{
			Name: s.Name,
			Kind: BindingValue,
			Type: c.expr(s.Value),
			Doc:  s.Doc,
			Pos:  s.NamePos,
			Decl: s.At,
		})

	case *lang.FnStmt:
		ft := &FuncType{Result: Unknown}
		for i := range s.Params {
			ft.Params = append(ft.Params, typeVarName(i))
		}
		c.declare(&Binding{
			Name: s.Name,
			Kind: BindingFunction,
			Type: ft,
			Doc:  s.Doc,
			Pos:  s.NamePos,
			Decl: s.At,
		})
		c.function(s.Params, s.Body, ft)

	case *lang.ReturnStmt:
		t := Type(TypeUnit)
		if s.Value != nil {
			t = c.expr(s.Value)
		}
		if fn != nil {
			fn.results = append(fn.results, t)
		}

	case *lang.IfStmt:
		c.expr(s.Cond)
		if s.Then != nil {
			c.stmts(s.Then.Stmts, fn)
		}
		if s.Else != nil {
			c.stmt(s.Else, fn)
		}

	case *lang.WhileStmt:
		c.expr(s.Cond)
		if s.Body != nil {
			c.stmts(s.Body.Stmts, fn)
		}

	case *lang.Block:
		c.stmts(s.Stmts, fn)

	case *lang.AssignStmt:
		c.expr(s.Target)
		c.expr(s.Value)

	case *lang.ExprStmt:
		c.expr(s.X)
	}
}

// function checks a body in a new scope and fills in ft.Result
func (c *checker) function(params []lang.Param, body *lang.Block, ft *FuncType) {
	if body == nil {
		return
	}
	saved := c.cur
	c.cur = newScope(saved, body.At, body.End)
	defer func() { c.cur = saved }()

	for i, p := range params {
		c.declare(&Binding{Name: p.Name, Kind: BindingParam, Type: ft.Params[i], Pos: p.At, Decl: p.At})
	}

	fn := &fnContext{}
	c.stmts(body.Stmts, fn)

	if len(fn.results) == 0 {
		ft.Result = TypeUnit
		return
	}
	ft.Result = Unknown
	for _, t := range fn.results {
		if t != Unknown {
			ft.Result = t
			return
		}
	}
}

func (c *checker) expr(x lang.Expr) Type {
	switch x := x.(type) {
	case nil:
		return Unknown
	case *lang.IntLit:
		return TypeInt
	case *lang.FloatLit:
		return TypeFloat
	case *lang.StringLit:
		return TypeString
	case *lang.BoolLit:
		return TypeBool
	case *lang.Ident:
		return c.lookup(x.Name)

	case *lang.ArrayLit:
		elem := Unknown
		for _, e := range x.Elems {
			if t := c.expr(e); elem == Unknown {
				elem = t
			}
		}
		if elem == Unknown {
			elem = typeVarName(0)
		}
		return &ArrayType{Elem: elem}

	case *lang.RecordLit:
		rec := newRecordType()
		for _, f := range x.Fields {
			rec.set(f.Name, c.expr(f.Value))
		}
		return rec

	case *lang.FuncLit:
		ft := &FuncType{Result: Unknown}
		for i := range x.Params {
			ft.Params = append(ft.Params, typeVarName(i))
		}
		c.function(x.Params, x.Body, ft)
		return ft

	case *lang.CallExpr:
		callee := c.expr(x.Fn)
		args := make([]Type, len(x.Args))
		for i, a := range x.Args {
			args[i] = c.expr(a)
		}
		ft, ok := callee.(*FuncType)
		if !ok {
			return Unknown
		}
		bound := make(map[TypeVar]Type)
		for i, p := range ft.Params {
			if tv, ok := p.(TypeVar); ok && i < len(args) && args[i] != Unknown {
				bound[tv] = args[i]
			}
		}
		return subst(ft.Result, bound)

	case *lang.FieldExpr:
		if rec, ok := c.expr(x.X).(*RecordType); ok {
			if t, ok := rec.Fields[x.Name]; ok {
				return t
			}
		}
		return Unknown

	case *lang.IndexExpr:
		c.expr(x.Index)
		switch t := c.expr(x.X).(type) {
		case *ArrayType:
			return t.Elem
		case Basic:
			if t == TypeString {
				return TypeString
			}
		}
		return Unknown

	case *lang.UnaryExpr:
		t := c.expr(x.X)
		if x.Op == lang.TokenBang {
			return TypeBool
		}
		return t

	case *lang.BinaryExpr:
		l, r := c.expr(x.X), c.expr(x.Y)
		switch x.Op {
		case lang.TokenEq, lang.TokenNotEq, lang.TokenLt, lang.TokenLtEq,
			lang.TokenGt, lang.TokenGtEq, lang.TokenAnd, lang.TokenOr:
			return TypeBool
		case lang.TokenPlus:
			if l == TypeString || r == TypeString {
				return TypeString
			}
		}
		switch {
		case l == TypeFloat || r == TypeFloat:
			return TypeFloat
		case l == TypeInt || r == TypeInt:
			return TypeInt
		}
		return Unknown
	}
	return Unknown
}

// scopeAt returns the innermost scope whose range contains pos
func (s *scope) scopeAt(pos lang.Pos) *scope {
	for _, child := range s.children {
		if child.contains(pos) {
			return child.scopeAt(pos)
		}
	}
	return s
}

// visible returns the bindings in scope at pos, innermost scope first and
// declaration order within a scope. A redeclared name keeps its first
// position in the order but takes the type of the latest declaration.
func (s *scope) visible(pos lang.Pos) []*Binding {
	var out []*Binding
	seen := make(map[string]bool)
	for sc := s.scopeAt(pos); sc != nil; sc = sc.parent {
		var order []string
		latest := make(map[string]*Binding)
		for _, b := range sc.bindings {
			if pos.Before(b.Pos) {
				continue
			}
			if _, ok := latest[b.Name]; !ok {
				order = append(order, b.Name)
			}
			latest[b.Name] = b
		}
		for _, name := range order {
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, latest[name])
		}
	}
	return out
}

// lookupAt finds the binding a use of name at pos refers to
func (s *scope) lookupAt(name string, pos lang.Pos) *Binding {
	for _, b := range s.visible(pos) {
		if b.Name == name {
			return b
		}
	}
	return nil
}
