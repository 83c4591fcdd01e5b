package lang

// Node is any syntax tree node
type Node interface {
	Pos() Pos
}

// Stmt is a statement node
type Stmt interface {
	Node
	stmtNode()
}

// Expr is an expression node
type Expr interface {
	Node
	exprNode()
}

// Program is a parsed source file
type Program struct {
	Stmts []Stmt
}

// Param is a function parameter
type Param struct {
	Name string
	At   Pos
}

// Block is a brace-delimited statement list
type Block struct {
	At    Pos
	Stmts []Stmt
	End   Pos
}

type (
	// LetStmt declares a binding: let name = value
	LetStmt struct {
		At      Pos
		Name    string
		NamePos Pos
		Value   Expr
		Doc     string
	}

	// FnStmt declares a named function
	FnStmt struct {
		At      Pos
		Name    string
		NamePos Pos
		Params  []Param
		Body    *Block
		Doc     string
	}

	// ReturnStmt leaves the enclosing function. Value may be nil.
	ReturnStmt struct {
		At    Pos
		Value Expr
	}

	// IfStmt is a conditional. Else is nil, a *Block or an *IfStmt.
	IfStmt struct {
		At   Pos
		Cond Expr
		Then *Block
		Else Stmt
	}

	// WhileStmt loops while Cond is true
	WhileStmt struct {
		At   Pos
		Cond Expr
		Body *Block
	}

	// AssignStmt stores into an identifier, record field or array element
	AssignStmt struct {
		Target Expr
		Value  Expr
	}

	// ExprStmt evaluates an expression for its effects
	ExprStmt struct {
		X Expr
	}
)

func (s *Block) Pos() Pos      { return s.At }
func (s *LetStmt) Pos() Pos    { return s.At }
func (s *FnStmt) Pos() Pos     { return s.At }
func (s *ReturnStmt) Pos() Pos { return s.At }
func (s *IfStmt) Pos() Pos     { return s.At }
func (s *WhileStmt) Pos() Pos  { return s.At }
func (s *AssignStmt) Pos() Pos { return s.Target.Pos() }
func (s *ExprStmt) Pos() Pos   { return s.X.Pos() }

func (*Block) stmtNode()      {}
func (*LetStmt) stmtNode()    {}
func (*FnStmt) stmtNode()     {}
func (*ReturnStmt) stmtNode() {}
func (*IfStmt) stmtNode()     {}
func (*WhileStmt) stmtNode()  {}
func (*AssignStmt) stmtNode() {}
func (*ExprStmt) stmtNode()   {}

type (
	IntLit struct {
		At    Pos
		Value int64
	}

	FloatLit struct {
		At    Pos
		Value float64
	}

	StringLit struct {
		At    Pos
		Value string
	}

	BoolLit struct {
		At    Pos
		Value bool
	}

	Ident struct {
		At   Pos
		Name string
	}

	ArrayLit struct {
		At    Pos
		Elems []Expr
	}

	// FieldInit is one name = value entry of a record literal
	FieldInit struct {
		Name  string
		At    Pos
		Value Expr
	}

	RecordLit struct {
		At     Pos
		Fields []FieldInit
	}

	// FuncLit is an anonymous function: fn(x) { ... }
	FuncLit struct {
		At     Pos
		Params []Param
		Body   *Block
	}

	CallExpr struct {
		Fn   Expr
		Args []Expr
		At   Pos // position of the opening parenthesis
	}

	FieldExpr struct {
		X       Expr
		Name    string
		NamePos Pos
	}

	IndexExpr struct {
		X     Expr
		Index Expr
		At    Pos
	}

	UnaryExpr struct {
		At Pos
		Op TokenKind
		X  Expr
	}

	BinaryExpr struct {
		X     Expr
		Op    TokenKind
		OpPos Pos
		Y     Expr
	}
)

func (e *IntLit) Pos() Pos     { return e.At }
func (e *FloatLit) Pos() Pos   { return e.At }
func (e *StringLit) Pos() Pos  { return e.At }
func (e *BoolLit) Pos() Pos    { return e.At }
func (e *Ident) Pos() Pos      { return e.At }
func (e *ArrayLit) Pos() Pos   { return e.At }
func (e *RecordLit) Pos() Pos  { return e.At }
func (e *FuncLit) Pos() Pos    { return e.At }
func (e *CallExpr) Pos() Pos   { return e.Fn.Pos() }
func (e *FieldExpr) Pos() Pos  { return e.X.Pos() }
func (e *IndexExpr) Pos() Pos  { return e.X.Pos() }
func (e *UnaryExpr) Pos() Pos  { return e.At }
func (e *BinaryExpr) Pos() Pos { return e.X.Pos() }

func (*IntLit) exprNode()     {}
func (*FloatLit) exprNode()   {}
func (*StringLit) exprNode()  {}
func (*BoolLit) exprNode()    {}
func (*Ident) exprNode()      {}
func (*ArrayLit) exprNode()   {}
func (*RecordLit) exprNode()  {}
func (*FuncLit) exprNode()    {}
func (*CallExpr) exprNode()   {}
func (*FieldExpr) exprNode()  {}
func (*IndexExpr) exprNode()  {}
func (*UnaryExpr) exprNode()  {}
func (*BinaryExpr) exprNode() {}
