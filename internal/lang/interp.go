package lang

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrInterrupted is returned by Run when its context is cancelled
var ErrInterrupted = errors.New("execution interrupted")

// DefaultMaxDepth bounds the call stack
const DefaultMaxDepth = 1000

// RuntimeError is a failure of the running program
type RuntimeError struct {
	Line int
	Msg  string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// Hook observes execution. Statement runs before every statement and before
// each further iteration of a while loop; a non-nil error aborts the run.
// Fault runs when a runtime error is raised, while the stack is still intact.
type Hook interface {
	Statement(line, depth int) error
	Fault(err *RuntimeError)
}

// Frame is one activation on the call stack
type Frame struct {
	Name     string
	Line     int
	Env      *Env
	Function bool
}

// Interpreter executes glint programs
type Interpreter struct {
	Globals *Env

	out      io.Writer
	hook     Hook
	maxDepth int
	frames   []*Frame
	ctx      context.Context
}

// Option configures an Interpreter
type Option func(*Interpreter)

// WithOutput sets the destination of print
func WithOutput(w io.Writer) Option {
	return func(in *Interpreter) { in.out = w }
}

// WithHook installs an execution hook
func WithHook(h Hook) Option {
	return func(in *Interpreter) { in.hook = h }
}

// WithMaxDepth bounds recursion
func WithMaxDepth(n int) Option {
	return func(in *Interpreter) {
		if n > 0 {
			in.maxDepth = n
		}
	}
}

// New creates an interpreter whose globals hold the builtins
func New(opts ...Option) *Interpreter {
	in := &Interpreter{
		out:      io.Discard,
		maxDepth: DefaultMaxDepth,
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(in)
	}

	builtins := NewEnv(nil)
	for _, b := range Builtins() {
		builtins.Define(b.Name, b)
	}
	in.Globals = NewEnv(builtins)
	return in
}

type returnSignal struct {
	value Value
}

// Run executes prog in the global scope. It returns nil on normal completion,
// ErrInterrupted on cancellation, a *RuntimeError on program failure or the
// error a hook returned.
func (in *Interpreter) Run(ctx context.Context, prog *Program) (err error) {
	in.ctx = ctx
	in.frames = []*Frame{{Name: "main", Env: in.Globals}}

	defer func() {
		if r := recover(); r != nil {
			line := 0
			if top := in.top(); top != nil {
				line = top.Line
			}
			rerr := &RuntimeError{Line: line, Msg: fmt.Sprintf("internal error: %v", r)}
			if in.hook != nil {
				in.hook.Fault(rerr)
			}
			err = rerr
		}
		in.frames = nil
	}()

	_, err = in.execStmts(prog.Stmts, in.Globals)
	return err
}

// Stack returns a copy of the call stack, innermost frame first
func (in *Interpreter) Stack() []Frame {
	out := make([]Frame, 0, len(in.frames))
	for i := len(in.frames) - 1; i >= 0; i-- {
		out = append(out, *in.frames[i])
	}
	return out
}

// Eval evaluates expr in env without firing hooks. Function calls made by
// expr run on a private stack, so Eval is safe while Run is suspended in a hook.
func (in *Interpreter) Eval(ctx context.Context, expr Expr, env *Env) (Value, error) {
	sub := &Interpreter{
		Globals:  in.Globals,
		out:      in.out,
		maxDepth: in.maxDepth,
		ctx:      ctx,
		frames:   []*Frame{{Name: "eval", Env: env}},
	}
	return sub.eval(expr, env)
}

func (in *Interpreter) top() *Frame {
	if len(in.frames) == 0 {
		return nil
	}
	return in.frames[len(in.frames)-1]
}

func (in *Interpreter) fail(at Pos, format string, args ...any) *RuntimeError {
	err := &RuntimeError{Line: at.Line, Msg: fmt.Sprintf(format, args...)}
	if in.hook != nil {
		in.hook.Fault(err)
	}
	return err
}

func (in *Interpreter) step(line int) error {
	if in.ctx.Err() != nil {
		return ErrInterrupted
	}
	if top := in.top(); top != nil {
		top.Line = line
	}
	if in.hook != nil {
		return in.hook.Statement(line, len(in.frames))
	}
	return nil
}

func (in *Interpreter) execStmts(stmts []Stmt, env *Env) (*returnSignal, error) {
	for _, s := range stmts {
		if err := in.step(s.Pos().Line); err != nil {
			return nil, err
		}
		ret, err := in.exec(s, env)
		if err != nil || ret != nil {
			return ret, err
		}
	}
	return nil, nil
}

func (in *Interpreter) exec(s Stmt, env *Env) (*returnSignal, error) {
	switch s := s.(type) {
	case *LetStmt:
		v, err := in.eval(s.Value, env)
		if err != nil {
			return nil, err
		}
		if fn, ok := v.(*Function); ok && fn.Name == "" {
			fn.Name = s.Name
		}
		env.Define(s.Name, v)

	case *FnStmt:
		env.Define(s.Name, &Function{
			Name:    s.Name,
			Params:  paramNames(s.Params),
			Body:    s.Body,
			Closure: env,
			At:      s.At,
		})

	case *ReturnStmt:
		if s.Value == nil {
			return &returnSignal{value: Unit{}}, nil
		}
		v, err := in.eval(s.Value, env)
		if err != nil {
			return nil, err
		}
		return &returnSignal{value: v}, nil

	case *IfStmt:
		cond, err := in.condition(s.Cond, env)
		if err != nil {
			return nil, err
		}
		if cond {
			return in.execStmts(s.Then.Stmts, env)
		}
		switch e := s.Else.(type) {
		case *Block:
			return in.execStmts(e.Stmts, env)
		case *IfStmt:
			if err := in.step(e.At.Line); err != nil {
				return nil, err
			}
			return in.exec(e, env)
		}

	case *WhileStmt:
		for first := true; ; first = false {
			if !first {
				if err := in.step(s.At.Line); err != nil {
					return nil, err
				}
			}
			cond, err := in.condition(s.Cond, env)
			if err != nil {
				return nil, err
			}
			if !cond {
				return nil, nil
			}
			ret, err := in.execStmts(s.Body.Stmts, env)
			if err != nil || ret != nil {
				return ret, err
			}
		}

	case *AssignStmt:
		v, err := in.eval(s.Value, env)
		if err != nil {
			return nil, err
		}
		return nil, in.assign(s.Target, v, env)

	case *ExprStmt:
		_, err := in.eval(s.X, env)
		return nil, err

	case *Block:
		return in.execStmts(s.Stmts, env)

	default:
		return nil, in.fail(s.Pos(), "unsupported statement %T", s)
	}
	return nil, nil
}

func paramNames(params []Param) []string {
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	return names
}

func (in *Interpreter) condition(x Expr, env *Env) (bool, error) {
	v, err := in.eval(x, env)
	if err != nil {
		return false, err
	}
	b, ok := v.(Bool)
	if !ok {
		return false, in.fail(x.Pos(), "condition must be Bool, got %s", v.TypeName())
	}
	return bool(b), nil
}

func (in *Interpreter) assign(target Expr, v Value, env *Env) error {
	switch t := target.(type) {
	case *Ident:
		if !env.Assign(t.Name, v) {
			return in.fail(t.At, "assignment to undefined variable %s", t.Name)
		}
		return nil
	case *FieldExpr:
		x, err := in.eval(t.X, env)
		if err != nil {
			return err
		}
		rec, ok := x.(*Record)
		if !ok {
			return in.fail(t.NamePos, "cannot set field %s on %s", t.Name, x.TypeName())
		}
		rec.Set(t.Name, v)
		return nil
	case *IndexExpr:
		x, err := in.eval(t.X, env)
		if err != nil {
			return err
		}
		arr, ok := x.(*Array)
		if !ok {
			return in.fail(t.At, "cannot index %s", x.TypeName())
		}
		idx, err := in.index(t, env, len(arr.Elems))
		if err != nil {
			return err
		}
		arr.Elems[idx] = v
		return nil
	}
	return in.fail(target.Pos(), "cannot assign to expression")
}

func (in *Interpreter) index(t *IndexExpr, env *Env, length int) (int, error) {
	iv, err := in.eval(t.Index, env)
	if err != nil {
		return 0, err
	}
	i, ok := iv.(Int)
	if !ok {
		return 0, in.fail(t.At, "index must be Int, got %s", iv.TypeName())
	}
	if i < 0 || int(i) >= length {
		return 0, in.fail(t.At, "index %d out of range [0, %d)", i, length)
	}
	return int(i), nil
}

func (in *Interpreter) eval(x Expr, env *Env) (Value, error) {
	switch x := x.(type) {
	case *IntLit:
		return Int(x.Value), nil
	case *FloatLit:
		return Float(x.Value), nil
	case *StringLit:
		return String(x.Value), nil
	case *BoolLit:
		return Bool(x.Value), nil

	case *Ident:
		v, ok := env.Lookup(x.Name)
		if !ok {
			return nil, in.fail(x.At, "undefined variable %s", x.Name)
		}
		return v, nil

	case *ArrayLit:
		arr := &Array{Elems: make([]Value, 0, len(x.Elems))}
		for _, e := range x.Elems {
			v, err := in.eval(e, env)
			if err != nil {
				return nil, err
			}
			arr.Elems = append(arr.Elems, v)
		}
		return arr, nil

	case *RecordLit:
		rec := NewRecord()
		for _, f := range x.Fields {
			v, err := in.eval(f.Value, env)
			if err != nil {
				return nil, err
			}
			rec.Set(f.Name, v)
		}
		return rec, nil

	case *FuncLit:
		return &Function{Params: paramNames(x.Params), Body: x.Body, Closure: env, At: x.At}, nil

	case *FieldExpr:
		v, err := in.eval(x.X, env)
		if err != nil {
			return nil, err
		}
		rec, ok := v.(*Record)
		if !ok {
			return nil, in.fail(x.NamePos, "%s has no field %s", v.TypeName(), x.Name)
		}
		f, ok := rec.Fields[x.Name]
		if !ok {
			return nil, in.fail(x.NamePos, "record has no field %s", x.Name)
		}
		return f, nil

	case *IndexExpr:
		v, err := in.eval(x.X, env)
		if err != nil {
			return nil, err
		}
		switch c := v.(type) {
		case *Array:
			i, err := in.index(x, env, len(c.Elems))
			if err != nil {
				return nil, err
			}
			return c.Elems[i], nil
		case String:
			runes := []rune(string(c))
			i, err := in.index(x, env, len(runes))
			if err != nil {
				return nil, err
			}
			return String(runes[i]), nil
		}
		return nil, in.fail(x.At, "cannot index %s", v.TypeName())

	case *CallExpr:
		return in.call(x, env)

	case *UnaryExpr:
		v, err := in.eval(x.X, env)
		if err != nil {
			return nil, err
		}
		return in.unary(x, v)

	case *BinaryExpr:
		return in.binary(x, env)
	}
	return nil, in.fail(x.Pos(), "unsupported expression %T", x)
}

func (in *Interpreter) call(x *CallExpr, env *Env) (Value, error) {
	callee, err := in.eval(x.Fn, env)
	if err != nil {
		return nil, err
	}

	args := make([]Value, 0, len(x.Args))
	for _, a := range x.Args {
		v, err := in.eval(a, env)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	switch fn := callee.(type) {
	case *Builtin:
		if fn.Arity >= 0 && len(args) != fn.Arity {
			return nil, in.fail(x.At, "%s expects %d arguments, got %d", fn.Name, fn.Arity, len(args))
		}
		v, err := fn.Call(in, args)
		if err != nil {
			return nil, in.fail(x.At, "%s: %v", fn.Name, err)
		}
		return v, nil

	case *Function:
		if len(args) != len(fn.Params) {
			return nil, in.fail(x.At, "%s expects %d arguments, got %d", fn.String(), len(fn.Params), len(args))
		}
		if len(in.frames) >= in.maxDepth {
			return nil, in.fail(x.At, "stack overflow: call depth exceeds %d", in.maxDepth)
		}

		local := NewEnv(fn.Closure)
		for i, p := range fn.Params {
			local.Define(p, args[i])
		}

		name := fn.Name
		if name == "" {
			name = "<lambda>"
		}
		in.frames = append(in.frames, &Frame{Name: name, Line: fn.At.Line, Env: local, Function: true})
		ret, err := in.execStmts(fn.Body.Stmts, local)
		if err != nil {
			// The failing frame stays visible to hooks until Run unwinds.
			return nil, err
		}
		in.frames = in.frames[:len(in.frames)-1]

		if ret == nil {
			return Unit{}, nil
		}
		return ret.value, nil
	}
	return nil, in.fail(x.At, "%s is not callable", callee.TypeName())
}

func (in *Interpreter) unary(x *UnaryExpr, v Value) (Value, error) {
	switch x.Op {
	case TokenMinus:
		switch n := v.(type) {
		case Int:
			return -n, nil
		case Float:
			return -n, nil
		}
		return nil, in.fail(x.At, "cannot negate %s", v.TypeName())
	case TokenBang:
		if b, ok := v.(Bool); ok {
			return !b, nil
		}
		return nil, in.fail(x.At, "operator ! expects Bool, got %s", v.TypeName())
	}
	return nil, in.fail(x.At, "unknown unary operator %s", x.Op)
}

func (in *Interpreter) binary(x *BinaryExpr, env *Env) (Value, error) {
	l, err := in.eval(x.X, env)
	if err != nil {
		return nil, err
	}

	if x.Op == TokenAnd || x.Op == TokenOr {
		lb, ok := l.(Bool)
		if !ok {
			return nil, in.fail(x.OpPos, "operator %s expects Bool, got %s", x.Op, l.TypeName())
		}
		if (x.Op == TokenAnd && !bool(lb)) || (x.Op == TokenOr && bool(lb)) {
			return lb, nil
		}
		r, err := in.eval(x.Y, env)
		if err != nil {
			return nil, err
		}
		rb, ok := r.(Bool)
		if !ok {
			return nil, in.fail(x.OpPos, "operator %s expects Bool, got %s", x.Op, r.TypeName())
		}
		return rb, nil
	}

	r, err := in.eval(x.Y, env)
	if err != nil {
		return nil, err
	}

	switch x.Op {
	case TokenEq:
		return Bool(Equal(l, r)), nil
	case TokenNotEq:
		return Bool(!Equal(l, r)), nil
	}

	if ls, ok := l.(String); ok {
		rs, ok := r.(String)
		if !ok {
			return nil, in.fail(x.OpPos, "mismatched operands String %s %s", x.Op, r.TypeName())
		}
		switch x.Op {
		case TokenPlus:
			return ls + rs, nil
		case TokenLt:
			return Bool(ls < rs), nil
		case TokenLtEq:
			return Bool(ls <= rs), nil
		case TokenGt:
			return Bool(ls > rs), nil
		case TokenGtEq:
			return Bool(ls >= rs), nil
		}
		return nil, in.fail(x.OpPos, "operator %s is not defined on String", x.Op)
	}

	li, lInt := l.(Int)
	ri, rInt := r.(Int)
	if lInt && rInt {
		switch x.Op {
		case TokenPlus:
			return li + ri, nil
		case TokenMinus:
			return li - ri, nil
		case TokenStar:
			return li * ri, nil
		case TokenSlash:
			if ri == 0 {
				return nil, in.fail(x.OpPos, "division by zero")
			}
			return li / ri, nil
		case TokenPercent:
			if ri == 0 {
				return nil, in.fail(x.OpPos, "division by zero")
			}
			return li % ri, nil
		case TokenLt:
			return Bool(li < ri), nil
		case TokenLtEq:
			return Bool(li <= ri), nil
		case TokenGt:
			return Bool(li > ri), nil
		case TokenGtEq:
			return Bool(li >= ri), nil
		}
	}

	lf, lok := toFloat(l)
	rf, rok := toFloat(r)
	if !lok || !rok {
		return nil, in.fail(x.OpPos, "operator %s is not defined on %s and %s", x.Op, l.TypeName(), r.TypeName())
	}
	switch x.Op {
	case TokenPlus:
		return lf + rf, nil
	case TokenMinus:
		return lf - rf, nil
	case TokenStar:
		return lf * rf, nil
	case TokenSlash:
		return lf / rf, nil
	case TokenLt:
		return Bool(lf < rf), nil
	case TokenLtEq:
		return Bool(lf <= rf), nil
	case TokenGt:
		return Bool(lf > rf), nil
	case TokenGtEq:
		return Bool(lf >= rf), nil
	}
	return nil, in.fail(x.OpPos, "operator %s is not defined on Float", x.Op)
}

func toFloat(v Value) (Float, bool) {
	switch n := v.(type) {
	case Int:
		return Float(n), true
	case Float:
		return n, true
	}
	return 0, false
}
