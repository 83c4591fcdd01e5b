package lang

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Value is a runtime value
type Value interface {
	// TypeName is the glint type name shown by debuggers
	TypeName() string
	// String renders the value as it would be written in source
	String() string
}

type (
	Int    int64
	Float  float64
	String string
	Bool   bool
	Unit   struct{}
)

// Array is a mutable, reference-semantics list
type Array struct {
	Elems []Value
}

// Record is a mutable, reference-semantics set of named fields. Names keeps
// declaration order.
type Record struct {
	Names  []string
	Fields map[string]Value
}

// NewRecord creates an empty record
func NewRecord() *Record {
	return &Record{Fields: make(map[string]Value)}
}

// Set stores a field, appending the name when it is new
func (r *Record) Set(name string, v Value) {
	if _, ok := r.Fields[name]; !ok {
		r.Names = append(r.Names, name)
	}
	r.Fields[name] = v
}

// Function is a user-defined function or lambda with its closure
type Function struct {
	Name    string
	Params  []string
	Body    *Block
	Closure *Env
	At      Pos
}

// Builtin is a function implemented in Go
type Builtin struct {
	Name      string
	Signature string
	Doc       string
	Arity     int // -1 for variadic
	Call      func(in *Interpreter, args []Value) (Value, error)
}

func (Int) TypeName() string       { return "Int" }
func (Float) TypeName() string     { return "Float" }
func (String) TypeName() string    { return "String" }
func (Bool) TypeName() string      { return "Bool" }
func (Unit) TypeName() string      { return "()" }
func (*Array) TypeName() string    { return "Array" }
func (*Record) TypeName() string   { return "Record" }
func (*Function) TypeName() string { return "Function" }
func (*Builtin) TypeName() string  { return "Function" }

func (v Int) String() string { return strconv.FormatInt(int64(v), 10) }

func (v Float) String() string {
	f := float64(v)
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func (v String) String() string { return strconv.Quote(string(v)) }
func (v Bool) String() string   { return strconv.FormatBool(bool(v)) }
func (Unit) String() string     { return "()" }

func (a *Array) String() string {
	parts := make([]string, len(a.Elems))
	for i, e := range a.Elems {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (r *Record) String() string {
	if len(r.Names) == 0 {
		return "{}"
	}
	parts := make([]string, len(r.Names))
	for i, name := range r.Names {
		parts[i] = name + " = " + r.Fields[name].String()
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

func (f *Function) String() string {
	name := f.Name
	if name == "" {
		name = "<lambda>"
	}
	return fmt.Sprintf("fn %s(%s)", name, strings.Join(f.Params, ", "))
}

func (b *Builtin) String() string { return "builtin " + b.Name }

// Display renders v for print: strings without quotes
func Display(v Value) string {
	if s, ok := v.(String); ok {
		return string(s)
	}
	return v.String()
}

// Equal reports structural equality
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case Int:
		switch y := b.(type) {
		case Int:
			return x == y
		case Float:
			return Float(x) == y
		}
	case Float:
		switch y := b.(type) {
		case Float:
			return x == y
		case Int:
			return x == Float(y)
		}
	case String:
		y, ok := b.(String)
		return ok && x == y
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y
	case Unit:
		_, ok := b.(Unit)
		return ok
	case *Array:
		y, ok := b.(*Array)
		if !ok || len(x.Elems) != len(y.Elems) {
			return false
		}
		for i := range x.Elems {
			if !Equal(x.Elems[i], y.Elems[i]) {
				return false
			}
		}
		return true
	case *Record:
		y, ok := b.(*Record)
		if !ok || len(x.Fields) != len(y.Fields) {
			return false
		}
		for name, v := range x.Fields {
			w, ok := y.Fields[name]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	}
	return a == b
}

// Env is a variable scope. Names keeps declaration order for debuggers.
type Env struct {
	parent *Env
	names  []string
	vars   map[string]Value
}

// NewEnv creates a scope nested in parent, which may be nil
func NewEnv(parent *Env) *Env {
	return &Env{parent: parent, vars: make(map[string]Value)}
}

// Parent returns the enclosing scope
func (e *Env) Parent() *Env {
	return e.parent
}

// Define binds name in this scope, shadowing any outer binding
func (e *Env) Define(name string, v Value) {
	if _, ok := e.vars[name]; !ok {
		e.names = append(e.names, name)
	}
	e.vars[name] = v
}

// Lookup finds name in this scope or an enclosing one
func (e *Env) Lookup(name string) (Value, bool) {
	for s := e; s != nil; s = s.parent {
		if v, ok := s.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Assign updates an existing binding. It reports false when name is unbound.
func (e *Env) Assign(name string, v Value) bool {
	for s := e; s != nil; s = s.parent {
		if _, ok := s.vars[name]; ok {
			s.vars[name] = v
			return true
		}
	}
	return false
}

// Names returns the names bound directly in this scope, in declaration order
func (e *Env) Names() []string {
	out := make([]string, len(e.names))
	copy(out, e.names)
	return out
}

// Get returns a binding of this scope only
func (e *Env) Get(name string) (Value, bool) {
	v, ok := e.vars[name]
	return v, ok
}

// SortedNames returns the names of this scope in lexical order
func (e *Env) SortedNames() []string {
	names := e.Names()
	sort.Strings(names)
	return names
}
