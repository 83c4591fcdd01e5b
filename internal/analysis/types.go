package analysis

import (
	"strings"
)

// Type is an inferred static type
type Type interface {
	String() string
}

// Basic is a primitive type
type Basic string

const (
	TypeInt    Basic = "Int"
	TypeFloat  Basic = "Float"
	TypeString Basic = "String"
	TypeBool   Basic = "Bool"
	TypeUnit   Basic = "()"
)

func (b Basic) String() string { return string(b) }

// TypeVar stands for a type the checker could not pin down, such as an
// unannotated parameter
type TypeVar string

func (v TypeVar) String() string { return string(v) }

// ArrayType is a homogeneous array
type ArrayType struct {
	Elem Type
}

func (a *ArrayType) String() string {
	elem := a.Elem.String()
	if needsParens(a.Elem) {
		elem = "(" + elem + ")"
	}
	return "Array " + elem
}

// RecordType lists the fields of a record literal in declaration order
type RecordType struct {
	Names  []string
	Fields map[string]Type
}

func newRecordType() *RecordType {
	return &RecordType{Fields: make(map[string]Type)}
}

func (r *RecordType) set(name string, t Type) {
	if _, ok := r.Fields[name]; !ok {
		r.Names = append(r.Names, name)
	}
	r.Fields[name] = t
}

func (r *RecordType) String() string {
	if len(r.Names) == 0 {
		return "{}"
	}
	parts := make([]string, len(r.Names))
	for i, name := range r.Names {
		parts[i] = name + " : " + r.Fields[name].String()
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

// FuncType is a curried-style function signature: a -> b -> r
type FuncType struct {
	Params []Type
	Result Type
}

func (f *FuncType) String() string {
	var parts []string
	if len(f.Params) == 0 {
		parts = append(parts, "()")
	}
	for _, p := range f.Params {
		s := p.String()
		if _, ok := p.(*FuncType); ok {
			s = "(" + s + ")"
		}
		parts = append(parts, s)
	}
	parts = append(parts, f.Result.String())
	return strings.Join(parts, " -> ")
}

func needsParens(t Type) bool {
	switch t.(type) {
	case *FuncType, *ArrayType:
		return true
	}
	return false
}

func isNumeric(t Type) bool {
	return t == TypeInt || t == TypeFloat
}

// subst replaces type variables bound in env
func subst(t Type, env map[TypeVar]Type) Type {
	switch t := t.(type) {
	case TypeVar:
		if bound, ok := env[t]; ok {
			return bound
		}
	case *ArrayType:
		return &ArrayType{Elem: subst(t.Elem, env)}
	case *FuncType:
		out := &FuncType{Result: subst(t.Result, env)}
		for _, p := range t.Params {
			out.Params = append(out.Params, subst(p, env))
		}
		return out
	}
	return t
}

// typeVarName returns a, b, ..., z, a', b', ...
func typeVarName(i int) TypeVar {
	name := string(rune('a' + i%26))
	if i >= 26 {
		name += strings.Repeat("'", i/26)
	}
	return TypeVar(name)
}

var builtinTypes = map[string]*FuncType{
	"len":   {Params: []Type{TypeVar("a")}, Result: TypeInt},
	"not":   {Params: []Type{TypeBool}, Result: TypeBool},
	"print": {Params: []Type{TypeVar("a")}, Result: TypeUnit},
	"str":   {Params: []Type{TypeVar("a")}, Result: TypeString},
}
