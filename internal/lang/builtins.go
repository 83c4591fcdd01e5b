package lang

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Builtins returns the predefined functions, sorted by name
func Builtins() []*Builtin {
	return []*Builtin{
		{
			Name:      "len",
			Signature: "a -> Int",
			Doc:       "Returns the number of elements of an array or characters of a string.",
			Arity:     1,
			Call: func(_ *Interpreter, args []Value) (Value, error) {
				switch v := args[0].(type) {
				case *Array:
					return Int(len(v.Elems)), nil
				case String:
					return Int(utf8.RuneCountInString(string(v))), nil
				}
				return nil, fmt.Errorf("expected Array or String, got %s", args[0].TypeName())
			},
		},
		{
			Name:      "not",
			Signature: "Bool -> Bool",
			Doc:       "Negates a boolean.",
			Arity:     1,
			Call: func(_ *Interpreter, args []Value) (Value, error) {
				b, ok := args[0].(Bool)
				if !ok {
					return nil, fmt.Errorf("expected Bool, got %s", args[0].TypeName())
				}
				return !b, nil
			},
		},
		{
			Name:      "print",
			Signature: "a -> ()",
			Doc:       "Writes its arguments separated by spaces, followed by a newline.",
			Arity:     -1,
			Call: func(in *Interpreter, args []Value) (Value, error) {
				parts := make([]string, len(args))
				for i, a := range args {
					parts[i] = Display(a)
				}
				if _, err := fmt.Fprintln(in.out, strings.Join(parts, " ")); err != nil {
					return nil, err
				}
				return Unit{}, nil
			},
		},
		{
			Name:      "str",
			Signature: "a -> String",
			Doc:       "Converts a value to its string form.",
			Arity:     1,
			Call: func(_ *Interpreter, args []Value) (Value, error) {
				return String(Display(args[0])), nil
			},
		},
	}
}

// LookupBuiltin returns the builtin called name
func LookupBuiltin(name string) (*Builtin, bool) {
	for _, b := range Builtins() {
		if b.Name == name {
			return b, true
		}
	}
	return nil, false
}
