// Package analysis answers editor queries about glint source: completion,
// hover, document symbols and diagnostics. Every query works on a tolerant
// parse, so a document that is being typed still yields results.
package analysis

import (
	"strings"
	"unicode"

	"github.com/ctagard/glint-ls/internal/lang"
)

// CompletionKind classifies a completion item
type CompletionKind int

const (
	CompletionVariable CompletionKind = iota + 1
	CompletionFunction
)

// CompletionItem is one completion candidate
type CompletionItem struct {
	Label         string
	Kind          CompletionKind
	Detail        string
	Documentation string
}

// Range is a half-open source span
type Range struct {
	Start lang.Pos
	End   lang.Pos
}

// Severity of a diagnostic, numbered as in LSP
type Severity int

const (
	SeverityError Severity = iota + 1
	SeverityWarning
)

// Diagnostic is a problem found in a document
type Diagnostic struct {
	Range    Range
	Severity Severity
	Message  string
}

// Hover is the description of the name under the cursor
type Hover struct {
	Contents string
	Range    Range
}

// Symbol is a top-level declaration
type Symbol struct {
	Name      string
	Kind      CompletionKind
	Detail    string
	Range     Range
	Selection Range
}

// Document is the analysed form of one source text
type Document struct {
	Text    string
	Program *lang.Program

	lines    []string
	errs     lang.ErrorList
	global   *scope
	builtins bool
}

// Option configures Analyze
type Option func(*Document)

// WithoutBuiltins leaves builtins out of completion results
func WithoutBuiltins() Option {
	return func(d *Document) { d.builtins = false }
}

// Analyze parses text and infers the types of its bindings
func Analyze(text string, opts ...Option) *Document {
	prog, errs := lang.ParseTolerant(text)
	d := &Document{
		Text:     text,
		Program:  prog,
		lines:    strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n"),
		errs:     errs,
		global:   check(prog),
		builtins: true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Line returns the runes of a 1-based line, or nil past the end of the text
func (d *Document) Line(line int) []rune {
	if line < 1 || line > len(d.lines) {
		return nil
	}
	return []rune(d.lines[line-1])
}

// Bindings returns the names visible at pos
func (d *Document) Bindings(pos lang.Pos) []*Binding {
	return d.global.visible(pos)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

// beforeCursor returns the text of pos's line up to pos, clamped to the line
func (d *Document) beforeCursor(pos lang.Pos) []rune {
	line := d.Line(pos.Line)
	col := pos.Col - 1
	if col > len(line) {
		col = len(line)
	}
	if col < 0 {
		col = 0
	}
	return line[:col]
}

// receiverChain parses "a.b.c" backwards from the end of rs
func receiverChain(rs []rune) ([]string, bool) {
	var chain []string
	for {
		end := len(rs)
		start := end
		for start > 0 && isIdentPart(rs[start-1]) {
			start--
		}
		if start == end {
			return nil, false
		}
		chain = append([]string{string(rs[start:end])}, chain...)
		if start > 0 && rs[start-1] == '.' {
			rs = rs[:start-1]
			continue
		}
		return chain, isIdentStart([]rune(chain[0])[0])
	}
}

// typeOfChain resolves a receiver chain to a type at pos
func (d *Document) typeOfChain(chain []string, pos lang.Pos) Type {
	b := d.global.lookupAt(chain[0], pos)
	if b == nil {
		return Unknown
	}
	t := b.Type
	for _, field := range chain[1:] {
		rec, ok := t.(*RecordType)
		if !ok {
			return Unknown
		}
		if t, ok = rec.Fields[field]; !ok {
			return Unknown
		}
	}
	return t
}

func kindOf(b *Binding) CompletionKind {
	if b.Kind == BindingFunction {
		return CompletionFunction
	}
	return CompletionVariable
}

// Completions returns the candidates for the identifier ending at pos. After
// "recv." the fields of recv's record type are offered instead of names.
func (d *Document) Completions(pos lang.Pos) []CompletionItem {
	before := d.beforeCursor(pos)
	i := len(before)
	for i > 0 && isIdentPart(before[i-1]) {
		i--
	}
	prefix := string(before[i:])
	if prefix != "" && !isIdentStart([]rune(prefix)[0]) {
		return nil
	}

	if i > 0 && before[i-1] == '.' {
		return d.fieldCompletions(before[:i-1], prefix, pos)
	}

	items := []CompletionItem{}
	seen := make(map[string]bool)
	for _, b := range d.global.visible(pos) {
		if !strings.HasPrefix(b.Name, prefix) {
			continue
		}
		seen[b.Name] = true
		items = append(items, CompletionItem{Label: b.Name, Kind: kindOf(b), Detail: b.Type.String()})
	}
	if d.builtins {
		for _, fn := range lang.Builtins() {
			if seen[fn.Name] || !strings.HasPrefix(fn.Name, prefix) {
				continue
			}
			items = append(items, CompletionItem{Label: fn.Name, Kind: CompletionVariable, Detail: fn.Signature})
		}
	}
	return items
}

func (d *Document) fieldCompletions(recv []rune, prefix string, pos lang.Pos) []CompletionItem {
	items := []CompletionItem{}
	chain, ok := receiverChain(recv)
	if !ok {
		return items
	}
	rec, ok := d.typeOfChain(chain, pos).(*RecordType)
	if !ok {
		return items
	}
	for _, name := range rec.Names {
		if strings.HasPrefix(name, prefix) {
			items = append(items, CompletionItem{Label: name, Kind: CompletionVariable, Detail: rec.Fields[name].String()})
		}
	}
	return items
}

// Resolve fills in the documentation of an item returned by Completions at pos
func (d *Document) Resolve(item CompletionItem, pos lang.Pos) CompletionItem {
	if b := d.global.lookupAt(item.Label, pos); b != nil {
		if b.Doc != "" {
			item.Documentation = b.Doc
		}
		return item
	}
	if fn, ok := lang.LookupBuiltin(item.Label); ok {
		item.Documentation = fn.Doc
	}
	return item
}

// wordAt returns the identifier touching pos and its column span
func (d *Document) wordAt(pos lang.Pos) (string, int, int, bool) {
	line := d.Line(pos.Line)
	col := pos.Col - 1
	if col > len(line) || col < 0 {
		return "", 0, 0, false
	}
	if col == len(line) || !isIdentPart(line[col]) {
		if col == 0 || !isIdentPart(line[col-1]) {
			return "", 0, 0, false
		}
		col--
	}
	start, end := col, col
	for start > 0 && isIdentPart(line[start-1]) {
		start--
	}
	for end < len(line) && isIdentPart(line[end]) {
		end++
	}
	word := string(line[start:end])
	if !isIdentStart(line[start]) || lang.IsKeyword(word) {
		return "", 0, 0, false
	}
	return word, start, end, true
}

// Hover describes the identifier at pos as "name : Type" followed by its
// documentation
func (d *Document) Hover(pos lang.Pos) (Hover, bool) {
	word, start, end, ok := d.wordAt(pos)
	if !ok {
		return Hover{}, false
	}
	rng := Range{
		Start: lang.Pos{Line: pos.Line, Col: start + 1},
		End:   lang.Pos{Line: pos.Line, Col: end + 1},
	}
	line := d.Line(pos.Line)

	if start > 0 && line[start-1] == '.' {
		chain, ok := receiverChain(line[:start-1])
		if !ok {
			return Hover{}, false
		}
		rec, ok := d.typeOfChain(chain, pos).(*RecordType)
		if !ok {
			return Hover{}, false
		}
		t, ok := rec.Fields[word]
		if !ok {
			return Hover{}, false
		}
		return Hover{Contents: word + " : " + t.String(), Range: rng}, true
	}

	if b := d.global.lookupAt(word, pos); b != nil {
		return Hover{Contents: describe(word, b.Type.String(), b.Doc), Range: rng}, true
	}
	if fn, ok := lang.LookupBuiltin(word); ok {
		return Hover{Contents: describe(word, fn.Signature, fn.Doc), Range: rng}, true
	}
	return Hover{}, false
}

func describe(name, typ, doc string) string {
	s := name + " : " + typ
	if doc != "" {
		s += "\n\n" + doc
	}
	return s
}

// Symbols lists the top-level declarations
func (d *Document) Symbols() []Symbol {
	symbols := []Symbol{}
	for _, b := range d.global.bindings {
		end := lang.Pos{Line: b.Decl.Line, Col: len(d.Line(b.Decl.Line)) + 1}
		for _, s := range d.Program.Stmts {
			if fn, ok := s.(*lang.FnStmt); ok && fn.NamePos == b.Pos && fn.Body != nil {
				end = lang.Pos{Line: fn.Body.End.Line, Col: fn.Body.End.Col + 1}
			}
		}
		nameEnd := lang.Pos{Line: b.Pos.Line, Col: b.Pos.Col + len([]rune(b.Name))}
		symbols = append(symbols, Symbol{
			Name:      b.Name,
			Kind:      kindOf(b),
			Detail:    b.Type.String(),
			Range:     Range{Start: b.Decl, End: end},
			Selection: Range{Start: b.Pos, End: nameEnd},
		})
	}
	return symbols
}

// Diagnostics reports the syntax errors of the document
func (d *Document) Diagnostics() []Diagnostic {
	diags := []Diagnostic{}
	for _, err := range d.errs {
		end := err.End
		if !err.Pos.Before(end) {
			end = lang.Pos{Line: err.Pos.Line, Col: err.Pos.Col + 1}
		}
		diags = append(diags, Diagnostic{
			Range:    Range{Start: err.Pos, End: end},
			Severity: SeverityError,
			Message:  err.Msg,
		})
	}
	return diags
}
