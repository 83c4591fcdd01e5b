package lsp

import (
	"sync"
	"unicode/utf16"

	"go.lsp.dev/protocol"

	"github.com/ctagard/glint-ls/internal/analysis"
	"github.com/ctagard/glint-ls/internal/lang"
)

// document is an open text document and its analysis
type document struct {
	uri      protocol.DocumentURI
	version  int32
	analysis *analysis.Document
}

// toPos converts an LSP position (0-based line, UTF-16 character) to a
// source position. Characters past the end of the line are clamped to it.
func (d *document) toPos(p protocol.Position) lang.Pos {
	lineNo := int(p.Line) + 1
	line := d.analysis.Line(lineNo)
	col, units := 0, 0
	for col < len(line) && units < int(p.Character) {
		units += utf16.RuneLen(line[col])
		col++
	}
	return lang.Pos{Line: lineNo, Col: col + 1}
}

// fromPos converts a source position to an LSP position
func (d *document) fromPos(p lang.Pos) protocol.Position {
	line := d.analysis.Line(p.Line)
	units := 0
	for i := 0; i < p.Col-1 && i < len(line); i++ {
		units += utf16.RuneLen(line[i])
	}
	if over := p.Col - 1 - len(line); over > 0 {
		units += over
	}
	return protocol.Position{Line: uint32(p.Line - 1), Character: uint32(units)}
}

func (d *document) fromRange(r analysis.Range) protocol.Range {
	return protocol.Range{Start: d.fromPos(r.Start), End: d.fromPos(r.End)}
}

// documentStore holds the open documents keyed by normalized URI
type documentStore struct {
	mu   sync.RWMutex
	docs map[protocol.DocumentURI]*document
	opts []analysis.Option
}

func newDocumentStore(opts ...analysis.Option) *documentStore {
	return &documentStore{
		docs: make(map[protocol.DocumentURI]*document),
		opts: opts,
	}
}

// set analyses text and stores it as the current content of uri
func (s *documentStore) set(uri protocol.DocumentURI, version int32, text string) *document {
	doc := &document{
		uri:      uri,
		version:  version,
		analysis: analysis.Analyze(text, s.opts...),
	}

	s.mu.Lock()
	s.docs[uri] = doc
	s.mu.Unlock()
	return doc
}

func (s *documentStore) get(uri protocol.DocumentURI) (*document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[uri]
	return doc, ok
}

func (s *documentStore) remove(uri protocol.DocumentURI) {
	s.mu.Lock()
	delete(s.docs, uri)
	s.mu.Unlock()
}

func (s *documentStore) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
