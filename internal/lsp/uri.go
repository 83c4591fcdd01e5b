package lsp

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// request paths that may carry a document URI
var requestURIPaths = []string{
	"params.textDocument.uri",
	"params.data.textDocumentUri",
}

// uriTable maps percent-decoded document URIs back to the spelling the
// client used. Documents are keyed by the decoded form so that
// "file:///C%3A/x.glint" and "file:///C:/x.glint" name the same document,
// while everything sent back to the client uses the client's spelling.
type uriTable struct {
	mu       sync.RWMutex
	original map[protocol.DocumentURI]string
}

func newURITable() *uriTable {
	return &uriTable{original: make(map[protocol.DocumentURI]string)}
}

// normalizeURI percent-decodes the path of raw. URIs without escapes, and
// anything that does not parse, are returned unchanged.
func normalizeURI(raw string) string {
	if !strings.Contains(raw, "%") {
		return raw
	}
	if strings.HasPrefix(raw, uri.FileScheme+"://") {
		return string(uri.New(raw))
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host + u.Path
}

func (t *uriTable) remember(normalized protocol.DocumentURI, original string) {
	t.mu.Lock()
	t.original[normalized] = original
	t.mu.Unlock()
}

// restore returns the client's spelling of u
func (t *uriTable) restore(u protocol.DocumentURI) protocol.DocumentURI {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if orig, ok := t.original[u]; ok {
		return protocol.DocumentURI(orig)
	}
	return u
}

func (t *uriTable) empty() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.original) == 0
}

// mapRequest rewrites document URIs in an incoming message to their
// decoded form
func (t *uriTable) mapRequest(body []byte) []byte {
	for _, path := range requestURIPaths {
		v := gjson.GetBytes(body, path)
		if v.Type != gjson.String {
			continue
		}
		norm := normalizeURI(v.Str)
		if norm == v.Str {
			continue
		}
		updated, err := sjson.SetBytes(body, path, norm)
		if err != nil {
			continue
		}
		t.remember(protocol.DocumentURI(norm), v.Str)
		body = updated
	}
	return body
}

// mapResponse puts the client's spelling back into the completion data of
// an outgoing result, whether it is a single item or a list of them
func (t *uriTable) mapResponse(body []byte) []byte {
	if t.empty() {
		return body
	}
	result := gjson.GetBytes(body, "result")
	switch {
	case result.IsArray():
		for i := range result.Array() {
			body = t.restorePath(body, fmt.Sprintf("result.%d.data.textDocumentUri", i))
		}
	case result.IsObject():
		body = t.restorePath(body, "result.data.textDocumentUri")
	}
	return body
}

func (t *uriTable) restorePath(body []byte, path string) []byte {
	v := gjson.GetBytes(body, path)
	if v.Type != gjson.String {
		return body
	}
	orig := t.restore(protocol.DocumentURI(v.Str))
	if string(orig) == v.Str {
		return body
	}
	updated, err := sjson.SetBytes(body, path, string(orig))
	if err != nil {
		return body
	}
	return updated
}
