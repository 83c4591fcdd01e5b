package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"

	"github.com/ctagard/glint-ls/internal/config"
	"github.com/ctagard/glint-ls/internal/logging"
	"github.com/ctagard/glint-ls/internal/rpc"
)

type message struct {
	ID     *rpc.ID         `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *rpc.Error      `json:"error"`
}

type client struct {
	t      *testing.T
	in     *io.PipeWriter
	msgs   chan message
	done   chan error
	nextID int64
}

func startServer(t *testing.T, cfg config.LSPConfig) *client {
	t.Helper()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	c := &client{
		t:    t,
		in:   inW,
		msgs: make(chan message, 64),
		done: make(chan error, 1),
	}

	srv := New(cfg, logging.Nop())
	go func() {
		err := srv.Serve(context.Background(), inR, outW)
		outW.Close()
		c.done <- err
	}()

	go func() {
		defer close(c.msgs)
		r := bufio.NewReader(outR)
		for {
			body, err := rpc.ReadMessage(r)
			if err != nil {
				return
			}
			var m message
			if err := json.Unmarshal(body, &m); err != nil {
				t.Errorf("bad message from server: %s", body)
				return
			}
			c.msgs <- m
		}
	}()

	t.Cleanup(func() {
		inW.Close()
		outR.Close()
	})
	return c
}

func defaultConfig() config.LSPConfig {
	return config.DefaultConfig().LSP
}

func (c *client) send(v any) {
	c.t.Helper()
	body, err := json.Marshal(v)
	require.NoError(c.t, err)
	require.NoError(c.t, rpc.WriteMessage(c.in, body))
}

func (c *client) notify(method string, params any) {
	c.t.Helper()
	c.send(map[string]any{"jsonrpc": "2.0", "method": method, "params": params})
}

// call sends a request and waits for its response, skipping notifications
func (c *client) call(method string, params any) message {
	c.t.Helper()
	c.nextID++
	id := c.nextID
	c.send(map[string]any{"jsonrpc": "2.0", "id": id, "method": method, "params": params})
	for {
		m := c.next()
		if m.ID != nil && m.ID.String() == rpc.NewNumberID(id).String() {
			return m
		}
	}
}

// expectNotification waits for the next server notification named method
func (c *client) expectNotification(method string) message {
	c.t.Helper()
	for {
		m := c.next()
		if m.ID == nil && m.Method == method {
			return m
		}
	}
}

func (c *client) next() message {
	c.t.Helper()
	select {
	case m, ok := <-c.msgs:
		require.True(c.t, ok, "server closed its output")
		return m
	case <-time.After(5 * time.Second):
		c.t.Fatal("timed out waiting for the server")
		return message{}
	}
}

func (c *client) open(uri, text string) {
	c.t.Helper()
	c.notify("textDocument/didOpen", map[string]any{
		"textDocument": map[string]any{"uri": uri, "languageId": "glint", "version": 1, "text": text},
	})
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func completionParams(uri string, line, character int) map[string]any {
	return map[string]any{
		"textDocument": map[string]any{"uri": uri},
		"position":     map[string]any{"line": line, "character": character},
	}
}

func stripData(items []protocol.CompletionItem) []protocol.CompletionItem {
	out := make([]protocol.CompletionItem, len(items))
	for i, it := range items {
		it.Data = nil
		out[i] = it
	}
	return out
}

func dataOf(t *testing.T, item protocol.CompletionItem) CompletionData {
	t.Helper()
	d, ok := completionData(item)
	require.True(t, ok, "completion item carries no data")
	return d
}

func TestInitialize(t *testing.T) {
	c := startServer(t, defaultConfig())

	resp := c.call("initialize", map[string]any{"processId": 1, "capabilities": map[string]any{}})
	require.Nil(t, resp.Error)

	result := decode[protocol.InitializeResult](t, resp.Result)
	assert.EqualValues(t, protocol.TextDocumentSyncKindFull, result.Capabilities.TextDocumentSync)
	require.NotNil(t, result.Capabilities.CompletionProvider)
	assert.True(t, result.Capabilities.CompletionProvider.ResolveProvider)
	assert.Equal(t, true, result.Capabilities.HoverProvider)
	assert.Equal(t, true, result.Capabilities.DocumentSymbolProvider)
	require.NotNil(t, result.ServerInfo)
	assert.Equal(t, "glint-ls", result.ServerInfo.Name)
}

func TestInitialize_InvalidParams(t *testing.T) {
	c := startServer(t, defaultConfig())

	resp := c.call("initialize", map[string]any{"processId": "not a number"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeInvalidParams, resp.Error.Code)

	// the InitializeError payload: retry is false, so it is omitted
	require.NotEmpty(t, resp.Error.Data)
	assert.JSONEq(t, `{}`, string(resp.Error.Data))
	initErr := decode[protocol.InitializeError](t, resp.Error.Data)
	assert.False(t, initErr.Retry)

	// a well-formed retry still succeeds
	resp = c.call("initialize", map[string]any{"processId": 1})
	require.Nil(t, resp.Error)
}

func TestCompletion_Local(t *testing.T) {
	c := startServer(t, defaultConfig())
	c.open("file:///test", "\nlet test = 2\nlet test1 = \"\"\nte\n")
	c.expectNotification("textDocument/publishDiagnostics")

	resp := c.call("textDocument/completion", completionParams("file:///test", 3, 2))
	require.Nil(t, resp.Error)

	items := decode[[]protocol.CompletionItem](t, resp.Result)
	assert.Equal(t, []protocol.CompletionItem{
		{Label: "test", Kind: protocol.CompletionItemKindVariable, Detail: "Int"},
		{Label: "test1", Kind: protocol.CompletionItemKindVariable, Detail: "String"},
	}, stripData(items))

	assert.Equal(t, CompletionData{
		TextDocumentURI: "file:///test",
		Position:        protocol.Position{Line: 3, Character: 2},
	}, dataOf(t, items[0]))
}

func TestCompletion_Builtin(t *testing.T) {
	c := startServer(t, defaultConfig())
	c.open("file:///test", "no")
	c.expectNotification("textDocument/publishDiagnostics")

	resp := c.call("textDocument/completion", completionParams("file:///test", 0, 1))
	require.Nil(t, resp.Error)

	items := decode[[]protocol.CompletionItem](t, resp.Result)
	assert.Equal(t, []protocol.CompletionItem{
		{Label: "not", Kind: protocol.CompletionItemKindVariable, Detail: "Bool -> Bool"},
	}, stripData(items))
}

func TestCompletion_WithoutBuiltins(t *testing.T) {
	cfg := defaultConfig()
	cfg.CompletionBuiltins = false
	c := startServer(t, cfg)
	c.open("file:///test", "no")
	c.expectNotification("textDocument/publishDiagnostics")

	resp := c.call("textDocument/completion", completionParams("file:///test", 0, 1))
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `[]`, string(resp.Result))
}

func TestCompletion_Resolve(t *testing.T) {
	c := startServer(t, defaultConfig())
	c.open("file:///test", "\n/// doc\nlet test = 2\nlet test1 = \"\"\nte\n")
	c.expectNotification("textDocument/publishDiagnostics")

	data := CompletionData{
		TextDocumentURI: "file:///test",
		Position:        protocol.Position{Line: 4, Character: 2},
	}
	item := protocol.CompletionItem{
		Label:  "test",
		Kind:   protocol.CompletionItemKindVariable,
		Detail: "Int",
		Data:   data,
	}
	resp := c.call("completionItem/resolve", item)
	require.Nil(t, resp.Error)

	got := decode[protocol.CompletionItem](t, resp.Result)
	assert.Equal(t, "test", got.Label)
	assert.Equal(t, protocol.CompletionItemKindVariable, got.Kind)
	assert.Equal(t, "Int", got.Detail)
	assert.Equal(t, "doc", got.Documentation)
	assert.Equal(t, data, dataOf(t, got))
}

func TestCompletion_ResolveWithoutData(t *testing.T) {
	c := startServer(t, defaultConfig())

	resp := c.call("completionItem/resolve", protocol.CompletionItem{Label: "x"})
	require.Nil(t, resp.Error)
	got := decode[protocol.CompletionItem](t, resp.Result)
	assert.Equal(t, "x", got.Label)
	assert.Nil(t, got.Documentation)
}

func TestCompletion_URLEncodedPath(t *testing.T) {
	const uri = "file:///C%3A/examples/test.glu"
	c := startServer(t, defaultConfig())
	c.open(uri, "\nlet r = { abc = 1 }\nr.\n")

	diag := decode[protocol.PublishDiagnosticsParams](t, c.expectNotification("textDocument/publishDiagnostics").Params)
	assert.Equal(t, protocol.DocumentURI(uri), diag.URI, "diagnostics use the client's spelling")
	assert.Len(t, diag.Diagnostics, 1)

	resp := c.call("textDocument/completion", completionParams(uri, 2, 2))
	require.Nil(t, resp.Error)

	items := decode[[]protocol.CompletionItem](t, resp.Result)
	assert.Equal(t, []protocol.CompletionItem{
		{Label: "abc", Kind: protocol.CompletionItemKindVariable, Detail: "Int"},
	}, stripData(items))
	assert.Equal(t, protocol.DocumentURI(uri), dataOf(t, items[0]).TextDocumentURI)

	// the decoded spelling names the same document
	resp = c.call("textDocument/completion", completionParams("file:///C:/examples/test.glu", 2, 2))
	require.Nil(t, resp.Error)
	assert.Len(t, decode[[]protocol.CompletionItem](t, resp.Result), 1)
}

func TestCompletion_UnknownDocument(t *testing.T) {
	c := startServer(t, defaultConfig())

	resp := c.call("textDocument/completion", completionParams("file:///missing", 0, 0))
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeInternalError, resp.Error.Code)

	data := decode[map[string]any](t, resp.Error.Data)
	assert.Equal(t, "DOCUMENT_NOT_FOUND", data["code"])
}

func TestHover(t *testing.T) {
	c := startServer(t, defaultConfig())
	c.open("file:///test", "/// the answer\nlet answer = 42\nanswer\n")
	c.expectNotification("textDocument/publishDiagnostics")

	resp := c.call("textDocument/hover", completionParams("file:///test", 2, 1))
	require.Nil(t, resp.Error)

	hover := decode[protocol.Hover](t, resp.Result)
	assert.Equal(t, protocol.PlainText, hover.Contents.Kind)
	assert.Equal(t, "answer : Int\n\nthe answer", hover.Contents.Value)
	require.NotNil(t, hover.Range)
	assert.Equal(t, protocol.Range{
		Start: protocol.Position{Line: 2, Character: 0},
		End:   protocol.Position{Line: 2, Character: 6},
	}, *hover.Range)

	resp = c.call("textDocument/hover", completionParams("file:///test", 5, 0))
	require.Nil(t, resp.Error)
	assert.Equal(t, "null", string(resp.Result))
}

func TestDocumentSymbol(t *testing.T) {
	c := startServer(t, defaultConfig())
	c.open("file:///test", "let x = 1\nfn add(a, b) {\n  return a + b\n}\n")
	c.expectNotification("textDocument/publishDiagnostics")

	resp := c.call("textDocument/documentSymbol", map[string]any{"textDocument": map[string]any{"uri": "file:///test"}})
	require.Nil(t, resp.Error)

	symbols := decode[[]protocol.DocumentSymbol](t, resp.Result)
	require.Len(t, symbols, 2)
	assert.Equal(t, "x", symbols[0].Name)
	assert.Equal(t, protocol.SymbolKindVariable, symbols[0].Kind)
	assert.Equal(t, "Int", symbols[0].Detail)
	assert.Equal(t, "add", symbols[1].Name)
	assert.Equal(t, protocol.SymbolKindFunction, symbols[1].Kind)
	assert.Equal(t, protocol.Position{Line: 1, Character: 3}, symbols[1].SelectionRange.Start)
	assert.Equal(t, protocol.Position{Line: 3, Character: 1}, symbols[1].Range.End)
}

func TestDiagnostics_ChangeAndClose(t *testing.T) {
	c := startServer(t, defaultConfig())
	c.open("file:///test", "let x = \n")

	diag := decode[protocol.PublishDiagnosticsParams](t, c.expectNotification("textDocument/publishDiagnostics").Params)
	require.Len(t, diag.Diagnostics, 1)
	assert.Equal(t, protocol.DiagnosticSeverityError, diag.Diagnostics[0].Severity)
	assert.Equal(t, uint32(0), diag.Diagnostics[0].Range.Start.Line)

	c.notify("textDocument/didChange", map[string]any{
		"textDocument":   map[string]any{"uri": "file:///test", "version": 2},
		"contentChanges": []map[string]any{{"text": "let x = 1\n"}},
	})
	diag = decode[protocol.PublishDiagnosticsParams](t, c.expectNotification("textDocument/publishDiagnostics").Params)
	assert.Equal(t, uint32(2), diag.Version)
	assert.Empty(t, diag.Diagnostics)

	resp := c.call("textDocument/completion", completionParams("file:///test", 1, 0))
	require.Nil(t, resp.Error)
	assert.Contains(t, string(resp.Result), `"label":"x"`)

	c.notify("textDocument/didClose", map[string]any{"textDocument": map[string]any{"uri": "file:///test"}})
	diag = decode[protocol.PublishDiagnosticsParams](t, c.expectNotification("textDocument/publishDiagnostics").Params)
	assert.Empty(t, diag.Diagnostics)

	resp = c.call("textDocument/completion", completionParams("file:///test", 1, 0))
	require.NotNil(t, resp.Error)
}

func TestShutdownAndExit(t *testing.T) {
	c := startServer(t, defaultConfig())

	resp := c.call("shutdown", nil)
	require.Nil(t, resp.Error)
	assert.Equal(t, "null", string(resp.Result))

	resp = c.call("textDocument/completion", completionParams("file:///test", 0, 0))
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeInvalidRequest, resp.Error.Code)

	c.notify("exit", nil)

	select {
	case err := <-c.done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not exit")
	}
}

func TestPositionConversion(t *testing.T) {
	doc := newDocumentStore().set("file:///u", 1, "let s = \"😀x\"\n")

	// the emoji is two UTF-16 units but one rune
	pos := doc.toPos(protocol.Position{Line: 0, Character: 11})
	assert.Equal(t, 1, pos.Line)
	assert.Equal(t, 11, pos.Col)
	assert.Equal(t, protocol.Position{Line: 0, Character: 11}, doc.fromPos(pos))

	clamped := doc.toPos(protocol.Position{Line: 0, Character: 100})
	assert.Equal(t, 13, clamped.Col)
}

func TestNormalizeURI(t *testing.T) {
	assert.Equal(t, "file:///C:/examples/test.glu", normalizeURI("file:///C%3A/examples/test.glu"))
	assert.Equal(t, "file:///plain.glint", normalizeURI("file:///plain.glint"))
	assert.Equal(t, "%zz", normalizeURI("%zz"))
}
