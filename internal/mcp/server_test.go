package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/ctagard/glint-ls/internal/config"
	"github.com/ctagard/glint-ls/internal/debugger"
)

type toolResult struct {
	text    string
	isError bool
}

func (r toolResult) json() gjson.Result {
	return gjson.Parse(r.text)
}

// rpc sends one JSON-RPC message through the mcp-go server
func rpc(t *testing.T, s *Server, method string, params any) gjson.Result {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	require.NoError(t, err)

	resp := s.MCPServer().HandleMessage(context.Background(), raw)
	out, err := json.Marshal(resp)
	require.NoError(t, err)

	r := gjson.ParseBytes(out)
	require.False(t, r.Get("error").Exists(), r.Raw)
	return r.Get("result")
}

func call(t *testing.T, s *Server, tool string, args map[string]any) toolResult {
	t.Helper()
	r := rpc(t, s, "tools/call", map[string]any{"name": tool, "arguments": args})
	return toolResult{
		text:    r.Get("content.0.text").String(),
		isError: r.Get("isError").Bool(),
	}
}

func toolNames(t *testing.T, s *Server) []string {
	t.Helper()
	var names []string
	for _, n := range rpc(t, s, "tools/list", map[string]any{}).Get("tools.#.name").Array() {
		names = append(names, n.String())
	}
	return names
}

func TestTools_ByMode(t *testing.T) {
	full := NewServer(config.DefaultConfig())
	assert.ElementsMatch(t,
		[]string{"glint_complete", "glint_hover", "glint_symbols", "glint_diagnostics", "glint_run"},
		toolNames(t, full))

	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeReadOnly
	readonly := NewServer(cfg, WithDebugServer(debugger.NewServer(debugger.NewGlintFactory())))
	names := toolNames(t, readonly)
	assert.NotContains(t, names, "glint_run")
	assert.Contains(t, names, "debug_list_sessions")
	assert.NotContains(t, names, "debug_terminate_session")

	attached := NewServer(config.DefaultConfig(), WithDebugServer(debugger.NewServer(debugger.NewGlintFactory())))
	assert.Contains(t, toolNames(t, attached), "debug_terminate_session")
}

func TestComplete(t *testing.T) {
	s := NewServer(config.DefaultConfig())

	res := call(t, s, "glint_complete", map[string]any{
		"source": "let test = 2\nlet test1 = \"\"\nte",
		"line":   3,
		"column": 3,
	})
	require.False(t, res.isError, res.text)

	items := res.json().Get("completions").Array()
	require.Len(t, items, 2)
	assert.Equal(t, "test", items[0].Get("label").String())
	assert.Equal(t, "Int", items[0].Get("detail").String())
	assert.Equal(t, "variable", items[0].Get("kind").String())
	assert.Equal(t, "test1", items[1].Get("label").String())
	assert.Equal(t, "String", items[1].Get("detail").String())
}

func TestComplete_Resolve(t *testing.T) {
	s := NewServer(config.DefaultConfig())

	res := call(t, s, "glint_complete", map[string]any{
		"source":  "/// doc\nfn twice(x) {\n    return x * 2\n}\ntw",
		"line":    5,
		"column":  3,
		"resolve": true,
	})
	require.False(t, res.isError, res.text)

	items := res.json().Get("completions").Array()
	require.Len(t, items, 1)
	assert.Equal(t, "twice", items[0].Get("label").String())
	assert.Equal(t, "function", items[0].Get("kind").String())
	assert.Equal(t, "doc", items[0].Get("documentation").String())
}

func TestComplete_MissingArguments(t *testing.T) {
	s := NewServer(config.DefaultConfig())

	res := call(t, s, "glint_complete", map[string]any{"line": 1, "column": 1})
	assert.True(t, res.isError)
	assert.Contains(t, res.text, "source")

	res = call(t, s, "glint_complete", map[string]any{"source": "let a = 1", "line": 0, "column": 1})
	assert.True(t, res.isError)
	assert.Contains(t, res.text, "line")
}

func TestHover(t *testing.T) {
	s := NewServer(config.DefaultConfig())
	src := "/// Doubles.\nfn double(x) {\n    return x * 2\n}\nlet y = double(2)\n"

	res := call(t, s, "glint_hover", map[string]any{"source": src, "line": 5, "column": 10})
	require.False(t, res.isError, res.text)
	assert.True(t, res.json().Get("found").Bool())
	contents := res.json().Get("hover.contents").String()
	assert.Contains(t, contents, "double")
	assert.Contains(t, contents, "Doubles.")
	assert.Equal(t, int64(5), res.json().Get("hover.range.start.line").Int())

	res = call(t, s, "glint_hover", map[string]any{"source": src, "line": 4, "column": 1})
	require.False(t, res.isError, res.text)
	assert.False(t, res.json().Get("found").Bool())
}

func TestSymbols(t *testing.T) {
	s := NewServer(config.DefaultConfig())

	res := call(t, s, "glint_symbols", map[string]any{
		"source": "fn id(x) {\n    return x\n}\nlet n = 1\n",
	})
	require.False(t, res.isError, res.text)

	symbols := res.json().Get("symbols").Array()
	require.Len(t, symbols, 2)
	assert.Equal(t, "id", symbols[0].Get("name").String())
	assert.Equal(t, "function", symbols[0].Get("kind").String())
	assert.Equal(t, "n", symbols[1].Get("name").String())
	assert.Equal(t, "variable", symbols[1].Get("kind").String())
	assert.Equal(t, int64(4), symbols[1].Get("range.start.line").Int())
}

func TestDiagnostics(t *testing.T) {
	s := NewServer(config.DefaultConfig())

	res := call(t, s, "glint_diagnostics", map[string]any{"source": "let x = (1 +\nlet y = 2\n"})
	require.False(t, res.isError, res.text)
	assert.GreaterOrEqual(t, res.json().Get("count").Int(), int64(1))
	assert.Equal(t, "error", res.json().Get("diagnostics.0.severity").String())

	res = call(t, s, "glint_diagnostics", map[string]any{"source": "let y = 2\n"})
	require.False(t, res.isError, res.text)
	assert.Equal(t, int64(0), res.json().Get("count").Int())
}

func TestRun(t *testing.T) {
	s := NewServer(config.DefaultConfig())

	res := call(t, s, "glint_run", map[string]any{"source": "print(\"hi\")\nprint(1 + 2)\n"})
	require.False(t, res.isError, res.text)
	assert.Equal(t, "hi\n3\n", res.json().Get("output").String())
	assert.False(t, res.json().Get("error").Exists())
}

func TestRun_FromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.glint")
	require.NoError(t, os.WriteFile(path, []byte("print(\"from file\")\n"), 0o600))

	s := NewServer(config.DefaultConfig())
	res := call(t, s, "glint_run", map[string]any{"path": path})
	require.False(t, res.isError, res.text)
	assert.Equal(t, "from file\n", res.json().Get("output").String())
}

func TestRun_RuntimeError(t *testing.T) {
	s := NewServer(config.DefaultConfig())

	res := call(t, s, "glint_run", map[string]any{"source": "print(\"before\")\nlet xs = []\nlet y = xs[0]\n"})
	require.False(t, res.isError, res.text)
	assert.Equal(t, "before\n", res.json().Get("output").String())
	assert.Contains(t, res.json().Get("error").String(), "out of range")
	assert.Equal(t, int64(3), res.json().Get("line").Int())
}

func TestRun_Timeout(t *testing.T) {
	s := NewServer(config.DefaultConfig())

	res := call(t, s, "glint_run", map[string]any{"source": "while true {}\n", "timeoutSeconds": 0.05})
	require.False(t, res.isError, res.text)
	assert.True(t, res.json().Get("interrupted").Bool())
}

func TestRun_ParseError(t *testing.T) {
	s := NewServer(config.DefaultConfig())

	res := call(t, s, "glint_run", map[string]any{"source": "let x = (1 +\n"})
	assert.True(t, res.isError)
	assert.Contains(t, res.text, "failed to load program")
}

func TestDebugListSessions(t *testing.T) {
	s := NewServer(config.DefaultConfig(), WithDebugServer(debugger.NewServer(debugger.NewGlintFactory())))

	res := call(t, s, "debug_list_sessions", map[string]any{})
	require.False(t, res.isError, res.text)
	assert.True(t, res.json().Get("sessions").IsArray())
	assert.Empty(t, res.json().Get("sessions").Array())
}

func TestDebugTerminateSession(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	debug := debugger.NewServer(debugger.NewGlintFactory())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = debug.Serve(ctx, ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	r := bufio.NewReader(conn)

	require.NoError(t, dap.WriteProtocolMessage(conn, &dap.InitializeRequest{
		Request: dap.Request{ProtocolMessage: dap.ProtocolMessage{Seq: 1, Type: "request"}, Command: "initialize"},
	}))
	for i := 0; i < 2; i++ {
		_, err := dap.ReadProtocolMessage(r)
		require.NoError(t, err)
	}

	s := NewServer(config.DefaultConfig(), WithDebugServer(debug))

	res := call(t, s, "debug_list_sessions", map[string]any{})
	require.False(t, res.isError, res.text)
	sessions := res.json().Get("sessions").Array()
	require.Len(t, sessions, 1)
	id := sessions[0].Get("sessionId").String()
	require.NotEmpty(t, id)

	res = call(t, s, "debug_terminate_session", map[string]any{"sessionId": id})
	require.False(t, res.isError, res.text)
	assert.Equal(t, id, res.json().Get("sessionId").String())
	assert.Equal(t, "terminated", res.json().Get("status").String())

	// the client sees its connection close
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = r.ReadByte()
	assert.Error(t, err)
	assert.Eventually(t, func() bool { return len(debug.Sessions()) == 0 }, 5*time.Second, 10*time.Millisecond)

	res = call(t, s, "debug_terminate_session", map[string]any{"sessionId": id})
	assert.True(t, res.isError)
	assert.Contains(t, res.text, "not found")

	res = call(t, s, "debug_terminate_session", map[string]any{})
	assert.True(t, res.isError)
	assert.Contains(t, res.text, "sessionId")
}
