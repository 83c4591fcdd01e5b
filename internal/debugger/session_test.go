package debugger

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/glint-ls/internal/logging"
)

const timeout = 5 * time.Second

// testClient drives a Session over net.Pipe. Writes on a pipe block until
// the other side reads, so incoming messages are drained by a goroutine.
type testClient struct {
	t    *testing.T
	conn net.Conn
	seq  int
	msgs chan dap.Message
}

func startSession(t *testing.T) *testClient {
	t.Helper()

	serverSide, clientSide := net.Pipe()
	s := NewSession(serverSide, NewGlintFactory(), logging.Nop())
	done := make(chan error, 1)
	go func() { done <- s.Serve(context.Background()) }()

	c := &testClient{t: t, conn: clientSide, msgs: make(chan dap.Message, 64)}
	go func() {
		defer close(c.msgs)
		r := bufio.NewReader(clientSide)
		for {
			msg, err := dap.ReadProtocolMessage(r)
			if err != nil {
				return
			}
			c.msgs <- msg
		}
	}()

	t.Cleanup(func() {
		_ = clientSide.Close()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(timeout):
			t.Error("session did not stop")
		}
	})
	return c
}

func (c *testClient) request(command string) dap.Request {
	c.seq++
	return dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: c.seq, Type: "request"},
		Command:         command,
	}
}

func (c *testClient) send(msg dap.Message) {
	c.t.Helper()
	require.NoError(c.t, dap.WriteProtocolMessage(c.conn, msg))
}

func (c *testClient) next() dap.Message {
	c.t.Helper()
	select {
	case msg, ok := <-c.msgs:
		require.True(c.t, ok, "connection closed")
		return msg
	case <-time.After(timeout):
		c.t.Fatal("timed out waiting for a message")
		return nil
	}
}

func expect[T dap.Message](c *testClient) T {
	c.t.Helper()
	msg := c.next()
	v, ok := msg.(T)
	require.Truef(c.t, ok, "expected %T, got %#v", *new(T), msg)
	return v
}

func program(name string) string {
	return filepath.Join("testdata", name)
}

func (c *testClient) initialize() {
	c.t.Helper()
	c.send(&dap.InitializeRequest{
		Request:   c.request("initialize"),
		Arguments: dap.InitializeRequestArguments{ClientID: "test", LinesStartAt1: true},
	})
	resp := expect[*dap.InitializeResponse](c)
	assert.True(c.t, resp.Body.SupportsConfigurationDoneRequest)
	expect[*dap.InitializedEvent](c)
}

func (c *testClient) launch(name string, stopOnEntry bool) {
	c.t.Helper()
	args, err := json.Marshal(map[string]any{"program": program(name), "stopOnEntry": stopOnEntry})
	require.NoError(c.t, err)
	c.send(&dap.LaunchRequest{Request: c.request("launch"), Arguments: args})
	expect[*dap.LaunchResponse](c)
}

func (c *testClient) setBreakpoints(name string, bps ...dap.SourceBreakpoint) *dap.SetBreakpointsResponse {
	c.t.Helper()
	c.send(&dap.SetBreakpointsRequest{
		Request: c.request("setBreakpoints"),
		Arguments: dap.SetBreakpointsArguments{
			Source:      dap.Source{Path: program(name)},
			Breakpoints: bps,
		},
	})
	return expect[*dap.SetBreakpointsResponse](c)
}

func lines(ls ...int) []dap.SourceBreakpoint {
	bps := make([]dap.SourceBreakpoint, 0, len(ls))
	for _, l := range ls {
		bps = append(bps, dap.SourceBreakpoint{Line: l})
	}
	return bps
}

func (c *testClient) configurationDone() {
	c.t.Helper()
	c.send(&dap.ConfigurationDoneRequest{Request: c.request("configurationDone")})
	expect[*dap.ConfigurationDoneResponse](c)
}

func (c *testClient) expectStopped(reason string) *dap.StoppedEvent {
	c.t.Helper()
	ev := expect[*dap.StoppedEvent](c)
	assert.Equal(c.t, reason, ev.Body.Reason)
	assert.Equal(c.t, 1, ev.Body.ThreadId)
	return ev
}

func (c *testClient) stackTrace() []dap.StackFrame {
	c.t.Helper()
	c.send(&dap.StackTraceRequest{
		Request:   c.request("stackTrace"),
		Arguments: dap.StackTraceArguments{ThreadId: 1},
	})
	return expect[*dap.StackTraceResponse](c).Body.StackFrames
}

func (c *testClient) continueRun() {
	c.t.Helper()
	c.send(&dap.ContinueRequest{Request: c.request("continue"), Arguments: dap.ContinueArguments{ThreadId: 1}})
	expect[*dap.ContinueResponse](c)
}

func (c *testClient) evaluate(expr string, frameID int) *dap.EvaluateResponse {
	c.t.Helper()
	c.send(&dap.EvaluateRequest{
		Request:   c.request("evaluate"),
		Arguments: dap.EvaluateArguments{Expression: expr, FrameId: frameID},
	})
	return expect[*dap.EvaluateResponse](c)
}

func (c *testClient) variables(ref int) map[string]dap.Variable {
	c.t.Helper()
	c.send(&dap.VariablesRequest{
		Request:   c.request("variables"),
		Arguments: dap.VariablesArguments{VariablesReference: ref},
	})
	vars := make(map[string]dap.Variable)
	for _, v := range expect[*dap.VariablesResponse](c).Body.Variables {
		vars[v.Name] = v
	}
	return vars
}

func (c *testClient) disconnect() {
	c.t.Helper()
	c.send(&dap.DisconnectRequest{Request: c.request("disconnect")})
	expect[*dap.DisconnectResponse](c)
}

// expectClosed drains the connection, failing on any terminated event
func (c *testClient) expectClosed() {
	c.t.Helper()
	for {
		select {
		case msg, ok := <-c.msgs:
			if !ok {
				return
			}
			_, terminated := msg.(*dap.TerminatedEvent)
			assert.False(c.t, terminated, "unexpected terminated event")
		case <-time.After(timeout):
			c.t.Fatal("connection was not closed")
		}
	}
}

func TestSession_Breakpoints(t *testing.T) {
	c := startSession(t)
	c.initialize()
	c.launch("main.glint", false)

	resp := c.setBreakpoints("main.glint", lines(1, 14)...)
	require.Len(t, resp.Body.Breakpoints, 2)
	for i, line := range []int{1, 14} {
		assert.True(t, resp.Body.Breakpoints[i].Verified)
		assert.Equal(t, line, resp.Body.Breakpoints[i].Line)
	}

	c.configurationDone()

	c.expectStopped("breakpoint")
	frames := c.stackTrace()
	require.Len(t, frames, 1)
	assert.Equal(t, "main", frames[0].Name)
	assert.Equal(t, 1, frames[0].Line)

	c.continueRun()
	c.expectStopped("breakpoint")
	frames = c.stackTrace()
	require.Len(t, frames, 1)
	assert.Equal(t, 14, frames[0].Line)

	c.continueRun()
	expect[*dap.TerminatedEvent](c)
}

func TestSession_StepInAndOut(t *testing.T) {
	c := startSession(t)
	c.initialize()
	c.launch("main.glint", false)
	c.setBreakpoints("main.glint", lines(14)...)
	c.configurationDone()
	c.expectStopped("breakpoint")

	c.send(&dap.StepInRequest{Request: c.request("stepIn"), Arguments: dap.StepInArguments{ThreadId: 1}})
	expect[*dap.StepInResponse](c)
	c.expectStopped("step")

	frames := c.stackTrace()
	require.Len(t, frames, 2)
	assert.Equal(t, "test", frames[0].Name)
	assert.Equal(t, 6, frames[0].Line)
	assert.Equal(t, "main", frames[1].Name)
	assert.Equal(t, 14, frames[1].Line)

	c.send(&dap.StepOutRequest{Request: c.request("stepOut"), Arguments: dap.StepOutArguments{ThreadId: 1}})
	expect[*dap.StepOutResponse](c)
	c.expectStopped("step")

	frames = c.stackTrace()
	require.Len(t, frames, 1)
	assert.Equal(t, 15, frames[0].Line)

	c.continueRun()
	expect[*dap.TerminatedEvent](c)
}

func TestSession_Next(t *testing.T) {
	c := startSession(t)
	c.initialize()
	c.launch("main.glint", false)
	c.setBreakpoints("main.glint", lines(14)...)
	c.configurationDone()
	c.expectStopped("breakpoint")

	// next steps over the call on line 14
	c.send(&dap.NextRequest{Request: c.request("next"), Arguments: dap.NextArguments{ThreadId: 1}})
	expect[*dap.NextResponse](c)
	c.expectStopped("step")

	frames := c.stackTrace()
	require.Len(t, frames, 1)
	assert.Equal(t, 15, frames[0].Line)

	c.disconnect()
	c.expectClosed()
}

func TestSession_SetBreakpointsIdempotent(t *testing.T) {
	c := startSession(t)
	c.initialize()
	c.launch("main.glint", false)

	first := c.setBreakpoints("main.glint", lines(1, 14)...)
	second := c.setBreakpoints("main.glint", lines(1, 14)...)
	assert.Equal(t, first.Body.Breakpoints, second.Body.Breakpoints)

	c.configurationDone()

	// one stop per line, not one per setBreakpoints call
	for _, line := range []int{1, 14} {
		c.expectStopped("breakpoint")
		frames := c.stackTrace()
		require.Len(t, frames, 1)
		assert.Equal(t, line, frames[0].Line)
		c.continueRun()
	}
	expect[*dap.TerminatedEvent](c)
}

func TestSession_ClearBreakpoints(t *testing.T) {
	c := startSession(t)
	c.initialize()
	c.launch("main.glint", false)

	c.setBreakpoints("main.glint", lines(1, 14)...)
	cleared := c.setBreakpoints("main.glint")
	assert.Empty(t, cleared.Body.Breakpoints)

	c.configurationDone()
	expect[*dap.TerminatedEvent](c)
}

func TestSession_RejectedBreakpoints(t *testing.T) {
	c := startSession(t)
	c.initialize()
	c.launch("main.glint", false)

	resp := c.setBreakpoints("main.glint",
		dap.SourceBreakpoint{Line: 4},
		dap.SourceBreakpoint{Line: 11, Condition: "i =="},
		dap.SourceBreakpoint{Line: 12, HitCondition: "often"},
	)
	require.Len(t, resp.Body.Breakpoints, 3)
	for _, bp := range resp.Body.Breakpoints {
		assert.False(t, bp.Verified, "line %d", bp.Line)
		assert.NotEmpty(t, bp.Message)
	}
	assert.Contains(t, resp.Body.Breakpoints[0].Message, "no statement")
}

func TestSession_ConditionalBreakpoint(t *testing.T) {
	c := startSession(t)
	c.initialize()
	c.launch("main.glint", false)
	resp := c.setBreakpoints("main.glint", dap.SourceBreakpoint{Line: 11, Condition: "i == 2"})
	require.True(t, resp.Body.Breakpoints[0].Verified)
	c.configurationDone()

	c.expectStopped("breakpoint")
	assert.Equal(t, "2", c.evaluate("i", 0).Body.Result)
	assert.Equal(t, "3", c.evaluate("total", 0).Body.Result)

	c.continueRun()
	expect[*dap.TerminatedEvent](c)
}

func TestSession_HitCondition(t *testing.T) {
	c := startSession(t)
	c.initialize()
	c.launch("main.glint", false)
	c.setBreakpoints("main.glint", dap.SourceBreakpoint{Line: 11, HitCondition: ">=2"})
	c.configurationDone()

	for _, want := range []string{"1", "2"} {
		c.expectStopped("breakpoint")
		assert.Equal(t, want, c.evaluate("i", 0).Body.Result)
		c.continueRun()
	}
	expect[*dap.TerminatedEvent](c)
}

func TestSession_Variables(t *testing.T) {
	c := startSession(t)
	c.initialize()
	c.launch("main.glint", false)
	c.setBreakpoints("main.glint", lines(15)...)
	c.configurationDone()
	c.expectStopped("breakpoint")

	c.send(&dap.ScopesRequest{Request: c.request("scopes"), Arguments: dap.ScopesArguments{FrameId: 0}})
	scopes := expect[*dap.ScopesResponse](c).Body.Scopes
	require.Len(t, scopes, 1)
	assert.Equal(t, "Locals", scopes[0].Name)

	vars := c.variables(scopes[0].VariablesReference)
	assert.Equal(t, "12", vars["r"].Value)
	assert.Equal(t, `"hello"`, vars["greeting"].Value)

	numbers := vars["numbers"]
	assert.Equal(t, 3, numbers.IndexedVariables)
	require.NotZero(t, numbers.VariablesReference)
	elems := c.variables(numbers.VariablesReference)
	assert.Equal(t, "3", elems["[2]"].Value)

	point := vars["point"]
	assert.Equal(t, 2, point.NamedVariables)
	fields := c.variables(point.VariablesReference)
	assert.Equal(t, "2", fields["y"].Value)

	c.continueRun()
	expect[*dap.TerminatedEvent](c)
}

func TestSession_FunctionScopes(t *testing.T) {
	c := startSession(t)
	c.initialize()
	c.launch("main.glint", false)
	c.setBreakpoints("main.glint", lines(6)...)
	c.configurationDone()
	c.expectStopped("breakpoint")

	c.send(&dap.ScopesRequest{Request: c.request("scopes"), Arguments: dap.ScopesArguments{FrameId: 0}})
	scopes := expect[*dap.ScopesResponse](c).Body.Scopes
	require.Len(t, scopes, 2)
	assert.Equal(t, "Locals", scopes[0].Name)
	assert.Equal(t, "Globals", scopes[1].Name)

	locals := c.variables(scopes[0].VariablesReference)
	assert.Equal(t, "6", locals["x"].Value)

	// the caller's frame sees the globals
	assert.Equal(t, "6", c.evaluate("total", 1).Body.Result)

	c.disconnect()
	c.expectClosed()
}

func TestSession_StopOnEntry(t *testing.T) {
	c := startSession(t)
	c.initialize()
	c.launch("main.glint", true)
	c.configurationDone()

	c.expectStopped("entry")
	frames := c.stackTrace()
	require.Len(t, frames, 1)
	assert.Equal(t, 1, frames[0].Line)

	c.continueRun()
	expect[*dap.TerminatedEvent](c)
}

func TestSession_ConfigurationDoneBeforeLaunch(t *testing.T) {
	c := startSession(t)
	c.initialize()
	c.configurationDone()

	args, err := json.Marshal(map[string]any{"program": program("main.glint"), "stopOnEntry": true})
	require.NoError(t, err)
	c.send(&dap.LaunchRequest{Request: c.request("launch"), Arguments: args})
	expect[*dap.LaunchResponse](c)
	c.expectStopped("entry")

	c.disconnect()
	c.expectClosed()
}

func TestSession_PauseContinueDisconnect(t *testing.T) {
	c := startSession(t)
	c.initialize()
	c.launch("loop.glint", false)
	c.configurationDone()

	for i := 0; i < 2; i++ {
		c.send(&dap.PauseRequest{Request: c.request("pause"), Arguments: dap.PauseArguments{ThreadId: 1}})
		expect[*dap.PauseResponse](c)
		c.expectStopped("pause")

		frames := c.stackTrace()
		require.Len(t, frames, 1)
		assert.Contains(t, []int{2, 3}, frames[0].Line)

		if i == 0 {
			c.continueRun()
		}
	}

	c.disconnect()
	c.expectClosed()
}

func TestSession_DisconnectWhileRunning(t *testing.T) {
	c := startSession(t)
	c.initialize()
	c.launch("loop.glint", false)
	c.configurationDone()

	c.disconnect()
	c.expectClosed()
}

func TestSession_Terminate(t *testing.T) {
	c := startSession(t)
	c.initialize()
	c.launch("loop.glint", false)
	c.configurationDone()

	c.send(&dap.TerminateRequest{Request: c.request("terminate")})
	expect[*dap.TerminateResponse](c)
	expect[*dap.TerminatedEvent](c)

	c.disconnect()
}

func TestSession_Exception(t *testing.T) {
	c := startSession(t)
	c.initialize()
	c.launch("fault.glint", false)
	c.configurationDone()

	ev := c.expectStopped("exception")
	assert.Contains(t, ev.Body.Text, "out of range")

	frames := c.stackTrace()
	require.Len(t, frames, 1)
	assert.Equal(t, 2, frames[0].Line)

	c.continueRun()
	expect[*dap.TerminatedEvent](c)
}

func TestSession_Output(t *testing.T) {
	c := startSession(t)
	c.initialize()
	c.launch("print.glint", false)
	c.configurationDone()

	out := expect[*dap.OutputEvent](c)
	assert.Equal(t, "stdout", out.Body.Category)
	assert.Equal(t, "hello 42\n", out.Body.Output)
	expect[*dap.TerminatedEvent](c)
}

func TestSession_Threads(t *testing.T) {
	c := startSession(t)
	c.initialize()

	c.send(&dap.ThreadsRequest{Request: c.request("threads")})
	threads := expect[*dap.ThreadsResponse](c).Body.Threads
	require.Len(t, threads, 1)
	assert.Equal(t, dap.Thread{Id: 1, Name: "main"}, threads[0])

	// nothing is stopped yet
	assert.Empty(t, c.stackTrace())
}

func TestSession_Errors(t *testing.T) {
	c := startSession(t)

	c.send(&dap.ContinueRequest{Request: c.request("continue")})
	er := expect[*dap.ErrorResponse](c)
	assert.False(t, er.Success)
	assert.Equal(t, "continue", er.Command)
	require.NotNil(t, er.Body.Error)
	assert.Contains(t, er.Body.Error.Format, "launched program")
	assert.Equal(t, 2001, er.Body.Error.Id)

	c.initialize()

	c.send(&dap.InitializeRequest{Request: c.request("initialize")})
	er = expect[*dap.ErrorResponse](c)
	assert.Equal(t, "initialize", er.Command)

	c.send(&dap.LaunchRequest{Request: c.request("launch"), Arguments: json.RawMessage(`{}`)})
	er = expect[*dap.ErrorResponse](c)
	assert.Contains(t, er.Message, "program")

	args, err := json.Marshal(map[string]any{"program": program("broken.glint")})
	require.NoError(t, err)
	c.send(&dap.LaunchRequest{Request: c.request("launch"), Arguments: args})
	er = expect[*dap.ErrorResponse](c)
	assert.Contains(t, er.Message, "failed to load program")

	c.send(&dap.EvaluateRequest{Request: c.request("evaluate"), Arguments: dap.EvaluateArguments{Expression: "1"}})
	er = expect[*dap.ErrorResponse](c)
	assert.Contains(t, er.Message, "launched program")
}

func TestSession_MalformedRequest(t *testing.T) {
	c := startSession(t)

	write := func(body string) {
		_, err := fmt.Fprintf(c.conn, "Content-Length: %d\r\n\r\n%s", len(body), body)
		require.NoError(t, err)
	}

	write(`{"seq": 7, "type": "request", "command": "bogus"}`)
	er := expect[*dap.ErrorResponse](c)
	assert.False(t, er.Success)
	assert.Equal(t, 7, er.RequestSeq)
	assert.Equal(t, "bogus", er.Command)

	write(`{"seq": 8, "type": "request", "command": "launch", "arguments": "oops"}`)
	er = expect[*dap.ErrorResponse](c)
	assert.Equal(t, 8, er.RequestSeq)
	assert.Equal(t, "launch", er.Command)

	// the session keeps serving
	c.initialize()
}

func TestSession_SequenceNumbers(t *testing.T) {
	c := startSession(t)

	c.send(&dap.InitializeRequest{Request: c.request("initialize")})
	resp := expect[*dap.InitializeResponse](c)
	ev := expect[*dap.InitializedEvent](c)
	assert.Equal(t, 1, resp.Seq)
	assert.Equal(t, 2, ev.Seq)
	assert.Equal(t, 1, resp.RequestSeq)
}
