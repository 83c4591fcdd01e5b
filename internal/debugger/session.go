package debugger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/go-dap"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	glerrors "github.com/ctagard/glint-ls/internal/errors"
	"github.com/ctagard/glint-ls/internal/lang"
	"github.com/ctagard/glint-ls/pkg/types"
)

// State is the lifecycle state of a debug session
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateRunning
	StateStopped
	StateTerminated
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateTerminated:
		return "terminated"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// status maps a State onto the coarser status reported to MCP clients
func (s State) status() types.SessionStatus {
	switch s {
	case StateUninitialized, StateInitialized:
		return types.SessionStatusInitializing
	case StateRunning:
		return types.SessionStatusRunning
	case StateStopped:
		return types.SessionStatusStopped
	default:
		return types.SessionStatusTerminated
	}
}

// threadID is the id of the single thread every glint program runs on
const threadID = 1

// Session serves the Debug Adapter Protocol over one connection
type Session struct {
	id        string
	conn      *conn
	engine    Engine
	log       zerolog.Logger
	createdAt time.Time

	mu            sync.Mutex
	state         State
	launched      bool
	configured    bool
	started       bool
	stopOnEntry   bool
	program       string
	disconnecting bool
}

// NewSession creates a session over rwc. The engine is created by factory
// with the session as its event sink.
func NewSession(rwc io.ReadWriteCloser, factory EngineFactory, log zerolog.Logger) *Session {
	s := &Session{
		conn:      newConn(rwc),
		log:       log.With().Str("component", "dap").Logger(),
		createdAt: time.Now(),
	}
	s.engine = factory(s)
	return s
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Info summarizes the session for listings
func (s *Session) Info() types.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.SessionInfo{
		SessionID: s.id,
		Status:    s.state.status(),
		State:     s.state.String(),
		Program:   s.program,
		CreatedAt: s.createdAt,
	}
}

// Serve handles requests until the client disconnects, the connection
// closes or ctx is cancelled. The program, if any, is interrupted and the
// connection closed before Serve returns.
func (s *Session) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = s.conn.close()
	}()
	defer s.teardown()

	for {
		body, err := s.conn.receive()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if done := s.handle(body); done {
			return nil
		}
	}
}

// teardown ends a run the client left behind
func (s *Session) teardown() {
	s.mu.Lock()
	s.disconnecting = true
	started := s.started
	s.state = StateDisconnected
	s.mu.Unlock()

	s.engine.Interrupt()
	if started {
		<-s.engine.Done()
	}
}

// handle decodes and dispatches one request. It reports whether the
// session is over.
func (s *Session) handle(body []byte) bool {
	msg, err := dap.DecodeProtocolMessage(body)
	if err != nil {
		seq := int(gjson.GetBytes(body, "seq").Int())
		command := gjson.GetBytes(body, "command").String()
		s.log.Warn().Err(err).Int("seq", seq).Str("command", command).Msg("undecodable request")

		var fieldErr *dap.DecodeProtocolMessageFieldError
		if errors.As(err, &fieldErr) && command != "" {
			s.sendError(seq, command, glerrors.UnknownCommand(command))
			return false
		}
		s.sendError(seq, command, glerrors.Wrap(glerrors.CodeInvalidParameter,
			"malformed request: "+err.Error(), "Check the request against the Debug Adapter Protocol.", err))
		return false
	}

	req, ok := msg.(dap.RequestMessage)
	if !ok {
		s.log.Debug().Str("type", gjson.GetBytes(body, "type").String()).Msg("ignoring non-request message")
		return false
	}
	r := req.GetRequest()
	s.log.Debug().Int("seq", r.Seq).Str("command", r.Command).Msg("request")

	switch request := msg.(type) {
	case *dap.InitializeRequest:
		s.onInitialize(request)
	case *dap.LaunchRequest:
		s.onLaunch(request)
	case *dap.SetBreakpointsRequest:
		s.onSetBreakpoints(request)
	case *dap.SetExceptionBreakpointsRequest:
		s.onSetExceptionBreakpoints(request)
	case *dap.ConfigurationDoneRequest:
		s.onConfigurationDone(request)
	case *dap.ThreadsRequest:
		s.onThreads(request)
	case *dap.StackTraceRequest:
		s.onStackTrace(request)
	case *dap.ScopesRequest:
		s.onScopes(request)
	case *dap.VariablesRequest:
		s.onVariables(request)
	case *dap.PauseRequest:
		s.onPause(request)
	case *dap.ContinueRequest:
		resp := &dap.ContinueResponse{}
		resp.Response = *newResponse(request.Seq, request.Command)
		resp.Body.AllThreadsContinued = true
		s.resume(&request.Request, resp, StepContinue)
	case *dap.NextRequest:
		resp := &dap.NextResponse{}
		resp.Response = *newResponse(request.Seq, request.Command)
		s.resume(&request.Request, resp, StepOver)
	case *dap.StepInRequest:
		resp := &dap.StepInResponse{}
		resp.Response = *newResponse(request.Seq, request.Command)
		s.resume(&request.Request, resp, StepIn)
	case *dap.StepOutRequest:
		resp := &dap.StepOutResponse{}
		resp.Response = *newResponse(request.Seq, request.Command)
		s.resume(&request.Request, resp, StepOut)
	case *dap.EvaluateRequest:
		s.onEvaluate(request)
	case *dap.TerminateRequest:
		s.onTerminate(request)
	case *dap.DisconnectRequest:
		s.onDisconnect(request)
		return true
	default:
		s.sendError(r.Seq, r.Command, glerrors.UnknownCommand(r.Command))
	}
	return false
}

func (s *Session) send(msg dap.Message) {
	if err := s.conn.send(msg); err != nil {
		s.log.Debug().Err(err).Msg("send failed")
	}
}

func (s *Session) sendError(requestSeq int, command string, de *glerrors.DebugError) {
	s.send(newErrorResponse(requestSeq, command, de))
}

func newErrorResponse(requestSeq int, command string, de *glerrors.DebugError) *dap.ErrorResponse {
	er := &dap.ErrorResponse{}
	er.Response = *newResponse(requestSeq, command)
	er.Success = false
	er.Message = de.Message
	er.Body = dap.ErrorResponseBody{
		Error: &dap.ErrorMessage{
			Id:       errorID(de.Code),
			Format:   de.Error(),
			ShowUser: true,
		},
	}
	return er
}

var errorIDs = map[glerrors.ErrorCode]int{
	glerrors.CodeSessionNotLaunched: 2001,
	glerrors.CodeSessionState:       2002,
	glerrors.CodeNotStopped:         2003,
	glerrors.CodeUnknownCommand:     2004,
	glerrors.CodeProgramLoadFailed:  2005,
	glerrors.CodeMissingParameter:   2006,
	glerrors.CodeInvalidParameter:   2007,
	glerrors.CodeEvaluationFailed:   2008,
}

func errorID(code glerrors.ErrorCode) int {
	if id, ok := errorIDs[code]; ok {
		return id
	}
	return 2000
}

func (s *Session) onInitialize(request *dap.InitializeRequest) {
	s.mu.Lock()
	if s.state != StateUninitialized {
		state := s.state
		s.mu.Unlock()
		s.sendError(request.Seq, request.Command, glerrors.SessionState(request.Command, state.String()))
		return
	}
	s.state = StateInitialized
	s.mu.Unlock()

	s.log.Info().Str("client", request.Arguments.ClientID).Msg("initialize")

	response := &dap.InitializeResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body.SupportsConfigurationDoneRequest = true
	response.Body.SupportsConditionalBreakpoints = true
	response.Body.SupportsHitConditionalBreakpoints = true
	response.Body.SupportsEvaluateForHovers = true
	response.Body.SupportsTerminateRequest = true
	response.Body.ExceptionBreakpointFilters = []dap.ExceptionBreakpointsFilter{}
	s.send(response)

	s.send(&dap.InitializedEvent{Event: *newEvent("initialized")})
}

type launchArguments struct {
	Program     string `json:"program"`
	StopOnEntry bool   `json:"stopOnEntry"`
}

func (s *Session) onLaunch(request *dap.LaunchRequest) {
	var args launchArguments
	if len(request.Arguments) > 0 {
		if err := json.Unmarshal(request.Arguments, &args); err != nil {
			s.sendError(request.Seq, request.Command,
				glerrors.InvalidParameter("arguments", string(request.Arguments), "an object with a program path"))
			return
		}
	}
	if args.Program == "" {
		s.sendError(request.Seq, request.Command,
			glerrors.MissingParameter("program", "Set program to the path of the .glint file to debug."))
		return
	}

	s.mu.Lock()
	if s.state != StateInitialized || s.launched {
		state := s.state
		s.mu.Unlock()
		s.sendError(request.Seq, request.Command, glerrors.SessionState(request.Command, state.String()))
		return
	}
	s.mu.Unlock()

	if err := s.engine.Load(args.Program); err != nil {
		s.log.Warn().Err(err).Str("program", args.Program).Msg("launch failed")
		s.sendError(request.Seq, request.Command, glerrors.ProgramLoadFailed(args.Program, err))
		return
	}

	s.mu.Lock()
	s.launched = true
	s.program = args.Program
	s.stopOnEntry = args.StopOnEntry
	startNow := s.configured
	s.mu.Unlock()

	s.log.Info().Str("program", args.Program).Bool("stop_on_entry", args.StopOnEntry).Msg("launch")

	response := &dap.LaunchResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	s.send(response)

	if startNow {
		s.start()
	}
}

func (s *Session) onSetBreakpoints(request *dap.SetBreakpointsRequest) {
	source := request.Arguments.Source.Path
	if source == "" {
		s.sendError(request.Seq, request.Command,
			glerrors.MissingParameter("source.path", "Breakpoints are set by file path."))
		return
	}

	specs := make([]BreakpointSpec, 0, len(request.Arguments.Breakpoints))
	for _, b := range request.Arguments.Breakpoints {
		specs = append(specs, BreakpointSpec{Line: b.Line, Condition: b.Condition, HitCondition: b.HitCondition})
	}
	if len(request.Arguments.Breakpoints) == 0 {
		for _, line := range request.Arguments.Lines {
			specs = append(specs, BreakpointSpec{Line: line})
		}
	}

	statuses := s.engine.SetBreakpoints(source, specs)

	response := &dap.SetBreakpointsResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body.Breakpoints = make([]dap.Breakpoint, 0, len(statuses))
	for _, st := range statuses {
		response.Body.Breakpoints = append(response.Body.Breakpoints, dap.Breakpoint{
			Id:       st.ID,
			Verified: st.Verified,
			Message:  st.Message,
			Line:     st.Line,
			Source:   &request.Arguments.Source,
		})
	}
	s.send(response)
}

func (s *Session) onSetExceptionBreakpoints(request *dap.SetExceptionBreakpointsRequest) {
	response := &dap.SetExceptionBreakpointsResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	s.send(response)
}

func (s *Session) onConfigurationDone(request *dap.ConfigurationDoneRequest) {
	s.mu.Lock()
	if s.state == StateUninitialized || s.configured {
		state := s.state
		s.mu.Unlock()
		s.sendError(request.Seq, request.Command, glerrors.SessionState(request.Command, state.String()))
		return
	}
	s.configured = true
	startNow := s.launched
	s.mu.Unlock()

	response := &dap.ConfigurationDoneResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	s.send(response)

	if startNow {
		s.start()
	}
}

// start runs the launched program once both launch and configurationDone
// have been answered
func (s *Session) start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.state = StateRunning
	stopOnEntry := s.stopOnEntry
	s.mu.Unlock()

	s.log.Debug().Msg("starting program")
	s.engine.Start(stopOnEntry)
}

func (s *Session) onThreads(request *dap.ThreadsRequest) {
	response := &dap.ThreadsResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body.Threads = []dap.Thread{{Id: threadID, Name: "main"}}
	s.send(response)
}

func (s *Session) onStackTrace(request *dap.StackTraceRequest) {
	if id := request.Arguments.ThreadId; id != 0 && id != threadID {
		s.sendError(request.Seq, request.Command, glerrors.InvalidParameter("threadId", id, "thread 1"))
		return
	}

	frames := s.engine.StackTrace()
	stackFrames := make([]dap.StackFrame, 0, len(frames))
	for _, f := range frames {
		sf := dap.StackFrame{Id: f.ID, Name: f.Name, Line: f.Line, Column: 1}
		if f.Source != "" {
			sf.Source = &dap.Source{Name: filepath.Base(f.Source), Path: f.Source}
		}
		stackFrames = append(stackFrames, sf)
	}
	total := len(stackFrames)

	if start := request.Arguments.StartFrame; start > 0 {
		if start > len(stackFrames) {
			start = len(stackFrames)
		}
		stackFrames = stackFrames[start:]
	}
	if levels := request.Arguments.Levels; levels > 0 && levels < len(stackFrames) {
		stackFrames = stackFrames[:levels]
	}

	response := &dap.StackTraceResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body = dap.StackTraceResponseBody{StackFrames: stackFrames, TotalFrames: total}
	s.send(response)
}

func (s *Session) onScopes(request *dap.ScopesRequest) {
	scopes := s.engine.Scopes(request.Arguments.FrameId)

	response := &dap.ScopesResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body.Scopes = make([]dap.Scope, 0, len(scopes))
	for _, sc := range scopes {
		response.Body.Scopes = append(response.Body.Scopes, dap.Scope{
			Name:               sc.Name,
			VariablesReference: sc.Reference,
			Expensive:          sc.Expensive,
		})
	}
	s.send(response)
}

func (s *Session) onVariables(request *dap.VariablesRequest) {
	vars := s.engine.Variables(request.Arguments.VariablesReference)

	response := &dap.VariablesResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body.Variables = make([]dap.Variable, 0, len(vars))
	for _, v := range vars {
		response.Body.Variables = append(response.Body.Variables, dap.Variable{
			Name:               v.Name,
			Value:              v.Value,
			Type:               v.Type,
			VariablesReference: v.Reference,
			NamedVariables:     v.Named,
			IndexedVariables:   v.Indexed,
		})
	}
	s.send(response)
}

func (s *Session) onPause(request *dap.PauseRequest) {
	response := &dap.PauseResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	s.send(response)

	s.engine.Pause()
}

func (s *Session) isLaunched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.launched
}

// resume answers an execution control request and lets the program run
func (s *Session) resume(request *dap.Request, response dap.Message, mode StepMode) {
	if !s.isLaunched() {
		s.sendError(request.Seq, request.Command, glerrors.SessionNotLaunched(request.Command))
		return
	}
	if !s.engine.Stopped() {
		s.sendError(request.Seq, request.Command, glerrors.NotStopped(request.Command))
		return
	}

	s.mu.Lock()
	s.state = StateRunning
	s.mu.Unlock()

	s.send(response)

	if err := s.engine.Resume(mode); err != nil {
		s.log.Debug().Err(err).Str("mode", mode.String()).Msg("resume failed")
	}
}

func (s *Session) onEvaluate(request *dap.EvaluateRequest) {
	if !s.isLaunched() {
		s.sendError(request.Seq, request.Command, glerrors.SessionNotLaunched(request.Command))
		return
	}
	v, err := s.engine.Evaluate(request.Arguments.Expression, request.Arguments.FrameId)
	if err != nil {
		if errors.Is(err, errNotStopped) {
			s.sendError(request.Seq, request.Command, glerrors.NotStopped(request.Command))
			return
		}
		s.sendError(request.Seq, request.Command, glerrors.EvaluationFailed(request.Arguments.Expression, err))
		return
	}

	response := &dap.EvaluateResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body = dap.EvaluateResponseBody{
		Result:             v.Value,
		Type:               v.Type,
		VariablesReference: v.Reference,
		NamedVariables:     v.Named,
		IndexedVariables:   v.Indexed,
	}
	s.send(response)
}

func (s *Session) onTerminate(request *dap.TerminateRequest) {
	s.mu.Lock()
	started := s.started
	already := s.state == StateTerminated
	if !started {
		s.state = StateTerminated
	}
	s.mu.Unlock()

	response := &dap.TerminateResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	s.send(response)

	switch {
	case started:
		// Exited follows and sends terminated
		s.engine.Interrupt()
	case !already:
		s.send(&dap.TerminatedEvent{Event: *newEvent("terminated")})
	}
}

func (s *Session) onDisconnect(request *dap.DisconnectRequest) {
	s.mu.Lock()
	s.disconnecting = true
	started := s.started
	s.mu.Unlock()

	s.engine.Interrupt()
	if started {
		<-s.engine.Done()
	}

	s.mu.Lock()
	s.state = StateDisconnected
	s.mu.Unlock()

	s.log.Info().Msg("disconnect")

	response := &dap.DisconnectResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	s.send(response)
}

// Stopped implements EventSink
func (s *Session) Stopped(reason StopReason, text string) {
	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()

	s.log.Debug().Str("reason", string(reason)).Msg("stopped")
	s.send(&dap.StoppedEvent{
		Event: *newEvent("stopped"),
		Body: dap.StoppedEventBody{
			Reason:            string(reason),
			Text:              text,
			ThreadId:          threadID,
			AllThreadsStopped: true,
		},
	})
}

// Output implements EventSink
func (s *Session) Output(category, text string) {
	s.send(&dap.OutputEvent{
		Event: *newEvent("output"),
		Body:  dap.OutputEventBody{Category: category, Output: text},
	})
}

// Exited implements EventSink
func (s *Session) Exited(err error) {
	s.mu.Lock()
	quiet := s.disconnecting
	if s.state != StateDisconnected {
		s.state = StateTerminated
	}
	s.mu.Unlock()

	switch {
	case err == nil:
		s.log.Info().Msg("program finished")
	case errors.Is(err, lang.ErrInterrupted):
		s.log.Info().Msg("program interrupted")
	default:
		s.log.Info().Err(err).Msg("program failed")
	}

	if quiet {
		return
	}
	s.send(&dap.TerminatedEvent{Event: *newEvent("terminated")})
}
