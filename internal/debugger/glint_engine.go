package debugger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/ctagard/glint-ls/internal/lang"
)

var errNotStopped = errors.New("thread is not stopped")

// GlintEngine runs a glint program on its own goroutine and suspends it
// from the interpreter's statement hook
type GlintEngine struct {
	sink     EventSink
	maxDepth int

	bps *breakpointTable

	mu       sync.Mutex
	path     string
	prog     *lang.Program
	lines    map[int]bool
	interp   *lang.Interpreter
	started  bool
	stopped  bool
	stack    []lang.Frame
	refs     map[int]any
	nextRef  int
	finished bool

	pause  atomic.Bool
	resume chan StepMode
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// owned by the interpreter goroutine
	entry       bool
	mode        StepMode
	stepDepth   int
	resumedFrom position
}

type position struct {
	line, depth int
}

// EngineOption configures a GlintEngine
type EngineOption func(*GlintEngine)

// WithMaxCallDepth bounds recursion in the debugged program
func WithMaxCallDepth(n int) EngineOption {
	return func(e *GlintEngine) { e.maxDepth = n }
}

// NewGlintEngine creates an engine reporting to sink
func NewGlintEngine(sink EventSink, opts ...EngineOption) *GlintEngine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &GlintEngine{
		sink:     sink,
		maxDepth: lang.DefaultMaxDepth,
		bps:      newBreakpointTable(),
		refs:     make(map[int]any),
		nextRef:  1,
		resume:   make(chan StepMode),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewGlintFactory returns an EngineFactory producing GlintEngines
func NewGlintFactory(opts ...EngineOption) EngineFactory {
	return func(sink EventSink) Engine {
		return NewGlintEngine(sink, opts...)
	}
}

// Load reads and parses the program at path
func (e *GlintEngine) Load(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read program: %w", err)
	}
	prog, err := lang.Parse(string(src))
	if err != nil {
		return fmt.Errorf("failed to parse program: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return errors.New("program already started")
	}
	e.path = normalizePath(path)
	e.prog = prog
	e.lines = statementLines(prog)
	e.interp = lang.New(
		lang.WithOutput(outputWriter{sink: e.sink}),
		lang.WithHook(engineHook{e}),
		lang.WithMaxDepth(e.maxDepth),
	)
	return nil
}

// SetBreakpoints replaces the breakpoints of source
func (e *GlintEngine) SetBreakpoints(source string, specs []BreakpointSpec) []BreakpointStatus {
	e.mu.Lock()
	var lines map[int]bool
	if e.path != "" && normalizePath(source) == e.path {
		lines = e.lines
	}
	e.mu.Unlock()
	return e.bps.set(source, specs, lines)
}

// Start begins execution. It does nothing without a loaded program or when
// already started.
func (e *GlintEngine) Start(stopOnEntry bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.prog == nil {
		return
	}
	e.started = true
	e.entry = stopOnEntry

	go e.run(e.interp, e.prog)
}

func (e *GlintEngine) run(in *lang.Interpreter, prog *lang.Program) {
	defer close(e.done)

	err := in.Run(e.ctx, prog)

	e.mu.Lock()
	e.finished = true
	e.stopped = false
	e.stack = nil
	e.mu.Unlock()

	e.sink.Exited(err)
}

// Resume continues a stopped thread in the given mode
func (e *GlintEngine) Resume(mode StepMode) error {
	e.mu.Lock()
	if !e.stopped {
		e.mu.Unlock()
		return errNotStopped
	}
	// a pause sent once Resume returns must find the thread running
	e.stopped = false
	e.stack = nil
	e.mu.Unlock()

	select {
	case e.resume <- mode:
		return nil
	case <-e.ctx.Done():
		return lang.ErrInterrupted
	}
}

// Pause asks a running program to stop at its next statement
func (e *GlintEngine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started || e.finished || e.stopped {
		return
	}
	e.pause.Store(true)
}

// Interrupt cancels the run. A stopped thread is released and the program
// ends with lang.ErrInterrupted.
func (e *GlintEngine) Interrupt() {
	e.cancel()
}

// Done is closed when the run ends
func (e *GlintEngine) Done() <-chan struct{} {
	return e.done
}

// Stopped reports whether the thread is suspended
func (e *GlintEngine) Stopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

// StackTrace lists the frames of the stopped thread, innermost first
func (e *GlintEngine) StackTrace() []Frame {
	e.mu.Lock()
	defer e.mu.Unlock()

	frames := make([]Frame, 0, len(e.stack))
	for i, f := range e.stack {
		frames = append(frames, Frame{ID: i, Name: f.Name, Line: f.Line, Source: e.path})
	}
	return frames
}

// Scopes lists Locals, and Globals for function frames
func (e *GlintEngine) Scopes(frameID int) []Scope {
	e.mu.Lock()
	defer e.mu.Unlock()

	if frameID < 0 || frameID >= len(e.stack) {
		return []Scope{}
	}
	frame := e.stack[frameID]
	scopes := []Scope{{Name: "Locals", Reference: e.addRefLocked(frame.Env)}}
	if frame.Function {
		scopes = append(scopes, Scope{Name: "Globals", Reference: e.addRefLocked(e.interp.Globals)})
	}
	return scopes
}

// Variables lists the children of a variable reference
func (e *GlintEngine) Variables(ref int) []Variable {
	e.mu.Lock()
	defer e.mu.Unlock()

	vars := []Variable{}
	switch c := e.refs[ref].(type) {
	case *lang.Env:
		for _, name := range c.Names() {
			v, _ := c.Get(name)
			vars = append(vars, e.variableLocked(name, v))
		}
	case *lang.Array:
		for i, v := range c.Elems {
			vars = append(vars, e.variableLocked("["+strconv.Itoa(i)+"]", v))
		}
	case *lang.Record:
		for _, name := range c.Names {
			vars = append(vars, e.variableLocked(name, c.Fields[name]))
		}
	}
	return vars
}

// Evaluate evaluates expr in the scope of a stopped frame
func (e *GlintEngine) Evaluate(expr string, frameID int) (Variable, error) {
	e.mu.Lock()
	if !e.stopped {
		e.mu.Unlock()
		return Variable{}, errNotStopped
	}
	if frameID < 0 || frameID >= len(e.stack) {
		e.mu.Unlock()
		return Variable{}, fmt.Errorf("unknown frame %d", frameID)
	}
	env := e.stack[frameID].Env
	in := e.interp
	e.mu.Unlock()

	x, err := lang.ParseExpr(expr)
	if err != nil {
		return Variable{}, err
	}
	// the program is suspended in its hook, so its state is not changing
	v, err := in.Eval(e.ctx, x, env)
	if err != nil {
		return Variable{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.variableLocked(expr, v), nil
}

func (e *GlintEngine) addRefLocked(container any) int {
	ref := e.nextRef
	e.nextRef++
	e.refs[ref] = container
	return ref
}

func (e *GlintEngine) variableLocked(name string, v lang.Value) Variable {
	out := Variable{Name: name, Value: v.String(), Type: v.TypeName()}
	switch c := v.(type) {
	case *lang.Array:
		if len(c.Elems) > 0 {
			out.Reference = e.addRefLocked(c)
			out.Indexed = len(c.Elems)
		}
	case *lang.Record:
		if len(c.Names) > 0 {
			out.Reference = e.addRefLocked(c)
			out.Named = len(c.Names)
		}
	}
	return out
}

// shouldStop decides, on the interpreter goroutine, whether the statement at
// line and depth suspends the program
func (e *GlintEngine) shouldStop(line, depth int) (StopReason, bool) {
	here := position{line: line, depth: depth}
	justResumed := e.resumedFrom == here
	if !justResumed {
		e.resumedFrom = position{}
	}

	if e.entry {
		e.entry = false
		return StopEntry, true
	}
	if e.pause.Swap(false) {
		return StopPause, true
	}

	hitBreakpoint := false
	if !justResumed {
		_, hitBreakpoint = e.bps.hit(e.path, line, e.conditionHolds)
	}

	switch e.mode {
	case StepIn:
		return StopStep, true
	case StepOver:
		if depth <= e.stepDepth {
			return StopStep, true
		}
	case StepOut:
		if depth < e.stepDepth {
			return StopStep, true
		}
	}

	if hitBreakpoint {
		return StopBreakpoint, true
	}
	return "", false
}

// conditionHolds evaluates a breakpoint condition in the innermost frame.
// A failing or non-Bool condition does not stop; the problem is reported
// on the console.
func (e *GlintEngine) conditionHolds(cond lang.Expr) bool {
	stack := e.interp.Stack()
	if len(stack) == 0 {
		return false
	}
	v, err := e.interp.Eval(e.ctx, cond, stack[0].Env)
	if err != nil {
		e.sink.Output(OutputConsole, fmt.Sprintf("breakpoint condition failed: %v\n", err))
		return false
	}
	b, ok := v.(lang.Bool)
	if !ok {
		e.sink.Output(OutputConsole, fmt.Sprintf("breakpoint condition is %s, not Bool\n", v.TypeName()))
		return false
	}
	return bool(b)
}

// suspend parks the interpreter goroutine until the client resumes it or
// the run is interrupted
func (e *GlintEngine) suspend(reason StopReason, text string, line, depth int) error {
	e.mu.Lock()
	e.stopped = true
	e.stack = e.interp.Stack()
	e.refs = make(map[int]any)
	e.nextRef = 1
	e.mu.Unlock()

	// a pause that raced with this stop is satisfied by it
	e.pause.Store(false)
	e.sink.Stopped(reason, text)

	var mode StepMode
	var err error
	select {
	case mode = <-e.resume:
	case <-e.ctx.Done():
		err = lang.ErrInterrupted
	}

	e.mu.Lock()
	e.stopped = false
	e.stack = nil
	e.refs = make(map[int]any)
	e.mu.Unlock()

	e.mode = mode
	e.stepDepth = depth
	e.resumedFrom = position{line: line, depth: depth}
	return err
}

// engineHook adapts the engine to lang.Hook
type engineHook struct {
	e *GlintEngine
}

func (h engineHook) Statement(line, depth int) error {
	if h.e.ctx.Err() != nil {
		return lang.ErrInterrupted
	}
	reason, stop := h.e.shouldStop(line, depth)
	if !stop {
		return nil
	}
	return h.e.suspend(reason, "", line, depth)
}

// Fault turns a runtime error into an exception stop. Whatever the client
// does next, the error then ends the run.
func (h engineHook) Fault(err *lang.RuntimeError) {
	if h.e.ctx.Err() != nil {
		return
	}
	_ = h.e.suspend(StopException, err.Error(), err.Line, len(h.e.interp.Stack()))
}

// outputWriter forwards program output to the sink
type outputWriter struct {
	sink EventSink
}

func (w outputWriter) Write(p []byte) (int, error) {
	w.sink.Output(OutputStdout, string(p))
	return len(p), nil
}
