// Package debugger implements the Debug Adapter Protocol server for glint.
//
// A Session speaks DAP over one connection and drives an Engine, the
// collaborator that actually executes the program. The engine reports back
// through an EventSink; the session turns those callbacks into DAP events.
//
// Session lifecycle:
//
//	Uninitialized -> Initialized -> Running <-> Stopped -> Terminated -> Disconnected
package debugger

// StopReason is the reason carried by a stopped event
type StopReason string

const (
	StopEntry      StopReason = "entry"
	StopBreakpoint StopReason = "breakpoint"
	StopStep       StopReason = "step"
	StopPause      StopReason = "pause"
	StopException  StopReason = "exception"
)

// StepMode selects how far a resumed thread runs before stopping again
type StepMode int

const (
	StepContinue StepMode = iota
	StepIn
	StepOver
	StepOut
)

func (m StepMode) String() string {
	switch m {
	case StepIn:
		return "stepIn"
	case StepOver:
		return "next"
	case StepOut:
		return "stepOut"
	default:
		return "continue"
	}
}

// BreakpointSpec is a requested source breakpoint
type BreakpointSpec struct {
	Line         int
	Condition    string
	HitCondition string
}

// BreakpointStatus is the resolved form of a BreakpointSpec
type BreakpointStatus struct {
	ID       int
	Line     int
	Verified bool
	Message  string
}

// Frame is one stack frame of the stopped thread. ID 0 is the innermost frame.
type Frame struct {
	ID     int
	Name   string
	Line   int
	Source string
}

// Scope is a named group of variables in a frame
type Scope struct {
	Name      string
	Reference int
	Expensive bool
}

// Variable is one named value. A non-zero Reference lists its children.
type Variable struct {
	Name      string
	Value     string
	Type      string
	Reference int
	Named     int
	Indexed   int
}

// Output categories
const (
	OutputStdout  = "stdout"
	OutputConsole = "console"
)

// EventSink receives execution events. Calls arrive on the engine's own
// goroutine.
type EventSink interface {
	// Stopped reports that the thread has suspended
	Stopped(reason StopReason, text string)
	// Output carries program output
	Output(category, text string)
	// Exited reports the end of the run: nil on completion,
	// lang.ErrInterrupted after Interrupt, or the runtime error that stopped it
	Exited(err error)
}

// Engine executes one program under debugger control.
//
// Load and SetBreakpoints may be called before Start. Resume, StackTrace,
// Scopes, Variables and Evaluate only do useful work while Stopped reports
// true; otherwise the queries return empty results.
type Engine interface {
	Load(path string) error
	SetBreakpoints(source string, specs []BreakpointSpec) []BreakpointStatus
	Start(stopOnEntry bool)
	Resume(mode StepMode) error
	Pause()
	Interrupt()
	Done() <-chan struct{}
	Stopped() bool
	StackTrace() []Frame
	Scopes(frameID int) []Scope
	Variables(ref int) []Variable
	Evaluate(expr string, frameID int) (Variable, error)
}

// EngineFactory creates the engine of a new session
type EngineFactory func(sink EventSink) Engine
