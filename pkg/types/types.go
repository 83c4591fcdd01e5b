// Package types defines the data types glint-ls hands to MCP clients.
//
// This package provides type definitions for:
//   - SessionStatus and SessionInfo: debug sessions served over DAP
//   - Position and Range: 1-based source locations
//   - Completion, Hover, Symbol and Diagnostic: analysis results
//   - RunResult: the outcome of executing a program
//
// Positions here are 1-based lines and columns counted in characters,
// which is what a human or a model reading the source expects.
package types

import "time"

// SessionStatus represents the status of a debug session
type SessionStatus string

const (
	SessionStatusInitializing SessionStatus = "initializing"
	SessionStatusRunning      SessionStatus = "running"
	SessionStatusStopped      SessionStatus = "stopped"
	SessionStatusTerminated   SessionStatus = "terminated"
)

// SessionInfo represents information about a debug session
type SessionInfo struct {
	SessionID string        `json:"sessionId"`
	Status    SessionStatus `json:"status"`
	State     string        `json:"state"`
	Program   string        `json:"program,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Position is a 1-based line and column
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Range is a span of source text
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Completion is one completion candidate
type Completion struct {
	Label         string `json:"label"`
	Kind          string `json:"kind"`
	Detail        string `json:"detail,omitempty"`
	Documentation string `json:"documentation,omitempty"`
}

// HoverInfo describes the identifier under the cursor
type HoverInfo struct {
	Contents string `json:"contents"`
	Range    Range  `json:"range"`
}

// Symbol is a top-level declaration
type Symbol struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
	Range  Range  `json:"range"`
}

// Diagnostic is a problem found in the source
type Diagnostic struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Range    Range  `json:"range"`
}

// RunResult is the outcome of running a program to completion
type RunResult struct {
	Output      string `json:"output"`
	Error       string `json:"error,omitempty"`
	Line        int    `json:"line,omitempty"`
	Interrupted bool   `json:"interrupted,omitempty"`
	DurationMs  int64  `json:"durationMs"`
}
