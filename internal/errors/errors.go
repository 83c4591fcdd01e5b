// Package errors provides structured error types for glint-ls.
// These errors carry a hint telling the client (an editor, a debugger UI or
// an LLM driving the MCP tools) how to correct course.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a category of error for programmatic handling
type ErrorCode string

const (
	// Document errors
	CodeDocumentNotFound ErrorCode = "DOCUMENT_NOT_FOUND"
	CodeServerShutdown   ErrorCode = "SERVER_SHUTDOWN"

	// Debug session errors
	CodeSessionNotFound     ErrorCode = "SESSION_NOT_FOUND"
	CodeSessionLimitReached ErrorCode = "SESSION_LIMIT_REACHED"
	CodeSessionNotLaunched  ErrorCode = "SESSION_NOT_LAUNCHED"
	CodeSessionState        ErrorCode = "SESSION_STATE"
	CodeNotStopped          ErrorCode = "NOT_STOPPED"
	CodeUnknownCommand      ErrorCode = "UNKNOWN_COMMAND"

	// Program errors
	CodeProgramLoadFailed ErrorCode = "PROGRAM_LOAD_FAILED"
	CodeRuntimeFault      ErrorCode = "RUNTIME_FAULT"

	// Parameter errors
	CodeMissingParameter ErrorCode = "MISSING_PARAMETER"
	CodeInvalidParameter ErrorCode = "INVALID_PARAMETER"

	// Permission errors
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// Configuration errors
	CodeConfigInvalid ErrorCode = "CONFIG_INVALID"

	// Runtime errors
	CodeEvaluationFailed ErrorCode = "EVALUATION_FAILED"
	CodeUnknown          ErrorCode = "UNKNOWN_ERROR"
)

// DebugError is a structured error type that includes helpful information
// for the client to understand what went wrong and how to fix it.
type DebugError struct {
	// Code is a machine-readable error category
	Code ErrorCode `json:"code"`

	// Message is a human-readable description of what went wrong
	Message string `json:"message"`

	// Hint provides actionable guidance on how to fix the error
	Hint string `json:"hint,omitempty"`

	// Details contains additional context (e.g., the invalid value, expected format)
	Details map[string]interface{} `json:"details,omitempty"`

	// Cause is the underlying error, if any
	Cause error `json:"-"`
}

// Error implements the error interface
func (e *DebugError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Hint != "" {
		sb.WriteString(" | Hint: ")
		sb.WriteString(e.Hint)
	}

	return sb.String()
}

// Unwrap returns the underlying error for error chaining
func (e *DebugError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *DebugError) WithDetails(key string, value interface{}) *DebugError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying cause
func (e *DebugError) WithCause(err error) *DebugError {
	e.Cause = err
	return e
}

// --- Document Errors ---

// DocumentNotFound creates an error for a URI that was never opened
func DocumentNotFound(uri string) *DebugError {
	return &DebugError{
		Code:    CodeDocumentNotFound,
		Message: fmt.Sprintf("document '%s' is not open", uri),
		Hint:    "Send textDocument/didOpen for the document before querying it.",
		Details: map[string]interface{}{
			"uri": uri,
		},
	}
}

// ServerShutdown creates an error for requests received after shutdown
func ServerShutdown() *DebugError {
	return &DebugError{
		Code:    CodeServerShutdown,
		Message: "server is shutting down",
		Hint:    "Only the exit notification is accepted after shutdown.",
	}
}

// --- Session Errors ---

// SessionNotFound creates an error for when a session ID doesn't exist
func SessionNotFound(sessionID string) *DebugError {
	return &DebugError{
		Code:    CodeSessionNotFound,
		Message: fmt.Sprintf("session '%s' not found", sessionID),
		Hint:    "Use debug_list_sessions to see active sessions.",
		Details: map[string]interface{}{
			"sessionId": sessionID,
		},
	}
}

// SessionLimitReached creates an error when max sessions is reached
func SessionLimitReached(maxSessions int) *DebugError {
	return &DebugError{
		Code:    CodeSessionLimitReached,
		Message: fmt.Sprintf("maximum number of sessions (%d) reached", maxSessions),
		Hint:    "Disconnect an existing debug session before starting a new one.",
		Details: map[string]interface{}{
			"maxSessions": maxSessions,
		},
	}
}

// SessionNotLaunched creates an error for commands that need a loaded program
func SessionNotLaunched(command string) *DebugError {
	return &DebugError{
		Code:    CodeSessionNotLaunched,
		Message: fmt.Sprintf("%s requires a launched program", command),
		Hint:    "Send a launch request with the path of a .glint program first.",
		Details: map[string]interface{}{
			"command": command,
		},
	}
}

// SessionState creates an error for a command sent in the wrong session state
func SessionState(command, state string) *DebugError {
	return &DebugError{
		Code:    CodeSessionState,
		Message: fmt.Sprintf("%s is not valid while the session is %s", command, state),
		Hint:    "Follow the initialize, launch, configurationDone sequence.",
		Details: map[string]interface{}{
			"command": command,
			"state":   state,
		},
	}
}

// NotStopped creates an error for execution control while the program runs
func NotStopped(command string) *DebugError {
	return &DebugError{
		Code:    CodeNotStopped,
		Message: fmt.Sprintf("%s requires the thread to be stopped", command),
		Hint:    "Send pause, or wait for a stopped event, before stepping or continuing.",
		Details: map[string]interface{}{
			"command": command,
		},
	}
}

// UnknownCommand creates an error for an unsupported debug request
func UnknownCommand(command string) *DebugError {
	return &DebugError{
		Code:    CodeUnknownCommand,
		Message: fmt.Sprintf("unsupported command '%s'", command),
		Details: map[string]interface{}{
			"command": command,
		},
	}
}

// --- Program Errors ---

// ProgramLoadFailed creates an error when a program cannot be read or parsed
func ProgramLoadFailed(program string, err error) *DebugError {
	return &DebugError{
		Code:    CodeProgramLoadFailed,
		Message: fmt.Sprintf("failed to load program: %v", err),
		Hint:    "Check that the program path is correct and that the file parses without errors.",
		Cause:   err,
		Details: map[string]interface{}{
			"program": program,
		},
	}
}

// RuntimeFault creates an error for a program that failed while running
func RuntimeFault(err error) *DebugError {
	return &DebugError{
		Code:    CodeRuntimeFault,
		Message: fmt.Sprintf("program failed: %v", err),
		Cause:   err,
	}
}

// --- Parameter Errors ---

// MissingParameter creates an error for missing required parameters
func MissingParameter(paramName, description string) *DebugError {
	return &DebugError{
		Code:    CodeMissingParameter,
		Message: fmt.Sprintf("required parameter '%s' is missing", paramName),
		Hint:    description,
		Details: map[string]interface{}{
			"parameter": paramName,
		},
	}
}

// InvalidParameter creates an error for invalid parameter values
func InvalidParameter(paramName string, value interface{}, expected string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidParameter,
		Message: fmt.Sprintf("invalid value for parameter '%s': %v", paramName, value),
		Hint:    fmt.Sprintf("Expected: %s", expected),
		Details: map[string]interface{}{
			"parameter": paramName,
			"value":     value,
			"expected":  expected,
		},
	}
}

// --- Permission Errors ---

// PermissionDenied creates an error for an operation the server mode forbids
func PermissionDenied(operation, mode string) *DebugError {
	return &DebugError{
		Code:    CodePermissionDenied,
		Message: fmt.Sprintf("%s is not allowed in current server mode", operation),
		Hint:    fmt.Sprintf("This operation is not allowed in '%s' mode. Set mode to \"full\" in the configuration to enable it.", mode),
		Details: map[string]interface{}{
			"operation": operation,
			"mode":      mode,
		},
	}
}

// --- Configuration Errors ---

// ConfigInvalid creates an error for an invalid configuration file
func ConfigInvalid(path, reason string) *DebugError {
	return &DebugError{
		Code:    CodeConfigInvalid,
		Message: fmt.Sprintf("configuration '%s' is invalid: %s", path, reason),
		Hint:    "Check the configuration file for syntax errors and unknown keys.",
		Details: map[string]interface{}{
			"path":   path,
			"reason": reason,
		},
	}
}

// --- Runtime Errors ---

// EvaluationFailed creates an error for expression evaluation failures
func EvaluationFailed(expression string, err error) *DebugError {
	return &DebugError{
		Code:    CodeEvaluationFailed,
		Message: fmt.Sprintf("failed to evaluate expression '%s': %v", expression, err),
		Hint:    "Check that the expression is valid glint and that referenced variables are in scope of the selected frame.",
		Cause:   err,
		Details: map[string]interface{}{
			"expression": expression,
		},
	}
}

// --- Helper for wrapping generic errors ---

// Wrap wraps a generic error with context
func Wrap(code ErrorCode, message string, hint string, err error) *DebugError {
	return &DebugError{
		Code:    code,
		Message: message,
		Hint:    hint,
		Cause:   err,
	}
}

// FromError creates a DebugError from a generic error, attempting to preserve any existing structure
func FromError(err error) *DebugError {
	var de *DebugError
	if stderrors.As(err, &de) {
		return de
	}
	return &DebugError{
		Code:    CodeUnknown,
		Message: err.Error(),
		Hint:    "An unexpected error occurred. Please check the error message for details.",
		Cause:   err,
	}
}
