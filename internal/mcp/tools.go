package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// registerTools registers the glint tool set
func (s *Server) registerTools() {
	// Analysis (both modes)
	s.registerComplete()
	s.registerHover()
	s.registerSymbols()
	s.registerDiagnostics()

	// Execution (full mode only)
	if s.config.CanRunPrograms() {
		s.registerRun()
	}

	if s.debug != nil {
		s.registerDebugListSessions()
		if s.config.CanRunPrograms() {
			s.registerDebugTerminateSession()
		}
	}
}

// sourceOptions are shared by every tool that reads a program
func sourceOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("source",
			mcp.Description("glint source text. Either source or path is required."),
		),
		mcp.WithString("path",
			mcp.Description("Path to a .glint file, used when source is not given"),
		),
	}
}

func positionOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithNumber("line",
			mcp.Required(),
			mcp.Description("1-based line of the cursor"),
		),
		mcp.WithNumber("column",
			mcp.Required(),
			mcp.Description("1-based column of the cursor, counted in characters. The cursor sits before this column, so after typing 'te' at the start of a line the column is 3."),
		),
	}
}

func newTool(name, description string, groups ...[]mcp.ToolOption) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(description)}
	for _, g := range groups {
		opts = append(opts, g...)
	}
	return mcp.NewTool(name, opts...)
}

// Analysis Tools

func (s *Server) registerComplete() {
	tool := newTool("glint_complete",
		"List completion candidates at a cursor position: variables and functions in scope, builtins, or record fields after 'recv.'. Each candidate carries its inferred type; set resolve=true to include documentation comments.",
		sourceOptions(), positionOptions(),
		[]mcp.ToolOption{mcp.WithBoolean("resolve",
			mcp.Description("Include /// documentation for each candidate (default: false)"),
		)},
	)
	s.mcpServer.AddTool(tool, s.handleComplete)
}

func (s *Server) registerHover() {
	tool := newTool("glint_hover",
		"Describe the identifier at a cursor position: its inferred type and documentation.",
		sourceOptions(), positionOptions(),
	)
	s.mcpServer.AddTool(tool, s.handleHover)
}

func (s *Server) registerSymbols() {
	tool := newTool("glint_symbols",
		"List the top-level let and fn declarations of a program with their types and ranges.",
		sourceOptions(),
	)
	s.mcpServer.AddTool(tool, s.handleSymbols)
}

func (s *Server) registerDiagnostics() {
	tool := newTool("glint_diagnostics",
		"Report syntax and type problems in a program. An empty list means the program checks cleanly.",
		sourceOptions(),
	)
	s.mcpServer.AddTool(tool, s.handleDiagnostics)
}

// Execution Tools

func (s *Server) registerRun() {
	tool := newTool("glint_run",
		"Run a glint program to completion and return what it printed. Runtime errors are reported with their line. Long-running programs are interrupted after timeoutSeconds.",
		sourceOptions(),
		[]mcp.ToolOption{mcp.WithNumber("timeoutSeconds",
			mcp.Description("Interrupt the program after this many seconds (default: 10)"),
		)},
	)
	s.mcpServer.AddTool(tool, s.handleRun)
}

// Debugging Tools

func (s *Server) registerDebugListSessions() {
	tool := mcp.NewTool("debug_list_sessions",
		mcp.WithDescription("List the debug sessions connected to this server's debug adapter, with their state and program."),
	)
	s.mcpServer.AddTool(tool, s.handleDebugListSessions)
}

func (s *Server) registerDebugTerminateSession() {
	tool := mcp.NewTool("debug_terminate_session",
		mcp.WithDescription("End a debug session: its program is interrupted and the client connection closed."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID from debug_list_sessions"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugTerminateSession)
}
