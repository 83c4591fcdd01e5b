// Package mcp provides the Model Context Protocol (MCP) server implementation.
//
// This package exposes glint analysis and execution through MCP tools that can
// be used by AI assistants and other MCP clients:
//
// Analysis (always available):
//   - glint_complete: Completion candidates at a position
//   - glint_hover: Type and documentation of the name at a position
//   - glint_symbols: Top-level declarations
//   - glint_diagnostics: Syntax and type problems
//
// Execution (full mode only):
//   - glint_run: Run a program to completion and capture its output
//
// Debugging (when a debug adapter listener is attached):
//   - debug_list_sessions: List the DAP sessions being served
//   - debug_terminate_session: End a session (full mode only)
package mcp

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/ctagard/glint-ls/internal/config"
	"github.com/ctagard/glint-ls/internal/debugger"
	"github.com/ctagard/glint-ls/internal/version"
)

// Server wraps the MCP server with glint capabilities
type Server struct {
	mcpServer *server.MCPServer
	debug     *debugger.Server
	config    *config.Config
	log       zerolog.Logger
}

// Option configures a Server
type Option func(*Server)

// WithDebugServer exposes the sessions of a running debug adapter
func WithDebugServer(d *debugger.Server) Option {
	return func(s *Server) { s.debug = d }
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l.With().Str("component", "mcp").Logger() }
}

// NewServer creates a new glint MCP server
func NewServer(cfg *config.Config, opts ...Option) *Server {
	mcpServer := server.NewMCPServer(
		version.Name,
		version.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s := &Server{
		mcpServer: mcpServer,
		config:    cfg,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerTools()

	return s
}

// ServeStdio starts the server using stdio transport
func (s *Server) ServeStdio() error {
	s.log.Info().Str("mode", string(s.config.Mode)).Msg("MCP server starting")
	return server.ServeStdio(s.mcpServer)
}

// MCPServer returns the underlying mcp-go server
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}
