package commands

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/ctagard/glint-ls/internal/debugger"
	"github.com/ctagard/glint-ls/internal/lsp"
	"github.com/ctagard/glint-ls/internal/mcp"
)

func newLSPCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "lsp",
		Short: "Runs the language server over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return lsp.New(e.cfg.LSP, e.log).Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func newDAPCommand(e *env) *cobra.Command {
	var listen string

	dapCmd := &cobra.Command{
		Use:   "dap",
		Short: "Runs the debug adapter",
		Long: `Runs the debug adapter.

Without --listen a single session is served over stdio. With --listen the
adapter accepts TCP connections and runs one session per connection.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("listen") {
				e.cfg.DAP.Listen = listen
			}
			srv := newDebugServer(e)
			if e.cfg.DAP.Listen == "" {
				conn := debugger.StdioConn{Reader: cmd.InOrStdin(), Writer: cmd.OutOrStdout()}
				return srv.ServeConn(cmd.Context(), conn)
			}
			ln, err := net.Listen("tcp", e.cfg.DAP.Listen)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", e.cfg.DAP.Listen, err)
			}
			return srv.Serve(cmd.Context(), ln)
		},
	}
	dapCmd.Flags().StringVar(&listen, "listen", "", "TCP address to accept debug clients on, e.g. 127.0.0.1:4711")
	return dapCmd
}

func newDebugServer(e *env) *debugger.Server {
	factory := debugger.NewGlintFactory(debugger.WithMaxCallDepth(e.cfg.Engine.MaxCallDepth))
	return debugger.NewServer(factory,
		debugger.WithMaxSessions(e.cfg.DAP.MaxSessions),
		debugger.WithSessionTimeout(e.cfg.DAP.SessionTimeout),
		debugger.WithExitAfterSession(e.cfg.DAP.ExitAfterSession),
		debugger.WithServerLogger(e.log.With().Str("component", "dap").Logger()),
	)
}

func newMCPCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Runs the MCP tool server over stdio",
		Long: `Runs the MCP tool server over stdio.

When the configuration sets dap.listen, a debug adapter is started on that
address as well and its sessions are listed by the debug_list_sessions tool.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := []mcp.Option{mcp.WithLogger(e.log)}

			if e.cfg.DAP.Listen != "" {
				ln, err := net.Listen("tcp", e.cfg.DAP.Listen)
				if err != nil {
					return fmt.Errorf("failed to listen on %s: %w", e.cfg.DAP.Listen, err)
				}
				srv := newDebugServer(e)
				go func() {
					if err := srv.Serve(cmd.Context(), ln); err != nil {
						e.log.Error().Err(err).Msg("debug adapter stopped")
					}
				}()
				opts = append(opts, mcp.WithDebugServer(srv))
			}

			return mcp.NewServer(e.cfg, opts...).ServeStdio()
		},
	}
}
