// Package commands builds the glint-ls command line.
package commands

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ctagard/glint-ls/internal/config"
	"github.com/ctagard/glint-ls/internal/logging"
	"github.com/ctagard/glint-ls/internal/version"
)

type rootFlagData struct {
	configPath string
	logLevel   string
}

// env is what every subcommand runs with once the persistent flags are parsed
type env struct {
	flags rootFlagData
	cfg   *config.Config
	log   zerolog.Logger
}

// NewRootCmd creates the glint-ls root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	e := &env{log: logging.Nop()}

	rootCmd := &cobra.Command{
		Use:   version.Name,
		Short: "Language server, debug adapter and MCP tools for glint",
		Long: `glint-ls serves the glint language to editors and agents.

It speaks the Language Server Protocol for completion, hover, symbols and
diagnostics, the Debug Adapter Protocol for breakpoints and stepping, and
the Model Context Protocol for the same analysis from AI assistants.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: e.load,
	}
	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&e.flags.configPath, "config", "", "Path to a JSON or TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&e.flags.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error); overrides the configuration file")

	rootCmd.AddCommand(
		newLSPCommand(e),
		newDAPCommand(e),
		newMCPCommand(e),
		newRunCommand(e),
		newVersionCommand(),
	)
	return rootCmd
}

// load reads the configuration and sets up logging before any subcommand runs
func (e *env) load(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(e.flags.configPath)
	if err != nil {
		return err
	}
	if e.flags.logLevel != "" {
		cfg.LogLevel = e.flags.logLevel
	}
	e.cfg = cfg
	e.log = logging.New(cmd.ErrOrStderr(), version.Name, cfg.LogLevel)
	return nil
}
