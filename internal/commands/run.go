package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ctagard/glint-ls/internal/errors"
	"github.com/ctagard/glint-ls/internal/lang"
	"github.com/ctagard/glint-ls/internal/version"
)

func newRunCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "run <file>",
		Short: "Runs a glint program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			src, err := os.ReadFile(path)
			if err != nil {
				return errors.ProgramLoadFailed(path, err)
			}
			prog, err := lang.Parse(string(src))
			if err != nil {
				return errors.ProgramLoadFailed(path, err)
			}

			in := lang.New(
				lang.WithOutput(cmd.OutOrStdout()),
				lang.WithMaxDepth(e.cfg.Engine.MaxCallDepth),
			)
			if err := in.Run(cmd.Context(), prog); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	var check bool

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Prints the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", version.Name, version.Version)
			if !check {
				return nil
			}
			release, err := version.NewChecker().Latest(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), release.String())
			return nil
		},
	}
	versionCmd.Flags().BoolVar(&check, "check", false, "Look up the latest release on GitHub")
	return versionCmd
}
