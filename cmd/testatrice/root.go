package main

import (
	"github.com/spf13/cobra"
)

// NewCmdRoot creates the root command of the testatrice CLI.
func NewCmdRoot(f *Factory) *cobra.Command {
	g := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "testatrice",
		Short: "Start servatrice instances for integration tests",
		Long: `testatrice provisions a network, a database and a mail capture service
in containers and starts servatrice instances on top of them.

  testatrice build             # Build images and start the shared services
  testatrice server -t 4747    # Start one server instance
  testatrice stop --all        # Stop every server and the shared services`,
		SilenceUsage: true,
	}
	cmd.SetOut(f.Out)
	cmd.SetErr(f.ErrOut)

	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", "Path to the orchestrator config file (default: ./testatrice.yaml if present)")
	cmd.PersistentFlags().StringVar(&g.logFile, "log-file", "", "Also write logs to this file")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Print more logging information")
	cmd.PersistentFlags().BoolVarP(&g.silent, "silent", "s", false, "Print nothing")
	cmd.MarkFlagsMutuallyExclusive("verbose", "silent")
	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.AddCommand(newCmdServer(f, g))
	cmd.AddCommand(newCmdBuild(f, g))
	cmd.AddCommand(newCmdStop(f, g))
	cmd.AddCommand(newCmdAPI(f, g))
	cmd.AddCommand(newCmdToken(f, g))

	return cmd
}
