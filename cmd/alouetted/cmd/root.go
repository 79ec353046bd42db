package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// NewRootCommand creates the root command for the alouetted daemon
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alouetted",
		Short: "Alouette service daemon",
		Long: `alouetted runs the Alouette translation and speech services against a
native backend and serves their health and metrics over HTTP.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewConfigCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// NewVersionCommand prints build information.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), PrintVersion())
		},
	}
}

// PrintVersion returns version information
func PrintVersion() string {
	return fmt.Sprintf("alouetted v%s (commit: %s, built on: %s)", Version, Commit, Date)
}
