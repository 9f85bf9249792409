package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "forgectl",
	Short: "forgectl - remote build service client",
	Long: `forgectl drives a remote compilation service from the terminal.

It submits builds, tracks them to completion, downloads artifact bundles
and manages the workspaces that group build output.

Running forgectl without a subcommand opens the interactive build view.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBuild(cmd, args)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
