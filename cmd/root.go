// Package cmd wires the command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "formpilot",
	Short: "formpilot - document generation assistant",
	Long: `formpilot generates structured business documents (SOPs, project
briefs, presentation outlines, emails, company research) through a
fixed set of task kinds.

Each task validates its input against a declared shape, augments the
prompt with retrieved reference context, and always produces a
schema-valid result — even with no AI provider configured, requests
degrade to a reviewed placeholder draft instead of failing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}
