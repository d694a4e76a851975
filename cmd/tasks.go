package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/formpilot/formpilot/internal/task"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List available task kinds and their input shapes",
	RunE:  runTasks,
}

func init() {
	rootCmd.AddCommand(tasksCmd)
}

func runTasks(cmd *cobra.Command, _ []string) error {
	registry := task.NewRegistry()
	out := cmd.OutOrStdout()

	for _, kind := range registry.Kinds() {
		desc, _ := registry.Get(kind)
		fmt.Fprintf(out, "%s  (%s)\n", kind, desc.Title)

		names := make([]string, 0, len(desc.Input))
		for name := range desc.Input {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			spec := desc.Input[name]
			line := fmt.Sprintf("  %-14s %s", name, spec.Type)
			if spec.Required {
				line += "  (required)"
			}
			if len(spec.Enum) > 0 {
				line += fmt.Sprintf("  one of %v", spec.Enum)
			}
			fmt.Fprintln(out, line)
		}
		fmt.Fprintln(out)
	}
	return nil
}
