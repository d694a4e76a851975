package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/formpilot/formpilot/internal/agent"
	"github.com/formpilot/formpilot/internal/task"
)

var researchCmd = &cobra.Command{
	Use:   "research <company name>",
	Short: "Research a company",
	Long: `Research a company and print the findings.

Results are persisted: asking about the same company again inside the
staleness window serves the stored record without a new model call.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResearch,
}

func init() {
	rootCmd.AddCommand(researchCmd)
}

func runResearch(cmd *cobra.Command, args []string) error {
	ctx, stop, a, err := setupApp()
	if err != nil {
		return err
	}
	defer stop()
	defer func() { _ = a.Close() }()

	resp, err := a.Agent.Process(ctx, agent.Request{
		Kind:  task.KindCompanyResearch,
		Input: map[string]any{"companyName": strings.Join(args, " ")},
	})
	if err != nil {
		return fmt.Errorf("processing request: %w", err)
	}

	if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("input rejected with %d validation error(s)", len(resp.Errors))
	}
	return nil
}
