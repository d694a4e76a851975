package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/formpilot/formpilot/internal/agent"
	"github.com/formpilot/formpilot/internal/task"
)

var generateInput string

var generateCmd = &cobra.Command{
	Use:   "generate <task-kind>",
	Short: "Run one generation task",
	Long: `Run one generation task and print the response envelope as JSON.

Input is a JSON object matching the task's input shape, passed with
--input or piped on stdin:

  formpilot generate email-composer --input '{"purpose":"schedule a demo","tone":"formal"}'
  echo '{"question":"how do I pivot?"}' | formpilot generate excel-helper

Use "formpilot tasks" to list task kinds and their shapes.`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&generateInput, "input", "i", "", "task input as a JSON object (defaults to stdin)")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	input, err := readInput()
	if err != nil {
		return err
	}

	ctx, stop, a, err := setupApp()
	if err != nil {
		return err
	}
	defer stop()
	defer func() { _ = a.Close() }()

	resp, err := a.Agent.Process(ctx, agent.Request{
		Kind:  task.Kind(args[0]),
		Input: input,
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

func readInput() (map[string]any, error) {
	raw := []byte(generateInput)
	if generateInput == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading input from stdin: %w", err)
		}
		raw = data
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("no input provided; pass --input or pipe a JSON object")
	}

	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("input must be a JSON object: %w", err)
	}
	return input, nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
