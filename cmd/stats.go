package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache and provider usage statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	_, stop, a, err := setupApp()
	if err != nil {
		return err
	}
	defer stop()
	defer func() { _ = a.Close() }()

	out := cmd.OutOrStdout()

	respStats := a.ResponseCache.Stats()
	fmt.Fprintln(out, "Response cache:")
	fmt.Fprintf(out, "  entries:   %d\n", a.ResponseCache.Len())
	fmt.Fprintf(out, "  hits:      %d\n", respStats.Hits)
	fmt.Fprintf(out, "  misses:    %d\n", respStats.Misses)
	fmt.Fprintf(out, "  evictions: %d\n", respStats.Evictions)

	fmt.Fprintln(out, "Embedding cache:")
	fmt.Fprintf(out, "  entries:   %d\n", a.EmbeddingCache.Len())

	usage := a.Usage.Snapshot()
	fmt.Fprintln(out, "Provider usage:")
	if len(usage) == 0 {
		fmt.Fprintln(out, "  (no requests served)")
		return nil
	}
	for kind, stats := range usage {
		fmt.Fprintf(out, "  %s: %d requests, %d synthetic, %d in / %d out tokens\n",
			kind, stats.Requests, stats.Synthetic, stats.InputTokens, stats.OutputTokens)
		for name, n := range stats.ByProvider {
			fmt.Fprintf(out, "    %s: %d\n", name, n)
		}
	}
	return nil
}
