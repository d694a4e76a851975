package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/formpilot/formpilot/internal/config"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and configuration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runVersion(cmd)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "formpilot %s\n", AppVersion)
	fmt.Fprintf(out, "Build Time: %s\n", BuildTime)
	fmt.Fprintf(out, "Git Commit: %s\n", GitCommit)
	fmt.Fprintln(out)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  Primary model:   %s\n", cfg.PrimaryModel)
	fmt.Fprintf(out, "  Secondary model: %s\n", cfg.SecondaryModel)
	fmt.Fprintf(out, "  Embedder:        %s\n", cfg.EmbedderModel)
	fmt.Fprintf(out, "  Database:        %s:%d/%s\n", cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDBName)

	printKeyStatus(out, "GEMINI_API_KEY")
	printKeyStatus(out, "OPENAI_API_KEY")
	return nil
}

// printKeyStatus shows whether a provider key is set without
// revealing more than its edges.
func printKeyStatus(out io.Writer, envVar string) {
	key := os.Getenv(envVar)
	if key == "" {
		fmt.Fprintf(out, "  %s: not set\n", envVar)
		return
	}
	if len(key) < 8 {
		fmt.Fprintf(out, "  %s: configured\n", envVar)
		return
	}
	fmt.Fprintf(out, "  %s: %s...%s (configured)\n", envVar, key[:4], key[len(key)-4:])
}
