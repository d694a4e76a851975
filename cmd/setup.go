package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/formpilot/formpilot/internal/app"
	"github.com/formpilot/formpilot/internal/config"
	"github.com/formpilot/formpilot/internal/log"
)

// newLogger builds the process logger honoring --verbose.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level})
}

// setupApp loads configuration and assembles the application. The
// returned context ends on SIGINT/SIGTERM.
func setupApp() (context.Context, context.CancelFunc, *app.App, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	cfg, err := config.Load()
	if err != nil {
		stop()
		return nil, nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	a, err := app.Setup(ctx, cfg, newLogger())
	if err != nil {
		stop()
		return nil, nil, nil, fmt.Errorf("initializing application: %w", err)
	}

	return ctx, stop, a, nil
}
