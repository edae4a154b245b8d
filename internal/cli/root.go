// Package cli implements the docqa command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/0xcro3dile/docqa/internal/app"
	"github.com/0xcro3dile/docqa/internal/config"
	"github.com/0xcro3dile/docqa/internal/logger"
)

var (
	version = "dev"

	configPath string
	verbose    bool
)

// buildApp constructs the pipeline from config. Tests swap it for one with fake backends.
var buildApp = func(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app.App, error) {
	return app.Build(ctx, cfg, log)
}

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Ask questions about a document",
	Long: `docqa indexes one document at a time and answers questions about it
with a local LLM, citing the passages each answer was drawn from.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config YAML (defaults when empty or missing)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return buildApp(cmd.Context(), cfg, logger.New(cmd.ErrOrStderr(), verbose))
}
