package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"mailmind_server/config"
	"mailmind_server/internal/bootstrap"
	"mailmind_server/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootFlags struct {
	verbose bool
}

var rootCmd = &cobra.Command{
	Use:   "skillctl",
	Short: "Operate the mailmind skill library",
	Long:  "skillctl inspects, exports and imports the skill library and runs the\nlearning and evolution agents against the configured stores.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&rootFlags.verbose, "verbose", "v", false, "Log at debug level")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(categoriesCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(evolveCmd)
	rootCmd.AddCommand(learnCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withDeps loads configuration and runs fn against freshly wired services.
func withDeps(ctx context.Context, fn func(deps *bootstrap.Dependencies) error) error {
	_ = godotenv.Load()

	level := logger.LevelWarn
	if rootFlags.verbose {
		level = logger.LevelDebug
	}
	logger.Init(logger.Config{Level: level, Output: os.Stderr, Service: "skillctl", Console: true})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	deps, cleanup, err := bootstrap.NewDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	return fn(deps)
}
