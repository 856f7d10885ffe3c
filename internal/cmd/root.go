package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/castline/castline/internal/artifact"
	"github.com/castline/castline/internal/config"
	"github.com/castline/castline/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "castline",
	Short: "Content production workflow orchestrator",
	Long: `castline drives a scheduled content production workflow: a cron-style
scheduler enqueues pipeline runs into a durable file queue, workers consume
one job per invocation, and each run flows through declared steps up to a
quality gate and an external publish.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	rootDir    string
	logVerbose bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", ".", "repository root all artifacts live under")
	rootCmd.PersistentFlags().BoolVar(&logVerbose, "verbose", false, "enable debug logging")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with a cancellation context
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// environment builds the shared per-invocation state. Configuration is
// read from the environment exactly once, here.
func environment() (*artifact.Store, config.Config, error) {
	if logVerbose {
		cfg := log.DefaultConfig()
		cfg.Level = log.LevelDebug
		log.SetDefaultLogger(log.New(cfg))
	}
	store, err := artifact.NewStore(rootDir)
	if err != nil {
		return nil, config.Config{}, err
	}
	return store, config.FromEnv(), nil
}
