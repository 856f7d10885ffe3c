package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/castline/castline/internal/pipeline/handlers"
	"github.com/castline/castline/internal/worker"
)

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Consume one job from the queue and run its pipeline",
	Long: `Claim the oldest pending job, run its pipeline plan, and move the job
to done or failed. Each invocation processes at most one job and writes a
worker summary artifact; a failed job exits nonzero.`,
	RunE: runWork,
}

var (
	workQueueDir string
	workDryRun   bool
)

func init() {
	workCmd.Flags().StringVar(&workQueueDir, "queue-dir", "", "queue directory (default from env)")
	workCmd.Flags().BoolVar(&workDryRun, "dry-run", false, "peek at the next job without claiming it")

	rootCmd.AddCommand(workCmd)
}

func runWork(cmd *cobra.Command, args []string) error {
	store, cfg, err := environment()
	if err != nil {
		return err
	}

	summary, err := worker.Run(store, cfg, handlers.DefaultRegistry(), worker.Options{
		QueueDir: workQueueDir,
		DryRun:   workDryRun,
	})
	if err != nil {
		return err
	}
	if summary == nil {
		fmt.Println("pipeline disabled, worker idle")
		return nil
	}
	if summary.Reason != "" {
		fmt.Printf("worker: %s (%s)\n", summary.Decision, summary.Reason)
	} else {
		fmt.Printf("worker: %s job %s\n", summary.Decision, summary.JobID)
	}
	return nil
}
