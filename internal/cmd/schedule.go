package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/castline/castline/internal/scheduler"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Enqueue plan entries whose publish time falls in the window",
	Long: `Run one scheduling pass over a schedule plan. Entries whose publish
time falls inside [now, now+window] are enqueued as jobs; entries in the
past are recorded as missed. Every pass writes a dated summary artifact.`,
	RunE: runSchedule,
}

var (
	schedulePlanPath string
	scheduleNow      string
	scheduleWindow   int
	scheduleQueueDir string
	scheduleDryRun   bool
)

func init() {
	scheduleCmd.Flags().StringVar(&schedulePlanPath, "plan", "", "path to the schedule plan YAML (required)")
	scheduleCmd.Flags().StringVar(&scheduleNow, "now", "", "override the clock, RFC3339 (for tests and replays)")
	scheduleCmd.Flags().IntVar(&scheduleWindow, "window-minutes", 0, "look-ahead window in minutes (default from env)")
	scheduleCmd.Flags().StringVar(&scheduleQueueDir, "queue-dir", "", "queue directory (default from env)")
	scheduleCmd.Flags().BoolVar(&scheduleDryRun, "dry-run", false, "report what would be enqueued without writing jobs")
	scheduleCmd.MarkFlagRequired("plan")

	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	store, cfg, err := environment()
	if err != nil {
		return err
	}

	opts := scheduler.RunOptions{
		PlanPath:      schedulePlanPath,
		QueueDir:      cfg.Settings.QueueDir,
		WindowMinutes: cfg.Settings.WindowMinutes,
		DryRun:        scheduleDryRun,
	}
	if scheduleQueueDir != "" {
		opts.QueueDir = scheduleQueueDir
	}
	if scheduleWindow > 0 {
		opts.WindowMinutes = scheduleWindow
	}
	if scheduleNow != "" {
		now, err := time.Parse(time.RFC3339, scheduleNow)
		if err != nil {
			return fmt.Errorf("invalid --now, want RFC3339: %w", err)
		}
		opts.Now = now
	}

	summary, err := scheduler.RunSchedule(store, cfg, opts)
	if err != nil {
		return err
	}
	if summary == nil {
		fmt.Println("pipeline disabled, nothing scheduled")
		return nil
	}
	fmt.Printf("schedule pass: %d enqueued, %d skipped\n",
		len(summary.EnqueuedJobIDs), len(summary.SkippedEntries))
	return nil
}
