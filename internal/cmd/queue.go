package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/castline/castline/internal/config"
	"github.com/castline/castline/internal/queue"
	"github.com/castline/castline/internal/scheduler"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the job queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending jobs in FIFO order",
	RunE:  runQueueList,
}

var queueAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Enqueue a pipeline run manually",
	Long: `Enqueue a single job outside the scheduler, for reruns and ad-hoc
production. The job id is derived from the scheduled time and plan, so
repeating the same add is a no-op.`,
	RunE: runQueueAdd,
}

var (
	queueDirFlag     string
	queueAddPlan     string
	queueAddAt       string
	queueAddRunIDPfx string
)

func init() {
	queueCmd.PersistentFlags().StringVar(&queueDirFlag, "queue-dir", "", "queue directory (default from env)")
	queueAddCmd.Flags().StringVar(&queueAddPlan, "plan", "", "pipeline plan path for the job (required)")
	queueAddCmd.Flags().StringVar(&queueAddAt, "at", "", "scheduled time, RFC3339 (default now)")
	queueAddCmd.Flags().StringVar(&queueAddRunIDPfx, "run-id-prefix", "", "optional run id prefix")
	queueAddCmd.MarkFlagRequired("plan")

	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueAddCmd)
	rootCmd.AddCommand(queueCmd)
}

func openQueue() (*queue.FileQueue, config.Config, error) {
	store, cfg, err := environment()
	if err != nil {
		return nil, cfg, err
	}
	dir := cfg.Settings.QueueDir
	if queueDirFlag != "" {
		dir = queueDirFlag
	}
	abs, err := store.Resolve(dir, "queue directory")
	if err != nil {
		return nil, cfg, err
	}
	return queue.New(abs), cfg, nil
}

func runQueueList(cmd *cobra.Command, args []string) error {
	q, _, err := openQueue()
	if err != nil {
		return err
	}
	items := q.ListPending()
	if len(items) == 0 {
		fmt.Println("queue empty")
		return nil
	}
	for _, item := range items {
		if item.Job == nil {
			fmt.Printf("%s  (unparsable payload)\n", item.Filename)
			continue
		}
		fmt.Printf("%s  run=%s  scheduled=%s  attempts=%d\n",
			item.Filename, item.Job.RunID, item.Job.ScheduledFor, item.Job.Attempts)
	}
	return nil
}

func runQueueAdd(cmd *cobra.Command, args []string) error {
	q, cfg, err := openQueue()
	if err != nil {
		return err
	}

	at := time.Now().UTC()
	if queueAddAt != "" {
		at, err = time.Parse(time.RFC3339, queueAddAt)
		if err != nil {
			return fmt.Errorf("invalid --at, want RFC3339: %w", err)
		}
		at = at.UTC()
	}

	loc, err := time.LoadLocation(cfg.Settings.Timezone)
	if err != nil {
		loc = time.UTC
	}

	prefix := queueAddRunIDPfx
	if prefix == "" {
		// Manual jobs get a unique prefix so reruns of the same plan at the
		// same minute do not collide on run directories.
		prefix = "manual-" + uuid.New().String()[:8]
	}
	entry := scheduler.Entry{
		PublishAt:    at.Format(time.RFC3339),
		PipelinePath: queueAddPlan,
		RunIDPrefix:  prefix,
	}
	job := scheduler.BuildJob(entry, at, loc, time.Now().UTC())

	added, err := q.Enqueue(job)
	if err != nil {
		return err
	}
	if !added {
		fmt.Printf("job %s already queued\n", job.JobID)
		return nil
	}
	fmt.Printf("enqueued job %s (run %s)\n", job.JobID, job.RunID)
	return nil
}
