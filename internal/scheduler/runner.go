package scheduler

import (
	"time"

	"github.com/castline/castline/internal/artifact"
	"github.com/castline/castline/internal/config"
	"github.com/castline/castline/internal/log"
	"github.com/castline/castline/internal/observability"
	"github.com/castline/castline/internal/queue"
)

// Summary is the dated audit artifact written once per scheduling pass.
// It is the answer to "why didn't X get scheduled today".
type Summary struct {
	SchemaVersion  string   `json:"schema_version"`
	Engine         string   `json:"engine"`
	CheckedAt      string   `json:"checked_at"`
	PlanPath       string   `json:"plan_path"`
	Now            string   `json:"now"`
	WindowMinutes  int      `json:"window_minutes"`
	Timezone       string   `json:"timezone"`
	EnqueuedJobIDs []string `json:"enqueued_job_ids"`
	SkippedEntries []Skip   `json:"skipped_entries"`
	DryRun         bool     `json:"dry_run"`
}

// RunOptions parameterizes one cron-style scheduling invocation.
type RunOptions struct {
	PlanPath      string
	QueueDir      string
	Now           time.Time // zero means wall clock
	WindowMinutes int
	DryRun        bool
}

const engineName = "scheduler"

func summaryRel(nowUTC time.Time, tzName string) string {
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		loc, _ = time.LoadLocation(config.DefaultTimezone)
	}
	stamp := nowUTC.In(loc).Format("20060102")
	return "output/scheduler/artifacts/schedule_summary_" + stamp + ".json"
}

// RunSchedule performs one scheduling pass and always writes the dated
// summary, including when the plan itself cannot be parsed: a cron-driven
// invocation must never fail invisibly. The global kill-switch is checked
// before anything else and produces no writes at all.
func RunSchedule(store *artifact.Store, cfg config.Config, opts RunOptions) (*Summary, error) {
	logger := log.DefaultLogger().With("engine", engineName)

	if !cfg.Toggles.Pipeline {
		logger.Info("pipeline disabled by PIPELINE_ENABLED=false")
		return nil, nil
	}

	nowUTC := opts.Now
	if nowUTC.IsZero() {
		nowUTC = time.Now()
	}
	nowUTC = nowUTC.UTC()

	planAbs, err := store.Resolve(opts.PlanPath, "plan path")
	if err != nil {
		return nil, err
	}
	queueAbs, err := store.Resolve(opts.QueueDir, "queue dir")
	if err != nil {
		return nil, err
	}
	q := queue.New(queueAbs)

	schedulerEnabled := opts.DryRun || cfg.Toggles.Scheduler

	summary := &Summary{
		SchemaVersion: artifact.SchemaVersion,
		Engine:        engineName,
		CheckedAt:     FormatUTC(time.Now()),
		PlanPath:      opts.PlanPath,
		Now:           FormatUTC(nowUTC),
		WindowMinutes: opts.WindowMinutes,
		DryRun:        opts.DryRun,
	}

	result, err := ScheduleDueJobs(planAbs, q, nowUTC, opts.WindowMinutes, opts.DryRun, schedulerEnabled)
	if err != nil {
		// Malformed plans are converted into an auditable skip entry, not
		// an unhandled fault.
		logger.WithError(err).Warn("schedule plan rejected")
		summary.Timezone = config.DefaultTimezone
		summary.EnqueuedJobIDs = []string{}
		summary.SkippedEntries = []Skip{{
			Code:    SkipPlanParseError,
			Message: err.Error(),
		}}
	} else {
		summary.Timezone = result.Timezone
		summary.EnqueuedJobIDs = result.EnqueuedJobIDs
		summary.SkippedEntries = result.Skipped
		observability.JobsEnqueued.Add(float64(len(result.EnqueuedJobIDs)))
	}

	if err := store.WriteJSON(summaryRel(nowUTC, summary.Timezone), summary); err != nil {
		return nil, err
	}
	logger.Info("schedule pass complete",
		"enqueued", len(summary.EnqueuedJobIDs),
		"skipped", len(summary.SkippedEntries),
		"dry_run", opts.DryRun)
	return summary, nil
}
