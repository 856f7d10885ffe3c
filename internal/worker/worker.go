// Package worker consumes exactly one job per invocation from the file
// queue and drives it through the pipeline. Each invocation leaves a
// summary artifact naming the job and the decision, so a fleet of
// cron-style workers can be audited from artifacts alone.
package worker

import (
	"time"

	"github.com/castline/castline/internal/artifact"
	"github.com/castline/castline/internal/config"
	"github.com/castline/castline/internal/errors"
	"github.com/castline/castline/internal/log"
	"github.com/castline/castline/internal/observability"
	"github.com/castline/castline/internal/pipeline"
	"github.com/castline/castline/internal/queue"
)

const engineName = "worker"

// Decisions recorded in the worker summary.
const (
	DecisionProcessed = "processed"
	DecisionSkipped   = "skipped"
	DecisionFailed    = "failed"
)

// Summary reason codes.
const (
	ReasonWorkerDisabled = "worker_disabled"
	ReasonQueueEmpty     = "queue_empty"
	ReasonJobInvalid     = "job_invalid"
	ReasonPipelineFailed = "pipeline_failed"
	ReasonDryRun         = "dry_run"
)

// Summary is the per-invocation worker artifact.
type Summary struct {
	SchemaVersion string `json:"schema_version"`
	Engine        string `json:"engine"`
	CheckedAt     string `json:"checked_at"`
	QueueDir      string `json:"queue_dir"`
	DryRun        bool   `json:"dry_run"`
	Decision      string `json:"decision"`
	Reason        string `json:"reason,omitempty"`
	JobID         string `json:"job_id,omitempty"`
	RunID         string `json:"run_id,omitempty"`
	PipelinePath  string `json:"pipeline_path,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Options tunes a worker invocation.
type Options struct {
	// QueueDir overrides the configured queue directory.
	QueueDir string
	// DryRun peeks at the queue without claiming anything.
	DryRun bool
}

func summaryRel(jobID string) string {
	if jobID == "" {
		jobID = "none"
	}
	return "output/worker/artifacts/worker_summary_" + jobID + ".json"
}

// Run processes at most one queued job. With the global kill-switch off it
// returns immediately with no summary and no queue access. A failed job is
// both recorded in the summary and returned as an error so the process
// exits nonzero.
func Run(store *artifact.Store, cfg config.Config, registry *pipeline.Registry, opts Options) (*Summary, error) {
	logger := log.DefaultLogger().With("engine", engineName)

	if !cfg.Toggles.Pipeline {
		logger.Info("pipeline disabled by PIPELINE_ENABLED=false, worker idle")
		return nil, nil
	}

	queueDir := opts.QueueDir
	if queueDir == "" {
		queueDir = cfg.Settings.QueueDir
	}
	queueAbs, err := store.Resolve(queueDir, "queue directory")
	if err != nil {
		return nil, err
	}
	q := queue.New(queueAbs)

	summary := &Summary{
		SchemaVersion: artifact.SchemaVersion,
		Engine:        engineName,
		CheckedAt:     time.Now().UTC().Format(time.RFC3339),
		QueueDir:      queueDir,
		DryRun:        opts.DryRun,
	}
	persist := func() error {
		return store.WriteJSON(summaryRel(summary.JobID), summary)
	}
	record := func(decision, reason string) {
		summary.Decision = decision
		summary.Reason = reason
		observability.WorkerJobs.WithLabelValues(decision).Inc()
	}

	if !opts.DryRun && !cfg.Toggles.Worker {
		if next := q.PeekNext(); next != nil {
			summary.JobID = next.JobID
		}
		record(DecisionSkipped, ReasonWorkerDisabled)
		logger.Info("worker disabled, skipping", "job_id", summary.JobID)
		return summary, persist()
	}

	if opts.DryRun {
		next := q.PeekNext()
		switch {
		case next == nil:
			record(DecisionSkipped, ReasonQueueEmpty)
		case next.Job == nil:
			summary.JobID = next.JobID
			record(DecisionSkipped, ReasonJobInvalid)
		default:
			summary.JobID = next.JobID
			summary.RunID = next.Job.RunID
			summary.PipelinePath = next.Job.PipelinePath
			record(DecisionSkipped, ReasonDryRun)
		}
		logger.Info("worker dry run", "reason", summary.Reason, "job_id", summary.JobID)
		return summary, persist()
	}

	item, err := q.DequeueNext()
	if err != nil {
		return nil, err
	}
	if item == nil {
		record(DecisionSkipped, ReasonQueueEmpty)
		logger.Info("queue empty")
		return summary, persist()
	}
	summary.JobID = item.JobID

	failJob := func(code, message string) (*Summary, error) {
		if _, ferr := q.MarkFailed(item, &queue.JobError{Code: code, Message: message}); ferr != nil {
			logger.WithError(ferr).Error("could not mark job failed", "job_id", item.JobID)
		}
		record(DecisionFailed, code)
		summary.Error = message
		if perr := persist(); perr != nil {
			return summary, perr
		}
		return summary, errors.New(errors.ErrCodeQueueJobInvalid, message)
	}

	if item.Job == nil {
		return failJob(ReasonJobInvalid, "job payload is unparsable or not schema v1")
	}
	summary.RunID = item.Job.RunID
	summary.PipelinePath = item.Job.PipelinePath

	if err := artifact.ValidateRunID(item.Job.RunID); err != nil {
		return failJob(ReasonJobInvalid, err.Error())
	}
	planAbs, err := store.Resolve(item.Job.PipelinePath, "job pipeline_path")
	if err != nil {
		return failJob(ReasonJobInvalid, err.Error())
	}

	logger.Info("job claimed", "job_id", item.JobID, "run_id", item.Job.RunID,
		"attempts", item.Job.Attempts)

	runner := pipeline.NewRunner(store, registry, cfg)
	if _, err := runner.Run(planAbs, item.Job.RunID); err != nil {
		if _, ferr := q.MarkFailed(item, &queue.JobError{
			Code: ReasonPipelineFailed, Message: err.Error(),
		}); ferr != nil {
			logger.WithError(ferr).Error("could not mark job failed", "job_id", item.JobID)
		}
		record(DecisionFailed, ReasonPipelineFailed)
		summary.Error = err.Error()
		if perr := persist(); perr != nil {
			return summary, perr
		}
		logger.WithError(err).Error("pipeline run failed", "job_id", item.JobID)
		return summary, err
	}

	if _, err := q.MarkDone(item); err != nil {
		return summary, err
	}
	record(DecisionProcessed, "")
	logger.Info("job processed", "job_id", item.JobID, "run_id", item.Job.RunID)
	return summary, persist()
}
