package pipeline

import (
	"fmt"
	"time"

	"github.com/castline/castline/internal/artifact"
	"github.com/castline/castline/internal/config"
	"github.com/castline/castline/internal/errors"
	"github.com/castline/castline/internal/log"
	"github.com/castline/castline/internal/observability"
)

const engineName = "pipeline"

// Runner executes pipeline plans against a run directory.
type Runner struct {
	Store    *artifact.Store
	Registry *Registry
	Cfg      config.Config
	Logger   *log.Logger
}

// NewRunner builds a runner over the given store and registry.
func NewRunner(store *artifact.Store, registry *Registry, cfg config.Config) *Runner {
	return &Runner{
		Store:    store,
		Registry: registry,
		Cfg:      cfg,
		Logger:   log.DefaultLogger().With("engine", engineName),
	}
}

// Run executes the plan's steps in declared order. A step failure is
// recorded, aborts the remaining steps, and is returned to the caller
// together with the partial summary. With the global kill-switch off the
// runner performs no registry lookups, no directory creation, and no
// writes, and reports a disabled summary.
func (r *Runner) Run(planPath, runID string) (*Summary, error) {
	if !r.Cfg.Toggles.Pipeline {
		r.Logger.Info("pipeline disabled by PIPELINE_ENABLED=false")
		observability.PipelineRuns.WithLabelValues(StatusDisabled).Inc()
		return &Summary{
			SchemaVersion: artifact.SchemaVersion,
			Engine:        engineName,
			Pipeline:      "unknown",
			RunID:         runID,
			StartedAt:     time.Now().UTC().Format(time.RFC3339),
			Results:       map[string]StepResult{},
			OutputDir:     artifact.RunDir(runID),
			Status:        StatusDisabled,
		}, nil
	}

	if err := artifact.ValidateRunID(runID); err != nil {
		return nil, err
	}

	plan, err := LoadPlan(planPath)
	if err != nil {
		return nil, err
	}

	dryRun := DryRunPlan(plan)
	summary := &Summary{
		SchemaVersion: artifact.SchemaVersion,
		Engine:        engineName,
		Pipeline:      plan.Pipeline,
		RunID:         runID,
		StartedAt:     time.Now().UTC().Format(time.RFC3339),
		TotalSteps:    len(plan.Steps),
		Results:       make(map[string]StepResult, len(plan.Steps)),
		OutputDir:     artifact.RunDir(runID),
		Status:        StatusCompleted,
		DryRun:        dryRun,
	}

	ctx := Context{
		Store:  r.Store,
		Cfg:    r.Cfg,
		RunID:  runID,
		DryRun: dryRun,
		Logger: r.Logger.With("run_id", runID),
	}

	r.Logger.Info("pipeline loaded",
		"pipeline", plan.Pipeline, "run_id", runID,
		"steps", len(plan.Steps), "dry_run", dryRun)

	for i, step := range plan.Steps {
		stepLog := ctx.Logger.With("step", step.ID, "uses", step.Uses,
			"position", fmt.Sprintf("%d/%d", i+1, len(plan.Steps)))

		handler, err := r.Registry.Lookup(step)
		if err != nil {
			stepLog.WithError(err).Error("handler not registered")
			summary.Status = StatusFailed
			observability.PipelineRuns.WithLabelValues(StatusFailed).Inc()
			return summary, err
		}

		stepLog.Info("step starting")
		result, err := handler(ctx, step)
		if err != nil {
			stepLog.WithError(err).Error("step failed")
			summary.Results[step.ID] = StepResult{Status: "error", Error: err.Error()}
			summary.Failed++
			summary.Status = StatusFailed
			observability.PipelineRuns.WithLabelValues(StatusFailed).Inc()
			return summary, errors.Wrap(errors.ErrCodeStepFailed,
				fmt.Sprintf("step %q failed", step.ID), err)
		}

		entry := StepResult{Status: "success", Output: result.OutputPath}
		if dryRun {
			entry.PlannedPaths = result.PlannedPaths
		}
		summary.Results[step.ID] = entry
		summary.Successful++
		stepLog.Info("step completed", "output", result.OutputPath)
	}

	observability.PipelineRuns.WithLabelValues(StatusCompleted).Inc()

	if dryRun {
		r.Logger.Info("pipeline completed (dry run), no files were written",
			"pipeline", plan.Pipeline, "run_id", runID)
		return summary, nil
	}

	if err := r.Store.WriteJSON(summary.OutputDir+"/pipeline_summary.json", summary); err != nil {
		return summary, err
	}
	r.Logger.Info("pipeline completed",
		"pipeline", plan.Pipeline, "run_id", runID,
		"successful", summary.Successful, "total", summary.TotalSteps)
	return summary, nil
}
