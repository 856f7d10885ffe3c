package handlers

import (
	"context"

	"github.com/castline/castline/internal/gate"
	"github.com/castline/castline/internal/pipeline"
	"github.com/castline/castline/internal/publish"
)

// QualityGate evaluates the rendered artifact. A fail decision is returned
// as an error so the pipeline run halts; the decision artifact is already
// on disk by then.
func QualityGate(ctx pipeline.Context, step pipeline.Step) (pipeline.Result, error) {
	out := gate.DecisionRel(ctx.RunID)

	if ctx.DryRun {
		return pipeline.Result{
			OutputPath:   out,
			PlannedPaths: map[string]string{"decision": out},
		}, nil
	}

	if _, err := gate.Evaluate(context.Background(), ctx.Store, ctx.RunID, gate.Options{}); err != nil {
		return pipeline.Result{}, err
	}
	return pipeline.Result{OutputPath: out}, nil
}

// YouTubeUpload publishes the gate-approved artifact. Skips, including a
// disabled upload switch, are successes from the pipeline's point of view.
// A step-level `dry_run: true` forces the disabled skip even on a live
// pipeline run, so plans can rehearse the publish step in isolation.
func YouTubeUpload(ctx pipeline.Context, step pipeline.Step) (pipeline.Result, error) {
	out := publish.OutcomeRel(ctx.RunID)

	if ctx.DryRun {
		return pipeline.Result{
			OutputPath:   out,
			PlannedPaths: map[string]string{"outcome": out},
		}, nil
	}

	cfg := ctx.Cfg
	if pipeline.DryRunStep(step) {
		cfg.Toggles.Upload = false
	}
	if _, err := publish.Run(context.Background(), ctx.Store, cfg, ctx.RunID, publish.Options{}); err != nil {
		return pipeline.Result{}, err
	}
	return pipeline.Result{OutputPath: out}, nil
}
