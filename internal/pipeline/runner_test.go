package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castline/castline/internal/artifact"
	"github.com/castline/castline/internal/config"
	"github.com/castline/castline/internal/errors"
)

func testConfig() config.Config {
	return config.Config{Toggles: config.Toggles{Pipeline: true}}
}

func newTestStore(t *testing.T) *artifact.Store {
	t.Helper()
	store, err := artifact.NewStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func writePlanFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// recordingHandler notes each invocation and writes one artifact.
func recordingHandler(calls *[]string) Handler {
	return func(ctx Context, step Step) (Result, error) {
		*calls = append(*calls, step.ID)
		out := ctx.StepPath(step.ID + ".json")
		if ctx.DryRun {
			return Result{OutputPath: out, PlannedPaths: map[string]string{"out": out}}, nil
		}
		if err := ctx.Store.WriteJSON(out, map[string]string{"step": step.ID}); err != nil {
			return Result{}, err
		}
		return Result{OutputPath: out}, nil
	}
}

func failingHandler(ctx Context, step Step) (Result, error) {
	return Result{}, errors.New(errors.ErrCodeStepInputMissing, "input artifact missing")
}

func TestRunExecutesStepsInOrder(t *testing.T) {
	store := newTestStore(t)
	var calls []string
	reg := NewRegistry()
	reg.Register("test.record", recordingHandler(&calls))

	plan := writePlanFile(t, `
pipeline: daily
steps:
  - id: one
    uses: test.record
  - id: two
    uses: test.record
`)

	runner := NewRunner(store, reg, testConfig())
	summary, err := runner.Run(plan, "run_a")
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, calls)
	assert.Equal(t, StatusCompleted, summary.Status)
	assert.Equal(t, 2, summary.Successful)

	var onDisk Summary
	require.NoError(t, store.ReadJSON("output/run_a/pipeline_summary.json", &onDisk))
	assert.Equal(t, "daily", onDisk.Pipeline)
	assert.Len(t, onDisk.Results, 2)
}

func TestRunAbortsOnFirstStepFailure(t *testing.T) {
	store := newTestStore(t)
	var calls []string
	reg := NewRegistry()
	reg.Register("test.record", recordingHandler(&calls))
	reg.Register("test.fail", failingHandler)

	plan := writePlanFile(t, `
pipeline: daily
steps:
  - id: one
    uses: test.record
  - id: boom
    uses: test.fail
  - id: never
    uses: test.record
`)

	runner := NewRunner(store, reg, testConfig())
	summary, err := runner.Run(plan, "run_b")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeStepFailed))
	assert.Equal(t, []string{"one"}, calls, "steps after the failure must not run")
	assert.Equal(t, StatusFailed, summary.Status)
	assert.Equal(t, "error", summary.Results["boom"].Status)
}

func TestRunUnknownHandlerIsFatal(t *testing.T) {
	store := newTestStore(t)
	plan := writePlanFile(t, `
pipeline: daily
steps:
  - id: one
    uses: not.registered
`)

	runner := NewRunner(store, NewRegistry(), testConfig())
	summary, err := runner.Run(plan, "run_c")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeStepUnknownHandler))
	assert.Equal(t, StatusFailed, summary.Status)
}

func TestRunDryRunWritesNothing(t *testing.T) {
	store := newTestStore(t)
	var calls []string
	reg := NewRegistry()
	reg.Register("test.record", recordingHandler(&calls))

	plan := writePlanFile(t, `
pipeline: daily
steps:
  - id: one
    uses: test.record
    config:
      dry_run: true
  - id: two
    uses: test.record
    config:
      dry_run: true
`)

	runner := NewRunner(store, reg, testConfig())
	summary, err := runner.Run(plan, "run_d")
	require.NoError(t, err)
	assert.True(t, summary.DryRun)
	assert.NotEmpty(t, summary.Results["one"].PlannedPaths)

	entries, readErr := os.ReadDir(store.Root())
	require.NoError(t, readErr)
	assert.Empty(t, entries, "dry run must leave the tree untouched")
}

func TestRunMixedDryRunFlagsIsRealRun(t *testing.T) {
	plan := &Plan{Steps: []Step{
		{ID: "a", Config: map[string]any{"dry_run": true}},
		{ID: "b"},
	}}
	assert.False(t, DryRunPlan(plan))
	assert.False(t, DryRunPlan(&Plan{}), "empty plans are not dry runs")
}

func TestRunGlobalKillSwitchSkipsEverything(t *testing.T) {
	store := newTestStore(t)
	cfg := testConfig()
	cfg.Toggles.Pipeline = false

	// The plan path does not even exist; the switch is checked first.
	runner := NewRunner(store, NewRegistry(), cfg)
	summary, err := runner.Run(filepath.Join(t.TempDir(), "missing.yaml"), "run_e")
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, summary.Status)

	entries, readErr := os.ReadDir(store.Root())
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestRunRejectsBadRunID(t *testing.T) {
	store := newTestStore(t)
	runner := NewRunner(store, NewRegistry(), testConfig())
	_, err := runner.Run("plan.yaml", "../escape")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeRunIDInvalid))
}
