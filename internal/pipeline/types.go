// Package pipeline dispatches ordered, declaratively configured steps to
// registered handlers and records per-step success or failure. Handlers are
// deterministic: they read a small input artifact and write an output
// artifact under the run directory, or report planned paths in dry-run.
package pipeline

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/castline/castline/internal/artifact"
	"github.com/castline/castline/internal/config"
	"github.com/castline/castline/internal/errors"
	"github.com/castline/castline/internal/log"
)

// Step is one declared unit of work within a plan. Immutable once loaded.
type Step struct {
	ID        string         `yaml:"id"`
	Uses      string         `yaml:"uses"`
	InputFrom string         `yaml:"input_from"`
	Output    string         `yaml:"output"`
	Config    map[string]any `yaml:"config"`
}

// Plan is a parsed pipeline definition.
type Plan struct {
	Pipeline string `yaml:"pipeline"`
	Steps    []Step `yaml:"steps"`
}

// Result is what a handler returns on success.
type Result struct {
	// OutputPath is the repository-relative path of the produced artifact.
	OutputPath string
	// PlannedPaths maps labels to where output would land in dry-run.
	PlannedPaths map[string]string
}

// Context carries per-run state into handlers.
type Context struct {
	Store  *artifact.Store
	Cfg    config.Config
	RunID  string
	DryRun bool
	Logger *log.Logger
}

// RunDir returns the repository-relative run directory.
func (c Context) RunDir() string {
	return artifact.RunDir(c.RunID)
}

// StepPath resolves a step-declared path relative to the run directory.
func (c Context) StepPath(name string) string {
	return c.RunDir() + "/" + name
}

// Handler executes one step against a run.
type Handler func(ctx Context, step Step) (Result, error)

// StepResult is the per-step record carried in the run summary.
type StepResult struct {
	Status       string            `json:"status"`
	Output       string            `json:"output,omitempty"`
	PlannedPaths map[string]string `json:"planned_paths,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// Summary is the pipeline run summary, persisted as the last artifact of a
// successful non-dry run.
type Summary struct {
	SchemaVersion string                `json:"schema_version"`
	Engine        string                `json:"engine"`
	Pipeline      string                `json:"pipeline"`
	RunID         string                `json:"run_id"`
	StartedAt     string                `json:"started_at"`
	TotalSteps    int                   `json:"total_steps"`
	Successful    int                   `json:"successful"`
	Failed        int                   `json:"failed"`
	Results       map[string]StepResult `json:"results"`
	OutputDir     string                `json:"output_dir"`
	Status        string                `json:"status"`
	DryRun        bool                  `json:"dry_run"`
}

// Run statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusDisabled  = "disabled"
)

// LoadPlan reads a pipeline plan from a YAML file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewPlanNotFoundError(path)
		}
		return nil, errors.Wrap(errors.ErrCodePlanParse, "read pipeline plan", err)
	}
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, errors.Wrap(errors.ErrCodePlanParse, "parse pipeline plan", err)
	}
	if plan.Pipeline == "" {
		plan.Pipeline = "unknown"
	}
	return &plan, nil
}

// DryRunStep reports whether a step is marked dry-run in its config.
func DryRunStep(step Step) bool {
	v, ok := step.Config["dry_run"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// DryRunPlan reports whether every step in the plan is marked dry-run,
// which switches the whole run into zero-write mode.
func DryRunPlan(plan *Plan) bool {
	if len(plan.Steps) == 0 {
		return false
	}
	for _, step := range plan.Steps {
		if !DryRunStep(step) {
			return false
		}
	}
	return true
}
