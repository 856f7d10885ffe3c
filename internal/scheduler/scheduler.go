// Package scheduler turns a declarative publish plan into queued pipeline
// runs. Each invocation evaluates which plan entries fall inside the
// lookahead window and enqueues them; everything else is either recorded as
// a skip with a typed reason or, for entries that are simply not due yet,
// silently left for a later tick.
package scheduler

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/castline/castline/internal/config"
	"github.com/castline/castline/internal/errors"
	"github.com/castline/castline/internal/queue"
)

// Skip reason codes.
const (
	SkipJobInvalid        = "job_invalid"
	SkipSchedulerDisabled = "scheduler_disabled"
	SkipEntryMissed       = "entry_missed"
	SkipAlreadyEnqueued   = "already_enqueued"
	SkipPlanParseError    = "plan_parse_error"
)

// Entry is one row of the publish plan.
type Entry struct {
	PublishAt    string         `yaml:"publish_at"`
	PipelinePath string         `yaml:"pipeline_path"`
	RunIDPrefix  string         `yaml:"run_id_prefix"`
	Params       map[string]any `yaml:"params"`
}

// Plan is the parsed publish plan. Entries stay as raw nodes so one
// malformed row skips that row instead of failing the whole plan.
type Plan struct {
	SchemaVersion string      `yaml:"schema_version"`
	Timezone      string      `yaml:"timezone"`
	Entries       []yaml.Node `yaml:"entries"`
}

// Skip records why an entry was not enqueued.
type Skip struct {
	PublishAt    string `json:"publish_at"`
	PipelinePath string `json:"pipeline_path"`
	RunID        string `json:"run_id"`
	Code         string `json:"code"`
	Message      string `json:"message"`
}

// Result is the outcome of one scheduling pass.
type Result struct {
	Timezone       string
	EnqueuedJobIDs []string
	Skipped        []Skip
}

// LoadPlan reads and structurally validates a publish plan.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewPlanNotFoundError(path)
		}
		return nil, errors.Wrap(errors.ErrCodePlanParse, "read plan", err)
	}
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, errors.Wrap(errors.ErrCodePlanParse, "parse plan", err)
	}
	if plan.SchemaVersion != "v1" {
		return nil, errors.New(errors.ErrCodePlanInvalid, "plan schema_version must be v1")
	}
	return &plan, nil
}

// ParseTime parses an ISO-8601 timestamp. A timestamp without an offset is
// interpreted in the given location.
func ParseTime(value string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", value, loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", value, loc); err == nil {
		return t, nil
	}
	return time.Time{}, errors.Newf(errors.ErrCodePlanEntryInvalid, "invalid publish_at: %q", value)
}

// FormatUTC renders a time as UTC RFC3339 with a trailing Z.
func FormatUTC(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// BuildJobID derives the deterministic job id for a plan entry: the first
// 12 hex characters of sha256 over scheduled time, pipeline, and run base.
func BuildJobID(scheduledUTC time.Time, pipelinePath, runIDBase string) string {
	seed := fmt.Sprintf("%s|%s|%s", FormatUTC(scheduledUTC), pipelinePath, runIDBase)
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])[:12]
}

// buildRunIDBase stamps the local publish time, prefixed when configured.
func buildRunIDBase(localTime time.Time, prefix string) string {
	stamp := localTime.Format("20060102_1504")
	if prefix != "" {
		return prefix + "_" + stamp
	}
	return stamp
}

// BuildJob constructs the queue job for a due entry.
func BuildJob(entry Entry, scheduledUTC time.Time, loc *time.Location, createdAt time.Time) *queue.Job {
	base := buildRunIDBase(scheduledUTC.In(loc), entry.RunIDPrefix)
	jobID := BuildJobID(scheduledUTC, entry.PipelinePath, base)
	return &queue.Job{
		SchemaVersion: "v1",
		JobID:         jobID,
		CreatedAt:     FormatUTC(createdAt),
		ScheduledFor:  FormatUTC(scheduledUTC),
		PipelinePath:  entry.PipelinePath,
		RunID:         base + "_" + jobID,
		Params:        entry.Params,
		Status:        queue.StatePending,
	}
}

func decodeEntry(node yaml.Node) (Entry, error) {
	var entry Entry
	if err := node.Decode(&entry); err != nil {
		return Entry{}, errors.Wrap(errors.ErrCodePlanEntryInvalid, "decode plan entry", err)
	}
	if entry.PublishAt == "" {
		return Entry{}, errors.New(errors.ErrCodePlanEntryInvalid, "publish_at is required")
	}
	if entry.PipelinePath == "" {
		return Entry{}, errors.New(errors.ErrCodePlanEntryInvalid, "pipeline_path is required")
	}
	return entry, nil
}

// ScheduleDueJobs evaluates the plan against [nowUTC, nowUTC+window].
// Entries past the window start are recorded as missed; entries beyond the
// window end are left for a later tick without a skip record. With dryRun
// the due set is computed without enqueueing and without consulting the
// scheduler switch, so a disabled deployment can still be inspected.
func ScheduleDueJobs(planPath string, q *queue.FileQueue, nowUTC time.Time, windowMinutes int, dryRun bool, schedulerEnabled bool) (*Result, error) {
	plan, err := LoadPlan(planPath)
	if err != nil {
		return nil, err
	}

	tzName := plan.Timezone
	if tzName == "" {
		tzName = config.DefaultTimezone
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodePlanTimezone, fmt.Sprintf("invalid plan timezone: %s", tzName), err)
	}

	nowUTC = nowUTC.UTC()
	if windowMinutes < 0 {
		windowMinutes = 0
	}
	windowEnd := nowUTC.Add(time.Duration(windowMinutes) * time.Minute)

	result := &Result{Timezone: tzName, EnqueuedJobIDs: []string{}, Skipped: []Skip{}}

	for _, node := range plan.Entries {
		entry, err := decodeEntry(node)
		if err != nil {
			result.Skipped = append(result.Skipped, Skip{
				Code:    SkipJobInvalid,
				Message: err.Error(),
			})
			continue
		}

		scheduled, err := ParseTime(entry.PublishAt, loc)
		if err != nil {
			result.Skipped = append(result.Skipped, Skip{
				PublishAt:    entry.PublishAt,
				PipelinePath: entry.PipelinePath,
				Code:         SkipJobInvalid,
				Message:      err.Error(),
			})
			continue
		}
		scheduledUTC := scheduled.UTC()
		job := BuildJob(entry, scheduledUTC, loc, nowUTC)

		if scheduledUTC.After(windowEnd) {
			// Not yet due; a later tick picks it up.
			continue
		}
		if scheduledUTC.Before(nowUTC) {
			result.Skipped = append(result.Skipped, Skip{
				PublishAt:    entry.PublishAt,
				PipelinePath: entry.PipelinePath,
				RunID:        job.RunID,
				Code:         SkipEntryMissed,
				Message:      "publish time already past the window start",
			})
			continue
		}

		if !dryRun && !schedulerEnabled {
			result.Skipped = append(result.Skipped, Skip{
				PublishAt:    entry.PublishAt,
				PipelinePath: entry.PipelinePath,
				RunID:        job.RunID,
				Code:         SkipSchedulerDisabled,
				Message:      "SCHEDULER_ENABLED=false",
			})
			continue
		}

		if q.Exists(job.JobID) {
			result.Skipped = append(result.Skipped, Skip{
				PublishAt:    entry.PublishAt,
				PipelinePath: entry.PipelinePath,
				RunID:        job.RunID,
				Code:         SkipAlreadyEnqueued,
				Message:      "job already exists",
			})
			continue
		}

		if dryRun {
			result.EnqueuedJobIDs = append(result.EnqueuedJobIDs, job.JobID)
			continue
		}

		ok, err := q.Enqueue(job)
		if err != nil {
			return nil, err
		}
		if ok {
			result.EnqueuedJobIDs = append(result.EnqueuedJobIDs, job.JobID)
		} else {
			result.Skipped = append(result.Skipped, Skip{
				PublishAt:    entry.PublishAt,
				PipelinePath: entry.PipelinePath,
				RunID:        job.RunID,
				Code:         SkipAlreadyEnqueued,
				Message:      "job already exists",
			})
		}
	}

	return result, nil
}
