// Package gate inspects a rendered artifact and emits a single pass/fail
// decision with one typed reason per failed check. Checks run in dependency
// order and short-circuit: a file already known to be empty is never probed
// for duration. The decision artifact is written on every evaluation, pass
// or fail, and is authoritative for downstream consumers.
package gate

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/castline/castline/internal/artifact"
	"github.com/castline/castline/internal/errors"
	"github.com/castline/castline/internal/log"
)

const engineName = "quality.gate"

// Reason codes, ordered by check dependency.
const (
	CodeMP4Missing            = "mp4_missing"
	CodeMP4Empty              = "mp4_empty"
	CodeProbeFailed           = "probe_failed"
	CodeDurationZeroOrMissing = "duration_zero_or_missing"
	CodeAudioStreamMissing    = "audio_stream_missing"
)

// SeverityError marks a reason that forces a fail decision.
const SeverityError = "error"

// RenderSummary is the upstream artifact the gate evaluates.
type RenderSummary struct {
	SchemaVersion string `json:"schema_version"`
	RunID         string `json:"run_id"`
	OutputMP4Path string `json:"output_mp4_path"`
}

// Reason is one typed explanation for a failed check.
type Reason struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Severity  string `json:"severity"`
	Engine    string `json:"engine"`
	CheckedAt string `json:"checked_at"`
}

// Checks records the raw observations behind the decision.
type Checks struct {
	MP4Exists       bool     `json:"mp4_exists"`
	MP4SizeBytes    *int64   `json:"mp4_size_bytes"`
	ProbeOK         *bool    `json:"probe_ok"`
	DurationSeconds *float64 `json:"duration_seconds"`
	HasAudioStream  *bool    `json:"has_audio_stream"`
}

// Decision is the gate's summary artifact. Immutable once written.
type Decision struct {
	SchemaVersion      string   `json:"schema_version"`
	RunID              string   `json:"run_id"`
	InputRenderSummary string   `json:"input_video_render_summary"`
	OutputMP4Path      string   `json:"output_mp4_path"`
	Decision           string   `json:"decision"`
	Reasons            []Reason `json:"reasons"`
	CheckedAt          string   `json:"checked_at"`
	Engine             string   `json:"engine"`
	Checks             Checks   `json:"checks"`
}

// Options tunes a gate evaluation.
type Options struct {
	// Prober performs the structural probe; default is FFProbe.
	Prober Prober
	// ProbeTimeout bounds the probe call. Zero means one minute.
	ProbeTimeout time.Duration
}

// RenderSummaryRel returns the expected input path for a run.
func RenderSummaryRel(runID string) string {
	return artifact.RunArtifact(runID, "video_render_summary.json")
}

// DecisionRel returns the decision artifact path for a run.
func DecisionRel(runID string) string {
	return artifact.RunArtifact(runID, "quality_gate_summary.json")
}

// Evaluate runs the check battery for a run. The decision artifact is
// always written; when the decision is fail, Evaluate additionally returns
// a GATE-003 error carrying the leading reason codes so the enclosing
// pipeline run halts.
func Evaluate(ctx context.Context, store *artifact.Store, runID string, opts Options) (*Decision, error) {
	logger := log.DefaultLogger().With("engine", engineName, "run_id", runID)

	if err := artifact.ValidateRunID(runID); err != nil {
		return nil, err
	}

	summaryRel := RenderSummaryRel(runID)
	var summary RenderSummary
	if err := store.ReadJSON(summaryRel, &summary); err != nil {
		// The gate cannot evaluate what it cannot trust: a missing or
		// unreadable input is a hard error, not a fail decision.
		return nil, errors.Wrap(errors.ErrCodeGateInputMissing,
			fmt.Sprintf("video render summary not found or unreadable: %s", summaryRel), err)
	}
	if summary.SchemaVersion != artifact.SchemaVersion {
		return nil, errors.New(errors.ErrCodeGateInputInvalid,
			"video_render_summary.schema_version must be v1")
	}
	if summary.RunID != "" && summary.RunID != runID {
		return nil, errors.New(errors.ErrCodeGateInputInvalid,
			"video_render_summary.run_id does not match run_id")
	}
	if strings.TrimSpace(summary.OutputMP4Path) == "" {
		return nil, errors.New(errors.ErrCodeGateInputInvalid,
			"video_render_summary.output_mp4_path is required")
	}

	mp4Abs, err := store.Resolve(summary.OutputMP4Path, "video_render_summary.output_mp4_path")
	if err != nil {
		return nil, err
	}

	checkedAt := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	decision := &Decision{
		SchemaVersion:      artifact.SchemaVersion,
		RunID:              runID,
		InputRenderSummary: summaryRel,
		OutputMP4Path:      summary.OutputMP4Path,
		Decision:           "pass",
		Reasons:            []Reason{},
		CheckedAt:          checkedAt,
		Engine:             engineName,
	}

	addReason := func(code, message string) {
		decision.Reasons = append(decision.Reasons, Reason{
			Code:      code,
			Message:   message,
			Severity:  SeverityError,
			Engine:    engineName,
			CheckedAt: checkedAt,
		})
	}

	runChecks := func() {
		info, err := os.Stat(mp4Abs)
		if err != nil || info.IsDir() {
			addReason(CodeMP4Missing, fmt.Sprintf("MP4 file not found: %s", summary.OutputMP4Path))
			return
		}
		decision.Checks.MP4Exists = true
		size := info.Size()
		decision.Checks.MP4SizeBytes = &size
		if size == 0 {
			addReason(CodeMP4Empty, fmt.Sprintf("MP4 file is empty: %s", summary.OutputMP4Path))
			return
		}

		prober := opts.Prober
		if prober == nil {
			prober = &FFProbe{}
		}
		timeout := opts.ProbeTimeout
		if timeout <= 0 {
			timeout = time.Minute
		}
		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		data, err := prober.Probe(probeCtx, mp4Abs)
		probeOK := err == nil
		decision.Checks.ProbeOK = &probeOK
		if err != nil {
			addReason(CodeProbeFailed, err.Error())
			return
		}

		if data.DurationSeconds <= 0 {
			addReason(CodeDurationZeroOrMissing, "MP4 duration is missing or zero")
		} else {
			d := data.DurationSeconds
			decision.Checks.DurationSeconds = &d
		}

		hasAudio := false
		for _, st := range data.StreamTypes {
			if st == "audio" {
				hasAudio = true
				break
			}
		}
		decision.Checks.HasAudioStream = &hasAudio
		if !hasAudio {
			addReason(CodeAudioStreamMissing, "No audio stream detected in MP4")
		}
	}
	runChecks()

	for _, reason := range decision.Reasons {
		if reason.Severity == SeverityError {
			decision.Decision = "fail"
			break
		}
	}

	if err := store.WriteJSON(DecisionRel(runID), decision); err != nil {
		return nil, err
	}
	logger.Info("quality gate evaluated",
		"decision", decision.Decision, "reasons", len(decision.Reasons))

	if decision.Decision == "fail" {
		codes := make([]string, 0, 3)
		for _, reason := range decision.Reasons {
			codes = append(codes, reason.Code)
			if len(codes) == 3 {
				break
			}
		}
		return decision, errors.Newf(errors.ErrCodeGateFailed,
			"quality gate failed for run_id=%s; reasons=%s", runID, strings.Join(codes, ", "))
	}
	return decision, nil
}
