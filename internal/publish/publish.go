// Package publish pushes a gate-approved artifact to the external video
// platform with bounded retries. Every invocation, including skips and
// failures, leaves exactly one outcome artifact behind; the outcome is
// written before any error is returned so operators always have a record.
package publish

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/castline/castline/internal/artifact"
	"github.com/castline/castline/internal/config"
	"github.com/castline/castline/internal/errors"
	"github.com/castline/castline/internal/gate"
	"github.com/castline/castline/internal/log"
	"github.com/castline/castline/internal/observability"
)

const engineName = "publish.youtube"

// Outcome statuses.
const (
	StatusUploaded = "uploaded"
	StatusSkipped  = "skipped"
	StatusFailed   = "failed"
)

// Outcome reason codes.
const (
	ReasonUploadDisabled     = "upload_disabled"
	ReasonGateNotPass        = "quality_gate_not_pass"
	ReasonInputMP4Missing    = "input_mp4_missing"
	ReasonAuthMissingEnv     = "auth_missing_env"
	ReasonDepsMissing        = "upload_deps_missing"
	ReasonAPIError           = "upload_api_error"
	ReasonFailedAfterRetries = "upload_failed_after_retries"
)

// Outcome is the publish summary artifact.
type Outcome struct {
	SchemaVersion  string   `json:"schema_version"`
	RunID          string   `json:"run_id"`
	Engine         string   `json:"engine"`
	Status         string   `json:"status"`
	Reason         string   `json:"reason,omitempty"`
	VideoID        string   `json:"video_id,omitempty"`
	VideoURL       string   `json:"video_url,omitempty"`
	Title          string   `json:"title,omitempty"`
	Description    string   `json:"description,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	PrivacyStatus  string   `json:"privacy_status,omitempty"`
	InputMP4Path   string   `json:"input_mp4_path,omitempty"`
	AttemptCount   int      `json:"attempt_count"`
	MaxRetries     int      `json:"max_retries"`
	BackoffSeconds float64  `json:"backoff_seconds"`
	Error          string   `json:"error,omitempty"`
	CheckedAt      string   `json:"checked_at"`
}

// Options tunes a publish run.
type Options struct {
	// Uploader overrides the HTTP implementation.
	Uploader Uploader
	// Sleep overrides the inter-attempt wait, default time.Sleep.
	Sleep func(time.Duration)
}

// OutcomeRel returns the outcome artifact path for a run.
func OutcomeRel(runID string) string {
	return artifact.RunArtifact(runID, "youtube_upload_summary.json")
}

// Run publishes the run's rendered artifact. Skips are not errors: a
// disabled switch or a gate that did not pass produce a skipped outcome
// and a nil error. Hard failures write a failed outcome first and then
// return the typed error.
func Run(ctx context.Context, store *artifact.Store, cfg config.Config, runID string, opts Options) (*Outcome, error) {
	logger := log.DefaultLogger().With("engine", engineName, "run_id", runID)

	if err := artifact.ValidateRunID(runID); err != nil {
		return nil, err
	}

	outcome := &Outcome{
		SchemaVersion:  artifact.SchemaVersion,
		RunID:          runID,
		Engine:         engineName,
		MaxRetries:     cfg.Settings.UploadMaxRetries,
		BackoffSeconds: cfg.Settings.UploadBackoff.Seconds(),
		CheckedAt:      time.Now().UTC().Format(time.RFC3339),
	}
	persist := func() error {
		return store.WriteJSON(OutcomeRel(runID), outcome)
	}
	fail := func(reason string, cause *errors.Error) (*Outcome, error) {
		outcome.Status = StatusFailed
		outcome.Reason = reason
		outcome.Error = cause.Error()
		if err := persist(); err != nil {
			return outcome, err
		}
		logger.WithError(cause).Error("upload failed", "reason", reason,
			"attempts", outcome.AttemptCount)
		return outcome, cause
	}

	if !cfg.Toggles.Upload {
		outcome.Status = StatusSkipped
		outcome.Reason = ReasonUploadDisabled
		logger.Info("upload disabled, skipping")
		return outcome, persist()
	}

	var decision gate.Decision
	if err := store.ReadJSON(gate.DecisionRel(runID), &decision); err != nil || decision.Decision != "pass" {
		outcome.Status = StatusSkipped
		outcome.Reason = ReasonGateNotPass
		logger.Info("quality gate did not pass, skipping upload")
		return outcome, persist()
	}
	outcome.InputMP4Path = decision.OutputMP4Path

	mp4Abs, err := store.Resolve(decision.OutputMP4Path, "quality gate output_mp4_path")
	if err != nil {
		return fail(ReasonInputMP4Missing, errors.Wrap(errors.ErrCodeUploadInputMissing,
			"resolve quality gate output_mp4_path", err))
	}
	info, statErr := os.Stat(mp4Abs)
	if statErr != nil || info.IsDir() || info.Size() == 0 {
		return fail(ReasonInputMP4Missing, errors.Newf(errors.ErrCodeUploadInputMissing,
			"input MP4 missing or empty: %s", decision.OutputMP4Path))
	}

	if cfg.Settings.UploadEndpoint == "" && opts.Uploader == nil {
		return fail(ReasonDepsMissing, errors.New(errors.ErrCodeUploadDepsMissing,
			"no upload endpoint configured, set UPLOAD_ENDPOINT"))
	}
	if cfg.Settings.UploadClientID == "" || cfg.Settings.UploadClientSecret == "" ||
		cfg.Settings.UploadRefreshToken == "" {
		return fail(ReasonAuthMissingEnv, errors.New(errors.ErrCodeUploadAuthMissing,
			"missing UPLOAD_CLIENT_ID, UPLOAD_CLIENT_SECRET, or UPLOAD_REFRESH_TOKEN"))
	}

	meta, err := ResolveMetadata(store, cfg, runID)
	if err != nil {
		return fail(ReasonDepsMissing, errors.Wrap(errors.ErrCodeUploadDepsMissing,
			"resolve upload metadata", err))
	}
	outcome.Title = meta.Title
	outcome.Description = meta.Description
	outcome.Tags = meta.Tags
	outcome.PrivacyStatus = meta.PrivacyStatus

	uploader := opts.Uploader
	if uploader == nil {
		uploader = NewHTTPUploader(cfg.Settings.UploadEndpoint)
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	req := UploadRequest{
		FilePath:     mp4Abs,
		Metadata:     meta,
		ClientID:     cfg.Settings.UploadClientID,
		ClientSecret: cfg.Settings.UploadClientSecret,
		RefreshToken: cfg.Settings.UploadRefreshToken,
	}

	maxAttempts := 1 + cfg.Settings.UploadMaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		outcome.AttemptCount = attempt
		observability.UploadAttempts.Inc()
		logger.Info("upload attempt", "attempt", attempt, "max_attempts", maxAttempts)

		result, err := uploader.Upload(ctx, req)
		if err == nil {
			outcome.Status = StatusUploaded
			outcome.VideoID = result.VideoID
			outcome.VideoURL = "https://www.youtube.com/watch?v=" + result.VideoID
			if perr := persist(); perr != nil {
				return outcome, perr
			}
			logger.Info("upload succeeded", "video_id", result.VideoID, "attempts", attempt)
			return outcome, nil
		}
		lastErr = err

		apiErr, ok := err.(*APIError)
		if !ok || !apiErr.Retryable() {
			return fail(ReasonAPIError, errors.Wrap(errors.ErrCodeUploadAPI,
				"upload rejected with a non-retryable error", err))
		}
		if attempt < maxAttempts {
			logger.Warn("upload attempt failed, retrying",
				"attempt", attempt, "status", apiErr.StatusCode,
				"backoff", cfg.Settings.UploadBackoff.String())
			sleep(cfg.Settings.UploadBackoff)
		}
	}

	return fail(ReasonFailedAfterRetries, errors.Wrap(errors.ErrCodeUploadExhausted,
		fmt.Sprintf("upload failed after %d attempts", maxAttempts), lastErr))
}
