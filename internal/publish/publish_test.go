package publish

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castline/castline/internal/artifact"
	"github.com/castline/castline/internal/config"
	"github.com/castline/castline/internal/errors"
	"github.com/castline/castline/internal/gate"
)

// scriptedUploader replays a fixed sequence of responses.
type scriptedUploader struct {
	responses []error
	calls     int
}

func (s *scriptedUploader) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	idx := s.calls
	s.calls++
	if idx >= len(s.responses) || s.responses[idx] == nil {
		return &UploadResult{VideoID: "vid-123"}, nil
	}
	return nil, s.responses[idx]
}

func publishConfig() config.Config {
	return config.Config{
		Toggles: config.Toggles{Pipeline: true, Upload: true},
		Settings: config.Settings{
			UploadMaxRetries:    3,
			UploadBackoff:       time.Millisecond,
			UploadPrivacyStatus: "unlisted",
			UploadEndpoint:      "https://upload.example.com/videos",
			UploadClientID:      "client",
			UploadClientSecret:  "secret",
			UploadRefreshToken:  "token",
		},
	}
}

func newPublishStore(t *testing.T) *artifact.Store {
	t.Helper()
	store, err := artifact.NewStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func setupApprovedRun(t *testing.T, store *artifact.Store, runID string) {
	t.Helper()
	mp4 := "output/" + runID + "/video.mp4"
	require.NoError(t, store.WriteJSON(gate.DecisionRel(runID), gate.Decision{
		SchemaVersion: "v1",
		RunID:         runID,
		OutputMP4Path: mp4,
		Decision:      "pass",
	}))
	abs := filepath.Join(store.Root(), filepath.FromSlash(mp4))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte("mp4-bytes"), 0o644))
}

func readOutcome(t *testing.T, store *artifact.Store, runID string) Outcome {
	t.Helper()
	var outcome Outcome
	require.NoError(t, store.ReadJSON(OutcomeRel(runID), &outcome))
	return outcome
}

func noSleep(time.Duration) {}

func TestRunUploadDisabledSkips(t *testing.T) {
	store := newPublishStore(t)
	cfg := publishConfig()
	cfg.Toggles.Upload = false

	outcome, err := Run(context.Background(), store, cfg, "run_a", Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, outcome.Status)
	assert.Equal(t, ReasonUploadDisabled, outcome.Reason)
	assert.Equal(t, ReasonUploadDisabled, readOutcome(t, store, "run_a").Reason)
}

func TestRunGateNotPassSkips(t *testing.T) {
	store := newPublishStore(t)
	require.NoError(t, store.WriteJSON(gate.DecisionRel("run_a"), gate.Decision{
		SchemaVersion: "v1",
		RunID:         "run_a",
		Decision:      "fail",
	}))

	outcome, err := Run(context.Background(), store, publishConfig(), "run_a", Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, outcome.Status)
	assert.Equal(t, ReasonGateNotPass, outcome.Reason)
}

func TestRunMissingDecisionSkips(t *testing.T) {
	store := newPublishStore(t)

	outcome, err := Run(context.Background(), store, publishConfig(), "run_a", Options{})
	require.NoError(t, err)
	assert.Equal(t, ReasonGateNotPass, outcome.Reason)
}

func TestRunMissingMP4Fails(t *testing.T) {
	store := newPublishStore(t)
	require.NoError(t, store.WriteJSON(gate.DecisionRel("run_a"), gate.Decision{
		SchemaVersion: "v1",
		RunID:         "run_a",
		OutputMP4Path: "output/run_a/video.mp4",
		Decision:      "pass",
	}))

	outcome, err := Run(context.Background(), store, publishConfig(), "run_a", Options{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeUploadInputMissing))
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, ReasonInputMP4Missing, readOutcome(t, store, "run_a").Reason)
}

func TestRunEscapingMP4PathWritesOutcome(t *testing.T) {
	store := newPublishStore(t)
	require.NoError(t, store.WriteJSON(gate.DecisionRel("run_a"), gate.Decision{
		SchemaVersion: "v1",
		RunID:         "run_a",
		OutputMP4Path: "../outside/video.mp4",
		Decision:      "pass",
	}))

	outcome, err := Run(context.Background(), store, publishConfig(), "run_a", Options{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeUploadInputMissing))
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, ReasonInputMP4Missing, readOutcome(t, store, "run_a").Reason,
		"a path that cannot be resolved still leaves an outcome artifact")
}

func TestRunMissingAuthFails(t *testing.T) {
	store := newPublishStore(t)
	setupApprovedRun(t, store, "run_a")
	cfg := publishConfig()
	cfg.Settings.UploadRefreshToken = ""

	outcome, err := Run(context.Background(), store, cfg, "run_a", Options{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeUploadAuthMissing))
	assert.Equal(t, ReasonAuthMissingEnv, outcome.Reason)
	assert.Zero(t, outcome.AttemptCount, "auth is checked before any attempt")
}

func TestRunRetriesTransientErrorsThenSucceeds(t *testing.T) {
	store := newPublishStore(t)
	setupApprovedRun(t, store, "run_a")

	uploader := &scriptedUploader{responses: []error{
		&APIError{StatusCode: http.StatusServiceUnavailable, Message: "try later"},
		&APIError{StatusCode: http.StatusServiceUnavailable, Message: "try later"},
		nil,
	}}
	outcome, err := Run(context.Background(), store, publishConfig(), "run_a",
		Options{Uploader: uploader, Sleep: noSleep})
	require.NoError(t, err)
	assert.Equal(t, StatusUploaded, outcome.Status)
	assert.Equal(t, "vid-123", outcome.VideoID)
	assert.Equal(t, "https://www.youtube.com/watch?v=vid-123", outcome.VideoURL)
	assert.Equal(t, 3, outcome.AttemptCount)
	assert.Equal(t, 3, outcome.MaxRetries)
	assert.Equal(t, 3, uploader.calls)

	onDisk := readOutcome(t, store, "run_a")
	assert.Equal(t, StatusUploaded, onDisk.Status)
	assert.Equal(t, 3, onDisk.AttemptCount)
}

func TestRunExhaustsRetries(t *testing.T) {
	store := newPublishStore(t)
	setupApprovedRun(t, store, "run_a")

	// 1 + UPLOAD_MAX_RETRIES attempts, all transient failures.
	uploader := &scriptedUploader{responses: []error{
		&APIError{StatusCode: 500, Message: "boom"},
		&APIError{StatusCode: 502, Message: "boom"},
		&APIError{StatusCode: 503, Message: "boom"},
		&APIError{StatusCode: 429, Message: "slow down"},
		&APIError{StatusCode: 500, Message: "would be attempt 5"},
	}}
	outcome, err := Run(context.Background(), store, publishConfig(), "run_a",
		Options{Uploader: uploader, Sleep: noSleep})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeUploadExhausted))
	assert.Equal(t, 4, outcome.AttemptCount)
	assert.Equal(t, 4, uploader.calls)
	assert.Equal(t, ReasonFailedAfterRetries, readOutcome(t, store, "run_a").Reason)
}

func TestRunNonRetryableErrorStopsImmediately(t *testing.T) {
	store := newPublishStore(t)
	setupApprovedRun(t, store, "run_a")

	uploader := &scriptedUploader{responses: []error{
		&APIError{StatusCode: http.StatusForbidden, Message: "quota exceeded"},
	}}
	outcome, err := Run(context.Background(), store, publishConfig(), "run_a",
		Options{Uploader: uploader, Sleep: noSleep})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeUploadAPI))
	assert.Equal(t, 1, uploader.calls, "4xx other than 429 must not be retried")
	assert.Equal(t, ReasonAPIError, outcome.Reason)
}

func TestResolveMetadataPrecedence(t *testing.T) {
	store := newPublishStore(t)
	cfg := publishConfig()
	require.NoError(t, store.WriteJSON(MetadataRel("run_a"), map[string]any{
		"title":       "From metadata.json",
		"description": "Episode 12",
		"tags":        []string{"go", "pipelines"},
	}))
	require.NoError(t, store.WriteText("overrides/title.txt", "Operator title\n"))
	cfg.Settings.UploadTitlePath = "overrides/title.txt"

	meta, err := ResolveMetadata(store, cfg, "run_a")
	require.NoError(t, err)
	assert.Equal(t, "Operator title", meta.Title)
	assert.Equal(t, "Episode 12", meta.Description)
	assert.Equal(t, []string{"go", "pipelines"}, meta.Tags)
	assert.Equal(t, "unlisted", meta.PrivacyStatus)
}

func TestResolveMetadataTagsOverride(t *testing.T) {
	store := newPublishStore(t)
	cfg := publishConfig()
	require.NoError(t, store.WriteText("overrides/tags.json", `["news", "weekly"]`))
	cfg.Settings.UploadTagsPath = "overrides/tags.json"

	meta, err := ResolveMetadata(store, cfg, "run_a")
	require.NoError(t, err)
	assert.Equal(t, []string{"news", "weekly"}, meta.Tags)

	require.NoError(t, store.WriteText("overrides/tags.json", "one-per-line\nis-not-json\n"))
	_, err = ResolveMetadata(store, cfg, "run_a")
	require.Error(t, err, "tags override must be a JSON string array")
}

func TestResolveMetadataDefaults(t *testing.T) {
	store := newPublishStore(t)

	meta, err := ResolveMetadata(store, publishConfig(), "run_a")
	require.NoError(t, err)
	assert.Equal(t, "Automated upload run_a", meta.Title)
	assert.Empty(t, meta.Description)
	assert.NotNil(t, meta.Tags)
}
