package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castline/castline/internal/errors"
)

func TestValidateRunID(t *testing.T) {
	tests := []struct {
		name    string
		runID   string
		wantErr bool
	}{
		{name: "plain", runID: "20260110_1500_abc123def456"},
		{name: "with prefix", runID: "daily_20260110_1500_abc123def456"},
		{name: "empty", runID: "", wantErr: true},
		{name: "dot", runID: ".", wantErr: true},
		{name: "dotdot", runID: "..", wantErr: true},
		{name: "slash", runID: "a/b", wantErr: true},
		{name: "backslash", runID: `a\b`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRunID(tt.runID)
			if tt.wantErr {
				assert.True(t, errors.HasCode(err, errors.ErrCodeRunIDInvalid))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResolveRejectsEscapes(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	tests := []struct {
		name string
		rel  string
	}{
		{name: "traversal", rel: "../outside.json"},
		{name: "nested traversal", rel: "output/../../outside.json"},
		{name: "absolute", rel: "/etc/passwd"},
		{name: "empty", rel: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Resolve(tt.rel, "test path")
			assert.Error(t, err)
		})
	}
}

func TestWriteAndReadJSON(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	payload := map[string]any{"schema_version": "v1", "answer": float64(42)}
	require.NoError(t, store.WriteJSON("output/run_a/artifacts/thing.json", payload))

	var back map[string]any
	require.NoError(t, store.ReadJSON("output/run_a/artifacts/thing.json", &back))
	assert.Equal(t, payload, back)

	// No temp files may survive the write.
	entries, err := os.ReadDir(filepath.Join(store.Root(), "output", "run_a", "artifacts"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "thing.json", entries[0].Name())
}

func TestReadJSONMissingFile(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	var out map[string]any
	err = store.ReadJSON("output/run_a/missing.json", &out)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeFileNotFound))
}

func TestRelRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	abs, err := store.Resolve("output/run_a/video.mp4", "test path")
	require.NoError(t, err)
	rel, err := store.Rel(abs)
	require.NoError(t, err)
	assert.Equal(t, "output/run_a/video.mp4", rel)

	_, err = store.Rel("/somewhere/else")
	assert.Error(t, err)
}

func TestRunArtifactPaths(t *testing.T) {
	assert.Equal(t, "output/run_a", RunDir("run_a"))
	assert.Equal(t, "output/run_a/artifacts/x.json", RunArtifact("run_a", "x.json"))
}
