package handlers

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castline/castline/internal/artifact"
	"github.com/castline/castline/internal/config"
	"github.com/castline/castline/internal/log"
	"github.com/castline/castline/internal/pipeline"
	"github.com/castline/castline/internal/publish"
)

func handlerContext(t *testing.T, dryRun bool) pipeline.Context {
	t.Helper()
	store, err := artifact.NewStore(t.TempDir())
	require.NoError(t, err)
	return pipeline.Context{
		Store:  store,
		Cfg:    config.Config{Toggles: config.Toggles{Pipeline: true}},
		RunID:  "run_a",
		DryRun: dryRun,
		Logger: log.DefaultLogger(),
	}
}

func TestDefaultRegistryKeys(t *testing.T) {
	keys := DefaultRegistry().Keys()
	assert.Equal(t, []string{
		KeyLocalizationSubtitle,
		KeyScriptOutline,
		KeySEOMetadata,
		KeyYouTubeUpload,
		KeyQualityGate,
	}, keys)
}

func TestScriptOutlineWritesMarkdown(t *testing.T) {
	ctx := handlerContext(t, false)
	step := pipeline.Step{
		ID:   "outline",
		Uses: KeyScriptOutline,
		Config: map[string]any{
			"topic":    "Queueing theory for creators",
			"sections": []any{"Intro", "Deep dive"},
		},
	}

	result, err := ScriptOutline(ctx, step)
	require.NoError(t, err)
	assert.Equal(t, "output/run_a/script_outline.md", result.OutputPath)

	text, err := ctx.Store.ReadText(result.OutputPath)
	require.NoError(t, err)
	assert.Contains(t, text, "# Queueing theory for creators")
	assert.Contains(t, text, "## 2. Deep dive")
}

func TestScriptOutlineDryRunWritesNothing(t *testing.T) {
	ctx := handlerContext(t, true)
	result, err := ScriptOutline(ctx, pipeline.Step{ID: "outline", Uses: KeyScriptOutline})
	require.NoError(t, err)
	assert.NotEmpty(t, result.PlannedPaths)

	entries, readErr := os.ReadDir(ctx.Store.Root())
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestSEOMetadataWritesListing(t *testing.T) {
	ctx := handlerContext(t, false)
	step := pipeline.Step{
		ID:   "seo",
		Uses: KeySEOMetadata,
		Config: map[string]any{
			"title": "Episode 12: File queues",
			"tags":  []any{"go", "queues"},
		},
	}

	result, err := SEOMetadata(ctx, step)
	require.NoError(t, err)
	assert.Equal(t, "output/run_a/metadata.json", result.OutputPath)

	var meta map[string]any
	require.NoError(t, ctx.Store.ReadJSON(result.OutputPath, &meta))
	assert.Equal(t, "Episode 12: File queues", meta["title"])
	assert.Equal(t, []any{"go", "queues"}, meta["tags"])
}

func TestLocalizationSubtitleBuildsSRT(t *testing.T) {
	ctx := handlerContext(t, false)
	require.NoError(t, ctx.Store.WriteText("output/run_a/script_outline.md",
		"# Title\n\nFirst line\nSecond line\n"))

	result, err := LocalizationSubtitle(ctx, pipeline.Step{
		ID:     "subs",
		Uses:   KeyLocalizationSubtitle,
		Config: map[string]any{"language": "th"},
	})
	require.NoError(t, err)
	assert.Equal(t, "output/run_a/subtitles_th.srt", result.OutputPath)

	text, err := ctx.Store.ReadText(result.OutputPath)
	require.NoError(t, err)
	assert.Contains(t, text, "00:00:00,000 --> 00:00:03,000")
	assert.Contains(t, text, "First line")
}

func TestLocalizationSubtitleMissingSourceFails(t *testing.T) {
	ctx := handlerContext(t, false)
	_, err := LocalizationSubtitle(ctx, pipeline.Step{ID: "subs", Uses: KeyLocalizationSubtitle})
	assert.Error(t, err)
}

func TestYouTubeUploadStepDryRunForcesSkip(t *testing.T) {
	ctx := handlerContext(t, false)
	ctx.Cfg.Toggles.Upload = true

	result, err := YouTubeUpload(ctx, pipeline.Step{
		ID:     "upload",
		Uses:   KeyYouTubeUpload,
		Config: map[string]any{"dry_run": true},
	})
	require.NoError(t, err)

	var outcome publish.Outcome
	require.NoError(t, ctx.Store.ReadJSON(result.OutputPath, &outcome))
	assert.Equal(t, publish.StatusSkipped, outcome.Status)
	assert.Equal(t, publish.ReasonUploadDisabled, outcome.Reason)
}
