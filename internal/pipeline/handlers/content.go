package handlers

import (
	"fmt"
	"strings"

	"github.com/castline/castline/internal/pipeline"
	"github.com/castline/castline/internal/publish"
)

// ScriptOutline renders a markdown outline for the episode script from the
// step's declared topic and sections.
func ScriptOutline(ctx pipeline.Context, step pipeline.Step) (pipeline.Result, error) {
	out := step.Output
	if out == "" {
		out = ctx.StepPath("script_outline.md")
	}

	if ctx.DryRun {
		return pipeline.Result{
			OutputPath:   out,
			PlannedPaths: map[string]string{"outline": out},
		}, nil
	}

	topic := configString(step, "topic", "Untitled episode")
	sections := configStrings(step, "sections")
	if len(sections) == 0 {
		sections = []string{"Hook", "Main content", "Recap", "Call to action"}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", topic)
	fmt.Fprintf(&b, "Run: %s\n\n", ctx.RunID)
	for i, section := range sections {
		fmt.Fprintf(&b, "## %d. %s\n\n", i+1, section)
	}

	if err := ctx.Store.WriteText(out, b.String()); err != nil {
		return pipeline.Result{}, err
	}
	return pipeline.Result{OutputPath: out}, nil
}

// SEOMetadata writes the per-run listing metadata consumed at publish time.
func SEOMetadata(ctx pipeline.Context, step pipeline.Step) (pipeline.Result, error) {
	out := step.Output
	if out == "" {
		out = publish.MetadataRel(ctx.RunID)
	}

	if ctx.DryRun {
		return pipeline.Result{
			OutputPath:   out,
			PlannedPaths: map[string]string{"metadata": out},
		}, nil
	}

	payload := map[string]any{
		"title":       configString(step, "title", "Automated upload "+ctx.RunID),
		"description": configString(step, "description", ""),
		"tags":        append([]string{}, configStrings(step, "tags")...),
	}
	if err := ctx.Store.WriteJSON(out, payload); err != nil {
		return pipeline.Result{}, err
	}
	return pipeline.Result{OutputPath: out}, nil
}

// LocalizationSubtitle derives a naive single-language SRT from the script
// outline: one cue per non-empty line on a fixed three second cadence.
func LocalizationSubtitle(ctx pipeline.Context, step pipeline.Step) (pipeline.Result, error) {
	lang := configString(step, "language", "en")
	out := step.Output
	if out == "" {
		out = ctx.StepPath("subtitles_" + lang + ".srt")
	}

	if ctx.DryRun {
		return pipeline.Result{
			OutputPath:   out,
			PlannedPaths: map[string]string{"subtitles": out},
		}, nil
	}

	source := step.InputFrom
	if source == "" {
		source = ctx.StepPath("script_outline.md")
	}
	text, err := ctx.Store.ReadText(source)
	if err != nil {
		return pipeline.Result{}, err
	}

	var b strings.Builder
	cue := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "# "))
		if line == "" {
			continue
		}
		start := cue * 3
		end := start + 3
		cue++
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			cue, srtStamp(start), srtStamp(end), line)
	}

	if err := ctx.Store.WriteText(out, b.String()); err != nil {
		return pipeline.Result{}, err
	}
	return pipeline.Result{OutputPath: out}, nil
}

func srtStamp(seconds int) string {
	return fmt.Sprintf("%02d:%02d:%02d,000", seconds/3600, (seconds%3600)/60, seconds%60)
}
