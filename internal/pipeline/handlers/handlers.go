// Package handlers provides the built-in pipeline step implementations
// and the registry wiring them to their declared keys.
package handlers

import (
	"github.com/castline/castline/internal/pipeline"
)

// Handler keys as declared in pipeline plans.
const (
	KeyScriptOutline        = "content.script_outline"
	KeySEOMetadata          = "content.seo_metadata"
	KeyLocalizationSubtitle = "content.localization_subtitle"
	KeyQualityGate          = "quality.gate"
	KeyYouTubeUpload        = "publish.youtube_upload"
)

// DefaultRegistry returns a registry with every built-in handler bound.
func DefaultRegistry() *pipeline.Registry {
	r := pipeline.NewRegistry()
	r.Register(KeyScriptOutline, ScriptOutline)
	r.Register(KeySEOMetadata, SEOMetadata)
	r.Register(KeyLocalizationSubtitle, LocalizationSubtitle)
	r.Register(KeyQualityGate, QualityGate)
	r.Register(KeyYouTubeUpload, YouTubeUpload)
	return r
}

// configString reads an optional string from a step's config block.
func configString(step pipeline.Step, key, fallback string) string {
	v, ok := step.Config[key]
	if !ok {
		return fallback
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return fallback
	}
	return s
}

// configStrings reads an optional string list from a step's config block.
func configStrings(step pipeline.Step, key string) []string {
	v, ok := step.Config[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
