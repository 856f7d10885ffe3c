package publish

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/castline/castline/internal/artifact"
	"github.com/castline/castline/internal/config"
)

// maxOverrideBytes bounds per-field override files.
const maxOverrideBytes = 64 * 1024

// Metadata is the listing payload sent with an upload.
type Metadata struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Tags          []string `json:"tags"`
	PrivacyStatus string   `json:"privacy_status"`
}

type runMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// MetadataRel returns the per-run metadata artifact path.
func MetadataRel(runID string) string {
	return artifact.RunDir(runID) + "/metadata.json"
}

// ResolveMetadata builds the upload metadata for a run. Precedence per
// field: operator override file, then the run's metadata.json, then a
// deterministic default. A missing metadata.json is not an error; a
// configured override file that cannot be read or is not small valid UTF-8
// text is.
func ResolveMetadata(store *artifact.Store, cfg config.Config, runID string) (Metadata, error) {
	meta := Metadata{
		PrivacyStatus: cfg.Settings.UploadPrivacyStatus,
	}

	var fromRun runMetadata
	if err := store.ReadJSON(MetadataRel(runID), &fromRun); err == nil {
		meta.Title = strings.TrimSpace(fromRun.Title)
		meta.Description = fromRun.Description
		meta.Tags = fromRun.Tags
	}

	if path := cfg.Settings.UploadTitlePath; path != "" {
		text, err := readOverride(store, path, "title override")
		if err != nil {
			return Metadata{}, err
		}
		meta.Title = strings.TrimSpace(text)
	}
	if path := cfg.Settings.UploadDescriptionPath; path != "" {
		text, err := readOverride(store, path, "description override")
		if err != nil {
			return Metadata{}, err
		}
		meta.Description = strings.TrimRight(text, "\n")
	}
	if path := cfg.Settings.UploadTagsPath; path != "" {
		text, err := readOverride(store, path, "tags override")
		if err != nil {
			return Metadata{}, err
		}
		var tags []string
		if err := json.Unmarshal([]byte(text), &tags); err != nil {
			return Metadata{}, fmt.Errorf("tags override must be a JSON string array: %s: %w", path, err)
		}
		meta.Tags = tags
	}

	if meta.Title == "" {
		meta.Title = "Automated upload " + runID
	}
	if meta.Tags == nil {
		meta.Tags = []string{}
	}
	return meta, nil
}

func readOverride(store *artifact.Store, rel, label string) (string, error) {
	text, err := store.ReadText(rel)
	if err != nil {
		return "", err
	}
	if len(text) > maxOverrideBytes {
		return "", fmt.Errorf("%s exceeds %d bytes: %s", label, maxOverrideBytes, rel)
	}
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("%s is not valid UTF-8: %s", label, rel)
	}
	return text, nil
}
