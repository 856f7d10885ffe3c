// Package artifact provides path-safe reads and writes of JSON artifacts
// under a repository root. Every path handed to the store must stay inside
// the root; traversal and absolute paths are rejected as configuration
// errors.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/castline/castline/internal/errors"
)

// SchemaVersion is the schema marker carried by every produced artifact.
const SchemaVersion = "v1"

// Store resolves repository-relative paths and performs atomic JSON writes.
type Store struct {
	root string
}

// NewStore creates a store rooted at the given directory. The root is
// resolved to an absolute path once so later containment checks are stable.
func NewStore(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "resolve repository root", err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute repository root.
func (s *Store) Root() string {
	return s.root
}

// ValidateRunID checks that a run id is a single path segment with no
// separators and no traversal.
func ValidateRunID(runID string) error {
	if runID == "" || runID == "." || runID == ".." {
		return errors.NewRunIDInvalidError(runID)
	}
	if strings.ContainsAny(runID, `/\`) || filepath.IsAbs(runID) {
		return errors.NewRunIDInvalidError(runID)
	}
	return nil
}

// Resolve validates a repository-relative path and returns its absolute
// location. The label names the path's origin in error messages.
func (s *Store) Resolve(rel string, label string) (string, error) {
	if rel == "" {
		return "", errors.Newf(errors.ErrCodePathEscape, "%s must not be empty", label)
	}
	clean := filepath.ToSlash(filepath.Clean(rel))
	if filepath.IsAbs(rel) {
		return "", errors.Newf(errors.ErrCodePathEscape, "%s must be a relative path: %s", label, rel)
	}
	for _, part := range strings.Split(clean, "/") {
		if part == ".." {
			return "", errors.Newf(errors.ErrCodePathEscape, "%s must not contain path traversal: %s", label, rel)
		}
	}
	abs := filepath.Join(s.root, filepath.FromSlash(clean))
	if abs != s.root && !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		return "", errors.NewPathEscapeError(label, rel)
	}
	return abs, nil
}

// Rel converts an absolute path inside the root back to a slash-separated
// repository-relative path. Paths outside the root are a programming error
// surfaced as IO-001.
func (s *Store) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", errors.NewPathEscapeError("artifact path", abs)
	}
	return filepath.ToSlash(rel), nil
}

// RunDir returns the repository-relative output directory for a run.
func RunDir(runID string) string {
	return "output/" + runID
}

// RunArtifact returns the repository-relative path of a named artifact
// under a run's artifacts directory.
func RunArtifact(runID, name string) string {
	return "output/" + runID + "/artifacts/" + name
}

// WriteJSON writes payload as indented JSON to the given repository-relative
// path. The write is atomic: a temp file in the target directory is renamed
// over the destination, so readers never observe a half-written artifact.
func (s *Store) WriteJSON(rel string, payload any) error {
	abs, err := s.Resolve(rel, "artifact path")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "create artifact directory", err)
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "marshal artifact", err)
	}
	tmp := fmt.Sprintf("%s.tmp.%d", abs, os.Getpid())
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "write artifact", err)
	}
	if err := os.Rename(tmp, abs); err != nil {
		os.Remove(tmp)
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "replace artifact", err)
	}
	return nil
}

// ReadJSON reads a repository-relative JSON artifact into out.
func (s *Store) ReadJSON(rel string, out any) error {
	abs, err := s.Resolve(rel, "artifact path")
	if err != nil {
		return err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrap(errors.ErrCodeFileNotFound, fmt.Sprintf("artifact not found: %s", rel), err)
		}
		return errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("read artifact: %s", rel), err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(errors.ErrCodeFileUnmarshal, fmt.Sprintf("parse artifact: %s", rel), err)
	}
	return nil
}

// WriteText writes a plain text artifact at a repository-relative path.
func (s *Store) WriteText(rel string, text string) error {
	abs, err := s.Resolve(rel, "artifact path")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "create artifact directory", err)
	}
	if err := os.WriteFile(abs, []byte(text), 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "write artifact", err)
	}
	return nil
}

// ReadText reads a plain text artifact at a repository-relative path.
func (s *Store) ReadText(rel string) (string, error) {
	abs, err := s.Resolve(rel, "artifact path")
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Wrap(errors.ErrCodeFileNotFound, fmt.Sprintf("artifact not found: %s", rel), err)
		}
		return "", errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("read artifact: %s", rel), err)
	}
	return string(data), nil
}
