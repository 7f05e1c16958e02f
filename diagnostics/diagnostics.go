// Package diagnostics keeps the per-run debugging artifacts: screenshots
// and notes keyed by checkpoint name. Nothing in the bot reads them back.
package diagnostics

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const ManifestFile = "manifest.yaml"

// Screenshotter is the one browser capability the store needs.
type Screenshotter interface {
	Screenshot(path string) error
}

type ArtifactKind string

const (
	KindScreenshot ArtifactKind = "screenshot"
	KindNote       ArtifactKind = "note"
)

type Artifact struct {
	Checkpoint string       `yaml:"checkpoint"`
	Kind       ArtifactKind `yaml:"kind"`
	Path       string       `yaml:"path,omitempty"`
	Message    string       `yaml:"message,omitempty"`
	Error      string       `yaml:"error,omitempty"`
	At         time.Time    `yaml:"at"`
}

type manifest struct {
	RunID     string     `yaml:"run_id"`
	StartedAt time.Time  `yaml:"started_at"`
	Outcome   string     `yaml:"outcome"`
	Artifacts []Artifact `yaml:"artifacts"`
}

// Store is single-writer: the supervisor goroutine owns it.
type Store struct {
	dir       string
	runID     string
	startedAt time.Time
	seen      map[string]int
	artifacts []Artifact
	now       func() time.Time
}

func NewStore(dir, runID string) *Store {
	return &Store{
		dir:       dir,
		runID:     runID,
		startedAt: time.Now(),
		seen:      make(map[string]int),
		now:       time.Now,
	}
}

func (s *Store) Dir() string { return s.dir }

// Artifacts returns a copy of everything captured so far.
func (s *Store) Artifacts() []Artifact {
	out := make([]Artifact, len(s.artifacts))
	copy(out, s.artifacts)
	return out
}

// Capture saves a screenshot under the checkpoint name. A failed
// screenshot is still recorded, with its error, and returned.
func (s *Store) Capture(page Screenshotter, checkpoint string) error {
	name := s.reserve(checkpoint)
	path := filepath.Join(s.dir, name+".png")
	a := Artifact{Checkpoint: name, Kind: KindScreenshot, Path: path, At: s.now()}

	err := page.Screenshot(path)
	if err != nil {
		a.Error = err.Error()
	}
	s.artifacts = append(s.artifacts, a)
	if err != nil {
		return fmt.Errorf("screenshot %s: %w", name, err)
	}
	return nil
}

// Note records a log entry under the checkpoint name.
func (s *Store) Note(checkpoint, message string) {
	s.artifacts = append(s.artifacts, Artifact{
		Checkpoint: s.reserve(checkpoint),
		Kind:       KindNote,
		Message:    message,
		At:         s.now(),
	})
}

// WriteManifest dumps the run summary next to the screenshots.
func (s *Store) WriteManifest(outcome string) error {
	data, err := yaml.Marshal(manifest{
		RunID:     s.runID,
		StartedAt: s.startedAt,
		Outcome:   outcome,
		Artifacts: s.artifacts,
	})
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", s.dir, err)
	}
	return os.WriteFile(filepath.Join(s.dir, ManifestFile), data, 0o644)
}

var unsafeChars = regexp.MustCompile(`[^a-z0-9_-]+`)

// reserve makes checkpoint names write-once: the second "toggle_error"
// becomes "toggle_error-2".
func (s *Store) reserve(checkpoint string) string {
	name := strings.Trim(unsafeChars.ReplaceAllString(strings.ToLower(checkpoint), "_"), "_")
	if name == "" {
		name = "checkpoint"
	}
	s.seen[name]++
	if n := s.seen[name]; n > 1 {
		return fmt.Sprintf("%s-%d", name, n)
	}
	return name
}

// ResetDirs empties each directory, creating it when missing.
func ResetDirs(dirs ...string) error {
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		switch {
		case os.IsNotExist(err):
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("creating %s: %w", dir, err)
			}
			continue
		case err != nil:
			return fmt.Errorf("reading %s: %w", dir, err)
		}
		for _, e := range entries {
			if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
				return fmt.Errorf("clearing %s: %w", dir, err)
			}
		}
	}
	return nil
}
