package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"upscaler/internal/logging"
)

const (
	audioFile       = "audio.wav"
	framesDir       = "frames"
	enhancedDir     = "enhanced_frames"
	outputFile      = "enhanced.mp4"
	mergingFile     = ".enhanced.merging.mp4"
	optimizingFile  = ".enhanced.optimizing.mp4"
	inputFilePrefix = "input"
)

// ErrInvalidID is returned for ids that would escape the workspace roots.
var ErrInvalidID = errors.New("invalid job id")

// Layout is the set of paths owned by one job.
type Layout struct {
	JobID      string
	Root       string
	OutputRoot string
}

// Input returns the stored upload path for the given extension.
func (l Layout) Input(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return filepath.Join(l.Root, inputFilePrefix+ext)
}

func (l Layout) Audio() string         { return filepath.Join(l.Root, audioFile) }
func (l Layout) Frames() string        { return filepath.Join(l.Root, framesDir) }
func (l Layout) Enhanced() string      { return filepath.Join(l.Root, enhancedDir) }
func (l Layout) Output() string        { return filepath.Join(l.OutputRoot, outputFile) }
func (l Layout) Merging() string       { return filepath.Join(l.OutputRoot, mergingFile) }
func (l Layout) Optimizing() string    { return filepath.Join(l.OutputRoot, optimizingFile) }
func (l Layout) Directories() []string { return []string{l.Root, l.OutputRoot} }

// Intermediates are the scratch files under OutputRoot that must never
// outlive a failed run.
func (l Layout) Intermediates() []string { return []string{l.Merging(), l.Optimizing()} }

// Manager creates and removes job workspaces.
type Manager struct {
	workDir   string
	outputDir string
	logger    *slog.Logger
}

// New returns a Manager rooted at workDir and outputDir.
func New(workDir, outputDir string, logger *slog.Logger) *Manager {
	return &Manager{
		workDir:   strings.TrimSpace(workDir),
		outputDir: strings.TrimSpace(outputDir),
		logger:    logging.NewComponentLogger(logger, "workspace"),
	}
}

// Layout resolves the paths for id without touching the filesystem.
func (m *Manager) Layout(id string) (Layout, error) {
	if err := validateID(id); err != nil {
		return Layout{}, err
	}
	return Layout{
		JobID:      id,
		Root:       filepath.Join(m.workDir, id),
		OutputRoot: filepath.Join(m.outputDir, id),
	}, nil
}

// Create makes every directory the job writes into.
func (m *Manager) Create(id string) (Layout, error) {
	layout, err := m.Layout(id)
	if err != nil {
		return Layout{}, err
	}
	for _, dir := range []string{layout.Root, layout.Frames(), layout.Enhanced(), layout.OutputRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Layout{}, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return layout, nil
}

// Remove deletes the job's directories. Already-missing directories are not
// an error, so Remove may be called any number of times.
func (m *Manager) Remove(id string) error {
	layout, err := m.Layout(id)
	if err != nil {
		return err
	}
	var errs []error
	for _, dir := range layout.Directories() {
		if err := os.RemoveAll(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", dir, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		m.logger.Warn("failed to remove job workspace",
			logging.String(logging.FieldJobID, id),
			logging.Error(err),
			logging.String(logging.FieldEventType, "workspace_cleanup_failed"),
			logging.String(logging.FieldErrorHint, "check work_dir and output_dir permissions"),
			logging.String(logging.FieldImpact, "job record kept until artifacts are removed"),
		)
		return err
	}
	return nil
}

// Exists reports whether any of the job's directories are still on disk.
func (m *Manager) Exists(id string) bool {
	layout, err := m.Layout(id)
	if err != nil {
		return false
	}
	for _, dir := range layout.Directories() {
		if _, err := os.Stat(dir); err == nil {
			return true
		}
	}
	return false
}

func validateID(id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" || trimmed != id || trimmed == "." || trimmed == ".." || filepath.Base(trimmed) != trimmed || strings.ContainsAny(trimmed, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
