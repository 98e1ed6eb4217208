package workspace

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"upscaler/internal/logging"
)

// CleanResult contains the outcome of a sweep.
type CleanResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

func (r *CleanResult) merge(other CleanResult) {
	r.Removed = append(r.Removed, other.Removed...)
	r.Errors = append(r.Errors, other.Errors...)
}

// CleanOrphaned removes job directories under both roots whose name is not in
// active. Run at startup, when no job survives a restart, it clears leftovers
// from a previous process.
func (m *Manager) CleanOrphaned(ctx context.Context, active map[string]struct{}) CleanResult {
	var result CleanResult
	for _, root := range []string{m.workDir, m.outputDir} {
		result.merge(m.sweep(ctx, root, "orphaned", func(name string, _ os.FileInfo) bool {
			_, keep := active[name]
			return !keep
		}))
	}
	return result
}

// CleanStale removes job directories under both roots last modified before
// now-maxAge. It catches directories whose record is gone but whose removal
// failed earlier.
func (m *Manager) CleanStale(ctx context.Context, maxAge time.Duration, active map[string]struct{}) CleanResult {
	cutoff := time.Now().Add(-maxAge)
	var result CleanResult
	for _, root := range []string{m.workDir, m.outputDir} {
		result.merge(m.sweep(ctx, root, "stale", func(name string, info os.FileInfo) bool {
			if _, keep := active[name]; keep {
				return false
			}
			return info.ModTime().Before(cutoff)
		}))
	}
	return result
}

func (m *Manager) sweep(ctx context.Context, root, reason string, remove func(string, os.FileInfo) bool) CleanResult {
	var result CleanResult
	if root == "" {
		return result
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: root, Error: err})
		}
		return result
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return result
		}
		if !entry.IsDir() {
			continue
		}
		dirPath := filepath.Join(root, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			continue
		}
		if !remove(entry.Name(), info) {
			continue
		}
		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			m.logger.Warn("failed to remove "+reason+" job directory",
				logging.String("path", dirPath),
				logging.Error(err),
				logging.String(logging.FieldEventType, "workspace_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "check work_dir and output_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		m.logger.Info("removed "+reason+" job directory",
			logging.String("path", dirPath),
			logging.Duration("age", time.Since(info.ModTime())),
			logging.String(logging.FieldEventType, "workspace_cleanup"),
		)
	}
	return result
}
