package stage

import (
	"context"
	"fmt"
	"os"
	"strings"

	"upscaler/internal/services"
)

// Params carries the typed parameters a stage may need.
type Params struct {
	FPS         float64
	FrameFormat string
	Model       string
	Scale       int
}

// Request describes one invocation of an external media operation.
type Request struct {
	JobID  string
	Input  string
	Output string
	Params Params
}

// Adapter wraps one external media operation. On success the declared output
// exists and is non-empty; on failure the error message is the diagnostic.
type Adapter interface {
	Name() string
	Run(ctx context.Context, req Request) error
	HealthCheck(ctx context.Context) Health
}

// VerifyOutput checks that path exists and, for files, is non-empty. For
// directories it requires at least one entry.
func VerifyOutput(stageName, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return services.Wrap(services.ErrMissingOutput, stageName, "verify output", "no output path declared", nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return services.Wrap(services.ErrMissingOutput, stageName, "verify output", fmt.Sprintf("%s missing", path), err)
	}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return services.Wrap(services.ErrMissingOutput, stageName, "verify output", fmt.Sprintf("read %s", path), err)
		}
		if len(entries) == 0 {
			return services.Wrap(services.ErrMissingOutput, stageName, "verify output", fmt.Sprintf("%s is empty", path), nil)
		}
		return nil
	}
	if info.Size() == 0 {
		return services.Wrap(services.ErrMissingOutput, stageName, "verify output", fmt.Sprintf("%s is empty", path), nil)
	}
	return nil
}
