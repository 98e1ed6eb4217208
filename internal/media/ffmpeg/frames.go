package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"upscaler/internal/services"
	"upscaler/internal/stage"
)

// FramePattern is the numbered file name used for extracted and enhanced frames.
const FramePattern = "frame_%06d"

// FrameExtractor decodes every frame of the input into req.Output as
// numbered still images.
type FrameExtractor struct {
	Tool
}

// NewFrameExtractor wraps tool as the frames stage.
func NewFrameExtractor(tool Tool) *FrameExtractor {
	return &FrameExtractor{Tool: tool}
}

func (f *FrameExtractor) Name() string { return "frames" }

// Run extracts frames. Params.FPS > 0 resamples to that rate; otherwise every
// source frame is kept.
func (f *FrameExtractor) Run(ctx context.Context, req stage.Request) error {
	if err := os.MkdirAll(req.Output, 0o755); err != nil {
		return services.Wrap(services.ErrTransient, f.Name(), "prepare", "create frames directory", err)
	}
	format := frameFormat(req.Params.FrameFormat)
	args := []string{"-i", req.Input, "-vsync", "0"}
	if req.Params.FPS > 0 {
		args = append(args, "-vf", "fps="+strconv.FormatFloat(req.Params.FPS, 'f', -1, 64))
	}
	args = append(args,
		"-f", "image2",
		"-q:v", "1",
		"-y", filepath.Join(req.Output, FramePattern+"."+format),
	)
	if err := f.exec(ctx, f.Name(), "extract frames", args); err != nil {
		return err
	}
	return stage.VerifyOutput(f.Name(), req.Output)
}

func (f *FrameExtractor) HealthCheck(context.Context) stage.Health {
	return f.health(f.Name())
}

func frameFormat(format string) string {
	switch format {
	case "jpg", "jpeg":
		return "jpg"
	default:
		return "png"
	}
}

// FrameGlob returns the glob matching frames of the given format.
func FrameGlob(format string) string {
	return fmt.Sprintf("frame_*.%s", frameFormat(format))
}
