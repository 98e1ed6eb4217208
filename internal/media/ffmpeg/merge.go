package ffmpeg

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"upscaler/internal/services"
	"upscaler/internal/stage"
)

// QualityPreset is an x264 quality/speed pairing.
type QualityPreset struct {
	CRF    int
	Preset string
}

var qualityPresets = map[string]QualityPreset{
	"high":   {CRF: 18, Preset: "slow"},
	"medium": {CRF: 23, Preset: "medium"},
	"fast":   {CRF: 28, Preset: "fast"},
}

// PresetFor returns the preset for a quality name, falling back to high.
func PresetFor(quality string) QualityPreset {
	if preset, ok := qualityPresets[strings.ToLower(strings.TrimSpace(quality))]; ok {
		return preset
	}
	return qualityPresets["high"]
}

// Merger encodes enhanced frames back into an H.264 video, muxing the
// extracted audio when one is supplied.
type Merger struct {
	Tool
	Quality QualityPreset
}

// MergeRequest extends stage.Request with the audio track location.
// Input is the enhanced frames directory. An empty Audio produces a silent video.
type MergeRequest struct {
	stage.Request
	Audio string
}

// NewMerger wraps tool as the merge stage.
func NewMerger(tool Tool, quality string) *Merger {
	return &Merger{Tool: tool, Quality: PresetFor(quality)}
}

func (m *Merger) Name() string { return "merge" }

// Run merges frames without audio; use Merge to include an audio track.
func (m *Merger) Run(ctx context.Context, req stage.Request) error {
	return m.Merge(ctx, MergeRequest{Request: req})
}

// Merge encodes req.Input frames at req.Params.FPS into req.Output.
func (m *Merger) Merge(ctx context.Context, req MergeRequest) error {
	if req.Params.FPS <= 0 {
		return services.Wrap(services.ErrValidation, m.Name(), "prepare", "frame rate must be positive", nil)
	}
	pattern := filepath.Join(req.Input, FramePattern+"."+frameFormat(req.Params.FrameFormat))
	args := []string{
		"-framerate", strconv.FormatFloat(req.Params.FPS, 'f', -1, 64),
		"-i", pattern,
	}
	if req.Audio != "" {
		args = append(args, "-i", req.Audio)
	}
	args = append(args,
		"-c:v", "libx264",
		"-crf", strconv.Itoa(m.Quality.CRF),
		"-preset", m.Quality.Preset,
		"-pix_fmt", "yuv420p",
		"-map", "0:v:0",
	)
	if req.Audio != "" {
		args = append(args, "-c:a", "aac", "-map", "1:a:0", "-shortest")
	}
	args = append(args, "-y", req.Output)
	if err := m.exec(ctx, m.Name(), "encode video", args); err != nil {
		return err
	}
	return stage.VerifyOutput(m.Name(), req.Output)
}

func (m *Merger) HealthCheck(context.Context) stage.Health {
	return m.health(m.Name())
}
