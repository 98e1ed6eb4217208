package pipeline

import (
	"context"
	"log/slog"

	"upscaler/internal/config"
	"upscaler/internal/media/ffmpeg"
	"upscaler/internal/media/ffprobe"
	"upscaler/internal/stage"
)

// Prober inspects the uploaded video.
type Prober interface {
	Probe(ctx context.Context, path string) (ffprobe.VideoInfo, error)
	HealthCheck(ctx context.Context) stage.Health
}

// Merger encodes enhanced frames plus optional audio into a video.
type Merger interface {
	stage.Adapter
	Merge(ctx context.Context, req ffmpeg.MergeRequest) error
}

// Stages bundles the external operations a job runs.
type Stages struct {
	Probe    Prober
	Audio    stage.Adapter
	Frames   stage.Adapter
	Merge    Merger
	Optimize stage.Adapter
}

// StagesFromConfig wires the ffprobe/ffmpeg implementations.
func StagesFromConfig(cfg *config.Config, logger *slog.Logger) Stages {
	timeout := cfg.StageTimeout()
	tool := ffmpeg.NewTool(cfg.FFmpeg.FFmpegBinary, timeout, logger)
	return Stages{
		Probe:    ffprobe.NewProber(cfg.FFmpeg.FFprobeBinary, timeout, logger),
		Audio:    ffmpeg.NewAudioExtractor(tool),
		Frames:   ffmpeg.NewFrameExtractor(tool),
		Merge:    ffmpeg.NewMerger(tool, cfg.FFmpeg.MergeQuality),
		Optimize: ffmpeg.NewOptimizer(tool, cfg.FFmpeg.OptimizeCRF, cfg.FFmpeg.OptimizePreset, cfg.FFmpeg.TargetBitrate),
	}
}

// Health reports readiness for every configured stage.
func (s Stages) Health(ctx context.Context) []stage.Health {
	var out []stage.Health
	if s.Probe != nil {
		out = append(out, s.Probe.HealthCheck(ctx))
	}
	for _, adapter := range []stage.Adapter{s.Audio, s.Frames, s.Merge, s.Optimize} {
		if adapter != nil {
			out = append(out, adapter.HealthCheck(ctx))
		}
	}
	return out
}
