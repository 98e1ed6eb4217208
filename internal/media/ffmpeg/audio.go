package ffmpeg

import (
	"context"

	"upscaler/internal/stage"
)

// AudioExtractor writes the input's audio track as 16-bit 44.1kHz stereo PCM.
type AudioExtractor struct {
	Tool
}

// NewAudioExtractor wraps tool as the audio stage.
func NewAudioExtractor(tool Tool) *AudioExtractor {
	return &AudioExtractor{Tool: tool}
}

func (a *AudioExtractor) Name() string { return "audio" }

func (a *AudioExtractor) Run(ctx context.Context, req stage.Request) error {
	args := []string{
		"-i", req.Input,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "44100",
		"-ac", "2",
		"-y", req.Output,
	}
	if err := a.exec(ctx, a.Name(), "extract audio", args); err != nil {
		return err
	}
	return stage.VerifyOutput(a.Name(), req.Output)
}

func (a *AudioExtractor) HealthCheck(context.Context) stage.Health {
	return a.health(a.Name())
}
