package ffprobe

import (
	"context"
	"log/slog"
	"time"

	"upscaler/internal/logging"
	"upscaler/internal/procexec"
	"upscaler/internal/services"
	"upscaler/internal/stage"
)

const stageName = "probe"

// Prober is the pipeline's probe stage.
type Prober struct {
	Binary  string
	Timeout time.Duration
	Logger  *slog.Logger

	run procexec.RunFunc
}

// NewProber constructs a prober that shells out to binary.
func NewProber(binary string, timeout time.Duration, logger *slog.Logger) *Prober {
	return &Prober{Binary: binary, Timeout: timeout, Logger: logger, run: procexec.Run}
}

// Name reports the stage name.
func (p *Prober) Name() string { return stageName }

// Probe inspects path and returns its video summary.
func (p *Prober) Probe(ctx context.Context, path string) (VideoInfo, error) {
	logger := logging.WithContext(ctx, p.Logger)
	result, err := Inspect(ctx, p.run, p.Binary, path, p.Timeout)
	if err != nil {
		return VideoInfo{}, services.Wrap(procexec.Marker(err), stageName, "ffprobe", "inspect input", err)
	}
	info, err := result.VideoInfo()
	if err != nil {
		return VideoInfo{}, services.Wrap(services.ErrValidation, stageName, "ffprobe", "input has no video stream", err)
	}
	logger.Debug("video probed",
		logging.Int("width", info.Width),
		logging.Int("height", info.Height),
		logging.Float64("fps", info.FPS),
		logging.Float64("duration_seconds", info.Duration),
		logging.Int("frames_estimate", info.Frames),
	)
	return info, nil
}

// HealthCheck verifies the ffprobe binary is resolvable.
func (p *Prober) HealthCheck(context.Context) stage.Health {
	return stage.BinaryHealth(stageName, p.Binary)
}
