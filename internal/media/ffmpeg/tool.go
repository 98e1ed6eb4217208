package ffmpeg

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"upscaler/internal/logging"
	"upscaler/internal/procexec"
	"upscaler/internal/services"
	"upscaler/internal/stage"
)

// Tool holds what every ffmpeg stage shares.
type Tool struct {
	Binary  string
	Timeout time.Duration
	Logger  *slog.Logger

	run procexec.RunFunc
}

// NewTool constructs a Tool for binary.
func NewTool(binary string, timeout time.Duration, logger *slog.Logger) Tool {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return Tool{Binary: binary, Timeout: timeout, Logger: logger, run: procexec.Run}
}

func (t Tool) exec(ctx context.Context, stageName, operation string, args []string) error {
	run := t.run
	if run == nil {
		run = procexec.Run
	}
	cmd := procexec.Command{Name: t.Binary, Args: append([]string{"-hide_banner", "-nostdin"}, args...), Timeout: t.Timeout}
	logger := logging.WithContext(ctx, t.Logger)
	logger.Debug("running ffmpeg", logging.String("command", cmd.String()))

	start := time.Now()
	if _, err := run(ctx, cmd); err != nil {
		return services.Wrap(procexec.Marker(err), stageName, operation, "ffmpeg failed", err)
	}
	logger.Debug("ffmpeg finished", logging.Duration("elapsed", time.Since(start)))
	return nil
}

func (t Tool) health(name string) stage.Health {
	return stage.BinaryHealth(name, t.Binary)
}
