package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"upscaler/internal/config"
	"upscaler/internal/daemon"
	"upscaler/internal/logging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides logging.level when set.
	LogLevel string
	// Bind overrides paths.api_bind when set.
	Bind string
}

// Run starts the upscaler daemon and blocks until SIGINT/SIGTERM or cmdCtx
// ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	applyOverrides(cfg, opts)

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logConfigSnapshot(logger, cfg)

	d, err := daemon.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check directory permissions and whether another instance holds the lock"),
		)
		return err
	}
	if err := d.Run(signalCtx); err != nil {
		return fmt.Errorf("daemon run: %w", err)
	}
	return nil
}

func applyOverrides(cfg *config.Config, opts Options) {
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	if bind := strings.TrimSpace(opts.Bind); bind != "" {
		cfg.Paths.APIBind = bind
	}
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("api_bind", cfg.Paths.APIBind),
		logging.String("work_dir", cfg.Paths.WorkDir),
		logging.String("output_dir", cfg.Paths.OutputDir),
		logging.String("default_model", cfg.Enhance.DefaultModel),
		logging.Int("default_scale", cfg.Enhance.DefaultScale),
		logging.Int("workers", cfg.Enhance.Workers),
		logging.Int("max_upload_mb", cfg.Server.MaxUploadMB),
		logging.Duration("retention", cfg.RetentionWindow()),
		logging.Bool("history_enabled", cfg.History.Enabled),
	)
}
