package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"upscaler/internal/api"
	"upscaler/internal/config"
	"upscaler/internal/deps"
	"upscaler/internal/enhance"
	"upscaler/internal/history"
	"upscaler/internal/jobs"
	"upscaler/internal/logging"
	"upscaler/internal/notifications"
	"upscaler/internal/pipeline"
	"upscaler/internal/workspace"
)

// shutdownGrace bounds how long Run waits for in-flight jobs after the
// context ends before their external processes are killed.
const shutdownGrace = 30 * time.Second

// Daemon owns the job pipeline and the API that drives it.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	store      *jobs.MemoryStore
	history    *history.Store
	registry   *enhance.Registry
	stages     pipeline.Stages
	workspace  *workspace.Manager
	supervisor *pipeline.Supervisor
	router     http.Handler

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	closed  atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool                `json:"running"`
	PID          int                 `json:"pid"`
	Jobs         map[jobs.Status]int `json:"jobs"`
	Dependencies []deps.Status       `json:"dependencies"`
	LockPath     string              `json:"lock_path"`
	HistoryPath  string              `json:"history_path,omitempty"`
}

// Option customises daemon construction.
type Option func(*options)

type options struct {
	stages    *pipeline.Stages
	enhancers []enhance.Enhancer
}

// WithStages replaces the ffmpeg-backed stages.
func WithStages(stages pipeline.Stages) Option {
	return func(o *options) { o.stages = &stages }
}

// WithEnhancers replaces the configured enhancement models.
func WithEnhancers(enhancers ...enhance.Enhancer) Option {
	return func(o *options) { o.enhancers = enhancers }
}

// New constructs a daemon with initialized dependencies. The history ledger
// is optional: when it cannot be opened the daemon runs without it.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    jobs.NewMemoryStore(),
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}

	if len(o.enhancers) > 0 {
		d.registry = enhance.NewRegistryWith(logger, o.enhancers...)
	} else {
		d.registry = enhance.NewRegistry(cfg, logger)
	}
	if o.stages != nil {
		d.stages = *o.stages
	} else {
		d.stages = pipeline.StagesFromConfig(cfg, logger)
	}
	d.workspace = workspace.New(cfg.Paths.WorkDir, cfg.Paths.OutputDir, logger)

	var recorder pipeline.Recorder
	var reader api.HistoryReader
	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			logging.WarnWithContext(d.logger, "history ledger unavailable", "history_open_failed",
				logging.Error(err),
				logging.String("path", cfg.History.Path),
				logging.String(logging.FieldErrorHint, "check history.path permissions or disable history"),
				logging.String(logging.FieldImpact, "finished jobs will not be recorded"),
			)
		} else {
			d.history = store
			recorder = store
			reader = store
		}
	}
	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		var next notifications.EntryRecorder
		if d.history != nil {
			next = d.history
		}
		recorder = notifications.NewRecorder(next, notifications.NewService(cfg), cfg.Notifications.NotifyCancelled, logger)
	}

	orchestrator := pipeline.NewOrchestrator(pipeline.OrchestratorOptions{
		Store:       d.store,
		Stages:      d.stages,
		Models:      d.registry,
		Recorder:    recorder,
		Workers:     cfg.Enhance.Workers,
		FrameFormat: cfg.FFmpeg.FrameFormat,
		ExtractFPS:  cfg.FFmpeg.ExtractFPS,
		Logger:      logger,
	})
	d.supervisor = pipeline.NewSupervisor(pipeline.SupervisorOptions{
		Store:        d.store,
		Workspace:    d.workspace,
		Models:       d.registry,
		Orchestrator: orchestrator,
		Recorder:     recorder,
		Retention:    cfg.RetentionWindow(),
		Logger:       logger,
	})
	d.router = api.NewRouter(api.Options{
		Jobs:              d.supervisor,
		Models:            d.registry,
		History:           reader,
		Health:            d.stages.Health,
		MaxUploadBytes:    cfg.MaxUploadBytes(),
		AllowedExtensions: cfg.Server.AllowedExtensions,
		DefaultModel:      cfg.Enhance.DefaultModel,
		DefaultScale:      cfg.Enhance.DefaultScale,
		Logger:            logger,
	})
	return d, nil
}

// Start acquires the daemon lock, prepares the working directories, and
// removes job directories left behind by a previous process.
func (d *Daemon) Start(ctx context.Context) error {
	if d.closed.Load() {
		return errors.New("daemon closed")
	}
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another upscaler daemon instance is already running")
	}

	for _, dir := range []string{d.cfg.Paths.WorkDir, d.cfg.Paths.OutputDir} {
		if err := workspace.CheckWritable(dir); err != nil {
			_ = d.lock.Unlock()
			return fmt.Errorf("directory %s not writable: %w", dir, err)
		}
	}

	d.logDependencies()

	result := d.workspace.CleanOrphaned(ctx, d.supervisor.ActiveIDs())
	if len(result.Removed) > 0 || len(result.Errors) > 0 {
		d.logger.Info("orphaned job directories swept",
			logging.Int("removed", len(result.Removed)),
			logging.Int("errors", len(result.Errors)),
			logging.String(logging.FieldEventType, "orphan_sweep"),
		)
	}
	for _, cleanupErr := range result.Errors {
		logging.WarnWithContext(d.logger, "orphan cleanup failed", "orphan_cleanup_failed",
			logging.String("path", cleanupErr.Path),
			logging.Error(cleanupErr.Error),
			logging.String(logging.FieldErrorHint, "remove the directory manually"),
			logging.String(logging.FieldImpact, "disk space is not reclaimed"),
		)
	}

	d.running.Store(true)
	d.logger.Info("upscaler daemon started",
		logging.String("lock", d.lockPath),
		logging.String("work_dir", d.cfg.Paths.WorkDir),
		logging.String("output_dir", d.cfg.Paths.OutputDir),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Run serves the API and the retention sweeper until ctx ends, then stops
// accepting uploads and waits for running jobs.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.Load() {
		if err := d.Start(ctx); err != nil {
			return err
		}
	}
	defer d.Stop()

	gin.SetMode(gin.ReleaseMode)
	server := api.NewServer(d.cfg.Paths.APIBind, d.router, d.logger)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Run(groupCtx)
	})
	group.Go(func() error {
		return d.supervisor.RunRetention(groupCtx, d.cfg.SweepInterval())
	})
	err := group.Wait()

	d.logger.Info("upscaler daemon shutting down", logging.String(logging.FieldEventType, "daemon_stopping"))
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if shutdownErr := d.supervisor.Shutdown(shutdownCtx); shutdownErr != nil {
		logging.WarnWithContext(d.logger, "jobs did not finish before shutdown", "shutdown_timeout",
			logging.Error(shutdownErr),
			logging.String(logging.FieldImpact, "running jobs were killed"),
		)
	}
	return err
}

// Stop releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Swap(false) {
		return
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.logger.Info("upscaler daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the supervisor, releases the lock, and closes the ledger.
func (d *Daemon) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	_ = d.supervisor.Shutdown(ctx)
	d.Stop()
	if d.history != nil {
		return d.history.Close()
	}
	return nil
}

// Handler exposes the HTTP API without a listener.
func (d *Daemon) Handler() http.Handler {
	return d.router
}

// Supervisor returns the job supervisor.
func (d *Daemon) Supervisor() *pipeline.Supervisor {
	return d.supervisor
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Jobs:         d.store.Counts(),
		Dependencies: deps.CheckBinaries(deps.Requirements(d.cfg)),
		LockPath:     d.lockPath,
	}
	if d.history != nil {
		status.HistoryPath = d.history.Path()
	}
	return status
}

func (d *Daemon) logDependencies() {
	statuses := deps.CheckBinaries(deps.Requirements(d.cfg))
	attrs := make([]logging.Attr, 0, len(statuses)+1)
	attrs = append(attrs, logging.String(logging.FieldEventType, "dependency_snapshot"))
	for _, status := range statuses {
		attrs = append(attrs, logging.Bool(status.Name+"_available", status.Available))
	}
	d.logger.Info("dependency snapshot", logging.Args(attrs...)...)

	for _, missing := range deps.MissingRequired(statuses) {
		logging.WarnWithContext(d.logger, "required dependency missing", "dependency_missing",
			logging.String("dependency", missing.Name),
			logging.String("command", missing.Command),
			logging.String("detail", missing.Detail),
			logging.String(logging.FieldErrorHint, "install the binary or set its path in config.toml"),
			logging.String(logging.FieldImpact, "jobs fail at the stage that needs it"),
		)
	}
}
