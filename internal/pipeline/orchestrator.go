package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"upscaler/internal/batch"
	"upscaler/internal/enhance"
	"upscaler/internal/fileutil"
	"upscaler/internal/history"
	"upscaler/internal/jobs"
	"upscaler/internal/logging"
	"upscaler/internal/media/ffmpeg"
	"upscaler/internal/media/ffprobe"
	"upscaler/internal/services"
	"upscaler/internal/stage"
	"upscaler/internal/workspace"
)

// errStopped signals that the job left the orchestrator's control, either
// through cancellation or because its record is gone.
var errStopped = errors.New("job stopped")

// ModelLookup resolves a validated enhancement model.
type ModelLookup interface {
	Validate(model string, scale int) (enhance.Enhancer, error)
}

// Recorder persists terminal job outcomes.
type Recorder interface {
	Record(ctx context.Context, entry history.Entry) error
}

// Job is everything the orchestrator needs to run one submission.
type Job struct {
	ID     string
	Input  string
	Layout workspace.Layout
	Params jobs.Params
	// Cancelled is polled at stage boundaries.
	Cancelled func() bool
}

func (j Job) cancelled() bool {
	return j.Cancelled != nil && j.Cancelled()
}

// Orchestrator sequences the stages of a single job.
type Orchestrator struct {
	store       jobs.Store
	stages      Stages
	models      ModelLookup
	recorder    Recorder
	workers     int
	frameFormat string
	extractFPS  float64
	logger      *slog.Logger
}

// OrchestratorOptions configures an Orchestrator.
type OrchestratorOptions struct {
	Store       jobs.Store
	Stages      Stages
	Models      ModelLookup
	Recorder    Recorder
	Workers     int
	FrameFormat string
	// ExtractFPS resamples frames when positive; zero keeps the source rate.
	ExtractFPS float64
	Logger     *slog.Logger
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	if opts.FrameFormat == "" {
		opts.FrameFormat = "png"
	}
	return &Orchestrator{
		store:       opts.Store,
		stages:      opts.Stages,
		models:      opts.Models,
		recorder:    opts.Recorder,
		workers:     opts.Workers,
		frameFormat: opts.FrameFormat,
		extractFPS:  opts.ExtractFPS,
		logger:      logging.NewComponentLogger(opts.Logger, "pipeline"),
	}
}

// run tracks the band currently executing so failures and panics freeze
// progress at its start.
type run struct {
	job     Job
	current band
	started time.Time
}

// Run drives job to a terminal status. It returns once the job completed,
// failed, or was found cancelled at a stage boundary.
func (o *Orchestrator) Run(ctx context.Context, job Job) {
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	r := &run{job: job, current: bandProbe, started: time.Now()}

	defer func() {
		if recovered := recover(); recovered != nil {
			err := fmt.Errorf("pipeline error: %v", recovered)
			o.finishFailed(ctx, r, err.Error(), err)
		}
	}()

	err := o.execute(ctx, r)
	switch {
	case err == nil:
	case errors.Is(err, errStopped):
		logging.WithContext(ctx, o.logger).Info("job stopped before completion",
			logging.String(logging.FieldEventType, "job_stopped"),
			logging.String(logging.FieldStage, r.current.stage),
		)
	default:
		o.finishFailed(ctx, r, fmt.Sprintf("%s failed: %s", r.current.label, services.Message(err)), err)
	}
}

func (o *Orchestrator) execute(ctx context.Context, r *run) error {
	job := r.job

	if err := o.begin(ctx, r, bandProbe); err != nil {
		return err
	}
	info, err := o.stages.Probe.Probe(services.WithStage(ctx, bandProbe.stage), job.Input)
	if err != nil {
		return err
	}
	logging.WithContext(ctx, o.logger).Info("input analyzed",
		logging.Int("width", info.Width),
		logging.Int("height", info.Height),
		logging.Float64("fps", info.FPS),
		logging.Float64("duration_seconds", info.Duration),
		logging.Bool("has_audio", info.HasAudio),
	)

	if err := o.begin(ctx, r, bandAudio); err != nil {
		return err
	}
	audio := ""
	if info.HasAudio {
		audio = job.Layout.Audio()
		if err := o.stages.Audio.Run(services.WithStage(ctx, bandAudio.stage), stage.Request{
			JobID:  job.ID,
			Input:  job.Input,
			Output: audio,
		}); err != nil {
			return err
		}
	} else {
		logging.WithContext(ctx, o.logger).Info("input has no audio track; video will be silent",
			logging.String(logging.FieldStage, bandAudio.stage),
		)
	}

	if err := o.begin(ctx, r, bandFrames); err != nil {
		return err
	}
	if err := o.stages.Frames.Run(services.WithStage(ctx, bandFrames.stage), stage.Request{
		JobID:  job.ID,
		Input:  job.Input,
		Output: job.Layout.Frames(),
		Params: stage.Params{FPS: o.extractFPS, FrameFormat: o.frameFormat},
	}); err != nil {
		return err
	}

	if err := o.begin(ctx, r, bandEnhance); err != nil {
		return err
	}
	if err := o.enhance(services.WithStage(ctx, bandEnhance.stage), r); err != nil {
		return err
	}

	if err := o.begin(ctx, r, bandMerge); err != nil {
		return err
	}
	fps := info.FPS
	if o.extractFPS > 0 {
		fps = o.extractFPS
	}
	if fps <= 0 {
		fps = ffprobe.DefaultFPS
	}
	if err := o.stages.Merge.Merge(services.WithStage(ctx, bandMerge.stage), ffmpeg.MergeRequest{
		Request: stage.Request{
			JobID:  job.ID,
			Input:  job.Layout.Enhanced(),
			Output: job.Layout.Merging(),
			Params: stage.Params{FPS: fps, FrameFormat: o.frameFormat},
		},
		Audio: audio,
	}); err != nil {
		return err
	}

	if err := o.begin(ctx, r, bandOptimize); err != nil {
		return err
	}
	if err := o.optimize(services.WithStage(ctx, bandOptimize.stage), r); err != nil {
		return err
	}

	return o.finishCompleted(ctx, r)
}

// begin checks cancellation and marks the start of b.
func (o *Orchestrator) begin(ctx context.Context, r *run, b band) error {
	if r.job.cancelled() {
		return errStopped
	}
	r.current = b
	if _, err := o.store.Update(r.job.ID, jobs.Progressing(jobs.StatusProcessing, b.start, b.message)); err != nil {
		if errors.Is(err, jobs.ErrTerminal) || errors.Is(err, jobs.ErrNotFound) {
			return errStopped
		}
		return err
	}
	logging.WithContext(services.WithStage(ctx, b.stage), o.logger).Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Float64("progress", b.start),
	)
	return nil
}

func (o *Orchestrator) enhance(ctx context.Context, r *run) error {
	job := r.job
	enhancer, err := o.models.Validate(job.Params.Model, job.Params.Scale)
	if err != nil {
		return err
	}
	tasks, err := batch.PlanTasks(job.Layout.Frames(), job.Layout.Enhanced(),
		batch.Params{Model: string(enhancer.Model()), Scale: job.Params.Scale})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(job.Layout.Enhanced(), 0o755); err != nil {
		return services.Wrap(services.ErrTransient, bandEnhance.stage, "prepare", "create enhanced frames directory", err)
	}

	logger := logging.WithContext(ctx, o.logger)
	logger.Info("enhancing frames",
		logging.Int("frames", len(tasks)),
		logging.String("model", string(enhancer.Model())),
		logging.Int("scale", job.Params.Scale),
		logging.Int("workers", o.workers),
	)

	sampler := logging.NewProgressSampler(10)
	result := batch.Run(ctx, tasks, func(ctx context.Context, task batch.Task) error {
		if job.cancelled() {
			return errStopped
		}
		return enhancer.Enhance(ctx, task.Source, task.Destination, task.Scale)
	}, o.workers, func(percent float64, completed, failed int) {
		done := completed + failed
		message := fmt.Sprintf("Enhancing frames: %d/%d", done, len(tasks))
		if _, err := o.store.Update(job.ID, jobs.ProgressOnly(bandEnhance.scale(percent), message)); err != nil {
			return
		}
		if sampler.ShouldLog(percent, bandEnhance.stage) {
			logger.Info("enhancement progress",
				logging.String(logging.FieldEventType, "stage_progress"),
				logging.Int("completed", completed),
				logging.Int("failed", failed),
				logging.Int("total", len(tasks)),
				logging.Float64("percent", percent),
			)
		}
	})
	if job.cancelled() {
		return errStopped
	}
	return result.Err()
}

func (o *Orchestrator) optimize(ctx context.Context, r *run) error {
	job := r.job
	tmp := job.Layout.Optimizing()
	err := o.stages.Optimize.Run(ctx, stage.Request{
		JobID:  job.ID,
		Input:  job.Layout.Merging(),
		Output: tmp,
	})
	if err != nil {
		return err
	}
	if err := fileutil.ReplaceFile(tmp, job.Layout.Output()); err != nil {
		return services.Wrap(services.ErrTransient, bandOptimize.stage, "promote", "move optimized output into place", err)
	}
	_ = os.Remove(job.Layout.Merging())
	return nil
}

// discardOutputs removes scratch files and anything at the final output path
// so only a completed job ever leaves a file there.
func (o *Orchestrator) discardOutputs(ctx context.Context, job Job) {
	for _, path := range append(job.Layout.Intermediates(), job.Layout.Output()) {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.WarnWithContext(logging.WithContext(ctx, o.logger), "failed to remove partial output", "output_cleanup_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove the file manually"),
				logging.String(logging.FieldImpact, "a stale file stays under the output directory until the job is purged"),
			)
		}
	}
}

func (o *Orchestrator) finishCompleted(ctx context.Context, r *run) error {
	if r.job.cancelled() {
		return errStopped
	}
	output := r.job.Layout.Output()
	size := fileutil.FileSize(output)
	message := fmt.Sprintf("Enhancement completed successfully (%s)", humanize.IBytes(uint64(size)))
	rec, err := o.store.Update(r.job.ID, jobs.Progressing(jobs.StatusCompleted, 100, message).WithOutput(output))
	if err != nil {
		if errors.Is(err, jobs.ErrTerminal) || errors.Is(err, jobs.ErrNotFound) {
			return errStopped
		}
		return err
	}
	logging.WithContext(ctx, o.logger).Info("job completed",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.String("output", output),
		logging.Int64("output_bytes", size),
		logging.Duration("elapsed", time.Since(r.started)),
	)
	o.record(ctx, rec, size)
	return nil
}

func (o *Orchestrator) finishFailed(ctx context.Context, r *run, message string, cause error) {
	o.discardOutputs(ctx, r.job)
	if r.job.cancelled() {
		return
	}
	rec, err := o.store.Update(r.job.ID, jobs.Progressing(jobs.StatusFailed, r.current.start, message))
	if err != nil {
		return
	}
	logging.ErrorWithContext(logging.WithContext(services.WithStage(ctx, r.current.stage), o.logger),
		"job failed", "stage_failure",
		logging.String(logging.FieldErrorKind, services.Kind(cause)),
		logging.String(logging.FieldErrorHint, hintFor(cause)),
		logging.Error(cause),
		logging.Duration("elapsed", time.Since(r.started)),
	)
	o.record(ctx, rec, 0)
}

func (o *Orchestrator) record(ctx context.Context, rec jobs.Record, outputSize int64) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.Record(context.WithoutCancel(ctx), history.FromRecord(rec, outputSize)); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "failed to record job history", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check history.path permissions"),
			logging.String(logging.FieldImpact, "job outcome missing from history"),
		)
	}
}

func hintFor(err error) string {
	switch services.Kind(err) {
	case "timeout":
		return "raise ffmpeg.stage_timeout_seconds or enhance.frame_timeout_seconds"
	case "external_tool":
		return "check the external tool output in the error message"
	case "missing_output":
		return "the tool exited cleanly but wrote nothing; check input format"
	case "validation":
		return "check the submitted model and scale"
	default:
		return "check logs for details"
	}
}
