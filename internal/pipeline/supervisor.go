package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"upscaler/internal/history"
	"upscaler/internal/jobs"
	"upscaler/internal/logging"
	"upscaler/internal/services"
	"upscaler/internal/textutil"
	"upscaler/internal/workspace"
)

// Submission is an accepted upload awaiting processing.
type Submission struct {
	// SourceName is the client's original file name; its extension names
	// the stored input.
	SourceName string
	Source     io.Reader
	Model      string
	Scale      int
}

var errShuttingDown = services.Wrap(services.ErrTransient, "submit", "", "supervisor is shutting down", nil)

// handle tracks one running job goroutine.
type handle struct {
	done      chan struct{}
	cancelled atomic.Bool
}

// Supervisor owns job lifecycles.
type Supervisor struct {
	store        jobs.Store
	workspace    *workspace.Manager
	models       ModelLookup
	orchestrator *Orchestrator
	recorder     Recorder
	retention    time.Duration
	logger       *slog.Logger
	now          func() time.Time

	baseCtx context.Context
	stop    context.CancelFunc

	mu      sync.Mutex
	closing bool
	handles map[string]*handle
	runs    sync.WaitGroup
}

// SupervisorOptions configures a Supervisor.
type SupervisorOptions struct {
	Store        jobs.Store
	Workspace    *workspace.Manager
	Models       ModelLookup
	Orchestrator *Orchestrator
	Recorder     Recorder
	// Retention is how long a job is kept after creation.
	Retention time.Duration
	Logger    *slog.Logger
}

// NewSupervisor constructs a Supervisor. Job goroutines run under a context
// owned by the supervisor, not by the submitting request.
func NewSupervisor(opts SupervisorOptions) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		store:        opts.Store,
		workspace:    opts.Workspace,
		models:       opts.Models,
		orchestrator: opts.Orchestrator,
		recorder:     opts.Recorder,
		retention:    opts.Retention,
		logger:       logging.NewComponentLogger(opts.Logger, "supervisor"),
		now:          time.Now,
		baseCtx:      ctx,
		stop:         cancel,
		handles:      make(map[string]*handle),
	}
}

// Submit validates sub, stores the upload in a new workspace, creates the job
// record, and starts processing in the background. Validation failures are
// returned before any job exists.
func (s *Supervisor) Submit(ctx context.Context, sub Submission) (jobs.Record, error) {
	if s.isClosing() {
		return jobs.Record{}, errShuttingDown
	}
	if _, err := s.models.Validate(sub.Model, sub.Scale); err != nil {
		return jobs.Record{}, err
	}
	if sub.Source == nil {
		return jobs.Record{}, services.Wrap(services.ErrValidation, "submit", "", "no video data", nil)
	}
	sourceName := textutil.SanitizeFileName(sub.SourceName)
	ext := strings.ToLower(filepath.Ext(sourceName))
	if ext == "" {
		return jobs.Record{}, services.Wrap(services.ErrValidation, "submit", "", "file name has no extension", nil)
	}

	id := uuid.NewString()
	layout, err := s.workspace.Create(id)
	if err != nil {
		return jobs.Record{}, services.Wrap(services.ErrTransient, "submit", "create workspace", "", err)
	}
	input := layout.Input(ext)
	size, err := storeUpload(ctx, sub.Source, input)
	if err != nil {
		_ = s.workspace.Remove(id)
		return jobs.Record{}, services.Wrap(services.ErrTransient, "submit", "store upload", "", err)
	}

	params := jobs.Params{Model: strings.ToLower(strings.TrimSpace(sub.Model)), Scale: sub.Scale}
	rec, err := s.store.Create(jobs.Record{
		ID:         id,
		Status:     jobs.StatusUploaded,
		Message:    "Video uploaded successfully, processing queued",
		Params:     params,
		SourceName: sourceName,
		SourceSize: size,
	})
	if err != nil {
		_ = s.workspace.Remove(id)
		return jobs.Record{}, fmt.Errorf("create job record: %w", err)
	}

	h := &handle{done: make(chan struct{})}
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = s.workspace.Remove(id)
		_ = s.store.Delete(id)
		return jobs.Record{}, errShuttingDown
	}
	s.handles[id] = h
	s.runs.Add(1)
	s.mu.Unlock()

	logger := logging.WithContext(services.WithJobID(ctx, id), s.logger)
	logger.Info("job submitted",
		logging.String(logging.FieldEventType, "job_submitted"),
		logging.String("filename", rec.SourceName),
		logging.Int64("file_size", size),
		logging.String("model", params.Model),
		logging.Int("scale", params.Scale),
	)

	go s.run(h, Job{
		ID:        id,
		Input:     input,
		Layout:    layout,
		Params:    params,
		Cancelled: h.cancelled.Load,
	})
	return rec, nil
}

func (s *Supervisor) run(h *handle, job Job) {
	defer s.runs.Done()
	defer close(h.done)
	defer func() {
		s.mu.Lock()
		delete(s.handles, job.ID)
		s.mu.Unlock()
	}()

	s.orchestrator.Run(s.baseCtx, job)

	// A cancelled job was purged while a stage may still have been writing;
	// sweep again now that nothing else touches its directories.
	if h.cancelled.Load() {
		if err := s.workspace.Remove(job.ID); err != nil {
			s.logger.Warn("failed to remove cancelled job artifacts",
				logging.String(logging.FieldJobID, job.ID),
				logging.Error(err),
			)
		}
	}
}

// Cancel stops a job and purges it with its artifacts. Terminal jobs are
// purged directly.
func (s *Supervisor) Cancel(ctx context.Context, id string) error {
	rec, err := s.store.Get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	h := s.handles[id]
	s.mu.Unlock()
	if h != nil {
		h.cancelled.Store(true)
	}

	if rec.Status.IsActive() {
		// Progress is left untouched so the record keeps whatever the
		// orchestrator last wrote under the same lock.
		cancelled, err := s.store.Update(id, jobs.StatusOnly(jobs.StatusCancelled, "Job cancelled"))
		switch {
		case err == nil:
			logging.WithContext(services.WithJobID(ctx, id), s.logger).Info("job cancelled",
				logging.String(logging.FieldEventType, "job_cancelled"),
				logging.Float64("progress", cancelled.Progress),
			)
			s.record(ctx, cancelled)
		case errors.Is(err, jobs.ErrTerminal):
			// Finished between Get and Update; purge what it produced.
		default:
			return err
		}
	}
	return s.Purge(id)
}

// Purge removes a job's artifacts and then its record. The record is kept
// when artifact removal fails so the next sweep can retry.
func (s *Supervisor) Purge(id string) error {
	if _, err := s.store.Get(id); err != nil {
		return err
	}
	if err := s.workspace.Remove(id); err != nil {
		return err
	}
	if err := s.store.Delete(id); err != nil && !errors.Is(err, jobs.ErrNotFound) {
		return err
	}
	return nil
}

// Status returns the polling view of a job.
func (s *Supervisor) Status(id string) (jobs.View, error) {
	rec, err := s.store.Get(id)
	if err != nil {
		return jobs.View{}, err
	}
	return jobs.NewView(rec, s.now()), nil
}

// Get returns the full record of a job.
func (s *Supervisor) Get(id string) (jobs.Record, error) {
	return s.store.Get(id)
}

// Wait blocks until the job's goroutine exits or ctx ends.
func (s *Supervisor) Wait(ctx context.Context, id string) error {
	s.mu.Lock()
	h := s.handles[id]
	s.mu.Unlock()
	if h == nil {
		if _, err := s.store.Get(id); err != nil {
			return err
		}
		return nil
	}
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PurgeExpired purges every job created at least the retention window before
// now. Jobs still running are cancelled first. It returns the number purged.
func (s *Supervisor) PurgeExpired(ctx context.Context, now time.Time) int {
	if s.retention <= 0 {
		return 0
	}
	purged := 0
	for _, rec := range s.store.List() {
		if now.Sub(rec.CreatedAt) < s.retention {
			continue
		}
		var err error
		if rec.Status.IsActive() {
			err = s.Cancel(ctx, rec.ID)
		} else {
			err = s.Purge(rec.ID)
		}
		if err != nil {
			if !errors.Is(err, jobs.ErrNotFound) {
				logging.WarnWithContext(s.logger, "failed to purge expired job", "retention_purge_failed",
					logging.String(logging.FieldJobID, rec.ID),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check work_dir and output_dir permissions"),
					logging.String(logging.FieldImpact, "job kept until the next sweep"),
				)
			}
			continue
		}
		purged++
		s.logger.Info("purged expired job",
			logging.String(logging.FieldJobID, rec.ID),
			logging.String("status", string(rec.Status)),
			logging.String(logging.FieldEventType, "retention_purge"),
		)
	}
	return purged
}

// ActiveIDs returns the ids of every job the store knows about.
func (s *Supervisor) ActiveIDs() map[string]struct{} {
	recs := s.store.List()
	ids := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		ids[rec.ID] = struct{}{}
	}
	return ids
}

// Shutdown stops accepting work and waits for running jobs. When ctx ends
// first, running external processes are killed and Shutdown waits for the
// goroutines to observe it.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.stop()
		return nil
	case <-ctx.Done():
		s.stop()
		<-done
		return ctx.Err()
	}
}

func (s *Supervisor) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Supervisor) record(ctx context.Context, rec jobs.Record) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(context.WithoutCancel(ctx), history.FromRecord(rec, 0)); err != nil {
		s.logger.Warn("failed to record job history", logging.String(logging.FieldJobID, rec.ID), logging.Error(err))
	}
}

func storeUpload(ctx context.Context, src io.Reader, path string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	written, err := io.Copy(file, src)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, err
	}
	if written == 0 {
		return 0, errors.New("upload is empty")
	}
	return written, nil
}
