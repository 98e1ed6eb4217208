package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"upscaler/internal/jobs"
	"upscaler/internal/logging"
	"upscaler/internal/services"
	"upscaler/internal/stage"
	"upscaler/internal/workspace"
)

func TestHappyPathCompletes(t *testing.T) {
	stages, merger := defaultStages(3)
	h := newHarness(t, stages)

	rec := h.submit(t, "test", 2)
	if rec.Status != jobs.StatusUploaded || rec.SourceName != "clip.mp4" || rec.SourceSize == 0 {
		t.Fatalf("unexpected submitted record %+v", rec)
	}
	h.wait(t, rec.ID)

	final, err := h.store.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if final.Status != jobs.StatusCompleted || final.Progress != 100 {
		t.Fatalf("expected completed at 100, got %s at %v", final.Status, final.Progress)
	}
	if !strings.Contains(final.Message, "completed") {
		t.Fatalf("unexpected completion message %q", final.Message)
	}
	if _, err := os.Stat(final.OutputRef); err != nil {
		t.Fatalf("output artifact missing: %v", err)
	}
	if merger.framesSeen != 3 {
		t.Fatalf("expected 3 enhanced frames before merge, saw %d", merger.framesSeen)
	}
	if merger.audioPassed == "" {
		t.Fatal("expected extracted audio passed to merge")
	}

	writes := h.store.writes(rec.ID)
	assertStatusPath(t, writes)
	last := -1.0
	for _, w := range writes {
		if w.Status != jobs.StatusProcessing {
			continue
		}
		if w.Progress < last {
			t.Fatalf("progress decreased from %v to %v", last, w.Progress)
		}
		last = w.Progress
	}

	entries := h.recorder.all()
	if len(entries) != 1 || entries[0].Status != jobs.StatusCompleted || entries[0].OutputSize == 0 {
		t.Fatalf("expected one completed history entry, got %+v", entries)
	}
}

func TestOptimizeReplacesMergedOutput(t *testing.T) {
	stages, _ := defaultStages(2)
	stages.Optimize = &fakeAdapter{name: "optimize", fn: func(_ context.Context, req stage.Request) error {
		return os.WriteFile(req.Output, []byte("optimized"), 0o644)
	}}
	h := newHarness(t, stages)
	rec := h.submit(t, "test", 2)
	h.wait(t, rec.ID)

	final, _ := h.store.Get(rec.ID)
	data, err := os.ReadFile(final.OutputRef)
	if err != nil || string(data) != "optimized" {
		t.Fatalf("expected optimized artifact at output ref, got %q err=%v", data, err)
	}
	layout, _ := h.workspace.Layout(rec.ID)
	if _, err := os.Stat(layout.Optimizing()); !os.IsNotExist(err) {
		t.Fatalf("temp optimize file should be gone, stat err=%v", err)
	}
}

func TestStageFailureFreezesProgress(t *testing.T) {
	stages, _ := defaultStages(3)
	stages.Audio = &fakeAdapter{name: "audio", fn: func(context.Context, stage.Request) error {
		return services.Wrap(services.ErrExternalTool, "audio", "ffmpeg", "exit status 1", nil)
	}}
	h := newHarness(t, stages)

	rec := h.submit(t, "test", 2)
	h.wait(t, rec.ID)

	final, err := h.store.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if final.Status != jobs.StatusFailed {
		t.Fatalf("expected failed, got %s", final.Status)
	}
	if final.Progress != 0 {
		t.Fatalf("expected progress frozen at 0, got %v", final.Progress)
	}
	if final.Message == "" || !strings.Contains(final.Message, "Audio extraction failed") {
		t.Fatalf("unexpected failure message %q", final.Message)
	}
	layout, _ := h.workspace.Layout(rec.ID)
	if _, err := os.Stat(layout.Output()); !os.IsNotExist(err) {
		t.Fatalf("no output artifact expected, stat err=%v", err)
	}
	assertStatusPath(t, h.store.writes(rec.ID))
}

func TestLateStageFailureLeavesNoOutput(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*Stages)
		message string
	}{
		{
			name: "merge",
			setup: func(s *Stages) {
				s.Merge = &fakeMerger{fakeAdapter: fakeAdapter{name: "merge", fn: func(_ context.Context, req stage.Request) error {
					_ = os.WriteFile(req.Output, []byte("parts"), 0o644)
					return services.Wrap(services.ErrExternalTool, "merge", "ffmpeg", "muxer crashed", nil)
				}}}
			},
			message: "muxer crashed",
		},
		{
			name: "optimize",
			setup: func(s *Stages) {
				s.Optimize = &fakeAdapter{name: "optimize", fn: func(_ context.Context, req stage.Request) error {
					_ = os.WriteFile(req.Output, []byte("half"), 0o644)
					return services.Wrap(services.ErrExternalTool, "optimize", "ffmpeg", "x264 crash", nil)
				}}
			},
			message: "x264 crash",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stages, _ := defaultStages(2)
			tt.setup(&stages)
			h := newHarness(t, stages)

			rec := h.submit(t, "test", 2)
			h.wait(t, rec.ID)

			final, err := h.store.Get(rec.ID)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if final.Status != jobs.StatusFailed {
				t.Fatalf("expected failed, got %s", final.Status)
			}
			if !strings.Contains(final.Message, tt.message) {
				t.Fatalf("message %q should mention %q", final.Message, tt.message)
			}
			if final.OutputRef != "" {
				t.Fatalf("failed job must not reference an output, got %q", final.OutputRef)
			}
			layout, _ := h.workspace.Layout(rec.ID)
			for _, path := range append(layout.Intermediates(), layout.Output()) {
				if _, err := os.Stat(path); !os.IsNotExist(err) {
					t.Fatalf("%s should not exist after a failed run, stat err=%v", path, err)
				}
			}
			assertStatusPath(t, h.store.writes(rec.ID))
		})
	}
}

func TestPartialBatchFailureFailsJob(t *testing.T) {
	stages, merger := defaultStages(10)
	h := newHarness(t, stages, flakyEnhancer{fail: map[string]bool{
		"frame_000003.png": true,
		"frame_000007.png": true,
	}})

	rec := h.submit(t, "waifu2x", 2)
	h.wait(t, rec.ID)

	final, _ := h.store.Get(rec.ID)
	if final.Status != jobs.StatusFailed {
		t.Fatalf("expected failed, got %s", final.Status)
	}
	if final.Progress != bandEnhance.start {
		t.Fatalf("expected progress frozen at %v, got %v", bandEnhance.start, final.Progress)
	}
	if !strings.Contains(final.Message, "2 of 10 frames failed") {
		t.Fatalf("unexpected message %q", final.Message)
	}
	if merger.framesSeen != 0 {
		t.Fatal("merge must not run after a partial batch failure")
	}
}

func TestPanicBecomesFailure(t *testing.T) {
	stages, _ := defaultStages(3)
	stages.Frames = &fakeAdapter{name: "frames", fn: func(context.Context, stage.Request) error {
		panic("nil frame buffer")
	}}
	h := newHarness(t, stages)
	rec := h.submit(t, "test", 2)
	h.wait(t, rec.ID)

	final, _ := h.store.Get(rec.ID)
	if final.Status != jobs.StatusFailed || !strings.HasPrefix(final.Message, "pipeline error:") {
		t.Fatalf("expected pipeline error failure, got %s %q", final.Status, final.Message)
	}
	if final.Progress != bandFrames.start {
		t.Fatalf("expected progress frozen at %v, got %v", bandFrames.start, final.Progress)
	}
}

func TestSilentInputSkipsAudio(t *testing.T) {
	stages, merger := defaultStages(2)
	stages.Probe = fakeProber{info: fakeInfoWithoutAudio()}
	audioCalled := false
	stages.Audio = &fakeAdapter{name: "audio", fn: func(context.Context, stage.Request) error {
		audioCalled = true
		return nil
	}}
	h := newHarness(t, stages)
	rec := h.submit(t, "test", 2)
	h.wait(t, rec.ID)

	final, _ := h.store.Get(rec.ID)
	if final.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed, got %s: %s", final.Status, final.Message)
	}
	if audioCalled || merger.audioPassed != "" {
		t.Fatal("audio stage should be skipped for inputs without audio")
	}
}

func TestCancelMidProcessing(t *testing.T) {
	stages, _ := defaultStages(3)
	entered := make(chan struct{})
	release := make(chan struct{})
	frames := stages.Frames.(*fakeAdapter).fn
	stages.Frames = &fakeAdapter{name: "frames", fn: func(ctx context.Context, req stage.Request) error {
		close(entered)
		<-release
		return frames(ctx, req)
	}}
	h := newHarness(t, stages)
	rec := h.submit(t, "test", 2)

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("frames stage never started")
	}

	if err := h.supervisor.Cancel(context.Background(), rec.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := h.supervisor.Status(rec.ID); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected NotFound right after cancel, got %v", err)
	}
	if h.workspace.Exists(rec.ID) {
		t.Fatal("artifacts should be purged on cancel")
	}

	close(release)
	h.wait(t, rec.ID)

	if _, err := h.supervisor.Status(rec.ID); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("status must stay NotFound after the run exits, got %v", err)
	}
	if h.workspace.Exists(rec.ID) {
		t.Fatal("late stage writes must be swept after the run exits")
	}
	writes := h.store.writes(rec.ID)
	assertStatusPath(t, writes)
	if writes[len(writes)-1].Status != jobs.StatusCancelled {
		t.Fatalf("last write should be cancelled, got %s", writes[len(writes)-1].Status)
	}
	entries := h.recorder.all()
	if len(entries) != 1 || entries[0].Status != jobs.StatusCancelled {
		t.Fatalf("expected one cancelled history entry, got %+v", entries)
	}
}

// advancingStore moves a job's progress right after a Get, the way a running
// orchestrator can between a reader's Get and its Update.
type advancingStore struct {
	*recordingStore
	advanceTo float64
	once      sync.Once
}

func (s *advancingStore) Get(id string) (jobs.Record, error) {
	rec, err := s.recordingStore.Get(id)
	if err == nil {
		s.once.Do(func() {
			_, _ = s.recordingStore.Update(id, jobs.ProgressOnly(s.advanceTo, "Enhancing frames"))
		})
	}
	return rec, err
}

func TestCancelKeepsLatestProgress(t *testing.T) {
	base := t.TempDir()
	store := &advancingStore{recordingStore: newRecordingStore(), advanceTo: 55}
	ws := workspace.New(filepath.Join(base, "processing"), filepath.Join(base, "output"), logging.NewNop())
	recorder := &memoryRecorder{}
	sup := NewSupervisor(SupervisorOptions{
		Store:     store,
		Workspace: ws,
		Recorder:  recorder,
		Retention: time.Hour,
		Logger:    logging.NewNop(),
	})

	const id = "job-in-flight"
	if _, err := store.recordingStore.Create(jobs.Record{ID: id, Params: jobs.Params{Model: "test", Scale: 2}}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.recordingStore.Update(id, jobs.Progressing(jobs.StatusProcessing, 20, "Extracting frames")); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := ws.Create(id); err != nil {
		t.Fatalf("workspace Create: %v", err)
	}

	if err := sup.Cancel(context.Background(), id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	writes := store.writes(id)
	last := writes[len(writes)-1]
	if last.Status != jobs.StatusCancelled {
		t.Fatalf("last write should be cancelled, got %s", last.Status)
	}
	if last.Progress != 55 {
		t.Fatalf("cancel must keep the latest progress 55, got %v", last.Progress)
	}
	assertStatusPath(t, writes)
	entries := recorder.all()
	if len(entries) != 1 || entries[0].Status != jobs.StatusCancelled {
		t.Fatalf("expected one cancelled history entry, got %+v", entries)
	}
}

func TestCancelUnknownJob(t *testing.T) {
	stages, _ := defaultStages(1)
	h := newHarness(t, stages)
	if err := h.supervisor.Cancel(context.Background(), "missing"); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := h.supervisor.Wait(context.Background(), "missing"); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Wait, got %v", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	stages, _ := defaultStages(1)
	h := newHarness(t, stages)
	cases := []Submission{
		{SourceName: "clip.mp4", Source: strings.NewReader("x"), Model: "anime4k", Scale: 2},
		{SourceName: "clip.mp4", Source: strings.NewReader("x"), Model: "test", Scale: 3},
		{SourceName: "clip", Source: strings.NewReader("x"), Model: "test", Scale: 2},
		{SourceName: "clip.mp4", Model: "test", Scale: 2},
	}
	for i, sub := range cases {
		if _, err := h.supervisor.Submit(context.Background(), sub); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
	if n := len(h.store.List()); n != 0 {
		t.Fatalf("rejected submissions must not create jobs, found %d", n)
	}
}

func TestPurgeExpired(t *testing.T) {
	stages, _ := defaultStages(1)
	h := newHarness(t, stages)
	rec := h.submit(t, "test", 2)
	h.wait(t, rec.ID)

	if n := h.supervisor.PurgeExpired(context.Background(), time.Now()); n != 0 {
		t.Fatalf("fresh job should not expire, purged %d", n)
	}
	n := h.supervisor.PurgeExpired(context.Background(), time.Now().Add(25*time.Hour))
	if n != 1 {
		t.Fatalf("expected 1 purged job, got %d", n)
	}
	if _, err := h.store.Get(rec.ID); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("record should be gone, got %v", err)
	}
	if h.workspace.Exists(rec.ID) {
		t.Fatal("artifacts should be gone together with the record")
	}
}

func TestStatusEstimate(t *testing.T) {
	stages, _ := defaultStages(1)
	h := newHarness(t, stages)
	rec := h.submit(t, "test", 2)
	h.wait(t, rec.ID)

	view, err := h.supervisor.Status(rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if view.EstimatedCompletion != nil {
		t.Fatal("completed jobs carry no estimate")
	}
}

func TestShutdownRejectsNewWork(t *testing.T) {
	stages, _ := defaultStages(1)
	h := newHarness(t, stages)
	if err := h.supervisor.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	_, err := h.supervisor.Submit(context.Background(), Submission{SourceName: "a.mp4", Source: strings.NewReader("x"), Model: "test", Scale: 2})
	if err == nil {
		t.Fatal("expected submit after shutdown to fail")
	}
}

func TestBandScale(t *testing.T) {
	if got := bandEnhance.scale(50); got != 50 {
		t.Fatalf("enhance 50%% = %v, want 50", got)
	}
	if got := bandEnhance.scale(100); got != 80 {
		t.Fatalf("enhance 100%% = %v, want 80", got)
	}
	if got := bandEnhance.scale(-5); got != 20 {
		t.Fatalf("enhance -5%% = %v, want 20", got)
	}
}

func TestSubmitSanitizesSourceName(t *testing.T) {
	stages, _ := defaultStages(1)
	h := newHarness(t, stages)

	rec, err := h.supervisor.Submit(context.Background(), Submission{
		SourceName: `..\uploads\Part 1: Start.MKV`,
		Source:     strings.NewReader("synthetic video bytes"),
		Model:      "test",
		Scale:      2,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rec.SourceName != "Part 1- Start.MKV" {
		t.Fatalf("source name = %q", rec.SourceName)
	}
	h.wait(t, rec.ID)
}
