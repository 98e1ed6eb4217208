package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"upscaler/internal/enhance"
	"upscaler/internal/history"
	"upscaler/internal/jobs"
	"upscaler/internal/logging"
	"upscaler/internal/media/ffmpeg"
	"upscaler/internal/media/ffprobe"
	"upscaler/internal/stage"
	"upscaler/internal/workspace"
)

// recordingStore captures every successful write so tests can check the
// observed status path.
type recordingStore struct {
	*jobs.MemoryStore
	mu      sync.Mutex
	history map[string][]jobs.Record
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: jobs.NewMemoryStore(), history: make(map[string][]jobs.Record)}
}

func (s *recordingStore) Create(rec jobs.Record) (jobs.Record, error) {
	out, err := s.MemoryStore.Create(rec)
	if err == nil {
		s.append(out)
	}
	return out, err
}

func (s *recordingStore) Update(id string, update jobs.Update) (jobs.Record, error) {
	out, err := s.MemoryStore.Update(id, update)
	if err == nil {
		s.append(out)
	}
	return out, err
}

func (s *recordingStore) append(rec jobs.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[rec.ID] = append(s.history[rec.ID], rec)
}

func (s *recordingStore) writes(id string) []jobs.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]jobs.Record(nil), s.history[id]...)
}

type fakeProber struct {
	info ffprobe.VideoInfo
	err  error
}

func (p fakeProber) Probe(context.Context, string) (ffprobe.VideoInfo, error) { return p.info, p.err }
func (p fakeProber) HealthCheck(context.Context) stage.Health                 { return stage.Healthy("probe") }

// fakeAdapter runs fn and then verifies the declared output like a real adapter.
type fakeAdapter struct {
	name string
	fn   func(ctx context.Context, req stage.Request) error
}

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) Run(ctx context.Context, req stage.Request) error {
	if a.fn != nil {
		if err := a.fn(ctx, req); err != nil {
			return err
		}
	}
	return stage.VerifyOutput(a.name, req.Output)
}

func (a *fakeAdapter) HealthCheck(context.Context) stage.Health { return stage.Healthy(a.name) }

type fakeMerger struct {
	fakeAdapter
	mu          sync.Mutex
	framesSeen  int
	audioPassed string
}

func (m *fakeMerger) Merge(ctx context.Context, req ffmpeg.MergeRequest) error {
	entries, err := os.ReadDir(req.Input)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.framesSeen = len(entries)
	m.audioPassed = req.Audio
	m.mu.Unlock()
	return m.Run(ctx, req.Request)
}

func writeOutput(_ context.Context, req stage.Request) error {
	return os.WriteFile(req.Output, []byte("media"), 0o644)
}

func writeFrames(n int) func(context.Context, stage.Request) error {
	return func(_ context.Context, req stage.Request) error {
		for i := 1; i <= n; i++ {
			name := filepath.Join(req.Output, fmt.Sprintf("frame_%06d.png", i))
			if err := os.WriteFile(name, []byte("frame"), 0o644); err != nil {
				return err
			}
		}
		return nil
	}
}

// flakyEnhancer fails on the listed frame names and copies the rest.
type flakyEnhancer struct {
	enhance.Passthrough
	fail map[string]bool
}

func (f flakyEnhancer) Model() enhance.Model { return enhance.ModelWaifu2x }
func (f flakyEnhancer) Scales() []int        { return []int{2, 4} }

func (f flakyEnhancer) Enhance(ctx context.Context, src, dst string, scale int) error {
	if f.fail[filepath.Base(src)] {
		return errors.New("vulkan device lost")
	}
	return f.Passthrough.Enhance(ctx, src, dst, scale)
}

type memoryRecorder struct {
	mu      sync.Mutex
	entries []history.Entry
}

func (r *memoryRecorder) Record(_ context.Context, entry history.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memoryRecorder) all() []history.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]history.Entry(nil), r.entries...)
}

type harness struct {
	store      *recordingStore
	workspace  *workspace.Manager
	supervisor *Supervisor
	merger     *fakeMerger
	recorder   *memoryRecorder
}

func defaultStages(frames int) (Stages, *fakeMerger) {
	merger := &fakeMerger{fakeAdapter: fakeAdapter{name: "merge", fn: writeOutput}}
	return Stages{
		Probe:    fakeProber{info: ffprobe.VideoInfo{Width: 64, Height: 36, FPS: 24, HasAudio: true, Frames: frames}},
		Audio:    &fakeAdapter{name: "audio", fn: writeOutput},
		Frames:   &fakeAdapter{name: "frames", fn: writeFrames(frames)},
		Merge:    merger,
		Optimize: &fakeAdapter{name: "optimize", fn: writeOutput},
	}, merger
}

func newHarness(t *testing.T, stages Stages, models ...enhance.Enhancer) *harness {
	t.Helper()
	base := t.TempDir()
	if len(models) == 0 {
		models = []enhance.Enhancer{enhance.Passthrough{}}
	}
	registry := enhance.NewRegistryWith(logging.NewNop(), models...)
	store := newRecordingStore()
	ws := workspace.New(filepath.Join(base, "processing"), filepath.Join(base, "output"), logging.NewNop())
	recorder := &memoryRecorder{}
	orch := NewOrchestrator(OrchestratorOptions{
		Store:    store,
		Stages:   stages,
		Models:   registry,
		Recorder: recorder,
		Workers:  2,
		Logger:   logging.NewNop(),
	})
	sup := NewSupervisor(SupervisorOptions{
		Store:        store,
		Workspace:    ws,
		Models:       registry,
		Orchestrator: orch,
		Recorder:     recorder,
		Retention:    24 * time.Hour,
		Logger:       logging.NewNop(),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sup.Shutdown(ctx)
	})
	h := &harness{store: store, workspace: ws, supervisor: sup, recorder: recorder}
	if m, ok := stages.Merge.(*fakeMerger); ok {
		h.merger = m
	}
	return h
}

func (h *harness) submit(t *testing.T, model string, scale int) jobs.Record {
	t.Helper()
	rec, err := h.supervisor.Submit(context.Background(), Submission{
		SourceName: "clip.mp4",
		Source:     strings.NewReader("synthetic video bytes"),
		Model:      model,
		Scale:      scale,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return rec
}

func (h *harness) wait(t *testing.T, id string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.supervisor.Wait(ctx, id); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

// assertStatusPath checks that no write follows a terminal status and that
// statuses only move forward.
func assertStatusPath(t *testing.T, writes []jobs.Record) {
	t.Helper()
	rank := map[jobs.Status]int{jobs.StatusUploaded: 0, jobs.StatusProcessing: 1}
	last := -1
	for i, rec := range writes {
		if i > 0 && writes[i-1].Status.IsTerminal() {
			t.Fatalf("write %d (%s) follows terminal status %s", i, rec.Status, writes[i-1].Status)
		}
		r, ok := rank[rec.Status]
		if !ok {
			r = 2
		}
		if r < last {
			t.Fatalf("status went backwards to %s at write %d", rec.Status, i)
		}
		last = r
	}
}

func fakeInfoWithoutAudio() ffprobe.VideoInfo {
	return ffprobe.VideoInfo{Width: 64, Height: 36, FPS: 30, Frames: 2}
}
