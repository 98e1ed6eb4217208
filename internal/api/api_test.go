package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upscaler/internal/enhance"
	"upscaler/internal/history"
	"upscaler/internal/jobs"
	"upscaler/internal/pipeline"
	"upscaler/internal/services"
	"upscaler/internal/stage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeJobs struct {
	mu        sync.Mutex
	records   map[string]jobs.Record
	submitted []pipeline.Submission
	payloads  [][]byte
	cancelled []string
	submitErr error
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{records: map[string]jobs.Record{}}
}

func (f *fakeJobs) Submit(_ context.Context, sub pipeline.Submission) (jobs.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return jobs.Record{}, f.submitErr
	}
	data, err := io.ReadAll(sub.Source)
	if err != nil {
		return jobs.Record{}, err
	}
	rec := jobs.Record{
		ID:         fmt.Sprintf("job-%d", len(f.submitted)+1),
		Status:     jobs.StatusUploaded,
		Params:     jobs.Params{Model: sub.Model, Scale: sub.Scale},
		SourceName: sub.SourceName,
		SourceSize: int64(len(data)),
	}
	f.submitted = append(f.submitted, sub)
	f.payloads = append(f.payloads, data)
	f.records[rec.ID] = rec
	return rec, nil
}

func (f *fakeJobs) Status(id string) (jobs.View, error) {
	rec, err := f.Get(id)
	if err != nil {
		return jobs.View{}, err
	}
	return jobs.NewView(rec, time.Now()), nil
}

func (f *fakeJobs) Get(id string) (jobs.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return jobs.Record{}, jobs.ErrNotFound
	}
	return rec, nil
}

func (f *fakeJobs) Cancel(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[id]; !ok {
		return jobs.ErrNotFound
	}
	delete(f.records, id)
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeJobs) put(rec jobs.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[rec.ID] = rec
}

type staticCatalog []enhance.Info

func (c staticCatalog) Describe() []enhance.Info { return c }

type fakeHistory struct {
	entries []history.Entry
	limit   int
}

func (f *fakeHistory) List(_ context.Context, limit int) ([]history.Entry, error) {
	f.limit = limit
	if limit < len(f.entries) {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

func testCatalog() staticCatalog {
	return staticCatalog{
		{Name: "waifu2x", DisplayName: "Waifu2x", Description: "anime", Scales: []int{2, 4}, Available: true},
		{Name: "esrgan", DisplayName: "Real-ESRGAN", Description: "general", Scales: []int{2, 4}, Available: false, Detail: "binary not found"},
		{Name: "test", DisplayName: "Test", Description: "passthrough", Scales: []int{1, 2, 4}, Available: true},
	}
}

func newTestRouter(svc JobService, hist HistoryReader) *gin.Engine {
	return NewRouter(Options{
		Jobs:              svc,
		Models:            testCatalog(),
		History:           hist,
		Health:            func(context.Context) []stage.Health { return []stage.Health{stage.Healthy("ffmpeg")} },
		MaxUploadBytes:    1024,
		AllowedExtensions: []string{".mp4", "mkv"},
		DefaultModel:      "waifu2x",
		DefaultScale:      2,
	})
}

type uploadPart struct {
	name        string
	contentType string
	data        []byte
}

func uploadRequest(t *testing.T, part uploadPart, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, part.name))
	if part.contentType != "" {
		header.Set("Content-Type", part.contentType)
	}
	w, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = w.Write(part.data)
	require.NoError(t, err)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/enhance_video", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestRootAndHealth(t *testing.T) {
	router := newTestRouter(newFakeJobs(), nil)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"running"`)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status  string         `json:"status"`
		Service string         `json:"service"`
		Stages  []stage.Health `json:"stages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "upscaler", body.Service)
	require.Len(t, body.Stages, 1)
	assert.True(t, body.Stages[0].Ready)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestEnhanceVideoAccepted(t *testing.T) {
	svc := newFakeJobs()
	router := newTestRouter(svc, nil)

	req := uploadRequest(t, uploadPart{name: "clip.MP4", data: []byte("video-bytes")}, map[string]string{"model": "test", "scale": "4"})
	rec := serve(router, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var body EnhanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "job-1", body.JobID)
	assert.Equal(t, jobs.StatusUploaded, body.Status)
	assert.Equal(t, "clip.MP4", body.Filename)
	assert.Equal(t, int64(len("video-bytes")), body.FileSize)
	assert.Equal(t, "test", body.Model)
	assert.Equal(t, 4, body.Scale)

	require.Len(t, svc.payloads, 1)
	assert.Equal(t, "video-bytes", string(svc.payloads[0]))
}

func TestEnhanceVideoDefaults(t *testing.T) {
	svc := newFakeJobs()
	router := newTestRouter(svc, nil)

	rec := serve(router, uploadRequest(t, uploadPart{name: "clip.mkv", data: []byte("x")}, nil))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Len(t, svc.submitted, 1)
	assert.Equal(t, "waifu2x", svc.submitted[0].Model)
	assert.Equal(t, 2, svc.submitted[0].Scale)
}

func TestEnhanceVideoContentTypeFallback(t *testing.T) {
	svc := newFakeJobs()
	router := newTestRouter(svc, nil)

	rec := serve(router, uploadRequest(t, uploadPart{name: "recording", contentType: "video/quicktime", data: []byte("x")}, nil))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Len(t, svc.submitted, 1)
	assert.Equal(t, "recording.mov", svc.submitted[0].SourceName)
}

func TestEnhanceVideoRejections(t *testing.T) {
	tests := []struct {
		name    string
		part    uploadPart
		fields  map[string]string
		status  int
		message string
	}{
		{
			name:    "not a video",
			part:    uploadPart{name: "notes.txt", contentType: "text/plain", data: []byte("x")},
			status:  http.StatusBadRequest,
			message: "Invalid file type. Please upload a video file.",
		},
		{
			name:    "scale not a number",
			part:    uploadPart{name: "clip.mp4", data: []byte("x")},
			fields:  map[string]string{"scale": "two"},
			status:  http.StatusBadRequest,
			message: "scale must be an integer",
		},
		{
			name:    "model unavailable",
			part:    uploadPart{name: "clip.mp4", data: []byte("x")},
			fields:  map[string]string{"model": "esrgan"},
			status:  http.StatusBadRequest,
			message: "Model 'esrgan' not available. Available models: waifu2x, test",
		},
		{
			name:   "too large",
			part:   uploadPart{name: "clip.mp4", data: bytes.Repeat([]byte("x"), 2048)},
			status: http.StatusRequestEntityTooLarge,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := newFakeJobs()
			router := newTestRouter(svc, nil)
			rec := serve(router, uploadRequest(t, tc.part, tc.fields))
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			if tc.message != "" {
				assert.Equal(t, tc.message, decodeError(t, rec).Message)
			}
			assert.Empty(t, svc.submitted)
		})
	}
}

func TestEnhanceVideoMissingFile(t *testing.T) {
	router := newTestRouter(newFakeJobs(), nil)
	req := httptest.NewRequest(http.MethodPost, "/enhance_video", nil)
	rec := serve(router, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnhanceVideoValidationFromSupervisor(t *testing.T) {
	svc := newFakeJobs()
	svc.submitErr = services.Wrap(services.ErrValidation, "submit", "", "scale 3 not supported by waifu2x", nil)
	router := newTestRouter(svc, nil)

	rec := serve(router, uploadRequest(t, uploadPart{name: "clip.mp4", data: []byte("x")}, map[string]string{"scale": "3"}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Message, "scale 3 not supported")
}

func TestStatus(t *testing.T) {
	svc := newFakeJobs()
	svc.put(jobs.Record{ID: "abc", Status: jobs.StatusProcessing, Progress: 50, Message: "Enhancing frames..."})
	router := newTestRouter(svc, nil)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/status/abc", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var view jobs.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "abc", view.JobID)
	assert.Equal(t, 50.0, view.Progress)
	require.NotNil(t, view.EstimatedCompletion)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/status/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Job not found", decodeError(t, rec).Message)
}

func TestDownload(t *testing.T) {
	output := filepath.Join(t.TempDir(), "enhanced.mp4")
	require.NoError(t, os.WriteFile(output, []byte("enhanced"), 0o644))

	svc := newFakeJobs()
	svc.put(jobs.Record{ID: "done", Status: jobs.StatusCompleted, OutputRef: output})
	svc.put(jobs.Record{ID: "gone", Status: jobs.StatusCompleted, OutputRef: filepath.Join(t.TempDir(), "missing.mp4")})
	svc.put(jobs.Record{ID: "busy", Status: jobs.StatusProcessing})
	svc.put(jobs.Record{ID: "queued", Status: jobs.StatusUploaded})
	svc.put(jobs.Record{ID: "bad", Status: jobs.StatusFailed, Message: "Frame enhancement failed: boom"})
	router := newTestRouter(svc, nil)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/download/done", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "enhanced", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "enhanced_done.mp4")

	for id, want := range map[string]int{
		"gone":    http.StatusNotFound,
		"busy":    http.StatusAccepted,
		"queued":  http.StatusAccepted,
		"bad":     http.StatusBadRequest,
		"missing": http.StatusNotFound,
	} {
		rec := serve(router, httptest.NewRequest(http.MethodGet, "/download/"+id, nil))
		assert.Equal(t, want, rec.Code, id)
	}

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/download/busy", nil))
	assert.Equal(t, "processing", decodeError(t, rec).Code)
}

func TestCancel(t *testing.T) {
	svc := newFakeJobs()
	svc.put(jobs.Record{ID: "abc", Status: jobs.StatusProcessing})
	router := newTestRouter(svc, nil)

	rec := serve(router, httptest.NewRequest(http.MethodDelete, "/job/abc", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Job abc cancelled and cleaned up"}`, rec.Body.String())
	assert.Equal(t, []string{"abc"}, svc.cancelled)

	rec = serve(router, httptest.NewRequest(http.MethodDelete, "/job/abc", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListModels(t *testing.T) {
	router := newTestRouter(newFakeJobs(), nil)
	rec := serve(router, httptest.NewRequest(http.MethodGet, "/models", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body ModelsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "waifu2x", body.DefaultModel)
	assert.Equal(t, 2, body.DefaultScale)
	require.Len(t, body.Models, 3)
	assert.Equal(t, "Real-ESRGAN", body.Models["esrgan"].Name)
	assert.False(t, body.Models["esrgan"].Available)
	assert.Equal(t, []int{1, 2, 4}, body.Models["test"].Scales)
}

func TestListHistory(t *testing.T) {
	router := newTestRouter(newFakeJobs(), nil)
	rec := serve(router, httptest.NewRequest(http.MethodGet, "/history", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	hist := &fakeHistory{entries: []history.Entry{
		{JobID: "b", Status: jobs.StatusFailed},
		{JobID: "a", Status: jobs.StatusCompleted},
	}}
	router = newTestRouter(newFakeJobs(), hist)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/history?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Jobs  []history.Entry `json:"jobs"`
		Count int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "b", body.Jobs[0].JobID)
	assert.Equal(t, 1, hist.limit)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/history?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRouteAndMethod(t *testing.T) {
	router := newTestRouter(newFakeJobs(), nil)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/enhance_video", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRecoveryReturnsInternalError(t *testing.T) {
	router := newTestRouter(panickingJobs{}, nil)
	rec := serve(router, httptest.NewRequest(http.MethodGet, "/status/abc", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", decodeError(t, rec).Code)
}

type panickingJobs struct{ *fakeJobs }

func (panickingJobs) Status(string) (jobs.View, error) { panic("boom") }
