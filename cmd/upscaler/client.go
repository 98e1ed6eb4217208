package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"upscaler/internal/api"
	"upscaler/internal/history"
	"upscaler/internal/jobs"
	"upscaler/internal/stage"
)

// apiClient talks to a running daemon.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string, httpClient *http.Client) *apiClient {
	return &apiClient{base: strings.TrimRight(base, "/"), http: httpClient}
}

// responseError is a non-2xx reply decoded from the API error body.
type responseError struct {
	Status  int
	Code    string
	Message string
}

func (e *responseError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

type healthResponse struct {
	Status  string         `json:"status"`
	Service string         `json:"service"`
	Stages  []stage.Health `json:"stages"`
}

type historyResponse struct {
	Jobs  []history.Entry `json:"jobs"`
	Count int             `json:"count"`
}

type submitRequest struct {
	Path  string
	Model string
	Scale int
}

func (c *apiClient) Health(ctx context.Context) (healthResponse, error) {
	var out healthResponse
	err := c.getJSON(ctx, "/health", &out)
	return out, err
}

func (c *apiClient) Status(ctx context.Context, id string) (jobs.View, error) {
	var out jobs.View
	err := c.getJSON(ctx, "/status/"+url.PathEscape(id), &out)
	return out, err
}

func (c *apiClient) Models(ctx context.Context) (api.ModelsResponse, error) {
	var out api.ModelsResponse
	err := c.getJSON(ctx, "/models", &out)
	return out, err
}

func (c *apiClient) History(ctx context.Context, limit int) (historyResponse, error) {
	var out historyResponse
	path := "/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	err := c.getJSON(ctx, path, &out)
	return out, err
}

func (c *apiClient) Cancel(ctx context.Context, id string) (api.CancelResponse, error) {
	var out api.CancelResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.base+"/job/"+url.PathEscape(id), nil)
	if err != nil {
		return out, err
	}
	err = c.do(req, &out)
	return out, err
}

// Submit streams the file as multipart form data without buffering it.
func (c *apiClient) Submit(ctx context.Context, sub submitRequest) (api.EnhanceResponse, error) {
	var out api.EnhanceResponse
	file, err := os.Open(sub.Path)
	if err != nil {
		return out, fmt.Errorf("open %s: %w", sub.Path, err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(form, file, filepath.Base(sub.Path), sub))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/enhance_video", pr)
	if err != nil {
		_ = pr.Close()
		return out, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	err = c.do(req, &out)
	_ = pr.Close()
	return out, err
}

func writeUploadForm(form *multipart.Writer, src io.Reader, name string, sub submitRequest) error {
	if sub.Model != "" {
		if err := form.WriteField("model", sub.Model); err != nil {
			return err
		}
	}
	if sub.Scale > 0 {
		if err := form.WriteField("scale", strconv.Itoa(sub.Scale)); err != nil {
			return err
		}
	}
	part, err := form.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return err
	}
	return form.Close()
}

// Download writes the enhanced video to dest through a temp file so a
// failed transfer never leaves a partial result at dest. It returns the
// byte count.
func (c *apiClient) Download(ctx context.Context, id, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/download/"+url.PathEscape(id), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, wrapTransportError(err, c.base)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, decodeResponseError(resp)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("create destination directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.partial")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	written, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("write %s: %w", dest, errors.Join(copyErr, closeErr))
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("finalize %s: %w", dest, err)
	}
	return written, nil
}

func (c *apiClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *apiClient) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return wrapTransportError(err, c.base)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeResponseError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeResponseError(resp *http.Response) error {
	var body struct {
		Error api.APIError `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err != nil || body.Error.Message == "" {
		return &responseError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	return &responseError{Status: resp.StatusCode, Code: body.Error.Code, Message: body.Error.Message}
}

func wrapTransportError(err error, base string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("connect to daemon at %s: %w (start it with `upscaler serve`)", base, err)
}
