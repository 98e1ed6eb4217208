package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"upscaler/internal/config"
	"upscaler/internal/history"
	"upscaler/internal/jobs"
)

const userAgent = "upscaler/1.0"

// Service defines the notification surface used by the daemon and CLI.
type Service interface {
	NotifyJobFinished(ctx context.Context, entry history.Entry) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil || strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		return noopService{}
	}
	timeout := cfg.NotificationTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: strings.TrimSpace(cfg.Notifications.NtfyTopic),
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyJobFinished(ctx context.Context, entry history.Entry) error {
	return n.send(ctx, jobPayload(entry))
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Upscaler - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"upscaler", "test"},
		priority: "low",
	})
}

func jobPayload(entry history.Entry) payload {
	name := strings.TrimSpace(entry.SourceName)
	if name == "" {
		name = entry.JobID
	}
	params := fmt.Sprintf("%s %dx", entry.Model, entry.Scale)

	switch entry.Status {
	case jobs.StatusCompleted:
		message := fmt.Sprintf("✅ %s enhanced with %s in %s", name, params, entry.Elapsed().Round(time.Second))
		if entry.OutputSize > 0 {
			message += fmt.Sprintf(" (%s)", humanize.IBytes(uint64(entry.OutputSize)))
		}
		return payload{
			title:   "Upscaler - Complete",
			message: message,
			tags:    []string{"upscaler", "job", "completed"},
		}
	case jobs.StatusFailed:
		detail := strings.TrimSpace(entry.Message)
		if detail == "" {
			detail = "unknown error"
		}
		return payload{
			title:    "Upscaler - Failed",
			message:  fmt.Sprintf("❌ %s (%s): %s", name, params, detail),
			tags:     []string{"upscaler", "job", "failed"},
			priority: "high",
		}
	default:
		return payload{
			title:   "Upscaler - Cancelled",
			message: fmt.Sprintf("🛑 %s (%s) was cancelled", name, params),
			tags:    []string{"upscaler", "job", string(entry.Status)},
		}
	}
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyJobFinished(context.Context, history.Entry) error { return nil }
func (noopService) TestNotification(context.Context) error                 { return nil }
