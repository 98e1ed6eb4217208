package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"upscaler/internal/config"
)

func isolateEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("UPSCALER_API_BIND", "")
	t.Setenv("UPSCALER_WORK_DIR", "")
	t.Setenv("UPSCALER_OUTPUT_DIR", "")
	t.Setenv("UPSCALER_NTFY_TOPIC", "")
	t.Chdir(t.TempDir())
	return home
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	home := isolateEnv(t)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantWork := filepath.Join(home, ".local", "share", "upscaler", "processing")
	if cfg.Paths.WorkDir != wantWork {
		t.Fatalf("unexpected work dir: got %q want %q", cfg.Paths.WorkDir, wantWork)
	}
	if cfg.Paths.OutputDir != filepath.Join(home, ".local", "share", "upscaler", "output") {
		t.Fatalf("unexpected output dir: %q", cfg.Paths.OutputDir)
	}
	if cfg.Paths.APIBind != "127.0.0.1:8000" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Enhance.DefaultModel != "waifu2x" || cfg.Enhance.DefaultScale != 2 {
		t.Fatalf("unexpected enhance defaults: %+v", cfg.Enhance)
	}
	if cfg.Enhance.Workers != 4 {
		t.Fatalf("expected 4 workers, got %d", cfg.Enhance.Workers)
	}
	if cfg.MaxUploadBytes() != 100*1024*1024 {
		t.Fatalf("unexpected upload limit: %d", cfg.MaxUploadBytes())
	}
	if cfg.RetentionWindow() != 24*time.Hour {
		t.Fatalf("unexpected retention window: %s", cfg.RetentionWindow())
	}
	if cfg.Logging.Format != "auto" {
		t.Fatalf("expected auto log format, got %q", cfg.Logging.Format)
	}
	if !cfg.History.Enabled || !strings.HasPrefix(cfg.History.Path, home) {
		t.Fatalf("unexpected history config: %+v", cfg.History)
	}
}

func TestLoadCustomPath(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	custom := config.Default()
	custom.Paths.WorkDir = filepath.Join(dir, "work")
	custom.Paths.OutputDir = filepath.Join(dir, "out")
	custom.Paths.LogDir = filepath.Join(dir, "logs")
	custom.Enhance.Workers = 8
	custom.Enhance.DefaultModel = "ESRGAN"
	custom.Server.AllowedExtensions = []string{"MP4", ".mkv", "mp4"}
	custom.Logging.Format = "JSON"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config at %q, got %q (exists=%v)", path, resolved, exists)
	}
	if cfg.Enhance.Workers != 8 {
		t.Fatalf("expected 8 workers, got %d", cfg.Enhance.Workers)
	}
	if cfg.Enhance.DefaultModel != "esrgan" {
		t.Fatalf("expected model to be lowercased, got %q", cfg.Enhance.DefaultModel)
	}
	if got := strings.Join(cfg.Server.AllowedExtensions, ","); got != ".mp4,.mkv" {
		t.Fatalf("unexpected normalized extensions: %q", got)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json format, got %q", cfg.Logging.Format)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[paths]\nstaging_dir = \"/tmp\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestEnvOverridesAPIBind(t *testing.T) {
	isolateEnv(t)
	t.Setenv("UPSCALER_API_BIND", "0.0.0.0:9999")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.APIBind != "0.0.0.0:9999" {
		t.Fatalf("expected env api bind, got %q", cfg.Paths.APIBind)
	}
	if cfg.APIBaseURL() != "http://127.0.0.1:9999" {
		t.Fatalf("unexpected base url %q", cfg.APIBaseURL())
	}
}

func TestEnvSetsNtfyTopic(t *testing.T) {
	isolateEnv(t)
	t.Setenv("UPSCALER_NTFY_TOPIC", " https://ntfy.example/upscaler ")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.example/upscaler" {
		t.Fatalf("unexpected topic %q", cfg.Notifications.NtfyTopic)
	}
	if cfg.NotificationTimeout().Seconds() != 10 {
		t.Fatalf("unexpected timeout %v", cfg.NotificationTimeout())
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"scale", func(c *config.Config) { c.Enhance.DefaultScale = 3 }, "enhance.default_scale"},
		{"model", func(c *config.Config) { c.Enhance.DefaultModel = "anime4k" }, "enhance.default_model"},
		{"workers", func(c *config.Config) { c.Enhance.Workers = -1 }, "enhance.workers"},
		{"merge quality", func(c *config.Config) { c.FFmpeg.MergeQuality = "ultra" }, "ffmpeg.merge_quality"},
		{"crf", func(c *config.Config) { c.FFmpeg.OptimizeCRF = 60 }, "ffmpeg.optimize_crf"},
		{"upload", func(c *config.Config) { c.Server.MaxUploadMB = -5 }, "server.max_upload_mb"},
		{"retention", func(c *config.Config) { c.Retention.WindowHours = -1 }, "retention.window_hours"},
		{"ntfy topic", func(c *config.Config) { c.Notifications.NtfyTopic = "my-topic" }, "notifications.ntfy_topic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in error, got %v", tt.want, err)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.FFmpeg.OptimizeCRF != 23 {
		t.Fatalf("unexpected optimize crf %d", cfg.FFmpeg.OptimizeCRF)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.OutputDir = filepath.Join(base, "out")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.History.Path = filepath.Join(base, "db", "history.db")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{cfg.Paths.WorkDir, cfg.Paths.OutputDir, cfg.Paths.LogDir, filepath.Dir(cfg.History.Path)} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s to exist: %v", dir, err)
		}
	}
}
