package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeEnhance()
	c.normalizeFFmpeg()
	c.normalizeRetention()
	if err := c.normalizeHistory(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("UPSCALER_WORK_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.WorkDir = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv("UPSCALER_OUTPUT_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.OutputDir = strings.TrimSpace(value)
	}
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if value, ok := os.LookupEnv("UPSCALER_API_BIND"); ok && strings.TrimSpace(value) != "" {
		c.Paths.APIBind = value
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeServer() {
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = defaultMaxUploadMB
	}
	exts := make([]string, 0, len(c.Server.AllowedExtensions))
	seen := make(map[string]struct{}, len(c.Server.AllowedExtensions))
	for _, ext := range c.Server.AllowedExtensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	if len(exts) == 0 {
		exts = append(exts, defaultAllowedExtensions...)
	}
	c.Server.AllowedExtensions = exts
}

func (c *Config) normalizeEnhance() {
	c.Enhance.DefaultModel = strings.ToLower(strings.TrimSpace(c.Enhance.DefaultModel))
	if c.Enhance.DefaultModel == "" {
		c.Enhance.DefaultModel = defaultModel
	}
	if c.Enhance.DefaultScale == 0 {
		c.Enhance.DefaultScale = defaultScale
	}
	if c.Enhance.Workers == 0 {
		c.Enhance.Workers = defaultWorkers
	}
	if c.Enhance.FrameTimeoutSeconds == 0 {
		c.Enhance.FrameTimeoutSeconds = defaultFrameTimeoutSeconds
	}
	c.Enhance.Waifu2xBinary = strings.TrimSpace(c.Enhance.Waifu2xBinary)
	if c.Enhance.Waifu2xBinary == "" {
		c.Enhance.Waifu2xBinary = defaultWaifu2xBinary
	}
	c.Enhance.RealESRGANBinary = strings.TrimSpace(c.Enhance.RealESRGANBinary)
	if c.Enhance.RealESRGANBinary == "" {
		c.Enhance.RealESRGANBinary = defaultRealESRGANBinary
	}
	c.Enhance.ESRGANModel = strings.TrimSpace(c.Enhance.ESRGANModel)
	if c.Enhance.ESRGANModel == "" {
		c.Enhance.ESRGANModel = defaultESRGANModel
	}
}

func (c *Config) normalizeFFmpeg() {
	c.FFmpeg.FFmpegBinary = strings.TrimSpace(c.FFmpeg.FFmpegBinary)
	if c.FFmpeg.FFmpegBinary == "" {
		c.FFmpeg.FFmpegBinary = defaultFFmpegBinary
	}
	c.FFmpeg.FFprobeBinary = strings.TrimSpace(c.FFmpeg.FFprobeBinary)
	if c.FFmpeg.FFprobeBinary == "" {
		c.FFmpeg.FFprobeBinary = defaultFFprobeBinary
	}
	c.FFmpeg.FrameFormat = strings.ToLower(strings.TrimSpace(c.FFmpeg.FrameFormat))
	if c.FFmpeg.FrameFormat == "" {
		c.FFmpeg.FrameFormat = defaultFrameFormat
	}
	c.FFmpeg.MergeQuality = strings.ToLower(strings.TrimSpace(c.FFmpeg.MergeQuality))
	if c.FFmpeg.MergeQuality == "" {
		c.FFmpeg.MergeQuality = defaultMergeQuality
	}
	if c.FFmpeg.OptimizeCRF == 0 {
		c.FFmpeg.OptimizeCRF = defaultOptimizeCRF
	}
	c.FFmpeg.OptimizePreset = strings.TrimSpace(c.FFmpeg.OptimizePreset)
	if c.FFmpeg.OptimizePreset == "" {
		c.FFmpeg.OptimizePreset = defaultOptimizePreset
	}
	c.FFmpeg.TargetBitrate = strings.TrimSpace(c.FFmpeg.TargetBitrate)
	if c.FFmpeg.StageTimeoutSeconds == 0 {
		c.FFmpeg.StageTimeoutSeconds = defaultStageTimeoutSeconds
	}
}

func (c *Config) normalizeRetention() {
	if c.Retention.WindowHours == 0 {
		c.Retention.WindowHours = defaultRetentionWindowHours
	}
	if c.Retention.SweepIntervalMinutes == 0 {
		c.Retention.SweepIntervalMinutes = defaultSweepIntervalMinutes
	}
}

func (c *Config) normalizeHistory() error {
	if strings.TrimSpace(c.History.Path) == "" {
		c.History.Path = defaultHistoryPath
	}
	var err error
	if c.History.Path, err = expandPath(strings.TrimSpace(c.History.Path)); err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	if value, ok := os.LookupEnv("UPSCALER_NTFY_TOPIC"); ok {
		c.Notifications.NtfyTopic = value
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNtfyTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "auto":
		c.Logging.Format = "auto"
	case "console", "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
