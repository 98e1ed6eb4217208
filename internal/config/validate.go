package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	knownModels         = map[string]struct{}{"test": {}, "waifu2x": {}, "esrgan": {}}
	knownMergeQualities = map[string]struct{}{"high": {}, "medium": {}, "fast": {}}
	knownFrameFormats   = map[string]struct{}{"png": {}, "jpg": {}}
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateEnhance(); err != nil {
		return err
	}
	if err := c.validateFFmpeg(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := ensurePositiveMap(map[string]int{
		"retention.window_hours":           c.Retention.WindowHours,
		"retention.sweep_interval_minutes": c.Retention.SweepIntervalMinutes,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	if !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic must be a full http(s) URL, got %q", topic)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.MaxUploadMB <= 0 {
		return errors.New("server.max_upload_mb must be positive")
	}
	for _, ext := range c.Server.AllowedExtensions {
		if len(ext) < 2 {
			return fmt.Errorf("server.allowed_extensions contains invalid entry %q", ext)
		}
	}
	return nil
}

func (c *Config) validateEnhance() error {
	if _, ok := knownModels[c.Enhance.DefaultModel]; !ok {
		return fmt.Errorf("enhance.default_model %q is not one of test, waifu2x, esrgan", c.Enhance.DefaultModel)
	}
	if c.Enhance.DefaultScale != 2 && c.Enhance.DefaultScale != 4 {
		return errors.New("enhance.default_scale must be 2 or 4")
	}
	if c.Enhance.Waifu2xNoise < -1 || c.Enhance.Waifu2xNoise > 3 {
		return errors.New("enhance.waifu2x_noise must be between -1 and 3")
	}
	return ensurePositiveMap(map[string]int{
		"enhance.workers":               c.Enhance.Workers,
		"enhance.frame_timeout_seconds": c.Enhance.FrameTimeoutSeconds,
	})
}

func (c *Config) validateFFmpeg() error {
	if _, ok := knownMergeQualities[c.FFmpeg.MergeQuality]; !ok {
		return fmt.Errorf("ffmpeg.merge_quality %q is not one of high, medium, fast", c.FFmpeg.MergeQuality)
	}
	if _, ok := knownFrameFormats[c.FFmpeg.FrameFormat]; !ok {
		return fmt.Errorf("ffmpeg.frame_format %q is not one of png, jpg", c.FFmpeg.FrameFormat)
	}
	if c.FFmpeg.OptimizeCRF < 0 || c.FFmpeg.OptimizeCRF > 51 {
		return errors.New("ffmpeg.optimize_crf must be between 0 and 51")
	}
	if c.FFmpeg.ExtractFPS < 0 {
		return errors.New("ffmpeg.extract_fps must not be negative")
	}
	return ensurePositiveMap(map[string]int{
		"ffmpeg.stage_timeout_seconds": c.FFmpeg.StageTimeoutSeconds,
	})
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var problems []string
	for _, key := range keys {
		if values[key] <= 0 {
			problems = append(problems, key)
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s must be positive", strings.Join(problems, ", "))
	}
	return nil
}
