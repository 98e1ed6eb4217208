package config

const (
	defaultWorkDir              = "~/.local/share/upscaler/processing"
	defaultOutputDir            = "~/.local/share/upscaler/output"
	defaultLogDir               = "~/.local/share/upscaler/logs"
	defaultHistoryPath          = "~/.local/share/upscaler/history.db"
	defaultAPIBind              = "127.0.0.1:8000"
	defaultMaxUploadMB          = 100
	defaultModel                = "waifu2x"
	defaultScale                = 2
	defaultWorkers              = 4
	defaultFrameTimeoutSeconds  = 300
	defaultWaifu2xBinary        = "waifu2x-ncnn-vulkan"
	defaultRealESRGANBinary     = "realesrgan-ncnn-vulkan"
	defaultWaifu2xNoise         = 2
	defaultESRGANModel          = "realesr-animevideov3"
	defaultFFmpegBinary         = "ffmpeg"
	defaultFFprobeBinary        = "ffprobe"
	defaultFrameFormat          = "png"
	defaultMergeQuality         = "high"
	defaultOptimizeCRF          = 23
	defaultOptimizePreset       = "medium"
	defaultStageTimeoutSeconds  = 3600
	defaultRetentionWindowHours = 24
	defaultSweepIntervalMinutes = 10
	defaultNtfyTimeoutSeconds   = 10
	defaultLogFormat            = "auto"
	defaultLogLevel             = "info"
)

var defaultAllowedExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".webm"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:   defaultWorkDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Server: Server{
			MaxUploadMB:       defaultMaxUploadMB,
			AllowedExtensions: append([]string(nil), defaultAllowedExtensions...),
		},
		Enhance: Enhance{
			DefaultModel:        defaultModel,
			DefaultScale:        defaultScale,
			Workers:             defaultWorkers,
			FrameTimeoutSeconds: defaultFrameTimeoutSeconds,
			Waifu2xBinary:       defaultWaifu2xBinary,
			RealESRGANBinary:    defaultRealESRGANBinary,
			Waifu2xNoise:        defaultWaifu2xNoise,
			ESRGANModel:         defaultESRGANModel,
		},
		FFmpeg: FFmpeg{
			FFmpegBinary:        defaultFFmpegBinary,
			FFprobeBinary:       defaultFFprobeBinary,
			FrameFormat:         defaultFrameFormat,
			MergeQuality:        defaultMergeQuality,
			OptimizeCRF:         defaultOptimizeCRF,
			OptimizePreset:      defaultOptimizePreset,
			StageTimeoutSeconds: defaultStageTimeoutSeconds,
		},
		Retention: Retention{
			WindowHours:          defaultRetentionWindowHours,
			SweepIntervalMinutes: defaultSweepIntervalMinutes,
		},
		History: History{
			Enabled: true,
			Path:    defaultHistoryPath,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
