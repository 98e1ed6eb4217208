package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"upscaler/internal/config"
)

// Requirement defines an external binary the service shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// Requirements lists the binaries the configured pipeline invokes. The
// enhancement models are optional: the test model needs no binary and a
// missing model only makes that model unavailable.
func Requirements(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	return []Requirement{
		{Name: "ffmpeg", Command: cfg.FFmpeg.FFmpegBinary, Description: "audio/frame extraction and video encoding"},
		{Name: "ffprobe", Command: cfg.FFmpeg.FFprobeBinary, Description: "input inspection"},
		{Name: "waifu2x", Command: cfg.Enhance.Waifu2xBinary, Description: "waifu2x enhancement model", Optional: true},
		{Name: "esrgan", Command: cfg.Enhance.RealESRGANBinary, Description: "Real-ESRGAN enhancement model", Optional: true},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		results = append(results, Check(req))
	}
	return results
}

// Check resolves a single requirement on PATH.
func Check(req Requirement) Status {
	cmd := strings.TrimSpace(req.Command)
	status := Status{
		Name:        req.Name,
		Command:     cmd,
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if cmd == "" {
		status.Detail = "command not configured"
		return status
	}
	if _, err := exec.LookPath(cmd); err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", cmd)
		return status
	}
	status.Available = true
	return status
}

// MissingRequired returns the unavailable non-optional dependencies.
func MissingRequired(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}
	return missing
}
