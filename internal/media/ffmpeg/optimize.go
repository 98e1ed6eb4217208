package ffmpeg

import (
	"context"
	"strconv"
	"strings"

	"upscaler/internal/stage"
)

// Optimizer re-encodes the merged video to shrink it. The output is a new
// file; promoting it over the merged artifact is the caller's decision.
type Optimizer struct {
	Tool
	CRF           int
	Preset        string
	TargetBitrate string
}

// NewOptimizer wraps tool as the optimize stage.
func NewOptimizer(tool Tool, crf int, preset, targetBitrate string) *Optimizer {
	if crf <= 0 {
		crf = 23
	}
	if strings.TrimSpace(preset) == "" {
		preset = "medium"
	}
	return &Optimizer{Tool: tool, CRF: crf, Preset: preset, TargetBitrate: strings.TrimSpace(targetBitrate)}
}

func (o *Optimizer) Name() string { return "optimize" }

func (o *Optimizer) Run(ctx context.Context, req stage.Request) error {
	args := []string{
		"-i", req.Input,
		"-c:v", "libx264",
		"-c:a", "aac",
	}
	if o.TargetBitrate != "" {
		args = append(args, "-b:v", o.TargetBitrate, "-maxrate", o.TargetBitrate, "-bufsize", doubleBitrate(o.TargetBitrate))
	}
	args = append(args,
		"-preset", o.Preset,
		"-crf", strconv.Itoa(o.CRF),
		"-movflags", "+faststart",
		"-f", "mp4",
		"-y", req.Output,
	)
	if err := o.exec(ctx, o.Name(), "re-encode", args); err != nil {
		return err
	}
	return stage.VerifyOutput(o.Name(), req.Output)
}

func (o *Optimizer) HealthCheck(context.Context) stage.Health {
	return o.health(o.Name())
}

// doubleBitrate turns "4M" into "8M" for the rate-control buffer. Values it
// cannot parse are passed through unchanged.
func doubleBitrate(rate string) string {
	rate = strings.TrimSpace(rate)
	if rate == "" {
		return rate
	}
	suffix := ""
	number := rate
	if last := rate[len(rate)-1]; last < '0' || last > '9' {
		suffix = string(last)
		number = rate[:len(rate)-1]
	}
	value, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return rate
	}
	return strconv.FormatFloat(value*2, 'f', -1, 64) + suffix
}
