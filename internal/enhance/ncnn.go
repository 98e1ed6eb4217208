package enhance

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"upscaler/internal/procexec"
	"upscaler/internal/services"
	"upscaler/internal/stage"
)

// ncnnTool runs one of the *-ncnn-vulkan command line upscalers.
type ncnnTool struct {
	binary  string
	timeout time.Duration
	run     procexec.RunFunc
}

func (t ncnnTool) invoke(ctx context.Context, model Model, src, dst string, extra ...string) error {
	run := t.run
	if run == nil {
		run = procexec.Run
	}
	args := append([]string{"-i", src, "-o", dst}, extra...)
	args = append(args, "-f", imageFormat(dst))
	cmd := procexec.Command{Name: t.binary, Args: args, Timeout: t.timeout}
	if _, err := run(ctx, cmd); err != nil {
		return services.Wrap(procexec.Marker(err), "enhance", string(model), filepath.Base(src), err)
	}
	return stage.VerifyOutput("enhance", dst)
}

func imageFormat(path string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "jpg", "jpeg":
		return "jpg"
	case "webp":
		return "webp"
	default:
		return "png"
	}
}

// Waifu2x drives waifu2x-ncnn-vulkan. The binary only upscales 2x per pass,
// so 4x runs two passes with lighter denoising on the second.
type Waifu2x struct {
	tool  ncnnTool
	noise int
}

// NewWaifu2x constructs the waifu2x model.
func NewWaifu2x(binary string, noise int, timeout time.Duration) *Waifu2x {
	return &Waifu2x{tool: ncnnTool{binary: binary, timeout: timeout, run: procexec.Run}, noise: noise}
}

func (w *Waifu2x) Model() Model        { return ModelWaifu2x }
func (w *Waifu2x) Description() string { return "Anime-style image upscaling with denoising" }
func (w *Waifu2x) OptimalFor() string  { return "anime and line art" }
func (w *Waifu2x) Scales() []int       { return []int{2, 4} }
func (w *Waifu2x) Binary() string      { return w.tool.binary }

func (w *Waifu2x) Enhance(ctx context.Context, src, dst string, scale int) error {
	if scale != 4 {
		return w.pass(ctx, src, dst, scale, w.noise)
	}
	intermediate := filepath.Join(filepath.Dir(dst), ".pass1."+filepath.Base(dst))
	defer os.Remove(intermediate)
	if err := w.pass(ctx, src, intermediate, 2, w.noise); err != nil {
		return err
	}
	return w.pass(ctx, intermediate, dst, 2, min(w.noise, 1))
}

func (w *Waifu2x) pass(ctx context.Context, src, dst string, scale, noise int) error {
	return w.tool.invoke(ctx, w.Model(), src, dst, "-s", strconv.Itoa(scale), "-n", strconv.Itoa(noise))
}

// ESRGAN drives realesrgan-ncnn-vulkan.
type ESRGAN struct {
	tool      ncnnTool
	modelName string
}

// NewESRGAN constructs the Real-ESRGAN model using the named network.
func NewESRGAN(binary, modelName string, timeout time.Duration) *ESRGAN {
	if strings.TrimSpace(modelName) == "" {
		modelName = "realesr-animevideov3"
	}
	return &ESRGAN{tool: ncnnTool{binary: binary, timeout: timeout, run: procexec.Run}, modelName: modelName}
}

func (e *ESRGAN) Model() Model        { return ModelESRGAN }
func (e *ESRGAN) Description() string { return "High-quality upscaling using Real-ESRGAN" }
func (e *ESRGAN) OptimalFor() string  { return "anime video with fine detail" }
func (e *ESRGAN) Scales() []int       { return []int{2, 4} }
func (e *ESRGAN) Binary() string      { return e.tool.binary }

func (e *ESRGAN) Enhance(ctx context.Context, src, dst string, scale int) error {
	return e.tool.invoke(ctx, e.Model(), src, dst, "-s", strconv.Itoa(scale), "-n", e.modelName)
}
