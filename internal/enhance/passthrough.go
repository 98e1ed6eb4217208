package enhance

import (
	"context"

	"upscaler/internal/fileutil"
	"upscaler/internal/services"
	"upscaler/internal/stage"
)

// Passthrough copies frames unchanged. It needs no binary and exists so the
// full pipeline can run on machines without a GPU model installed.
type Passthrough struct{}

func (Passthrough) Model() Model        { return ModelTest }
func (Passthrough) Description() string { return "Copies frames without enhancement" }
func (Passthrough) OptimalFor() string  { return "pipeline testing" }
func (Passthrough) Scales() []int       { return []int{1, 2, 4} }
func (Passthrough) Binary() string      { return "" }

func (Passthrough) Enhance(ctx context.Context, src, dst string, _ int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fileutil.CopyFile(src, dst); err != nil {
		return services.Wrap(services.ErrTransient, "enhance", "copy frame", src, err)
	}
	return stage.VerifyOutput("enhance", dst)
}
