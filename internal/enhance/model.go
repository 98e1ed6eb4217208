package enhance

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"upscaler/internal/services"
)

// Model identifies an enhancement implementation.
type Model string

const (
	ModelTest    Model = "test"
	ModelWaifu2x Model = "waifu2x"
	ModelESRGAN  Model = "esrgan"
)

// Models lists every model in display order.
var Models = []Model{ModelWaifu2x, ModelESRGAN, ModelTest}

// ParseModel resolves a case-insensitive model name.
func ParseModel(name string) (Model, error) {
	m := Model(strings.ToLower(strings.TrimSpace(name)))
	if slices.Contains(Models, m) {
		return m, nil
	}
	return "", services.Wrap(services.ErrValidation, "enhance", "select model",
		fmt.Sprintf("unknown model %q (available: waifu2x, esrgan, test)", name), nil)
}

func (m Model) String() string { return string(m) }

// Enhancer upscales a single frame from src into dst.
type Enhancer interface {
	Model() Model
	Description() string
	OptimalFor() string
	Scales() []int
	// Binary is the external executable the model needs, or "" for none.
	Binary() string
	Enhance(ctx context.Context, src, dst string, scale int) error
}

// SupportsScale reports whether e accepts scale.
func SupportsScale(e Enhancer, scale int) bool {
	return slices.Contains(e.Scales(), scale)
}
