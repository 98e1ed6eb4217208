package enhance

import (
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"upscaler/internal/config"
	"upscaler/internal/deps"
	"upscaler/internal/logging"
	"upscaler/internal/services"
)

// Info describes a model for listings.
type Info struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	Scales      []int  `json:"scales"`
	OptimalFor  string `json:"optimal_for"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// Registry maps models to their configured implementations.
type Registry struct {
	enhancers map[Model]Enhancer
	check     func(deps.Requirement) deps.Status
	logger    *slog.Logger
}

// NewRegistry builds every model from cfg.
func NewRegistry(cfg *config.Config, logger *slog.Logger) *Registry {
	timeout := cfg.FrameTimeout()
	return NewRegistryWith(logger,
		NewWaifu2x(cfg.Enhance.Waifu2xBinary, cfg.Enhance.Waifu2xNoise, timeout),
		NewESRGAN(cfg.Enhance.RealESRGANBinary, cfg.Enhance.ESRGANModel, timeout),
		Passthrough{},
	)
}

// NewRegistryWith builds a registry from explicit implementations.
func NewRegistryWith(logger *slog.Logger, enhancers ...Enhancer) *Registry {
	r := &Registry{
		enhancers: make(map[Model]Enhancer, len(enhancers)),
		check:     deps.Check,
		logger:    logging.NewComponentLogger(logger, "enhance"),
	}
	for _, e := range enhancers {
		r.enhancers[e.Model()] = e
	}
	return r
}

// Get returns the implementation for name.
func (r *Registry) Get(name string) (Enhancer, error) {
	model, err := ParseModel(name)
	if err != nil {
		return nil, err
	}
	e, ok := r.enhancers[model]
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "enhance", "select model",
			fmt.Sprintf("model %q is not configured", model), nil)
	}
	return e, nil
}

// Validate checks a model/scale pair at submission time.
func (r *Registry) Validate(name string, scale int) (Enhancer, error) {
	e, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if !SupportsScale(e, scale) {
		return nil, services.Wrap(services.ErrValidation, "enhance", "select scale",
			fmt.Sprintf("model %s supports scales %v, got %d", e.Model(), e.Scales(), scale), nil)
	}
	return e, nil
}

// Available reports whether the model's binary can be found.
func (r *Registry) Available(e Enhancer) deps.Status {
	if e.Binary() == "" {
		return deps.Status{Name: string(e.Model()), Available: true}
	}
	status := r.check(deps.Requirement{Name: string(e.Model()), Command: e.Binary(), Optional: true})
	if !status.Available {
		r.logger.Debug("enhancement model unavailable",
			logging.String("model", string(e.Model())),
			logging.String("detail", status.Detail),
		)
	}
	return status
}

// Describe lists every configured model in display order.
func (r *Registry) Describe() []Info {
	infos := make([]Info, 0, len(r.enhancers))
	for _, model := range Models {
		e, ok := r.enhancers[model]
		if !ok {
			continue
		}
		status := r.Available(e)
		infos = append(infos, Info{
			Name:        string(model),
			DisplayName: DisplayName(model),
			Description: e.Description(),
			Scales:      slices.Clone(e.Scales()),
			OptimalFor:  e.OptimalFor(),
			Available:   status.Available,
			Detail:      status.Detail,
		})
	}
	return infos
}

// DisplayName is the human label for a model.
func DisplayName(m Model) string {
	if m == ModelESRGAN {
		return "Real-ESRGAN"
	}
	// Casers keep state, so each call gets its own.
	return cases.Title(language.English).String(string(m))
}
