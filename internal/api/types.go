package api

import (
	"upscaler/internal/enhance"
	"upscaler/internal/jobs"
)

// EnhanceResponse acknowledges an accepted upload.
type EnhanceResponse struct {
	Message  string      `json:"message"`
	JobID    string      `json:"job_id"`
	Status   jobs.Status `json:"status"`
	Filename string      `json:"filename"`
	FileSize int64       `json:"file_size"`
	Model    string      `json:"model"`
	Scale    int         `json:"scale"`
}

// ModelInfo is one entry of the models listing.
type ModelInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Scales      []int  `json:"scales"`
	OptimalFor  string `json:"optimal_for"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// ModelsResponse lists enhancement models keyed by identifier.
type ModelsResponse struct {
	Models       map[string]ModelInfo `json:"models"`
	DefaultModel string               `json:"default_model"`
	DefaultScale int                  `json:"default_scale"`
}

// CancelResponse acknowledges a cancelled job.
type CancelResponse struct {
	Message string `json:"message"`
}

func modelsResponse(infos []enhance.Info, defaultModel string, defaultScale int) ModelsResponse {
	resp := ModelsResponse{
		Models:       make(map[string]ModelInfo, len(infos)),
		DefaultModel: defaultModel,
		DefaultScale: defaultScale,
	}
	for _, info := range infos {
		resp.Models[info.Name] = ModelInfo{
			Name:        info.DisplayName,
			Description: info.Description,
			Scales:      info.Scales,
			OptimalFor:  info.OptimalFor,
			Available:   info.Available,
			Detail:      info.Detail,
		}
	}
	return resp
}
