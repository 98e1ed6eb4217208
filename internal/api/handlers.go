package api

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	"upscaler/internal/history"
	"upscaler/internal/jobs"
	"upscaler/internal/logging"
	"upscaler/internal/pipeline"
)

// multipartSlack leaves room for multipart framing and the form fields on
// top of the file size limit.
const multipartSlack = 1 << 20

// Content types accepted when the file name has no allowed extension.
var videoContentTypes = map[string]string{
	"video/mp4":        ".mp4",
	"video/avi":        ".avi",
	"video/x-msvideo":  ".avi",
	"video/mov":        ".mov",
	"video/quicktime":  ".mov",
	"video/mkv":        ".mkv",
	"video/x-matroska": ".mkv",
	"video/webm":       ".webm",
}

func (h *handler) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Anime video upscaler API", "status": "running"})
}

func (h *handler) healthCheck(c *gin.Context) {
	body := gin.H{"status": "healthy", "service": h.service}
	if h.health != nil {
		body["stages"] = h.health(c.Request.Context())
	}
	c.JSON(http.StatusOK, body)
}

func (h *handler) enhanceVideo(c *gin.Context) {
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+multipartSlack)
	}
	header, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			tooLarge(c, h.sizeLimitMessage())
			return
		}
		badRequest(c, "A video file is required in the 'file' field")
		return
	}
	if h.maxUpload > 0 && header.Size > h.maxUpload {
		tooLarge(c, h.sizeLimitMessage())
		return
	}
	sourceName, ok := h.acceptedName(header)
	if !ok {
		badRequest(c, "Invalid file type. Please upload a video file.")
		return
	}

	model := strings.ToLower(strings.TrimSpace(c.DefaultPostForm("model", h.defaultModel)))
	scale, err := strconv.Atoi(strings.TrimSpace(c.DefaultPostForm("scale", strconv.Itoa(h.defaultScale))))
	if err != nil {
		badRequest(c, "scale must be an integer")
		return
	}
	if msg := h.unavailableModel(model); msg != "" {
		badRequest(c, msg)
		return
	}

	file, err := header.Open()
	if err != nil {
		internal(c, "could not read upload")
		return
	}
	defer file.Close()

	rec, err := h.jobs.Submit(c.Request.Context(), pipeline.Submission{
		SourceName: sourceName,
		Source:     file,
		Model:      model,
		Scale:      scale,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, EnhanceResponse{
		Message:  "Video upload successful, enhancement started",
		JobID:    rec.ID,
		Status:   rec.Status,
		Filename: header.Filename,
		FileSize: rec.SourceSize,
		Model:    rec.Params.Model,
		Scale:    rec.Params.Scale,
	})
}

// acceptedName returns the file name to store the upload under, or false when
// neither the extension nor the declared content type names a video.
func (h *handler) acceptedName(header *multipart.FileHeader) (string, bool) {
	name := filepath.Base(strings.TrimSpace(header.Filename))
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := h.extensions[ext]; ok && ext != "" {
		return name, true
	}
	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	if mapped, ok := videoContentTypes[contentType]; ok {
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if stem == "" || stem == "." || stem == string(filepath.Separator) {
			stem = "upload"
		}
		return stem + mapped, true
	}
	return "", false
}

// unavailableModel returns a client message when model is known but its
// binary is missing. Unknown models are left to the supervisor's validation.
func (h *handler) unavailableModel(model string) string {
	if h.models == nil {
		return ""
	}
	infos := h.models.Describe()
	available := make([]string, 0, len(infos))
	var target *bool
	for _, info := range infos {
		if info.Available {
			available = append(available, info.Name)
		}
		if info.Name == model {
			ok := info.Available
			target = &ok
		}
	}
	if target == nil || *target {
		return ""
	}
	return fmt.Sprintf("Model '%s' not available. Available models: %s", model, strings.Join(available, ", "))
}

func (h *handler) sizeLimitMessage() string {
	return fmt.Sprintf("File too large. Maximum size is %s.", humanize.Bytes(uint64(h.maxUpload)))
}

func (h *handler) status(c *gin.Context) {
	view, err := h.jobs.Status(c.Param("job_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *handler) download(c *gin.Context) {
	id := c.Param("job_id")
	rec, err := h.jobs.Get(id)
	if err != nil {
		respondError(c, err)
		return
	}
	switch rec.Status {
	case jobs.StatusCompleted:
		if rec.OutputRef == "" {
			notFound(c, "Enhanced video not found")
			return
		}
		if _, err := os.Stat(rec.OutputRef); err != nil {
			notFound(c, "Enhanced video not found")
			return
		}
		c.Header("Content-Type", "video/mp4")
		c.FileAttachment(rec.OutputRef, fmt.Sprintf("enhanced_%s.mp4", id))
	case jobs.StatusUploaded, jobs.StatusProcessing:
		JSONError(c, http.StatusAccepted, "processing", "Video is still being processed")
	case jobs.StatusFailed:
		badRequest(c, "Video enhancement failed: "+rec.Message)
	default:
		notFound(c, "Enhanced video not found")
	}
}

func (h *handler) cancel(c *gin.Context) {
	id := c.Param("job_id")
	if err := h.jobs.Cancel(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, CancelResponse{Message: fmt.Sprintf("Job %s cancelled and cleaned up", id)})
}

func (h *handler) listModels(c *gin.Context) {
	if h.models == nil {
		c.JSON(http.StatusOK, modelsResponse(nil, h.defaultModel, h.defaultScale))
		return
	}
	c.JSON(http.StatusOK, modelsResponse(h.models.Describe(), h.defaultModel, h.defaultScale))
}

func (h *handler) listHistory(c *gin.Context) {
	if h.history == nil {
		JSONError(c, http.StatusServiceUnavailable, "unavailable", "History ledger is disabled")
		return
	}
	limit := history.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			badRequest(c, fmt.Sprintf("invalid limit: %s", raw))
			return
		}
		limit = parsed
	}
	entries, err := h.history.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Warn("history query failed", logging.Error(err))
		internal(c, "could not read history")
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": entries, "count": len(entries)})
}
