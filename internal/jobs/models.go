package jobs

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsActive reports whether the job can still be cancelled.
func (s Status) IsActive() bool {
	return s == StatusUploaded || s == StatusProcessing
}

// ParseStatus converts a string into a Status, reporting whether it is known.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	switch status {
	case StatusUploaded, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return status, true
	default:
		return "", false
	}
}

// Params are the enhancement parameters fixed at submission.
type Params struct {
	Model string `json:"model"`
	Scale int    `json:"scale"`
}

// Record is the status record of one job.
type Record struct {
	ID         string    `json:"job_id"`
	Status     Status    `json:"status"`
	Progress   float64   `json:"progress"`
	Message    string    `json:"message"`
	Params     Params    `json:"params"`
	SourceName string    `json:"source_name,omitempty"`
	SourceSize int64     `json:"source_size,omitempty"`
	OutputRef  string    `json:"output_ref,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Update describes a partial mutation. Nil fields keep their prior values.
type Update struct {
	Status    *Status
	Progress  *float64
	Message   *string
	OutputRef *string
}

// Progressing builds an update that sets status, progress, and message together.
func Progressing(status Status, progress float64, message string) Update {
	return Update{Status: &status, Progress: &progress, Message: &message}
}

// WithOutput returns a copy of u that also records the output reference.
func (u Update) WithOutput(ref string) Update {
	u.OutputRef = &ref
	return u
}

// StatusOnly builds an update that changes status and message and keeps the
// current progress.
func StatusOnly(status Status, message string) Update {
	return Update{Status: &status, Message: &message}
}

// ProgressOnly builds an update that touches progress and message but not status.
func ProgressOnly(progress float64, message string) Update {
	return Update{Progress: &progress, Message: &message}
}

func clampProgress(value float64) float64 {
	switch {
	case value < 0:
		return 0
	case value > 100:
		return 100
	default:
		return value
	}
}
