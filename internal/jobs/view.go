package jobs

import "time"

// SecondsPerPercent is the fixed rate behind estimated completion times.
const SecondsPerPercent = 2 * time.Second

// View is the polling-client projection of a Record.
type View struct {
	JobID               string     `json:"job_id"`
	Status              Status     `json:"status"`
	Progress            float64    `json:"progress"`
	Message             string     `json:"message"`
	UpdatedAt           time.Time  `json:"updated_at"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`
}

// NewView projects rec for clients. The estimate is only present while the
// job is processing with progress above zero.
func NewView(rec Record, now time.Time) View {
	view := View{
		JobID:     rec.ID,
		Status:    rec.Status,
		Progress:  rec.Progress,
		Message:   rec.Message,
		UpdatedAt: rec.UpdatedAt,
	}
	if rec.Status == StatusProcessing && rec.Progress > 0 {
		remaining := time.Duration((100 - rec.Progress) * float64(SecondsPerPercent))
		eta := now.Add(remaining).UTC()
		view.EstimatedCompletion = &eta
	}
	return view
}
