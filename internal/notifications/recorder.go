package notifications

import (
	"context"
	"log/slog"

	"upscaler/internal/history"
	"upscaler/internal/jobs"
	"upscaler/internal/logging"
)

// EntryRecorder persists terminal job outcomes.
type EntryRecorder interface {
	Record(ctx context.Context, entry history.Entry) error
}

// Recorder forwards each outcome to the next recorder, then pushes a
// notification. Cancelled jobs only notify when NotifyCancelled is set.
type Recorder struct {
	next            EntryRecorder
	service         Service
	notifyCancelled bool
	logger          *slog.Logger
}

// NewRecorder wraps next, which may be nil when the ledger is disabled.
func NewRecorder(next EntryRecorder, service Service, notifyCancelled bool, logger *slog.Logger) *Recorder {
	if service == nil {
		service = noopService{}
	}
	return &Recorder{
		next:            next,
		service:         service,
		notifyCancelled: notifyCancelled,
		logger:          logging.NewComponentLogger(logger, "notifications"),
	}
}

// Record returns only the next recorder's error; notification failures are
// logged.
func (r *Recorder) Record(ctx context.Context, entry history.Entry) error {
	var err error
	if r.next != nil {
		err = r.next.Record(ctx, entry)
	}
	if entry.Status == jobs.StatusCancelled && !r.notifyCancelled {
		return err
	}
	if notifyErr := r.service.NotifyJobFinished(ctx, entry); notifyErr != nil {
		logging.WarnWithContext(r.logger, "job notification failed", "notification_failed",
			logging.String(logging.FieldJobID, entry.JobID),
			logging.Error(notifyErr),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and network access"),
			logging.String(logging.FieldImpact, "no push was sent for this job"),
		)
	}
	return err
}
