package pipeline

import (
	"context"
	"time"

	"upscaler/internal/logging"
)

// RunRetention purges expired jobs every interval until ctx ends. After each
// purge it sweeps job directories that outlived the window without a record,
// which happens when an earlier removal failed.
func (s *Supervisor) RunRetention(ctx context.Context, interval time.Duration) error {
	if interval <= 0 || s.retention <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Supervisor) sweep(ctx context.Context) {
	purged := s.PurgeExpired(ctx, s.now())
	result := s.workspace.CleanStale(ctx, s.retention, s.ActiveIDs())
	if purged > 0 || len(result.Removed) > 0 {
		s.logger.Info("retention sweep finished",
			logging.Int("jobs_purged", purged),
			logging.Int("directories_removed", len(result.Removed)),
			logging.Int("errors", len(result.Errors)),
			logging.String(logging.FieldEventType, "retention_sweep"),
		)
	}
}
