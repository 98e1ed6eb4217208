// Package notifications pushes finished-job summaries to an ntfy topic.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers never branch on configuration. Recorder slots into the pipeline's
// history recording path and sends a push for every terminal job; delivery
// failures are logged and never affect the job.
package notifications
