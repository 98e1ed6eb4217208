// Package batch fans per-frame enhancement out over a fixed worker pool.
//
// Workers report each outcome to a single aggregator goroutine which owns the
// counters and invokes the progress callback, so callbacks never overlap and
// the observed completed+failed count is strictly increasing. No task is
// retried.
package batch
