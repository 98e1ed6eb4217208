// Package history persists the terminal outcome of every job in a SQLite
// ledger so results survive the in-memory store's retention window and
// daemon restarts.
//
// The ledger is append-mostly: one row per job id, written once when the job
// completes, fails, or is cancelled. It is never consulted by the pipeline
// itself.
package history
