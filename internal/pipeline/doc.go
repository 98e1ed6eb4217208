// Package pipeline runs jobs.
//
// The Orchestrator drives one job through probe, audio extraction, frame
// extraction, batch enhancement, merge, and optimize, writing status to the
// job store at every stage boundary. Each stage owns a fixed slice of the
// 0-100 progress range and is attempted at most once.
//
// The Supervisor owns job lifecycles: it accepts submissions, starts one
// goroutine per job behind a handle, and implements cancellation, retention
// purging, and graceful shutdown. Cancellation is cooperative; the running
// orchestrator notices it at the next stage boundary.
package pipeline
