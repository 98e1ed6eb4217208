// Package services defines shared utilities consumed by the pipeline stage
// adapters and the job supervisor.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so stage failures can be
//     classified with errors.Is and surfaced as job messages.
//
// Use these helpers when wiring new stage logic so failure reporting stays
// uniform across the pipeline.
package services
