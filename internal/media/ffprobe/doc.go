// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - VideoInfo: the first video stream's geometry, frame rate, and duration
//   - Prober: the pipeline's probe stage, bounded by a timeout
//
// Helper methods on Result provide stream counts, duration parsing, and
// frame-rate extraction from "num/den" rationals.
package ffprobe
