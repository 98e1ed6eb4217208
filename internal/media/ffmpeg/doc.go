// Package ffmpeg implements the ffmpeg-backed pipeline stages: audio
// extraction, frame extraction, frame+audio merge, and size optimization.
//
// Every stage satisfies stage.Adapter. Invocations go through procexec so
// the configured stage timeout kills a hung ffmpeg, and each Run verifies
// that its declared output exists and is non-empty before reporting success.
package ffmpeg
