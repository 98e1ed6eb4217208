// Package procexec runs external media tools (ffmpeg, ffprobe, enhancement
// binaries) with a hard timeout. Each child is started in its own process
// group so that a timeout or cancellation kills the tool and anything it
// spawned instead of leaving GPU workers running in the background.
package procexec
