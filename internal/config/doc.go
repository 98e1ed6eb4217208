// Package config loads, normalizes, and validates upscaler configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// UPSCALER_API_BIND. The Config type centralizes every knob the daemon and CLI
// need: working and output directories, upload limits, enhancement model
// binaries, ffmpeg presets, and retention timing.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
