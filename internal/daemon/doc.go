// Package daemon coordinates the long-running upscaler process.
//
// It wires configuration, the in-memory job store, the enhancement model
// registry, the pipeline supervisor, the history ledger, and the HTTP API into
// a single lifecycle with flock-based locking to prevent multiple instances on
// the same log directory. Startup prepares and checks the working directories
// and sweeps job directories orphaned by a previous run; the run loop serves
// the API next to the retention sweeper until the context ends.
//
// Keep orchestration logic here: pipeline behaviour lives in
// internal/pipeline while the daemon focuses on startup, shutdown, and high
// level coordination.
package daemon
