// Command upscaler runs the video enhancement daemon and talks to it over
// its HTTP API.
//
// `upscaler serve` starts the daemon in the foreground. The remaining
// commands (submit, status, cancel, download, models) are thin clients of a
// running daemon, while `history` reads the SQLite ledger directly so it
// works when the daemon is down.
package main
