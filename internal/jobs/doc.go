// Package jobs holds the authoritative status record for every known job.
//
// The Store interface is satisfied by MemoryStore, a map guarded by a single
// RWMutex with no I/O. Records are only mutated through partial Update calls,
// reads return copies, and unknown or purged ids surface ErrNotFound so
// callers can tell "never existed or already purged" apart from real failures.
// Once a record reaches a terminal status further updates are rejected with
// ErrTerminal.
package jobs
