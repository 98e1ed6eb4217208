// Package textutil cleans client-supplied file names before they reach logs,
// the job table, or the history ledger.
package textutil
