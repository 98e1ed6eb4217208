// Package workspace owns the on-disk layout of a job: its processing
// directory under paths.work_dir and its output directory under
// paths.output_dir. Removal is idempotent, and startup/retention sweeps
// remove directories that no live job owns.
package workspace
