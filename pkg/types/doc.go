// Package types defines the core types and interfaces used throughout
// server-sync: the FS interface the reconciler writes through, the
// Context model for per-context subtrees, and the transient FileRecord
// that carries a file through the pipeline.
package types
