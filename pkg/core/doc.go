// Package core implements the synchronization pipeline: per-context
// tree traversal, source classification, template rendering, and the
// reconciliation of each file into the destination tree.
//
// The pipeline is single-threaded and sequential. Contexts are
// processed in configured order; within a context files are reconciled
// one at a time. Errors local to a single file are recorded and never
// affect sibling files; errors affecting the run's preconditions are
// fatal.
package core
