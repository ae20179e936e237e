package types

// FileRecord carries a single traversed source file through the
// pipeline. It lives for exactly one reconciliation step and is never
// persisted.
type FileRecord struct {
	Context *Context

	// RelativePath is the path of the file below the context's source
	// root, and also below the destination root.
	RelativePath string

	AbsoluteSource      string
	AbsoluteDestination string

	// SourceBytes is the full source content. Each file is read into
	// memory whole; per-file RAM is bounded by the largest file in the
	// tree.
	SourceBytes []byte

	// Text is the UTF-8 decoding of SourceBytes when IsText is true.
	// Classification is by source bytes only; the destination is never
	// consulted.
	Text   string
	IsText bool
}

// Outcome is the terminal state of one file reconciliation.
type Outcome int

const (
	// OutcomeUnchanged means the destination already held the candidate
	// bytes and nothing was written.
	OutcomeUnchanged Outcome = iota

	// OutcomeCreated means the destination did not exist and was
	// written fresh.
	OutcomeCreated

	// OutcomeReplaced means a differing destination was renamed to its
	// backup path and rewritten.
	OutcomeReplaced
)

// String returns a human-readable name for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeCreated:
		return "created"
	case OutcomeReplaced:
		return "replaced"
	default:
		return "unknown"
	}
}
