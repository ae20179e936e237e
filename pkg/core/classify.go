package core

import (
	"path/filepath"
	"unicode/utf8"

	"github.com/arthur-debert/server-sync/pkg/errors"
	"github.com/arthur-debert/server-sync/pkg/types"
)

// classify reads the whole source file and decides whether it is text
// (valid UTF-8, eligible for templating) or opaque (copied verbatim).
// The decision is made from source bytes only; the destination's
// content never changes the classification.
func classify(fsys types.FS, c *types.Context, destRoot, rel, abs string) (*types.FileRecord, error) {
	data, err := fsys.ReadFile(abs)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrClassifyRead, "read source %s", abs)
	}

	rec := &types.FileRecord{
		Context:             c,
		RelativePath:        rel,
		AbsoluteSource:      abs,
		AbsoluteDestination: filepath.Join(destRoot, rel),
		SourceBytes:         data,
	}
	if utf8.Valid(data) {
		rec.Text = string(data)
		rec.IsText = true
	}
	return rec, nil
}
