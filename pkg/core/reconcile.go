package core

import (
	"bytes"
	goerrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/server-sync/pkg/diff"
	"github.com/arthur-debert/server-sync/pkg/errors"
	"github.com/arthur-debert/server-sync/pkg/logging"
	"github.com/arthur-debert/server-sync/pkg/owner"
	"github.com/arthur-debert/server-sync/pkg/types"
)

const (
	fileMode = 0o644
	dirMode  = 0o755
)

// Reconciler applies candidate bytes to destination paths under the
// backup-and-replace protocol. It assumes it is the sole writer of the
// destination subtree during a run.
type Reconciler struct {
	fs       types.FS
	root     string
	identity owner.Identity
	logger   zerolog.Logger
}

// NewReconciler creates a reconciler writing under root with the given
// identity.
func NewReconciler(fsys types.FS, root string, identity owner.Identity) *Reconciler {
	return &Reconciler{
		fs:       fsys,
		root:     root,
		identity: identity,
		logger:   logging.GetLogger("core.reconcile"),
	}
}

// Reconcile brings the destination of rec to the candidate bytes. The
// step order is normative: ensure ancestors, compare, rename the old
// content to its backup path, write fresh, normalize permissions. A
// differing destination is never truncated in place; its content is
// fully present at the backup path before the new bytes are written.
func (r *Reconciler) Reconcile(rec *types.FileRecord, candidate []byte) (types.Outcome, error) {
	dest := rec.AbsoluteDestination

	if err := r.ensureAncestors(dest); err != nil {
		return types.OutcomeUnchanged, err
	}

	existing, found, err := r.readDestination(dest)
	if err != nil {
		return types.OutcomeUnchanged, err
	}

	if found && bytes.Equal(existing, candidate) {
		r.logger.Debug().Str("path", dest).Msg("File is up to date")
		// Content no-op still normalizes permissions and ownership.
		if err := r.normalize(dest, fileMode); err != nil {
			return types.OutcomeUnchanged, err
		}
		return types.OutcomeUnchanged, nil
	}

	outcome := types.OutcomeCreated
	if found {
		if rec.IsText && utf8.Valid(existing) {
			diff.Emit(r.logger, string(existing), string(candidate))
		}
		if err := r.backup(dest); err != nil {
			return types.OutcomeUnchanged, err
		}
		outcome = types.OutcomeReplaced
	}

	if err := r.fs.WriteFile(dest, candidate, fileMode); err != nil {
		return types.OutcomeUnchanged, errors.Wrapf(err, errors.ErrWrite, "write %s", dest)
	}

	if err := r.normalize(dest, fileMode); err != nil {
		return types.OutcomeUnchanged, err
	}

	r.logger.Debug().Str("path", dest).Stringer("outcome", outcome).Msg("File reconciled")
	return outcome, nil
}

// ensureAncestors creates the missing ancestors of dest below the
// destination root, one level at a time, root to leaf. Directories
// created here receive dirMode and the run identity; pre-existing
// entries, including symlinked ancestors, are passed over.
func (r *Reconciler) ensureAncestors(dest string) error {
	rel, err := filepath.Rel(r.root, filepath.Dir(dest))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return errors.Newf(errors.ErrWrite, "destination %s escapes the destination root", dest)
	}
	if rel == "." {
		return nil
	}

	current := r.root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		current = filepath.Join(current, part)

		info, err := r.fs.Lstat(current)
		if err == nil {
			if info.Mode()&fs.ModeSymlink != 0 {
				// Symlinked ancestor: writes pass through it, but it is
				// never normalized.
				continue
			}
			if !info.IsDir() {
				return errors.Newf(errors.ErrWrite, "ancestor %s is not a directory", current)
			}
			continue
		}
		if !os.IsNotExist(err) {
			return errors.Wrapf(err, errors.ErrWrite, "stat ancestor %s", current)
		}

		if err := r.fs.Mkdir(current, dirMode); err != nil {
			// A concurrent creation race is benign.
			if goerrors.Is(err, fs.ErrExist) {
				continue
			}
			return errors.Wrapf(err, errors.ErrWrite, "create directory %s", current)
		}
		r.logger.Debug().Str("path", current).Msg("Created directory")

		if err := r.normalize(current, dirMode); err != nil {
			return err
		}
	}
	return nil
}

// readDestination returns the destination's current bytes, or
// found=false when it does not exist. A destination that exists but is
// not a regular file cannot be reconciled and fails this file.
func (r *Reconciler) readDestination(dest string) ([]byte, bool, error) {
	info, err := r.fs.Lstat(dest)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, errors.ErrWrite, "stat destination %s", dest)
	}
	if info.IsDir() {
		return nil, false, errors.Newf(errors.ErrWrite, "destination %s is a directory", dest)
	}
	if !info.Mode().IsRegular() {
		return nil, false, errors.Newf(errors.ErrWrite, "destination %s is not a regular file", dest)
	}

	data, err := r.fs.ReadFile(dest)
	if err != nil {
		return nil, false, errors.Wrapf(err, errors.ErrWrite, "read destination %s", dest)
	}
	return data, true, nil
}

// backup renames dest to its backup path, discarding any previous
// backup. The rename happens before the new write so the old content is
// always fully present somewhere.
func (r *Reconciler) backup(dest string) error {
	bak := BackupPath(dest)

	if _, err := r.fs.Lstat(bak); err == nil {
		if err := r.fs.Remove(bak); err != nil {
			return errors.Wrapf(err, errors.ErrBackup, "remove stale backup %s", bak)
		}
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, errors.ErrBackup, "stat backup %s", bak)
	}

	r.logger.Trace().Str("path", dest).Str("backup", bak).Msg("Backing up")
	if err := r.fs.Rename(dest, bak); err != nil {
		return errors.Wrapf(err, errors.ErrBackup, "rename %s to %s", dest, bak)
	}
	return nil
}

// normalize applies the mode and the run identity to path.
func (r *Reconciler) normalize(path string, mode fs.FileMode) error {
	if err := r.fs.Chmod(path, mode); err != nil {
		return errors.Wrapf(err, errors.ErrPermission, "chmod %s", path)
	}
	if err := r.fs.Chown(path, r.identity.UID, r.identity.GID); err != nil {
		return errors.Wrapf(err, errors.ErrPermission, "chown %s", path)
	}
	return nil
}

// BackupPath returns the backup sibling for a destination path: the
// final extension replaced by "bak", or ".bak" appended when the name
// has no extension. Dotfiles count as extensionless.
func BackupPath(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if ext == "" || ext == base {
		return path + ".bak"
	}
	return strings.TrimSuffix(path, ext) + ".bak"
}
